// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/ecr"
	"github.com/aws/aws-sdk-go/service/ecs"
	"github.com/aws/aws-sdk-go/service/ssm"
	"github.com/google/uuid"

	"github.com/AleutianAI/ecsdeploy/cmd/ecsdeploy/config"
	"github.com/AleutianAI/ecsdeploy/cmd/ecsdeploy/internal/deploy"
	"github.com/AleutianAI/ecsdeploy/cmd/ecsdeploy/internal/diagnostics"
	"github.com/AleutianAI/ecsdeploy/cmd/ecsdeploy/internal/ecsctl"
	"github.com/AleutianAI/ecsdeploy/cmd/ecsdeploy/internal/gitref"
	"github.com/AleutianAI/ecsdeploy/cmd/ecsdeploy/internal/images"
	"github.com/AleutianAI/ecsdeploy/cmd/ecsdeploy/internal/infra/compose"
	"github.com/AleutianAI/ecsdeploy/cmd/ecsdeploy/internal/infra/process"
	"github.com/AleutianAI/ecsdeploy/cmd/ecsdeploy/internal/params"
	"github.com/AleutianAI/ecsdeploy/cmd/ecsdeploy/internal/terraform"
	"github.com/AleutianAI/ecsdeploy/pkg/logging"
	"github.com/AleutianAI/ecsdeploy/pkg/ux"
)

// shutdownTimeout bounds the final span flush so an unreachable collector
// cannot hang the exit.
const shutdownTimeout = 5 * time.Second

// app holds the process-wide pieces every deploying command shares.
type app struct {
	cfg     config.DeployConfig
	base    *logging.Logger
	logger  *logging.Logger
	tracer  diagnostics.Tracer
	printer *ux.Printer
	runID   string
}

// openApp is the production openFunc.
func (c *cli) openApp(ctx context.Context, req requirements) (*deploy.Deployer, func(), error) {
	a, err := newApp(ctx, c.flags, c.printer)
	if err != nil {
		return nil, nil, err
	}
	d, err := a.deployer(req)
	if err != nil {
		a.close()
		return nil, nil, err
	}
	return d, a.close, nil
}

// newApp loads the configuration and sets up logging and tracing.
//
// # Description
//
// The log level comes from --log-level, else logging.level. Every record
// carries a run_id that is also attached to spans and used as the ECS
// StartedBy tag, so one invocation can be followed across all three.
func newApp(ctx context.Context, flags globalFlags, printer *ux.Printer) (*app, error) {
	cfg, err := config.LoadFrom(flags.ConfigPath, os.LookupEnv)
	if err != nil {
		return nil, err
	}

	levelName := cfg.Logging.Level
	if flags.LogLevel != "" {
		levelName = flags.LogLevel
	}
	level, err := logging.ParseLevel(levelName)
	if err != nil {
		return nil, err
	}

	if printer == nil {
		printer = ux.Stdout()
	}

	runID := uuid.NewString()
	base := logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Logging.Dir,
		Service: diagnostics.DefaultServiceName,
		JSON:    flags.LogJSON || cfg.Logging.JSON,
		Writer:  printer.Err,
	})
	logger := base.With("run_id", runID)

	tracer, err := diagnostics.NewTracer(ctx, diagnostics.ConfigFromEnv(diagnostics.Config{
		Stdout:     flags.Trace,
		Writer:     printer.Err,
		Attributes: map[string]string{"run_id": runID},
	}, nil))
	if err != nil {
		base.Close()
		return nil, err
	}

	logger.Debug("configuration loaded",
		"terraform_dir", cfg.Terraform.Dir,
		"build_strategy", cfg.Build.Strategy,
		"region", cfg.AWS.Region)

	return &app{
		cfg:     cfg,
		base:    base,
		logger:  logger,
		tracer:  tracer,
		printer: printer,
		runID:   runID,
	}, nil
}

func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.tracer.Shutdown(ctx); err != nil {
		a.logger.Warn("failed to flush trace spans", "error", err.Error())
	}
	a.base.Close()
}

// deployer wires the components req asks for.
func (a *app) deployer(req requirements) (*deploy.Deployer, error) {
	cfg := a.cfg
	proc := process.NewDefaultManager()

	tfConfig := terraform.ControllerConfig{Dir: cfg.Terraform.Dir, Binary: cfg.Terraform.Binary}
	controller := terraform.NewController(tfConfig, proc, a.logger)

	deps := deploy.Dependencies{
		Config:    cfg,
		Terraform: controller,
		Outputs:   terraform.NewOutputReader(tfConfig, proc, controller, a.logger),
		Printer:   a.printer,
		Logger:    a.logger,
		Tracer:    a.tracer,
		RunID:     a.runID,
	}

	needAWS := req.aws || (req.build && cfg.Build.Strategy == "compose")
	var auth images.RegistryAuth = images.NopAuth{}
	if needAWS {
		if err := cfg.RequireRegion(); err != nil {
			return nil, err
		}
		sess, err := newAWSSession(cfg.AWS)
		if err != nil {
			return nil, err
		}
		deps.ECS = ecsctl.NewClient(ecs.New(sess), a.logger)
		deps.Params = params.NewReader(ssm.New(sess), a.logger)
		auth = images.NewECRAuth(ecr.New(sess), proc, cfg.Build.DockerBinary, a.logger)
	}

	var guard gitref.Checkouter
	if req.git {
		if err := cfg.RequireRepo(); err != nil {
			return nil, err
		}
		g, err := gitref.Open(cfg.Repo, a.printer.Writer())
		if err != nil {
			return nil, err
		}
		guard = g
	}

	builder, publisher, err := a.imageComponents(proc, guard, auth)
	if err != nil {
		return nil, err
	}
	deps.Builder = builder
	deps.Publisher = publisher

	lock, err := a.lock()
	if err != nil {
		return nil, err
	}
	deps.Lock = lock

	return deploy.New(deps), nil
}

// imageComponents picks the builder and publisher for build.strategy.
func (a *app) imageComponents(proc process.Manager, guard gitref.Checkouter, auth images.RegistryAuth) (images.Builder, images.Publisher, error) {
	cfg := a.cfg
	appSrc := images.ImageSource{
		Repository: cfg.App.Image,
		Context:    cfg.App.BuildContext(),
		Dockerfile: cfg.App.Dockerfile,
	}
	sidecarSrc := images.ImageSource{
		Repository: cfg.Sidecar.Image,
		Context:    cfg.Sidecar.BuildContext(),
		Dockerfile: cfg.Sidecar.Dockerfile,
	}
	out := a.printer.Writer()

	switch cfg.Build.Strategy {
	case "compose":
		exec, err := compose.NewDefaultExecutor(compose.Config{
			File:   cfg.Build.ComposeFile,
			Binary: cfg.Build.ComposeBinary,
		}, proc, a.logger)
		if err != nil {
			return nil, nil, err
		}
		composeCfg := images.ComposeConfig{App: appSrc, Sidecar: sidecarSrc, TailLines: cfg.Build.TailLines}
		return images.NewComposeBuilder(composeCfg, exec, auth, guard, out, a.logger),
			images.NewComposePublisher(composeCfg, exec, auth, out, a.logger), nil

	case "docker", "":
		dockerCfg := images.DockerConfig{
			App:       appSrc,
			Sidecar:   sidecarSrc,
			Binary:    cfg.Build.DockerBinary,
			TailLines: cfg.Build.TailLines,
		}
		return images.NewDockerBuilder(dockerCfg, proc, guard, out, a.logger),
			images.NewDockerPublisher(dockerCfg, proc, auth, out, a.logger), nil

	default:
		return nil, nil, fmt.Errorf("%w: unknown build strategy %q", config.ErrInvalidConfig, cfg.Build.Strategy)
	}
}

func (a *app) lock() (process.Locker, error) {
	if a.cfg.Lock.Disabled {
		return process.NopLocker{}, nil
	}
	lockCfg, err := process.LockConfigFor(a.cfg.Lock.Dir, a.cfg.Terraform.Dir)
	if err != nil {
		return nil, err
	}
	return process.NewLock(lockCfg), nil
}

// newAWSSession builds a session for the configured region and, when set,
// shared-config profile. No request is made until a client is used.
func newAWSSession(cfg config.AWSConfig) (*session.Session, error) {
	sess, err := session.NewSessionWithOptions(session.Options{
		Config:            aws.Config{Region: aws.String(cfg.Region)},
		Profile:           cfg.Profile,
		SharedConfigState: session.SharedConfigEnable,
	})
	if err != nil {
		return nil, fmt.Errorf("create AWS session: %w", err)
	}
	return sess, nil
}
