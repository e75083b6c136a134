// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package deploy implements the ecsdeploy subcommands on top of the
// terraform, images, ecsctl and params components.
//
// # Description
//
// Deployer has one method per subcommand. Each method opens a tracing span,
// and every method that changes something (a git checkout, a terraform
// workspace, a registry, an ECS service) first takes the process lock so
// two invocations in the same working directory cannot interleave.
package deploy

import (
	"context"
	"fmt"

	"github.com/AleutianAI/ecsdeploy/cmd/ecsdeploy/config"
	"github.com/AleutianAI/ecsdeploy/cmd/ecsdeploy/internal/diagnostics"
	"github.com/AleutianAI/ecsdeploy/cmd/ecsdeploy/internal/ecsctl"
	"github.com/AleutianAI/ecsdeploy/cmd/ecsdeploy/internal/images"
	"github.com/AleutianAI/ecsdeploy/cmd/ecsdeploy/internal/infra/process"
	"github.com/AleutianAI/ecsdeploy/cmd/ecsdeploy/internal/params"
	"github.com/AleutianAI/ecsdeploy/cmd/ecsdeploy/internal/terraform"
	"github.com/AleutianAI/ecsdeploy/pkg/logging"
	"github.com/AleutianAI/ecsdeploy/pkg/ux"
)

// =============================================================================
// Component Interfaces
// =============================================================================

// InfraController is the part of terraform.Controller the Deployer uses.
type InfraController interface {
	Create(ctx context.Context, env string) error
	Initialize(ctx context.Context, env string) error
	Deploy(ctx context.Context, opts terraform.DeployOptions) error
}

// OutputSource reads Terraform outputs.
type OutputSource interface {
	FetchAll(ctx context.Context, env string) (terraform.Outputs, error)
}

// ServiceController drives ECS.
type ServiceController interface {
	Redeploy(ctx context.Context, cluster string, services map[string]string, selected []string) (*ecsctl.RedeployResult, error)
	RunTask(ctx context.Context, spec ecsctl.TaskSpec) (*ecsctl.TaskResult, error)
}

// ParameterSource reads SSM parameters.
type ParameterSource interface {
	Get(ctx context.Context, name string, decrypt bool) (*params.Parameter, error)
}

var (
	_ InfraController   = (*terraform.Controller)(nil)
	_ OutputSource      = (*terraform.OutputReader)(nil)
	_ ServiceController = (*ecsctl.Client)(nil)
	_ ParameterSource   = (*params.Reader)(nil)
)

// =============================================================================
// Deployer
// =============================================================================

// Dependencies are the components a Deployer drives. Components a command
// does not use may be nil; the command reports a clear error if it needs
// one that is missing.
type Dependencies struct {
	Config config.DeployConfig

	Terraform InfraController
	Outputs   OutputSource
	Builder   images.Builder
	Publisher images.Publisher
	ECS       ServiceController
	Params    ParameterSource

	Lock    process.Locker
	Printer *ux.Printer
	Logger  *logging.Logger
	Tracer  diagnostics.Tracer

	// RunID identifies this invocation in logs and as the ECS StartedBy tag.
	RunID string
}

// Deployer runs ecsdeploy subcommands.
type Deployer struct {
	deps Dependencies
}

// New creates a Deployer, filling no-op defaults for the ambient pieces.
func New(deps Dependencies) *Deployer {
	if deps.Lock == nil {
		deps.Lock = process.NopLocker{}
	}
	if deps.Printer == nil {
		deps.Printer = ux.Stdout()
	}
	if deps.Logger == nil {
		deps.Logger = logging.Nop()
	}
	if deps.Tracer == nil {
		deps.Tracer = diagnostics.NoOpTracer{}
	}
	return &Deployer{deps: deps}
}

// Config returns the configuration the Deployer was built with.
func (d *Deployer) Config() config.DeployConfig {
	return d.deps.Config
}

// run wraps a command body in a span and, when mutating, the process lock.
func (d *Deployer) run(ctx context.Context, name string, mutating bool, attrs map[string]string, body func(ctx context.Context) error) (err error) {
	if attrs == nil {
		attrs = map[string]string{}
	}
	if d.deps.RunID != "" {
		attrs["run_id"] = d.deps.RunID
	}
	ctx, finish := d.deps.Tracer.StartSpan(ctx, "deploy."+name, attrs)
	defer func() { finish(err) }()

	if mutating {
		if err := d.deps.Lock.Acquire(); err != nil {
			return err
		}
		defer func() {
			if rerr := d.deps.Lock.Release(); rerr != nil {
				d.deps.Logger.Warn("failed to release lock", "error", rerr.Error())
			}
		}()
	}

	return body(ctx)
}

func missing(component string) error {
	return fmt.Errorf("%s is not configured for this command", component)
}
