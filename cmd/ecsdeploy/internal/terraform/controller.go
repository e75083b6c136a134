// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package terraform drives the terraform binary: workspace management,
// apply/plan with per-environment var files, and reading outputs.
//
// # Description
//
// Each environment (dev, staging, production, ...) is a Terraform workspace
// paired with a var file named terraform.<env>.tfvars in the Terraform
// directory. Terraform itself owns all state; this package only shells out
// and checks exit codes.
package terraform

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/AleutianAI/ecsdeploy/cmd/ecsdeploy/internal/infra/process"
	"github.com/AleutianAI/ecsdeploy/pkg/logging"
	"github.com/AleutianAI/ecsdeploy/pkg/validation"
)

var (
	// ErrInvalidWorkspace is returned for environment names terraform would
	// reject or that could be mistaken for flags.
	ErrInvalidWorkspace = errors.New("invalid workspace name")

	// ErrOutputUnavailable is returned when an output is absent from state or
	// terraform's output could not be parsed.
	ErrOutputUnavailable = errors.New("output not available in Terraform state")

	// ErrOutputType is returned when an output's value has the wrong shape.
	ErrOutputType = errors.New("unexpected Terraform output type")

	// ErrVarFileMissing is returned when terraform.<env>.tfvars does not exist.
	ErrVarFileMissing = errors.New("terraform var file not found")
)

// ValidateWorkspace checks that env is usable as a workspace name.
func ValidateWorkspace(env string) error {
	if err := validation.ValidateWorkspace(env); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidWorkspace, err)
	}
	return nil
}

// Action is the terraform subcommand Deploy runs.
type Action string

const (
	ActionApply Action = "apply"
	ActionPlan  Action = "plan"
)

// Var is a single -var override. Order is preserved on the command line.
type Var struct {
	Name  string
	Value string
}

// DeployOptions configures Controller.Deploy.
type DeployOptions struct {
	// Env is the workspace and var-file suffix. Required.
	Env string

	// Action is apply (default) or plan.
	Action Action

	// Vars are passed as -var name=value after the var file.
	Vars []Var

	// AutoApprove adds -auto-approve to apply. Ignored for plan.
	AutoApprove bool
}

// ControllerConfig locates the terraform binary and configuration.
type ControllerConfig struct {
	// Dir is the Terraform configuration directory.
	Dir string

	// Binary is the terraform executable. Default: "terraform".
	Binary string
}

// Controller manages workspaces and runs apply/plan.
//
// # Description
//
// Workspace commands are run with captured output. init, apply and plan run
// attached to the operator's terminal so that progress is visible and
// apply's confirmation prompt works; only their exit status is checked.
//
// # Limitations
//
//   - Create is not idempotent: terraform refuses to create an existing
//     workspace.
//   - No locking of remote state beyond what terraform does itself.
type Controller struct {
	config ControllerConfig
	proc   process.Manager
	logger *logging.Logger
}

// NewController creates a Controller.
func NewController(config ControllerConfig, proc process.Manager, logger *logging.Logger) *Controller {
	if config.Binary == "" {
		config.Binary = "terraform"
	}
	if config.Dir == "" {
		config.Dir = "."
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Controller{config: config, proc: proc, logger: logger}
}

// Dir returns the Terraform directory.
func (c *Controller) Dir() string {
	return c.config.Dir
}

// VarFileName returns "terraform.<env>.tfvars".
func VarFileName(env string) string {
	return "terraform." + env + ".tfvars"
}

// VarFilePath returns the var file path for env inside the Terraform directory.
func (c *Controller) VarFilePath(env string) string {
	return filepath.Join(c.config.Dir, VarFileName(env))
}

// SelectWorkspace runs `terraform workspace select <env>`.
func (c *Controller) SelectWorkspace(ctx context.Context, env string) error {
	if err := ValidateWorkspace(env); err != nil {
		return err
	}
	c.logger.Debug("selecting terraform workspace", "workspace", env)
	if _, err := c.proc.Run(ctx, c.config.Dir, c.config.Binary, "workspace", "select", env); err != nil {
		return fmt.Errorf("select workspace %s: %w", env, err)
	}
	return nil
}

// Create creates a new workspace, selects it and initializes the backend.
func (c *Controller) Create(ctx context.Context, env string) error {
	if err := ValidateWorkspace(env); err != nil {
		return err
	}
	c.logger.Info("creating terraform workspace", "workspace", env)
	if _, err := c.proc.Run(ctx, c.config.Dir, c.config.Binary, "workspace", "new", env); err != nil {
		return fmt.Errorf("create workspace %s: %w", env, err)
	}
	return c.Initialize(ctx, env)
}

// Initialize selects an existing workspace and runs `terraform init`.
func (c *Controller) Initialize(ctx context.Context, env string) error {
	if err := c.SelectWorkspace(ctx, env); err != nil {
		return err
	}
	c.logger.Info("initializing terraform", "workspace", env, "dir", c.config.Dir)
	if err := c.proc.RunAttached(ctx, c.config.Dir, nil, c.config.Binary, "init"); err != nil {
		return fmt.Errorf("terraform init: %w", err)
	}
	return nil
}

// Deploy selects the workspace and runs apply or plan with the environment's
// var file plus opts.Vars.
//
// # Description
//
// The var file is checked (exists and parses as HCL) before anything is
// run, so a typo in the environment name fails without switching the
// workspace. Variables in opts.Vars that the var file also sets are logged;
// terraform gives -var precedence.
//
// Command line:
//
//	terraform apply -var-file=terraform.<env>.tfvars -var app_image=repo/app:1.2.0 [-auto-approve]
//
// # Outputs
//
//   - error: ErrInvalidWorkspace, ErrVarFileMissing, a var-file parse error,
//     or a *util.CommandError from terraform
func (c *Controller) Deploy(ctx context.Context, opts DeployOptions) error {
	if err := ValidateWorkspace(opts.Env); err != nil {
		return err
	}
	action := opts.Action
	if action == "" {
		action = ActionApply
	}
	if action != ActionApply && action != ActionPlan {
		return fmt.Errorf("unsupported terraform action %q", action)
	}

	varFile, err := LoadVarFile(c.VarFilePath(opts.Env))
	if err != nil {
		return err
	}
	for _, v := range opts.Vars {
		if !varFile.Has(v.Name) {
			continue
		}
		attrs := []any{"var", v.Name, "var_file", varFile.Path, "value", v.Value}
		if fileValue, ok := varFile.String(v.Name); ok {
			attrs = append(attrs, "var_file_value", fileValue)
		}
		c.logger.Warn("command-line variable overrides var file", attrs...)
	}

	if err := c.SelectWorkspace(ctx, opts.Env); err != nil {
		return err
	}

	args := []string{string(action), "-var-file=" + VarFileName(opts.Env)}
	for _, v := range opts.Vars {
		args = append(args, "-var", v.Name+"="+v.Value)
	}
	if opts.AutoApprove && action == ActionApply {
		args = append(args, "-auto-approve")
	}

	c.logger.Info("running terraform", "action", string(action), "workspace", opts.Env)
	if err := c.proc.RunAttached(ctx, c.config.Dir, nil, c.config.Binary, args...); err != nil {
		return fmt.Errorf("terraform %s: %w", action, err)
	}
	return nil
}
