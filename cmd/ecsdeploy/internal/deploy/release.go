// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package deploy

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/AleutianAI/ecsdeploy/cmd/ecsdeploy/internal/images"
	"github.com/AleutianAI/ecsdeploy/cmd/ecsdeploy/internal/pipeline"
	"github.com/AleutianAI/ecsdeploy/cmd/ecsdeploy/internal/terraform"
	"github.com/AleutianAI/ecsdeploy/pkg/validation"
)

// ApplyOptions configures Apply and All.
type ApplyOptions struct {
	Env string

	// Tag is the release tag. Empty means "latest".
	Tag string

	// Plan runs terraform plan instead of apply.
	Plan bool

	// AutoApprove skips apply's confirmation prompt. The terraform
	// auto_approve config setting has the same effect.
	AutoApprove bool
}

// =============================================================================
// Workspace Commands
// =============================================================================

// Create creates and initializes the Terraform workspace env.
func (d *Deployer) Create(ctx context.Context, env string) error {
	return d.run(ctx, "create", true, map[string]string{"env": env}, func(ctx context.Context) error {
		if d.deps.Terraform == nil {
			return missing("terraform")
		}
		if err := d.deps.Terraform.Create(ctx, env); err != nil {
			return err
		}
		d.deps.Printer.Success(fmt.Sprintf("Created and initialized workspace %s", env))
		return nil
	})
}

// Init re-initializes the existing Terraform workspace env.
func (d *Deployer) Init(ctx context.Context, env string) error {
	return d.run(ctx, "init", true, map[string]string{"env": env}, func(ctx context.Context) error {
		if d.deps.Terraform == nil {
			return missing("terraform")
		}
		if err := d.deps.Terraform.Initialize(ctx, env); err != nil {
			return err
		}
		d.deps.Printer.Success(fmt.Sprintf("Initialized workspace %s", env))
		return nil
	})
}

// =============================================================================
// Release Commands
// =============================================================================

// Build builds the release images for tag.
func (d *Deployer) Build(ctx context.Context, tag string) error {
	return d.run(ctx, "build", true, map[string]string{"tag": tagOrLatest(tag)}, func(ctx context.Context) error {
		return d.build(ctx, tag)
	})
}

// Push pushes the release images for tag.
func (d *Deployer) Push(ctx context.Context, tag string) error {
	return d.run(ctx, "push", true, map[string]string{"tag": tagOrLatest(tag)}, func(ctx context.Context) error {
		return d.push(ctx, tag)
	})
}

// Apply runs terraform apply (or plan) for the workspace with the release
// image variables set.
func (d *Deployer) Apply(ctx context.Context, opts ApplyOptions) error {
	attrs := map[string]string{"env": opts.Env, "tag": tagOrLatest(opts.Tag), "plan": fmt.Sprint(opts.Plan)}
	return d.run(ctx, "apply", true, attrs, func(ctx context.Context) error {
		return d.apply(ctx, opts)
	})
}

// All builds, pushes and applies tag to env as one locked pipeline.
//
// # Description
//
// Steps run in order and stop at the first failure. Nothing is rolled
// back: the returned error names the steps that completed, so the operator
// knows, for example, that images were pushed but never applied.
func (d *Deployer) All(ctx context.Context, opts ApplyOptions) error {
	attrs := map[string]string{"env": opts.Env, "tag": tagOrLatest(opts.Tag)}
	return d.run(ctx, "all", true, attrs, func(ctx context.Context) error {
		printer := d.deps.Printer
		printer.Title(fmt.Sprintf("Deploying %s to %s", tagOrLatest(opts.Tag), opts.Env))
		p := pipeline.New(pipeline.Config{
			Name:   "deploy.all",
			Logger: d.deps.Logger,
			Tracer: d.deps.Tracer,
			OnStepStart: func(n, total int, step pipeline.Step) {
				printer.Step(n, total, step.Name)
			},
			OnStepComplete: func(step pipeline.Step, took time.Duration) {
				printer.Info(fmt.Sprintf("%s finished in %s", step.Name, took.Round(time.Millisecond)))
			},
			OnStepFail: func(step pipeline.Step, err *pipeline.StepError) {
				if len(err.Completed) > 0 {
					printer.Warning(fmt.Sprintf("Completed before failure: %s", strings.Join(err.Completed, ", ")))
				}
			},
		})
		p.Add("build", func(ctx context.Context) error { return d.build(ctx, opts.Tag) }).
			Add("push", func(ctx context.Context) error { return d.push(ctx, opts.Tag) }).
			Add("apply", func(ctx context.Context) error { return d.apply(ctx, opts) })

		result, err := p.Execute(ctx)
		if err != nil {
			return err
		}
		printer.Success(fmt.Sprintf("Deployed %s to %s in %s", tagOrLatest(opts.Tag), opts.Env, result.Duration.Round(time.Second)))
		return nil
	})
}

func (d *Deployer) build(ctx context.Context, tag string) error {
	if d.deps.Builder == nil {
		return missing("image builder")
	}
	if err := checkTag(tag); err != nil {
		return err
	}
	if err := d.deps.Config.RequireImages(); err != nil {
		return err
	}
	if tag != "" {
		if err := d.deps.Config.RequireRepo(); err != nil {
			return err
		}
	}
	built, err := d.deps.Builder.Build(ctx, tag)
	for _, img := range built {
		d.deps.Printer.Success(fmt.Sprintf("Built %s", img))
	}
	return err
}

func (d *Deployer) push(ctx context.Context, tag string) error {
	if d.deps.Publisher == nil {
		return missing("image publisher")
	}
	if err := checkTag(tag); err != nil {
		return err
	}
	if err := d.deps.Config.RequireImages(); err != nil {
		return err
	}
	pushed, err := d.deps.Publisher.Push(ctx, tag)
	for _, img := range pushed {
		d.deps.Printer.Success(fmt.Sprintf("Pushed %s", img))
	}
	var pushErr *images.PushError
	if errors.As(err, &pushErr) && len(pushErr.Pushed) > 0 {
		d.deps.Printer.Warning(fmt.Sprintf("%s was not pushed; images already in the registry were left in place", pushErr.Failed))
	}
	return err
}

func (d *Deployer) apply(ctx context.Context, opts ApplyOptions) error {
	if d.deps.Terraform == nil {
		return missing("terraform")
	}
	vars, err := d.releaseVars(opts.Tag)
	if err != nil {
		return err
	}

	action := terraform.ActionApply
	if opts.Plan {
		action = terraform.ActionPlan
	}
	err = d.deps.Terraform.Deploy(ctx, terraform.DeployOptions{
		Env:         opts.Env,
		Action:      action,
		Vars:        vars,
		AutoApprove: opts.AutoApprove || d.deps.Config.Terraform.AutoApprove,
	})
	if err != nil {
		return err
	}
	if !opts.Plan {
		d.deps.Printer.Success(fmt.Sprintf("Applied %s to %s", tagOrLatest(opts.Tag), opts.Env))
	}
	return nil
}

// releaseVars renders the -var overrides for the configured var mode:
// "tag" sets app_tag; "images" sets app_image and nginx_image to full
// image references.
func (d *Deployer) releaseVars(tag string) ([]terraform.Var, error) {
	cfg := d.deps.Config
	if err := checkTag(tag); err != nil {
		return nil, err
	}
	tag = tagOrLatest(tag)

	switch cfg.Terraform.VarMode {
	case "tag":
		return []terraform.Var{{Name: "app_tag", Value: tag}}, nil
	case "images", "":
		if err := cfg.RequireImages(); err != nil {
			return nil, err
		}
		vars := []terraform.Var{
			{Name: "app_image", Value: images.NewImageSpec(cfg.App.Image, tag).String()},
		}
		if cfg.HasSidecar() {
			vars = append(vars, terraform.Var{Name: "nginx_image", Value: images.NewImageSpec(cfg.Sidecar.Image, tag).String()})
		}
		return vars, nil
	default:
		return nil, fmt.Errorf("unknown terraform var mode %q", cfg.Terraform.VarMode)
	}
}

// checkTag validates a non-empty release tag. Empty means "latest" or the
// working tree and needs no check.
func checkTag(tag string) error {
	if tag == "" {
		return nil
	}
	return validation.ValidateImageTag(tag)
}

func tagOrLatest(tag string) string {
	if tag == "" {
		return images.DefaultTag
	}
	return tag
}
