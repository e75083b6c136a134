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

	"github.com/spf13/cobra"

	"github.com/AleutianAI/ecsdeploy/cmd/ecsdeploy/internal/deploy"
)

// =============================================================================
// Workspace Commands
// =============================================================================

func newCreateCmd(c *cli) *cobra.Command {
	var env string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create and initialize a Terraform workspace",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withDeployer(cmd, requirements{}, func(ctx context.Context, d *deploy.Deployer) error {
				return d.Create(ctx, env)
			})
		},
	}
	requireEnv(cmd, &env)
	return cmd
}

func newInitCmd(c *cli) *cobra.Command {
	var env string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Select and re-initialize an existing Terraform workspace",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withDeployer(cmd, requirements{}, func(ctx context.Context, d *deploy.Deployer) error {
				return d.Init(ctx, env)
			})
		},
	}
	requireEnv(cmd, &env)
	return cmd
}

// =============================================================================
// Release Commands
// =============================================================================

func newBuildCmd(c *cli) *cobra.Command {
	var tag string
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build the app and sidecar images",
		Long: `Builds the app image (from the working tree, or from --tag checked out and
restored afterwards) and then the sidecar image on top of it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := requirements{git: tag != "", build: true}
			return c.withDeployer(cmd, req, func(ctx context.Context, d *deploy.Deployer) error {
				return d.Build(ctx, tag)
			})
		},
	}
	tagFlag(cmd, &tag)
	return cmd
}

func newPushCmd(c *cli) *cobra.Command {
	var tag string
	cmd := &cobra.Command{
		Use:   "push",
		Short: "Log in to ECR and push the app and sidecar images",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withDeployer(cmd, requirements{aws: true}, func(ctx context.Context, d *deploy.Deployer) error {
				return d.Push(ctx, tag)
			})
		},
	}
	tagFlag(cmd, &tag)
	return cmd
}

func newApplyCmd(c *cli) *cobra.Command {
	var opts deploy.ApplyOptions
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Run terraform apply (or plan) with the release image variables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withDeployer(cmd, requirements{}, func(ctx context.Context, d *deploy.Deployer) error {
				return d.Apply(ctx, opts)
			})
		},
	}
	requireEnv(cmd, &opts.Env)
	tagFlag(cmd, &opts.Tag)
	cmd.Flags().BoolVar(&opts.Plan, "plan", false, "Run terraform plan instead of apply")
	cmd.Flags().BoolVar(&opts.AutoApprove, "auto-approve", false, "Skip terraform's confirmation prompt")
	return cmd
}

func newAllCmd(c *cli) *cobra.Command {
	var opts deploy.ApplyOptions
	cmd := &cobra.Command{
		Use:   "all",
		Short: "Build, push and apply in one locked run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := requirements{aws: true, git: opts.Tag != "", build: true}
			return c.withDeployer(cmd, req, func(ctx context.Context, d *deploy.Deployer) error {
				return d.All(ctx, opts)
			})
		},
	}
	requireEnv(cmd, &opts.Env)
	tagFlag(cmd, &opts.Tag)
	return cmd
}
