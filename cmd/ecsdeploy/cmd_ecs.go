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

func newRedeployCmd(c *cli) *cobra.Command {
	var (
		env      string
		services []string
	)
	cmd := &cobra.Command{
		Use:   "redeploy",
		Short: "Force a new deployment of the workspace's ECS services",
		Long: `Reads the cluster and service map from the workspace's Terraform outputs and
forces a new deployment of every service, or only those named with --service.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withDeployer(cmd, requirements{aws: true}, func(ctx context.Context, d *deploy.Deployer) error {
				return d.Redeploy(ctx, env, services)
			})
		},
	}
	requireEnv(cmd, &env)
	cmd.Flags().StringArrayVar(&services, "service", nil, "Service key from the services output (repeatable)")
	return cmd
}

func newFargateCmd(c *cli) *cobra.Command {
	var opts deploy.FargateOptions
	cmd := &cobra.Command{
		Use:   "fargate [flags] -- CMD...",
		Short: "Run a one-off command as a Fargate task",
		Example: `  ecsdeploy fargate --env production -- python manage.py migrate
  ecsdeploy fargate --env production "python manage.py migrate"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Command = args
			return c.withDeployer(cmd, requirements{aws: true}, func(ctx context.Context, d *deploy.Deployer) error {
				return d.Fargate(ctx, opts)
			})
		},
	}
	requireEnv(cmd, &opts.Env)
	tagFlag(cmd, &opts.Tag)
	return cmd
}
