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
	"io"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/ecsdeploy/cmd/ecsdeploy/internal/deploy"
	"github.com/AleutianAI/ecsdeploy/pkg/ux"
)

// globalFlags are the persistent flags shared by every subcommand.
type globalFlags struct {
	ConfigPath  string
	LogLevel    string
	LogJSON     bool
	Personality string
	Trace       bool
}

// requirements tells the opener which optional components a command needs.
type requirements struct {
	// aws builds the ECS, SSM and ECR clients.
	aws bool

	// git opens the repository for tagged builds.
	git bool

	// build marks commands that build images. The compose strategy logs in
	// to the registry before building, so it needs AWS as well.
	build bool
}

// openFunc builds the Deployer for one command. The returned func releases
// process-wide resources (log file, span exporter) and is always non-nil
// when err is nil.
type openFunc func(ctx context.Context, req requirements) (*deploy.Deployer, func(), error)

// cli carries the state one invocation shares across its cobra commands.
type cli struct {
	stdout io.Writer
	stderr io.Writer
	flags  globalFlags

	// printer is set in the root PersistentPreRun once the personality is
	// known.
	printer *ux.Printer

	// open is replaced in tests.
	open openFunc
}

func newCLI(stdout, stderr io.Writer) *cli {
	c := &cli{stdout: stdout, stderr: stderr}
	c.open = c.openApp
	return c
}

// withDeployer opens the components req asks for and runs fn.
func (c *cli) withDeployer(cmd *cobra.Command, req requirements, fn func(ctx context.Context, d *deploy.Deployer) error) error {
	ctx := cmd.Context()
	d, closeFn, err := c.open(ctx, req)
	if err != nil {
		return err
	}
	defer closeFn()
	return fn(ctx, d)
}

// newRootCmd assembles the command tree. Flags bind to fresh variables on
// every call so that tests can run several command lines in one process.
func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:   "ecsdeploy",
		Short: "Build, publish and roll out container images to ECS",
		Long: `ecsdeploy builds the application and sidecar images from a git ref,
pushes them to ECR, applies the Terraform workspace that runs them on ECS,
and forces redeploys or one-off Fargate tasks against that workspace.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := ux.InitPersonality(c.flags.Personality)
			c.printer = ux.NewPrinter(c.stdout, c.stderr, level)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&c.flags.ConfigPath, "config", "", "Config file (default $ECSDEPLOY_CONFIG or ./ecsdeploy.yaml)")
	pf.StringVar(&c.flags.LogLevel, "log-level", "", "Log level: debug, info, warn or error (overrides logging.level)")
	pf.BoolVar(&c.flags.LogJSON, "log-json", false, "Write logs to stderr as JSON")
	pf.StringVar(&c.flags.Personality, "personality", "", "Output style: full, standard, minimal or machine")
	pf.BoolVar(&c.flags.Trace, "trace", false, "Print trace spans to stderr")

	root.AddCommand(
		newCreateCmd(c),
		newInitCmd(c),
		newBuildCmd(c),
		newPushCmd(c),
		newApplyCmd(c),
		newAllCmd(c),
		newRedeployCmd(c),
		newFargateCmd(c),
		newOutputCmd(c),
		newSSMCmd(c),
		newConfigCmd(c),
	)
	return root
}

func requireEnv(cmd *cobra.Command, env *string) {
	cmd.Flags().StringVar(env, "env", "", "Terraform workspace (environment)")
	_ = cmd.MarkFlagRequired("env")
}

func tagFlag(cmd *cobra.Command, tag *string) {
	cmd.Flags().StringVar(tag, "tag", "", "Git ref to build and image tag to use (default: working tree, \"latest\")")
}
