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

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/ecsdeploy/cmd/ecsdeploy/config"
	"github.com/AleutianAI/ecsdeploy/cmd/ecsdeploy/internal/deploy"
)

func newOutputCmd(c *cli) *cobra.Command {
	var env string
	cmd := &cobra.Command{
		Use:   "output NAME",
		Short: "Print the JSON value of a Terraform output",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withDeployer(cmd, requirements{}, func(ctx context.Context, d *deploy.Deployer) error {
				return d.Output(ctx, args[0], env)
			})
		},
	}
	cmd.Flags().StringVar(&env, "env", "", "Terraform workspace to select first (default: current)")
	return cmd
}

func newSSMCmd(c *cli) *cobra.Command {
	ssmCmd := &cobra.Command{
		Use:   "ssm",
		Short: "Read SSM parameters",
	}

	var decrypt bool
	getCmd := &cobra.Command{
		Use:   "get NAME",
		Short: "Print the value of an SSM parameter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withDeployer(cmd, requirements{aws: true}, func(ctx context.Context, d *deploy.Deployer) error {
				return d.Parameter(ctx, args[0], decrypt)
			})
		},
	}
	getCmd.Flags().BoolVar(&decrypt, "decrypt", false, "Decrypt SecureString values")

	ssmCmd.AddCommand(getCmd)
	return ssmCmd
}

// =============================================================================
// Config Commands
// =============================================================================

func newConfigCmd(c *cli) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Create or inspect the ecsdeploy configuration",
	}

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file with the default settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := c.configFile()
			if err := config.Save(path, config.DefaultConfig()); err != nil {
				return err
			}
			c.printer.Success(fmt.Sprintf("Wrote %s", path))
			return nil
		},
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration after file and environment overrides",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFrom(c.flags.ConfigPath, os.LookupEnv)
			if err != nil {
				return err
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			_, err = c.stdout.Write(data)
			return err
		},
	}

	configCmd.AddCommand(initCmd, showCmd)
	return configCmd
}

// configFile is the path `config init` writes.
func (c *cli) configFile() string {
	if c.flags.ConfigPath != "" {
		return c.flags.ConfigPath
	}
	if v := os.Getenv(config.EnvConfigPath); v != "" {
		return v
	}
	return config.DefaultFileName
}
