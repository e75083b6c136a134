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

	"github.com/AleutianAI/ecsdeploy/cmd/ecsdeploy/internal/ecsctl"
	"github.com/AleutianAI/ecsdeploy/cmd/ecsdeploy/internal/terraform"
)

// FargateOptions configures Fargate.
type FargateOptions struct {
	Env string

	// Tag is accepted for symmetry with the release commands. The task
	// runs whatever image its task definition names; Tag is only logged.
	Tag string

	// Command replaces the container's command. A single element is split
	// on whitespace, so `fargate "manage.py migrate"` and
	// `fargate manage.py migrate` are the same.
	Command []string
}

// Redeploy forces a new deployment of the selected ECS services of env.
//
// # Description
//
// Reads cluster_name and services (and app_tag, for the message only) from
// the workspace's Terraform outputs, then forces a new deployment of each
// selected service. Prints one line per service:
//
//	Redeployed ECS service: main/main-web (1.2.0)
func (d *Deployer) Redeploy(ctx context.Context, env string, services []string) error {
	attrs := map[string]string{"env": env, "services": strings.Join(services, ",")}
	return d.run(ctx, "redeploy", true, attrs, func(ctx context.Context) error {
		if d.deps.Outputs == nil || d.deps.ECS == nil {
			return missing("ECS")
		}
		names := d.deps.Config.Outputs

		outputs, err := d.deps.Outputs.FetchAll(ctx, env)
		if err != nil {
			return err
		}
		cluster, err := outputs.String(names.Cluster)
		if err != nil {
			return err
		}
		serviceMap, err := outputs.StringMap(names.Services)
		if err != nil {
			return err
		}
		tag, err := outputs.String(names.AppTag)
		if err != nil {
			if !errors.Is(err, terraform.ErrOutputUnavailable) && !errors.Is(err, terraform.ErrOutputType) {
				return err
			}
			d.deps.Logger.Debug("app tag output not available", "output", names.AppTag)
			tag = ""
		}

		result, err := d.deps.ECS.Redeploy(ctx, cluster, serviceMap, services)
		if result == nil {
			return err
		}
		for _, u := range result.Updated {
			line := fmt.Sprintf("Redeployed ECS service: %s/%s", cluster, u.Name)
			if tag != "" {
				line += fmt.Sprintf(" (%s)", tag)
			}
			d.deps.Printer.Plain(line)
		}
		return err
	})
}

// Fargate starts a one-off task on the env cluster and prints its id and
// console link. It does not wait for the task.
func (d *Deployer) Fargate(ctx context.Context, opts FargateOptions) error {
	command := normalizeCommand(opts.Command)
	attrs := map[string]string{"env": opts.Env, "command": strings.Join(command, " ")}
	return d.run(ctx, "fargate", true, attrs, func(ctx context.Context) error {
		if d.deps.Outputs == nil || d.deps.ECS == nil {
			return missing("ECS")
		}
		if len(command) == 0 {
			return errors.New("fargate needs a command to run")
		}
		if opts.Tag != "" {
			d.deps.Logger.Info("fargate runs the task definition's image; tag is informational", "tag", opts.Tag)
		}

		spec, err := d.taskSpec(ctx, opts.Env, command)
		if err != nil {
			return err
		}
		task, err := d.deps.ECS.RunTask(ctx, spec)
		if err != nil {
			return err
		}

		region := d.deps.Config.AWS.Region
		d.deps.Printer.Plain(fmt.Sprintf("Running \"%s\" on Fargate cluster: %s: %s", strings.Join(command, " "), spec.Cluster, task.TaskID))
		d.deps.Printer.Plain("View status: " + ecsctl.ConsoleURL(region, spec.Cluster, task.TaskID))
		return nil
	})
}

func (d *Deployer) taskSpec(ctx context.Context, env string, command []string) (ecsctl.TaskSpec, error) {
	names := d.deps.Config.Outputs
	fargate := d.deps.Config.Fargate

	outputs, err := d.deps.Outputs.FetchAll(ctx, env)
	if err != nil {
		return ecsctl.TaskSpec{}, err
	}
	cluster, err := outputs.String(names.Cluster)
	if err != nil {
		return ecsctl.TaskSpec{}, err
	}
	subnets, err := outputs.StringList(names.Subnets)
	if err != nil {
		return ecsctl.TaskSpec{}, err
	}
	if len(subnets) == 0 {
		return ecsctl.TaskSpec{}, fmt.Errorf("output %q: %w", names.Subnets, terraform.ErrOutputUnavailable)
	}
	securityGroup, err := outputs.String(names.SecurityGroup)
	if err != nil {
		return ecsctl.TaskSpec{}, err
	}
	taskDef, err := outputs.String(names.TaskDefinition)
	if err != nil {
		return ecsctl.TaskSpec{}, err
	}

	return ecsctl.TaskSpec{
		Cluster:        cluster,
		TaskDefinition: taskDef,
		ContainerName:  fargate.ContainerName,
		Command:        command,
		Memory:         fargate.Memory,
		CPU:            fargate.CPU,
		Subnets:        subnets[:1],
		SecurityGroups: []string{securityGroup},
		StartedBy:      d.deps.RunID,
	}, nil
}

func normalizeCommand(args []string) []string {
	if len(args) == 1 {
		return strings.Fields(args[0])
	}
	return args
}

// =============================================================================
// Read-only Commands
// =============================================================================

// Output prints the JSON value of a Terraform output. It takes no lock.
func (d *Deployer) Output(ctx context.Context, name, env string) error {
	return d.run(ctx, "output", false, map[string]string{"name": name, "env": env}, func(ctx context.Context) error {
		if d.deps.Outputs == nil {
			return missing("terraform")
		}
		outputs, err := d.deps.Outputs.FetchAll(ctx, env)
		if err != nil {
			return err
		}
		out, err := outputs.Get(name)
		if err != nil {
			return err
		}
		d.deps.Printer.Plain(string(out.Value))
		return nil
	})
}

// Parameter prints an SSM parameter value. It takes no lock.
func (d *Deployer) Parameter(ctx context.Context, name string, decrypt bool) error {
	return d.run(ctx, "ssm.get", false, map[string]string{"name": name}, func(ctx context.Context) error {
		if d.deps.Params == nil {
			return missing("SSM")
		}
		p, err := d.deps.Params.Get(ctx, name, decrypt)
		if err != nil {
			return err
		}
		d.deps.Printer.Plain(p.Value)
		return nil
	})
}
