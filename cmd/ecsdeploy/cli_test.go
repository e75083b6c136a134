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
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/ecsdeploy/cmd/ecsdeploy/config"
	"github.com/AleutianAI/ecsdeploy/cmd/ecsdeploy/internal/deploy"
	"github.com/AleutianAI/ecsdeploy/cmd/ecsdeploy/internal/ecsctl"
	"github.com/AleutianAI/ecsdeploy/cmd/ecsdeploy/internal/terraform"
	"github.com/AleutianAI/ecsdeploy/cmd/ecsdeploy/internal/util"
)

// =============================================================================
// Test Harness
// =============================================================================

const testOutputs = `{
  "cluster_name": {"value": "main", "type": "string"},
  "services": {"value": {"web": "main-web", "worker": "main-worker"}, "type": ["map", "string"]},
  "subnet_ids": {"value": ["subnet-a"], "type": ["list", "string"]},
  "security_group": {"value": "sg-1", "type": "string"},
  "job_task_definition_family": {"value": "main-job", "type": "string"}
}`

type stubInfra struct {
	deployed []terraform.DeployOptions
	err      error
}

func (s *stubInfra) Create(ctx context.Context, env string) error     { return s.err }
func (s *stubInfra) Initialize(ctx context.Context, env string) error { return s.err }
func (s *stubInfra) Deploy(ctx context.Context, opts terraform.DeployOptions) error {
	s.deployed = append(s.deployed, opts)
	return s.err
}

type stubOutputs struct{}

func (stubOutputs) FetchAll(ctx context.Context, env string) (terraform.Outputs, error) {
	return terraform.ParseOutputs([]byte(testOutputs))
}

type stubECS struct {
	selected []string
	spec     ecsctl.TaskSpec
}

func (s *stubECS) Redeploy(ctx context.Context, cluster string, services map[string]string, selected []string) (*ecsctl.RedeployResult, error) {
	s.selected = selected
	keys, err := ecsctl.SelectServices(services, selected)
	result := &ecsctl.RedeployResult{Cluster: cluster}
	for _, k := range keys {
		result.Updated = append(result.Updated, ecsctl.ServiceUpdate{Key: k, Name: services[k]})
	}
	return result, err
}

func (s *stubECS) RunTask(ctx context.Context, spec ecsctl.TaskSpec) (*ecsctl.TaskResult, error) {
	s.spec = spec
	return &ecsctl.TaskResult{Cluster: spec.Cluster, TaskID: "abcdef123"}, nil
}

type cliHarness struct {
	c      *cli
	stdout *bytes.Buffer
	stderr *bytes.Buffer
	reqs   []requirements
	opened int
	infra  *stubInfra
	ecs    *stubECS
	cfg    config.DeployConfig
}

func newCLIHarness() *cliHarness {
	h := &cliHarness{
		stdout: &bytes.Buffer{},
		stderr: &bytes.Buffer{},
		infra:  &stubInfra{},
		ecs:    &stubECS{},
		cfg:    config.DefaultConfig(),
	}
	h.cfg.AWS.Region = "us-east-1"
	h.c = newCLI(h.stdout, h.stderr)
	h.c.open = func(ctx context.Context, req requirements) (*deploy.Deployer, func(), error) {
		h.opened++
		h.reqs = append(h.reqs, req)
		d := deploy.New(deploy.Dependencies{
			Config:    h.cfg,
			Terraform: h.infra,
			Outputs:   stubOutputs{},
			ECS:       h.ecs,
			Printer:   h.c.printer,
			RunID:     "run-1",
		})
		return d, func() {}, nil
	}
	return h
}

func (h *cliHarness) run(args ...string) int {
	return run(context.Background(), h.c, append([]string{"--personality", "machine"}, args...))
}

// =============================================================================
// Tests
// =============================================================================

func TestApply_FlagsReachDeployer(t *testing.T) {
	h := newCLIHarness()
	h.cfg.Terraform.VarMode = "tag"

	code := h.run("apply", "--env", "prod", "--tag", "1.2.0", "--plan")
	require.Equal(t, 0, code, h.stderr.String())

	require.Len(t, h.infra.deployed, 1)
	opts := h.infra.deployed[0]
	assert.Equal(t, "prod", opts.Env)
	assert.Equal(t, terraform.ActionPlan, opts.Action)
	assert.Equal(t, []terraform.Var{{Name: "app_tag", Value: "1.2.0"}}, opts.Vars)
	assert.False(t, opts.AutoApprove)
	assert.NotContains(t, h.stdout.String(), "Applied")
}

func TestApply_AutoApprove(t *testing.T) {
	h := newCLIHarness()
	h.cfg.Terraform.VarMode = "tag"

	require.Equal(t, 0, h.run("apply", "--env", "prod", "--auto-approve"))
	require.Len(t, h.infra.deployed, 1)
	assert.True(t, h.infra.deployed[0].AutoApprove)
	assert.Equal(t, []terraform.Var{{Name: "app_tag", Value: "latest"}}, h.infra.deployed[0].Vars)
	assert.Contains(t, h.stdout.String(), "OK: Applied latest to prod")
}

func TestMissingEnvFlag(t *testing.T) {
	h := newCLIHarness()

	code := h.run("create")
	assert.Equal(t, 1, code)
	assert.Contains(t, h.stderr.String(), `required flag(s) "env" not set`)
	assert.Equal(t, 0, h.opened, "no components are built for a bad command line")
}

func TestCommandRequirements(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want requirements
	}{
		{"create", []string{"create", "--env", "e"}, requirements{}},
		{"init", []string{"init", "--env", "e"}, requirements{}},
		{"build untagged", []string{"build"}, requirements{build: true}},
		{"build tagged", []string{"build", "--tag", "1.2.0"}, requirements{git: true, build: true}},
		{"push", []string{"push"}, requirements{aws: true}},
		{"apply", []string{"apply", "--env", "e"}, requirements{}},
		{"all tagged", []string{"all", "--env", "e", "--tag", "1.2.0"}, requirements{aws: true, git: true, build: true}},
		{"redeploy", []string{"redeploy", "--env", "e"}, requirements{aws: true}},
		{"fargate", []string{"fargate", "--env", "e", "--", "ls"}, requirements{aws: true}},
		{"output", []string{"output", "cluster_name"}, requirements{}},
		{"ssm get", []string{"ssm", "get", "/app/secret"}, requirements{aws: true}},
	}

	stop := errors.New("stop")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newCLIHarness()
			var got []requirements
			h.c.open = func(ctx context.Context, req requirements) (*deploy.Deployer, func(), error) {
				got = append(got, req)
				return nil, nil, stop
			}

			assert.Equal(t, 1, h.run(tt.args...))
			require.Len(t, got, 1)
			assert.Equal(t, tt.want, got[0])
			assert.Contains(t, h.stderr.String(), "ERROR: stop")
		})
	}
}

func TestRedeploy_RepeatedServiceFlag(t *testing.T) {
	h := newCLIHarness()

	code := h.run("redeploy", "--env", "prod", "--service", "worker", "--service", "web")
	require.Equal(t, 0, code, h.stderr.String())

	assert.Equal(t, []string{"worker", "web"}, h.ecs.selected)
	assert.Contains(t, h.stdout.String(), "Redeployed ECS service: main/main-web\n")
	assert.Contains(t, h.stdout.String(), "Redeployed ECS service: main/main-worker\n")
}

func TestRedeploy_UnknownService(t *testing.T) {
	h := newCLIHarness()

	code := h.run("redeploy", "--env", "prod", "--service", "api")
	assert.Equal(t, 1, code)
	assert.Contains(t, h.stderr.String(), "api")
}

func TestFargate_CommandAfterDashes(t *testing.T) {
	h := newCLIHarness()

	code := h.run("fargate", "--env", "prod", "--", "python", "manage.py", "migrate")
	require.Equal(t, 0, code, h.stderr.String())

	assert.Equal(t, []string{"python", "manage.py", "migrate"}, h.ecs.spec.Command)
	assert.Equal(t, "main-job", h.ecs.spec.TaskDefinition)
	assert.Equal(t, "run-1", h.ecs.spec.StartedBy)
	assert.Contains(t, h.stdout.String(), `Running "python manage.py migrate" on Fargate cluster: main: abcdef123`)
}

func TestFargate_NeedsCommand(t *testing.T) {
	h := newCLIHarness()

	assert.Equal(t, 1, h.run("fargate", "--env", "prod"))
	assert.Equal(t, 0, h.opened)
}

func TestOutput_PrintsJSONValue(t *testing.T) {
	h := newCLIHarness()

	require.Equal(t, 0, h.run("output", "services"))
	assert.JSONEq(t, `{"web": "main-web", "worker": "main-worker"}`, h.stdout.String())
}

func TestExitCodeFromCommandError(t *testing.T) {
	h := newCLIHarness()
	h.cfg.Terraform.VarMode = "tag"
	h.infra.err = util.NewCommandError("terraform apply", 3, "", errors.New("exit status 3"))

	code := h.run("apply", "--env", "prod")
	assert.Equal(t, 3, code)
	assert.Contains(t, h.stderr.String(), "ERROR: terraform apply (exit 3)")
}

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ecsdeploy.yaml")

	h := newCLIHarness()
	require.Equal(t, 0, h.run("--config", path, "config", "init"), h.stderr.String())
	assert.Contains(t, h.stdout.String(), "OK: Wrote "+path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "var_mode: images")

	h = newCLIHarness()
	assert.Equal(t, 1, h.run("--config", path, "config", "init"))
	assert.Contains(t, h.stderr.String(), "already exists")
}

func TestConfigShow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ecsdeploy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("terraform:\n  var_mode: tag\n"), 0o644))

	h := newCLIHarness()
	require.Equal(t, 0, h.run("--config", path, "config", "show"), h.stderr.String())
	assert.Contains(t, h.stdout.String(), "var_mode: tag")
}
