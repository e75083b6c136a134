// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package terraform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/AleutianAI/ecsdeploy/cmd/ecsdeploy/internal/infra/process"
	"github.com/AleutianAI/ecsdeploy/pkg/logging"
)

// Output is one entry of `terraform output -json`.
type Output struct {
	Value     json.RawMessage `json:"value"`
	Type      json.RawMessage `json:"type"`
	Sensitive bool            `json:"sensitive"`
}

// Outputs maps output names to values for one workspace.
type Outputs map[string]Output

// Get returns the named output or ErrOutputUnavailable.
func (o Outputs) Get(name string) (Output, error) {
	out, ok := o[name]
	if !ok || len(out.Value) == 0 || bytes.Equal(out.Value, []byte("null")) {
		return Output{}, fmt.Errorf("output %q: %w", name, ErrOutputUnavailable)
	}
	return out, nil
}

// String returns a string-valued output.
func (o Outputs) String(name string) (string, error) {
	var s string
	if err := o.decode(name, "string", &s); err != nil {
		return "", err
	}
	return s, nil
}

// StringList returns a list-of-strings output.
func (o Outputs) StringList(name string) ([]string, error) {
	var list []string
	if err := o.decode(name, "list of strings", &list); err != nil {
		return nil, err
	}
	return list, nil
}

// StringMap returns a map-of-strings output.
func (o Outputs) StringMap(name string) (map[string]string, error) {
	var m map[string]string
	if err := o.decode(name, "map of strings", &m); err != nil {
		return nil, err
	}
	return m, nil
}

// Names returns the output names in sorted order.
func (o Outputs) Names() []string {
	names := make([]string, 0, len(o))
	for name := range o {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (o Outputs) decode(name, want string, dst any) error {
	out, err := o.Get(name)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(out.Value, dst); err != nil {
		return fmt.Errorf("output %q is not a %s: %w", name, want, ErrOutputType)
	}
	return nil
}

// WorkspaceSelector is the part of Controller the output reader needs.
type WorkspaceSelector interface {
	SelectWorkspace(ctx context.Context, env string) error
}

// OutputReader reads outputs from Terraform state.
//
// # Description
//
// All outputs are fetched with a single `terraform output -json`; callers
// that need several values (redeploy, fargate) read them from one Outputs.
//
// # Example
//
//	outputs, err := reader.FetchAll(ctx, "production")
//	cluster, err := outputs.String("cluster_name")
//	services, err := outputs.StringMap("services")
type OutputReader struct {
	config    ControllerConfig
	proc      process.Manager
	workspace WorkspaceSelector
	logger    *logging.Logger
}

// NewOutputReader creates an OutputReader. workspace may be nil when callers
// never pass an environment.
func NewOutputReader(config ControllerConfig, proc process.Manager, workspace WorkspaceSelector, logger *logging.Logger) *OutputReader {
	if config.Binary == "" {
		config.Binary = "terraform"
	}
	if config.Dir == "" {
		config.Dir = "."
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &OutputReader{config: config, proc: proc, workspace: workspace, logger: logger}
}

// FetchAll returns every output of the workspace env. An empty env reads the
// currently selected workspace.
//
// # Outputs
//
//   - Outputs: All outputs (may be empty for a workspace with no state)
//   - error: workspace selection failure, *util.CommandError from terraform,
//     or ErrOutputUnavailable if the output is not valid JSON
func (r *OutputReader) FetchAll(ctx context.Context, env string) (Outputs, error) {
	if env != "" {
		if r.workspace == nil {
			return nil, fmt.Errorf("cannot select workspace %s: no workspace selector", env)
		}
		if err := r.workspace.SelectWorkspace(ctx, env); err != nil {
			return nil, err
		}
	}

	stdout, err := r.proc.Run(ctx, r.config.Dir, r.config.Binary, "output", "-json")
	if err != nil {
		return nil, fmt.Errorf("terraform output: %w", err)
	}

	outputs, err := ParseOutputs(stdout)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("read terraform outputs", "workspace", env, "names", outputs.Names())
	return outputs, nil
}

// FetchOutput returns a single named output.
func (r *OutputReader) FetchOutput(ctx context.Context, name, env string) (Output, error) {
	outputs, err := r.FetchAll(ctx, env)
	if err != nil {
		return Output{}, err
	}
	return outputs.Get(name)
}

// FetchString returns a single string output.
func (r *OutputReader) FetchString(ctx context.Context, name, env string) (string, error) {
	outputs, err := r.FetchAll(ctx, env)
	if err != nil {
		return "", err
	}
	return outputs.String(name)
}

// FetchStringList returns a single list-of-strings output.
func (r *OutputReader) FetchStringList(ctx context.Context, name, env string) ([]string, error) {
	outputs, err := r.FetchAll(ctx, env)
	if err != nil {
		return nil, err
	}
	return outputs.StringList(name)
}

// FetchStringMap returns a single map-of-strings output.
func (r *OutputReader) FetchStringMap(ctx context.Context, name, env string) (map[string]string, error) {
	outputs, err := r.FetchAll(ctx, env)
	if err != nil {
		return nil, err
	}
	return outputs.StringMap(name)
}

// ParseOutputs decodes `terraform output -json`. Empty input (no state yet)
// decodes to an empty set.
func ParseOutputs(data []byte) (Outputs, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return Outputs{}, nil
	}
	var outputs Outputs
	if err := json.Unmarshal(data, &outputs); err != nil {
		return nil, fmt.Errorf("%w: terraform output is not valid JSON: %v", ErrOutputUnavailable, err)
	}
	if outputs == nil {
		outputs = Outputs{}
	}
	return outputs, nil
}
