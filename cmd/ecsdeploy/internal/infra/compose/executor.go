// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package compose runs docker-compose build and push against a build file.
//
// The compose file names the images; the executor only supplies the file,
// the working directory and environment variables the file interpolates
// (APP_TAG for the release tag).
package compose

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/AleutianAI/ecsdeploy/cmd/ecsdeploy/internal/infra/process"
	"github.com/AleutianAI/ecsdeploy/pkg/logging"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrInvalidConfig is returned when the executor configuration is invalid.
	ErrInvalidConfig = errors.New("invalid compose configuration")

	// ErrInvalidEnvVar is returned when an environment variable key cannot be
	// passed to compose safely.
	ErrInvalidEnvVar = errors.New("invalid environment variable")
)

var envVarKeyRegex = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// =============================================================================
// Interface
// =============================================================================

// Executor runs compose subcommands for a single build file.
type Executor interface {
	// Build runs `compose -f <file> build [services...]`.
	Build(ctx context.Context, opts Options) error

	// Push runs `compose -f <file> push [services...]`.
	Push(ctx context.Context, opts Options) error
}

// Config configures DefaultExecutor.
type Config struct {
	// File is the compose file. Required.
	File string

	// Dir is the working directory compose runs in. Relative paths in the
	// file resolve against the file's own directory regardless.
	Dir string

	// Binary is the compose executable. Default: "docker-compose".
	Binary string
}

// Options configures one compose invocation.
type Options struct {
	// Services limits the command to the named services. Empty means all.
	Services []string

	// Env is added to the process environment.
	Env map[string]string

	// Output receives the command's combined output. Nil discards it.
	Output io.Writer
}

// =============================================================================
// Default Implementation
// =============================================================================

// DefaultExecutor implements Executor with a process.Manager.
//
// Mutating operations are serialized; two builds of the same file in one
// process would otherwise race on the local image store.
type DefaultExecutor struct {
	config Config
	proc   process.Manager
	logger *logging.Logger
	mu     sync.Mutex
}

// NewDefaultExecutor creates a DefaultExecutor.
//
// # Inputs
//
//   - cfg: Executor configuration (File required)
//   - proc: Process manager for command execution
//   - logger: Logger for command lines; nil disables logging
//
// # Outputs
//
//   - *DefaultExecutor: Configured executor
//   - error: ErrInvalidConfig if File is empty
//
// # Example
//
//	exec, err := compose.NewDefaultExecutor(compose.Config{
//	    File: "build/docker-compose.build.yml",
//	}, proc, logger)
func NewDefaultExecutor(cfg Config, proc process.Manager, logger *logging.Logger) (*DefaultExecutor, error) {
	if cfg.File == "" {
		return nil, fmt.Errorf("%w: compose file is required", ErrInvalidConfig)
	}
	if cfg.Binary == "" {
		cfg.Binary = "docker-compose"
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &DefaultExecutor{config: cfg, proc: proc, logger: logger}, nil
}

// Build builds the images the compose file defines.
func (e *DefaultExecutor) Build(ctx context.Context, opts Options) error {
	return e.run(ctx, "build", opts)
}

// Push pushes the images the compose file defines.
func (e *DefaultExecutor) Push(ctx context.Context, opts Options) error {
	return e.run(ctx, "push", opts)
}

func (e *DefaultExecutor) run(ctx context.Context, subcommand string, opts Options) error {
	if err := validateEnvVars(opts.Env); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	args := append([]string{"-f", e.config.File, subcommand}, opts.Services...)
	env := buildCommandEnvironment(opts.Env)
	e.logCommand(args, opts.Env)

	out := opts.Output
	if out == nil {
		out = io.Discard
	}
	if err := e.proc.RunStreaming(ctx, e.config.Dir, env, out, e.config.Binary, args...); err != nil {
		return fmt.Errorf("compose %s: %w", subcommand, err)
	}
	return nil
}

// logCommand logs the command line and environment with sensitive values
// redacted.
func (e *DefaultExecutor) logCommand(args []string, env map[string]string) {
	attrs := []any{"command", e.config.Binary + " " + strings.Join(args, " ")}
	if e.config.Dir != "" {
		attrs = append(attrs, "dir", e.config.Dir)
	}
	for _, kv := range buildCommandEnvironment(env) {
		k, v, _ := strings.Cut(kv, "=")
		if isSensitiveEnvVar(k) {
			v = "[REDACTED]"
		}
		attrs = append(attrs, "env."+k, v)
	}
	e.logger.Info("executing compose", attrs...)
}

// buildCommandEnvironment renders env as sorted KEY=VALUE pairs. The process
// manager layers them over the inherited environment.
func buildCommandEnvironment(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	result := make([]string, 0, len(env))
	for k, v := range env {
		result = append(result, k+"="+v)
	}
	sort.Strings(result)
	return result
}

func isSensitiveEnvVar(name string) bool {
	upper := strings.ToUpper(name)
	return strings.Contains(upper, "TOKEN") ||
		strings.Contains(upper, "SECRET") ||
		strings.Contains(upper, "KEY") ||
		strings.Contains(upper, "PASSWORD") ||
		strings.Contains(upper, "CREDENTIAL")
}

func validateEnvVars(env map[string]string) error {
	for key := range env {
		if !envVarKeyRegex.MatchString(key) {
			return fmt.Errorf("%w: key %q contains invalid characters (must match [a-zA-Z_][a-zA-Z0-9_]*)", ErrInvalidEnvVar, key)
		}
	}
	return nil
}

var _ Executor = (*DefaultExecutor)(nil)

// =============================================================================
// Mock Implementation
// =============================================================================

// MockExecutor implements Executor for testing.
type MockExecutor struct {
	BuildFunc func(ctx context.Context, opts Options) error
	PushFunc  func(ctx context.Context, opts Options) error

	mu         sync.Mutex
	BuildCalls []Options
	PushCalls  []Options
}

// Build records the call and delegates to BuildFunc.
func (m *MockExecutor) Build(ctx context.Context, opts Options) error {
	m.mu.Lock()
	m.BuildCalls = append(m.BuildCalls, opts)
	m.mu.Unlock()
	if m.BuildFunc != nil {
		return m.BuildFunc(ctx, opts)
	}
	return nil
}

// Push records the call and delegates to PushFunc.
func (m *MockExecutor) Push(ctx context.Context, opts Options) error {
	m.mu.Lock()
	m.PushCalls = append(m.PushCalls, opts)
	m.mu.Unlock()
	if m.PushFunc != nil {
		return m.PushFunc(ctx, opts)
	}
	return nil
}

var _ Executor = (*MockExecutor)(nil)
