// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package process

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/AleutianAI/ecsdeploy/cmd/ecsdeploy/internal/util"
)

// =============================================================================
// Manager Interface
// =============================================================================

// Manager abstracts external process execution for testability.
//
// # Description
//
// Every call to terraform, docker and docker-compose goes through a Manager
// so that unit tests can substitute MockManager and assert on the exact
// command lines issued. All methods block until the process exits; the
// context only bounds the process lifetime.
//
// Failures of a process that ran and exited non-zero are returned as
// *util.CommandError carrying the exit code. A process that could not be
// started is also reported as *util.CommandError with exit code -1.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type Manager interface {
	// Run executes a command in dir and returns its stdout.
	// Stderr is captured into the CommandError on failure.
	Run(ctx context.Context, dir string, name string, args ...string) ([]byte, error)

	// RunWithInput is Run with input piped to the process's stdin.
	RunWithInput(ctx context.Context, dir string, input []byte, name string, args ...string) ([]byte, error)

	// RunStreaming executes a command in dir with extra environment
	// variables, copying stdout and stderr to out as they are produced.
	RunStreaming(ctx context.Context, dir string, env []string, out io.Writer, name string, args ...string) error

	// RunAttached executes a command in dir connected to the operator's
	// terminal (stdin, stdout, stderr). Used for interactive prompts such
	// as terraform apply's confirmation.
	RunAttached(ctx context.Context, dir string, env []string, name string, args ...string) error
}

// =============================================================================
// Default Implementation
// =============================================================================

// DefaultManager implements Manager using os/exec.
//
// # Description
//
// Environment entries passed to RunStreaming and RunAttached are appended
// to the current process environment, so later entries win.
type DefaultManager struct {
	// Stdin, Stdout and Stderr are used by RunAttached. They default to the
	// process's own standard streams.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// NewDefaultManager creates a manager attached to the process's standard
// streams.
func NewDefaultManager() *DefaultManager {
	return &DefaultManager{
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
}

// Run executes a command and returns its stdout.
func (m *DefaultManager) Run(ctx context.Context, dir string, name string, args ...string) ([]byte, error) {
	return m.runCaptured(ctx, dir, nil, name, args...)
}

// RunWithInput executes a command with input on stdin and returns its stdout.
func (m *DefaultManager) RunWithInput(ctx context.Context, dir string, input []byte, name string, args ...string) ([]byte, error) {
	return m.runCaptured(ctx, dir, input, name, args...)
}

// RunStreaming executes a command with combined output copied to out.
func (m *DefaultManager) RunStreaming(ctx context.Context, dir string, env []string, out io.Writer, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Env = mergeEnv(env)
	cmd.Stdout = out
	cmd.Stderr = out

	if err := cmd.Run(); err != nil {
		return util.NewCommandError(util.FormatCommand(name, args...), exitCode(err), "", err)
	}
	return nil
}

// RunAttached executes a command connected to the operator's terminal.
func (m *DefaultManager) RunAttached(ctx context.Context, dir string, env []string, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Env = mergeEnv(env)
	cmd.Stdin = m.Stdin
	cmd.Stdout = m.Stdout
	cmd.Stderr = m.Stderr

	if err := cmd.Run(); err != nil {
		return util.NewCommandError(util.FormatCommand(name, args...), exitCode(err), "", err)
	}
	return nil
}

func (m *DefaultManager) runCaptured(ctx context.Context, dir string, input []byte, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	if input != nil {
		cmd.Stdin = bytes.NewReader(input)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return stdout.Bytes(), util.NewCommandError(util.FormatCommand(name, args...), exitCode(err), stderr.String(), err)
	}
	return stdout.Bytes(), nil
}

// mergeEnv returns nil (inherit) when there is nothing to add, otherwise the
// current environment followed by extra.
func mergeEnv(extra []string) []string {
	if len(extra) == 0 {
		return nil
	}
	env := os.Environ()
	return append(env, extra...)
}

// exitCode extracts the process exit code, or -1 if the process never ran.
func exitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

var _ Manager = (*DefaultManager)(nil)

// =============================================================================
// Mock Implementation
// =============================================================================

// Call records a single invocation on MockManager.
type Call struct {
	Method string
	Dir    string
	Env    []string
	Name   string
	Args   []string
	Input  []byte
}

// Line renders the call as a command line, e.g. "terraform workspace select dev".
func (c Call) Line() string {
	return util.FormatCommand(c.Name, c.Args...)
}

// MockManager implements Manager for testing.
//
// # Description
//
// Each method delegates to its Func field when set and otherwise succeeds
// with empty output. Every call is recorded in order, including calls whose
// Func returns an error.
//
// # Example
//
//	mock := &MockManager{
//	    RunFunc: func(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
//	        return []byte(`{"cluster_name":{"value":"main"}}`), nil
//	    },
//	}
//	// ... exercise code ...
//	assert.Equal(t, "terraform output -json", mock.Lines()[0])
type MockManager struct {
	RunFunc          func(ctx context.Context, dir string, name string, args ...string) ([]byte, error)
	RunWithInputFunc func(ctx context.Context, dir string, input []byte, name string, args ...string) ([]byte, error)
	RunStreamingFunc func(ctx context.Context, dir string, env []string, out io.Writer, name string, args ...string) error
	RunAttachedFunc  func(ctx context.Context, dir string, env []string, name string, args ...string) error

	mu    sync.Mutex
	calls []Call
}

// Run records the call and delegates to RunFunc.
func (m *MockManager) Run(ctx context.Context, dir string, name string, args ...string) ([]byte, error) {
	m.record(Call{Method: "Run", Dir: dir, Name: name, Args: args})
	if m.RunFunc != nil {
		return m.RunFunc(ctx, dir, name, args...)
	}
	return nil, nil
}

// RunWithInput records the call and delegates to RunWithInputFunc.
func (m *MockManager) RunWithInput(ctx context.Context, dir string, input []byte, name string, args ...string) ([]byte, error) {
	m.record(Call{Method: "RunWithInput", Dir: dir, Name: name, Args: args, Input: input})
	if m.RunWithInputFunc != nil {
		return m.RunWithInputFunc(ctx, dir, input, name, args...)
	}
	return nil, nil
}

// RunStreaming records the call and delegates to RunStreamingFunc.
func (m *MockManager) RunStreaming(ctx context.Context, dir string, env []string, out io.Writer, name string, args ...string) error {
	m.record(Call{Method: "RunStreaming", Dir: dir, Env: env, Name: name, Args: args})
	if m.RunStreamingFunc != nil {
		return m.RunStreamingFunc(ctx, dir, env, out, name, args...)
	}
	return nil
}

// RunAttached records the call and delegates to RunAttachedFunc.
func (m *MockManager) RunAttached(ctx context.Context, dir string, env []string, name string, args ...string) error {
	m.record(Call{Method: "RunAttached", Dir: dir, Env: env, Name: name, Args: args})
	if m.RunAttachedFunc != nil {
		return m.RunAttachedFunc(ctx, dir, env, name, args...)
	}
	return nil
}

// Calls returns a copy of the recorded calls.
func (m *MockManager) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// Lines returns the recorded calls rendered as command lines.
func (m *MockManager) Lines() []string {
	calls := m.Calls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.Line()
	}
	return out
}

// Reset clears recorded calls.
func (m *MockManager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

func (m *MockManager) record(c Call) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.Args = append([]string(nil), c.Args...)
	m.calls = append(m.calls, c)
}

var _ Manager = (*MockManager)(nil)
