// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package util

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// Command Error Type
// =============================================================================

// CommandError wraps a subprocess failure with its command line and stderr.
//
// # Description
//
// Every call to terraform, docker or docker-compose that exits non-zero is
// reported as a CommandError. The exit code is preserved so the CLI can exit
// with the same status as the tool that failed.
//
// # Example
//
//	err := NewCommandError("terraform workspace select prod", 1, "Workspace \"prod\" doesn't exist.", nil)
//	fmt.Println(err.Error())
//	// terraform workspace select prod (exit 1): Workspace "prod" doesn't exist.
//
//	var cmdErr *CommandError
//	if errors.As(err, &cmdErr) {
//	    os.Exit(cmdErr.ExitCode)
//	}
//
// # Limitations
//
//   - Stderr is held in memory in full; callers that stream output should
//     pass only a tail (see LineTail).
type CommandError struct {
	// Command is the rendered command line.
	Command string

	// ExitCode is the process exit code (-1 if the process never ran).
	ExitCode int

	// Stderr contains the trimmed standard error output, if captured.
	Stderr string

	// Wrapped is the underlying error (may be nil).
	Wrapped error
}

// Error returns "<command> (exit N): <stderr or wrapped error>".
func (e *CommandError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s (exit %d): %s", e.Command, e.ExitCode, e.Stderr)
	}
	if e.Wrapped != nil {
		return fmt.Sprintf("%s (exit %d): %v", e.Command, e.ExitCode, e.Wrapped)
	}
	return fmt.Sprintf("%s (exit %d)", e.Command, e.ExitCode)
}

// Unwrap returns the underlying error.
func (e *CommandError) Unwrap() error {
	return e.Wrapped
}

var _ error = (*CommandError)(nil)

// NewCommandError creates a CommandError, trimming surrounding whitespace
// from stderr.
//
// # Inputs
//
//   - cmd: Rendered command line (e.g. "docker push app:1.2.0")
//   - exitCode: Process exit code (-1 if unknown)
//   - stderr: Captured standard error
//   - wrapped: Underlying error (may be nil)
//
// # Outputs
//
//   - *CommandError: New error with full context
func NewCommandError(cmd string, exitCode int, stderr string, wrapped error) *CommandError {
	return &CommandError{
		Command:  cmd,
		ExitCode: exitCode,
		Stderr:   strings.TrimSpace(stderr),
		Wrapped:  wrapped,
	}
}

// FormatCommand renders a program and its arguments as a single line for
// logs and error messages. Arguments containing spaces are quoted.
func FormatCommand(name string, args ...string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, name)
	for _, a := range args {
		if a == "" || strings.ContainsAny(a, " \t\"") {
			parts = append(parts, fmt.Sprintf("%q", a))
			continue
		}
		parts = append(parts, a)
	}
	return strings.Join(parts, " ")
}

// ExitCodeOf returns the exit code to use for err.
//
// # Description
//
// A CommandError anywhere in the chain contributes its own exit code when it
// is positive. Any other failure maps to 1 and a nil error maps to 0.
func ExitCodeOf(err error) int {
	if err == nil {
		return 0
	}
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) && cmdErr.ExitCode > 0 {
		return cmdErr.ExitCode
	}
	return 1
}
