// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package validation checks operator-supplied identifiers before they reach
// a subprocess command line or an AWS API call.
//
// Every value validated here ends up as an argument to terraform, docker or
// git, or as an SSM parameter name. Rejecting malformed values up front turns
// a confusing failure halfway through a deploy (after a checkout, after a
// build) into a clear error before anything has changed.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// workspacePattern matches Terraform workspace names ecsdeploy accepts.
// Terraform itself is looser; the var file name terraform.<env>.tfvars is
// why dots and slashes are excluded.
var workspacePattern = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_-]*$`)

// imageTagPattern is the Docker reference grammar for a tag.
var imageTagPattern = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_.-]{0,127}$`)

// parameterNamePattern is the SSM parameter name character set.
var parameterNamePattern = regexp.MustCompile(`^[A-Za-z0-9_./-]+$`)

// MaxParameterNameLength is the SSM limit for a fully qualified name.
const MaxParameterNameLength = 2048

// ValidateWorkspace validates a Terraform workspace (environment) name.
//
// Example:
//
//	if err := validation.ValidateWorkspace(env); err != nil {
//	    return fmt.Errorf("invalid workspace: %w", err)
//	}
func ValidateWorkspace(env string) error {
	if env == "" {
		return fmt.Errorf("workspace cannot be empty")
	}
	if !workspacePattern.MatchString(env) {
		return fmt.Errorf("invalid workspace %q (use letters, digits, '-' and '_')", env)
	}
	return nil
}

// ValidateImageTag validates a release tag. The same string names the git
// ref that is checked out and the image tag that is pushed, so it has to be
// a legal Docker tag: 1-128 characters of letters, digits, '_', '.' and
// '-', not starting with '.' or '-'.
func ValidateImageTag(tag string) error {
	if tag == "" {
		return fmt.Errorf("tag cannot be empty")
	}
	if !imageTagPattern.MatchString(tag) {
		return fmt.Errorf("invalid tag %q (must be a valid image tag: letters, digits, '_', '.', '-', at most 128 characters)", tag)
	}
	return nil
}

// ValidateParameterName validates an SSM parameter name.
//
// Hierarchical names start with '/'. Names whose first segment begins with
// "aws" or "ssm" are reserved by AWS.
func ValidateParameterName(name string) error {
	if name == "" {
		return fmt.Errorf("parameter name cannot be empty")
	}
	if len(name) > MaxParameterNameLength {
		return fmt.Errorf("parameter name is %d characters (max %d)", len(name), MaxParameterNameLength)
	}
	if !parameterNamePattern.MatchString(name) {
		return fmt.Errorf("invalid parameter name %q (use letters, digits, '_', '.', '-' and '/')", name)
	}

	first := strings.ToLower(strings.TrimPrefix(name, "/"))
	if strings.HasPrefix(first, "aws") || strings.HasPrefix(first, "ssm") {
		return fmt.Errorf("invalid parameter name %q (names starting with \"aws\" or \"ssm\" are reserved)", name)
	}
	return nil
}
