// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultFileName is read from the working directory when present.
	DefaultFileName = "ecsdeploy.yaml"

	// EnvConfigPath names a config file when --config is not given.
	EnvConfigPath = "ECSDEPLOY_CONFIG"
)

// LookupFunc matches os.LookupEnv. Tests substitute a map-backed lookup.
type LookupFunc func(key string) (string, bool)

// LoadFrom builds a validated configuration.
//
// # Description
//
// Layers, lowest precedence first:
//
//  1. DefaultConfig()
//  2. YAML file: path, else $ECSDEPLOY_CONFIG, else ./ecsdeploy.yaml
//  3. Environment variables (APP_IMAGE, TERRAFORM_DIRECTORY, ...)
//
// A missing ./ecsdeploy.yaml is fine; a missing file that was named
// explicitly is an error. Unknown YAML keys are rejected so typos surface.
//
// # Inputs
//
//   - path: Explicit config file (may be empty)
//   - lookup: Environment lookup (os.LookupEnv in production)
//
// # Outputs
//
//   - DeployConfig: Validated configuration
//   - error: Read, parse or validation failure
func LoadFrom(path string, lookup LookupFunc) (DeployConfig, error) {
	cfg := DefaultConfig()

	explicit := path != ""
	if !explicit {
		if v, ok := lookup(EnvConfigPath); ok && v != "" {
			path, explicit = v, true
		} else {
			path = DefaultFileName
		}
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := decodeYAML(data, &cfg); err != nil {
			return DeployConfig{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
		// no project file; defaults and environment only
	default:
		return DeployConfig{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	applyEnv(&cfg, lookup)

	if err := cfg.Validate(); err != nil {
		return DeployConfig{}, err
	}
	return cfg, nil
}

func decodeYAML(data []byte, cfg *DeployConfig) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// applyEnv overlays the environment variables the reference deployment
// scripts use.
func applyEnv(cfg *DeployConfig, lookup LookupFunc) {
	set := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v, ok := lookup(k); ok && v != "" {
				*dst = v
				return
			}
		}
	}

	set(&cfg.Repo, "APP_REPO")
	set(&cfg.App.Image, "APP_IMAGE")
	set(&cfg.App.Context, "APP_BUILD_CONTEXT")
	set(&cfg.App.Subdir, "APP_SUBDIR")
	set(&cfg.App.Dockerfile, "APP_DOCKERFILE")
	set(&cfg.Sidecar.Image, "NGINX_IMAGE")
	set(&cfg.Sidecar.Context, "NGINX_BUILD_CONTEXT")
	set(&cfg.Terraform.Dir, "TERRAFORM_DIRECTORY")
	set(&cfg.AWS.Region, "AWS_DEFAULT_REGION", "AWS_REGION")
	set(&cfg.AWS.Profile, "AWS_PROFILE")
}

// Save writes cfg as YAML, for `ecsdeploy config init`.
func Save(path string, cfg DeployConfig) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file %s already exists", path)
	}
	return os.WriteFile(path, data, 0o644)
}
