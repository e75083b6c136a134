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
	"errors"
	"fmt"
	"path/filepath"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidConfig is returned for configuration that fails validation or
// lacks a value a command needs.
var ErrInvalidConfig = errors.New("invalid configuration")

var configValidate = validator.New()

// DeployConfig is the complete ecsdeploy configuration. It is populated once
// at process start and treated as read-only afterwards.
type DeployConfig struct {
	// Repo is the git repository the app is built from (APP_REPO).
	Repo string `yaml:"repo" validate:"required"`

	// App is the primary application image.
	App ImageConfig `yaml:"app"`

	// Sidecar is the dependent image built on top of App (nginx in the
	// reference layout). An empty Image disables it.
	Sidecar ImageConfig `yaml:"sidecar"`

	Terraform TerraformConfig `yaml:"terraform"`
	Build     BuildConfig     `yaml:"build"`
	Outputs   OutputNames     `yaml:"outputs"`
	Fargate   FargateConfig   `yaml:"fargate"`
	AWS       AWSConfig       `yaml:"aws"`
	Lock      LockConfig      `yaml:"lock"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type ImageConfig struct {
	Image      string `yaml:"image"`      // APP_IMAGE / NGINX_IMAGE, without tag
	Context    string `yaml:"context"`    // APP_BUILD_CONTEXT / NGINX_BUILD_CONTEXT
	Subdir     string `yaml:"subdir"`     // APP_SUBDIR, joined onto Context
	Dockerfile string `yaml:"dockerfile"` // APP_DOCKERFILE, optional
}

// BuildContext returns Context joined with Subdir.
func (c ImageConfig) BuildContext() string {
	if c.Subdir == "" {
		return c.Context
	}
	return filepath.Join(c.Context, c.Subdir)
}

type TerraformConfig struct {
	Dir    string `yaml:"dir" validate:"required"`    // TERRAFORM_DIRECTORY
	Binary string `yaml:"binary" validate:"required"` // e.g. terraform, tofu

	// VarMode selects how the image is passed to terraform:
	//   tag:    -var app_tag=<tag>
	//   images: -var app_image=<app>:<tag> -var nginx_image=<sidecar>:<tag>
	VarMode string `yaml:"var_mode" validate:"oneof=tag images"`

	AutoApprove bool `yaml:"auto_approve"`
}

type BuildConfig struct {
	// Strategy is "docker" (docker build/push per image) or "compose"
	// (docker-compose -f ComposeFile build/push with APP_TAG).
	Strategy      string `yaml:"strategy" validate:"oneof=docker compose"`
	ComposeFile   string `yaml:"compose_file" validate:"required_if=Strategy compose"`
	DockerBinary  string `yaml:"docker_binary" validate:"required"`
	ComposeBinary string `yaml:"compose_binary" validate:"required_if=Strategy compose"`
	TailLines     int    `yaml:"tail_lines" validate:"gte=0"`
}

// OutputNames are the Terraform output names redeploy and fargate read.
type OutputNames struct {
	Cluster        string `yaml:"cluster" validate:"required"`
	Services       string `yaml:"services" validate:"required"`
	AppTag         string `yaml:"app_tag"`
	Subnets        string `yaml:"subnets" validate:"required"`
	SecurityGroup  string `yaml:"security_group" validate:"required"`
	TaskDefinition string `yaml:"task_definition" validate:"required"`
}

type FargateConfig struct {
	ContainerName string `yaml:"container_name" validate:"required"`
	Memory        int64  `yaml:"memory" validate:"gte=0"`
	CPU           int64  `yaml:"cpu" validate:"gte=0"`
}

type AWSConfig struct {
	Region  string `yaml:"region"`  // AWS_DEFAULT_REGION
	Profile string `yaml:"profile"` // AWS_PROFILE
}

type LockConfig struct {
	Dir      string `yaml:"dir"`
	Disabled bool   `yaml:"disabled"`
}

type LoggingConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Dir   string `yaml:"dir"`
	JSON  bool   `yaml:"json"`
}

// DefaultConfig returns the configuration used when no file or environment
// overrides are present.
func DefaultConfig() DeployConfig {
	return DeployConfig{
		Repo: ".",
		App: ImageConfig{
			Context: "build/app/src",
		},
		Sidecar: ImageConfig{
			Context: "build/nginx",
		},
		Terraform: TerraformConfig{
			Dir:     "terraform",
			Binary:  "terraform",
			VarMode: "images",
		},
		Build: BuildConfig{
			Strategy:      "docker",
			ComposeFile:   "build/docker-compose.build.yml",
			DockerBinary:  "docker",
			ComposeBinary: "docker-compose",
			TailLines:     40,
		},
		Outputs: OutputNames{
			Cluster:        "cluster_name",
			Services:       "services",
			AppTag:         "app_tag",
			Subnets:        "subnet_ids",
			SecurityGroup:  "security_group",
			TaskDefinition: "job_task_definition_family",
		},
		Fargate: FargateConfig{
			ContainerName: "app",
			Memory:        512,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Validate checks struct tags and cross-field rules.
func (c *DeployConfig) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.Terraform.VarMode == "images" && c.App.Image != "" && c.Sidecar.Image == "" {
		return fmt.Errorf("%w: terraform.var_mode \"images\" needs a sidecar image (NGINX_IMAGE)", ErrInvalidConfig)
	}
	return nil
}

// RequireImages reports a precise error when no app image is configured.
// Build, push, apply and all call it; infrastructure-only commands do not.
func (c *DeployConfig) RequireImages() error {
	if c.App.Image == "" {
		return fmt.Errorf("%w: app image is not set (APP_IMAGE or app.image)", ErrInvalidConfig)
	}
	return nil
}

// HasSidecar reports whether a dependent image is configured.
func (c *DeployConfig) HasSidecar() bool {
	return c.Sidecar.Image != ""
}

// RequireRepo reports a precise error when tagged builds have no repository.
func (c *DeployConfig) RequireRepo() error {
	if c.Repo == "" {
		return fmt.Errorf("%w: repository is not set (APP_REPO or repo)", ErrInvalidConfig)
	}
	return nil
}

// RequireRegion reports a precise error when AWS calls have no region.
// Redeploy, fargate, ssm and ECR login call it.
func (c *DeployConfig) RequireRegion() error {
	if c.AWS.Region == "" {
		return fmt.Errorf("%w: AWS region is not set (AWS_DEFAULT_REGION or aws.region)", ErrInvalidConfig)
	}
	return nil
}
