// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package images

import (
	"context"
	"fmt"
	"io"

	"github.com/AleutianAI/ecsdeploy/cmd/ecsdeploy/internal/gitref"
	"github.com/AleutianAI/ecsdeploy/cmd/ecsdeploy/internal/infra/compose"
	"github.com/AleutianAI/ecsdeploy/cmd/ecsdeploy/internal/util"
	"github.com/AleutianAI/ecsdeploy/pkg/logging"
)

// ComposeTagEnv is the variable the compose build file interpolates into
// image tags.
const ComposeTagEnv = "APP_TAG"

// ComposeConfig configures ComposeBuilder and ComposePublisher. App and
// Sidecar only name the images for reporting; the compose file decides what
// is built.
type ComposeConfig struct {
	App       ImageSource
	Sidecar   ImageSource
	TailLines int
}

func (c ComposeConfig) images(tag string) []ImageSpec {
	var specs []ImageSpec
	if c.App.Configured() {
		specs = append(specs, NewImageSpec(c.App.Repository, tag))
	}
	if c.Sidecar.Configured() {
		specs = append(specs, NewImageSpec(c.Sidecar.Repository, tag))
	}
	return specs
}

// composeEnv leaves APP_TAG unset for untagged runs so the file's own
// default applies.
func composeEnv(tag string) map[string]string {
	if tag == "" {
		return nil
	}
	return map[string]string{ComposeTagEnv: tag}
}

// ComposeBuilder builds every image in the compose build file.
//
// # Description
//
// Logs in to the registry first (base images may live there), then runs
// `docker-compose -f <file> build` with APP_TAG=<tag>. A tagged build runs
// inside a scoped checkout of the tag.
type ComposeBuilder struct {
	config ComposeConfig
	exec   compose.Executor
	auth   RegistryAuth
	guard  gitref.Checkouter
	out    io.Writer
	logger *logging.Logger
}

// NewComposeBuilder creates a ComposeBuilder.
func NewComposeBuilder(config ComposeConfig, exec compose.Executor, auth RegistryAuth, guard gitref.Checkouter, out io.Writer, logger *logging.Logger) *ComposeBuilder {
	if auth == nil {
		auth = NopAuth{}
	}
	if out == nil {
		out = io.Discard
	}
	if logger == nil {
		logger = logging.Nop()
	}
	if config.TailLines <= 0 {
		config.TailLines = util.DefaultTailLines
	}
	return &ComposeBuilder{config: config, exec: exec, auth: auth, guard: guard, out: out, logger: logger}
}

// Build logs in and runs the compose build.
func (b *ComposeBuilder) Build(ctx context.Context, tag string) ([]ImageSpec, error) {
	if err := b.auth.Login(ctx); err != nil {
		return nil, err
	}

	build := func(ctx context.Context) error {
		tail := util.NewLineTail(b.config.TailLines)
		err := b.exec.Build(ctx, compose.Options{
			Env:    composeEnv(tag),
			Output: io.MultiWriter(b.out, tail),
		})
		if err != nil {
			b.logger.Error("compose build failed",
				"tag", tag,
				"error", err.Error(),
				"output_tail", tail.String(),
				"output_lines_dropped", tail.Dropped())
			return fmt.Errorf("%w: %w", ErrBuildFailed, err)
		}
		return nil
	}

	var err error
	if tag == "" {
		err = build(ctx)
	} else {
		if b.guard == nil {
			return nil, fmt.Errorf("compose build %s: tagged builds need a git repository", tag)
		}
		err = b.guard.WithCheckout(ctx, tag, build)
	}
	if err != nil {
		return nil, err
	}

	built := b.config.images(tag)
	b.logger.Info("compose build complete", "images", len(built))
	return built, nil
}

// ComposePublisher pushes every image in the compose build file.
type ComposePublisher struct {
	config ComposeConfig
	exec   compose.Executor
	auth   RegistryAuth
	out    io.Writer
	logger *logging.Logger
}

// NewComposePublisher creates a ComposePublisher.
func NewComposePublisher(config ComposeConfig, exec compose.Executor, auth RegistryAuth, out io.Writer, logger *logging.Logger) *ComposePublisher {
	if auth == nil {
		auth = NopAuth{}
	}
	if out == nil {
		out = io.Discard
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &ComposePublisher{config: config, exec: exec, auth: auth, out: out, logger: logger}
}

// Push logs in and runs `docker-compose -f <file> push`. Compose pushes
// images one after another, so a failure may leave some pushed; the
// returned error does not say which.
func (p *ComposePublisher) Push(ctx context.Context, tag string) ([]ImageSpec, error) {
	if err := p.auth.Login(ctx); err != nil {
		return nil, err
	}
	if err := p.exec.Push(ctx, compose.Options{Env: composeEnv(tag), Output: p.out}); err != nil {
		return nil, err
	}
	pushed := p.config.images(tag)
	p.logger.Info("compose push complete", "images", len(pushed))
	return pushed, nil
}

var (
	_ Builder   = (*ComposeBuilder)(nil)
	_ Publisher = (*ComposePublisher)(nil)
)
