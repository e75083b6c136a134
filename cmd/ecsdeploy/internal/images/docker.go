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
	"path/filepath"

	"github.com/AleutianAI/ecsdeploy/cmd/ecsdeploy/internal/gitref"
	"github.com/AleutianAI/ecsdeploy/cmd/ecsdeploy/internal/infra/process"
	"github.com/AleutianAI/ecsdeploy/cmd/ecsdeploy/internal/util"
	"github.com/AleutianAI/ecsdeploy/pkg/logging"
)

// SidecarBuildArg is the build argument the sidecar Dockerfile uses to
// reference the application image (FROM ${APP_IMAGE} or COPY --from).
const SidecarBuildArg = "APP_IMAGE"

// DockerConfig configures DockerBuilder and DockerPublisher.
type DockerConfig struct {
	App     ImageSource
	Sidecar ImageSource

	// Binary is the docker executable. Default: "docker".
	Binary string

	// TailLines is how many trailing build-output lines are logged when a
	// build fails. Default: util.DefaultTailLines.
	TailLines int
}

func (c DockerConfig) withDefaults() DockerConfig {
	if c.Binary == "" {
		c.Binary = "docker"
	}
	if c.TailLines <= 0 {
		c.TailLines = util.DefaultTailLines
	}
	return c
}

// DockerBuilder builds images with `docker build`.
//
// # Description
//
// Build(ctx, tag) performs:
//
//  1. Without a tag: docker build -t <app>:latest [-f <dockerfile>] <context>
//     from the working tree.
//     With a tag: the same build, run inside a scoped checkout of the tag so
//     the repository is restored afterwards even if the build fails.
//  2. docker build -t <sidecar>:<tag> --build-arg APP_IMAGE=<app>:<tag> <sidecar context>
//     from the restored working tree, if a sidecar is configured.
//
// Build output streams to the operator. On failure the last TailLines lines
// are logged and the error wraps ErrBuildFailed.
type DockerBuilder struct {
	config DockerConfig
	proc   process.Manager
	guard  gitref.Checkouter
	out    io.Writer
	logger *logging.Logger
}

// NewDockerBuilder creates a DockerBuilder. out receives build output; nil
// discards it.
func NewDockerBuilder(config DockerConfig, proc process.Manager, guard gitref.Checkouter, out io.Writer, logger *logging.Logger) *DockerBuilder {
	if out == nil {
		out = io.Discard
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &DockerBuilder{config: config.withDefaults(), proc: proc, guard: guard, out: out, logger: logger}
}

// Build builds the application image and then the sidecar.
//
// # Outputs
//
//   - []ImageSpec: Images built, in build order
//   - error: ErrBuildFailed wrapping the docker failure, a checkout error,
//     or a restore error joined onto either
func (b *DockerBuilder) Build(ctx context.Context, tag string) ([]ImageSpec, error) {
	app := NewImageSpec(b.config.App.Repository, tag)

	buildApp := func(ctx context.Context) error {
		return b.buildImage(ctx, app, b.config.App, nil)
	}

	var err error
	if tag == "" {
		err = buildApp(ctx)
	} else {
		if b.guard == nil {
			return nil, fmt.Errorf("build %s: tagged builds need a git repository", app)
		}
		err = b.guard.WithCheckout(ctx, tag, buildApp)
	}
	if err != nil {
		return nil, err
	}

	built := []ImageSpec{app}
	if !b.config.Sidecar.Configured() {
		return built, nil
	}

	sidecar := NewImageSpec(b.config.Sidecar.Repository, app.Tag)
	buildArgs := []string{SidecarBuildArg + "=" + app.String()}
	if err := b.buildImage(ctx, sidecar, b.config.Sidecar, buildArgs); err != nil {
		return built, err
	}
	return append(built, sidecar), nil
}

func (b *DockerBuilder) buildImage(ctx context.Context, image ImageSpec, src ImageSource, buildArgs []string) error {
	args := []string{"build", "-t", image.String()}
	if src.Dockerfile != "" {
		args = append(args, "-f", dockerfilePath(src))
	}
	for _, a := range buildArgs {
		args = append(args, "--build-arg", a)
	}
	args = append(args, src.Context)

	b.logger.Info("building image", "image", image.String(), "context", src.Context)

	tail := util.NewLineTail(b.config.TailLines)
	w := io.MultiWriter(b.out, tail)
	if err := b.proc.RunStreaming(ctx, "", nil, w, b.config.Binary, args...); err != nil {
		b.logger.Error("image build failed",
			"image", image.String(),
			"error", err.Error(),
			"output_tail", tail.String(),
			"output_lines_dropped", tail.Dropped())
		return fmt.Errorf("%w: %s: %w", ErrBuildFailed, image, err)
	}

	b.logger.Info("built image", "image", image.String())
	return nil
}

// dockerfilePath resolves a relative Dockerfile against the build context.
func dockerfilePath(src ImageSource) string {
	if filepath.IsAbs(src.Dockerfile) {
		return src.Dockerfile
	}
	return filepath.Join(src.Context, src.Dockerfile)
}

// DockerPublisher pushes images with `docker push`.
//
// # Description
//
// Push(ctx, tag) logs in to the registry, pushes the application image,
// then the sidecar. There is no rollback: if the sidecar push fails the
// application image stays in the registry and the returned *PushError says
// so.
type DockerPublisher struct {
	config DockerConfig
	proc   process.Manager
	auth   RegistryAuth
	out    io.Writer
	logger *logging.Logger
}

// NewDockerPublisher creates a DockerPublisher. A nil auth skips login.
func NewDockerPublisher(config DockerConfig, proc process.Manager, auth RegistryAuth, out io.Writer, logger *logging.Logger) *DockerPublisher {
	if auth == nil {
		auth = NopAuth{}
	}
	if out == nil {
		out = io.Discard
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &DockerPublisher{config: config.withDefaults(), proc: proc, auth: auth, out: out, logger: logger}
}

// Push logs in and pushes the application image and then the sidecar.
func (p *DockerPublisher) Push(ctx context.Context, tag string) ([]ImageSpec, error) {
	if err := p.auth.Login(ctx); err != nil {
		return nil, err
	}

	images := []ImageSpec{NewImageSpec(p.config.App.Repository, tag)}
	if p.config.Sidecar.Configured() {
		images = append(images, NewImageSpec(p.config.Sidecar.Repository, tag))
	}

	var pushed []ImageSpec
	for _, image := range images {
		p.logger.Info("pushing image", "image", image.String())
		if err := p.proc.RunStreaming(ctx, "", nil, p.out, p.config.Binary, "push", image.String()); err != nil {
			return pushed, &PushError{Pushed: pushed, Failed: image, Err: err}
		}
		pushed = append(pushed, image)
	}
	return pushed, nil
}

var (
	_ Builder   = (*DockerBuilder)(nil)
	_ Publisher = (*DockerPublisher)(nil)
)
