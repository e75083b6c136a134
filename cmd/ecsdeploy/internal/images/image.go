// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package images builds the application and sidecar images and pushes them
// to the registry.
//
// # Description
//
// Two images make up a release: the application image and a dependent
// sidecar (an nginx front end in the reference layout) built FROM the
// application image via the APP_IMAGE build argument. Both carry the same
// tag. When a tag is given the application is built from that git ref;
// untagged builds use the working tree and the tag "latest".
//
// Two strategies exist:
//
//   - docker: docker build / docker push per image (DockerBuilder,
//     DockerPublisher)
//   - compose: docker-compose -f <file> build / push with APP_TAG set
//     (ComposeBuilder, ComposePublisher)
package images

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// DefaultTag is used when no tag is given.
const DefaultTag = "latest"

// ErrBuildFailed wraps every image build failure.
var ErrBuildFailed = errors.New("image build failed")

// ImageSpec names one image reference.
type ImageSpec struct {
	Repository string
	Tag        string
}

// NewImageSpec returns repo:tag, defaulting the tag to "latest".
func NewImageSpec(repository, tag string) ImageSpec {
	if tag == "" {
		tag = DefaultTag
	}
	return ImageSpec{Repository: repository, Tag: tag}
}

// String renders "repository:tag".
func (s ImageSpec) String() string {
	return s.Repository + ":" + s.Tag
}

// RegistryHost returns the registry part of the repository, or "" for
// Docker Hub style names.
//
//	"123456789012.dkr.ecr.us-east-1.amazonaws.com/app" -> "123456789012.dkr.ecr.us-east-1.amazonaws.com"
//	"library/nginx" -> ""
func (s ImageSpec) RegistryHost() string {
	host, _, found := strings.Cut(s.Repository, "/")
	if !found || (!strings.ContainsAny(host, ".:") && host != "localhost") {
		return ""
	}
	return host
}

// Builder builds the release images for a tag.
type Builder interface {
	Build(ctx context.Context, tag string) ([]ImageSpec, error)
}

// Publisher pushes the release images for a tag.
type Publisher interface {
	Push(ctx context.Context, tag string) ([]ImageSpec, error)
}

// PushError reports a push that failed part-way. Images in Pushed are
// already in the registry; nothing is rolled back.
type PushError struct {
	Pushed []ImageSpec
	Failed ImageSpec
	Err    error
}

// Error names the failed image and what was already pushed.
func (e *PushError) Error() string {
	if len(e.Pushed) == 0 {
		return fmt.Sprintf("push %s: %v", e.Failed, e.Err)
	}
	pushed := make([]string, len(e.Pushed))
	for i, p := range e.Pushed {
		pushed[i] = p.String()
	}
	return fmt.Sprintf("push %s: %v (already pushed: %s)", e.Failed, e.Err, strings.Join(pushed, ", "))
}

// Unwrap returns the underlying error.
func (e *PushError) Unwrap() error {
	return e.Err
}

// ImageSource describes how to build one image.
type ImageSource struct {
	// Repository is the image name without tag.
	Repository string

	// Context is the build context directory.
	Context string

	// Dockerfile is optional and, when relative, resolved against Context
	// the way the Docker engine API resolves it.
	Dockerfile string
}

// Configured reports whether the source names an image.
func (s ImageSource) Configured() bool {
	return s.Repository != ""
}
