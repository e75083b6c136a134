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
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/ecr"
	"github.com/aws/aws-sdk-go/service/ecr/ecriface"

	"github.com/AleutianAI/ecsdeploy/cmd/ecsdeploy/internal/infra/process"
	"github.com/AleutianAI/ecsdeploy/pkg/logging"
)

// ErrRegistryAuth is returned when registry credentials cannot be obtained
// or decoded.
var ErrRegistryAuth = errors.New("registry authentication failed")

// RegistryAuth logs the docker client in to the image registry.
type RegistryAuth interface {
	Login(ctx context.Context) error
}

// ECRAuth logs docker in to Amazon ECR.
//
// # Description
//
// Fetches a short-lived token with ecr:GetAuthorizationToken, decodes the
// "AWS:<password>" pair and pipes the password to
//
//	docker login --username AWS --password-stdin <proxy endpoint>
//
// The password never appears on a command line or in logs.
type ECRAuth struct {
	client       ecriface.ECRAPI
	proc         process.Manager
	dockerBinary string
	logger       *logging.Logger
}

// NewECRAuth creates an ECRAuth.
func NewECRAuth(client ecriface.ECRAPI, proc process.Manager, dockerBinary string, logger *logging.Logger) *ECRAuth {
	if dockerBinary == "" {
		dockerBinary = "docker"
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &ECRAuth{client: client, proc: proc, dockerBinary: dockerBinary, logger: logger}
}

// Login obtains an ECR token and runs docker login for every registry the
// token covers.
func (a *ECRAuth) Login(ctx context.Context) error {
	res, err := a.client.GetAuthorizationTokenWithContext(ctx, &ecr.GetAuthorizationTokenInput{})
	if err != nil {
		return fmt.Errorf("%w: get ECR authorization token: %w", ErrRegistryAuth, err)
	}
	if len(res.AuthorizationData) == 0 {
		return fmt.Errorf("%w: ECR returned no authorization data", ErrRegistryAuth)
	}

	for _, data := range res.AuthorizationData {
		user, password, err := decodeAuthorizationToken(aws.StringValue(data.AuthorizationToken))
		if err != nil {
			return err
		}
		endpoint := aws.StringValue(data.ProxyEndpoint)

		_, err = a.proc.RunWithInput(ctx, "", []byte(password),
			a.dockerBinary, "login", "--username", user, "--password-stdin", endpoint)
		if err != nil {
			return fmt.Errorf("%w: docker login %s: %w", ErrRegistryAuth, endpoint, err)
		}
		a.logger.Info("logged in to registry", "endpoint", endpoint)
	}
	return nil
}

// decodeAuthorizationToken splits a base64 "user:password" token.
func decodeAuthorizationToken(token string) (string, string, error) {
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return "", "", fmt.Errorf("%w: decode authorization token: %v", ErrRegistryAuth, err)
	}
	user, password, ok := strings.Cut(string(raw), ":")
	if !ok || user == "" || password == "" {
		return "", "", fmt.Errorf("%w: malformed authorization token", ErrRegistryAuth)
	}
	return user, password, nil
}

// NopAuth skips registry login, for registries the docker client is already
// logged in to.
type NopAuth struct{}

// Login does nothing.
func (NopAuth) Login(ctx context.Context) error { return nil }

var (
	_ RegistryAuth = (*ECRAuth)(nil)
	_ RegistryAuth = NopAuth{}
)
