// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ecsctl drives ECS directly: forced redeploys of running services
// and one-off Fargate tasks.
//
// Both operations return as soon as ECS accepts the request. Neither polls
// for the new deployment or task to become healthy.
package ecsctl

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/ecs"
	"github.com/aws/aws-sdk-go/service/ecs/ecsiface"

	"github.com/AleutianAI/ecsdeploy/pkg/logging"
)

var (
	// ErrUnknownService is returned when a requested service key is not in
	// the service map, or ECS does not know the mapped service.
	ErrUnknownService = errors.New("unknown service")

	// ErrNoTaskStarted is returned when RunTask succeeds as an API call but
	// ECS started no task.
	ErrNoTaskStarted = errors.New("no task started")
)

// Client wraps an ECS API client.
type Client struct {
	api    ecsiface.ECSAPI
	logger *logging.Logger
}

// NewClient creates a Client. api is usually ecs.New(sess).
func NewClient(api ecsiface.ECSAPI, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Client{api: api, logger: logger}
}

// ServiceUpdate records one forced deployment.
type ServiceUpdate struct {
	// Key is the service's key in the service map (e.g. "web").
	Key string

	// Name is the ECS service name the key maps to.
	Name string

	// DeploymentID is the id of the new PRIMARY deployment, when ECS
	// reports one.
	DeploymentID string
}

// RedeployResult lists the services a Redeploy updated, in call order.
type RedeployResult struct {
	Cluster string
	Updated []ServiceUpdate
}

// SelectServices resolves selected keys against the service map.
//
// # Description
//
// An empty selection yields every key in sorted order. Otherwise each key
// must exist; duplicates are collapsed keeping first-seen order. Nothing is
// returned unless every key resolves.
//
// # Outputs
//
//   - []string: Keys to redeploy
//   - error: ErrUnknownService naming each unknown key
func SelectServices(services map[string]string, selected []string) ([]string, error) {
	if len(selected) == 0 {
		keys := make([]string, 0, len(services))
		for k := range services {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return keys, nil
	}

	seen := make(map[string]bool, len(selected))
	var keys, unknown []string
	for _, k := range selected {
		if seen[k] {
			continue
		}
		seen[k] = true
		if _, ok := services[k]; !ok {
			unknown = append(unknown, k)
			continue
		}
		keys = append(keys, k)
	}
	if len(unknown) > 0 {
		known := make([]string, 0, len(services))
		for k := range services {
			known = append(known, k)
		}
		sort.Strings(known)
		return nil, fmt.Errorf("%w: %s (known: %s)", ErrUnknownService,
			strings.Join(unknown, ", "), strings.Join(known, ", "))
	}
	return keys, nil
}

// Redeploy forces a new deployment of the selected services.
//
// # Description
//
// Resolves the selection with SelectServices before any API call, then
// calls UpdateService{ForceNewDeployment: true} for each service in order.
// The first failure stops the loop; services already updated are in the
// returned result.
//
// # Inputs
//
//   - cluster: ECS cluster name or ARN
//   - services: Map of service key to ECS service name (the `services`
//     Terraform output)
//   - selected: Keys to redeploy; empty means all
//
// # Outputs
//
//   - *RedeployResult: Services updated (never nil)
//   - error: ErrUnknownService, or the wrapped ECS error
func (c *Client) Redeploy(ctx context.Context, cluster string, services map[string]string, selected []string) (*RedeployResult, error) {
	result := &RedeployResult{Cluster: cluster}

	keys, err := SelectServices(services, selected)
	if err != nil {
		return result, err
	}

	for _, key := range keys {
		name := services[key]
		out, err := c.api.UpdateServiceWithContext(ctx, &ecs.UpdateServiceInput{
			Cluster:            aws.String(cluster),
			Service:            aws.String(name),
			ForceNewDeployment: aws.Bool(true),
		})
		if err != nil {
			return result, translateServiceError(cluster, name, err)
		}

		update := ServiceUpdate{Key: key, Name: name, DeploymentID: primaryDeployment(out.Service)}
		result.Updated = append(result.Updated, update)
		c.logger.Info("forced new deployment",
			"cluster", cluster,
			"service", name,
			"deployment_id", update.DeploymentID)
	}
	return result, nil
}

func primaryDeployment(svc *ecs.Service) string {
	if svc == nil {
		return ""
	}
	for _, d := range svc.Deployments {
		if aws.StringValue(d.Status) == "PRIMARY" {
			return aws.StringValue(d.Id)
		}
	}
	return ""
}

func translateServiceError(cluster, service string, err error) error {
	if aerr, ok := err.(awserr.Error); ok {
		switch aerr.Code() {
		case ecs.ErrCodeServiceNotFoundException, ecs.ErrCodeServiceNotActiveException:
			return fmt.Errorf("%w: %s in cluster %s: %s", ErrUnknownService, service, cluster, aerr.Message())
		case ecs.ErrCodeClusterNotFoundException:
			return fmt.Errorf("cluster %s not found: %w", cluster, err)
		}
	}
	return fmt.Errorf("update service %s/%s: %w", cluster, service, err)
}
