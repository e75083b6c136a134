// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ecsctl

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/ecs"
)

// DefaultTaskMemory is the container memory override (MiB) when none is set.
const DefaultTaskMemory = 512

// TaskSpec describes a one-off Fargate task.
type TaskSpec struct {
	Cluster        string
	TaskDefinition string // family, family:revision or ARN
	ContainerName  string
	Command        []string

	// Memory and CPU override the container's reservation. Zero memory
	// means DefaultTaskMemory; zero CPU leaves the definition's value.
	Memory int64
	CPU    int64

	Subnets        []string
	SecurityGroups []string

	// StartedBy tags the task with the invocation's run id (max 36 chars).
	StartedBy string
}

// TaskResult identifies a started task.
type TaskResult struct {
	Cluster string
	TaskARN string
	TaskID  string
}

// RunTask starts one task on Fargate.
//
// # Description
//
// The container named ContainerName runs Command in place of its default.
// The task gets a public IP in the given subnets so it can pull images
// without a NAT gateway. RunTask returns once ECS accepts the task; it does
// not wait for it to start or finish.
//
// # Outputs
//
//   - *TaskResult: The started task
//   - error: the ECS error, or ErrNoTaskStarted listing ECS's failure reasons
//
// # Limitations
//
//   - Only the first started task is reported (count is always 1)
func (c *Client) RunTask(ctx context.Context, spec TaskSpec) (*TaskResult, error) {
	memory := spec.Memory
	if memory <= 0 {
		memory = DefaultTaskMemory
	}

	override := &ecs.ContainerOverride{
		Name:    aws.String(spec.ContainerName),
		Command: aws.StringSlice(spec.Command),
		Memory:  aws.Int64(memory),
	}
	if spec.CPU > 0 {
		override.Cpu = aws.Int64(spec.CPU)
	}

	input := &ecs.RunTaskInput{
		Cluster:        aws.String(spec.Cluster),
		TaskDefinition: aws.String(spec.TaskDefinition),
		LaunchType:     aws.String(ecs.LaunchTypeFargate),
		Count:          aws.Int64(1),
		Overrides: &ecs.TaskOverride{
			ContainerOverrides: []*ecs.ContainerOverride{override},
		},
		NetworkConfiguration: &ecs.NetworkConfiguration{
			AwsvpcConfiguration: &ecs.AwsVpcConfiguration{
				Subnets:        aws.StringSlice(spec.Subnets),
				SecurityGroups: aws.StringSlice(spec.SecurityGroups),
				AssignPublicIp: aws.String(ecs.AssignPublicIpEnabled),
			},
		},
	}
	if spec.StartedBy != "" {
		input.StartedBy = aws.String(spec.StartedBy)
	}

	out, err := c.api.RunTaskWithContext(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("run task %s on %s: %w", spec.TaskDefinition, spec.Cluster, err)
	}
	if len(out.Tasks) == 0 {
		return nil, fmt.Errorf("%w on %s: %s", ErrNoTaskStarted, spec.Cluster, failureReasons(out.Failures))
	}

	arn := aws.StringValue(out.Tasks[0].TaskArn)
	result := &TaskResult{Cluster: spec.Cluster, TaskARN: arn, TaskID: TaskID(arn)}
	c.logger.Info("started task",
		"cluster", spec.Cluster,
		"task_definition", spec.TaskDefinition,
		"task_id", result.TaskID,
		"started_by", spec.StartedBy)
	return result, nil
}

func failureReasons(failures []*ecs.Failure) string {
	if len(failures) == 0 {
		return "ECS reported no failures"
	}
	reasons := make([]string, 0, len(failures))
	for _, f := range failures {
		r := aws.StringValue(f.Reason)
		if d := aws.StringValue(f.Detail); d != "" {
			r += " (" + d + ")"
		}
		if a := aws.StringValue(f.Arn); a != "" {
			r = a + ": " + r
		}
		reasons = append(reasons, r)
	}
	return strings.Join(reasons, "; ")
}

// TaskID extracts the task id from a task ARN. Strings that are not task
// ARNs yield "".
//
//	arn:aws:ecs:us-east-1:123:task/my-cluster/abcdef123 -> abcdef123
//	arn:aws:ecs:us-east-1:123:task/abcdef123            -> abcdef123
//	abcdef123                                           -> ""
func TaskID(arn string) string {
	_, rest, found := strings.Cut(arn, ":task/")
	if !found {
		return ""
	}
	if _, id, ok := strings.Cut(rest, "/"); ok {
		return id
	}
	return rest
}

// ConsoleURL links to a task's detail page in the ECS console.
func ConsoleURL(region, cluster, taskID string) string {
	return fmt.Sprintf("https://console.aws.amazon.com/ecs/home?region=%s#/clusters/%s/tasks/%s/details",
		region, cluster, taskID)
}
