// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/AleutianAI/ecsdeploy/cmd/ecsdeploy/internal/diagnostics"
	"github.com/AleutianAI/ecsdeploy/pkg/logging"
)

func recordStep(ran *[]string, name string, err error) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		*ran = append(*ran, name)
		return err
	}
}

func TestPipeline_RunsAllStepsInOrder(t *testing.T) {
	var ran []string
	var starts []int
	p := New(Config{
		OnStepStart: func(n, total int, step Step) {
			starts = append(starts, n)
			assert.Equal(t, 3, total)
		},
	})
	p.Add("build", recordStep(&ran, "build", nil)).
		Add("push", recordStep(&ran, "push", nil)).
		Add("apply", recordStep(&ran, "apply", nil))

	result, err := p.Execute(context.Background())
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, []string{"build", "push", "apply"}, ran)
	assert.Equal(t, []string{"build", "push", "apply"}, result.CompletedSteps)
	assert.Equal(t, []int{1, 2, 3}, starts)
	assert.Empty(t, result.FailedStep)
}

func TestPipeline_StopsAtFirstFailure(t *testing.T) {
	var ran []string
	pushErr := errors.New("denied")
	var failed string
	var completedAtFailure []string

	p := New(Config{OnStepFail: func(step Step, err *StepError) {
		failed = step.Name
		completedAtFailure = err.Completed
	}})
	p.Add("build", recordStep(&ran, "build", nil)).
		Add("push", recordStep(&ran, "push", pushErr)).
		Add("apply", recordStep(&ran, "apply", nil))

	result, err := p.Execute(context.Background())
	require.Error(t, err)

	assert.Equal(t, []string{"build", "push"}, ran, "apply never runs")
	assert.False(t, result.Success)
	assert.Equal(t, "push", result.FailedStep)
	assert.Equal(t, []string{"build"}, result.CompletedSteps)
	assert.Equal(t, "push", failed)
	assert.Equal(t, []string{"build"}, completedAtFailure)
	assert.ErrorIs(t, err, pushErr)

	var stepErr *StepError
	require.True(t, errors.As(err, &stepErr))
	assert.Equal(t, []string{"build"}, stepErr.Completed)
	assert.Equal(t, `step "push" failed after completing build: denied`, err.Error())
}

func TestPipeline_FirstStepFailureMessage(t *testing.T) {
	p := New(Config{}).Add("build", func(ctx context.Context) error { return errors.New("boom") })
	_, err := p.Execute(context.Background())
	assert.Equal(t, `step "build" failed: boom`, err.Error())
}

func TestPipeline_CancelledBetweenSteps(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var ran []string

	p := New(Config{})
	p.Add("build", func(ctx context.Context) error {
		ran = append(ran, "build")
		cancel()
		return nil
	}).Add("push", recordStep(&ran, "push", nil))

	result, err := p.Execute(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"build"}, ran)
	assert.Equal(t, "push", result.FailedStep)
}

func TestPipeline_CompleteCallbackAndLogs(t *testing.T) {
	exporter := logging.NewBufferedExporter()
	var completed []string
	p := New(Config{
		Logger:         logging.New(logging.Config{Quiet: true, Exporter: exporter}),
		OnStepComplete: func(step Step, d time.Duration) { completed = append(completed, step.Name) },
	})
	p.Add("build", func(ctx context.Context) error { return nil })

	_, err := p.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"build"}, completed)
	assert.Equal(t, []string{"executing step", "step completed"}, exporter.Messages())
	assert.Equal(t, "build", exporter.Entries()[0].Attrs["step"])
}

func TestPipeline_Spans(t *testing.T) {
	spans := tracetest.NewInMemoryExporter()
	tracer, err := diagnostics.NewOTelTracer(context.Background(), diagnostics.Config{}, sdktrace.WithSyncer(spans))
	require.NoError(t, err)

	p := New(Config{Name: "all", Tracer: tracer})
	p.Add("build", func(ctx context.Context) error { return nil }).
		Add("push", func(ctx context.Context) error { return errors.New("denied") })

	_, err = p.Execute(context.Background())
	require.Error(t, err)

	got := spans.GetSpans()
	require.Len(t, got, 3)
	assert.Equal(t, "all.step.build", got[0].Name)
	assert.Equal(t, "all.step.push", got[1].Name)
	assert.Equal(t, codes.Error, got[1].Status.Code)
	assert.Equal(t, "all", got[2].Name)
	assert.Equal(t, codes.Error, got[2].Status.Code)
}

func TestPipeline_Empty(t *testing.T) {
	result, err := New(Config{}).Execute(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Empty(t, result.CompletedSteps)
}
