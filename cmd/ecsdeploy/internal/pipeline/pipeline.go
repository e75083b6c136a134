// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pipeline runs named deploy steps in order, stopping at the first
// failure.
//
// # Description
//
// A pipeline is a saga without compensation: `ecsdeploy all` is build, push,
// apply, and none of those can be meaningfully undone (a pushed image or an
// applied plan stays). What the operator needs instead is an exact account
// of what already happened, which Result and *StepError carry.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/AleutianAI/ecsdeploy/cmd/ecsdeploy/internal/diagnostics"
	"github.com/AleutianAI/ecsdeploy/pkg/logging"
)

// Step is one named unit of work.
type Step struct {
	Name string
	Run  func(ctx context.Context) error
}

// Config configures a Pipeline.
type Config struct {
	// Name prefixes span names ("<name>.step.<step>"). Default: "pipeline".
	Name string

	Logger *logging.Logger
	Tracer diagnostics.Tracer

	// OnStepStart is called before each step with its 1-based position.
	OnStepStart func(n, total int, step Step)

	// OnStepComplete is called after each successful step.
	OnStepComplete func(step Step, duration time.Duration)

	// OnStepFail is called when a step fails, before Execute returns. err
	// is the error Execute will return.
	OnStepFail func(step Step, err *StepError)
}

// Result reports a pipeline run.
type Result struct {
	Success        bool
	CompletedSteps []string
	FailedStep     string
	Error          error
	Duration       time.Duration
}

// StepError is returned when a step fails. Completed lists the steps whose
// effects are already in place.
type StepError struct {
	Step      string
	Completed []string
	Err       error
}

// Error names the failed step and what completed before it.
func (e *StepError) Error() string {
	if len(e.Completed) == 0 {
		return fmt.Sprintf("step %q failed: %v", e.Step, e.Err)
	}
	return fmt.Sprintf("step %q failed after completing %s: %v", e.Step, strings.Join(e.Completed, ", "), e.Err)
}

// Unwrap returns the step's error.
func (e *StepError) Unwrap() error {
	return e.Err
}

// Pipeline runs steps sequentially.
type Pipeline struct {
	config Config
	steps  []Step
}

// New creates an empty Pipeline.
func New(config Config) *Pipeline {
	if config.Name == "" {
		config.Name = "pipeline"
	}
	if config.Logger == nil {
		config.Logger = logging.Nop()
	}
	if config.Tracer == nil {
		config.Tracer = diagnostics.NoOpTracer{}
	}
	return &Pipeline{config: config}
}

// Add appends a step and returns the pipeline for chaining.
func (p *Pipeline) Add(name string, run func(ctx context.Context) error) *Pipeline {
	p.steps = append(p.steps, Step{Name: name, Run: run})
	return p
}

// Steps returns the step names in order.
func (p *Pipeline) Steps() []string {
	names := make([]string, len(p.steps))
	for i, s := range p.steps {
		names[i] = s.Name
	}
	return names
}

// Execute runs every step in order.
//
// # Description
//
// Stops at the first failing step or when ctx is cancelled between steps.
// Nothing is retried or rolled back. The whole run is one span with a child
// span per step.
//
// # Outputs
//
//   - *Result: Always non-nil
//   - error: *StepError wrapping the step's error, or nil
func (p *Pipeline) Execute(ctx context.Context) (*Result, error) {
	start := time.Now()
	result := &Result{CompletedSteps: []string{}}

	ctx, finish := p.config.Tracer.StartSpan(ctx, p.config.Name, map[string]string{
		"steps": strings.Join(p.Steps(), ","),
	})

	fail := func(step Step, err error) (*Result, error) {
		stepErr := &StepError{
			Step:      step.Name,
			Completed: append([]string(nil), result.CompletedSteps...),
			Err:       err,
		}
		result.FailedStep = step.Name
		result.Error = stepErr
		result.Duration = time.Since(start)
		if p.config.OnStepFail != nil {
			p.config.OnStepFail(step, stepErr)
		}
		finish(stepErr)
		return result, stepErr
	}

	total := len(p.steps)
	for i, step := range p.steps {
		if err := ctx.Err(); err != nil {
			return fail(step, fmt.Errorf("cancelled before start: %w", err))
		}
		if p.config.OnStepStart != nil {
			p.config.OnStepStart(i+1, total, step)
		}
		if err := p.runStep(ctx, step); err != nil {
			return fail(step, err)
		}
		result.CompletedSteps = append(result.CompletedSteps, step.Name)
	}

	result.Success = true
	result.Duration = time.Since(start)
	finish(nil)
	return result, nil
}

func (p *Pipeline) runStep(ctx context.Context, step Step) error {
	logger := p.config.Logger.With("step", step.Name)
	logger.Info("executing step")

	stepCtx, finish := p.config.Tracer.StartSpan(ctx, p.config.Name+".step."+step.Name, nil)
	start := time.Now()
	err := step.Run(stepCtx)
	duration := time.Since(start)
	finish(err)

	if err != nil {
		logger.Error("step failed", "duration", duration.String(), "error", err.Error())
		return err
	}
	logger.Info("step completed", "duration", duration.String())
	if p.config.OnStepComplete != nil {
		p.config.OnStepComplete(step, duration)
	}
	return nil
}
