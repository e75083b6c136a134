// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newMachinePrinter() (*Printer, *bytes.Buffer, *bytes.Buffer) {
	var out, errw bytes.Buffer
	return NewPrinter(&out, &errw, PersonalityMachine), &out, &errw
}

func TestPrinter_MachineOutput(t *testing.T) {
	p, out, errw := newMachinePrinter()

	p.Title("Deploying production")
	p.Step(2, 3, "push")
	p.Success("pushed app:1.2.0")
	p.Info("Checked out 1.2.0")
	p.Warning("output app_tag not available")
	p.Error("terraform apply failed")

	assert.Equal(t,
		"STEP 2/3: push\nOK: pushed app:1.2.0\nChecked out 1.2.0\n",
		out.String())
	assert.Equal(t,
		"WARN: output app_tag not available\nERROR: terraform apply failed\n",
		errw.String())
}

func TestPrinter_PlainIsNeverDecorated(t *testing.T) {
	for _, level := range []PersonalityLevel{PersonalityFull, PersonalityStandard, PersonalityMinimal, PersonalityMachine} {
		var out bytes.Buffer
		p := NewPrinter(&out, &out, level)
		p.Plain("Redeployed ECS service: main/web (1.2.0)")
		assert.Equal(t, "Redeployed ECS service: main/web (1.2.0)\n", out.String(), "level %s", level)
	}
}

func TestPrinter_MinimalUsesIcons(t *testing.T) {
	var out, errw bytes.Buffer
	p := NewPrinter(&out, &errw, PersonalityMinimal)

	p.Success("done")
	p.Error("failed")

	assert.Equal(t, "✓ done\n", out.String())
	assert.Equal(t, "✗ failed\n", errw.String())
}

func TestPrinter_FullTitleContainsText(t *testing.T) {
	var out bytes.Buffer
	p := NewPrinter(&out, &out, PersonalityFull)
	p.Title("Deploying staging")
	assert.True(t, strings.Contains(out.String(), "Deploying staging"))
}

func TestPrinter_ZeroLevelFollowsGlobal(t *testing.T) {
	prev := GetPersonalityLevel()
	defer SetPersonalityLevel(prev)

	SetPersonalityLevel(PersonalityMachine)
	var out bytes.Buffer
	p := &Printer{Out: &out, Err: &out}
	p.Success("ok")
	assert.Equal(t, "OK: ok\n", out.String())
	assert.Equal(t, &out, p.Writer())
}

func TestParsePersonalityLevel(t *testing.T) {
	assert.Equal(t, PersonalityFull, ParsePersonalityLevel("FULL"))
	assert.Equal(t, PersonalityStandard, ParsePersonalityLevel("std"))
	assert.Equal(t, PersonalityMinimal, ParsePersonalityLevel("m"))
	assert.Equal(t, PersonalityMachine, ParsePersonalityLevel("ci"))
	assert.Equal(t, PersonalityStandard, ParsePersonalityLevel("unknown"))
}

func TestDetectPersonality(t *testing.T) {
	assert.Equal(t, PersonalityMinimal, detectPersonality("minimal", "full", true))
	assert.Equal(t, PersonalityStandard, detectPersonality("", "standard", false))
	assert.Equal(t, PersonalityMachine, detectPersonality("", "", false))
	assert.Equal(t, PersonalityFull, detectPersonality("", "", true))
}
