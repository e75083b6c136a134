// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
)

// PersonalityEnvVar overrides the detected personality level.
const PersonalityEnvVar = "ECSDEPLOY_PERSONALITY"

// PersonalityLevel defines the verbosity and richness of CLI output
type PersonalityLevel string

const (
	// PersonalityFull enables colors, icons and step banners
	PersonalityFull PersonalityLevel = "full"

	// PersonalityStandard enables colors and icons without banners
	PersonalityStandard PersonalityLevel = "standard"

	// PersonalityMinimal uses icons and no colors
	PersonalityMinimal PersonalityLevel = "minimal"

	// PersonalityMachine outputs plain text suitable for CI logs and parsing
	PersonalityMachine PersonalityLevel = "machine"
)

var (
	currentLevel  = PersonalityFull
	personalityMu sync.RWMutex
)

// GetPersonalityLevel returns the current personality level
func GetPersonalityLevel() PersonalityLevel {
	personalityMu.RLock()
	defer personalityMu.RUnlock()
	return currentLevel
}

// SetPersonalityLevel updates the personality level
func SetPersonalityLevel(level PersonalityLevel) {
	personalityMu.Lock()
	defer personalityMu.Unlock()
	currentLevel = level
}

// ParsePersonalityLevel converts a string to PersonalityLevel
func ParsePersonalityLevel(s string) PersonalityLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "full", "f":
		return PersonalityFull
	case "standard", "std", "s":
		return PersonalityStandard
	case "minimal", "min", "m":
		return PersonalityMinimal
	case "machine", "quiet", "q", "ci":
		return PersonalityMachine
	default:
		return PersonalityStandard
	}
}

// InitPersonality picks the level from, in order: the explicit flag value,
// ECSDEPLOY_PERSONALITY, and whether stdout is a terminal. CI runners get
// machine output.
func InitPersonality(flagValue string) PersonalityLevel {
	level := detectPersonality(flagValue, os.Getenv(PersonalityEnvVar), isTerminal(os.Stdout.Fd()))
	SetPersonalityLevel(level)
	return level
}

func detectPersonality(flagValue, envValue string, tty bool) PersonalityLevel {
	if flagValue != "" {
		return ParsePersonalityLevel(flagValue)
	}
	if envValue != "" {
		return ParsePersonalityLevel(envValue)
	}
	if !tty {
		return PersonalityMachine
	}
	return PersonalityFull
}

func isTerminal(fd uintptr) bool {
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// IsInteractive returns true if prompts (such as terraform apply's
// confirmation) can reach a human.
func IsInteractive() bool {
	return GetPersonalityLevel() != PersonalityMachine && isTerminal(os.Stdin.Fd())
}
