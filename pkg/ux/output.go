// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ux provides terminal output styling for the ecsdeploy CLI.
package ux

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
)

// Aleutian color palette - deep ocean teals and arctic waters
var (
	ColorTealBright  = lipgloss.Color("#2CD7C7") // Bright teal - highlights, success
	ColorTealPrimary = lipgloss.Color("#20B9B4") // Primary teal - main brand color
	ColorSlate       = lipgloss.Color("#2C4A54") // Slate - muted text, borders

	ColorSuccess = lipgloss.Color("#2CD7C7")
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
)

// Styles provides pre-configured lipgloss styles
var Styles = struct {
	Title   lipgloss.Style
	Bold    lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
}{
	Title:   lipgloss.NewStyle().Bold(true).Foreground(ColorTealBright),
	Bold:    lipgloss.NewStyle().Bold(true),
	Muted:   lipgloss.NewStyle().Foreground(ColorSlate),
	Success: lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning: lipgloss.NewStyle().Foreground(ColorWarning),
	Error:   lipgloss.NewStyle().Foreground(ColorError),
}

// Icon provides themed status icons
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconArrow   Icon = "→"
	IconBullet  Icon = "•"
	IconShip    Icon = "⛵"
)

// Render returns the icon with appropriate styling
func (i Icon) Render() string {
	switch i {
	case IconSuccess:
		return Styles.Success.Render(string(i))
	case IconWarning:
		return Styles.Warning.Render(string(i))
	case IconError:
		return Styles.Error.Render(string(i))
	default:
		return string(i)
	}
}

// Printer writes operator-facing messages at a personality level.
//
// # Description
//
// Out receives progress and results; Err receives warnings and errors in
// machine mode. A zero Level follows the process-wide personality.
//
// Messages that scripts may grep for ("Checked out 1.2.0", "Redeployed ECS
// service: ...") go through Plain, which never decorates.
type Printer struct {
	Out   io.Writer
	Err   io.Writer
	Level PersonalityLevel
}

// Stdout returns a Printer on os.Stdout/os.Stderr following the global level.
func Stdout() *Printer {
	return &Printer{Out: os.Stdout, Err: os.Stderr}
}

// NewPrinter returns a Printer with a fixed level.
func NewPrinter(out, errw io.Writer, level PersonalityLevel) *Printer {
	return &Printer{Out: out, Err: errw, Level: level}
}

func (p *Printer) level() PersonalityLevel {
	if p.Level != "" {
		return p.Level
	}
	return GetPersonalityLevel()
}

// Writer returns the raw output stream, for streaming subprocess output.
func (p *Printer) Writer() io.Writer {
	return p.Out
}

// Plain prints text followed by a newline, undecorated at every level.
func (p *Printer) Plain(text string) {
	fmt.Fprintln(p.Out, text)
}

// Title prints a styled heading. Suppressed in machine mode.
func (p *Printer) Title(text string) {
	switch p.level() {
	case PersonalityMachine:
		return
	case PersonalityFull:
		fmt.Fprintf(p.Out, "%s %s\n", IconShip.Render(), Styles.Title.Render(text))
	default:
		fmt.Fprintln(p.Out, Styles.Title.Render(text))
	}
}

// Step prints a numbered pipeline step, e.g. "[2/3] push".
func (p *Printer) Step(n, total int, name string) {
	switch p.level() {
	case PersonalityMachine:
		fmt.Fprintf(p.Out, "STEP %d/%d: %s\n", n, total, name)
	default:
		fmt.Fprintf(p.Out, "%s %s\n", Styles.Muted.Render(fmt.Sprintf("[%d/%d]", n, total)), Styles.Bold.Render(name))
	}
}

// Success prints a success message with checkmark
func (p *Printer) Success(text string) {
	switch p.level() {
	case PersonalityMachine:
		fmt.Fprintf(p.Out, "OK: %s\n", text)
	case PersonalityMinimal:
		fmt.Fprintf(p.Out, "%s %s\n", IconSuccess, text)
	default:
		fmt.Fprintf(p.Out, "%s %s\n", IconSuccess.Render(), Styles.Success.Render(text))
	}
}

// Warning prints a warning message
func (p *Printer) Warning(text string) {
	switch p.level() {
	case PersonalityMachine:
		fmt.Fprintf(p.Err, "WARN: %s\n", text)
	case PersonalityMinimal:
		fmt.Fprintf(p.Out, "%s %s\n", IconWarning, text)
	default:
		fmt.Fprintf(p.Out, "%s %s\n", IconWarning.Render(), Styles.Warning.Render(text))
	}
}

// Error prints an error message. Always on Err, so it survives stdout
// redirection.
func (p *Printer) Error(text string) {
	switch p.level() {
	case PersonalityMachine:
		fmt.Fprintf(p.Err, "ERROR: %s\n", text)
	case PersonalityMinimal:
		fmt.Fprintf(p.Err, "%s %s\n", IconError, text)
	default:
		fmt.Fprintf(p.Err, "%s %s\n", IconError.Render(), Styles.Error.Render(text))
	}
}

// Info prints an informational message
func (p *Printer) Info(text string) {
	switch p.level() {
	case PersonalityMachine:
		fmt.Fprintln(p.Out, text)
	default:
		fmt.Fprintf(p.Out, "%s %s\n", Styles.Muted.Render("│"), text)
	}
}
