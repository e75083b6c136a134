// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package util

import (
	"bytes"
	"strings"
	"sync"
)

// DefaultTailLines is the number of trailing lines a LineTail keeps when
// created with a non-positive size.
const DefaultTailLines = 40

// LineTail is an io.Writer that keeps the last N complete lines written to it.
//
// # Description
//
// Build output is streamed to the operator as it arrives; a LineTail sits
// alongside that stream so the final lines can be repeated in the log when
// the build fails. A trailing partial line is kept until Lines is called.
//
// # Example
//
//	tail := NewLineTail(40)
//	w := io.MultiWriter(os.Stdout, tail)
//	// ... run docker build with w as stdout/stderr ...
//	logger.Error("build failed", "output_tail", tail.String())
type LineTail struct {
	mu      sync.Mutex
	lines   *RingBuffer[string]
	partial bytes.Buffer
}

// NewLineTail creates a LineTail keeping at most n lines.
func NewLineTail(n int) *LineTail {
	if n <= 0 {
		n = DefaultTailLines
	}
	return &LineTail{lines: NewRingBuffer[string](n)}
}

// Write implements io.Writer. It never returns an error.
func (t *LineTail) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rest := p
	for {
		i := bytes.IndexByte(rest, '\n')
		if i < 0 {
			t.partial.Write(rest)
			break
		}
		t.partial.Write(rest[:i])
		t.lines.Push(strings.TrimRight(t.partial.String(), "\r"))
		t.partial.Reset()
		rest = rest[i+1:]
	}
	return len(p), nil
}

// Lines returns the retained lines, oldest first, including any unterminated
// final line.
func (t *LineTail) Lines() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := t.lines.Items()
	if t.partial.Len() > 0 {
		out = append(out, strings.TrimRight(t.partial.String(), "\r"))
	}
	return out
}

// Dropped returns how many complete lines scrolled out of the tail.
func (t *LineTail) Dropped() int64 {
	return t.lines.DroppedCount()
}

// String joins the retained lines with newlines.
func (t *LineTail) String() string {
	return strings.Join(t.Lines(), "\n")
}
