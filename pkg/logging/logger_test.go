// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// =============================================================================
// Level Tests
// =============================================================================

func TestLevel_String(t *testing.T) {
	tests := []struct {
		level Level
		want  string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{Level(99), "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := tt.level.String(); got != tt.want {
			t.Errorf("Level(%d).String() = %q, want %q", tt.level, got, tt.want)
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{"warning", LevelWarn, false},
		{" error ", LevelError, false},
		{"verbose", LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

// =============================================================================
// Logger Output Tests
// =============================================================================

func TestNew_WritesTextToWriter(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: LevelInfo, Service: "ecsdeploy", Writer: &buf})

	logger.Debug("hidden")
	logger.Info("building image", "image", "app:1.2.0")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug message written at info level: %s", out)
	}
	for _, want := range []string{"building image", "image=app:1.2.0", "service=ecsdeploy"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q: %s", want, out)
		}
	}
}

func TestNew_JSONConsole(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: LevelDebug, JSON: true, Writer: &buf})

	logger.Warn("output missing", "name", "app_tag")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("console output is not JSON: %v (%s)", err, buf.String())
	}
	if record["msg"] != "output missing" || record["name"] != "app_tag" || record["level"] != "WARN" {
		t.Errorf("unexpected record: %v", record)
	}
}

func TestNew_FileLogging(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{Level: LevelInfo, LogDir: dir, Service: "ecsdeploy", Quiet: true})

	logger.Info("terraform apply finished")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	path := filepath.Join(dir, "ecsdeploy_"+time.Now().Format("2006-01-02")+".log")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("log file not created: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"terraform apply finished"`) {
		t.Errorf("log file content = %s", data)
	}
}

func TestNop_DiscardsOutput(t *testing.T) {
	logger := Nop()
	logger.Error("nothing to see")
	if err := logger.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

// =============================================================================
// Exporter Tests
// =============================================================================

func TestWith_AttributesReachExporter(t *testing.T) {
	exporter := NewBufferedExporter()
	logger := New(Config{Level: LevelInfo, Service: "ecsdeploy", Quiet: true, Exporter: exporter})

	runLogger := logger.With("run_id", "abc")
	runLogger.Info("pushed image", "image", "app:1.2.0")
	logger.Debug("filtered")

	entries := exporter.Entries()
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	e := entries[0]
	if e.Message != "pushed image" || e.Level != LevelInfo || e.Service != "ecsdeploy" {
		t.Errorf("unexpected entry: %+v", e)
	}
	if e.Attrs["run_id"] != "abc" || e.Attrs["image"] != "app:1.2.0" {
		t.Errorf("attrs = %v", e.Attrs)
	}
	if got := exporter.Messages(); len(got) != 1 || got[0] != "pushed image" {
		t.Errorf("Messages() = %v", got)
	}
}

func TestArgsToMap_DropsMalformedPairs(t *testing.T) {
	got := argsToMap([]any{"a", 1, 2, "b", "dangling"})
	if len(got) != 1 || got["a"] != 1 {
		t.Errorf("argsToMap() = %v", got)
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	if got := expandPath("~/.ecsdeploy/logs"); got != filepath.Join(home, ".ecsdeploy/logs") {
		t.Errorf("expandPath() = %q", got)
	}
	if got := expandPath("/var/log"); got != "/var/log" {
		t.Errorf("expandPath() = %q", got)
	}
}
