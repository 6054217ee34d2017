// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package logging

import (
	"bufio"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNew_FileLogging(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{
		Level:   slog.LevelInfo,
		LogDir:  dir,
		Service: "delphi",
		Quiet:   true,
	})

	logger.Slog().Info("run grouped", "run_key", "2024-01-15T10:30")
	logger.Slog().Debug("should be filtered")

	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	name := "delphi_" + time.Now().Format("2006-01-02") + ".log"
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}

	var lines []map[string]any
	scanner := bufio.NewScanner(strings.NewReader(string(data)))
	for scanner.Scan() {
		var entry map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			t.Fatalf("log line is not JSON: %v", err)
		}
		lines = append(lines, entry)
	}

	if len(lines) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(lines))
	}
	if lines[0]["msg"] != "run grouped" {
		t.Errorf("msg = %v, want %q", lines[0]["msg"], "run grouped")
	}
	if lines[0]["service"] != "delphi" {
		t.Errorf("service = %v, want %q", lines[0]["service"], "delphi")
	}
	if lines[0]["run_key"] != "2024-01-15T10:30" {
		t.Errorf("run_key = %v", lines[0]["run_key"])
	}
}

func TestSetLevel_TakesEffectImmediately(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{
		Level:   slog.LevelWarn,
		LogDir:  dir,
		Service: "delphi",
		Quiet:   true,
	})

	logger.Slog().Info("filtered at warn")
	logger.SetLevel(slog.LevelDebug)
	logger.Slog().Debug("visible at debug")

	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	name := "delphi_" + time.Now().Format("2006-01-02") + ".log"
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	out := string(data)

	if strings.Contains(out, "filtered at warn") {
		t.Error("info entry should have been filtered before SetLevel")
	}
	if !strings.Contains(out, "visible at debug") {
		t.Error("debug entry should appear after SetLevel(Debug)")
	}
}

func TestClose_NoFileIsNoop(t *testing.T) {
	logger := New(Config{Quiet: true})
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory in test environment")
	}

	tests := []struct {
		in   string
		want string
	}{
		{"~/.aleutian/logs", filepath.Join(home, ".aleutian/logs")},
		{"/var/log/delphi", "/var/log/delphi"},
		{"relative/path", "relative/path"},
	}
	for _, tt := range tests {
		if got := expandPath(tt.in); got != tt.want {
			t.Errorf("expandPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
