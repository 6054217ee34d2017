// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package logging provides structured logging for Aleutian components.
//
// The logger is built on Go's standard library slog package with two
// extensions the delphi service needs:
//
//   - Multi-destination output: stderr (text or JSON) plus an optional
//     JSON log file, created as {service}_{YYYY-MM-DD}.log.
//   - A runtime-adjustable minimum level, so the config watcher can
//     raise or lower verbosity without a restart.
//
// # Basic Usage
//
//	logger := logging.New(logging.Config{
//	    Level:   slog.LevelInfo,
//	    Service: "delphi",
//	    JSON:    true,
//	})
//	defer logger.Close()
//	logger.Slog().Info("server starting", "port", port)
//
// # Security Considerations
//
// This package does NOT automatically redact sensitive data. Callers
// must ensure PII, tokens, and secrets are not logged:
//
//	// BAD: logs sensitive data
//	logger.Slog().Info("auth", "key", apiKey)
//
//	// GOOD: log metadata only
//	logger.Slog().Info("auth", "key_present", apiKey != "")
package logging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Config configures the Logger. A zero-value Config creates a logger
// that writes Info+ text to stderr.
type Config struct {
	// Level sets the initial minimum log level. It can be changed later
	// with Logger.SetLevel.
	Level slog.Level

	// LogDir enables file logging to the specified directory, alongside
	// stderr. The file is named "{Service}_{YYYY-MM-DD}.log" and is
	// always JSON. Supports ~ expansion. Empty disables file logging.
	LogDir string

	// Service is attached to every entry as the "service" attribute.
	Service string

	// JSON switches stderr output from human-readable text to JSON.
	// File logs are JSON regardless.
	JSON bool

	// Quiet disables stderr output. Logs still go to the file when
	// LogDir is set.
	Quiet bool
}

// Logger wraps slog.Logger with multi-destination output and a
// runtime-adjustable level. Safe for concurrent use.
type Logger struct {
	slog  *slog.Logger
	level *slog.LevelVar
	file  *os.File
}

// New creates a Logger from config. Callers with file logging enabled
// must Close the logger to flush and release the file handle. File
// setup failures degrade to stderr-only rather than failing startup.
func New(config Config) *Logger {
	level := new(slog.LevelVar)
	level.Set(config.Level)
	opts := &slog.HandlerOptions{Level: level}

	var handlers []slog.Handler
	if !config.Quiet {
		if config.JSON {
			handlers = append(handlers, slog.NewJSONHandler(os.Stderr, opts))
		} else {
			handlers = append(handlers, slog.NewTextHandler(os.Stderr, opts))
		}
	}

	logger := &Logger{level: level}

	if config.LogDir != "" {
		logDir := expandPath(config.LogDir)
		if err := os.MkdirAll(logDir, 0750); err == nil {
			service := config.Service
			if service == "" {
				service = "aleutian"
			}
			name := fmt.Sprintf("%s_%s.log", service, time.Now().Format("2006-01-02"))
			file, err := os.OpenFile(filepath.Join(logDir, name),
				os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
			if err == nil {
				logger.file = file
				handlers = append(handlers, slog.NewJSONHandler(file, opts))
			}
		}
	}

	var handler slog.Handler
	switch len(handlers) {
	case 0:
		handler = slog.NewTextHandler(os.Stderr, opts)
	case 1:
		handler = handlers[0]
	default:
		handler = &multiHandler{handlers: handlers}
	}

	if config.Service != "" {
		handler = handler.WithAttrs([]slog.Attr{
			slog.String("service", config.Service),
		})
	}

	logger.slog = slog.New(handler)
	return logger
}

// Default returns an Info-level stderr logger for the delphi service.
func Default() *Logger {
	return New(Config{Level: slog.LevelInfo, Service: "delphi"})
}

// Slog returns the underlying slog.Logger for handler and library use.
func (l *Logger) Slog() *slog.Logger {
	return l.slog
}

// SetLevel changes the minimum level for all destinations. Entries
// already emitted are unaffected.
func (l *Logger) SetLevel(level slog.Level) {
	l.level.Set(level)
}

// Close syncs and closes the log file, if any.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("sync log file: %w", err)
	}
	return l.file.Close()
}

// multiHandler fans out log records to multiple slog handlers, which
// lets stderr and the log file use different formats.
type multiHandler struct {
	handlers []slog.Handler
}

func (h *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, r.Level) {
			if err := handler.Handle(ctx, r); err != nil {
				return err
			}
		}
	}
	return nil
}

func (h *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithAttrs(attrs)
	}
	return &multiHandler{handlers: handlers}
}

func (h *multiHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithGroup(name)
	}
	return &multiHandler{handlers: handlers}
}

// expandPath expands a leading ~ to the user's home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}
