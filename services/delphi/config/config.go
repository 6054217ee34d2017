// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads delphi service configuration from a YAML file with
// environment-variable overrides, and can watch the file for log-level
// changes at runtime.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Config is the delphi service configuration.
type Config struct {
	// Port the HTTP server listens on.
	Port string `yaml:"port"`

	// StorePath is the BadgerDB directory. Ignored when StoreInMemory.
	StorePath string `yaml:"store_path"`

	// StoreInMemory runs the store without persistence (development).
	StoreInMemory bool `yaml:"store_in_memory"`

	// LogLevel is debug, info, warn, or error.
	LogLevel string `yaml:"log_level"`

	// APIKey, when set, is required on every request.
	APIKey string `yaml:"api_key"`

	// OTLPEndpoint is the OpenTelemetry collector address.
	OTLPEndpoint string `yaml:"otlp_endpoint"`

	// RateLimitPerSecond and RateLimitBurst configure the token bucket.
	RateLimitPerSecond float64 `yaml:"rate_limit_per_second"`
	RateLimitBurst     int     `yaml:"rate_limit_burst"`

	// ResolverMode is "store" (id mappings live in the store) or
	// "static" (public ids are used as partition keys directly).
	ResolverMode string `yaml:"resolver_mode"`
}

// Default returns the configuration used when no file or env is present.
func Default() Config {
	return Config{
		Port:               "12300",
		StorePath:          "/var/lib/delphi/store",
		LogLevel:           "info",
		OTLPEndpoint:       "aleutian-otel-collector:4317",
		RateLimitPerSecond: 50,
		RateLimitBurst:     100,
		ResolverMode:       "store",
	}
}

// Load reads path (when non-empty and present) over the defaults, then
// applies environment overrides. A missing file is not an error; a
// malformed one is.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("DELPHI_PORT"); v != "" {
		c.Port = v
	}
	if v := os.Getenv("DELPHI_STORE_PATH"); v != "" {
		c.StorePath = v
	}
	if v := os.Getenv("DELPHI_STORE_IN_MEMORY"); v != "" {
		c.StoreInMemory, _ = strconv.ParseBool(v)
	}
	if v := os.Getenv("DELPHI_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("DELPHI_API_KEY"); v != "" {
		c.APIKey = v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		c.OTLPEndpoint = v
	}
	if v := os.Getenv("DELPHI_RESOLVER_MODE"); v != "" {
		c.ResolverMode = v
	}
}

// SlogLevel converts LogLevel to a slog.Level, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WatchLogLevel watches the config file and calls onChange with the new
// level whenever the file is rewritten with a different log_level. The
// watcher stops when stop is closed. Watch failures are logged and the
// service keeps its startup level.
func WatchLogLevel(path string, logger *slog.Logger, stop <-chan struct{}, onChange func(slog.Level)) {
	if path == "" {
		return
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warn("config watcher unavailable", "error", err)
		return
	}
	if err := watcher.Add(path); err != nil {
		logger.Warn("cannot watch config file", "path", path, "error", err)
		watcher.Close()
		return
	}

	go func() {
		defer watcher.Close()
		current := ""
		for {
			select {
			case <-stop:
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				cfg, err := Load(path)
				if err != nil {
					logger.Warn("ignoring malformed config update", "error", err)
					continue
				}
				if cfg.LogLevel == current {
					continue
				}
				current = cfg.LogLevel
				logger.Info("log level updated", "level", cfg.LogLevel)
				onChange(cfg.SlogLevel())
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("config watcher error", "error", err)
			}
		}
	}()
}
