// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"log"

	"github.com/spf13/cobra"
)

var (
	configPath string

	rootCmd = &cobra.Command{
		Use:   "delphi",
		Short: "A service that aggregates topic clustering output for the Aleutian console",
		Long: `Delphi reads clustering pipeline output (topics, assignments,
coordinates, narratives) from the local store and serves it as the
moderation and reporting API used by the console.`,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start the delphi HTTP server",
		Run:   runServe, // Defined in cmd_serve.go
	}

	seedCmd = &cobra.Command{
		Use:   "seed [fixture.yaml]",
		Short: "Load a YAML fixture into the store for local development",
		Args:  cobra.ExactArgs(1),
		Run:   runSeed, // Defined in cmd_seed.go
	}
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error executing command: %v", err)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml",
		"path to the delphi config file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(seedCmd)
}
