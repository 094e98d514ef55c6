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
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/Poliscope/services/briefing/config"
)

// initOut and initForce hold flag values for the init command.
var (
	initOut   string
	initForce bool
)

func newInitCommand() *cobra.Command {
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Interactively write a briefing server config file",
		Long: `Walks through the server settings and writes a config YAML.

Start the server against it with: ./briefing --config <file>`,
		Args: cobra.NoArgs,
		Run:  runInitCommand,
	}
	initCmd.Flags().StringVar(&initOut, "out", "", "output path (default ~/.poliscope/config.yaml)")
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing file")
	return initCmd
}

func runInitCommand(_ *cobra.Command, _ []string) {
	outPath := initOut
	if outPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			log.Fatalf("cannot resolve home directory: %v", err)
		}
		outPath = filepath.Join(home, ".poliscope", "config.yaml")
	}
	if !initForce {
		if _, err := os.Stat(outPath); err == nil {
			log.Fatalf("%s already exists; use --force to overwrite", outPath)
		}
	}

	cfg, err := config.Load(nil)
	if err != nil {
		log.Fatalf("loading default configuration: %v", err)
	}

	port := strconv.Itoa(cfg.Server.Port)
	dataDir := cfg.Storage.DataDir
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Server port").
				Value(&port).
				Validate(func(s string) error {
					n, err := strconv.Atoi(s)
					if err != nil || n < 1 || n > 65535 {
						return fmt.Errorf("port must be 1-65535")
					}
					return nil
				}),
			huh.NewInput().
				Title("Data directory").
				Description("Leave empty for ~/.poliscope/data").
				Value(&dataDir),
			huh.NewConfirm().
				Title("In-memory storage?").
				Description("Discards cache and transcripts on restart").
				Value(&cfg.Storage.InMemory),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("InfluxDB URL").
				Description("Leave empty to disable run telemetry").
				Value(&cfg.Telemetry.InfluxURL),
			huh.NewInput().
				Title("GCS bucket").
				Description("Leave empty to disable transcript archiving").
				Value(&cfg.Archive.GCSBucket),
			huh.NewConfirm().
				Title("Debug logging?").
				Value(&cfg.Server.Debug),
		),
	)
	if err := form.Run(); err != nil {
		log.Fatalf("aborted: %v", err)
	}

	cfg.Server.Port, _ = strconv.Atoi(port)
	cfg.Storage.DataDir = dataDir

	encoded, err := yaml.Marshal(cfg)
	if err != nil {
		log.Fatalf("encoding configuration: %v", err)
	}
	// Round-trip through the loader so a file we refuse to start on is
	// never written.
	if _, err := config.Load(encoded); err != nil {
		log.Fatalf("generated configuration is invalid: %v", err)
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		log.Fatalf("creating %s: %v", filepath.Dir(outPath), err)
	}
	if err := os.WriteFile(outPath, encoded, 0o644); err != nil {
		log.Fatalf("writing %s: %v", outPath, err)
	}

	fmt.Printf("Wrote %s\n", outPath)
	fmt.Printf("Start the server with: ./briefing --config %s\n", outPath)
}
