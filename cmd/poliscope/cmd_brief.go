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
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// briefTimeout and briefJSON hold flag values for the brief command.
var (
	briefTimeout time.Duration
	briefJSON    bool
)

func newBriefCommand() *cobra.Command {
	briefCmd := &cobra.Command{
		Use:   "brief [query]",
		Short: "Run one briefing and print the result",
		Long: `Submits a single query and waits for the full workflow to finish.

Examples:
  poliscope brief "What is the status of the federal budget negotiations?"
  poliscope brief --json "Summarize the recent Supreme Court term"`,
		Args: cobra.MinimumNArgs(1),
		Run:  runBriefCommand,
	}
	briefCmd.Flags().DurationVar(&briefTimeout, "timeout", 10*time.Minute, "how long to wait for the run")
	briefCmd.Flags().BoolVar(&briefJSON, "json", false, "print the raw response as JSON")
	return briefCmd
}

func runBriefCommand(_ *cobra.Command, args []string) {
	query := strings.TrimSpace(strings.Join(args, " "))
	if query == "" {
		log.Fatalf("Usage: poliscope brief <query>")
	}

	baseURL := getServerBaseURL()
	fmt.Printf("Briefing: %s\n", query)
	fmt.Println("---")

	done := make(chan bool)
	statsChan := make(chan string)
	go showSpinner("Researching", done, statsChan)

	result, err := sendBriefingRequest(baseURL, query, briefTimeout)
	done <- true
	fmt.Print("\r                                                \r")

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: briefing server unavailable or run failed at %s\n", baseURL)
		fmt.Fprintf(os.Stderr, "Start it with: ./briefing --port 8080\n")
		fmt.Fprintf(os.Stderr, "Or set POLISCOPE_SERVER_URL to override the default address.\n")
		log.Fatalf("briefing failed: %v", err)
	}

	if briefJSON {
		encoded, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			log.Fatalf("failed to encode result: %v", err)
		}
		fmt.Println(string(encoded))
		return
	}

	printBriefingResult(result)
}

// printBriefingResult renders one completed run for the terminal.
func printBriefingResult(result briefingResponse) {
	fmt.Printf("\n%s\n", result.FinalText)

	if result.WasRedirected {
		fmt.Println("\n(The query was classified as non-political and redirected.)")
	}
	if result.Degraded {
		cause := result.DegradedCause
		if cause == "" {
			cause = "provider failure"
		}
		fmt.Printf("\nWarning: degraded run (%s); the briefing above is the best available draft.\n", cause)
	}

	fmt.Printf("\n[run %s, %d revision(s), %s: %s]\n",
		result.RunID,
		result.RevisionCount,
		formatDuration(result.DurationMS),
		formatStageVisits(result.StageVisits))
}

// formatStageVisits renders the visit map deterministically, busiest
// stage first.
func formatStageVisits(visits map[string]int) string {
	if len(visits) == 0 {
		return "no stages recorded"
	}
	stages := make([]string, 0, len(visits))
	for stage := range visits {
		stages = append(stages, stage)
	}
	sort.Slice(stages, func(i, j int) bool {
		if visits[stages[i]] != visits[stages[j]] {
			return visits[stages[i]] > visits[stages[j]]
		}
		return stages[i] < stages[j]
	})
	parts := make([]string, 0, len(stages))
	for _, stage := range stages {
		parts = append(parts, fmt.Sprintf("%s x%d", stage, visits[stage]))
	}
	return strings.Join(parts, ", ")
}

func formatDuration(ms int64) string {
	d := time.Duration(ms) * time.Millisecond
	if d < time.Second {
		return fmt.Sprintf("%dms", ms)
	}
	return d.Round(100 * time.Millisecond).String()
}
