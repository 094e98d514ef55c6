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
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// statusLimit holds the --limit flag value for the status command.
var statusLimit int

func newStatusCommand() *cobra.Command {
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show server readiness and recent runs",
		Args:  cobra.NoArgs,
		Run:   runStatusCommand,
	}
	statusCmd.Flags().IntVar(&statusLimit, "limit", 10, "how many recent runs to list")
	return statusCmd
}

func runStatusCommand(_ *cobra.Command, _ []string) {
	baseURL := getServerBaseURL()

	readiness, err := fetchReadiness(baseURL)
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
	fmt.Printf("Server:    %s\n", baseURL)
	fmt.Printf("Readiness: %s\n", readiness)
	if readiness != "ready" {
		fmt.Println("The server is still warming up; new runs will be rejected with 503.")
	}

	list, err := fetchRuns(baseURL, statusLimit)
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
	if list.Count == 0 {
		fmt.Println("\nNo recorded runs.")
		return
	}

	fmt.Printf("\nRecent runs (%d):\n", list.Count)
	for _, rec := range list.Runs {
		fmt.Println(formatRunRecord(rec))
	}
}

// formatRunRecord renders one run as a single status line.
func formatRunRecord(rec runRecord) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "  %s  %-9s", rec.ID, rec.Status)

	if rec.Result != nil {
		switch {
		case rec.Result.WasRedirected:
			sb.WriteString("  redirected")
		case rec.Result.Degraded:
			sb.WriteString("  degraded")
		default:
			fmt.Fprintf(&sb, "  %d revision(s)", rec.Result.RevisionCount)
		}
	} else if rec.Error != "" {
		fmt.Fprintf(&sb, "  error: %s", rec.Error)
	}

	if !rec.StartedAt.IsZero() {
		fmt.Fprintf(&sb, "  %s", rec.StartedAt.Local().Format(time.DateTime))
	}
	fmt.Fprintf(&sb, "  %q", truncateQuery(rec.Query, 60))
	return sb.String()
}

func truncateQuery(query string, limit int) string {
	query = strings.TrimSpace(query)
	if len(query) <= limit {
		return query
	}
	return query[:limit-3] + "..."
}
