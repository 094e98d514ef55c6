// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command poliscope is the client for the briefing server. It can run
// one-shot briefings, hold an interactive session with live stage
// progress, inspect server status, and scaffold a server config file.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// serverFlag holds the --server flag value shared by every subcommand.
var serverFlag string

const defaultServerURL = "http://localhost:8080"

// getServerBaseURL resolves the briefing server address. Precedence:
// --server flag, POLISCOPE_SERVER_URL, compiled default.
func getServerBaseURL() string {
	if serverFlag != "" {
		return strings.TrimRight(serverFlag, "/")
	}
	if env := os.Getenv("POLISCOPE_SERVER_URL"); env != "" {
		return strings.TrimRight(env, "/")
	}
	return defaultServerURL
}

// newRootCommand wires the full command tree. Split out of main so the
// unit tests can execute commands without building a binary.
func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "poliscope",
		Short: "Client for the Poliscope briefing server",
		Long: `Poliscope turns political questions into researched, audited briefings.

The server runs the workflow (classify, plan, research, synthesize,
audit); this client submits queries and renders the results. Point it
at a server with --server or POLISCOPE_SERVER_URL.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&serverFlag, "server", "",
		fmt.Sprintf("briefing server base URL (default %s)", defaultServerURL))

	rootCmd.AddCommand(newBriefCommand())
	rootCmd.AddCommand(newChatCommand())
	rootCmd.AddCommand(newStatusCommand())
	rootCmd.AddCommand(newInitCommand())

	return rootCmd
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
