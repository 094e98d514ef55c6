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
	"bufio"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

// chatPlain forces the line-oriented session even on a terminal.
var chatPlain bool

func newChatCommand() *cobra.Command {
	chatCmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive briefing session with live stage progress",
		Long: `Opens an interactive session against the briefing server.

On a terminal this runs a full-screen UI that streams stage progress
over the server's websocket as each run executes. When stdout is a
pipe (or with --plain) it falls back to a line-oriented prompt.`,
		Args: cobra.NoArgs,
		Run:  runChatCommand,
	}
	chatCmd.Flags().BoolVar(&chatPlain, "plain", false, "disable the full-screen UI")
	return chatCmd
}

func runChatCommand(_ *cobra.Command, _ []string) {
	baseURL := getServerBaseURL()

	if chatPlain || !isatty.IsTerminal(os.Stdout.Fd()) {
		runPlainChat(baseURL)
		return
	}

	p := tea.NewProgram(
		newChatModel(baseURL),
		tea.WithAltScreen(),
	)
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running session UI: %v\n", err)
		os.Exit(1)
	}
}

// runPlainChat is the non-TUI session loop: read a query, run it,
// print the briefing, repeat.
func runPlainChat(baseURL string) {
	fmt.Println("Poliscope interactive session. Type a political question, or 'exit' to leave.")
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		query := strings.TrimSpace(scanner.Text())
		if query == "" {
			continue
		}
		if query == "exit" || query == "quit" || query == "q" {
			fmt.Println("Goodbye.")
			break
		}

		done := make(chan bool)
		statsChan := make(chan string)
		go showSpinner("Researching", done, statsChan)

		result, err := sendBriefingRequest(baseURL, query, 10*time.Minute)
		done <- true
		fmt.Print("\r                                                \r")

		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			continue
		}
		printBriefingResult(result)
	}
	if err := scanner.Err(); err != nil {
		log.Fatalf("reading input: %v", err)
	}
}
