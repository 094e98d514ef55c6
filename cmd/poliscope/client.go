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
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// briefingRequest is the payload for POST /v1/briefings.
type briefingRequest struct {
	Query string `json:"query"`
}

// briefingResponse mirrors the server's completed-run body.
type briefingResponse struct {
	RunID         string         `json:"run_id"`
	FinalText     string         `json:"final_text"`
	WasRedirected bool           `json:"was_redirected"`
	RevisionCount int            `json:"revision_count"`
	Degraded      bool           `json:"degraded"`
	DegradedCause string         `json:"degraded_cause,omitempty"`
	StageVisits   map[string]int `json:"stage_visits"`
	DurationMS    int64          `json:"duration_ms"`
}

// serverError mirrors the server's uniform error body.
type serverError struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// runRecord mirrors one entry of GET /v1/briefings/runs.
type runRecord struct {
	ID        string    `json:"id"`
	Query     string    `json:"query"`
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Error     string    `json:"error,omitempty"`
	Result    *struct {
		Degraded      bool `json:"degraded"`
		WasRedirected bool `json:"was_redirected"`
		RevisionCount int  `json:"revision_count"`
	} `json:"result,omitempty"`
}

// listRunsResponse mirrors GET /v1/briefings/runs.
type listRunsResponse struct {
	Runs  []runRecord `json:"runs"`
	Count int         `json:"count"`
}

// sendBriefingRequest submits one query and blocks until the run
// completes. Degraded runs come back as results, not errors; the
// server only errors on contract violations and cancellation.
func sendBriefingRequest(baseURL, query string, timeout time.Duration) (briefingResponse, error) {
	var briefResp briefingResponse
	postBody, err := json.Marshal(briefingRequest{Query: query})
	if err != nil {
		return briefResp, fmt.Errorf("failed to create request body: %w", err)
	}

	briefingURL := fmt.Sprintf("%s/v1/briefings", baseURL)
	client := &http.Client{Timeout: timeout}
	resp, err := client.Post(briefingURL, "application/json", bytes.NewBuffer(postBody))
	if err != nil {
		return briefResp, fmt.Errorf("failed to reach briefing server at %s: %w", baseURL, err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return briefResp, fmt.Errorf("failed to read server response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var srvErr serverError
		if json.Unmarshal(bodyBytes, &srvErr) == nil && srvErr.Error != "" {
			return briefResp, fmt.Errorf("server returned %s (status %d): %s", srvErr.Code, resp.StatusCode, srvErr.Error)
		}
		return briefResp, fmt.Errorf("server returned an error (status %d): %s", resp.StatusCode, string(bodyBytes))
	}

	if err := json.Unmarshal(bodyBytes, &briefResp); err != nil {
		return briefResp, fmt.Errorf("failed to parse server response: %w", err)
	}
	return briefResp, nil
}

// fetchRuns lists recent runs from the server.
func fetchRuns(baseURL string, limit int) (listRunsResponse, error) {
	var list listRunsResponse
	runsURL := fmt.Sprintf("%s/v1/briefings/runs?limit=%d", baseURL, limit)

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Get(runsURL)
	if err != nil {
		return list, fmt.Errorf("failed to reach briefing server at %s: %w", baseURL, err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return list, fmt.Errorf("failed to read server response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return list, fmt.Errorf("server returned an error (status %d): %s", resp.StatusCode, string(bodyBytes))
	}
	if err := json.Unmarshal(bodyBytes, &list); err != nil {
		return list, fmt.Errorf("failed to parse runs response: %w", err)
	}
	return list, nil
}

// fetchReadiness probes GET /v1/briefings/ready. A warming-up server
// answers 503 with status "warming_up"; both are reported, not errors.
func fetchReadiness(baseURL string) (string, error) {
	readyURL := fmt.Sprintf("%s/v1/briefings/ready", baseURL)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(readyURL)
	if err != nil {
		return "", fmt.Errorf("failed to reach briefing server at %s: %w", baseURL, err)
	}
	defer resp.Body.Close()

	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("failed to parse readiness response: %w", err)
	}
	if body.Status == "" {
		return "", fmt.Errorf("server returned an empty readiness status (HTTP %d)", resp.StatusCode)
	}
	return body.Status, nil
}

// showSpinner displays the animation + latest stats until done closes.
func showSpinner(msg string, done chan bool, statsChan chan string) {
	chars := []string{"▖", "▘", "▝", "▗"}
	i := 0
	currentStats := "contacting server..."

	// Clear the cursor initially
	fmt.Print("\033[?25l")
	defer fmt.Print("\033[?25h") // Restore cursor on exit

	for {
		select {
		case <-done:
			return
		case s := <-statsChan:
			currentStats = s
		default:
			fmt.Printf("\r%s  %s... [%s] \033[K", chars[i%len(chars)], msg, currentStats)
			i++
			time.Sleep(100 * time.Millisecond)
		}
	}
}
