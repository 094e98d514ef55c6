// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package phases implements the seven stage executors of the briefing
// workflow. Each executor is a pure function of its state snapshot and
// the shared dependency bundle; all state mutation happens in the
// engine.
//
// Model output is hostile input. Both structured stages (classifier,
// planner) decode strictly and fall back locally on any parse failure,
// so malformed JSON can never take a run down.
package phases

import (
	"encoding/json"
	"fmt"
	"strings"
)

// StripCodeFences removes markdown code fences from model output.
//
// Description:
//
//	Instruction-tuned models routinely wrap JSON answers in ```json
//	fences despite being told not to. This is the one canonical
//	stripping rule, shared by every decoder: remove ```json and ```
//	markers wherever they appear, then trim surrounding whitespace.
//	Nothing else is repaired; output that is still malformed after
//	stripping is the caller's fallback case.
func StripCodeFences(s string) string {
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}

// classifierVerdict is the classifier's expected JSON shape.
type classifierVerdict struct {
	Category        string   `json:"category"`
	IsPolitical     bool     `json:"is_political"`
	PrimaryEntities []string `json:"primary_entities"`
}

// decodeClassifierVerdict parses the classifier's response.
//
// A missing is_political key decodes to false, which downstream reads
// as non-political; an undecodable response returns an error and the
// classifier fails closed to political instead. Unknown keys are
// ignored.
func decodeClassifierVerdict(raw string) (classifierVerdict, error) {
	var v classifierVerdict
	cleaned := StripCodeFences(raw)
	if cleaned == "" {
		return v, fmt.Errorf("empty classifier response")
	}
	if err := json.Unmarshal([]byte(cleaned), &v); err != nil {
		return v, fmt.Errorf("decoding classifier verdict: %w", err)
	}
	return v, nil
}

// decodePlanList parses the planner's response into sub-queries.
//
// Accepts only a JSON array of strings. Blank entries are dropped
// after trimming; an empty surviving list is an error so the caller
// falls back to searching the raw query.
func decodePlanList(raw string) ([]string, error) {
	cleaned := StripCodeFences(raw)
	if cleaned == "" {
		return nil, fmt.Errorf("empty planner response")
	}

	var entries []string
	if err := json.Unmarshal([]byte(cleaned), &entries); err != nil {
		return nil, fmt.Errorf("decoding plan list: %w", err)
	}

	plan := make([]string, 0, len(entries))
	for _, e := range entries {
		if q := strings.TrimSpace(e); q != "" {
			plan = append(plan, q)
		}
	}
	if len(plan) == 0 {
		return nil, fmt.Errorf("plan list contains no usable queries")
	}
	return plan, nil
}
