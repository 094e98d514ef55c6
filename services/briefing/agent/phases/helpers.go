// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package phases

import (
	"fmt"
	"strings"

	"github.com/AleutianAI/Poliscope/services/briefing/agent"
)

// joinEvidence renders snippets in the citation format both the
// synthesizer and the fact critic consume: one "Source (url): content"
// block per snippet, blank-line separated.
func joinEvidence(snippets []agent.Snippet) string {
	parts := make([]string, 0, len(snippets))
	for _, s := range snippets {
		parts = append(parts, fmt.Sprintf("Source (%s): %s", s.Source, s.Content))
	}
	return strings.Join(parts, "\n\n")
}

// Pointer helpers for building deltas.
func strPtr(s string) *string { return &s }
func intPtr(n int) *int       { return &n }
func boolPtr(b bool) *bool    { return &b }
