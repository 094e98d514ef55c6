// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package search provides the web evidence retrieval port for the
// briefing workflow: a Tavily-backed client, a BadgerDB result cache,
// query redaction, and BM25 relevance ranking of returned snippets.
//
// The research stage is the only consumer. It treats every error from
// this package as a per-sub-query failure: the failing sub-query is
// skipped and the run continues on whatever evidence the remaining
// sub-queries produce.
package search

import (
	"context"
	"errors"
)

// DefaultMaxResults is the per-query result budget when the caller
// passes zero.
const DefaultMaxResults = 5

// ErrSearchUnavailable wraps every transport and provider failure
// surfaced by a Client. Callers branch on this one sentinel.
var ErrSearchUnavailable = errors.New("search unavailable")

// Result is one retrieved evidence snippet. Source is the locator
// (URL) the snippet came from and always travels with the content.
type Result struct {
	Content string  `json:"content"`
	Source  string  `json:"source"`
	Title   string  `json:"title,omitempty"`
	Score   float64 `json:"score,omitempty"`
}

// Client is the search port.
//
// Thread Safety: implementations must be safe for concurrent use; the
// research stage fans out several searches at once.
type Client interface {
	// Search runs one query and returns up to maxResults snippets
	// (DefaultMaxResults when maxResults <= 0). Errors always match
	// ErrSearchUnavailable via errors.Is.
	Search(ctx context.Context, query string, maxResults int) ([]Result, error)
}
