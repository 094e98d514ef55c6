// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package search

import (
	"context"
	"fmt"
)

// UnavailableClient is the search port for deployments without an API
// key. Every call fails with ErrSearchUnavailable, which the research
// stage absorbs per sub-query, so runs proceed on an empty evidence
// set instead of the service refusing to start.
type UnavailableClient struct {
	// Reason is appended to the error for diagnostics.
	Reason string
}

// Search implements Client.
func (c UnavailableClient) Search(context.Context, string, int) ([]Result, error) {
	reason := c.Reason
	if reason == "" {
		reason = "no search provider configured"
	}
	return nil, fmt.Errorf("%w: %s", ErrSearchUnavailable, reason)
}
