// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package providers

import (
	"context"
	"fmt"
)

// UnavailableChatClient is a ChatClient whose every call fails with
// ErrCompletionUnavailable.
//
// Description:
//
//	Used for degraded-mode wiring when no provider could be configured
//	at startup. The workflow still runs: gate stages take their local
//	fallbacks and the engine terminates synthesis-dependent runs early
//	instead of the whole service refusing to boot.
type UnavailableChatClient struct {
	// Reason explains why the provider is unavailable; included in
	// every returned error.
	Reason string
}

// Chat implements ChatClient by failing.
func (c UnavailableChatClient) Chat(context.Context, []Message, ChatOptions) (string, error) {
	reason := c.Reason
	if reason == "" {
		reason = "no provider configured"
	}
	return "", fmt.Errorf("%w: %s", ErrCompletionUnavailable, reason)
}
