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

// CloudLifecycleManager implements ModelLifecycleManager for cloud
// providers (OpenAI, Anthropic).
//
// Description:
//
//	Cloud models have no VRAM lifecycle, so WarmModel degenerates to a
//	one-token connectivity and auth probe and UnloadModel is a no-op.
//	IsLocal() false tells the warmup path to skip the load dance.
//
// Thread Safety: CloudLifecycleManager is safe for concurrent use.
type CloudLifecycleManager struct {
	client   ChatClient
	provider string
}

// NewCloudLifecycleManager creates a lifecycle manager that probes the
// given client.
func NewCloudLifecycleManager(client ChatClient, provider string) *CloudLifecycleManager {
	return &CloudLifecycleManager{client: client, provider: provider}
}

// WarmModel validates connectivity and credentials with a minimal
// completion.
func (m *CloudLifecycleManager) WarmModel(ctx context.Context, model string, _ WarmupOptions) error {
	if m.client == nil {
		return fmt.Errorf("%s lifecycle: client is nil", m.provider)
	}
	_, err := m.client.Chat(ctx, []Message{
		{Role: MessageRoleUser, Content: "Reply with OK."},
	}, ChatOptions{Temperature: 0.0, MaxTokens: 4, Model: model})
	if err != nil {
		return fmt.Errorf("%s auth probe failed: %w", m.provider, err)
	}
	return nil
}

// UnloadModel is a no-op for cloud providers.
func (m *CloudLifecycleManager) UnloadModel(ctx context.Context, model string) error {
	return nil
}

// IsLocal returns false: no local GPU resources to manage.
func (m *CloudLifecycleManager) IsLocal() bool { return false }
