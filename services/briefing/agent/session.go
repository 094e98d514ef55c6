// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package agent

import (
	"sort"
	"sync"
	"time"
)

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// RunRecord is the session view of one run: enough for status polling
// and listings without loading the persisted transcript.
type RunRecord struct {
	ID        string     `json:"id"`
	Query     string     `json:"query"`
	Status    RunStatus  `json:"status"`
	StartedAt time.Time  `json:"started_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	Error     string     `json:"error,omitempty"`
	Result    *RunResult `json:"result,omitempty"`
}

// SessionStore tracks live and recently finished runs.
//
// Thread Safety: implementations must be safe for concurrent use; the
// HTTP handlers read while run goroutines write.
type SessionStore interface {
	// Put inserts or replaces a record.
	Put(rec RunRecord)

	// Get returns the record for id.
	Get(id string) (RunRecord, bool)

	// List returns records sorted newest-first, at most limit
	// (unlimited when limit <= 0).
	List(limit int) []RunRecord

	// Delete removes a record, reporting whether it existed.
	Delete(id string) bool
}

// defaultSessionCap bounds in-memory retention. Finished runs past the
// cap are evicted oldest-first; running entries are never evicted.
const defaultSessionCap = 256

// InMemorySessionStore is the default SessionStore.
//
// Thread Safety: safe for concurrent use.
type InMemorySessionStore struct {
	mu   sync.RWMutex
	runs map[string]RunRecord
	cap  int
}

// NewInMemorySessionStore creates a store retaining at most capacity
// finished runs (defaultSessionCap when capacity <= 0).
func NewInMemorySessionStore(capacity int) *InMemorySessionStore {
	if capacity <= 0 {
		capacity = defaultSessionCap
	}
	return &InMemorySessionStore{
		runs: make(map[string]RunRecord),
		cap:  capacity,
	}
}

// Put implements SessionStore.
func (s *InMemorySessionStore) Put(rec RunRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.UpdatedAt = time.Now().UTC()
	s.runs[rec.ID] = rec
	s.evictLocked()
}

// Get implements SessionStore.
func (s *InMemorySessionStore) Get(id string) (RunRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.runs[id]
	return rec, ok
}

// List implements SessionStore.
func (s *InMemorySessionStore) List(limit int) []RunRecord {
	s.mu.RLock()
	out := make([]RunRecord, 0, len(s.runs))
	for _, rec := range s.runs {
		out = append(out, rec)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Delete implements SessionStore.
func (s *InMemorySessionStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.runs[id]
	delete(s.runs, id)
	return ok
}

// evictLocked drops the oldest finished runs above the cap. Caller
// holds the write lock.
func (s *InMemorySessionStore) evictLocked() {
	finished := 0
	for _, rec := range s.runs {
		if rec.Status != RunStatusRunning {
			finished++
		}
	}
	if finished <= s.cap {
		return
	}

	type aged struct {
		id string
		at time.Time
	}
	candidates := make([]aged, 0, finished)
	for id, rec := range s.runs {
		if rec.Status != RunStatusRunning {
			candidates = append(candidates, aged{id, rec.StartedAt})
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].at.Before(candidates[j].at)
	})
	for _, c := range candidates[:finished-s.cap] {
		delete(s.runs, c.id)
	}
}
