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
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/Poliscope/services/briefing/storage/badgerstore"
)

// BadgerDB key layout for run transcripts.
const (
	// TranscriptPrefix scopes every transcript key. The inspector
	// binary and DropPrefix cleanup both rely on it.
	TranscriptPrefix = "runs/v1/"

	transcriptSuffixData = "/data"
	transcriptSuffixMeta = "/meta"

	// TranscriptSchemaVersion is bumped on incompatible Transcript
	// changes so old payloads can be skipped instead of misread.
	TranscriptSchemaVersion = "1"
)

// Transcript is the complete durable record of one run: the outcome
// plus the final workflow state with every message, plan entry,
// evidence snippet, and critique.
type Transcript struct {
	RunID      string         `json:"run_id"`
	Query      string         `json:"query"`
	Result     *RunResult     `json:"result"`
	FinalState *WorkflowState `json:"final_state"`
}

// TranscriptMetadata is the uncompressed summary stored alongside each
// transcript for cheap listing.
type TranscriptMetadata struct {
	// RunID is the workflow run identifier.
	RunID string `json:"run_id"`

	// Query is the user's original question.
	Query string `json:"query"`

	// WasRedirected reports whether the run took the redirect path.
	WasRedirected bool `json:"was_redirected"`

	// Degraded reports whether the run ended early on a dead
	// dependency.
	Degraded bool `json:"degraded"`

	// RevisionCount is the revision counter at completion.
	RevisionCount int `json:"revision_count"`

	// StepCount is the number of recorded hops.
	StepCount int `json:"step_count"`

	// CreatedAtMilli is when the transcript was saved (Unix
	// milliseconds UTC).
	CreatedAtMilli int64 `json:"created_at_milli"`

	// CompressedSize is the size of the gzip-compressed JSON payload
	// in bytes.
	CompressedSize int64 `json:"compressed_size"`

	// SchemaVersion is the transcript serialization version.
	SchemaVersion string `json:"schema_version"`
}

// TranscriptStore persists run transcripts in BadgerDB.
//
// Description:
//
//	Provides CRUD over transcripts stored as gzip-compressed JSON.
//	Saving is best effort from the service layer's point of view: a
//	failed save costs the debug trail, never the response.
//
// Key Schema:
//
//	runs/v1/{runID}/data → gzip(JSON(Transcript))
//	runs/v1/{runID}/meta → JSON(TranscriptMetadata)
//
// Thread Safety:
//
//	Safe for concurrent use. BadgerDB handles its own concurrency
//	control.
type TranscriptStore struct {
	db     *badgerstore.DB
	logger *slog.Logger
}

// NewTranscriptStore creates a store over an opened database.
//
// Inputs:
//
//	db - An opened badgerstore handle. Must not be nil.
//	logger - Logger for diagnostic output. Must not be nil.
//
// Outputs:
//
//	*TranscriptStore - The configured store.
//	error - Non-nil if db or logger is nil.
func NewTranscriptStore(db *badgerstore.DB, logger *slog.Logger) (*TranscriptStore, error) {
	if db == nil {
		return nil, fmt.Errorf("badger db must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}
	return &TranscriptStore{db: db, logger: logger}, nil
}

// Save persists one transcript.
//
// Description:
//
//	Serializes the transcript to JSON, gzip-compresses it, and writes
//	data and metadata in a single transaction. Saving the same run ID
//	twice overwrites the previous transcript.
//
// Inputs:
//
//	ctx - Context for cancellation. Must not be nil.
//	t - The transcript. Must carry a non-empty RunID and a Result.
//
// Outputs:
//
//	*TranscriptMetadata - Metadata about the saved transcript.
//	error - Non-nil if validation, serialization, or storage fails.
func (s *TranscriptStore) Save(ctx context.Context, t *Transcript) (*TranscriptMetadata, error) {
	if t == nil {
		return nil, fmt.Errorf("transcript must not be nil")
	}
	if t.RunID == "" {
		return nil, fmt.Errorf("transcript run ID must not be empty")
	}
	if t.Result == nil {
		return nil, fmt.Errorf("transcript result must not be nil")
	}

	jsonData, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("marshaling transcript: %w", err)
	}

	var compressed bytes.Buffer
	gw, err := gzip.NewWriterLevel(&compressed, gzip.BestCompression)
	if err != nil {
		return nil, fmt.Errorf("creating gzip writer: %w", err)
	}
	if _, err := gw.Write(jsonData); err != nil {
		return nil, fmt.Errorf("compressing transcript: %w", err)
	}
	if err := gw.Close(); err != nil {
		return nil, fmt.Errorf("closing gzip writer: %w", err)
	}
	compressedData := compressed.Bytes()

	meta := &TranscriptMetadata{
		RunID:          t.RunID,
		Query:          t.Query,
		WasRedirected:  t.Result.WasRedirected,
		Degraded:       t.Result.Degraded,
		RevisionCount:  t.Result.RevisionCount,
		StepCount:      len(t.Result.Steps),
		CreatedAtMilli: time.Now().UnixMilli(),
		CompressedSize: int64(len(compressedData)),
		SchemaVersion:  TranscriptSchemaVersion,
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("marshaling metadata: %w", err)
	}

	dataKey := TranscriptPrefix + t.RunID + transcriptSuffixData
	metaKey := TranscriptPrefix + t.RunID + transcriptSuffixMeta

	err = s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		if err := txn.Set([]byte(dataKey), compressedData); err != nil {
			return fmt.Errorf("storing data: %w", err)
		}
		if err := txn.Set([]byte(metaKey), metaJSON); err != nil {
			return fmt.Errorf("storing metadata: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("writing transcript to badger: %w", err)
	}

	s.logger.Info("transcript saved",
		slog.String("run_id", t.RunID),
		slog.Int("step_count", meta.StepCount),
		slog.Int64("compressed_size", meta.CompressedSize),
	)
	return meta, nil
}

// Load retrieves a transcript by run ID.
//
// Outputs:
//
//	*Transcript - The decompressed transcript.
//	*TranscriptMetadata - Its metadata.
//	error - Wraps badger.ErrKeyNotFound when the run is unknown.
func (s *TranscriptStore) Load(ctx context.Context, runID string) (*Transcript, *TranscriptMetadata, error) {
	if runID == "" {
		return nil, nil, fmt.Errorf("run ID must not be empty")
	}

	dataKey := TranscriptPrefix + runID + transcriptSuffixData
	metaKey := TranscriptPrefix + runID + transcriptSuffixMeta

	var compressedData []byte
	var metaJSON []byte
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(dataKey))
		if err != nil {
			return fmt.Errorf("reading data: %w", err)
		}
		compressedData, err = item.ValueCopy(nil)
		if err != nil {
			return fmt.Errorf("copying data: %w", err)
		}
		item, err = txn.Get([]byte(metaKey))
		if err != nil {
			return fmt.Errorf("reading metadata: %w", err)
		}
		metaJSON, err = item.ValueCopy(nil)
		if err != nil {
			return fmt.Errorf("copying metadata: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("loading transcript %s: %w", runID, err)
	}

	gr, err := gzip.NewReader(bytes.NewReader(compressedData))
	if err != nil {
		return nil, nil, fmt.Errorf("creating gzip reader: %w", err)
	}
	jsonData, err := io.ReadAll(gr)
	if err != nil {
		return nil, nil, fmt.Errorf("decompressing transcript: %w", err)
	}
	if err := gr.Close(); err != nil {
		return nil, nil, fmt.Errorf("closing gzip reader: %w", err)
	}

	var t Transcript
	if err := json.Unmarshal(jsonData, &t); err != nil {
		return nil, nil, fmt.Errorf("unmarshaling transcript: %w", err)
	}
	var meta TranscriptMetadata
	if err := json.Unmarshal(metaJSON, &meta); err != nil {
		return nil, nil, fmt.Errorf("unmarshaling metadata: %w", err)
	}
	return &t, &meta, nil
}

// List returns transcript metadata, newest first.
//
// Inputs:
//
//	ctx - Context for cancellation. Must not be nil.
//	limit - Maximum number of results. If <= 0, defaults to 100.
//
// Outputs:
//
//	[]*TranscriptMetadata - The matching transcripts.
//	error - Non-nil if the read fails.
func (s *TranscriptStore) List(ctx context.Context, limit int) ([]*TranscriptMetadata, error) {
	if limit <= 0 {
		limit = 100
	}

	var results []*TranscriptMetadata
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(TranscriptPrefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek([]byte(TranscriptPrefix)); it.Valid(); it.Next() {
			item := it.Item()
			key := string(item.Key())
			if !strings.HasSuffix(key, transcriptSuffixMeta) {
				continue
			}

			var meta TranscriptMetadata
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &meta)
			})
			if err != nil {
				s.logger.Warn("skipping corrupt transcript metadata",
					slog.String("key", key), slog.Any("error", err))
				continue
			}
			results = append(results, &meta)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing transcripts: %w", err)
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].CreatedAtMilli > results[j].CreatedAtMilli
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Delete removes a transcript's data and metadata. Deleting an unknown
// run ID is not an error.
func (s *TranscriptStore) Delete(ctx context.Context, runID string) error {
	if runID == "" {
		return fmt.Errorf("run ID must not be empty")
	}

	dataKey := TranscriptPrefix + runID + transcriptSuffixData
	metaKey := TranscriptPrefix + runID + transcriptSuffixMeta

	err := s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		if err := txn.Delete([]byte(dataKey)); err != nil && err != badger.ErrKeyNotFound {
			return fmt.Errorf("deleting data: %w", err)
		}
		if err := txn.Delete([]byte(metaKey)); err != nil && err != badger.ErrKeyNotFound {
			return fmt.Errorf("deleting metadata: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("deleting transcript %s: %w", runID, err)
	}

	s.logger.Info("transcript deleted", slog.String("run_id", runID))
	return nil
}
