// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package archive copies run transcripts to long-term object storage.
//
// The local BadgerDB is the working store; archiving is for retention
// past the local disk's lifetime. The service treats archiving as best
// effort, same as transcript saves.
package archive

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/AleutianAI/Poliscope/services/briefing/agent"
)

// GCSArchiver writes transcripts to a Google Cloud Storage bucket.
//
// Description:
//
//	Each transcript becomes one gzip-compressed JSON object named by
//	date and run ID, so a bucket listing doubles as a run calendar.
//	Credentials come from Application Default Credentials; tests pass
//	explicit client options instead.
//
// Thread Safety: safe for concurrent use.
type GCSArchiver struct {
	client *storage.Client
	bucket string
	prefix string
	logger *slog.Logger
}

// NewGCSArchiver opens a client against one bucket.
//
// Inputs:
//
//	ctx - Context for client construction. Must not be nil.
//	bucket - Target bucket name. Must not be empty.
//	prefix - Object name prefix. May be empty.
//	logger - Logger for diagnostic output. Defaults to slog.Default().
//	opts - Extra client options (endpoint overrides in tests).
//
// Outputs:
//
//	*GCSArchiver - The configured archiver.
//	error - Non-nil if the bucket is empty or the client fails to build.
func NewGCSArchiver(ctx context.Context, bucket, prefix string, logger *slog.Logger, opts ...option.ClientOption) (*GCSArchiver, error) {
	if bucket == "" {
		return nil, fmt.Errorf("archive: bucket must not be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("archive: creating storage client: %w", err)
	}
	return &GCSArchiver{
		client: client,
		bucket: bucket,
		prefix: prefix,
		logger: logger,
	}, nil
}

// ObjectName builds the archive object name for a run completed at t.
func ObjectName(prefix, runID string, t time.Time) string {
	return path.Join(prefix, t.UTC().Format("2006/01/02"), runID+".json.gz")
}

// Archive implements briefing.TranscriptArchiver.
//
// Description:
//
//	Serializes the transcript to gzip-compressed JSON and uploads it.
//	Re-archiving a run ID overwrites the previous object.
func (a *GCSArchiver) Archive(ctx context.Context, t *agent.Transcript) error {
	if t == nil || t.Result == nil {
		return fmt.Errorf("archive: transcript and result must not be nil")
	}

	name := ObjectName(a.prefix, t.RunID, t.Result.CompletedAt)
	w := a.client.Bucket(a.bucket).Object(name).NewWriter(ctx)
	w.ContentType = "application/gzip"

	gw := gzip.NewWriter(w)
	if err := json.NewEncoder(gw).Encode(t); err != nil {
		_ = gw.Close()
		_ = w.Close()
		return fmt.Errorf("archive: encoding transcript %s: %w", t.RunID, err)
	}
	if err := gw.Close(); err != nil {
		_ = w.Close()
		return fmt.Errorf("archive: compressing transcript %s: %w", t.RunID, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("archive: uploading %s: %w", name, err)
	}

	a.logger.Info("transcript archived",
		slog.String("run_id", t.RunID),
		slog.String("object", name),
	)
	return nil
}

// Close releases the underlying client.
func (a *GCSArchiver) Close() error {
	return a.client.Close()
}
