// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package badgerstore wraps BadgerDB behind a small transactional API.
//
// Every persistent store in the briefing service (research cache, run
// transcripts) goes through this package rather than holding a raw
// *badger.DB. The wrapper adds context cancellation checks before each
// transaction and centralizes the open/close lifecycle so callers never
// deal with badger.Options directly.
//
// Thread Safety: DB is safe for concurrent use. BadgerDB serializes
// conflicting writes internally; readers never block writers.
package badgerstore

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	badger "github.com/dgraph-io/badger/v4"
)

// Config controls how the underlying BadgerDB instance is opened.
type Config struct {
	// Path is the on-disk directory for the database. Ignored when
	// InMemory is true.
	Path string

	// InMemory opens a database that lives only for the process
	// lifetime. Used by tests and by deployments that opt out of
	// persistence.
	InMemory bool

	// SyncWrites forces an fsync after every write transaction.
	// Defaults to false: cache and transcript data are reconstructible.
	SyncWrites bool

	// GCInterval is how often the value-log garbage collector runs.
	// Zero disables the background GC goroutine.
	GCInterval time.Duration
}

// DefaultConfig returns the production configuration. Callers set
// Path before passing the result to OpenDB.
func DefaultConfig() Config {
	return Config{
		SyncWrites: false,
		GCInterval: 10 * time.Minute,
	}
}

// InMemoryConfig returns a configuration for an ephemeral database.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// DB is a handle to an open BadgerDB instance.
type DB struct {
	db     *badger.DB
	gcStop chan struct{}
}

// OpenDB opens (creating if necessary) a BadgerDB instance described
// by cfg.
//
// # Description
//
// The badger-native logger is disabled; badger's internal chatter goes
// nowhere and operational events are emitted through slog by the
// callers instead. When cfg.GCInterval is non-zero a background
// goroutine runs value-log GC until Close is called.
//
// # Inputs
//   - cfg: open parameters. cfg.Path must be non-empty unless
//     cfg.InMemory is set.
//
// # Outputs
//   - *DB: open handle.
//   - error: non-nil if the directory cannot be created or badger
//     fails to open.
func OpenDB(cfg Config) (*DB, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, fmt.Errorf("badgerstore: config path is empty")
		}
		if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
			return nil, fmt.Errorf("badgerstore: create dir %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithLogger(nil).WithSyncWrites(cfg.SyncWrites)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badgerstore: open: %w", err)
	}

	d := &DB{db: db}
	if !cfg.InMemory && cfg.GCInterval > 0 {
		d.gcStop = make(chan struct{})
		go d.gcLoop(cfg.GCInterval)
	}
	return d, nil
}

// WithTxn runs fn inside a read-write transaction. The transaction is
// committed when fn returns nil and discarded otherwise. Returns
// ctx.Err() without starting the transaction if ctx is already done.
func (d *DB) WithTxn(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.db.Update(fn)
}

// WithReadTxn runs fn inside a read-only transaction. Returns
// ctx.Err() without starting the transaction if ctx is already done.
func (d *DB) WithReadTxn(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.db.View(fn)
}

// DropPrefix deletes every key under the given prefix. Used by the
// debug endpoints to clear a cache namespace without reopening the DB.
func (d *DB) DropPrefix(ctx context.Context, prefix []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.db.DropPrefix(prefix)
}

// Close stops the GC goroutine and closes the underlying database.
// Safe to call once; the process should call it on shutdown so badger
// can flush its memtables.
func (d *DB) Close() error {
	if d.gcStop != nil {
		close(d.gcStop)
	}
	return d.db.Close()
}

// gcLoop periodically reclaims value-log space. badger returns
// ErrNoRewrite when there is nothing to collect, which is the common
// case and not an error worth logging.
func (d *DB) gcLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-d.gcStop:
			return
		case <-ticker.C:
			err := d.db.RunValueLogGC(0.5)
			if err != nil && err != badger.ErrNoRewrite {
				slog.Warn("Badger value-log GC failed",
					slog.String("error", err.Error()))
			}
		}
	}
}
