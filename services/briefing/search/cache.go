// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// =============================================================================
// Search result cache
// =============================================================================
//
// Problem: the fact-audit loop re-runs research over a largely identical
// plan, and interactive users repeat topical queries within the same news
// cycle. Every repeat costs a metered provider call and 1-30s of latency.
//
// Design choices:
//
//  1. BadgerDB, exact-match keys. Cache lookups here are exact (normalized
//     query + result budget); there is no similarity dimension, so an
//     embedded KV store beats anything with an index to maintain. Same
//     reasoning as the model-routing cache this store grew out of.
//
//  2. Short TTL by default (6h). Political evidence goes stale within a
//     news cycle. The TTL is enforced by badger itself via entry TTLs, so
//     expiry needs no sweeper.
//
//  3. gob encoding. Results are an internal Go type, never read by
//     another language. gob is compact and needs no schema upkeep.
//
//  4. Fail-open. A cache error is logged and the query falls through to
//     the live client. The cache must never make search less available.
//
// Key schema: research/v1/{sha256(normalized_query)[:16]}/{max_results}
// The version segment allows wholesale invalidation if the encoding or
// normalization ever changes.
// =============================================================================

package search

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/Poliscope/services/briefing/storage/badgerstore"
)

// CachePrefix is the key namespace for cached search results. The
// research_cache_dump tool iterates this prefix.
const CachePrefix = "research/v1/"

// DefaultCacheTTL bounds how long a cached result set is served.
const DefaultCacheTTL = 6 * time.Hour

// errCacheMiss signals a key not present or expired. Internal only;
// callers of CachedClient never see it.
var errCacheMiss = errors.New("search cache miss")

// CachedClient decorates a Client with a BadgerDB result cache.
//
// Thread Safety: safe for concurrent use; badger transactions provide
// isolation and the delegate is required to be concurrency-safe.
type CachedClient struct {
	delegate Client
	db       *badgerstore.DB
	ttl      time.Duration
	logger   *slog.Logger
}

// NewCachedClient wraps delegate with a cache over db. A zero ttl
// means DefaultCacheTTL.
func NewCachedClient(delegate Client, db *badgerstore.DB, ttl time.Duration, logger *slog.Logger) *CachedClient {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedClient{delegate: delegate, db: db, ttl: ttl, logger: logger}
}

// Search implements Client. Cache errors fall through to the live
// client; only delegate errors are returned.
func (c *CachedClient) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	key := cacheKey(query, maxResults)

	cached, err := c.lookup(ctx, key)
	if err == nil {
		recordCacheHit()
		c.logger.Debug("Search cache hit",
			slog.String("query", SafeLogString(query)),
			slog.Int("results", len(cached)))
		return cached, nil
	}
	if !errors.Is(err, errCacheMiss) {
		c.logger.Warn("Search cache read failed, falling through",
			slog.String("error", err.Error()))
	}
	recordCacheMiss()

	results, err := c.delegate.Search(ctx, query, maxResults)
	if err != nil {
		return nil, err
	}

	if storeErr := c.store(ctx, key, results); storeErr != nil {
		c.logger.Warn("Search cache write failed",
			slog.String("error", storeErr.Error()))
	}
	return results, nil
}

func (c *CachedClient) lookup(ctx context.Context, key []byte) ([]Result, error) {
	var raw []byte
	err := c.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return errCacheMiss
		}
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}

	var results []Result
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&results); err != nil {
		// A decode failure means a stale encoding; treat as miss so
		// the entry gets rewritten.
		return nil, fmt.Errorf("%w: stale encoding: %v", errCacheMiss, err)
	}
	return results, nil
}

func (c *CachedClient) store(ctx context.Context, key []byte, results []Result) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(results); err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	return c.db.WithTxn(ctx, func(txn *badger.Txn) error {
		entry := badger.NewEntry(key, buf.Bytes()).WithTTL(c.ttl)
		return txn.SetEntry(entry)
	})
}

// cacheKey derives the stable key for a query + budget pair.
func cacheKey(query string, maxResults int) []byte {
	sum := sha256.Sum256([]byte(normalizeQuery(query)))
	return []byte(fmt.Sprintf("%s%s/%d", CachePrefix, hex.EncodeToString(sum[:8]), maxResults))
}

// normalizeQuery folds case and whitespace so trivially different
// phrasings of the same sub-query share an entry.
func normalizeQuery(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}
