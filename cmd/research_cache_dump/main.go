// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// research_cache_dump inspects the briefing server's search result cache.
//
// The research stage caches provider results in BadgerDB so repair
// loops and repeated topical queries skip the metered search API. This
// tool opens the database read-only and prints a human-readable
// summary: keys, result budgets, TTL remaining, per-entry result
// counts, and the sources behind each cached set.
//
// Usage:
//
//	research_cache_dump [--path /path/to/data]
//
// If --path is not given, reads BRIEFING_DATA_DIR from the environment,
// falling back to ~/.poliscope/data.
//
// Exit codes:
//
//	0 — success (including "empty cache" which prints a message and exits 0)
//	1 — error opening or reading the database
package main

import (
	"bytes"
	"encoding/gob"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	dgbadger "github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/Poliscope/services/briefing/config"
	"github.com/AleutianAI/Poliscope/services/briefing/search"
)

func main() {
	pathFlag := flag.String("path", "", "Path to the BadgerDB data directory (overrides BRIEFING_DATA_DIR env var)")
	flag.Parse()

	dbPath := *pathFlag
	if dbPath == "" {
		dbPath = config.DefaultDataDir()
	}

	fmt.Printf("Research cache path: %s\n", dbPath)

	// Check existence before trying to open — gives a cleaner error message
	// than BadgerDB's "no such file or directory" buried in a long error.
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		fmt.Println("Data directory does not exist. The server has not yet cached any search results.")
		fmt.Println("Run a briefing with TAVILY_API_KEY set to populate the cache.")
		os.Exit(0)
	}

	// Open read-only so a running server keeps its lock semantics; this
	// tool never writes.
	opts := dgbadger.DefaultOptions(dbPath).
		WithLogger(nil). // suppress BadgerDB internal logs
		WithReadOnly(true)

	db, err := dgbadger.Open(opts)
	if err != nil {
		fatalf("open BadgerDB at %s: %v", dbPath, err)
	}
	defer func() { _ = db.Close() }()

	// Collect all entries under the research key prefix.
	type entry struct {
		key       string
		queryHash string
		budget    string
		expiresAt time.Time
		hasExpiry bool
		results   []search.Result
		rawSize   int
		decodeErr error
	}

	var entries []entry

	err = db.View(func(txn *dgbadger.Txn) error {
		iterOpts := dgbadger.DefaultIteratorOptions
		iterOpts.PrefetchValues = true
		it := txn.NewIterator(iterOpts)
		defer it.Close()

		prefix := []byte(search.CachePrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := string(item.Key())

			var e entry
			e.key = key
			e.queryHash, e.budget = splitCacheKey(key)

			// TTL: item.ExpiresAt() returns Unix seconds, 0 = no expiry.
			if expiresAt := item.ExpiresAt(); expiresAt > 0 {
				e.hasExpiry = true
				e.expiresAt = time.Unix(int64(expiresAt), 0)
			}

			raw, err := item.ValueCopy(nil)
			if err != nil {
				e.decodeErr = fmt.Errorf("copy value: %w", err)
				entries = append(entries, e)
				continue
			}
			e.rawSize = len(raw)

			results, err := gobDecode(raw)
			if err != nil {
				e.decodeErr = fmt.Errorf("gob decode: %w", err)
			} else {
				e.results = results
			}

			entries = append(entries, e)
		}
		return nil
	})
	if err != nil {
		fatalf("read BadgerDB: %v", err)
	}

	if len(entries) == 0 {
		fmt.Println("\nNo research cache entries found.")
		fmt.Println("Either every cached result has expired past its TTL, or no run has")
		fmt.Println("reached the research stage with a live search provider yet.")
		os.Exit(0)
	}

	fmt.Printf("\nFound %d research cache entr%s:\n", len(entries), plural(len(entries), "y", "ies"))
	fmt.Println(strings.Repeat("─", 80))

	var totalBytes, totalResults int
	for i, e := range entries {
		fmt.Printf("\n[%d] Key:        %s\n", i+1, e.key)
		fmt.Printf("    Query hash: %s\n", e.queryHash)
		fmt.Printf("    Budget:     %s result(s) requested\n", e.budget)

		if e.hasExpiry {
			remaining := time.Until(e.expiresAt)
			if remaining < 0 {
				fmt.Printf("    TTL:        EXPIRED (%s ago)\n", (-remaining).Round(time.Second))
			} else {
				fmt.Printf("    TTL:        %s remaining (expires %s)\n",
					remaining.Round(time.Second),
					e.expiresAt.Format("2006-01-02 15:04:05 MST"),
				)
			}
		} else {
			fmt.Printf("    TTL:        no expiry set\n")
		}

		fmt.Printf("    Raw size:   %s\n", formatBytes(e.rawSize))
		totalBytes += e.rawSize

		if e.decodeErr != nil {
			fmt.Printf("    DECODE ERROR: %v\n", e.decodeErr)
			continue
		}

		fmt.Printf("    Results:    %d cached\n", len(e.results))
		totalResults += len(e.results)

		for _, r := range e.results {
			score := ""
			if r.Score != 0 {
				score = fmt.Sprintf("  (score %.4f)", r.Score)
			}
			fmt.Printf("      - %s  [%s]%s\n", truncate(firstNonEmpty(r.Title, r.Content), 56), r.Source, score)
		}
	}

	fmt.Printf("\n%s\n", strings.Repeat("─", 80))
	fmt.Printf("Summary: %d entr%s, %d cached result(s), %s, cache path: %s\n",
		len(entries), plural(len(entries), "y", "ies"), totalResults, formatBytes(totalBytes), dbPath)
}

// splitCacheKey breaks research/v1/{hash}/{budget} into its hash and
// budget segments. Unparseable keys come back verbatim so they still
// get printed.
func splitCacheKey(key string) (hash, budget string) {
	rest := strings.TrimPrefix(key, search.CachePrefix)
	idx := strings.LastIndexByte(rest, '/')
	if idx < 0 {
		return rest, "?"
	}
	hash, budget = rest[:idx], rest[idx+1:]
	if _, err := strconv.Atoi(budget); err != nil {
		return rest, "?"
	}
	return hash, budget
}

// gobDecode deserializes a []search.Result. Must match the cache's
// encoding exactly.
func gobDecode(data []byte) ([]search.Result, error) {
	var results []search.Result
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&results); err != nil {
		return nil, err
	}
	return results, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return "(empty)"
}

// truncate bounds a snippet to n runes for single-line display.
func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-3]) + "..."
}

// formatBytes formats a byte count as a human-readable string.
func formatBytes(n int) string {
	switch {
	case n >= 1024*1024:
		return fmt.Sprintf("%.1f MB (%d bytes)", float64(n)/1024/1024, n)
	case n >= 1024:
		return fmt.Sprintf("%.1f KB (%d bytes)", float64(n)/1024, n)
	default:
		return fmt.Sprintf("%d bytes", n)
	}
}

// plural returns singular or plural suffix based on count.
func plural(n int, singular, pluralSuffix string) string {
	if n == 1 {
		return singular
	}
	return pluralSuffix
}

// fatalf prints to stderr and exits 1.
func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "research_cache_dump: "+format+"\n", args...)
	os.Exit(1)
}
