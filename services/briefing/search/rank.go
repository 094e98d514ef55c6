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
	"math"
	"sort"
	"strings"
	"unicode"
)

// =============================================================================
// BM25 snippet ranking
// =============================================================================

// BM25 tuning constants. Standard values recommended by Robertson et al.
const (
	// bm25K1 controls term frequency saturation. Higher = slower saturation.
	// Range [1.2, 2.0] is typical. 1.5 is a robust middle ground.
	bm25K1 = 1.5

	// bm25B controls document length normalization.
	// 0 = no normalization, 1 = full normalization. 0.75 is the standard default.
	bm25B = 0.75
)

// stopwords are dropped during tokenization. Kept deliberately small:
// over-aggressive stopword lists hurt short political queries where
// words like "against" carry signal.
var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true,
	"at": true, "be": true, "by": true, "for": true, "from": true,
	"in": true, "is": true, "it": true, "of": true, "on": true,
	"or": true, "that": true, "the": true, "to": true, "was": true,
	"what": true, "which": true, "with": true,
}

// tokenize lowercases s and splits on any non-letter, non-digit rune,
// dropping stopwords and single-character tokens.
func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if len(f) < 2 || stopwords[f] {
			continue
		}
		out = append(out, f)
	}
	return out
}

// RankResults orders snippets by BM25 relevance to the query and
// returns at most limit of them.
//
// # Description
//
// Search providers return results ranked for their own notion of the
// query; after deduplication and cross-sub-query merging that ordering
// is gone. This re-scores every snippet against the originating user
// query with Okapi BM25 (true term frequencies, Lucene-style IDF
// smoothing) so the synthesis context leads with the evidence most
// related to what the user actually asked.
//
// Snippets scoring zero (no query term overlap) sort after all scored
// snippets but are not removed: an adversarial sub-query's results
// rarely share terms with the user query, and dropping them would
// defeat the point of gathering them. Ties keep their input order.
//
// # Inputs
//   - query: the originating user query, not a sub-query.
//   - results: merged snippets from all sub-queries.
//   - limit: maximum snippets to return. <= 0 means no limit.
//
// # Outputs
//   - []Result: a new slice, ranked, length <= limit.
func RankResults(query string, results []Result, limit int) []Result {
	if len(results) == 0 {
		return nil
	}

	queryTerms := tokenize(query)
	scored := make([]struct {
		idx   int
		score float64
	}, len(results))

	if len(queryTerms) > 0 {
		docs := make([]map[string]int, len(results))
		df := make(map[string]int)
		totalLen := 0
		lens := make([]int, len(results))

		for i, r := range results {
			terms := tokenize(r.Title + " " + r.Content)
			tf := make(map[string]int, len(terms))
			for _, t := range terms {
				tf[t]++
			}
			docs[i] = tf
			lens[i] = len(terms)
			totalLen += len(terms)
			for t := range tf {
				df[t]++
			}
		}

		n := len(results)
		avgLen := float64(totalLen) / float64(n)
		if avgLen == 0 {
			avgLen = 1
		}

		// Lucene-style smoothing: log((N+1)/(df+1)) + 1, always >= 1.
		idf := make(map[string]float64, len(df))
		for t, d := range df {
			idf[t] = math.Log(float64(n+1)/float64(d+1)) + 1.0
		}

		for i := range results {
			dl := float64(lens[i])
			var score float64
			for _, t := range queryTerms {
				tf, ok := docs[i][t]
				if !ok {
					continue
				}
				tfF := float64(tf)
				numerator := tfF * (bm25K1 + 1)
				denominator := tfF + bm25K1*(1.0-bm25B+bm25B*dl/avgLen)
				score += idf[t] * (numerator / denominator)
			}
			scored[i] = struct {
				idx   int
				score float64
			}{i, score}
		}
	} else {
		for i := range results {
			scored[i] = struct {
				idx   int
				score float64
			}{i, 0}
		}
	}

	sort.SliceStable(scored, func(a, b int) bool {
		return scored[a].score > scored[b].score
	})

	if limit <= 0 || limit > len(scored) {
		limit = len(scored)
	}
	out := make([]Result, 0, limit)
	for _, s := range scored[:limit] {
		out = append(out, results[s.idx])
	}
	return out
}

// Dedupe removes snippets whose (source, content) pair already
// appeared, preserving first-seen order. Sub-queries about the same
// topic routinely return the same page.
func Dedupe(results []Result) []Result {
	seen := make(map[string]bool, len(results))
	out := make([]Result, 0, len(results))
	for _, r := range results {
		key := r.Source + "\x00" + r.Content
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, r)
	}
	return out
}
