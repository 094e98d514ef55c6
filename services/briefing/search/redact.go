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
	"regexp"
	"strings"
)

// redactionPattern pairs a compiled pattern with its replacement.
type redactionPattern struct {
	pattern     *regexp.Regexp
	replacement string
}

// redactionPatterns is applied in order to every outbound search query
// and to every query string that reaches a log line.
//
// IMPORTANT: Order matters. Specific patterns (bearer tokens, provider
// key formats) must run before the general key=value pattern, which
// would otherwise consume part of the match and leave fragments behind.
var redactionPatterns = []redactionPattern{
	// Authorization headers pasted into a query.
	{regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9\-._~+/]+=*`), "[REDACTED]"},
	// Provider-style secret keys (OpenAI, Anthropic, Tavily).
	{regexp.MustCompile(`\b(?:sk|tvly)-[a-zA-Z0-9\-_]{16,}\b`), "[REDACTED_KEY]"},
	// AWS access key IDs.
	{regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`), "[REDACTED_KEY]"},
	// Generic credential assignments: api_key=..., token: ...
	{regexp.MustCompile(`(?i)\b(api[_-]?key|apikey|token|secret|password|passwd|pwd)\s*[:=]\s*\S+`), "$1=[REDACTED]"},
	// Email addresses.
	{regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`), "[REDACTED_EMAIL]"},
	// North-American phone numbers.
	{regexp.MustCompile(`\b(?:\+?1[-.\s]?)?\(?\d{3}\)?[-.\s]\d{3}[-.\s]\d{4}\b`), "[REDACTED_PHONE]"},
}

// SanitizeQuery strips credentials and personal identifiers from a
// query before it leaves the process.
//
// # Description
//
// Sub-queries are model-generated from user input, so anything the
// user typed (including a pasted API key or their email address) can
// end up inside one. The search provider is an external service;
// nothing matching a known secret or PII shape may be sent to it.
//
// # Limitations
//
// Pattern-based redaction cannot catch free-form secrets ("my password
// is hunter2"). It covers structured formats only; the egress audit
// log records the sanitized form so operators can review what was
// actually sent.
func SanitizeQuery(query string) string {
	out := query
	for _, p := range redactionPatterns {
		out = p.pattern.ReplaceAllString(out, p.replacement)
	}
	// Redaction can leave doubled spaces behind.
	return strings.Join(strings.Fields(out), " ")
}

// SafeLogString redacts a string for logging. Identical pattern set to
// SanitizeQuery but preserves original spacing so log lines stay
// readable next to their inputs.
func SafeLogString(s string) string {
	out := s
	for _, p := range redactionPatterns {
		out = p.pattern.ReplaceAllString(out, p.replacement)
	}
	return out
}
