// Package strings provides helpers for comma separated header values.
package strings

import (
	"strings"
)

// DedupeAndTrim trims each element and drops empties and repeats, keeping
// first-seen order.
func DedupeAndTrim(values []string) []string {
	if len(values) == 0 {
		return values
	}

	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))

	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; !ok {
			seen[trimmed] = struct{}{}
			result = append(result, trimmed)
		}
	}

	return result
}

// SplitList splits a comma separated header value.
func SplitList(value string) []string {
	if value == "" {
		return nil
	}
	return strings.Split(value, ",")
}

// MergeHeaderList appends extra entries to a comma separated list of header
// names. Names compare case-insensitively and the first spelling wins.
//
// Example:
//
//	MergeHeaderList("Content-Type ,x-client-id", "X-Client-ID")
//	// Returns: "Content-Type, x-client-id"
func MergeHeaderList(value string, extra ...string) string {
	entries := DedupeAndTrim(append(SplitList(value), extra...))
	seen := make(map[string]struct{}, len(entries))
	merged := make([]string, 0, len(entries))
	for _, e := range entries {
		key := strings.ToLower(e)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		merged = append(merged, e)
	}
	return strings.Join(merged, ", ")
}
