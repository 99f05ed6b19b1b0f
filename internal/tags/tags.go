// Package tags canonicalizes free-text tag lists.
package tags

import "strings"

// Normalize splits a comma separated list, trims and lowercases each entry
// and drops empty and repeated tags. The first occurrence wins, so order is
// preserved.
func Normalize(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, part := range parts {
		tag := strings.ToLower(strings.TrimSpace(part))
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}

// NormalizeAll applies Normalize to each element and merges the results.
func NormalizeAll(raw []string) []string {
	return Normalize(strings.Join(raw, ","))
}
