// Package utils holds small cross-cutting helpers: CSV field parsing and
// the temperament parameter mappings.
package utils

import "strings"

// ParseCSV splits a comma-separated value list into trimmed, non-empty
// fields. "EU, US," yields ["EU", "US"]; an input with no fields yields nil.
func ParseCSV(s string) []string {
	var out []string
	for _, field := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(field); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
