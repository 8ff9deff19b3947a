package util

import "strings"

// SplitList splits a comma separated list, trimming blanks and dropping
// empty and repeated entries. Order of first appearance is kept.
func SplitList(s string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if _, dup := seen[part]; dup {
			continue
		}
		seen[part] = struct{}{}
		out = append(out, part)
	}
	return out
}

// NormalizeSymbol upper-cases and trims a single symbol.
func NormalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// NormalizeSymbols upper-cases symbols and drops blanks and duplicates.
func NormalizeSymbols(in []string) []string {
	return SplitList(strings.ToUpper(strings.Join(in, ",")))
}
