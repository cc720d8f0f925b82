// Package rank deterministically assigns rank positions to tracked brands
// within cleaned AI-answer text: section splitting, recommendation
// detection, rank assignment, and word-boundary-safe snippet extraction.
package rank

import "regexp"

// BrandMatcher finds case-insensitive, whole-word occurrences of a fixed
// set of brand names in text. Patterns are compiled once per brand and
// reused across lookups.
type BrandMatcher struct {
	patterns map[string]*regexp.Regexp
}

// NewBrandMatcher compiles a word-boundary pattern for every brand.
func NewBrandMatcher(brands []string) *BrandMatcher {
	patterns := make(map[string]*regexp.Regexp, len(brands))
	for _, brand := range brands {
		patterns[brand] = regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(brand) + `\b`)
	}
	return &BrandMatcher{patterns: patterns}
}

// FirstPosition returns the byte offset of the first occurrence of brand in
// text, or -1 if brand does not occur (or was not part of the matcher's
// brand set).
func (m *BrandMatcher) FirstPosition(text, brand string) int {
	pattern, ok := m.patterns[brand]
	if !ok {
		return -1
	}
	loc := pattern.FindStringIndex(text)
	if loc == nil {
		return -1
	}
	return loc[0]
}

// MatchesSection reports whether brand occurs anywhere in section.
func (m *BrandMatcher) MatchesSection(section, brand string) bool {
	pattern, ok := m.patterns[brand]
	if !ok {
		return false
	}
	return pattern.MatchString(section)
}
