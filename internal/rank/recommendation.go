package rank

import (
	"fmt"
	"regexp"
)

// recommendationPatternTemplates hold %s in place of the brand's escaped
// name; each is compiled per-brand with (?i) case-insensitive and (?m)
// multiline so `^` anchors at line starts for the numbered-list pattern.
var recommendationPatternTemplates = []string{
	`(?:recommend|recommends|recommended)\s+(?:the\s+)?%s`,
	`%s\s+is\s+(?:the\s+)?(?:best|top|leading|number[- ]?one|#1|great|excellent|ideal)`,
	`(?:top\s+pick|best\s+(?:choice|option|pick)|our\s+(?:pick|choice|recommendation))[\s:]*%s`,
	`(?:^|\n)\s*\d+[.):\s]+%s`,
	`(?:first|top)\s+(?:on\s+(?:the|our)\s+list|recommendation|choice).*?%s`,
	`%s.*?(?:stands?\s+out|leads?\s+the\s+pack|comes?\s+out\s+on\s+top)`,
	`(?:we|i)\s+(?:suggest|pick|choose|prefer)\s+(?:the\s+)?%s`,
}

// recommendationPatterns compiles the seven recommendation-detection
// patterns for a single brand, escaping the brand name literally.
func recommendationPatterns(brand string) []*regexp.Regexp {
	escaped := regexp.QuoteMeta(brand)
	patterns := make([]*regexp.Regexp, len(recommendationPatternTemplates))
	for i, tmpl := range recommendationPatternTemplates {
		patterns[i] = regexp.MustCompile(`(?im)` + fmt.Sprintf(tmpl, escaped))
	}
	return patterns
}

// isRecommended reports whether brand appears in a recommendation context
// anywhere in text.
func isRecommended(text, brand string) bool {
	for _, pattern := range recommendationPatterns(brand) {
		if pattern.MatchString(text) {
			return true
		}
	}
	return false
}
