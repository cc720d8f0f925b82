package rank

import (
	"regexp"
	"sort"
)

// Go's regexp package (RE2) has no lookahead, unlike the reference pattern
// `\n(?=#{1,3}\s)` / `\n(?=\d+[.)]\s)`. Each boundary below is therefore
// matched as a full run (newline plus marker) and only the newline byte is
// actually cut; the marker text is left in place to start the next
// section. Blank-line boundaries consume the whole match.
var (
	blankLineRe  = regexp.MustCompile(`\n[ \t]*\n+`)
	headingRe    = regexp.MustCompile(`\n#{1,3} `)
	numberedRe   = regexp.MustCompile(`\n\d+[.)]\s`)
)

type cutRange struct {
	start, end int
}

// splitSections divides text into trimmed, non-empty sections, indexed
// from 0 in document order: on a blank line; a newline immediately
// followed by a markdown heading; or a newline immediately followed by a
// numbered-list item.
func splitSections(text string) []string {
	var cuts []cutRange
	for _, loc := range blankLineRe.FindAllStringIndex(text, -1) {
		cuts = append(cuts, cutRange{start: loc[0], end: loc[1]})
	}
	for _, loc := range headingRe.FindAllStringIndex(text, -1) {
		cuts = append(cuts, cutRange{start: loc[0], end: loc[0] + 1})
	}
	for _, loc := range numberedRe.FindAllStringIndex(text, -1) {
		cuts = append(cuts, cutRange{start: loc[0], end: loc[0] + 1})
	}
	sort.Slice(cuts, func(i, j int) bool { return cuts[i].start < cuts[j].start })

	var rawSections []string
	last := 0
	for _, c := range cuts {
		if c.start < last {
			continue // overlaps a cut already applied
		}
		rawSections = append(rawSections, text[last:c.start])
		last = c.end
	}
	rawSections = append(rawSections, text[last:])

	sections := make([]string, 0, len(rawSections))
	for _, s := range rawSections {
		trimmed := trimSpaceBytes(s)
		if trimmed != "" {
			sections = append(sections, trimmed)
		}
	}
	return sections
}
