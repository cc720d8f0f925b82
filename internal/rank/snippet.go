package rank

import "unicode"

// snippetRadius is the number of bytes extracted on either side of a brand
// mention before word-boundary snapping.
const snippetRadius = 200

// extractSnippet returns a ±snippetRadius window around the byte position
// in text, snapped outward past any in-word characters and then past
// whitespace so the snippet never begins or ends mid-word. "..." is
// prepended/appended only when the snippet was actually truncated relative
// to the text boundary. position must be a valid byte offset into text, as
// produced by regexp.FindStringIndex.
func extractSnippet(text string, position int) string {
	n := len(text)
	if position < 0 || position > n {
		return ""
	}

	rawStart := position - snippetRadius
	if rawStart < 0 {
		rawStart = 0
	}
	rawEnd := position + snippetRadius
	if rawEnd > n {
		rawEnd = n
	}

	start := rawStart
	if rawStart > 0 {
		start = snapBackward(text, rawStart)
	}
	end := rawEnd
	if rawEnd < n {
		end = snapForward(text, rawEnd)
	}
	if end < start {
		end = start
	}

	snippet := trimSpaceBytes(text[start:end])

	if start > 0 {
		snippet = "..." + snippet
	}
	if end < n {
		snippet = snippet + "..."
	}
	return snippet
}

// snapForward moves pos forward past any in-word bytes, then past any
// whitespace, landing on the next word boundary.
func snapForward(text string, pos int) int {
	n := len(text)
	for pos < n && !unicode.IsSpace(rune(text[pos])) {
		pos++
	}
	for pos < n && unicode.IsSpace(rune(text[pos])) {
		pos++
	}
	return pos
}

// snapBackward moves pos backward past any in-word bytes, then past any
// whitespace, landing on the previous word boundary.
func snapBackward(text string, pos int) int {
	for pos > 0 && !unicode.IsSpace(rune(text[pos-1])) {
		pos--
	}
	for pos > 0 && unicode.IsSpace(rune(text[pos-1])) {
		pos--
	}
	return pos
}

func trimSpaceBytes(s string) string {
	start, end := 0, len(s)
	for start < end && unicode.IsSpace(rune(s[start])) {
		start++
	}
	for end > start && unicode.IsSpace(rune(s[end-1])) {
		end--
	}
	return s[start:end]
}
