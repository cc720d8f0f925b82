package rank

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractSnippetWordBoundarySnapping(t *testing.T) {
	text := "word1 word2 word3 Acme word5 word6 word7"
	pos := strings.Index(text, "Acme")
	snippet := extractSnippet(text, pos)
	assert.NotEmpty(t, snippet)
	assert.False(t, strings.HasPrefix(snippet, " "))
	assert.False(t, strings.HasSuffix(snippet, " "))
}

func TestExtractSnippetPrependsEllipsisWhenTruncated(t *testing.T) {
	prefix := strings.Repeat("padding words here ", 30)
	text := prefix + "Acme is great " + strings.Repeat("more padding words ", 30)
	pos := strings.Index(text, "Acme")
	snippet := extractSnippet(text, pos)
	assert.True(t, strings.HasPrefix(snippet, "..."))
	assert.True(t, strings.HasSuffix(snippet, "..."))
}

func TestExtractSnippetNoEllipsisAtTextBoundary(t *testing.T) {
	text := "Acme"
	snippet := extractSnippet(text, 0)
	assert.Equal(t, "Acme", snippet)
}

func TestExtractSnippetOutOfRangePositionReturnsEmpty(t *testing.T) {
	assert.Empty(t, extractSnippet("short", -1))
	assert.Empty(t, extractSnippet("short", 100))
}
