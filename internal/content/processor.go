// Package content turns raw platform output into clean, validated text or
// a typed QuarantineError describing why the scrape was unusable.
package content

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"
)

const (
	// maxContentChars bounds the cleaned text handed to downstream stages.
	maxContentChars = 10_000
	// minContentChars is the floor below which cleaned text is considered
	// insufficient to extract anything meaningful from.
	minContentChars = 50
	// errorPageMaxChars bounds how short cleaned text must be for an
	// error-page signature to quarantine it; longer pages that merely
	// mention these phrases in passing are not quarantined.
	errorPageMaxChars = 500
)

var (
	// RE2 has no backreferences, so script/style/noscript blocks are matched
	// as a flat alternation rather than `<(tag)>...</\1>`.
	scriptStyleRe = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>|<style[^>]*>.*?</style>|<noscript[^>]*>.*?</noscript>`)
	htmlTagRe     = regexp.MustCompile(`<[^>]+>`)
	htmlEntityRe  = regexp.MustCompile(`&[a-zA-Z]+;|&#\d+;`)
	copyrightRe   = regexp.MustCompile(`(?i)©\s*\d{4}`)
	multiSpaceRe  = regexp.MustCompile(`[ \t]{2,}`)
	multiNewlineRe = regexp.MustCompile(`\n{3,}`)
)

var boilerplateKeywords = []string{
	"skip to content", "skip to main",
	"cookie policy", "cookie consent", "cookie settings",
	"accept all cookies", "accept cookies",
	"privacy policy",
	"terms of service", "terms of use",
	"sign in", "sign up", "log in", "log out",
	"subscribe to", "newsletter",
	"advertisement", "sponsored",
	"all rights reserved",
}

var errorPageSignatures = []string{
	"access denied",
	"403 forbidden",
	"page not found",
	"404 not found",
	"captcha",
	"please verify you are a human",
	"rate limit exceeded",
	"too many requests",
}

// RawScrape is the unprocessed output of a platform fetch.
type RawScrape struct {
	URL        string
	Content    string
	HTTPStatus int
	ByteLength int
	Duration   time.Duration
	ScrapedAt  time.Time
}

// Processed is the cleaned, validated result of running a RawScrape through
// the content processor.
type Processed struct {
	CleanText   string
	SHA256      string
	CharCount   int
	URL         string
	HTTPStatus  int
	ScrapedAt   time.Time
	Duration    time.Duration
	SnapshotRef string // attached by the scraper after persisting a snapshot
}

// QuarantineError describes content that was deliberately rejected rather
// than treated as a transient failure; callers must not retry it.
type QuarantineError struct {
	Kind      string
	Detail    string
	RawPrefix string
}

func (e *QuarantineError) Error() string {
	return fmt.Sprintf("quarantine(%s): %s", e.Kind, e.Detail)
}

func quarantine(kind, detail, raw string) *QuarantineError {
	return &QuarantineError{Kind: kind, Detail: detail, RawPrefix: truncate(raw, 2000)}
}

// Process runs the ten-step cleaning pipeline against raw, returning either
// a Processed result or a *QuarantineError.
func Process(raw RawScrape) (Processed, error) {
	content := raw.Content

	if strings.TrimSpace(content) == "" {
		return Processed{}, quarantine("empty_content", "scrape returned empty content", content)
	}

	if raw.HTTPStatus >= 400 {
		return Processed{}, quarantine("http_error", fmt.Sprintf("HTTP %d", raw.HTTPStatus), content)
	}

	clean := stripHTML(content)
	clean = removeBoilerplate(clean)
	clean = collapseWhitespace(clean)

	// Step 7 runs before step 8 so short blocked-pages are attributed
	// correctly rather than as insufficient_content.
	if err := checkErrorPage(clean, content); err != nil {
		return Processed{}, err
	}

	if len(clean) < minContentChars {
		return Processed{}, quarantine("insufficient_content",
			fmt.Sprintf("content too short after cleaning: %d chars (min %d)", len(clean), minContentChars),
			content)
	}

	if len(clean) > maxContentChars {
		clean = clean[:maxContentChars]
	}

	sum := sha256.Sum256([]byte(clean))

	return Processed{
		CleanText:  clean,
		SHA256:     hex.EncodeToString(sum[:]),
		CharCount:  len(clean),
		URL:        raw.URL,
		HTTPStatus: raw.HTTPStatus,
		ScrapedAt:  raw.ScrapedAt,
		Duration:   raw.Duration,
	}, nil
}

func stripHTML(text string) string {
	text = scriptStyleRe.ReplaceAllString(text, "")
	text = htmlTagRe.ReplaceAllString(text, " ")
	text = htmlEntityRe.ReplaceAllString(text, " ")
	return text
}

func removeBoilerplate(text string) string {
	lines := strings.Split(text, "\n")
	filtered := make([]string, 0, len(lines))
	for _, line := range lines {
		lower := strings.ToLower(strings.TrimSpace(line))
		if containsAny(lower, boilerplateKeywords) {
			continue
		}
		if copyrightRe.MatchString(line) {
			continue
		}
		filtered = append(filtered, line)
	}
	return strings.Join(filtered, "\n")
}

func collapseWhitespace(text string) string {
	text = multiSpaceRe.ReplaceAllString(text, " ")
	lines := strings.Split(text, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed != "" {
			kept = append(kept, trimmed)
		}
	}
	text = strings.Join(kept, "\n")
	text = multiNewlineRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

func checkErrorPage(clean, raw string) error {
	lower := strings.ToLower(clean)
	for _, sig := range errorPageSignatures {
		if strings.Contains(lower, sig) && len(clean) < errorPageMaxChars {
			return quarantine("error_page", fmt.Sprintf("detected error page signature: %q", sig), raw)
		}
	}
	return nil
}

func containsAny(s string, substrs []string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
