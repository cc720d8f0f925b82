// Package scraper implements the per-platform AI-search scraper (C4):
// building a platform-specific search URL, calling the external
// scraper-as-a-service over HTTP, running the result through
// internal/content, and persisting the raw snapshot of accepted responses.
// Platform differences are expressed as a small tagged capability set rather than dynamic dispatch, matching
// spec.md §9's "polymorphism as data" design note.
package scraper

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/goccy/go-json"

	"github.com/levoit/visibilitypipeline/internal/content"
	"github.com/levoit/visibilitypipeline/internal/docstore"
	"github.com/levoit/visibilitypipeline/internal/logging"
	"github.com/levoit/visibilitypipeline/internal/metrics"
	"github.com/levoit/visibilitypipeline/internal/models"
)

// retryDelays are the fixed waits before attempts 2 and 3, per spec.md §9's
// "table-driven retry" design: 3 attempts total, no backoff growth.
var retryDelays = []time.Duration{5 * time.Second, 15 * time.Second}

// TransientError wraps a scrape failure that is safe to retry: network
// errors, non-2xx-but-not-quarantinable responses, breaker rejections.
type TransientError struct {
	Platform models.Platform
	Cause    error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient scrape error on %s: %v", e.Platform, e.Cause)
}

func (e *TransientError) Unwrap() error { return e.Cause }

// Platform is the capability set each supported AI search engine
// implements: a URL builder and a tag used in logs, metrics, and rate
// limiter keys.
type Platform interface {
	BuildSearchURL(query string) string
	PlatformTag() models.Platform
}

// chatGPTPlatform, perplexityPlatform, and googleAIPlatform are the three
// concrete capability sets spec.md §6 names. They carry no state beyond a
// base URL template, so a single small struct per platform is clearer than
// introducing a generic "template-driven" platform type.
type chatGPTPlatform struct{}

func (chatGPTPlatform) BuildSearchURL(query string) string {
	return "https://chatgpt.com/search?q=" + urlEscape(query)
}
func (chatGPTPlatform) PlatformTag() models.Platform { return models.PlatformChatGPT }

type perplexityPlatform struct{}

func (perplexityPlatform) BuildSearchURL(query string) string {
	return "https://www.perplexity.ai/search?q=" + urlEscape(query)
}
func (perplexityPlatform) PlatformTag() models.Platform { return models.PlatformPerplexity }

type googleAIPlatform struct{}

func (googleAIPlatform) BuildSearchURL(query string) string {
	return "https://www.google.com/search?q=" + urlEscape(query)
}
func (googleAIPlatform) PlatformTag() models.Platform { return models.PlatformGoogleAI }

// Platforms returns the three supported platform capability sets.
func Platforms() []Platform {
	return []Platform{chatGPTPlatform{}, perplexityPlatform{}, googleAIPlatform{}}
}

func urlEscape(s string) string {
	var buf bytes.Buffer
	for _, r := range s {
		if r == ' ' {
			buf.WriteByte('+')
			continue
		}
		buf.WriteRune(r)
	}
	return buf.String()
}

// scrapeRequest/scrapeResponse mirror the external scraper service's HTTP
// contract (spec.md §6): POST <base_url>/v1/scrape.
type scrapeRequest struct {
	URL     string   `json:"url"`
	Formats []string `json:"formats"`
}

type scrapeResponseData struct {
	Markdown string            `json:"markdown"`
	Content  string            `json:"content"`
	Metadata map[string]any    `json:"metadata"`
}

type scrapeResponse struct {
	Data scrapeResponseData `json:"data"`
}

// Client scrapes a single platform: HTTP call through a circuit breaker,
// wrapped in the spec's 3-attempt fixed-delay retry table. The raw response
// is persisted to the document store as a snapshot after content processing
// accepts it; a response that processing quarantines is written as a
// quarantine record and is not stored as a snapshot.
type Client struct {
	platform Platform
	http     *http.Client
	baseURL  string
	breaker  *gobreaker.CircuitBreaker[*content.RawScrape]
	docs     *docstore.Store
}

// NewClient builds a scraper Client for platform, calling baseURL (the
// external scraper-as-a-service) with the given timeout per request.
func NewClient(platform Platform, baseURL string, timeout time.Duration, docs *docstore.Store) *Client {
	tag := string(platform.PlatformTag())
	metrics.CircuitBreakerState.WithLabelValues(tag).Set(0)

	breaker := gobreaker.NewCircuitBreaker[*content.RawScrape](gobreaker.Settings{
		Name:        tag,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			fromStr, toStr := breakerStateString(from), breakerStateString(to)
			metrics.RecordCircuitBreakerTransition(name, fromStr, toStr, breakerStateValue(to))
			logging.Warn().Str("platform", name).Str("from", fromStr).Str("to", toStr).Msg("scraper circuit breaker state transition")
		},
	})

	return &Client{
		platform: platform,
		http:     &http.Client{Timeout: timeout},
		baseURL:  baseURL,
		breaker:  breaker,
		docs:     docs,
	}
}

// Scrape fetches query against the client's platform, retrying transient
// failures up to 3 attempts total with fixed delays (5s, 15s). A
// *content.QuarantineError is never retried: it indicates bad content, not
// a transient failure, per spec.md §9's "fail fast on content-validation
// errors" rule.
func (c *Client) Scrape(ctx context.Context, query string) (*content.Processed, error) {
	start := time.Now()
	tag := string(c.platform.PlatformTag())
	url := c.platform.BuildSearchURL(query)

	var lastErr error
	attempts := len(retryDelays) + 1
	for attempt := 0; attempt < attempts; attempt++ {
		raw, err := c.callOnce(ctx, url)
		if err == nil {
			processed, procErr := content.Process(*raw)
			if procErr != nil {
				var qErr *content.QuarantineError
				if errors.As(procErr, &qErr) {
					c.recordQuarantine(ctx, tag, query, raw, qErr)
					metrics.RecordScrapeAttempt(tag, "quarantined", time.Since(start))
					return nil, procErr
				}
				lastErr = procErr
			} else {
				rawSum := sha256.Sum256([]byte(raw.Content))
				snap, snapErr := c.docs.PutSnapshot(ctx, models.Snapshot{
					QueryText:   query,
					Platform:    c.platform.PlatformTag(),
					RawContent:  raw.Content,
					ContentHash: hex.EncodeToString(rawSum[:]),
					URL:         raw.URL,
					HTTPStatus:  raw.HTTPStatus,
					ByteLength:  raw.ByteLength,
					ScrapedAt:   raw.ScrapedAt,
				})
				if snapErr != nil {
					return nil, fmt.Errorf("persist snapshot: %w", snapErr)
				}
				processed.SnapshotRef = snap.ID
				metrics.RecordScrapeAttempt(tag, "success", time.Since(start))
				return &processed, nil
			}
		} else {
			lastErr = err
		}

		if attempt < len(retryDelays) {
			metrics.RecordScrapeRetry(tag)
			logging.Warn().Str("platform", tag).Int("attempt", attempt+1).Err(lastErr).Msg("scrape attempt failed, retrying")
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryDelays[attempt]):
			}
		}
	}

	metrics.RecordScrapeAttempt(tag, "transient_error", time.Since(start))
	return nil, &TransientError{Platform: c.platform.PlatformTag(), Cause: lastErr}
}

func (c *Client) recordQuarantine(ctx context.Context, tag, query string, raw *content.RawScrape, qErr *content.QuarantineError) {
	metrics.RecordQuarantine(tag, qErr.Kind)
	_, err := c.docs.PutQuarantine(ctx, models.QuarantineRecord{
		ErrorKind:   qErr.Kind,
		ErrorDetail: qErr.Detail,
		RawPrefix:   qErr.RawPrefix,
		Platform:    c.platform.PlatformTag(),
		Timestamp:   time.Now().UTC(),
	})
	if err != nil {
		logging.Error().Err(err).Str("platform", tag).Str("query", query).Msg("failed to persist quarantine record")
	}
}

func (c *Client) callOnce(ctx context.Context, url string) (*content.RawScrape, error) {
	result, err := c.breaker.Execute(func() (*content.RawScrape, error) {
		return c.doHTTP(ctx, url)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("circuit breaker open for %s: %w", c.platform.PlatformTag(), err)
		}
		return nil, err
	}
	return result, nil
}

func (c *Client) doHTTP(ctx context.Context, targetURL string) (*content.RawScrape, error) {
	start := time.Now()

	body, err := json.Marshal(scrapeRequest{URL: targetURL, Formats: []string{"markdown"}})
	if err != nil {
		return nil, fmt.Errorf("marshal scrape request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/scrape", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build scrape request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call scraper service: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("scraper service returned HTTP %d", resp.StatusCode)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read scraper response: %w", err)
	}

	var parsed scrapeResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("decode scraper response: %w", err)
	}

	text := parsed.Data.Markdown
	if text == "" {
		text = parsed.Data.Content
	}

	statusCode := resp.StatusCode
	if sc, ok := parsed.Data.Metadata["statusCode"].(float64); ok {
		statusCode = int(sc)
	}

	return &content.RawScrape{
		URL:        targetURL,
		Content:    text,
		HTTPStatus: statusCode,
		ByteLength: len(text),
		Duration:   time.Since(start),
		ScrapedAt:  time.Now().UTC(),
	}, nil
}

func breakerStateString(s gobreaker.State) string {
	switch s {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
