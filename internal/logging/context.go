package logging

import (
	"context"

	"github.com/rs/zerolog"
)

// Context keys for the pipeline-scoped fields the pipeline driver attaches
// as it moves between flow, query, and platform scope.
type contextKey string

const (
	// runIDKey is the context key for the pipeline run a log line belongs to.
	runIDKey contextKey = "run_id"

	// queryIDKey is the context key for the monitored query being processed.
	queryIDKey contextKey = "query_id"

	// platformKey is the context key for the AI platform being scraped.
	platformKey contextKey = "platform"
)

// ContextWithRunID returns a new context carrying the pipeline run ID.
//
//	ctx = logging.ContextWithRunID(ctx, run.ID)
func ContextWithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// RunIDFromContext retrieves the run ID from context. Returns empty string
// if not present.
func RunIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(runIDKey).(string); ok {
		return id
	}
	return ""
}

// ContextWithQueryID returns a new context carrying the query ID being
// processed.
func ContextWithQueryID(ctx context.Context, queryID string) context.Context {
	return context.WithValue(ctx, queryIDKey, queryID)
}

// QueryIDFromContext retrieves the query ID from context. Returns empty
// string if not present.
func QueryIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(queryIDKey).(string); ok {
		return id
	}
	return ""
}

// ContextWithPlatform returns a new context carrying the platform tag being
// scraped.
func ContextWithPlatform(ctx context.Context, platform string) context.Context {
	return context.WithValue(ctx, platformKey, platform)
}

// PlatformFromContext retrieves the platform tag from context. Returns
// empty string if not present.
func PlatformFromContext(ctx context.Context) string {
	if p, ok := ctx.Value(platformKey).(string); ok {
		return p
	}
	return ""
}

// Ctx returns the global logger with whichever of run_id, query_id, and
// platform are present on ctx attached as fields. This is the recommended
// way to log from inside a flow run.
//
//	logging.Ctx(ctx).Error().Err(err).Msg("failed to insert ranking")
//	// Output: {"level":"error","run_id":"...","query_id":"...","platform":"chatgpt",...}
func Ctx(ctx context.Context) *zerolog.Logger {
	logCtx := Logger().With()

	if runID := RunIDFromContext(ctx); runID != "" {
		logCtx = logCtx.Str("run_id", runID)
	}
	if queryID := QueryIDFromContext(ctx); queryID != "" {
		logCtx = logCtx.Str("query_id", queryID)
	}
	if platform := PlatformFromContext(ctx); platform != "" {
		logCtx = logCtx.Str("platform", platform)
	}

	contextLogger := logCtx.Logger()
	return &contextLogger
}

// CtxDebug starts a debug level message with context fields. Shorthand for
// Ctx(ctx).Debug().
func CtxDebug(ctx context.Context) *zerolog.Event {
	return Ctx(ctx).Debug()
}

// CtxInfo starts an info level message with context fields. Shorthand for
// Ctx(ctx).Info().
func CtxInfo(ctx context.Context) *zerolog.Event {
	return Ctx(ctx).Info()
}

// CtxWarn starts a warn level message with context fields. Shorthand for
// Ctx(ctx).Warn().
func CtxWarn(ctx context.Context) *zerolog.Event {
	return Ctx(ctx).Warn()
}

// CtxError starts an error level message with context fields. Shorthand for
// Ctx(ctx).Error().
func CtxError(ctx context.Context) *zerolog.Event {
	return Ctx(ctx).Error()
}

// CtxErr starts an error level message with context fields and the error.
// Shorthand for Ctx(ctx).Err(err).
func CtxErr(ctx context.Context, err error) *zerolog.Event {
	return Ctx(ctx).Err(err)
}
