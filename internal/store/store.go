// Package store is the relational catalog for the visibility pipeline:
// monitored queries and brands, per-scrape rankings, computed scores, and
// pipeline run records. It is a second, independent DuckDB catalog from
// internal/timeseries, opened against its own file per spec.md §6.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/levoit/visibilitypipeline/internal/models"
)

// Store wraps the relational DuckDB connection.
type Store struct {
	conn *sql.DB
}

// Open opens (creating if absent) the relational catalog at path and
// ensures its schema exists.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create relational store directory %s: %w", dir, err)
		}
	}

	connStr := fmt.Sprintf("%s?access_mode=read_write&threads=%d", path, runtime.NumCPU())
	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("open relational store: %w", err)
	}

	conn.SetMaxOpenConns(5)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(time.Hour)

	s := &Store{conn: conn}
	if err := s.createSchema(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("initialize relational schema: %w", err)
	}
	return s, nil
}

// Close flushes the WAL and closes the underlying connection.
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := s.conn.ExecContext(ctx, "CHECKPOINT"); err != nil {
		// best effort: a failed checkpoint does not block shutdown
		_ = err
	}
	return s.conn.Close()
}

func (s *Store) createSchema() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	statements := []string{
		`CREATE TABLE IF NOT EXISTS vis_query (
			id TEXT PRIMARY KEY,
			text TEXT NOT NULL,
			category TEXT NOT NULL,
			priority TEXT NOT NULL,
			brands TEXT NOT NULL,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_vis_query_active_priority ON vis_query (active, priority)`,
		`CREATE TABLE IF NOT EXISTS vis_brand (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			is_primary BOOLEAN NOT NULL DEFAULT FALSE
		)`,
		`CREATE TABLE IF NOT EXISTS vis_ranking (
			id TEXT PRIMARY KEY,
			query_id TEXT NOT NULL,
			platform TEXT NOT NULL,
			brand TEXT NOT NULL,
			rank_position INTEGER NOT NULL,
			snippet TEXT,
			snapshot_ref TEXT,
			scraped_at TIMESTAMP NOT NULL,
			run_id TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_vis_ranking_query_scraped ON vis_ranking (query_id, scraped_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_vis_ranking_brand_scraped ON vis_ranking (brand, scraped_at DESC)`,
		`CREATE TABLE IF NOT EXISTS vis_score (
			id TEXT PRIMARY KEY,
			query_id TEXT NOT NULL,
			brand TEXT NOT NULL,
			visibility_score DOUBLE NOT NULL,
			competitive_gap DOUBLE,
			period TEXT NOT NULL,
			computed_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_vis_score_query_brand_computed ON vis_score (query_id, brand, computed_at DESC)`,
		`CREATE TABLE IF NOT EXISTS vis_pipeline_run (
			id TEXT PRIMARY KEY,
			flow_name TEXT NOT NULL,
			status TEXT NOT NULL,
			queries_attempted INTEGER NOT NULL,
			successes INTEGER NOT NULL,
			failures INTEGER NOT NULL,
			quarantine_count INTEGER NOT NULL,
			cost_usd DOUBLE NOT NULL,
			duration_ms BIGINT NOT NULL,
			error_detail TEXT,
			started_at TIMESTAMP NOT NULL,
			completed_at TIMESTAMP
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec schema statement: %w", err)
		}
	}
	return nil
}

// ActiveQueries returns every active query ordered by priority (high,
// medium, low), the order in which both flows process them.
func (s *Store) ActiveQueries(ctx context.Context) ([]models.Query, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, text, category, priority, brands, active, created_at, updated_at
		FROM vis_query WHERE active = TRUE`)
	if err != nil {
		return nil, fmt.Errorf("query active queries: %w", err)
	}
	defer rows.Close()

	var queries []models.Query
	for rows.Next() {
		var q models.Query
		var brandsCSV string
		if err := rows.Scan(&q.ID, &q.Text, &q.Category, &q.Priority, &brandsCSV, &q.Active, &q.CreatedAt, &q.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan query row: %w", err)
		}
		q.Brands = splitBrands(brandsCSV)
		queries = append(queries, q)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sortQueriesByPriority(queries)
	return queries, nil
}

func sortQueriesByPriority(queries []models.Query) {
	for i := 1; i < len(queries); i++ {
		for j := i; j > 0 && models.PriorityRank(queries[j].Priority) < models.PriorityRank(queries[j-1].Priority); j-- {
			queries[j], queries[j-1] = queries[j-1], queries[j]
		}
	}
}

func splitBrands(csv string) []string {
	if csv == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(csv); i++ {
		if i == len(csv) || csv[i] == ',' {
			out = append(out, csv[start:i])
			start = i + 1
		}
	}
	return out
}

func joinBrands(brands []string) string {
	out := ""
	for i, b := range brands {
		if i > 0 {
			out += ","
		}
		out += b
	}
	return out
}

// InsertRanking persists one rank-extraction observation. Immutable once
// written, per spec.md's Ranking invariant.
func (s *Store) InsertRanking(ctx context.Context, r models.Ranking) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO vis_ranking (id, query_id, platform, brand, rank_position, snippet, snapshot_ref, scraped_at, run_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.QueryID, string(r.Platform), r.Brand, r.RankPosition, r.Snippet, r.SnapshotRef, r.ScrapedAt, r.RunID)
	if err != nil {
		return fmt.Errorf("insert ranking: %w", err)
	}
	return nil
}

// RankingsForQuery returns every ranking recorded for run runID against
// queryID, used to assemble per-platform inputs to score.VisibilityScore.
func (s *Store) RankingsForQuery(ctx context.Context, runID, queryID string) ([]models.Ranking, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, query_id, platform, brand, rank_position, snippet, snapshot_ref, scraped_at, run_id
		FROM vis_ranking WHERE run_id = ? AND query_id = ?`, runID, queryID)
	if err != nil {
		return nil, fmt.Errorf("query rankings: %w", err)
	}
	defer rows.Close()

	var out []models.Ranking
	for rows.Next() {
		var r models.Ranking
		var platform string
		if err := rows.Scan(&r.ID, &r.QueryID, &platform, &r.Brand, &r.RankPosition, &r.Snippet, &r.SnapshotRef, &r.ScrapedAt, &r.RunID); err != nil {
			return nil, fmt.Errorf("scan ranking row: %w", err)
		}
		r.Platform = models.Platform(platform)
		out = append(out, r)
	}
	return out, rows.Err()
}

// InsertScore persists a computed visibility score/competitive gap.
func (s *Store) InsertScore(ctx context.Context, sc models.Score) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO vis_score (id, query_id, brand, visibility_score, competitive_gap, period, computed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sc.ID, sc.QueryID, sc.Brand, sc.VisibilityScore, sc.CompetitiveGap, string(sc.Period), sc.ComputedAt)
	if err != nil {
		return fmt.Errorf("insert score: %w", err)
	}
	return nil
}

// CreateRun inserts a new pipeline run row in the running state.
func (s *Store) CreateRun(ctx context.Context, run models.PipelineRun) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO vis_pipeline_run (id, flow_name, status, queries_attempted, successes, failures, quarantine_count, cost_usd, duration_ms, error_detail, started_at, completed_at)
		VALUES (?, ?, ?, 0, 0, 0, 0, 0, 0, NULL, ?, NULL)`,
		run.ID, run.FlowName, string(models.RunStatusRunning), run.StartedAt)
	if err != nil {
		return fmt.Errorf("create pipeline run: %w", err)
	}
	return nil
}

// FinalizeRun writes the terminal state of a pipeline run.
func (s *Store) FinalizeRun(ctx context.Context, run models.PipelineRun) error {
	_, err := s.conn.ExecContext(ctx, `
		UPDATE vis_pipeline_run SET
			status = ?, queries_attempted = ?, successes = ?, failures = ?,
			quarantine_count = ?, cost_usd = ?, duration_ms = ?, error_detail = ?, completed_at = ?
		WHERE id = ?`,
		string(run.Status), run.QueriesAttempted, run.Successes, run.Failures,
		run.QuarantineCount, run.CostUSD, run.Duration.Milliseconds(), run.ErrorDetail, run.CompletedAt, run.ID)
	if err != nil {
		return fmt.Errorf("finalize pipeline run: %w", err)
	}
	return nil
}

// UpsertBrand inserts or updates a tracked brand.
func (s *Store) UpsertBrand(ctx context.Context, b models.Brand) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO vis_brand (id, name, is_primary) VALUES (?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET is_primary = EXCLUDED.is_primary`,
		b.ID, b.Name, b.IsPrimary)
	if err != nil {
		return fmt.Errorf("upsert brand: %w", err)
	}
	return nil
}

// InsertQuery inserts a new monitored query, rejecting text over
// models.MaxQueryTextChars or a brand list with duplicates.
func (s *Store) InsertQuery(ctx context.Context, q models.Query) error {
	if err := models.ValidateQuery(q); err != nil {
		return fmt.Errorf("validate query: %w", err)
	}
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO vis_query (id, text, category, priority, brands, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		q.ID, q.Text, string(q.Category), string(q.Priority), joinBrands(q.Brands), q.Active, q.CreatedAt, q.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert query: %w", err)
	}
	return nil
}

// Conn exposes the underlying *sql.DB for callers that need a raw
// statement, mirroring the teacher's Conn() escape hatch.
func (s *Store) Conn() *sql.DB {
	return s.conn
}
