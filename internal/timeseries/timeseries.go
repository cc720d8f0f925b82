// Package timeseries is the second DuckDB catalog: a narrow
// append-only fact table of per-scrape rank observations, plus a
// materialized daily rollup standing in for the reference system's
// continuous aggregate (DuckDB has no native hypertable/continuous-
// aggregate primitive, so the rollup is computed on demand by a
// GROUP BY query and persisted into its own table on a schedule).
package timeseries

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

// Store wraps the time-series DuckDB connection.
type Store struct {
	conn *sql.DB
}

// Open opens (creating if absent) the time-series catalog at path.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create timeseries store directory %s: %w", dir, err)
		}
	}

	connStr := fmt.Sprintf("%s?access_mode=read_write&threads=%d", path, runtime.NumCPU())
	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("open timeseries store: %w", err)
	}

	conn.SetMaxOpenConns(5)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(time.Hour)

	s := &Store{conn: conn}
	if err := s.createSchema(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("initialize timeseries schema: %w", err)
	}
	return s, nil
}

// Close flushes the WAL and closes the underlying connection.
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := s.conn.ExecContext(ctx, "CHECKPOINT"); err != nil {
		_ = err
	}
	return s.conn.Close()
}

func (s *Store) createSchema() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	statements := []string{
		`CREATE TABLE IF NOT EXISTS ts_search_rank (
			time TIMESTAMP NOT NULL,
			query_id TEXT NOT NULL,
			platform TEXT NOT NULL,
			brand TEXT NOT NULL,
			rank_position INTEGER NOT NULL,
			visibility_score DOUBLE NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ts_search_rank_query_time ON ts_search_rank (query_id, time)`,
		// ts_daily_rank stands in for the reference system's continuous
		// aggregate: it is truncated and rebuilt by RefreshDailyRollup
		// rather than incrementally maintained. Bucketed to 1 day by
		// (query_id, brand) per spec.md §6 — platform is averaged over,
		// not a group key.
		`CREATE TABLE IF NOT EXISTS ts_daily_rank (
			day TIMESTAMP NOT NULL,
			query_id TEXT NOT NULL,
			brand TEXT NOT NULL,
			avg_rank_position DOUBLE NOT NULL,
			avg_visibility_score DOUBLE NOT NULL,
			observation_count BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ts_daily_rank_query_day ON ts_daily_rank (query_id, day)`,
	}

	for _, stmt := range statements {
		if _, err := s.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec schema statement: %w", err)
		}
	}
	return nil
}

// InsertRank appends one fact-table row. Only rankings with
// RankPosition >= 1 are fed here; the caller filters absent brands.
func (s *Store) InsertRank(ctx context.Context, r models.TimeSeriesRank) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO ts_search_rank (time, query_id, platform, brand, rank_position, visibility_score)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.Time, r.QueryID, string(r.Platform), r.Brand, r.RankPosition, r.VisibilityScore)
	if err != nil {
		return fmt.Errorf("insert time-series rank: %w", err)
	}
	return nil
}

// RefreshDailyRollup recomputes ts_daily_rank for the UTC calendar day
// containing day, replacing any existing rollup rows for that day. This is
// the daily flow's aggregation pass (spec.md §4.7).
func (s *Store) RefreshDailyRollup(ctx context.Context, day time.Time) error {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin rollup transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM ts_daily_rank WHERE day = ?`, dayStart); err != nil {
		return fmt.Errorf("clear existing rollup: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO ts_daily_rank (day, query_id, brand, avg_rank_position, avg_visibility_score, observation_count)
		SELECT ?, query_id, brand, AVG(rank_position), AVG(visibility_score), COUNT(*)
		FROM ts_search_rank
		WHERE time >= ? AND time < ?
		GROUP BY query_id, brand`,
		dayStart, dayStart, dayEnd)
	if err != nil {
		return fmt.Errorf("compute daily rollup: %w", err)
	}

	return tx.Commit()
}

// DailyAggregate is one (query_id, brand) bucket of ts_daily_rank for a
// single UTC calendar day.
type DailyAggregate struct {
	QueryID             string
	Brand               string
	AvgRankPosition     float64
	AvgVisibilityScore  float64
	ObservationCount    int64
}

// DailyAggregates reads back the ts_daily_rank rows for the UTC calendar
// day containing day, after RefreshDailyRollup has populated it.
func (s *Store) DailyAggregates(ctx context.Context, day time.Time) ([]DailyAggregate, error) {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)

	rows, err := s.conn.QueryContext(ctx, `
		SELECT query_id, brand, avg_rank_position, avg_visibility_score, observation_count
		FROM ts_daily_rank WHERE day = ?`, dayStart)
	if err != nil {
		return nil, fmt.Errorf("query daily aggregates: %w", err)
	}
	defer rows.Close()

	var out []DailyAggregate
	for rows.Next() {
		var a DailyAggregate
		if err := rows.Scan(&a.QueryID, &a.Brand, &a.AvgRankPosition, &a.AvgVisibilityScore, &a.ObservationCount); err != nil {
			return nil, fmt.Errorf("scan daily aggregate row: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Conn exposes the underlying *sql.DB for advanced callers.
func (s *Store) Conn() *sql.DB {
	return s.conn
}
