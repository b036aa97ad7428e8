package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"autosniper/internal/outcome"
	"autosniper/internal/valuation"
)

// SQLiteStore is an embedded single-file valuation cache.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database at path. ":memory:" is accepted.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path == "" {
		path = "autosniper.db"
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	s := &SQLiteStore{db: db}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS valuations (
			url         TEXT PRIMARY KEY,
			analyzed_at INTEGER NOT NULL,
			status      TEXT NOT NULL,
			score       REAL NOT NULL,
			payload     TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_valuations_analyzed_at ON valuations(analyzed_at DESC)`,
		`CREATE TABLE IF NOT EXISTS scored_listings (
			url        TEXT PRIMARY KEY,
			run_id     TEXT NOT NULL,
			hit        INTEGER,
			payload    TEXT NOT NULL,
			created_at INTEGER NOT NULL DEFAULT (strftime('%s','now'))
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Get loads a cached valuation by url.
func (s *SQLiteStore) Get(ctx context.Context, url string) (valuation.Result, bool, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM valuations WHERE url = ?`, urlKey(url)).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return valuation.Result{}, false, nil
	}
	if err != nil {
		return valuation.Result{}, false, fmt.Errorf("get valuation: %w", err)
	}
	res, err := decodeResult([]byte(payload))
	if err != nil {
		return valuation.Result{}, false, err
	}
	return res, true, nil
}

// Put upserts a valuation by url.
func (s *SQLiteStore) Put(ctx context.Context, res valuation.Result) error {
	payload, err := encodeResult(res)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO valuations (url, analyzed_at, status, score, payload)
		VALUES (?,?,?,?,?)
		ON CONFLICT(url) DO UPDATE SET
			analyzed_at = excluded.analyzed_at,
			status      = excluded.status,
			score       = excluded.score,
			payload     = excluded.payload`,
		urlKey(res.URL), res.AnalyzedAt.UnixNano(), string(res.Status), res.Score, string(payload),
	)
	if err != nil {
		return fmt.Errorf("upsert valuation: %w", err)
	}
	return nil
}

// ListValuations lists cached valuations newest first.
func (s *SQLiteStore) ListValuations(ctx context.Context, limit int) ([]valuation.Result, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM valuations ORDER BY analyzed_at DESC, url ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list valuations: %w", err)
	}
	defer rows.Close()

	var results []valuation.Result
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		res, err := decodeResult([]byte(payload))
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, rows.Err()
}

// InsertScoredRecords appends settled records; urls already present are left untouched.
func (s *SQLiteStore) InsertScoredRecords(ctx context.Context, runID string, records []outcome.Record) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var inserted int64
	for _, rec := range settled(records) {
		payload, err := encodeRecord(rec)
		if err != nil {
			return 0, err
		}
		result, err := tx.ExecContext(ctx,
			`INSERT INTO scored_listings (url, run_id, hit, payload) VALUES (?,?,?,?) ON CONFLICT(url) DO NOTHING`,
			rec.URL, runID, nullableBool(rec.Hit), string(payload))
		if err != nil {
			return 0, fmt.Errorf("insert scored record: %w", err)
		}
		n, _ := result.RowsAffected()
		inserted += n
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit scored records: %w", err)
	}
	return inserted, nil
}

var (
	_ ValuationStore = (*SQLiteStore)(nil)
	_ ScoredHistory  = (*SQLiteStore)(nil)
)
