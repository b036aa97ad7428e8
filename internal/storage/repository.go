package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"autosniper/internal/outcome"
	"autosniper/internal/valuation"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	createValuationsSQL = `CREATE TABLE IF NOT EXISTS valuations (
        url                 TEXT PRIMARY KEY,
        analyzed_at         TIMESTAMPTZ NOT NULL,
        status              TEXT NOT NULL,
        score               NUMERIC(4,1) NOT NULL,
        recommended_max_bid NUMERIC(14,2),
        payload             JSONB NOT NULL,
        updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
    );`

	createValuationsIndexSQL = `CREATE INDEX IF NOT EXISTS idx_valuations_analyzed_at ON valuations (analyzed_at DESC);`

	createScoredSQL = `CREATE TABLE IF NOT EXISTS scored_listings (
        url               TEXT PRIMARY KEY,
        run_id            UUID NOT NULL,
        settled_date      DATE,
        hit               BOOLEAN,
        actual_profit     NUMERIC(14,2),
        outcome_error_abs NUMERIC(14,2),
        outcome_error_pct NUMERIC(12,6),
        payload           JSONB NOT NULL,
        created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
    );`

	upsertValuationSQL = `INSERT INTO valuations (
        url,
        analyzed_at,
        status,
        score,
        recommended_max_bid,
        payload
    ) VALUES (
        $1,$2,$3,$4,$5,$6
    )
    ON CONFLICT (url) DO UPDATE
    SET
        analyzed_at         = EXCLUDED.analyzed_at,
        status              = EXCLUDED.status,
        score               = EXCLUDED.score,
        recommended_max_bid = EXCLUDED.recommended_max_bid,
        payload             = EXCLUDED.payload,
        updated_at          = now();`

	getValuationSQL = `SELECT payload FROM valuations WHERE url = $1;`

	listRecentValuationsSQL = `SELECT payload
    FROM valuations
    ORDER BY analyzed_at DESC
    LIMIT $1;`

	listAllValuationsSQL = `SELECT payload
    FROM valuations
    ORDER BY analyzed_at DESC;`

	insertScoredSQL = `INSERT INTO scored_listings (
        url,
        run_id,
        settled_date,
        hit,
        actual_profit,
        outcome_error_abs,
        outcome_error_pct,
        payload
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8
    )
    ON CONFLICT (url) DO NOTHING;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// Store persists valuations and scored history in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

// EnsureSchema creates the tables when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	for _, stmt := range []string{createValuationsSQL, createValuationsIndexSQL, createScoredSQL} {
		if _, execErr := pool.Exec(ctx, stmt); execErr != nil {
			return fmt.Errorf("ensure schema: %w", execErr)
		}
	}
	return nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// Get loads a cached valuation by url.
func (s *Store) Get(ctx context.Context, url string) (valuation.Result, bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return valuation.Result{}, false, err
	}

	var payload []byte
	if scanErr := pool.QueryRow(ctx, getValuationSQL, urlKey(url)).Scan(&payload); scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return valuation.Result{}, false, nil
		}
		return valuation.Result{}, false, fmt.Errorf("get valuation: %w", scanErr)
	}

	res, err := decodeResult(payload)
	if err != nil {
		return valuation.Result{}, false, err
	}
	return res, true, nil
}

// Put upserts a valuation by url.
func (s *Store) Put(ctx context.Context, res valuation.Result) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	payload, err := encodeResult(res)
	if err != nil {
		return err
	}

	_, execErr := pool.Exec(ctx, upsertValuationSQL,
		urlKey(res.URL),
		res.AnalyzedAt,
		string(res.Status),
		res.Score,
		nullable(res.RecommendedMaxBid),
		payload,
	)
	if execErr != nil {
		return fmt.Errorf("upsert valuation: %w", execErr)
	}
	return nil
}

// ListValuations lists cached valuations newest first.
func (s *Store) ListValuations(ctx context.Context, limit int) ([]valuation.Result, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	var rows pgx.Rows
	var queryErr error
	if limit > 0 {
		rows, queryErr = pool.Query(ctx, listRecentValuationsSQL, limit)
	} else {
		rows, queryErr = pool.Query(ctx, listAllValuationsSQL)
	}
	if queryErr != nil {
		return nil, fmt.Errorf("list valuations: %w", queryErr)
	}
	defer rows.Close()

	results := make([]valuation.Result, 0)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		res, err := decodeResult(payload)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return results, nil
}

// InsertScoredRecords appends settled records; urls already present are left untouched.
func (s *Store) InsertScoredRecords(ctx context.Context, runID string, records []outcome.Record) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}

	batch := &pgx.Batch{}
	for _, rec := range settled(records) {
		payload, err := encodeRecord(rec)
		if err != nil {
			return 0, err
		}
		batch.Queue(insertScoredSQL,
			rec.URL,
			runID,
			rec.SettledDate,
			nullableBool(rec.Hit),
			nullable(rec.ActualProfit),
			nullable(rec.ErrorAbs),
			nullable(rec.ErrorPct),
			payload,
		)
	}
	if batch.Len() == 0 {
		return 0, nil
	}

	results := pool.SendBatch(ctx, batch)
	defer results.Close()

	var inserted int64
	for i := 0; i < batch.Len(); i++ {
		tag, execErr := results.Exec()
		if execErr != nil {
			return inserted, fmt.Errorf("insert scored record: %w", execErr)
		}
		inserted += tag.RowsAffected()
	}
	return inserted, nil
}

var (
	_ ValuationStore = (*Store)(nil)
	_ ScoredHistory  = (*Store)(nil)
	_ AdvisoryLocker = (*Store)(nil)
)
