package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/lakewatch/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	lake       TEXT NOT NULL,
	year_start INTEGER NOT NULL,
	year_end   INTEGER NOT NULL,
	status     TEXT NOT NULL DEFAULT 'queued',
	result     JSONB,
	error      TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS monthly_areas (
	lake        TEXT NOT NULL,
	year        INTEGER NOT NULL,
	month       INTEGER NOT NULL,
	area        DOUBLE PRECISION NOT NULL,
	missing     BOOLEAN NOT NULL DEFAULT false,
	computed_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (lake, year, month)
);

CREATE TABLE IF NOT EXISTS overlays (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	lake       TEXT NOT NULL,
	map_name   TEXT NOT NULL,
	from_date  TIMESTAMPTZ NOT NULL,
	to_date    TIMESTAMPTZ NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_lake ON runs(lake);
CREATE INDEX IF NOT EXISTS idx_overlays_lake_created ON overlays(lake, created_at DESC);
`

// Pool returns the underlying database pool.
func (s *PostgresStore) Pool() Pool {
	return s.pool
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

// Migrate creates the schema.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

// Close closes the pool.
func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, lake string, years model.YearRange) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, lake, year_start, year_end, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, lake, years.Start, years.End, string(model.RunStatusQueued), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.Run{
		ID:        id,
		Lake:      lake,
		Range:     years,
		Status:    model.RunStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *PostgresStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run status %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

func (s *PostgresStore) UpdateRunResult(ctx context.Context, runID string, result *model.RunResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal result")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET result = $1, status = $2, error = '', updated_at = $3 WHERE id = $4`,
		resultJSON, string(model.RunStatusComplete), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run result %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

func (s *PostgresStore) FailRun(ctx context.Context, runID string, status model.RunStatus, reason string) error {
	if err := validFailStatus(status); err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, error = $2, updated_at = $3 WHERE id = $4`,
		string(status), reason, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	r, err := scanPgRun(s.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM runs WHERE id = $1`, runID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.Lake != "" {
		query += fmt.Sprintf(` AND lake = $%d`, argIdx)
		args = append(args, filter.Lake)
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanPgRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) GetMonthlyAreas(ctx context.Context, lake string, year int) ([]model.Sample, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT year, month, area, missing FROM monthly_areas WHERE lake = $1 AND year = $2 ORDER BY month`,
		lake, year,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get monthly areas %s/%d", lake, year)
	}
	defer rows.Close()

	var samples []model.Sample
	for rows.Next() {
		var smp model.Sample
		if err := rows.Scan(&smp.Year, &smp.Month, &smp.Area, &smp.Missing); err != nil {
			return nil, eris.Wrap(err, "postgres: scan monthly area")
		}
		samples = append(samples, smp)
	}
	return samples, eris.Wrap(rows.Err(), "postgres: monthly areas iterate")
}

func (s *PostgresStore) PutMonthlyAreas(ctx context.Context, lake string, samples []model.Sample) error {
	_, err := upsertMonthlyAreas(ctx, s.pool, lake, samples, time.Now().UTC())
	return eris.Wrapf(err, "postgres: put monthly areas %s", lake)
}

func (s *PostgresStore) SaveOverlay(ctx context.Context, overlay *model.Overlay) error {
	if overlay.ID == "" {
		overlay.ID = uuid.New().String()
	}
	if overlay.CreatedAt.IsZero() {
		overlay.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO overlays (id, lake, map_name, from_date, to_date, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		overlay.ID, overlay.Lake, overlay.MapName, overlay.From, overlay.To, overlay.CreatedAt,
	)
	return eris.Wrap(err, "postgres: save overlay")
}

func (s *PostgresStore) LatestOverlay(ctx context.Context, lake string) (*model.Overlay, error) {
	var o model.Overlay
	err := s.pool.QueryRow(ctx,
		`SELECT id, lake, map_name, from_date, to_date, created_at FROM overlays
		 WHERE lake = $1 ORDER BY created_at DESC LIMIT 1`,
		lake,
	).Scan(&o.ID, &o.Lake, &o.MapName, &o.From, &o.To, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: latest overlay")
	}
	return &o, nil
}

func scanPgRun(row pgx.Row) (*model.Run, error) {
	var r model.Run
	var status string
	var resultJSON []byte

	if err := row.Scan(&r.ID, &r.Lake, &r.Range.Start, &r.Range.End, &status, &resultJSON, &r.Error, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.Status = model.RunStatus(status)
	if resultJSON != nil {
		r.Result = &model.RunResult{}
		if err := json.Unmarshal(resultJSON, r.Result); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal result")
		}
	}
	return &r, nil
}
