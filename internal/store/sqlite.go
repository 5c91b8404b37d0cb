package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/lakewatch/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	lake       TEXT NOT NULL,
	year_start INTEGER NOT NULL,
	year_end   INTEGER NOT NULL,
	status     TEXT NOT NULL DEFAULT 'queued',
	result     TEXT,
	error      TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS monthly_areas (
	lake        TEXT NOT NULL,
	year        INTEGER NOT NULL,
	month       INTEGER NOT NULL,
	area        REAL NOT NULL,
	missing     INTEGER NOT NULL DEFAULT 0,
	computed_at DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (lake, year, month)
);

CREATE TABLE IF NOT EXISTS overlays (
	id         TEXT PRIMARY KEY,
	lake       TEXT NOT NULL,
	map_name   TEXT NOT NULL,
	from_date  DATETIME NOT NULL,
	to_date    DATETIME NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_lake ON runs(lake);
CREATE INDEX IF NOT EXISTS idx_overlays_lake_created ON overlays(lake, created_at);
`

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

// Migrate creates the schema.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, lake string, years model.YearRange) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, lake, year_start, year_end, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, lake, years.Start, years.End, string(model.RunStatusQueued), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
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

func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run status %s", runID)
	}
	return checkRowsAffected(res, runID)
}

func (s *SQLiteStore) UpdateRunResult(ctx context.Context, runID string, result *model.RunResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal result")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET result = ?, status = ?, error = '', updated_at = ? WHERE id = ?`,
		string(resultJSON), string(model.RunStatusComplete), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run result %s", runID)
	}
	return checkRowsAffected(res, runID)
}

func (s *SQLiteStore) FailRun(ctx context.Context, runID string, status model.RunStatus, reason string) error {
	if err := validFailStatus(status); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(status), reason, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail run %s", runID)
	}
	return checkRowsAffected(res, runID)
}

const runColumns = `id, lake, year_start, year_end, status, result, error, created_at, updated_at`

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, runID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return r, err
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Lake != "" {
		query += ` AND lake = ?`
		args = append(args, filter.Lake)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) GetMonthlyAreas(ctx context.Context, lake string, year int) ([]model.Sample, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT year, month, area, missing FROM monthly_areas WHERE lake = ? AND year = ? ORDER BY month`,
		lake, year,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get monthly areas %s/%d", lake, year)
	}
	defer rows.Close() //nolint:errcheck

	var samples []model.Sample
	for rows.Next() {
		var smp model.Sample
		if err := rows.Scan(&smp.Year, &smp.Month, &smp.Area, &smp.Missing); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan monthly area")
		}
		samples = append(samples, smp)
	}
	return samples, eris.Wrap(rows.Err(), "sqlite: monthly areas iterate")
}

func (s *SQLiteStore) PutMonthlyAreas(ctx context.Context, lake string, samples []model.Sample) error {
	if len(samples) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin monthly areas tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO monthly_areas (lake, year, month, area, missing, computed_at) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (lake, year, month) DO UPDATE SET area = excluded.area, missing = excluded.missing, computed_at = excluded.computed_at`,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare monthly area upsert")
	}
	defer stmt.Close() //nolint:errcheck

	now := time.Now().UTC()
	for _, smp := range samples {
		if _, err := stmt.ExecContext(ctx, lake, smp.Year, smp.Month, smp.Area, smp.Missing, now); err != nil {
			return eris.Wrapf(err, "sqlite: upsert monthly area %s %s", lake, smp.Label())
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit monthly areas")
}

func (s *SQLiteStore) SaveOverlay(ctx context.Context, overlay *model.Overlay) error {
	if overlay.ID == "" {
		overlay.ID = uuid.New().String()
	}
	if overlay.CreatedAt.IsZero() {
		overlay.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO overlays (id, lake, map_name, from_date, to_date, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		overlay.ID, overlay.Lake, overlay.MapName, overlay.From.UTC(), overlay.To.UTC(), overlay.CreatedAt.UTC(),
	)
	return eris.Wrap(err, "sqlite: save overlay")
}

func (s *SQLiteStore) LatestOverlay(ctx context.Context, lake string) (*model.Overlay, error) {
	var o model.Overlay
	err := s.db.QueryRowContext(ctx,
		`SELECT id, lake, map_name, from_date, to_date, created_at FROM overlays
		 WHERE lake = ? ORDER BY created_at DESC LIMIT 1`,
		lake,
	).Scan(&o.ID, &o.Lake, &o.MapName, &o.From, &o.To, &o.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: latest overlay")
	}
	return &o, nil
}

// helpers

func checkRowsAffected(res sql.Result, runID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	var resultJSON sql.NullString

	err := row.Scan(&r.ID, &r.Lake, &r.Range.Start, &r.Range.End, &r.Status, &resultJSON, &r.Error, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}

	if resultJSON.Valid {
		r.Result = &model.RunResult{}
		if err := json.Unmarshal([]byte(resultJSON.String), r.Result); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal result")
		}
	}
	return &r, nil
}
