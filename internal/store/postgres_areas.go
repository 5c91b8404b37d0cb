package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rotisserie/eris"

	"github.com/sells-group/lakewatch/internal/model"
)

// Pool is the subset of *pgxpool.Pool used by PostgresStore. pgxmock pools
// satisfy it in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

const areaStagingTable = "_staging_monthly_areas"

var monthlyAreaColumns = []string{"lake", "year", "month", "area", "missing", "computed_at"}

const (
	createAreaStaging = `CREATE TEMP TABLE "` + areaStagingTable + `" (LIKE monthly_areas INCLUDING DEFAULTS) ON COMMIT DROP`

	mergeAreaStaging = `INSERT INTO monthly_areas (lake, year, month, area, missing, computed_at)
	SELECT lake, year, month, area, missing, computed_at FROM "` + areaStagingTable + `"
	ON CONFLICT (lake, year, month) DO UPDATE SET
		area = EXCLUDED.area,
		missing = EXCLUDED.missing,
		computed_at = EXCLUDED.computed_at`
)

// upsertMonthlyAreas copies samples into a transaction-scoped staging table
// and merges them into monthly_areas. Recomputed months overwrite the
// stored ones.
func upsertMonthlyAreas(ctx context.Context, pool Pool, lake string, samples []model.Sample, now time.Time) (int64, error) {
	if len(samples) == 0 {
		return 0, nil
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: areas: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, createAreaStaging); err != nil {
		return 0, eris.Wrap(err, "postgres: areas: create staging table")
	}

	rows := make([][]any, len(samples))
	for i, smp := range samples {
		rows[i] = []any{lake, smp.Year, smp.Month, smp.Area, smp.Missing, now}
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{areaStagingTable}, monthlyAreaColumns, pgx.CopyFromRows(rows)); err != nil {
		return 0, eris.Wrap(err, "postgres: areas: copy into staging table")
	}

	tag, err := tx.Exec(ctx, mergeAreaStaging)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: areas: merge staging table")
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "postgres: areas: commit tx")
	}
	return tag.RowsAffected(), nil
}
