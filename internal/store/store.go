package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lakewatch/internal/model"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = eris.New("store: not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Lake   string          `json:"lake,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for analysis runs, the monthly
// area cache and water overlays.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, lake string, years model.YearRange) (*model.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	UpdateRunResult(ctx context.Context, runID string, result *model.RunResult) error
	FailRun(ctx context.Context, runID string, status model.RunStatus, reason string) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Monthly area cache. Only final months are stored.
	GetMonthlyAreas(ctx context.Context, lake string, year int) ([]model.Sample, error)
	PutMonthlyAreas(ctx context.Context, lake string, samples []model.Sample) error

	// Overlays
	SaveOverlay(ctx context.Context, overlay *model.Overlay) error
	LatestOverlay(ctx context.Context, lake string) (*model.Overlay, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// Config selects and configures the store backend.
type Config struct {
	Driver      string      `mapstructure:"driver"` // sqlite or postgres
	DatabaseURL string      `mapstructure:"database_url"`
	Pool        *PoolConfig `mapstructure:"pool"`
}

// Open creates the configured store. It does not migrate.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", "sqlite":
		dsn := cfg.DatabaseURL
		if dsn == "" {
			dsn = "lakewatch.db"
		}
		return NewSQLite(dsn)
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, eris.New("store: postgres requires database_url")
		}
		return NewPostgres(ctx, cfg.DatabaseURL, cfg.Pool)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}

func validFailStatus(status model.RunStatus) error {
	if status != model.RunStatusFailed && status != model.RunStatusCanceled {
		return eris.Errorf("store: %q is not a failure status", status)
	}
	return nil
}
