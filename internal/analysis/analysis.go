// Package analysis runs monthly water-area analyses on Earth Engine and
// persists their results.
package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/lakewatch/internal/decompose"
	"github.com/sells-group/lakewatch/internal/lake"
	"github.com/sells-group/lakewatch/internal/metrics"
	"github.com/sells-group/lakewatch/internal/model"
	"github.com/sells-group/lakewatch/internal/store"
	"github.com/sells-group/lakewatch/internal/water"
	ee "github.com/sells-group/lakewatch/pkg/earthengine"
)

// Config controls analysis and overlay behavior.
type Config struct {
	Params           water.Params
	MaxConcurrency   int  // concurrent per-year computes
	TrendWindow      int  // moving-average window in months
	TrimFuture       bool // drop months after the current month
	CacheFinalMonths bool // reuse stored areas for months that have ended

	OverlayLookbackMonths int
	OverlayCloudMax       float64
	OverlayPalette        []string
}

// DefaultConfig returns the settings the dashboard ships with.
func DefaultConfig() Config {
	return Config{
		Params:                water.DefaultParams(),
		MaxConcurrency:        4,
		TrendWindow:           decompose.DefaultWindow,
		TrimFuture:            true,
		CacheFinalMonths:      true,
		OverlayLookbackMonths: 3,
		OverlayCloudMax:       10,
		OverlayPalette:        []string{"ffffff", "0000ff"},
	}
}

// Analyzer builds water-area expressions for a lake, evaluates them on
// Earth Engine and records runs in the store.
type Analyzer struct {
	client  ee.Client
	store   store.Store
	lakes   *lake.Registry
	cfg     Config
	metrics *metrics.Metrics
	now     func() time.Time
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithMetrics records run outcomes and cache hits.
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Analyzer) { a.metrics = m }
}

// WithClock overrides the current time.
func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) { a.now = now }
}

// New creates an Analyzer.
func New(client ee.Client, st store.Store, lakes *lake.Registry, cfg Config, opts ...Option) *Analyzer {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 1
	}
	a := &Analyzer{
		client: client,
		store:  st,
		lakes:  lakes,
		cfg:    cfg,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Lakes returns the lake registry.
func (a *Analyzer) Lakes() *lake.Registry {
	return a.lakes
}

// Run creates a run and executes it to completion.
func (a *Analyzer) Run(ctx context.Context, lakeKey string, years model.YearRange) (*model.Run, error) {
	run, err := a.Create(ctx, lakeKey, years)
	if err != nil {
		return nil, err
	}
	return a.Execute(ctx, run)
}

// Create validates the request and records a queued run.
func (a *Analyzer) Create(ctx context.Context, lakeKey string, years model.YearRange) (*model.Run, error) {
	if _, ok := a.lakes.Get(lakeKey); !ok {
		return nil, eris.Errorf("analysis: unknown lake %q", lakeKey)
	}
	if err := years.Validate(model.FirstSentinelYear, a.now().UTC().Year()); err != nil {
		return nil, eris.Wrap(err, "analysis: invalid year range")
	}

	run, err := a.store.CreateRun(ctx, lakeKey, years)
	if err != nil {
		return nil, eris.Wrap(err, "analysis: create run")
	}
	return run, nil
}

// Execute computes a queued run. The returned run carries the final status;
// the error is non-nil when the run failed or was canceled.
func (a *Analyzer) Execute(ctx context.Context, run *model.Run) (*model.Run, error) {
	start := time.Now()
	log := zap.L().With(
		zap.String("run_id", run.ID),
		zap.String("lake", run.Lake),
		zap.String("years", run.Range.String()),
	)

	if err := a.store.UpdateRunStatus(ctx, run.ID, model.RunStatusRunning); err != nil {
		return run, eris.Wrap(err, "analysis: mark running")
	}
	run.Status = model.RunStatusRunning
	log.Info("analysis: run started")

	result, err := a.compute(ctx, run.Lake, run.Range)
	if err != nil {
		return a.fail(ctx, run, start, err)
	}
	result.DurationMs = time.Since(start).Milliseconds()

	if err := a.store.UpdateRunResult(ctx, run.ID, result); err != nil {
		return a.fail(ctx, run, start, eris.Wrap(err, "analysis: save result"))
	}
	run.Status = model.RunStatusComplete
	run.Result = result
	a.observe(run.Status, start)

	log.Info("analysis: run complete",
		zap.Int("months", len(result.Series.Samples)),
		zap.Int("missing", result.Summary.MissingMonths),
		zap.Int64("duration_ms", result.DurationMs),
	)
	return run, nil
}

func (a *Analyzer) fail(ctx context.Context, run *model.Run, start time.Time, cause error) (*model.Run, error) {
	status := model.RunStatusFailed
	if errors.Is(cause, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
		status = model.RunStatusCanceled
	}

	// The run context may already be done; the failure still has to land.
	if err := a.store.FailRun(context.WithoutCancel(ctx), run.ID, status, cause.Error()); err != nil {
		zap.L().Error("analysis: failed to record run failure",
			zap.String("run_id", run.ID),
			zap.Error(err),
		)
	}
	run.Status = status
	run.Error = cause.Error()
	a.observe(status, start)

	zap.L().Warn("analysis: run ended without result",
		zap.String("run_id", run.ID),
		zap.String("status", string(status)),
		zap.Error(cause),
	)
	return run, cause
}

func (a *Analyzer) observe(status model.RunStatus, start time.Time) {
	if a.metrics != nil {
		a.metrics.ObserveRun(string(status), time.Since(start))
	}
}

func (a *Analyzer) compute(ctx context.Context, lakeKey string, years model.YearRange) (*model.RunResult, error) {
	l, ok := a.lakes.Get(lakeKey)
	if !ok {
		return nil, eris.Errorf("analysis: unknown lake %q", lakeKey)
	}
	geometry, err := l.Geometry()
	if err != nil {
		return nil, eris.Wrapf(err, "analysis: geometry for %s", lakeKey)
	}

	var (
		mu      sync.Mutex
		samples []model.Sample
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.MaxConcurrency)

	for _, year := range years.Years() {
		g.Go(func() error {
			ys, err := a.yearSamples(gctx, lakeKey, geometry, year)
			if err != nil {
				return eris.Wrapf(err, "analysis: year %d", year)
			}
			mu.Lock()
			samples = append(samples, ys...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(samples, func(i, j int) bool {
		if samples[i].Year != samples[j].Year {
			return samples[i].Year < samples[j].Year
		}
		return samples[i].Month < samples[j].Month
	})

	series := model.Series{Lake: lakeKey, Range: years, Samples: samples}
	return &model.RunResult{
		Series:        series,
		Decomposition: decompose.MonthlyWindow(series, a.cfg.TrendWindow),
		Summary:       decompose.Summarize(series),
	}, nil
}

// yearSamples returns the samples of one year, from the cache where the
// month has ended and from Earth Engine otherwise.
func (a *Analyzer) yearSamples(ctx context.Context, lakeKey string, geometry ee.Expr, year int) ([]model.Sample, error) {
	current := monthStart(a.now())
	months := a.monthsOf(year, current)
	if len(months) == 0 {
		return nil, nil
	}

	cached := make(map[int]model.Sample)
	if a.cfg.CacheFinalMonths {
		stored, err := a.store.GetMonthlyAreas(ctx, lakeKey, year)
		if err != nil {
			return nil, eris.Wrap(err, "analysis: read cached areas")
		}
		for _, s := range stored {
			cached[s.Month] = s
		}
	}

	var pending []model.YearMonth
	for _, m := range months {
		if _, ok := cached[m.Month]; !ok || !isFinal(m, current) {
			pending = append(pending, m)
		}
	}

	computed, err := a.computeMonths(ctx, geometry, pending)
	if err != nil {
		return nil, err
	}

	if a.cfg.CacheFinalMonths {
		var final []model.Sample
		for _, s := range computed {
			if isFinal(model.YearMonth{Year: s.Year, Month: s.Month}, current) {
				final = append(final, s)
			}
		}
		if err := a.store.PutMonthlyAreas(ctx, lakeKey, final); err != nil {
			zap.L().Warn("analysis: cache monthly areas",
				zap.String("lake", lakeKey),
				zap.Int("year", year),
				zap.Error(err),
			)
		}
	}

	hits := len(months) - len(pending)
	if hits > 0 && a.metrics != nil {
		a.metrics.AddCachedMonths(hits)
	}

	byMonth := make(map[int]model.Sample, len(computed))
	for _, s := range computed {
		byMonth[s.Month] = s
	}
	out := make([]model.Sample, 0, len(months))
	for _, m := range months {
		if s, ok := byMonth[m.Month]; ok {
			out = append(out, s)
			continue
		}
		out = append(out, cached[m.Month])
	}
	return out, nil
}

// computeMonths evaluates the months in a single request. When Earth Engine
// rejects the batch because a composite is empty, each month is evaluated on
// its own and the empty ones become missing samples.
func (a *Analyzer) computeMonths(ctx context.Context, geometry ee.Expr, months []model.YearMonth) ([]model.Sample, error) {
	if len(months) == 0 {
		return nil, nil
	}

	raw, err := a.client.Compute(ctx, water.Areas(geometry, months, a.cfg.Params))
	if err == nil {
		return decodeAreas(raw, months)
	}
	if !ee.IsEmptyCollection(err) {
		return nil, eris.Wrap(err, "analysis: compute monthly areas")
	}

	zap.L().Debug("analysis: batch hit an empty composite, computing months one by one",
		zap.Int("year", months[0].Year),
		zap.Error(err),
	)

	out := make([]model.Sample, 0, len(months))
	for _, m := range months {
		raw, err := a.client.Compute(ctx, water.MonthlyArea(geometry, m, a.cfg.Params))
		switch {
		case ee.IsEmptyCollection(err):
			out = append(out, model.Sample{Year: m.Year, Month: m.Month, Missing: true})
			continue
		case err != nil:
			return nil, eris.Wrapf(err, "analysis: compute %04d-%02d", m.Year, m.Month)
		}
		s, err := decodeArea(raw, m)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// monthsOf lists the months of year to analyze, dropping months after the
// current one when TrimFuture is set.
func (a *Analyzer) monthsOf(year int, current time.Time) []model.YearMonth {
	all := water.YearMonths(year)
	if !a.cfg.TrimFuture {
		return all
	}
	out := all[:0]
	for _, m := range all {
		if !m.Start().After(current) {
			out = append(out, m)
		}
	}
	return out
}

func decodeAreas(raw json.RawMessage, months []model.YearMonth) ([]model.Sample, error) {
	var areas []*float64
	if err := json.Unmarshal(raw, &areas); err != nil {
		return nil, eris.Wrap(err, "analysis: decode monthly areas")
	}
	if len(areas) != len(months) {
		return nil, eris.Errorf("analysis: got %d areas for %d months", len(areas), len(months))
	}

	out := make([]model.Sample, len(months))
	for i, m := range months {
		out[i] = sample(m, areas[i])
	}
	return out, nil
}

func decodeArea(raw json.RawMessage, m model.YearMonth) (model.Sample, error) {
	var area *float64
	if err := json.Unmarshal(raw, &area); err != nil {
		return model.Sample{}, eris.Wrapf(err, "analysis: decode area %04d-%02d", m.Year, m.Month)
	}
	return sample(m, area), nil
}

// sample maps a null area to a missing sample with zero area.
func sample(m model.YearMonth, area *float64) model.Sample {
	s := model.Sample{Year: m.Year, Month: m.Month}
	if area == nil {
		s.Missing = true
		return s
	}
	s.Area = *area
	return s
}

func monthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// isFinal reports whether m ended before the current month began.
func isFinal(m model.YearMonth, current time.Time) bool {
	return !m.End().After(current)
}
