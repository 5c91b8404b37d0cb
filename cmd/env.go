package main

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lakewatch/internal/analysis"
	"github.com/sells-group/lakewatch/internal/lake"
	"github.com/sells-group/lakewatch/internal/metrics"
	"github.com/sells-group/lakewatch/internal/resilience"
	"github.com/sells-group/lakewatch/internal/store"
	ee "github.com/sells-group/lakewatch/pkg/earthengine"
)

// initStore opens the configured store and applies its schema.
func initStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// initEarthEngine builds the Earth Engine client. Missing credentials are not
// fatal here; the first request reports them as an authentication error.
func initEarthEngine(ctx context.Context, m *metrics.Metrics) ee.Client {
	opts := []ee.Option{
		ee.WithBaseURL(cfg.EarthEngine.BaseURL),
		ee.WithProject(cfg.EarthEngine.Project),
		ee.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.EarthEngine.TimeoutSecs) * time.Second}),
		ee.WithRateLimit(cfg.EarthEngine.QPS, cfg.EarthEngine.Burst),
		ee.WithRetry(cfg.RetrySettings()),
	}
	if cfg.Circuit.FailureThreshold > 0 {
		opts = append(opts, ee.WithCircuitBreaker(resilience.NewCircuitBreaker(cfg.CircuitSettings())))
	}
	if m != nil {
		opts = append(opts, ee.WithObserver(m.ObserveEarthEngine))
	}
	if ts, err := ee.TokenSource(ctx, cfg.EarthEngine.CredentialsFile); err == nil {
		opts = append(opts, ee.WithTokenSource(ts))
	} else {
		zap.L().Warn("earth engine credentials unavailable", zap.Error(err))
	}
	return ee.NewClient(opts...)
}

// analysisEnv holds the components shared by the analysis commands.
type analysisEnv struct {
	Store    store.Store
	Client   ee.Client
	Lakes    *lake.Registry
	Analyzer *analysis.Analyzer
	Metrics  *metrics.Metrics
}

// initAnalysis wires the store, Earth Engine client and lake registry into an
// analyzer.
func initAnalysis(ctx context.Context) (*analysisEnv, error) {
	lakes, err := lake.LoadRegistry(cfg.LakesFile)
	if err != nil {
		return nil, err
	}
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	client := initEarthEngine(ctx, m)
	a := analysis.New(client, st, lakes, cfg.AnalysisSettings(), analysis.WithMetrics(m))
	return &analysisEnv{Store: st, Client: client, Lakes: lakes, Analyzer: a, Metrics: m}, nil
}

// Close releases the store.
func (e *analysisEnv) Close() {
	e.Store.Close() //nolint:errcheck
}
