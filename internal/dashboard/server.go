// Package dashboard serves the water-area dashboard: the map page, its JSON
// API, the chart page and the tile proxy.
package dashboard

import (
	"context"
	"embed"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/language"

	"github.com/sells-group/lakewatch/internal/geospatial"
	"github.com/sells-group/lakewatch/internal/lake"
	"github.com/sells-group/lakewatch/internal/metrics"
	"github.com/sells-group/lakewatch/internal/model"
	"github.com/sells-group/lakewatch/internal/resilience"
	"github.com/sells-group/lakewatch/internal/store"
	ee "github.com/sells-group/lakewatch/pkg/earthengine"
)

var errInitRunning = eris.New("dashboard: initialization already in progress")

//go:embed static
var staticFiles embed.FS

// WaterLayer is the tile layer serving the current overlay.
const WaterLayer = "water"

// Analyzer runs analyses and builds overlays for the dashboard.
type Analyzer interface {
	Create(ctx context.Context, lakeKey string, years model.YearRange) (*model.Run, error)
	Execute(ctx context.Context, run *model.Run) (*model.Run, error)
	Overlay(ctx context.Context, lakeKey string) (*model.Overlay, error)
	Boundary(ctx context.Context, lakeKey string) ([]byte, error)
	Lakes() *lake.Registry
}

// Config controls the dashboard.
type Config struct {
	DefaultLake    string
	Language       string // en or zh
	CORSOrigins    []string
	InitAttempts   int
	InitDelay      time.Duration
	RefreshOverlay bool // refresh the overlay after each completed analysis
}

// Server wires the dashboard state to the analyzer, store and tile proxy.
type Server struct {
	cfg      Config
	client   ee.Client
	analyzer Analyzer
	store    store.Store
	tiles    *geospatial.TileProxy
	water    *geospatial.OverlaySource
	metrics  *metrics.Metrics
	state    *State
	language language.Tag

	// ctx bounds background analyses; it ends when the server shuts down.
	ctx    context.Context
	wg     sync.WaitGroup
	initMu sync.Mutex
	now    func() time.Time
}

// New creates a Server. ctx bounds the analyses it starts in the background.
// water may be nil when tiles has no overlay layer.
func New(ctx context.Context, cfg Config, client ee.Client, analyzer Analyzer, st store.Store,
	tiles *geospatial.TileProxy, water *geospatial.OverlaySource, m *metrics.Metrics,
) *Server {
	if cfg.InitAttempts <= 0 {
		cfg.InitAttempts = 3
	}
	if cfg.InitDelay <= 0 {
		cfg.InitDelay = 3 * time.Second
	}
	if cfg.DefaultLake == "" {
		cfg.DefaultLake = lake.PoyangKey
	}
	if m == nil {
		m = metrics.New()
	}
	return &Server{
		cfg:      cfg,
		client:   client,
		analyzer: analyzer,
		store:    st,
		tiles:    tiles,
		water:    water,
		metrics:  m,
		state:    NewState(),
		language: matchLanguage(cfg.Language),
		ctx:      ctx,
		now:      time.Now,
	}
}

// State exposes the dashboard state.
func (s *Server) State() *State {
	return s.state
}

// Wait blocks until background analyses and overlay refreshes return.
func (s *Server) Wait() {
	s.wg.Wait()
}

// Routes builds the HTTP handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.metrics.Middleware)

	origins := s.cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "Accept-Language"},
		MaxAge:         300,
	}))

	static, _ := fs.Sub(staticFiles, "static")
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFileFS(w, r, static, "index.html")
	})
	r.Handle("/static/*", http.StripPrefix("/static", http.FileServerFS(static)))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", s.metrics.Handler())
	r.Get("/chart", s.handleChart)

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Post("/init", s.handleInit)
		r.Get("/years", s.handleYears)
		r.Get("/lakes", s.handleLakes)
		r.Get("/lakes/{lake}/boundary", s.handleBoundary)
		r.Post("/analyze", s.handleAnalyze)
		r.Delete("/analyze", s.handleCancel)
		r.Get("/runs", s.handleListRuns)
		r.Get("/runs/{id}", s.handleGetRun)
		r.Get("/runs/{id}/export.xlsx", s.handleExport)
		r.Get("/series", s.handleSeries)
		r.Get("/overlay", s.handleOverlay)
	})

	if s.tiles != nil {
		r.Handle("/tiles/*", http.StripPrefix("/tiles", s.tiles))
	}
	return r
}

// Initialize probes Earth Engine with fixed-delay retries. Authentication
// failures stop the retries and ask the user to sign in.
func (s *Server) Initialize(ctx context.Context) error {
	if !s.initMu.TryLock() {
		return errInitRunning
	}
	defer s.initMu.Unlock()

	s.state.setStatus(statusLine{phase: PhaseInitializing, key: msgInitializing})

	cfg := resilience.FixedRetry(s.cfg.InitAttempts, s.cfg.InitDelay)
	cfg.ShouldRetry = func(err error) bool { return !ee.IsAuthError(err) }
	cfg.OnRetry = func(attempt, remaining int, err error) {
		zap.L().Warn("dashboard: earth engine init failed, retrying",
			zap.Int("attempt", attempt),
			zap.Int("remaining", remaining),
			zap.Error(err),
		)
		s.state.setStatus(statusLine{phase: PhaseInitializing, key: msgRetrying, args: []any{remaining}, err: true})
	}

	err := resilience.Do(ctx, cfg, s.client.Ping)
	switch {
	case err == nil:
		s.state.setInitialized(true, statusLine{phase: PhaseReady, key: msgReady})
		zap.L().Info("dashboard: earth engine initialized")
		return nil
	case ee.IsAuthError(err):
		s.state.setInitialized(false, statusLine{phase: PhaseAuthRequired, key: msgAuthRequired, err: true, retry: true})
		zap.L().Error("dashboard: earth engine authentication required", zap.Error(err))
		return eris.Wrap(err, "dashboard: initialize")
	default:
		s.state.setInitialized(false, statusLine{phase: PhaseInitFailed, key: msgInitFailed, args: []any{err.Error()}, err: true, retry: true})
		zap.L().Error("dashboard: earth engine initialization failed", zap.Error(err))
		return eris.Wrap(err, "dashboard: initialize")
	}
}

// Start launches an analysis in the background and returns the queued run.
// It fails with ErrBusy while another analysis runs.
func (s *Server) Start(lakeKey string, years model.YearRange) (*model.Run, error) {
	ctx, cancel := context.WithCancel(s.ctx)
	if err := s.state.begin(cancel); err != nil {
		cancel()
		return nil, err
	}

	run, err := s.analyzer.Create(ctx, lakeKey, years)
	if err != nil {
		s.state.abort()
		return nil, err
	}
	s.state.started(run)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		done, err := s.analyzer.Execute(ctx, run)
		s.state.finish(done, err)

		if err == nil && s.cfg.RefreshOverlay {
			s.RefreshOverlay(s.ctx, done.Lake)
		}
	}()
	return run, nil
}

// RefreshOverlay builds a new water overlay for lakeKey and swaps it in.
// Failures are logged; the previous overlay stays.
func (s *Server) RefreshOverlay(ctx context.Context, lakeKey string) {
	overlay, err := s.analyzer.Overlay(ctx, lakeKey)
	s.metrics.ObserveOverlay(err)
	if err != nil {
		zap.L().Warn("dashboard: overlay refresh failed",
			zap.String("lake", lakeKey),
			zap.Error(err),
		)
		return
	}
	s.setOverlay(overlay)
}

// RestoreOverlay loads the latest stored overlay for the default lake.
func (s *Server) RestoreOverlay(ctx context.Context) error {
	overlay, err := s.store.LatestOverlay(ctx, s.cfg.DefaultLake)
	if err != nil {
		return eris.Wrap(err, "dashboard: restore overlay")
	}
	if overlay != nil {
		s.setOverlay(overlay)
	}
	return nil
}

// RestoreChart shows the latest completed run for the default lake.
func (s *Server) RestoreChart(ctx context.Context) error {
	runs, err := s.store.ListRuns(ctx, store.RunFilter{
		Status: model.RunStatusComplete,
		Lake:   s.cfg.DefaultLake,
		Limit:  1,
	})
	if err != nil {
		return eris.Wrap(err, "dashboard: restore chart")
	}
	if len(runs) > 0 && runs[0].Result != nil {
		s.state.SetChart(&runs[0])
	}
	return nil
}

func (s *Server) setOverlay(overlay *model.Overlay) {
	prev := s.state.SetOverlay(overlay)
	if s.water != nil {
		s.water.SetMap(overlay.MapName)
	}
	if s.tiles != nil && prev != nil {
		s.tiles.Invalidate(WaterLayer)
	}
}

// ScheduleOverlayRefresh refreshes the default lake's overlay on a cron
// schedule. The returned func stops the schedule and waits for a running
// refresh.
func (s *Server) ScheduleOverlayRefresh(spec string) (func(), error) {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		if !s.state.Initialized() {
			return
		}
		s.RefreshOverlay(s.ctx, s.cfg.DefaultLake)
	})
	if err != nil {
		return nil, eris.Wrapf(err, "dashboard: parse refresh schedule %q", spec)
	}
	c.Start()
	zap.L().Info("dashboard: overlay refresh scheduled", zap.String("schedule", spec))
	return func() { <-c.Stop().Done() }, nil
}
