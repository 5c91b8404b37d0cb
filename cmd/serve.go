package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/lakewatch/internal/dashboard"
	"github.com/sells-group/lakewatch/internal/geospatial"
)

// BasemapLayer is the tile layer name of the proxied basemap.
const BasemapLayer = "basemap"

var (
	servePort       int
	serveRefreshRun bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the water-area dashboard",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initAnalysis(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		cache := geospatial.NewTileCache(cfg.Tiles.CacheSize, time.Duration(cfg.Tiles.CacheTTLSecs)*time.Second)
		water := geospatial.NewOverlaySource(env.Client)
		tiles := geospatial.NewTileProxy(map[string]geospatial.TileSource{
			BasemapLayer:         geospatial.NewURLSource(cfg.Tiles.BasemapURL, cfg.Tiles.UserAgent),
			dashboard.WaterLayer: water,
		}, cache)
		env.Metrics.RegisterTileCache(func() (int, int64, int64) {
			st := cache.Stats()
			return st.Entries, st.Hits, st.Misses
		})

		srv := dashboard.New(ctx, dashboard.Config{
			DefaultLake:    cfg.DefaultLake,
			Language:       cfg.Dashboard.Language,
			CORSOrigins:    cfg.Server.CORSOrigins,
			InitAttempts:   cfg.Init.Attempts,
			InitDelay:      cfg.InitDelay(),
			RefreshOverlay: serveRefreshRun,
		}, env.Client, env.Analyzer, env.Store, tiles, water, env.Metrics)

		if err := srv.RestoreOverlay(ctx); err != nil {
			zap.L().Warn("restore overlay failed", zap.Error(err))
		}
		if err := srv.RestoreChart(ctx); err != nil {
			zap.L().Warn("restore chart failed", zap.Error(err))
		}

		go func() {
			if err := srv.Initialize(ctx); err != nil {
				return
			}
			if srv.State().Overlay() == nil {
				srv.RefreshOverlay(ctx, cfg.DefaultLake)
			}
		}()

		if spec := cfg.Overlay.RefreshSchedule; spec != "" {
			stopRefresh, err := srv.ScheduleOverlayRefresh(spec)
			if err != nil {
				return err
			}
			defer stopRefresh()
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		httpSrv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           srv.Routes(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			httpSrv.Shutdown(shutdownCtx) //nolint:errcheck
		}()

		zap.L().Info("starting dashboard",
			zap.Int("port", port),
			zap.String("lake", cfg.DefaultLake),
		)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		srv.Wait()
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().BoolVar(&serveRefreshRun, "refresh-overlay", true, "refresh the water overlay after each completed analysis")
	rootCmd.AddCommand(serveCmd)
}
