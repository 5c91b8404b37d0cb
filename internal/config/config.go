package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/lakewatch/internal/analysis"
	"github.com/sells-group/lakewatch/internal/resilience"
	"github.com/sells-group/lakewatch/internal/store"
	"github.com/sells-group/lakewatch/internal/water"
)

// Config holds the full application configuration.
type Config struct {
	Store       store.Config      `yaml:"store" mapstructure:"store"`
	EarthEngine EarthEngineConfig `yaml:"earthengine" mapstructure:"earthengine"`
	Init        InitConfig        `yaml:"init" mapstructure:"init"`
	Retry       RetryConfig       `yaml:"retry" mapstructure:"retry"`
	Circuit     CircuitConfig     `yaml:"circuit" mapstructure:"circuit"`
	Analysis    AnalysisConfig    `yaml:"analysis" mapstructure:"analysis"`
	Overlay     OverlayConfig     `yaml:"overlay" mapstructure:"overlay"`
	Tiles       TilesConfig       `yaml:"tiles" mapstructure:"tiles"`
	Server      ServerConfig      `yaml:"server" mapstructure:"server"`
	Dashboard   DashboardConfig   `yaml:"dashboard" mapstructure:"dashboard"`
	LakesFile   string            `yaml:"lakes_file" mapstructure:"lakes_file"`
	DefaultLake string            `yaml:"default_lake" mapstructure:"default_lake"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
}

// EarthEngineConfig configures the Earth Engine REST client.
type EarthEngineConfig struct {
	BaseURL         string  `yaml:"base_url" mapstructure:"base_url"`
	Project         string  `yaml:"project" mapstructure:"project"`
	CredentialsFile string  `yaml:"credentials_file" mapstructure:"credentials_file"`
	QPS             float64 `yaml:"qps" mapstructure:"qps"`
	Burst           int     `yaml:"burst" mapstructure:"burst"`
	TimeoutSecs     int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxConcurrency  int     `yaml:"max_concurrency" mapstructure:"max_concurrency"`
}

// InitConfig controls the fixed-delay Earth Engine initialization retries.
type InitConfig struct {
	Attempts int `yaml:"attempts" mapstructure:"attempts"`
	DelayMs  int `yaml:"delay_ms" mapstructure:"delay_ms"`
}

// RetryConfig controls retries of individual Earth Engine requests.
type RetryConfig struct {
	Attempts         int `yaml:"attempts" mapstructure:"attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// CircuitConfig configures the Earth Engine circuit breaker.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// AnalysisConfig configures monthly water-area analysis.
type AnalysisConfig struct {
	Collection       string  `yaml:"collection" mapstructure:"collection"`
	CloudMax         float64 `yaml:"cloud_max" mapstructure:"cloud_max"`
	Scale            float64 `yaml:"scale" mapstructure:"scale"`
	MaxPixels        float64 `yaml:"max_pixels" mapstructure:"max_pixels"`
	TrendWindow      int     `yaml:"trend_window" mapstructure:"trend_window"`
	TrimFuture       bool    `yaml:"trim_future" mapstructure:"trim_future"`
	CacheFinalMonths bool    `yaml:"cache_final_months" mapstructure:"cache_final_months"`
}

// OverlayConfig configures the latest water-mask overlay.
type OverlayConfig struct {
	LookbackMonths  int      `yaml:"lookback_months" mapstructure:"lookback_months"`
	CloudMax        float64  `yaml:"cloud_max" mapstructure:"cloud_max"`
	Palette         []string `yaml:"palette" mapstructure:"palette"`
	RefreshSchedule string   `yaml:"refresh_schedule" mapstructure:"refresh_schedule"` // cron spec, empty disables
}

// TilesConfig configures the tile proxy.
type TilesConfig struct {
	CacheSize    int    `yaml:"cache_size" mapstructure:"cache_size"`
	CacheTTLSecs int    `yaml:"cache_ttl_secs" mapstructure:"cache_ttl_secs"`
	BasemapURL   string `yaml:"basemap_url" mapstructure:"basemap_url"`
	UserAgent    string `yaml:"user_agent" mapstructure:"user_agent"`
}

// ServerConfig configures the dashboard server.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// DashboardConfig configures the dashboard UI.
type DashboardConfig struct {
	Language string `yaml:"language" mapstructure:"language"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LAKEWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "lakewatch.db")
	v.SetDefault("earthengine.base_url", "https://earthengine.googleapis.com/v1")
	v.SetDefault("earthengine.project", "earthengine-legacy")
	v.SetDefault("earthengine.qps", 5.0)
	v.SetDefault("earthengine.burst", 5)
	v.SetDefault("earthengine.timeout_secs", 300)
	v.SetDefault("earthengine.max_concurrency", 4)
	v.SetDefault("init.attempts", 3)
	v.SetDefault("init.delay_ms", 3000)
	v.SetDefault("retry.attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 500)
	v.SetDefault("retry.max_backoff_ms", 30000)
	v.SetDefault("circuit.failure_threshold", 5)
	v.SetDefault("circuit.reset_timeout_secs", 60)
	v.SetDefault("analysis.collection", water.DefaultCollection)
	v.SetDefault("analysis.cloud_max", water.DefaultCloudMax)
	v.SetDefault("analysis.scale", water.DefaultScale)
	v.SetDefault("analysis.max_pixels", water.DefaultMaxPixels)
	v.SetDefault("analysis.trend_window", 12)
	v.SetDefault("analysis.trim_future", true)
	v.SetDefault("analysis.cache_final_months", true)
	v.SetDefault("overlay.lookback_months", 3)
	v.SetDefault("overlay.cloud_max", 10)
	v.SetDefault("overlay.palette", []string{"ffffff", "0000ff"})
	v.SetDefault("overlay.refresh_schedule", "")
	v.SetDefault("tiles.cache_size", 4096)
	v.SetDefault("tiles.cache_ttl_secs", 3600)
	v.SetDefault("tiles.basemap_url", "https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png")
	v.SetDefault("tiles.user_agent", "lakewatch/1.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("dashboard.language", "en")
	v.SetDefault("lakes_file", "lakes.yaml")
	v.SetDefault("default_lake", "poyang")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command needs. mode is "serve" for the
// dashboard, "analyze" for analysis commands and "store" for commands that
// only touch the database.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Sprintf("store.driver must be sqlite or postgres, got %q", c.Store.Driver))
	}
	if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required for postgres")
	}

	switch mode {
	case "store":
	case "serve", "analyze":
		if c.EarthEngine.Project == "" {
			errs = append(errs, "earthengine.project is required")
		}
		if c.EarthEngine.MaxConcurrency < 1 || c.EarthEngine.MaxConcurrency > 32 {
			errs = append(errs, "earthengine.max_concurrency must be between 1 and 32")
		}
		if c.Analysis.CloudMax <= 0 || c.Analysis.CloudMax > 100 {
			errs = append(errs, "analysis.cloud_max must be in (0, 100]")
		}
		if c.Overlay.CloudMax <= 0 || c.Overlay.CloudMax > 100 {
			errs = append(errs, "overlay.cloud_max must be in (0, 100]")
		}
		if c.Analysis.Scale <= 0 {
			errs = append(errs, "analysis.scale must be > 0")
		}
		if c.Init.Attempts < 1 {
			errs = append(errs, "init.attempts must be >= 1")
		}
		if mode == "serve" {
			if c.Server.Port <= 0 {
				errs = append(errs, "server.port must be > 0")
			}
			switch c.Dashboard.Language {
			case "", "en", "zh":
			default:
				errs = append(errs, fmt.Sprintf("dashboard.language must be en or zh, got %q", c.Dashboard.Language))
			}
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// AnalysisSettings converts the analysis and overlay sections into analyzer
// settings.
func (c *Config) AnalysisSettings() analysis.Config {
	return analysis.Config{
		Params: water.Params{
			Collection: c.Analysis.Collection,
			CloudMax:   c.Analysis.CloudMax,
			Scale:      c.Analysis.Scale,
			MaxPixels:  c.Analysis.MaxPixels,
		},
		MaxConcurrency:        c.EarthEngine.MaxConcurrency,
		TrendWindow:           c.Analysis.TrendWindow,
		TrimFuture:            c.Analysis.TrimFuture,
		CacheFinalMonths:      c.Analysis.CacheFinalMonths,
		OverlayLookbackMonths: c.Overlay.LookbackMonths,
		OverlayCloudMax:       c.Overlay.CloudMax,
		OverlayPalette:        c.Overlay.Palette,
	}
}

// RetrySettings returns the per-request retry policy.
func (c *Config) RetrySettings() resilience.RetryConfig {
	return resilience.FromSettings(c.Retry.Attempts, c.Retry.InitialBackoffMs, c.Retry.MaxBackoffMs)
}

// CircuitSettings returns the circuit breaker settings.
func (c *Config) CircuitSettings() resilience.CircuitBreakerConfig {
	return resilience.CircuitFromSettings(c.Circuit.FailureThreshold, c.Circuit.ResetTimeoutSecs)
}

// InitDelay returns the delay between initialization attempts.
func (c *Config) InitDelay() time.Duration {
	return time.Duration(c.Init.DelayMs) * time.Millisecond
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
