package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/lakewatch/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "lakewatch",
	Short: "Monthly lake water-surface monitoring",
	Long:  "Computes monthly water-surface area of a lake on Google Earth Engine, decomposes the series into trend and seasonal parts, and serves a map and chart dashboard.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
