package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/lakewatch/internal/dashboard"
)

var overlayCmd = &cobra.Command{
	Use:   "overlay",
	Short: "Create the latest water-mask overlay for a lake",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("analyze"); err != nil {
			return err
		}
		ctx := cmd.Context()

		lakeKey, _ := cmd.Flags().GetString("lake")
		if lakeKey == "" {
			lakeKey = cfg.DefaultLake
		}

		env, err := initAnalysis(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		overlay, err := env.Analyzer.Overlay(ctx, lakeKey)
		if err != nil {
			return eris.Wrap(err, "overlay")
		}

		fmt.Fprintf(os.Stdout, "Overlay:  %s\n", overlay.ID)
		fmt.Fprintf(os.Stdout, "Lake:     %s\n", overlay.Lake)
		fmt.Fprintf(os.Stdout, "Imagery:  %s to %s\n", overlay.From.Format("2006-01-02"), overlay.To.Format("2006-01-02"))
		fmt.Fprintf(os.Stdout, "Map:      %s\n", overlay.MapName)
		fmt.Fprintf(os.Stdout, "Tiles:    %s\n", dashboard.OverlayTileURL(overlay))
		return nil
	},
}

func init() {
	overlayCmd.Flags().String("lake", "", "lake key (default from config)")
	rootCmd.AddCommand(overlayCmd)
}
