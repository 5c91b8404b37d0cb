package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/lakewatch/internal/model"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Compute the monthly water-area series for a lake",
	Long:  "Runs a one-shot analysis on Earth Engine, stores the run and prints the series with its trend, seasonal and residual components.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("analyze"); err != nil {
			return err
		}
		ctx := cmd.Context()

		lakeKey, _ := cmd.Flags().GetString("lake")
		if lakeKey == "" {
			lakeKey = cfg.DefaultLake
		}
		yearsFlag, _ := cmd.Flags().GetString("years")
		asJSON, _ := cmd.Flags().GetBool("json")

		years, err := resolveYears(yearsFlag, time.Now())
		if err != nil {
			return err
		}

		env, err := initAnalysis(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		zap.L().Info("starting analysis",
			zap.String("lake", lakeKey),
			zap.String("years", years.String()),
		)
		run, err := env.Analyzer.Run(ctx, lakeKey, years)
		if err != nil {
			return eris.Wrap(err, "analyze")
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(run)
		}
		formatRunResult(os.Stdout, run)
		return nil
	},
}

func init() {
	analyzeCmd.Flags().String("lake", "", "lake key (default from config)")
	analyzeCmd.Flags().String("years", "", "year range such as 2019-2021 (default: last three years)")
	analyzeCmd.Flags().Bool("json", false, "print the run as JSON")
	rootCmd.AddCommand(analyzeCmd)
}

// resolveYears parses the --years flag. An empty flag selects the current
// year and the two before it, never earlier than the first Sentinel-2 year.
func resolveYears(flag string, now time.Time) (model.YearRange, error) {
	if flag == "" {
		end := now.Year()
		return model.YearRange{Start: max(model.FirstSentinelYear, end-2), End: end}, nil
	}
	years, err := model.ParseYearRange(flag)
	if err != nil {
		return model.YearRange{}, err
	}
	if err := years.Validate(model.FirstSentinelYear, now.Year()); err != nil {
		return model.YearRange{}, err
	}
	return years, nil
}

// formatRunResult writes the monthly series of a completed run and its
// summary to out. Areas are shown in square kilometers.
func formatRunResult(out io.Writer, run *model.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	_, _ = fmt.Fprintf(out, "Run %s  lake=%s  years=%s  status=%s\n\n", truncateID(run.ID), run.Lake, run.Range, run.Status)
	if run.Result == nil {
		if run.Error != "" {
			_, _ = fmt.Fprintf(out, "Error: %s\n", run.Error)
		}
		return
	}

	res := run.Result
	_, _ = fmt.Fprintln(w, "MONTH\tAREA_KM2\tTREND\tSEASONAL\tRESIDUAL\t")
	for i, s := range res.Series.Samples {
		area := fmt.Sprintf("%.2f", km2(s.Area))
		if s.Missing {
			area = "-"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%.2f\t%.2f\t%.2f\t\n",
			s.Label(),
			area,
			km2(at(res.Decomposition.Trend, i)),
			km2(at(res.Decomposition.Seasonal, i)),
			km2(at(res.Decomposition.Residual, i)),
		)
	}
	_ = w.Flush()

	sum := res.Summary
	_, _ = fmt.Fprintf(out, "\nMean %.2f km²  StdDev %.2f  Min %.2f  Max %.2f  Slope %.2f km²/yr  Missing %d\n",
		km2(sum.Mean), km2(sum.StdDev), km2(sum.Min), km2(sum.Max), km2(sum.SlopePerYear), sum.MissingMonths)
}

func km2(m2 float64) float64 {
	return m2 / 1e6
}

func at(values []float64, i int) float64 {
	if i < len(values) {
		return values[i]
	}
	return 0
}
