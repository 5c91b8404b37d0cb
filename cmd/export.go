package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/lakewatch/internal/export"
	"github.com/sells-group/lakewatch/internal/model"
	"github.com/sells-group/lakewatch/internal/store"
)

var exportCmd = &cobra.Command{
	Use:   "export <run-id>",
	Short: "Write a run's series and decomposition to an XLSX workbook",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		out, _ := cmd.Flags().GetString("out")
		path, err := exportRun(ctx, st, args[0], out)
		if err != nil {
			return err
		}

		zap.L().Info("exported run", zap.String("run_id", args[0]), zap.String("path", path))
		fmt.Fprintln(os.Stdout, path)
		return nil
	},
}

func init() {
	exportCmd.Flags().String("out", "", "output file (default lakewatch-<lake>-<years>.xlsx)")
	rootCmd.AddCommand(exportCmd)
}

// exportRun writes the completed run runID to path and returns the path used.
func exportRun(ctx context.Context, st store.Store, runID, path string) (string, error) {
	run, err := st.GetRun(ctx, runID)
	if err != nil {
		return "", eris.Wrap(err, "export")
	}
	if run.Status != model.RunStatusComplete || run.Result == nil {
		return "", eris.Errorf("export: run %s is %s", runID, run.Status)
	}
	if path == "" {
		path = fmt.Sprintf("lakewatch-%s-%s.xlsx", run.Lake, run.Range)
	}

	f, err := os.Create(path)
	if err != nil {
		return "", eris.Wrapf(err, "export: create %s", path)
	}
	if err := export.WriteXLSX(f, run); err != nil {
		f.Close() //nolint:errcheck
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", eris.Wrapf(err, "export: close %s", path)
	}
	return path, nil
}
