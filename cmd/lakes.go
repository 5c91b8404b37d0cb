package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/lakewatch/internal/lake"
)

var lakesCmd = &cobra.Command{
	Use:   "lakes",
	Short: "List configured lakes",
	RunE: func(cmd *cobra.Command, _ []string) error {
		reg, err := lake.LoadRegistry(cfg.LakesFile)
		if err != nil {
			return err
		}
		formatLakes(os.Stdout, reg.List(), cfg.DefaultLake)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(lakesCmd)
}

// formatLakes writes the lakes as a table, marking the default with "*".
func formatLakes(out io.Writer, lakes []lake.Lake, defaultKey string) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "KEY\tNAME\tCENTER\tBOUNDARY")
	for _, l := range lakes {
		key := l.Key
		if key == defaultKey {
			key += " *"
		}
		boundary := l.BoundaryAsset
		if l.BoundaryFile != "" {
			boundary = l.BoundaryFile
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%.4f,%.4f\t%s\n", key, l.Name, l.Center.Lat, l.Center.Lng, boundary)
	}
	_ = w.Flush()
}
