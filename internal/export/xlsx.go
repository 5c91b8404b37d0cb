// Package export writes analysis runs to spreadsheets.
package export

import (
	"io"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/lakewatch/internal/model"
)

// Sheet names in the exported workbook.
const (
	SeriesSheet  = "series"
	SummarySheet = "summary"
)

var seriesHeader = []string{"date", "observed", "trend", "seasonal", "residual", "missing"}

// WriteXLSX writes a completed run as a workbook with a monthly series sheet
// and a summary sheet.
func WriteXLSX(w io.Writer, run *model.Run) error {
	if run == nil || run.Result == nil {
		return eris.New("export: run has no result")
	}

	f := xlsx.NewFile()
	if err := writeSeries(f, run.Result); err != nil {
		return err
	}
	if err := writeSummary(f, run); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "export: write workbook")
	}
	return nil
}

func writeSeries(f *xlsx.File, res *model.RunResult) error {
	sheet, err := f.AddSheet(SeriesSheet)
	if err != nil {
		return eris.Wrap(err, "export: add series sheet")
	}
	addStrings(sheet.AddRow(), seriesHeader...)

	d := res.Decomposition
	for i, s := range res.Series.Samples {
		row := sheet.AddRow()
		row.AddCell().SetString(s.Label())
		row.AddCell().SetFloat(s.Area)
		row.AddCell().SetFloat(at(d.Trend, i))
		row.AddCell().SetFloat(at(d.Seasonal, i))
		row.AddCell().SetFloat(at(d.Residual, i))
		row.AddCell().SetBool(s.Missing)
	}
	return nil
}

func writeSummary(f *xlsx.File, run *model.Run) error {
	sheet, err := f.AddSheet(SummarySheet)
	if err != nil {
		return eris.Wrap(err, "export: add summary sheet")
	}
	sum := run.Result.Summary

	addStrings(sheet.AddRow(), "field", "value")
	addStrings(sheet.AddRow(), "run_id", run.ID)
	addStrings(sheet.AddRow(), "lake", run.Lake)
	addStrings(sheet.AddRow(), "years", run.Range.String())
	addFloat(sheet.AddRow(), "mean", sum.Mean)
	addFloat(sheet.AddRow(), "std_dev", sum.StdDev)
	addFloat(sheet.AddRow(), "min", sum.Min)
	addFloat(sheet.AddRow(), "max", sum.Max)
	addFloat(sheet.AddRow(), "slope_per_year", sum.SlopePerYear)

	row := sheet.AddRow()
	row.AddCell().SetString("missing_months")
	row.AddCell().SetInt(sum.MissingMonths)
	return nil
}

func addStrings(row *xlsx.Row, values ...string) {
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}

func addFloat(row *xlsx.Row, label string, v float64) {
	row.AddCell().SetString(label)
	row.AddCell().SetFloat(v)
}

func at(values []float64, i int) float64 {
	if i < len(values) {
		return values[i]
	}
	return 0
}
