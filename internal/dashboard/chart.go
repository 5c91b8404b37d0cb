package dashboard

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/rotisserie/eris"

	"github.com/sells-group/lakewatch/internal/model"
	"github.com/sells-group/lakewatch/internal/store"
)

const squareMetersPerKm2 = 1e6

// RenderChart writes an HTML line chart of the run's observed water area
// and its trend, seasonal and residual components, in square kilometers.
func RenderChart(w io.Writer, run *model.Run) error {
	if run == nil || run.Result == nil {
		return eris.New("dashboard: run has no result")
	}
	res := run.Result

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: "Water area",
			Width:     "100%",
			Height:    "480px",
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Water surface area",
			Subtitle: fmt.Sprintf("%s, %s", run.Lake, run.Range.String()),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "bottom"}),
		charts.WithXAxisOpts(opts.XAxis{
			Name:      "Month",
			AxisLabel: &opts.AxisLabel{Rotate: 45},
		}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Area (km²)"}),
	)

	line.SetXAxis(res.Series.Labels()).
		AddSeries("Observed", lineData(res.Series.Values())).
		AddSeries("Trend", lineData(res.Decomposition.Trend)).
		AddSeries("Seasonal", lineData(res.Decomposition.Seasonal)).
		AddSeries("Residual", lineData(res.Decomposition.Residual))

	return eris.Wrap(line.Render(w), "dashboard: render chart")
}

func lineData(values []float64) []opts.LineData {
	out := make([]opts.LineData, len(values))
	for i, v := range values {
		out[i] = opts.LineData{Value: v / squareMetersPerKm2}
	}
	return out
}

// handleChart renders the current chart, or a stored run given by ?run=.
func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	run := s.state.Chart()
	if id := r.URL.Query().Get("run"); id != "" && (run == nil || run.ID != id) {
		stored, err := s.store.GetRun(r.Context(), id)
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		run = stored
	}
	if run == nil || run.Result == nil {
		writeError(w, http.StatusNotFound, "no completed analysis")
		return
	}

	var buf bytes.Buffer
	if err := RenderChart(&buf, run); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
