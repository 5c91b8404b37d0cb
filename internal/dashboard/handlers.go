package dashboard

import (
	"bytes"
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"golang.org/x/text/language"

	"github.com/sells-group/lakewatch/internal/export"
	"github.com/sells-group/lakewatch/internal/model"
	"github.com/sells-group/lakewatch/internal/store"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("dashboard: write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// languageFor picks the response language: the lang query parameter, then
// the configured language, then Accept-Language.
func (s *Server) languageFor(r *http.Request) language.Tag {
	if q := r.URL.Query().Get("lang"); q != "" {
		return matchLanguage(q)
	}
	if s.cfg.Language == "" {
		return matchLanguage(r.Header.Get("Accept-Language"))
	}
	return s.language
}

func (s *Server) writeStatus(w http.ResponseWriter, r *http.Request, code int) Status {
	tag := s.languageFor(r)
	status := s.state.Status(newPrinter(tag))
	w.Header().Set("Content-Language", tag.String())
	writeJSON(w, code, status)
	return status
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeStatus(w, r, http.StatusOK)
}

func (s *Server) handleInit(w http.ResponseWriter, r *http.Request) {
	code := http.StatusOK
	if err := s.Initialize(r.Context()); err != nil {
		switch {
		case errors.Is(err, errInitRunning):
			code = http.StatusConflict
		case s.state.Phase() == PhaseAuthRequired:
			code = http.StatusUnauthorized
		default:
			code = http.StatusBadGateway
		}
	}
	s.writeStatus(w, r, code)
}

type yearsResponse struct {
	Years   []int           `json:"years"`
	Default model.YearRange `json:"default"`
}

func (s *Server) handleYears(w http.ResponseWriter, _ *http.Request) {
	current := s.now().Year()
	all := model.YearRange{Start: model.FirstSentinelYear, End: current}
	def := model.YearRange{Start: max(model.FirstSentinelYear, current-2), End: current}
	writeJSON(w, http.StatusOK, yearsResponse{Years: all.Years(), Default: def})
}

func (s *Server) handleLakes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"default": s.cfg.DefaultLake,
		"lakes":   s.analyzer.Lakes().List(),
	})
}

func (s *Server) handleBoundary(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "lake")
	if _, ok := s.analyzer.Lakes().Get(key); !ok {
		writeError(w, http.StatusNotFound, "unknown lake")
		return
	}
	if !s.state.Initialized() {
		if l, _ := s.analyzer.Lakes().Get(key); l.Boundary() == nil {
			writeError(w, http.StatusServiceUnavailable, "earth engine not initialized")
			return
		}
	}

	data, err := s.analyzer.Boundary(r.Context(), key)
	if err != nil {
		zap.L().Warn("dashboard: boundary", zap.String("lake", key), zap.Error(err))
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	_, _ = w.Write(data)
}

type analyzeRequest struct {
	Lake  string `json:"lake"`
	Start int    `json:"start"`
	End   int    `json:"end"`
	Years string `json:"years"` // "2019-2021", alternative to start/end
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if !s.state.Initialized() {
		writeError(w, http.StatusServiceUnavailable, "earth engine not initialized")
		return
	}

	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Lake == "" {
		req.Lake = s.cfg.DefaultLake
	}

	years := model.YearRange{Start: req.Start, End: req.End}
	if req.Years != "" {
		parsed, err := model.ParseYearRange(req.Years)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		years = parsed
	}

	run, err := s.Start(req.Lake, years)
	switch {
	case errors.Is(err, ErrBusy):
		runID, _ := s.state.Running()
		writeJSON(w, http.StatusConflict, map[string]string{
			"error":  newPrinter(s.languageFor(r)).Sprintf(msgBusy),
			"run_id": runID,
		})
		return
	case err != nil:
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"run_id": run.ID,
		"status": string(run.Status),
	})
}

func (s *Server) handleCancel(w http.ResponseWriter, _ *http.Request) {
	runID, _ := s.state.Running()
	if !s.state.Cancel() {
		writeError(w, http.StatusNotFound, "no analysis running")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID, "status": "canceling"})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.RunFilter{
		Status: model.RunStatus(q.Get("status")),
		Lake:   q.Get("lake"),
		Limit:  20,
	}
	if v, err := strconv.Atoi(q.Get("limit")); err == nil && v > 0 && v <= 500 {
		filter.Limit = v
	}
	if v, err := strconv.Atoi(q.Get("offset")); err == nil && v >= 0 {
		filter.Offset = v
	}

	runs, err := s.store.ListRuns(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if runs == nil {
		runs = []model.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) loadRun(w http.ResponseWriter, r *http.Request) (*model.Run, bool) {
	run, err := s.store.GetRun(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return nil, false
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	return run, true
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, ok := s.loadRun(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	run, ok := s.loadRun(w, r)
	if !ok {
		return
	}
	if run.Result == nil {
		writeError(w, http.StatusConflict, "run has no result")
		return
	}

	var buf bytes.Buffer
	if err := export.WriteXLSX(&buf, run); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", attachment(run.Lake+"-"+run.Range.String()+".xlsx"))
	_, _ = w.Write(buf.Bytes())
}

// attachment formats a Content-Disposition value, quoting or encoding the
// filename as needed.
func attachment(filename string) string {
	v := mime.FormatMediaType("attachment", map[string]string{"filename": filename})
	if v == "" {
		return "attachment"
	}
	return v
}

type seriesResponse struct {
	RunID    string          `json:"run_id"`
	Lake     string          `json:"lake"`
	Range    model.YearRange `json:"range"`
	Labels   []string        `json:"labels"`
	Observed []float64       `json:"observed"`
	Trend    []float64       `json:"trend"`
	Seasonal []float64       `json:"seasonal"`
	Residual []float64       `json:"residual"`
	Missing  []bool          `json:"missing"`
	Summary  model.Summary   `json:"summary"`
}

func newSeriesResponse(run *model.Run) seriesResponse {
	res := run.Result
	missing := make([]bool, len(res.Series.Samples))
	for i, smp := range res.Series.Samples {
		missing[i] = smp.Missing
	}
	return seriesResponse{
		RunID:    run.ID,
		Lake:     run.Lake,
		Range:    run.Range,
		Labels:   res.Series.Labels(),
		Observed: res.Series.Values(),
		Trend:    res.Decomposition.Trend,
		Seasonal: res.Decomposition.Seasonal,
		Residual: res.Decomposition.Residual,
		Missing:  missing,
		Summary:  res.Summary,
	}
}

func (s *Server) handleSeries(w http.ResponseWriter, _ *http.Request) {
	run := s.state.Chart()
	if run == nil || run.Result == nil {
		writeError(w, http.StatusNotFound, "no completed analysis")
		return
	}
	writeJSON(w, http.StatusOK, newSeriesResponse(run))
}

type overlayResponse struct {
	*model.Overlay
	TileURL string `json:"tile_url"`
}

func (s *Server) handleOverlay(w http.ResponseWriter, _ *http.Request) {
	overlay := s.state.Overlay()
	if overlay == nil {
		writeError(w, http.StatusNotFound, "no overlay")
		return
	}
	writeJSON(w, http.StatusOK, overlayResponse{Overlay: overlay, TileURL: OverlayTileURL(overlay)})
}

// OverlayTileURL returns the dashboard tile URL template of an overlay. The
// version query keeps browsers from reusing tiles of a replaced overlay.
func OverlayTileURL(overlay *model.Overlay) string {
	return "/tiles/" + WaterLayer + "/{z}/{x}/{y}.png?v=" + overlay.ID
}
