package dashboard

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
	"golang.org/x/text/message"

	"github.com/sells-group/lakewatch/internal/model"
)

// ErrBusy is returned when an analysis is requested while one is running.
var ErrBusy = eris.New("dashboard: analysis already running")

// Phase is the coarse state of the dashboard.
type Phase string

const (
	PhaseIdle         Phase = "idle"
	PhaseInitializing Phase = "initializing"
	PhaseReady        Phase = "ready"
	PhaseAuthRequired Phase = "auth_required"
	PhaseInitFailed   Phase = "init_failed"
	PhaseAnalyzing    Phase = "analyzing"
)

// Status is the localized status shown above the map.
type Status struct {
	Phase       Phase  `json:"phase"`
	Message     string `json:"message"`
	Error       bool   `json:"error"`
	Retry       bool   `json:"retry"`
	Initialized bool   `json:"initialized"`
	RunID       string `json:"run_id,omitempty"`
}

type statusLine struct {
	phase Phase
	key   string
	args  []any
	err   bool
	retry bool
}

// State is the single dashboard session: initialization, the analysis in
// flight, and the chart and overlay currently shown. At most one chart and
// one overlay are held; setting a new one drops the previous.
type State struct {
	mu sync.Mutex

	initialized bool
	status      statusLine

	cancel context.CancelFunc
	runID  string

	chart   *model.Run
	overlay *model.Overlay
}

// NewState returns an uninitialized state.
func NewState() *State {
	return &State{status: statusLine{phase: PhaseIdle, key: msgNotInitialized}}
}

// Initialized reports whether Earth Engine answered the init probe.
func (s *State) Initialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

// Phase returns the current phase.
func (s *State) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status.phase
}

// Status renders the current status with p.
func (s *State) Status(p *message.Printer) Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		Phase:       s.status.phase,
		Message:     p.Sprintf(s.status.key, s.status.args...),
		Error:       s.status.err,
		Retry:       s.status.retry,
		Initialized: s.initialized,
		RunID:       s.runID,
	}
}

func (s *State) setStatus(line statusLine) {
	s.mu.Lock()
	s.status = line
	s.mu.Unlock()
}

func (s *State) setInitialized(ok bool, line statusLine) {
	s.mu.Lock()
	s.initialized = ok
	s.status = line
	s.mu.Unlock()
}

// begin claims the single analysis slot.
func (s *State) begin(cancel context.CancelFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return ErrBusy
	}
	s.cancel = cancel
	s.runID = ""
	return nil
}

// started records the run occupying the slot.
func (s *State) started(run *model.Run) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runID = run.ID
	s.status = statusLine{phase: PhaseAnalyzing, key: msgAnalyzing, args: []any{run.Lake, run.Range.String()}}
}

// abort releases the slot without a run result.
func (s *State) abort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	s.cancel = nil
	s.runID = ""
}

// finish releases the slot and, for a completed run, replaces the chart.
func (s *State) finish(run *model.Run, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	s.cancel = nil
	s.runID = ""

	switch {
	case run != nil && run.Status == model.RunStatusComplete:
		s.chart = run
		samples := run.Result.Series
		s.status = statusLine{phase: PhaseReady, key: msgComplete, args: []any{len(samples.Samples), samples.MissingCount()}}
	case run != nil && run.Status == model.RunStatusCanceled:
		s.status = statusLine{phase: PhaseReady, key: msgCanceled}
	default:
		reason := "unknown error"
		if err != nil {
			reason = err.Error()
		}
		s.status = statusLine{phase: PhaseReady, key: msgFailed, args: []any{reason}, err: true, retry: true}
	}
}

// Cancel stops the analysis in flight. It reports false when none runs.
func (s *State) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel == nil {
		return false
	}
	s.cancel()
	return true
}

// Running returns the id of the run in flight, if any.
func (s *State) Running() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runID, s.cancel != nil
}

// Chart returns the run behind the current chart.
func (s *State) Chart() *model.Run {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chart
}

// SetChart replaces the current chart.
func (s *State) SetChart(run *model.Run) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chart = run
}

// Overlay returns the current water overlay.
func (s *State) Overlay() *model.Overlay {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.overlay
}

// SetOverlay replaces the current overlay and returns the one it replaced.
func (s *State) SetOverlay(o *model.Overlay) *model.Overlay {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.overlay
	s.overlay = o
	return prev
}
