package model

import (
	"time"
)

// RunStatus represents the current state of an analysis run.
type RunStatus string

const (
	RunStatusQueued   RunStatus = "queued"
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
	RunStatusCanceled RunStatus = "canceled"
)

// Terminal reports whether the status is final.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusComplete, RunStatusFailed, RunStatusCanceled:
		return true
	default:
		return false
	}
}

// Run represents a single water-area analysis for a lake over a year range.
type Run struct {
	ID        string     `json:"id"`
	Lake      string     `json:"lake"`
	Range     YearRange  `json:"range"`
	Status    RunStatus  `json:"status"`
	Result    *RunResult `json:"result,omitempty"`
	Error     string     `json:"error,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// RunResult holds the monthly series and everything derived from it.
type RunResult struct {
	Series        Series        `json:"series"`
	Decomposition Decomposition `json:"decomposition"`
	Summary       Summary       `json:"summary"`
	DurationMs    int64         `json:"duration_ms"`
}

// Overlay is a water-mask map created on Earth Engine. Tiles are fetched by
// MapName until a newer overlay replaces it.
type Overlay struct {
	ID        string    `json:"id"`
	Lake      string    `json:"lake"`
	MapName   string    `json:"map_name"`
	From      time.Time `json:"from"`
	To        time.Time `json:"to"`
	CreatedAt time.Time `json:"created_at"`
}
