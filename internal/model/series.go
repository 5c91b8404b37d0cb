package model

import (
	"fmt"
	"time"
)

// Sample is the water-surface area of one calendar month, in square meters.
// Missing marks months where no imagery passed the cloud filter; Area is 0
// for those.
type Sample struct {
	Year    int     `json:"year"`
	Month   int     `json:"month"`
	Area    float64 `json:"area"`
	Missing bool    `json:"missing,omitempty"`
}

// Date returns the first instant of the sample's month in UTC.
func (s Sample) Date() time.Time {
	return time.Date(s.Year, time.Month(s.Month), 1, 0, 0, 0, 0, time.UTC)
}

// Label formats the month as YYYY-MM.
func (s Sample) Label() string {
	return fmt.Sprintf("%04d-%02d", s.Year, s.Month)
}

// Series is an ordered monthly series for one lake.
type Series struct {
	Lake    string    `json:"lake"`
	Range   YearRange `json:"range"`
	Samples []Sample  `json:"samples"`
}

// Labels returns the YYYY-MM label of every sample.
func (s Series) Labels() []string {
	out := make([]string, len(s.Samples))
	for i, smp := range s.Samples {
		out[i] = smp.Label()
	}
	return out
}

// Values returns the area of every sample.
func (s Series) Values() []float64 {
	out := make([]float64, len(s.Samples))
	for i, smp := range s.Samples {
		out[i] = smp.Area
	}
	return out
}

// MissingCount returns how many samples had no imagery.
func (s Series) MissingCount() int {
	n := 0
	for _, smp := range s.Samples {
		if smp.Missing {
			n++
		}
	}
	return n
}

// Decomposition splits a series into trend, seasonal and residual components.
type Decomposition struct {
	Trend    []float64 `json:"trend"`
	Seasonal []float64 `json:"seasonal"`
	Residual []float64 `json:"residual"`
}

// Summary holds descriptive statistics of a series.
type Summary struct {
	Mean          float64 `json:"mean"`
	StdDev        float64 `json:"std_dev"`
	Min           float64 `json:"min"`
	Max           float64 `json:"max"`
	SlopePerYear  float64 `json:"slope_per_year"`
	MissingMonths int     `json:"missing_months"`
}
