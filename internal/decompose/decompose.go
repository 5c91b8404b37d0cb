// Package decompose splits a monthly series into trend, seasonal and residual
// components using a centered moving average.
package decompose

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/sells-group/lakewatch/internal/model"
)

const (
	// DefaultWindow is the moving-average window for monthly data.
	DefaultWindow = 12
	// MonthsPerYear is the seasonal period of a monthly series.
	MonthsPerYear = 12
)

// MovingAverage returns a centered moving average with one value per input.
// Each point averages values[i-window/2 .. i+window/2]; the window is
// truncated at the series boundaries instead of padded or wrapped.
func MovingAverage(values []float64, window int) []float64 {
	n := len(values)
	trend := make([]float64, n)
	half := window / 2

	for i := range values {
		lo := max(0, i-half)
		hi := min(n-1, i+half)
		trend[i] = floats.Sum(values[lo:hi+1]) / float64(hi-lo+1)
	}
	return trend
}

// Seasonal averages the detrended value of each of the period slots across
// the whole series and broadcasts the slot averages back. offset is the slot
// of the first value (0 when the series starts in January). A slot with no
// observations divides by 1.
func Seasonal(values, trend []float64, period, offset int) []float64 {
	if period <= 0 {
		period = MonthsPerYear
	}

	sums := make([]float64, period)
	counts := make([]int, period)
	for i := range values {
		slot := slotOf(i, period, offset)
		sums[slot] += values[i] - trend[i]
		counts[slot]++
	}

	for slot := range sums {
		divisor := counts[slot]
		if divisor == 0 {
			divisor = 1
		}
		sums[slot] /= float64(divisor)
	}

	seasonal := make([]float64, len(values))
	for i := range values {
		seasonal[i] = sums[slotOf(i, period, offset)]
	}
	return seasonal
}

// Residual returns value - trend - seasonal elementwise.
func Residual(values, trend, seasonal []float64) []float64 {
	residual := make([]float64, len(values))
	for i, v := range values {
		residual[i] = v - trend[i] - seasonal[i]
	}
	return residual
}

// Decompose runs the moving average, seasonal and residual passes in order.
func Decompose(values []float64, window, period, offset int) model.Decomposition {
	trend := MovingAverage(values, window)
	seasonal := Seasonal(values, trend, period, offset)
	return model.Decomposition{
		Trend:    trend,
		Seasonal: seasonal,
		Residual: Residual(values, trend, seasonal),
	}
}

// Monthly decomposes a monthly series with the default window. Seasonal
// slots follow calendar months, so a series may start in any month.
func Monthly(s model.Series) model.Decomposition {
	return MonthlyWindow(s, DefaultWindow)
}

// MonthlyWindow is Monthly with a custom moving-average window. A window
// below 1 uses DefaultWindow.
func MonthlyWindow(s model.Series, window int) model.Decomposition {
	if window < 1 {
		window = DefaultWindow
	}
	offset := 0
	if len(s.Samples) > 0 {
		offset = s.Samples[0].Month - 1
	}
	return Decompose(s.Values(), window, MonthsPerYear, offset)
}

// Summarize computes descriptive statistics and a least-squares slope in
// area units per year.
func Summarize(s model.Series) model.Summary {
	values := s.Values()
	sum := model.Summary{MissingMonths: s.MissingCount()}
	if len(values) == 0 {
		return sum
	}

	sum.Mean, sum.StdDev = stat.MeanStdDev(values, nil)
	if math.IsNaN(sum.StdDev) {
		sum.StdDev = 0
	}
	sum.Min = floats.Min(values)
	sum.Max = floats.Max(values)

	if len(values) > 1 {
		xs := make([]float64, len(values))
		for i := range xs {
			xs[i] = float64(i)
		}
		_, beta := stat.LinearRegression(xs, values, nil, false)
		sum.SlopePerYear = beta * MonthsPerYear
	}
	return sum
}

func slotOf(i, period, offset int) int {
	slot := (offset + i) % period
	if slot < 0 {
		slot += period
	}
	return slot
}
