package decompose

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lakewatch/internal/model"
)

func TestMovingAverage_Constant(t *testing.T) {
	values := make([]float64, 36)
	for i := range values {
		values[i] = 42
	}
	trend := MovingAverage(values, 12)
	require.Len(t, trend, 36)
	for i, v := range trend {
		assert.InDelta(t, 42, v, 1e-9, "index %d", i)
	}
}

func TestMovingAverage_ShorterThanWindow(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5}
	trend := MovingAverage(values, 12)
	require.Len(t, trend, len(values))
	// Every window covers the whole series.
	for _, v := range trend {
		assert.InDelta(t, 3, v, 1e-9)
	}
}

func TestMovingAverage_EdgeTruncation(t *testing.T) {
	values := []float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	trend := MovingAverage(values, 4)
	// i=0 averages [0..2], i=5 averages [3..7], i=9 averages [7..9].
	assert.InDelta(t, 1.0, trend[0], 1e-9)
	assert.InDelta(t, 5.0, trend[5], 1e-9)
	assert.InDelta(t, 8.0, trend[9], 1e-9)
}

func TestMovingAverage_Empty(t *testing.T) {
	assert.Empty(t, MovingAverage(nil, 12))
}

func TestDecompose_ConstantSeries(t *testing.T) {
	values := make([]float64, 24)
	for i := range values {
		values[i] = 7.5
	}
	d := Decompose(values, 12, 12, 0)
	for i := range values {
		assert.InDelta(t, 7.5, d.Trend[i], 1e-9)
		assert.InDelta(t, 0, d.Seasonal[i], 1e-9)
		assert.InDelta(t, 0, d.Residual[i], 1e-9)
	}
}

func TestDecompose_Reconstructs(t *testing.T) {
	values := make([]float64, 48)
	for i := range values {
		values[i] = 1000 + 20*float64(i) + 300*math.Sin(2*math.Pi*float64(i)/12) + float64(i%5)
	}
	d := Decompose(values, 12, 12, 0)
	require.Len(t, d.Trend, 48)
	require.Len(t, d.Seasonal, 48)
	require.Len(t, d.Residual, 48)
	for i, v := range values {
		assert.InDelta(t, v, d.Trend[i]+d.Seasonal[i]+d.Residual[i], 1e-9, "index %d", i)
	}
}

func TestSeasonal_PeriodicBroadcast(t *testing.T) {
	values := make([]float64, 30)
	for i := range values {
		values[i] = float64(i % 12)
	}
	trend := MovingAverage(values, 12)
	seasonal := Seasonal(values, trend, 12, 0)
	for i := 12; i < len(values); i++ {
		assert.Equal(t, seasonal[i-12], seasonal[i])
	}
}

func TestSeasonal_EmptySlotUsesUnitDivisor(t *testing.T) {
	// Three values only fill slots 0..2; the remaining slots stay zero.
	values := []float64{3, 6, 9}
	trend := []float64{1, 1, 1}
	seasonal := Seasonal(values, trend, 12, 0)
	assert.Equal(t, []float64{2, 5, 8}, seasonal)
	for _, v := range seasonal {
		assert.False(t, math.IsNaN(v))
	}
}

func TestSeasonal_Offset(t *testing.T) {
	values := []float64{10, 20}
	trend := []float64{0, 0}
	// Starting in December: slot 11 then slot 0 of the next year.
	seasonal := Seasonal(values, trend, 12, 11)
	assert.Equal(t, []float64{10, 20}, seasonal)
}

func TestResidual(t *testing.T) {
	got := Residual([]float64{10, 20}, []float64{4, 5}, []float64{1, -2})
	assert.Equal(t, []float64{5, 17}, got)
}

func TestMonthly_UsesFirstMonthOffset(t *testing.T) {
	s := model.Series{Samples: []model.Sample{
		{Year: 2020, Month: 1, Area: 1},
		{Year: 2020, Month: 2, Area: 2},
		{Year: 2020, Month: 3, Area: 3},
	}}
	d := Monthly(s)
	assert.Len(t, d.Trend, 3)
	assert.InDelta(t, 2, d.Trend[1], 1e-9)
}

func TestMonthlyWindow(t *testing.T) {
	s := model.Series{Samples: []model.Sample{
		{Year: 2020, Month: 1, Area: 1},
		{Year: 2020, Month: 2, Area: 2},
		{Year: 2020, Month: 3, Area: 3},
		{Year: 2020, Month: 4, Area: 4},
	}}
	d := MonthlyWindow(s, 2)
	assert.InDelta(t, 1.5, d.Trend[0], 1e-9)
	assert.InDelta(t, 2, d.Trend[1], 1e-9)
	assert.InDelta(t, 3.5, d.Trend[3], 1e-9)

	assert.Equal(t, Monthly(s), MonthlyWindow(s, 0))
}

func TestSummarize(t *testing.T) {
	s := model.Series{Samples: []model.Sample{
		{Year: 2020, Month: 1, Area: 0, Missing: true},
		{Year: 2020, Month: 2, Area: 12},
		{Year: 2020, Month: 3, Area: 24},
	}}
	sum := Summarize(s)
	assert.InDelta(t, 12, sum.Mean, 1e-9)
	assert.InDelta(t, 12, sum.StdDev, 1e-9)
	assert.InDelta(t, 0, sum.Min, 1e-9)
	assert.InDelta(t, 24, sum.Max, 1e-9)
	// 12 per month is 144 per year.
	assert.InDelta(t, 144, sum.SlopePerYear, 1e-9)
	assert.Equal(t, 1, sum.MissingMonths)
}

func TestSummarize_Degenerate(t *testing.T) {
	assert.Equal(t, model.Summary{}, Summarize(model.Series{}))

	one := Summarize(model.Series{Samples: []model.Sample{{Year: 2020, Month: 1, Area: 5}}})
	assert.InDelta(t, 5, one.Mean, 1e-9)
	assert.Zero(t, one.StdDev)
	assert.Zero(t, one.SlopePerYear)
}
