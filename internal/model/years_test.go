package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseYearRange(t *testing.T) {
	tests := []struct {
		in      string
		want    YearRange
		wantErr bool
	}{
		{"2019-2021", YearRange{2019, 2021}, false},
		{"2020", YearRange{2020, 2020}, false},
		{" 2018 - 2019 ", YearRange{2018, 2019}, false},
		{"2021-2019", YearRange{}, true},
		{"abc", YearRange{}, true},
		{"2019-", YearRange{}, true},
		{"", YearRange{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseYearRange(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestYearRange_Validate(t *testing.T) {
	assert.NoError(t, YearRange{2016, 2020}.Validate(2015, 2026))
	assert.Error(t, YearRange{2010, 2020}.Validate(2015, 2026))
	assert.Error(t, YearRange{2016, 2030}.Validate(2015, 2026))
	assert.Error(t, YearRange{2020, 2016}.Validate(2015, 2026))
}

func TestYearRange_YearsAndLen(t *testing.T) {
	r := YearRange{2019, 2021}
	assert.Equal(t, []int{2019, 2020, 2021}, r.Years())
	assert.Equal(t, 36, r.Len())
	assert.Equal(t, "2019-2021", r.String())
	assert.Equal(t, "2020", YearRange{2020, 2020}.String())
	assert.Nil(t, YearRange{2021, 2019}.Years())
}

func TestYearRange_Months(t *testing.T) {
	months := YearRange{2020, 2021}.Months()
	require.Len(t, months, 24)
	assert.Equal(t, YearMonth{2020, 1}, months[0])
	assert.Equal(t, YearMonth{2020, 12}, months[11])
	assert.Equal(t, YearMonth{2021, 1}, months[12])
	assert.Empty(t, YearRange{2021, 2020}.Months())
}

func TestYearMonth_Bounds(t *testing.T) {
	m := YearMonth{Year: 2023, Month: 12}
	assert.Equal(t, time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC), m.Start())
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), m.End())
}

func TestSeries_Accessors(t *testing.T) {
	s := Series{Samples: []Sample{
		{Year: 2020, Month: 1, Area: 10},
		{Year: 2020, Month: 2, Area: 0, Missing: true},
		{Year: 2020, Month: 12, Area: 30},
	}}
	assert.Equal(t, []string{"2020-01", "2020-02", "2020-12"}, s.Labels())
	assert.Equal(t, []float64{10, 0, 30}, s.Values())
	assert.Equal(t, 1, s.MissingCount())
	assert.Equal(t, 2020, s.Samples[2].Date().Year())
}

func TestRunStatus_Terminal(t *testing.T) {
	assert.False(t, RunStatusQueued.Terminal())
	assert.False(t, RunStatusRunning.Terminal())
	assert.True(t, RunStatusComplete.Terminal())
	assert.True(t, RunStatusFailed.Terminal())
	assert.True(t, RunStatusCanceled.Terminal())
}
