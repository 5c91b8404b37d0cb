package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// FirstSentinelYear is the first full year of Sentinel-2 surface reflectance coverage.
const FirstSentinelYear = 2015

// YearRange is an inclusive range of calendar years.
type YearRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// ParseYearRange accepts "2019-2021" or a single year "2020".
func ParseYearRange(s string) (YearRange, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return YearRange{}, eris.New("model: empty year range")
	}

	startStr, endStr, found := strings.Cut(s, "-")
	if !found {
		endStr = startStr
	}

	start, err := strconv.Atoi(strings.TrimSpace(startStr))
	if err != nil {
		return YearRange{}, eris.Wrapf(err, "model: parse start year %q", startStr)
	}
	end, err := strconv.Atoi(strings.TrimSpace(endStr))
	if err != nil {
		return YearRange{}, eris.Wrapf(err, "model: parse end year %q", endStr)
	}

	r := YearRange{Start: start, End: end}
	if r.Start > r.End {
		return YearRange{}, eris.Errorf("model: start year %d after end year %d", r.Start, r.End)
	}
	return r, nil
}

// Validate checks that the range falls within [earliest, latest].
func (r YearRange) Validate(earliest, latest int) error {
	if r.Start > r.End {
		return eris.Errorf("model: start year %d after end year %d", r.Start, r.End)
	}
	if r.Start < earliest {
		return eris.Errorf("model: start year %d before %d", r.Start, earliest)
	}
	if r.End > latest {
		return eris.Errorf("model: end year %d after %d", r.End, latest)
	}
	return nil
}

// Years returns every year in the range in ascending order.
func (r YearRange) Years() []int {
	if r.End < r.Start {
		return nil
	}
	years := make([]int, 0, r.End-r.Start+1)
	for y := r.Start; y <= r.End; y++ {
		years = append(years, y)
	}
	return years
}

// YearMonth identifies one calendar month.
type YearMonth struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

// Start returns the first instant of the month in UTC.
func (m YearMonth) Start() time.Time {
	return time.Date(m.Year, time.Month(m.Month), 1, 0, 0, 0, 0, time.UTC)
}

// End returns the first instant of the following month.
func (m YearMonth) End() time.Time {
	return m.Start().AddDate(0, 1, 0)
}

// Months enumerates every month in the range, January first.
func (r YearRange) Months() []YearMonth {
	out := make([]YearMonth, 0, r.Len())
	for _, y := range r.Years() {
		for m := 1; m <= 12; m++ {
			out = append(out, YearMonth{Year: y, Month: m})
		}
	}
	return out
}

// Len returns the number of months covered.
func (r YearRange) Len() int {
	if r.End < r.Start {
		return 0
	}
	return (r.End - r.Start + 1) * 12
}

func (r YearRange) String() string {
	if r.Start == r.End {
		return strconv.Itoa(r.Start)
	}
	return fmt.Sprintf("%d-%d", r.Start, r.End)
}
