package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/lakewatch/internal/lake"
	"github.com/sells-group/lakewatch/internal/metrics"
	"github.com/sells-group/lakewatch/internal/model"
	"github.com/sells-group/lakewatch/internal/store"
	ee "github.com/sells-group/lakewatch/pkg/earthengine"
	"github.com/sells-group/lakewatch/pkg/earthengine/mocks"
)

var testNow = time.Date(2021, time.March, 15, 12, 0, 0, 0, time.UTC)

// fakeEE answers Compute by inspecting the serialized expression.
type fakeEE struct {
	ee.Client

	mu      sync.Mutex
	calls   []string
	respond func(call string) (json.RawMessage, error)
}

func (f *fakeEE) Compute(_ context.Context, expr ee.Expr) (json.RawMessage, error) {
	wire, err := ee.Serialize(expr)
	if err != nil {
		return nil, err
	}
	b, err := json.Marshal(wire)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.calls = append(f.calls, string(b))
	f.mu.Unlock()
	return f.respond(string(b))
}

func (f *fakeEE) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// monthsIn counts the guarded monthly areas in a serialized expression.
func monthsIn(call string) int {
	return strings.Count(call, `"Algorithms.If"`)
}

// yearOf returns the earliest year whose month start appears in the call.
func yearOf(call string) int {
	for y := 2015; y <= 2030; y++ {
		for m := time.January; m <= time.December; m++ {
			millis := time.Date(y, m, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
			if strings.Contains(call, strconv.FormatInt(millis, 10)) {
				return y
			}
		}
	}
	return 0
}

// areas returns n ascending areas with nulls at the given indexes.
func areas(n int, nulls ...int) json.RawMessage {
	items := make([]string, n)
	for i := range items {
		items[i] = fmt.Sprintf("%d", (i+1)*1000)
	}
	for _, i := range nulls {
		items[i] = "null"
	}
	return json.RawMessage("[" + strings.Join(items, ",") + "]")
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "analysis.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func newTestAnalyzer(t *testing.T, client ee.Client, st store.Store, opts ...Option) *Analyzer {
	t.Helper()
	opts = append([]Option{WithClock(func() time.Time { return testNow })}, opts...)
	return New(client, st, lake.DefaultRegistry(), DefaultConfig(), opts...)
}

func TestRun_ComputesOneRequestPerYear(t *testing.T) {
	st := newTestStore(t)
	client := &fakeEE{respond: func(call string) (json.RawMessage, error) {
		if yearOf(call) == 2020 {
			return areas(monthsIn(call), 1), nil
		}
		return areas(monthsIn(call)), nil
	}}
	m := metrics.New()
	a := newTestAnalyzer(t, client, st, WithMetrics(m))
	ctx := context.Background()

	run, err := a.Run(ctx, lake.PoyangKey, model.YearRange{Start: 2020, End: 2021})
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, run.Status)
	assert.Equal(t, 2, client.callCount())

	samples := run.Result.Series.Samples
	require.Len(t, samples, 15, "2021 is trimmed after March")
	assert.Equal(t, model.Sample{Year: 2020, Month: 1, Area: 1000}, samples[0])
	assert.Equal(t, model.Sample{Year: 2020, Month: 2, Missing: true}, samples[1])
	assert.Equal(t, model.Sample{Year: 2021, Month: 3, Area: 3000}, samples[14])
	assert.Equal(t, 1, run.Result.Summary.MissingMonths)
	assert.Len(t, run.Result.Decomposition.Trend, 15)

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, got.Status)
	require.NotNil(t, got.Result)
	assert.Len(t, got.Result.Series.Samples, 15)

	cached2020, err := st.GetMonthlyAreas(ctx, lake.PoyangKey, 2020)
	require.NoError(t, err)
	assert.Len(t, cached2020, 12)
	cached2021, err := st.GetMonthlyAreas(ctx, lake.PoyangKey, 2021)
	require.NoError(t, err)
	assert.Len(t, cached2021, 2, "the current month is not final")
}

func TestRun_ReusesFinalMonths(t *testing.T) {
	st := newTestStore(t)
	client := &fakeEE{respond: func(call string) (json.RawMessage, error) {
		return areas(monthsIn(call)), nil
	}}
	a := newTestAnalyzer(t, client, st)
	ctx := context.Background()

	_, err := a.Run(ctx, lake.PoyangKey, model.YearRange{Start: 2020, End: 2021})
	require.NoError(t, err)
	require.Equal(t, 2, client.callCount())

	run, err := a.Run(ctx, lake.PoyangKey, model.YearRange{Start: 2020, End: 2021})
	require.NoError(t, err)
	require.Equal(t, 3, client.callCount(), "only the current month is recomputed")
	assert.Equal(t, 1, monthsIn(client.calls[2]))

	samples := run.Result.Series.Samples
	require.Len(t, samples, 15)
	assert.InDelta(t, 12000, samples[11].Area, 0)
	assert.InDelta(t, 2000, samples[13].Area, 0)
	assert.InDelta(t, 1000, samples[14].Area, 0, "March comes from the single-month request")
}

func TestRun_CacheDisabled(t *testing.T) {
	st := newTestStore(t)
	client := &fakeEE{respond: func(call string) (json.RawMessage, error) {
		return areas(monthsIn(call)), nil
	}}
	cfg := DefaultConfig()
	cfg.CacheFinalMonths = false
	cfg.TrimFuture = false
	a := New(client, st, lake.DefaultRegistry(), cfg, WithClock(func() time.Time { return testNow }))

	run, err := a.Run(context.Background(), lake.PoyangKey, model.YearRange{Start: 2021, End: 2021})
	require.NoError(t, err)
	assert.Len(t, run.Result.Series.Samples, 12)

	cached, err := st.GetMonthlyAreas(context.Background(), lake.PoyangKey, 2021)
	require.NoError(t, err)
	assert.Empty(t, cached)
}

func TestRun_EmptyCompositeFallsBackToMonths(t *testing.T) {
	st := newTestStore(t)
	feb := strconv.FormatInt(time.Date(2021, 2, 1, 0, 0, 0, 0, time.UTC).UnixMilli(), 10)
	mar := strconv.FormatInt(time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC).UnixMilli(), 10)
	client := &fakeEE{respond: func(call string) (json.RawMessage, error) {
		if monthsIn(call) > 1 {
			return nil, eris.New("earthengine: 400 INVALID_ARGUMENT: Image.select: Pattern 'mNDWI' did not match any bands.")
		}
		if strings.Contains(call, feb) && strings.Contains(call, mar) {
			return nil, eris.New("earthengine: 400 INVALID_ARGUMENT: Image.normalizedDifference: Pattern 'B3' did not match any bands.")
		}
		return json.RawMessage("4200.5"), nil
	}}
	a := newTestAnalyzer(t, client, st)

	run, err := a.Run(context.Background(), lake.PoyangKey, model.YearRange{Start: 2021, End: 2021})
	require.NoError(t, err)
	assert.Equal(t, 4, client.callCount(), "one batch plus three single months")

	samples := run.Result.Series.Samples
	require.Len(t, samples, 3)
	assert.InDelta(t, 4200.5, samples[0].Area, 0)
	assert.True(t, samples[1].Missing)
	assert.Zero(t, samples[1].Area)
	assert.False(t, samples[2].Missing)
}

func TestRun_ComputeErrorFailsRun(t *testing.T) {
	st := newTestStore(t)
	client := &fakeEE{respond: func(string) (json.RawMessage, error) {
		return nil, eris.New("earthengine: quota exceeded")
	}}
	m := metrics.New()
	a := newTestAnalyzer(t, client, st, WithMetrics(m))

	run, err := a.Run(context.Background(), lake.PoyangKey, model.YearRange{Start: 2020, End: 2020})
	require.Error(t, err)
	assert.Equal(t, model.RunStatusFailed, run.Status)
	assert.Contains(t, run.Error, "quota exceeded")

	got, err := st.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, got.Status)
	assert.Contains(t, got.Error, "quota exceeded")
}

func TestRun_LengthMismatchFails(t *testing.T) {
	st := newTestStore(t)
	client := &fakeEE{respond: func(string) (json.RawMessage, error) {
		return areas(2), nil
	}}
	a := newTestAnalyzer(t, client, st)

	run, err := a.Run(context.Background(), lake.PoyangKey, model.YearRange{Start: 2020, End: 2020})
	require.Error(t, err)
	assert.Equal(t, model.RunStatusFailed, run.Status)
}

func TestExecute_CanceledRun(t *testing.T) {
	st := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := &fakeEE{respond: func(string) (json.RawMessage, error) {
		cancel()
		return nil, context.Canceled
	}}
	a := newTestAnalyzer(t, client, st)

	run, err := a.Create(ctx, lake.PoyangKey, model.YearRange{Start: 2020, End: 2020})
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusQueued, run.Status)

	run, err = a.Execute(ctx, run)
	require.Error(t, err)
	assert.Equal(t, model.RunStatusCanceled, run.Status)

	got, err := st.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCanceled, got.Status)
}

func TestCreate_Validation(t *testing.T) {
	a := newTestAnalyzer(t, &fakeEE{}, newTestStore(t))
	ctx := context.Background()

	_, err := a.Create(ctx, "erie", model.YearRange{Start: 2020, End: 2020})
	assert.ErrorContains(t, err, "unknown lake")

	_, err = a.Create(ctx, lake.PoyangKey, model.YearRange{Start: 2014, End: 2020})
	assert.Error(t, err)

	_, err = a.Create(ctx, lake.PoyangKey, model.YearRange{Start: 2021, End: 2022})
	assert.Error(t, err, "years after the current year are rejected")
}

func TestOverlay(t *testing.T) {
	st := newTestStore(t)
	client := mocks.NewMockClient(t)
	client.On("CreateMap", mock.Anything, mock.Anything, mock.MatchedBy(func(v ee.Visualization) bool {
		return v.Min == 0 && v.Max == 1 && len(v.Palette) == 2
	})).Return(&ee.MapID{Name: "projects/p/maps/abc"}, nil).Once()

	a := newTestAnalyzer(t, client, st)
	overlay, err := a.Overlay(context.Background(), lake.PoyangKey)
	require.NoError(t, err)
	assert.Equal(t, "projects/p/maps/abc", overlay.MapName)
	assert.NotEmpty(t, overlay.ID)
	assert.Equal(t, testNow.AddDate(0, -3, 0), overlay.From)

	latest, err := st.LatestOverlay(context.Background(), lake.PoyangKey)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, overlay.ID, latest.ID)
}

func TestOverlay_MapError(t *testing.T) {
	st := newTestStore(t)
	client := mocks.NewMockClient(t)
	client.On("CreateMap", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, eris.New("earthengine: denied")).Once()

	a := newTestAnalyzer(t, client, st)
	_, err := a.Overlay(context.Background(), lake.PoyangKey)
	require.Error(t, err)

	latest, err := st.LatestOverlay(context.Background(), lake.PoyangKey)
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestBoundary(t *testing.T) {
	poly := geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{
		{{116, 29}, {117, 29}, {117, 30}, {116, 29}},
	})
	reg, err := lake.NewRegistry(lake.Poyang(), lake.Lake{Key: "pond"}.WithBoundary(poly))
	require.NoError(t, err)

	client := mocks.NewMockClient(t)
	client.On("Compute", mock.Anything, mock.Anything).
		Return(json.RawMessage(`{"type":"Polygon","coordinates":[]}`), nil).Once()

	a := New(client, newTestStore(t), reg, DefaultConfig())

	asset, err := a.Boundary(context.Background(), lake.PoyangKey)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"Polygon","coordinates":[]}`, string(asset))

	local, err := a.Boundary(context.Background(), "pond")
	require.NoError(t, err)
	assert.Contains(t, string(local), `"Polygon"`)

	_, err = a.Boundary(context.Background(), "missing")
	assert.Error(t, err)
}
