package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thchilly/era5-forcing-etl/internal/grid"
	"github.com/thchilly/era5-forcing-etl/internal/observability"
	"github.com/thchilly/era5-forcing-etl/internal/regrid"
)

var (
	srcDef = grid.Def{Lat0: 40.125, Lon0: 10.125, DLat: 0.25, DLon: 0.25, NLat: 4, NLon: 4}
	dstDef = grid.Def{Lat0: 40.25, Lon0: 10.25, DLat: 0.5, DLon: 0.5, NLat: 2, NLon: 2}
)

// fakeReader serves canned hourly fields per variable and injects read
// failures.
type fakeReader struct {
	fields map[string]*grid.Field
	errs   map[string]error
}

func (r *fakeReader) ReadHourly(_ context.Context, variableID string, _ int) (*grid.Field, error) {
	if err, ok := r.errs[variableID]; ok {
		return nil, err
	}
	f, ok := r.fields[variableID]
	if !ok {
		return nil, errors.New("open " + variableID + ": no such file")
	}
	return f, nil
}

// fakeWriter records written daily fields by variable.
type fakeWriter struct {
	mu     sync.Mutex
	fields map[string]*grid.Field
	years  map[string]int
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{fields: make(map[string]*grid.Field), years: make(map[string]int)}
}

func (w *fakeWriter) WriteDaily(_ context.Context, f *grid.Field, year int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.fields[f.VariableID] = f
	w.years[f.VariableID] = year
	return nil
}

func (w *fakeWriter) get(variableID string) *grid.Field {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fields[variableID]
}

// hourlyConst builds one complete day of hourly samples on srcDef, all v.
func hourlyConst(variableID string, v float64) *grid.Field {
	start := time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC)
	times := make([]time.Time, 24)
	for i := range times {
		times[i] = start.Add(time.Duration(i) * time.Hour)
	}
	f := grid.NewField(variableID, times, srcDef.Lats(), srcDef.Lons())
	for t := range times {
		for j := 0; j < srcDef.NLat; j++ {
			for i := 0; i < srcDef.NLon; i++ {
				f.SetAt(v, t, j, i)
			}
		}
	}
	return f
}

func newTestProcessor(r FieldReader, w FieldWriter) *Processor {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := observability.NewMetricsForTesting()
	cache := regrid.NewCache("", logger)
	return NewProcessor(r, w, cache, dstDef, logger, metrics)
}

func newTestRunner(proc *Processor, workers int) *Runner {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRunner(proc, logger, observability.NewMetricsForTesting(), workers)
}

func TestProcessUnit_DirectVariable(t *testing.T) {
	tas := hourlyConst("tas", 288.5)
	tas.Attrs = map[string]string{"GRIB_shortName": "2t", "institution": "ECMWF"}
	reader := &fakeReader{fields: map[string]*grid.Field{"tas": tas}}
	writer := newFakeWriter()
	proc := newTestProcessor(reader, writer)

	err := proc.ProcessUnit(context.Background(), Unit{Variable: "tas", Year: 2001})
	require.NoError(t, err)

	out := writer.get("tas")
	require.NotNil(t, out)
	assert.Equal(t, 2001, writer.years["tas"])
	require.Equal(t, []int{1, 2, 2}, out.Values.Shape)
	assert.InDelta(t, 288.5, out.At(0, 0, 0), 1e-4)
	assert.Equal(t, time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC), out.Times[0])
	assert.Equal(t, dstDef.Lats(), out.Lats)

	// Metadata lands normalized: canonical names, transport attrs gone,
	// provenance stamped.
	assert.Equal(t, "air_temperature", out.StandardName)
	assert.NotContains(t, out.Attrs, "GRIB_shortName")
	assert.Equal(t, "ECMWF", out.Attrs["institution"])
	assert.Contains(t, out.Attrs, "history")
}

// hourlyYear builds a full calendar year of hourly samples on srcDef.
func hourlyYear(variableID string, year int, v float64) *grid.Field {
	start := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	n := int(time.Date(year+1, 1, 1, 0, 0, 0, 0, time.UTC).Sub(start).Hours())
	times := make([]time.Time, n)
	for i := range times {
		times[i] = start.Add(time.Duration(i) * time.Hour)
	}
	f := grid.NewField(variableID, times, srcDef.Lats(), srcDef.Lons())
	for k := range f.Values.Elements {
		f.Values.Elements[k] = v
	}
	return f
}

func TestProcessUnit_FullYear(t *testing.T) {
	cases := []struct {
		year int
		days int
	}{
		{2001, 365},
		{2000, 366}, // leap
	}
	for _, tc := range cases {
		t.Run(strconv.Itoa(tc.year), func(t *testing.T) {
			reader := &fakeReader{fields: map[string]*grid.Field{
				"tas": hourlyYear("tas", tc.year, 285.25),
			}}
			writer := newFakeWriter()
			proc := newTestProcessor(reader, writer)

			require.NoError(t, proc.ProcessUnit(context.Background(), Unit{Variable: "tas", Year: tc.year}))

			out := writer.get("tas")
			require.NotNil(t, out)
			require.Len(t, out.Times, tc.days)
			assert.Equal(t, time.Date(tc.year, 1, 1, 0, 0, 0, 0, time.UTC), out.Times[0])
			assert.Equal(t, time.Date(tc.year, 12, 31, 0, 0, 0, 0, time.UTC), out.Times[tc.days-1])

			// No day boundary introduces missing cells or distorts a
			// constant input.
			for k, v := range out.Values.Elements {
				if out.IsMissing(v) {
					t.Fatalf("missing value at flat index %d", k)
				}
				assert.InDelta(t, 285.25, v, 1e-4)
			}
		})
	}
}

func TestProcessUnit_HumidityDerived(t *testing.T) {
	reader := &fakeReader{fields: map[string]*grid.Field{
		"tas":     hourlyConst("tas", 293.15),
		"dewptas": hourlyConst("dewptas", 283.15),
		"ps":      hourlyConst("ps", 101325),
	}}
	writer := newFakeWriter()
	proc := newTestProcessor(reader, writer)

	require.NoError(t, proc.ProcessUnit(context.Background(), Unit{Variable: "huss", Year: 2001}))
	require.NoError(t, proc.ProcessUnit(context.Background(), Unit{Variable: "hurs", Year: 2001}))

	huss := writer.get("huss")
	require.NotNil(t, huss)
	assert.Equal(t, "kg kg-1", huss.Units)
	assert.InDelta(t, 0.0076, huss.At(0, 0, 0), 5e-4)

	hurs := writer.get("hurs")
	require.NotNil(t, hurs)
	assert.Equal(t, "%", hurs.Units)
	assert.InDelta(t, 52.5, hurs.At(0, 0, 0), 2.0)
}

func TestProcessUnit_WindSpeedDerived(t *testing.T) {
	reader := &fakeReader{fields: map[string]*grid.Field{
		"uas": hourlyConst("uas", 3),
		"vas": hourlyConst("vas", 4),
	}}
	writer := newFakeWriter()
	proc := newTestProcessor(reader, writer)

	require.NoError(t, proc.ProcessUnit(context.Background(), Unit{Variable: "sfcwind", Year: 2001}))

	out := writer.get("sfcwind")
	require.NotNil(t, out)
	assert.Equal(t, "m s-1", out.Units)
	assert.InDelta(t, 5, out.At(0, 0, 0), 1e-5)
}

func TestProcessUnit_Tasrange(t *testing.T) {
	reader := &fakeReader{fields: map[string]*grid.Field{
		"tasmax": hourlyConst("tasmax", 300),
		"tasmin": hourlyConst("tasmin", 290),
	}}
	writer := newFakeWriter()
	proc := newTestProcessor(reader, writer)

	require.NoError(t, proc.ProcessUnit(context.Background(), Unit{Variable: "tasrange", Year: 2001}))

	out := writer.get("tasrange")
	require.NotNil(t, out)
	assert.Equal(t, "K", out.Units)
	assert.Equal(t, "air_temperature_range", out.StandardName)
	assert.InDelta(t, 10, out.At(0, 0, 0), 1e-4)
	// Only the derived range is written, not its daily inputs.
	assert.Nil(t, writer.get("tasmax"))
	assert.Nil(t, writer.get("tasmin"))
}

func TestProcessUnit_UnknownVariable(t *testing.T) {
	proc := newTestProcessor(&fakeReader{}, newFakeWriter())

	err := proc.ProcessUnit(context.Background(), Unit{Variable: "cape", Year: 2001})
	var unsupported *grid.UnsupportedVariableError
	require.ErrorAs(t, err, &unsupported)
}

func TestRun_SiblingIsolation(t *testing.T) {
	reader := &fakeReader{
		fields: map[string]*grid.Field{
			"tas": hourlyConst("tas", 288),
			"ps":  hourlyConst("ps", 101325),
		},
		errs: map[string]error{"pr": errors.New("short read")},
	}
	writer := newFakeWriter()
	runner := newTestRunner(newTestProcessor(reader, writer), 2)

	units := []Unit{
		{Variable: "tas", Year: 2001},
		{Variable: "pr", Year: 2001},
		{Variable: "ps", Year: 2001},
	}
	report := runner.Run(context.Background(), units)

	require.Len(t, report.Failed, 1)
	assert.Equal(t, Unit{Variable: "pr", Year: 2001}, report.Failed[0].Unit)
	assert.Empty(t, report.Skipped)
	assert.NotNil(t, writer.get("tas"))
	assert.NotNil(t, writer.get("ps"))

	completed, failed, skipped := runner.Progress()
	assert.Equal(t, 2, completed)
	assert.Equal(t, 1, failed)
	assert.Equal(t, 0, skipped)
}

func TestRun_PairingSkipped(t *testing.T) {
	// tasmax is present but tasmin is not: tasrange is skipped as a
	// pairing failure, not counted as a hard failure.
	reader := &fakeReader{
		fields: map[string]*grid.Field{
			"tasmax": hourlyConst("tasmax", 300),
			"tas":    hourlyConst("tas", 288),
		},
	}
	writer := newFakeWriter()
	runner := newTestRunner(newTestProcessor(reader, writer), 2)

	report := runner.Run(context.Background(), []Unit{
		{Variable: "tasrange", Year: 2001},
		{Variable: "tas", Year: 2001},
	})

	assert.Empty(t, report.Failed)
	require.Len(t, report.Skipped, 1)
	assert.Equal(t, "tasrange", report.Skipped[0].Unit.Variable)
	assert.Nil(t, writer.get("tasrange"))
	assert.NotNil(t, writer.get("tas"))

	completed, failed, skipped := runner.Progress()
	assert.Equal(t, 1, completed)
	assert.Equal(t, 0, failed)
	assert.Equal(t, 1, skipped)
}

func TestRun_ContextCancelled(t *testing.T) {
	reader := &fakeReader{fields: map[string]*grid.Field{"tas": hourlyConst("tas", 288)}}
	writer := newFakeWriter()
	runner := newTestRunner(newTestProcessor(reader, writer), 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report := runner.Run(ctx, []Unit{{Variable: "tas", Year: 2001}, {Variable: "tas", Year: 2002}})

	// Units racing the cancellation may still be handed out, but they
	// abort before writing and nothing succeeds silently.
	for _, f := range report.Failed {
		assert.ErrorIs(t, f.Err, context.Canceled)
	}
	assert.Empty(t, report.Skipped)
	assert.Nil(t, writer.get("tas"))
}

func TestCheckReadiness(t *testing.T) {
	reader := &fakeReader{fields: map[string]*grid.Field{"tas": hourlyConst("tas", 288)}}
	runner := newTestRunner(newTestProcessor(reader, newFakeWriter()), 1)

	require.Error(t, runner.CheckReadiness(context.Background()))

	runner.Run(context.Background(), []Unit{{Variable: "tas", Year: 2001}})
	require.NoError(t, runner.CheckReadiness(context.Background()))
}

func TestUnitString(t *testing.T) {
	assert.Equal(t, "huss/1987", Unit{Variable: "huss", Year: 1987}.String())
}
