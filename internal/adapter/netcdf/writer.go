package netcdf

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ctessum/cdf"

	"github.com/thchilly/era5-forcing-etl/internal/grid"
	"github.com/thchilly/era5-forcing-etl/internal/meta"
)

// epoch1850 is the reference epoch of the output time axis.
var epoch1850 = time.Date(1850, 1, 1, 0, 0, 0, 0, time.UTC)

// Writer persists daily fields to <dir>/<var>_day_ERA5_<year>.nc in
// NetCDF classic format, one file per (variable, year).
type Writer struct {
	dir    string
	logger *slog.Logger
}

// NewWriter creates a Writer rooted at dir.
func NewWriter(dir string, logger *slog.Logger) *Writer {
	return &Writer{dir: dir, logger: logger}
}

// DailyPath returns the location of one daily output file.
func (w *Writer) DailyPath(variableID string, year int) string {
	return filepath.Join(w.dir, fmt.Sprintf("%s_day_ERA5_%d.nc", variableID, year))
}

// WriteDaily writes one normalized daily field as float32 values with the
// fixed time encoding (days since 1850-01-01, proleptic_gregorian).
func (w *Writer) WriteDaily(ctx context.Context, f *grid.Field, year int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := f.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return err
	}
	path := w.DailyPath(f.VariableID, year)

	h := cdf.NewHeader(
		[]string{meta.TimeAxis, meta.LatAxis, meta.LonAxis},
		[]int{0, len(f.Lats), len(f.Lons)},
	)
	h.AddAttribute("", "Conventions", "CF-1.6")
	h.AddAttribute("", "frequency", "day")
	if hist, ok := f.Attrs["history"]; ok {
		h.AddAttribute("", "history", hist)
	}

	h.AddVariable(meta.TimeAxis, []string{meta.TimeAxis}, []float64{0})
	h.AddAttribute(meta.TimeAxis, "standard_name", "time")
	h.AddAttribute(meta.TimeAxis, "units", meta.TimeUnits)
	h.AddAttribute(meta.TimeAxis, "calendar", meta.Calendar)

	h.AddVariable(meta.LatAxis, []string{meta.LatAxis}, []float64{0})
	h.AddAttribute(meta.LatAxis, "standard_name", "latitude")
	h.AddAttribute(meta.LatAxis, "units", "degrees_north")

	h.AddVariable(meta.LonAxis, []string{meta.LonAxis}, []float64{0})
	h.AddAttribute(meta.LonAxis, "standard_name", "longitude")
	h.AddAttribute(meta.LonAxis, "units", "degrees_east")

	h.AddVariable(f.VariableID, []string{meta.TimeAxis, meta.LatAxis, meta.LonAxis}, []float32{0})
	h.AddAttribute(f.VariableID, "standard_name", f.StandardName)
	h.AddAttribute(f.VariableID, "long_name", f.LongName)
	h.AddAttribute(f.VariableID, "units", f.Units)
	h.AddAttribute(f.VariableID, "_FillValue", []float32{float32(f.Missing)})
	h.AddAttribute(f.VariableID, "missing_value", []float32{float32(f.Missing)})

	h.Define()
	for _, err := range h.Check() {
		if err != nil {
			return fmt.Errorf("define %s: %w", path, err)
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	nc, err := cdf.Create(file, h)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	days := make([]float64, len(f.Times))
	for i, t := range f.Times {
		days[i] = t.Sub(epoch1850).Hours() / 24
	}
	if err := writeVar(nc, meta.TimeAxis, []int{0}, []int{len(days)}, days); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := writeVar(nc, meta.LatAxis, []int{0}, []int{len(f.Lats)}, f.Lats); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := writeVar(nc, meta.LonAxis, []int{0}, []int{len(f.Lons)}, f.Lons); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	vals := make([]float32, len(f.Values.Elements))
	for i, v := range f.Values.Elements {
		vals[i] = float32(v)
	}
	start := []int{0, 0, 0}
	end := []int{len(f.Times), 0, 0}
	if err := writeVar(nc, f.VariableID, start, end, vals); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	if err := cdf.UpdateNumRecs(file); err != nil {
		return fmt.Errorf("finalize %s: %w", path, err)
	}

	w.logger.Debug("wrote daily field", "path", path, "times", len(f.Times))
	return nil
}

func writeVar(nc *cdf.File, name string, start, end []int, data any) error {
	_, err := nc.Writer(name, start, end).Write(data)
	return err
}
