// Package netcdf adapts the pipeline's GridFields to NetCDF files on
// disk: hourly inputs read with the pure-Go go-native-netcdf decoder,
// daily outputs written in NetCDF classic format.
package netcdf

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"

	"github.com/thchilly/era5-forcing-etl/internal/grid"
)

// TZ=UTC date --date="1900-01-01 00:00:00" +%s
const unixSecs1900 = -2208988800

// Reader loads hourly fields from <dir>/<var>_1hr_ERA5_<year>.nc.
type Reader struct {
	dir    string
	logger *slog.Logger
}

// NewReader creates a Reader rooted at dir.
func NewReader(dir string, logger *slog.Logger) *Reader {
	return &Reader{dir: dir, logger: logger}
}

// HourlyPath returns the expected location of one hourly input file.
func (r *Reader) HourlyPath(variableID string, year int) string {
	return filepath.Join(r.dir, fmt.Sprintf("%s_1hr_ERA5_%d.nc", variableID, year))
}

// ReadHourly loads one variable's hourly field for one year. Latitudes are
// normalized to ascending order regardless of the file's row order, and
// packed int16 payloads are unpacked via scale_factor/add_offset.
func (r *Reader) ReadHourly(ctx context.Context, variableID string, year int) (*grid.Field, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := r.HourlyPath(variableID, year)
	nc, err := netcdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer nc.Close()

	lats, err := axisValues(nc, "lat")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	lons, err := axisValues(nc, "lon")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	times, err := timeValues(nc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	v, err := nc.GetVariable(variableID)
	if err != nil {
		return nil, fmt.Errorf("%s: variable %s: %w", path, variableID, err)
	}

	f := grid.NewField(variableID, times, lats, lons)
	f.Attrs = stringAttrs(v.Attributes)
	f.Units, _ = stringAttr(v.Attributes, "units")
	f.StandardName, _ = stringAttr(v.Attributes, "standard_name")
	f.LongName, _ = stringAttr(v.Attributes, "long_name")

	if err := fillValues(f, v); err != nil {
		return nil, fmt.Errorf("%s: variable %s: %w", path, variableID, err)
	}

	// ERA5 files store latitude north to south; the pipeline works south
	// to north throughout.
	if len(f.Lats) > 1 && f.Lats[0] > f.Lats[1] {
		flipLat(f)
	}

	r.logger.Debug("read hourly field", "path", path,
		"times", len(times), "lats", len(lats), "lons", len(lons))
	return f, nil
}

// fillValues copies the variable payload into the field, unpacking int16
// compression and mapping the file's fill value to the field sentinel.
func fillValues(f *grid.Field, v *api.Variable) error {
	scale := floatAttrOr(v.Attributes, "scale_factor", 1)
	offset := floatAttrOr(v.Attributes, "add_offset", 0)

	nT, nLat, nLon := len(f.Times), len(f.Lats), len(f.Lons)
	switch vals := v.Values.(type) {
	case [][][]int16:
		fill, hasFill := intAttr(v.Attributes, "_FillValue")
		if err := checkShape(len(vals), nT, "time"); err != nil {
			return err
		}
		for t := 0; t < nT; t++ {
			for j := 0; j < nLat; j++ {
				for i := 0; i < nLon; i++ {
					raw := vals[t][j][i]
					if hasFill && int64(raw) == fill {
						f.SetAt(f.Missing, t, j, i)
						continue
					}
					f.SetAt(float64(raw)*scale+offset, t, j, i)
				}
			}
		}
	case [][][]float32:
		fill := floatAttrOr(v.Attributes, "_FillValue", grid.DefaultMissing)
		if err := checkShape(len(vals), nT, "time"); err != nil {
			return err
		}
		for t := 0; t < nT; t++ {
			for j := 0; j < nLat; j++ {
				for i := 0; i < nLon; i++ {
					raw := float64(vals[t][j][i])
					if raw == fill || float32(raw) == float32(fill) {
						f.SetAt(f.Missing, t, j, i)
						continue
					}
					f.SetAt(raw*scale+offset, t, j, i)
				}
			}
		}
	case [][][]float64:
		fill := floatAttrOr(v.Attributes, "_FillValue", grid.DefaultMissing)
		if err := checkShape(len(vals), nT, "time"); err != nil {
			return err
		}
		for t := 0; t < nT; t++ {
			for j := 0; j < nLat; j++ {
				for i := 0; i < nLon; i++ {
					raw := vals[t][j][i]
					if raw == fill {
						f.SetAt(f.Missing, t, j, i)
						continue
					}
					f.SetAt(raw*scale+offset, t, j, i)
				}
			}
		}
	default:
		return fmt.Errorf("unsupported payload type %T", v.Values)
	}
	return nil
}

func checkShape(got, want int, dim string) error {
	if got != want {
		return fmt.Errorf("%s dimension length %d does not match axis length %d", dim, got, want)
	}
	return nil
}

// flipLat reverses the latitude axis and value rows in place.
func flipLat(f *grid.Field) {
	nLat, nLon := len(f.Lats), len(f.Lons)
	for j, k := 0, nLat-1; j < k; j, k = j+1, k-1 {
		f.Lats[j], f.Lats[k] = f.Lats[k], f.Lats[j]
		for t := range f.Times {
			for i := 0; i < nLon; i++ {
				a, b := f.At(t, j, i), f.At(t, k, i)
				f.SetAt(b, t, j, i)
				f.SetAt(a, t, k, i)
			}
		}
	}
}

func axisValues(nc api.Group, name string) ([]float64, error) {
	vg, err := nc.GetVarGetter(name)
	if err != nil {
		return nil, fmt.Errorf("axis %s: %w", name, err)
	}
	vals, err := vg.Values()
	if err != nil {
		return nil, fmt.Errorf("axis %s: %w", name, err)
	}
	switch v := vals.(type) {
	case []float64:
		return v, nil
	case []float32:
		out := make([]float64, len(v))
		for i, x := range v {
			out[i] = float64(x)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("axis %s: unsupported type %T", name, vals)
	}
}

// timeValues decodes the time axis: integer hours since 1900-01-01 UTC.
func timeValues(nc api.Group) ([]time.Time, error) {
	vg, err := nc.GetVarGetter("time")
	if err != nil {
		return nil, fmt.Errorf("axis time: %w", err)
	}
	vals, err := vg.Values()
	if err != nil {
		return nil, fmt.Errorf("axis time: %w", err)
	}
	var hours []int64
	switch v := vals.(type) {
	case []int32:
		hours = make([]int64, len(v))
		for i, h := range v {
			hours[i] = int64(h)
		}
	case []int64:
		hours = v
	case []float64:
		hours = make([]int64, len(v))
		for i, h := range v {
			hours[i] = int64(h)
		}
	default:
		return nil, fmt.Errorf("axis time: unsupported type %T", vals)
	}
	out := make([]time.Time, len(hours))
	for i, h := range hours {
		out[i] = time.Unix(h*3600+unixSecs1900, 0).UTC()
	}
	return out, nil
}

func stringAttrs(attrs api.AttributeMap) map[string]string {
	out := make(map[string]string)
	if attrs == nil {
		return out
	}
	for _, k := range attrs.Keys() {
		if v, has := attrs.Get(k); has {
			if s, ok := v.(string); ok {
				out[k] = s
			}
		}
	}
	return out
}

func stringAttr(attrs api.AttributeMap, name string) (string, bool) {
	if attrs == nil {
		return "", false
	}
	v, has := attrs.Get(name)
	if !has {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func floatAttrOr(attrs api.AttributeMap, name string, def float64) float64 {
	if attrs == nil {
		return def
	}
	v, has := attrs.Get(name)
	if !has {
		return def
	}
	switch x := v.(type) {
	case float64:
		return x
	case float32:
		return float64(x)
	case []float64:
		if len(x) == 1 {
			return x[0]
		}
	case []float32:
		if len(x) == 1 {
			return float64(x[0])
		}
	}
	return def
}

func intAttr(attrs api.AttributeMap, name string) (int64, bool) {
	if attrs == nil {
		return 0, false
	}
	v, has := attrs.Get(name)
	if !has {
		return 0, false
	}
	switch x := v.(type) {
	case int16:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case []int16:
		if len(x) == 1 {
			return int64(x[0]), true
		}
	case []int32:
		if len(x) == 1 {
			return int64(x[0]), true
		}
	}
	return 0, false
}
