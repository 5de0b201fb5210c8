// Package aggregate reduces hourly fields to daily resolution using the
// per-variable policy table, normalizing units in the same pass so no
// intermediate field ever carries ambiguous units.
package aggregate

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/thchilly/era5-forcing-etl/internal/grid"
)

const hoursPerDay = 24

// IncompleteDayError reports a calendar day with missing hourly samples.
// The day is skipped and reported, never averaged over fewer samples or
// interpolated.
type IncompleteDayError struct {
	VariableID string
	Day        time.Time
	Samples    int
}

func (e IncompleteDayError) Error() string {
	return fmt.Sprintf("%s: day %s has %d of %d hourly samples",
		e.VariableID, e.Day.Format("2006-01-02"), e.Samples, hoursPerDay)
}

// dayGroup is one calendar day's worth of contiguous hourly time indices.
type dayGroup struct {
	day   time.Time // 00:00 UTC
	first int       // index of the first hourly sample
	n     int
}

// Daily reduces an hourly field to one value per complete calendar day,
// applying the variable's reduction rule, non-negative clamp, and unit
// rescale. Incomplete days are dropped from the output and reported in the
// returned slice. The error return is fatal for the field: unknown
// variable, invalid axes, or no complete day at all.
func Daily(f *grid.Field) (*grid.Field, []IncompleteDayError, error) {
	policy, err := grid.PolicyFor(f.VariableID)
	if err != nil {
		return nil, nil, err
	}
	if err := f.Validate(); err != nil {
		return nil, nil, err
	}

	complete, skipped := partitionDays(f.VariableID, f.Times)
	if len(complete) == 0 {
		return nil, skipped, fmt.Errorf("%s: no complete day in %d hourly samples", f.VariableID, len(f.Times))
	}

	days := make([]time.Time, len(complete))
	for g, grp := range complete {
		days[g] = grp.day
	}
	out := grid.NewField(f.VariableID, days, f.Lats, f.Lons)
	out.Attrs = f.CopyAttrs()
	out.Units = policy.Units
	out.StandardName = policy.StandardName
	out.LongName = policy.LongName

	nLat, nLon := len(f.Lats), len(f.Lons)
	window := make([]float64, hoursPerDay)
	for g, grp := range complete {
		for j := 0; j < nLat; j++ {
			for i := 0; i < nLon; i++ {
				ok := true
				for h := 0; h < grp.n; h++ {
					v := f.At(grp.first+h, j, i)
					if f.IsMissing(v) {
						ok = false
						break
					}
					if policy.ClampNonNegative && v < 0 {
						v = 0
					}
					window[h] = v
				}
				if !ok {
					out.SetAt(out.Missing, g, j, i)
					continue
				}
				out.SetAt(reduce(policy, window[:grp.n]), g, j, i)
			}
		}
	}
	return out, skipped, nil
}

// partitionDays splits a strictly increasing hourly time axis into
// complete calendar-day groups. A complete day is exactly 24 contiguous
// samples covering hours 0 through 23 UTC.
func partitionDays(variableID string, times []time.Time) (complete []dayGroup, skipped []IncompleteDayError) {
	i := 0
	for i < len(times) {
		day := times[i].UTC().Truncate(hoursPerDay * time.Hour)
		n := 0
		contiguous := true
		for i+n < len(times) && times[i+n].UTC().Truncate(hoursPerDay*time.Hour).Equal(day) {
			if times[i+n].UTC().Hour() != n {
				contiguous = false
			}
			n++
		}
		if n == hoursPerDay && contiguous {
			complete = append(complete, dayGroup{day: day, first: i, n: n})
		} else {
			skipped = append(skipped, IncompleteDayError{VariableID: variableID, Day: day, Samples: n})
		}
		i += n
	}
	return complete, skipped
}

func reduce(policy grid.Policy, window []float64) float64 {
	var v float64
	switch policy.Reduction {
	case grid.ReduceSum:
		v = floats.Sum(window)
	case grid.ReduceMax:
		v = floats.Max(window)
	case grid.ReduceMin:
		v = floats.Min(window)
	default:
		v = floats.Sum(window) / float64(len(window))
	}
	return float64(float32(v * policy.Scale))
}
