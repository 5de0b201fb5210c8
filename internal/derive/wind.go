package derive

import (
	"math"

	"github.com/thchilly/era5-forcing-etl/internal/grid"
)

// WindSpeed computes sfcwind = sqrt(uas² + vas²) from co-located wind
// component fields.
func WindSpeed(uas, vas *grid.Field) (*grid.Field, error) {
	if err := uas.SameAxes(vas); err != nil {
		return nil, err
	}

	out := grid.NewField("sfcwind", uas.Times, uas.Lats, uas.Lons)
	out.Attrs = uas.CopyAttrs()
	for k, u := range uas.Values.Elements {
		v := vas.Values.Elements[k]
		if uas.IsMissing(u) || vas.IsMissing(v) {
			out.Values.Elements[k] = out.Missing
			continue
		}
		out.Values.Elements[k] = f32(math.Hypot(u, v))
	}
	return out, nil
}
