package derive

import (
	"fmt"

	"github.com/thchilly/era5-forcing-etl/internal/grid"
)

// PairingError reports that the companion series needed for a range
// derivation is absent or does not cover the same period and grid. It is
// recoverable: the caller skips the series and continues the batch.
type PairingError struct {
	Have   string
	Want   string
	Detail string
}

func (e *PairingError) Error() string {
	return fmt.Sprintf("no matching %s series for %s: %s", e.Want, e.Have, e.Detail)
}

// Range computes tasrange = tasmax − tasmin from co-located daily fields.
// Period and grid must match exactly; a mismatch is a PairingError.
func Range(tasmax, tasmin *grid.Field) (*grid.Field, error) {
	if tasmin == nil {
		return nil, &PairingError{Have: "tasmax", Want: "tasmin", Detail: "series missing"}
	}
	if err := tasmax.SameAxes(tasmin); err != nil {
		return nil, &PairingError{Have: "tasmax", Want: "tasmin", Detail: err.Error()}
	}

	out := grid.NewField("tasrange", tasmax.Times, tasmax.Lats, tasmax.Lons)
	out.Attrs = tasmax.CopyAttrs()
	for k, hi := range tasmax.Values.Elements {
		lo := tasmin.Values.Elements[k]
		if tasmax.IsMissing(hi) || tasmin.IsMissing(lo) {
			out.Values.Elements[k] = out.Missing
			continue
		}
		out.Values.Elements[k] = f32(hi - lo)
	}
	return out, nil
}
