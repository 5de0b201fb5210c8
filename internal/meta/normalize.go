// Package meta rewrites field metadata to the fixed output convention:
// canonical standard_name/long_name/units per variable, fixed axis labels,
// and no transport-format provenance inherited from the raw archive.
package meta

import (
	"strings"

	"github.com/jonboulle/clockwork"

	"github.com/thchilly/era5-forcing-etl/internal/grid"
)

// Axis labels in every output file.
const (
	TimeAxis = "time"
	LatAxis  = "lat"
	LonAxis  = "lon"
)

// Time-axis encoding in every output file.
const (
	TimeUnits = "days since 1850-01-01 00:00:00"
	Calendar  = "proleptic_gregorian"
)

// clock is a package-level time source so tests can freeze the history
// timestamp via SetClock.
var clock = clockwork.NewRealClock()

// SetClock swaps the time source for provenance stamps. Pass nil to reset
// to real time.
func SetClock(c clockwork.Clock) {
	if c == nil {
		clock = clockwork.NewRealClock()
		return
	}
	clock = c
}

// transportAttrPrefixes identify per-file provenance attributes inherited
// from the raw archive's transport format. They describe the download, not
// the physical quantity, and are dropped from outputs.
var transportAttrPrefixes = []string{
	"GRIB_",
	"_ChunkSizes",
	"_Storage",
	"_Endianness",
	"_DeflateLevel",
	"_Shuffle",
	"number",
	"expver",
}

// Normalize returns a copy of f carrying the canonical metadata for its
// variable. It is idempotent: normalizing an already-normalized field is a
// no-op apart from the value-identical copy.
func Normalize(f *grid.Field) (*grid.Field, error) {
	policy, err := grid.PolicyFor(f.VariableID)
	if err != nil {
		return nil, err
	}

	out := *f
	out.StandardName = policy.StandardName
	out.LongName = policy.LongName
	out.Units = policy.Units

	attrs := make(map[string]string, len(f.Attrs)+1)
	for k, v := range f.Attrs {
		if transportAttr(k) {
			continue
		}
		attrs[k] = v
	}
	if _, ok := attrs["history"]; !ok {
		attrs["history"] = clock.Now().UTC().Format("2006-01-02T15:04:05Z") + " derived from hourly ERA5"
	}
	out.Attrs = attrs
	return &out, nil
}

func transportAttr(name string) bool {
	for _, p := range transportAttrPrefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}
