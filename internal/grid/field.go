package grid

import (
	"fmt"
	"time"

	"github.com/ctessum/sparse"
)

// DefaultMissing is the sentinel used for cells that carry no data. It
// survives a round trip through float32 storage unchanged.
const DefaultMissing = 1e20

// Field is one physical quantity on a rectangular time × lat × lon domain.
// Values are stored time-major. Pipeline stages treat Fields as immutable
// and return new ones.
type Field struct {
	VariableID string

	// Values has shape [len(Times), len(Lats), len(Lons)].
	Values *sparse.DenseArray

	Times []time.Time
	Lats  []float64
	Lons  []float64

	Units        string
	StandardName string
	LongName     string

	// Attrs carries auxiliary attributes inherited from the source file
	// (e.g. GRIB provenance) until the metadata normalizer strips them.
	Attrs map[string]string

	Missing float64
}

// AxisMismatchError reports that two fields expected to be co-registered
// are not on identical time/space axes.
type AxisMismatchError struct {
	A, B   string // variable IDs
	Detail string
}

func (e *AxisMismatchError) Error() string {
	return fmt.Sprintf("axis mismatch between %s and %s: %s", e.A, e.B, e.Detail)
}

// NewField allocates a zero-valued field on the given axes.
func NewField(variableID string, times []time.Time, lats, lons []float64) *Field {
	return &Field{
		VariableID: variableID,
		Values:     sparse.ZerosDense(len(times), len(lats), len(lons)),
		Times:      times,
		Lats:       lats,
		Lons:       lons,
		Missing:    DefaultMissing,
	}
}

// Validate checks the structural invariants: value shape matches the axes
// and the time axis is strictly increasing.
func (f *Field) Validate() error {
	if f.Values == nil {
		return fmt.Errorf("%s: field has no values", f.VariableID)
	}
	shape := f.Values.Shape
	if len(shape) != 3 || shape[0] != len(f.Times) || shape[1] != len(f.Lats) || shape[2] != len(f.Lons) {
		return fmt.Errorf("%s: values shape %v does not match axes (%d, %d, %d)",
			f.VariableID, shape, len(f.Times), len(f.Lats), len(f.Lons))
	}
	for i := 1; i < len(f.Times); i++ {
		if !f.Times[i].After(f.Times[i-1]) {
			return fmt.Errorf("%s: time axis not strictly increasing at index %d", f.VariableID, i)
		}
	}
	return nil
}

// At returns the value at (time, lat, lon) index.
func (f *Field) At(t, j, i int) float64 {
	return f.Values.Elements[(t*len(f.Lats)+j)*len(f.Lons)+i]
}

// SetAt stores a value at (time, lat, lon) index.
func (f *Field) SetAt(v float64, t, j, i int) {
	f.Values.Elements[(t*len(f.Lats)+j)*len(f.Lons)+i] = v
}

// IsMissing reports whether v is the field's missing sentinel. Missing is
// set by NewField and carried through every copy, so it is compared as-is:
// zero is a legitimate sentinel if a caller configures one.
func (f *Field) IsMissing(v float64) bool {
	return v == f.Missing
}

// SameAxes returns an AxisMismatchError unless other shares identical
// time, latitude, and longitude axes with f.
func (f *Field) SameAxes(other *Field) error {
	if len(f.Times) != len(other.Times) || len(f.Lats) != len(other.Lats) || len(f.Lons) != len(other.Lons) {
		return &AxisMismatchError{A: f.VariableID, B: other.VariableID,
			Detail: fmt.Sprintf("shape (%d,%d,%d) vs (%d,%d,%d)",
				len(f.Times), len(f.Lats), len(f.Lons),
				len(other.Times), len(other.Lats), len(other.Lons))}
	}
	for i := range f.Times {
		if !f.Times[i].Equal(other.Times[i]) {
			return &AxisMismatchError{A: f.VariableID, B: other.VariableID,
				Detail: fmt.Sprintf("time axis differs at index %d: %s vs %s",
					i, f.Times[i].Format(time.RFC3339), other.Times[i].Format(time.RFC3339))}
		}
	}
	for i := range f.Lats {
		if f.Lats[i] != other.Lats[i] {
			return &AxisMismatchError{A: f.VariableID, B: other.VariableID,
				Detail: fmt.Sprintf("lat axis differs at index %d", i)}
		}
	}
	for i := range f.Lons {
		if f.Lons[i] != other.Lons[i] {
			return &AxisMismatchError{A: f.VariableID, B: other.VariableID,
				Detail: fmt.Sprintf("lon axis differs at index %d", i)}
		}
	}
	return nil
}

// CopyAttrs returns a copy of the auxiliary attribute map, never nil.
func (f *Field) CopyAttrs() map[string]string {
	out := make(map[string]string, len(f.Attrs))
	for k, v := range f.Attrs {
		out[k] = v
	}
	return out
}
