package grid

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
)

// Def describes a regular latitude/longitude grid by its cell centers.
// Lat0/Lon0 are the centers of the first (southernmost/westernmost) cells.
type Def struct {
	Lat0 float64
	Lon0 float64
	DLat float64
	DLon float64
	NLat int
	NLon int
}

// Lats returns the latitude cell centers, south to north.
func (d Def) Lats() []float64 {
	out := make([]float64, d.NLat)
	for j := range out {
		out[j] = d.Lat0 + float64(j)*d.DLat
	}
	return out
}

// Lons returns the longitude cell centers, west to east.
func (d Def) Lons() []float64 {
	out := make([]float64, d.NLon)
	for i := range out {
		out[i] = d.Lon0 + float64(i)*d.DLon
	}
	return out
}

// LatEdges returns the NLat+1 cell-edge latitudes.
func (d Def) LatEdges() []float64 {
	out := make([]float64, d.NLat+1)
	for j := range out {
		out[j] = d.Lat0 - d.DLat/2 + float64(j)*d.DLat
	}
	return out
}

// LonEdges returns the NLon+1 cell-edge longitudes.
func (d Def) LonEdges() []float64 {
	out := make([]float64, d.NLon+1)
	for i := range out {
		out[i] = d.Lon0 - d.DLon/2 + float64(i)*d.DLon
	}
	return out
}

// Validate reports degenerate geometry.
func (d Def) Validate() error {
	if d.NLat < 1 || d.NLon < 1 {
		return fmt.Errorf("grid has empty extent (%d × %d)", d.NLat, d.NLon)
	}
	if d.DLat <= 0 || d.DLon <= 0 {
		return fmt.Errorf("grid has degenerate cell size (%g × %g)", d.DLat, d.DLon)
	}
	if math.Abs(d.Lat0-d.DLat/2) > 90 || math.Abs(d.Lat0+float64(d.NLat-1)*d.DLat+d.DLat/2) > 90+1e-9 {
		return fmt.Errorf("grid latitude extent leaves [-90, 90]")
	}
	return nil
}

// Hash returns a content hash of the grid description. Interpolation
// weights are keyed on this hash, so any change to the description
// invalidates cached weights without relying on file timestamps.
func (d Def) Hash() string {
	s := fmt.Sprintf("lat0=%.10f lon0=%.10f dlat=%.10f dlon=%.10f nlat=%d nlon=%d",
		d.Lat0, d.Lon0, d.DLat, d.DLon, d.NLat, d.NLon)
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// DefFromAxes reconstructs a grid description from cell-center axes.
// The axes must be uniformly spaced.
func DefFromAxes(lats, lons []float64) (Def, error) {
	if len(lats) < 2 || len(lons) < 2 {
		return Def{}, fmt.Errorf("axes too short to define a grid (%d × %d)", len(lats), len(lons))
	}
	d := Def{
		Lat0: lats[0],
		Lon0: lons[0],
		DLat: lats[1] - lats[0],
		DLon: lons[1] - lons[0],
		NLat: len(lats),
		NLon: len(lons),
	}
	const tol = 1e-6
	for j := 1; j < len(lats); j++ {
		if math.Abs(lats[j]-lats[j-1]-d.DLat) > tol {
			return Def{}, fmt.Errorf("latitude axis not uniform at index %d", j)
		}
	}
	for i := 1; i < len(lons); i++ {
		if math.Abs(lons[i]-lons[i-1]-d.DLon) > tol {
			return Def{}, fmt.Errorf("longitude axis not uniform at index %d", i)
		}
	}
	return d, d.Validate()
}
