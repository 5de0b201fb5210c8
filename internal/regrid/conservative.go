// Package regrid coarsens daily fields onto a target grid with
// first-order conservative remapping: each coarse cell is the
// area-weighted mean of the fine cells it overlaps. Weights depend only on
// the two grid descriptions, never on the data, and are cached keyed by a
// content hash of both descriptions.
package regrid

import (
	"fmt"
	"math"

	"github.com/thchilly/era5-forcing-etl/internal/grid"
)

// RegridError reports incompatible source/target grids: non-overlapping
// extents or degenerate cell geometry.
type RegridError struct {
	Detail string
}

func (e *RegridError) Error() string {
	return "regrid: " + e.Detail
}

// StaleWeightsError reports interpolation weights that were generated for
// a different grid pair than the one being remapped.
type StaleWeightsError struct {
	WantSrc, WantDst string // grid-description hashes
	HaveSrc, HaveDst string
}

func (e *StaleWeightsError) Error() string {
	return fmt.Sprintf("stale interpolation weights: built for grids (%.12s, %.12s), need (%.12s, %.12s)",
		e.HaveSrc, e.HaveDst, e.WantSrc, e.WantDst)
}

// overlap is one source cell's contribution to a target cell along one axis.
type overlap struct {
	Idx int
	W   float64
}

// Weights holds the tensor-product conservative remapping weights between
// two regular lat-lon grids. Latitude weights are proportional to the
// Δsin(φ) of the overlap band, longitude weights to its angular width, so
// their product is proportional to spherical cell area.
type Weights struct {
	SrcHash string
	DstHash string
	Lat     [][]overlap // indexed by target latitude cell
	Lon     [][]overlap // indexed by target longitude cell
}

// ComputeWeights builds conservative remapping weights from src to dst.
// Weights are a pure function of the two grid descriptions.
func ComputeWeights(src, dst grid.Def) (*Weights, error) {
	if err := src.Validate(); err != nil {
		return nil, &RegridError{Detail: "source " + err.Error()}
	}
	if err := dst.Validate(); err != nil {
		return nil, &RegridError{Detail: "target " + err.Error()}
	}

	lat, err := axisOverlaps(src.LatEdges(), dst.LatEdges(), sinBand)
	if err != nil {
		return nil, &RegridError{Detail: "latitude: " + err.Error()}
	}
	lon, err := axisOverlaps(src.LonEdges(), dst.LonEdges(), linearBand)
	if err != nil {
		return nil, &RegridError{Detail: "longitude: " + err.Error()}
	}

	return &Weights{
		SrcHash: src.Hash(),
		DstHash: dst.Hash(),
		Lat:     lat,
		Lon:     lon,
	}, nil
}

// sinBand measures a latitude band by its share of spherical surface area.
func sinBand(lo, hi float64) float64 {
	const degToRad = math.Pi / 180
	return math.Sin(hi*degToRad) - math.Sin(lo*degToRad)
}

// linearBand measures a longitude band by its angular width.
func linearBand(lo, hi float64) float64 {
	return hi - lo
}

// axisOverlaps computes, for each target interval, the source intervals it
// overlaps and their band measures.
func axisOverlaps(srcEdges, dstEdges []float64, band func(lo, hi float64) float64) ([][]overlap, error) {
	out := make([][]overlap, len(dstEdges)-1)
	for t := range out {
		t0, t1 := dstEdges[t], dstEdges[t+1]
		for s := 0; s < len(srcEdges)-1; s++ {
			lo := math.Max(t0, srcEdges[s])
			hi := math.Min(t1, srcEdges[s+1])
			if hi <= lo {
				continue
			}
			out[t] = append(out[t], overlap{Idx: s, W: band(lo, hi)})
		}
		if len(out[t]) == 0 {
			return nil, fmt.Errorf("target interval [%g, %g] overlaps no source cell", t0, t1)
		}
	}
	return out, nil
}

// Apply remaps a daily field onto dst using precomputed weights. The
// field's own grid must hash to the weights' source grid; anything else is
// a StaleWeightsError, recoverable by regenerating the weights.
func Apply(f *grid.Field, w *Weights, dst grid.Def) (*grid.Field, error) {
	src, err := grid.DefFromAxes(f.Lats, f.Lons)
	if err != nil {
		return nil, &RegridError{Detail: f.VariableID + ": " + err.Error()}
	}
	if w.SrcHash != src.Hash() || w.DstHash != dst.Hash() {
		return nil, &StaleWeightsError{
			WantSrc: src.Hash(), WantDst: dst.Hash(),
			HaveSrc: w.SrcHash, HaveDst: w.DstHash,
		}
	}

	out := grid.NewField(f.VariableID, f.Times, dst.Lats(), dst.Lons())
	out.Units = f.Units
	out.StandardName = f.StandardName
	out.LongName = f.LongName
	out.Attrs = f.CopyAttrs()

	for t := range f.Times {
		for J, latOv := range w.Lat {
			for I, lonOv := range w.Lon {
				var sum, wsum float64
				for _, lo := range latOv {
					for _, ln := range lonOv {
						v := f.At(t, lo.Idx, ln.Idx)
						if f.IsMissing(v) {
							continue
						}
						cw := lo.W * ln.W
						sum += cw * v
						wsum += cw
					}
				}
				if wsum == 0 {
					out.SetAt(out.Missing, t, J, I)
					continue
				}
				out.SetAt(float64(float32(sum/wsum)), t, J, I)
			}
		}
	}
	return out, nil
}
