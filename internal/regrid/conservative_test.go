package regrid

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thchilly/era5-forcing-etl/internal/grid"
)

// fineDef and coarseDef cover the same 1°×1° patch: a 4×4 quarter-degree
// grid and the 2×2 half-degree grid it coarsens onto, with aligned edges.
var (
	fineDef   = grid.Def{Lat0: 40.125, Lon0: 10.125, DLat: 0.25, DLon: 0.25, NLat: 4, NLon: 4}
	coarseDef = grid.Def{Lat0: 40.25, Lon0: 10.25, DLat: 0.5, DLon: 0.5, NLat: 2, NLon: 2}
)

// fineField builds a one-day field on fineDef filled by fn(j, i).
func fineField(fn func(j, i int) float64) *grid.Field {
	times := []time.Time{time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)}
	f := grid.NewField("tas", times, fineDef.Lats(), fineDef.Lons())
	for j := 0; j < fineDef.NLat; j++ {
		for i := 0; i < fineDef.NLon; i++ {
			f.SetAt(fn(j, i), 0, j, i)
		}
	}
	return f
}

func TestComputeWeights_Structure(t *testing.T) {
	w, err := ComputeWeights(fineDef, coarseDef)
	require.NoError(t, err)

	assert.Equal(t, fineDef.Hash(), w.SrcHash)
	assert.Equal(t, coarseDef.Hash(), w.DstHash)
	require.Len(t, w.Lat, 2)
	require.Len(t, w.Lon, 2)

	// Each half-degree cell covers exactly two quarter-degree cells.
	assert.Equal(t, []int{0, 1}, overlapIndices(w.Lat[0]))
	assert.Equal(t, []int{2, 3}, overlapIndices(w.Lat[1]))
	assert.Equal(t, []int{0, 1}, overlapIndices(w.Lon[0]))
	assert.Equal(t, []int{2, 3}, overlapIndices(w.Lon[1]))
}

func overlapIndices(ovs []overlap) []int {
	out := make([]int, len(ovs))
	for k, ov := range ovs {
		out[k] = ov.Idx
	}
	return out
}

func TestComputeWeights_SphericalLatitudeMeasure(t *testing.T) {
	w, err := ComputeWeights(fineDef, coarseDef)
	require.NoError(t, err)

	// Latitude weights follow Δsin(φ), so the poleward fine band of each
	// coarse cell carries slightly less weight than the equatorward one.
	for _, ovs := range w.Lat {
		require.Len(t, ovs, 2)
		assert.Greater(t, ovs[0].W, ovs[1].W)
		edges := fineDef.LatEdges()
		lo, hi := edges[ovs[0].Idx], edges[ovs[0].Idx+1]
		assert.InDelta(t, sinBand(lo, hi), ovs[0].W, 1e-15)
	}

	// Longitude weights are a plain angular width.
	for _, ovs := range w.Lon {
		for _, ov := range ovs {
			assert.InDelta(t, 0.25, ov.W, 1e-9)
		}
	}
}

func TestApply_ConstantPreserved(t *testing.T) {
	const v = 273.5
	w, err := ComputeWeights(fineDef, coarseDef)
	require.NoError(t, err)

	out, err := Apply(fineField(func(_, _ int) float64 { return v }), w, coarseDef)
	require.NoError(t, err)
	require.Equal(t, []int{1, 2, 2}, out.Values.Shape)
	for _, got := range out.Values.Elements {
		assert.Equal(t, v, got)
	}
}

func TestApply_AreaWeightedMean(t *testing.T) {
	w, err := ComputeWeights(fineDef, coarseDef)
	require.NoError(t, err)

	// Field varying only with longitude: equal lon widths make every
	// coarse value the plain mean of its two fine columns.
	out, err := Apply(fineField(func(_, i int) float64 { return float64(i) }), w, coarseDef)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, out.At(0, 0, 0), 1e-6)
	assert.InDelta(t, 2.5, out.At(0, 0, 1), 1e-6)

	// Field varying only with latitude: the sin-band weights must show up
	// in the mean.
	out, err = Apply(fineField(func(j, _ int) float64 { return float64(j) }), w, coarseDef)
	require.NoError(t, err)
	edges := fineDef.LatEdges()
	w0, w1 := sinBand(edges[0], edges[1]), sinBand(edges[1], edges[2])
	want := w1 / (w0 + w1) // values 0 and 1
	assert.InDelta(t, want, out.At(0, 0, 0), 1e-6)
	assert.Greater(t, 0.5, out.At(0, 0, 0))
}

func TestApply_MissingCells(t *testing.T) {
	w, err := ComputeWeights(fineDef, coarseDef)
	require.NoError(t, err)

	// One missing fine cell renormalizes over the rest; a fully missing
	// footprint yields a missing coarse cell.
	f := fineField(func(j, i int) float64 {
		if j < 2 && i < 2 {
			return grid.DefaultMissing // whole footprint of coarse (0,0)
		}
		if j == 2 && i == 2 {
			return grid.DefaultMissing // one cell of coarse (1,1)
		}
		return 10
	})

	out, err := Apply(f, w, coarseDef)
	require.NoError(t, err)
	assert.True(t, out.IsMissing(out.At(0, 0, 0)))
	assert.InDelta(t, 10, out.At(0, 1, 1), 1e-6)
	assert.InDelta(t, 10, out.At(0, 0, 1), 1e-6)
}

func TestApply_StaleWeights(t *testing.T) {
	w, err := ComputeWeights(fineDef, coarseDef)
	require.NoError(t, err)

	shifted := fineDef
	shifted.Lon0 += 5
	f := fineField(func(_, _ int) float64 { return 1 })
	f.Lons = shifted.Lons()

	_, err = Apply(f, w, coarseDef)
	var stale *StaleWeightsError
	require.ErrorAs(t, err, &stale)
	assert.Equal(t, fineDef.Hash(), stale.HaveSrc)
	assert.Equal(t, shifted.Hash(), stale.WantSrc)
}

func TestComputeWeights_Errors(t *testing.T) {
	var regridErr *RegridError

	t.Run("disjoint extents", func(t *testing.T) {
		far := coarseDef
		far.Lon0 = 120.25
		_, err := ComputeWeights(fineDef, far)
		require.ErrorAs(t, err, &regridErr)
		assert.Contains(t, err.Error(), "overlaps no source cell")
	})

	t.Run("degenerate source", func(t *testing.T) {
		bad := fineDef
		bad.DLat = 0
		_, err := ComputeWeights(bad, coarseDef)
		require.ErrorAs(t, err, &regridErr)
	})

	t.Run("empty target", func(t *testing.T) {
		bad := coarseDef
		bad.NLon = 0
		_, err := ComputeWeights(fineDef, bad)
		require.ErrorAs(t, err, &regridErr)
	})
}

func TestApply_TotalConservation(t *testing.T) {
	w, err := ComputeWeights(fineDef, coarseDef)
	require.NoError(t, err)

	f := fineField(func(j, i int) float64 { return 280 + float64(j)*2 + float64(i) })
	out, err := Apply(f, w, coarseDef)
	require.NoError(t, err)

	// The area-weighted integral over the patch is invariant under the
	// remap (no missing cells involved).
	fineInt := areaIntegral(f, fineDef)
	coarseInt := areaIntegral(out, coarseDef)
	assert.InDelta(t, fineInt, coarseInt, math.Abs(fineInt)*1e-6)
}

func areaIntegral(f *grid.Field, d grid.Def) float64 {
	latEdges, lonEdges := d.LatEdges(), d.LonEdges()
	var total float64
	for j := 0; j < d.NLat; j++ {
		for i := 0; i < d.NLon; i++ {
			a := sinBand(latEdges[j], latEdges[j+1]) * (lonEdges[i+1] - lonEdges[i])
			total += a * f.At(0, j, i)
		}
	}
	return total
}
