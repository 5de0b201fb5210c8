// Package derive computes forcing variables that the reanalysis archive
// does not provide directly: specific and relative humidity from the Buck
// (1981) psychrometric model, scalar wind speed from its components, and
// the diurnal temperature range.
package derive

import (
	"fmt"
	"math"
	"time"

	"github.com/thchilly/era5-forcing-etl/internal/grid"
)

// NumericDomainError reports psychrometric inputs outside the physically
// valid range (vanishing vapor pressure). It is never substituted with a
// default value.
type NumericDomainError struct {
	VariableID string
	Time       time.Time
	Lat, Lon   float64
	Detail     string
}

func (e *NumericDomainError) Error() string {
	return fmt.Sprintf("%s at %s (%.3f, %.3f): %s",
		e.VariableID, e.Time.Format(time.RFC3339), e.Lat, e.Lon, e.Detail)
}

// buckCoeffs are the Buck (1981) saturation vapor pressure and enhancement
// factor constants for one phase.
type buckCoeffs struct {
	a, b, c, d float64 // e_sat = a·exp((b − t/d)·t/(t + c)), t in °C
	x, y, z    float64 // f = 1 + x + p·(y + z·t²), p in hPa
}

var (
	// Buck 1981 curves e_w4 and f_w5 (over water).
	buckWater = buckCoeffs{a: 6.1121, b: 18.729, c: 257.87, d: 227.3, x: 7.2e-4, y: 3.20e-6, z: 5.9e-10}
	// Buck 1981 curves e_i3 and f_i5 (over ice).
	buckIce = buckCoeffs{a: 6.1115, b: 23.036, c: 279.82, d: 333.7, x: 2.2e-4, y: 3.83e-6, z: 6.4e-10}
)

const (
	kelvinZero = 273.15
	// epsilon is the ratio of the gas constants of dry air and water vapor.
	epsilon = 0.62198
)

// f32 truncates to single precision. The reference outputs are float32 and
// downstream validation is bit-compatible, so every derived value passes
// through this.
func f32(v float64) float64 { return float64(float32(v)) }

// buckFor selects the phase constants for an air temperature in °C. The
// branch is per cell, not global: a field can straddle the freezing line.
func buckFor(tCelsius float64) buckCoeffs {
	if tCelsius > 0 {
		return buckWater
	}
	return buckIce
}

// SpecificHumidity computes huss (kg/kg) and hurs (%) from co-located
// hourly tas (K), dewptas (K), and ps (Pa) fields. The inputs must share
// identical axes; the outputs are on the same axes.
func SpecificHumidity(tas, dewptas, ps *grid.Field) (huss, hurs *grid.Field, err error) {
	if err := tas.SameAxes(dewptas); err != nil {
		return nil, nil, err
	}
	if err := tas.SameAxes(ps); err != nil {
		return nil, nil, err
	}

	huss = grid.NewField("huss", tas.Times, tas.Lats, tas.Lons)
	hurs = grid.NewField("hurs", tas.Times, tas.Lats, tas.Lons)
	huss.Attrs = tas.CopyAttrs()
	hurs.Attrs = tas.CopyAttrs()

	nLat, nLon := len(tas.Lats), len(tas.Lons)
	for ti := range tas.Times {
		for j := 0; j < nLat; j++ {
			for i := 0; i < nLon; i++ {
				tv, dv, pv := tas.At(ti, j, i), dewptas.At(ti, j, i), ps.At(ti, j, i)
				if tas.IsMissing(tv) || dewptas.IsMissing(dv) || ps.IsMissing(pv) {
					huss.SetAt(huss.Missing, ti, j, i)
					hurs.SetAt(hurs.Missing, ti, j, i)
					continue
				}
				q, rh, cellErr := buckCell(tv, dv, pv)
				if cellErr != nil {
					return nil, nil, &NumericDomainError{
						VariableID: "huss",
						Time:       tas.Times[ti],
						Lat:        tas.Lats[j],
						Lon:        tas.Lons[i],
						Detail:     cellErr.Error(),
					}
				}
				huss.SetAt(q, ti, j, i)
				hurs.SetAt(rh, ti, j, i)
			}
		}
	}
	return huss, hurs, nil
}

// buckCell evaluates the Buck model for one cell. tK and dK are in kelvin,
// pPa in pascal.
func buckCell(tK, dK, pPa float64) (huss, hurs float64, err error) {
	t := f32(tK - kelvinZero)
	d := f32(dK - kelvinZero)
	p := f32(pPa * 0.01) // hPa

	c := buckFor(t)

	esPure := f32(c.a * math.Exp((c.b-t/c.d)*t/(t+c.c)))
	ePure := f32(c.a * math.Exp((c.b-d/c.d)*d/(d+c.c)))
	f := f32(1 + c.x + p*(c.y+c.z*t*t))

	e := f32(ePure * f)
	es := f32(esPure * f)
	if e == 0 || es == 0 {
		return 0, 0, fmt.Errorf("vanishing vapor pressure (e=%g, es=%g)", e, es)
	}

	rInv := f32((p/e - 1) / epsilon)
	huss = f32(1 / (rInv + 1))
	hurs = f32(100 * (p/es + epsilon - 1) * huss / epsilon)
	return huss, hurs, nil
}
