// Package grid holds the data model for the forcing pipeline: gridded
// physical fields, regular latitude/longitude grid descriptions, and the
// per-variable processing policy table.
//
// # Fields
//
// A [Field] is one physical quantity on a time × lat × lon box. Values are
// stored in a dense row-major array (time-major, then latitude, then
// longitude), matching the layout of the source NetCDF files. Fields are
// value-producing: every pipeline stage returns a new Field and never
// mutates its input.
//
// # Variable vocabulary
//
// Variable identifiers follow the CMOR/CMIP short-name convention used by
// the downstream land-surface model:
//
//	tas      near-surface air temperature      K
//	tasmax   daily maximum air temperature     K
//	tasmin   daily minimum air temperature     K
//	dewptas  dew point temperature             K
//	pr       precipitation flux                kg m-2 s-1
//	ps       surface air pressure              Pa
//	rlds     downwelling longwave radiation    W m-2
//	rsds     downwelling shortwave radiation   W m-2
//	hurs     relative humidity                 %
//	huss     specific humidity                 kg kg-1
//	sfcwind  near-surface wind speed           m s-1
//	uas/vas  eastward/northward wind           m s-1
//	tasrange daily temperature range           K
//
// The [Policy] table is the single closed enumeration mapping each
// identifier to its temporal reduction rule, unit rescale, and canonical
// metadata. Stages dispatch on this table rather than on scattered
// per-variable branches.
package grid
