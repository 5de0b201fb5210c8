package grid

import "fmt"

// Reduction identifies the temporal reduction applied to one calendar day
// of hourly samples.
type Reduction int

const (
	ReduceMean Reduction = iota
	ReduceSum
	ReduceMax
	ReduceMin
)

func (r Reduction) String() string {
	switch r {
	case ReduceMean:
		return "mean"
	case ReduceSum:
		return "sum"
	case ReduceMax:
		return "max"
	case ReduceMin:
		return "min"
	}
	return fmt.Sprintf("Reduction(%d)", int(r))
}

// Policy is the static per-variable processing record: how a day of hourly
// samples reduces to one daily value, how units rescale, and the canonical
// output metadata. The table is read-only process-wide configuration.
type Policy struct {
	VariableID string
	Reduction  Reduction

	// Scale is applied to the reduced daily value (1 means no rescale).
	// Accumulated precipitation in mm/day becomes a mean flux via 1/86.4;
	// hourly-accumulated radiation in J m-2 becomes mean power via 1/3600.
	Scale float64

	// ClampNonNegative zeroes spurious negative accumulations before
	// reduction (precipitation, radiation).
	ClampNonNegative bool

	StandardName string
	LongName     string
	Units        string

	// Inputs lists the variables a derived quantity is computed from.
	// Empty for directly observed variables.
	Inputs []string
}

// UnsupportedVariableError reports a variable with no policy entry. This is
// a configuration bug, fatal for the requesting unit.
type UnsupportedVariableError struct {
	VariableID string
}

func (e *UnsupportedVariableError) Error() string {
	return fmt.Sprintf("no processing policy for variable %q", e.VariableID)
}

var policies = map[string]Policy{
	"tas": {
		VariableID:   "tas",
		Reduction:    ReduceMean,
		Scale:        1,
		StandardName: "air_temperature",
		LongName:     "Near-Surface Air Temperature",
		Units:        "K",
	},
	"tasmax": {
		VariableID:   "tasmax",
		Reduction:    ReduceMax,
		Scale:        1,
		StandardName: "air_temperature",
		LongName:     "Daily Maximum Near-Surface Air Temperature",
		Units:        "K",
	},
	"tasmin": {
		VariableID:   "tasmin",
		Reduction:    ReduceMin,
		Scale:        1,
		StandardName: "air_temperature",
		LongName:     "Daily Minimum Near-Surface Air Temperature",
		Units:        "K",
	},
	"dewptas": {
		VariableID:   "dewptas",
		Reduction:    ReduceMean,
		Scale:        1,
		StandardName: "dew_point_temperature",
		LongName:     "Near-Surface Dew Point Temperature",
		Units:        "K",
	},
	"pr": {
		VariableID:       "pr",
		Reduction:        ReduceSum,
		Scale:            1.0 / 86.4,
		ClampNonNegative: true,
		StandardName:     "precipitation_flux",
		LongName:         "Precipitation",
		Units:            "kg m-2 s-1",
	},
	"ps": {
		VariableID:   "ps",
		Reduction:    ReduceMean,
		Scale:        1,
		StandardName: "surface_air_pressure",
		LongName:     "Surface Air Pressure",
		Units:        "Pa",
	},
	"rlds": {
		VariableID:       "rlds",
		Reduction:        ReduceSum,
		Scale:            1.0 / 3600,
		ClampNonNegative: true,
		StandardName:     "surface_downwelling_longwave_flux_in_air",
		LongName:         "Surface Downwelling Longwave Radiation",
		Units:            "W m-2",
	},
	"rsds": {
		VariableID:       "rsds",
		Reduction:        ReduceSum,
		Scale:            1.0 / 3600,
		ClampNonNegative: true,
		StandardName:     "surface_downwelling_shortwave_flux_in_air",
		LongName:         "Surface Downwelling Shortwave Radiation",
		Units:            "W m-2",
	},
	"hurs": {
		VariableID:   "hurs",
		Reduction:    ReduceMean,
		Scale:        1,
		StandardName: "relative_humidity",
		LongName:     "Near-Surface Relative Humidity",
		Units:        "%",
		Inputs:       []string{"tas", "dewptas", "ps"},
	},
	"huss": {
		VariableID:   "huss",
		Reduction:    ReduceMean,
		Scale:        1,
		StandardName: "specific_humidity",
		LongName:     "Near-Surface Specific Humidity",
		Units:        "kg kg-1",
		Inputs:       []string{"tas", "dewptas", "ps"},
	},
	"sfcwind": {
		VariableID:   "sfcwind",
		Reduction:    ReduceMean,
		Scale:        1,
		StandardName: "wind_speed",
		LongName:     "Near-Surface Wind Speed",
		Units:        "m s-1",
		Inputs:       []string{"uas", "vas"},
	},
	"uas": {
		VariableID:   "uas",
		Reduction:    ReduceMean,
		Scale:        1,
		StandardName: "eastward_wind",
		LongName:     "Eastward Near-Surface Wind",
		Units:        "m s-1",
	},
	"vas": {
		VariableID:   "vas",
		Reduction:    ReduceMean,
		Scale:        1,
		StandardName: "northward_wind",
		LongName:     "Northward Near-Surface Wind",
		Units:        "m s-1",
	},
	"tasrange": {
		VariableID:   "tasrange",
		Reduction:    ReduceMean,
		Scale:        1,
		StandardName: "air_temperature_range",
		LongName:     "Daily Near-Surface Air Temperature Range",
		Units:        "K",
		Inputs:       []string{"tasmax", "tasmin"},
	},
}

// PolicyFor looks up the processing policy for a variable.
func PolicyFor(variableID string) (Policy, error) {
	p, ok := policies[variableID]
	if !ok {
		return Policy{}, &UnsupportedVariableError{VariableID: variableID}
	}
	return p, nil
}

// Variables returns the IDs of all variables with a policy entry.
func Variables() []string {
	out := make([]string, 0, len(policies))
	for id := range policies {
		out = append(out, id)
	}
	return out
}
