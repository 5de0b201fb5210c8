// Command gendata writes synthetic hourly ERA5-style NetCDF inputs so the
// forcing pipeline can be exercised locally without archive access. Values
// follow simple diurnal and seasonal cycles per variable.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ctessum/cdf"
)

var (
	outDir = flag.String("out", "data/hourly", "output directory for hourly files")
	year   = flag.Int("year", 2000, "year to generate")
	days   = flag.Int("days", 10, "number of days from January 1st")
	vars   = flag.String("vars", "tas,tasmax,tasmin,dewptas,pr,ps,rlds,rsds,uas,vas", "comma-separated variables")
	lat0   = flag.Float64("lat0", 40.125, "first latitude cell center")
	lon0   = flag.Float64("lon0", -9.875, "first longitude cell center")
	nLat   = flag.Int("nlat", 16, "latitude cells (0.25 degree spacing)")
	nLon   = flag.Int("nlon", 16, "longitude cells (0.25 degree spacing)")
)

const unixSecs1900 = -2208988800

func main() {
	flag.Parse()
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		logger.Error("create output dir", "error", err)
		os.Exit(1)
	}

	start := time.Date(*year, 1, 1, 0, 0, 0, 0, time.UTC)
	nT := *days * 24
	for _, v := range strings.Split(*vars, ",") {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		path := filepath.Join(*outDir, fmt.Sprintf("%s_1hr_ERA5_%d.nc", v, *year))
		if err := writeVariable(path, v, start, nT); err != nil {
			logger.Error("generate failed", "variable", v, "error", err)
			os.Exit(1)
		}
		logger.Info("generated", "path", path, "hours", nT)
	}
}

func writeVariable(path, variableID string, start time.Time, nT int) error {
	h := cdf.NewHeader([]string{"time", "lat", "lon"}, []int{0, *nLat, *nLon})
	h.AddVariable("time", []string{"time"}, []int32{0})
	h.AddAttribute("time", "units", "hours since 1900-01-01 00:00:00")
	h.AddVariable("lat", []string{"lat"}, []float64{0})
	h.AddAttribute("lat", "units", "degrees_north")
	h.AddVariable("lon", []string{"lon"}, []float64{0})
	h.AddAttribute("lon", "units", "degrees_east")
	h.AddVariable(variableID, []string{"time", "lat", "lon"}, []float32{0})
	h.AddAttribute(variableID, "GRIB_shortName", variableID)
	h.AddAttribute(variableID, "_FillValue", []float32{1e20})
	h.Define()
	for _, err := range h.Check() {
		if err != nil {
			return err
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	nc, err := cdf.Create(file, h)
	if err != nil {
		return err
	}

	times := make([]int32, nT)
	for t := range times {
		times[t] = int32(start.Add(time.Duration(t)*time.Hour).Unix()-unixSecs1900) / 3600
	}
	lats := make([]float64, *nLat)
	for j := range lats {
		lats[j] = *lat0 + float64(j)*0.25
	}
	lons := make([]float64, *nLon)
	for i := range lons {
		lons[i] = *lon0 + float64(i)*0.25
	}

	if _, err := nc.Writer("time", []int{0}, []int{nT}).Write(times); err != nil {
		return err
	}
	if _, err := nc.Writer("lat", []int{0}, []int{*nLat}).Write(lats); err != nil {
		return err
	}
	if _, err := nc.Writer("lon", []int{0}, []int{*nLon}).Write(lons); err != nil {
		return err
	}

	vals := make([]float32, nT**nLat**nLon)
	k := 0
	for t := 0; t < nT; t++ {
		hour := float64(t % 24)
		diurnal := math.Sin(2 * math.Pi * (hour - 6) / 24)
		for j := 0; j < *nLat; j++ {
			for i := 0; i < *nLon; i++ {
				vals[k] = float32(sample(variableID, diurnal, lats[j], lons[i]))
				k++
			}
		}
	}
	if _, err := nc.Writer(variableID, []int{0, 0, 0}, []int{nT, 0, 0}).Write(vals); err != nil {
		return err
	}
	return cdf.UpdateNumRecs(file)
}

func sample(variableID string, diurnal, lat, lon float64) float64 {
	base := 288 - 0.5*(lat-40) + 0.01*lon
	switch variableID {
	case "tas":
		return base + 5*diurnal
	case "tasmax":
		return base + 5*diurnal + 1
	case "tasmin":
		return base + 5*diurnal - 1
	case "dewptas":
		return base + 5*diurnal - 3
	case "pr":
		// mm accumulated per hour, occasionally "negative" to mimic the
		// archive's accumulation artifacts.
		return 0.2 + 0.2*diurnal - 0.05
	case "ps":
		return 101325 - 10*(lat-40)
	case "rsds":
		return math.Max(0, 2e6*diurnal)
	case "rlds":
		return 1.1e6 + 1e5*diurnal
	case "uas":
		return 3 + diurnal
	case "vas":
		return 4 - diurnal
	}
	return 0
}
