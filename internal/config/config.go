// Package config loads service settings from environment variables,
// applying defaults where unset.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/thchilly/era5-forcing-etl/internal/grid"
)

// Config holds all pipeline settings, populated from environment variables.
type Config struct {
	InputDir   string
	OutputDir  string
	WeightsDir string

	Variables []string
	StartYear int
	EndYear   int
	Workers   int

	TargetGrid grid.Def

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
}

// Load reads configuration from environment variables, applying defaults
// where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := parseDuration("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	workers, err := parseInt("WORKERS", 4)
	if err != nil {
		return nil, err
	}
	startYear, err := parseInt("START_YEAR", 1979)
	if err != nil {
		return nil, err
	}
	endYear, err := parseInt("END_YEAR", startYear)
	if err != nil {
		return nil, err
	}
	target, err := parseGrid("TARGET_GRID", grid.Def{
		Lat0: -89.75, Lon0: -179.75, DLat: 0.5, DLon: 0.5, NLat: 360, NLon: 720,
	})
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		InputDir:   envOrDefault("INPUT_DIR", "data/hourly"),
		OutputDir:  envOrDefault("OUTPUT_DIR", "data/daily"),
		WeightsDir: envOrDefault("WEIGHTS_DIR", "data/weights"),

		Variables: splitList(envOrDefault("VARIABLES",
			"tas,tasmax,tasmin,pr,ps,rlds,rsds,huss,hurs,sfcwind,tasrange")),
		StartYear: startYear,
		EndYear:   endYear,
		Workers:   workers,

		TargetGrid: target,

		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
	}

	if cfg.InputDir == "" {
		return nil, errors.New("INPUT_DIR is required")
	}
	if cfg.OutputDir == "" {
		return nil, errors.New("OUTPUT_DIR is required")
	}
	if len(cfg.Variables) == 0 {
		return nil, errors.New("VARIABLES is required")
	}
	for _, v := range cfg.Variables {
		if _, err := grid.PolicyFor(v); err != nil {
			return nil, fmt.Errorf("VARIABLES: %w", err)
		}
	}
	if cfg.EndYear < cfg.StartYear {
		return nil, errors.New("END_YEAR precedes START_YEAR")
	}
	if cfg.Workers < 1 {
		return nil, errors.New("WORKERS must be at least 1")
	}
	if err := cfg.TargetGrid.Validate(); err != nil {
		return nil, fmt.Errorf("TARGET_GRID: %w", err)
	}

	return cfg, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func parseDuration(key string, def time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

// parseGrid reads a grid description formatted as
// "lat0,lon0,dlat,dlon,nlat,nlon".
func parseGrid(key string, def grid.Def) (grid.Def, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	parts := splitList(s)
	if len(parts) != 6 {
		return grid.Def{}, fmt.Errorf("invalid %s: want 6 comma-separated values, got %d", key, len(parts))
	}
	var fs [4]float64
	for i := 0; i < 4; i++ {
		v, err := strconv.ParseFloat(parts[i], 64)
		if err != nil {
			return grid.Def{}, fmt.Errorf("invalid %s: %w", key, err)
		}
		fs[i] = v
	}
	nlat, err := strconv.Atoi(parts[4])
	if err != nil {
		return grid.Def{}, fmt.Errorf("invalid %s: %w", key, err)
	}
	nlon, err := strconv.Atoi(parts[5])
	if err != nil {
		return grid.Def{}, fmt.Errorf("invalid %s: %w", key, err)
	}
	return grid.Def{Lat0: fs[0], Lon0: fs[1], DLat: fs[2], DLon: fs[3], NLat: nlat, NLon: nlon}, nil
}
