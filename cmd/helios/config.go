package main

import (
	"fmt"
	"os"
	"strconv"
	"unicode/utf8"

	"github.com/wehubfusion/Helios/pkg/grid"
	"github.com/wehubfusion/Helios/pkg/predicate"
	"github.com/wehubfusion/Helios/pkg/render"
)

// runConfig is the driver's environment-driven configuration. The process
// takes no arguments; everything is tuned through HELIOS_* variables and
// every knob has a default matching the classic chart.
type runConfig struct {
	Grid       grid.Spec
	Iterations int

	StableGlyph   rune
	UnstableGlyph rune

	// Script is an optional inline classification script; when set it
	// replaces the built-in Mandelbrot evaluator
	Script string

	// NATSURL switches the driver to the distributed runtime when set
	NATSURL     string
	TaskSubject string

	// OTLPEndpoint enables tracing when set
	OTLPEndpoint string

	// SentryDSN enables fatal-error reporting when set
	SentryDSN string

	// StorageConnectionString enables chart archival when set
	StorageConnectionString string
	StorageContainer        string
}

func loadRunConfig() (runConfig, error) {
	cfg := runConfig{
		Grid:             grid.DefaultSpec(),
		Iterations:       predicate.DefaultIterations,
		StableGlyph:      render.DefaultStableGlyph,
		UnstableGlyph:    render.DefaultUnstableGlyph,
		Script:           os.Getenv("HELIOS_PREDICATE_SCRIPT"),
		NATSURL:          os.Getenv("HELIOS_NATS_URL"),
		TaskSubject:      os.Getenv("HELIOS_TASK_SUBJECT"),
		OTLPEndpoint:     os.Getenv("HELIOS_OTLP_ENDPOINT"),
		SentryDSN:        os.Getenv("HELIOS_SENTRY_DSN"),
		StorageContainer: "helios-charts",
	}
	cfg.StorageConnectionString = os.Getenv("HELIOS_STORAGE_CONNECTION_STRING")
	if container := os.Getenv("HELIOS_STORAGE_CONTAINER"); container != "" {
		cfg.StorageContainer = container
	}

	var err error
	if cfg.Grid.Rows, err = envInt("HELIOS_ROWS", cfg.Grid.Rows); err != nil {
		return cfg, err
	}
	if cfg.Grid.Cols, err = envInt("HELIOS_COLS", cfg.Grid.Cols); err != nil {
		return cfg, err
	}
	if cfg.Iterations, err = envInt("HELIOS_ITERATIONS", cfg.Iterations); err != nil {
		return cfg, err
	}
	if cfg.Grid.RealMin, err = envFloat("HELIOS_REAL_MIN", cfg.Grid.RealMin); err != nil {
		return cfg, err
	}
	if cfg.Grid.RealMax, err = envFloat("HELIOS_REAL_MAX", cfg.Grid.RealMax); err != nil {
		return cfg, err
	}
	if cfg.Grid.ImagMin, err = envFloat("HELIOS_IMAG_MIN", cfg.Grid.ImagMin); err != nil {
		return cfg, err
	}
	if cfg.Grid.ImagMax, err = envFloat("HELIOS_IMAG_MAX", cfg.Grid.ImagMax); err != nil {
		return cfg, err
	}
	if cfg.StableGlyph, err = envGlyph("HELIOS_STABLE_GLYPH", cfg.StableGlyph); err != nil {
		return cfg, err
	}
	if cfg.UnstableGlyph, err = envGlyph("HELIOS_UNSTABLE_GLYPH", cfg.UnstableGlyph); err != nil {
		return cfg, err
	}

	return cfg, nil
}

func envInt(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, value)
	}
	return n, nil
}

func envFloat(key string, fallback float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number, got %q", key, value)
	}
	return f, nil
}

func envGlyph(key string, fallback rune) (rune, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	if utf8.RuneCountInString(value) != 1 {
		return 0, fmt.Errorf("%s must be a single rune, got %q", key, value)
	}
	r, _ := utf8.DecodeRuneInString(value)
	return r, nil
}
