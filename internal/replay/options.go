// Package replay steps a loaded dataset through validation, the rolling
// buffer and the metrics engine, one row at a time.
//
// Each Session owns its buffer, replay position and counters. A Manager
// keeps the registry of live sessions for the API layer.
package replay

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/wonny/salespulse/internal/window"
	"github.com/wonny/salespulse/pkg/config"
)

var (
	// ErrExhausted is returned by Step once every row has been replayed
	ErrExhausted = errors.New("replay: dataset exhausted")

	// ErrSessionNotFound is returned for unknown session ids
	ErrSessionNotFound = errors.New("replay: session not found")

	// ErrTooManySessions is returned when the registry is full
	ErrTooManySessions = errors.New("replay: too many sessions")

	// ErrSpeedNotAllowed is returned for speeds outside the configured options
	ErrSpeedNotAllowed = errors.New("replay: speed not allowed")

	// ErrInvalidSpeed is returned for negative or non-finite speeds
	ErrInvalidSpeed = errors.New("replay: invalid speed")
)

// Options tune a single session
type Options struct {
	Retention   window.Retention
	WindowSize  int
	UpdateEvery int     // metrics are recomputed every UpdateEvery rows
	Speed       float64 // seconds between rows, 0 = unpaced
}

// OptionsFromConfig converts the replay section of the config
func OptionsFromConfig(cfg config.ReplayConfig) (Options, error) {
	retention, err := window.ParseRetention(cfg.Retention)
	if err != nil {
		return Options{}, fmt.Errorf("replay options: %w", err)
	}

	opts := Options{
		Retention:   retention,
		WindowSize:  cfg.WindowSize,
		UpdateEvery: cfg.UpdateEvery,
		Speed:       cfg.Speed,
	}
	return opts.normalize(), nil
}

func (o Options) normalize() Options {
	if o.Retention == "" {
		o.Retention = window.RetentionSliding
	}
	if o.WindowSize <= 0 {
		o.WindowSize = window.DefaultSize
	}
	if o.UpdateEvery < 1 {
		o.UpdateEvery = 1
	}
	if o.Speed < 0 || math.IsNaN(o.Speed) {
		o.Speed = 0
	}
	return o
}

func checkSpeed(speed float64) error {
	if speed < 0 || math.IsNaN(speed) || math.IsInf(speed, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidSpeed, speed)
	}
	return nil
}

// delay converts seconds per row into the limiter interval
func delay(speed float64) time.Duration {
	return config.SpeedDelay(speed)
}
