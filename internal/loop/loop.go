// Package loop drives periodic sensor-to-panel updates.
package loop

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/shini4i/ocypus-lcd/internal/report"
	"github.com/shini4i/ocypus-lcd/internal/sensor"
)

// Display is the subset of the HID controller the loop drives.
type Display interface {
	Show(celsius float64, unit report.Unit) error
	Blank() error
}

// SensorReader supplies temperature samples.
type SensorReader interface {
	Read() (sensor.Reading, error)
}

// Config holds the loop parameters.
type Config struct {
	Unit     report.Unit
	Interval time.Duration
}

// Loop repeatedly samples the sensor and pushes the value to the panel. The
// frame is re-sent every tick even when the value has not changed; the
// firmware reverts to its idle animation when frames stop arriving.
type Loop struct {
	display  Display
	sensor   SensorReader
	unit     report.Unit
	interval time.Duration
}

// New creates a loop. The interval must be positive.
func New(display Display, reader SensorReader, cfg Config) (*Loop, error) {
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("update interval must be positive, got %s", cfg.Interval)
	}

	return &Loop{
		display:  display,
		sensor:   reader,
		unit:     cfg.Unit,
		interval: cfg.Interval,
	}, nil
}

// Run ticks until ctx is cancelled, then blanks the panel best-effort and
// returns nil. The first tick fires immediately; each following tick is
// scheduled relative to the completion of the previous one, so a slow write
// delays the cadence instead of stacking updates. Display errors that
// survive the controller's retry are fatal and end the loop.
func (l *Loop) Run(ctx context.Context) error {
	defer l.blank()

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}
		if ctx.Err() != nil {
			return nil
		}

		if err := l.tick(); err != nil {
			return err
		}
		timer.Reset(l.interval)
	}
}

// tick performs one sample-and-show cycle. Sensor dropouts and
// unrepresentable values skip the update; the previous frame stays on the
// panel until a valid tick replaces it.
func (l *Loop) tick() error {
	reading, err := l.sensor.Read()
	if err != nil {
		if errors.Is(err, sensor.ErrUnavailable) {
			log.Debug().Err(err).Msg("Sensor unavailable, skipping update")
		} else {
			log.Warn().Err(err).Msg("Sensor read failed, skipping update")
		}
		return nil
	}

	err = l.display.Show(reading.Celsius, l.unit)
	if err == nil {
		log.Debug().
			Str("chip", reading.Chip).
			Str("label", reading.Label).
			Float64("celsius", reading.Celsius).
			Msg("Updated panel")
		return nil
	}

	var rangeErr *report.OutOfRangeError
	if errors.As(err, &rangeErr) {
		log.Warn().Int("value", rangeErr.Value).Str("unit", l.unit.Symbol()).Msg("Temperature not displayable, skipping update")
		return nil
	}

	return fmt.Errorf("display update failed: %w", err)
}

func (l *Loop) blank() {
	if err := l.display.Blank(); err != nil {
		log.Warn().Err(err).Msg("Failed to blank panel on shutdown")
		return
	}
	log.Debug().Msg("Panel blanked")
}
