// SPDX-License-Identifier: GPL-3.0-only

package hid

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/shini4i/ocypus-lcd/internal/report"
)

// Controller is the single entry point for driving the panel. It hides the
// interface-selection churn: Acquire walks the locator's candidates until
// one accepts a probe, and Show transparently re-acquires once when an
// established session dies under a write.
type Controller struct {
	locator *Locator
	open    DeviceOpener
	mu      sync.Mutex
	session *Session
}

// ControllerOption is a functional option for configuring a Controller.
type ControllerOption func(*Controller)

// WithOpener sets a custom device opener for testing.
func WithOpener(fn DeviceOpener) ControllerOption {
	return func(c *Controller) {
		c.open = fn
	}
}

// NewController creates a controller drawing candidates from the locator.
func NewController(locator *Locator, opts ...ControllerOption) *Controller {
	c := &Controller{
		locator: locator,
		open:    OpenCandidate,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Acquire opens and probes candidates in locator order and binds the first
// interface that takes the probe. It returns ErrNoDevice for an empty
// candidate list, and ErrNoWorkingInterface aggregating the per-candidate
// failures once every candidate has been tried. A permission failure on one
// candidate does not stop the scan; it stays detectable in the aggregate
// with errors.Is.
func (c *Controller) Acquire() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.acquireLocked()
}

func (c *Controller) acquireLocked() error {
	c.releaseLocked()

	candidates, err := c.locator.ListCandidates()
	if err != nil {
		return fmt.Errorf("failed to list candidates: %w", err)
	}
	if len(candidates) == 0 {
		return ErrNoDevice
	}

	var attempts []error
	for _, info := range candidates {
		session, err := OpenSession(info, c.open)
		if err != nil {
			log.Debug().Err(err).Int("interface", info.Interface).Msg("Candidate rejected on open")
			attempts = append(attempts, err)
			continue
		}

		if err := session.Probe(); err != nil {
			log.Debug().Err(err).Int("interface", info.Interface).Msg("Candidate rejected on probe")
			attempts = append(attempts, fmt.Errorf("probe interface %d: %w", info.Interface, err))
			if closeErr := session.Close(); closeErr != nil {
				log.Warn().Err(closeErr).Int("interface", info.Interface).Msg("Failed to close rejected candidate")
			}
			continue
		}

		c.session = session
		log.Info().Int("interface", info.Interface).Str("path", info.Path).Msg("Connected to Ocypus cooler")
		return nil
	}

	return fmt.Errorf("%w: %w", ErrNoWorkingInterface, errors.Join(attempts...))
}

// Show renders a temperature on the panel. A transport failure invalidates
// the session and triggers exactly one acquire-and-retry cycle; the device
// silently drops its writer after USB re-enumeration, and a single retry
// recovers that case without looping indefinitely.
func (c *Controller) Show(celsius float64, unit report.Unit) error {
	frame, err := report.Temperature(celsius, unit)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	err = c.writeLocked(frame)
	if err == nil || !errors.Is(err, ErrTransport) {
		return err
	}

	log.Warn().Err(err).Msg("Write failed, re-acquiring cooler interface")
	if acqErr := c.acquireLocked(); acqErr != nil {
		return fmt.Errorf("re-acquire after write failure: %w", acqErr)
	}
	return c.writeLocked(frame)
}

// Blank clears the panel. Errors surface without retry; blanking is
// best-effort on the way out.
func (c *Controller) Blank() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writeLocked(report.Blank())
}

// Current returns the descriptor of the bound interface, if any.
func (c *Controller) Current() (DeviceInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return DeviceInfo{}, false
	}
	return c.session.Info(), true
}

// Release closes the held session, leaving the controller ready for a later
// Acquire. Used when the machine is about to sleep.
func (c *Controller) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.releaseLocked()
}

// Close releases the held session. Safe to call multiple times.
func (c *Controller) Close() error {
	c.Release()
	return nil
}

func (c *Controller) writeLocked(r report.Report) error {
	if c.session == nil {
		return ErrNoSession
	}
	return c.session.Write(r)
}

func (c *Controller) releaseLocked() {
	if c.session == nil {
		return
	}
	if err := c.session.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close session")
	}
	c.session = nil
}
