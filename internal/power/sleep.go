// SPDX-License-Identifier: GPL-3.0-only

// Package power pauses the display around system sleep using logind's
// PrepareForSleep signal on the system bus.
package power

import (
	"fmt"
	"sync"
	"syscall"

	"github.com/godbus/dbus/v5"
	"github.com/rs/zerolog/log"
)

const (
	logindService   = "org.freedesktop.login1"
	logindPath      = dbus.ObjectPath("/org/freedesktop/login1")
	logindInterface = "org.freedesktop.login1.Manager"

	// prepareForSleep is the signal name as delivered, interface-qualified.
	prepareForSleep = logindInterface + ".PrepareForSleep"

	inhibitWhat = "sleep"
	inhibitMode = "delay"
)

// SleepHandler is called with sleeping=true before the system suspends and
// sleeping=false after it resumes. The sleeping=true call runs while a delay
// inhibitor holds the suspend back, so it may block briefly to blank the
// panel and release the device.
type SleepHandler func(sleeping bool)

// Monitor subscribes to logind sleep notifications. Between resume and the
// next suspend it holds a delay inhibitor so the handler gets a chance to
// run before the kernel freezes USB.
type Monitor struct {
	who     string
	why     string
	handler SleepHandler

	mu        sync.Mutex
	conn      *dbus.Conn
	inhibitFD int
	stopped   bool
}

// NewMonitor creates a sleep monitor that invokes handler around suspend.
func NewMonitor(handler SleepHandler) *Monitor {
	return &Monitor{
		who:       "ocypus-lcd",
		why:       "blanking cooler LCD before sleep",
		handler:   handler,
		inhibitFD: -1,
	}
}

// Start connects to the system bus, subscribes to PrepareForSleep and takes
// the initial delay inhibitor. Non-blocking; signals are processed in a
// background goroutine.
func (m *Monitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn != nil {
		return fmt.Errorf("monitor already started")
	}

	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return fmt.Errorf("failed to connect to system bus: %w", err)
	}

	// Ensure connection is closed if setup fails
	success := false
	defer func() {
		if !success {
			if closeErr := conn.Close(); closeErr != nil {
				log.Error().Err(closeErr).Msg("Failed to close D-Bus connection during cleanup")
			}
		}
	}()

	err = conn.AddMatchSignal(
		dbus.WithMatchInterface(logindInterface),
		dbus.WithMatchMember("PrepareForSleep"),
		dbus.WithMatchObjectPath(logindPath),
	)
	if err != nil {
		return fmt.Errorf("failed to subscribe to PrepareForSleep: %w", err)
	}

	m.conn = conn
	m.stopped = false
	m.takeInhibitorLocked()

	signals := make(chan *dbus.Signal, 16)
	conn.Signal(signals)

	go m.processSignals(signals)

	success = true
	log.Info().Msg("Sleep monitor started")
	return nil
}

// Stop releases the inhibitor and disconnects from the bus. Safe to call
// multiple times.
func (m *Monitor) Stop() error {
	m.mu.Lock()
	if m.conn == nil || m.stopped {
		m.mu.Unlock()
		return nil
	}

	m.stopped = true
	conn := m.conn
	m.conn = nil
	m.releaseInhibitorLocked()
	m.mu.Unlock()

	// Closing the connection also closes the signal channel, which ends
	// the processing goroutine.
	if err := conn.Close(); err != nil {
		return fmt.Errorf("failed to close D-Bus connection: %w", err)
	}

	log.Info().Msg("Sleep monitor stopped")
	return nil
}

func (m *Monitor) processSignals(signals chan *dbus.Signal) {
	for sig := range signals {
		m.handleSignal(sig)
	}
}

// handleSignal reacts to a single PrepareForSleep notification. Before
// suspend the handler runs first, under the protection of the delay
// inhibitor; releasing the inhibitor afterwards lets the suspend proceed.
// After resume the inhibitor is re-taken before the handler restarts the
// display.
func (m *Monitor) handleSignal(sig *dbus.Signal) {
	sleeping, ok := parsePrepareForSleep(sig)
	if !ok {
		return
	}

	if sleeping {
		log.Info().Msg("System is preparing to sleep")
		if m.handler != nil {
			m.handler(true)
		}
		m.releaseInhibitor()
		return
	}

	log.Info().Msg("System resumed from sleep")
	m.takeInhibitor()
	if m.handler != nil {
		m.handler(false)
	}
}

// parsePrepareForSleep extracts the sleeping flag from a PrepareForSleep
// signal. ok is false for any other signal shape.
func parsePrepareForSleep(sig *dbus.Signal) (sleeping, ok bool) {
	if sig == nil || sig.Name != prepareForSleep || len(sig.Body) != 1 {
		return false, false
	}
	sleeping, ok = sig.Body[0].(bool)
	return sleeping, ok
}

func (m *Monitor) takeInhibitor() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.takeInhibitorLocked()
}

func (m *Monitor) takeInhibitorLocked() {
	if m.conn == nil || m.inhibitFD >= 0 {
		return
	}

	var fd dbus.UnixFD
	obj := m.conn.Object(logindService, logindPath)
	err := obj.Call(logindInterface+".Inhibit", 0, inhibitWhat, m.who, m.why, inhibitMode).Store(&fd)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to take sleep inhibitor, panel may stay lit into suspend")
		return
	}

	m.inhibitFD = int(fd)
	log.Debug().Int("fd", m.inhibitFD).Msg("Sleep delay inhibitor taken")
}

func (m *Monitor) releaseInhibitor() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releaseInhibitorLocked()
}

func (m *Monitor) releaseInhibitorLocked() {
	if m.inhibitFD < 0 {
		return
	}

	if err := syscall.Close(m.inhibitFD); err != nil {
		log.Warn().Err(err).Msg("Failed to release sleep inhibitor")
	}
	m.inhibitFD = -1
	log.Debug().Msg("Sleep delay inhibitor released")
}
