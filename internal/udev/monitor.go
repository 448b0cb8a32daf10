// Package udev provides hot-plug detection for Ocypus coolers via netlink/udev events.
package udev

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/pilebones/go-udev/netlink"
	"github.com/rs/zerolog/log"
)

const (
	// netlinkBufferSize is the receive buffer size for the netlink socket.
	// USB hot-plug generates many netlink messages rapidly; 2MB keeps the
	// socket from overflowing during enumeration storms.
	netlinkBufferSize = 2 * 1024 * 1024 // 2 MB

	// removeDebounceWindow collapses the burst of REMOVE events a single
	// unplug produces (one per interface plus the parent device).
	removeDebounceWindow = 2 * time.Second

	// staleRemoveEntryAge is when old debounce bookkeeping gets dropped.
	staleRemoveEntryAge = time.Minute
)

const (
	// CoolerVendorIDPattern matches the cooler's USB vendor ID in the udev
	// PRODUCT variable. Kernels differ on hex case, so both are accepted.
	CoolerVendorIDPattern = "1[aA]2[cC]"

	// CoolerProductIDPattern matches the cooler's USB product ID.
	CoolerProductIDPattern = "434[dD]"
)

// EventType represents the type of device event.
type EventType int

const (
	// EventAdd indicates the cooler was connected.
	EventAdd EventType = iota
	// EventRemove indicates the cooler was disconnected.
	EventRemove
)

// Event represents a cooler hot-plug event.
type Event struct {
	Type EventType
}

// EventHandler is called when a device event occurs.
type EventHandler func(event Event)

// RecoveryHandler is called when the monitor recovers from an error condition
// (e.g., netlink buffer overflow) and events may have been missed.
type RecoveryHandler func()

// Monitor watches for cooler connect/disconnect events.
type Monitor struct {
	conn            *netlink.UEventConn
	handler         EventHandler
	recoveryHandler RecoveryHandler
	lastRemoveTime  map[string]time.Time
	quit            chan struct{}
	stopped         bool
	mu              sync.Mutex
}

// NewMonitor creates a new udev monitor with the given event handler.
func NewMonitor(handler EventHandler) *Monitor {
	return &Monitor{
		handler:        handler,
		lastRemoveTime: make(map[string]time.Time),
	}
}

// SetRecoveryHandler sets the handler called when the monitor recovers from
// errors. This should trigger a re-enumeration to catch missed events.
func (m *Monitor) SetRecoveryHandler(handler RecoveryHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recoveryHandler = handler
}

// Start begins monitoring for device events.
// This method is non-blocking; events are processed in a background goroutine.
func (m *Monitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn != nil {
		return fmt.Errorf("monitor already started")
	}

	m.conn = &netlink.UEventConn{}
	if err := m.conn.Connect(netlink.UdevEvent); err != nil {
		m.conn = nil
		return fmt.Errorf("failed to connect to netlink: %w", err)
	}

	if err := setSocketBufferSize(m.conn.Fd, netlinkBufferSize); err != nil {
		log.Warn().Err(err).Int("size", netlinkBufferSize).Msg("Failed to set netlink buffer size")
		// Continue anyway - the default buffer may still work
	} else {
		log.Debug().Int("size", netlinkBufferSize).Msg("Netlink socket buffer size configured")
	}

	queue := make(chan netlink.UEvent)
	errs := make(chan error)

	matcher := m.createMatcher()

	m.quit = m.conn.Monitor(queue, errs, matcher)
	m.stopped = false

	go m.processEvents(queue, errs)

	log.Info().Msg("udev monitor started")
	return nil
}

// Stop stops the monitor and releases resources.
func (m *Monitor) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn == nil || m.stopped {
		return nil
	}

	m.stopped = true

	select {
	case m.quit <- struct{}{}:
	default:
	}

	if err := m.conn.Close(); err != nil {
		return fmt.Errorf("failed to close netlink connection: %w", err)
	}

	m.conn = nil
	log.Info().Msg("udev monitor stopped")
	return nil
}

// createMatcher creates a matcher for cooler USB events. The PRODUCT env
// variable has the form "vendorId/productId/bcdDevice"; the pattern anchors
// both ends so a longer product ID cannot false-positive.
func (m *Monitor) createMatcher() *netlink.RuleDefinitions {
	rules := &netlink.RuleDefinitions{}

	addAction := "add"
	removeAction := "remove"

	productPattern := fmt.Sprintf("^%s/%s/[^/]+$", CoolerVendorIDPattern, CoolerProductIDPattern)

	rules.AddRule(netlink.RuleDefinition{
		Action: &addAction,
		Env: map[string]string{
			"SUBSYSTEM": "^usb$",
			"PRODUCT":   productPattern,
		},
	})

	rules.AddRule(netlink.RuleDefinition{
		Action: &removeAction,
		Env: map[string]string{
			"SUBSYSTEM": "^usb$",
			"PRODUCT":   productPattern,
		},
	})

	return rules
}

// processEvents handles incoming udev events.
func (m *Monitor) processEvents(queue chan netlink.UEvent, errs chan error) {
	for {
		select {
		case event, ok := <-queue:
			if !ok {
				return
			}
			m.handleEvent(event)
		case err, ok := <-errs:
			if !ok {
				return
			}
			m.mu.Lock()
			stopped := m.stopped
			recoveryHandler := m.recoveryHandler
			m.mu.Unlock()
			if stopped {
				return
			}

			// On ENOBUFS events may have been dropped; hand off to the
			// recovery handler so the caller can re-enumerate.
			if isBufferOverflowError(err) {
				log.Warn().Msg("Netlink buffer overflow detected, triggering recovery")
				if recoveryHandler != nil {
					go recoveryHandler()
				}
				continue
			}

			log.Error().Err(err).Msg("udev monitor error")
		}
	}
}

// setSocketBufferSize sets the receive buffer size for a socket.
// It first tries SO_RCVBUFFORCE (requires CAP_NET_ADMIN), then falls back to SO_RCVBUF.
func setSocketBufferSize(fd int, size int) error {
	err := syscall.SetsockoptInt(fd, syscall.SOL_SOCKET, syscall.SO_RCVBUFFORCE, size)
	if err == nil {
		return nil
	}

	// SO_RCVBUF is capped by the net.core.rmem_max sysctl
	return syscall.SetsockoptInt(fd, syscall.SOL_SOCKET, syscall.SO_RCVBUF, size)
}

// isBufferOverflowError checks if the error is a netlink buffer overflow (ENOBUFS).
func isBufferOverflowError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.ENOBUFS) {
		return true
	}
	// The udev library sometimes reports the condition as a plain string
	return strings.Contains(strings.ToLower(err.Error()), "no buffer space available")
}

// shouldDebounceRemove reports whether a REMOVE for this PRODUCT was already
// delivered inside the debounce window, recording the new timestamp either
// way. Stale entries are dropped opportunistically.
func (m *Monitor) shouldDebounceRemove(product string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for key, seen := range m.lastRemoveTime {
		if now.Sub(seen) > staleRemoveEntryAge {
			delete(m.lastRemoveTime, key)
		}
	}

	last, seen := m.lastRemoveTime[product]
	m.lastRemoveTime[product] = now
	return seen && now.Sub(last) < removeDebounceWindow
}

// handleEvent processes a single udev event.
func (m *Monitor) handleEvent(uevent netlink.UEvent) {
	// Only the parent usb_device ADD matters; interface ADDs would double
	// up. REMOVE events may arrive without DEVTYPE, so they are deduped by
	// PRODUCT instead.
	devtype := uevent.Env["DEVTYPE"]
	if uevent.Action == netlink.ADD && devtype != "usb_device" {
		return
	}

	log.Debug().
		Str("action", string(uevent.Action)).
		Str("devpath", uevent.KObj).
		Str("product", uevent.Env["PRODUCT"]).
		Msg("USB device event")

	var eventType EventType
	switch uevent.Action {
	case netlink.ADD:
		eventType = EventAdd
		log.Info().Str("product", uevent.Env["PRODUCT"]).Msg("Ocypus cooler connected")
	case netlink.REMOVE:
		if m.shouldDebounceRemove(uevent.Env["PRODUCT"]) {
			return
		}
		eventType = EventRemove
		log.Info().Str("product", uevent.Env["PRODUCT"]).Msg("Ocypus cooler disconnected")
	default:
		return
	}

	if m.handler != nil {
		m.handler(Event{Type: eventType})
	}
}
