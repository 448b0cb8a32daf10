package hid

import (
	"fmt"
	"sync"

	"github.com/shini4i/ocypus-lcd/internal/report"
)

// Session owns one open handle to a cooler interface. The device does not
// support concurrent writers, so at most one session is alive per run.
// All methods are thread-safe.
type Session struct {
	device Device
	mu     sync.Mutex
	closed bool
}

// OpenSession opens the interface described by info. Failures are
// classified so callers can tell an access problem (ErrPermission) from a
// claimed interface (ErrBusy) or a plain open failure.
func OpenSession(info DeviceInfo, open DeviceOpener) (*Session, error) {
	device, err := open(info)
	if err != nil {
		return nil, classifyOpen(info.Path, err)
	}
	return &Session{device: device}, nil
}

// Probe writes the side-effect-free probe report to check that the
// interface accepts commands. Success says nothing about what the panel
// shows, only that the transport took the write.
func (s *Session) Probe() error {
	return s.Write(report.Probe())
}

// Write delivers a single report, dispatched by transfer type. It never
// retries; retry policy belongs to the Controller.
func (s *Session) Write(r report.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}

	var err error
	if r.Feature {
		_, err = s.device.SendFeatureReport(r.Data)
	} else {
		_, err = s.device.Write(r.Data)
	}
	if err != nil {
		return fmt.Errorf("interface %d: %w: %v", s.device.Info().Interface, ErrTransport, err)
	}
	return nil
}

// Info returns the descriptor of the underlying interface.
// This method does not require locking as device info is immutable.
func (s *Session) Info() DeviceInfo {
	return s.device.Info()
}

// Close releases the handle.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil // Already closed
	}

	s.closed = true
	return s.device.Close()
}
