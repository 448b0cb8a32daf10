package hid

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
)

var (
	// ErrPermission marks an interface the process may not open. The
	// remediation is elevation, not trying another candidate.
	ErrPermission = errors.New("permission denied")

	// ErrBusy marks an interface already claimed by another process.
	ErrBusy = errors.New("device busy")

	// ErrNoDevice means enumeration found no cooler attached at all.
	ErrNoDevice = errors.New("no Ocypus cooler detected")

	// ErrNoWorkingInterface means every candidate interface was tried and
	// none accepted the probe.
	ErrNoWorkingInterface = errors.New("no working Ocypus interface")

	// ErrTransport marks a failed write on an established session.
	ErrTransport = errors.New("transport write failed")

	// ErrSessionClosed is returned when an operation is attempted on a
	// closed session.
	ErrSessionClosed = errors.New("session is closed")

	// ErrNoSession is returned when the controller is asked to write
	// without an acquired session.
	ErrNoSession = errors.New("no active session")
)

// classifyOpen sorts an open failure into the permission/busy/generic
// buckets so callers can pick the right remediation. hidapi reports
// errno-level causes as flat strings, hence the message matching fallback.
func classifyOpen(path string, err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case errors.Is(err, fs.ErrPermission),
		strings.Contains(msg, "permission denied"),
		strings.Contains(msg, "not permitted"):
		return fmt.Errorf("open %s: %w: %v", path, ErrPermission, err)
	case strings.Contains(msg, "busy"),
		strings.Contains(msg, "in use"),
		strings.Contains(msg, "exclusive"):
		return fmt.Errorf("open %s: %w: %v", path, ErrBusy, err)
	default:
		return fmt.Errorf("open %s failed: %w", path, err)
	}
}
