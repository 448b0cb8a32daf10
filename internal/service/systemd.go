// Package service installs the systemd unit that runs the daemon at boot.
package service

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/shini4i/ocypus-lcd/internal/report"
)

const defaultUnitDir = "/etc/systemd/system"

// The display needs root for hidraw access, and a restart delay keeps a
// crash loop from hammering the USB stack. --wait lets the service come up
// before the cooler finishes enumerating at boot.
const unitTemplate = `[Unit]
Description=Ocypus Iota LCD Temperature Display
After=multi-user.target

[Service]
Type=simple
User=root
ExecStart=%s on -u %s -s "%s" -r %s --wait
Restart=always
RestartSec=5

[Install]
WantedBy=multi-user.target
`

// Config describes the daemon invocation baked into the unit file.
type Config struct {
	Name   string // unit name, with or without the .service suffix
	Unit   report.Unit
	Sensor string
	Rate   float64 // refresh interval in seconds
}

// UnitName returns the unit file name with exactly one .service suffix.
func (c Config) UnitName() string {
	return strings.TrimSuffix(c.Name, ".service") + ".service"
}

// Render produces the unit file contents for the given executable path.
func Render(cfg Config, executable string) string {
	rate := strconv.FormatFloat(cfg.Rate, 'g', -1, 64)
	return fmt.Sprintf(unitTemplate, executable, cfg.Unit, cfg.Sensor, rate)
}

// Installer writes unit files into the systemd system directory.
type Installer struct {
	dir        string
	executable func() (string, error)
}

// InstallerOption is a functional option for configuring an Installer.
type InstallerOption func(*Installer)

// WithUnitDir overrides the target directory for testing.
func WithUnitDir(dir string) InstallerOption {
	return func(i *Installer) {
		i.dir = dir
	}
}

// WithExecutableResolver overrides how the daemon binary path is resolved.
func WithExecutableResolver(fn func() (string, error)) InstallerOption {
	return func(i *Installer) {
		i.executable = fn
	}
}

// NewInstaller creates an installer targeting /etc/systemd/system.
func NewInstaller(opts ...InstallerOption) *Installer {
	i := &Installer{
		dir:        defaultUnitDir,
		executable: os.Executable,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Install renders and writes the unit file, returning its full path.
func (i *Installer) Install(cfg Config) (string, error) {
	executable, err := i.executable()
	if err != nil {
		return "", fmt.Errorf("failed to resolve executable path: %w", err)
	}

	path := filepath.Join(i.dir, cfg.UnitName())
	if err := os.WriteFile(path, []byte(Render(cfg, executable)), 0o644); err != nil {
		return "", fmt.Errorf("failed to write unit file: %w", err)
	}
	return path, nil
}
