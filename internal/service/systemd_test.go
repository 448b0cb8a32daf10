package service_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/shini4i/ocypus-lcd/internal/report"
	"github.com/shini4i/ocypus-lcd/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_UnitName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "bare name gets the suffix", input: "ocypus-lcd", expected: "ocypus-lcd.service"},
		{name: "existing suffix is not doubled", input: "ocypus-lcd.service", expected: "ocypus-lcd.service"},
		{name: "custom name", input: "cooler-display", expected: "cooler-display.service"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := service.Config{Name: tt.input}
			assert.Equal(t, tt.expected, cfg.UnitName())
		})
	}
}

func TestRender(t *testing.T) {
	cfg := service.Config{
		Name:   "ocypus-lcd",
		Unit:   report.Fahrenheit,
		Sensor: "coretemp",
		Rate:   0.5,
	}

	content := service.Render(cfg, "/usr/local/bin/ocypus-lcd")

	assert.Contains(t, content, `ExecStart=/usr/local/bin/ocypus-lcd on -u f -s "coretemp" -r 0.5 --wait`)
	assert.Contains(t, content, "Description=Ocypus Iota LCD Temperature Display")
	assert.Contains(t, content, "After=multi-user.target")
	assert.Contains(t, content, "User=root")
	assert.Contains(t, content, "Restart=always")
	assert.Contains(t, content, "RestartSec=5")
	assert.Contains(t, content, "WantedBy=multi-user.target")
}

func TestRender_WholeSecondRate(t *testing.T) {
	cfg := service.Config{
		Name:   "ocypus-lcd",
		Unit:   report.Celsius,
		Sensor: "k10temp",
		Rate:   1.0,
	}

	content := service.Render(cfg, "/usr/bin/ocypus-lcd")
	assert.Contains(t, content, `on -u c -s "k10temp" -r 1 --wait`)
}

func TestInstaller_Install(t *testing.T) {
	dir := t.TempDir()
	installer := service.NewInstaller(
		service.WithUnitDir(dir),
		service.WithExecutableResolver(func() (string, error) {
			return "/opt/ocypus/ocypus-lcd", nil
		}),
	)

	cfg := service.Config{Name: "ocypus-lcd", Unit: report.Celsius, Sensor: "k10temp", Rate: 1.0}
	path, err := installer.Install(cfg)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "ocypus-lcd.service"), path)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "ExecStart=/opt/ocypus/ocypus-lcd on")
}

func TestInstaller_Install_ResolverError(t *testing.T) {
	installer := service.NewInstaller(
		service.WithUnitDir(t.TempDir()),
		service.WithExecutableResolver(func() (string, error) {
			return "", errors.New("procfs not mounted")
		}),
	)

	_, err := installer.Install(service.Config{Name: "ocypus-lcd"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to resolve executable path")
}

func TestInstaller_Install_WriteError(t *testing.T) {
	installer := service.NewInstaller(
		service.WithUnitDir(filepath.Join(t.TempDir(), "missing")),
		service.WithExecutableResolver(func() (string, error) {
			return "/usr/bin/ocypus-lcd", nil
		}),
	)

	_, err := installer.Install(service.Config{Name: "ocypus-lcd"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to write unit file")
}
