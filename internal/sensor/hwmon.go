// SPDX-License-Identifier: GPL-3.0-only

// Package sensor samples CPU temperatures from the kernel hwmon sysfs tree.
package sensor

import (
	"cmp"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
)

const defaultRoot = "/sys/class/hwmon"

// ErrUnavailable indicates that no matching chip is present or none of its
// temperature channels could be read. Callers treat this as transient: chips
// come and go with module loading.
var ErrUnavailable = errors.New("temperature sensor unavailable")

// Reading is a single temperature sample from a hwmon chip.
type Reading struct {
	Chip    string
	Label   string
	Celsius float64
}

// Reader resolves a hwmon chip by name substring and samples its first
// readable temperature channel.
type Reader struct {
	root  string
	match string
}

// ReaderOption is a functional option for configuring a Reader.
type ReaderOption func(*Reader)

// WithRoot overrides the hwmon sysfs root for testing.
func WithRoot(root string) ReaderOption {
	return func(r *Reader) {
		r.root = root
	}
}

// NewReader creates a reader for the first chip whose name contains match,
// compared case-insensitively.
func NewReader(match string, opts ...ReaderOption) *Reader {
	r := &Reader{
		root:  defaultRoot,
		match: match,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Read samples the configured chip. It returns ErrUnavailable when no chip
// matches or every matching chip lacks a readable temperature channel.
func (r *Reader) Read() (Reading, error) {
	chips, err := r.chips()
	if err != nil {
		return Reading{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	want := strings.ToLower(r.match)
	for _, chip := range chips {
		if !strings.Contains(strings.ToLower(chip.name), want) {
			continue
		}
		if reading, ok := r.sample(chip); ok {
			return reading, nil
		}
	}

	return Reading{}, fmt.Errorf("%w: no chip matching %q", ErrUnavailable, r.match)
}

// List returns one sample per hwmon chip, for discovery output. Chips
// without a readable temperature channel are skipped.
func (r *Reader) List() ([]Reading, error) {
	chips, err := r.chips()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var readings []Reading
	for _, chip := range chips {
		if reading, ok := r.sample(chip); ok {
			readings = append(readings, reading)
		}
	}
	return readings, nil
}

type chip struct {
	dir  string
	name string
}

func (r *Reader) chips() ([]chip, error) {
	entries, err := os.ReadDir(r.root)
	if err != nil {
		return nil, err
	}

	var chips []chip
	for _, entry := range entries {
		dir := filepath.Join(r.root, entry.Name())
		raw, err := os.ReadFile(filepath.Join(dir, "name"))
		if err != nil {
			// Not a hwmon chip directory
			continue
		}
		chips = append(chips, chip{dir: dir, name: strings.TrimSpace(string(raw))})
	}
	return chips, nil
}

// sample reads the first parseable temp*_input channel of the chip. Values
// are millidegrees Celsius in sysfs.
func (r *Reader) sample(c chip) (Reading, bool) {
	inputs, err := filepath.Glob(filepath.Join(c.dir, "temp*_input"))
	if err != nil || len(inputs) == 0 {
		return Reading{}, false
	}

	// Glob order is lexical, which puts temp10 before temp2 on chips with
	// many channels.
	slices.SortFunc(inputs, func(a, b string) int {
		return cmp.Compare(channelIndex(a), channelIndex(b))
	})

	for _, input := range inputs {
		raw, err := os.ReadFile(input)
		if err != nil {
			continue
		}
		milli, err := strconv.Atoi(strings.TrimSpace(string(raw)))
		if err != nil {
			continue
		}

		return Reading{
			Chip:    c.name,
			Label:   channelLabel(input),
			Celsius: float64(milli) / 1000.0,
		}, true
	}

	return Reading{}, false
}

// channelIndex extracts the channel number from a temp<N>_input path.
func channelIndex(input string) int {
	stem := strings.TrimSuffix(filepath.Base(input), "_input")
	n, err := strconv.Atoi(strings.TrimPrefix(stem, "temp"))
	if err != nil {
		return 0
	}
	return n
}

// channelLabel resolves the human name of a temp channel from its _label
// sibling, falling back to the channel stem ("temp1").
func channelLabel(input string) string {
	stem := strings.TrimSuffix(filepath.Base(input), "_input")
	raw, err := os.ReadFile(strings.TrimSuffix(input, "_input") + "_label")
	if err != nil {
		return stem
	}
	if label := strings.TrimSpace(string(raw)); label != "" {
		return label
	}
	return stem
}
