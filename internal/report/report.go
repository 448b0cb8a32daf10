// SPDX-License-Identifier: GPL-3.0-only

// Package report encodes display commands for the Ocypus Iota LCD into the
// cooler's fixed 64-byte HID report layout, and decodes temperature frames
// back for diagnostics and tests.
package report

import (
	"fmt"
	"math"
	"strings"
)

const (
	// ID is the HID report ID shared by every report the cooler accepts.
	ID byte = 0x07

	// Length is the fixed report size in bytes, including the report ID.
	Length = 64

	// frameMarker is written at offsets 1 and 2 of a temperature frame and
	// selects the "show temperature" command. Reports without the marker
	// are ignored by the firmware.
	frameMarker byte = 0xff

	// Digit and unit cells of a temperature frame. Offset 3 is the
	// firmware's leading digit cell and stays zero under the two-digit
	// contract.
	tensOffset = 4
	onesOffset = 5
	unitOffset = 6
)

// Unit selects the temperature scale shown on the panel. Its value doubles
// as the unit indicator byte inside a temperature frame.
type Unit byte

const (
	// Celsius renders the reading unconverted.
	Celsius Unit = 0x00

	// Fahrenheit converts the reading before encoding.
	Fahrenheit Unit = 0x01
)

// ParseUnit maps the CLI spelling ("c" or "f", case-insensitive) to a Unit.
func ParseUnit(s string) (Unit, error) {
	switch strings.ToLower(s) {
	case "c":
		return Celsius, nil
	case "f":
		return Fahrenheit, nil
	}
	return Celsius, fmt.Errorf("unknown temperature unit %q (want c or f)", s)
}

// String returns the CLI spelling of the unit.
func (u Unit) String() string {
	if u == Fahrenheit {
		return "f"
	}
	return "c"
}

// Symbol returns the human-readable spelling of the unit.
func (u Unit) Symbol() string {
	if u == Fahrenheit {
		return "°F"
	}
	return "°C"
}

// Report is one fixed-length HID report ready to be handed to the device.
// Feature selects the HID transfer type: the blank command travels as a
// feature report, everything else as a plain output write.
type Report struct {
	Data    []byte
	Feature bool
}

// OutOfRangeError reports a temperature that cannot be rendered on the
// two-digit panel after unit conversion and rounding.
type OutOfRangeError struct {
	Value int
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("temperature %d not displayable (panel range is 0-99)", e.Value)
}

// Temperature encodes a Celsius reading into a frame showing it in the
// requested unit. The value is converted, rounded to the nearest integer
// and rejected with *OutOfRangeError when the result does not fit the
// panel's two digits. It is never clamped: a wrong number on a cooling
// panel is worse than no number.
func Temperature(celsius float64, unit Unit) (Report, error) {
	value := celsius
	if unit == Fahrenheit {
		value = celsius*9/5 + 32
	}

	rounded := int(math.Round(value))
	if rounded < 0 || rounded > 99 {
		return Report{}, &OutOfRangeError{Value: rounded}
	}

	data := newBuffer()
	data[1] = frameMarker
	data[2] = frameMarker
	data[tensOffset] = byte(rounded / 10)
	data[onesOffset] = byte(rounded % 10)
	data[unitOffset] = byte(unit)

	return Report{Data: data}, nil
}

// Blank returns the report that clears the panel. Sending it repeatedly has
// no additional effect.
func Blank() Report {
	return Report{Data: newBuffer(), Feature: true}
}

// Probe returns a write used solely to test whether an interface accepts
// commands. It carries no command marker, so the firmware ignores it and
// the displayed state is left untouched.
func Probe() Report {
	return Report{Data: newBuffer()}
}

// Decode recovers the integer value and unit from a temperature frame.
func Decode(r Report) (int, Unit, error) {
	if r.Feature {
		return 0, Celsius, fmt.Errorf("feature report is not a temperature frame")
	}
	if len(r.Data) != Length || r.Data[0] != ID {
		return 0, Celsius, fmt.Errorf("malformed report")
	}
	if r.Data[1] != frameMarker || r.Data[2] != frameMarker {
		return 0, Celsius, fmt.Errorf("report carries no temperature frame marker")
	}

	tens, ones := r.Data[tensOffset], r.Data[onesOffset]
	if tens > 9 || ones > 9 {
		return 0, Celsius, fmt.Errorf("digit cells out of range: %d/%d", tens, ones)
	}

	unit := Unit(r.Data[unitOffset])
	if unit != Celsius && unit != Fahrenheit {
		return 0, Celsius, fmt.Errorf("unknown unit indicator 0x%02x", r.Data[unitOffset])
	}

	return int(tens)*10 + int(ones), unit, nil
}

func newBuffer() []byte {
	data := make([]byte, Length)
	data[0] = ID
	return data
}
