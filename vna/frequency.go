// Package vna holds the instrument-neutral parts of vector network analyzer
// control: frequency axes, S-parameter networks and their encodings, the
// trace and channel records reported by an analyzer, and the Dialect
// interface that vendor drivers implement to supply their SCPI commands.
package vna

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrUnknownUnit is returned when a frequency unit is not in the table
var ErrUnknownUnit = errors.New("unknown frequency unit, must be one of Hz, kHz, MHz, GHz, THz")

var multipliers = map[string]float64{
	"hz":  1,
	"khz": 1e3,
	"mhz": 1e6,
	"ghz": 1e9,
	"thz": 1e12,
}

var canonical = map[string]string{
	"hz":  "Hz",
	"khz": "kHz",
	"mhz": "MHz",
	"ghz": "GHz",
	"thz": "THz",
}

// UnitMultiplier returns the number of Hz in one of unit.  Lookup is case
// insensitive.
func UnitMultiplier(unit string) (float64, error) {
	m, ok := multipliers[strings.ToLower(strings.TrimSpace(unit))]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownUnit, unit)
	}
	return m, nil
}

// NormalizeUnit returns the conventional spelling of unit, e.g. ghz => GHz.
// The empty string is taken to mean Hz.
func NormalizeUnit(unit string) (string, error) {
	if unit == "" {
		return "Hz", nil
	}
	c, ok := canonical[strings.ToLower(strings.TrimSpace(unit))]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownUnit, unit)
	}
	return c, nil
}

// ToHz converts v in unit to Hz
func ToHz(v float64, unit string) (float64, error) {
	if unit == "" {
		return v, nil
	}
	m, err := UnitMultiplier(unit)
	if err != nil {
		return 0, err
	}
	return v * m, nil
}

// Linspace returns n evenly spaced values over [start, stop].  The last
// value is exactly stop.
func Linspace(start, stop float64, n int) []float64 {
	if n <= 0 {
		return nil
	}
	out := make([]float64, n)
	if n == 1 {
		out[0] = start
		return out
	}
	step := (stop - start) / float64(n-1)
	for i := 0; i < n; i++ {
		out[i] = start + float64(i)*step
	}
	out[n-1] = stop
	return out
}

// Logspace returns n values spaced evenly on a log scale over [start, stop].
// start and stop are the values themselves, not their exponents, and must be
// positive.
func Logspace(start, stop float64, n int) []float64 {
	if n <= 0 {
		return nil
	}
	exps := Linspace(math.Log10(start), math.Log10(stop), n)
	out := make([]float64, n)
	for i, e := range exps {
		out[i] = math.Pow(10, e)
	}
	out[0] = start
	if n > 1 {
		out[n-1] = stop
	}
	return out
}

// Frequency is a frequency axis.  Hz always holds values in Hz, Unit is only
// the unit the axis is presented in.
type Frequency struct {
	Hz   []float64 `json:"hz"`
	Unit string    `json:"unit"`
}

func newFrequency(hz []float64, unit string) (Frequency, error) {
	u, err := NormalizeUnit(unit)
	if err != nil {
		return Frequency{}, err
	}
	return Frequency{Hz: hz, Unit: u}, nil
}

// NewLinearFrequency builds a linearly spaced axis from start to stop, in Hz
func NewLinearFrequency(start, stop float64, npoints int, unit string) (Frequency, error) {
	if npoints < 1 {
		return Frequency{}, fmt.Errorf("a frequency axis needs at least one point, got %d", npoints)
	}
	return newFrequency(Linspace(start, stop, npoints), unit)
}

// NewLogFrequency builds a logarithmically spaced axis from start to stop, in Hz
func NewLogFrequency(start, stop float64, npoints int, unit string) (Frequency, error) {
	if npoints < 1 {
		return Frequency{}, fmt.Errorf("a frequency axis needs at least one point, got %d", npoints)
	}
	if start <= 0 || stop <= 0 {
		return Frequency{}, fmt.Errorf("a log axis needs positive bounds, got %g to %g Hz", start, stop)
	}
	return newFrequency(Logspace(start, stop, npoints), unit)
}

// Len is the number of points on the axis
func (f Frequency) Len() int {
	return len(f.Hz)
}

// Start is the first point in Hz, or zero for an empty axis
func (f Frequency) Start() float64 {
	if len(f.Hz) == 0 {
		return 0
	}
	return f.Hz[0]
}

// Stop is the last point in Hz, or zero for an empty axis
func (f Frequency) Stop() float64 {
	if len(f.Hz) == 0 {
		return 0
	}
	return f.Hz[len(f.Hz)-1]
}

// Scaled returns the axis expressed in f.Unit
func (f Frequency) Scaled() []float64 {
	m, err := UnitMultiplier(f.Unit)
	if err != nil || f.Unit == "" {
		m = 1
	}
	out := make([]float64, len(f.Hz))
	for i, v := range f.Hz {
		out[i] = v / m
	}
	return out
}
