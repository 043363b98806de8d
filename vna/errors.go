package vna

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrMalformedCatalog is returned when a catalog reply does not split
	// into the pairs it should
	ErrMalformedCatalog = errors.New("malformed catalog response")

	// ErrLengthMismatch is returned when a trace does not have one value per
	// frequency point
	ErrLengthMismatch = errors.New("trace length does not match the frequency axis")

	// ErrOddLength is returned when interleaved data has an unpaired value
	ErrOddLength = errors.New("interleaved data has an odd number of values")
)

// PortError is a bad port list given by a caller
type PortError struct {
	Port   int
	Reason string
}

func (e *PortError) Error() string {
	return "invalid port " + strconv.Itoa(e.Port) + ": " + e.Reason
}

// MissingTraceError is returned when the analyzer has no trace measuring a
// required S-parameter
type MissingTraceError struct {
	Key     string
	Channel int
}

func (e *MissingTraceError) Error() string {
	return fmt.Sprintf("missing measurement trace for %s on channel %d", e.Key, e.Channel)
}

// ValidatePorts checks that ports is a non-empty list of unique ports in the
// range [1, nports]
func ValidatePorts(ports []int, nports int) error {
	if len(ports) == 0 {
		return &PortError{Reason: "no ports given"}
	}
	seen := make(map[int]bool, len(ports))
	for _, p := range ports {
		if p < 1 || p > nports {
			return &PortError{Port: p, Reason: "must be between 1 and " + strconv.Itoa(nports)}
		}
		if seen[p] {
			return &PortError{Port: p, Reason: "duplicate port"}
		}
		seen[p] = true
	}
	return nil
}

// SKey is the S-parameter name for a wave leaving dest when src is driven,
// e.g. SKey(2, 1) = S21
func SKey(dest, src int) string {
	return "S" + strconv.Itoa(dest) + strconv.Itoa(src)
}

// PortString formats a port list as 1,2,3
func PortString(ports []int) string {
	strs := make([]string, len(ports))
	for i, p := range ports {
		strs[i] = strconv.Itoa(p)
	}
	return strings.Join(strs, ",")
}
