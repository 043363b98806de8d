package vna

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nasa-jpl/golaborate-vna/scpi"
)

// Interleaved pairs up SDATA values, s[k] = data[2k] + j*data[2k+1]
func Interleaved(data []float64) ([]complex128, error) {
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("%w: %d values", ErrOddLength, len(data))
	}
	out := make([]complex128, len(data)/2)
	for k := range out {
		out[k] = complex(data[2*k], data[2*k+1])
	}
	return out, nil
}

// Pair is one entry of a parameter catalog, a trace name and the quantity it
// measures, e.g. {Trc1 S21}
type Pair struct {
	Name      string `json:"name"`
	Parameter string `json:"parameter"`
}

// ParsePairs splits a "name,param,name,param" catalog.  A reply without a
// comma means there are no measurements and gives a nil list.
func ParsePairs(catalog string) ([]Pair, error) {
	if !strings.Contains(catalog, ",") {
		return nil, nil
	}
	fields := scpi.SplitCSV(catalog)
	if len(fields)%2 != 0 {
		return nil, fmt.Errorf("%w: %q has an unpaired entry", ErrMalformedCatalog, catalog)
	}
	out := make([]Pair, len(fields)/2)
	for i := range out {
		out[i] = Pair{Name: fields[2*i], Parameter: fields[2*i+1]}
	}
	return out, nil
}

// FindParameter returns the name of the first pair measuring param
func FindParameter(pairs []Pair, param string) (string, bool) {
	for _, p := range pairs {
		if strings.EqualFold(p.Parameter, param) {
			return p.Name, true
		}
	}
	return "", false
}

// Trace describes one measurement configured on an analyzer
type Trace struct {
	Name              string `json:"name"`
	Parameter         string `json:"parameter"`
	Channel           int    `json:"channel"`
	MeasurementNumber int    `json:"measurementNumber"`
	Label             string `json:"label"`
}

// TraceLabel is the human readable label of a trace, "S21 - Chan1,Meas2"
func TraceLabel(param string, channel, meas int) string {
	return param + " - Chan" + strconv.Itoa(channel) + ",Meas" + strconv.Itoa(meas)
}

// NewTrace builds a labelled Trace
func NewTrace(name, param string, channel, meas int) Trace {
	return Trace{
		Name:              name,
		Parameter:         param,
		Channel:           channel,
		MeasurementNumber: meas,
		Label:             TraceLabel(param, channel, meas),
	}
}

// Channel is a sweep configuration on the analyzer
type Channel struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// ParseChannelCatalog parses "1,Chan1,2,Chan2" into channels, in order
func ParseChannelCatalog(catalog string) ([]Channel, error) {
	fields := scpi.SplitCSV(catalog)
	if len(fields)%2 != 0 {
		return nil, fmt.Errorf("%w: %q has an unpaired entry", ErrMalformedCatalog, catalog)
	}
	out := make([]Channel, 0, len(fields)/2)
	for i := 0; i < len(fields); i += 2 {
		id, err := strconv.Atoi(fields[i])
		if err != nil {
			return nil, fmt.Errorf("%w: channel id %q is not an integer", ErrMalformedCatalog, fields[i])
		}
		out = append(out, Channel{ID: id, Name: fields[i+1]})
	}
	return out, nil
}

// HasChannel reports if id is among chans
func HasChannel(chans []Channel, id int) bool {
	for _, c := range chans {
		if c.ID == id {
			return true
		}
	}
	return false
}

// NumberedName is one entry of a "number,name" trace catalog
type NumberedName struct {
	Number int
	Name   string
}

// ParseNumberedCatalog parses "1,Trc1,3,Trc3" into numbered names
func ParseNumberedCatalog(catalog string) ([]NumberedName, error) {
	chans, err := ParseChannelCatalog(catalog)
	if err != nil {
		return nil, err
	}
	out := make([]NumberedName, len(chans))
	for i, c := range chans {
		out[i] = NumberedName{Number: c.ID, Name: c.Name}
	}
	return out, nil
}
