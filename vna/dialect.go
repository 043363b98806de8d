package vna

import "time"

// Dialect is a vendor's spelling of the SCPI commands a network analyzer
// driver needs.  Methods return the literal command string; channel and
// trace arguments are explicit so no command depends on a previous
// selection having been made.
type Dialect interface {
	// QueryActiveChannel asks for the number of the active channel
	QueryActiveChannel() string
	// SetActiveChannel makes ch the active channel
	SetActiveChannel(ch int) string
	// QueryChannelCatalog asks for the "id,name,..." channel list
	QueryChannelCatalog() string

	// QuerySweepType asks for the sweep type of ch, a reply containing LOG
	// is a logarithmic sweep
	QuerySweepType(ch int) string
	QueryStartFrequency(ch int) string
	QueryStopFrequency(ch int) string
	QuerySweepPoints(ch int) string
	SetStartFrequency(ch int, hz float64) string
	SetStopFrequency(ch int, hz float64) string
	SetSweepPoints(ch, n int) string

	// QueryParameterCatalog asks for the "name,param,..." list of ch
	QueryParameterCatalog(ch int) string
	// QuerySelectedParameter asks for the name of the selected trace of ch
	QuerySelectedParameter(ch int) string
	SelectParameter(ch int, name string) string
	// SelectMeasurementNumber selects a trace of ch by its number
	SelectMeasurementNumber(ch, n int) string
	// QueryTraceCatalog asks for the "number,name,..." trace list of ch
	QueryTraceCatalog(ch int) string

	// QueryData asks for the selected trace of ch in the given form,
	// e.g. SDATA
	QueryData(ch int, form string) string
	// SetDataFormat selects ASCII or binary transfer
	SetDataFormat(binary bool) string
	// SetByteOrder selects little endian (swapped) or big endian transfer
	SetByteOrder(swapped bool) string

	CreateMeasurement(ch int, name, param string) string
	DeleteMeasurement(ch int, name string) string

	// SetContinuous toggles free running sweeps on ch
	SetContinuous(ch int, on bool) string
	// Sweep triggers a single sweep on ch and waits for it to complete,
	// it is a query
	Sweep(ch int) string

	// ProbeTimeout is how long to wait for the active channel before
	// assuming none is active
	ProbeTimeout() time.Duration
}
