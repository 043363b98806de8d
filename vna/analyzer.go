package vna

import "strconv"

// SNPOptions adjusts an N-port network acquisition.  A zero Channel means
// the active channel, an empty Name means "{n}-Port Network (ports)" and an
// empty Unit means GHz.
type SNPOptions struct {
	Channel int    `json:"channel"`
	Name    string `json:"name"`
	Unit    string `json:"unit"`
	Sweep   bool   `json:"sweep"`
}

// TracesOptions adjusts a trace acquisition.  NamePrefix, if not empty, is
// joined to each trace's parameter with " - ".  An empty Unit means GHz.
type TracesOptions struct {
	Sweep      bool   `json:"sweep"`
	NamePrefix string `json:"namePrefix"`
	Unit       string `json:"unit"`
}

// DefaultNetworkName is the name given to a network acquired over ports when
// the caller gives none
func DefaultNetworkName(ports []int) string {
	return strconv.Itoa(len(ports)) + "-Port Network (" + PortString(ports) + ")"
}

// Analyzer is a vector network analyzer
type Analyzer interface {
	IDN() (string, error)

	// ActiveChannel never fails, it falls back to channel 1
	ActiveChannel() int
	SetActiveChannel(ch int) error
	Channels() ([]Channel, error)

	Frequency(ch int, unit string) (Frequency, error)
	SetFrequencySweep(ch int, start, stop float64, unit string, npoints int) error

	MeasList(ch int) ([]Pair, error)
	ListTraces() ([]Trace, error)
	Traces(traces []Trace, opts TracesOptions) ([]*Network, error)
	SNPNetwork(ports []int, opts SNPOptions) (*Network, error)
	SwitchTerms(ports [2]int, ch int) (forward, reverse *Network, err error)

	UseBinary() error
	UseASCII() error
}
