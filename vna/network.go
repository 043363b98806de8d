package vna

import (
	"encoding/json"
	"fmt"
)

// Network is an N-port S-parameter network.  S is indexed
// [point][destination][source], where destination and source are indices
// into the port list the network was acquired with, not port numbers.
type Network struct {
	Name      string
	Frequency Frequency
	S         [][][]complex128

	// Ports are the analyzer port numbers behind each index of S.  Nil
	// means 1..NPorts.
	Ports []int
}

// NewNetwork allocates a zeroed network with nports ports over freq
func NewNetwork(name string, freq Frequency, nports int) *Network {
	s := make([][][]complex128, freq.Len())
	for i := range s {
		s[i] = make([][]complex128, nports)
		for j := range s[i] {
			s[i][j] = make([]complex128, nports)
		}
	}
	return &Network{Name: name, Frequency: freq, S: s}
}

// NPorts is the number of ports in the network
func (n *Network) NPorts() int {
	if len(n.S) == 0 {
		return 0
	}
	return len(n.S[0])
}

// PortNumbers returns Ports, or 1..NPorts when Ports does not describe S
func (n *Network) PortNumbers() []int {
	np := n.NPorts()
	if len(n.Ports) == np {
		return n.Ports
	}
	out := make([]int, np)
	for i := range out {
		out[i] = i + 1
	}
	return out
}

// Key is the S-parameter name of S[.][dest][src], e.g. S31 for a network
// over ports {1,3} at (1, 0)
func (n *Network) Key(dest, src int) string {
	p := n.PortNumbers()
	return SKey(p[dest], p[src])
}

// NPoints is the number of frequency points
func (n *Network) NPoints() int {
	return len(n.S)
}

func (n *Network) checkIndex(dest, src int) error {
	np := n.NPorts()
	if dest < 0 || dest >= np || src < 0 || src >= np {
		return fmt.Errorf("index (%d,%d) out of range for a %d-port network", dest, src, np)
	}
	return nil
}

// SetTrace fills the (dest, src) element of S at every frequency point
func (n *Network) SetTrace(dest, src int, s []complex128) error {
	if err := n.checkIndex(dest, src); err != nil {
		return err
	}
	if len(s) != len(n.S) {
		return fmt.Errorf("%w: %d values for %d points", ErrLengthMismatch, len(s), len(n.S))
	}
	for i, v := range s {
		n.S[i][dest][src] = v
	}
	return nil
}

// Trace returns a copy of the (dest, src) element of S over frequency
func (n *Network) Trace(dest, src int) []complex128 {
	if n.checkIndex(dest, src) != nil {
		return nil
	}
	out := make([]complex128, len(n.S))
	for i := range n.S {
		out[i] = n.S[i][dest][src]
	}
	return out
}

// jsonNetwork is the wire form of a Network, complex numbers do not survive
// encoding/json so the real and imaginary parts travel separately
type jsonNetwork struct {
	Name      string        `json:"name"`
	Frequency Frequency     `json:"frequency"`
	NPorts    int           `json:"nports"`
	Ports     []int         `json:"ports,omitempty"`
	Real      [][][]float64 `json:"real"`
	Imag      [][][]float64 `json:"imag"`
}

// MarshalJSON implements json.Marshaler
func (n *Network) MarshalJSON() ([]byte, error) {
	np := n.NPorts()
	out := jsonNetwork{
		Name:      n.Name,
		Frequency: n.Frequency,
		NPorts:    np,
		Ports:     n.Ports,
		Real:      make([][][]float64, len(n.S)),
		Imag:      make([][][]float64, len(n.S)),
	}
	for i := range n.S {
		out.Real[i] = make([][]float64, np)
		out.Imag[i] = make([][]float64, np)
		for j := 0; j < np; j++ {
			out.Real[i][j] = make([]float64, np)
			out.Imag[i][j] = make([]float64, np)
			for k := 0; k < np; k++ {
				out.Real[i][j][k] = real(n.S[i][j][k])
				out.Imag[i][j][k] = imag(n.S[i][j][k])
			}
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler
func (n *Network) UnmarshalJSON(b []byte) error {
	var in jsonNetwork
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	if len(in.Real) != len(in.Imag) {
		return fmt.Errorf("real and imaginary parts have %d and %d points", len(in.Real), len(in.Imag))
	}
	n.Name = in.Name
	n.Frequency = in.Frequency
	n.Ports = in.Ports
	n.S = make([][][]complex128, len(in.Real))
	for i := range in.Real {
		if len(in.Real[i]) != len(in.Imag[i]) {
			return fmt.Errorf("point %d: real and imaginary parts differ in shape", i)
		}
		n.S[i] = make([][]complex128, len(in.Real[i]))
		for j := range in.Real[i] {
			if len(in.Real[i][j]) != len(in.Imag[i][j]) {
				return fmt.Errorf("point %d: real and imaginary parts differ in shape", i)
			}
			n.S[i][j] = make([]complex128, len(in.Real[i][j]))
			for k := range in.Real[i][j] {
				n.S[i][j][k] = complex(in.Real[i][j][k], in.Imag[i][j][k])
			}
		}
	}
	return nil
}
