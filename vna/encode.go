package vna

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// TouchstoneExt is the file extension for n ports, .s2p for two
func TouchstoneExt(nports int) string {
	return ".s" + strconv.Itoa(nports) + "p"
}

func ff(v float64) string {
	return strconv.FormatFloat(v, 'G', -1, 64)
}

// touchstoneOrder lists the (dest, src) indices in the order Touchstone v1
// writes them.  Two port files are column major, everything else is row
// major.
func touchstoneOrder(nports int) [][2]int {
	out := make([][2]int, 0, nports*nports)
	if nports == 2 {
		return append(out, [2]int{0, 0}, [2]int{1, 0}, [2]int{0, 1}, [2]int{1, 1})
	}
	for d := 0; d < nports; d++ {
		for s := 0; s < nports; s++ {
			out = append(out, [2]int{d, s})
		}
	}
	return out
}

// EncodeTouchstone writes the network as a Touchstone v1 file with real and
// imaginary data referenced to 50 ohms
func (n *Network) EncodeTouchstone(w io.Writer) error {
	bw := bufio.NewWriter(w)
	np := n.NPorts()
	unit := n.Frequency.Unit
	if unit == "" {
		unit = "Hz"
	}
	if n.Name != "" {
		fmt.Fprintf(bw, "! %s\n", n.Name)
	}
	fmt.Fprintf(bw, "# %s S RI R 50\n", unit)
	order := touchstoneOrder(np)
	freq := n.Frequency.Scaled()
	for i := range n.S {
		bw.WriteString(ff(freq[i]))
		for k, idx := range order {
			// each matrix row of more than two ports starts a line and
			// wraps after every four pairs
			if np > 2 && k > 0 && (k%np == 0 || (k%np)%4 == 0) {
				bw.WriteString("\n")
			}
			v := n.S[i][idx[0]][idx[1]]
			bw.WriteString(" " + ff(real(v)) + " " + ff(imag(v)))
		}
		bw.WriteString("\n")
	}
	return bw.Flush()
}

// EncodeCSV writes one row per frequency point, with a real and imaginary
// column for each S-parameter in row major order.  Columns are named by
// port number.
func (n *Network) EncodeCSV(w io.Writer) error {
	np := n.NPorts()
	unit := n.Frequency.Unit
	if unit == "" {
		unit = "Hz"
	}
	labels := make([]string, 1, 1+2*np*np)
	labels[0] = "frequency (" + unit + ")"
	for d := 0; d < np; d++ {
		for s := 0; s < np; s++ {
			key := n.Key(d, s)
			labels = append(labels, "re "+key, "im "+key)
		}
	}
	bw := bufio.NewWriter(w)
	writer := csv.NewWriter(bw)
	if err := writer.Write(labels); err != nil {
		return err
	}
	freq := n.Frequency.Scaled()
	row := make([]string, len(labels))
	for i := range n.S {
		row[0] = ff(freq[i])
		c := 1
		for d := 0; d < np; d++ {
			for s := 0; s < np; s++ {
				v := n.S[i][d][s]
				row[c] = ff(real(v))
				row[c+1] = ff(imag(v))
				c += 2
			}
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return err
	}
	return bw.Flush()
}

// Encode writes the network in the named format, one of touchstone, csv or
// fits.  json is left to the caller.
func (n *Network) Encode(w io.Writer, format string) error {
	switch strings.ToLower(format) {
	case "touchstone", "snp", "":
		return n.EncodeTouchstone(w)
	case "csv":
		return n.EncodeCSV(w)
	case "fits":
		return n.EncodeFITS(w)
	default:
		return fmt.Errorf("unknown network format %q, must be touchstone, csv, or fits", format)
	}
}

// Ext is the file extension for the named format
func (n *Network) Ext(format string) string {
	switch strings.ToLower(format) {
	case "csv":
		return ".csv"
	case "fits":
		return ".fits"
	case "json":
		return ".json"
	default:
		return TouchstoneExt(n.NPorts())
	}
}
