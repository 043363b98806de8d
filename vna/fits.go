package vna

import (
	"encoding/binary"
	"io"
	"math"

	"github.com/astrogo/fitsio"
	"github.com/snksoft/crc"
)

var crcTable = crc.NewTable(crc.XMODEM)

// fitsRows flattens the network into a 2D image, the first row is the
// frequency in Hz and it is followed by a real and imaginary row for each
// S-parameter in row major order
func (n *Network) fitsRows() []float64 {
	np := n.NPorts()
	npts := len(n.S)
	out := make([]float64, npts*(1+2*np*np))
	copy(out, n.Frequency.Hz)
	row := 1
	for d := 0; d < np; d++ {
		for s := 0; s < np; s++ {
			re := out[row*npts : (row+1)*npts]
			im := out[(row+1)*npts : (row+2)*npts]
			for i := 0; i < npts; i++ {
				re[i] = real(n.S[i][d][s])
				im[i] = imag(n.S[i][d][s])
			}
			row += 2
		}
	}
	return out
}

// DataCRC is the XMODEM CRC16 of the flattened float64 data, little endian
func DataCRC(data []float64) uint16 {
	buf := make([]byte, 8)
	c := crcTable.InitCrc()
	for _, v := range data {
		binary.LittleEndian.PutUint64(buf, math.Float64bits(v))
		c = crcTable.UpdateCrc(c, buf)
	}
	return crcTable.CRC16(c)
}

// EncodeFITS streams the network to w as a float64 FITS image
func (n *Network) EncodeFITS(w io.Writer) error {
	np := n.NPorts()
	data := n.fitsRows()
	fits, err := fitsio.Create(w)
	if err != nil {
		return err
	}
	defer fits.Close()
	im := fitsio.NewImage(-64, []int{len(n.S), 1 + 2*np*np})
	defer im.Close()
	err = im.Header().Append(
		fitsio.Card{Name: "OBJECT", Value: n.Name},
		fitsio.Card{Name: "NPORTS", Value: np, Comment: "number of ports"},
		fitsio.Card{Name: "FUNIT", Value: n.Frequency.Unit, Comment: "display unit, row 0 is in Hz"},
		fitsio.Card{Name: "DATACRC", Value: int(DataCRC(data)), Comment: "CRC16 XMODEM of the data, little endian"},
	)
	if err != nil {
		return err
	}
	if err = im.Write(data); err != nil {
		return err
	}
	return fits.Write(im)
}
