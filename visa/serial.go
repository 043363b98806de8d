package visa

import (
	"io"

	"github.com/tarm/serial"

	"github.com/nasa-jpl/golaborate-vna/comm"
)

// serialLink is an RS-232 port.  tarm/serial fixes the read timeout when the
// port is opened, so SetTimeout on such a session only changes error text.
type serialLink struct {
	io.ReadWriteCloser
}

func serialConfig(port string, cfg Config) *serial.Config {
	return &serial.Config{
		Name:        port,
		Baud:        cfg.BaudRate,
		ReadTimeout: cfg.Timeout,
		Size:        8,
		Parity:      serial.ParityNone,
		StopBits:    serial.Stop1,
	}
}

func openSerial(res Resource, cfg Config) (link, error) {
	port, err := comm.SerialConnMaker(serialConfig(res.Device, cfg))()
	if err != nil {
		return nil, err
	}
	return serialLink{port}, nil
}

// Read turns the empty read tarm/serial reports on timeout into ErrTimeout
func (l serialLink) Read(p []byte) (int, error) {
	n, err := l.ReadWriteCloser.Read(p)
	if n == 0 && (err == nil || err == io.EOF) {
		return 0, ErrTimeout
	}
	return n, err
}
