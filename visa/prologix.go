package visa

import (
	"bytes"
	"io"
	"strings"

	"github.com/gotmc/prologix"

	"github.com/nasa-jpl/golaborate-vna/comm"
)

// prologixLink reaches a GPIB instrument through a Prologix GPIB-USB
// controller.  The controller answers queries as whole strings, so replies
// are buffered here for the session to read; binary blocks are not
// supported over this link.
type prologixLink struct {
	port io.ReadWriteCloser
	ctrl *prologix.Controller
	buf  bytes.Buffer
	rx   byte
}

func openPrologix(res Resource, cfg Config) (link, error) {
	conf := serialConfig(cfg.PrologixPort, cfg)
	conf.Baud = 115200
	port, err := comm.SerialConnMaker(conf)()
	if err != nil {
		return nil, err
	}
	ctrl, err := prologix.NewController(port, res.Primary, false)
	if err != nil {
		port.Close()
		return nil, err
	}
	return &prologixLink{port: port, ctrl: ctrl, rx: cfg.ReadTermination}, nil
}

func (l *prologixLink) Write(p []byte) (int, error) {
	cmd := strings.TrimRight(string(p), "\r\n")
	if !strings.Contains(cmd, "?") {
		return len(p), l.ctrl.Command(cmd)
	}
	resp, err := l.ctrl.Query(cmd)
	if err != nil && !(err == io.EOF && resp != "") {
		return 0, err
	}
	l.buf.WriteString(strings.TrimRight(resp, "\r\n"))
	l.buf.WriteByte(l.rx)
	return len(p), nil
}

func (l *prologixLink) Read(p []byte) (int, error) {
	if l.buf.Len() == 0 {
		return 0, ErrTimeout
	}
	return l.buf.Read(p)
}

func (l *prologixLink) clear() error {
	l.buf.Reset()
	return l.ctrl.ClearDevice()
}

func (l *prologixLink) controlREN(mode RENMode) error {
	// the controller asserts REN itself whenever it addresses the device
	if mode.asserts() {
		return nil
	}
	return l.ctrl.FrontPanel(true)
}

func (l *prologixLink) Close() error {
	return l.port.Close()
}
