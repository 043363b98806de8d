// Package scpi provides primitives for working with devices that
// have SCPI interfaces
package scpi

import (
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"
)

// ErrNoTimeout is generated when the transport cannot change its timeout
var ErrNoTimeout = errors.New("transport does not support changing its timeout")

// Transport moves SCPI messages to and from an instrument.  Write sends one
// message, Query sends one message and reads one reply, and QueryValues sends
// one message and decodes the reply as a sequence of numbers in whatever
// format the transport is currently configured for.
type Transport interface {
	Write(string) error
	Query(string) (string, error)
	QueryValues(string) ([]float64, error)
}

// TimeoutTransport is a Transport with an adjustable I/O timeout
type TimeoutTransport interface {
	Transport
	Timeout() time.Duration
	SetTimeout(time.Duration) error
}

// Instrument is a type for encapsulating SCPI communication
type Instrument struct {
	Transport Transport

	// Handshaking indicates if the communication shall use handshaking,
	// where an error query is sent with every message
	// to ensure the device accepted the input
	Handshaking bool

	// Echo logs every command and reply
	Echo bool

	// Logger receives echoed traffic; log.Default() if nil
	Logger *log.Logger

	// OnCommand, if not nil, is called after every exchange
	OnCommand func(cmd string, err error)
}

func (s *Instrument) logf(format string, args ...interface{}) {
	l := s.Logger
	if l == nil {
		l = log.Default()
	}
	l.Printf(format, args...)
}

func (s *Instrument) done(cmd string, err error) {
	if s.OnCommand != nil {
		s.OnCommand(cmd, err)
	}
}

func noError(resp string) bool {
	resp = strings.TrimSpace(resp)
	return strings.HasPrefix(resp, "+0") || strings.HasPrefix(resp, "0")
}

// Write sends a command to the device.  if s.Handshaking == true,
// it also requests an error response and checks that it is OK
// it is assumed this is used for set operations and not get.
func (s *Instrument) Write(cmds ...string) error {
	str := strings.Join(cmds, " ")
	if s.Echo {
		s.logf("SCPI> %s", str)
	}
	var err error
	defer func() { s.done(str, err) }()
	if !s.Handshaking {
		err = s.Transport.Write(str)
		return err
	}
	var resp string
	resp, err = s.Transport.Query("*CLS;" + str + ";:SYSTem:ERRor?")
	if err != nil {
		return err
	}
	if !noError(resp) {
		err = fmt.Errorf("%s: %s", str, resp)
	}
	return err
}

// Query is write, but with a read call after.  It is assumed that "get"
// calls use this underlying mechanism
func (s *Instrument) Query(cmds ...string) (string, error) {
	str := strings.Join(cmds, " ")
	if s.Echo {
		s.logf("SCPI> %s", str)
	}
	var err error
	defer func() { s.done(str, err) }()
	var resp string
	if !s.Handshaking {
		resp, err = s.Transport.Query(str)
	} else {
		resp, err = s.Transport.Query("*CLS;" + str + ";:SYSTem:ERRor?")
		if err == nil {
			idx := strings.LastIndexByte(resp, ';')
			if idx == -1 {
				err = fmt.Errorf("%s: no error status in reply %q", str, resp)
				return "", err
			}
			status := resp[idx+1:]
			resp = resp[:idx]
			if !noError(status) {
				err = fmt.Errorf("%s: %s", str, status)
				return resp, err
			}
		}
	}
	resp = strings.TrimRight(resp, "\r\n")
	if s.Echo && err == nil {
		s.logf("SCPI< %s", resp)
	}
	return resp, err
}

// QueryValues sends a command and decodes the reply as numbers.
// Handshaking is not used, since it would corrupt binary replies.
func (s *Instrument) QueryValues(cmds ...string) ([]float64, error) {
	str := strings.Join(cmds, " ")
	if s.Echo {
		s.logf("SCPI> %s", str)
	}
	vals, err := s.Transport.QueryValues(str)
	s.done(str, err)
	if s.Echo && err == nil {
		s.logf("SCPI< %d values", len(vals))
	}
	return vals, err
}

// ReadString sends a command to the device, the reads the response
// and returns it as a decoded ASCII or UTF-8 string
func (s *Instrument) ReadString(cmds ...string) (string, error) {
	return s.Query(cmds...)
}

// ReadFloat sends a command to the device, then reads the
// response and parses it as a floating point value
func (s *Instrument) ReadFloat(cmds ...string) (float64, error) {
	resp, err := s.ReadString(cmds...)
	if err != nil {
		return 0, err
	}
	return strconv.ParseFloat(strings.TrimSpace(resp), 64)
}

// ReadBool sends a command to the device, then reads the
// response and parses it as a boolean.  ON and OFF are understood.
func (s *Instrument) ReadBool(cmds ...string) (bool, error) {
	resp, err := s.ReadString(cmds...)
	if err != nil {
		return false, err
	}
	switch strings.ToUpper(strings.TrimSpace(resp)) {
	case "ON":
		return true, nil
	case "OFF":
		return false, nil
	}
	return strconv.ParseBool(strings.TrimSpace(resp))
}

// ReadInt sends a command to the device, then reads the
// response and parses it as an integer.  Integers sent in
// floating point notation (1E+0) are accepted.
func (s *Instrument) ReadInt(cmds ...string) (int, error) {
	resp, err := s.ReadString(cmds...)
	if err != nil {
		return 0, err
	}
	resp = strings.TrimSpace(resp)
	i, err := strconv.Atoi(strings.TrimPrefix(resp, "+"))
	if err == nil {
		return i, nil
	}
	f, ferr := strconv.ParseFloat(resp, 64)
	if ferr != nil {
		return 0, err
	}
	return int(f), nil
}

// Raw sends a command to the device and returns a response if it was a query,
// else a blank string
func (s *Instrument) Raw(str string) (string, error) {
	prev := s.Handshaking
	s.Handshaking = false
	defer func() { s.Handshaking = prev }()
	if strings.Contains(str, "?") {
		return s.ReadString(str)
	}
	return "", s.Write(str)
}

// PopError gets a single error from the queue on the device
func (s *Instrument) PopError() error {
	prev := s.Handshaking
	s.Handshaking = false
	defer func() { s.Handshaking = prev }()
	str, err := s.ReadString("SYSTem:ERRor?")
	if err != nil {
		return err
	}
	if noError(str) {
		return nil
	}
	return errors.New(str)
}

// AllErrors returns all errors from the device as a list
func (s *Instrument) AllErrors() []error {
	var errs []error
	for {
		err := s.PopError()
		if err == nil {
			break
		}
		errs = append(errs, err)
		// a broken link would otherwise loop forever
		if len(errs) > 100 {
			break
		}
	}
	return errs
}

// AllErrorsString is equivalent to AllErrors, but joining by newline
// if there were no errors, the error return value is nil, otherwise
// it is the first error in the list and has no particular meaning
func (s *Instrument) AllErrorsString() (string, error) {
	errs := s.AllErrors()
	if len(errs) == 0 {
		return "", nil
	}
	strs := make([]string, len(errs))
	for i := 0; i < len(errs); i++ {
		strs[i] = errs[i].Error()
	}
	return strings.Join(strs, "\n"), errs[0]
}

// Timeout returns the I/O timeout of the transport
func (s *Instrument) Timeout() (time.Duration, error) {
	tt, ok := s.Transport.(TimeoutTransport)
	if !ok {
		return 0, ErrNoTimeout
	}
	return tt.Timeout(), nil
}

// SetTimeout changes the I/O timeout of the transport
func (s *Instrument) SetTimeout(d time.Duration) error {
	tt, ok := s.Transport.(TimeoutTransport)
	if !ok {
		return ErrNoTimeout
	}
	return tt.SetTimeout(d)
}
