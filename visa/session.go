package visa

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/nasa-jpl/golaborate-vna/comm"
	"github.com/nasa-jpl/golaborate-vna/scpi"
)

// link is the byte transport beneath a session
type link interface {
	io.ReadWriteCloser
}

// optional link capabilities
type (
	timeoutSetter interface {
		setTimeout(time.Duration)
	}
	clearer interface {
		clear() error
	}
	renController interface {
		controlREN(RENMode) error
	}
)

// ValuesFormat describes how QueryValues decodes replies
type ValuesFormat struct {
	// Binary selects IEEE 488.2 block transfers
	Binary bool

	// Datatype is 'd' for float64 or 'f' for float32 binary values
	Datatype byte

	// BigEndian is the byte order of binary values
	BigEndian bool

	// Separator splits ASCII values
	Separator string
}

// ASCIIValues is the default ValuesFormat, comma separated text
var ASCIIValues = ValuesFormat{Separator: ","}

// Session is an open connection to one resource.  It is safe for concurrent
// use; each Query holds the session for its write and read.
type Session struct {
	resource Resource
	link     link
	term     *comm.Terminator
	timeout  time.Duration
	values   ValuesFormat
	limiter  *rate.Limiter
	manager  *ResourceManager

	mu     sync.Mutex
	once   sync.Once
	closed bool
}

func newSession(res Resource, l link, cfg Config) *Session {
	s := &Session{
		resource: res,
		link:     l,
		term:     comm.NewTerminator(l, cfg.ReadTermination, cfg.WriteTermination),
		values:   ASCIIValues,
		manager:  cfg.Manager,
	}
	if cfg.MinInterval > 0 {
		s.limiter = rate.NewLimiter(rate.Every(cfg.MinInterval), 1)
	}
	s.setTimeout(cfg.Timeout)
	return s
}

// Resource returns the parsed resource string of the session
func (s *Session) Resource() Resource {
	return s.resource
}

func isTimeout(err error) bool {
	if errors.Is(err, ErrTimeout) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}

// fail annotates an I/O error and drops anything half read, so the next
// exchange starts on a message boundary
func (s *Session) fail(err error, op string) error {
	s.term.Discard()
	if isTimeout(err) {
		return errors.Wrapf(ErrTimeout, "%s: %s exceeded %v", s.resource, op, s.timeout)
	}
	return errors.Wrapf(err, "%s: %s", s.resource, op)
}

func (s *Session) pace() {
	if s.limiter != nil {
		s.limiter.Wait(context.Background())
	}
}

func (s *Session) write(cmd string) error {
	if s.closed {
		return ErrClosed
	}
	s.pace()
	if _, err := io.WriteString(s.term, cmd); err != nil {
		return s.fail(err, "write")
	}
	return nil
}

func (s *Session) read() (string, error) {
	if s.closed {
		return "", ErrClosed
	}
	msg, err := s.term.ReadMessage()
	if err != nil {
		return "", s.fail(err, "read")
	}
	return strings.TrimRight(string(msg), "\r"), nil
}

// Write sends one message
func (s *Session) Write(cmd string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(cmd)
}

// Read reads one message, without its terminator
func (s *Session) Read() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

// Query writes cmd and reads the reply
func (s *Session) Query(cmd string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.write(cmd); err != nil {
		return "", err
	}
	return s.read()
}

// ReadRaw reads one reply as bytes.  A reply beginning with # is read as an
// arbitrary block and its payload returned; anything else is read to the
// terminator.
func (s *Session) ReadRaw() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readRaw()
}

func (s *Session) readRaw() ([]byte, error) {
	if s.closed {
		return nil, ErrClosed
	}
	r := s.term.Reader()
	first, err := r.Peek(1)
	if err != nil {
		return nil, s.fail(err, "read")
	}
	if first[0] == '#' {
		b, err := scpi.ReadBlock(r)
		if err != nil {
			return nil, s.fail(err, "read block")
		}
		return b, nil
	}
	msg, err := s.term.ReadMessage()
	if err != nil {
		return nil, s.fail(err, "read")
	}
	return msg, nil
}

// QueryValues writes cmd and decodes the reply according to the current
// ValuesFormat
func (s *Session) QueryValues(cmd string) ([]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.write(cmd); err != nil {
		return nil, err
	}
	if !s.values.Binary {
		str, err := s.read()
		if err != nil {
			return nil, err
		}
		vals, err := scpi.ParseFloats(str, s.values.Separator)
		return vals, errors.Wrapf(err, "%s: %s", s.resource, cmd)
	}
	b, err := s.readRaw()
	if err != nil {
		return nil, err
	}
	var order binary.ByteOrder = binary.LittleEndian
	if s.values.BigEndian {
		order = binary.BigEndian
	}
	var vals []float64
	if s.values.Datatype == 'f' {
		vals, err = scpi.DecodeFloat32s(b, order)
	} else {
		vals, err = scpi.DecodeFloat64s(b, order)
	}
	return vals, errors.Wrapf(err, "%s: %s", s.resource, cmd)
}

// UseASCII makes QueryValues parse text separated by sep
func (s *Session) UseASCII(sep string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sep == "" {
		sep = ","
	}
	s.values = ValuesFormat{Separator: sep}
}

// UseBinary makes QueryValues decode IEEE 488.2 blocks of datatype 'd'
// (float64) or 'f' (float32)
func (s *Session) UseBinary(datatype byte, bigEndian bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if datatype != 'f' {
		datatype = 'd'
	}
	s.values = ValuesFormat{Binary: true, Datatype: datatype, BigEndian: bigEndian}
}

// Values returns the current ValuesFormat
func (s *Session) Values() ValuesFormat {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values
}

// Timeout returns the I/O timeout
func (s *Session) Timeout() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeout
}

// SetTimeout changes the I/O timeout
func (s *Session) SetTimeout(d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.setTimeout(d)
	return nil
}

func (s *Session) setTimeout(d time.Duration) {
	s.timeout = d
	if ts, ok := s.link.(timeoutSetter); ok {
		ts.setTimeout(d)
	}
}

// Clear discards pending input and, where the link supports it, sends a
// device clear
func (s *Session) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.term.Discard()
	if c, ok := s.link.(clearer); ok {
		return errors.Wrapf(c.clear(), "%s: clear", s.resource)
	}
	return nil
}

// ControlREN operates the remote enable line.  Links without one ignore it.
func (s *Session) ControlREN(mode RENMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if mode == RENNone {
		return nil
	}
	if rc, ok := s.link.(renController); ok {
		return errors.Wrapf(rc.controlREN(mode), "%s: REN control", s.resource)
	}
	return nil
}

// Close releases the connection.  Only the first call does anything;
// later calls return nil.
func (s *Session) Close() error {
	var err error
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		err = s.link.Close()
		s.mu.Unlock()
		if s.manager != nil {
			s.manager.forget(s)
		}
	})
	return err
}
