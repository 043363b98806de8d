/*Package comm provides the byte-level plumbing shared by the instrument
transports: line termination, per-operation deadlines, a connection pool,
and connection makers for TCP and RS-232 links.

A typical consumer opens a connection through a CreationFunc held by a Pool,
then wraps it for the duration of one exchange:

	conn, err := pool.Get()
	if err != nil {
		return err
	}
	defer func() { pool.ReturnWithError(conn, err) }()
	wrap := comm.NewTerminator(conn, '\n', '\n')
	_, err = io.WriteString(wrap, "*IDN?")
*/
package comm

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"time"
)

var (
	// ErrNoDeadline is generated when NewTimeout is given a value that
	// cannot have deadlines set on it
	ErrNoDeadline = errors.New("reader/writer does not support deadlines")

	// ErrTerminatorNotFound is generated when the termination byte is not found in a response
	ErrTerminatorNotFound = errors.New("termination byte not found")
)

// Terminator wraps an io.ReadWriter, appending Tx to every Write and reading
// one Rx-terminated message per Read.  Bytes past the terminator stay
// buffered for the next call, so a Terminator must be reused for the life of
// the connection it wraps.
type Terminator struct {
	rw io.ReadWriter
	br *bufio.Reader

	// pending holds the unread tail of a message longer than the caller's buffer
	pending []byte

	// Rx is the receipt terminator
	Rx byte

	// Tx is the transmission terminator
	Tx byte
}

// NewTerminator returns a new Terminator wrapping rw
func NewTerminator(rw io.ReadWriter, rx, tx byte) *Terminator {
	return &Terminator{rw: rw, br: bufio.NewReader(rw), Rx: rx, Tx: tx}
}

// Write sends p with the Tx terminator appended if it is not already present.
// The returned count excludes the terminator.
func (t *Terminator) Write(p []byte) (int, error) {
	buf := p
	if len(p) == 0 || p[len(p)-1] != t.Tx {
		buf = make([]byte, len(p), len(p)+1)
		copy(buf, p)
		buf = append(buf, t.Tx)
	}
	n, err := t.rw.Write(buf)
	if n > len(p) {
		n = len(p)
	}
	return n, err
}

// Read copies one message into p with the terminator stripped.  If p is too
// small the remainder is returned by the following Read.
func (t *Terminator) Read(p []byte) (int, error) {
	if len(t.pending) == 0 {
		msg, err := t.ReadMessage()
		if err != nil {
			return 0, err
		}
		t.pending = msg
	}
	n := copy(p, t.pending)
	t.pending = t.pending[n:]
	return n, nil
}

// ReadMessage reads up to and including the Rx terminator and returns the
// message without it
func (t *Terminator) ReadMessage() ([]byte, error) {
	buf, err := t.br.ReadBytes(t.Rx)
	if err != nil {
		if len(buf) > 0 && err == io.EOF {
			return buf, ErrTerminatorNotFound
		}
		return buf, err
	}
	return bytes.TrimSuffix(buf, []byte{t.Rx}), nil
}

// Reader exposes the buffered reader so that callers may read fixed-length
// binary payloads which can legitimately contain the terminator
func (t *Terminator) Reader() *bufio.Reader {
	return t.br
}

// Discard drops everything currently buffered.  It does not block.
func (t *Terminator) Discard() int {
	n := len(t.pending)
	t.pending = nil
	b := t.br.Buffered()
	t.br.Discard(b)
	return n + b
}

// Deadliner is something that can have read and write deadlines set, like a
// net.Conn
type Deadliner interface {
	SetReadDeadline(time.Time) error
	SetWriteDeadline(time.Time) error
}

// Timeout arms a fresh deadline on its underlying value before every Read and
// Write
type Timeout struct {
	rw io.ReadWriter
	dl Deadliner

	// Timeout is the duration of each deadline
	Timeout time.Duration
}

// NewTimeout wraps rw, which must implement Deadliner either directly or
// through a Terminator
func NewTimeout(rw io.ReadWriter, timeout time.Duration) (*Timeout, error) {
	inner := rw
	if t, ok := rw.(*Terminator); ok {
		inner = t.rw
	}
	dl, ok := inner.(Deadliner)
	if !ok {
		return nil, ErrNoDeadline
	}
	return &Timeout{rw: rw, dl: dl, Timeout: timeout}, nil
}

// Read sets a read deadline then reads
func (t *Timeout) Read(p []byte) (int, error) {
	if err := t.dl.SetReadDeadline(time.Now().Add(t.Timeout)); err != nil {
		return 0, err
	}
	return t.rw.Read(p)
}

// Write sets a write deadline then writes
func (t *Timeout) Write(p []byte) (int, error) {
	if err := t.dl.SetWriteDeadline(time.Now().Add(t.Timeout)); err != nil {
		return 0, err
	}
	return t.rw.Write(p)
}
