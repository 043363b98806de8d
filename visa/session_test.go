package visa

import (
	"bufio"
	"encoding/binary"
	"errors"
	"math"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

// fakeInstrument is a line-oriented socket instrument.  Each query in
// replies is answered with the given bytes; anything else is silent.
type fakeInstrument struct {
	ln      net.Listener
	replies map[string][]byte

	mu       sync.Mutex
	received []string
	accepts  int
}

func newFakeInstrument(t *testing.T, replies map[string][]byte) *fakeInstrument {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	f := &fakeInstrument{ln: ln, replies: replies}
	t.Cleanup(func() { ln.Close() })
	go f.serve()
	return f
}

func (f *fakeInstrument) serve() {
	for {
		conn, err := f.ln.Accept()
		if err != nil {
			return
		}
		f.mu.Lock()
		f.accepts++
		f.mu.Unlock()
		go func(c net.Conn) {
			defer c.Close()
			r := bufio.NewReader(c)
			for {
				line, err := r.ReadString('\n')
				if err != nil {
					return
				}
				line = strings.TrimRight(line, "\n")
				f.mu.Lock()
				f.received = append(f.received, line)
				f.mu.Unlock()
				if reply, ok := f.replies[line]; ok {
					c.Write(reply)
				}
			}
		}(conn)
	}
}

func (f *fakeInstrument) resource() string {
	addr := f.ln.Addr().(*net.TCPAddr)
	return "TCPIP0::127.0.0.1::" + strconv.Itoa(addr.Port) + "::SOCKET"
}

func (f *fakeInstrument) commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.received...)
}

func binaryBlock(vals ...float64) []byte {
	payload := make([]byte, 8*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint64(payload[8*i:], math.Float64bits(v))
	}
	n := strconv.Itoa(len(payload))
	out := []byte("#" + strconv.Itoa(len(n)) + n)
	out = append(out, payload...)
	return append(out, '\n')
}

func TestSessionQuery(t *testing.T) {
	f := newFakeInstrument(t, map[string][]byte{
		"*IDN?": []byte("Rohde-Schwarz,ZVA24,100,3.20\r\n"),
	})
	rm := NewResourceManager("")
	s, err := rm.Open(f.resource(), Config{Timeout: time.Second})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	resp, err := s.Query("*IDN?")
	if err != nil {
		t.Fatal(err)
	}
	if resp != "Rohde-Schwarz,ZVA24,100,3.20" {
		t.Errorf("got %q", resp)
	}
	if err = s.Write("*RST"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(20 * time.Millisecond)
	if diff := cmp.Diff([]string{"*IDN?", "*RST"}, f.commands()); diff != "" {
		t.Errorf("commands mismatch (-want +got):\n%s", diff)
	}
}

func TestSessionQueryValuesASCIIAndBinary(t *testing.T) {
	f := newFakeInstrument(t, map[string][]byte{
		"ASCII?":  []byte("1.5,-2.5,3E-3\n"),
		"BINARY?": binaryBlock(10, 0.5, math.Float64frombits(0x0a0a0a0a0a0a0a0a)),
		"AFTER?":  []byte("ok\n"),
	})
	s, err := Open(f.resource(), Config{Timeout: time.Second})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	vals, err := s.QueryValues("ASCII?")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]float64{1.5, -2.5, 3e-3}, vals); diff != "" {
		t.Errorf("ascii mismatch (-want +got):\n%s", diff)
	}
	s.UseBinary('d', false)
	vals, err = s.QueryValues("BINARY?")
	if err != nil {
		t.Fatal(err)
	}
	if len(vals) != 3 || vals[0] != 10 || vals[1] != 0.5 || math.Float64bits(vals[2]) != 0x0a0a0a0a0a0a0a0a {
		t.Errorf("binary values decoded as %v", vals)
	}
	// the block's trailing newline must have been consumed
	resp, err := s.Query("AFTER?")
	if err != nil || resp != "ok" {
		t.Errorf("next query gave %q, %v", resp, err)
	}
}

func TestSessionTimeout(t *testing.T) {
	f := newFakeInstrument(t, nil)
	s, err := Open(f.resource(), Config{Timeout: time.Second})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if err = s.SetTimeout(30 * time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if s.Timeout() != 30*time.Millisecond {
		t.Errorf("timeout not updated")
	}
	start := time.Now()
	_, err = s.Query("SILENT?")
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("expected ErrTimeout, got %v", err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Errorf("query took %v, the timeout was not applied", time.Since(start))
	}
}

func TestSessionReconnectsAfterTimeout(t *testing.T) {
	f := newFakeInstrument(t, map[string][]byte{"*OPC?": []byte("1\n")})
	s, err := Open(f.resource(), Config{Timeout: 50 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	s.Query("SILENT?")
	resp, err := s.Query("*OPC?")
	if err != nil || resp != "1" {
		t.Errorf("expected the session to recover, got %q, %v", resp, err)
	}
}

func TestSessionCloseOnce(t *testing.T) {
	f := newFakeInstrument(t, nil)
	rm := NewResourceManager("@py")
	s, err := rm.Open(f.resource(), Config{})
	if err != nil {
		t.Fatal(err)
	}
	if len(rm.Sessions()) != 1 {
		t.Fatalf("expected 1 tracked session, got %v", rm.Sessions())
	}
	if err = s.Close(); err != nil {
		t.Fatal(err)
	}
	if err = s.Close(); err != nil {
		t.Errorf("second close should be a no-op, got %v", err)
	}
	if len(rm.Sessions()) != 0 {
		t.Errorf("closed session still tracked: %v", rm.Sessions())
	}
	if err = s.Write("*RST"); err != ErrClosed {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestManagerCloseAll(t *testing.T) {
	f := newFakeInstrument(t, nil)
	rm := NewResourceManager("")
	for i := 0; i < 3; i++ {
		if _, err := rm.Open(f.resource(), Config{}); err != nil {
			t.Fatal(err)
		}
	}
	if err := rm.Close(); err != nil {
		t.Fatal(err)
	}
	if len(rm.Sessions()) != 0 {
		t.Errorf("expected no sessions after Close, got %v", rm.Sessions())
	}
}

func TestOpenConnectionErrors(t *testing.T) {
	ln, _ := net.Listen("tcp", "127.0.0.1:0")
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	for _, res := range []string{
		"TCPIP0::127.0.0.1::" + strconv.Itoa(port) + "::SOCKET",
		"not a resource",
		"TCPIP0::127.0.0.1::inst0::INSTR",
		"GPIB0::16::INSTR",
	} {
		_, err := NewResourceManager("").Open(res, Config{Timeout: 100 * time.Millisecond})
		var cerr *ConnectionError
		if !errors.As(err, &cerr) {
			t.Errorf("%s: expected a ConnectionError, got %v", res, err)
		}
	}
}
