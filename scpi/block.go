package scpi

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

var (
	// ErrNotBlock is generated when data does not begin with #
	ErrNotBlock = errors.New("data is not an IEEE 488.2 block")

	// ErrBlockTruncated is generated when a block is shorter than its header claims
	ErrBlockTruncated = errors.New("IEEE 488.2 block is truncated")
)

// ParseBlock extracts the payload of a definite length arbitrary block,
// #<n><length><payload>, from the front of b and returns it along with
// whatever follows.  The indefinite form, #0<payload>\n, consumes the rest
// of b up to a final newline.
func ParseBlock(b []byte) (payload, rest []byte, err error) {
	if len(b) < 2 || b[0] != '#' {
		return nil, b, ErrNotBlock
	}
	digits := int(b[1] - '0')
	if digits < 0 || digits > 9 {
		return nil, b, fmt.Errorf("invalid block header digit %q", b[1])
	}
	if digits == 0 {
		payload = b[2:]
		if l := len(payload); l > 0 && payload[l-1] == '\n' {
			payload = payload[:l-1]
		}
		return payload, nil, nil
	}
	if len(b) < 2+digits {
		return nil, b, ErrBlockTruncated
	}
	length, err := strconv.Atoi(string(b[2 : 2+digits]))
	if err != nil {
		return nil, b, fmt.Errorf("invalid block length %q: %w", b[2:2+digits], err)
	}
	start := 2 + digits
	if len(b) < start+length {
		return nil, b, ErrBlockTruncated
	}
	return b[start : start+length], b[start+length:], nil
}

// ReadBlock reads one arbitrary block from r.  The payload may contain any
// byte, including newlines, so the length from the header is trusted.
// A single trailing newline after a definite length block is consumed.
func ReadBlock(r *bufio.Reader) ([]byte, error) {
	c, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if c != '#' {
		r.UnreadByte()
		return nil, ErrNotBlock
	}
	d, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	digits := int(d) - '0'
	if digits < 0 || digits > 9 {
		return nil, fmt.Errorf("invalid block header digit %q", d)
	}
	if digits == 0 {
		payload, err := r.ReadBytes('\n')
		if err != nil && err != io.EOF {
			return nil, err
		}
		return payload[:len(payload)-trailingNewline(payload)], nil
	}
	hdr := make([]byte, digits)
	if _, err = io.ReadFull(r, hdr); err != nil {
		return nil, err
	}
	length, err := strconv.Atoi(string(hdr))
	if err != nil {
		return nil, fmt.Errorf("invalid block length %q: %w", hdr, err)
	}
	payload := make([]byte, length)
	if _, err = io.ReadFull(r, payload); err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, ErrBlockTruncated
		}
		return nil, err
	}
	if next, err := r.Peek(1); err == nil && next[0] == '\n' {
		r.ReadByte()
	} else if err == nil && next[0] == '\r' {
		if two, err := r.Peek(2); err == nil && two[1] == '\n' {
			r.Discard(2)
		}
	}
	return payload, nil
}

func trailingNewline(b []byte) int {
	if l := len(b); l > 0 && b[l-1] == '\n' {
		return 1
	}
	return 0
}

// DecodeFloat64s interprets b as packed IEEE-754 doubles in the given byte order
func DecodeFloat64s(b []byte, order binary.ByteOrder) ([]float64, error) {
	if len(b)%8 != 0 {
		return nil, fmt.Errorf("%d bytes is not a whole number of float64s", len(b))
	}
	out := make([]float64, len(b)/8)
	for i := range out {
		out[i] = math.Float64frombits(order.Uint64(b[i*8:]))
	}
	return out, nil
}

// DecodeFloat32s interprets b as packed IEEE-754 singles in the given byte order
func DecodeFloat32s(b []byte, order binary.ByteOrder) ([]float64, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("%d bytes is not a whole number of float32s", len(b))
	}
	out := make([]float64, len(b)/4)
	for i := range out {
		out[i] = float64(math.Float32frombits(order.Uint32(b[i*4:])))
	}
	return out, nil
}

// ParseFloats parses a sep separated list of numbers.  An empty string is
// an empty list.
func ParseFloats(s, sep string) ([]float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	pieces := strings.Split(s, sep)
	out := make([]float64, len(pieces))
	for i, p := range pieces {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("value %d: %w", i, err)
		}
		out[i] = f
	}
	return out, nil
}

// Unquote strips surrounding whitespace and one pair of matching single or
// double quotes
func Unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		if (s[0] == '\'' && s[len(s)-1] == '\'') || (s[0] == '"' && s[len(s)-1] == '"') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

// SplitCSV unquotes a comma separated reply and splits it, trimming each
// field.  A blank reply gives an empty list.
func SplitCSV(s string) []string {
	s = Unquote(s)
	if s == "" {
		return nil
	}
	fields := strings.Split(s, ",")
	for i := range fields {
		fields[i] = Unquote(fields[i])
	}
	return fields
}
