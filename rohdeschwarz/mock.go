package rohdeschwarz

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/nasa-jpl/golaborate-vna/scpi"
	"github.com/nasa-jpl/golaborate-vna/visa"
)

// MockIDN is the identity reported by MockZVA
const MockIDN = "Rohde-Schwarz,ZVA24-4Port,1145110024100001,3.60"

type mockTrace struct {
	number int
	name   string
	param  string
}

type mockChannel struct {
	name     string
	log      bool
	start    float64
	stop     float64
	points   int
	traces   []*mockTrace
	selected string
}

func (c *mockChannel) trace(name string) *mockTrace {
	for _, t := range c.traces {
		if t.name == name {
			return t
		}
	}
	return nil
}

// MockZVA is an in-memory ZVA that answers the commands ZVADialect produces.
// It records every command it receives.  Trace data is deterministic: a
// trace measuring S{d}{s} reads d*10+s + j*k at point k, any other trace
// reads its measurement number + j*k.
type MockZVA struct {
	mu       sync.Mutex
	channels map[int]*mockChannel
	active   int
	timeout  time.Duration
	binary   bool
	next     int
	log      []string
	timeouts []time.Duration
	failures map[string]error

	// NoActiveChannel makes the active channel query time out
	NoActiveChannel bool

	// Latency is slept before every command is handled, like a slow bus
	Latency time.Duration
}

// NewMockZVA returns a mock with channel 1 sweeping 11 points from 1 to
// 2 GHz and holding Trc1..Trc4 measuring S11, S21, S12, S22
func NewMockZVA() *MockZVA {
	m := &MockZVA{
		channels: map[int]*mockChannel{},
		active:   1,
		timeout:  DefaultTimeout,
		failures: map[string]error{},
	}
	m.AddChannel(1, "Ch1", 1e9, 2e9, 11)
	for i, p := range []string{"S11", "S21", "S12", "S22"} {
		m.AddTrace(1, "Trc"+strconv.Itoa(i+1), p)
	}
	return m
}

// AddChannel adds or replaces a channel with a linear sweep
func (m *MockZVA) AddChannel(id int, name string, start, stop float64, points int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[id] = &mockChannel{name: name, start: start, stop: stop, points: points}
}

// SetLogSweep toggles a logarithmic sweep on a channel
func (m *MockZVA) SetLogSweep(ch int, log bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.channels[ch]; ok {
		c.log = log
	}
}

// AddTrace adds a measurement to a channel, which must exist
func (m *MockZVA) AddTrace(ch int, name, param string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addTrace(ch, name, param)
}

func (m *MockZVA) addTrace(ch int, name, param string) error {
	c, ok := m.channels[ch]
	if !ok {
		return fmt.Errorf("mock: no channel %d", ch)
	}
	m.next++
	c.traces = append(c.traces, &mockTrace{number: m.next, name: name, param: param})
	if c.selected == "" {
		c.selected = name
	}
	return nil
}

// TraceNames lists the measurements on a channel
func (m *MockZVA) TraceNames(ch int) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.channels[ch]
	if !ok {
		return nil
	}
	out := make([]string, len(c.traces))
	for i, t := range c.traces {
		out[i] = t.name
	}
	return out
}

// FailOn makes every command beginning with prefix fail with err, a nil err
// removes the failure
func (m *MockZVA) FailOn(prefix string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, prefix)
		return
	}
	m.failures[prefix] = err
}

// Commands returns every command received so far
func (m *MockZVA) Commands() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.log...)
}

// ResetCommands forgets the received commands
func (m *MockZVA) ResetCommands() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.log = nil
}

// Timeouts returns every timeout that was set, in order
func (m *MockZVA) Timeouts() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Duration(nil), m.timeouts...)
}

// Binary reports if the mock was switched to binary values
func (m *MockZVA) Binary() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.binary
}

// Timeout implements scpi.TimeoutTransport
func (m *MockZVA) Timeout() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.timeout
}

// SetTimeout implements scpi.TimeoutTransport
func (m *MockZVA) SetTimeout(d time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeout = d
	m.timeouts = append(m.timeouts, d)
	return nil
}

// UseBinary mirrors visa.Session
func (m *MockZVA) UseBinary(datatype byte, bigEndian bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.binary = true
}

// UseASCII mirrors visa.Session
func (m *MockZVA) UseASCII(sep string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.binary = false
}

// Close implements io.Closer
func (m *MockZVA) Close() error {
	return nil
}

func (m *MockZVA) wait() {
	m.mu.Lock()
	d := m.Latency
	m.mu.Unlock()
	if d > 0 {
		time.Sleep(d)
	}
}

// Write implements scpi.Transport
func (m *MockZVA) Write(cmd string) error {
	m.wait()
	_, err := m.exchange(cmd)
	return err
}

// Query implements scpi.Transport
func (m *MockZVA) Query(cmd string) (string, error) {
	m.wait()
	return m.exchange(cmd)
}

// QueryValues implements scpi.Transport
func (m *MockZVA) QueryValues(cmd string) ([]float64, error) {
	m.wait()
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(cmd); err != nil {
		return nil, err
	}
	if sm := reData.FindStringSubmatch(cmd); sm != nil {
		return m.sdata(atoi(sm[1]))
	}
	resp, err := m.handle(cmd)
	if err != nil {
		return nil, err
	}
	return scpi.ParseFloats(resp, ",")
}

func (m *MockZVA) exchange(cmd string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(cmd); err != nil {
		return "", err
	}
	return m.handle(cmd)
}

func (m *MockZVA) record(cmd string) error {
	m.log = append(m.log, cmd)
	for prefix, err := range m.failures {
		if strings.HasPrefix(cmd, prefix) {
			return err
		}
	}
	return nil
}

var (
	reSelectChannel = regexp.MustCompile(`^INSTrument:NSELect (\d+)$`)
	reSense         = regexp.MustCompile(`^SENSe(\d+):(SWEep:TYPE|FREQuency:STARt|FREQuency:STOP|SWEep:POINts)(\?| (\S+))$`)
	reCalc          = regexp.MustCompile(`^CALCulate(\d+):PARameter:(CATalog\?|SELect\?|SELect '([^']*)'|MNUMber:SELect (\d+)|SDEFine '([^']*)','([^']*)'|DELete '([^']*)')$`)
	reTraceCatalog  = regexp.MustCompile(`^CONFigure:CHANnel(\d+):TRACe:CATalog\?$`)
	reData          = regexp.MustCompile(`^CALCulate(\d+):DATA\? SDATA$`)
	reInit          = regexp.MustCompile(`^INITiate(\d+):(CONTinuous (ON|OFF)|IMMediate;\*OPC\?)$`)
)

func atoi(s string) int {
	i, _ := strconv.Atoi(s)
	return i
}

func quote(s string) string {
	return "'" + s + "'"
}

func (m *MockZVA) channel(s string) (*mockChannel, error) {
	c, ok := m.channels[atoi(s)]
	if !ok {
		return nil, fmt.Errorf("mock: no channel %s", s)
	}
	return c, nil
}

func (m *MockZVA) handle(cmd string) (string, error) {
	switch cmd {
	case "*IDN?":
		return MockIDN, nil
	case "*OPC?":
		return "1", nil
	case "*TST?":
		return "0", nil
	case "*CLS", "*RST", "*WAI", "*OPC":
		return "", nil
	case "SYSTem:ERRor?":
		return `0,"No error"`, nil
	case "FORMat:DATA ASCII", "FORMat:DATA REAL,64", "FORMat:BORDer SWAPped", "FORMat:BORDer NORMal":
		return "", nil
	case "INSTrument:NSELect?":
		if m.NoActiveChannel {
			return "", errors.Wrap(visa.ErrTimeout, "INSTrument:NSELect?")
		}
		return strconv.Itoa(m.active), nil
	case "CONFigure:CHANnel:CATalog?":
		ids := make([]int, 0, len(m.channels))
		for id := range m.channels {
			ids = append(ids, id)
		}
		sort.Ints(ids)
		fields := make([]string, 0, 2*len(ids))
		for _, id := range ids {
			fields = append(fields, strconv.Itoa(id), m.channels[id].name)
		}
		return quote(strings.Join(fields, ",")), nil
	}
	if sm := reSelectChannel.FindStringSubmatch(cmd); sm != nil {
		if _, err := m.channel(sm[1]); err != nil {
			return "", err
		}
		m.active = atoi(sm[1])
		return "", nil
	}
	if sm := reSense.FindStringSubmatch(cmd); sm != nil {
		return m.sense(sm)
	}
	if sm := reCalc.FindStringSubmatch(cmd); sm != nil {
		return m.calc(sm)
	}
	if sm := reTraceCatalog.FindStringSubmatch(cmd); sm != nil {
		c, err := m.channel(sm[1])
		if err != nil {
			return "", err
		}
		fields := make([]string, 0, 2*len(c.traces))
		for _, t := range c.traces {
			fields = append(fields, strconv.Itoa(t.number), t.name)
		}
		return quote(strings.Join(fields, ",")), nil
	}
	if sm := reInit.FindStringSubmatch(cmd); sm != nil {
		if _, err := m.channel(sm[1]); err != nil {
			return "", err
		}
		if strings.HasPrefix(sm[2], "IMMediate") {
			return "1", nil
		}
		return "", nil
	}
	return "", fmt.Errorf("mock: unrecognized command %q", cmd)
}

func (m *MockZVA) sense(sm []string) (string, error) {
	c, err := m.channel(sm[1])
	if err != nil {
		return "", err
	}
	query := sm[3] == "?"
	switch sm[2] {
	case "SWEep:TYPE":
		if !query {
			c.log = strings.HasPrefix(strings.ToUpper(sm[4]), "LOG")
			return "", nil
		}
		if c.log {
			return "LOG", nil
		}
		return "LIN", nil
	case "SWEep:POINts":
		if !query {
			n, err := strconv.Atoi(sm[4])
			if err != nil {
				return "", err
			}
			c.points = n
			return "", nil
		}
		return strconv.Itoa(c.points), nil
	}
	target := &c.start
	if sm[2] == "FREQuency:STOP" {
		target = &c.stop
	}
	if !query {
		f, err := strconv.ParseFloat(sm[4], 64)
		if err != nil {
			return "", err
		}
		*target = f
		return "", nil
	}
	return strconv.FormatFloat(*target, 'E', -1, 64), nil
}

func (m *MockZVA) calc(sm []string) (string, error) {
	c, err := m.channel(sm[1])
	if err != nil {
		return "", err
	}
	op := sm[2]
	switch {
	case op == "CATalog?":
		fields := make([]string, 0, 2*len(c.traces))
		for _, t := range c.traces {
			fields = append(fields, t.name, t.param)
		}
		return quote(strings.Join(fields, ",")), nil
	case op == "SELect?":
		return quote(c.selected), nil
	case strings.HasPrefix(op, "SELect '"):
		if c.trace(sm[3]) == nil {
			return "", fmt.Errorf("mock: no trace %q on channel %s", sm[3], sm[1])
		}
		c.selected = sm[3]
		return "", nil
	case strings.HasPrefix(op, "MNUMber"):
		n := atoi(sm[4])
		for _, t := range c.traces {
			if t.number == n {
				c.selected = t.name
				return "", nil
			}
		}
		return "", fmt.Errorf("mock: no measurement number %d on channel %s", n, sm[1])
	case strings.HasPrefix(op, "SDEFine"):
		if c.trace(sm[5]) != nil {
			return "", fmt.Errorf("mock: trace %q already exists", sm[5])
		}
		return "", m.addTrace(atoi(sm[1]), sm[5], sm[6])
	case strings.HasPrefix(op, "DELete"):
		for i, t := range c.traces {
			if t.name == sm[7] {
				c.traces = append(c.traces[:i], c.traces[i+1:]...)
				if c.selected == t.name {
					c.selected = ""
				}
				return "", nil
			}
		}
		return "", fmt.Errorf("mock: no trace %q on channel %s", sm[7], sm[1])
	}
	return "", fmt.Errorf("mock: unrecognized command %q", sm[0])
}

var reSParam = regexp.MustCompile(`^S(\d)(\d)$`)

func (m *MockZVA) sdata(ch int) ([]float64, error) {
	c, ok := m.channels[ch]
	if !ok {
		return nil, fmt.Errorf("mock: no channel %d", ch)
	}
	t := c.trace(c.selected)
	if t == nil {
		return nil, fmt.Errorf("mock: no trace selected on channel %d", ch)
	}
	re := float64(t.number)
	if sm := reSParam.FindStringSubmatch(t.param); sm != nil {
		re = float64(10*atoi(sm[1]) + atoi(sm[2]))
	}
	out := make([]float64, 2*c.points)
	for k := 0; k < c.points; k++ {
		out[2*k] = re
		out[2*k+1] = float64(k)
	}
	return out, nil
}
