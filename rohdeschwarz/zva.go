// Package rohdeschwarz provides control of Rohde & Schwarz ZVA vector network
// analyzers over SCPI.
package rohdeschwarz

import (
	"io"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/nasa-jpl/golaborate-vna/scpi"
	"github.com/nasa-jpl/golaborate-vna/visa"
	"github.com/nasa-jpl/golaborate-vna/vna"
)

const (
	// NPorts is the number of test ports on a ZVA
	NPorts = 4

	// NChannels is the number of channels a ZVA can hold
	NChannels = 32

	// DefaultTimeout is the I/O timeout used when none is configured
	DefaultTimeout = 2 * time.Second

	// DefaultSweepTimeout bounds a single triggered sweep
	DefaultSweepTimeout = time.Minute

	networkUnit = "GHz"
)

var _ vna.Analyzer = (*ZVA)(nil)

// valuesFormatter is a transport that can switch how it decodes numeric
// replies, visa.Session is one
type valuesFormatter interface {
	UseASCII(sep string)
	UseBinary(datatype byte, bigEndian bool)
}

// ZVA is an R&S ZVA network analyzer.  Its methods hold the lock for the
// whole of an operation, so they may be called from several goroutines.  The
// methods of the embedded Instrument other than IDN and Raw do not lock.
type ZVA struct {
	sync.Mutex
	scpi.Instrument

	Dialect vna.Dialect

	NPorts    int
	NChannels int

	// SweepTimeout replaces the I/O timeout while waiting on a sweep
	SweepTimeout time.Duration

	binary bool
}

// NewZVA opens the analyzer at address, which is a full VISA resource string
// or a bare address completed by cfg.Interface.  A zero cfg.Timeout means
// DefaultTimeout.  Transfers start in ASCII.
func NewZVA(address string, cfg visa.Config) (*ZVA, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	sess, err := visa.Open(address, cfg)
	if err != nil {
		return nil, err
	}
	z, err := NewZVAWithTransport(sess)
	if err != nil {
		sess.Close()
		return nil, err
	}
	return z, nil
}

// NewZVAWithTransport wraps an already open transport and selects ASCII
// transfers
func NewZVAWithTransport(t scpi.TimeoutTransport) (*ZVA, error) {
	z := &ZVA{
		Instrument:   scpi.Instrument{Transport: t},
		Dialect:      ZVADialect{},
		NPorts:       NPorts,
		NChannels:    NChannels,
		SweepTimeout: DefaultSweepTimeout,
	}
	if err := z.UseASCII(); err != nil {
		return nil, err
	}
	return z, nil
}

func (z *ZVA) logger() *log.Logger {
	if z.Logger != nil {
		return z.Logger
	}
	return log.Default()
}

// Close releases the transport
func (z *ZVA) Close() error {
	z.Lock()
	defer z.Unlock()
	if c, ok := z.Transport.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// IDN returns the identity string of the analyzer
func (z *ZVA) IDN() (string, error) {
	z.Lock()
	defer z.Unlock()
	return z.Instrument.IDN()
}

// Raw sends a command and returns the reply if it was a query
func (z *ZVA) Raw(str string) (string, error) {
	z.Lock()
	defer z.Unlock()
	return z.Instrument.Raw(str)
}

// UseBinary switches data transfers to little endian float64, which is much
// faster for long sweeps
func (z *ZVA) UseBinary() error {
	z.Lock()
	defer z.Unlock()
	if err := z.Write(z.Dialect.SetByteOrder(true)); err != nil {
		return err
	}
	if err := z.Write(z.Dialect.SetDataFormat(true)); err != nil {
		return err
	}
	if vf, ok := z.Transport.(valuesFormatter); ok {
		vf.UseBinary('d', false)
	}
	z.binary = true
	return nil
}

// UseASCII switches data transfers to comma separated text
func (z *ZVA) UseASCII() error {
	z.Lock()
	defer z.Unlock()
	if err := z.Write(z.Dialect.SetDataFormat(false)); err != nil {
		return err
	}
	if vf, ok := z.Transport.(valuesFormatter); ok {
		vf.UseASCII(",")
	}
	z.binary = false
	return nil
}

// Binary reports if binary transfers are in use
func (z *ZVA) Binary() bool {
	z.Lock()
	defer z.Unlock()
	return z.binary
}

// Echo reports if SCPI traffic is being logged
func (z *ZVA) Echo() bool {
	z.Lock()
	defer z.Unlock()
	return z.Instrument.Echo
}

// SetEcho turns logging of SCPI traffic on or off
func (z *ZVA) SetEcho(on bool) {
	z.Lock()
	defer z.Unlock()
	z.Instrument.Echo = on
}

// ActiveChannel returns the active channel.  The query runs with a short
// timeout since the analyzer may not answer when no channel is active, in
// which case channel 1 is assumed.
func (z *ZVA) ActiveChannel() int {
	z.Lock()
	defer z.Unlock()
	return z.activeChannel()
}

func (z *ZVA) activeChannel() int {
	old, err := z.Timeout()
	if err == nil {
		if err = z.SetTimeout(z.Dialect.ProbeTimeout()); err == nil {
			defer z.SetTimeout(old)
		}
	}
	ch, err := z.ReadInt(z.Dialect.QueryActiveChannel())
	if err != nil {
		z.logger().Printf("no channel active, using 1: %v", err)
		return 1
	}
	return ch
}

// SetActiveChannel makes ch the active channel.  If the analyzer has no
// channel ch, nothing is sent and the request is only logged.
func (z *ZVA) SetActiveChannel(ch int) error {
	z.Lock()
	defer z.Unlock()
	return z.setActiveChannel(ch)
}

func (z *ZVA) setActiveChannel(ch int) error {
	chans, err := z.channels()
	if err != nil {
		return err
	}
	if !vna.HasChannel(chans, ch) {
		z.logger().Printf("channel %d not in list of channels %v, create the channel first", ch, chans)
		return nil
	}
	return z.Write(z.Dialect.SetActiveChannel(ch))
}

// Channels lists the channels on the analyzer
func (z *ZVA) Channels() ([]vna.Channel, error) {
	z.Lock()
	defer z.Unlock()
	return z.channels()
}

func (z *ZVA) channels() ([]vna.Channel, error) {
	resp, err := z.Query(z.Dialect.QueryChannelCatalog())
	if err != nil {
		return nil, err
	}
	return vna.ParseChannelCatalog(resp)
}

func (z *ZVA) channel(ch int) int {
	if ch == 0 {
		return z.activeChannel()
	}
	return ch
}

// Frequency returns the frequency axis of channel ch, the active channel if
// ch is zero.  The axis is computed from the sweep settings instead of
// transferred.
func (z *ZVA) Frequency(ch int, unit string) (vna.Frequency, error) {
	z.Lock()
	defer z.Unlock()
	return z.frequency(ch, unit)
}

func (z *ZVA) frequency(ch int, unit string) (vna.Frequency, error) {
	if _, err := vna.NormalizeUnit(unit); err != nil {
		return vna.Frequency{}, err
	}
	ch = z.channel(ch)
	typ, err := z.ReadString(z.Dialect.QuerySweepType(ch))
	if err != nil {
		return vna.Frequency{}, err
	}
	start, err := z.ReadFloat(z.Dialect.QueryStartFrequency(ch))
	if err != nil {
		return vna.Frequency{}, err
	}
	stop, err := z.ReadFloat(z.Dialect.QueryStopFrequency(ch))
	if err != nil {
		return vna.Frequency{}, err
	}
	n, err := z.ReadInt(z.Dialect.QuerySweepPoints(ch))
	if err != nil {
		return vna.Frequency{}, err
	}
	if strings.Contains(strings.ToUpper(typ), "LOG") {
		return vna.NewLogFrequency(start, stop, n, unit)
	}
	return vna.NewLinearFrequency(start, stop, n, unit)
}

// SetFrequencySweep sets the start, stop, and number of points of channel ch.
// start and stop are in unit.  The three settings are written separately; if
// one fails the channel is left partly updated.
func (z *ZVA) SetFrequencySweep(ch int, start, stop float64, unit string, npoints int) error {
	start, err := vna.ToHz(start, unit)
	if err != nil {
		return err
	}
	stop, err = vna.ToHz(stop, unit)
	if err != nil {
		return err
	}
	z.Lock()
	defer z.Unlock()
	ch = z.channel(ch)
	if err = z.Write(z.Dialect.SetStartFrequency(ch, start)); err != nil {
		return err
	}
	if err = z.Write(z.Dialect.SetStopFrequency(ch, stop)); err != nil {
		return err
	}
	return z.Write(z.Dialect.SetSweepPoints(ch, npoints))
}

// MeasList returns the (name, parameter) pairs of the measurements on
// channel ch.  It is nil when there are none.
func (z *ZVA) MeasList(ch int) ([]vna.Pair, error) {
	z.Lock()
	defer z.Unlock()
	return z.measList(ch)
}

func (z *ZVA) measList(ch int) ([]vna.Pair, error) {
	ch = z.channel(ch)
	resp, err := z.Query(z.Dialect.QueryParameterCatalog(ch))
	if err != nil {
		return nil, err
	}
	return vna.ParsePairs(resp)
}

// ListTraces lists every trace on every channel
func (z *ZVA) ListTraces() ([]vna.Trace, error) {
	z.Lock()
	defer z.Unlock()
	chans, err := z.channels()
	if err != nil {
		return nil, err
	}
	var out []vna.Trace
	for _, c := range chans {
		pairs, err := z.measList(c.ID)
		if err != nil {
			return nil, err
		}
		if pairs == nil {
			continue
		}
		resp, err := z.Query(z.Dialect.QueryTraceCatalog(c.ID))
		if err != nil {
			return nil, err
		}
		numbered, err := vna.ParseNumberedCatalog(resp)
		if err != nil {
			return nil, err
		}
		for _, nn := range numbered {
			param := nn.Name
			for _, p := range pairs {
				if p.Name == nn.Name {
					param = p.Parameter
					break
				}
			}
			out = append(out, vna.NewTrace(nn.Name, param, c.ID, nn.Number))
		}
	}
	return out, nil
}

// readSelected reads the selected trace of ch
func (z *ZVA) readSelected(ch int) ([]complex128, error) {
	vals, err := z.QueryValues(z.Dialect.QueryData(ch, "SDATA"))
	if err != nil {
		return nil, err
	}
	return vna.Interleaved(vals)
}

// readTrace selects the trace called name on ch and reads it
func (z *ZVA) readTrace(ch int, name string) ([]complex128, error) {
	if err := z.Write(z.Dialect.SelectParameter(ch, name)); err != nil {
		return nil, err
	}
	return z.readSelected(ch)
}

func onePort(name string, freq vna.Frequency, s []complex128) (*vna.Network, error) {
	ntwk := vna.NewNetwork(name, freq, 1)
	if err := ntwk.SetTrace(0, 0, s); err != nil {
		return nil, errors.Wrapf(err, "trace %s", name)
	}
	return ntwk, nil
}

// ActiveTraceNetwork returns the selected trace of ch as a 1-port network.
// An empty name means the trace's own name.
func (z *ZVA) ActiveTraceNetwork(ch int, name, unit string) (*vna.Network, error) {
	z.Lock()
	defer z.Unlock()
	ch = z.channel(ch)
	if name == "" {
		sel, err := z.ReadString(z.Dialect.QuerySelectedParameter(ch))
		if err != nil {
			return nil, err
		}
		name = scpi.Unquote(sel)
	}
	freq, err := z.frequency(ch, unit)
	if err != nil {
		return nil, err
	}
	s, err := z.readSelected(ch)
	if err != nil {
		return nil, err
	}
	return onePort(name, freq, s)
}

// Measurement returns the trace called name on channel ch as a 1-port network
func (z *ZVA) Measurement(ch int, name, unit string) (*vna.Network, error) {
	z.Lock()
	defer z.Unlock()
	ch = z.channel(ch)
	freq, err := z.frequency(ch, unit)
	if err != nil {
		return nil, err
	}
	s, err := z.readTrace(ch, name)
	if err != nil {
		return nil, err
	}
	return onePort(name, freq, s)
}

// SNPNetwork assembles an N-port network from the S-parameter traces on a
// channel.  S[point][i][j] holds S{ports[i]}{ports[j]}, so ports {1,3} give a
// dense 2-port network.  Every required trace must already exist; the ports
// are checked before anything is sent and the trace catalog before anything
// is read.
func (z *ZVA) SNPNetwork(ports []int, opts vna.SNPOptions) (*vna.Network, error) {
	if err := vna.ValidatePorts(ports, z.NPorts); err != nil {
		return nil, err
	}
	unit := opts.Unit
	if unit == "" {
		unit = networkUnit
	}
	if _, err := vna.NormalizeUnit(unit); err != nil {
		return nil, err
	}
	z.Lock()
	defer z.Unlock()
	ch := z.channel(opts.Channel)
	pairs, err := z.measList(ch)
	if err != nil {
		return nil, err
	}
	n := len(ports)
	names := make([][]string, n)
	for i, dest := range ports {
		names[i] = make([]string, n)
		for j, src := range ports {
			key := vna.SKey(dest, src)
			name, ok := vna.FindParameter(pairs, key)
			if !ok {
				return nil, &vna.MissingTraceError{Key: key, Channel: ch}
			}
			names[i][j] = name
		}
	}
	if opts.Sweep {
		if err = z.sweep(ch); err != nil {
			return nil, err
		}
	}
	freq, err := z.frequency(ch, unit)
	if err != nil {
		return nil, err
	}
	name := opts.Name
	if name == "" {
		name = vna.DefaultNetworkName(ports)
	}
	ntwk := vna.NewNetwork(name, freq, n)
	ntwk.Ports = append([]int(nil), ports...)
	for j := range ports {
		for i := range ports {
			s, err := z.readTrace(ch, names[i][j])
			if err != nil {
				return nil, err
			}
			if err = ntwk.SetTrace(i, j, s); err != nil {
				return nil, errors.Wrapf(err, "%s", vna.SKey(ports[i], ports[j]))
			}
		}
	}
	return ntwk, nil
}

// maxTraceIndex is the larger of the number of measurements and the highest
// numeric suffix found on their names
func maxTraceIndex(meas []vna.Pair) int {
	top := len(meas)
	for _, m := range meas {
		name := m.Name
		if len(name) < 2 {
			continue
		}
		num, err := strconv.Atoi(strings.Replace(name[len(name)-2:], "_", "", -1))
		if err == nil && num > top {
			top = num
		}
	}
	return top
}

// SwitchTerms measures the forward and reverse switch terms between the two
// ports on channel ch.  Two temporary measurements are created, swept, read,
// and deleted.  Every one of those steps is attempted even if an earlier one
// failed and the first error is returned; a failure can leave the temporary
// measurements behind on the analyzer.
func (z *ZVA) SwitchTerms(ports [2]int, ch int) (forward, reverse *vna.Network, err error) {
	if err = vna.ValidatePorts(ports[:], z.NPorts); err != nil {
		return nil, nil, err
	}
	p1, p2 := ports[0], ports[1]
	z.Lock()
	defer z.Unlock()
	ch = z.channel(ch)
	if err = z.setActiveChannel(ch); err != nil {
		return nil, nil, err
	}
	meas, err := z.measList(ch)
	if err != nil {
		return nil, nil, err
	}
	top := maxTraceIndex(meas)
	fwdName := "CH" + strconv.Itoa(ch) + "_FS_P" + strconv.Itoa(p1) + "_" + strconv.Itoa(top+1)
	revName := "CH" + strconv.Itoa(ch) + "_RS_P" + strconv.Itoa(p2) + "_" + strconv.Itoa(top+2)
	fwdParam := "a" + strconv.Itoa(p2) + "b" + strconv.Itoa(p2) + "," + strconv.Itoa(p1)
	revParam := "a" + strconv.Itoa(p1) + "b" + strconv.Itoa(p1) + "," + strconv.Itoa(p2)

	var first error
	keep := func(e error) {
		if first == nil && e != nil {
			first = e
		}
	}
	keep(z.Write(z.Dialect.CreateMeasurement(ch, fwdName, fwdParam)))
	keep(z.Write(z.Dialect.CreateMeasurement(ch, revName, revParam)))
	keep(z.sweep(ch))
	freq, ferr := z.frequency(ch, networkUnit)
	keep(ferr)
	fwd, ferr := z.readTrace(ch, fwdName)
	keep(ferr)
	rev, rerr := z.readTrace(ch, revName)
	keep(rerr)
	keep(z.Write(z.Dialect.DeleteMeasurement(ch, fwdName)))
	keep(z.Write(z.Dialect.DeleteMeasurement(ch, revName)))
	if first != nil {
		return nil, nil, first
	}

	forward, err = onePort("forward switch terms", freq, fwd)
	if err != nil {
		return nil, nil, err
	}
	reverse, err = onePort("reverse switch terms", freq, rev)
	if err != nil {
		return nil, nil, err
	}
	return forward, reverse, nil
}

// Traces reads the given traces as 1-port networks, in order.  The frequency
// axis is read once for each channel involved.
func (z *ZVA) Traces(traces []vna.Trace, opts vna.TracesOptions) ([]*vna.Network, error) {
	unit := opts.Unit
	if unit == "" {
		unit = networkUnit
	}
	prefix := opts.NamePrefix
	if prefix != "" {
		prefix += " - "
	}
	var chans []int
	seen := map[int]bool{}
	for _, t := range traces {
		if !seen[t.Channel] {
			seen[t.Channel] = true
			chans = append(chans, t.Channel)
		}
	}
	z.Lock()
	defer z.Unlock()
	if opts.Sweep && len(chans) > 0 {
		if err := z.sweep(chans...); err != nil {
			return nil, err
		}
	}
	freqs := make(map[int]vna.Frequency, len(chans))
	for _, ch := range chans {
		f, err := z.frequency(ch, unit)
		if err != nil {
			return nil, err
		}
		freqs[ch] = f
	}
	out := make([]*vna.Network, 0, len(traces))
	for _, t := range traces {
		if err := z.Write(z.Dialect.SelectMeasurementNumber(t.Channel, t.MeasurementNumber)); err != nil {
			return nil, err
		}
		s, err := z.readSelected(t.Channel)
		if err != nil {
			return nil, err
		}
		param := t.Parameter
		if param == "" {
			param = "trace"
		}
		ntwk, err := onePort(prefix+param, freqs[t.Channel], s)
		if err != nil {
			return nil, err
		}
		out = append(out, ntwk)
	}
	return out, nil
}

// CreateMeas creates a measurement called name of param on ch, e.g. S21 or
// a2b2,1
func (z *ZVA) CreateMeas(ch int, name, param string) error {
	z.Lock()
	defer z.Unlock()
	return z.Write(z.Dialect.CreateMeasurement(ch, name, param))
}

// DeleteMeas deletes the measurement called name on ch
func (z *ZVA) DeleteMeas(ch int, name string) error {
	z.Lock()
	defer z.Unlock()
	return z.Write(z.Dialect.DeleteMeasurement(ch, name))
}

// Sweep stops free running sweeps on each channel, the active channel if
// none are given, and triggers one sweep, blocking until it completes
func (z *ZVA) Sweep(channels ...int) error {
	z.Lock()
	defer z.Unlock()
	return z.sweep(channels...)
}

func (z *ZVA) sweep(channels ...int) error {
	if len(channels) == 0 {
		channels = []int{z.activeChannel()}
	}
	if z.SweepTimeout > 0 {
		old, err := z.Timeout()
		if err == nil {
			if err = z.SetTimeout(z.SweepTimeout); err == nil {
				defer z.SetTimeout(old)
			}
		}
	}
	for _, ch := range channels {
		if err := z.Write(z.Dialect.SetContinuous(ch, false)); err != nil {
			return err
		}
		if _, err := z.Query(z.Dialect.Sweep(ch)); err != nil {
			return errors.Wrapf(err, "sweep of channel %d", ch)
		}
	}
	return nil
}
