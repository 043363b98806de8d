package rohdeschwarz

import (
	"bytes"
	"errors"
	"log"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/nasa-jpl/golaborate-vna/vna"
)

func newTestZVA(t *testing.T, m *MockZVA) (*ZVA, *bytes.Buffer) {
	t.Helper()
	z, err := NewZVAWithTransport(m)
	if err != nil {
		t.Fatal(err)
	}
	buf := &bytes.Buffer{}
	z.Logger = log.New(buf, "", 0)
	m.ResetCommands()
	return z, buf
}

func TestNewZVASelectsASCII(t *testing.T) {
	m := NewMockZVA()
	if _, err := NewZVAWithTransport(m); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"FORMat:DATA ASCII"}, m.Commands()); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestUseBinary(t *testing.T) {
	m := NewMockZVA()
	z, _ := newTestZVA(t, m)
	if err := z.UseBinary(); err != nil {
		t.Fatal(err)
	}
	if !m.Binary() || !z.Binary() {
		t.Error("transport not switched to binary")
	}
	exp := []string{"FORMat:BORDer SWAPped", "FORMat:DATA REAL,64"}
	if diff := cmp.Diff(exp, m.Commands()); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
	if err := z.UseASCII(); err != nil {
		t.Fatal(err)
	}
	if m.Binary() {
		t.Error("transport not switched back to ASCII")
	}
}

func TestEcho(t *testing.T) {
	z, buf := newTestZVA(t, NewMockZVA())
	z.SetEcho(true)
	if !z.Echo() {
		t.Fatal("echo not enabled")
	}
	if _, err := z.IDN(); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "*IDN?") {
		t.Errorf("command not echoed, log was %q", buf.String())
	}
}

func TestActiveChannelFallback(t *testing.T) {
	m := NewMockZVA()
	m.NoActiveChannel = true
	z, buf := newTestZVA(t, m)
	if ch := z.ActiveChannel(); ch != 1 {
		t.Errorf("expected fallback to channel 1, got %d", ch)
	}
	if !strings.Contains(buf.String(), "no channel active") {
		t.Errorf("no warning logged, log was %q", buf.String())
	}
	exp := []time.Duration{500 * time.Millisecond, DefaultTimeout}
	if diff := cmp.Diff(exp, m.Timeouts()); diff != "" {
		t.Errorf("timeout not restored (-want +got):\n%s", diff)
	}
}

func TestActiveChannelRestoresTimeout(t *testing.T) {
	m := NewMockZVA()
	m.AddChannel(2, "Ch2", 1e9, 2e9, 3)
	z, _ := newTestZVA(t, m)
	if err := z.SetActiveChannel(2); err != nil {
		t.Fatal(err)
	}
	if ch := z.ActiveChannel(); ch != 2 {
		t.Errorf("expected channel 2, got %d", ch)
	}
	if m.Timeout() != DefaultTimeout {
		t.Errorf("timeout left at %v", m.Timeout())
	}
}

func TestSetActiveChannelAbsent(t *testing.T) {
	m := NewMockZVA()
	z, buf := newTestZVA(t, m)
	if err := z.SetActiveChannel(3); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"CONFigure:CHANnel:CATalog?"}, m.Commands()); diff != "" {
		t.Errorf("unexpected commands (-want +got):\n%s", diff)
	}
	if !strings.Contains(buf.String(), "channel 3 not in list") {
		t.Errorf("no diagnostic logged, log was %q", buf.String())
	}
	if ch := z.ActiveChannel(); ch != 1 {
		t.Errorf("active channel changed to %d", ch)
	}
}

func TestChannels(t *testing.T) {
	m := NewMockZVA()
	m.AddChannel(2, "Ch2", 1e9, 2e9, 3)
	z, _ := newTestZVA(t, m)
	chans, err := z.Channels()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]vna.Channel{{ID: 1, Name: "Ch1"}, {ID: 2, Name: "Ch2"}}, chans); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestFrequency(t *testing.T) {
	m := NewMockZVA()
	m.AddChannel(2, "Ch2", 1e6, 1e9, 31)
	m.SetLogSweep(2, true)
	z, _ := newTestZVA(t, m)

	f, err := z.Frequency(1, "MHz")
	if err != nil {
		t.Fatal(err)
	}
	if f.Len() != 11 || f.Start() != 1e9 || f.Stop() != 2e9 || f.Unit != "MHz" {
		t.Errorf("linear axis %+v", f)
	}
	if math.Abs(f.Hz[1]-f.Hz[0]-1e8) > 1e-3 {
		t.Errorf("linear step %g", f.Hz[1]-f.Hz[0])
	}

	f, err = z.Frequency(2, "")
	if err != nil {
		t.Fatal(err)
	}
	ratio := f.Hz[1] / f.Hz[0]
	for i := 1; i < f.Len()-1; i++ {
		if math.Abs(f.Hz[i+1]/f.Hz[i]-ratio) > 1e-9 {
			t.Fatalf("log axis ratio varies at %d", i)
		}
	}
}

func TestSetFrequencySweep(t *testing.T) {
	m := NewMockZVA()
	z, _ := newTestZVA(t, m)
	if err := z.SetFrequencySweep(1, 10, 20, "mhz", 101); err != nil {
		t.Fatal(err)
	}
	exp := []string{
		"SENSe1:FREQuency:STARt 10000000",
		"SENSe1:FREQuency:STOP 20000000",
		"SENSe1:SWEep:POINts 101",
	}
	if diff := cmp.Diff(exp, m.Commands()); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
	f, err := z.Frequency(1, "Hz")
	if err != nil {
		t.Fatal(err)
	}
	if f.Len() != 101 || f.Start() != 10e6 || f.Stop() != 20e6 {
		t.Errorf("sweep not applied: %d points %g to %g", f.Len(), f.Start(), f.Stop())
	}

	m.ResetCommands()
	if err = z.SetFrequencySweep(1, 10, 20, "parsecs", 101); !errors.Is(err, vna.ErrUnknownUnit) {
		t.Errorf("expected ErrUnknownUnit, got %v", err)
	}
	if len(m.Commands()) != 0 {
		t.Errorf("commands sent for a bad unit: %v", m.Commands())
	}
}

func TestSNPValidationBeforeIO(t *testing.T) {
	m := NewMockZVA()
	z, _ := newTestZVA(t, m)
	for _, ports := range [][]int{nil, {1, 1}, {0, 1}, {1, 5}, {2, 3, 2}} {
		_, err := z.SNPNetwork(ports, vna.SNPOptions{})
		var perr *vna.PortError
		if !errors.As(err, &perr) {
			t.Errorf("%v: expected a PortError, got %v", ports, err)
		}
	}
	if len(m.Commands()) != 0 {
		t.Errorf("commands sent for invalid ports: %v", m.Commands())
	}
}

func TestSNPMissingTrace(t *testing.T) {
	m := NewMockZVA()
	m.AddChannel(1, "Ch1", 1e9, 2e9, 11)
	m.AddTrace(1, "Trc1", "S11")
	m.AddTrace(1, "Trc2", "S21")
	m.AddTrace(1, "Trc4", "S22")
	z, _ := newTestZVA(t, m)
	_, err := z.SNPNetwork([]int{1, 2}, vna.SNPOptions{Channel: 1})
	var merr *vna.MissingTraceError
	if !errors.As(err, &merr) || merr.Key != "S12" {
		t.Fatalf("expected a missing S12 trace, got %v", err)
	}
	if diff := cmp.Diff([]string{"CALCulate1:PARameter:CATalog?"}, m.Commands()); diff != "" {
		t.Errorf("queries after the catalog check (-want +got):\n%s", diff)
	}
}

func TestSNPNetworkOrientation(t *testing.T) {
	m := NewMockZVA()
	m.AddTrace(1, "Trc5", "S13")
	m.AddTrace(1, "Trc6", "S31")
	m.AddTrace(1, "Trc7", "S33")
	z, _ := newTestZVA(t, m)
	ports := []int{1, 3}
	ntwk, err := z.SNPNetwork(ports, vna.SNPOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if ntwk.Name != "2-Port Network (1,3)" {
		t.Errorf("name %q", ntwk.Name)
	}
	if diff := cmp.Diff(ports, ntwk.Ports); diff != "" {
		t.Errorf("ports (-want +got):\n%s", diff)
	}
	if ntwk.NPorts() != 2 || ntwk.NPoints() != 11 || ntwk.Frequency.Unit != "GHz" {
		t.Fatalf("shape %d ports, %d points, unit %s", ntwk.NPorts(), ntwk.NPoints(), ntwk.Frequency.Unit)
	}
	for k := range ntwk.S {
		for i, dest := range ports {
			for j, src := range ports {
				exp := complex(float64(10*dest+src), float64(k))
				if got := ntwk.S[k][i][j]; got != exp {
					t.Fatalf("S[%d][%d][%d] = %v, expected %v", k, i, j, got, exp)
				}
			}
		}
	}
}

func TestSNPNetworkConcurrent(t *testing.T) {
	m := NewMockZVA()
	m.Latency = time.Millisecond
	z, _ := newTestZVA(t, m)
	var wg sync.WaitGroup
	for _, port := range []int{1, 2} {
		wg.Add(1)
		go func(port int) {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				ntwk, err := z.SNPNetwork([]int{port}, vna.SNPOptions{Channel: 1})
				if err != nil {
					t.Error(err)
					return
				}
				exp := complex(float64(11*port), 0)
				if got := ntwk.S[0][0][0]; got != exp {
					t.Errorf("S%d%d read %v, expected %v", port, port, got, exp)
					return
				}
			}
		}(port)
	}
	wg.Wait()
}

func TestProbeDuringSweepKeepsTimeouts(t *testing.T) {
	m := NewMockZVA()
	m.Latency = time.Millisecond
	z, _ := newTestZVA(t, m)
	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		if err := z.Sweep(1); err != nil {
			t.Error(err)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 5; i++ {
			z.ActiveChannel()
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 5; i++ {
			if _, err := z.Raw("*IDN?"); err != nil {
				t.Error(err)
			}
		}
	}()
	wg.Wait()
	// every change of timeout is undone before the next one
	tos := m.Timeouts()
	if len(tos) != 12 {
		t.Fatalf("expected 12 timeout changes, got %v", tos)
	}
	for i := 1; i < len(tos); i += 2 {
		if tos[i] != DefaultTimeout {
			t.Fatalf("timeouts interleaved: %v", tos)
		}
	}
	if m.Timeout() != DefaultTimeout {
		t.Errorf("timeout left at %v", m.Timeout())
	}
}

func TestSNPNetworkSweep(t *testing.T) {
	m := NewMockZVA()
	z, _ := newTestZVA(t, m)
	ntwk, err := z.SNPNetwork([]int{2, 1}, vna.SNPOptions{Channel: 1, Name: "dut", Unit: "MHz", Sweep: true})
	if err != nil {
		t.Fatal(err)
	}
	if ntwk.Name != "dut" || ntwk.Frequency.Unit != "MHz" {
		t.Errorf("options ignored: %q %q", ntwk.Name, ntwk.Frequency.Unit)
	}
	// ports {2,1} put S22 first
	if ntwk.S[0][0][0] != complex(22, 0) || ntwk.S[0][0][1] != complex(21, 0) {
		t.Errorf("port order not followed: %v", ntwk.S[0])
	}
	cmds := m.Commands()
	if cmds[1] != "INITiate1:CONTinuous OFF" || cmds[2] != "INITiate1:IMMediate;*OPC?" {
		t.Errorf("sweep not triggered after the catalog check: %v", cmds[:3])
	}
	if diff := cmp.Diff([]time.Duration{DefaultSweepTimeout, DefaultTimeout}, m.Timeouts()); diff != "" {
		t.Errorf("sweep timeout not applied and restored (-want +got):\n%s", diff)
	}
}

func TestMockAddTraceNeedsChannel(t *testing.T) {
	m := NewMockZVA()
	if err := m.AddTrace(7, "Trc9", "S11"); err == nil {
		t.Error("trace added to a channel that does not exist")
	}
	if names := m.TraceNames(1); len(names) != 4 {
		t.Errorf("channel 1 changed: %v", names)
	}
}

func TestListTraces(t *testing.T) {
	m := NewMockZVA()
	m.AddChannel(2, "Ch2", 1e9, 2e9, 5)
	z, _ := newTestZVA(t, m)
	traces, err := z.ListTraces()
	if err != nil {
		t.Fatal(err)
	}
	exp := []vna.Trace{
		vna.NewTrace("Trc1", "S11", 1, 1),
		vna.NewTrace("Trc2", "S21", 1, 2),
		vna.NewTrace("Trc3", "S12", 1, 3),
		vna.NewTrace("Trc4", "S22", 1, 4),
	}
	if diff := cmp.Diff(exp, traces); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
	if traces[1].Label != "S21 - Chan1,Meas2" {
		t.Errorf("label %q", traces[1].Label)
	}
}

func TestMeasListEmpty(t *testing.T) {
	m := NewMockZVA()
	m.AddChannel(2, "Ch2", 1e9, 2e9, 5)
	z, _ := newTestZVA(t, m)
	pairs, err := z.MeasList(2)
	if err != nil || pairs != nil {
		t.Errorf("expected no measurements, got %v, %v", pairs, err)
	}
}

func TestTraces(t *testing.T) {
	m := NewMockZVA()
	z, _ := newTestZVA(t, m)
	traces := []vna.Trace{vna.NewTrace("Trc2", "S21", 1, 2), vna.NewTrace("Trc4", "", 1, 4)}
	ntwks, err := z.Traces(traces, vna.TracesOptions{NamePrefix: "dut", Sweep: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(ntwks) != 2 || ntwks[0].Name != "dut - S21" || ntwks[1].Name != "dut - trace" {
		t.Fatalf("unexpected networks %v", ntwks)
	}
	if got := ntwks[0].Trace(0, 0)[3]; got != complex(21, 3) {
		t.Errorf("S21 point 3 = %v", got)
	}
	if got := ntwks[1].Trace(0, 0)[0]; got != complex(22, 0) {
		t.Errorf("S22 point 0 = %v", got)
	}
	// one sweep and one frequency read for the single channel
	n := 0
	for _, c := range m.Commands() {
		if c == "SENSe1:SWEep:TYPE?" || c == "INITiate1:IMMediate;*OPC?" {
			n++
		}
	}
	if n != 2 {
		t.Errorf("expected one sweep and one axis read, commands were %v", m.Commands())
	}
}

func TestActiveTraceNetwork(t *testing.T) {
	m := NewMockZVA()
	z, _ := newTestZVA(t, m)
	ntwk, err := z.ActiveTraceNetwork(1, "", "GHz")
	if err != nil {
		t.Fatal(err)
	}
	if ntwk.Name != "Trc1" || ntwk.S[2][0][0] != complex(11, 2) {
		t.Errorf("got %q with S[2] = %v", ntwk.Name, ntwk.S[2][0][0])
	}
	ntwk, err = z.Measurement(1, "Trc3", "GHz")
	if err != nil {
		t.Fatal(err)
	}
	if ntwk.S[0][0][0] != complex(12, 0) {
		t.Errorf("Trc3 read as %v", ntwk.S[0][0][0])
	}
}

func TestMaxTraceIndex(t *testing.T) {
	meas := []vna.Pair{{Name: "Trc1"}, {Name: "CH1_FS_P1_12"}, {Name: "X_9"}}
	if got := maxTraceIndex(meas); got != 12 {
		t.Errorf("expected 12, got %d", got)
	}
	if got := maxTraceIndex([]vna.Pair{{Name: "Trc1"}, {Name: "Trc2"}}); got != 2 {
		t.Errorf("expected the count, 2, got %d", got)
	}
}

var switchTermCommands = []string{
	"CONFigure:CHANnel:CATalog?",
	"INSTrument:NSELect 1",
	"CALCulate1:PARameter:CATalog?",
	"CALCulate1:PARameter:SDEFine 'CH1_FS_P1_5','a2b2,1'",
	"CALCulate1:PARameter:SDEFine 'CH1_RS_P2_6','a1b1,2'",
	"INITiate1:CONTinuous OFF",
	"INITiate1:IMMediate;*OPC?",
	"SENSe1:SWEep:TYPE?",
	"SENSe1:FREQuency:STARt?",
	"SENSe1:FREQuency:STOP?",
	"SENSe1:SWEep:POINts?",
	"CALCulate1:PARameter:SELect 'CH1_FS_P1_5'",
	"CALCulate1:DATA? SDATA",
	"CALCulate1:PARameter:SELect 'CH1_RS_P2_6'",
	"CALCulate1:DATA? SDATA",
	"CALCulate1:PARameter:DELete 'CH1_FS_P1_5'",
	"CALCulate1:PARameter:DELete 'CH1_RS_P2_6'",
}

func TestSwitchTerms(t *testing.T) {
	m := NewMockZVA()
	z, _ := newTestZVA(t, m)
	fwd, rev, err := z.SwitchTerms([2]int{1, 2}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(switchTermCommands, m.Commands()); diff != "" {
		t.Errorf("command sequence mismatch (-want +got):\n%s", diff)
	}
	if fwd.Name != "forward switch terms" || rev.Name != "reverse switch terms" {
		t.Errorf("names %q, %q", fwd.Name, rev.Name)
	}
	// the temporary measurements are numbers 5 and 6
	if fwd.S[1][0][0] != complex(5, 1) || rev.S[1][0][0] != complex(6, 1) {
		t.Errorf("forward %v reverse %v", fwd.S[1][0][0], rev.S[1][0][0])
	}
	if diff := cmp.Diff([]string{"Trc1", "Trc2", "Trc3", "Trc4"}, m.TraceNames(1)); diff != "" {
		t.Errorf("temporary traces left behind (-want +got):\n%s", diff)
	}
}

// step classifies a switch term command
func step(cmd string) string {
	switch {
	case strings.Contains(cmd, "SDEFine"):
		return "create"
	case strings.Contains(cmd, "IMMediate"):
		return "sweep"
	case strings.Contains(cmd, "SELect '"):
		return "read"
	case strings.Contains(cmd, "DELete"):
		return "delete"
	}
	return ""
}

func TestSwitchTermsIssuesEveryStepOnFailure(t *testing.T) {
	boom := errors.New("boom")
	for _, failing := range []string{
		"CALCulate1:PARameter:SDEFine 'CH1_FS",
		"INITiate1:IMMediate",
		"CALCulate1:PARameter:SELect 'CH1_RS",
		"CALCulate1:PARameter:DELete 'CH1_FS",
	} {
		m := NewMockZVA()
		z, _ := newTestZVA(t, m)
		m.FailOn(failing, boom)
		_, _, err := z.SwitchTerms([2]int{1, 2}, 1)
		if !errors.Is(err, boom) {
			t.Errorf("%s: expected the injected error, got %v", failing, err)
		}
		var steps []string
		for _, c := range m.Commands() {
			if s := step(c); s != "" {
				steps = append(steps, s)
			}
		}
		exp := []string{"create", "create", "sweep", "read", "read", "delete", "delete"}
		if diff := cmp.Diff(exp, steps); diff != "" {
			t.Errorf("%s: step sequence mismatch (-want +got):\n%s", failing, diff)
		}
	}
}

func TestSwitchTermsRejectsPorts(t *testing.T) {
	m := NewMockZVA()
	z, _ := newTestZVA(t, m)
	var perr *vna.PortError
	if _, _, err := z.SwitchTerms([2]int{2, 2}, 1); !errors.As(err, &perr) {
		t.Errorf("expected a PortError, got %v", err)
	}
	if len(m.Commands()) != 0 {
		t.Errorf("commands sent: %v", m.Commands())
	}
}

func TestZVADialectStrings(t *testing.T) {
	d := ZVADialect{}
	got := []string{
		d.QueryData(2, "SDATA"),
		d.SetStartFrequency(1, 1.5e9),
		d.CreateMeasurement(1, "Trc9", "S21"),
		d.SelectMeasurementNumber(3, 4),
		d.SetContinuous(1, true),
	}
	exp := []string{
		"CALCulate2:DATA? SDATA",
		"SENSe1:FREQuency:STARt 1500000000",
		"CALCulate1:PARameter:SDEFine 'Trc9','S21'",
		"CALCulate3:PARameter:MNUMber:SELect 4",
		"INITiate1:CONTinuous ON",
	}
	if diff := cmp.Diff(exp, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
	if d.ProbeTimeout() != 500*time.Millisecond {
		t.Errorf("probe timeout %v", d.ProbeTimeout())
	}
}
