package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	pkgerrors "github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/nasa-jpl/golaborate-vna/visa"
	"github.com/nasa-jpl/golaborate-vna/vna"
)

func useTestRegistry(t *testing.T) {
	origReg := prometheus.DefaultRegisterer
	origGatherer := prometheus.DefaultGatherer
	t.Cleanup(func() {
		prometheus.DefaultRegisterer = origReg
		prometheus.DefaultGatherer = origGatherer
	})
	reg := prometheus.NewRegistry()
	prometheus.DefaultRegisterer = reg
	prometheus.DefaultGatherer = reg
}

func TestOnCommand(t *testing.T) {
	useTestRegistry(t)
	r := New()
	r.OnCommand("*IDN?", nil)
	r.OnCommand("INSTrument:NSELect?", pkgerrors.Wrap(visa.ErrTimeout, "read"))
	r.OnCommand("BOGUS", errors.New("undefined header"))
	if got := testutil.ToFloat64(r.commands); got != 3 {
		t.Fatalf("expected 3 commands, got %f", got)
	}
	if got := testutil.ToFloat64(r.errors); got != 2 {
		t.Fatalf("expected 2 errors, got %f", got)
	}
	if got := testutil.ToFloat64(r.timeouts); got != 1 {
		t.Fatalf("expected 1 timeout, got %f", got)
	}
}

type stubAnalyzer struct {
	vna.Analyzer
	err error
}

func (s stubAnalyzer) SNPNetwork(ports []int, opts vna.SNPOptions) (*vna.Network, error) {
	if s.err != nil {
		return nil, s.err
	}
	f, _ := vna.NewLinearFrequency(1e9, 2e9, 11, "GHz")
	return vna.NewNetwork("stub", f, len(ports)), nil
}

func TestWrapObservesAcquisitions(t *testing.T) {
	useTestRegistry(t)
	r := New()
	a := Wrap(stubAnalyzer{}, r)
	if _, err := a.SNPNetwork([]int{1, 2}, vna.SNPOptions{}); err != nil {
		t.Fatal(err)
	}
	if got := testutil.ToFloat64(r.acquisitions); got != 1 {
		t.Fatalf("expected 1 acquisition, got %f", got)
	}
	if got := testutil.ToFloat64(r.points); got != 44 {
		t.Fatalf("expected 44 values, got %f", got)
	}
	if samples := testutil.CollectAndCount(r.latency); samples != 1 {
		t.Fatalf("expected the latency histogram to be collected once, got %d", samples)
	}

	a = Wrap(stubAnalyzer{err: errors.New("no trace")}, r)
	if _, err := a.SNPNetwork([]int{1, 2}, vna.SNPOptions{}); err == nil {
		t.Fatal("error swallowed")
	}
	if got := testutil.ToFloat64(r.failures); got != 1 {
		t.Fatalf("expected 1 failure, got %f", got)
	}
}

func TestHandler(t *testing.T) {
	useTestRegistry(t)
	r := New()
	r.OnCommand("*RST", nil)
	w := httptest.NewRecorder()
	r.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(w.Body.String(), "vna_scpi_commands_total 1") {
		t.Errorf("counter missing from exposition:\n%s", w.Body.String())
	}
}
