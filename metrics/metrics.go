// Package metrics exports Prometheus instrumentation for analyzer servers
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nasa-jpl/golaborate-vna/visa"
	"github.com/nasa-jpl/golaborate-vna/vna"
)

// Recorder holds the collectors for one process
type Recorder struct {
	commands     prometheus.Counter
	errors       prometheus.Counter
	timeouts     prometheus.Counter
	acquisitions prometheus.Counter
	failures     prometheus.Counter
	latency      prometheus.Histogram
	points       prometheus.Gauge
}

// New creates a Recorder and registers its collectors with the default
// registerer
func New() *Recorder {
	r := &Recorder{
		commands: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vna_scpi_commands_total",
			Help: "SCPI commands sent to the analyzer.",
		}),
		errors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vna_scpi_errors_total",
			Help: "SCPI exchanges that returned an error.",
		}),
		timeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vna_scpi_timeouts_total",
			Help: "SCPI exchanges that timed out.",
		}),
		acquisitions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vna_acquisitions_total",
			Help: "Networks acquired.",
		}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vna_acquisition_failures_total",
			Help: "Network acquisitions that failed.",
		}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "vna_acquisition_latency_seconds",
			Help:    "Time to acquire a network, including any sweep.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		points: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vna_last_acquisition_points",
			Help: "Number of complex values in the last network acquired.",
		}),
	}
	prometheus.MustRegister(r.commands, r.errors, r.timeouts, r.acquisitions, r.failures, r.latency, r.points)
	return r
}

// OnCommand counts one SCPI exchange, it has the signature of
// scpi.Instrument.OnCommand
func (r *Recorder) OnCommand(cmd string, err error) {
	r.commands.Inc()
	if err != nil {
		r.errors.Inc()
		if errors.Is(err, visa.ErrTimeout) {
			r.timeouts.Inc()
		}
	}
}

// ObserveAcquisition records one acquisition of the given networks
func (r *Recorder) ObserveAcquisition(d time.Duration, err error, ntwks ...*vna.Network) {
	r.latency.Observe(d.Seconds())
	if err != nil {
		r.failures.Inc()
		return
	}
	r.acquisitions.Add(float64(len(ntwks)))
	n := 0
	for _, ntwk := range ntwks {
		if ntwk == nil {
			continue
		}
		np := ntwk.NPorts()
		n += ntwk.NPoints() * np * np
	}
	r.points.Set(float64(n))
}

// Handler serves the default gatherer
func (r *Recorder) Handler() http.Handler {
	return promhttp.Handler()
}

// Analyzer times the acquisitions of the analyzer it wraps
type Analyzer struct {
	vna.Analyzer
	rec *Recorder
}

// Wrap instruments a's acquisitions with r
func Wrap(a vna.Analyzer, r *Recorder) *Analyzer {
	return &Analyzer{Analyzer: a, rec: r}
}

// SNPNetwork implements vna.Analyzer
func (a *Analyzer) SNPNetwork(ports []int, opts vna.SNPOptions) (*vna.Network, error) {
	start := time.Now()
	ntwk, err := a.Analyzer.SNPNetwork(ports, opts)
	a.rec.ObserveAcquisition(time.Since(start), err, ntwk)
	return ntwk, err
}

// Traces implements vna.Analyzer
func (a *Analyzer) Traces(traces []vna.Trace, opts vna.TracesOptions) ([]*vna.Network, error) {
	start := time.Now()
	ntwks, err := a.Analyzer.Traces(traces, opts)
	a.rec.ObserveAcquisition(time.Since(start), err, ntwks...)
	return ntwks, err
}

// SwitchTerms implements vna.Analyzer
func (a *Analyzer) SwitchTerms(ports [2]int, ch int) (*vna.Network, *vna.Network, error) {
	start := time.Now()
	fwd, rev, err := a.Analyzer.SwitchTerms(ports, ch)
	a.rec.ObserveAcquisition(time.Since(start), err, fwd, rev)
	return fwd, rev, err
}
