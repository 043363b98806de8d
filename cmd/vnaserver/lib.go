package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/pkg/errors"

	"github.com/nasa-jpl/golaborate-vna/generichttp"
	"github.com/nasa-jpl/golaborate-vna/generichttp/analyzer"
	"github.com/nasa-jpl/golaborate-vna/generichttp/ascii"
	"github.com/nasa-jpl/golaborate-vna/metrics"
	"github.com/nasa-jpl/golaborate-vna/netrec"
	"github.com/nasa-jpl/golaborate-vna/rohdeschwarz"
	"github.com/nasa-jpl/golaborate-vna/server/middleware/locker"
	"github.com/nasa-jpl/golaborate-vna/visa"
	"github.com/nasa-jpl/golaborate-vna/vna"
)

// Instrument holds the connection parameters of the analyzer
type Instrument struct {
	// Address is a VISA resource string, e.g.
	// TCPIP0::192.168.100.50::5025::SOCKET, or a bare address expanded
	// according to Visa.Interface
	Address string `yaml:"Address" koanf:"Address"`

	// Visa configures the session
	Visa visa.Config `yaml:"Visa" koanf:"Visa"`

	// Binary transfers trace data as 64-bit floats instead of ASCII
	Binary bool `yaml:"Binary" koanf:"Binary"`

	// Handshaking checks SYSTem:ERRor? after every command
	Handshaking bool `yaml:"Handshaking" koanf:"Handshaking"`

	// Echo logs every command and reply
	Echo bool `yaml:"Echo" koanf:"Echo"`

	// SweepTimeout bounds a single triggered sweep
	SweepTimeout time.Duration `yaml:"SweepTimeout" koanf:"SweepTimeout"`
}

// Recorder configures automatic writing of acquired networks
type Recorder struct {
	// Root is the root folder to write to
	Root string `yaml:"Root" koanf:"Root"`

	// Prefix is the filename prefix to use
	Prefix string `yaml:"Prefix" koanf:"Prefix"`

	// Format is touchstone, csv, fits, or json
	Format string `yaml:"Format" koanf:"Format"`

	// Enabled turns the recorder on at startup
	Enabled bool `yaml:"Enabled" koanf:"Enabled"`
}

// Influx configures the influx sink of the recorder
type Influx struct {
	Enabled bool   `yaml:"Enabled" koanf:"Enabled"`
	URL     string `yaml:"URL" koanf:"URL"`
	Token   string `yaml:"Token" koanf:"Token"`
	Org     string `yaml:"Org" koanf:"Org"`
	Bucket  string `yaml:"Bucket" koanf:"Bucket"`
	SkipTLS bool   `yaml:"SkipTLS" koanf:"SkipTLS"`
}

// Config is a struct that holds the initialization parameters of the server
type Config struct {
	// Addr is the address to listen at
	Addr string `yaml:"Addr" koanf:"Addr"`

	// Endpoint is the path the analyzer's routes are served under,
	// e.g. "lab/vna" produces /lab/vna/snp and so on
	Endpoint string `yaml:"Endpoint" koanf:"Endpoint"`

	// Mock swaps the instrument for an in-memory ZVA
	Mock bool `yaml:"Mock" koanf:"Mock"`

	// Metrics serves Prometheus metrics at /metrics
	Metrics bool `yaml:"Metrics" koanf:"Metrics"`

	Instrument Instrument `yaml:"Instrument" koanf:"Instrument"`
	Recorder   Recorder   `yaml:"Recorder" koanf:"Recorder"`
	Influx     Influx     `yaml:"Influx" koanf:"Influx"`
}

// DefaultConfig is the configuration used when no file is present
func DefaultConfig() Config {
	return Config{
		Addr:     ":8000",
		Endpoint: "vna",
		Metrics:  true,
		Instrument: Instrument{
			Address:      "TCPIP0::192.168.100.50::5025::SOCKET",
			Visa:         visa.Config{Timeout: rohdeschwarz.DefaultTimeout},
			SweepTimeout: rohdeschwarz.DefaultSweepTimeout,
		},
		Recorder: Recorder{
			Root:   ".",
			Prefix: "vna",
			Format: "touchstone",
		},
	}
}

// LoadConfig layers the YAML file at path over DefaultConfig in k.  A missing
// file leaves the defaults in place.
func LoadConfig(k *koanf.Koanf, path string) error {
	if err := k.Load(structs.Provider(DefaultConfig(), "koanf"), nil); err != nil {
		return err
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		errtxt := err.Error()
		if !strings.Contains(errtxt, "no such") { // file missing, who cares
			return err
		}
	}
	return nil
}

// OpenAnalyzer connects to the analyzer described by c, or to a mock
func OpenAnalyzer(c Config) (*rohdeschwarz.ZVA, error) {
	var (
		z   *rohdeschwarz.ZVA
		err error
	)
	if c.Mock {
		z, err = rohdeschwarz.NewZVAWithTransport(rohdeschwarz.NewMockZVA())
	} else {
		z, err = rohdeschwarz.NewZVA(c.Instrument.Address, c.Instrument.Visa)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "opening analyzer at %s", c.Instrument.Address)
	}
	z.Handshaking = c.Instrument.Handshaking
	z.SetEcho(c.Instrument.Echo)
	if c.Instrument.SweepTimeout > 0 {
		z.SweepTimeout = c.Instrument.SweepTimeout
	}
	if c.Instrument.Binary {
		if err = z.UseBinary(); err != nil {
			z.Close()
			return nil, err
		}
	}
	return z, nil
}

// NewRecorder builds the network recorder and its influx sink
func NewRecorder(c Config) (*netrec.Recorder, error) {
	rec := netrec.NewRecorder(c.Recorder.Root, c.Recorder.Prefix)
	if c.Recorder.Format != "" {
		rec.Format = strings.ToLower(c.Recorder.Format)
	}
	rec.SetEnabled(c.Recorder.Enabled)
	if c.Influx.Enabled {
		sink, err := netrec.NewInfluxSink(netrec.InfluxConfig{
			URL:     c.Influx.URL,
			Token:   c.Influx.Token,
			Org:     c.Influx.Org,
			Bucket:  c.Influx.Bucket,
			SkipTLS: c.Influx.SkipTLS,
		})
		if err != nil {
			return nil, err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err = sink.EnsureBucket(ctx); err != nil {
			log.Printf("influx bucket %s could not be checked, writes may fail: %v", c.Influx.Bucket, err)
		}
		rec.Sinks = append(rec.Sinks, sink)
	}
	return rec, nil
}

// BuildMux wraps the analyzer in an HTTP interface mounted at c.Endpoint.
// The root also serves /endpoints, a JSON map of mount points to routes,
// and /metrics when c.Metrics is set.
func BuildMux(c Config, z *rohdeschwarz.ZVA, rec *netrec.Recorder) chi.Router {
	root := chi.NewRouter()
	root.Use(middleware.Logger)

	var a vna.Analyzer = z
	if c.Metrics {
		m := metrics.New()
		z.OnCommand = m.OnCommand
		a = metrics.Wrap(z, m)
		root.Handle("/metrics", m.Handler())
	}

	httper := analyzer.NewHTTPAnalyzer(a, rec)
	netrec.NewHTTPWrapper(rec).Inject(httper)
	ascii.InjectRawComm(httper, z)
	lock := locker.New()
	locker.Inject(httper, lock)

	hndlS := generichttp.SubMuxSanitize(c.Endpoint)
	supergraph := map[string][]string{hndlS: httper.RT().Endpoints()}

	r := chi.NewRouter()
	r.Use(lock.Check)
	httper.RT().Bind(r)
	root.Mount(hndlS, r)

	root.Get("/endpoints", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		err := json.NewEncoder(w).Encode(supergraph)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
	return root
}

// ParsePorts parses "1,2" or "1 2" into a port list
func ParsePorts(s string) ([]int, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' })
	ports := make([]int, 0, len(fields))
	for _, f := range fields {
		p, err := strconv.Atoi(f)
		if err != nil {
			return nil, errors.Wrapf(err, "port %q", f)
		}
		ports = append(ports, p)
	}
	return ports, nil
}

// FormatFromExt picks the network format for a filename
func FormatFromExt(fn string) string {
	ext := strings.ToLower(filepath.Ext(fn))
	switch ext {
	case ".csv":
		return "csv"
	case ".fits", ".fit":
		return "fits"
	case ".json":
		return "json"
	default:
		return "touchstone"
	}
}

// WriteNetworkFile writes ntwk to fn in the format its extension implies
func WriteNetworkFile(fn string, ntwk *vna.Network) error {
	f, err := os.Create(fn)
	if err != nil {
		return err
	}
	format := FormatFromExt(fn)
	if format == "json" {
		err = json.NewEncoder(f).Encode(ntwk)
	} else {
		err = ntwk.Encode(f, format)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return err
}
