package netrec

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi"
	"github.com/google/go-cmp/cmp"

	"github.com/nasa-jpl/golaborate-vna/generichttp"
	"github.com/nasa-jpl/golaborate-vna/vna"
)

func fixedClock() time.Time {
	return time.Date(2021, time.March, 4, 12, 0, 0, 0, time.UTC)
}

func network(t *testing.T) *vna.Network {
	t.Helper()
	f, err := vna.NewLinearFrequency(1e9, 2e9, 3, "GHz")
	if err != nil {
		t.Fatal(err)
	}
	n := vna.NewNetwork("dut", f, 2)
	for d := 0; d < 2; d++ {
		for s := 0; s < 2; s++ {
			if err := n.SetTrace(d, s, []complex128{1, complex(0, 1), 0}); err != nil {
				t.Fatal(err)
			}
		}
	}
	return n
}

func newTestRecorder(t *testing.T) *Recorder {
	r := NewRecorder(t.TempDir(), "vna")
	r.now = fixedClock
	return r
}

func TestRecordIncrementsCounter(t *testing.T) {
	r := newTestRecorder(t)
	n := network(t)
	first, err := r.Record(context.Background(), n)
	if err != nil {
		t.Fatal(err)
	}
	second, err := r.Record(context.Background(), n)
	if err != nil {
		t.Fatal(err)
	}
	fldr := filepath.Join(r.Root, "2021-03-04")
	if first != filepath.Join(fldr, "vna000001.s2p") {
		t.Errorf("first file %s", first)
	}
	if second != filepath.Join(fldr, "vna000002.s2p") {
		t.Errorf("second file %s", second)
	}
	b, err := os.ReadFile(second)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(b), "! dut") {
		t.Errorf("touchstone file starts %q", string(b[:10]))
	}
}

func TestIncrSkipsOtherPrefixesAndFormats(t *testing.T) {
	r := newTestRecorder(t)
	fldr := filepath.Join(r.Root, "2021-03-04")
	if err := os.MkdirAll(fldr, 0777); err != nil {
		t.Fatal(err)
	}
	for _, fn := range []string{"vna000007.csv", "vna000003.fits", "other000099.s2p", "vna000050.txt"} {
		if err := os.WriteFile(filepath.Join(fldr, fn), nil, 0666); err != nil {
			t.Fatal(err)
		}
	}
	r.Incr()
	if r.Counter() != 8 {
		t.Errorf("counter %d, expected 8", r.Counter())
	}
}

func TestRecordFormats(t *testing.T) {
	r := newTestRecorder(t)
	n := network(t)
	for _, tc := range []struct{ format, ext, start string }{
		{"csv", ".csv", "frequency (GHz)"},
		{"fits", ".fits", "SIMPLE"},
		{"json", ".json", "{"},
	} {
		r.Format = tc.format
		fn, err := r.Record(context.Background(), n)
		if err != nil {
			t.Fatalf("%s: %v", tc.format, err)
		}
		if filepath.Ext(fn) != tc.ext {
			t.Errorf("%s wrote %s", tc.format, fn)
		}
		b, _ := os.ReadFile(fn)
		if !strings.HasPrefix(string(b), tc.start) {
			t.Errorf("%s file does not begin with %q", tc.format, tc.start)
		}
	}
}

type countingSink struct{ n int }

func (c *countingSink) Record(ctx context.Context, ntwk *vna.Network, at time.Time) error {
	c.n++
	return nil
}

func TestRecordFeedsSinks(t *testing.T) {
	r := newTestRecorder(t)
	s := &countingSink{}
	r.Sinks = append(r.Sinks, s)
	if _, err := r.Record(context.Background(), network(t)); err != nil {
		t.Fatal(err)
	}
	if s.n != 1 {
		t.Errorf("sink saw %d networks", s.n)
	}
}

type table struct{ rt generichttp.RouteTable }

func (t table) RT() generichttp.RouteTable { return t.rt }

func TestHTTPWrapperInject(t *testing.T) {
	rec := newTestRecorder(t)
	h := table{rt: generichttp.RouteTable{}}
	NewHTTPWrapper(rec).Inject(h)
	r := chi.NewRouter()
	h.RT().Bind(r)

	do := func(method, path, body string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(method, path, strings.NewReader(body)))
		return w
	}
	if w := do(http.MethodPost, "/autowrite/prefix", `{"str":"sweep"}`); w.Code != http.StatusOK {
		t.Fatalf("set prefix gave %d", w.Code)
	}
	if w := do(http.MethodGet, "/autowrite/prefix", ""); w.Body.String() != "sweep" {
		t.Errorf("prefix is %q", w.Body.String())
	}
	if w := do(http.MethodPost, "/autowrite/enabled", `{"bool":true}`); w.Code != http.StatusOK || !rec.IsEnabled() {
		t.Errorf("enable gave %d", w.Code)
	}
	if w := do(http.MethodPost, "/autowrite/format", `{"str":"xlsx"}`); w.Code != http.StatusInternalServerError {
		t.Errorf("bad format gave %d", w.Code)
	}
	if w := do(http.MethodPost, "/autowrite/format", `{"str":"CSV"}`); w.Code != http.StatusOK || rec.Format != "csv" {
		t.Errorf("format gave %d, recorder has %q", w.Code, rec.Format)
	}
	root := filepath.Join(t.TempDir(), "elsewhere")
	if w := do(http.MethodPost, "/autowrite/root", `{"str":"`+filepath.ToSlash(root)+`"}`); w.Code != http.StatusOK {
		t.Fatalf("set root gave %d", w.Code)
	}
	if _, err := os.Stat(filepath.Join(root, "2021-03-04")); err != nil {
		t.Errorf("root folder not made: %v", err)
	}
}

func TestPoints(t *testing.T) {
	pts := Points(network(t), fixedClock())
	if len(pts) != 3*2*2 {
		t.Fatalf("got %d points", len(pts))
	}
	var dbs int
	for _, p := range pts {
		if p.Name() != Measurement {
			t.Errorf("measurement %s", p.Name())
		}
		for _, f := range p.FieldList() {
			if f.Key == "db" {
				dbs++
			}
		}
	}
	// the third point of each trace is zero and carries no dB field
	if dbs != 2*2*2 {
		t.Errorf("%d points carried dB", dbs)
	}
}

func TestPointsLabelPorts(t *testing.T) {
	n := network(t)
	n.Ports = []int{1, 3}
	params := map[string]bool{}
	for _, p := range Points(n, fixedClock()) {
		for _, tag := range p.TagList() {
			if tag.Key == "param" {
				params[tag.Value] = true
			}
		}
	}
	exp := map[string]bool{"S11": true, "S13": true, "S31": true, "S33": true}
	if diff := cmp.Diff(exp, params); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestInfluxSinkWrites(t *testing.T) {
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v2/write" {
			http.NotFound(w, r)
			return
		}
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s, err := NewInfluxSink(InfluxConfig{URL: srv.URL, Token: "t", Org: "lab", Bucket: "vna"})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if err := s.Record(context.Background(), network(t), fixedClock()); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(body, "sparam,frequency_hz=1000000000,network=dut,param=S11") {
		t.Errorf("line protocol body was\n%s", body)
	}
}

func TestInfluxSinkNeedsBucket(t *testing.T) {
	if _, err := NewInfluxSink(InfluxConfig{URL: "http://localhost:8086", Org: "lab"}); err != ErrBlankOrgOrBucket {
		t.Errorf("expected ErrBlankOrgOrBucket, got %v", err)
	}
}
