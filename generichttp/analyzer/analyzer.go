// Package analyzer provides an HTTP interface to vector network analyzers
package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"go/types"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/nasa-jpl/golaborate-vna/generichttp"
	"github.com/nasa-jpl/golaborate-vna/netrec"
	"github.com/nasa-jpl/golaborate-vna/visa"
	"github.com/nasa-jpl/golaborate-vna/vna"
)

// Status maps an acquisition error to an HTTP status.  Caller mistakes are
// 400, instrument timeouts 504, and anything else 500.
func Status(err error) int {
	var pe *vna.PortError
	var me *vna.MissingTraceError
	switch {
	case errors.As(err, &pe), errors.As(err, &me), errors.Is(err, vna.ErrUnknownUnit):
		return http.StatusBadRequest
	case errors.Is(err, visa.ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func fail(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), Status(err))
}

// FrequencyRequest is the body of POST /frequency
type FrequencyRequest struct {
	Channel int     `json:"channel"`
	Start   float64 `json:"start"`
	Stop    float64 `json:"stop"`
	Unit    string  `json:"unit"`
	Points  int     `json:"points"`
}

// SNPRequest is the body of POST /snp
type SNPRequest struct {
	Ports []int `json:"ports"`
	vna.SNPOptions
	Format string `json:"format"`
}

// TracesRequest is the body of POST /traces.  No traces means every trace
// on the analyzer.
type TracesRequest struct {
	Traces []vna.Trace `json:"traces"`
	vna.TracesOptions
}

// SwitchTermsRequest is the body of POST /switch-terms
type SwitchTermsRequest struct {
	Ports   [2]int `json:"ports"`
	Channel int    `json:"channel"`
}

// SwitchTermsResponse holds both switch term networks
type SwitchTermsResponse struct {
	Forward *vna.Network `json:"forward"`
	Reverse *vna.Network `json:"reverse"`
}

// HTTPAnalyzer wraps an analyzer in an HTTP route table
type HTTPAnalyzer struct {
	// A is the underlying analyzer
	A vna.Analyzer

	// Recorder, if not nil and enabled, is given every acquired network
	Recorder *netrec.Recorder

	// Logger receives recorder failures, which do not fail the request
	Logger *log.Logger

	// RouteTable maps URLs to functions
	RouteTable generichttp.RouteTable
}

// NewHTTPAnalyzer returns a new HTTP wrapper around an analyzer
func NewHTTPAnalyzer(a vna.Analyzer, rec *netrec.Recorder) HTTPAnalyzer {
	h := HTTPAnalyzer{A: a, Recorder: rec, Logger: log.Default()}
	rt := generichttp.RouteTable{
		generichttp.MethodPath{Method: http.MethodGet, Path: "/idn"}:           generichttp.GetString(a.IDN),
		generichttp.MethodPath{Method: http.MethodGet, Path: "/channel"}:       h.GetChannel,
		generichttp.MethodPath{Method: http.MethodPost, Path: "/channel"}:      generichttp.SetInt(a.SetActiveChannel),
		generichttp.MethodPath{Method: http.MethodGet, Path: "/channels"}:      h.GetChannels,
		generichttp.MethodPath{Method: http.MethodGet, Path: "/frequency"}:     h.GetFrequency,
		generichttp.MethodPath{Method: http.MethodPost, Path: "/frequency"}:    h.SetFrequency,
		generichttp.MethodPath{Method: http.MethodGet, Path: "/traces"}:        h.ListTraces,
		generichttp.MethodPath{Method: http.MethodPost, Path: "/traces"}:       h.Traces,
		generichttp.MethodPath{Method: http.MethodPost, Path: "/snp"}:          h.SNP,
		generichttp.MethodPath{Method: http.MethodPost, Path: "/switch-terms"}: h.SwitchTerms,
		generichttp.MethodPath{Method: http.MethodPost, Path: "/binary"}:       generichttp.SetBool(h.setBinary),
	}
	if b, ok := a.(interface{ Binary() bool }); ok {
		rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/binary"}] = generichttp.GetBool(func() (bool, error) {
			return b.Binary(), nil
		})
	}
	h.RouteTable = rt
	return h
}

// RT safisfies the generichttp.HTTPer interface
func (h HTTPAnalyzer) RT() generichttp.RouteTable {
	return h.RouteTable
}

func (h HTTPAnalyzer) setBinary(on bool) error {
	if on {
		return h.A.UseBinary()
	}
	return h.A.UseASCII()
}

func (h HTTPAnalyzer) record(ctx context.Context, ntwks ...*vna.Network) {
	if h.Recorder == nil || !h.Recorder.IsEnabled() {
		return
	}
	for _, n := range ntwks {
		fn, err := h.Recorder.Record(ctx, n)
		if err != nil {
			h.Logger.Printf("autowrite of %s to %s failed: %v", n.Name, fn, err)
		}
	}
}

// GetChannel returns the active channel; it never fails
func (h HTTPAnalyzer) GetChannel(w http.ResponseWriter, r *http.Request) {
	hp := generichttp.HumanPayload{T: types.Int, Int: h.A.ActiveChannel()}
	hp.EncodeAndRespond(w, r)
}

// GetChannels returns the channel catalog as JSON
func (h HTTPAnalyzer) GetChannels(w http.ResponseWriter, r *http.Request) {
	chans, err := h.A.Channels()
	if err != nil {
		fail(w, err)
		return
	}
	if chans == nil {
		chans = []vna.Channel{}
	}
	generichttp.WriteJSON(w, chans)
}

func queryChannel(r *http.Request) (int, error) {
	s := r.URL.Query().Get("channel")
	if s == "" {
		return 0, nil
	}
	ch, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.Wrapf(err, "channel %q", s)
	}
	return ch, nil
}

// GetFrequency returns the frequency axis of ?channel= in ?unit= as JSON
func (h HTTPAnalyzer) GetFrequency(w http.ResponseWriter, r *http.Request) {
	ch, err := queryChannel(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f, err := h.A.Frequency(ch, r.URL.Query().Get("unit"))
	if err != nil {
		fail(w, err)
		return
	}
	generichttp.WriteJSON(w, f)
}

// SetFrequency configures a linear sweep from a FrequencyRequest
func (h HTTPAnalyzer) SetFrequency(w http.ResponseWriter, r *http.Request) {
	req := FrequencyRequest{}
	err := json.NewDecoder(r.Body).Decode(&req)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	err = h.A.SetFrequencySweep(req.Channel, req.Start, req.Stop, req.Unit, req.Points)
	if err != nil {
		fail(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// ListTraces returns every configured trace as JSON
func (h HTTPAnalyzer) ListTraces(w http.ResponseWriter, r *http.Request) {
	traces, err := h.A.ListTraces()
	if err != nil {
		fail(w, err)
		return
	}
	if traces == nil {
		traces = []vna.Trace{}
	}
	generichttp.WriteJSON(w, traces)
}

// Traces acquires one-port networks for a TracesRequest and returns them as a
// JSON array
func (h HTTPAnalyzer) Traces(w http.ResponseWriter, r *http.Request) {
	req := TracesRequest{}
	err := json.NewDecoder(r.Body).Decode(&req)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if len(req.Traces) == 0 {
		req.Traces, err = h.A.ListTraces()
		if err != nil {
			fail(w, err)
			return
		}
	}
	ntwks, err := h.A.Traces(req.Traces, req.TracesOptions)
	if err != nil {
		fail(w, err)
		return
	}
	h.record(r.Context(), ntwks...)
	generichttp.WriteJSON(w, ntwks)
}

var contentTypes = map[string]string{
	"touchstone": "text/plain; charset=utf-8",
	"snp":        "text/plain; charset=utf-8",
	"":           "text/plain; charset=utf-8",
	"csv":        "text/csv",
	"fits":       "application/fits",
}

// WriteNetwork sends a network in format, which is json or one of the
// formats vna.Network.Encode understands.  Files are sent as attachments.
func WriteNetwork(w http.ResponseWriter, ntwk *vna.Network, format string) {
	format = strings.ToLower(format)
	if format == "json" {
		generichttp.WriteJSON(w, ntwk)
		return
	}
	ct, ok := contentTypes[format]
	if !ok {
		http.Error(w, "unknown format "+format+", must be json, touchstone, csv, or fits", http.StatusBadRequest)
		return
	}
	buf := &bytes.Buffer{}
	if err := ntwk.Encode(buf, format); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	fn := strings.NewReplacer(" ", "_", "(", "", ")", "", ",", "-").Replace(ntwk.Name) + ntwk.Ext(format)
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Content-Disposition", `attachment; filename="`+fn+`"`)
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// SNP acquires an N-port network from an SNPRequest
func (h HTTPAnalyzer) SNP(w http.ResponseWriter, r *http.Request) {
	req := SNPRequest{}
	err := json.NewDecoder(r.Body).Decode(&req)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Format == "" {
		req.Format = "json"
	}
	ntwk, err := h.A.SNPNetwork(req.Ports, req.SNPOptions)
	if err != nil {
		fail(w, err)
		return
	}
	h.record(r.Context(), ntwk)
	WriteNetwork(w, ntwk, req.Format)
}

// SwitchTerms measures the forward and reverse switch terms of a port pair
func (h HTTPAnalyzer) SwitchTerms(w http.ResponseWriter, r *http.Request) {
	req := SwitchTermsRequest{}
	err := json.NewDecoder(r.Body).Decode(&req)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	fwd, rev, err := h.A.SwitchTerms(req.Ports, req.Channel)
	if err != nil {
		fail(w, err)
		return
	}
	h.record(r.Context(), fwd, rev)
	generichttp.WriteJSON(w, SwitchTermsResponse{Forward: fwd, Reverse: rev})
}
