package netrec

import (
	"net/http"
	"strings"

	"github.com/nasa-jpl/golaborate-vna/generichttp"
)

// HTTPWrapper is an HTTP wrapper around a network recorder that allows the folder and prefix to be changed on the fly
//
// it does not implement generichttp.HTTPer, offering an Inject method allowing it to be injected
// into another HTTPer
type HTTPWrapper struct {
	*Recorder
}

// NewHTTPWrapper returns an HTTP wrapper around a recorder
func NewHTTPWrapper(r *Recorder) HTTPWrapper {
	return HTTPWrapper{r}
}

func (h HTTPWrapper) root() (string, error) {
	root, _ := h.Settings()
	return root, nil
}

func (h HTTPWrapper) prefix() (string, error) {
	_, prefix := h.Settings()
	return prefix, nil
}

func (h HTTPWrapper) setPrefix(s string) error {
	h.SetPrefix(s)
	return nil
}

func (h HTTPWrapper) enabled() (bool, error) {
	return h.IsEnabled(), nil
}

func (h HTTPWrapper) setEnabled(b bool) error {
	h.SetEnabled(b)
	return nil
}

func (h HTTPWrapper) format() (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.Format, nil
}

func (h HTTPWrapper) setFormat(s string) error {
	switch strings.ToLower(s) {
	case "touchstone", "snp", "csv", "fits", "json":
	default:
		return errBadFormat(s)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Format = strings.ToLower(s)
	return nil
}

type errBadFormat string

func (e errBadFormat) Error() string {
	return "unknown format " + string(e) + ", must be touchstone, csv, fits, or json"
}

// Inject adds GET and POST routes for /autowrite/{root,prefix,enabled,format} to the HTTPer which manipulate this wrapper's recorder
func (h HTTPWrapper) Inject(other generichttp.HTTPer) {
	rt := other.RT()
	rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/autowrite/root"}] = generichttp.SetString(h.SetRoot)
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/autowrite/root"}] = generichttp.GetString(h.root)
	rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/autowrite/prefix"}] = generichttp.SetString(h.setPrefix)
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/autowrite/prefix"}] = generichttp.GetString(h.prefix)
	rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/autowrite/enabled"}] = generichttp.SetBool(h.setEnabled)
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/autowrite/enabled"}] = generichttp.GetBool(h.enabled)
	rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/autowrite/format"}] = generichttp.SetString(h.setFormat)
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/autowrite/format"}] = generichttp.GetString(h.format)
}
