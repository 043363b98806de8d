package visa

import (
	"log"
	"sort"
	"strings"
	"sync"
)

// ResourceManager opens sessions and keeps track of the ones still open so
// they can be released together
type ResourceManager struct {
	// Library is "" or "@py" for the pure Go backends, "ni" for NI-VISA
	Library string

	mu   sync.Mutex
	open map[*Session]struct{}
}

// NewResourceManager returns a manager using the given library
func NewResourceManager(library string) *ResourceManager {
	return &ResourceManager{Library: library, open: map[*Session]struct{}{}}
}

func (rm *ResourceManager) native() bool {
	return strings.EqualFold(rm.Library, "ni") || strings.EqualFold(rm.Library, "@ni")
}

// Open parses resource, connects to it, and returns a ready session.
// For INSTR resources cfg.REN is applied to the remote enable line.
func (rm *ResourceManager) Open(resource string, cfg Config) (*Session, error) {
	cfg = cfg.withDefaults()
	cfg.Manager = rm
	res, err := ParseResource(resource)
	if err != nil {
		return nil, &ConnectionError{Resource: resource, Err: err}
	}
	var l link
	if rm.native() {
		l, err = openNative(res, cfg)
	} else {
		l, err = openLink(res, cfg)
	}
	if err != nil {
		return nil, &ConnectionError{Resource: resource, Err: err}
	}
	s := newSession(res, l, cfg)
	if res.IsInstr() {
		if err := s.ControlREN(cfg.REN); err != nil {
			log.Printf("%s: remote enable not applied: %v", res, err)
		}
	}
	rm.mu.Lock()
	if rm.open == nil {
		rm.open = map[*Session]struct{}{}
	}
	rm.open[s] = struct{}{}
	rm.mu.Unlock()
	return s, nil
}

func (rm *ResourceManager) forget(s *Session) {
	rm.mu.Lock()
	delete(rm.open, s)
	rm.mu.Unlock()
}

// Sessions lists the resource strings of the open sessions
func (rm *ResourceManager) Sessions() []string {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	out := make([]string, 0, len(rm.open))
	for s := range rm.open {
		out = append(out, s.resource.String())
	}
	sort.Strings(out)
	return out
}

// Close closes every open session and returns the first error
func (rm *ResourceManager) Close() error {
	rm.mu.Lock()
	sessions := make([]*Session, 0, len(rm.open))
	for s := range rm.open {
		sessions = append(sessions, s)
	}
	rm.mu.Unlock()
	var first error
	for _, s := range sessions {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Open expands address with cfg and opens it, through cfg.Manager if set
func Open(address string, cfg Config) (*Session, error) {
	rm := cfg.Manager
	if rm == nil {
		rm = NewResourceManager(cfg.Library)
	}
	return rm.Open(BuildResourceString(address, cfg), cfg)
}

// openLink picks the pure Go backend for a resource
func openLink(res Resource, cfg Config) (link, error) {
	switch res.Interface {
	case "TCPIP":
		if res.Class != "SOCKET" {
			return nil, ErrUnsupported
		}
		return openSocket(res, cfg)
	case "ASRL":
		return openSerial(res, cfg)
	case "USB":
		return openUSB(res, cfg)
	case "GPIB":
		if cfg.PrologixPort == "" {
			return nil, ErrUnsupported
		}
		return openPrologix(res, cfg)
	}
	return nil, ErrUnsupported
}
