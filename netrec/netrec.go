// Package netrec contains a network recorder used to automatically save
// acquired networks to disk, and sinks that push them to time series stores.
package netrec

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nasa-jpl/golaborate-vna/vna"
)

// Sink receives every network the recorder writes
type Sink interface {
	Record(ctx context.Context, ntwk *vna.Network, at time.Time) error
}

// Recorder records networks with incrementing filenames in yyyy-mm-dd
// subfolders
type Recorder struct {
	mu sync.Mutex

	// counter is the internally incrementing counter
	counter int

	// Root is the root path
	Root string

	// Prefix is the prefix for the filenames
	Prefix string

	// Format is one of touchstone, csv, fits, or json
	Format string

	// timeFldr is the subfolder with yyyy-mm-dd format
	timeFldr string

	// Enabled is a flag unused by this struct that allows consumers to disable its use in their code
	Enabled bool

	// Sinks are given each network after it is written to disk
	Sinks []Sink

	now func() time.Time
}

// NewRecorder returns a disabled recorder writing Touchstone files
func NewRecorder(root, prefix string) *Recorder {
	return &Recorder{Root: root, Prefix: prefix, Format: "touchstone", now: time.Now}
}

func (r *Recorder) clock() time.Time {
	if r.now == nil {
		return time.Now()
	}
	return r.now()
}

// updateFolder checks the current time and updates the folder as needed
func (r *Recorder) updateFolder() {
	y, m, d := r.clock().Date()
	r.timeFldr = fmt.Sprintf("%04d-%02d-%02d", y, m, d)
}

// mkDir makes the folder and returns it
func (r *Recorder) mkDir() (string, error) {
	fldr := filepath.Join(r.Root, r.timeFldr)
	err := os.MkdirAll(fldr, 0777)
	return fldr, err
}

var recordedExt = regexp.MustCompile(`\.(s\d+p|csv|fits|json)$`)

// Incr updates the filename counter by scanning the folder for the highest
// number written with the current prefix.  If the folder cannot be read the
// counter is not changed.
func (r *Recorder) Incr() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.incr()
}

func (r *Recorder) incr() {
	r.updateFolder()
	dn, _ := r.mkDir()
	files, err := os.ReadDir(dn)
	if err != nil {
		return
	}
	count := 0
	for _, file := range files {
		// skip directories, foreign extensions, and wrong prefix
		if file.IsDir() {
			continue
		}
		fn := file.Name()
		loc := recordedExt.FindStringIndex(fn)
		if loc == nil || !strings.HasPrefix(fn, r.Prefix) {
			continue
		}
		n, err := strconv.Atoi(fn[len(r.Prefix):loc[0]])
		if err != nil {
			continue
		}
		if count < n {
			count = n
		}
	}
	r.counter = count + 1
}

// Counter is the number the next file will carry
func (r *Recorder) Counter() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counter
}

// Record writes ntwk to the next file and hands it to the sinks.  The path
// written is returned.
func (r *Recorder) Record(ctx context.Context, ntwk *vna.Network) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	at := r.clock()
	r.incr()
	fldr, err := r.mkDir()
	if err != nil {
		return "", err
	}
	fn := filepath.Join(fldr, fmt.Sprintf("%s%06d%s", r.Prefix, r.counter, ntwk.Ext(r.Format)))
	f, err := os.Create(fn)
	if err != nil {
		return "", err
	}
	if strings.ToLower(r.Format) == "json" {
		err = json.NewEncoder(f).Encode(ntwk)
	} else {
		err = ntwk.Encode(f, r.Format)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fn, err
	}
	for _, s := range r.Sinks {
		if err = s.Record(ctx, ntwk, at); err != nil {
			return fn, err
		}
	}
	return fn, nil
}

// SetRoot changes the root folder, creating today's folder under it
func (r *Recorder) SetRoot(root string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Root = root
	r.updateFolder()
	_, err := r.mkDir()
	return err
}

// SetPrefix changes the filename prefix and resets the counter
func (r *Recorder) SetPrefix(prefix string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Prefix = prefix
	r.counter = 0
}

// SetEnabled turns the recorder on or off
func (r *Recorder) SetEnabled(on bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Enabled = on
}

// IsEnabled reports if the recorder is on
func (r *Recorder) IsEnabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Enabled
}

// Settings returns the root and prefix
func (r *Recorder) Settings() (root, prefix string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Root, r.Prefix
}
