// Package window keeps the rolling table of the most recent readings and
// mirrors it to a CSV file that is fully rewritten on every update.
package window

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/luki/sensormon/internal/reading"
)

// DefaultLimit is the number of readings kept when none is configured.
const DefaultLimit = 30

// PersistError reports a failed snapshot write. The in-memory window is
// already updated when it is returned.
type PersistError struct {
	Path string
	Err  error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Path, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }

// Window is a bounded, insertion-ordered table of readings backed by a
// CSV file with the columns timestamp,node,temperatura,umidade.
type Window struct {
	mu      sync.Mutex
	path    string
	limit   int
	rows    []reading.Reading
	skipped int
}

// Open loads the window from path. An existing file is read back in full,
// even when it holds more than limit rows; the next Append truncates it.
// A missing file is created with just the header.
func Open(path string, limit int) (*Window, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("cannot create data dir: %w", err)
	}

	w := &Window{path: path, limit: limit}

	rows, skipped, err := load(path)
	switch {
	case os.IsNotExist(err):
		if err := w.persist(); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, fmt.Errorf("load %s: %w", path, err)
	default:
		w.rows = rows
		w.skipped = skipped
	}
	return w, nil
}

func load(path string) ([]reading.Reading, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	return reading.ReadCSV(f)
}

// Append adds r, drops everything but the last Limit rows and rewrites the
// file. A write failure is retried once before a *PersistError is returned.
func (w *Window) Append(r reading.Reading) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	rows := append(w.rows, r)
	if len(rows) > w.limit {
		kept := make([]reading.Reading, w.limit)
		copy(kept, rows[len(rows)-w.limit:])
		rows = kept
	}
	w.rows = rows

	err := w.persist()
	if err != nil {
		err = w.persist()
	}
	return err
}

// persist writes the current rows to a temporary file next to the target
// and renames it into place. Callers hold w.mu or own w exclusively.
func (w *Window) persist() error {
	tmp, err := os.CreateTemp(filepath.Dir(w.path), ".window-*.csv")
	if err != nil {
		return &PersistError{Path: w.path, Err: err}
	}
	tmpName := tmp.Name()
	tmp.Chmod(0644)

	cw := csv.NewWriter(tmp)
	cw.Write(reading.Header)
	for _, r := range w.rows {
		cw.Write(r.Record())
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &PersistError{Path: w.path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &PersistError{Path: w.path, Err: err}
	}
	if err := os.Rename(tmpName, w.path); err != nil {
		os.Remove(tmpName)
		return &PersistError{Path: w.path, Err: err}
	}
	return nil
}

// Rows returns a copy of the current window, oldest first.
func (w *Window) Rows() []reading.Reading {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]reading.Reading, len(w.rows))
	copy(out, w.rows)
	return out
}

// Len returns the number of readings in the window.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.rows)
}

// Limit returns the configured window size.
func (w *Window) Limit() int { return w.limit }

// Path returns the backing CSV file.
func (w *Window) Path() string { return w.path }

// Skipped returns how many malformed rows were dropped while loading.
func (w *Window) Skipped() int { return w.skipped }

// LoadFile reads a window CSV without opening it for updates.
func LoadFile(path string) ([]reading.Reading, error) {
	rows, _, err := load(path)
	return rows, err
}
