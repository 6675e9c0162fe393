// Package archive keeps the full reading history as append-only CSV files
// with daily rotation, one file per day named YYYY-MM-DD.csv.
package archive

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/luki/sensormon/internal/reading"
)

const fileLayout = "2006-01-02"

// Archive appends every stored reading to the file of its day. Files use
// the same columns as the rolling window.
type Archive struct {
	mu      sync.Mutex
	dir     string
	current *os.File
	writer  *csv.Writer
	curDate string
}

// New creates an archive in dir, creating the directory if needed.
func New(dir string) (*Archive, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("cannot create archive dir: %w", err)
	}
	return &Archive{dir: dir}, nil
}

// Dir returns the archive directory.
func (a *Archive) Dir() string { return a.dir }

// Write appends r to the file for the day of t.
func (a *Archive) Write(r reading.Reading, t time.Time) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	dateStr := t.Format(fileLayout)
	if a.curDate != dateStr || a.current == nil {
		a.closeLocked()
		path := filepath.Join(a.dir, dateStr+".csv")
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return err
		}
		a.current = f
		a.writer = csv.NewWriter(f)
		a.curDate = dateStr

		info, err := f.Stat()
		if err == nil && info.Size() == 0 {
			a.writer.Write(reading.Header)
		}
	}

	a.writer.Write(r.Record())
	a.writer.Flush()
	return a.writer.Error()
}

// Close flushes and closes the current file.
func (a *Archive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closeLocked()
}

func (a *Archive) closeLocked() error {
	if a.writer != nil {
		a.writer.Flush()
		a.writer = nil
	}
	if a.current == nil {
		return nil
	}
	err := a.current.Close()
	a.current = nil
	return err
}

// Snapshot loads every archived reading while holding the write lock, so
// the result never contains a half-written row.
func (a *Archive) Snapshot() ([]reading.Reading, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.writer != nil {
		a.writer.Flush()
	}
	return LoadAll(a.dir)
}

// ListDays returns the archived dates, newest first.
func ListDays(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var days []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".csv") {
			continue
		}
		day := strings.TrimSuffix(name, ".csv")
		if _, err := time.Parse(fileLayout, day); err != nil {
			continue
		}
		days = append(days, day)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(days)))
	return days, nil
}

// LoadDay reads all readings archived on day.
func LoadDay(dir, day string) ([]reading.Reading, error) {
	return LoadFile(filepath.Join(dir, day+".csv"))
}

// LoadAll reads the whole archive in chronological order. A missing
// directory yields no readings.
func LoadAll(dir string) ([]reading.Reading, error) {
	days, err := ListDays(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var all []reading.Reading
	for i := len(days) - 1; i >= 0; i-- {
		rows, err := LoadDay(dir, days[i])
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", days[i], err)
		}
		all = append(all, rows...)
	}
	return all, nil
}

// LoadFile reads all readings from a CSV file, skipping malformed rows.
func LoadFile(path string) ([]reading.Reading, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rows, _, err := reading.ReadCSV(f)
	return rows, err
}
