// Package reading defines the temperature/humidity reading produced by a
// sensor node, the line parser for the node's text protocol and the CSV
// codec shared by the rolling window and the archive.
package reading

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"
)

// TimeLayout is the layout of Reading.Timestamp.
const TimeLayout = "2006-01-02 15:04:05"

// clockLayout is the time-only layout written by older window files.
const clockLayout = "15:04:05"

// Header is the column header of every reading CSV file.
var Header = []string{"timestamp", "node", "temperatura", "umidade"}

// Reading is a single temperature/humidity sample from one node.
type Reading struct {
	Timestamp   string  // e.g. "2026-10-19 14:30:00"
	Node        string  // e.g. "Node1"
	Temperature float64 // °C
	Humidity    float64 // %
}

// New builds a reading stamped with t.
func New(node string, temp, humidity float64, t time.Time) Reading {
	return Reading{
		Timestamp:   t.Format(TimeLayout),
		Node:        node,
		Temperature: temp,
		Humidity:    humidity,
	}
}

// Time parses the timestamp back. Readings stored with only a clock time
// are placed on the zero date. The zero time is returned when the
// timestamp cannot be parsed.
func (r Reading) Time() time.Time {
	if t, err := time.ParseInLocation(TimeLayout, r.Timestamp, time.Local); err == nil {
		return t
	}
	if t, err := time.ParseInLocation(clockLayout, r.Timestamp, time.Local); err == nil {
		return t
	}
	return time.Time{}
}

// Record returns the CSV row for this reading.
func (r Reading) Record() []string {
	return []string{
		r.Timestamp,
		r.Node,
		strconv.FormatFloat(r.Temperature, 'f', -1, 64),
		strconv.FormatFloat(r.Humidity, 'f', -1, 64),
	}
}

// String renders r for console output.
func (r Reading) String() string {
	return fmt.Sprintf("%s | %s | Temp: %.2f°C | Umid: %.2f%%", r.Timestamp, r.Node, r.Temperature, r.Humidity)
}

// FromRecord decodes a CSV row written by Record.
func FromRecord(row []string) (Reading, error) {
	if len(row) < len(Header) {
		return Reading{}, fmt.Errorf("expected %d columns, got %d", len(Header), len(row))
	}
	temp, err := strconv.ParseFloat(row[2], 64)
	if err != nil {
		return Reading{}, fmt.Errorf("temperature %q: %w", row[2], err)
	}
	humidity, err := strconv.ParseFloat(row[3], 64)
	if err != nil {
		return Reading{}, fmt.Errorf("humidity %q: %w", row[3], err)
	}
	return Reading{
		Timestamp:   row[0],
		Node:        row[1],
		Temperature: temp,
		Humidity:    humidity,
	}, nil
}

// IsHeader reports whether row is the CSV column header.
func IsHeader(row []string) bool {
	return len(row) > 0 && row[0] == Header[0]
}

// ReadCSV decodes a reading CSV. The header row is optional and rows that
// do not hold a valid reading are skipped and counted.
func ReadCSV(r io.Reader) (rows []Reading, skipped int, err error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	if err != nil {
		return nil, 0, err
	}

	for i, rec := range records {
		if i == 0 && IsHeader(rec) {
			continue
		}
		rd, err := FromRecord(rec)
		if err != nil {
			skipped++
			continue
		}
		rows = append(rows, rd)
	}
	return rows, skipped, nil
}
