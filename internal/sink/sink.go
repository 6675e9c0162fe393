// Package sink forwards stored readings to message brokers. Sinks are
// optional; a failed publish never stops monitoring.
package sink

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/luki/sensormon/internal/reading"
)

// Event is the JSON payload published for every stored reading.
type Event struct {
	ID          string    `json:"id"`
	Timestamp   string    `json:"timestamp"`
	Node        string    `json:"node"`
	Temperature float64   `json:"temperatureC"`
	Humidity    float64   `json:"humidityPct"`
	Findings    []string  `json:"findings,omitempty"`
	Anomalous   bool      `json:"anomalous"`
	PublishedAt time.Time `json:"publishedAt"`
}

// NewEvent wraps r and its findings with a fresh event ID.
func NewEvent(r reading.Reading, findings []string, now time.Time) Event {
	return Event{
		ID:          uuid.NewString(),
		Timestamp:   r.Timestamp,
		Node:        r.Node,
		Temperature: r.Temperature,
		Humidity:    r.Humidity,
		Findings:    findings,
		Anomalous:   len(findings) > 0,
		PublishedAt: now,
	}
}

func (e Event) marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Sink publishes events to one destination.
type Sink interface {
	Name() string
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Multi fans an event out to several sinks.
type Multi []Sink

// Publish sends ev to every sink and joins their errors.
func (m Multi) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Publish(ctx, ev); err != nil {
			errs = append(errs, errors.New(s.Name()+": "+err.Error()))
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink and joins their errors.
func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
