package sink

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/luki/sensormon/internal/reading"
)

type fakeSink struct {
	name   string
	err    error
	events []Event
	closed bool
}

func (f *fakeSink) Name() string { return f.name }

func (f *fakeSink) Publish(_ context.Context, ev Event) error {
	f.events = append(f.events, ev)
	return f.err
}

func (f *fakeSink) Close() error {
	f.closed = true
	return nil
}

func TestNewEvent(t *testing.T) {
	r := reading.Reading{Timestamp: "2026-10-19 14:30:00", Node: "Node1", Temperature: 31.5, Humidity: 55}
	ev := NewEvent(r, []string{"temperature high: 31.5"}, time.Now())

	if _, err := uuid.Parse(ev.ID); err != nil {
		t.Errorf("event ID %q is not a UUID: %v", ev.ID, err)
	}
	if !ev.Anomalous || ev.Node != "Node1" {
		t.Errorf("event: %+v", ev)
	}

	payload, err := ev.marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["temperatureC"] != 31.5 || decoded["node"] != "Node1" {
		t.Errorf("payload: %s", payload)
	}

	if other := NewEvent(r, nil, time.Now()); other.ID == ev.ID || other.Anomalous {
		t.Errorf("second event: %+v", other)
	}
}

func TestMulti(t *testing.T) {
	ok := &fakeSink{name: "ok"}
	bad := &fakeSink{name: "bad", err: errors.New("broker down")}
	m := Multi{ok, bad}

	err := m.Publish(context.Background(), Event{Node: "Node1"})
	if err == nil || !strings.Contains(err.Error(), "bad: broker down") {
		t.Errorf("Publish: got %v", err)
	}
	if len(ok.events) != 1 || len(bad.events) != 1 {
		t.Errorf("every sink should receive the event")
	}

	if err := m.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if !ok.closed || !bad.closed {
		t.Error("every sink should be closed")
	}
}

func TestMQTTTopic(t *testing.T) {
	m := newMQTT(nil, "greenhouse/")
	if got := m.Topic("Node1"); got != "greenhouse/Node1/readings" {
		t.Errorf("Topic: got %q", got)
	}
	if got := newMQTT(nil, "").Topic("Node2"); got != "sensormon/Node2/readings" {
		t.Errorf("default Topic: got %q", got)
	}
	if m.Name() != "mqtt" {
		t.Errorf("Name: got %q", m.Name())
	}
}

func TestNewKafkaValidation(t *testing.T) {
	if _, err := NewKafka(nil, "readings"); err == nil {
		t.Error("expected error without brokers")
	}
	if _, err := NewKafka([]string{"localhost:9092"}, ""); err == nil {
		t.Error("expected error without topic")
	}
	k, err := NewKafka([]string{"localhost:9092"}, "readings")
	if err != nil {
		t.Fatalf("NewKafka: %v", err)
	}
	if k.Name() != "kafka" {
		t.Errorf("Name: got %q", k.Name())
	}
	k.Close()
}
