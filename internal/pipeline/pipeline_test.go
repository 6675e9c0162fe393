package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/luki/sensormon/internal/anomaly"
	"github.com/luki/sensormon/internal/archive"
	"github.com/luki/sensormon/internal/reading"
	"github.com/luki/sensormon/internal/sink"
	"github.com/luki/sensormon/internal/window"
)

// scripted replays fixed lines, then fails with errExhausted.
type scripted struct {
	lines  []string
	closed bool
}

var errExhausted = errors.New("script exhausted")

func (s *scripted) ReadLine(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(s.lines) == 0 {
		return "", errExhausted
	}
	line := s.lines[0]
	s.lines = s.lines[1:]
	return line, nil
}

func (s *scripted) Close() error {
	s.closed = true
	return nil
}

type recordingSink struct{ events []sink.Event }

func (r *recordingSink) Name() string { return "recording" }
func (r *recordingSink) Publish(_ context.Context, ev sink.Event) error {
	r.events = append(r.events, ev)
	return nil
}
func (r *recordingSink) Close() error { return nil }

type fixture struct {
	p    *Pipeline
	src  *scripted
	dir  string
	sink *recordingSink
}

func newFixture(t *testing.T, limit int, lines ...string) fixture {
	t.Helper()
	dir := t.TempDir()

	w, err := window.Open(filepath.Join(dir, "sensor_data.csv"), limit)
	if err != nil {
		t.Fatalf("window.Open: %v", err)
	}
	l, err := anomaly.OpenLog(filepath.Join(dir, "anomalies.log"))
	if err != nil {
		t.Fatalf("OpenLog: %v", err)
	}
	a, err := archive.New(filepath.Join(dir, "archive"))
	if err != nil {
		t.Fatalf("archive.New: %v", err)
	}

	src := &scripted{lines: lines}
	rs := &recordingSink{}
	clock := time.Date(2026, 10, 19, 14, 30, 0, 0, time.Local)
	p := New(Config{
		Source:     src,
		Window:     w,
		Log:        l,
		Archive:    a,
		Sinks:      sink.Multi{rs},
		Thresholds: anomaly.DefaultThresholds,
		Now: func() time.Time {
			clock = clock.Add(time.Second)
			return clock
		},
	})
	return fixture{p: p, src: src, dir: dir, sink: rs}
}

func (f fixture) logLines(t *testing.T) []string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(f.dir, "anomalies.log"))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		t.Fatal(err)
	}
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func TestStepEndToEnd(t *testing.T) {
	f := newFixture(t, 30,
		"Received: Node1 | Temp: 25.00°C | Umid: 55.00",
		"Received: Node1 | Temp: 32.00°C | Umid: 55.00",
		"Received: Node1 | Temp: 25.00°C | Umid: 35.00",
		"Received: Node1 | Temp: 25.00°C | Umid: 75.00",
	)
	want := []string{"", "temperature high", "humidity low", "humidity high"}

	for i, w := range want {
		out, err := f.p.Step(context.Background())
		if err != nil {
			t.Fatalf("Step %d: %v", i, err)
		}
		if !out.Stored || out.Err != nil {
			t.Fatalf("Step %d: outcome %+v", i, out)
		}
		if w == "" {
			if out.Anomalous() || !strings.Contains(out.Status, "OK") {
				t.Errorf("Step %d: expected OK, got %+v", i, out)
			}
			continue
		}
		if len(out.Findings) != 1 || !strings.HasPrefix(out.Findings[0], w) {
			t.Errorf("Step %d: findings %v, want %q", i, out.Findings, w)
		}
	}

	if n := f.p.Window().Len(); n != 4 {
		t.Errorf("window Len: got %d, want 4", n)
	}
	lines := f.logLines(t)
	if len(lines) != 3 {
		t.Fatalf("anomaly log: got %d lines, want 3: %v", len(lines), lines)
	}
	if lines[0] != "2026-10-19 14:30:02 | Node1 | temperature high: 32" {
		t.Errorf("first log line: %q", lines[0])
	}
	if len(f.sink.events) != 4 || !f.sink.events[1].Anomalous {
		t.Errorf("sink events: %+v", f.sink.events)
	}

	archived, err := f.p.Archive().Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(archived) != 4 {
		t.Errorf("archive: got %d readings, want 4", len(archived))
	}
}

func TestStepMalformedLeavesStateUnchanged(t *testing.T) {
	f := newFixture(t, 30,
		"Received: Node1 | Temp: 35.00°C | Umid: 55.00",
		"Node1 | Temp: abc",
		"",
	)

	if _, err := f.p.Step(context.Background()); err != nil {
		t.Fatalf("Step: %v", err)
	}
	before := f.p.Window().Rows()
	logBefore := f.logLines(t)

	out, err := f.p.Step(context.Background())
	if err != nil {
		t.Fatalf("Step on malformed line: %v", err)
	}
	var perr *reading.ParseError
	if !errors.As(out.Err, &perr) || out.Stored {
		t.Errorf("malformed outcome: %+v", out)
	}

	out, err = f.p.Step(context.Background())
	if err != nil || out.Stored || out.Err != nil {
		t.Errorf("empty line: outcome %+v, err %v", out, err)
	}

	if after := f.p.Window().Rows(); len(after) != len(before) {
		t.Errorf("window changed: %d -> %d rows", len(before), len(after))
	}
	if logAfter := f.logLines(t); len(logAfter) != len(logBefore) {
		t.Errorf("anomaly log changed: %v -> %v", logBefore, logAfter)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	f := newFixture(t, 2,
		"Node1 | Temp: 21°C | Umid: 50",
		"Node1 | Temp: 22°C | Umid: 50",
		"Node1 | Temp: 23°C | Umid: 50",
		"Node1 | Temp: 24°C | Umid: 50",
	)

	ctx, cancel := context.WithCancel(context.Background())
	var seen int
	err := f.p.Run(ctx, func(o Outcome) {
		seen++
		if seen == 3 {
			cancel()
		}
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if seen != 3 {
		t.Errorf("outcomes: got %d, want 3", seen)
	}
	rows := f.p.Window().Rows()
	if len(rows) != 2 || rows[1].Temperature != 23 {
		t.Errorf("window after cancel: %+v", rows)
	}
}

// flaky fails reads whose script entry is an error and replays the rest.
type flaky struct {
	script []any
	reads  int
}

func (f *flaky) ReadLine(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	f.reads++
	if len(f.script) == 0 {
		return "", errExhausted
	}
	next := f.script[0]
	f.script = f.script[1:]
	if err, ok := next.(error); ok {
		return "", err
	}
	return next.(string), nil
}

func (f *flaky) Close() error { return nil }

func TestRunSurvivesSourceError(t *testing.T) {
	f := newFixture(t, 5)
	src := &flaky{script: []any{
		"Node1 | Temp: 21°C | Umid: 50",
		fmt.Errorf("read /dev/ttyUSB0: %w", syscall.EIO),
		"Node1 | Temp: 22°C | Umid: 50",
		errExhausted,
		"Node1 | Temp: 23°C | Umid: 50",
	}}
	f.p.cfg.Source = src
	f.p.retry = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var seen int
	err := f.p.Run(ctx, func(o Outcome) {
		seen++
		if seen == 3 {
			cancel()
		}
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if seen != 3 || src.reads != 5 {
		t.Errorf("outcomes %d, reads %d; want 3 and 5", seen, src.reads)
	}
	if n := f.p.Window().Len(); n != 3 {
		t.Errorf("window Len: got %d, want 3", n)
	}
}

func TestRunStopsWhenClosed(t *testing.T) {
	f := newFixture(t, 5)
	f.p.Close()
	if err := f.p.Run(context.Background(), nil); !errors.Is(err, ErrClosed) {
		t.Errorf("Run: got %v, want ErrClosed", err)
	}
}

func TestClose(t *testing.T) {
	f := newFixture(t, 5, "Node1 | Temp: 21°C | Umid: 50")
	if err := f.p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !f.src.closed {
		t.Error("source should be closed")
	}
	if _, err := f.p.Step(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Step after Close: got %v", err)
	}
	if err := f.p.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}
