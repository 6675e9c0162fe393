package monitor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/luki/sensormon/internal/anomaly"
	"github.com/luki/sensormon/internal/archive"
	"github.com/luki/sensormon/internal/pipeline"
	"github.com/luki/sensormon/internal/window"
)

type scripted struct{ lines []string }

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

func (s *scripted) Close() error { return nil }

func newTestModel(t *testing.T, lines ...string) (Model, string) {
	t.Helper()
	dir := t.TempDir()

	w, err := window.Open(filepath.Join(dir, "sensor_data.csv"), 30)
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

	clock := time.Date(2026, 10, 19, 14, 30, 0, 0, time.Local)
	p := pipeline.New(pipeline.Config{
		Source:     &scripted{lines: lines},
		Window:     w,
		Log:        l,
		Archive:    a,
		Thresholds: anomaly.DefaultThresholds,
		Now: func() time.Time {
			clock = clock.Add(time.Second)
			return clock
		},
	})
	t.Cleanup(func() { p.Close() })

	m := New(context.Background(), p, "simulation", filepath.Join(dir, "reports"))
	next, _ := m.Update(tea.WindowSizeMsg{Width: 160, Height: 200})
	return next.(Model), dir
}

// step runs the pending step command and feeds its message back.
func step(t *testing.T, m Model) (Model, tea.Cmd) {
	t.Helper()
	msg := m.stepCmd()()
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func key(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestViewBeforeData(t *testing.T) {
	m, _ := newTestModel(t)
	view := m.View()
	if !strings.Contains(view, "SENSOR MONITOR") {
		t.Errorf("missing title:\n%s", view)
	}
	if !strings.Contains(view, "Waiting for sensor data") {
		t.Errorf("missing waiting notice:\n%s", view)
	}
}

func TestStepUpdatesView(t *testing.T) {
	m, _ := newTestModel(t,
		"Received: Node1 | Temp: 25.00°C | Umid: 55.00",
		"Received: Node1 | Temp: 35.00°C | Umid: 55.00",
	)

	m, cmd := step(t, m)
	if cmd == nil || !m.stepping {
		t.Fatal("expected the next step to be scheduled")
	}
	if len(m.rows) != 1 || m.last.Anomalous() {
		t.Fatalf("after first step: rows=%d last=%+v", len(m.rows), m.last)
	}

	m, _ = step(t, m)
	if len(m.rows) != 2 {
		t.Fatalf("rows: got %d, want 2", len(m.rows))
	}
	if len(m.feed) != 1 || !strings.Contains(m.feed[0], "temperature high: 35") {
		t.Errorf("feed: got %v", m.feed)
	}

	view := m.View()
	for _, want := range []string{"Node1", "Temperature", "Humidity", "temperature high: 35"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestPauseStopsStepping(t *testing.T) {
	m, _ := newTestModel(t, "Received: Node1 | Temp: 25.00°C | Umid: 55.00")

	next, _ := m.Update(key("p"))
	m = next.(Model)
	if !m.paused {
		t.Fatal("expected paused")
	}

	m, cmd := step(t, m)
	if cmd != nil {
		t.Error("paused model scheduled another step")
	}
	if !strings.Contains(m.View(), "PAUSED") {
		t.Error("view missing PAUSED")
	}

	next, cmd = m.Update(key("p"))
	m = next.(Model)
	if m.paused || cmd == nil || !m.stepping {
		t.Error("resume should schedule a step")
	}
}

func TestSourceErrorRetries(t *testing.T) {
	m, _ := newTestModel(t)

	m, cmd := step(t, m)
	if m.err == nil || !errors.Is(m.err, errExhausted) {
		t.Fatalf("err: got %v", m.err)
	}
	if cmd == nil {
		t.Fatal("expected a retry tick")
	}
	if m.stepping {
		t.Error("no step should be in flight while waiting to retry")
	}
}

func TestExport(t *testing.T) {
	m, dir := newTestModel(t,
		"Received: Node1 | Temp: 31.00°C | Umid: 55.00",
		"Received: Node1 | Temp: 32.00°C | Umid: 55.00",
	)
	m, _ = step(t, m)
	m, _ = step(t, m)

	next, cmd := m.Update(key("e"))
	m = next.(Model)
	if cmd == nil {
		t.Fatal("export did not return a command")
	}
	next, _ = m.Update(cmd())
	m = next.(Model)
	if m.err != nil {
		t.Fatalf("export: %v", m.err)
	}
	if !strings.HasPrefix(m.notice, "report saved: ") {
		t.Fatalf("notice: %q", m.notice)
	}

	path := strings.TrimPrefix(m.notice, "report saved: ")
	if filepath.Dir(path) != filepath.Join(dir, "reports") {
		t.Errorf("report written to %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "Node1") {
		t.Errorf("report missing node:\n%s", data)
	}
}

func TestScrollStopsAtBottom(t *testing.T) {
	m, _ := newTestModel(t, "Received: Node1 | Temp: 25.00°C | Umid: 55.00")
	m, _ = step(t, m)
	next, _ := m.Update(tea.WindowSizeMsg{Width: 160, Height: 8})
	m = next.(Model)

	bottom := maxScroll(len(m.lines()), m.height)
	if bottom == 0 {
		t.Fatal("content fits the screen; nothing to scroll")
	}
	for i := 0; i < bottom+20; i++ {
		next, _ = m.Update(key("j"))
		m = next.(Model)
	}
	if m.scroll != bottom {
		t.Fatalf("scroll: got %d, want %d", m.scroll, bottom)
	}

	next, _ = m.Update(key("k"))
	m = next.(Model)
	if m.scroll != bottom-1 {
		t.Errorf("one step up: got %d, want %d", m.scroll, bottom-1)
	}
}

func TestQuit(t *testing.T) {
	m, _ := newTestModel(t)
	_, cmd := m.Update(key("q"))
	if cmd == nil {
		t.Fatal("q returned no command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q should quit")
	}
}

func TestFmtDuration(t *testing.T) {
	cases := map[time.Duration]string{
		42 * time.Second:                "0m42s",
		3*time.Minute + 5*time.Second:   "3m05s",
		2*time.Hour + 7*time.Minute + 9: "2h07m00s",
	}
	for d, want := range cases {
		if got := fmtDuration(d); got != want {
			t.Errorf("fmtDuration(%v) = %q, want %q", d, got, want)
		}
	}
}
