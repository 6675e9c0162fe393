package viewer

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/luki/sensormon/internal/anomaly"
	"github.com/luki/sensormon/internal/archive"
	"github.com/luki/sensormon/internal/reading"
)

func writeArchive(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	a, err := archive.New(dir)
	if err != nil {
		t.Fatalf("archive.New: %v", err)
	}
	defer a.Close()

	yesterday := time.Date(2026, 10, 18, 9, 0, 0, 0, time.Local)
	today := time.Date(2026, 10, 19, 9, 0, 0, 0, time.Local)
	rows := []struct {
		node      string
		temp, hum float64
		at        time.Time
	}{
		{"Node1", 22, 50, yesterday},
		{"Node1", 24, 52, today},
		{"Node2", 26, 60, today},
		{"Node1", 33, 80, today.Add(time.Second)},
	}
	for _, r := range rows {
		if err := a.Write(reading.New(r.node, r.temp, r.hum, r.at), r.at); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	return dir
}

func openModel(t *testing.T, dir string) model {
	t.Helper()
	days, err := archive.ListDays(dir)
	if err != nil {
		t.Fatalf("ListDays: %v", err)
	}
	m := newModel(dir, days, anomaly.DefaultThresholds)
	next, _ := m.Update(tea.WindowSizeMsg{Width: 160, Height: 200})
	return next.(model)
}

func key(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestLoadNewestDay(t *testing.T) {
	m := openModel(t, writeArchive(t))

	if m.days[m.dayIdx] != "2026-10-19" {
		t.Fatalf("day: got %s", m.days[m.dayIdx])
	}
	if len(m.nodes) != 2 || m.nodes[0] != "Node1" || m.nodes[1] != "Node2" {
		t.Errorf("nodes: got %v", m.nodes)
	}
	if len(m.timeSlots) != 2 || m.cursor != 1 {
		t.Errorf("slots=%d cursor=%d", len(m.timeSlots), m.cursor)
	}

	view := m.View()
	for _, want := range []string{"SENSOR HISTORY", "2026-10-19", "Node1", "Node2", "temperature high: 33", "humidity high: 80"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestScrubAndDayNavigation(t *testing.T) {
	m := openModel(t, writeArchive(t))

	next, _ := m.Update(key("h"))
	m = next.(model)
	if m.cursor != 0 {
		t.Fatalf("cursor: got %d", m.cursor)
	}
	if strings.Contains(m.View(), "temperature high") {
		t.Error("the reading at 09:00:00 is not anomalous")
	}

	next, _ = m.Update(key("["))
	m = next.(model)
	if m.days[m.dayIdx] != "2026-10-18" {
		t.Fatalf("day: got %s", m.days[m.dayIdx])
	}
	if len(m.nodes) != 1 || len(m.timeSlots) != 1 {
		t.Errorf("nodes=%v slots=%d", m.nodes, len(m.timeSlots))
	}

	next, _ = m.Update(key("["))
	m = next.(model)
	if m.days[m.dayIdx] != "2026-10-18" {
		t.Error("moved past the oldest day")
	}

	next, _ = m.Update(key("]"))
	m = next.(model)
	if m.days[m.dayIdx] != "2026-10-19" {
		t.Errorf("day: got %s", m.days[m.dayIdx])
	}
}

func TestScrollStopsAtBottom(t *testing.T) {
	m := openModel(t, writeArchive(t))
	next, _ := m.Update(tea.WindowSizeMsg{Width: 160, Height: 6})
	m = next.(model)

	bottom := maxScroll(len(m.lines()), m.height)
	if bottom == 0 {
		t.Fatal("content fits the screen; nothing to scroll")
	}
	for i := 0; i < bottom+20; i++ {
		next, _ = m.Update(key("j"))
		m = next.(model)
	}
	if m.scroll != bottom {
		t.Fatalf("scroll: got %d, want %d", m.scroll, bottom)
	}

	next, _ = m.Update(key("k"))
	m = next.(model)
	if m.scroll != bottom-1 {
		t.Errorf("one step up: got %d, want %d", m.scroll, bottom-1)
	}
}

func TestRunEmptyArchive(t *testing.T) {
	err := Run(t.TempDir(), anomaly.DefaultThresholds)
	if !errors.Is(err, ErrNoHistory) {
		t.Fatalf("got %v, want ErrNoHistory", err)
	}
}

func TestSparkWindow(t *testing.T) {
	base := time.Date(2026, 10, 19, 9, 0, 0, 0, time.Local)
	var slots []time.Time
	var pts []sample
	for i := 0; i < 10; i++ {
		ts := base.Add(time.Duration(i) * time.Second)
		slots = append(slots, ts)
		if i%2 == 0 {
			pts = append(pts, sample{time: ts, temp: float64(i)})
		}
	}

	got := sparkWindow(pts, slots, 6, 4, func(s sample) float64 { return s.temp })
	// Slots 3..6 hold node samples at 4 and 6.
	if len(got) != 2 || got[0].Value != 4 || got[1].Value != 6 {
		t.Errorf("got %+v", got)
	}
}
