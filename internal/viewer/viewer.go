// Package viewer implements the archive browser TUI with time scrubbing,
// day navigation, and per-node sparkline windows.
package viewer

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/luki/sensormon/internal/anomaly"
	"github.com/luki/sensormon/internal/archive"
	"github.com/luki/sensormon/internal/chart"
	"github.com/luki/sensormon/internal/reading"
)

// ErrNoHistory is returned by Run when the archive holds no days.
var ErrNoHistory = errors.New("no archived readings")

// Run launches the archive viewer TUI over dir.
func Run(dir string, th anomaly.Thresholds) error {
	days, err := archive.ListDays(dir)
	if err != nil {
		return err
	}
	if len(days) == 0 {
		return fmt.Errorf("%w in %s", ErrNoHistory, dir)
	}

	p := tea.NewProgram(
		newModel(dir, days, th),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)

	_, err = p.Run()
	return err
}

// ── Color palette ────────────────────────────────────────────────────

var (
	colorTitleBg  = lipgloss.Color("17")
	colorTitleFg  = lipgloss.Color("51")
	colorBorder   = lipgloss.Color("62")
	colorNodeName = lipgloss.Color("147")
	colorLabel    = lipgloss.Color("252")
	colorDim      = lipgloss.Color("240")
	colorFooterBg = lipgloss.Color("235")
	colorWarn     = lipgloss.Color("220")
	colorCrit     = lipgloss.Color("196")
	colorCursor   = lipgloss.Color("214")
)

// ── Model ────────────────────────────────────────────────────────────

type model struct {
	dir      string
	th       anomaly.Thresholds
	days     []string            // available dates, newest first
	dayIdx   int                 // currently selected day
	readings []reading.Reading   // all readings for current day
	nodes    []string            // node names (sorted)
	cursor   int                 // time cursor position
	scroll   int                 // vertical scroll offset
	width    int
	height   int
	err      error

	timeSlots []time.Time         // unique timestamps (sorted)
	series    map[string][]sample // node -> sorted samples
}

type sample struct {
	time     time.Time
	temp     float64
	humidity float64
}

func newModel(dir string, days []string, th anomaly.Thresholds) model {
	m := model{
		dir:  dir,
		th:   th,
		days: days,
	}
	m.loadDay()
	return m
}

func (m *model) loadDay() {
	day := m.days[m.dayIdx]
	rows, err := archive.LoadDay(m.dir, day)
	if err != nil {
		m.err = err
		m.readings, m.nodes, m.timeSlots, m.series = nil, nil, nil, nil
		return
	}
	m.readings = rows
	m.err = nil

	timeSet := make(map[int64]time.Time)
	seriesMap := make(map[string][]sample)

	for _, r := range rows {
		t := r.Time()
		if t.IsZero() {
			continue
		}
		timeSet[t.Unix()] = t
		seriesMap[r.Node] = append(seriesMap[r.Node], sample{time: t, temp: r.Temperature, humidity: r.Humidity})
	}

	nodes := make([]string, 0, len(seriesMap))
	for k := range seriesMap {
		nodes = append(nodes, k)
	}
	sort.Strings(nodes)
	m.nodes = nodes

	times := make([]time.Time, 0, len(timeSet))
	for _, t := range timeSet {
		times = append(times, t)
	}
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })
	m.timeSlots = times

	for k, pts := range seriesMap {
		sort.SliceStable(pts, func(i, j int) bool { return pts[i].time.Before(pts[j].time) })
		seriesMap[k] = pts
	}
	m.series = seriesMap

	m.cursor = 0
	if len(m.timeSlots) > 0 {
		m.cursor = len(m.timeSlots) - 1
	}
	m.scroll = 0
}

// ── Init / Update ────────────────────────────────────────────────────

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit

		case "left", "h":
			if m.cursor > 0 {
				m.cursor--
			}
		case "right", "l":
			if m.cursor < len(m.timeSlots)-1 {
				m.cursor++
			}
		case "shift+left", "H":
			m.cursor -= 60
			if m.cursor < 0 {
				m.cursor = 0
			}
		case "shift+right", "L":
			m.cursor += 60
			if m.cursor >= len(m.timeSlots) {
				m.cursor = len(m.timeSlots) - 1
			}
		case "home":
			m.cursor = 0
		case "end":
			if len(m.timeSlots) > 0 {
				m.cursor = len(m.timeSlots) - 1
			}

		case "[":
			if m.dayIdx < len(m.days)-1 {
				m.dayIdx++
				m.loadDay()
			}
		case "]":
			if m.dayIdx > 0 {
				m.dayIdx--
				m.loadDay()
			}

		case "up", "k":
			if m.scroll > 0 {
				m.scroll--
			}
		case "down", "j":
			m.scroll = m.scrollDown()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.scroll = min(m.scroll, maxScroll(len(m.lines()), m.height))
	}

	return m, nil
}

// ── View ─────────────────────────────────────────────────────────────

func (m model) View() string {
	if m.width == 0 {
		return "  Loading..."
	}

	lines := m.lines()
	start := min(m.scroll, maxScroll(len(lines), m.height))
	end := min(start+visibleLines(m.height), len(lines))

	return strings.Join(lines[start:end], "\n")
}

// lines renders the full screen content before scrolling.
func (m model) lines() []string {
	contentWidth := m.width - 2
	if contentWidth < 40 {
		contentWidth = 40
	}

	var sections []string

	sections = append(sections, m.renderTitle(contentWidth))

	if m.err != nil {
		errBox := lipgloss.NewStyle().
			Foreground(colorCrit).
			Bold(true).
			Padding(0, 1).
			Render(fmt.Sprintf("ERROR: %v", m.err))
		sections = append(sections, errBox)
	}

	if len(m.timeSlots) == 0 {
		empty := lipgloss.NewStyle().
			Foreground(colorDim).
			Padding(2, 0).
			Align(lipgloss.Center).
			Width(contentWidth).
			Render("No data for this day.")
		sections = append(sections, empty)
	} else {
		sections = append(sections, m.renderCursorInfo(contentWidth))
		sections = append(sections, m.renderPanels(contentWidth)...)
	}

	sections = append(sections, m.renderFooter(contentWidth))

	content := lipgloss.JoinVertical(lipgloss.Left, sections...)
	return strings.Split(content, "\n")
}

func visibleLines(height int) int {
	return max(height, 5)
}

func maxScroll(total, height int) int {
	return max(total-visibleLines(height), 0)
}

// scrollDown moves one line down without passing the last screenful.
func (m model) scrollDown() int {
	if m.width == 0 {
		return m.scroll
	}
	return min(m.scroll+1, maxScroll(len(m.lines()), m.height))
}

func (m model) renderTitle(width int) string {
	logo := lipgloss.NewStyle().
		Bold(true).
		Foreground(colorTitleFg).
		Render("SENSOR HISTORY")

	dayText := lipgloss.NewStyle().
		Foreground(colorCursor).
		Bold(true).
		Render(m.days[m.dayIdx])

	nav := lipgloss.NewStyle().
		Foreground(colorDim).
		Render(fmt.Sprintf("  [ %d/%d ]", m.dayIdx+1, len(m.days)))

	dataInfo := ""
	if len(m.timeSlots) > 0 {
		first := m.timeSlots[0].Format("15:04:05")
		last := m.timeSlots[len(m.timeSlots)-1].Format("15:04:05")
		dataInfo = lipgloss.NewStyle().
			Foreground(colorDim).
			Render(fmt.Sprintf("  %s - %s  (%d readings, %d nodes)",
				first, last, len(m.readings), len(m.nodes)))
	}

	right := dayText + nav + dataInfo

	gap := width - lipgloss.Width(logo) - lipgloss.Width(right) - 4
	if gap < 1 {
		gap = 1
	}
	filler := strings.Repeat(" ", gap)

	return lipgloss.NewStyle().
		Background(colorTitleBg).
		Width(width).
		Padding(0, 1).
		Render(logo + filler + right)
}

func (m model) renderCursorInfo(width int) string {
	if m.cursor < 0 || m.cursor >= len(m.timeSlots) {
		return ""
	}

	ts := lipgloss.NewStyle().
		Foreground(colorCursor).
		Bold(true).
		Render(m.timeSlots[m.cursor].Format("15:04:05"))

	pos := lipgloss.NewStyle().
		Foreground(colorDim).
		Render(fmt.Sprintf("  %d/%d", m.cursor+1, len(m.timeSlots)))

	barWidth := width - 30
	if barWidth < 10 {
		barWidth = 10
	}

	return lipgloss.NewStyle().
		Padding(0, 1).
		Render("  " + ts + pos + "  " + m.renderScrubber(barWidth))
}

func (m model) renderScrubber(width int) string {
	if len(m.timeSlots) == 0 || width <= 0 {
		return ""
	}

	pos := 0
	if len(m.timeSlots) > 1 {
		pos = m.cursor * (width - 1) / (len(m.timeSlots) - 1)
	}
	if pos >= width {
		pos = width - 1
	}

	var sb strings.Builder
	dimS := lipgloss.NewStyle().Foreground(lipgloss.Color("237"))
	curS := lipgloss.NewStyle().Foreground(colorCursor).Bold(true)
	tickS := lipgloss.NewStyle().Foreground(lipgloss.Color("239"))

	for i := 0; i < width; i++ {
		if i == pos {
			sb.WriteString(curS.Render("◆"))
			continue
		}
		slotIdx := 0
		if len(m.timeSlots) > 1 && width > 1 {
			slotIdx = i * (len(m.timeSlots) - 1) / (width - 1)
		}
		if slotIdx > 0 && slotIdx < len(m.timeSlots) &&
			m.timeSlots[slotIdx].Hour() != m.timeSlots[slotIdx-1].Hour() {
			sb.WriteString(tickS.Render("│"))
			continue
		}
		sb.WriteString(dimS.Render("─"))
	}

	return sb.String()
}

func (m model) renderPanels(totalWidth int) []string {
	if m.cursor < 0 || m.cursor >= len(m.timeSlots) {
		return nil
	}

	cursorTime := m.timeSlots[m.cursor]

	innerWidth := totalWidth - 4
	if innerWidth < 30 {
		innerWidth = 30
	}

	chartWidth := innerWidth - 60
	if chartWidth < 15 {
		chartWidth = 15
	}
	if chartWidth > 140 {
		chartWidth = 140
	}

	labelW := 12
	valueW := 8

	dimS := lipgloss.NewStyle().Foreground(colorDim)
	valS := lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
	frameL := lipgloss.NewStyle().Foreground(colorBorder).Render("▕")
	frameR := lipgloss.NewStyle().Foreground(colorBorder).Render("▏")

	var panels []string

	for _, node := range m.nodes {
		pts := m.series[node]
		if len(pts) == 0 {
			continue
		}
		cur := sampleAt(pts, cursorTime)

		var rows []string

		title := lipgloss.NewStyle().
			Bold(true).
			Foreground(colorNodeName).
			Render(node)
		header := title + "  " + dimS.Render(cur.time.Format(reading.TimeLayout))
		if findings := m.th.Evaluate(reading.Reading{Temperature: cur.temp, Humidity: cur.humidity}); len(findings) > 0 {
			header += "  " + lipgloss.NewStyle().Foreground(colorCrit).Bold(true).
				Render(strings.Join(findings, " | "))
		}
		rows = append(rows, header)

		sep := lipgloss.NewStyle().
			Foreground(lipgloss.Color("237")).
			Render(strings.Repeat("─", innerWidth))
		rows = append(rows, sep)

		metrics := []struct {
			label string
			unit  string
			band  chart.Band
			value func(sample) float64
			tags  string
		}{
			{
				label: "Temperature", unit: "°C", band: chart.TempBand(m.th),
				value: func(s sample) float64 { return s.temp },
				tags:  " " + lipgloss.NewStyle().Foreground(colorCrit).Render(fmt.Sprintf("max:%.0f°", m.th.TempMax)),
			},
			{
				label: "Humidity", unit: "%", band: chart.HumidityBand(m.th),
				value: func(s sample) float64 { return s.humidity },
				tags:  " " + lipgloss.NewStyle().Foreground(colorWarn).Render(fmt.Sprintf("%.0f-%.0f%%", m.th.HumidityMin, m.th.HumidityMax)),
			},
		}

		var sparkPts []chart.Point
		for _, mt := range metrics {
			all := make([]float64, len(pts))
			sum := 0.0
			lo, hi := mt.value(pts[0]), mt.value(pts[0])
			for i, p := range pts {
				v := mt.value(p)
				all[i] = v
				sum += v
				lo = min(lo, v)
				hi = max(hi, v)
			}
			rangeMin, rangeMax := chart.Range(all, mt.band)

			sparkPts = sparkWindow(pts, m.timeSlots, m.cursor, chartWidth, mt.value)

			label := lipgloss.NewStyle().
				Foreground(colorLabel).
				Bold(true).
				Width(labelW).
				Render(mt.label)

			value := lipgloss.NewStyle().
				Width(valueW).
				Align(lipgloss.Right).
				Render(chart.RenderValue(mt.value(cur), mt.unit, mt.band))

			spark := chart.RenderSparklinePoints(sparkPts, chartWidth, rangeMin, rangeMax, mt.band)

			st := dimS.Render(" avg") + valS.Render(fmt.Sprintf("%5.1f", sum/float64(len(pts)))) +
				dimS.Render(" lo") + valS.Render(fmt.Sprintf("%5.1f", lo)) +
				dimS.Render(" pk") + valS.Render(fmt.Sprintf("%5.1f", hi))

			rows = append(rows, label+" "+value+" "+frameL+spark+frameR+st+mt.tags)
		}

		timeline := chart.RenderTimeline(sparkPts, chartWidth)
		if strings.TrimSpace(timeline) != "" {
			pad := strings.Repeat(" ", labelW+valueW+2)
			rows = append(rows, pad+" "+timeline)
		}

		panel := lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1).
			Width(totalWidth).
			Render(lipgloss.JoinVertical(lipgloss.Left, rows...))

		panels = append(panels, panel)
	}

	return panels
}

func (m model) renderFooter(width int) string {
	dimS := lipgloss.NewStyle().Foreground(colorDim)
	keyS := lipgloss.NewStyle().Foreground(colorLabel)

	keys := dimS.Render("q") + keyS.Render(":quit") +
		dimS.Render("  h/l") + keyS.Render(":scrub") +
		dimS.Render("  H/L") + keyS.Render(":skip 60") +
		dimS.Render("  home/end") + keyS.Render(":jump") +
		dimS.Render("  [/]") + keyS.Render(":day") +
		dimS.Render("  j/k") + keyS.Render(":scroll")

	return lipgloss.NewStyle().
		Background(colorFooterBg).
		Width(width).
		Padding(0, 1).
		Render(keys)
}

// ── Helpers ──────────────────────────────────────────────────────────

// sampleAt returns the sample closest to t. pts must be sorted and non-empty.
func sampleAt(pts []sample, t time.Time) sample {
	best := pts[0]
	bestDiff := absDuration(pts[0].time.Sub(t))
	for _, p := range pts[1:] {
		diff := absDuration(p.time.Sub(t))
		if diff < bestDiff {
			bestDiff = diff
			best = p
		}
		if p.time.After(t) && diff > bestDiff {
			break
		}
	}
	return best
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// sparkWindow returns up to width points of one node ending at the cursor slot.
func sparkWindow(pts []sample, timeSlots []time.Time, cursorIdx, width int, value func(sample) float64) []chart.Point {
	if len(pts) == 0 || len(timeSlots) == 0 {
		return nil
	}

	byTime := make(map[int64]sample, len(pts))
	for _, p := range pts {
		byTime[p.time.Unix()] = p
	}

	var result []chart.Point
	for i := width - 1; i >= 0; i-- {
		slotIdx := cursorIdx - i
		if slotIdx < 0 || slotIdx >= len(timeSlots) {
			continue
		}
		t := timeSlots[slotIdx]
		if s, ok := byTime[t.Unix()]; ok {
			result = append(result, chart.Point{Value: value(s), Time: t})
		}
	}
	return result
}
