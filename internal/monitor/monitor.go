// Package monitor implements the live sensor monitoring TUI using
// BubbleTea, with per-node sparkline charts colored by the thresholds.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/luki/sensormon/internal/chart"
	"github.com/luki/sensormon/internal/pipeline"
	"github.com/luki/sensormon/internal/reading"
	"github.com/luki/sensormon/internal/report"
	"github.com/luki/sensormon/internal/stats"
)

const (
	retryInterval = 1 * time.Second
	feedSize      = 6
)

// ── Messages ─────────────────────────────────────────────────────────

type tickMsg time.Time

type stepMsg struct {
	out  pipeline.Outcome
	rows []reading.Reading
	err  error
	at   time.Time
}

type exportMsg struct {
	path string
	err  error
}

// ── Model ────────────────────────────────────────────────────────────

// Model is the BubbleTea model for the live monitor.
type Model struct {
	ctx       context.Context
	pipeline  *pipeline.Pipeline
	mode      string
	reportDir string

	rows      []reading.Reading
	last      pipeline.Outcome
	hasLast   bool
	feed      []string
	notice    string
	err       error
	width     int
	height    int
	scroll    int
	lastPoll  time.Time
	startTime time.Time
	paused    bool
	stepping  bool
}

// New creates the initial model. mode labels the reading source
// ("serial" or "simulation").
func New(ctx context.Context, p *pipeline.Pipeline, mode, reportDir string) Model {
	m := Model{
		ctx:       ctx,
		pipeline:  p,
		mode:      mode,
		reportDir: reportDir,
		rows:      p.Window().Rows(),
		startTime: time.Now(),
		stepping:  true,
	}
	if tail, err := p.Log().Tail(feedSize); err == nil {
		m.feed = tail
	}
	return m
}

// Run starts the TUI and blocks until the user quits.
func Run(ctx context.Context, p *pipeline.Pipeline, mode, reportDir string) error {
	prog := tea.NewProgram(
		New(ctx, p, mode, reportDir),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)
	_, err := prog.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

// ── Commands ─────────────────────────────────────────────────────────

func tickCmd() tea.Cmd {
	return tea.Tick(retryInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) stepCmd() tea.Cmd {
	p, ctx := m.pipeline, m.ctx
	return func() tea.Msg {
		out, err := p.Step(ctx)
		return stepMsg{out: out, rows: p.Window().Rows(), err: err, at: time.Now()}
	}
}

func (m Model) exportCmd() tea.Cmd {
	p, dir := m.pipeline, m.reportDir
	return func() tea.Msg {
		var rows []reading.Reading
		if a := p.Archive(); a != nil {
			archived, err := a.Snapshot()
			if err != nil {
				return exportMsg{err: err}
			}
			rows = archived
		}
		if len(rows) == 0 {
			rows = p.Window().Rows()
		}
		path, err := report.Export(dir, rows, p.Thresholds(), time.Now())
		return exportMsg{path: path, err: err}
	}
}

// ── Init / Update ────────────────────────────────────────────────────

func (m Model) Init() tea.Cmd {
	return m.stepCmd()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "up", "k":
			if m.scroll > 0 {
				m.scroll--
			}
		case "down", "j":
			m.scroll = m.scrollDown()
		case "home":
			m.scroll = 0
		case " ", "p":
			m.paused = !m.paused
			if !m.paused && !m.stepping {
				m.stepping = true
				return m, m.stepCmd()
			}
		case "e":
			m.notice = "exporting report..."
			return m, m.exportCmd()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.scroll = min(m.scroll, maxScroll(len(m.lines()), m.height))

	case tickMsg:
		if m.paused || m.stepping {
			return m, nil
		}
		m.stepping = true
		return m, m.stepCmd()

	case stepMsg:
		m.stepping = false
		if msg.err != nil {
			if m.ctx.Err() != nil || errors.Is(msg.err, pipeline.ErrClosed) {
				return m, nil
			}
			m.err = fmt.Errorf("read: %w", msg.err)
			return m, tickCmd()
		}
		m.rows = msg.rows
		m.lastPoll = msg.at
		if msg.out.Line != "" {
			m.last = msg.out
			m.hasLast = true
			m.err = msg.out.Err
			if msg.out.Anomalous() {
				m.feed = append(m.feed, msg.out.Status)
				if len(m.feed) > feedSize {
					m.feed = m.feed[len(m.feed)-feedSize:]
				}
			}
		}
		if m.paused {
			return m, nil
		}
		m.stepping = true
		return m, m.stepCmd()

	case exportMsg:
		if msg.err != nil {
			m.notice = ""
			m.err = fmt.Errorf("export: %w", msg.err)
		} else {
			m.notice = "report saved: " + msg.path
		}
	}

	return m, nil
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
	colorOk       = lipgloss.Color("78")
	colorWarn     = lipgloss.Color("220")
	colorCrit     = lipgloss.Color("196")
	colorNotice   = lipgloss.Color("45")
)

// ── View ─────────────────────────────────────────────────────────────

func (m Model) View() string {
	if m.width == 0 {
		return "  Initializing..."
	}

	lines := m.lines()
	start := min(m.scroll, maxScroll(len(lines), m.height))
	end := min(start+visibleLines(m.height), len(lines))

	return strings.Join(lines[start:end], "\n")
}

// lines renders the full screen content before scrolling.
func (m Model) lines() []string {
	contentWidth := m.width - 2
	if contentWidth < 40 {
		contentWidth = 40
	}

	var sections []string

	sections = append(sections, m.renderTitleBar(contentWidth))
	sections = append(sections, m.renderStatus(contentWidth))

	if m.err != nil {
		errBox := lipgloss.NewStyle().
			Foreground(colorCrit).
			Bold(true).
			Width(contentWidth).
			Padding(0, 1).
			Render(fmt.Sprintf(" ERROR: %v", m.err))
		sections = append(sections, errBox)
	}

	if len(m.rows) == 0 {
		waiting := lipgloss.NewStyle().
			Foreground(colorDim).
			Width(contentWidth).
			Align(lipgloss.Center).
			Padding(2, 0).
			Render("Waiting for sensor data...")
		sections = append(sections, waiting)
	} else {
		sections = append(sections, m.renderNodePanels(contentWidth)...)
	}

	sections = append(sections, m.renderFeed(contentWidth))
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
func (m Model) scrollDown() int {
	if m.width == 0 {
		return m.scroll
	}
	return min(m.scroll+1, maxScroll(len(m.lines()), m.height))
}

func (m Model) renderTitleBar(width int) string {
	logo := lipgloss.NewStyle().
		Bold(true).
		Foreground(colorTitleFg).
		Render("SENSOR MONITOR")

	dimS := lipgloss.NewStyle().Foreground(colorDim)
	var statusParts []string

	statusParts = append(statusParts, dimS.Render(m.mode))
	statusParts = append(statusParts, dimS.Render(fmt.Sprintf("up %s", fmtDuration(time.Since(m.startTime)))))

	if !m.lastPoll.IsZero() {
		statusParts = append(statusParts, dimS.Render(m.lastPoll.Format("15:04:05")))
	}

	if m.paused {
		p := lipgloss.NewStyle().
			Foreground(colorCrit).
			Bold(true).
			Render("PAUSED")
		statusParts = append(statusParts, p)
	}

	w := m.pipeline.Window()
	rec := lipgloss.NewStyle().Foreground(colorCrit).Render("REC") +
		dimS.Render(fmt.Sprintf(" %s %d/%d", w.Path(), len(m.rows), w.Limit()))
	statusParts = append(statusParts, rec)

	sep := dimS.Render(" │ ")
	right := strings.Join(statusParts, sep)

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

func (m Model) renderStatus(width int) string {
	style := lipgloss.NewStyle().Width(width).Padding(0, 1)

	var line string
	switch {
	case !m.hasLast:
		line = lipgloss.NewStyle().Foreground(colorDim).Render("no reading yet")
	case m.last.Anomalous():
		line = lipgloss.NewStyle().Foreground(colorCrit).Bold(true).Render("⚠ " + m.last.Status)
	case !m.last.Stored:
		line = lipgloss.NewStyle().Foreground(colorWarn).Render("✗ " + m.last.Status)
	default:
		line = lipgloss.NewStyle().Foreground(colorOk).Render("✓ " + m.last.Status)
	}

	if m.notice != "" {
		line += "  " + lipgloss.NewStyle().Foreground(colorNotice).Render(m.notice)
	}
	return style.Render(line)
}

// series splits the window into per-node temperature and humidity points.
func series(rows []reading.Reading) (order []string, temps, hums map[string][]chart.Point) {
	temps = make(map[string][]chart.Point)
	hums = make(map[string][]chart.Point)
	for _, r := range rows {
		if _, ok := temps[r.Node]; !ok {
			order = append(order, r.Node)
		}
		t := r.Time()
		temps[r.Node] = append(temps[r.Node], chart.Point{Value: r.Temperature, Time: t})
		hums[r.Node] = append(hums[r.Node], chart.Point{Value: r.Humidity, Time: t})
	}
	return order, temps, hums
}

func values(pts []chart.Point) []float64 {
	out := make([]float64, len(pts))
	for i, p := range pts {
		out[i] = p.Value
	}
	return out
}

func (m Model) renderNodePanels(totalWidth int) []string {
	th := m.pipeline.Thresholds()
	order, temps, hums := series(m.rows)

	nodeStats := make(map[string]*stats.NodeStats)
	for _, n := range stats.Collect(m.rows, th) {
		nodeStats[n.Node] = n
	}

	innerWidth := totalWidth - 4
	if innerWidth < 30 {
		innerWidth = 30
	}

	chartWidth := innerWidth - 62
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

	type row struct {
		label string
		unit  string
		pts   []chart.Point
		band  chart.Band
		ser   stats.Series
		tags  string
	}

	var panels []string

	for _, node := range order {
		ns := nodeStats[node]

		var lines []string
		title := lipgloss.NewStyle().Bold(true).Foreground(colorNodeName).Render(node)
		count := dimS.Render(fmt.Sprintf("%d readings, %d anomalous", ns.Count(), ns.Anomalous))
		lines = append(lines, title+"  "+count)

		rows := []row{
			{
				label: "Temperature", unit: "°C", pts: temps[node], band: chart.TempBand(th), ser: ns.Temp,
				tags: dimS.Render(" max ") + lipgloss.NewStyle().Foreground(colorCrit).Render(fmt.Sprintf("%.0f", th.TempMax)),
			},
			{
				label: "Humidity", unit: "%", pts: hums[node], band: chart.HumidityBand(th), ser: ns.Humidity,
				tags: dimS.Render(" range ") + lipgloss.NewStyle().Foreground(colorWarn).Render(fmt.Sprintf("%.0f-%.0f", th.HumidityMin, th.HumidityMax)),
			},
		}

		for _, r := range rows {
			current := r.pts[len(r.pts)-1].Value
			rangeMin, rangeMax := chart.Range(values(r.pts), r.band)

			label := lipgloss.NewStyle().
				Foreground(colorLabel).
				Width(labelW).
				Render(r.label)

			value := lipgloss.NewStyle().
				Width(valueW).
				Align(lipgloss.Right).
				Render(chart.RenderValue(current, r.unit, r.band))

			spark := chart.RenderSparklinePoints(r.pts, chartWidth, rangeMin, rangeMax, r.band)
			framedSpark := frameL + spark + frameR

			st := dimS.Render(" avg") + valS.Render(fmt.Sprintf("%5.1f", r.ser.Avg())) +
				dimS.Render(" lo") + valS.Render(fmt.Sprintf("%5.1f", r.ser.Lo())) +
				dimS.Render(" pk") + valS.Render(fmt.Sprintf("%5.1f", r.ser.Hi()))

			scale := " " + chart.RenderThresholdScale(current, rangeMin, rangeMax, r.band, 12)

			lines = append(lines, label+" "+value+" "+framedSpark+st+r.tags+scale)
		}

		timeline := chart.RenderTimeline(temps[node], chartWidth)
		if strings.TrimSpace(timeline) != "" {
			pad := strings.Repeat(" ", labelW+valueW+2)
			lines = append(lines, pad+" "+timeline)
		}

		panelContent := lipgloss.JoinVertical(lipgloss.Left, lines...)
		panel := lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1).
			Width(totalWidth).
			Render(panelContent)

		panels = append(panels, panel)
	}

	return panels
}

func (m Model) renderFeed(width int) string {
	dimS := lipgloss.NewStyle().Foreground(colorDim)

	lines := []string{dimS.Render("Recent anomalies  ") + dimS.Render(m.pipeline.Log().Path())}
	if len(m.feed) == 0 {
		lines = append(lines, dimS.Render("none"))
	}
	alertS := lipgloss.NewStyle().Foreground(colorCrit)
	for i := len(m.feed) - 1; i >= 0; i-- {
		lines = append(lines, alertS.Render(truncate(m.feed[i], width-6)))
	}

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(colorBorder).
		Padding(0, 1).
		Width(width).
		Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func (m Model) renderFooter(width int) string {
	okS := lipgloss.NewStyle().Foreground(colorOk).Render("██")
	warnS := lipgloss.NewStyle().Foreground(colorWarn).Render("██")
	lowS := lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Render("██")
	critS := lipgloss.NewStyle().Foreground(colorCrit).Render("██")
	tickS := lipgloss.NewStyle().Foreground(lipgloss.Color("239")).Render("│")

	dimS := lipgloss.NewStyle().Foreground(colorDim)
	keyS := lipgloss.NewStyle().Foreground(colorLabel)
	legend := okS + dimS.Render(" ok ") +
		warnS + dimS.Render(" near limit ") +
		lowS + dimS.Render(" low ") +
		critS + dimS.Render(" high ") +
		tickS + dimS.Render(" 1min")

	keys := dimS.Render("q") + keyS.Render(":quit") +
		dimS.Render("  p") + keyS.Render(":pause") +
		dimS.Render("  e") + keyS.Render(":export") +
		dimS.Render("  j/k") + keyS.Render(":scroll")

	gap := width - lipgloss.Width(legend) - lipgloss.Width(keys) - 4
	if gap < 1 {
		gap = 1
	}
	filler := strings.Repeat(" ", gap)

	return lipgloss.NewStyle().
		Background(colorFooterBg).
		Width(width).
		Padding(0, 1).
		Render(legend + filler + keys)
}

func truncate(s string, w int) string {
	r := []rune(s)
	if len(r) <= w {
		return s
	}
	if w <= 3 {
		return string(r[:max(w, 0)])
	}
	return string(r[:w-1]) + "…"
}

func fmtDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	return fmt.Sprintf("%dm%02ds", m, s)
}
