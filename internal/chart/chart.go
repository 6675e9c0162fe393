// Package chart provides sparkline rendering with color-coded threshold
// bands, minute tick marks, timeline labels and threshold scale bars.
package chart

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/luki/sensormon/internal/anomaly"
)

var sparkBlocks = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

var (
	colorOk   = lipgloss.Color("78")
	colorWarn = lipgloss.Color("220")
	colorLow  = lipgloss.Color("39")
	colorHigh = lipgloss.Color("196")
)

// Point is a single value on a chart.
type Point struct {
	Value float64
	Time  time.Time
}

// Band is the acceptable range of a quantity. Either side may be open.
type Band struct {
	Low     float64
	High    float64
	HasLow  bool
	HasHigh bool
}

// TempBand is the temperature band for th.
func TempBand(th anomaly.Thresholds) Band {
	return Band{High: th.TempMax, HasHigh: true}
}

// HumidityBand is the humidity band for th.
func HumidityBand(th anomaly.Thresholds) Band {
	return Band{Low: th.HumidityMin, High: th.HumidityMax, HasLow: true, HasHigh: true}
}

// margin is the distance from a limit at which a value counts as close.
func (b Band) margin() float64 {
	if b.HasLow && b.HasHigh {
		return (b.High - b.Low) * 0.1
	}
	if b.HasHigh {
		return math.Abs(b.High) * 0.15
	}
	return math.Abs(b.Low) * 0.15
}

// Outside reports whether v breaks the band. Limits themselves are inside.
func (b Band) Outside(v float64) bool {
	return (b.HasHigh && v > b.High) || (b.HasLow && v < b.Low)
}

// Color returns the color for v: red above the band, blue below it,
// yellow close to a limit and green otherwise.
func (b Band) Color(v float64) lipgloss.Color {
	m := b.margin()
	switch {
	case b.HasHigh && v > b.High:
		return colorHigh
	case b.HasLow && v < b.Low:
		return colorLow
	case b.HasHigh && v >= b.High-m:
		return colorWarn
	case b.HasLow && v <= b.Low+m:
		return colorWarn
	default:
		return colorOk
	}
}

// Range returns a chart range around values that also shows the limits.
func Range(values []float64, b Band) (float64, float64) {
	lo, hi := math.MaxFloat64, -math.MaxFloat64
	for _, v := range values {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if b.HasLow {
		lo = math.Min(lo, b.Low)
		hi = math.Max(hi, b.Low)
	}
	if b.HasHigh {
		lo = math.Min(lo, b.High)
		hi = math.Max(hi, b.High)
	}
	if lo > hi {
		return 0, 1
	}
	return math.Max(0, lo-5), hi + 5
}

// RenderSparkline renders a sparkline chart with color-coded blocks and
// no timestamp ticks.
func RenderSparkline(values []float64, width int, rangeMin, rangeMax float64, b Band) string {
	if width <= 0 {
		return ""
	}
	pts := make([]Point, len(values))
	for i, v := range values {
		pts[i] = Point{Value: v}
	}
	return RenderSparklinePoints(pts, width, rangeMin, rangeMax, b)
}

func isMinuteTick(points []Point, i int) bool {
	p := points[i]
	if p.Time.IsZero() {
		return false
	}
	if p.Time.Second() == 0 {
		return true
	}
	return i > 0 && !points[i-1].Time.IsZero() && p.Time.Minute() != points[i-1].Time.Minute()
}

// RenderSparklinePoints renders a sparkline with a subtle pipe at each
// minute boundary.
func RenderSparklinePoints(points []Point, width int, rangeMin, rangeMax float64, b Band) string {
	if width <= 0 {
		return ""
	}

	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("236"))
	if len(points) == 0 {
		return dim.Render(strings.Repeat("╌", width))
	}

	if len(points) > width {
		points = points[len(points)-width:]
	}

	padLen := width - len(points)
	span := rangeMax - rangeMin
	if span <= 0 {
		span = 1
	}

	var sb strings.Builder
	for i := 0; i < padLen; i++ {
		sb.WriteString(dim.Render("╌"))
	}

	tickStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("239"))

	for i, p := range points {
		if isMinuteTick(points, i) {
			sb.WriteString(tickStyle.Render("│"))
			continue
		}

		norm := (p.Value - rangeMin) / span
		norm = math.Max(0, math.Min(1, norm))
		idx := int(norm * 7)
		if idx > 7 {
			idx = 7
		}

		style := lipgloss.NewStyle().Foreground(b.Color(p.Value))
		if b.Outside(p.Value) {
			style = style.Bold(true)
		}
		sb.WriteString(style.Render(string(sparkBlocks[idx])))
	}

	return sb.String()
}

// RenderTimeline renders HH:MM labels under the sparkline at each minute
// tick position.
func RenderTimeline(points []Point, width int) string {
	if len(points) == 0 || width <= 0 {
		return ""
	}

	if len(points) > width {
		points = points[len(points)-width:]
	}

	padLen := width - len(points)

	line := make([]rune, width)
	for i := range line {
		line[i] = ' '
	}

	lastEnd := -1
	for i, p := range points {
		if !isMinuteTick(points, i) {
			continue
		}
		label := p.Time.Format("15:04")
		start := padLen + i - 2
		if start < 0 {
			start = 0
		}
		end := start + len(label)
		if end > width || start <= lastEnd+1 {
			continue
		}
		for j, ch := range label {
			line[start+j] = ch
		}
		lastEnd = end
	}

	tickStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	return tickStyle.Render(string(line))
}

// RenderThresholdScale renders a scale bar with the band limits and the
// current value.
func RenderThresholdScale(current, rangeMin, rangeMax float64, b Band, width int) string {
	if width <= 0 {
		return ""
	}

	span := rangeMax - rangeMin
	if span <= 0 {
		span = 1
	}
	pos := func(v float64) int {
		p := int(float64(width-1) * (v - rangeMin) / span)
		return max(0, min(width-1, p))
	}

	lowPos, highPos := -1, -1
	if b.HasLow {
		lowPos = pos(b.Low)
	}
	if b.HasHigh {
		highPos = pos(b.High)
	}
	curPos := pos(current)

	dotS := lipgloss.NewStyle().Foreground(lipgloss.Color("236"))
	lowS := lipgloss.NewStyle().Foreground(colorLow)
	highS := lipgloss.NewStyle().Foreground(colorHigh)
	curS := lipgloss.NewStyle().Foreground(b.Color(current)).Bold(true)

	var sb strings.Builder
	for i := 0; i < width; i++ {
		switch i {
		case curPos:
			sb.WriteString(curS.Render("◆"))
		case highPos:
			sb.WriteString(highS.Render("▪"))
		case lowPos:
			sb.WriteString(lowS.Render("▪"))
		default:
			sb.WriteString(dotS.Render("·"))
		}
	}
	return sb.String()
}

// RenderValue renders v with its unit, colored by b.
func RenderValue(v float64, unit string, b Band) string {
	style := lipgloss.NewStyle().Foreground(b.Color(v))
	if b.Outside(v) {
		style = style.Bold(true)
	}
	return style.Render(fmt.Sprintf("%5.1f%s", v, unit))
}
