// Package report builds the summary report of the reading history:
// per-node aggregates, the anomaly total and maintenance suggestions.
package report

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/luki/sensormon/internal/anomaly"
	"github.com/luki/sensormon/internal/reading"
	"github.com/luki/sensormon/internal/stats"
)

// SuggestionRatio is the share of a node's readings that must exceed a
// limit before a suggestion is made.
const SuggestionRatio = 0.3

const fileLayout = "20060102_150405"

// Summary is the aggregate of one node. Values are rounded to two decimals.
type Summary struct {
	Node         string
	Readings     int
	TempMean     float64
	TempMax      float64
	TempMin      float64
	HumidityMean float64
	HumidityMax  float64
	HumidityMin  float64
}

// Report is the result of Build.
type Report struct {
	GeneratedAt    time.Time
	Thresholds     anomaly.Thresholds
	Readings       int
	Nodes          []Summary
	TotalAnomalies int
	Suggestions    []string
}

// Build aggregates rows against th.
func Build(rows []reading.Reading, th anomaly.Thresholds, now time.Time) Report {
	rep := Report{GeneratedAt: now, Thresholds: th, Readings: len(rows)}

	for _, n := range stats.Collect(rows, th) {
		rep.Nodes = append(rep.Nodes, Summary{
			Node:         n.Node,
			Readings:     n.Count(),
			TempMean:     round2(n.Temp.Avg()),
			TempMax:      round2(n.Temp.Hi()),
			TempMin:      round2(n.Temp.Lo()),
			HumidityMean: round2(n.Humidity.Avg()),
			HumidityMax:  round2(n.Humidity.Hi()),
			HumidityMin:  round2(n.Humidity.Lo()),
		})
		rep.TotalAnomalies += n.Anomalous
		rep.Suggestions = append(rep.Suggestions, suggest(n)...)
	}
	return rep
}

func suggest(n *stats.NodeStats) []string {
	var out []string
	if n.Ratio(n.TempHigh) > SuggestionRatio {
		out = append(out, fmt.Sprintf("Possible persistent overheating on %s: check the ventilation system", n.Node))
	}
	if n.Ratio(n.HumidityLow) > SuggestionRatio {
		out = append(out, fmt.Sprintf("Humidity very low on %s: check the humidifier", n.Node))
	}
	if n.Ratio(n.HumidityHigh) > SuggestionRatio {
		out = append(out, fmt.Sprintf("Humidity very high on %s: check ventilation or the exhaust system", n.Node))
	}
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// WriteText renders the report as plain text.
func (r Report) WriteText(w io.Writer) error {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Sensor report  %s\n", r.GeneratedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&sb, "Limits: temp > %g°C, humidity < %g%% or > %g%%\n",
		r.Thresholds.TempMax, r.Thresholds.HumidityMin, r.Thresholds.HumidityMax)
	fmt.Fprintf(&sb, "Readings: %d\n\n", r.Readings)

	sb.WriteString("Summary per node\n")
	fmt.Fprintf(&sb, "%-12s %8s %9s %9s %9s %9s %9s %9s\n",
		"node", "count", "temp avg", "temp max", "temp min", "umid avg", "umid max", "umid min")
	for _, n := range r.Nodes {
		fmt.Fprintf(&sb, "%-12s %8d %9.2f %9.2f %9.2f %9.2f %9.2f %9.2f\n",
			n.Node, n.Readings, n.TempMean, n.TempMax, n.TempMin, n.HumidityMean, n.HumidityMax, n.HumidityMin)
	}

	fmt.Fprintf(&sb, "\nTotal anomalies: %d\n\n", r.TotalAnomalies)

	sb.WriteString("Suggestions\n")
	if len(r.Suggestions) == 0 {
		sb.WriteString("- none\n")
	}
	for _, s := range r.Suggestions {
		fmt.Fprintf(&sb, "- %s\n", s)
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

// FileName returns the report file name for a report generated at t.
func FileName(t time.Time) string {
	return "report_" + t.Format(fileLayout) + ".txt"
}

// Export builds the report for rows and writes it into dir. It returns
// the path of the written file.
func Export(dir string, rows []reading.Reading, th anomaly.Thresholds, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("cannot create report dir: %w", err)
	}

	rep := Build(rows, th, now)
	path := filepath.Join(dir, FileName(now))
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if err := rep.WriteText(f); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return path, nil
}
