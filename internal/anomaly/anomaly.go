// Package anomaly evaluates readings against fixed thresholds and keeps an
// append-only log of anomalous readings.
package anomaly

import (
	"strconv"
	"strings"

	"github.com/luki/sensormon/internal/reading"
)

// Thresholds are the limits a reading is checked against.
type Thresholds struct {
	TempMax     float64
	HumidityMin float64
	HumidityMax float64
}

// DefaultThresholds are the limits used unless configured otherwise.
var DefaultThresholds = Thresholds{
	TempMax:     30.0,
	HumidityMin: 40.0,
	HumidityMax: 70.0,
}

// Evaluate returns the findings for r. All comparisons are strict, so a
// value sitting exactly on a limit is not an anomaly.
func (t Thresholds) Evaluate(r reading.Reading) []string {
	var findings []string
	if t.TempHigh(r.Temperature) {
		findings = append(findings, "temperature high: "+formatValue(r.Temperature))
	}
	if t.HumidityLow(r.Humidity) {
		findings = append(findings, "humidity low: "+formatValue(r.Humidity))
	}
	if t.HumidityHigh(r.Humidity) {
		findings = append(findings, "humidity high: "+formatValue(r.Humidity))
	}
	return findings
}

// Anomalous reports whether r triggers at least one finding.
func (t Thresholds) Anomalous(r reading.Reading) bool {
	return t.TempHigh(r.Temperature) || t.HumidityLow(r.Humidity) || t.HumidityHigh(r.Humidity)
}

// TempHigh reports whether v is strictly above TempMax.
func (t Thresholds) TempHigh(v float64) bool { return v > t.TempMax }

// HumidityLow reports whether v is strictly below HumidityMin.
func (t Thresholds) HumidityLow(v float64) bool { return v < t.HumidityMin }

// HumidityHigh reports whether v is strictly above HumidityMax.
func (t Thresholds) HumidityHigh(v float64) bool { return v > t.HumidityMax }

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Record is one line of the anomaly log.
type Record struct {
	Timestamp string
	Node      string
	Findings  []string
}

// NewRecord builds the log record for r.
func NewRecord(r reading.Reading, findings []string) Record {
	return Record{Timestamp: r.Timestamp, Node: r.Node, Findings: findings}
}

// String renders the record as "<timestamp> | <node> | <f1> | <f2>".
func (rec Record) String() string {
	parts := make([]string, 0, len(rec.Findings)+2)
	parts = append(parts, rec.Timestamp, rec.Node)
	parts = append(parts, rec.Findings...)
	return strings.Join(parts, " | ")
}
