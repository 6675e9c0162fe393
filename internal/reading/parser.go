package reading

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ParseError reports a line that does not follow the node protocol
//
//	<prefix>: <node> | Temp: <float>°C | Umid: <float>
type ParseError struct {
	Line   string
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse %q: %s: %v", e.Line, e.Reason, e.Err)
	}
	return fmt.Sprintf("parse %q: %s", e.Line, e.Reason)
}

func (e *ParseError) Unwrap() error { return e.Err }

var unitSuffixes = []string{"°C", "ºC", "C", "%"}

// Segment labels, matched case-insensitively.
const (
	tempLabel     = "Temp"
	humidityLabel = "Umid"
)

// Parse extracts a reading from a raw node line and stamps it with now.
// The "<prefix>:" part is optional.
func Parse(line string, now time.Time) (Reading, error) {
	raw := line
	line = strings.TrimSpace(line)
	if line == "" {
		return Reading{}, &ParseError{Line: raw, Reason: "empty line"}
	}

	parts := strings.Split(line, "|")
	if len(parts) < 3 {
		return Reading{}, &ParseError{Line: raw, Reason: fmt.Sprintf("expected 3 fields, got %d", len(parts))}
	}

	node := parts[0]
	if i := strings.Index(node, ":"); i >= 0 {
		node = node[i+1:]
	}
	node = strings.TrimSpace(node)
	if node == "" {
		return Reading{}, &ParseError{Line: raw, Reason: "missing node name"}
	}

	temp, err := parseField(parts[1], tempLabel)
	if err != nil {
		return Reading{}, &ParseError{Line: raw, Reason: "temperature", Err: err}
	}
	humidity, err := parseField(parts[2], humidityLabel)
	if err != nil {
		return Reading{}, &ParseError{Line: raw, Reason: "humidity", Err: err}
	}

	return New(node, temp, humidity, now), nil
}

// parseField reads the value of a "<label>: 12.34<unit>" segment.
func parseField(seg, label string) (float64, error) {
	kv := strings.SplitN(seg, ":", 2)
	if len(kv) != 2 {
		return 0, fmt.Errorf("missing ':' in %q", strings.TrimSpace(seg))
	}
	if got := strings.TrimSpace(kv[0]); !strings.EqualFold(got, label) {
		return 0, fmt.Errorf("label %q, want %q", got, label)
	}
	val := strings.TrimSpace(kv[1])
	for _, suffix := range unitSuffixes {
		if strings.HasSuffix(val, suffix) {
			val = strings.TrimSpace(strings.TrimSuffix(val, suffix))
			break
		}
	}
	v, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("non-finite value %q", val)
	}
	return v, nil
}
