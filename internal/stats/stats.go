// Package stats tracks per-node min/peak/avg statistics and threshold
// exceedance counts over a sequence of readings.
package stats

import (
	"math"

	"github.com/luki/sensormon/internal/anomaly"
	"github.com/luki/sensormon/internal/reading"
)

// Series accumulates one quantity.
type Series struct {
	Count int
	Sum   float64
	Min   float64
	Peak  float64
}

// NewSeries returns an empty series.
func NewSeries() Series {
	return Series{Min: math.MaxFloat64, Peak: -math.MaxFloat64}
}

// Push adds a value.
func (s *Series) Push(v float64) {
	s.Count++
	s.Sum += v
	if v < s.Min {
		s.Min = v
	}
	if v > s.Peak {
		s.Peak = v
	}
}

// Avg returns the mean, or 0 if empty.
func (s Series) Avg() float64 {
	if s.Count == 0 {
		return 0
	}
	return s.Sum / float64(s.Count)
}

// Lo returns the minimum, or 0 if empty.
func (s Series) Lo() float64 {
	if s.Count == 0 {
		return 0
	}
	return s.Min
}

// Hi returns the peak, or 0 if empty.
func (s Series) Hi() float64 {
	if s.Count == 0 {
		return 0
	}
	return s.Peak
}

// NodeStats holds the statistics of one node.
type NodeStats struct {
	Node         string
	Temp         Series
	Humidity     Series
	TempHigh     int // readings above TempMax
	HumidityLow  int // readings below HumidityMin
	HumidityHigh int // readings above HumidityMax
	Anomalous    int // readings with at least one finding
}

// Count returns the number of readings seen for the node.
func (n *NodeStats) Count() int { return n.Temp.Count }

// Ratio returns part/Count, or 0 for an empty node.
func (n *NodeStats) Ratio(part int) float64 {
	if n.Count() == 0 {
		return 0
	}
	return float64(part) / float64(n.Count())
}

// Add records r against th.
func (n *NodeStats) Add(r reading.Reading, th anomaly.Thresholds) {
	n.Temp.Push(r.Temperature)
	n.Humidity.Push(r.Humidity)
	if th.TempHigh(r.Temperature) {
		n.TempHigh++
	}
	if th.HumidityLow(r.Humidity) {
		n.HumidityLow++
	}
	if th.HumidityHigh(r.Humidity) {
		n.HumidityHigh++
	}
	if th.Anomalous(r) {
		n.Anomalous++
	}
}

// Collect groups rows by node, in order of first appearance.
func Collect(rows []reading.Reading, th anomaly.Thresholds) []*NodeStats {
	index := make(map[string]*NodeStats)
	var out []*NodeStats
	for _, r := range rows {
		n, ok := index[r.Node]
		if !ok {
			n = &NodeStats{Node: r.Node, Temp: NewSeries(), Humidity: NewSeries()}
			index[r.Node] = n
			out = append(out, n)
		}
		n.Add(r, th)
	}
	return out
}
