package source

import (
	"math"
	"math/rand/v2"

	"github.com/luki/sensormon/internal/anomaly"
)

const (
	baseTemp     = 25.0
	baseHumidity = 55.0
)

// Sample is one generated temperature/humidity pair.
type Sample struct {
	Temp     float64
	Humidity float64
}

// Generator produces synthetic samples. Implementations carry their own
// state; Reset returns them to the initial baseline.
type Generator interface {
	Next() Sample
	Reset()
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + (hi-lo)*rng.Float64()
}

// Cyclic repeats a four step pattern: two readings near the drifting
// baseline, one above the limits, one below them.
type Cyclic struct {
	rng        *rand.Rand
	thresholds anomaly.Thresholds

	temp     float64
	humidity float64
	count    int
}

// NewCyclic returns a cyclic generator built around th.
func NewCyclic(rng *rand.Rand, th anomaly.Thresholds) *Cyclic {
	c := &Cyclic{rng: rng, thresholds: th}
	c.Reset()
	return c
}

// Reset restores the initial baseline and phase.
func (c *Cyclic) Reset() {
	c.temp = baseTemp
	c.humidity = baseHumidity
	c.count = 0
}

// Phase returns the phase the next call to Next will use (0..3).
func (c *Cyclic) Phase() int {
	return (c.count + 1) % 4
}

// Next advances the cycle. The baseline follows the unclamped value.
func (c *Cyclic) Next() Sample {
	c.count++

	var temp, humidity float64
	switch c.count % 4 {
	case 1, 2:
		temp = c.temp + uniform(c.rng, -0.5, 0.5)
		humidity = c.humidity + uniform(c.rng, -1.5, 1.5)
	case 3:
		temp = c.thresholds.TempMax + uniform(c.rng, 1, 5)
		humidity = c.thresholds.HumidityMax + uniform(c.rng, 1, 5)
	default:
		temp = c.thresholds.TempMax - 15 - uniform(c.rng, 0, 5)
		humidity = c.thresholds.HumidityMin - 10 - uniform(c.rng, 0, 5)
	}
	c.temp = temp
	c.humidity = humidity

	return Sample{
		Temp:     round2(clamp(temp, 0, 50)),
		Humidity: round2(clamp(humidity, 0, 100)),
	}
}

// smoothOffsets is the temperature nudge pattern, scaled by smoothStep.
var smoothOffsets = []float64{3, -2, 2, -3, 1, -1}

const smoothStep = 0.3

// Smooth oscillates gently around the baseline and never leaves
// [20,35] °C and [35,75] %.
type Smooth struct {
	rng      *rand.Rand
	temp     float64
	humidity float64
	idx      int
}

// NewSmooth returns a smooth oscillation generator.
func NewSmooth(rng *rand.Rand) *Smooth {
	s := &Smooth{rng: rng}
	s.Reset()
	return s
}

// Reset restores the initial baseline and offset index.
func (s *Smooth) Reset() {
	s.temp = baseTemp
	s.humidity = baseHumidity
	s.idx = 0
}

// Next applies the next offset to the baseline.
func (s *Smooth) Next() Sample {
	off := smoothOffsets[s.idx%len(smoothOffsets)]
	s.idx++

	s.temp = clamp(s.temp+off*smoothStep, 20, 35)
	s.humidity = clamp(s.humidity+uniform(s.rng, -1.5, 1.5), 35, 75)
	return Sample{Temp: s.temp, Humidity: s.humidity}
}
