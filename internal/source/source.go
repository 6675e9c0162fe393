// Package source produces raw node lines, either from a serial device or
// from a synthetic generator when no device is available.
package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/luki/sensormon/internal/anomaly"
)

// ErrDeviceUnavailable is wrapped by OpenSerial when the port cannot be
// opened.
var ErrDeviceUnavailable = errors.New("serial device unavailable")

// DefaultInterval is the pause before each simulated line.
const DefaultInterval = 1 * time.Second

// Source yields one raw line per call. An empty line means nothing
// arrived before the read timeout.
type Source interface {
	ReadLine(ctx context.Context) (string, error)
	Close() error
}

// Options selects and configures a source.
type Options struct {
	Port       string
	Baud       int
	Simulate   bool
	Generator  string // "cyclic" or "smooth"
	Node       string
	Interval   time.Duration
	Thresholds anomaly.Thresholds
	Seed       uint64
}

// Open returns a serial source when the device can be opened and a
// simulator otherwise. Falling back is not an error.
func Open(opts Options, log *slog.Logger) Source {
	if !opts.Simulate {
		s, err := OpenSerial(opts.Port, opts.Baud)
		if err == nil {
			log.Info("connected to serial port", "port", opts.Port, "baud", opts.Baud)
			return s
		}
		log.Info("simulation mode enabled", "reason", err)
	} else {
		log.Info("simulation mode enabled", "reason", "forced by configuration")
	}

	gen, err := NewGenerator(opts.Generator, opts.Seed, opts.Thresholds)
	if err != nil {
		log.Warn("unknown generator, using cyclic", "generator", opts.Generator)
		gen, _ = NewGenerator("cyclic", opts.Seed, opts.Thresholds)
	}
	return NewSimulator(gen, opts.Node, opts.Interval)
}

// NewGenerator builds a named generator. A zero seed picks a random one.
func NewGenerator(name string, seed uint64, th anomaly.Thresholds) (Generator, error) {
	if seed == 0 {
		seed = rand.Uint64()
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	switch name {
	case "", "cyclic":
		return NewCyclic(rng, th), nil
	case "smooth":
		return NewSmooth(rng), nil
	default:
		return nil, fmt.Errorf("unknown generator %q", name)
	}
}

// Simulator turns generator samples into node lines at a fixed pace.
type Simulator struct {
	gen      Generator
	node     string
	interval time.Duration
}

// NewSimulator wraps gen. A non-positive interval means DefaultInterval.
func NewSimulator(gen Generator, node string, interval time.Duration) *Simulator {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if node == "" {
		node = "Node1"
	}
	return &Simulator{gen: gen, node: node, interval: interval}
}

// ReadLine waits one interval and returns the next simulated line.
func (s *Simulator) ReadLine(ctx context.Context) (string, error) {
	t := time.NewTimer(s.interval)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-t.C:
	}
	return FormatLine(s.node, s.gen.Next()), nil
}

// Close is a no-op for the simulator.
func (s *Simulator) Close() error { return nil }

// FormatLine renders a sample the way a node prints it on the wire.
func FormatLine(node string, smp Sample) string {
	return fmt.Sprintf("Received: %s | Temp: %.2f°C | Umid: %.2f", node, smp.Temp, smp.Humidity)
}
