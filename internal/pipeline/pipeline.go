// Package pipeline runs the monitoring iteration: read a line, parse it,
// store it, check it against the thresholds and forward it.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/luki/sensormon/internal/anomaly"
	"github.com/luki/sensormon/internal/archive"
	"github.com/luki/sensormon/internal/reading"
	"github.com/luki/sensormon/internal/sink"
	"github.com/luki/sensormon/internal/source"
	"github.com/luki/sensormon/internal/window"
)

const sinkTimeout = 2 * time.Second

// Outcome describes one iteration.
type Outcome struct {
	Line     string
	Reading  reading.Reading
	Findings []string
	Status   string // console line: the anomaly record or an OK line
	Stored   bool   // false for skipped and unparsable lines
	Err      error  // *reading.ParseError or a storage error; the loop goes on
}

// Anomalous reports whether the iteration produced findings.
func (o Outcome) Anomalous() bool { return len(o.Findings) > 0 }

// Config wires a pipeline. Archive and Sinks are optional.
type Config struct {
	Source     source.Source
	Window     *window.Window
	Log        *anomaly.Log
	Archive    *archive.Archive
	Sinks      sink.Multi
	Thresholds anomaly.Thresholds
	Logger     *slog.Logger
	Now        func() time.Time

	// RetryInterval is the pause after a failed read in Run.
	// Zero means source.DefaultInterval.
	RetryInterval time.Duration
}

// Pipeline owns the source and the stores for the life of the process.
type Pipeline struct {
	mu     sync.Mutex
	cfg    Config
	log    *slog.Logger
	now    func() time.Time
	retry  time.Duration
	closed bool
}

// New returns a pipeline for cfg.
func New(cfg Config) *Pipeline {
	p := &Pipeline{cfg: cfg, log: cfg.Logger, now: cfg.Now, retry: cfg.RetryInterval}
	if p.log == nil {
		p.log = slog.New(slog.DiscardHandler)
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.retry <= 0 {
		p.retry = source.DefaultInterval
	}
	return p
}

// ErrClosed is returned by Step after Close.
var ErrClosed = errors.New("pipeline closed")

// Step runs one iteration. It returns an error only when no line could be
// read (source failure or ctx cancelled while waiting). Once a line has
// been read the iteration finishes its writes even if ctx is cancelled.
func (p *Pipeline) Step(ctx context.Context) (Outcome, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return Outcome{}, ErrClosed
	}

	line, err := p.cfg.Source.ReadLine(ctx)
	if err != nil {
		return Outcome{}, err
	}
	out := Outcome{Line: line}
	if strings.TrimSpace(line) == "" {
		return out, nil
	}

	now := p.now()
	r, err := reading.Parse(line, now)
	if err != nil {
		p.log.Warn("discarding line", "err", err)
		out.Err = err
		out.Status = "invalid line: " + line
		return out, nil
	}
	out.Reading = r
	out.Stored = true

	if err := p.cfg.Window.Append(r); err != nil {
		p.log.Error("window snapshot failed", "err", err, "path", p.cfg.Window.Path())
		out.Err = err
	}
	if p.cfg.Archive != nil {
		if err := p.writeArchive(r, now); err != nil {
			p.log.Error("archive write failed", "err", err)
			out.Err = errors.Join(out.Err, err)
		}
	}

	out.Findings = p.cfg.Thresholds.Evaluate(r)
	if out.Anomalous() {
		rec := anomaly.NewRecord(r, out.Findings)
		out.Status = rec.String()
		if err := p.appendLog(rec); err != nil {
			p.log.Error("anomaly log write failed", "err", err, "path", p.cfg.Log.Path())
			out.Err = errors.Join(out.Err, err)
		}
		p.log.Warn("anomaly", "line", out.Status)
	} else {
		out.Status = okLine(r)
		p.log.Info("ok", "line", out.Status)
	}

	if len(p.cfg.Sinks) > 0 {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sinkTimeout)
		if err := p.cfg.Sinks.Publish(sctx, sink.NewEvent(r, out.Findings, now)); err != nil {
			p.log.Warn("publish failed", "err", err)
		}
		cancel()
	}
	return out, nil
}

func (p *Pipeline) writeArchive(r reading.Reading, t time.Time) error {
	err := p.cfg.Archive.Write(r, t)
	if err != nil {
		p.cfg.Archive.Close()
		err = p.cfg.Archive.Write(r, t)
	}
	return err
}

func (p *Pipeline) appendLog(rec anomaly.Record) error {
	err := p.cfg.Log.Append(rec)
	if err != nil {
		err = p.cfg.Log.Append(rec)
	}
	return err
}

func okLine(r reading.Reading) string {
	return r.Timestamp + " | " + r.Node + " | OK - Temp: " +
		formatFloat(r.Temperature) + "°C | Umid: " + formatFloat(r.Humidity) + "%"
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Run repeats Step until ctx is done, handing every outcome to fn. A
// source error is logged and retried after RetryInterval. Run returns nil
// on cancellation and ErrClosed once the pipeline is closed.
func (p *Pipeline) Run(ctx context.Context, fn func(Outcome)) error {
	for {
		out, err := p.Step(ctx)
		if err == nil {
			if fn != nil {
				fn(out)
			}
			if ctx.Err() != nil {
				return nil
			}
			continue
		}
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, ErrClosed) {
			return err
		}

		p.log.Warn("read failed, retrying", "err", err, "in", p.retry)
		t := time.NewTimer(p.retry)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}

// Window exposes the rolling store for readers such as the report.
func (p *Pipeline) Window() *window.Window { return p.cfg.Window }

// Archive exposes the history archive; nil when not configured.
func (p *Pipeline) Archive() *archive.Archive { return p.cfg.Archive }

// Log exposes the anomaly log.
func (p *Pipeline) Log() *anomaly.Log { return p.cfg.Log }

// Thresholds returns the limits readings are checked against.
func (p *Pipeline) Thresholds() anomaly.Thresholds { return p.cfg.Thresholds }

// Close waits for an in-flight step and releases the source, archive and
// sinks. It is safe to call more than once.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	var errs []error
	if err := p.cfg.Source.Close(); err != nil {
		errs = append(errs, err)
	}
	if p.cfg.Archive != nil {
		if err := p.cfg.Archive.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := p.cfg.Sinks.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
