package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/luki/sensormon/internal/anomaly"
	"github.com/luki/sensormon/internal/archive"
	"github.com/luki/sensormon/internal/config"
	"github.com/luki/sensormon/internal/logging"
	"github.com/luki/sensormon/internal/monitor"
	"github.com/luki/sensormon/internal/pipeline"
	"github.com/luki/sensormon/internal/report"
	"github.com/luki/sensormon/internal/sink"
	"github.com/luki/sensormon/internal/source"
	"github.com/luki/sensormon/internal/viewer"
	"github.com/luki/sensormon/internal/window"
)

var commands = []struct {
	name string
	desc string
}{
	{"", "Live monitor (TUI on a terminal, log lines otherwise)"},
	{"history", "Browse the daily archive"},
	{"report", "Write a report from the archive and exit"},
	{"simulate", "Print simulated node lines to stdout"},
}

func main() {
	args := os.Args[1:]
	cmd := ""
	if len(args) > 0 {
		cmd = args[0]
	}

	switch cmd {
	case "", "monitor":
		os.Exit(runMonitor())
	case "history":
		os.Exit(runHistory())
	case "report":
		os.Exit(runReport())
	case "simulate":
		runSimulate(args[1:])
	case "help", "-h", "--help":
		printHelp()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printHelp()
		os.Exit(2)
	}
}

func printHelp() {
	fmt.Println("Usage: sensormon [command]")
	fmt.Println()
	fmt.Println("Commands:")
	for _, c := range commands {
		name := c.name
		if name == "" {
			name = "(none)"
		}
		fmt.Printf("  %-10s  %s\n", name, c.desc)
	}
	fmt.Println()
	fmt.Println("Settings come from SENSORMON_* variables or a .env file,")
	fmt.Println("e.g. SENSORMON_PORT=/dev/ttyACM0 SENSORMON_SIMULATE=true")
}

func loadConfig() config.Config {
	boot := slog.New(slog.NewTextHandler(os.Stderr, nil))
	return config.Load(boot)
}

func runMonitor() int {
	cfg := loadConfig()

	fd := os.Stdout.Fd()
	headless := cfg.Headless || !(isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd))

	log, closer := logging.Init(cfg.DataDir, headless, cfg.LogLevel)
	defer closer.Close()
	slog.SetDefault(log)

	p, mode, err := openPipeline(cfg, log)
	if err != nil {
		log.Error("startup failed", "err", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer func() {
		if err := p.Close(); err != nil {
			log.Warn("shutdown", "err", err)
		}
		log.Info("monitoring stopped")
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("monitoring started", "mode", mode, "window", cfg.WindowFile, "size", cfg.WindowSize, "log", cfg.LogFile)

	if headless {
		err = p.Run(ctx, nil)
	} else {
		err = monitor.Run(ctx, p, mode, cfg.ReportDir)
	}
	if err != nil {
		log.Error("monitor stopped", "err", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// openPipeline wires the source, the stores and the optional brokers.
// Broker failures are logged and the broker is skipped.
func openPipeline(cfg config.Config, log *slog.Logger) (*pipeline.Pipeline, string, error) {
	w, err := window.Open(cfg.WindowFile, cfg.WindowSize)
	if err != nil {
		return nil, "", fmt.Errorf("window: %w", err)
	}
	if n := w.Skipped(); n > 0 {
		log.Warn("skipped unreadable rows in window file", "rows", n, "path", w.Path())
	}

	alog, err := anomaly.OpenLog(cfg.LogFile)
	if err != nil {
		return nil, "", fmt.Errorf("anomaly log: %w", err)
	}

	arch, err := archive.New(cfg.ArchiveDir)
	if err != nil {
		return nil, "", fmt.Errorf("archive: %w", err)
	}

	var sinks sink.Multi
	if cfg.MQTTBroker != "" {
		m, err := sink.NewMQTT(cfg.MQTTBroker, cfg.MQTTTopic)
		if err != nil {
			log.Warn("mqtt disabled", "broker", cfg.MQTTBroker, "err", err)
		} else {
			log.Info("publishing to mqtt", "broker", cfg.MQTTBroker, "topic", m.Topic(cfg.Node))
			sinks = append(sinks, m)
		}
	}
	if len(cfg.KafkaBrokers) > 0 {
		k, err := sink.NewKafka(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			log.Warn("kafka disabled", "brokers", cfg.KafkaBrokers, "err", err)
		} else {
			log.Info("publishing to kafka", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
			sinks = append(sinks, k)
		}
	}

	src := source.Open(source.Options{
		Port:       cfg.Port,
		Baud:       cfg.Baud,
		Simulate:   cfg.Simulate,
		Generator:  cfg.Generator,
		Node:       cfg.Node,
		Interval:   cfg.Interval,
		Thresholds: cfg.Thresholds,
		Seed:       cfg.Seed,
	}, log)

	mode := "serial " + cfg.Port
	if _, ok := src.(*source.Simulator); ok {
		mode = "simulation (" + cfg.Generator + ")"
	}

	p := pipeline.New(pipeline.Config{
		Source:     src,
		Window:     w,
		Log:        alog,
		Archive:    arch,
		Sinks:      sinks,
		Thresholds: cfg.Thresholds,
		Logger:     log,
	})
	return p, mode, nil
}

func runHistory() int {
	cfg := loadConfig()
	if err := viewer.Run(cfg.ArchiveDir, cfg.Thresholds); err != nil {
		if errors.Is(err, viewer.ErrNoHistory) {
			fmt.Fprintf(os.Stderr, "No history data found in %s\n", cfg.ArchiveDir)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

// runReport exports a report over the whole archive, or over the window
// file when nothing has been archived yet.
func runReport() int {
	cfg := loadConfig()

	rows, err := archive.LoadAll(cfg.ArchiveDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	src := cfg.ArchiveDir
	if len(rows) == 0 {
		rows, err = window.LoadFile(cfg.WindowFile)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		src = cfg.WindowFile
	}
	if len(rows) == 0 {
		fmt.Fprintln(os.Stderr, "No readings to report on")
		return 1
	}

	path, err := report.Export(cfg.ReportDir, rows, cfg.Thresholds, time.Now())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Printf("Report on %d readings from %s saved to %s\n", len(rows), src, path)
	return 0
}
