package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/luki/sensormon/internal/source"
)

// simulateTargets lists the generators a node can be simulated with.
var simulateTargets = []struct {
	name string
	desc string
}{
	{"cyclic", "Four-step cycle: two normal, one over the limits, one under"},
	{"smooth", "Small drift inside the comfort range, never anomalous"},
}

func runSimulate(args []string) {
	cfg := loadConfig()

	gen := cfg.Generator
	if len(args) > 0 {
		gen = strings.ToLower(args[0])
	}

	var duration time.Duration
	if len(args) > 1 {
		if d, err := time.ParseDuration(args[1]); err == nil {
			duration = d
		} else if secs, err := strconv.Atoi(args[1]); err == nil {
			duration = time.Duration(secs) * time.Second
		} else {
			fmt.Fprintf(os.Stderr, "Invalid duration: %s\n\n", args[1])
			printSimulateHelp()
			os.Exit(2)
		}
	}

	g, err := source.NewGenerator(gen, cfg.Seed, cfg.Thresholds)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Unknown generator: %s\n\n", gen)
		printSimulateHelp()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}

	sim := source.NewSimulator(g, cfg.Node, cfg.Interval)
	defer sim.Close()

	for {
		line, err := sim.ReadLine(ctx)
		if err != nil {
			return
		}
		fmt.Println(line)
	}
}

func printSimulateHelp() {
	fmt.Println("Usage: sensormon simulate [generator] [duration]")
	fmt.Println()
	fmt.Println("Generators:")
	for _, t := range simulateTargets {
		fmt.Printf("  %-8s  %s\n", t.name, t.desc)
	}
	fmt.Println()
	fmt.Println("Duration: e.g. '60' (seconds), '2m', '30s' (default: until Ctrl+C)")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  sensormon simulate cyclic 30s")
	fmt.Println("  SENSORMON_NODE=Node2 sensormon simulate smooth")
}
