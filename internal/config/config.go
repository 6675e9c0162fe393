// Package config loads runtime settings from the environment, optionally
// seeded from a .env file. Defaults match the stock device setup.
package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/luki/sensormon/internal/anomaly"
	"github.com/luki/sensormon/internal/window"
)

const envPrefix = "SENSORMON_"

// Config holds every runtime setting.
type Config struct {
	// Serial device
	Port string
	Baud int

	// Simulation
	Simulate  bool
	Generator string
	Node      string
	Interval  time.Duration
	Seed      uint64

	// Files
	DataDir    string
	WindowFile string
	LogFile    string
	ArchiveDir string
	ReportDir  string
	WindowSize int

	Thresholds anomaly.Thresholds

	LogLevel slog.Level
	Headless bool

	// Brokers (disabled when empty)
	MQTTBroker   string
	MQTTTopic    string
	KafkaBrokers []string
	KafkaTopic   string
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Port:       "/dev/ttyUSB0",
		Baud:       9600,
		Generator:  "cyclic",
		Node:       "Node1",
		Interval:   time.Second,
		DataDir:    "data",
		WindowSize: window.DefaultLimit,
		Thresholds: anomaly.DefaultThresholds,
		LogLevel:   slog.LevelInfo,
		MQTTTopic:  "sensormon",
		KafkaTopic: "sensormon.readings",
	}
}

// Load reads .env (if present) and the SENSORMON_* variables on top of
// Default. Invalid values are reported on log and replaced by defaults.
func Load(log *slog.Logger) Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn("cannot read .env", "err", err)
	}
	return FromEnv(os.Getenv, log)
}

// FromEnv builds a Config from a lookup function.
func FromEnv(getenv func(string) string, log *slog.Logger) Config {
	c := Default()
	m := envMap(getenv)

	c.Port = gets(m, "PORT", c.Port)
	c.Baud = geti(m, "BAUD", c.Baud, log)
	c.Simulate = getb(m, "SIMULATE", c.Simulate, log)
	c.Generator = strings.ToLower(gets(m, "GENERATOR", c.Generator))
	c.Node = gets(m, "NODE", c.Node)
	c.Interval = getd(m, "INTERVAL", c.Interval, log)
	c.Seed = uint64(geti(m, "SEED", 0, log))

	c.DataDir = gets(m, "DATA_DIR", c.DataDir)
	c.WindowFile = gets(m, "WINDOW_FILE", filepath.Join(c.DataDir, "sensor_data.csv"))
	c.LogFile = gets(m, "ANOMALY_LOG", filepath.Join(c.DataDir, "anomalies.log"))
	c.ArchiveDir = gets(m, "ARCHIVE_DIR", filepath.Join(c.DataDir, "archive"))
	c.ReportDir = gets(m, "REPORT_DIR", filepath.Join(c.DataDir, "reports"))
	c.WindowSize = geti(m, "WINDOW", c.WindowSize, log)
	if c.WindowSize <= 0 {
		log.Warn("window size must be positive, using default", "val", c.WindowSize, "default", window.DefaultLimit)
		c.WindowSize = window.DefaultLimit
	}

	c.Thresholds.TempMax = getf(m, "TEMP_MAX", c.Thresholds.TempMax, log)
	c.Thresholds.HumidityMin = getf(m, "UMID_MIN", c.Thresholds.HumidityMin, log)
	c.Thresholds.HumidityMax = getf(m, "UMID_MAX", c.Thresholds.HumidityMax, log)

	if v, ok := m["LOG_LEVEL"]; ok {
		if err := c.LogLevel.UnmarshalText([]byte(v)); err != nil {
			log.Warn("invalid log level, using default", "val", v, "default", slog.LevelInfo)
			c.LogLevel = slog.LevelInfo
		}
	}
	c.Headless = getb(m, "HEADLESS", c.Headless, log)

	c.MQTTBroker = gets(m, "MQTT_BROKER", c.MQTTBroker)
	c.MQTTTopic = gets(m, "MQTT_TOPIC", c.MQTTTopic)
	c.KafkaBrokers = splitCSV(gets(m, "KAFKA_BROKERS", ""))
	c.KafkaTopic = gets(m, "KAFKA_TOPIC", c.KafkaTopic)
	return c
}

func envMap(getenv func(string) string) map[string]string {
	keys := []string{
		"PORT", "BAUD", "SIMULATE", "GENERATOR", "NODE", "INTERVAL", "SEED",
		"DATA_DIR", "WINDOW_FILE", "ANOMALY_LOG", "ARCHIVE_DIR", "REPORT_DIR", "WINDOW",
		"TEMP_MAX", "UMID_MIN", "UMID_MAX", "LOG_LEVEL", "HEADLESS",
		"MQTT_BROKER", "MQTT_TOPIC", "KAFKA_BROKERS", "KAFKA_TOPIC",
	}
	m := map[string]string{}
	for _, k := range keys {
		if v := strings.TrimSpace(getenv(envPrefix + k)); v != "" {
			m[k] = v
		}
	}
	return m
}

func gets(m map[string]string, key, def string) string {
	if v, ok := m[key]; ok {
		return v
	}
	return def
}

func getf(m map[string]string, key string, def float64, log *slog.Logger) float64 {
	if v, ok := m[key]; ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
		log.Warn("invalid float in environment, using default", "key", envPrefix+key, "val", v, "default", def)
	}
	return def
}

func geti(m map[string]string, key string, def int, log *slog.Logger) int {
	if v, ok := m[key]; ok {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
		log.Warn("invalid integer in environment, using default", "key", envPrefix+key, "val", v, "default", def)
	}
	return def
}

func getb(m map[string]string, key string, def bool, log *slog.Logger) bool {
	if v, ok := m[key]; ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
		log.Warn("invalid bool in environment, using default", "key", envPrefix+key, "val", v, "default", def)
	}
	return def
}

func getd(m map[string]string, key string, def time.Duration, log *slog.Logger) time.Duration {
	if v, ok := m[key]; ok {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
		log.Warn("invalid duration in environment, using default", "key", envPrefix+key, "val", v, "default", def)
	}
	return def
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
