// Package config loads dashboard settings from the environment and an
// optional YAML display profile.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/dgnsrekt/anomaly_dashboard/internal/netutil"
	"github.com/dgnsrekt/anomaly_dashboard/internal/series"
)

// Config holds all configuration for the dashboard process.
type Config struct {
	// Detector server
	DetectorURL   string
	HTTPTimeoutMS int

	// Local API
	BindAddr          string
	PortCandidates    []string
	PortAutoFallback  bool
	AutoConnectStream bool

	// Logging
	LogLevel string
	LogFile  string

	// Storage
	SessionDB string
	ExportDir string
	RecordDir string

	// Display defaults
	Threshold       float64
	Channel         int
	Smoothing       bool
	SmoothingWindow int
	ProfilePath     string

	// Alarm notifications
	NotifyURL string
}

// Load reads configuration from environment variables and an optional .env file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	cfg := &Config{
		DetectorURL:       strings.TrimRight(getEnvOrDefault("DETECTOR_URL", "http://127.0.0.1:8000"), "/"),
		HTTPTimeoutMS:     getEnvIntOrDefault("DASHBOARD_HTTP_TIMEOUT_MS", 0),
		BindAddr:          getEnvOrDefault("DASHBOARD_BIND_ADDR", "127.0.0.1:8190"),
		PortCandidates:    netutil.ParseCandidates(getEnvOrDefault("DASHBOARD_PORT_CANDIDATES", "127.0.0.1:8191,127.0.0.1:8192")),
		PortAutoFallback:  getEnvBoolOrDefault("DASHBOARD_PORT_AUTO_FALLBACK", true),
		AutoConnectStream: getEnvBoolOrDefault("DASHBOARD_AUTO_CONNECT", false),
		LogLevel:          strings.ToLower(getEnvOrDefault("DASHBOARD_LOG_LEVEL", "info")),
		LogFile:           getEnvOrDefault("DASHBOARD_LOG_FILE", "logs/dashboard.log"),
		SessionDB:         getEnvOrDefault("DASHBOARD_SESSION_DB", "./data/session.db"),
		ExportDir:         getEnvOrDefault("DASHBOARD_EXPORT_DIR", "./exports"),
		RecordDir:         os.Getenv("DASHBOARD_RECORD_DIR"),
		Threshold:         getEnvFloatOrDefault("DASHBOARD_THRESHOLD", series.DefaultThreshold),
		Channel:           getEnvIntOrDefault("DASHBOARD_CHANNEL", 0),
		Smoothing:         getEnvBoolOrDefault("DASHBOARD_SMOOTHING", false),
		SmoothingWindow:   getEnvIntOrDefault("DASHBOARD_SMOOTHING_WINDOW", series.DefaultWindow),
		ProfilePath:       os.Getenv("DASHBOARD_PROFILE"),
		NotifyURL:         os.Getenv("DASHBOARD_NOTIFY_URL"),
	}

	if cfg.DetectorURL == "" {
		return nil, fmt.Errorf("config: DETECTOR_URL is empty")
	}
	if cfg.Channel < 0 {
		cfg.Channel = 0
	}
	if cfg.SmoothingWindow < 1 {
		cfg.SmoothingWindow = series.DefaultWindow
	}
	if cfg.HTTPTimeoutMS < 0 {
		cfg.HTTPTimeoutMS = 0
	}
	return cfg, nil
}

// HTTPTimeout returns the detector request timeout; zero means none.
func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutMS) * time.Millisecond
}

// Options builds the initial series options, overlaying profile colors.
func (c *Config) Options(p *Profile) series.Options {
	opts := series.DefaultOptions()
	opts.Threshold = c.Threshold
	opts.Channel = c.Channel
	opts.Smoothing = c.Smoothing
	opts.Window = c.SmoothingWindow
	if p != nil {
		if p.Colors.Alarm != "" {
			opts.AlarmColor = p.Colors.Alarm
		}
		if p.Colors.Neutral != "" {
			opts.NeutralColor = p.Colors.Neutral
		}
	}
	return opts
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloatOrDefault(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvBoolOrDefault(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}
