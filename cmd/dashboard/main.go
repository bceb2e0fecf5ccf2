package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/dgnsrekt/anomaly_dashboard/internal/api"
	"github.com/dgnsrekt/anomaly_dashboard/internal/config"
	"github.com/dgnsrekt/anomaly_dashboard/internal/dashboard"
	"github.com/dgnsrekt/anomaly_dashboard/internal/detector"
	"github.com/dgnsrekt/anomaly_dashboard/internal/export"
	"github.com/dgnsrekt/anomaly_dashboard/internal/feed"
	"github.com/dgnsrekt/anomaly_dashboard/internal/metrics"
	"github.com/dgnsrekt/anomaly_dashboard/internal/netutil"
	"github.com/dgnsrekt/anomaly_dashboard/internal/notify"
	"github.com/dgnsrekt/anomaly_dashboard/internal/series"
	"github.com/dgnsrekt/anomaly_dashboard/internal/session"
	"github.com/dgnsrekt/anomaly_dashboard/internal/storage"
	"github.com/dgnsrekt/anomaly_dashboard/internal/stream"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load dashboard config", "error", err)
		os.Exit(1)
	}

	if err := setupLogger(cfg.LogLevel, cfg.LogFile); err != nil {
		if _, writeErr := io.WriteString(os.Stderr, "logger setup failed: "+err.Error()+"\n"); writeErr != nil {
			slog.Debug("logger setup stderr write failed", "error", writeErr)
		}
		os.Exit(1)
	}

	profile, err := config.LoadProfile(cfg.ProfilePath)
	if err != nil {
		slog.Error("failed to load display profile", "path", cfg.ProfilePath, "error", err)
		os.Exit(1)
	}

	slog.Info("dashboard config loaded",
		"detector_url", cfg.DetectorURL,
		"bind_addr", cfg.BindAddr,
		"port_auto_fallback", cfg.PortAutoFallback,
		"port_candidates", cfg.PortCandidates,
		"auto_connect", cfg.AutoConnectStream,
		"threshold", cfg.Threshold,
		"session_db", cfg.SessionDB,
		"export_dir", cfg.ExportDir,
		"record_dir", cfg.RecordDir,
		"log_level", cfg.LogLevel,
		"log_file", cfg.LogFile,
	)

	ln, err := netutil.Listen(cfg.BindAddr, cfg.PortCandidates, cfg.PortAutoFallback)
	if err != nil {
		slog.Error("failed to select bind address", "preferred", cfg.BindAddr, "error", err)
		os.Exit(1)
	}
	bindAddr := ln.Addr().String()

	sessions, err := session.Open(cfg.SessionDB)
	if err != nil {
		slog.Error("failed to open session store", "path", cfg.SessionDB, "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := sessions.Close(); err != nil {
			slog.Debug("session store close failed", "error", err)
		}
	}()

	exports, err := export.NewStore(cfg.ExportDir)
	if err != nil {
		slog.Error("failed to create export store", "dir", cfg.ExportDir, "error", err)
		os.Exit(1)
	}

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout()}
	det := detector.NewClient(cfg.DetectorURL, httpClient)
	m := metrics.New()
	broker := feed.NewBroker()

	streamURL, err := stream.EndpointURL(cfg.DetectorURL)
	if err != nil {
		slog.Warn("socket session disabled", "detector_url", cfg.DetectorURL, "error", err)
		streamURL = ""
	}

	dcfg := dashboard.Config{
		Detector:  det,
		Sessions:  sessions,
		Exports:   exports,
		Broker:    broker,
		Observer:  m,
		StreamURL: streamURL,
		Options:   cfg.Options(profile),
		Capacity:  series.DefaultCapacity,
		Chart: export.ChartStyle{
			Title:     profile.Chart.Title,
			Width:     profile.Chart.Width,
			Height:    profile.Chart.Height,
			LineColor: profile.Colors.Line,
		},
		PreviewRows: profile.PreviewRows,
	}
	if cfg.NotifyURL != "" {
		dcfg.Alarms = notify.New(httpClient, cfg.NotifyURL)
	}
	if cfg.RecordDir != "" {
		rec := storage.NewRecorder(cfg.RecordDir, "frames", uuid.NewString(), storage.Options{})
		defer func() {
			if err := rec.Close(); err != nil {
				slog.Debug("frame recorder close failed", "error", err)
			}
		}()
		slog.Info("recording socket frames", "path", rec.Path())
		dcfg.Recorder = rec
	}

	d := dashboard.New(dcfg)
	defer func() {
		if err := d.Close(); err != nil {
			slog.Debug("dashboard close failed", "error", err)
		}
	}()

	if cfg.AutoConnectStream && streamURL != "" {
		if _, err := d.Connect(context.Background(), dashboard.Empty{}); err != nil {
			slog.Warn("auto-connect failed", "url", streamURL, "error", err)
		}
	}

	h := api.NewServer(d, api.Options{
		Exports:  exports,
		Detector: det,
		Broker:   broker,
		Metrics:  m.Handler(),
	})
	srv := &http.Server{Handler: h}

	go func() {
		slog.Info("dashboard listening", "addr", bindAddr, "docs", "http://"+bindAddr+"/docs")
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("dashboard server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("dashboard shutdown failed", "error", err)
	}
}

func setupLogger(level, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return err
	}

	logWriter := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    25,
		MaxBackups: 10,
		MaxAge:     14,
		Compress:   true,
	}

	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	h := slog.NewTextHandler(io.MultiWriter(os.Stdout, logWriter), &slog.HandlerOptions{Level: slogLevel})
	slog.SetDefault(slog.New(h))
	return nil
}
