package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/voxpipe/voxd/internal/config"
	"github.com/voxpipe/voxd/internal/runtime"
)

var version = "0.1.0-dev"

func main() {
	var (
		configPath  string
		showVersion bool
	)

	flag.StringVar(&configPath, "config", "voxd.yaml", "Path to configuration file")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Println(version)
		return
	}

	bootstrap := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.Load(configPath)
	if err != nil {
		bootstrap.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger, closeLog, err := openLogger(cfg.Telemetry)
	if err != nil {
		bootstrap.Error("failed to open log sink", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer closeLog()

	rt := runtime.New(cfg, logger)
	if err := rt.Run(context.Background()); err != nil {
		logger.Error("runtime exited with error", slog.String("error", err.Error()))
		closeLog()
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}

// openLogger builds the daemon's log sink. Stdout carries the response
// protocol, so logs go to an append-only file under the user cache dir by
// default, or to stderr when no file can be used.
func openLogger(cfg config.TelemetryConfig) (*slog.Logger, func(), error) {
	level := parseLevel(cfg.LogLevel)
	opts := &slog.HandlerOptions{Level: level}

	path := cfg.LogFile
	if path == "stderr" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), func() {}, nil
	}
	if path == "" {
		cacheDir, err := os.UserCacheDir()
		if err != nil {
			return slog.New(slog.NewJSONHandler(os.Stderr, opts)), func() {}, nil
		}
		path = filepath.Join(cacheDir, "voxd", "voxd.log")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log dir: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	logger := slog.New(slog.NewJSONHandler(file, opts))
	return logger, func() { _ = file.Close() }, nil
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
