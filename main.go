package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Ireoo/autotalk.core/app"
	"github.com/Ireoo/autotalk.core/config"
	"github.com/Ireoo/autotalk.core/loadclient"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file")
	port := flag.Int("port", 0, "Listen port, overrides config/env if set")
	whisperBin := flag.String("whisper-bin", "", "Path to whisper-cli-style binary")
	whisperModel := flag.String("whisper-model", "", "Path to whisper model file")
	workers := flag.Int("workers", 0, "Decoder worker pool size, overrides config/env if set")
	metricsAddr := flag.String("metrics-addr", "", "Prometheus metrics bind address")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn, error")
	simulate := flag.Int("simulate", 0, "Run N simulated clients against --simulate-url instead of serving")
	simulateURL := flag.String("simulate-url", "ws://127.0.0.1:3000/", "Target URL for --simulate mode")
	simulateDuration := flag.Duration("simulate-duration", 10*time.Second, "How long each simulated client streams audio")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	applyFlagOverrides(&cfg, *port, *workers, *whisperBin, *whisperModel, *metricsAddr, *logLevel)
	if err := config.Validate(cfg); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	setupLogging(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("received shutdown signal")
		cancel()
	}()

	if *simulate > 0 {
		runSimulate(ctx, *simulate, *simulateURL, *simulateDuration)
		return
	}

	a, err := app.New(cfg, *configPath)
	if err != nil {
		slog.Error("failed to build application", "error", err)
		os.Exit(1)
	}

	slog.Info("autotalk-core starting",
		"port", cfg.Port,
		"metricsAddr", cfg.MetricsAddr,
		"whisperBin", cfg.Whisper.BinPath,
		"workers", cfg.Whisper.Workers)

	if err := a.Run(ctx); err != nil {
		slog.Error("server exited with error", "error", err)
		os.Exit(2)
	}
	slog.Info("autotalk-core exiting")
}

func applyFlagOverrides(cfg *config.Config, port, workers int, whisperBin, whisperModel, metricsAddr, logLevel string) {
	if port > 0 {
		cfg.Port = port
	}
	if workers > 0 {
		cfg.Whisper.Workers = workers
	}
	if whisperBin != "" {
		cfg.Whisper.BinPath = whisperBin
	}
	if whisperModel != "" {
		cfg.Whisper.ModelPath = whisperModel
	}
	if metricsAddr != "" {
		cfg.MetricsAddr = metricsAddr
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
}

func setupLogging(level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
}

func runSimulate(ctx context.Context, n int, url string, duration time.Duration) {
	slog.Info("running simulated load", "clients", n, "url", url, "duration", duration)
	results := loadclient.RunMany(ctx, url, n, duration)

	var liveTotal, commitTotal, errTotal int
	for i, r := range results {
		if r.Err != nil {
			errTotal++
			slog.Warn("simulated client finished with error", "client", i, "error", r.Err)
		}
		liveTotal += r.LiveCount
		commitTotal += r.CommitCount
	}

	fmt.Printf("simulated %d client(s): %d live, %d commit, %d errored\n", n, liveTotal, commitTotal, errTotal)
	if errTotal == n && n > 0 {
		os.Exit(1)
	}
}
