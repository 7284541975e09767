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

	"github.com/ShichengRao/transcription-and-summary/internal/capture"
	"github.com/ShichengRao/transcription-and-summary/internal/config"
	"github.com/ShichengRao/transcription-and-summary/internal/metrics"
	"github.com/ShichengRao/transcription-and-summary/internal/recorder"
	"github.com/ShichengRao/transcription-and-summary/internal/server"
	"github.com/ShichengRao/transcription-and-summary/internal/transcription"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to configuration file")
	listDevices := flag.Bool("list-devices", false, "List audio input devices and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Logging)
	slog.SetDefault(logger)

	source, err := capture.NewPortAudioSource()
	if err != nil {
		logger.Error("Failed to initialize audio subsystem", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer source.Close()

	if *listDevices {
		printDevices(source)
		return
	}

	logger.Info("Starting transcription recorder",
		slog.String("config", *configPath),
		slog.Int("sample_rate", cfg.Audio.SampleRate),
		slog.String("backend", cfg.Transcription.Backend),
	)

	engine, err := transcription.NewTranscriber(cfg.Transcription.Backend, transcription.Config{
		ModelSize:   cfg.Transcription.ModelSize,
		Language:    cfg.Transcription.Language,
		Device:      cfg.Transcription.Device,
		ComputeType: cfg.Transcription.ComputeType,
		BeamSize:    cfg.Transcription.BeamSize,
		Temperature: cfg.Transcription.Temperature,
		Python:      cfg.Transcription.Python,
	}, logger)
	if err != nil {
		logger.Error("Failed to create transcription engine", slog.String("error", err.Error()))
		os.Exit(1)
	}

	m := metrics.NewMetrics()

	rec, err := recorder.New(cfg, logger, m, source, engine)
	if err != nil {
		logger.Error("Failed to create recorder", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := rec.Start(); err != nil {
		logger.Error("Failed to start recorder", slog.String("error", err.Error()))
		os.Exit(1)
	}

	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		httpServer = server.NewHTTPServer(cfg, rec, logger, m)
		httpServer.Start()
	}

	// Log transcripts as they arrive
	go func() {
		for event := range rec.Events() {
			switch event.Kind {
			case recorder.EventTranscriptionReady:
				logger.Info("Transcript",
					slog.String("language", event.Result.Language),
					slog.String("text", event.Result.Text),
				)
			case recorder.EventCaptureFatal:
				logger.Error("Audio capture is down, draining remaining segments",
					slog.String("error", event.Err.Error()),
				)
			}
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	logger.Info("Shutting down", slog.String("signal", sig.String()))

	if httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := httpServer.Stop(ctx); err != nil {
			logger.Warn("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		cancel()
	}

	if err := rec.Stop(); err != nil {
		logger.Error("Recorder shutdown error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// initLogger builds the slog logger from logging configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var out *os.File
	switch cfg.Output {
	case "stderr":
		out = os.Stderr
	default:
		out = os.Stdout
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	return slog.New(handler)
}

func printDevices(source capture.Source) {
	devices, err := source.Devices()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to enumerate devices: %v\n", err)
		os.Exit(1)
	}

	if len(devices) == 0 {
		fmt.Println("No audio input devices found")
		return
	}

	fmt.Println("Audio input devices:")
	for _, d := range devices {
		fmt.Printf("  [%d] %s (%d ch, %.0f Hz)\n", d.ID, d.Name, d.Channels, d.SampleRate)
	}
}
