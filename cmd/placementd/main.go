// Package main is the entry point for the FleetForge placement daemon.
// It reads the topology header and the request stream from stdin and
// writes placement decisions to stdout; logs go to stderr.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fleetforge/fleetforge/internal/config"
	"github.com/fleetforge/fleetforge/internal/engine"
	"github.com/fleetforge/fleetforge/internal/fleet"
	"github.com/fleetforge/fleetforge/internal/journal"
	"github.com/fleetforge/fleetforge/internal/protocol"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		println("FleetForge Placement Daemon")
		println("Version:", version)
		println("Commit:", commit)
		println("Build Date:", buildDate)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		println("Failed to load config:", err.Error())
		os.Exit(1)
	}

	logger := setupLogger(cfg.Logging)
	defer logger.Sync()

	logger.Info("Starting FleetForge placement daemon",
		zap.String("version", version),
		zap.String("commit", commit),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info("Received signal", zap.String("signal", sig.String()))
		cancel()
	}()

	if err := run(ctx, cfg, logger); err != nil {
		if errors.Is(err, fleet.ErrResourceExhausted) || errors.Is(err, fleet.ErrBudgetExceeded) {
			// The failure sentinel has been written; exit cleanly.
			logger.Warn("Session ended in terminal failure", zap.Error(err))
			return
		}
		logger.Fatal("Session error", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	reader := protocol.NewReader(os.Stdin)
	writer := protocol.NewWriter(os.Stdout)

	header, err := reader.ReadHeader()
	if err != nil {
		return err
	}

	jnl, err := journal.New(ctx, cfg.Journal, logger)
	if err != nil {
		return err
	}
	defer jnl.Close()

	f := fleet.NewFleet(header.Domains, header.RacksPerDomain, header.PMsPerRack, header.NodeCPU, header.NodeMemory)

	eng := engine.New(f, header.Types, engine.Config{
		WallClockBudget: cfg.Engine.WallClockBudget,
	}, jnl, logger)

	return protocol.RunSession(ctx, eng, reader, writer, logger)
}

// setupLogger configures the zap logger based on configuration.
func setupLogger(cfg config.LoggingConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var zapConfig zap.Config
	if cfg.Format == "console" {
		zapConfig = zap.NewDevelopmentConfig()
	} else {
		zapConfig = zap.NewProductionConfig()
	}

	zapConfig.Level = zap.NewAtomicLevelAt(level)

	logger, err := zapConfig.Build()
	if err != nil {
		panic("Failed to create logger: " + err.Error())
	}

	return logger
}
