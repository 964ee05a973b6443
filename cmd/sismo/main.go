package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/RyanBlaney/sonido-sismo/algorithms/common"
	"github.com/RyanBlaney/sonido-sismo/config"
	"github.com/RyanBlaney/sonido-sismo/logging"
	"github.com/RyanBlaney/sonido-sismo/matching"
	"github.com/RyanBlaney/sonido-sismo/record"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// summary is the JSON document written to stdout
type summary struct {
	Record            string    `json:"record"`
	Samples           int       `json:"samples"`
	DT                float64   `json:"dt"`
	Status            string    `json:"status"`
	Converged         bool      `json:"converged"`
	Iterations        int       `json:"iterations"`
	BestIteration     int       `json:"best_iteration"`
	RMSMisfit         float64   `json:"rms_misfit"`
	MeanMisfit        float64   `json:"mean_misfit"`
	Correlation       float64   `json:"correlation"`
	SeedScaleFactor   float64   `json:"seed_scale_factor"`
	ActiveLow         float64   `json:"active_low"`
	ActiveHigh        float64   `json:"active_high"`
	OriginalPGA       float64   `json:"original_pga"`
	MatchedPGA        float64   `json:"matched_pga"`
	BaselineConverged bool      `json:"baseline_converged"`
	History           []float64 `json:"history"`
}

// initializeLogger creates a zap logger based on configuration and CLI override
func initializeLogger(loggingConfig config.LoggingConfig, logLevelOverride string) (*zap.Logger, error) {
	level := loggingConfig.Level
	if logLevelOverride != "" {
		level = logLevelOverride
	}
	if level == "" {
		level = "info"
	}

	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn", "warning":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		return nil, fmt.Errorf("invalid log level: %s", level)
	}

	format := loggingConfig.Format
	if format == "" {
		format = "json"
	}

	var zc zap.Config
	switch format {
	case "console":
		zc = zap.NewDevelopmentConfig()
	case "json":
		zc = zap.NewProductionConfig()
	default:
		return nil, fmt.Errorf("invalid log format: %s", format)
	}
	zc.Level = zap.NewAtomicLevelAt(zapLevel)

	// stdout carries the summary
	zc.OutputPaths = []string{"stderr"}
	if loggingConfig.OutputFile != "" {
		if dir := filepath.Dir(loggingConfig.OutputFile); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create log directory %s: %v", dir, err)
			}
		}
		zc.OutputPaths = []string{loggingConfig.OutputFile}
		zc.ErrorOutputPaths = []string{loggingConfig.OutputFile}
	}

	return zc.Build()
}

func main() {
	configLocation := flag.String("config", config.DefaultConfigFile, "path to configuration file")
	logLevel := flag.String("log-level", "", "log level override (debug, info, warn, error)")
	flag.Parse()

	conf, err := config.Load(*configLocation)
	if err != nil {
		fmt.Fprintf(os.Stderr, "{\"op\": \"main\", \"level\": \"fatal\", \"msg\": \"failed to load configuration at %s\", \"error\": %q}\n", *configLocation, err.Error())
		os.Exit(1)
	}

	logger, err := initializeLogger(conf.Logging, *logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "{\"op\": \"main\", \"level\": \"fatal\", \"msg\": \"failed to initialize logger\", \"error\": %q}\n", err.Error())
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()
	logging.SetGlobalLogger(logging.NewZapLogger(logger))

	if err := conf.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.String("op", "main"), zap.Error(err))
	}

	ts, err := record.NewLoader(&conf.Record.LoaderConfig).LoadFile(conf.Record.Path)
	if err != nil {
		logger.Fatal("failed to load record", zap.String("op", "main"), zap.Error(err))
	}

	target, err := conf.Target.Spectrum()
	if err != nil {
		logger.Fatal("failed to build target spectrum", zap.String("op", "main"), zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := conf.Match
	opts.Progress = func(p matching.Progress) {
		logger.Info("match progress",
			zap.String("op", "main"),
			zap.Int("iteration", p.Iteration),
			zap.Int("budget", p.Budget),
			zap.Float64("rms_misfit", p.RMSMisfit),
			zap.Stringer("state", p.State),
		)
	}

	matcher := matching.NewMatcher(matching.DefaultConfig().WithWorkers(conf.Workers))
	result, err := matcher.Match(ctx, ts.Acceleration, ts.SamplingRate(), target, opts)
	if err != nil && (result == nil || !errors.Is(err, context.Canceled)) {
		logger.Fatal("spectral matching failed", zap.String("op", "main"), zap.Error(err))
	}

	out := summary{
		Record:            ts.Name,
		Samples:           ts.Len(),
		DT:                ts.DT,
		Status:            result.Status.String(),
		Converged:         result.Converged,
		Iterations:        result.Iterations,
		BestIteration:     result.BestIteration,
		RMSMisfit:         result.RMSMisfit,
		MeanMisfit:        result.MeanMisfit,
		Correlation:       result.Correlation,
		SeedScaleFactor:   result.SeedScaleFactor,
		ActiveLow:         result.ActiveLow,
		ActiveHigh:        result.ActiveHigh,
		OriginalPGA:       common.MaxAbs(ts.Acceleration),
		MatchedPGA:        common.MaxAbs(result.Candidate),
		BaselineConverged: result.BaselineConverged,
		History:           result.History,
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		logger.Fatal("failed to write summary", zap.String("op", "main"), zap.Error(err))
	}
}
