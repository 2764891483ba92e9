package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/Graylog2/go-gelf/gelf"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"github.com/winghaptics/wwbridge/internal/config"
	"github.com/winghaptics/wwbridge/internal/logging"
	intOtel "github.com/winghaptics/wwbridge/internal/otel"
	"github.com/winghaptics/wwbridge/internal/version"
)

const appName = "wwbridge"

// app holds the logging and telemetry plumbing shared by every command.
type app struct {
	SlogManager *logging.SlogManager
	Logger      *slog.Logger
	Zerolog     zerolog.Logger

	LogFilePath string
	logFile     *os.File
	otel        *intOtel.Provider
	gelf        *gelf.Writer
}

// newApp opens the session log file and sets up slog, zerolog, OTel and GELF.
func newApp(status logging.StatusProvider) *app {
	a := &app{SlogManager: logging.NewSlogManager()}
	level := viper.GetString("logLevel")
	start := time.Now()

	var sink io.Writer = os.Stdout
	logsDir := viper.GetString("logsDir")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logs dir %s: %v\n", logsDir, err)
	} else {
		a.LogFilePath = logging.LogFilePath(logsDir, appName, start)
		f, err := os.OpenFile(a.LogFilePath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create log file %s: %v\n", a.LogFilePath, err)
		} else {
			a.logFile = f
			sink = io.MultiWriter(os.Stdout, f)
		}
	}

	var setupErrs []error

	otelCfg := config.GetOTelConfig()
	if otelCfg.Enabled {
		cfg := intOtel.Config{
			Enabled:        true,
			ServiceName:    otelCfg.ServiceName,
			BatchTimeout:   otelCfg.BatchTimeout,
			Endpoint:       otelCfg.Endpoint,
			Insecure:       otelCfg.Insecure,
			MetricInterval: otelCfg.MetricInterval,
		}
		if a.logFile != nil {
			cfg.LogWriter = a.logFile
			if otelCfg.Metrics {
				cfg.MetricWriter = a.logFile
			}
		}
		p, err := intOtel.New(cfg)
		if err != nil {
			setupErrs = append(setupErrs, fmt.Errorf("otel: %w", err))
		} else {
			a.otel = p
		}
	}

	var extra []slog.Handler
	graylog := config.GetGraylogConfig()
	if graylog.Enabled {
		w, err := logging.NewGelfWriter(graylog.Address)
		if err != nil {
			setupErrs = append(setupErrs, fmt.Errorf("graylog: %w", err))
		} else {
			a.gelf = w
			extra = append(extra, logging.NewGelfHandler(w, logging.ParseLevel(level)))
		}
	}

	var provider *sdklog.LoggerProvider
	if a.otel != nil {
		provider = a.otel.LoggerProvider()
	}
	a.SlogManager.Status = status
	a.SlogManager.Setup(sink, level, provider, extra...)
	a.Logger = a.SlogManager.Logger()
	a.Zerolog = logging.NewZerolog(sink, level)

	for _, err := range setupErrs {
		a.Logger.Error("Failed to set up log output", "error", err)
	}
	a.Logger.Info("Starting "+appName, "version", version.FullVersion, "logFile", a.LogFilePath)
	if used := viper.ConfigFileUsed(); used != "" {
		a.Logger.Info("Loaded config", "path", used)
	}
	return a
}

// Close flushes and shuts down every log output.
func (a *app) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := a.SlogManager.Flush(ctx); err != nil {
		a.Logger.Warn("Failed to flush logs", "error", err)
	}
	if a.otel != nil {
		if err := a.otel.Shutdown(ctx); err != nil {
			a.Logger.Warn("Failed to shut down OTel", "error", err)
		}
	}
	if a.gelf != nil {
		_ = a.gelf.Close()
	}
	if a.logFile != nil {
		_ = a.logFile.Close()
	}
}
