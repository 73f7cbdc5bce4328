// Package logger provides centralized logging using arbor.
package logger

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/ternarybob/arbor"
	arborcommon "github.com/ternarybob/arbor/common"
	"github.com/ternarybob/arbor/models"
	"github.com/ternarybob/prewarm/internal/config"
)

var (
	globalLogger arbor.ILogger
	loggerMutex  sync.RWMutex
)

// GetLogger returns the global logger instance.
// If Setup() hasn't been called yet, returns a fallback console logger.
func GetLogger() arbor.ILogger {
	loggerMutex.RLock()
	if globalLogger != nil {
		loggerMutex.RUnlock()
		return globalLogger
	}
	loggerMutex.RUnlock()

	loggerMutex.Lock()
	defer loggerMutex.Unlock()

	// Double-check after acquiring write lock
	if globalLogger == nil {
		globalLogger = arbor.NewLogger().WithConsoleWriter(writerConfig(nil, models.LogWriterTypeConsole, ""))
		globalLogger.Warn().Msg("Using fallback logger - Setup() should be called during startup")
	}
	return globalLogger
}

// Setup configures and installs the global logger from configuration.
func Setup(cfg *config.Config) arbor.ILogger {
	logger := arbor.NewLogger()

	hasFileOutput := false
	hasStdoutOutput := false
	for _, output := range cfg.Logging.Output {
		switch output {
		case "file":
			hasFileOutput = true
		case "stdout", "console":
			hasStdoutOutput = true
		}
	}

	if hasFileOutput {
		logFile := cfg.LogPath()
		if err := os.MkdirAll(filepath.Dir(logFile), 0755); err != nil {
			tempLogger := logger.WithConsoleWriter(writerConfig(cfg, models.LogWriterTypeConsole, ""))
			tempLogger.Warn().Err(err).Str("log_file", logFile).Msg("Failed to create logs directory")
		} else {
			logger = logger.WithFileWriter(writerConfig(cfg, models.LogWriterTypeFile, logFile))
		}
	}

	if hasStdoutOutput {
		logger = logger.WithConsoleWriter(writerConfig(cfg, models.LogWriterTypeConsole, ""))
	}

	// Ensure at least one visible log writer is configured
	if !hasFileOutput && !hasStdoutOutput {
		logger = logger.WithConsoleWriter(writerConfig(cfg, models.LogWriterTypeConsole, ""))
		logger.Warn().
			Strs("configured_outputs", cfg.Logging.Output).
			Msg("No visible log outputs configured - falling back to console")
	}

	// Memory writer enables log streaming over the status API
	logger = logger.WithMemoryWriter(writerConfig(cfg, models.LogWriterTypeMemory, ""))

	logger = logger.WithLevelFromString(cfg.Logging.Level)

	loggerMutex.Lock()
	globalLogger = logger
	loggerMutex.Unlock()

	return logger
}

// writerConfig creates a writer configuration with user preferences.
func writerConfig(cfg *config.Config, writerType models.LogWriterType, filename string) models.WriterConfiguration {
	// HH:MM:SS.mmm keeps columns aligned
	timeFormat := "15:04:05.000"
	if cfg != nil && cfg.Logging.TimeFormat != "" {
		timeFormat = cfg.Logging.TimeFormat
	}

	outputType := models.OutputFormatLogfmt
	if cfg != nil && cfg.Logging.Format == "json" {
		outputType = models.OutputFormatJSON
	}

	var maxSize int64 = 100 * 1024 * 1024
	if cfg != nil && cfg.Logging.MaxSizeMB > 0 {
		maxSize = int64(cfg.Logging.MaxSizeMB) * 1024 * 1024
	}

	maxBackups := 5
	if cfg != nil && cfg.Logging.MaxBackups > 0 {
		maxBackups = cfg.Logging.MaxBackups
	}

	return models.WriterConfiguration{
		Type:             writerType,
		FileName:         filename,
		TimeFormat:       timeFormat,
		OutputType:       outputType,
		DisableTimestamp: false,
		MaxSize:          maxSize,
		MaxBackups:       maxBackups,
	}
}

// Stop flushes any remaining context logs before shutdown.
// Safe to call multiple times (Arbor's Stop is idempotent).
func Stop() {
	arborcommon.Stop()
}
