package infrastructure

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ParseLevel maps a config level name to a zerolog level. Unknown names fall back to info.
func ParseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// NewConsoleLogger returns a logger writing human-readable lines to w.
func NewConsoleLogger(w io.Writer, level string) zerolog.Logger {
	console := zerolog.ConsoleWriter{Out: w, TimeFormat: "2006-01-02 15:04:05.000"}
	return zerolog.New(console).Level(ParseLevel(level)).With().Timestamp().Logger()
}

// SetupLogging configures logging to both console and file
// Returns the log file handle (caller should close it with defer)
func SetupLogging(logDir, level string) (zerolog.Logger, *os.File, error) {
	// Create logs directory if it doesn't exist
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	// Generate log filename with timestamp
	timestamp := time.Now().Format("20060102_150405")
	logFilename := filepath.Join(logDir, fmt.Sprintf("paladin_%s.log", timestamp))

	logFile, err := os.OpenFile(logFilename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("failed to open log file: %w", err)
	}

	// console stays readable, the file keeps JSON lines
	console := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "2006-01-02 15:04:05.000"}
	multi := zerolog.MultiLevelWriter(console, logFile)

	logger := zerolog.New(multi).Level(ParseLevel(level)).With().Timestamp().Logger()

	logger.Info().Str("file", logFilename).Msg("logging initialized")

	return logger, logFile, nil
}

// CleanupOldLogs removes log files older than specified duration
func CleanupOldLogs(logDir string, maxAge time.Duration, logger zerolog.Logger) (int, error) {
	entries, err := os.ReadDir(logDir)
	if err != nil {
		return 0, fmt.Errorf("failed to read log directory: %w", err)
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		// Only process .log files
		if filepath.Ext(entry.Name()) != ".log" {
			continue
		}

		fullPath := filepath.Join(logDir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			continue
		}

		if info.ModTime().Before(cutoff) {
			if err := os.Remove(fullPath); err != nil {
				logger.Warn().Err(err).Str("file", fullPath).Msg("failed to remove old log file")
			} else {
				removed++
				logger.Debug().Str("file", entry.Name()).Msg("removed old log file")
			}
		}
	}

	if removed > 0 {
		logger.Info().Int("removed", removed).Dur("max_age", maxAge).Msg("old log files cleaned up")
	}

	return removed, nil
}
