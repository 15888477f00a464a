// Package logging provides the server's structured logger, built on arbor
// (console/file/memory writers) with phuslu/log underneath.
package logging

import (
	"os"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/arbor/models"
)

// Logger wraps arbor.ILogger so call sites depend on this package, not on
// arbor directly.
type Logger struct {
	arbor.ILogger
}

// Config controls where and how the server logs.
type Config struct {
	Level      string
	Outputs    []string // "console", "file"
	FilePath   string
	MaxSizeMB  int
	MaxBackups int
}

// New builds a Logger from Config. Console output goes to stderr so stdout
// stays reserved for the stdio MCP transport's framed messages. A memory
// writer is always attached so the server's own operational log can be
// queried for diagnostics without touching disk.
func New(cfg Config) *Logger {
	level := cfg.Level
	if level == "" {
		level = "info"
	}

	l := arbor.NewLogger()

	outputs := cfg.Outputs
	if len(outputs) == 0 {
		outputs = []string{"console"}
	}

	for _, out := range outputs {
		switch out {
		case "console":
			l = l.WithConsoleWriter(models.WriterConfiguration{
				Type:       models.LogWriterTypeConsole,
				Writer:     os.Stderr,
				TimeFormat: "2006-01-02T15:04:05Z07:00",
			})
		case "file":
			filePath := cfg.FilePath
			if filePath == "" {
				filePath = "logs/codemcp.log"
			}
			maxSize := int64(cfg.MaxSizeMB) * 1024 * 1024
			if maxSize <= 0 {
				maxSize = 10 * 1024 * 1024
			}
			maxBackups := cfg.MaxBackups
			if maxBackups <= 0 {
				maxBackups = 5
			}
			l = l.WithFileWriter(models.WriterConfiguration{
				Type:       models.LogWriterTypeFile,
				FileName:   filePath,
				MaxSize:    maxSize,
				MaxBackups: maxBackups,
				TimeFormat: "2006-01-02T15:04:05Z07:00",
			})
		}
	}

	l = l.WithMemoryWriter(models.WriterConfiguration{
		Type: models.LogWriterTypeMemory,
	}).WithLevelFromString(level)

	return &Logger{ILogger: l}
}

// NewSilent builds a Logger that discards everything. Used by tests that
// exercise error paths without wanting log noise.
func NewSilent() *Logger {
	return &Logger{ILogger: arbor.NewLogger().WithLevelFromString("panic")}
}

// WithCorrelationId returns a new Logger tagged with an execution or request
// ID so its lines can be traced across spec load, dispatch, and VM teardown.
func (l *Logger) WithCorrelationId(id string) *Logger {
	return &Logger{ILogger: l.ILogger.WithCorrelationId(id)}
}
