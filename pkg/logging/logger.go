// Package logging configures the hclog logger shared by the reader,
// crypto engine and CLI.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-hclog"
)

// NewLogger creates a new hclog logger with eappx's standard settings.
func NewLogger(name string, level string, output io.Writer) hclog.Logger {
	logger, _ := newLogger(name, level, output)
	return logger
}

// NewLoggerWithFlusher is NewLogger plus a flush func that drains any
// partially-written last line out of the prefix writer. The CLI
// commands defer it so a status line logged right before process exit
// (no trailing newline yet) still reaches the output. It's a no-op
// when EAPPX_JSON_LOG disables the prefix writer.
func NewLoggerWithFlusher(name string, level string, output io.Writer) (hclog.Logger, func() error) {
	return newLogger(name, level, output)
}

func newLogger(name string, level string, output io.Writer) (hclog.Logger, func() error) {
	if output == nil {
		output = os.Stderr
	}

	flush := func() error { return nil }

	jsonFormat := os.Getenv("EAPPX_JSON_LOG") == "1"
	if !jsonFormat {
		pw := NewPrefixWriter("📦 ", output)
		output = pw
		flush = pw.Flush
	}

	opts := &hclog.LoggerOptions{
		Name:       name,
		Level:      hclog.LevelFromString(level),
		JSONFormat: jsonFormat,
		Output:     output,
		TimeFormat: "2006-01-02T15:04:05Z",
		TimeFn: func() time.Time {
			return time.Now().UTC()
		},
	}

	return hclog.New(opts), flush
}

// NewContainerLoggerWithFlusher builds a logger for one opened
// container, tagging every record it emits with the container's base
// filename so output from multiple unpack/info runs piped through the
// same log sink (or read back out of EAPPX_JSON_LOG output) can be
// told apart. The returned flush func behaves like the one from
// NewLoggerWithFlusher.
func NewContainerLoggerWithFlusher(containerPath, level string, output io.Writer) (hclog.Logger, func() error) {
	logger, flush := NewLoggerWithFlusher("eappx", level, output)
	return logger.With("container", filepath.Base(containerPath)), flush
}

// GetLogLevel returns the configured log level from the environment.
func GetLogLevel() string {
	level := os.Getenv("EAPPX_LOG_LEVEL")
	if level == "" {
		level = "warn"
	}
	return level
}
