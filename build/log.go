// Package build provides the logging primitives shared by every package in
// this module: a rotating log writer backed by jrick/logrotate, and a
// factory for per-subsystem decred/slog loggers that write through it.
package build

import (
	"fmt"
	"io"
	"os"

	"github.com/decred/slog"
	"github.com/jrick/logrotate/rotator"
)

// LogType describes how the root logger writes its output.
type LogType uint8

const (
	// LogTypeNone disables logging.
	LogTypeNone LogType = iota

	// LogTypeStdOut logs to standard output only.
	LogTypeStdOut

	// LogTypeDefault logs to both standard output and a rotating file.
	LogTypeDefault
)

// LoggingType is the default logging behavior for this build. Release
// binaries are expected to override it only through explicit configuration.
const LoggingType = LogTypeDefault

// LogWriter wraps the root log output, splitting writes across stdout and
// (when configured) a rotating file. It implements io.Writer so decred/slog
// backends can write directly to it.
type LogWriter struct {
	RotatorLogFile *rotator.Rotator
}

// Write writes the given bytes to stdout and, if present, the rotator.
func (w *LogWriter) Write(b []byte) (int, error) {
	os.Stdout.Write(b)
	if w.RotatorLogFile != nil {
		w.RotatorLogFile.Write(b)
	}
	return len(b), nil
}

// RotatingLogWriter is the root of the logging subsystem: it owns the
// backend writer and hands out per-subsystem slog.Logger instances that all
// write through the same backend, each tagged with its own subsystem name.
type RotatingLogWriter struct {
	logWriter *LogWriter
	backend   slog.Backend
	subsystemLoggers map[string]slog.Logger
}

// NewRotatingLogWriter initializes a RotatingLogWriter that writes to stdout
// only; call InitLogRotator to also write to a rotating file on disk.
func NewRotatingLogWriter() *RotatingLogWriter {
	writer := &LogWriter{}
	return &RotatingLogWriter{
		logWriter:        writer,
		backend:          slog.NewBackend(writer),
		subsystemLoggers: make(map[string]slog.Logger),
	}
}

// InitLogRotator initializes the log file rotator for this writer. It must
// be called before any logger produced by GenSubLogger logs anything that
// should survive to disk.
func (r *RotatingLogWriter) InitLogRotator(logFile string, maxLogFileSize, maxLogFiles int) error {
	rot, err := rotator.New(logFile, int64(maxLogFileSize*1024), false, maxLogFiles)
	if err != nil {
		return fmt.Errorf("failed to create file rotator: %w", err)
	}
	r.logWriter.RotatorLogFile = rot
	return nil
}

// GenSubLogger creates a new slog.Logger for the given subsystem tag,
// writing through this writer's shared backend.
func (r *RotatingLogWriter) GenSubLogger(tag string) slog.Logger {
	return r.backend.Logger(tag)
}

// RegisterSubLogger records a subsystem's logger so SetLogLevels can later
// find it by tag.
func (r *RotatingLogWriter) RegisterSubLogger(subsystem string, logger slog.Logger) {
	r.subsystemLoggers[subsystem] = logger
}

// SetLogLevel changes the verbosity of a previously registered subsystem
// logger. Unknown subsystems are ignored.
func (r *RotatingLogWriter) SetLogLevel(subsystem string, level string) {
	logger, ok := r.subsystemLoggers[subsystem]
	if !ok {
		return
	}
	lvl, _ := slog.LevelFromString(level)
	logger.SetLevel(lvl)
}

// NewSubLogger returns a slog.Logger for the given subsystem tag. When gen is
// nil (the pre-startup placeholder case), logging is disabled so packages can
// safely hold a logger before SetupLoggers runs.
func NewSubLogger(subsystem string, gen func(string) slog.Logger) slog.Logger {
	if gen == nil {
		return slog.Disabled
	}
	return gen(subsystem)
}

// LogClosure defers the cost of building a log line until the logger has
// decided the line will actually be emitted.
type LogClosure func() string

// String invokes the closure and returns its result.
func (c LogClosure) String() string {
	return c()
}

// NewLogClosure wraps a function for use as a Stringer passed to a
// leveled-logging call.
func NewLogClosure(c func() string) LogClosure {
	return LogClosure(c)
}

var _ io.Writer = (*LogWriter)(nil)
