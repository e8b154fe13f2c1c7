// Package logger provides the structured logging interface used across the
// client, the event loop and the simulated peer, backed by zerolog.
package logger

import (
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
)

// Field represents a key-value pair for structured log output.
type Field struct {
	Key   string
	Value any
}

// Conn returns the field identifying a connection by its reactor token.
func Conn(token uint32) Field {
	return Field{Key: "conn", Value: token}
}

// Peer returns the field carrying an established peer name.
func Peer(name string) Field {
	return Field{Key: "peer", Value: name}
}

// Err returns the field carrying an error.
func Err(err error) Field {
	return Field{Key: "error", Value: err}
}

// Logger is an interface for structured logging. Loggers may be derived with
// With for connection-scoped fields.
type Logger interface {
	// Debug logs a message at debug level with optional structured fields.
	Debug(msg string, fields ...Field)

	// Info logs a message at info level with optional structured fields.
	Info(msg string, fields ...Field)

	// Warn logs a message at warn level with optional structured fields.
	Warn(msg string, fields ...Field)

	// Error logs a message at error level with optional structured fields.
	Error(msg string, fields ...Field)

	// With returns a new Logger that includes the given fields in all
	// subsequent log entries. The receiver is unchanged.
	//
	// Parameters:
	//   - fields: Key-value pairs to attach to the derived logger
	//
	// Returns:
	//   - A new Logger with the specified fields
	With(fields ...Field) Logger

	// Close flushes and releases resources held by the logger. It is safe to
	// call multiple times.
	Close() error
}

type zerologLogger struct {
	logger zerolog.Logger
	closer io.Closer
}

// NewZerologLogger builds a Logger that wraps the given zerolog.Logger,
// adding a service name and timestamp to all entries and filtering by level.
//
// Parameters:
//   - l: The zerolog.Logger to wrap
//   - serviceName: Name of the service, added as a field to every log entry
//   - level: Minimum level to log (e.g. zerolog.InfoLevel)
//
// Returns:
//   - A Logger that writes through the given zerolog instance
func NewZerologLogger(l zerolog.Logger, serviceName string, level zerolog.Level) Logger {
	return &zerologLogger{
		logger: l.With().Str("service", serviceName).Timestamp().Logger().Level(level),
	}
}

// New creates a Logger writing to w in the given format. Format "console"
// produces human-readable lines; anything else produces JSON. If w is an
// io.Closer it is closed by Close.
//
// Parameters:
//   - w: Destination for log entries
//   - format: "console" or "json"
//   - serviceName: Name of the service, added as a field to every log entry
//   - level: Minimum level to log
//
// Returns:
//   - A Logger writing to w
func New(w io.Writer, format string, serviceName string, level zerolog.Level) Logger {
	out := w
	if strings.EqualFold(format, "console") {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05.000"}
	}

	zl := &zerologLogger{
		logger: zerolog.New(out).With().Str("service", serviceName).Timestamp().Logger().Level(level),
	}
	if c, ok := w.(io.Closer); ok {
		zl.closer = c
	}

	return zl
}

// NewNop returns a Logger that discards everything.
func NewNop() Logger {
	return &zerologLogger{logger: zerolog.Nop()}
}

// ParseLevel converts a level name such as "debug" or "warn" to a zerolog
// level. An empty name means info.
//
// Parameters:
//   - name: The level name
//
// Returns:
//   - The parsed level, or an error for unknown names
func ParseLevel(name string) (zerolog.Level, error) {
	if name == "" {
		return zerolog.InfoLevel, nil
	}

	level, err := zerolog.ParseLevel(strings.ToLower(name))
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("invalid log level %q: %w", name, err)
	}

	return level, nil
}

// Debug implements Logger.
func (z *zerologLogger) Debug(msg string, fields ...Field) {
	z.logger.Debug().Fields(toMap(fields)).Msg(msg)
}

// Info implements Logger.
func (z *zerologLogger) Info(msg string, fields ...Field) {
	z.logger.Info().Fields(toMap(fields)).Msg(msg)
}

// Warn implements Logger.
func (z *zerologLogger) Warn(msg string, fields ...Field) {
	z.logger.Warn().Fields(toMap(fields)).Msg(msg)
}

// Error implements Logger.
func (z *zerologLogger) Error(msg string, fields ...Field) {
	z.logger.Error().Fields(toMap(fields)).Msg(msg)
}

// With implements Logger.
func (z *zerologLogger) With(fields ...Field) Logger {
	return &zerologLogger{
		logger: z.logger.With().Fields(toMap(fields)).Logger(),
	}
}

// Close implements Logger. Derived loggers never close the shared writer.
func (z *zerologLogger) Close() error {
	if z.closer == nil {
		return nil
	}

	c := z.closer
	z.closer = nil
	return c.Close()
}

func toMap(fields []Field) map[string]any {
	if len(fields) == 0 {
		return nil
	}

	m := make(map[string]any, len(fields))
	for _, f := range fields {
		m[f.Key] = f.Value
	}

	return m
}
