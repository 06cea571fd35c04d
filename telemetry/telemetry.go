// Package telemetry provides the structured logger used throughout this
// module. Its call-site shape — logger.WithModule(name), then
// logger.Info(msg, telemetry.String("key", val)) — mirrors
// github.com/creastat/infra/telemetry.Logger as used across stages/*.go.
// That package isn't importable here, so this one reproduces its shape
// directly on top of github.com/rs/zerolog.
package telemetry

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Field sets one structured field on a log event.
type Field func(*zerolog.Event) *zerolog.Event

// String returns a Field carrying a string value.
func String(key, val string) Field {
	return func(e *zerolog.Event) *zerolog.Event { return e.Str(key, val) }
}

// Int returns a Field carrying an int value.
func Int(key string, val int) Field {
	return func(e *zerolog.Event) *zerolog.Event { return e.Int(key, val) }
}

// Bool returns a Field carrying a bool value.
func Bool(key string, val bool) Field {
	return func(e *zerolog.Event) *zerolog.Event { return e.Bool(key, val) }
}

// Float64 returns a Field carrying a float64 value.
func Float64(key string, val float64) Field {
	return func(e *zerolog.Event) *zerolog.Event { return e.Float64(key, val) }
}

// Err returns a Field carrying an error under zerolog's conventional
// "error" key.
func Err(err error) Field {
	return func(e *zerolog.Event) *zerolog.Event { return e.Err(err) }
}

// Logger wraps a zerolog.Logger with the module's field-constructor API.
type Logger struct {
	z zerolog.Logger
}

// New returns a Logger writing JSON lines to w, timestamped.
func New(w io.Writer) Logger {
	return Logger{z: zerolog.New(w).With().Timestamp().Logger()}
}

// Default returns a Logger writing to os.Stderr.
func Default() Logger { return New(os.Stderr) }

// Nop returns a Logger that discards everything, for tests that don't
// care about log output.
func Nop() Logger { return Logger{z: zerolog.Nop()} }

// WithModule returns a derived Logger that tags every subsequent event
// with module=name.
func (l Logger) WithModule(name string) Logger {
	return Logger{z: l.z.With().Str("module", name).Logger()}
}

func (l Logger) emit(e *zerolog.Event, msg string, fields []Field) {
	for _, f := range fields {
		e = f(e)
	}
	e.Msg(msg)
}

// Debug logs at debug level with structured fields.
func (l Logger) Debug(msg string, fields ...Field) { l.emit(l.z.Debug(), msg, fields) }

// Info logs at info level with structured fields.
func (l Logger) Info(msg string, fields ...Field) { l.emit(l.z.Info(), msg, fields) }

// Warn logs at warn level with structured fields.
func (l Logger) Warn(msg string, fields ...Field) { l.emit(l.z.Warn(), msg, fields) }

// Error logs at error level with structured fields.
func (l Logger) Error(msg string, fields ...Field) { l.emit(l.z.Error(), msg, fields) }
