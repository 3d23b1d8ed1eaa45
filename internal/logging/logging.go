// Package logging holds the key/value Logger interface used across the player
// packages and its zerolog-backed implementation.
package logging

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the structured logging interface used by every package in the
// module. keysAndValues alternate between a string key and its value.
type Logger interface {
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
	Debug(msg string, keysAndValues ...any)
}

// Nop discards everything.
type Nop struct{}

func (Nop) Info(_ string, _ ...any)  {}
func (Nop) Warn(_ string, _ ...any)  {}
func (Nop) Error(_ string, _ ...any) {}
func (Nop) Debug(_ string, _ ...any) {}

// OrNop returns l, or Nop when l is nil.
func OrNop(l Logger) Logger {
	if l == nil {
		return Nop{}
	}
	return l
}

// Zerolog adapts a zerolog.Logger to Logger.
type Zerolog struct {
	zl zerolog.Logger
}

// FromZerolog wraps zl.
func FromZerolog(zl zerolog.Logger) *Zerolog {
	return &Zerolog{zl: zl}
}

func (z *Zerolog) Info(msg string, kv ...any)  { emit(z.zl.Info(), msg, kv) }
func (z *Zerolog) Warn(msg string, kv ...any)  { emit(z.zl.Warn(), msg, kv) }
func (z *Zerolog) Error(msg string, kv ...any) { emit(z.zl.Error(), msg, kv) }
func (z *Zerolog) Debug(msg string, kv ...any) { emit(z.zl.Debug(), msg, kv) }

// With returns a child logger carrying the given pairs on every entry.
func (z *Zerolog) With(kv ...any) *Zerolog {
	ctx := z.zl.With()
	for i := 0; i < len(kv); i += 2 {
		ctx = ctx.Interface(key(kv, i), value(kv, i))
	}
	return &Zerolog{zl: ctx.Logger()}
}

func emit(e *zerolog.Event, msg string, kv []any) {
	if e == nil {
		return
	}
	for i := 0; i < len(kv); i += 2 {
		switch v := value(kv, i).(type) {
		case error:
			e = e.AnErr(key(kv, i), v)
		case string:
			e = e.Str(key(kv, i), v)
		default:
			e = e.Interface(key(kv, i), v)
		}
	}
	e.Msg(msg)
}

func key(kv []any, i int) string {
	if s, ok := kv[i].(string); ok {
		return s
	}
	return fmt.Sprint(kv[i])
}

func value(kv []any, i int) any {
	if i+1 < len(kv) {
		return kv[i+1]
	}
	return "(MISSING)"
}

// Config captures options for the process-wide base logger.
type Config struct {
	Level   string    // "debug", "info", ...; empty falls back to LOG_LEVEL
	Output  io.Writer // defaults to os.Stdout
	Service string
	Console bool // human-readable output instead of JSON
}

var (
	once sync.Once
	base zerolog.Logger
)

// Configure initialises the base zerolog logger exactly once.
func Configure(cfg Config) {
	once.Do(func() {
		level := zerolog.InfoLevel
		raw := cfg.Level
		if raw == "" {
			raw = os.Getenv("LOG_LEVEL")
		}
		if raw != "" {
			if parsed, err := zerolog.ParseLevel(raw); err == nil {
				level = parsed
			}
		}
		zerolog.TimeFieldFormat = time.RFC3339

		w := cfg.Output
		if w == nil {
			w = os.Stdout
		}
		if cfg.Console {
			w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
		}
		service := cfg.Service
		if service == "" {
			service = "videostated"
		}
		base = zerolog.New(w).Level(level).With().
			Timestamp().
			Str("service", service).
			Logger()
	})
}

// Base returns the configured base logger.
func Base() zerolog.Logger {
	Configure(Config{})
	return base
}

// WithComponent returns a Logger annotated with the given component name.
func WithComponent(component string) *Zerolog {
	return FromZerolog(Base().With().Str("component", component).Logger())
}
