// Package log provides structured logging utilities.
package log

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// ErrInvalidLogLevel is returned when a level string cannot be parsed.
var ErrInvalidLogLevel = errors.New("invalid log level")

// Config captures options for configuring the global logger.
type Config struct {
	Level   string    // optional log level ("debug", "info", etc.)
	Output  io.Writer // optional writer (defaults to os.Stdout)
	Service string    // optional service name attached to every log entry
	Version string    // optional version attached to every log entry
}

var (
	mu          sync.RWMutex
	base        zerolog.Logger
	initialized bool
)

// Configure initialises the global zerolog logger with the provided configuration.
func Configure(cfg Config) {
	mu.Lock()
	defer mu.Unlock()

	level := zerolog.InfoLevel
	if cfg.Level != "" {
		if parsed, err := zerolog.ParseLevel(cfg.Level); err == nil {
			level = parsed
		}
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	writer := cfg.Output
	if writer == nil {
		writer = os.Stdout
	}

	service := cfg.Service
	if service == "" {
		service = "imagepipeline"
	}

	base = zerolog.New(writer).With().
		Timestamp().
		Str("service", service).
		Str("version", cfg.Version).
		Logger()

	initialized = true
}

func ensureInitialized() {
	mu.RLock()
	if initialized {
		mu.RUnlock()
		return
	}
	mu.RUnlock()

	Configure(Config{})
}

// SetLevel updates the global log level at runtime.
func SetLevel(newLevel string) error {
	ensureInitialized()
	parsed, err := zerolog.ParseLevel(newLevel)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidLogLevel, newLevel)
	}

	mu.Lock()
	defer mu.Unlock()
	zerolog.SetGlobalLevel(parsed)
	return nil
}

func logger() zerolog.Logger {
	ensureInitialized()
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// Base returns the configured base logger instance by value.
func Base() zerolog.Logger {
	return logger()
}

// L provides access to the global logger instance as a pointer to a copy.
func L() *zerolog.Logger {
	l := logger()
	return &l
}

// WithComponent returns a child logger annotated with the given component name.
func WithComponent(component string) zerolog.Logger {
	return logger().With().Str("component", component).Logger()
}

// WithTraceContext returns a logger enriched with trace_id and span_id from the context.
func WithTraceContext(ctx context.Context) zerolog.Logger {
	l := logger()
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		l = l.With().
			Str("trace_id", span.SpanContext().TraceID().String()).
			Str("span_id", span.SpanContext().SpanID().String()).
			Logger()
	}
	return l
}
