// Package logging configures structured logging for the relay.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	slogotel "github.com/remychantenay/slog-otel"
)

type ctxKey string

// ErrKey is the attribute key errors are logged under.
const ErrKey = "error"

const (
	slogFields      ctxKey = "slog_fields"
	logLevelDefault        = slog.LevelInfo

	priorityCritical = "critical"
)

// Options controls the process-wide logger.
type Options struct {
	Level     string
	AddSource bool
	Output    io.Writer
}

type contextHandler struct {
	slog.Handler
}

// Handle adds contextual attributes to the Record before calling the underlying handler
func (h contextHandler) Handle(ctx context.Context, r slog.Record) error {
	if attrs, ok := ctx.Value(slogFields).([]slog.Attr); ok {
		for _, v := range attrs {
			r.AddAttrs(v)
		}
	}

	return h.Handler.Handle(ctx, r)
}

func (h contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return contextHandler{h.Handler.WithAttrs(attrs)}
}

func (h contextHandler) WithGroup(name string) slog.Handler {
	return contextHandler{h.Handler.WithGroup(name)}
}

// AppendCtx adds an slog attribute to the provided context so that it will be
// included in any Record created with such context
func AppendCtx(parent context.Context, attr slog.Attr) context.Context {
	if parent == nil {
		parent = context.Background()
	}

	if v, ok := parent.Value(slogFields).([]slog.Attr); ok {
		// Copy so sibling contexts never share a backing array.
		attrs := make([]slog.Attr, 0, len(v)+1)
		attrs = append(attrs, v...)
		attrs = append(attrs, attr)
		return context.WithValue(parent, slogFields, attrs)
	}

	return context.WithValue(parent, slogFields, []slog.Attr{attr})
}

// Init builds the JSON logger, installs it as the slog default and returns it.
// Records carry the attributes appended with AppendCtx and, when a span is
// active, its trace and span ids.
func Init(o Options) *slog.Logger {
	out := o.Output
	if out == nil {
		out = os.Stdout
	}

	h := slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level:     ParseLevel(o.Level),
		AddSource: o.AddSource,
	})
	logger := slog.New(slogotel.OtelHandler{Next: contextHandler{h}})
	slog.SetDefault(logger)

	logger.Debug("log config",
		"logLevel", ParseLevel(o.Level),
		"addSource", o.AddSource,
	)

	return logger
}

// ParseLevel maps a level name onto a slog level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	case "info":
		return slog.LevelInfo
	default:
		return logLevelDefault
	}
}

// PriorityCritical marks a record as an operational alert rather than a
// client error, e.g. broken credentials or an orphaned remote object.
func PriorityCritical() slog.Attr {
	return slog.String("priority", priorityCritical)
}
