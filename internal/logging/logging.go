package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Options selects the level and encoding of the default logger.
type Options struct {
	Level  string
	Format string
	Output io.Writer
}

// Setup installs the process-wide default logger.
func Setup(opts Options) *slog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	handlerOpts := &slog.HandlerOptions{Level: ParseLevel(opts.Level)}

	var handler slog.Handler
	if strings.EqualFold(strings.TrimSpace(opts.Format), "json") {
		handler = NewJobHandler(slog.NewJSONHandler(out, handlerOpts))
	} else {
		handler = NewJobHandler(slog.NewTextHandler(out, handlerOpts))
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// ParseLevel maps a config string to a slog level, defaulting to info.
func ParseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// JobHandler adds job fields carried by the context to every record.
type JobHandler struct {
	slog.Handler
}

func NewJobHandler(h slog.Handler) *JobHandler {
	return &JobHandler{Handler: h}
}

func (h *JobHandler) Handle(ctx context.Context, r slog.Record) error {
	fields := FieldsFrom(ctx)
	if fields.JobID != "" {
		r.AddAttrs(slog.String("job_id", fields.JobID))
	}
	if fields.JobKind != "" {
		r.AddAttrs(slog.String("job_kind", fields.JobKind))
	}
	if fields.Stage != "" {
		r.AddAttrs(slog.String("stage", fields.Stage))
	}
	if fields.Component != "" {
		r.AddAttrs(slog.String("component", fields.Component))
	}

	return h.Handler.Handle(ctx, r)
}

func (h *JobHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &JobHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *JobHandler) WithGroup(name string) slog.Handler {
	return &JobHandler{Handler: h.Handler.WithGroup(name)}
}
