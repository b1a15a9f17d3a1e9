// Package logging wires log/slog for the CLI and libraries.
//
// Attributes appended to a context with AppendCtx are emitted on every record
// logged with that context, so a job id set once at the top of a call shows up
// on all of its log lines:
//
//	ctx = logging.AppendCtx(ctx, slog.String("job", id))
//	slog.InfoContext(ctx, "cleaned")
package logging

import (
	"context"
	"io"
	"log/slog"
	"slices"

	"gopkg.in/natefinch/lumberjack.v2"
)

type ctxKey struct{}

// ContextHandler adds the attributes stored by AppendCtx to each record
type ContextHandler struct {
	slog.Handler
}

// Handle adds contextual attributes to the Record before calling the underlying handler
func (h ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if attrs, ok := ctx.Value(ctxKey{}).([]slog.Attr); ok {
		r.AddAttrs(attrs...)
	}
	return h.Handler.Handle(ctx, r)
}

func (h ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return ContextHandler{h.Handler.WithAttrs(attrs)}
}

func (h ContextHandler) WithGroup(name string) slog.Handler {
	return ContextHandler{h.Handler.WithGroup(name)}
}

// AppendCtx returns a copy of parent carrying attr in addition to any
// attributes already stored on it
func AppendCtx(parent context.Context, attr ...slog.Attr) context.Context {
	if parent == nil {
		parent = context.Background()
	}
	if v, ok := parent.Value(ctxKey{}).([]slog.Attr); ok {
		return context.WithValue(parent, ctxKey{}, append(slices.Clip(v), attr...))
	}
	return context.WithValue(parent, ctxKey{}, slices.Clone(attr))
}

// Logger builds a context aware logger writing text or json to w
func Logger(w io.Writer, json bool, level slog.Leveler) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler = slog.NewTextHandler(w, opts)
	if json {
		h = slog.NewJSONHandler(w, opts)
	}
	return slog.New(ContextHandler{h})
}

// RotatingFile is a size rotated log sink, sized in megabytes and days
func RotatingFile(path string, maxSizeMB, maxBackups, maxAgeDays int) io.WriteCloser {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		MaxAge:     maxAgeDays,
		Compress:   true,
	}
}
