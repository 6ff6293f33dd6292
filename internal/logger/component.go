package logger

import (
	"context"
	"log/slog"
)

type componentHandler struct {
	component string
	ops       []func(slog.Handler) slog.Handler
}

func (h componentHandler) resolve() slog.Handler {
	base := slog.Default().Handler().WithAttrs([]slog.Attr{slog.String("component", h.component)})
	for _, op := range h.ops {
		base = op(base)
	}
	return base
}

func (h componentHandler) Enabled(ctx context.Context, l slog.Level) bool {
	return slog.Default().Handler().Enabled(ctx, l)
}

func (h componentHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.resolve().Handle(ctx, r)
}

func (h componentHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h.with(func(next slog.Handler) slog.Handler { return next.WithAttrs(attrs) })
}

func (h componentHandler) WithGroup(name string) slog.Handler {
	return h.with(func(next slog.Handler) slog.Handler { return next.WithGroup(name) })
}

func (h componentHandler) with(op func(slog.Handler) slog.Handler) componentHandler {
	ops := make([]func(slog.Handler) slog.Handler, len(h.ops), len(h.ops)+1)
	copy(ops, h.ops)
	return componentHandler{component: h.component, ops: append(ops, op)}
}
