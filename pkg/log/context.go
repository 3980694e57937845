package log

import (
	"context"

	"github.com/rs/zerolog"
)

type ctxKey struct{}

// WithLogger stores a logger in the context.
func WithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// Ctx retrieves the logger from the context, falling back to the global one.
func Ctx(ctx context.Context) zerolog.Logger {
	if ctx == nil {
		return L()
	}
	if l, ok := ctx.Value(ctxKey{}).(zerolog.Logger); ok {
		return l
	}
	return L()
}

// With returns ctx carrying a child of its logger enriched by fn.
func With(ctx context.Context, fn func(zerolog.Context) zerolog.Context) context.Context {
	l := Ctx(ctx)
	return WithLogger(ctx, fn(l.With()).Logger())
}
