package logger

import (
	"context"

	"go.uber.org/zap"
)

type ctxKey struct{}

// ContextWithLogger stores a logger in the context.
func ContextWithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// FromContext extracts a logger from the context.
// Returns zap.NewNop() if no logger is found.
func FromContext(ctx context.Context) *zap.Logger {
	return FromContextOr(ctx, zap.NewNop())
}

// FromContextOr returns the request logger, or fallback outside a request.
func FromContextOr(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*zap.Logger); ok && l != nil {
		return l
	}
	return fallback
}

// With derives a child of the context logger carrying fields and stores it back.
func With(ctx context.Context, fallback *zap.Logger, fields ...zap.Field) (context.Context, *zap.Logger) {
	l := FromContextOr(ctx, fallback).With(fields...)
	return ContextWithLogger(ctx, l), l
}
