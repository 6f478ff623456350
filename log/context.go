package log

import (
	"context"

	"github.com/sirupsen/logrus"
)

type ctxKey struct{}

// NewCtx stores logger in ctx. The returned entry is bound to the new context.
func NewCtx(ctx context.Context, logger *logrus.Entry) (context.Context, *logrus.Entry) {
	ctx = context.WithValue(ctx, ctxKey{}, logger)

	return ctx, logger.WithContext(ctx)
}

// FromCtx returns the logger stored in ctx or an entry of the global logger
func FromCtx(ctx context.Context) *logrus.Entry {
	if logger, ok := ctx.Value(ctxKey{}).(*logrus.Entry); ok {
		// ctx may be a child of the context the logger was stored in
		return logger.WithContext(ctx)
	}

	return logrus.NewEntry(Log()).WithContext(ctx)
}

// CtxWithFields stores a logger with additional fields in ctx
func CtxWithFields(ctx context.Context, fields logrus.Fields) (context.Context, *logrus.Entry) {
	return NewCtx(ctx, FromCtx(ctx).WithFields(fields))
}

// CtxWithKey stores a logger carrying the escaped cache key in ctx
func CtxWithKey(ctx context.Context, key string) (context.Context, *logrus.Entry) {
	return CtxWithFields(ctx, logrus.Fields{"key": EscapeInput(key)})
}
