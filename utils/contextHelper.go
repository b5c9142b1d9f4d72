package utils

import "context"

type contextKey string

const (
	ContextKeyUserIdentifier contextKey = "userIdentifier"
	ContextKeyCorrelationId  contextKey = "correlationId"
)

func getString(ctx context.Context, key contextKey) (string, bool) {
	v, ok := ctx.Value(key).(string)
	return v, ok
}

func GetUserIdentifierFromContext(ctx context.Context) (string, bool) {
	return getString(ctx, ContextKeyUserIdentifier)
}

func SetUserIdentifierInContext(ctx context.Context, userIdentifier string) context.Context {
	return context.WithValue(ctx, ContextKeyUserIdentifier, userIdentifier)
}

func GetCorrelationIdFromContext(ctx context.Context) (string, bool) {
	return getString(ctx, ContextKeyCorrelationId)
}

func SetCorrelationIdInContext(ctx context.Context, correlationId string) context.Context {
	return context.WithValue(ctx, ContextKeyCorrelationId, correlationId)
}
