package logging

import (
	"context"
	"log/slog"
)

// ctxKey is an unexported type for context keys defined in this package.
type ctxKey string

const (
	loggerKey         ctxKey = "logger"
	clientIDKey       ctxKey = "clientID"
	conversationIDKey ctxKey = "conversationID"
)

// WithLogger stores the provided logger on the context.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	if ctx == nil || logger == nil {
		return ctx
	}
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext returns the session-scoped logger or falls back to slog.Default().
func FromContext(ctx context.Context) *slog.Logger {
	if ctx == nil {
		return slog.Default()
	}
	if logger, ok := ctx.Value(loggerKey).(*slog.Logger); ok && logger != nil {
		return logger
	}
	return slog.Default()
}

// WithClientID stores the client instance identifier on the context.
func WithClientID(ctx context.Context, clientID string) context.Context {
	if ctx == nil || clientID == "" {
		return ctx
	}
	return context.WithValue(ctx, clientIDKey, clientID)
}

// ClientIDFromContext retrieves a previously stored client instance identifier.
func ClientIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if clientID, ok := ctx.Value(clientIDKey).(string); ok {
		return clientID
	}
	return ""
}

// WithConversationID stores the active conversation identifier on the context.
func WithConversationID(ctx context.Context, conversationID string) context.Context {
	if ctx == nil || conversationID == "" {
		return ctx
	}
	return context.WithValue(ctx, conversationIDKey, conversationID)
}

// ConversationIDFromContext retrieves the conversation identifier from the context.
func ConversationIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if conversationID, ok := ctx.Value(conversationIDKey).(string); ok {
		return conversationID
	}
	return ""
}
