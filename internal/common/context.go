package common

import (
	"context"

	"github.com/google/uuid"
)

// Context keys for storing values in context
type contextKey string

const (
	ContextKeyRequestID contextKey = "request_id"
	ContextKeyOwnerID   contextKey = "owner_id"
)

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// RequestIDFromContext extracts the request ID from context
func RequestIDFromContext(ctx context.Context) string {
	if requestID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return requestID
	}
	return ""
}

// EnsureRequestID returns ctx carrying a request ID, generating one when absent.
func EnsureRequestID(ctx context.Context) (context.Context, string) {
	if id := RequestIDFromContext(ctx); id != "" {
		return ctx, id
	}
	id := uuid.NewString()
	return WithRequestID(ctx, id), id
}

// WithOwnerID adds the owning user's ID to the context
func WithOwnerID(ctx context.Context, ownerID string) context.Context {
	return context.WithValue(ctx, ContextKeyOwnerID, ownerID)
}

// OwnerIDFromContext extracts the owner ID from context
func OwnerIDFromContext(ctx context.Context) string {
	if ownerID, ok := ctx.Value(ContextKeyOwnerID).(string); ok {
		return ownerID
	}
	return ""
}
