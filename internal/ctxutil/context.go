// Package ctxutil provides type-safe context value management.
// Uses private key types to prevent collisions.
package ctxutil

import (
	"context"
)

type contextKey string

const (
	userIDKey    contextKey = "ctxutil.userID"
	peerIDKey    contextKey = "ctxutil.peerID"
	requestIDKey contextKey = "ctxutil.requestID"
	eventIDKey   contextKey = "ctxutil.eventID"
)

// WithUserID adds a VK user ID (message from_id) to the context.
func WithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// GetUserID retrieves the user ID from the context.
// Returns 0 if not set.
func GetUserID(ctx context.Context) int64 {
	if v, ok := ctx.Value(userIDKey).(int64); ok {
		return v
	}
	return 0
}

// WithPeerID adds a VK peer ID (the conversation the reply goes to) to the context.
func WithPeerID(ctx context.Context, peerID int64) context.Context {
	return context.WithValue(ctx, peerIDKey, peerID)
}

// GetPeerID retrieves the peer ID from the context.
// Returns 0 if not set.
func GetPeerID(ctx context.Context) int64 {
	if v, ok := ctx.Value(peerIDKey).(int64); ok {
		return v
	}
	return 0
}

// WithRequestID adds a request ID to the context for tracing.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// GetRequestID retrieves the request ID from the context.
// Returns the request ID and true if found, empty string and false otherwise.
func GetRequestID(ctx context.Context) (string, bool) {
	requestID, ok := ctx.Value(requestIDKey).(string)
	return requestID, ok
}

// WithEventID adds the VK callback event_id to the context.
func WithEventID(ctx context.Context, eventID string) context.Context {
	return context.WithValue(ctx, eventIDKey, eventID)
}

// GetEventID retrieves the VK event ID from the context.
func GetEventID(ctx context.Context) string {
	if v, ok := ctx.Value(eventIDKey).(string); ok {
		return v
	}
	return ""
}

// PreserveTracing creates a detached context that preserves tracing values.
// The new context is independent of the parent's cancellation and deadlines.
//
// Use for async operations that must outlive the HTTP request, such as
// callback processing that continues after VK has received "ok".
func PreserveTracing(ctx context.Context) context.Context {
	newCtx := context.Background()

	if userID := GetUserID(ctx); userID != 0 {
		newCtx = WithUserID(newCtx, userID)
	}
	if peerID := GetPeerID(ctx); peerID != 0 {
		newCtx = WithPeerID(newCtx, peerID)
	}
	if requestID, ok := GetRequestID(ctx); ok && requestID != "" {
		newCtx = WithRequestID(newCtx, requestID)
	}
	if eventID := GetEventID(ctx); eventID != "" {
		newCtx = WithEventID(newCtx, eventID)
	}

	return newCtx
}
