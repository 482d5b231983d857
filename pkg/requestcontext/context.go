// Package requestcontext provides HTTP-independent context accessors for request-scoped values.
//
// Middleware sets the values; services and stores read them without importing net/http.
//
//	holderID := requestcontext.HolderID(ctx)
//	requestID := requestcontext.RequestID(ctx)
package requestcontext

import "context"

type (
	holderIDKey  struct{}
	clientIPKey  struct{}
	userAgentKey struct{}
	deviceKey    struct{}
	requestIDKey struct{}
)

// Exported context keys for direct use in tests that need context.WithValue.
var (
	ContextKeyHolderID  = holderIDKey{}
	ContextKeyClientIP  = clientIPKey{}
	ContextKeyUserAgent = userAgentKey{}
	ContextKeyDevice    = deviceKey{}
	ContextKeyRequestID = requestIDKey{}
)

// HolderID retrieves the authenticated holder identity from the context.
// Returns "" when no holder token was presented.
func HolderID(ctx context.Context) string {
	if holderID, ok := ctx.Value(ContextKeyHolderID).(string); ok {
		return holderID
	}
	return ""
}

// WithHolderID injects an authenticated holder identity into the context.
func WithHolderID(ctx context.Context, holderID string) context.Context {
	return context.WithValue(ctx, ContextKeyHolderID, holderID)
}

// ClientIP retrieves the client IP address from the context.
func ClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(ContextKeyClientIP).(string); ok {
		return ip
	}
	return ""
}

// UserAgent retrieves the User-Agent from the context.
func UserAgent(ctx context.Context) string {
	if ua, ok := ctx.Value(ContextKeyUserAgent).(string); ok {
		return ua
	}
	return ""
}

// Device retrieves the parsed device summary (e.g. "Safari/iOS mobile").
func Device(ctx context.Context) string {
	if d, ok := ctx.Value(ContextKeyDevice).(string); ok {
		return d
	}
	return ""
}

// WithClientMetadata injects client IP, User-Agent and device summary into a context.
// Useful for service unit tests that don't run the full HTTP middleware chain.
func WithClientMetadata(ctx context.Context, clientIP, userAgent, device string) context.Context {
	ctx = context.WithValue(ctx, ContextKeyClientIP, clientIP)
	ctx = context.WithValue(ctx, ContextKeyUserAgent, userAgent)
	ctx = context.WithValue(ctx, ContextKeyDevice, device)
	return ctx
}

// RequestID retrieves the request ID from the context.
func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return reqID
	}
	return ""
}

// WithRequestID injects a request ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}
