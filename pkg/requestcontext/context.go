// Package requestcontext provides HTTP-independent context accessors for
// request-scoped values. Middleware sets them; services and processors read
// them without importing anything from net/http.
package requestcontext

import (
	"context"
	"time"
)

type (
	usernameKey    struct{}
	claimsKey      struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
	clientIPKey    struct{}
	userAgentKey   struct{}
	deviceKey      struct{}
)

// Username retrieves the authenticated username from the context. Empty when
// the request is unauthenticated.
func Username(ctx context.Context) string {
	if name, ok := ctx.Value(usernameKey{}).(string); ok {
		return name
	}
	return ""
}

// WithUsername injects a username into the context.
func WithUsername(ctx context.Context, username string) context.Context {
	return context.WithValue(ctx, usernameKey{}, username)
}

// AccessClaims retrieves the caller's authorization claim values.
func AccessClaims(ctx context.Context) []string {
	if claims, ok := ctx.Value(claimsKey{}).([]string); ok {
		return claims
	}
	return nil
}

// WithAccessClaims injects authorization claim values into the context.
func WithAccessClaims(ctx context.Context, claims []string) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}

// RequestID retrieves the correlation id for the current request.
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

// WithRequestID injects a correlation id into the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// Now retrieves the request-scoped time, falling back to time.Now for
// non-HTTP contexts such as workers and tests that don't pin a clock.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey{}).(time.Time); ok {
		return t
	}
	return time.Now().UTC()
}

// WithTime pins the request-scoped clock. Tests use this to make event
// timestamps deterministic.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey{}, t)
}

// ClientIP retrieves the client IP address captured by middleware.
func ClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(clientIPKey{}).(string); ok {
		return ip
	}
	return ""
}

// Device retrieves the simplified browser/platform description parsed from
// the User-Agent header.
func Device(ctx context.Context) string {
	if d, ok := ctx.Value(deviceKey{}).(string); ok {
		return d
	}
	return ""
}

// UserAgent retrieves the raw User-Agent header.
func UserAgent(ctx context.Context) string {
	if ua, ok := ctx.Value(userAgentKey{}).(string); ok {
		return ua
	}
	return ""
}

// WithClientMetadata injects client IP, raw user agent and the parsed device
// description in one call; middleware is the usual caller.
func WithClientMetadata(ctx context.Context, ip, userAgent, device string) context.Context {
	ctx = context.WithValue(ctx, clientIPKey{}, ip)
	ctx = context.WithValue(ctx, userAgentKey{}, userAgent)
	return context.WithValue(ctx, deviceKey{}, device)
}
