// Package middleware carries the request-scoped plumbing every route runs
// through: authentication, correlation ids, the request clock, and client
// metadata for the audit log.
package middleware

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mssola/useragent"

	"fleetledger/pkg/requestcontext"
)

// RequestID assigns a correlation id, honoring one supplied by an upstream
// proxy.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r.WithContext(requestcontext.WithRequestID(r.Context(), id)))
	})
}

// RequestTime pins the request clock so every timestamp taken during one
// request observes the same now.
func RequestTime(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now().UTC())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ClientMetadata captures the caller's IP and a parsed device description for
// audit logging.
func ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua := r.Header.Get("User-Agent")
		ctx := requestcontext.WithClientMetadata(r.Context(), clientIP(r), ua, describeDevice(ua))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// clientIP handles proxies and load balancers before falling back to the
// connection address.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// describeDevice condenses a User-Agent header into the short form the audit
// log records.
func describeDevice(uaHeader string) string {
	if uaHeader == "" {
		return ""
	}
	ua := useragent.New(uaHeader)
	browser, version := ua.Browser()
	if browser == "" {
		return uaHeader
	}
	device := fmt.Sprintf("%s %s on %s", browser, version, ua.OS())
	if ua.Mobile() {
		device += " (mobile)"
	}
	return device
}
