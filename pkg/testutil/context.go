package testutil

import (
	"net/http"
	"time"

	"fleetledger/pkg/requestcontext"
)

// WithUser stamps a username and access claims onto the request context,
// simulating what the auth middleware does for authenticated requests.
func WithUser(req *http.Request, username string, claims ...string) *http.Request {
	ctx := requestcontext.WithUsername(req.Context(), username)
	ctx = requestcontext.WithAccessClaims(ctx, claims)
	return req.WithContext(ctx)
}

// At pins the request clock so command timestamps are deterministic.
func At(req *http.Request, t time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), t))
}
