package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"fleetledger/internal/authz"
	"fleetledger/pkg/requestcontext"
)

// accessClaims is the JWT payload shape: standard registered claims plus the
// flat list of access-claim values.
type accessClaims struct {
	Authorization []string `json:"authorization"`
	jwt.RegisteredClaims
}

// Auth authenticates every request. Two schemes are accepted: a bearer JWT
// signed with the shared HS256 key, or an X-Api-Key header checked against
// the configured bcrypt hash. API-key callers act as superuser; JWT callers
// carry whatever access claims the token grants.
func Auth(signingKey []byte, apiKeyHash string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			if key := r.Header.Get("X-Api-Key"); key != "" && apiKeyHash != "" {
				if err := bcrypt.CompareHashAndPassword([]byte(apiKeyHash), []byte(key)); err != nil {
					logger.WarnContext(ctx, "rejected api key",
						slog.String("request_id", requestcontext.RequestID(ctx)),
					)
					writeUnauthorized(w)
					return
				}
				ctx = requestcontext.WithUsername(ctx, "service")
				ctx = requestcontext.WithAccessClaims(ctx, []string{authz.Superuser})
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok {
				writeUnauthorized(w)
				return
			}

			claims := &accessClaims{}
			parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
				}
				return signingKey, nil
			})
			if err != nil || !parsed.Valid {
				logger.WarnContext(ctx, "rejected token",
					slog.String("request_id", requestcontext.RequestID(ctx)),
					slog.Any("error", err),
				)
				writeUnauthorized(w)
				return
			}

			ctx = requestcontext.WithUsername(ctx, claims.Subject)
			ctx = requestcontext.WithAccessClaims(ctx, claims.Authorization)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"resultType":401,"errors":["authentication required"]}`))
}
