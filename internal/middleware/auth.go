package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/lexsign-io/lexsigngo/internal/utils"
	"github.com/lexsign-io/lexsigngo/internal/workflow"
)

type contextKey string

const SignerContextKey contextKey = "signerContext"

// Auth verifies the bearer token and injects a workflow.SignerContext
// (identity, session, IP, user agent) into the request context. Every
// audit event downstream draws its forensic fields from this.
func Auth(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Authorization header required", http.StatusUnauthorized)
				return
			}
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				http.Error(w, "Invalid authorization header format", http.StatusUnauthorized)
				return
			}

			claims, err := utils.ValidateToken(parts[1], jwtSecret)
			if err != nil {
				http.Error(w, "Invalid or expired token", http.StatusUnauthorized)
				return
			}

			sc := workflow.SignerContext{
				UserID:    stringClaim(claims, "id"),
				ActorType: stringClaim(claims, "actorType"),
				SessionID: stringClaim(claims, "sessionId"),
				IP:        clientIP(r),
				UserAgent: r.UserAgent(),
			}
			if sc.UserID == "" {
				http.Error(w, "Invalid or expired token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), SignerContextKey, sc)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SignerFrom extracts the signer context injected by Auth.
func SignerFrom(r *http.Request) (workflow.SignerContext, bool) {
	sc, ok := r.Context().Value(SignerContextKey).(workflow.SignerContext)
	return sc, ok
}

func stringClaim(claims map[string]interface{}, key string) string {
	if v, ok := claims[key].(string); ok {
		return v
	}
	return ""
}

// clientIP prefers the first X-Forwarded-For hop, falling back to the
// connection's remote address.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
