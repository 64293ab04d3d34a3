package middleware

import (
	"context"
	"net/http"
	"strings"

	"ticketing/internal/auth"
)

type contextKey string

const userIDKey contextKey = "user_id"

func UserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(userIDKey).(string)
	return userID, ok && userID != ""
}

// WithUserID is used by handlers tests and by Auth.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

func Auth(secret string) func(http.Handler) http.Handler {
	return authenticate(secret, false)
}

// AuthWebSocket also accepts the token as a `token` query parameter, since
// browsers cannot set headers on a websocket handshake.
func AuthWebSocket(secret string) func(http.Handler) http.Handler {
	return authenticate(secret, true)
}

func authenticate(secret string, allowQuery bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, status := bearerToken(r, allowQuery)
			if raw == "" {
				http.Error(w, status, http.StatusUnauthorized)
				return
			}
			claims, err := auth.ParseToken(secret, raw)
			if err != nil {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), claims.UserID)))
		})
	}
}

func bearerToken(r *http.Request, allowQuery bool) (string, string) {
	header := r.Header.Get("Authorization")
	if header == "" {
		if token := r.URL.Query().Get("token"); allowQuery && token != "" {
			return token, ""
		}
		return "", "missing authorization header"
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", "invalid authorization header"
	}
	return strings.TrimSpace(parts[1]), ""
}
