package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/frahmantamala/payment-reconciliation/internal"
)

// ServiceAuth verifies the HS256 service token the bot frontend presents on
// the intent and balance APIs. The token's subject names the calling service
// and is propagated on the request context. The provider webhook does not go
// through this middleware; its authenticity is out of scope here.
func ServiceAuth(secret string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := extractBearerToken(r)
			if tokenString == "" {
				writeAuthError(w, internal.ErrInvalidToken)
				return
			}

			claims := &jwt.RegisteredClaims{}
			token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				if err != nil && strings.Contains(err.Error(), jwt.ErrTokenExpired.Error()) {
					logger.Warn("expired service token", "error", err)
					writeAuthError(w, internal.ErrTokenExpired)
					return
				}
				logger.Warn("invalid service token", "error", err)
				writeAuthError(w, internal.ErrInvalidToken)
				return
			}

			ctx := internal.ContextWithService(r.Context(), claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func extractBearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(authHeader, "Bearer ")
}

func writeAuthError(w http.ResponseWriter, appErr *internal.AppError) {
	status, body := appErr.ToHTTPResponse()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
