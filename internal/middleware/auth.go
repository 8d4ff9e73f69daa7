package middleware

import (
	"net/http"
	"strings"

	"github.com/josh-kwaku/custody-ledger/internal/auth"
	"github.com/josh-kwaku/custody-ledger/internal/handler"
	"github.com/josh-kwaku/custody-ledger/internal/logging"
)

// Auth admits requests bearing a valid operator token and tags the request
// logger with the operator.
func Auth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				handler.RespondAppError(w, handler.ErrMissingToken, nil)
				return
			}

			token, found := strings.CutPrefix(header, "Bearer ")
			if !found || token == "" {
				handler.RespondAppError(w, handler.ErrInvalidToken, nil)
				return
			}

			claims, err := auth.ValidateToken(token, secret)
			if err != nil {
				logging.FromContext(r.Context()).Warn("operator token rejected", "error", err)
				handler.RespondAppError(w, handler.ErrInvalidToken, nil)
				return
			}

			ctx := auth.ContextWithClaims(r.Context(), claims)
			logger := logging.FromContext(ctx).With("operator", claims.Subject, "role", string(claims.Role))
			ctx = logging.WithLogger(ctx, logger)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
