package auth

import (
	"context"
	"net/http"

	"github.com/xela07ax/spaceai-console/internal/domain"
	"go.uber.org/zap"
)

// TokenValidator: проверка подписи и срока токена, результат: пользователь с сессией.
type TokenValidator interface {
	Identify(tokenStr string) (domain.Identity, error)
}

// SessionChecker: жива ли сессия (не отозвана logout'ом).
type SessionChecker interface {
	Active(ctx context.Context, sessionID string) (bool, error)
}

// Тип для ключа в контексте (избегаем коллизий)
type ctxKey string

const identityKey ctxKey = "identity"

func WithIdentity(ctx context.Context, id domain.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext достает пользователя, положенного middleware.
func IdentityFromContext(ctx context.Context) (domain.Identity, bool) {
	id, ok := ctx.Value(identityKey).(domain.Identity)
	return id, ok
}

// NewMiddleware проверяет токен и сессию. sessions может быть nil: тогда проверяется только подпись.
func NewMiddleware(v TokenValidator, sessions SessionChecker, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			id, err := v.Identify(authHeader)
			if err != nil {
				logger.Warn("auth failure", zap.Error(err))
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			if sessions != nil {
				active, err := sessions.Active(r.Context(), id.SessionID)
				if err != nil {
					logger.Error("session lookup failed", zap.String("session_id", id.SessionID), zap.Error(err))
					http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
					return
				}
				if !active {
					logger.Debug("auth failure", zap.String("session_id", id.SessionID), zap.Error(ErrSessionRevoked))
					http.Error(w, "Unauthorized", http.StatusUnauthorized)
					return
				}
			}

			ctx := WithIdentity(r.Context(), id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireScope пропускает только пользователей с нужным scope (admin проходит всегда).
func RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFromContext(r.Context())
			if !ok || !id.HasScope(scope) {
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
