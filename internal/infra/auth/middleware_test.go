package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/spaceai-console/internal/domain"
	"go.uber.org/zap"
)

type sessionsStub struct {
	active map[string]bool
	err    error
}

func (s sessionsStub) Active(_ context.Context, id string) (bool, error) {
	return s.active[id], s.err
}

func signToken(t *testing.T, key *rsa.PrivateKey, sessionID string, scopes map[string]bool) string {
	t.Helper()
	claims := &domain.CustomClaims{
		UserID:   "u-1",
		Username: "alice",
		Scopes:   scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sessionID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func serve(h http.Handler, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestMiddlewarePutsIdentityInContext(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	var got domain.Identity
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = IdentityFromContext(r.Context())
	})
	mw := NewMiddleware(NewBaseValidator(&key.PublicKey), sessionsStub{active: map[string]bool{"s-1": true}}, zap.NewNop())

	rec := serve(mw(next), signToken(t, key, "s-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, domain.Identity{UserID: "u-1", Username: "alice", SessionID: "s-1"}, got)

	require.Equal(t, http.StatusUnauthorized, serve(mw(next), signToken(t, key, "s-2", nil)).Code, "revoked session")
	require.Equal(t, http.StatusUnauthorized, serve(mw(next), "").Code)
	require.Equal(t, http.StatusUnauthorized, serve(mw(next), "garbage").Code)
}

func TestMiddlewareRejectsForeignKeyAndMissingSession(t *testing.T) {
	key, _ := rsa.GenerateKey(rand.Reader, 2048)
	other, _ := rsa.GenerateKey(rand.Reader, 2048)
	mw := NewMiddleware(NewBaseValidator(&key.PublicKey), nil, zap.NewNop())
	ok := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})

	require.Equal(t, http.StatusUnauthorized, serve(mw(ok), signToken(t, other, "s-1", nil)).Code)
	require.Equal(t, http.StatusUnauthorized, serve(mw(ok), signToken(t, key, "", nil)).Code)
	require.Equal(t, http.StatusOK, serve(mw(ok), signToken(t, key, "s-1", nil)).Code)
}

func TestMiddlewareSessionStoreOutage(t *testing.T) {
	key, _ := rsa.GenerateKey(rand.Reader, 2048)
	mw := NewMiddleware(NewBaseValidator(&key.PublicKey), sessionsStub{err: errors.New("redis down")}, zap.NewNop())

	rec := serve(mw(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})), signToken(t, key, "s-1", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRequireScope(t *testing.T) {
	ok := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
	guarded := RequireScope("support")(ok)

	call := func(id domain.Identity) int {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req = req.WithContext(WithIdentity(req.Context(), id))
		rec := httptest.NewRecorder()
		guarded.ServeHTTP(rec, req)
		return rec.Code
	}

	require.Equal(t, http.StatusForbidden, call(domain.Identity{}))
	require.Equal(t, http.StatusOK, call(domain.Identity{Scopes: map[string]bool{"support": true}}))
	require.Equal(t, http.StatusOK, call(domain.Identity{Scopes: map[string]bool{"admin": true}}))
}

func TestValidatorClassifiesFailures(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	other, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	v := NewBaseValidator(&key.PublicKey)

	id, err := v.Identify("Bearer " + signToken(t, key, "s-1", map[string]bool{"hr": true}))
	require.NoError(t, err)
	require.Equal(t, "s-1", id.SessionID)
	require.True(t, id.HasScope("hr"))

	_, err = v.VerifyToken(signToken(t, key, "", nil))
	require.ErrorIs(t, err, ErrNoSession)

	_, err = v.VerifyToken(signToken(t, other, "s-1", nil))
	require.ErrorIs(t, err, ErrInvalidToken)

	// Без срока действия токен не принимается.
	noExp, err := jwt.NewWithClaims(jwt.SigningMethodRS256, &domain.CustomClaims{
		RegisteredClaims: jwt.RegisteredClaims{ID: "s-1"},
	}).SignedString(key)
	require.NoError(t, err)
	_, err = v.VerifyToken(noExp)
	require.ErrorIs(t, err, ErrInvalidToken)

	// HS256 с публичным ключом вместо секрета отклоняется по алгоритму.
	hs, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &domain.CustomClaims{
		RegisteredClaims: jwt.RegisteredClaims{ID: "s-1", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = v.VerifyToken(hs)
	require.ErrorIs(t, err, ErrInvalidToken)
}
