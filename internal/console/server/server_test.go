package server

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/spaceai-console/internal/console/handler"
	"github.com/xela07ax/spaceai-console/internal/console/service"
	"github.com/xela07ax/spaceai-console/internal/domain"
	"github.com/xela07ax/spaceai-console/internal/infra"
	"github.com/xela07ax/spaceai-console/internal/infra/auth"
	"github.com/xela07ax/spaceai-console/internal/journal"
	"github.com/xela07ax/spaceai-console/internal/presence"
	"github.com/xela07ax/spaceai-console/internal/remote"
	"github.com/xela07ax/spaceai-console/internal/session"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type usersStub map[string]*domain.User

func (u usersStub) GetUserByUsername(_ context.Context, username string) (*domain.User, error) {
	return u[username], nil
}

type backendCall struct {
	method, path string
}

type harness struct {
	ts       *httptest.Server
	clock    *clockwork.FakeClock
	redis    *miniredis.Miniredis
	registry *session.Registry
	backend  chan backendCall
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	hash, err := bcrypt.GenerateFromPassword([]byte("pw"), bcrypt.MinCost)
	require.NoError(t, err)
	users := usersStub{
		"alice": {ID: "u-1", Username: "alice", PasswordHash: string(hash), Scopes: map[string]bool{"support": true}},
		"bob":   {ID: "u-2", Username: "bob", PasswordHash: string(hash)},
		"root":  {ID: "u-0", Username: "root", PasswordHash: string(hash), Scopes: map[string]bool{"admin": true}},
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	reg := prometheus.NewRegistry()
	fc := clockwork.NewFakeClockAt(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	cfg := presence.DefaultConfig()
	cfg.InactivityThreshold = time.Minute

	store := session.NewStore(rdb)
	verification := session.NewVerification(rdb, zap.NewNop())
	latest := journal.NewRedisStore(rdb)
	registry := session.NewRegistry(ctx, cfg, session.RegistryDeps{
		Sink:         &journal.Sink{Latest: latest},
		Revoker:      store,
		Verification: verification,
		Metrics:      presence.NewMetrics(reg),
		Clock:        fc,
	}, zap.NewNop())
	t.Cleanup(registry.Close)

	calls := make(chan backendCall, 16)
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls <- backendCall{method: r.Method, path: r.URL.Path}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	t.Cleanup(backend.Close)

	client, err := remote.New(infra.RemoteConfig{BaseURL: backend.URL + "/api/v1", Retries: 1}, remote.NewMetrics(reg), zap.NewNop())
	require.NoError(t, err)

	authSvc := service.NewAuthService(users, store, key, time.Hour)
	srv := NewConsoleServer(zap.NewNop(), auth.NewBaseValidator(&key.PublicKey), store, reg, Handlers{
		Auth:          handler.NewAuthHandler(authSvc, registry),
		Presence:      handler.NewPresenceHandler(registry, zap.NewNop()),
		Justification: handler.NewJustificationHandler(latest, nil, zap.NewNop()),
		Verification:  handler.NewVerificationHandler(verification, zap.NewNop()),
		Proxy:         handler.NewProxyHandler(client, registry, zap.NewNop()),
	})

	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	return &harness{ts: ts, clock: fc, redis: mr, registry: registry, backend: calls}
}

func (h *harness) login(t *testing.T, user string) string {
	t.Helper()
	status, body := h.do(t, http.MethodPost, "/auth/token", "", `{"username":"`+user+`","password":"pw"}`, nil)
	require.Equal(t, http.StatusOK, status, string(body))

	var resp domain.TokenResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	return resp.AccessToken
}

func (h *harness) do(t *testing.T, method, path, token, body string, header http.Header) (int, []byte) {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, h.ts.URL+path, rdr)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range header {
		req.Header[k] = vs
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func (h *harness) status(t *testing.T, token string) handler.StatusView {
	t.Helper()
	code, body := h.do(t, http.MethodGet, "/v1/presence/status", token, "", nil)
	require.Equal(t, http.StatusOK, code, string(body))
	var st handler.StatusView
	require.NoError(t, json.Unmarshal(body, &st))
	return st
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	h := newHarness(t)

	code, _ := h.do(t, http.MethodGet, "/v1/presence/status", "", "", nil)
	require.Equal(t, http.StatusUnauthorized, code)
	code, _ = h.do(t, http.MethodGet, "/health", "", "", nil)
	require.Equal(t, http.StatusOK, code)
}

func TestStatusCountsDown(t *testing.T) {
	h := newHarness(t)
	token := h.login(t, "alice")

	st := h.status(t, token)
	require.True(t, st.Enabled)
	require.Equal(t, int64(60_000), st.ThresholdMs)
	require.Equal(t, presence.StageClosed, st.Stage)
	require.Equal(t, presence.Countdown{Minutes: 1}, st.Countdown)
	require.Nil(t, st.Prompt)
}

func TestLunchJustificationOverHTTP(t *testing.T) {
	h := newHarness(t)
	token := h.login(t, "alice")

	code, body := h.do(t, http.MethodPost, "/v1/presence/force", token, "", nil)
	require.Equal(t, http.StatusOK, code, string(body))

	st := h.status(t, token)
	require.Equal(t, presence.StagePrompt, st.Stage)
	require.NotNil(t, st.Prompt)
	require.False(t, st.Prompt.Dismissible)
	require.GreaterOrEqual(t, st.Prompt.MinutesInactive, 1)

	code, _ = h.do(t, http.MethodPost, "/v1/presence/prompt/dismiss", token, "", nil)
	require.Equal(t, http.StatusConflict, code)

	code, _ = h.do(t, http.MethodPost, "/v1/presence/prompt/justify", token, "", nil)
	require.Equal(t, http.StatusAccepted, code)
	require.Equal(t, presence.StageJustifying, h.status(t, token).Stage)

	code, _ = h.do(t, http.MethodPost, "/v1/presence/prompt/justify", token, `{"reason":"   "}`, nil)
	require.Equal(t, http.StatusUnprocessableEntity, code)

	code, body = h.do(t, http.MethodPost, "/v1/presence/prompt/justify", token, `{"reason":"lunch"}`, nil)
	require.Equal(t, http.StatusOK, code, string(body))

	st = h.status(t, token)
	require.Equal(t, presence.StageClosed, st.Stage)
	require.Equal(t, h.clock.Now(), st.LastActivityAt.UTC())
	require.True(t, h.redis.Exists("justification_inactivity:alice"))

	code, body = h.do(t, http.MethodGet, "/v1/presence/justifications", token, "", nil)
	require.Equal(t, http.StatusOK, code)
	var list handler.JustificationsResponse
	require.NoError(t, json.Unmarshal(body, &list))
	require.NotNil(t, list.Latest)
	require.Equal(t, "lunch", list.Latest.Reason)
	require.Equal(t, "alice", list.Latest.UserIdentity)
}

func TestTickerOpensPrompt(t *testing.T) {
	h := newHarness(t)
	token := h.login(t, "alice")
	h.status(t, token)

	opened := false
	for i := 0; i < 1000 && !opened; i++ {
		h.clock.Advance(time.Second)
		time.Sleep(2 * time.Millisecond)
		opened = h.status(t, token).Stage == presence.StagePrompt
	}
	require.True(t, opened, "prompt never opened")

	code, _ := h.do(t, http.MethodPost, "/v1/presence/prompt/continue", token, "", nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, presence.StageClosed, h.status(t, token).Stage)
}

func TestForceRequiresSupportScope(t *testing.T) {
	h := newHarness(t)
	token := h.login(t, "bob")

	code, _ := h.do(t, http.MethodPost, "/v1/presence/force", token, "", nil)
	require.Equal(t, http.StatusForbidden, code)

	code, _ = h.do(t, http.MethodPost, "/v1/presence/prompt/continue", token, "", nil)
	require.Equal(t, http.StatusConflict, code, "no prompt is open")
}

func TestPromptLogoutRevokesSession(t *testing.T) {
	h := newHarness(t)
	token := h.login(t, "alice")

	code, _ := h.do(t, http.MethodPost, "/v1/presence/force", token, "", nil)
	require.Equal(t, http.StatusOK, code)

	code, _ = h.do(t, http.MethodPost, "/v1/presence/prompt/logout", token, "", nil)
	require.Equal(t, http.StatusNoContent, code)
	require.Equal(t, 0, h.registry.Len())

	code, _ = h.do(t, http.MethodGet, "/v1/presence/status", token, "", nil)
	require.Equal(t, http.StatusUnauthorized, code)
}

func TestMenuLogout(t *testing.T) {
	h := newHarness(t)
	token := h.login(t, "bob")
	h.status(t, token)
	require.Equal(t, 1, h.registry.Len())

	code, _ := h.do(t, http.MethodPost, "/auth/logout", token, "", nil)
	require.Equal(t, http.StatusNoContent, code)
	require.Equal(t, 0, h.registry.Len())
}

func TestVerificationBlocksSignals(t *testing.T) {
	h := newHarness(t)
	alice := h.login(t, "alice")
	root := h.login(t, "root")

	code, _ := h.do(t, http.MethodPost, "/v1/system/verification", alice, `{"enabled":true}`, nil)
	require.Equal(t, http.StatusForbidden, code)

	code, _ = h.do(t, http.MethodPost, "/v1/system/verification", root, `{"enabled":true}`, nil)
	require.Equal(t, http.StatusOK, code)

	code, body := h.do(t, http.MethodPost, "/v1/presence/signals", alice, `{"kind":"pointer","route":"/companies"}`, nil)
	require.Equal(t, http.StatusOK, code)
	var resp handler.SignalResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	require.Equal(t, presence.OutcomeVerifying, resp.Outcome)
}

func TestSignalsRespectExcludedRoutes(t *testing.T) {
	h := newHarness(t)
	token := h.login(t, "bob")

	code, body := h.do(t, http.MethodPost, "/v1/presence/signals", token, `{"kind":"keyboard","route":"/login"}`, nil)
	require.Equal(t, http.StatusOK, code)
	var resp handler.SignalResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	require.Equal(t, presence.OutcomeExcludedRoute, resp.Outcome)
	require.True(t, resp.Status.Suspended)

	code, _ = h.do(t, http.MethodPost, "/v1/presence/signals", token, `{"kind":"telepathy"}`, nil)
	require.Equal(t, http.StatusBadRequest, code)
}

func TestProxyCountsAsActivity(t *testing.T) {
	h := newHarness(t)
	token := h.login(t, "alice")
	start := h.status(t, token).LastActivityAt

	h.clock.Advance(30 * time.Second)
	code, body := h.do(t, http.MethodPost, "/api/companies?draft=1", token, `{"name":"ACME"}`, nil)
	require.Equal(t, http.StatusOK, code)
	require.JSONEq(t, `{"ok":true}`, string(body))
	require.Equal(t, backendCall{method: http.MethodPost, path: "/api/v1/companies"}, <-h.backend)

	st := h.status(t, token)
	require.True(t, st.LastActivityAt.After(start))

	h.clock.Advance(10 * time.Second)
	code, _ = h.do(t, http.MethodGet, "/api/users", token, "", http.Header{handler.UntrackedHeader: {"1"}})
	require.Equal(t, http.StatusOK, code)
	<-h.backend
	require.Equal(t, st.LastActivityAt, h.status(t, token).LastActivityAt, "background polling is not activity")
}

func TestMetricsExposed(t *testing.T) {
	h := newHarness(t)
	token := h.login(t, "alice")
	h.do(t, http.MethodPost, "/v1/presence/signals", token, `{"kind":"pointer"}`, nil)

	code, body := h.do(t, http.MethodGet, "/metrics", "", "", nil)
	require.Equal(t, http.StatusOK, code)
	require.True(t, bytes.Contains(body, []byte("presence_signals_total")))
}
