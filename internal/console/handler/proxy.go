package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sony/gobreaker"
	"github.com/xela07ax/spaceai-console/internal/infra/auth"
	"github.com/xela07ax/spaceai-console/internal/presence"
	"github.com/xela07ax/spaceai-console/internal/remote"
	"go.uber.org/zap"
)

// UntrackedHeader помечает фоновые запросы SPA (поллинг), которые не считаются активностью.
const UntrackedHeader = "X-Presence-Untracked"

var forwardedHeaders = []string{"Content-Type", "Accept", "Accept-Language", "If-None-Match", "X-Request-Id"}

type ProxyHandler struct {
	client   *remote.Client
	sessions Sessions
	logger   *zap.Logger
}

func NewProxyHandler(c *remote.Client, sessions Sessions, logger *zap.Logger) *ProxyHandler {
	return &ProxyHandler{client: c, sessions: sessions, logger: logger.Named("proxy")}
}

// ServeHTTP проксирует /api/* в удаленный API. Вызов проходит через presence.Transport
// и засчитывается трекеру сессии.
func (h *ProxyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	e := h.sessions.Acquire(id)

	ctx := presence.WithObserver(r.Context(), e.Tracker)
	if r.Header.Get(UntrackedHeader) != "" {
		ctx = presence.WithoutActivity(ctx)
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 10<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	header := http.Header{}
	for _, k := range forwardedHeaders {
		if v := r.Header.Get(k); v != "" {
			header.Set(k, v)
		}
	}

	resp, err := h.client.Do(ctx, remote.Request{
		Method: r.Method,
		Path:   "/" + chi.URLParam(r, "*"),
		Query:  r.URL.RawQuery,
		Header: header,
		Body:   body,
	})

	var sErr *remote.StatusError
	switch {
	case err == nil, errors.As(err, &sErr):
		// 5xx бэкенда отдаем как есть
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		writeError(w, http.StatusServiceUnavailable, "remote api temporarily unavailable")
		return
	default:
		writeError(w, http.StatusBadGateway, "remote api unreachable")
		return
	}

	if resp == nil {
		resp = sErr.Response
	}
	for _, k := range []string{"Content-Type", "ETag", "Cache-Control", "Retry-After"} {
		if v := resp.Header.Get(k); v != "" {
			w.Header().Set(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(resp.Body)
}
