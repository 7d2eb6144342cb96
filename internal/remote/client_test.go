package remote

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/spaceai-console/internal/infra"
	"github.com/xela07ax/spaceai-console/internal/presence"
	"go.uber.org/zap"
)

type calls struct {
	mu  sync.Mutex
	got []string
}

func (c *calls) ObserveCall(method, path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.got = append(c.got, method+" "+path)
}

func (c *calls) list() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.got...)
}

func testConfig(url string) infra.RemoteConfig {
	return infra.RemoteConfig{
		BaseURL:       url + "/api/v1",
		Timeout:       time.Second,
		Retries:       3,
		RetryDelay:    time.Millisecond,
		CBMaxRequests: 1,
		CBTimeout:     time.Minute,
		CBFailures:    2,
	}
}

func newClient(t *testing.T, handler http.HandlerFunc) (*Client, *Metrics) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	m := NewMetrics(nil)
	c, err := New(testConfig(srv.URL), m, zap.NewNop())
	require.NoError(t, err)
	return c, m
}

func TestClientForwardsAndObserves(t *testing.T) {
	seen := make(chan *http.Request, 1)
	c, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		seen <- r.Clone(context.Background())
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write(body)
	})

	obs := &calls{}
	ctx := presence.WithObserver(context.Background(), obs)
	resp, err := c.Do(ctx, Request{
		Method: http.MethodPost,
		Path:   "/companies",
		Query:  "page=2",
		Header: http.Header{"Content-Type": {"application/json"}},
		Body:   []byte(`{"name":"ACME"}`),
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.JSONEq(t, `{"name":"ACME"}`, string(resp.Body))
	require.Equal(t, []string{"POST /companies"}, obs.list())

	got := <-seen
	require.Equal(t, "/api/v1/companies", got.URL.Path)
	require.Equal(t, "page=2", got.URL.RawQuery)
	require.Equal(t, "application/json", got.Header.Get("Content-Type"))
}

func TestClientRetriesIdempotentCalls(t *testing.T) {
	var hits atomic.Int32
	c, m := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`ok`))
	})

	resp, err := c.Do(context.Background(), Request{Method: http.MethodGet, Path: "/users"})
	require.NoError(t, err)
	require.Equal(t, "ok", string(resp.Body))
	require.Equal(t, int32(3), hits.Load())
	require.Equal(t, 2.0, testutil.ToFloat64(m.RetriesTotal))
}

func TestClientDoesNotRetryMutations(t *testing.T) {
	var hits atomic.Int32
	c, _ := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`maintenance`))
	})

	resp, err := c.Do(context.Background(), Request{Method: http.MethodPost, Path: "/paperwork"})
	var sErr *StatusError
	require.ErrorAs(t, err, &sErr)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	require.Equal(t, "maintenance", string(resp.Body))
	require.Equal(t, int32(1), hits.Load())
}

func TestClientClientErrorsPassThrough(t *testing.T) {
	c, _ := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for i := 0; i < 5; i++ {
		resp, err := c.Do(context.Background(), Request{Method: http.MethodGet, Path: "/missing"})
		require.NoError(t, err)
		require.Equal(t, http.StatusNotFound, resp.StatusCode)
	}
	require.Equal(t, gobreaker.StateClosed, c.rw.State(), "4xx does not trip the breaker")
}

func TestClientBreakerOpens(t *testing.T) {
	var hits atomic.Int32
	c, m := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})

	for i := 0; i < 2; i++ {
		_, err := c.Do(context.Background(), Request{Method: http.MethodPost, Path: "/companies"})
		require.Error(t, err)
	}
	require.Equal(t, gobreaker.StateOpen, c.rw.State())
	require.Equal(t, 2.0, testutil.ToFloat64(m.CircuitBreakerState))

	_, err := c.Do(context.Background(), Request{Method: http.MethodPost, Path: "/companies"})
	require.True(t, errors.Is(err, gobreaker.ErrOpenState))
	require.Equal(t, int32(2), hits.Load(), "open breaker does not reach the backend")
}

func TestNewRejectsBadBaseURL(t *testing.T) {
	_, err := New(infra.RemoteConfig{BaseURL: "not a url"}, nil, zap.NewNop())
	require.Error(t, err)
}
