package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/xela07ax/spaceai-console/internal/infra"
	"github.com/xela07ax/spaceai-console/internal/presence"
	"go.uber.org/zap"
)

const maxBodySize = 10 << 20

// Response: ответ, полностью прочитанный в память (нужно для ретраев и прокси).
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Request: вызов удаленного API. Path задается относительно базового URL.
type Request struct {
	Method string
	Path   string
	Query  string
	Header http.Header
	Body   []byte
}

// Client: клиент удаленного API, чей транспорт наблюдает presence.Transport.
// Трекер сессии передается через контекст (presence.WithObserver).
type Client struct {
	base    *url.URL
	http    *http.Client
	rw      *ReliabilityWrapper
	metrics *Metrics
	logger  *zap.Logger
}

func New(cfg infra.RemoteConfig, metrics *Metrics, logger *zap.Logger) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("remote: invalid base_url %q", cfg.BaseURL)
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}

	c := &Client{
		base:    base,
		http:    &http.Client{},
		rw:      NewReliabilityWrapper(cfg, metrics),
		metrics: metrics,
		logger:  logger.Named("remote"),
	}
	// Базовый путь API срезается: трекер классифицирует пути самого API.
	if err := presence.Attach(c.http, nil, strings.TrimSuffix(base.Path, "/")); err != nil {
		return nil, err
	}
	return c, nil
}

// HTTPClient: обернутый клиент (для интеграций, которым нужен *http.Client).
func (c *Client) HTTPClient() *http.Client {
	return c.http
}

func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	target := c.resolve(req.Path, req.Query)

	resp, err := c.rw.Call(ctx, req.Method, func(ctx context.Context) (*Response, error) {
		return c.once(ctx, req, target)
	})

	status := "error"
	if resp != nil {
		status = strconv.Itoa(resp.StatusCode)
	}
	c.metrics.RequestDuration.WithLabelValues(req.Method, status).Observe(time.Since(start).Seconds())

	if err != nil {
		c.logger.Warn("remote call failed",
			zap.String("method", req.Method),
			zap.String("path", req.Path),
			zap.Error(err))
	}
	return resp, err
}

func (c *Client) once(ctx context.Context, req Request, target string) (*Response, error) {
	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, fmt.Errorf("remote: build request: %w", err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("remote: %s %s: %w", req.Method, req.Path, err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("remote: read body: %w", err)
	}

	resp := &Response{StatusCode: httpResp.StatusCode, Header: httpResp.Header.Clone(), Body: data}
	if httpResp.StatusCode >= http.StatusInternalServerError || httpResp.StatusCode == http.StatusTooManyRequests {
		return resp, &StatusError{Response: resp, RetryAfter: retryAfter(httpResp.Header)}
	}
	return resp, nil
}

func (c *Client) resolve(path, query string) string {
	u := *c.base
	u.Path = strings.TrimSuffix(c.base.Path, "/") + "/" + strings.TrimLeft(path, "/")
	u.RawQuery = query
	return u.String()
}

func retryAfter(h http.Header) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}
