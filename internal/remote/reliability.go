package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/sony/gobreaker"
	"github.com/xela07ax/spaceai-console/internal/infra"
	"golang.org/x/time/rate"
)

// ErrRateLimited: лимитер не дождался слота до отмены контекста.
var ErrRateLimited = errors.New("remote api: rate limit exceeded")

// Attempt: один вызов удаленного API.
type Attempt func(ctx context.Context) (*Response, error)

// ReliabilityWrapper: rate limiter -> circuit breaker -> retries (только идемпотентные методы).
type ReliabilityWrapper struct {
	cb         *gobreaker.CircuitBreaker
	limiter    *rate.Limiter
	attempts   uint
	retryDelay time.Duration
	timeout    time.Duration
	metrics    *Metrics
}

func NewReliabilityWrapper(cfg infra.RemoteConfig, metrics *Metrics) *ReliabilityWrapper {
	failures := cfg.CBFailures
	if failures == 0 {
		failures = 5
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "remote-api",
		MaxRequests: cfg.CBMaxRequests,
		Interval:    cfg.CBInterval,
		Timeout:     cfg.CBTimeout, // Время, через которое CB попробует "закрыться"
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		// Отмена клиентом: не отказ бэкенда
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(_ string, _ gobreaker.State, to gobreaker.State) {
			metrics.CircuitBreakerState.Set(float64(to))
		},
	})

	limit := rate.Limit(cfg.RateLimit)
	if cfg.RateLimit <= 0 {
		limit = rate.Inf
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}

	attempts := cfg.Retries
	if attempts == 0 {
		attempts = 1
	}

	return &ReliabilityWrapper{
		cb:         cb,
		limiter:    rate.NewLimiter(limit, burst),
		attempts:   attempts,
		retryDelay: cfg.RetryDelay,
		timeout:    cfg.Timeout,
		metrics:    metrics,
	}
}

// Call выполняет попытку с защитой. Неидемпотентные методы не повторяются.
func (w *ReliabilityWrapper) Call(ctx context.Context, method string, attempt Attempt) (*Response, error) {
	// 1. Rate Limiter
	if err := w.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRateLimited, err)
	}

	attempts := uint(1)
	if idempotent(method) {
		attempts = w.attempts
	}

	// 2. Circuit Breaker
	res, err := w.cb.Execute(func() (interface{}, error) {
		var last *Response

		r := retry.New(
			retry.Context(ctx),
			retry.Attempts(attempts),
			retry.Delay(w.retryDelay),
			retry.LastErrorOnly(true),
			retry.RetryIf(func(err error) bool {
				return !errors.Is(err, context.Canceled)
			}),
			retry.OnRetry(func(uint, error) {
				w.metrics.RetriesTotal.Inc()
			}),
			retry.DelayType(func(n uint, err error, config retry.DelayContext) time.Duration {
				// Бэкенд сам сказал, когда приходить (Retry-After)
				var sErr *StatusError
				if errors.As(err, &sErr) && sErr.RetryAfter > 0 {
					return sErr.RetryAfter
				}
				return retry.BackOffDelay(n, err, config)
			}),
		)

		retryErr := r.Do(func() error {
			callCtx := ctx
			if w.timeout > 0 {
				var cancel context.CancelFunc
				callCtx, cancel = context.WithTimeout(ctx, w.timeout)
				defer cancel()
			}
			resp, callErr := attempt(callCtx)
			last = resp
			return callErr
		})

		return last, retryErr
	})

	resp, _ := res.(*Response)
	if err != nil {
		return resp, err
	}
	return resp, nil
}

// State: текущее состояние предохранителя.
func (w *ReliabilityWrapper) State() gobreaker.State {
	return w.cb.State()
}

func idempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodPut, http.MethodDelete:
		return true
	default:
		return false
	}
}
