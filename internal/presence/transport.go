package presence

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// CallObserver получает уведомление о каждом исходящем вызове.
type CallObserver interface {
	ObserveCall(method, path string)
}

type observerKey struct{}
type untrackedKey struct{}

// WithObserver привязывает наблюдателя (трекер сессии) к контексту запроса.
func WithObserver(ctx context.Context, obs CallObserver) context.Context {
	return context.WithValue(ctx, observerKey{}, obs)
}

// ObserverFromContext достает наблюдателя, если он есть.
func ObserverFromContext(ctx context.Context) (CallObserver, bool) {
	obs, ok := ctx.Value(observerKey{}).(CallObserver)
	return obs, ok && obs != nil
}

// WithoutActivity помечает служебный вызов (опрос статуса, запись объяснения),
// чтобы он не считался активностью и не замыкал петлю.
func WithoutActivity(ctx context.Context) context.Context {
	return context.WithValue(ctx, untrackedKey{}, true)
}

func untracked(ctx context.Context) bool {
	v, _ := ctx.Value(untrackedKey{}).(bool)
	return v
}

// Transport наблюдает исходящие вызовы и ничего в них не меняет.
// Сам никаких запросов не делает.
type Transport struct {
	Base http.RoundTripper
	// Observer используется, если в контексте запроса наблюдателя нет.
	Observer CallObserver
	// PathPrefix срезается с пути перед классификацией (базовый путь API).
	PathPrefix string
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	if !untracked(ctx) {
		obs, ok := ObserverFromContext(ctx)
		if !ok {
			obs = t.Observer
		}
		if obs != nil {
			path := req.URL.Path
			if t.PathPrefix != "" {
				path = "/" + strings.TrimLeft(strings.TrimPrefix(path, t.PathPrefix), "/")
			}
			// Паника наблюдателя не должна ломать запрос
			_ = safeCall(func() error {
				obs.ObserveCall(req.Method, path)
				return nil
			})
		}
	}
	return t.base().RoundTrip(req)
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

var errNilClient = errors.New("http client is nil")

// Attach оборачивает транспорт клиента. Повторный вызов не создает второй обертки.
func Attach(client *http.Client, obs CallObserver, pathPrefix string) error {
	if client == nil {
		return &SignalAttachmentError{Source: SignalNetwork, Cause: errNilClient}
	}
	if tr, ok := client.Transport.(*Transport); ok {
		if obs != nil {
			tr.Observer = obs
		}
		return nil
	}
	client.Transport = &Transport{Base: client.Transport, Observer: obs, PathPrefix: pathPrefix}
	return nil
}
