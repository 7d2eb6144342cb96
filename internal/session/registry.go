package session

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/spaceai-console/internal/domain"
	"github.com/xela07ax/spaceai-console/internal/infra"
	"github.com/xela07ax/spaceai-console/internal/presence"
	"go.uber.org/zap"
)

// Revoker: logout() для окна подтверждения.
type Revoker interface {
	Revoke(ctx context.Context, sessionID string) error
}

// VerificationFlag: источник Environment.Verifying.
type VerificationFlag interface {
	Verifying() bool
}

type RegistryDeps struct {
	Sink         presence.JustificationSink
	Revoker      Revoker
	Verification VerificationFlag
	Metrics      *presence.Metrics
	Clock        clockwork.Clock
}

// Entry: трекер одной сессии и то, что о ней знает браузер.
type Entry struct {
	Identity domain.Identity
	Tracker  *presence.Tracker

	route   atomic.Value // string
	present atomic.Bool
}

// SetRoute: текущий маршрут SPA, сообщенный клиентом. Переход на исключенный маршрут
// сразу останавливает тикер трекера.
func (e *Entry) SetRoute(route string) {
	e.route.Store(route)
	if e.Tracker != nil {
		e.Tracker.Refresh()
	}
}

func (e *Entry) Route() string {
	r, _ := e.route.Load().(string)
	return r
}

// Registry держит по одному трекеру на сессию.
type Registry struct {
	ctx    context.Context
	cfg    presence.Config
	deps   RegistryDeps
	logger *zap.Logger

	mu      sync.Mutex
	entries map[string]*Entry
}

// NewRegistry: ctx ограничивает жизнь всех тикеров.
func NewRegistry(ctx context.Context, cfg presence.Config, deps RegistryDeps, logger *zap.Logger) *Registry {
	if deps.Metrics == nil {
		deps.Metrics = presence.NewMetrics(nil)
	}
	return &Registry{
		ctx:     ctx,
		cfg:     cfg,
		deps:    deps,
		logger:  logger.Named("session"),
		entries: make(map[string]*Entry),
	}
}

// Acquire возвращает трекер сессии, создавая и запуская его при первом обращении.
func (r *Registry) Acquire(id domain.Identity) *Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[id.SessionID]; ok {
		return e
	}

	e := &Entry{Identity: id}
	e.present.Store(true)
	e.SetRoute("")
	e.Tracker = presence.New(r.cfg, r.trackerDeps(e), r.trackerOptions()...)
	e.Tracker.Start(r.ctx)

	r.entries[id.SessionID] = e
	r.logger.Info("session tracking attached",
		zap.String("session_id", id.SessionID),
		zap.String("user", id.Username))
	return e
}

func (r *Registry) Lookup(sessionID string) (*Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[sessionID]
	return e, ok
}

// Drop останавливает трекер сессии (logout, отзыв на другом инстансе). Повторный вызов безопасен.
func (r *Registry) Drop(sessionID string) {
	r.mu.Lock()
	e, ok := r.entries[sessionID]
	delete(r.entries, sessionID)
	r.mu.Unlock()

	if !ok {
		return
	}
	e.present.Store(false)
	e.Tracker.Stop()
	r.logger.Info("session tracking detached", zap.String("session_id", sessionID))
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Close останавливает все трекеры (graceful shutdown).
func (r *Registry) Close() {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*Entry)
	r.mu.Unlock()

	for _, e := range entries {
		e.Tracker.Stop()
	}
}

// ListenRevocations гасит локальные трекеры сессий, отозванных на любом инстансе.
func (r *Registry) ListenRevocations(ctx context.Context, rdb *redis.Client) {
	ListenResilient(ctx, rdb, r.logger, infra.RedisChanSessionRevoked, nil, func(sessionID string, revoked bool) {
		if revoked {
			r.Drop(sessionID)
		}
	})
}

func (r *Registry) trackerDeps(e *Entry) presence.Deps {
	sessionID := e.Identity.SessionID
	deps := presence.Deps{
		UserIdentity: e.Identity.Username,
		SessionID:    sessionID,
		Sink:         r.deps.Sink,
		Env: func() presence.Environment {
			env := presence.Environment{UserPresent: e.present.Load(), Route: e.Route()}
			if r.deps.Verification != nil {
				env.Verifying = r.deps.Verification.Verifying()
			}
			return env
		},
		OnFire: func(ev presence.InactivityEvent) {
			r.logger.Info("inactivity prompt opened",
				zap.String("session_id", sessionID),
				zap.String("user", e.Identity.Username),
				zap.Int("minutes_inactive", ev.MinutesInactive()))
		},
		Notify: func(err error) {
			r.logger.Warn("presence side effect failed", zap.String("session_id", sessionID), zap.Error(err))
		},
	}
	if r.deps.Revoker != nil {
		deps.Logout = func(ctx context.Context) error {
			return r.deps.Revoker.Revoke(ctx, sessionID)
		}
	}
	return deps
}

func (r *Registry) trackerOptions() []presence.Option {
	opts := []presence.Option{
		presence.WithLogger(r.logger),
		presence.WithMetrics(r.deps.Metrics),
	}
	if r.deps.Clock != nil {
		opts = append(opts, presence.WithClock(r.deps.Clock))
	}
	return opts
}
