package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/xela07ax/spaceai-console/internal/console/handler"
	"github.com/xela07ax/spaceai-console/internal/infra/auth"
	"go.uber.org/zap"
)

// Handlers: обработчики доменов консоли. Proxy может отсутствовать (remote.base_url не задан).
type Handlers struct {
	Auth          *handler.AuthHandler
	Presence      *handler.PresenceHandler
	Justification *handler.JustificationHandler
	Verification  *handler.VerificationHandler
	Proxy         http.Handler
}

type ConsoleServer struct {
	router *chi.Mux
	logger *zap.Logger

	// Проверка RS256 токенов и живости сессии
	validator auth.TokenValidator
	sessions  auth.SessionChecker
	gatherer  prometheus.Gatherer

	h Handlers
}

// NewConsoleServer инициализирует сервер консоли со всеми зависимостями
func NewConsoleServer(
	logger *zap.Logger,
	validator auth.TokenValidator,
	sessions auth.SessionChecker,
	gatherer prometheus.Gatherer,
	h Handlers,
) *ConsoleServer {
	s := &ConsoleServer{
		router:    chi.NewRouter(),
		logger:    logger.Named("console-api"),
		validator: validator,
		sessions:  sessions,
		gatherer:  gatherer,
		h:         h,
	}

	s.routes()
	return s
}

func (s *ConsoleServer) routes() {
	r := s.router

	// --- 1. Глобальные инфраструктурные Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	// --- 2. ПУБЛИЧНЫЕ РОУТЫ ---
	r.Group(func(r chi.Router) {
		r.Post("/auth/token", s.h.Auth.Login)

		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})

		if s.gatherer != nil {
			r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
		}
	})

	// --- 3. ЗАЩИЩЕННЫЙ ПЕРИМЕТР (RS256 токен + живая сессия) ---
	r.Group(func(r chi.Router) {
		r.Use(auth.NewMiddleware(s.validator, s.sessions, s.logger))

		r.Post("/auth/logout", s.h.Auth.Logout)

		r.Route("/v1/presence", func(r chi.Router) {
			r.Post("/signals", s.h.Presence.Signal)
			r.Get("/status", s.h.Presence.Status)
			r.With(auth.RequireScope("support")).Post("/force", s.h.Presence.Force)

			// Окно подтверждения простоя
			r.Route("/prompt", func(r chi.Router) {
				r.Post("/dismiss", s.h.Presence.Dismiss)
				r.Post("/continue", s.h.Presence.Continue)
				r.Post("/justify", s.h.Presence.Justify)
				r.Post("/logout", s.h.Presence.Logout)
			})

			r.Get("/justifications", s.h.Justification.List)
		})

		r.Get("/v1/system/verification", s.h.Verification.Get)
		r.With(auth.RequireScope("admin")).Post("/v1/system/verification", s.h.Verification.Set)

		// Удаленный API: каждый вызов засчитывается трекеру сессии
		if s.h.Proxy != nil {
			r.Handle("/api/*", s.h.Proxy)
		}
	})
}

// requestLogger: access log через zap.
func (s *ConsoleServer) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

// ServeHTTP позволяет использовать ConsoleServer как стандартный http.Handler
func (s *ConsoleServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
