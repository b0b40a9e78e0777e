package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/xela07ax/getmoney-core/internal/api/handler"
	"github.com/xela07ax/getmoney-core/internal/domain"
	"github.com/xela07ax/getmoney-core/internal/infra"
	"github.com/xela07ax/getmoney-core/internal/infra/auth"
	"go.uber.org/zap"
)

type APIServer struct {
	router *chi.Mux
	logger *zap.Logger
	cfg    *infra.Config

	// Проверка токенов (RS256), реализуется через auth.BaseValidator
	authValidator auth.TokenValidator

	authHandler    *handler.AuthHandler    // /auth/token
	requestHandler *handler.RequestHandler // /v1/requests

	metricsGatherer prometheus.Gatherer // /metrics
}

// NewAPIServer собирает роутер сервиса со всеми зависимостями
func NewAPIServer(
	cfg *infra.Config,
	logger *zap.Logger,
	validator auth.TokenValidator,
	authH *handler.AuthHandler,
	requestH *handler.RequestHandler,
	gatherer prometheus.Gatherer,
) *APIServer {
	s := &APIServer{
		router:          chi.NewRouter(),
		logger:          logger.Named("api"),
		cfg:             cfg,
		authValidator:   validator,
		authHandler:     authH,
		requestHandler:  requestH,
		metricsGatherer: gatherer,
	}

	s.routes()
	return s
}

func (s *APIServer) routes() {
	r := s.router

	// --- 1. Глобальные инфраструктурные Middleware (для всех) ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(TracingMiddleware)

	// --- 2. ПУБЛИЧНЫЕ РОУТЫ ---
	r.Group(func(r chi.Router) {
		r.Post("/auth/token", s.authHandler.Login)

		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})

		if s.metricsGatherer != nil {
			r.Method(http.MethodGet, "/metrics",
				promhttp.HandlerFor(s.metricsGatherer, promhttp.HandlerOpts{}))
		}
	})

	// --- 3. ЗАЩИЩЕННЫЙ ПЕРИМЕТР (требует RS256 токен) ---
	r.Group(func(r chi.Router) {
		r.Use(auth.NewMiddleware(s.authValidator, s.logger))

		r.Route("/v1/requests", func(r chi.Router) {
			// Доступно обеим ролям
			r.Get("/", s.requestHandler.ListActive)
			r.Get("/report", s.requestHandler.MonthReport)

			// Действия запросившего
			r.Group(func(r chi.Router) {
				r.Use(auth.RequireRole(domain.RoleRequester))
				r.Post("/", s.requestHandler.Create)
			})

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.requestHandler.Get)
				r.Patch("/refs", s.requestHandler.UpdateMessageRefs)

				// Решения одобряющего
				r.Group(func(r chi.Router) {
					r.Use(auth.RequireRole(domain.RoleApprover))
					r.Post("/approve", s.requestHandler.Approve)
					r.Post("/reject", s.requestHandler.Reject)
					r.Post("/sent", s.requestHandler.MarkSent)
				})

				// Действия запросившего над своей заявкой
				r.Group(func(r chi.Router) {
					r.Use(auth.RequireRole(domain.RoleRequester))
					r.Post("/confirm", s.requestHandler.ConfirmReceipt)
					r.Post("/dispute", s.requestHandler.DisputeReceipt)
					r.Post("/cancel", s.requestHandler.Cancel)
					r.Post("/remind", s.requestHandler.Remind)
				})
			})
		})
	})
}

// ServeHTTP позволяет использовать APIServer как стандартный http.Handler
func (s *APIServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
