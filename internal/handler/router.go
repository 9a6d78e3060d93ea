package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/xuegao65/agent-back/internal/middleware"
	"github.com/xuegao65/agent-back/pkg/logger"
)

// RouterConfig carries the handlers and edge settings of the API.
type RouterConfig struct {
	Chat    *ChatHandler
	Stream  *StreamHandler
	History *HistoryHandler
	RPC     *RPCHandler
	Health  *HealthHandler

	AuthSecret  string
	AuthIssuer  string
	CORSOrigins []string

	RateLimitRequests int
	RateLimitWindow   time.Duration

	Logger *logger.Logger
}

// NewRouter builds the API router.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(cfg.Logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.CORSOrigins))

	// Health endpoints (no auth required)
	r.Get("/health", cfg.Health.Health)
	r.Get("/ready", cfg.Health.Ready)
	r.Handle("/metrics", promhttp.Handler())

	authed := r.With(
		middleware.Auth(cfg.AuthSecret, cfg.AuthIssuer),
		middleware.RequireSubject("user_id"),
	)
	authed.With(middleware.UserRateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow)).
		Post("/chat/{user_id}", cfg.Chat.Start)
	authed.Get("/history/{user_id}", cfg.History.Get)

	// The browser's EventSource cannot send headers; the unguessable
	// conversation id scopes access.
	r.Get("/sse/{user_id}/{conversation_id}", cfg.Stream.Stream)

	rpc := r.With(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))
	rpc.Post("/rpc", cfg.RPC.Proxy)
	rpc.Get("/rpc", cfg.RPC.Proxy)

	return r
}
