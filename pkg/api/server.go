package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"
	"github.com/redis/go-redis/v9"

	"github.com/codeready-toolchain/aigateway/pkg/auth"
	"github.com/codeready-toolchain/aigateway/pkg/config"
	"github.com/codeready-toolchain/aigateway/pkg/confirm"
	"github.com/codeready-toolchain/aigateway/pkg/query"
	"github.com/codeready-toolchain/aigateway/pkg/ratelimit"
	"github.com/codeready-toolchain/aigateway/pkg/tools"
)

// Server is the HTTP surface of the gateway: middleware chain, route
// table, and the embedded http.Server.
type Server struct {
	cfg           *config.Config
	servers       *config.ToolServerRegistry
	verifier      *auth.Verifier
	keys          *auth.KeySet
	revocations   auth.RevocationStore
	orchestrator  *query.Orchestrator
	toolClient    *tools.Client
	confirmations confirm.Store
	generalLimit  *ratelimit.Limiter
	queryLimit    *ratelimit.Limiter
	rdb           *redis.Client
	logger        *slog.Logger

	echo *echo.Echo
	http *http.Server
}

// NewServer wires the middleware chain and route table. rdb may be nil
// when no Redis is configured; the health probe then skips it.
func NewServer(
	cfg *config.Config,
	verifier *auth.Verifier,
	keys *auth.KeySet,
	revocations auth.RevocationStore,
	orchestrator *query.Orchestrator,
	toolClient *tools.Client,
	confirmations confirm.Store,
	generalLimit *ratelimit.Limiter,
	queryLimit *ratelimit.Limiter,
	rdb *redis.Client,
	logger *slog.Logger,
) *Server {
	s := &Server{
		cfg:           cfg,
		servers:       cfg.Servers,
		verifier:      verifier,
		keys:          keys,
		revocations:   revocations,
		orchestrator:  orchestrator,
		toolClient:    toolClient,
		confirmations: confirmations,
		generalLimit:  generalLimit,
		queryLimit:    queryLimit,
		rdb:           rdb,
		logger:        logger.With("component", "api"),
	}
	s.echo = s.routes()
	s.http = &http.Server{Handler: s.echo, ReadHeaderTimeout: 10 * time.Second}
	return s
}

// routes assembles the echo instance. The general limiter runs before the
// auth gate and keys on client IP; the strict limiter runs after it and
// keys on the authenticated user id.
func (s *Server) routes() *echo.Echo {
	e := echo.New()
	e.Use(securityHeaders())
	e.Use(requestID())

	g := e.Group("/api")
	g.Use(rateLimit(s.generalLimit, s.logger))
	g.Use(s.authGate())

	strict := rateLimit(s.queryLimit, s.logger)
	g.POST("/query", s.queryStreamHandler, strict)
	g.GET("/query", s.queryStreamHandler, strict)
	g.POST("/ai/query", s.syncQueryHandler, strict)
	g.POST("/confirm/:confirmationId", s.confirmHandler)
	g.GET("/mcp/:serverName/:toolName", s.mcpProxyHandler)
	g.POST("/mcp/:serverName/:toolName", s.mcpProxyHandler)

	e.GET("/health", s.healthHandler)
	return e
}

// ServeHTTP serves one request; it makes the server usable with httptest.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Start begins serving on addr, blocking until shutdown or listen failure.
func (s *Server) Start(addr string) error {
	s.http.Addr = addr
	return s.http.ListenAndServe()
}

// Shutdown stops accepting connections and waits for in-flight handlers
// up to the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
