// Package api is the HTTP surface of the routing engine: the three carrier
// webhook endpoints from spec.md §6, a health check, and the tenant-scoped
// operator read API from SPEC_FULL §12.4.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"

	"github.com/cloudonix/voicerouter/internal/models"
	"github.com/cloudonix/voicerouter/internal/webhook"
)

// TenantReader resolves tenants for webhook header validation and operator
// API tenant-scoping.
type TenantReader interface {
	GetByDomain(ctx context.Context, domain string) (*models.Tenant, error)
	GetByID(ctx context.Context, id string) (*models.Tenant, error)
}

// SessionReader serves the operator read API.
type SessionReader interface {
	LoadSession(ctx context.Context, tenantID, sessionToken string) (*models.CallSession, error)
	ListSessionsForTenant(ctx context.Context, tenantID string, limit int) ([]models.CallSession, error)
}

// Pinger is implemented by both the Postgres pool and the shared store, so
// the health handler can probe each uniformly.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the HTTP API server.
type Server struct {
	echo       *echo.Echo
	httpServer *http.Server

	tenants  TenantReader
	sessions SessionReader
	pipeline *webhook.Pipeline
	db       Pinger
	store    Pinger
}

// NewServer creates a new API server with Echo v5 and registers routes.
func NewServer() *Server {
	e := echo.New()

	s := &Server{echo: e}
	s.setupRoutes()
	return s
}

// SetTenantReader wires tenant resolution for webhook auth and operator scoping.
func (s *Server) SetTenantReader(r TenantReader) { s.tenants = r }

// SetSessionReader wires the operator read API's session source.
func (s *Server) SetSessionReader(r SessionReader) { s.sessions = r }

// SetPipeline wires the webhook processing pipeline.
func (s *Server) SetPipeline(p *webhook.Pipeline) { s.pipeline = p }

// SetDB wires the relational store for health checks.
func (s *Server) SetDB(db Pinger) { s.db = db }

// SetStore wires the shared coordination store for health checks.
func (s *Server) SetStore(store Pinger) { s.store = store }

// ValidateWiring checks that every dependency has been wired via its Set*
// method. Call this after all Set* calls and before Start/StartWithListener.
func (s *Server) ValidateWiring() error {
	var errs []error
	if s.tenants == nil {
		errs = append(errs, fmt.Errorf("tenants not set (call SetTenantReader)"))
	}
	if s.sessions == nil {
		errs = append(errs, fmt.Errorf("sessions not set (call SetSessionReader)"))
	}
	if s.pipeline == nil {
		errs = append(errs, fmt.Errorf("pipeline not set (call SetPipeline)"))
	}
	if s.db == nil {
		errs = append(errs, fmt.Errorf("db not set (call SetDB)"))
	}
	if s.store == nil {
		errs = append(errs, fmt.Errorf("store not set (call SetStore)"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("server wiring incomplete: %w", errors.Join(errs...))
	}
	return nil
}

// setupRoutes registers all API routes.
func (s *Server) setupRoutes() {
	s.echo.Use(middleware.BodyLimit(1024 * 1024))
	s.echo.Use(securityHeaders())

	s.echo.GET("/health", s.healthHandler)

	voice := s.echo.Group("/voice")
	voice.POST("/application/:domain", s.applicationRequestHandler)
	voice.POST("/session/update/:domain", s.sessionUpdateHandler)
	voice.POST("/session/cdr/:domain", s.cdrCallbackHandler)

	v1 := s.echo.Group("/api/v1")
	v1.GET("/tenants/:id/sessions", s.listSessionsHandler)
	v1.GET("/tenants/:id/sessions/:token", s.getSessionHandler)
}

// Start starts the HTTP server on the given address (blocking).
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.echo,
	}
	return s.httpServer.ListenAndServe()
}

// StartWithListener starts the HTTP server on a pre-created listener. Used by
// tests that serve on a random OS-assigned port.
func (s *Server) StartWithListener(ln net.Listener) error {
	s.httpServer = &http.Server{Handler: s.echo}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// healthHandler handles GET /health.
func (s *Server) healthHandler(c *echo.Context) error {
	reqCtx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	resp := &HealthResponse{Status: "healthy", Store: "ok", DB: "ok"}
	unhealthy := false

	if err := s.store.Ping(reqCtx); err != nil {
		resp.Store = "unreachable"
		unhealthy = true
	}
	if err := s.db.Ping(reqCtx); err != nil {
		resp.DB = "unreachable"
		unhealthy = true
	}

	if unhealthy {
		resp.Status = "unhealthy"
		return c.JSON(http.StatusServiceUnavailable, resp)
	}
	return c.JSON(http.StatusOK, resp)
}
