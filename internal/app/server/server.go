package server

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/archivus/docflow/internal/app/config"
	"github.com/archivus/docflow/internal/app/handlers"
	"github.com/archivus/docflow/internal/app/middleware"
	appservices "github.com/archivus/docflow/internal/app/services"
	"github.com/archivus/docflow/internal/observability/metrics"
	"github.com/archivus/docflow/pkg/logger"
)

type Server struct {
	config   *config.Config
	logger   *logger.Logger
	router   *gin.Engine
	server   *http.Server
	services *appservices.ServiceManager
}

// New creates a new server instance
func New(cfg *config.Config, log *logger.Logger, sm *appservices.ServiceManager) *Server {
	// Configure Gin mode based on environment
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(corsMiddleware(cfg))
	router.Use(loggingMiddleware(log))
	if cfg.Observability.MetricsEnabled {
		router.Use(metrics.GinMiddleware())
	}

	server := &Server{
		config:   cfg,
		logger:   log,
		router:   router,
		services: sm,
	}

	server.setupRoutes()

	return server
}

// Handler returns the instrumented HTTP handler.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.router, s.config.Observability.ServiceName)
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         net.JoinHostPort(s.config.Server.Host, s.config.Server.Port),
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// setupRoutes configures all application routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthCheck)
	if s.config.Observability.MetricsEnabled {
		s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	sm := s.services
	v1 := s.router.Group("/api/v1")
	v1.Use(middleware.AuthMiddleware(middleware.AuthConfig{
		Validator:    sm.TokenValidator,
		Tenants:      sm.Repositories.TenantRepo,
		Users:        sm.Repositories.UserRepo,
		TenantHeader: s.config.Server.TenantHeader,
		Logger:       s.logger,
	}))

	handlers.NewDocumentHandler(sm.Documents, s.logger).RegisterRoutes(v1)
	handlers.NewWorkflowHandler(sm.Signatures, sm.Voting, s.logger).RegisterRoutes(v1)
	handlers.NewSubstitutionHandler(sm.Delegation, s.logger).RegisterRoutes(v1)
	handlers.NewNotificationHandler(sm.Notifications, s.logger).RegisterRoutes(v1)
}

// healthCheck reports database and queue reachability.
func (s *Server) healthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status, code := "healthy", http.StatusOK
	var detail string
	if err := s.services.HealthCheck(ctx); err != nil {
		status, code = "unhealthy", http.StatusServiceUnavailable
		detail = err.Error()
		s.logger.Warn("Health check failed", "error", err)
	}

	body := gin.H{
		"status":      status,
		"timestamp":   time.Now().UTC(),
		"environment": s.config.Environment,
	}
	if detail != "" {
		body["error"] = detail
	}
	c.JSON(code, body)
}

// corsMiddleware configures CORS
func corsMiddleware(cfg *config.Config) gin.HandlerFunc {
	corsConfig := cors.Config{
		AllowOrigins:     cfg.Server.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", cfg.Server.TenantHeader},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	return cors.New(corsConfig)
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		if raw != "" {
			path = path + "?" + raw
		}

		log.Info("HTTP Request",
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"latency", latency.String(),
			"client_ip", c.ClientIP(),
		)
	}
}
