// Package http exposes the approval engine over a gin JSON API.
package http

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/store-approval/internal/application/monitor"
	"github.com/garyjia/store-approval/internal/application/service"
	"github.com/garyjia/store-approval/internal/application/statistics"
	"github.com/garyjia/store-approval/internal/application/workflow"
)

// Logger interface for logging operations
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// ReportWriter renders a statistics report as a downloadable file
type ReportWriter interface {
	Write(w io.Writer, r *statistics.Report) error
}

// Metrics instruments requests and serves the scrape endpoint
type Metrics interface {
	Middleware() gin.HandlerFunc
	Handler() http.Handler
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	Mode            string // gin mode: debug, release or test
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	MetricsPath     string
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:            "0.0.0.0",
		Port:            8080,
		Mode:            gin.ReleaseMode,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		MetricsPath:     "/metrics",
	}
}

// Services are the application services behind the API. Metrics and Health may be nil.
type Services struct {
	Engine     workflow.WorkflowEngine
	Templates  service.TemplateService
	Monitor    monitor.Monitor
	Statistics statistics.Service
	Exporter   ReportWriter
	Metrics    Metrics
	Health     func(ctx context.Context) error
}

// Server is the HTTP server adapter
type Server struct {
	config     ServerConfig
	httpServer *http.Server
	router     *gin.Engine
	services   Services
	logger     Logger
}

// NewServer creates a new HTTP server with the given services
func NewServer(config ServerConfig, services Services, logger Logger) *Server {
	if config.Mode != "" {
		gin.SetMode(config.Mode)
	}
	if config.MetricsPath == "" {
		config.MetricsPath = "/metrics"
	}

	s := &Server{
		config:   config,
		router:   gin.New(),
		services: services,
		logger:   logger,
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(loggingMiddleware(s.logger))
	if s.services.Metrics != nil {
		s.router.Use(s.services.Metrics.Middleware())
	}
}

func (s *Server) setupRoutes() {
	h := NewHandlers(s.services, s.logger)

	s.router.GET("/health", h.HealthCheck)
	if s.services.Metrics != nil {
		s.router.GET(s.config.MetricsPath, gin.WrapH(s.services.Metrics.Handler()))
	}

	api := s.router.Group("/api/v1", actorMiddleware())
	{
		api.POST("/instances", h.CreateInstance)
		api.GET("/instances", h.ListInstances)
		api.GET("/instances/:id", h.GetInstance)
		api.POST("/instances/:id/process", h.ProcessAction)
		api.POST("/instances/:id/cancel", h.CancelInstance)
		api.GET("/instances/:id/records", h.ListRecords)
		api.GET("/instances/:id/sla", h.GetSLA)
		api.GET("/instances/:id/replay", h.ReplayInstance)
		api.POST("/instances/:id/reprocess-timeout", h.ReprocessTimeout)
		api.POST("/instances/:id/remediate", h.RemediateHold)

		api.POST("/templates", h.CreateTemplate)
		api.GET("/templates", h.ListTemplates)
		api.POST("/templates/validate", h.ValidateTemplate)
		api.GET("/templates/:id", h.GetTemplate)
		api.PUT("/templates/:id", h.UpdateTemplate)
		api.DELETE("/templates/:id", h.DeleteTemplate)
		api.POST("/templates/:id/activate", h.ActivateTemplate)
		api.POST("/templates/:id/deactivate", h.DeactivateTemplate)
		api.POST("/templates/:id/clone", h.CloneTemplate)
		api.POST("/templates/:id/preview", h.PreviewTemplate)

		api.GET("/statistics", h.GetStatistics)
		api.GET("/statistics/export", h.ExportStatistics)
	}
}

// Start serves until ctx is cancelled or the listener fails
func (s *Server) Start(ctx context.Context) error {
	addr := s.Address()
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("Starting HTTP server", "address", addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("HTTP server shutdown requested")
		return s.Stop()
	case err := <-errCh:
		s.logger.Error("HTTP server error", "error", err)
		return err
	}
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	timeout := s.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
		return err
	}
	s.logger.Info("HTTP server stopped")
	return nil
}

// Router returns the underlying gin router (for testing)
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Address returns the server address
func (s *Server) Address() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}
