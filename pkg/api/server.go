// pkg/api/server.go

// Package api exposes manual triggers, inspection and health over HTTP
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/David-Botos/flat-ingress/pkg/model"
	"github.com/David-Botos/flat-ingress/pkg/pipeline"
	"github.com/David-Botos/flat-ingress/pkg/scheduler"
	"github.com/David-Botos/flat-ingress/pkg/store"
)

// FlowService is the part of the orchestrator the handlers drive
type FlowService interface {
	Run(ctx context.Context, trigger pipeline.Trigger) (*pipeline.Result, error)
	Status(ctx context.Context) (*model.ControlRecord, error)
	Logs(ctx context.Context, runID string) ([]model.RunLog, error)
	Reset(ctx context.Context) (model.ControlStatus, error)
	Overview(ctx context.Context) (*pipeline.Overview, error)
}

var _ FlowService = (*pipeline.Orchestrator)(nil)

// HealthCheck is a named backend reported by /api/health
type HealthCheck struct {
	Name   string
	Pinger store.Pinger
}

const healthTimeout = 5 * time.Second

// Server is the HTTP API
type Server struct {
	flow     FlowService
	checks   []HealthCheck
	schedule func() []scheduler.EntryInfo
	version  string
	router   *gin.Engine
	logger   *zap.Logger
}

// Option configures a Server
type Option func(*Server)

// WithSchedule lists scheduled jobs on the service info endpoint
func WithSchedule(entries func() []scheduler.EntryInfo) Option {
	return func(s *Server) { s.schedule = entries }
}

// WithVersion sets the version reported on the service info endpoint
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// NewServer creates the API server and its routes
func NewServer(flow FlowService, checks []HealthCheck, logger *zap.Logger, opts ...Option) *Server {
	router := gin.New()

	s := &Server{
		flow:    flow,
		checks:  checks,
		version: "dev",
		router:  router,
		logger:  logger.Named("api"),
	}
	for _, opt := range opts {
		opt(s)
	}

	router.Use(gin.Recovery(), s.requestLogger())

	api := router.Group("/api")
	{
		api.GET("/", s.handleInfo)
		api.GET("/health", s.handleHealth)

		flow := api.Group("/flow")
		flow.POST("/run", s.handleRun)
		flow.POST("/reset", s.handleReset)
		flow.GET("/status", s.handleStatus)
		flow.GET("/logs/:runId", s.handleLogs)
		flow.GET("/stats", s.handleStats)
	}

	return s
}

// Handler returns the router for use with http.Server
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("Request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)))
	}
}
