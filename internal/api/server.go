// Package api exposes the diagnosis orchestrator over HTTP and WebSocket.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/medagent-orchestrator/internal/domain"
	"github.com/medagent-orchestrator/internal/middleware"
	"github.com/medagent-orchestrator/internal/repository"
	"github.com/medagent-orchestrator/internal/service"
)

// DiagnosisService is the orchestration surface the API layer depends on.
type DiagnosisService interface {
	ProcessRequest(ctx context.Context, request *domain.DiagnosisRequest) (*domain.ConsolidatedDiagnosis, error)
	ProcessRequestStreaming(ctx context.Context, request *domain.DiagnosisRequest, progress service.ProgressFunc) (*domain.ConsolidatedDiagnosis, error)
	GetDiagnosis(ctx context.Context, diagnosisID string) (*domain.ConsolidatedDiagnosis, error)
	ListDiagnoses(ctx context.Context, limit, offset int) ([]*domain.ConsolidatedDiagnosis, error)
	RecordOutcome(ctx context.Context, spec domain.AgentSpecialization, outcome bool, predictedConfidence float64, wasEmergency bool) error
}

// FeedbackRecorder persists clinician feedback. Optional; nil disables the
// feedback archive while reliability updates still apply.
type FeedbackRecorder interface {
	SaveFeedback(ctx context.Context, feedback *repository.DiagnosisFeedback) error
}

// Server represents the HTTP server
type Server struct {
	config      *domain.Config
	service     DiagnosisService
	reliability domain.ReliabilityStore
	feedback    FeedbackRecorder
	router      *gin.Engine
	server      *http.Server
	log         *logrus.Logger
}

// ServerOption configures optional server collaborators.
type ServerOption func(*Server)

// WithFeedbackRecorder attaches a persistent feedback store.
func WithFeedbackRecorder(recorder FeedbackRecorder) ServerOption {
	return func(s *Server) {
		s.feedback = recorder
	}
}

// NewServer creates a new HTTP server instance
func NewServer(
	config *domain.Config,
	diagnosisService DiagnosisService,
	reliability domain.ReliabilityStore,
	logger *logrus.Logger,
	opts ...ServerOption,
) *Server {
	if config.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.AuditLogger())
	router.Use(gin.Recovery())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CorrelationID())
	router.Use(corsMiddleware())

	server := &Server{
		config:      config,
		service:     diagnosisService,
		reliability: reliability,
		router:      router,
		log:         logger,
	}
	for _, opt := range opts {
		opt(server)
	}

	server.setupRoutes()

	return server
}

// Start starts the HTTP server and blocks until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	cfg := s.config.Server
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("HTTP server listening")
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.log.Info("Shutting down HTTP server")
	return s.server.Shutdown(shutdownCtx)
}

// Router exposes the underlying handler for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/diagnosis", s.handleDiagnose)
		v1.GET("/diagnosis", s.handleListDiagnoses)
		v1.GET("/diagnosis/:id", s.handleGetDiagnosis)
		v1.GET("/diagnosis/stream", s.handleDiagnoseStream)
		v1.POST("/feedback", s.handleFeedback)
		v1.GET("/agents", s.handleAgentReliability)
	}
}

// corsMiddleware adds CORS headers to responses
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, X-API-Key")
		c.Header("Access-Control-Expose-Headers", "Content-Length")
		c.Header("Access-Control-Allow-Credentials", "true")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
