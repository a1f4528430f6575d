package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ai-diagnostics-service/internal/domain"
	"github.com/ai-diagnostics-service/internal/middleware"
	"github.com/ai-diagnostics-service/internal/service"
)

// Server exposes the diagnostic pipeline over HTTP
type Server struct {
	configManager domain.ConfigManager
	orchestrator  *service.Orchestrator
	db            healthChecker
	router        *gin.Engine
	server        *http.Server
}

// healthChecker is the slice of the database the health endpoint needs
type healthChecker interface {
	Health(ctx context.Context) error
}

// NewServer creates a new HTTP server instance
func NewServer(configManager domain.ConfigManager, orchestrator *service.Orchestrator, db healthChecker) *Server {
	cfg := configManager.GetConfig()

	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.RequestID())

	server := &Server{
		configManager: configManager,
		orchestrator:  orchestrator,
		db:            db,
		router:        router,
	}

	server.setupRoutes()
	return server
}

// Start starts the HTTP server and blocks until ctx is cancelled, then
// shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	cfg := s.configManager.GetConfig().Server
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
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}

// Handler exposes the route tree
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/diagnostic-requests", s.handleSubmit)
		v1.GET("/diagnostic-requests/:id", s.handleGetRequest)
		v1.GET("/diagnostic-requests/:id/result", s.handleGetResult)
		v1.POST("/diagnostic-requests/:id/retry", s.handleRetry)
		v1.POST("/diagnostic-requests/:id/cancel", s.handleCancel)
	}
}

// submitRequest is the submission payload
type submitRequest struct {
	PatientID       string               `json:"patient_id" binding:"required"`
	PharmacistID    string               `json:"pharmacist_id" binding:"required"`
	WorkplaceID     string               `json:"workplace_id" binding:"required"`
	Priority        string               `json:"priority"`
	ConsentObtained bool                 `json:"consent_obtained"`
	Snapshot        domain.InputSnapshot `json:"snapshot" binding:"required"`
}

// handleHealth reports service liveness and its database dependency
func (s *Server) handleHealth(c *gin.Context) {
	status := "healthy"
	code := http.StatusOK
	if s.db != nil {
		if err := s.db.Health(c.Request.Context()); err != nil {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
	}
	c.JSON(code, gin.H{
		"status":    status,
		"timestamp": time.Now().UTC(),
	})
}

// handleSubmit accepts a new diagnostic request
func (s *Server) handleSubmit(c *gin.Context) {
	var body submitRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		s.writeError(c, http.StatusBadRequest, domain.ErrCodeInvalidInput, err.Error())
		return
	}

	var consentTimestamp *time.Time
	if body.ConsentObtained {
		now := time.Now().UTC()
		consentTimestamp = &now
	}

	req, err := s.orchestrator.Submit(c.Request.Context(), service.SubmitParams{
		PatientID:        body.PatientID,
		PharmacistID:     body.PharmacistID,
		WorkplaceID:      body.WorkplaceID,
		Snapshot:         body.Snapshot,
		Priority:         domain.Priority(body.Priority),
		ConsentObtained:  body.ConsentObtained,
		ConsentTimestamp: consentTimestamp,
	})
	if err != nil {
		s.writePipelineError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, req)
}

// handleGetRequest returns a request by id
func (s *Server) handleGetRequest(c *gin.Context) {
	req, err := s.orchestrator.GetRequest(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writePipelineError(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

// handleGetResult returns the result of a completed request
func (s *Server) handleGetResult(c *gin.Context) {
	result, err := s.orchestrator.GetResult(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writePipelineError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// handleRetry resumes a failed request
func (s *Server) handleRetry(c *gin.Context) {
	req, err := s.orchestrator.Retry(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writePipelineError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, req)
}

// handleCancel cancels a non-terminal request
func (s *Server) handleCancel(c *gin.Context) {
	req, err := s.orchestrator.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writePipelineError(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

// writePipelineError maps pipeline errors onto HTTP status codes.
// ActiveRequestExists is surfaced as a conflict so callers can poll the
// existing request instead of retrying blindly.
func (s *Server) writePipelineError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrConsentMissing):
		s.writeError(c, http.StatusUnprocessableEntity, domain.ErrCodeConsentMissing, err.Error())
	case errors.Is(err, domain.ErrActiveRequestExists):
		s.writeError(c, http.StatusConflict, domain.ErrCodeActiveRequestExists, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		s.writeError(c, http.StatusNotFound, domain.ErrCodeInvalidInput, err.Error())
	case errors.Is(err, domain.ErrPatientNotFound):
		s.writeError(c, http.StatusNotFound, domain.ErrCodePatientNotFound, err.Error())
	case errors.Is(err, domain.ErrRetryExhausted):
		s.writeError(c, http.StatusConflict, domain.ErrCodeRetryExhausted, err.Error())
	case errors.Is(err, domain.ErrRequestTerminal), errors.Is(err, domain.ErrInvalidTransition):
		s.writeError(c, http.StatusConflict, domain.ErrCodeInvalidTransition, err.Error())
	default:
		s.writeError(c, http.StatusInternalServerError, domain.ErrCodeInternalServer, err.Error())
	}
}

func (s *Server) writeError(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{
		"error": domain.NewPipelineError(code, message, c.GetString("request_id"), nil),
	})
}
