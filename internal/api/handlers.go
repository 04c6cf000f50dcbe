package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/medagent-orchestrator/internal/domain"
	"github.com/medagent-orchestrator/internal/repository"
)

// feedbackBody is the clinician feedback payload.
type feedbackBody struct {
	DiagnosisID string `json:"diagnosis_id" binding:"required"`
	Correct     *bool  `json:"correct" binding:"required"`
	Comment     string `json:"comment"`
}

// handleHealth handles health check requests
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"version":   "1.0.0",
	})
}

// handleDiagnose runs the full diagnosis pipeline for one request.
func (s *Server) handleDiagnose(c *gin.Context) {
	var request domain.DiagnosisRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		s.respondError(c, http.StatusBadRequest, domain.ErrCodeInvalidInput, "malformed request body", err.Error(), "")
		return
	}

	if request.RequestID == "" {
		request.RequestID = uuid.NewString()
	}
	if err := request.Validate(); err != nil {
		s.respondError(c, http.StatusBadRequest, domain.ErrCodeValidation, "invalid diagnosis request", err.Error(), request.RequestID)
		return
	}

	diagnosis, err := s.service.ProcessRequest(c.Request.Context(), &request)
	if err != nil {
		s.respondPipelineError(c, &request, err)
		return
	}

	c.JSON(http.StatusOK, diagnosis)
}

// handleGetDiagnosis retrieves an archived diagnosis by ID.
func (s *Server) handleGetDiagnosis(c *gin.Context) {
	diagnosisID := c.Param("id")

	diagnosis, err := s.service.GetDiagnosis(c.Request.Context(), diagnosisID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.respondError(c, http.StatusNotFound, domain.ErrCodeDatabaseError, "diagnosis not found", "", diagnosisID)
			return
		}
		s.respondError(c, http.StatusInternalServerError, domain.ErrCodeInternalServer, "failed to retrieve diagnosis", err.Error(), diagnosisID)
		return
	}

	c.JSON(http.StatusOK, diagnosis)
}

// handleListDiagnoses returns recently archived diagnoses, newest first.
func (s *Server) handleListDiagnoses(c *gin.Context) {
	limit, err := queryInt(c, "limit", 20)
	if err != nil {
		s.respondError(c, http.StatusBadRequest, domain.ErrCodeInvalidInput, "invalid limit parameter", err.Error(), "")
		return
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		s.respondError(c, http.StatusBadRequest, domain.ErrCodeInvalidInput, "invalid offset parameter", err.Error(), "")
		return
	}

	diagnoses, err := s.service.ListDiagnoses(c.Request.Context(), limit, offset)
	if err != nil {
		s.respondError(c, http.StatusInternalServerError, domain.ErrCodeInternalServer, "failed to list diagnoses", err.Error(), "")
		return
	}
	if diagnoses == nil {
		diagnoses = []*domain.ConsolidatedDiagnosis{}
	}

	c.JSON(http.StatusOK, gin.H{
		"diagnoses": diagnoses,
		"count":     len(diagnoses),
	})
}

func queryInt(c *gin.Context, name string, fallback int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", name, err)
	}
	return value, nil
}

// handleFeedback records a clinician verdict on an archived diagnosis and
// feeds it back into per-agent reliability tracking.
func (s *Server) handleFeedback(c *gin.Context) {
	var body feedbackBody
	if err := c.ShouldBindJSON(&body); err != nil {
		s.respondError(c, http.StatusBadRequest, domain.ErrCodeInvalidInput, "malformed feedback body", err.Error(), "")
		return
	}

	diagnosis, err := s.service.GetDiagnosis(c.Request.Context(), body.DiagnosisID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.respondError(c, http.StatusNotFound, domain.ErrCodeDatabaseError, "diagnosis not found", "", body.DiagnosisID)
			return
		}
		s.respondError(c, http.StatusInternalServerError, domain.ErrCodeInternalServer, "failed to retrieve diagnosis", err.Error(), body.DiagnosisID)
		return
	}

	wasEmergency := diagnosis.TriageCategory == domain.TRIAGE_RED || diagnosis.EmergencyScore >= 0.8
	for spec, confidence := range diagnosis.AgentConsensus {
		if err := s.service.RecordOutcome(c.Request.Context(), spec, *body.Correct, confidence, wasEmergency); err != nil {
			s.log.WithFields(logrus.Fields{
				"diagnosis_id":   body.DiagnosisID,
				"specialization": spec.String(),
				"error":          err,
			}).Warn("Failed to record outcome for agent")
		}
	}

	if s.feedback != nil {
		feedback := &repository.DiagnosisFeedback{
			DiagnosisID: body.DiagnosisID,
			Correct:     *body.Correct,
			Comment:     body.Comment,
		}
		if err := s.feedback.SaveFeedback(c.Request.Context(), feedback); err != nil {
			s.respondError(c, http.StatusInternalServerError, domain.ErrCodeDatabaseError, "failed to persist feedback", err.Error(), body.DiagnosisID)
			return
		}
	}

	c.JSON(http.StatusAccepted, gin.H{
		"diagnosis_id":   body.DiagnosisID,
		"agents_updated": len(diagnosis.AgentConsensus),
	})
}

// handleAgentReliability returns the current reliability snapshot per agent.
func (s *Server) handleAgentReliability(c *gin.Context) {
	snapshot := s.reliability.Snapshot()

	agents := make(map[string]domain.AgentReliability, len(snapshot))
	for spec, record := range snapshot {
		agents[spec.String()] = record
	}

	c.JSON(http.StatusOK, gin.H{
		"agents":    agents,
		"timestamp": time.Now().UTC(),
	})
}

// respondPipelineError maps pipeline failures to HTTP statuses.
func (s *Server) respondPipelineError(c *gin.Context, request *domain.DiagnosisRequest, err error) {
	switch {
	case errors.Is(err, domain.ErrBatchTimeout):
		s.respondError(c, http.StatusGatewayTimeout, domain.ErrCodeBatchTimeout, "diagnosis processing timed out", "", request.RequestID)
	case errors.Is(err, domain.ErrAllAgentsFailed):
		s.respondError(c, http.StatusBadGateway, domain.ErrCodeAgentFailure, "all diagnostic agents failed", "", request.RequestID)
	case errors.Is(err, domain.ErrNoDiagnoses):
		s.respondError(c, http.StatusBadRequest, domain.ErrCodeInvalidInput, "no diagnoses could be produced", "", request.RequestID)
	default:
		s.respondError(c, http.StatusInternalServerError, domain.ErrCodeInternalServer, "diagnosis processing failed", err.Error(), request.RequestID)
	}
}

func (s *Server) respondError(c *gin.Context, status int, code, message, details, requestID string) {
	c.JSON(status, domain.NewOrchestratorError(code, message, details, requestID))
}
