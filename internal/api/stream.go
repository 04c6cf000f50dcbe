package api

import (
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/medagent-orchestrator/internal/domain"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Browser clients connect from clinical dashboards on other origins.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// streamFrame is one message on the diagnosis progress stream.
type streamFrame struct {
	Type      string                        `json:"type"` // agent_result, complete, error
	Agent     string                        `json:"agent,omitempty"`
	Partial   *domain.AgentDiagnosis        `json:"partial,omitempty"`
	Diagnosis *domain.ConsolidatedDiagnosis `json:"diagnosis,omitempty"`
	Error     *domain.OrchestratorError     `json:"error,omitempty"`
}

// handleDiagnoseStream runs the pipeline over a WebSocket, pushing one frame
// per completed agent before the consolidated result.
func (s *Server) handleDiagnoseStream(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		s.log.WithError(err).Warn("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	var request domain.DiagnosisRequest
	if err := conn.ReadJSON(&request); err != nil {
		s.writeStreamError(conn, &sync.Mutex{}, domain.ErrCodeInvalidInput, "malformed request", err.Error(), "")
		return
	}

	if request.RequestID == "" {
		request.RequestID = uuid.NewString()
	}
	var writeMu sync.Mutex
	if err := request.Validate(); err != nil {
		s.writeStreamError(conn, &writeMu, domain.ErrCodeValidation, "invalid diagnosis request", err.Error(), request.RequestID)
		return
	}

	progress := func(diagnosis domain.AgentDiagnosis) {
		writeMu.Lock()
		defer writeMu.Unlock()
		frame := streamFrame{
			Type:    "agent_result",
			Agent:   diagnosis.AgentSpecialization.String(),
			Partial: &diagnosis,
		}
		if err := conn.WriteJSON(frame); err != nil {
			s.log.WithError(err).Warn("Failed to write progress frame")
		}
	}

	diagnosis, err := s.service.ProcessRequestStreaming(c.Request.Context(), &request, progress)
	if err != nil {
		code := domain.ErrCodeInternalServer
		switch {
		case errors.Is(err, domain.ErrBatchTimeout):
			code = domain.ErrCodeBatchTimeout
		case errors.Is(err, domain.ErrAllAgentsFailed):
			code = domain.ErrCodeAgentFailure
		}
		s.writeStreamError(conn, &writeMu, code, "diagnosis processing failed", err.Error(), request.RequestID)
		return
	}

	writeMu.Lock()
	defer writeMu.Unlock()
	if err := conn.WriteJSON(streamFrame{Type: "complete", Diagnosis: diagnosis}); err != nil {
		s.log.WithError(err).Warn("Failed to write completion frame")
	}
}

func (s *Server) writeStreamError(conn *websocket.Conn, mu *sync.Mutex, code, message, details, requestID string) {
	mu.Lock()
	defer mu.Unlock()
	frame := streamFrame{
		Type:  "error",
		Error: domain.NewOrchestratorError(code, message, details, requestID),
	}
	if err := conn.WriteJSON(frame); err != nil {
		s.log.WithError(err).Warn("Failed to write error frame")
	}
}
