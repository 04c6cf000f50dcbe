package domain

import (
	"errors"
	"fmt"
	"time"
)

// Pipeline failure taxonomy. InputError and BatchTimeout propagate to the
// caller; AgentFailure is contained by the invoker; statistical computation
// failures degrade to conservative defaults inside the aggregator.
var (
	// ErrNoDiagnoses is returned when an empty diagnosis list reaches the
	// aggregator or consolidator. Caller error, never retried.
	ErrNoDiagnoses = errors.New("no agent diagnoses provided")

	// ErrAllAgentsFailed is returned when every selected agent fails and no
	// diagnosis, fallback included, could be produced.
	ErrAllAgentsFailed = errors.New("all diagnostic agents failed")

	// ErrBatchTimeout is returned when the joint fan-out across all agents
	// exceeds the global deadline. Fatal: no partial-result fallback exists.
	ErrBatchTimeout = errors.New("diagnosis processing timed out")

	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("record not found")
)

// Error codes for different failure scenarios
const (
	ErrCodeInvalidInput   = "INVALID_INPUT"
	ErrCodeAgentFailure   = "AGENT_FAILURE"
	ErrCodeBatchTimeout   = "BATCH_TIMEOUT"
	ErrCodeBackendError   = "BACKEND_ERROR"
	ErrCodeDatabaseError  = "DATABASE_ERROR"
	ErrCodeInternalServer = "INTERNAL_SERVER_ERROR"
	ErrCodeValidation     = "VALIDATION_ERROR"
)

// OrchestratorError represents a standardized error response carrying the
// request it belongs to, for audit-grade traceability.
type OrchestratorError struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`
}

// Error implements the error interface
func (e *OrchestratorError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewOrchestratorError creates a new OrchestratorError with timestamp
func NewOrchestratorError(code, message, details, requestID string) *OrchestratorError {
	return &OrchestratorError{
		Code:      code,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().UTC(),
		RequestID: requestID,
	}
}

// ValidationError represents input validation errors
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}
