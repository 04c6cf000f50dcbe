package domain

import "context"

// AgentBackend is the outbound capability used to run one specialized agent.
// The core treats the backend as opaque: given a prompt it returns the raw
// model text, which a per-specialization parser turns into an AgentDiagnosis.
//
// There is one production implementation (HTTP inference client) and one stub
// implementation for tests, selected via dependency injection rather than
// import-time fallback shimming.
type AgentBackend interface {
	Invoke(ctx context.Context, spec AgentSpecialization, prompt string) (string, error)
}

// ReliabilityReader provides read access to per-agent reliability records
// during scoring and aggregation. Reads tolerate eventual consistency;
// slightly stale reliability is acceptable, lost writes are not.
type ReliabilityReader interface {
	Get(spec AgentSpecialization) (AgentReliability, bool)
}

// ReliabilityStore is the injected, explicitly-owned reliability state.
// Update applies outcome feedback under a per-store lock so concurrent
// feedback never loses writes.
type ReliabilityStore interface {
	ReliabilityReader
	Snapshot() map[AgentSpecialization]AgentReliability
	Update(ctx context.Context, spec AgentSpecialization, outcome bool, predictedConfidence float64, wasEmergency bool) error
	CalibrationError(spec AgentSpecialization) float64
}

// AuditLogger brackets the diagnosis pipeline with fire-and-forget audit
// calls. Implementations must never propagate failures into the pipeline.
type AuditLogger interface {
	LogRequest(ctx context.Context, request *DiagnosisRequest)
	LogResponse(ctx context.Context, request *DiagnosisRequest, diagnosis *ConsolidatedDiagnosis, err error)
}

// DiagnosisArchive persists consolidated diagnoses for later retrieval.
type DiagnosisArchive interface {
	Save(ctx context.Context, request *DiagnosisRequest, diagnosis *ConsolidatedDiagnosis) error
	GetByID(ctx context.Context, diagnosisID string) (*ConsolidatedDiagnosis, error)
	ListRecent(ctx context.Context, limit, offset int) ([]*ConsolidatedDiagnosis, error)
}
