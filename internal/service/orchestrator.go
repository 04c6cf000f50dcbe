package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"github.com/medagent-orchestrator/internal/confidence"
	"github.com/medagent-orchestrator/internal/domain"
)

// defaultCacheSize bounds the recent-result cache.
const defaultCacheSize = 512

// Orchestrator runs the full diagnosis pipeline: agent selection, concurrent
// fan-out, statistical confidence aggregation, consolidation and safety
// validation, with audit bracketing around the whole flow.
type Orchestrator struct {
	selector     *Selector
	invoker      *Invoker
	aggregator   *confidence.Aggregator
	consolidator *Consolidator
	safety       *SafetyValidator
	reliability  domain.ReliabilityStore
	audit        domain.AuditLogger
	archive      domain.DiagnosisArchive
	cache        *lru.Cache[string, *domain.ConsolidatedDiagnosis]
	log          *logrus.Logger
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithAuditLogger installs the audit collaborator.
func WithAuditLogger(audit domain.AuditLogger) OrchestratorOption {
	return func(o *Orchestrator) { o.audit = audit }
}

// WithArchive installs the diagnosis archive for history retrieval.
func WithArchive(archive domain.DiagnosisArchive) OrchestratorOption {
	return func(o *Orchestrator) { o.archive = archive }
}

// WithCacheSize overrides the recent-result cache capacity.
func WithCacheSize(size int) OrchestratorOption {
	return func(o *Orchestrator) {
		if size > 0 {
			cache, err := lru.New[string, *domain.ConsolidatedDiagnosis](size)
			if err == nil {
				o.cache = cache
			}
		}
	}
}

// NewOrchestrator wires the pipeline components together.
func NewOrchestrator(
	selector *Selector,
	invoker *Invoker,
	aggregator *confidence.Aggregator,
	consolidator *Consolidator,
	safety *SafetyValidator,
	reliability domain.ReliabilityStore,
	logger *logrus.Logger,
	opts ...OrchestratorOption,
) *Orchestrator {
	cache, _ := lru.New[string, *domain.ConsolidatedDiagnosis](defaultCacheSize)
	o := &Orchestrator{
		selector:     selector,
		invoker:      invoker,
		aggregator:   aggregator,
		consolidator: consolidator,
		safety:       safety,
		reliability:  reliability,
		cache:        cache,
		log:          logger,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// ProcessRequest runs one diagnosis request through the whole pipeline.
func (o *Orchestrator) ProcessRequest(ctx context.Context, request *domain.DiagnosisRequest) (*domain.ConsolidatedDiagnosis, error) {
	return o.process(ctx, request, nil)
}

// ProcessRequestStreaming runs the pipeline and reports each agent diagnosis
// to the progress callback as it is produced.
func (o *Orchestrator) ProcessRequestStreaming(ctx context.Context, request *domain.DiagnosisRequest, progress ProgressFunc) (*domain.ConsolidatedDiagnosis, error) {
	return o.process(ctx, request, progress)
}

func (o *Orchestrator) process(ctx context.Context, request *domain.DiagnosisRequest, progress ProgressFunc) (result *domain.ConsolidatedDiagnosis, err error) {
	if validationErr := request.Validate(); validationErr != nil {
		return nil, validationErr
	}

	o.logAuditRequest(ctx, request)
	defer func() {
		o.logAuditResponse(ctx, request, result, err)
	}()

	// The result cache is advisory and never serves critical traffic:
	// emergencies always get a fresh evaluation.
	cacheKey := requestCacheKey(request)
	if !request.UrgencyLevel.IsCritical() && progress == nil {
		if cached, ok := o.cache.Get(cacheKey); ok {
			o.log.WithField("request_id", request.RequestID).Debug("Serving cached diagnosis")
			return cached, nil
		}
	}

	agents := o.selector.SelectAgents(request)

	diagnoses, err := o.invoker.InvokeAgents(ctx, request, agents, progress)
	if err != nil {
		return nil, err
	}

	clinical := clinicalContextFrom(request)
	metrics, uncertainty, err := o.aggregator.CalculateComprehensiveConfidence(diagnoses, request.UrgencyLevel, clinical)
	if err != nil {
		return nil, err
	}

	consolidated, err := o.consolidator.AggregateDiagnoses(diagnoses, request.UrgencyLevel)
	if err != nil {
		return nil, err
	}
	consolidated.OverallConfidence = metrics.OverallConfidence

	consolidated = o.safety.Validate(consolidated, request)
	o.enrichSummary(consolidated, request, agents, metrics, uncertainty)

	if !request.UrgencyLevel.IsCritical() {
		o.cache.Add(cacheKey, consolidated)
	}

	if o.archive != nil {
		if archiveErr := o.archive.Save(ctx, request, consolidated); archiveErr != nil {
			// Archival is best-effort; the diagnosis is still returned.
			o.log.WithError(archiveErr).WithField("diagnosis_id", consolidated.DiagnosisID).
				Warn("Failed to archive consolidated diagnosis")
		}
	}

	return consolidated, nil
}

// RecordOutcome feeds clinical outcome feedback into the reliability store
// and refreshes the selector's learned accuracy boost for the agent.
func (o *Orchestrator) RecordOutcome(ctx context.Context, spec domain.AgentSpecialization, outcome bool, predictedConfidence float64, wasEmergency bool) error {
	if err := o.reliability.Update(ctx, spec, outcome, predictedConfidence, wasEmergency); err != nil {
		return fmt.Errorf("recording outcome: %w", err)
	}

	if record, ok := o.reliability.Get(spec); ok {
		// Center the boost on the seeded accuracy band so only sustained
		// over/under-performance moves selection.
		boost := record.HistoricalAccuracy - 0.8
		if boost > 0.3 {
			boost = 0.3
		}
		if boost < -0.3 {
			boost = -0.3
		}
		o.selector.SetAccuracyBoost(spec, boost)
	}
	return nil
}

// GetDiagnosis retrieves an archived diagnosis by ID.
func (o *Orchestrator) GetDiagnosis(ctx context.Context, diagnosisID string) (*domain.ConsolidatedDiagnosis, error) {
	if o.archive == nil {
		return nil, fmt.Errorf("diagnosis archive is not configured")
	}
	return o.archive.GetByID(ctx, diagnosisID)
}

// ListDiagnoses retrieves archived diagnoses, newest first. The limit is
// clamped to [1, 100] with a default page of 20.
func (o *Orchestrator) ListDiagnoses(ctx context.Context, limit, offset int) ([]*domain.ConsolidatedDiagnosis, error) {
	if o.archive == nil {
		return nil, fmt.Errorf("diagnosis archive is not configured")
	}
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return o.archive.ListRecent(ctx, limit, offset)
}

func (o *Orchestrator) enrichSummary(
	diagnosis *domain.ConsolidatedDiagnosis,
	request *domain.DiagnosisRequest,
	agents []domain.AgentSpecialization,
	metrics *domain.ConfidenceMetrics,
	uncertainty *domain.UncertaintyAnalysis,
) {
	summary := diagnosis.ProcessingSummary
	summary["request_id"] = request.RequestID
	summary["selected_agents"] = specNames(agents)
	summary["confidence_interval"] = []float64{metrics.ConfidenceInterval.Lower, metrics.ConfidenceInterval.Upper}
	summary["bayesian_posterior"] = metrics.BayesianPosterior
	summary["bootstrap_confidence"] = metrics.BootstrapConfidence
	summary["consensus_strength"] = metrics.ConsensusStrength
	summary["statistical_significance"] = metrics.StatisticalSignificance
	summary["clinical_confidence"] = metrics.ClinicalConfidence
	summary["reliability_score"] = metrics.ReliabilityScore
	summary["uncertainty_score"] = metrics.UncertaintyScore
	if len(uncertainty.UncertaintySources) > 0 {
		summary["uncertainty_sources"] = uncertainty.UncertaintySources
	}
	if len(uncertainty.MitigationRecommendations) > 0 {
		summary["mitigation_recommendations"] = uncertainty.MitigationRecommendations
	}
}

// logAuditRequest brackets the pipeline start. Audit failures never abort
// diagnosis processing.
func (o *Orchestrator) logAuditRequest(ctx context.Context, request *domain.DiagnosisRequest) {
	if o.audit == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			o.log.WithField("panic", r).Warn("Audit request logging panicked")
		}
	}()
	o.audit.LogRequest(ctx, request)
}

func (o *Orchestrator) logAuditResponse(ctx context.Context, request *domain.DiagnosisRequest, diagnosis *domain.ConsolidatedDiagnosis, err error) {
	if o.audit == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			o.log.WithField("panic", r).Warn("Audit response logging panicked")
		}
	}()
	o.audit.LogResponse(ctx, request, diagnosis, err)
}

// clinicalContextFrom derives the aggregator's clinical context from the
// request's context map and patient data.
func clinicalContextFrom(request *domain.DiagnosisRequest) *domain.ClinicalContext {
	clinical := &domain.ClinicalContext{}
	if incomplete, ok := request.Context["incomplete_data"].(bool); ok {
		clinical.IncompleteData = incomplete
	}
	if age, ok := request.PatientAge(); ok {
		clinical.PatientAge = &age
	}
	return clinical
}

// requestCacheKey hashes the clinically relevant request fields so repeated
// identical consultations can reuse a recent result.
func requestCacheKey(request *domain.DiagnosisRequest) string {
	h := sha256.New()
	h.Write([]byte(strings.ToLower(strings.Join(request.Symptoms, "|"))))
	h.Write([]byte{0})
	h.Write([]byte(strings.ToLower(strings.Join(request.MedicalHistory, "|"))))
	h.Write([]byte{0})
	h.Write([]byte(request.UrgencyLevel.String()))
	return hex.EncodeToString(h.Sum(nil))
}
