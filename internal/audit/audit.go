// Package audit records diagnosis request/response pairs for clinical
// traceability. Entries always land in the structured log; when a Redis
// client is provided they are additionally appended to a stream so external
// compliance tooling can consume them.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/medagent-orchestrator/internal/domain"
)

const (
	streamKey     = "medagent:audit"
	streamMaxLen  = 10000
	sinkTimeout   = 2 * time.Second
	eventRequest  = "diagnosis_request"
	eventResponse = "diagnosis_response"
)

// Logger writes audit entries. The Redis sink is best effort: a sink failure
// is logged and never propagated into the diagnosis path.
type Logger struct {
	log   *logrus.Logger
	redis *redis.Client
}

// NewLogger creates an audit logger. redisClient may be nil.
func NewLogger(logger *logrus.Logger, redisClient *redis.Client) *Logger {
	return &Logger{
		log:   logger,
		redis: redisClient,
	}
}

// LogRequest records an incoming diagnosis request.
func (l *Logger) LogRequest(ctx context.Context, request *domain.DiagnosisRequest) {
	fields := logrus.Fields{
		"event":         eventRequest,
		"request_id":    request.RequestID,
		"urgency":       request.UrgencyLevel.String(),
		"symptom_count": len(request.Symptoms),
	}
	l.log.WithFields(fields).Info("Audit: diagnosis request received")
	l.appendToStream(ctx, eventRequest, request.RequestID, fields)
}

// LogResponse records the outcome of a diagnosis request. diagnosis may be
// nil when processing failed before consolidation.
func (l *Logger) LogResponse(ctx context.Context, request *domain.DiagnosisRequest, diagnosis *domain.ConsolidatedDiagnosis, err error) {
	fields := logrus.Fields{
		"event":      eventResponse,
		"request_id": request.RequestID,
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	if diagnosis != nil {
		fields["diagnosis_id"] = diagnosis.DiagnosisID
		fields["primary_diagnosis"] = diagnosis.PrimaryDiagnosis
		fields["overall_confidence"] = diagnosis.OverallConfidence
		fields["triage_category"] = diagnosis.TriageCategory.String()
		fields["emergency_score"] = diagnosis.EmergencyScore
	}

	if err != nil {
		l.log.WithFields(fields).Warn("Audit: diagnosis request failed")
	} else {
		l.log.WithFields(fields).Info("Audit: diagnosis response delivered")
	}
	l.appendToStream(ctx, eventResponse, request.RequestID, fields)
}

func (l *Logger) appendToStream(ctx context.Context, event, requestID string, fields logrus.Fields) {
	if l.redis == nil {
		return
	}

	payload, err := json.Marshal(fields)
	if err != nil {
		l.log.WithError(err).Warn("Audit: failed to encode stream entry")
		return
	}

	sinkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sinkTimeout)
	defer cancel()

	err = l.redis.XAdd(sinkCtx, &redis.XAddArgs{
		Stream: streamKey,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"event":      event,
			"request_id": requestID,
			"payload":    string(payload),
			"ts":         time.Now().UTC().Format(time.RFC3339Nano),
		},
	}).Err()
	if err != nil {
		l.log.WithError(err).Warn("Audit: failed to append to audit stream")
	}
}
