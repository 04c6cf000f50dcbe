// Package repository persists consolidated diagnoses and clinician feedback
// to PostgreSQL.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/medagent-orchestrator/internal/domain"
)

// DiagnosisRepository handles consolidated diagnosis persistence.
type DiagnosisRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewDiagnosisRepository creates a new diagnosis repository
func NewDiagnosisRepository(db *pgxpool.Pool, logger *logrus.Logger) *DiagnosisRepository {
	return &DiagnosisRepository{
		db:  db,
		log: logger,
	}
}

// Save inserts a consolidated diagnosis into the archive.
func (r *DiagnosisRepository) Save(ctx context.Context, request *domain.DiagnosisRequest, diagnosis *domain.ConsolidatedDiagnosis) error {
	requestID := request.RequestID
	differentials, err := json.Marshal(diagnosis.DifferentialDiagnoses)
	if err != nil {
		return fmt.Errorf("marshaling differential diagnoses: %w", err)
	}
	actions, err := json.Marshal(diagnosis.ImmediateActions)
	if err != nil {
		return fmt.Errorf("marshaling immediate actions: %w", err)
	}
	referrals, err := json.Marshal(diagnosis.SpecialistReferrals)
	if err != nil {
		return fmt.Errorf("marshaling specialist referrals: %w", err)
	}
	consensus, err := json.Marshal(diagnosis.AgentConsensus)
	if err != nil {
		return fmt.Errorf("marshaling agent consensus: %w", err)
	}
	summary, err := json.Marshal(diagnosis.ProcessingSummary)
	if err != nil {
		return fmt.Errorf("marshaling processing summary: %w", err)
	}

	query := `
		INSERT INTO diagnoses (
			id, request_id, primary_diagnosis, differential_diagnoses,
			overall_confidence, emergency_score, triage_category,
			immediate_actions, specialist_referrals, agent_consensus,
			processing_summary, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12
		)`

	_, err = r.db.Exec(ctx, query,
		diagnosis.DiagnosisID,
		requestID,
		diagnosis.PrimaryDiagnosis,
		differentials,
		diagnosis.OverallConfidence,
		diagnosis.EmergencyScore,
		diagnosis.TriageCategory.String(),
		actions,
		referrals,
		consensus,
		summary,
		diagnosis.Timestamp,
	)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"diagnosis_id": diagnosis.DiagnosisID,
			"request_id":   requestID,
			"error":        err,
		}).Error("Failed to save diagnosis")
		return fmt.Errorf("saving diagnosis: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"diagnosis_id": diagnosis.DiagnosisID,
		"request_id":   requestID,
		"triage":       diagnosis.TriageCategory.String(),
	}).Info("Diagnosis archived")

	return nil
}

// GetByID retrieves a consolidated diagnosis by its ID.
func (r *DiagnosisRepository) GetByID(ctx context.Context, diagnosisID string) (*domain.ConsolidatedDiagnosis, error) {
	query := `
		SELECT id, primary_diagnosis, differential_diagnoses, overall_confidence,
			   emergency_score, triage_category, immediate_actions,
			   specialist_referrals, agent_consensus, processing_summary, created_at
		FROM diagnoses
		WHERE id = $1`

	var (
		diagnosis     domain.ConsolidatedDiagnosis
		triage        string
		differentials []byte
		actions       []byte
		referrals     []byte
		consensus     []byte
		summary       []byte
	)

	err := r.db.QueryRow(ctx, query, diagnosisID).Scan(
		&diagnosis.DiagnosisID,
		&diagnosis.PrimaryDiagnosis,
		&differentials,
		&diagnosis.OverallConfidence,
		&diagnosis.EmergencyScore,
		&triage,
		&actions,
		&referrals,
		&consensus,
		&summary,
		&diagnosis.Timestamp,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("diagnosis not found: %w", domain.ErrNotFound)
		}
		r.log.WithFields(logrus.Fields{
			"diagnosis_id": diagnosisID,
			"error":        err,
		}).Error("Failed to get diagnosis by ID")
		return nil, fmt.Errorf("getting diagnosis by ID: %w", err)
	}

	diagnosis.TriageCategory = domain.TriageCategory(triage)
	if err := json.Unmarshal(differentials, &diagnosis.DifferentialDiagnoses); err != nil {
		return nil, fmt.Errorf("unmarshaling differential diagnoses: %w", err)
	}
	if err := json.Unmarshal(actions, &diagnosis.ImmediateActions); err != nil {
		return nil, fmt.Errorf("unmarshaling immediate actions: %w", err)
	}
	if err := json.Unmarshal(referrals, &diagnosis.SpecialistReferrals); err != nil {
		return nil, fmt.Errorf("unmarshaling specialist referrals: %w", err)
	}
	if err := json.Unmarshal(consensus, &diagnosis.AgentConsensus); err != nil {
		return nil, fmt.Errorf("unmarshaling agent consensus: %w", err)
	}
	if err := json.Unmarshal(summary, &diagnosis.ProcessingSummary); err != nil {
		return nil, fmt.Errorf("unmarshaling processing summary: %w", err)
	}

	return &diagnosis, nil
}

// ListRecent returns the most recent diagnoses, newest first.
func (r *DiagnosisRepository) ListRecent(ctx context.Context, limit, offset int) ([]*domain.ConsolidatedDiagnosis, error) {
	query := `
		SELECT id, primary_diagnosis, overall_confidence, emergency_score,
			   triage_category, created_at
		FROM diagnoses
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`

	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		r.log.WithError(err).Error("Failed to list recent diagnoses")
		return nil, fmt.Errorf("listing recent diagnoses: %w", err)
	}
	defer rows.Close()

	var diagnoses []*domain.ConsolidatedDiagnosis
	for rows.Next() {
		var (
			diagnosis domain.ConsolidatedDiagnosis
			triage    string
		)
		err := rows.Scan(
			&diagnosis.DiagnosisID,
			&diagnosis.PrimaryDiagnosis,
			&diagnosis.OverallConfidence,
			&diagnosis.EmergencyScore,
			&triage,
			&diagnosis.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning diagnosis row: %w", err)
		}
		diagnosis.TriageCategory = domain.TriageCategory(triage)
		diagnoses = append(diagnoses, &diagnosis)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating diagnosis rows: %w", err)
	}

	return diagnoses, nil
}

// DiagnosisFeedback is a clinician's verdict on an archived diagnosis, used
// to update agent reliability records.
type DiagnosisFeedback struct {
	ID          uuid.UUID `json:"id"`
	DiagnosisID string    `json:"diagnosis_id"`
	Correct     bool      `json:"correct"`
	Comment     string    `json:"comment,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// SaveFeedback records clinician feedback against an archived diagnosis.
func (r *DiagnosisRepository) SaveFeedback(ctx context.Context, feedback *DiagnosisFeedback) error {
	if feedback.ID == uuid.Nil {
		feedback.ID = uuid.New()
	}
	if feedback.CreatedAt.IsZero() {
		feedback.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO diagnosis_feedback (id, diagnosis_id, correct, comment, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := r.db.Exec(ctx, query,
		feedback.ID,
		feedback.DiagnosisID,
		feedback.Correct,
		feedback.Comment,
		feedback.CreatedAt,
	)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"diagnosis_id": feedback.DiagnosisID,
			"error":        err,
		}).Error("Failed to save diagnosis feedback")
		return fmt.Errorf("saving diagnosis feedback: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"diagnosis_id": feedback.DiagnosisID,
		"correct":      feedback.Correct,
	}).Info("Diagnosis feedback recorded")

	return nil
}
