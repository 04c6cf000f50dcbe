package reliability

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/medagent-orchestrator/internal/domain"
)

// PostgresStore persists reliability snapshots in PostgreSQL for deployments
// where reliability state is shared across instances.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL reliability persister. It creates
// the schema if it doesn't exist; the reliability database may be separate
// from the diagnosis archive, so the archive migrations never cover it.
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := createPostgresSchema(db); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func createPostgresSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS agent_reliability (
		specialization TEXT PRIMARY KEY,
		historical_accuracy DOUBLE PRECISION NOT NULL,
		case_volume BIGINT NOT NULL DEFAULT 0,
		emergency_accuracy DOUBLE PRECISION NOT NULL,
		false_positive_rate DOUBLE PRECISION NOT NULL,
		false_negative_rate DOUBLE PRECISION NOT NULL,
		avg_confidence_calibration DOUBLE PRECISION NOT NULL,
		domain_expertise_score DOUBLE PRECISION NOT NULL,
		last_updated TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)
	`
	_, err := db.Exec(schema)
	return err
}

// NewPostgresStoreFromURL creates a new PostgreSQL reliability persister from
// a connection URL.
func NewPostgresStoreFromURL(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	store, err := NewPostgresStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// SaveAgent stores or updates one specialization's reliability record.
func (s *PostgresStore) SaveAgent(ctx context.Context, record domain.AgentReliability) error {
	query := `
		INSERT INTO agent_reliability (
			specialization, historical_accuracy, case_volume, emergency_accuracy,
			false_positive_rate, false_negative_rate, avg_confidence_calibration,
			domain_expertise_score, last_updated
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (specialization) DO UPDATE SET
			historical_accuracy = EXCLUDED.historical_accuracy,
			case_volume = EXCLUDED.case_volume,
			emergency_accuracy = EXCLUDED.emergency_accuracy,
			false_positive_rate = EXCLUDED.false_positive_rate,
			false_negative_rate = EXCLUDED.false_negative_rate,
			avg_confidence_calibration = EXCLUDED.avg_confidence_calibration,
			domain_expertise_score = EXCLUDED.domain_expertise_score,
			last_updated = EXCLUDED.last_updated
	`

	_, err := s.db.ExecContext(ctx, query,
		string(record.AgentSpecialization),
		record.HistoricalAccuracy,
		record.CaseVolume,
		record.EmergencyAccuracy,
		record.FalsePositiveRate,
		record.FalseNegativeRate,
		record.AvgConfidenceCalibration,
		record.DomainExpertiseScore,
		record.LastUpdated,
	)
	if err != nil {
		return fmt.Errorf("failed to save reliability record: %w", err)
	}
	return nil
}

// Load retrieves all persisted reliability records.
func (s *PostgresStore) Load(ctx context.Context) (map[domain.AgentSpecialization]domain.AgentReliability, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT specialization, historical_accuracy, case_volume, emergency_accuracy,
			false_positive_rate, false_negative_rate, avg_confidence_calibration,
			domain_expertise_score, last_updated
		FROM agent_reliability
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()

	result := make(map[domain.AgentSpecialization]domain.AgentReliability)
	for rows.Next() {
		var record domain.AgentReliability
		var spec string
		err := rows.Scan(
			&spec, &record.HistoricalAccuracy, &record.CaseVolume,
			&record.EmergencyAccuracy, &record.FalsePositiveRate,
			&record.FalseNegativeRate, &record.AvgConfidenceCalibration,
			&record.DomainExpertiseScore, &record.LastUpdated,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		record.AgentSpecialization = domain.AgentSpecialization(spec)
		result[record.AgentSpecialization] = record
	}
	return result, rows.Err()
}

// Close closes the underlying database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
