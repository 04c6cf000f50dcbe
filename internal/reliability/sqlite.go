package reliability

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/medagent-orchestrator/internal/domain"
)

// SQLiteStore persists reliability snapshots in a local SQLite database.
// Suitable for single-node deployments; shared deployments should use the
// Postgres persister instead.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore creates a new SQLite reliability persister. It creates the
// database file and schema if they don't exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	if err := createSQLiteSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{db: db, dbPath: dbPath}, nil
}

func createSQLiteSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS agent_reliability (
		specialization TEXT PRIMARY KEY,
		historical_accuracy REAL NOT NULL,
		case_volume INTEGER NOT NULL DEFAULT 0,
		emergency_accuracy REAL NOT NULL,
		false_positive_rate REAL NOT NULL,
		false_negative_rate REAL NOT NULL,
		avg_confidence_calibration REAL NOT NULL,
		domain_expertise_score REAL NOT NULL,
		last_updated DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := db.Exec(schema)
	return err
}

// SaveAgent stores or updates one specialization's reliability record.
func (s *SQLiteStore) SaveAgent(ctx context.Context, record domain.AgentReliability) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agent_reliability (
			specialization, historical_accuracy, case_volume, emergency_accuracy,
			false_positive_rate, false_negative_rate, avg_confidence_calibration,
			domain_expertise_score, last_updated
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(specialization) DO UPDATE SET
			historical_accuracy = excluded.historical_accuracy,
			case_volume = excluded.case_volume,
			emergency_accuracy = excluded.emergency_accuracy,
			false_positive_rate = excluded.false_positive_rate,
			false_negative_rate = excluded.false_negative_rate,
			avg_confidence_calibration = excluded.avg_confidence_calibration,
			domain_expertise_score = excluded.domain_expertise_score,
			last_updated = excluded.last_updated
	`,
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
func (s *SQLiteStore) Load(ctx context.Context) (map[domain.AgentSpecialization]domain.AgentReliability, error) {
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

// Close closes the store and releases resources.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
