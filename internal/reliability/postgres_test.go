package reliability

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medagent-orchestrator/internal/domain"
)

// newMockPostgresStore wires a sqlmock-backed persister and absorbs the
// schema bootstrap that NewPostgresStore runs on open.
func newMockPostgresStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS agent_reliability").
		WillReturnResult(sqlmock.NewResult(0, 0))

	store, err := NewPostgresStore(db)
	require.NoError(t, err)
	return store, mock
}

func TestNewPostgresStore_NilConnection(t *testing.T) {
	_, err := NewPostgresStore(nil)
	assert.Error(t, err)
}

func TestNewPostgresStore_CreatesSchema(t *testing.T) {
	_, mock := newMockPostgresStore(t)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewPostgresStore_SchemaFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS agent_reliability").
		WillReturnError(assert.AnError)

	_, err = NewPostgresStore(db)
	assert.ErrorContains(t, err, "failed to create schema")
}

func TestPostgresStore_SaveAgent(t *testing.T) {
	store, mock := newMockPostgresStore(t)

	record := domain.AgentReliability{
		AgentSpecialization:      domain.CARDIOLOGY,
		HistoricalAccuracy:       0.87,
		CaseVolume:               42,
		EmergencyAccuracy:        0.91,
		FalsePositiveRate:        0.08,
		FalseNegativeRate:        0.05,
		AvgConfidenceCalibration: 0.82,
		DomainExpertiseScore:     0.9,
		LastUpdated:              time.Now().UTC(),
	}

	mock.ExpectExec("INSERT INTO agent_reliability").
		WithArgs(
			"cardiology", record.HistoricalAccuracy, record.CaseVolume,
			record.EmergencyAccuracy, record.FalsePositiveRate, record.FalseNegativeRate,
			record.AvgConfidenceCalibration, record.DomainExpertiseScore, record.LastUpdated,
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.SaveAgent(context.Background(), record))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveAgent_QueryError(t *testing.T) {
	store, mock := newMockPostgresStore(t)

	mock.ExpectExec("INSERT INTO agent_reliability").
		WillReturnError(assert.AnError)

	err := store.SaveAgent(context.Background(), domain.AgentReliability{
		AgentSpecialization: domain.NEUROLOGY,
	})
	assert.ErrorContains(t, err, "failed to save reliability record")
}

func TestPostgresStore_Load(t *testing.T) {
	store, mock := newMockPostgresStore(t)

	updated := time.Now().UTC().Truncate(time.Second)
	rows := sqlmock.NewRows([]string{
		"specialization", "historical_accuracy", "case_volume", "emergency_accuracy",
		"false_positive_rate", "false_negative_rate", "avg_confidence_calibration",
		"domain_expertise_score", "last_updated",
	}).
		AddRow("cardiology", 0.87, int64(42), 0.91, 0.08, 0.05, 0.82, 0.9, updated).
		AddRow("neurology", 0.84, int64(17), 0.8, 0.1, 0.07, 0.79, 0.85, updated)

	mock.ExpectQuery("SELECT specialization, historical_accuracy").
		WillReturnRows(rows)

	loaded, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, loaded, 2)

	cardiology := loaded[domain.CARDIOLOGY]
	assert.Equal(t, domain.CARDIOLOGY, cardiology.AgentSpecialization)
	assert.Equal(t, 0.87, cardiology.HistoricalAccuracy)
	assert.Equal(t, int64(42), cardiology.CaseVolume)
	assert.Equal(t, updated, cardiology.LastUpdated)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Load_Empty(t *testing.T) {
	store, mock := newMockPostgresStore(t)

	mock.ExpectQuery("SELECT specialization").
		WillReturnRows(sqlmock.NewRows([]string{
			"specialization", "historical_accuracy", "case_volume", "emergency_accuracy",
			"false_positive_rate", "false_negative_rate", "avg_confidence_calibration",
			"domain_expertise_score", "last_updated",
		}))

	loaded, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, loaded)
}
