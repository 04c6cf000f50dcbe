package reliability

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medagent-orchestrator/internal/domain"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func TestNewStore_SeedsAllSpecializations(t *testing.T) {
	store := NewStore(testLogger())

	snapshot := store.Snapshot()
	require.Len(t, snapshot, len(domain.SpecializationOrder))
	for _, spec := range domain.SpecializationOrder {
		record, ok := store.Get(spec)
		require.True(t, ok, "missing seed for %s", spec)
		assert.Greater(t, record.HistoricalAccuracy, 0.0)
		assert.LessOrEqual(t, record.HistoricalAccuracy, 1.0)
		assert.NoError(t, record.Validate())
	}
}

func TestUpdate_EMAAccuracy(t *testing.T) {
	store := NewStore(testLogger())
	ctx := context.Background()

	before, ok := store.Get(domain.CARDIOLOGY)
	require.True(t, ok)

	require.NoError(t, store.Update(ctx, domain.CARDIOLOGY, true, 0.9, false))
	after, _ := store.Get(domain.CARDIOLOGY)
	assert.InDelta(t, 0.9*before.HistoricalAccuracy+0.1*1.0, after.HistoricalAccuracy, 1e-9)

	require.NoError(t, store.Update(ctx, domain.CARDIOLOGY, false, 0.9, false))
	final, _ := store.Get(domain.CARDIOLOGY)
	assert.InDelta(t, 0.9*after.HistoricalAccuracy, final.HistoricalAccuracy, 1e-9)
}

func TestUpdate_EmergencyAccuracyOnlyForEmergencies(t *testing.T) {
	store := NewStore(testLogger())
	ctx := context.Background()

	before, _ := store.Get(domain.NEUROLOGY)

	require.NoError(t, store.Update(ctx, domain.NEUROLOGY, true, 0.8, false))
	after, _ := store.Get(domain.NEUROLOGY)
	assert.Equal(t, before.EmergencyAccuracy, after.EmergencyAccuracy,
		"non-emergency outcomes leave emergency accuracy untouched")

	require.NoError(t, store.Update(ctx, domain.NEUROLOGY, true, 0.8, true))
	final, _ := store.Get(domain.NEUROLOGY)
	assert.InDelta(t, 0.9*after.EmergencyAccuracy+0.1, final.EmergencyAccuracy, 1e-9)
}

func TestUpdate_CaseVolumeMonotonic(t *testing.T) {
	store := NewStore(testLogger())
	ctx := context.Background()

	start, _ := store.Get(domain.PULMONOLOGY)
	for i := 0; i < 5; i++ {
		outcome := i%2 == 0
		require.NoError(t, store.Update(ctx, domain.PULMONOLOGY, outcome, 0.7, false))
	}
	end, _ := store.Get(domain.PULMONOLOGY)
	assert.Equal(t, start.CaseVolume+5, end.CaseVolume)
	assert.False(t, end.LastUpdated.IsZero())
}

func TestUpdate_InvalidSpecialization(t *testing.T) {
	store := NewStore(testLogger())

	err := store.Update(context.Background(), domain.AgentSpecialization("dermatology"), true, 0.8, false)
	assert.ErrorIs(t, err, domain.ErrInvalidSpecialization)
}

func TestCalibrationError_RequiresMinimumSamples(t *testing.T) {
	store := NewStore(testLogger())
	ctx := context.Background()

	assert.Equal(t, 0.5, store.CalibrationError(domain.CARDIOLOGY), "no history yet")

	for i := 0; i < 9; i++ {
		require.NoError(t, store.Update(ctx, domain.CARDIOLOGY, true, 0.9, false))
	}
	assert.Equal(t, 0.5, store.CalibrationError(domain.CARDIOLOGY), "nine samples is still below the minimum")

	require.NoError(t, store.Update(ctx, domain.CARDIOLOGY, true, 0.9, false))
	assert.NotEqual(t, 0.5, store.CalibrationError(domain.CARDIOLOGY))
}

func TestCalibrationError_WellCalibratedAgent(t *testing.T) {
	store := NewStore(testLogger())
	ctx := context.Background()

	// Predictions at 0.8 that come true 80% of the time are near-perfectly
	// calibrated.
	for i := 0; i < 10; i++ {
		outcome := i < 8
		require.NoError(t, store.Update(ctx, domain.NEUROLOGY, outcome, 0.8, false))
	}
	assert.InDelta(t, 0.0, store.CalibrationError(domain.NEUROLOGY), 1e-9)
}

func TestCalibrationError_OverconfidentAgent(t *testing.T) {
	store := NewStore(testLogger())
	ctx := context.Background()

	// Predictions at 0.9 that come true half the time carry a 0.4 gap.
	for i := 0; i < 10; i++ {
		outcome := i%2 == 0
		require.NoError(t, store.Update(ctx, domain.PSYCHIATRY, outcome, 0.9, false))
	}
	assert.InDelta(t, 0.4, store.CalibrationError(domain.PSYCHIATRY), 1e-9)
}

func TestUpdate_CalibrationWindowIsBounded(t *testing.T) {
	store := NewStore(testLogger(), WithHistoryCapacity(10))
	ctx := context.Background()

	// Fill the window with overconfident samples, then overwrite it entirely
	// with calibrated ones. Only the recent window should count.
	for i := 0; i < 10; i++ {
		require.NoError(t, store.Update(ctx, domain.ORTHOPEDICS, false, 0.9, false))
	}
	assert.InDelta(t, 0.9, store.CalibrationError(domain.ORTHOPEDICS), 1e-9)

	for i := 0; i < 10; i++ {
		outcome := i < 8
		require.NoError(t, store.Update(ctx, domain.ORTHOPEDICS, outcome, 0.8, false))
	}
	assert.InDelta(t, 0.0, store.CalibrationError(domain.ORTHOPEDICS), 1e-9)
}

func TestSnapshot_ReturnsCopy(t *testing.T) {
	store := NewStore(testLogger())

	snapshot := store.Snapshot()
	modified := snapshot[domain.CARDIOLOGY]
	modified.HistoricalAccuracy = 0.0
	snapshot[domain.CARDIOLOGY] = modified

	record, _ := store.Get(domain.CARDIOLOGY)
	assert.NotEqual(t, 0.0, record.HistoricalAccuracy, "mutating the snapshot must not touch the store")
}

func TestLoadPersisted_OverridesSeeds(t *testing.T) {
	persisted := domain.AgentReliability{
		AgentSpecialization:      domain.CARDIOLOGY,
		HistoricalAccuracy:       0.91,
		EmergencyAccuracy:        0.88,
		AvgConfidenceCalibration: 0.84,
		DomainExpertiseScore:     0.9,
		CaseVolume:               1234,
	}
	persister := &fakePersister{records: map[domain.AgentSpecialization]domain.AgentReliability{
		domain.CARDIOLOGY: persisted,
	}}

	store := NewStore(testLogger(), WithPersistence(persister))
	require.NoError(t, store.LoadPersisted(context.Background()))

	record, ok := store.Get(domain.CARDIOLOGY)
	require.True(t, ok)
	assert.Equal(t, int64(1234), record.CaseVolume)
	assert.Equal(t, 0.91, record.HistoricalAccuracy)

	// Other specializations keep their seeds.
	_, ok = store.Get(domain.NEUROLOGY)
	assert.True(t, ok)
}

func TestUpdate_MirrorsToPersister(t *testing.T) {
	persister := &fakePersister{records: make(map[domain.AgentSpecialization]domain.AgentReliability)}
	store := NewStore(testLogger(), WithPersistence(persister))

	require.NoError(t, store.Update(context.Background(), domain.CARDIOLOGY, true, 0.9, false))

	saved, ok := persister.records[domain.CARDIOLOGY]
	require.True(t, ok)
	record, _ := store.Get(domain.CARDIOLOGY)
	assert.Equal(t, record.CaseVolume, saved.CaseVolume)
	assert.Equal(t, record.HistoricalAccuracy, saved.HistoricalAccuracy)
}

type fakePersister struct {
	records map[domain.AgentSpecialization]domain.AgentReliability
}

func (f *fakePersister) SaveAgent(ctx context.Context, record domain.AgentReliability) error {
	f.records[record.AgentSpecialization] = record
	return nil
}

func (f *fakePersister) Load(ctx context.Context) (map[domain.AgentSpecialization]domain.AgentReliability, error) {
	return f.records, nil
}

func (f *fakePersister) Close() error { return nil }
