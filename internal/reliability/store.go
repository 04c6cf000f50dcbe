package reliability

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/medagent-orchestrator/internal/domain"
)

const (
	// learningRate is the fixed EMA learning rate for accuracy updates.
	learningRate = 0.1

	// defaultHistoryCapacity bounds the per-agent calibration sample window.
	defaultHistoryCapacity = 1000

	// minCalibrationSamples is the minimum sample count before the ECE is
	// trusted; below it the calibration error reports maximally uncertain.
	minCalibrationSamples = 10

	// calibrationBins is the number of equal-width confidence bins over [0,1).
	calibrationBins = 10
)

// calibrationSample is one (predicted confidence, actual outcome) pair.
type calibrationSample struct {
	confidence float64
	outcome    bool
}

// calibrationWindow is a fixed-capacity ring buffer of calibration samples.
// Oldest samples are overwritten once the window is full, which bounds memory
// in long-running processes.
type calibrationWindow struct {
	samples []calibrationSample
	next    int
	full    bool
}

func newCalibrationWindow(capacity int) *calibrationWindow {
	return &calibrationWindow{samples: make([]calibrationSample, capacity)}
}

func (w *calibrationWindow) add(s calibrationSample) {
	w.samples[w.next] = s
	w.next = (w.next + 1) % len(w.samples)
	if w.next == 0 {
		w.full = true
	}
}

func (w *calibrationWindow) len() int {
	if w.full {
		return len(w.samples)
	}
	return w.next
}

func (w *calibrationWindow) all() []calibrationSample {
	if w.full {
		out := make([]calibrationSample, 0, len(w.samples))
		out = append(out, w.samples[w.next:]...)
		out = append(out, w.samples[:w.next]...)
		return out
	}
	return w.samples[:w.next]
}

// SnapshotPersister persists reliability records across process restarts.
// Persistence is best-effort: failures are logged, never propagated into the
// feedback path.
type SnapshotPersister interface {
	SaveAgent(ctx context.Context, record domain.AgentReliability) error
	Load(ctx context.Context) (map[domain.AgentSpecialization]domain.AgentReliability, error)
	Close() error
}

// Store is the in-memory reliability store. It implements
// domain.ReliabilityStore and optionally mirrors updates to a persister.
type Store struct {
	mu        sync.RWMutex
	records   map[domain.AgentSpecialization]domain.AgentReliability
	history   map[domain.AgentSpecialization]*calibrationWindow
	capacity  int
	persister SnapshotPersister
	log       *logrus.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithPersistence mirrors every update to the given persister.
func WithPersistence(p SnapshotPersister) Option {
	return func(s *Store) { s.persister = p }
}

// WithHistoryCapacity overrides the calibration window capacity.
func WithHistoryCapacity(capacity int) Option {
	return func(s *Store) {
		if capacity > 0 {
			s.capacity = capacity
		}
	}
}

// NewStore creates a reliability store seeded with the evidence-based
// defaults for every specialization.
func NewStore(logger *logrus.Logger, opts ...Option) *Store {
	s := &Store{
		records:  SeedDefaults(),
		history:  make(map[domain.AgentSpecialization]*calibrationWindow),
		capacity: defaultHistoryCapacity,
		log:      logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LoadPersisted replaces seeded records with any persisted snapshot. Missing
// specializations keep their seeded defaults.
func (s *Store) LoadPersisted(ctx context.Context) error {
	if s.persister == nil {
		return nil
	}
	persisted, err := s.persister.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading reliability snapshot: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for spec, record := range persisted {
		if !spec.IsValid() {
			continue
		}
		s.records[spec] = record
	}
	s.log.WithField("records", len(persisted)).Info("Loaded persisted reliability records")
	return nil
}

// Get returns the reliability record for a specialization.
func (s *Store) Get(spec domain.AgentSpecialization) (domain.AgentReliability, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[spec]
	return record, ok
}

// Snapshot returns a copy of all reliability records.
func (s *Store) Snapshot() map[domain.AgentSpecialization]domain.AgentReliability {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[domain.AgentSpecialization]domain.AgentReliability, len(s.records))
	for spec, record := range s.records {
		out[spec] = record
	}
	return out
}

// Update applies outcome feedback to a specialization's record using an
// exponential moving average with a fixed learning rate. Emergency accuracy
// moves only when the case was an emergency. CaseVolume increments on every
// call and never resets.
func (s *Store) Update(ctx context.Context, spec domain.AgentSpecialization, outcome bool, predictedConfidence float64, wasEmergency bool) error {
	if !spec.IsValid() {
		return fmt.Errorf("reliability update: %w: %s", domain.ErrInvalidSpecialization, spec)
	}
	predictedConfidence = clamp01(predictedConfidence)

	observed := 0.0
	if outcome {
		observed = 1.0
	}

	s.mu.Lock()
	record, ok := s.records[spec]
	if !ok {
		record = domain.AgentReliability{
			AgentSpecialization:      spec,
			HistoricalAccuracy:       0.5,
			EmergencyAccuracy:        0.5,
			AvgConfidenceCalibration: 0.5,
			DomainExpertiseScore:     0.5,
		}
	}

	record.HistoricalAccuracy = (1-learningRate)*record.HistoricalAccuracy + learningRate*observed
	if wasEmergency {
		record.EmergencyAccuracy = (1-learningRate)*record.EmergencyAccuracy + learningRate*observed
	}
	record.CaseVolume++
	record.LastUpdated = time.Now().UTC()

	window, ok := s.history[spec]
	if !ok {
		window = newCalibrationWindow(s.capacity)
		s.history[spec] = window
	}
	window.add(calibrationSample{confidence: predictedConfidence, outcome: outcome})
	record.AvgConfidenceCalibration = 1.0 - expectedCalibrationError(window)

	s.records[spec] = record
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{
		"specialization":      spec.String(),
		"outcome":             outcome,
		"was_emergency":       wasEmergency,
		"historical_accuracy": record.HistoricalAccuracy,
		"case_volume":         record.CaseVolume,
	}).Debug("Updated agent reliability")

	if s.persister != nil {
		if err := s.persister.SaveAgent(ctx, record); err != nil {
			// Persistence is best-effort; the in-memory record stays authoritative.
			s.log.WithError(err).WithField("specialization", spec.String()).
				Warn("Failed to persist reliability record")
		}
	}
	return nil
}

// CalibrationError returns the Expected Calibration Error for a
// specialization. Fewer than minCalibrationSamples samples reports 0.5,
// maximally uncertain.
func (s *Store) CalibrationError(spec domain.AgentSpecialization) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	window, ok := s.history[spec]
	if !ok {
		return 0.5
	}
	return expectedCalibrationError(window)
}

// expectedCalibrationError computes the ECE over equal-width confidence bins:
// ECE = sum_bin (bin_size/total) * |bin_mean_accuracy - bin_mean_confidence|.
func expectedCalibrationError(window *calibrationWindow) float64 {
	total := window.len()
	if total < minCalibrationSamples {
		return 0.5
	}

	type bin struct {
		count         int
		sumConfidence float64
		sumOutcome    float64
	}
	bins := make([]bin, calibrationBins)
	for _, sample := range window.all() {
		idx := int(sample.confidence * calibrationBins)
		if idx >= calibrationBins {
			idx = calibrationBins - 1
		}
		bins[idx].count++
		bins[idx].sumConfidence += sample.confidence
		if sample.outcome {
			bins[idx].sumOutcome++
		}
	}

	ece := 0.0
	for _, b := range bins {
		if b.count == 0 {
			continue
		}
		meanConfidence := b.sumConfidence / float64(b.count)
		meanAccuracy := b.sumOutcome / float64(b.count)
		ece += float64(b.count) / float64(total) * math.Abs(meanAccuracy-meanConfidence)
	}
	return ece
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
