// Package reliability owns the per-agent historical accuracy and calibration
// records. State is explicitly constructed and injected into the pipeline;
// updates run under a store lock so concurrent outcome feedback never loses
// writes, while readers tolerate slightly stale values.
package reliability

import (
	"time"

	"github.com/medagent-orchestrator/internal/domain"
)

// SeedDefaults returns the evidence-based starting reliability records per
// specialization. The values are literature-derived configuration, not
// computed state; they hold until outcome feedback moves the moving averages.
func SeedDefaults() map[domain.AgentSpecialization]domain.AgentReliability {
	now := time.Now().UTC()
	seed := func(spec domain.AgentSpecialization, accuracy, emergency, fp, fn, calibration, expertise float64) domain.AgentReliability {
		return domain.AgentReliability{
			AgentSpecialization:      spec,
			HistoricalAccuracy:       accuracy,
			EmergencyAccuracy:        emergency,
			FalsePositiveRate:        fp,
			FalseNegativeRate:        fn,
			AvgConfidenceCalibration: calibration,
			DomainExpertiseScore:     expertise,
			LastUpdated:              now,
		}
	}

	return map[domain.AgentSpecialization]domain.AgentReliability{
		domain.EMERGENCY_MEDICINE: seed(domain.EMERGENCY_MEDICINE, 0.88, 0.92, 0.09, 0.05, 0.84, 0.93),
		domain.CARDIOLOGY:         seed(domain.CARDIOLOGY, 0.87, 0.89, 0.08, 0.06, 0.82, 0.92),
		domain.NEUROLOGY:          seed(domain.NEUROLOGY, 0.85, 0.86, 0.09, 0.07, 0.80, 0.90),
		domain.PULMONOLOGY:        seed(domain.PULMONOLOGY, 0.86, 0.87, 0.08, 0.07, 0.81, 0.90),
		domain.INFECTIOUS_DISEASE: seed(domain.INFECTIOUS_DISEASE, 0.84, 0.85, 0.10, 0.08, 0.79, 0.88),
		domain.PEDIATRICS:         seed(domain.PEDIATRICS, 0.85, 0.84, 0.09, 0.08, 0.80, 0.89),
		domain.PSYCHIATRY:         seed(domain.PSYCHIATRY, 0.81, 0.78, 0.12, 0.10, 0.76, 0.86),
		domain.ORTHOPEDICS:        seed(domain.ORTHOPEDICS, 0.86, 0.83, 0.08, 0.07, 0.81, 0.88),
		domain.GENERAL_MEDICINE:   seed(domain.GENERAL_MEDICINE, 0.80, 0.74, 0.13, 0.11, 0.75, 0.82),
	}
}
