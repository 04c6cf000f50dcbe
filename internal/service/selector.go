// Package service implements the diagnosis pipeline: agent selection,
// concurrent fan-out to specialized agents, consolidation of their diagnoses
// and post-hoc safety validation, orchestrated end to end.
package service

import (
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/medagent-orchestrator/internal/domain"
)

const (
	// selectionThreshold is the minimum relevance score for an agent to join
	// the ensemble on merit.
	selectionThreshold = 0.5

	// minEnsembleSize agents are always selected, threshold or not.
	minEnsembleSize = 2

	// maxEnsembleSize caps the ensemble to bound fan-out cost.
	maxEnsembleSize = 5
)

// Selector scores and ranks specializations against a case's symptoms,
// history and urgency, returning an ordered shortlist of 2-5 agents.
// Scoring is deterministic for identical requests: ties break by the fixed
// registry order.
type Selector struct {
	log *logrus.Logger

	boostMu sync.RWMutex
	boosts  map[domain.AgentSpecialization]float64
}

// NewSelector creates an agent selector.
func NewSelector(logger *logrus.Logger) *Selector {
	return &Selector{
		log:    logger,
		boosts: make(map[domain.AgentSpecialization]float64),
	}
}

// SetAccuracyBoost records a learned per-specialization score boost derived
// from outcome feedback. Absent entries contribute zero.
func (s *Selector) SetAccuracyBoost(spec domain.AgentSpecialization, boost float64) {
	s.boostMu.Lock()
	s.boosts[spec] = boost
	s.boostMu.Unlock()
}

func (s *Selector) accuracyBoost(spec domain.AgentSpecialization) float64 {
	s.boostMu.RLock()
	defer s.boostMu.RUnlock()
	return s.boosts[spec]
}

// SelectAgents returns the ordered agent shortlist for a request. At least
// two agents are always returned; the emergency specialization is guaranteed
// a place when urgency is critical or emergency.
func (s *Selector) SelectAgents(request *domain.DiagnosisRequest) []domain.AgentSpecialization {
	combined := strings.ToLower(strings.Join(request.Symptoms, " ") + " " +
		strings.Join(request.MedicalHistory, " "))

	type scored struct {
		spec  domain.AgentSpecialization
		score float64
		rank  int // registry position, for stable tie-breaking
	}

	candidates := make([]scored, 0, len(domain.SpecializationOrder))
	for rank, spec := range domain.SpecializationOrder {
		profile := domain.CapabilityRegistry[spec]

		score := 0.3*countMatches(combined, profile.Keywords) +
			0.5*countMatches(combined, profile.Symptoms) +
			0.4*countMatches(combined, profile.Conditions)
		if request.UrgencyLevel.IsElevated() {
			score += 0.7 * countMatches(combined, profile.EmergencyIndicators)
		}
		score += s.accuracyBoost(spec)

		// Critical cases always make the emergency agent eligible.
		if spec == domain.EMERGENCY_MEDICINE && request.UrgencyLevel.IsCritical() {
			score += 1.0
		}

		candidates = append(candidates, scored{spec: spec, score: score, rank: rank})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].rank < candidates[j].rank
	})

	selected := make([]domain.AgentSpecialization, 0, maxEnsembleSize)
	for _, c := range candidates {
		if c.score < selectionThreshold || len(selected) == maxEnsembleSize {
			break
		}
		selected = append(selected, c.spec)
	}

	// Guarantee the minimum ensemble size even when nothing clears the
	// threshold (for example, empty symptoms and history).
	for _, c := range candidates {
		if len(selected) >= minEnsembleSize {
			break
		}
		if !containsSpec(selected, c.spec) {
			selected = append(selected, c.spec)
		}
	}

	// Critical cases must always include the emergency agent, even when the
	// ensemble cap is reached by higher-scoring specializations.
	if request.UrgencyLevel.IsCritical() && !containsSpec(selected, domain.EMERGENCY_MEDICINE) {
		if len(selected) == maxEnsembleSize {
			selected[len(selected)-1] = domain.EMERGENCY_MEDICINE
		} else {
			selected = append(selected, domain.EMERGENCY_MEDICINE)
		}
	}

	s.log.WithFields(logrus.Fields{
		"request_id": request.RequestID,
		"urgency":    request.UrgencyLevel.String(),
		"selected":   specNames(selected),
	}).Info("Selected diagnostic agents")

	return selected
}

// countMatches counts how many vocabulary terms appear in the combined text.
func countMatches(combined string, terms []string) float64 {
	hits := 0
	for _, term := range terms {
		if strings.Contains(combined, term) {
			hits++
		}
	}
	return float64(hits)
}

func containsSpec(list []domain.AgentSpecialization, spec domain.AgentSpecialization) bool {
	for _, s := range list {
		if s == spec {
			return true
		}
	}
	return false
}

func specNames(list []domain.AgentSpecialization) []string {
	names := make([]string, len(list))
	for i, s := range list {
		names[i] = s.String()
	}
	return names
}
