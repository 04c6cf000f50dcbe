package service

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/medagent-orchestrator/internal/domain"
)

const (
	// maxDifferentials caps the consolidated differential list.
	maxDifferentials = 5

	// maxActions caps the consolidated immediate-action list.
	maxActions = 10

	// actionFrontLoadThreshold is the emergency score at or above which
	// emergency actions move to the front of the action list.
	actionFrontLoadThreshold = 0.6
)

// urgencyMinimumTriage maps requested urgency to the lowest acceptable triage
// band. The final band is the higher of this and the score-derived band.
var urgencyMinimumTriage = map[domain.UrgencyLevel]domain.TriageCategory{
	domain.URGENCY_LOW:       domain.TRIAGE_BLUE,
	domain.URGENCY_MODERATE:  domain.TRIAGE_GREEN,
	domain.URGENCY_HIGH:      domain.TRIAGE_YELLOW,
	domain.URGENCY_CRITICAL:  domain.TRIAGE_ORANGE,
	domain.URGENCY_EMERGENCY: domain.TRIAGE_RED,
}

// Consolidator merges per-agent diagnoses into a single ConsolidatedDiagnosis
// via weighted voting, computes the emergency score and assigns the triage
// category.
type Consolidator struct {
	log *logrus.Logger
}

// NewConsolidator creates a diagnosis consolidator.
func NewConsolidator(logger *logrus.Logger) *Consolidator {
	return &Consolidator{log: logger}
}

// AggregateDiagnoses consolidates the agent diagnoses for one request.
// Fails only on empty input.
func (c *Consolidator) AggregateDiagnoses(diagnoses []domain.AgentDiagnosis, urgency domain.UrgencyLevel) (*domain.ConsolidatedDiagnosis, error) {
	if len(diagnoses) == 0 {
		return nil, fmt.Errorf("diagnosis consolidation: %w", domain.ErrNoDiagnoses)
	}

	primary := c.electPrimaryDiagnosis(diagnoses)
	emergencyScore := c.emergencyScore(diagnoses, urgency)

	consolidated := &domain.ConsolidatedDiagnosis{
		DiagnosisID:           uuid.NewString(),
		PrimaryDiagnosis:      primary,
		DifferentialDiagnoses: c.mergeDifferentials(diagnoses, primary),
		EmergencyScore:        emergencyScore,
		TriageCategory:        c.triageCategory(primary, emergencyScore, urgency),
		ImmediateActions:      c.mergeActions(diagnoses, emergencyScore),
		SpecialistReferrals:   c.referrals(diagnoses),
		AgentConsensus:        agentConsensus(diagnoses),
		ProcessingSummary: map[string]any{
			"agents_consulted": len(diagnoses),
			"urgency_level":    urgency.String(),
		},
		Timestamp: time.Now().UTC(),
	}

	c.log.WithFields(logrus.Fields{
		"diagnosis_id":    consolidated.DiagnosisID,
		"primary":         consolidated.PrimaryDiagnosis,
		"emergency_score": consolidated.EmergencyScore,
		"triage_category": consolidated.TriageCategory.String(),
	}).Info("Consolidated agent diagnoses")

	return consolidated, nil
}

// electPrimaryDiagnosis runs the weighted vote: each agent votes for its raw
// primary diagnosis string with weight confidence * specialization vote
// weight. Exact vote ties break by the highest single supporting confidence,
// then lexically, so the winner is deterministic.
func (c *Consolidator) electPrimaryDiagnosis(diagnoses []domain.AgentDiagnosis) string {
	votes := make(map[string]float64)
	bestSupport := make(map[string]float64)
	for _, d := range diagnoses {
		weight := d.ConfidenceScore * domain.VoteWeight(d.AgentSpecialization)
		votes[d.PrimaryDiagnosis] += weight
		if d.ConfidenceScore > bestSupport[d.PrimaryDiagnosis] {
			bestSupport[d.PrimaryDiagnosis] = d.ConfidenceScore
		}
	}

	winner := ""
	for candidate, total := range votes {
		if winner == "" {
			winner = candidate
			continue
		}
		switch {
		case total > votes[winner]:
			winner = candidate
		case total == votes[winner]:
			if bestSupport[candidate] > bestSupport[winner] ||
				(bestSupport[candidate] == bestSupport[winner] && candidate < winner) {
				winner = candidate
			}
		}
	}
	return winner
}

// mergeDifferentials unions every agent's differentials, drops the winning
// primary, sorts alphabetically and caps the list.
func (c *Consolidator) mergeDifferentials(diagnoses []domain.AgentDiagnosis, primary string) []string {
	seen := make(map[string]bool)
	var merged []string
	for _, d := range diagnoses {
		for _, differential := range d.DifferentialDiagnoses {
			key := strings.ToLower(strings.TrimSpace(differential))
			if key == "" || key == strings.ToLower(strings.TrimSpace(primary)) || seen[key] {
				continue
			}
			seen[key] = true
			merged = append(merged, strings.TrimSpace(differential))
		}
	}
	sort.Strings(merged)
	if len(merged) > maxDifferentials {
		merged = merged[:maxDifferentials]
	}
	return merged
}

// mergeActions unions the recommended actions in first-seen order, moves
// emergency actions to the front when the emergency score calls for it and
// caps the list.
func (c *Consolidator) mergeActions(diagnoses []domain.AgentDiagnosis, emergencyScore float64) []string {
	seen := make(map[string]bool)
	var actions []string
	for _, d := range diagnoses {
		for _, action := range d.RecommendedActions {
			key := strings.ToLower(strings.TrimSpace(action))
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			actions = append(actions, strings.TrimSpace(action))
		}
	}

	if emergencyScore >= actionFrontLoadThreshold {
		var urgent, routine []string
		for _, action := range actions {
			if isEmergencyAction(action) {
				urgent = append(urgent, action)
			} else {
				routine = append(routine, action)
			}
		}
		actions = append(urgent, routine...)
	}

	if len(actions) > maxActions {
		actions = actions[:maxActions]
	}
	return actions
}

// referrals lists the non-general-medicine specializations consulted,
// deduplicated and sorted for deterministic output.
func (c *Consolidator) referrals(diagnoses []domain.AgentDiagnosis) []string {
	seen := make(map[string]bool)
	var referrals []string
	for _, d := range diagnoses {
		if d.AgentSpecialization == domain.GENERAL_MEDICINE {
			continue
		}
		name := strings.TrimSuffix(d.AgentSpecialization.String(), "_agent")
		if !seen[name] {
			seen[name] = true
			referrals = append(referrals, name)
		}
	}
	sort.Strings(referrals)
	return referrals
}

// emergencyScore blends the urgency base score with the ratio of emergency
// indicators detected across all agents' diagnosis text:
// 0.7*urgency_base + 0.3*indicator_ratio.
func (c *Consolidator) emergencyScore(diagnoses []domain.AgentDiagnosis, urgency domain.UrgencyLevel) float64 {
	base := domain.UrgencyBaseScores[urgency]

	indicators := domain.AllEmergencyIndicators()
	if len(indicators) == 0 {
		return clampConfidence(0.7 * base)
	}

	var sb strings.Builder
	for _, d := range diagnoses {
		sb.WriteString(strings.ToLower(d.PrimaryDiagnosis))
		sb.WriteString(" ")
		sb.WriteString(strings.ToLower(strings.Join(d.DifferentialDiagnoses, " ")))
		sb.WriteString(" ")
		sb.WriteString(strings.ToLower(strings.Join(d.ReasoningChain, " ")))
		sb.WriteString(" ")
	}
	combined := sb.String()

	matched := 0
	for _, indicator := range indicators {
		if strings.Contains(combined, indicator) {
			matched++
		}
	}
	ratio := float64(matched) / float64(len(indicators))

	return clampConfidence(0.7*base + 0.3*ratio)
}

// triageCategory assigns the triage band. A critical-condition keyword in the
// primary diagnosis forces RED regardless of score; otherwise the band is the
// higher of the score band and the urgency-mandated minimum (an OR condition
// between score and requested urgency).
func (c *Consolidator) triageCategory(primary string, emergencyScore float64, urgency domain.UrgencyLevel) domain.TriageCategory {
	if domain.MatchesCriticalCondition(primary) {
		return domain.TRIAGE_RED
	}

	band := triageFromScore(emergencyScore)
	if minimum, ok := urgencyMinimumTriage[urgency]; ok && minimum.Severity() > band.Severity() {
		band = minimum
	}
	return band
}

func triageFromScore(score float64) domain.TriageCategory {
	switch {
	case score >= 0.8:
		return domain.TRIAGE_RED
	case score >= 0.6:
		return domain.TRIAGE_ORANGE
	case score >= 0.4:
		return domain.TRIAGE_YELLOW
	case score >= 0.2:
		return domain.TRIAGE_GREEN
	default:
		return domain.TRIAGE_BLUE
	}
}

func agentConsensus(diagnoses []domain.AgentDiagnosis) map[domain.AgentSpecialization]float64 {
	consensus := make(map[domain.AgentSpecialization]float64, len(diagnoses))
	for _, d := range diagnoses {
		consensus[d.AgentSpecialization] = d.ConfidenceScore
	}
	return consensus
}

func isEmergencyAction(action string) bool {
	lower := strings.ToLower(action)
	for _, keyword := range domain.EmergencyActionKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}
