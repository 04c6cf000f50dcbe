// Package confidence implements the multi-method statistical fusion of
// per-agent diagnoses: weighted ensemble, Bayesian posterior, bootstrap
// resampling, consensus scoring, uncertainty decomposition and the
// emergency-adjusted final confidence.
package confidence

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/medagent-orchestrator/internal/domain"
)

const (
	// uniformPrior is the Bayesian prior probability of a correct diagnosis.
	uniformPrior = 0.5

	// defaultBootstrapSamples is the number of bootstrap resamples.
	defaultBootstrapSamples = 1000

	// conservativeDefault substitutes for any statistic that cannot be
	// computed from degenerate input.
	conservativeDefault = 0.5
)

// Aggregator fuses per-agent diagnoses into ConfidenceMetrics using the
// injected reliability reader for per-agent weighting.
type Aggregator struct {
	log              *logrus.Logger
	reliability      domain.ReliabilityReader
	bootstrapSamples int

	rngMu sync.Mutex
	rng   *rand.Rand
}

// AggregatorOption configures an Aggregator.
type AggregatorOption func(*Aggregator)

// WithBootstrapSamples overrides the bootstrap resample count.
func WithBootstrapSamples(n int) AggregatorOption {
	return func(a *Aggregator) {
		if n > 0 {
			a.bootstrapSamples = n
		}
	}
}

// WithRandomSeed fixes the bootstrap RNG seed for reproducible runs.
func WithRandomSeed(seed int64) AggregatorOption {
	return func(a *Aggregator) {
		a.rng = rand.New(rand.NewSource(seed))
	}
}

// NewAggregator creates a confidence aggregator.
func NewAggregator(logger *logrus.Logger, reliability domain.ReliabilityReader, opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		log:              logger,
		reliability:      reliability,
		bootstrapSamples: defaultBootstrapSamples,
		rng:              rand.New(rand.NewSource(rand.Int63())),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// CalculateComprehensiveConfidence runs every confidence sub-algorithm and
// assembles the final ConfidenceMetrics plus the transient uncertainty
// analysis. Fails only on empty input; statistical failures inside individual
// routines degrade to conservative defaults.
func (a *Aggregator) CalculateComprehensiveConfidence(
	diagnoses []domain.AgentDiagnosis,
	urgency domain.UrgencyLevel,
	clinical *domain.ClinicalContext,
) (*domain.ConfidenceMetrics, *domain.UncertaintyAnalysis, error) {
	if len(diagnoses) == 0 {
		return nil, nil, fmt.Errorf("confidence aggregation: %w", domain.ErrNoDiagnoses)
	}

	confidences := make([]float64, len(diagnoses))
	for i, d := range diagnoses {
		confidences[i] = clamp01(d.ConfidenceScore)
	}

	ensemble := a.weightedEnsemble(diagnoses, confidences)
	posterior := a.bayesianPosterior(diagnoses, confidences)
	bootstrapMean, interval := a.bootstrap(confidences)
	consensus := a.consensusStrength(diagnoses, confidences)
	significance := a.statisticalSignificance(confidences)
	uncertainty := a.DecomposeUncertainty(diagnoses, confidences, urgency, clinical)
	clinicalConf := a.clinicalConfidence(diagnoses, confidences, urgency, clinical)
	reliabilityScore := a.reliabilityScore(diagnoses)
	overall := applyEmergencyAdjustment(ensemble, urgency, uncertainty.TotalUncertainty)

	metrics := &domain.ConfidenceMetrics{
		OverallConfidence:       overall,
		ConfidenceInterval:      interval,
		UncertaintyScore:        uncertainty.TotalUncertainty,
		ReliabilityScore:        reliabilityScore,
		ConsensusStrength:       consensus,
		StatisticalSignificance: significance,
		BayesianPosterior:       posterior,
		BootstrapConfidence:     bootstrapMean,
		ClinicalConfidence:      clinicalConf,
	}

	a.log.WithFields(logrus.Fields{
		"agents":              len(diagnoses),
		"overall_confidence":  metrics.OverallConfidence,
		"bayesian_posterior":  metrics.BayesianPosterior,
		"consensus_strength":  metrics.ConsensusStrength,
		"uncertainty_score":   metrics.UncertaintyScore,
		"clinical_confidence": metrics.ClinicalConfidence,
	}).Debug("Computed comprehensive confidence")

	return metrics, uncertainty, nil
}

// agentWeight is the composite reliability weight of a specialization:
// 0.4*accuracy + 0.3*expertise + 0.2*calibration + 0.1*(1-FP rate).
// Unknown agents weigh the conservative default.
func (a *Aggregator) agentWeight(spec domain.AgentSpecialization) float64 {
	record, ok := a.reliability.Get(spec)
	if !ok {
		return conservativeDefault
	}
	return 0.4*record.HistoricalAccuracy +
		0.3*record.DomainExpertiseScore +
		0.2*record.AvgConfidenceCalibration +
		0.1*(1-record.FalsePositiveRate)
}

// weightedEnsemble computes the reliability-weighted mean confidence, capped
// at 1.0. Falls back to the plain mean if the weights sum to zero.
func (a *Aggregator) weightedEnsemble(diagnoses []domain.AgentDiagnosis, confidences []float64) float64 {
	weightedSum := 0.0
	weightTotal := 0.0
	for i, d := range diagnoses {
		w := a.agentWeight(d.AgentSpecialization)
		weightedSum += w * confidences[i]
		weightTotal += w
	}
	if weightTotal == 0 {
		return clamp01(mean(confidences))
	}
	return clamp01(weightedSum / weightTotal)
}

// bayesianPosterior updates a uniform prior with each agent's likelihood of
// being correct given its stated confidence and historical accuracy.
func (a *Aggregator) bayesianPosterior(diagnoses []domain.AgentDiagnosis, confidences []float64) float64 {
	likelihood := 1.0
	for i, d := range diagnoses {
		accuracy := conservativeDefault
		if record, ok := a.reliability.Get(d.AgentSpecialization); ok {
			accuracy = record.HistoricalAccuracy
		}
		c := confidences[i]
		likelihood *= c*accuracy + (1-c)*(1-accuracy)
	}

	numerator := likelihood * uniformPrior
	denominator := numerator + (1-likelihood)*(1-uniformPrior)
	if denominator == 0 {
		return conservativeDefault
	}
	return clamp01(numerator / denominator)
}

// bootstrap resamples the confidence list with replacement and reports the
// mean of resample means with a [2.5, 97.5] percentile interval. Fewer than
// two diagnoses yields the trivial +/-20% interval around the single value.
func (a *Aggregator) bootstrap(confidences []float64) (float64, domain.ConfidenceInterval) {
	if len(confidences) < 2 {
		c := 0.0
		if len(confidences) == 1 {
			c = confidences[0]
		}
		return c, domain.ConfidenceInterval{
			Lower: clamp01(0.8 * c),
			Upper: clamp01(1.2 * c),
		}
	}

	n := len(confidences)
	means := make([]float64, a.bootstrapSamples)

	a.rngMu.Lock()
	for i := 0; i < a.bootstrapSamples; i++ {
		sum := 0.0
		for j := 0; j < n; j++ {
			sum += confidences[a.rng.Intn(n)]
		}
		means[i] = sum / float64(n)
	}
	a.rngMu.Unlock()

	return clamp01(mean(means)), domain.ConfidenceInterval{
		Lower: clamp01(percentile(means, 2.5)),
		Upper: clamp01(percentile(means, 97.5)),
	}
}

// consensusStrength blends primary-diagnosis agreement with confidence
// agreement: 0.7*agreement_ratio + 0.3*(1 - min(2*stddev, 1)).
func (a *Aggregator) consensusStrength(diagnoses []domain.AgentDiagnosis, confidences []float64) float64 {
	if len(diagnoses) < 2 {
		return 1.0
	}

	counts := make(map[string]int)
	for _, d := range diagnoses {
		counts[strings.ToLower(strings.TrimSpace(d.PrimaryDiagnosis))]++
	}
	most := 0
	for _, c := range counts {
		if c > most {
			most = c
		}
	}
	agreementRatio := float64(most) / float64(len(diagnoses))

	spread := 2 * sampleStdDev(confidences)
	if spread > 1 {
		spread = 1
	}
	confidenceAgreement := 1 - spread

	return clamp01(0.7*agreementRatio + 0.3*confidenceAgreement)
}

// statisticalSignificance runs a one-sample t-test of the confidences against
// a null mean of 0.5 and reports 1 - p. Degenerate input reports the
// conservative default rather than an error.
func (a *Aggregator) statisticalSignificance(confidences []float64) float64 {
	p, err := oneSampleTTestPValue(confidences, 0.5)
	if err != nil {
		return conservativeDefault
	}
	if p > 1 {
		p = 1
	}
	return clamp01(1 - p)
}

// reliabilityScore is the mean composite weight across the agents actually
// consulted.
func (a *Aggregator) reliabilityScore(diagnoses []domain.AgentDiagnosis) float64 {
	total := 0.0
	for _, d := range diagnoses {
		total += a.agentWeight(d.AgentSpecialization)
	}
	return clamp01(total / float64(len(diagnoses)))
}

// clinicalConfidence starts from the mean confidence and applies clinical
// adjustments: emergency-agent anchoring under elevated urgency, a penalty
// for low-confidence critical findings and an age-extremes penalty.
func (a *Aggregator) clinicalConfidence(
	diagnoses []domain.AgentDiagnosis,
	confidences []float64,
	urgency domain.UrgencyLevel,
	clinical *domain.ClinicalContext,
) float64 {
	base := mean(confidences)

	if urgency.IsElevated() {
		for _, d := range diagnoses {
			if d.AgentSpecialization == domain.EMERGENCY_MEDICINE {
				base += 0.3 * (clamp01(d.ConfidenceScore) - base)
				break
			}
		}
	}

	if base < 0.8 && containsCriticalCondition(diagnoses) {
		base -= 0.1
	}

	if clinical != nil && clinical.PatientAge != nil {
		age := *clinical.PatientAge
		if age < 18 || age > 75 {
			base -= 0.05
		}
	}

	return clamp01(base)
}

// DecomposeUncertainty splits diagnostic uncertainty into epistemic,
// aleatoric and clinical components, with human-readable sources for each
// triggered factor and mitigations for any dimension exceeding 0.3.
func (a *Aggregator) DecomposeUncertainty(
	diagnoses []domain.AgentDiagnosis,
	confidences []float64,
	urgency domain.UrgencyLevel,
	clinical *domain.ClinicalContext,
) *domain.UncertaintyAnalysis {
	analysis := &domain.UncertaintyAnalysis{}
	n := len(diagnoses)
	if n == 0 {
		return analysis
	}

	distinct := make(map[string]bool)
	for _, d := range diagnoses {
		distinct[strings.ToLower(strings.TrimSpace(d.PrimaryDiagnosis))] = true
	}
	if 2*len(distinct) > n {
		analysis.EpistemicUncertainty += 0.3
		analysis.UncertaintySources = append(analysis.UncertaintySources,
			"Agents disagree on the primary diagnosis")
	}

	lowConfidence := 0
	for _, c := range confidences {
		if c < 0.6 {
			lowConfidence++
		}
	}
	if 2*lowConfidence > n {
		analysis.EpistemicUncertainty += 0.2
		analysis.UncertaintySources = append(analysis.UncertaintySources,
			"Majority of agents report low confidence")
	}

	if clinical != nil && clinical.IncompleteData {
		analysis.AleatoricUncertainty += 0.3
		analysis.UncertaintySources = append(analysis.UncertaintySources,
			"Clinical context flags incomplete patient data")
	}

	if urgency.IsElevated() {
		analysis.ClinicalUncertainty += 0.1
		analysis.UncertaintySources = append(analysis.UncertaintySources,
			"Elevated urgency narrows the diagnostic window")
	}
	if containsRareCondition(diagnoses) {
		analysis.ClinicalUncertainty += 0.2
		analysis.UncertaintySources = append(analysis.UncertaintySources,
			"Diagnosis text references a rare or atypical condition")
	}

	total := analysis.EpistemicUncertainty + analysis.AleatoricUncertainty + analysis.ClinicalUncertainty
	if total > 1 {
		total = 1
	}
	analysis.TotalUncertainty = total

	if analysis.EpistemicUncertainty > 0.3 {
		analysis.MitigationRecommendations = append(analysis.MitigationRecommendations,
			"Consult additional specialist agents to resolve diagnostic disagreement")
	}
	if analysis.AleatoricUncertainty > 0.3 {
		analysis.MitigationRecommendations = append(analysis.MitigationRecommendations,
			"Gather additional clinical data before finalizing the diagnosis")
	}
	if analysis.ClinicalUncertainty > 0.3 {
		analysis.MitigationRecommendations = append(analysis.MitigationRecommendations,
			"Escalate to senior clinician review given the clinical complexity")
	}

	return analysis
}

// applyEmergencyAdjustment produces the final confidence. Under elevated
// urgency with moderate uncertainty the value is discounted but floored at
// 0.6 so emergencies never read as "no confidence"; very high uncertainty
// (>0.7) overrides the floor and forces a 0.7 cap. The cap check runs last.
func applyEmergencyAdjustment(ensemble float64, urgency domain.UrgencyLevel, totalUncertainty float64) float64 {
	adjusted := ensemble

	if urgency.IsElevated() && totalUncertainty > 0.5 {
		adjusted *= 0.9
		if adjusted < 0.6 {
			adjusted = 0.6
		}
	}

	if totalUncertainty > 0.7 && adjusted > 0.7 {
		adjusted = 0.7
	}

	return clamp01(adjusted)
}

func containsCriticalCondition(diagnoses []domain.AgentDiagnosis) bool {
	for _, d := range diagnoses {
		if domain.MatchesCriticalCondition(d.PrimaryDiagnosis) {
			return true
		}
	}
	return false
}

func containsRareCondition(diagnoses []domain.AgentDiagnosis) bool {
	for _, d := range diagnoses {
		text := strings.ToLower(d.PrimaryDiagnosis + " " + strings.Join(d.DifferentialDiagnoses, " "))
		for _, keyword := range domain.RareConditionKeywords {
			if strings.Contains(text, keyword) {
				return true
			}
		}
	}
	return false
}
