package service

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/medagent-orchestrator/internal/domain"
)

// defaultConfidence substitutes for a missing or malformed confidence value.
const defaultConfidence = 0.5

// ResponseParser turns one agent's raw model output into an AgentDiagnosis.
// Implementations must tolerate missing or malformed fields with sensible
// defaults and never fail on unparseable text: free-text parsing is the
// fallback protocol, not a validation gate.
type ResponseParser interface {
	Parse(spec domain.AgentSpecialization, raw string) *domain.AgentDiagnosis
}

// ParserRegistry maps specializations to their response parsers, falling back
// to a shared default. Parsers are pluggable so a structured-output backend
// can swap in a schema-validating parser without touching aggregation logic.
type ParserRegistry struct {
	parsers  map[domain.AgentSpecialization]ResponseParser
	fallback ResponseParser
}

// NewParserRegistry creates a registry with the regex parser as the shared
// default for every specialization.
func NewParserRegistry() *ParserRegistry {
	return &ParserRegistry{
		parsers:  make(map[domain.AgentSpecialization]ResponseParser),
		fallback: NewRegexParser(),
	}
}

// Register installs a specialization-specific parser.
func (r *ParserRegistry) Register(spec domain.AgentSpecialization, parser ResponseParser) {
	r.parsers[spec] = parser
}

// ParserFor returns the parser for a specialization.
func (r *ParserRegistry) ParserFor(spec domain.AgentSpecialization) ResponseParser {
	if p, ok := r.parsers[spec]; ok {
		return p
	}
	return r.fallback
}

// RegexParser extracts labeled fields from free-text model output.
type RegexParser struct {
	primaryRe    *regexp.Regexp
	confidenceRe *regexp.Regexp
	listRes      map[string]*regexp.Regexp
}

// NewRegexParser compiles the field extraction patterns once.
func NewRegexParser() *RegexParser {
	listField := func(label string) *regexp.Regexp {
		return regexp.MustCompile(`(?im)^` + label + `:\s*(.+)$`)
	}
	return &RegexParser{
		primaryRe:    regexp.MustCompile(`(?im)^primary diagnosis:\s*(.+)$`),
		confidenceRe: regexp.MustCompile(`(?im)^confidence(?: score)?:\s*([0-9]*\.?[0-9]+)`),
		listRes: map[string]*regexp.Regexp{
			"differentials":     listField(`differential diagnoses`),
			"actions":           listField(`recommended actions`),
			"risks":             listField(`risk factors`),
			"contraindications": listField(`contraindications`),
		},
	}
}

// Parse extracts the diagnosis fields. Missing primary diagnosis yields an
// explicit "requires review" marker; missing confidence defaults to 0.5;
// out-of-range confidence clamps to [0,1].
func (p *RegexParser) Parse(spec domain.AgentSpecialization, raw string) *domain.AgentDiagnosis {
	diagnosis := &domain.AgentDiagnosis{
		AgentSpecialization: spec,
		PrimaryDiagnosis:    "Undetermined - requires clinical review",
		ConfidenceScore:     defaultConfidence,
	}

	if m := p.primaryRe.FindStringSubmatch(raw); m != nil {
		if primary := strings.TrimSpace(m[1]); primary != "" {
			diagnosis.PrimaryDiagnosis = primary
		}
	}

	if m := p.confidenceRe.FindStringSubmatch(raw); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			diagnosis.ConfidenceScore = clampConfidence(v)
		}
	}

	diagnosis.DifferentialDiagnoses = p.extractList(raw, "differentials")
	diagnosis.RecommendedActions = p.extractList(raw, "actions")
	diagnosis.RiskFactors = p.extractList(raw, "risks")
	diagnosis.Contraindications = p.extractList(raw, "contraindications")
	diagnosis.ReasoningChain = p.extractReasoning(raw)

	return diagnosis
}

// extractList splits a labeled comma-separated field into trimmed items.
func (p *RegexParser) extractList(raw, field string) []string {
	re, ok := p.listRes[field]
	if !ok {
		return nil
	}
	m := re.FindStringSubmatch(raw)
	if m == nil {
		return nil
	}
	return splitItems(m[1])
}

// extractReasoning collects the "- " prefixed lines following the Reasoning
// header, or the inline value when reasoning fits one line.
func (p *RegexParser) extractReasoning(raw string) []string {
	lines := strings.Split(raw, "\n")
	var reasoning []string
	inBlock := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		lower := strings.ToLower(trimmed)

		if strings.HasPrefix(lower, "reasoning:") {
			inBlock = true
			if inline := strings.TrimSpace(trimmed[len("reasoning:"):]); inline != "" {
				reasoning = append(reasoning, inline)
			}
			continue
		}
		if inBlock {
			if strings.HasPrefix(trimmed, "- ") {
				reasoning = append(reasoning, strings.TrimSpace(trimmed[2:]))
				continue
			}
			if trimmed == "" {
				continue
			}
			// Any other labeled line ends the reasoning block.
			if strings.Contains(trimmed, ":") {
				inBlock = false
			}
		}
	}
	return reasoning
}

func splitItems(value string) []string {
	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		item := strings.TrimSpace(part)
		if item != "" && !strings.EqualFold(item, "none") {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return nil
	}
	return items
}

func clampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
