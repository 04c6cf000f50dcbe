package domain

import (
	"regexp"
	"strings"
)

// AgentCapability is the static capability profile of one specialization:
// the keyword, symptom, condition and emergency-indicator vocabularies the
// selector scores against, plus confidence threshold and consolidation vote
// weight. Treat as configuration, not computed state.
type AgentCapability struct {
	Keywords            []string
	Symptoms            []string
	Conditions          []string
	EmergencyIndicators []string
	ConfidenceThreshold float64
	VoteWeight          float64
}

// SpecializationOrder fixes the registry iteration order. Selection
// tie-breaking is stable by this insertion order, which keeps agent selection
// deterministic for identical requests.
var SpecializationOrder = []AgentSpecialization{
	EMERGENCY_MEDICINE,
	CARDIOLOGY,
	NEUROLOGY,
	PULMONOLOGY,
	INFECTIOUS_DISEASE,
	PEDIATRICS,
	PSYCHIATRY,
	ORTHOPEDICS,
	GENERAL_MEDICINE,
}

// CapabilityRegistry is the static per-specialization capability table.
var CapabilityRegistry = map[AgentSpecialization]AgentCapability{
	EMERGENCY_MEDICINE: {
		Keywords: []string{"emergency", "acute", "trauma", "critical", "resuscitation", "triage"},
		Symptoms: []string{"unresponsive", "severe bleeding", "chest pain", "difficulty breathing",
			"loss of consciousness", "severe pain", "seizure"},
		Conditions: []string{"cardiac arrest", "shock", "sepsis", "anaphylaxis", "major trauma",
			"respiratory failure", "overdose"},
		EmergencyIndicators: []string{"unresponsive", "not breathing", "no pulse", "severe bleeding",
			"anaphylaxis", "cardiac arrest", "stroke symptoms"},
		ConfidenceThreshold: 0.6,
		VoteWeight:          1.0,
	},
	CARDIOLOGY: {
		Keywords: []string{"heart", "cardiac", "cardiovascular", "coronary", "arrhythmia", "ecg"},
		Symptoms: []string{"chest pain", "palpitations", "shortness of breath", "syncope",
			"edema", "fatigue", "radiating pain"},
		Conditions: []string{"myocardial infarction", "heart failure", "atrial fibrillation",
			"angina", "hypertension", "valvular disease", "pericarditis"},
		EmergencyIndicators: []string{"crushing chest pain", "radiating pain", "st elevation",
			"cardiac arrest", "ventricular tachycardia"},
		ConfidenceThreshold: 0.7,
		VoteWeight:          0.95,
	},
	NEUROLOGY: {
		Keywords: []string{"brain", "neurological", "nerve", "cognitive", "motor", "sensory"},
		Symptoms: []string{"headache", "dizziness", "numbness", "weakness", "confusion",
			"vision changes", "slurred speech", "tremor"},
		Conditions: []string{"stroke", "seizure disorder", "migraine", "multiple sclerosis",
			"parkinson", "neuropathy", "meningitis"},
		EmergencyIndicators: []string{"facial droop", "slurred speech", "sudden weakness",
			"worst headache of life", "status epilepticus"},
		ConfidenceThreshold: 0.7,
		VoteWeight:          0.9,
	},
	PULMONOLOGY: {
		Keywords: []string{"lung", "respiratory", "pulmonary", "airway", "breathing", "oxygen"},
		Symptoms: []string{"cough", "shortness of breath", "wheezing", "hemoptysis",
			"chest tightness", "sputum production"},
		Conditions: []string{"asthma", "copd", "pneumonia", "pulmonary embolism",
			"pleural effusion", "lung cancer", "tuberculosis"},
		EmergencyIndicators: []string{"severe dyspnea", "cyanosis", "respiratory failure",
			"massive hemoptysis", "tension pneumothorax"},
		ConfidenceThreshold: 0.7,
		VoteWeight:          0.9,
	},
	INFECTIOUS_DISEASE: {
		Keywords: []string{"infection", "fever", "bacterial", "viral", "antibiotic", "sepsis"},
		Symptoms: []string{"fever", "chills", "night sweats", "rash", "lymphadenopathy",
			"malaise", "myalgia"},
		Conditions: []string{"sepsis", "pneumonia", "urinary tract infection", "cellulitis",
			"endocarditis", "meningitis", "covid"},
		EmergencyIndicators: []string{"septic shock", "high fever with rash", "neck stiffness",
			"necrotizing infection"},
		ConfidenceThreshold: 0.7,
		VoteWeight:          0.85,
	},
	PEDIATRICS: {
		Keywords: []string{"child", "infant", "pediatric", "newborn", "adolescent", "growth"},
		Symptoms: []string{"fever", "irritability", "poor feeding", "rash", "vomiting",
			"developmental delay", "dehydration"},
		Conditions: []string{"croup", "bronchiolitis", "otitis media", "febrile seizure",
			"kawasaki disease", "intussusception"},
		EmergencyIndicators: []string{"lethargy in infant", "bulging fontanelle", "petechial rash",
			"severe dehydration"},
		ConfidenceThreshold: 0.7,
		VoteWeight:          0.85,
	},
	PSYCHIATRY: {
		Keywords: []string{"mental", "psychiatric", "mood", "behavior", "anxiety", "psychosis"},
		Symptoms: []string{"depression", "anxiety", "hallucinations", "insomnia",
			"suicidal ideation", "agitation", "panic"},
		Conditions: []string{"major depression", "bipolar disorder", "schizophrenia",
			"panic disorder", "ptsd", "substance use disorder"},
		EmergencyIndicators: []string{"suicidal ideation", "homicidal ideation", "acute psychosis",
			"catatonia"},
		ConfidenceThreshold: 0.7,
		VoteWeight:          0.8,
	},
	ORTHOPEDICS: {
		Keywords: []string{"bone", "joint", "fracture", "musculoskeletal", "spine", "ligament"},
		Symptoms: []string{"joint pain", "swelling", "limited range of motion", "back pain",
			"deformity", "instability"},
		Conditions: []string{"fracture", "osteoarthritis", "dislocation", "tendinitis",
			"herniated disc", "osteomyelitis"},
		EmergencyIndicators: []string{"open fracture", "compartment syndrome", "cauda equina",
			"neurovascular compromise"},
		ConfidenceThreshold: 0.7,
		VoteWeight:          0.8,
	},
	GENERAL_MEDICINE: {
		Keywords: []string{"general", "primary care", "chronic", "screening", "wellness", "fatigue"},
		Symptoms: []string{"fatigue", "weight loss", "nausea", "abdominal pain", "headache",
			"dizziness", "fever"},
		Conditions: []string{"diabetes", "hypertension", "hyperlipidemia", "anemia",
			"thyroid disorder", "gastroenteritis"},
		EmergencyIndicators: []string{"altered mental status", "severe abdominal pain",
			"uncontrolled bleeding"},
		ConfidenceThreshold: 0.6,
		VoteWeight:          0.75,
	},
}

// UrgencyBaseScores maps requested urgency to the base component of the
// emergency score.
var UrgencyBaseScores = map[UrgencyLevel]float64{
	URGENCY_LOW:       0.1,
	URGENCY_MODERATE:  0.3,
	URGENCY_HIGH:      0.6,
	URGENCY_CRITICAL:  0.85,
	URGENCY_EMERGENCY: 1.0,
}

// CriticalConditionKeywords force RED triage regardless of the computed
// emergency score when matched against the primary diagnosis. Matching is
// word-bounded so abbreviations like "mi" never match inside other words.
var CriticalConditionKeywords = []string{
	"myocardial infarction",
	"mi",
	"stroke",
	"cardiac arrest",
	"respiratory failure",
	"severe trauma",
	"septic shock",
	"anaphylaxis",
}

var criticalConditionPatterns = compileKeywordPatterns(CriticalConditionKeywords)

func compileKeywordPatterns(keywords []string) []*regexp.Regexp {
	patterns := make([]*regexp.Regexp, len(keywords))
	for i, keyword := range keywords {
		patterns[i] = regexp.MustCompile(`\b` + regexp.QuoteMeta(keyword) + `\b`)
	}
	return patterns
}

// MatchesCriticalCondition reports whether the text names a critical
// condition requiring immediate response.
func MatchesCriticalCondition(text string) bool {
	lower := strings.ToLower(text)
	for _, pattern := range criticalConditionPatterns {
		if pattern.MatchString(lower) {
			return true
		}
	}
	return false
}

// RareConditionKeywords raise the clinical uncertainty component when they
// appear in any agent's diagnosis text.
var RareConditionKeywords = []string{"syndrome", "rare", "atypical", "unusual"}

// EmergencyActionKeywords identify actions that are front-loaded when the
// emergency score indicates an urgent situation.
var EmergencyActionKeywords = []string{
	"call 911",
	"administer oxygen",
	"obtain ecg",
	"start cpr",
	"establish iv access",
	"activate stroke team",
	"administer epinephrine",
}

// AllEmergencyIndicators returns the deduplicated union of every
// specialization's emergency-indicator vocabulary, in registry order.
func AllEmergencyIndicators() []string {
	seen := make(map[string]bool)
	var indicators []string
	for _, spec := range SpecializationOrder {
		for _, ind := range CapabilityRegistry[spec].EmergencyIndicators {
			if !seen[ind] {
				seen[ind] = true
				indicators = append(indicators, ind)
			}
		}
	}
	return indicators
}

// VoteWeight returns the consolidation vote weight for a specialization,
// defaulting to the general medicine weight for unknown entries.
func VoteWeight(spec AgentSpecialization) float64 {
	if profile, ok := CapabilityRegistry[spec]; ok {
		return profile.VoteWeight
	}
	return CapabilityRegistry[GENERAL_MEDICINE].VoteWeight
}
