package domain

import (
	"errors"
	"testing"
)

func TestUrgencyLevelConstants(t *testing.T) {
	tests := []struct {
		name     string
		value    UrgencyLevel
		expected string
	}{
		{"Low", URGENCY_LOW, "low"},
		{"Moderate", URGENCY_MODERATE, "moderate"},
		{"High", URGENCY_HIGH, "high"},
		{"Critical", URGENCY_CRITICAL, "critical"},
		{"Emergency", URGENCY_EMERGENCY, "emergency"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if string(tt.value) != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, string(tt.value))
			}
			if !tt.value.IsValid() {
				t.Errorf("Expected %s to be valid", tt.value)
			}
		})
	}

	if UrgencyLevel("urgent").IsValid() {
		t.Error("Expected unknown urgency to be invalid")
	}
}

func TestUrgencyLevelElevation(t *testing.T) {
	tests := []struct {
		value      UrgencyLevel
		isElevated bool
		isCritical bool
	}{
		{URGENCY_LOW, false, false},
		{URGENCY_MODERATE, false, false},
		{URGENCY_HIGH, true, false},
		{URGENCY_CRITICAL, true, true},
		{URGENCY_EMERGENCY, true, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.value), func(t *testing.T) {
			if tt.value.IsElevated() != tt.isElevated {
				t.Errorf("IsElevated(%s): expected %v", tt.value, tt.isElevated)
			}
			if tt.value.IsCritical() != tt.isCritical {
				t.Errorf("IsCritical(%s): expected %v", tt.value, tt.isCritical)
			}
		})
	}
}

func TestAgentSpecializationConstants(t *testing.T) {
	tests := []struct {
		name     string
		value    AgentSpecialization
		expected string
	}{
		{"Cardiology", CARDIOLOGY, "cardiology"},
		{"Neurology", NEUROLOGY, "neurology"},
		{"Pulmonology", PULMONOLOGY, "pulmonology"},
		{"Emergency Medicine", EMERGENCY_MEDICINE, "emergency"},
		{"Pediatrics", PEDIATRICS, "pediatrics"},
		{"Infectious Disease", INFECTIOUS_DISEASE, "infectious_disease"},
		{"Psychiatry", PSYCHIATRY, "psychiatry"},
		{"Orthopedics", ORTHOPEDICS, "orthopedics"},
		{"General Medicine", GENERAL_MEDICINE, "general_medicine"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if string(tt.value) != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, string(tt.value))
			}
			if !tt.value.IsValid() {
				t.Errorf("Expected %s to be valid", tt.value)
			}
		})
	}

	if AgentSpecialization("dermatology").IsValid() {
		t.Error("Expected unknown specialization to be invalid")
	}
}

func TestTriageCategorySeverity(t *testing.T) {
	ordered := []TriageCategory{TRIAGE_BLUE, TRIAGE_GREEN, TRIAGE_YELLOW, TRIAGE_ORANGE, TRIAGE_RED}
	for i := 1; i < len(ordered); i++ {
		if ordered[i].Severity() <= ordered[i-1].Severity() {
			t.Errorf("Expected %s to outrank %s", ordered[i], ordered[i-1])
		}
	}
}

func TestDiagnosisRequestValidate(t *testing.T) {
	tests := []struct {
		name      string
		request   DiagnosisRequest
		wantErr   bool
		wantField string
	}{
		{
			name: "valid with symptoms",
			request: DiagnosisRequest{
				RequestID:    "req-1",
				Symptoms:     []string{"chest pain"},
				UrgencyLevel: URGENCY_HIGH,
			},
			wantErr: false,
		},
		{
			name: "valid with history only",
			request: DiagnosisRequest{
				RequestID:      "req-2",
				MedicalHistory: []string{"diabetes"},
				UrgencyLevel:   URGENCY_LOW,
			},
			wantErr: false,
		},
		{
			name: "missing request ID",
			request: DiagnosisRequest{
				Symptoms:     []string{"headache"},
				UrgencyLevel: URGENCY_LOW,
			},
			wantErr:   true,
			wantField: "request_id",
		},
		{
			name: "invalid urgency",
			request: DiagnosisRequest{
				RequestID:    "req-3",
				Symptoms:     []string{"headache"},
				UrgencyLevel: "urgent",
			},
			wantErr:   true,
			wantField: "urgency_level",
		},
		{
			name: "no symptoms or history",
			request: DiagnosisRequest{
				RequestID:    "req-4",
				UrgencyLevel: URGENCY_LOW,
			},
			wantErr:   true,
			wantField: "symptoms",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.request.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr {
				return
			}
			var validationErr *ValidationError
			if !errors.As(err, &validationErr) {
				t.Fatalf("Expected a ValidationError, got %v", err)
			}
			if validationErr.Field != tt.wantField {
				t.Errorf("Expected field %q, got %q", tt.wantField, validationErr.Field)
			}
		})
	}
}

func TestAgentDiagnosisValidate(t *testing.T) {
	valid := AgentDiagnosis{
		AgentSpecialization: CARDIOLOGY,
		PrimaryDiagnosis:    "Angina",
		ConfidenceScore:     0.8,
	}
	if err := valid.Validate(); err != nil {
		t.Errorf("Expected valid diagnosis, got %v", err)
	}

	outOfRange := valid
	outOfRange.ConfidenceScore = 1.5
	if err := outOfRange.Validate(); err == nil {
		t.Error("Expected out-of-range confidence to fail validation")
	}

	badSpec := valid
	badSpec.AgentSpecialization = "dermatology"
	if err := badSpec.Validate(); err == nil {
		t.Error("Expected unknown specialization to fail validation")
	}
}

func TestConsolidatedDiagnosisSafetyWarnings(t *testing.T) {
	diagnosis := &ConsolidatedDiagnosis{}
	if warnings := diagnosis.SafetyWarnings(); len(warnings) != 0 {
		t.Errorf("Expected no warnings, got %v", warnings)
	}

	diagnosis.AppendSafetyWarning("first")
	diagnosis.AppendSafetyWarning("second")

	warnings := diagnosis.SafetyWarnings()
	if len(warnings) != 2 || warnings[0] != "first" || warnings[1] != "second" {
		t.Errorf("Expected [first second], got %v", warnings)
	}
}

func TestDiagnosisRequestPatientAge(t *testing.T) {
	request := DiagnosisRequest{
		PatientData: map[string]any{"age": 42.0},
	}
	age, ok := request.PatientAge()
	if !ok || age != 42.0 {
		t.Errorf("Expected age 42, got %f (ok=%v)", age, ok)
	}

	noAge := DiagnosisRequest{}
	if _, ok := noAge.PatientAge(); ok {
		t.Error("Expected no age to be reported")
	}
}
