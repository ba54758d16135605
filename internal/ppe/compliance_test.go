package ppe

import (
	"reflect"
	"testing"
)

func det(class string, conf float64) Detection {
	return Detection{Class: class, Confidence: conf}
}

func TestEvaluate(t *testing.T) {
	required := []string{"helmet", "vest", "gloves"}

	tests := []struct {
		name           string
		required       []string
		detections     []Detection
		wantCompliant  bool
		wantDetected   []string
		wantViolations []string
	}{
		{
			name:          "all required present",
			required:      required,
			detections:    []Detection{det("Hardhat", 0.91), det("Safety Vest", 0.82), det("Gloves", 0.7)},
			wantCompliant: true,
			wantDetected:  []string{"helmet", "vest", "gloves"},
		},
		{
			name:           "one missing item",
			required:       required,
			detections:     []Detection{det("helmet", 0.9), det("vest", 0.8)},
			wantCompliant:  false,
			wantDetected:   []string{"helmet", "vest"},
			wantViolations: []string{"no_gloves"},
		},
		{
			name:           "only helmet detected",
			required:       required,
			detections:     []Detection{det("helmet", 0.9)},
			wantCompliant:  false,
			wantDetected:   []string{"helmet"},
			wantViolations: []string{"no_vest", "no_gloves"},
		},
		{
			name:           "explicit negative class",
			required:       required,
			detections:     []Detection{det("NO-Hardhat", 0.88), det("vest", 0.8), det("gloves", 0.75)},
			wantCompliant:  false,
			wantDetected:   []string{"vest", "gloves"},
			wantViolations: []string{"no_helmet"},
		},
		{
			name:           "low confidence ignored",
			required:       required,
			detections:     []Detection{det("helmet", 0.49), det("vest", 0.8), det("gloves", 0.75)},
			wantCompliant:  false,
			wantDetected:   []string{"vest", "gloves"},
			wantViolations: []string{"no_helmet"},
		},
		{
			name:          "person and unknown classes skipped",
			required:      []string{"helmet"},
			detections:    []Detection{det("person", 0.99), det("forklift", 0.9), det("helmet", 0.9)},
			wantCompliant: true,
			wantDetected:  []string{"helmet"},
		},
		{
			name:          "duplicate detections deduped",
			required:      []string{"helmet"},
			detections:    []Detection{det("helmet", 0.9), det("hardhat", 0.85), det("Helmet", 0.7)},
			wantCompliant: true,
			wantDetected:  []string{"helmet"},
		},
		{
			name:           "negative class wins over absence",
			required:       []string{"helmet", "vest"},
			detections:     []Detection{det("no_vest", 0.9), det("helmet", 0.9)},
			wantCompliant:  false,
			wantDetected:   []string{"helmet"},
			wantViolations: []string{"no_vest"},
		},
		{
			name:           "no detections at all",
			required:       required,
			detections:     nil,
			wantCompliant:  false,
			wantViolations: []string{"no_helmet", "no_vest", "no_gloves"},
		},
		{
			name:          "empty required set is trivially compliant",
			required:      nil,
			detections:    nil,
			wantCompliant: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Evaluate(tc.required, tc.detections)
			if got.Compliant != tc.wantCompliant {
				t.Errorf("Compliant = %v, want %v", got.Compliant, tc.wantCompliant)
			}
			if !reflect.DeepEqual(got.Detected, tc.wantDetected) {
				t.Errorf("Detected = %v, want %v", got.Detected, tc.wantDetected)
			}
			if !reflect.DeepEqual(got.Violations, tc.wantViolations) {
				t.Errorf("Violations = %v, want %v", got.Violations, tc.wantViolations)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		raw           string
		wantItem      string
		wantViolation bool
		wantOK        bool
	}{
		{"Hardhat", "helmet", false, true},
		{"safety vest", "vest", false, true},
		{"Safety-Vest", "vest", false, true},
		{"NO-Hardhat", "helmet", true, true},
		{"no_gloves", "gloves", true, true},
		{"shoes", "boots", false, true},
		{"forklift", "", false, false},
		{"  Mask  ", "mask", false, true},
	}
	for _, tc := range tests {
		item, violation, ok := normalize(tc.raw)
		if item != tc.wantItem || violation != tc.wantViolation || ok != tc.wantOK {
			t.Errorf("normalize(%q) = (%q, %v, %v), want (%q, %v, %v)",
				tc.raw, item, violation, ok, tc.wantItem, tc.wantViolation, tc.wantOK)
		}
	}
}

func TestUnavailable(t *testing.T) {
	got := Unavailable()
	if got.Compliant {
		t.Error("unavailable verdict must be non-compliant")
	}
	if len(got.Violations) != 1 || got.Violations[0] != ViolationServiceUnavailable {
		t.Errorf("Violations = %v, want [%s]", got.Violations, ViolationServiceUnavailable)
	}
}
