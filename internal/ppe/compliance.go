// Package ppe evaluates personal protective equipment compliance from
// object-detection output.
package ppe

import "strings"

// ConfidenceThreshold filters out low-confidence detections.
const ConfidenceThreshold = 0.5

// ViolationServiceUnavailable is recorded when the detection service could
// not be reached; the worker is treated as non-compliant, not rejected.
const ViolationServiceUnavailable = "ppe_service_unavailable"

// violationPrefix marks negative detection classes and synthesized
// missing-item violations.
const violationPrefix = "no_"

// classNames maps raw model class names (normalized to lowercase with
// underscores) to the vocabulary used in requirements and reports.
var classNames = map[string]string{
	"hardhat":     "helmet",
	"helmet":      "helmet",
	"safety_vest": "vest",
	"vest":        "vest",
	"gloves":      "gloves",
	"glove":       "gloves",
	"mask":        "mask",
	"goggles":     "goggles",
	"boots":       "boots",
	"shoes":       "boots",
	"suit":        "suit",
	"person":      "person",
}

// Detection is one scored bounding box from the detector.
type Detection struct {
	Class      string     `json:"class"`
	Confidence float64    `json:"confidence"`
	Box        [4]float64 `json:"box"`
}

// Compliance is the verdict for one frame against the required set.
type Compliance struct {
	Compliant  bool     `json:"compliant"`
	Detected   []string `json:"detected"`
	Violations []string `json:"violations"`
}

// normalize lowercases a raw class name and squashes separators, then maps
// it through the class dictionary. The violation flag is set for classes in
// their negative form (no_helmet, NO-Hardhat, ...).
func normalize(raw string) (item string, violation, ok bool) {
	name := strings.ToLower(strings.TrimSpace(raw))
	name = strings.ReplaceAll(name, "-", "_")
	name = strings.ReplaceAll(name, " ", "_")

	if strings.HasPrefix(name, violationPrefix) {
		violation = true
		name = strings.TrimPrefix(name, violationPrefix)
	}
	mapped, known := classNames[name]
	if !known {
		return "", false, false
	}
	return mapped, violation, true
}

// Evaluate computes the compliance verdict. Compliant iff no violation was
// detected and every required item appears in the positively-detected set;
// each missing required item synthesizes a "no_<item>" violation. Violations
// keep detector order first, then required-set order for missing items.
func Evaluate(required []string, detections []Detection) Compliance {
	detected := map[string]bool{}
	violated := map[string]bool{}
	var detectedList, violations []string

	for _, d := range detections {
		if d.Confidence < ConfidenceThreshold {
			continue
		}
		item, violation, ok := normalize(d.Class)
		if !ok || item == "person" {
			continue
		}
		if violation {
			if !violated[item] {
				violated[item] = true
				violations = append(violations, violationPrefix+item)
			}
			continue
		}
		if !detected[item] {
			detected[item] = true
			detectedList = append(detectedList, item)
		}
	}

	for _, item := range required {
		if !detected[item] && !violated[item] {
			violated[item] = true
			violations = append(violations, violationPrefix+item)
		}
	}

	return Compliance{
		Compliant:  len(violations) == 0,
		Detected:   detectedList,
		Violations: violations,
	}
}

// Unavailable is the degraded verdict used when detection cannot run.
func Unavailable() Compliance {
	return Compliance{
		Compliant:  false,
		Violations: []string{ViolationServiceUnavailable},
	}
}
