package anomaly

import "github.com/Alias1177/Guardian/models"

// ClassifierConfig sets the score cut-offs for each severity
type ClassifierConfig struct {
	MLThreshold   float64 // WARNING above this fused score
	CriticalScore float64 // CRITICAL above this fused score
	SevereCount   int     // CRITICAL with at least this many severe violations
}

func DefaultClassifierConfig() ClassifierConfig {
	return ClassifierConfig{MLThreshold: 0.7, CriticalScore: 0.85, SevereCount: 2}
}

var severeKinds = map[models.ViolationKind]bool{
	models.ViolationFailed:    true,
	models.ViolationLowVolume: true,
	models.ViolationDrop:      true,
	models.ViolationAuthError: true,
}

// IsSevere reports whether the violation counts towards the critical threshold
func IsSevere(v models.Violation) bool {
	return severeKinds[v.Kind]
}

// Classify maps a fused score and the violation list to a severity
func Classify(score float64, violations []models.Violation, cfg ClassifierConfig) models.Severity {
	severe := 0
	for _, v := range violations {
		if IsSevere(v) {
			severe++
		}
	}

	switch {
	case score > cfg.CriticalScore || severe >= cfg.SevereCount:
		return models.SeverityCritical
	case score > cfg.MLThreshold || len(violations) >= 1:
		return models.SeverityWarning
	}
	return models.SeverityNormal
}

func hasKind(violations []models.Violation, kinds ...models.ViolationKind) bool {
	for _, v := range violations {
		for _, k := range kinds {
			if v.Kind == k {
				return true
			}
		}
	}
	return false
}

// Recommend returns operator guidance for the severity and violation categories
func Recommend(severity models.Severity, violations []models.Violation) string {
	switch severity {
	case models.SeverityCritical:
		switch {
		case hasKind(violations, models.ViolationLowVolume, models.ViolationDrop):
			return "CRITICAL: possible outage. Check gateway connectivity immediately."
		case hasKind(violations, models.ViolationFailed):
			return "CRITICAL: high failure rate. Investigate the payment processor."
		case hasKind(violations, models.ViolationAuthError):
			return "CRITICAL: authorization errors. Check the acquirer connection."
		case hasKind(violations, models.ViolationSpike):
			return "CRITICAL: volume spike. Verify capacity and rule out abusive traffic."
		}
		return "CRITICAL: multiple anomalies. Immediate investigation required."

	case models.SeverityWarning:
		switch {
		case hasKind(violations, models.ViolationSpike):
			return "WARNING: volume spike. Watch for overload or legitimate peak traffic."
		case hasKind(violations, models.ViolationDenied):
			return "WARNING: elevated denials. Review fraud patterns."
		case hasKind(violations, models.ViolationLowVolume, models.ViolationDrop):
			return "WARNING: volume below expectation. Check gateway connectivity."
		case hasKind(violations, models.ViolationFailed):
			return "WARNING: failed transactions. Check the payment processor."
		case hasKind(violations, models.ViolationAuthError):
			return "WARNING: authorization error. Check the acquirer connection."
		}
		return "WARNING: anomaly detected. Keep monitoring."
	}

	return "NORMAL: metrics within expected parameters."
}
