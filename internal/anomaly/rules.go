package anomaly

import (
	"fmt"
	"math"

	"github.com/Alias1177/Guardian/models"
)

// RuleConfig holds the threshold rules evaluated for every observation
type RuleConfig struct {
	MinCount        int64   // below = possible outage
	MaxSpike        float64 // multiple of the running mean
	DropThreshold   float64 // fraction of the running mean
	ZScoreThreshold float64
	SuccessAuthCode string
}

func DefaultRuleConfig() RuleConfig {
	return RuleConfig{
		MinCount:        50,
		MaxSpike:        2.0,
		DropThreshold:   0.5,
		ZScoreThreshold: 2.5,
		SuccessAuthCode: "00",
	}
}

// EvaluateRules returns the violated rules in evaluation order.
// The order is significant: classification and rate-limit keys depend on it.
func EvaluateRules(volume int64, status models.Status, authCode string, baseline models.Baseline, zscore float64, cfg RuleConfig) []models.Violation {
	var violations []models.Violation
	v := float64(volume)

	if volume < cfg.MinCount {
		violations = append(violations, models.Violation{
			Kind:    models.ViolationLowVolume,
			Message: fmt.Sprintf("LOW_VOLUME: %d < %d (possible outage)", volume, cfg.MinCount),
			Value:   v,
		})
	}

	if baseline.Mean > 0 && v > baseline.Mean*cfg.MaxSpike {
		violations = append(violations, models.Violation{
			Kind:    models.ViolationSpike,
			Message: fmt.Sprintf("VOLUME_SPIKE: %d > %.1fx mean (%.0f)", volume, cfg.MaxSpike, baseline.Mean),
			Value:   v,
		})
	}

	if baseline.Mean > 0 && v < baseline.Mean*cfg.DropThreshold {
		violations = append(violations, models.Violation{
			Kind:    models.ViolationDrop,
			Message: fmt.Sprintf("VOLUME_DROP: %d < %.0f%% of mean (%.0f)", volume, cfg.DropThreshold*100, baseline.Mean),
			Value:   v,
		})
	}

	switch status {
	case models.StatusDenied:
		violations = append(violations, models.Violation{Kind: models.ViolationDenied, Message: "DENIED: transaction denied", Value: v})
	case models.StatusFailed:
		violations = append(violations, models.Violation{Kind: models.ViolationFailed, Message: "FAILED: transaction failed", Value: v})
	case models.StatusReversed:
		violations = append(violations, models.Violation{Kind: models.ViolationReversed, Message: "REVERSED: transaction reversed", Value: v})
	}

	if authCode != cfg.SuccessAuthCode {
		violations = append(violations, models.Violation{
			Kind:    models.ViolationAuthError,
			Message: fmt.Sprintf("AUTH_ERROR: code %s indicates an error", authCode),
		})
	}

	if math.Abs(zscore) > cfg.ZScoreThreshold {
		violations = append(violations, models.Violation{
			Kind:    models.ViolationZScore,
			Message: fmt.Sprintf("ZSCORE: %.2f exceeds threshold %.1f", zscore, cfg.ZScoreThreshold),
			Value:   zscore,
		})
	}

	return violations
}
