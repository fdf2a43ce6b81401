package anomaly

import "math"

// FusionConfig weights the learned score against the capped z-score term
type FusionConfig struct {
	MLWeight float64
	ZWeight  float64
	ZDivisor float64 // |z| at which the statistical term saturates
}

func DefaultFusionConfig() FusionConfig {
	return FusionConfig{MLWeight: 0.6, ZWeight: 0.4, ZDivisor: 3}
}

// FuseScore combines an optional outlier score with the z-score into [0,1]
func FuseScore(mlScore float64, mlAvailable bool, zscore float64, cfg FusionConfig) float64 {
	zTerm := 0.0
	if cfg.ZDivisor > 0 {
		zTerm = math.Min(math.Abs(zscore)/cfg.ZDivisor, 1)
	}

	if !mlAvailable {
		return zTerm
	}

	fused := cfg.MLWeight*clamp01(mlScore) + cfg.ZWeight*zTerm
	return clamp01(fused)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
