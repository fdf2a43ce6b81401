package anomaly

import (
	"context"
	"errors"
	"sync"

	"github.com/Alias1177/Guardian/internal/calculate"
	"github.com/Alias1177/Guardian/internal/metrics"
	"github.com/Alias1177/Guardian/internal/utils"
	"github.com/Alias1177/Guardian/models"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// Config tunes the detector and the stages it orchestrates
type Config struct {
	Tracker    calculate.TrackerConfig
	Rules      RuleConfig
	Fusion     FusionConfig
	Classifier ClassifierConfig

	HistorySize      int // bounded volume/status history
	MinScorerSamples int // recent volumes needed before the scorer is consulted
	ApprovalWindow   int // trailing statuses used for the approval rate
}

func DefaultConfig() Config {
	return Config{
		Tracker:          calculate.DefaultTrackerConfig(),
		Rules:            DefaultRuleConfig(),
		Fusion:           DefaultFusionConfig(),
		Classifier:       DefaultClassifierConfig(),
		HistorySize:      500,
		MinScorerSamples: 20,
		ApprovalWindow:   30,
	}
}

// Detector scores observations against an online baseline.
// Analyze mutates the baseline, so calls are serialized.
type Detector struct {
	mu       sync.Mutex
	cfg      Config
	tracker  *calculate.Tracker
	scorer   models.Scorer
	volumes  *utils.Ring[float64]
	statuses *utils.Ring[models.Status]
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

// NewDetector wires a detector; a nil scorer means rules and z-score only
func NewDetector(cfg Config, scorer models.Scorer, m *metrics.Metrics, logger zerolog.Logger) *Detector {
	if scorer == nil {
		scorer = NopScorer{}
	}
	if m == nil {
		m = metrics.NewMetrics(nil)
	}

	return &Detector{
		cfg:      cfg,
		tracker:  calculate.NewTracker(cfg.Tracker),
		scorer:   scorer,
		volumes:  utils.NewRing[float64](cfg.HistorySize),
		statuses: utils.NewRing[models.Status](cfg.HistorySize),
		metrics:  m,
		logger:   logger.With().Str("component", "anomaly_detector").Logger(),
	}
}

// Analyze runs one observation through tracker, scorer, rules, fusion and classification.
// recent holds the caller's latest volumes and feeds the learned scorer.
func (d *Detector) Analyze(ctx context.Context, obs models.Observation, recent []float64) models.DetectionResult {
	d.mu.Lock()
	defer d.mu.Unlock()

	volume := obs.Volume
	if volume < 0 {
		// never let a bad sample poison the baseline
		d.logger.Warn().Int64("volume", volume).Msg("Negative volume clamped to zero")
		volume = 0
	}
	v := float64(volume)

	d.volumes.Push(v)
	d.statuses.Push(obs.Status)
	d.tracker.Update(v)

	mlScore, mlAvailable := d.mlScore(ctx, v, recent)
	zscore := d.tracker.ZScore(v)
	baseline := d.tracker.Baseline()

	violations := EvaluateRules(volume, obs.Status, obs.AuthCode, baseline, zscore, d.cfg.Rules)
	score := FuseScore(mlScore, mlAvailable, zscore, d.cfg.Fusion)
	severity := Classify(score, violations, d.cfg.Classifier)

	result := models.DetectionResult{
		IsAnomaly:      severity != models.SeverityNormal,
		Severity:       severity,
		Score:          score,
		Violations:     violations,
		Recommendation: Recommend(severity, violations),
		Snapshot: models.Snapshot{
			Volume:       volume,
			RunningMean:  baseline.Mean,
			RunningStd:   baseline.Std,
			ZScore:       zscore,
			MLScore:      mlScore,
			ApprovalRate: d.approvalRate(),
			Status:       obs.Status,
			AuthCode:     obs.AuthCode,
		},
	}

	d.metrics.Observations.WithLabelValues(string(obs.Status)).Inc()
	d.metrics.RunningMean.Set(baseline.Mean)
	d.metrics.RunningStd.Set(baseline.Std)

	if result.IsAnomaly {
		d.metrics.Anomalies.WithLabelValues(severity.String()).Inc()
		d.logger.Warn().
			Str("severity", severity.String()).
			Float64("score", score).
			Int64("volume", volume).
			Strs("violations", result.ViolationMessages()).
			Msg("Anomaly detected")
	}

	return result
}

func (d *Detector) mlScore(ctx context.Context, volume float64, recent []float64) (float64, bool) {
	if len(recent) < d.cfg.MinScorerSamples {
		return 0, false
	}

	score, err := d.scorer.Score(ctx, volume, recent)
	if err != nil {
		reason := fallbackReason(err)
		d.metrics.ScorerFallbacks.WithLabelValues(reason).Inc()
		if reason != "unavailable" {
			d.logger.Warn().Err(err).Str("reason", reason).Msg("Scorer failed, using rules and z-score only")
		}
		return 0, false
	}

	return score, true
}

func fallbackReason(err error) string {
	switch {
	case errors.Is(err, models.ErrScorerUnavailable):
		return "unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return "open"
	}
	return "error"
}

func (d *Detector) approvalRate() float64 {
	recent := d.statuses.Last(d.cfg.ApprovalWindow)
	if len(recent) == 0 {
		return 0
	}

	approved := 0
	for _, s := range recent {
		if s == models.StatusApproved {
			approved++
		}
	}
	return float64(approved) / float64(len(recent))
}

// Baseline returns the current running mean and std
func (d *Detector) Baseline() models.Baseline {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tracker.Baseline()
}

// History returns the retained volumes, oldest first
func (d *Detector) History() []float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.volumes.Values()
}

// Reset restores seed statistics and empties history. Used for test isolation and operator resets.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.tracker.Reset()
	d.volumes.Reset()
	d.statuses.Reset()
	if r, ok := d.scorer.(resetter); ok {
		r.Reset()
	}
	d.logger.Info().Msg("Detector reset")
}
