package calculate

import (
	"math"

	"github.com/Alias1177/Guardian/models"
)

// Tracker defaults
const (
	DefaultAlpha    = 0.1
	DefaultSeedMean = 100.0
	DefaultSeedStd  = 20.0
	DefaultStdFloor = 1.0
	DefaultWarmUp   = 10
)

// TrackerConfig tunes the exponentially weighted baseline
type TrackerConfig struct {
	Alpha    float64
	SeedMean float64
	SeedStd  float64
	StdFloor float64
	WarmUp   int // observations seen before smoothing starts
}

func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		Alpha:    DefaultAlpha,
		SeedMean: DefaultSeedMean,
		SeedStd:  DefaultSeedStd,
		StdFloor: DefaultStdFloor,
		WarmUp:   DefaultWarmUp,
	}
}

// Tracker keeps an EMA mean and standard deviation of observed volume.
// It holds no lock; the owning detector serializes access.
type Tracker struct {
	cfg   TrackerConfig
	mean  float64
	std   float64
	count int
}

func NewTracker(cfg TrackerConfig) *Tracker {
	t := &Tracker{cfg: cfg}
	t.Reset()
	return t
}

// Update counts the observation and, once the warm-up is over, folds it into the baseline
func (t *Tracker) Update(volume float64) {
	t.count++
	if t.count <= t.cfg.WarmUp {
		return
	}

	a := t.cfg.Alpha
	t.mean = (1-a)*t.mean + a*volume
	deviation := volume - t.mean
	variance := (1-a)*t.std*t.std + a*deviation*deviation
	t.std = math.Max(math.Sqrt(variance), t.cfg.StdFloor)
}

// ZScore is 0 when the deviation is undefined
func (t *Tracker) ZScore(volume float64) float64 {
	if t.std == 0 {
		return 0
	}
	return (volume - t.mean) / t.std
}

func (t *Tracker) Baseline() models.Baseline {
	return models.Baseline{Mean: t.mean, Std: t.std}
}

func (t *Tracker) Count() int { return t.count }

// Warm reports whether smoothing has started
func (t *Tracker) Warm() bool { return t.count > t.cfg.WarmUp }

func (t *Tracker) Reset() {
	t.mean = t.cfg.SeedMean
	t.std = t.cfg.SeedStd
	t.count = 0
}
