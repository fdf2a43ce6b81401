package patterns

import (
	"sync"
	"time"

	"github.com/Alias1177/Guardian/internal/calculate"
	"github.com/Alias1177/Guardian/internal/utils"
	"github.com/Alias1177/Guardian/models"
)

const (
	// BucketSize is the number of samples kept per hour and weekday bucket
	BucketSize = 100
	// MinSamples a bucket needs before its own statistics replace the default baseline
	MinSamples = 5
	// HistorySize bounds the raw observations used for trend fitting
	HistorySize = 1000

	DefaultMean = 100.0
	DefaultStd  = 30.0
)

// DefaultBaseline substitutes for buckets that have not seen enough samples
var DefaultBaseline = models.Baseline{Mean: DefaultMean, Std: DefaultStd}

// Point is one raw observation kept for trend fitting
type Point struct {
	Timestamp time.Time
	Volume    float64
}

// Tracker accumulates volume samples per hour of day and per weekday
type Tracker struct {
	mu      sync.RWMutex
	hourly  [24]*utils.Ring[float64]
	daily   [7]*utils.Ring[float64]
	history *utils.Ring[Point]
}

func NewTracker() *Tracker {
	t := &Tracker{history: utils.NewRing[Point](HistorySize)}
	for i := range t.hourly {
		t.hourly[i] = utils.NewRing[float64](BucketSize)
	}
	for i := range t.daily {
		t.daily[i] = utils.NewRing[float64](BucketSize)
	}
	return t
}

// Observe files the volume under the hour and weekday of ts
func (t *Tracker) Observe(ts time.Time, volume float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.hourly[ts.Hour()].Push(volume)
	t.daily[ts.Weekday()].Push(volume)
	t.history.Push(Point{Timestamp: ts, Volume: volume})
}

// HourlyBaseline returns the mean and population std for an hour 0-23
func (t *Tracker) HourlyBaseline(hour int) models.Baseline {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if hour < 0 || hour >= len(t.hourly) {
		return DefaultBaseline
	}
	return baseline(t.hourly[hour])
}

// DailyBaseline returns the mean and population std for a weekday
func (t *Tracker) DailyBaseline(day time.Weekday) models.Baseline {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if day < time.Sunday || day > time.Saturday {
		return DefaultBaseline
	}
	return baseline(t.daily[day])
}

func baseline(r *utils.Ring[float64]) models.Baseline {
	if r.Len() < MinSamples {
		return DefaultBaseline
	}
	mean, std := calculate.MeanStd(r.Values())
	return models.Baseline{Mean: mean, Std: std}
}

// HourSamples returns a copy of an hour bucket, oldest first
func (t *Tracker) HourSamples(hour int) []float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if hour < 0 || hour >= len(t.hourly) {
		return nil
	}
	return t.hourly[hour].Values()
}

// DaySamples returns a copy of a weekday bucket, oldest first
func (t *Tracker) DaySamples(day time.Weekday) []float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if day < time.Sunday || day > time.Saturday {
		return nil
	}
	return t.daily[day].Values()
}

// HourCount is the number of samples in an hour bucket
func (t *Tracker) HourCount(hour int) int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if hour < 0 || hour >= len(t.hourly) {
		return 0
	}
	return t.hourly[hour].Len()
}

// RecentVolumes returns up to n of the newest raw volumes, oldest first
func (t *Tracker) RecentVolumes(n int) []float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	points := t.history.Last(n)
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.Volume
	}
	return out
}

// Coverage counts the hour and weekday buckets holding at least MinSamples
func (t *Tracker) Coverage() (hours, days int) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, r := range t.hourly {
		if r.Len() >= MinSamples {
			hours++
		}
	}
	for _, r := range t.daily {
		if r.Len() >= MinSamples {
			days++
		}
	}
	return hours, days
}

// Len is the number of raw observations retained
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.history.Len()
}

func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, r := range t.hourly {
		r.Reset()
	}
	for _, r := range t.daily {
		r.Reset()
	}
	t.history.Reset()
}
