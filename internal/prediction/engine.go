package prediction

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/Alias1177/Guardian/internal/calculate"
	"github.com/Alias1177/Guardian/internal/metrics"
	"github.com/Alias1177/Guardian/internal/patterns"
	"github.com/Alias1177/Guardian/internal/utils"
	"github.com/Alias1177/Guardian/models"
	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
)

// ErrInvalidHorizon is returned for forecasts shorter than one hour
var ErrInvalidHorizon = errors.New("forecast horizon must be at least one hour")

// Config holds the forecasting constants
type Config struct {
	HourlyWeight float64
	DailyWeight  float64

	TrendWindow    int     // raw observations used for the slope
	TrendThreshold float64 // volume change per sample
	TrendAdjust    float64

	HighWarning     float64
	ModerateWarning float64
	MaxConfidence   float64

	PeakFactor      float64
	LowFactor       float64
	PatternSamples  int // per hour bucket before it can be called peak or low
	ReadyAfter      int
	PredictionsSize int
}

func DefaultConfig() Config {
	return Config{
		HourlyWeight:    0.6,
		DailyWeight:     0.4,
		TrendWindow:     10,
		TrendThreshold:  2,
		TrendAdjust:     0.1,
		HighWarning:     0.7,
		ModerateWarning: 0.5,
		MaxConfidence:   0.95,
		PeakFactor:      1.3,
		LowFactor:       0.5,
		PatternSamples:  10,
		ReadyAfter:      50,
		PredictionsSize: 100,
	}
}

const (
	StateReady     = "ready"
	StateWarmingUp = "warming_up"
)

// Status summarises how much the engine has learned
type Status struct {
	Observations     int    `json:"observations"`
	PatternsDetected int    `json:"patterns_detected"`
	PredictionsMade  int    `json:"predictions_made"`
	HourlyCoverage   int    `json:"hourly_coverage"`
	DailyCoverage    int    `json:"daily_coverage"`
	State            string `json:"status"`
}

// Engine forecasts volume and alert probability from the pattern buckets
type Engine struct {
	cfg     Config
	tracker *patterns.Tracker
	clock   clock.Clock
	metrics *metrics.Metrics
	logger  zerolog.Logger

	mu          sync.Mutex
	predictions *utils.Ring[models.Prediction]
	detected    []models.Pattern
}

func NewEngine(cfg Config, tracker *patterns.Tracker, clk clock.Clock, m *metrics.Metrics, logger zerolog.Logger) *Engine {
	if clk == nil {
		clk = clock.New()
	}
	if m == nil {
		m = metrics.NewMetrics(nil)
	}

	return &Engine{
		cfg:         cfg,
		tracker:     tracker,
		clock:       clk,
		metrics:     m,
		logger:      logger.With().Str("component", "forecast_engine").Logger(),
		predictions: utils.NewRing[models.Prediction](cfg.PredictionsSize),
	}
}

// Predict forecasts the volume minutesAhead from now. Negative values are treated as zero.
func (e *Engine) Predict(minutesAhead int) models.Prediction {
	return e.predictAt(e.clock.Now(), max(minutesAhead, 0))
}

// Forecast predicts at 30 minute steps over the next hoursAhead hours
func (e *Engine) Forecast(ctx context.Context, hoursAhead int) ([]models.Prediction, error) {
	if hoursAhead < 1 {
		return nil, ErrInvalidHorizon
	}

	now := e.clock.Now()
	steps := models.HalfHourSteps(hoursAhead)
	out := make([]models.Prediction, 0, len(steps))
	for _, minutes := range steps {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("forecast cancelled: %w", err)
		}
		out = append(out, e.predictAt(now, minutes))
	}

	e.logger.Debug().Int("hours", hoursAhead).Int("points", len(out)).Msg("Forecast generated")
	return out, nil
}

func (e *Engine) predictAt(now time.Time, minutesAhead int) models.Prediction {
	target := now.Add(time.Duration(minutesAhead) * time.Minute)

	hourly := e.tracker.HourlyBaseline(target.Hour())
	daily := e.tracker.DailyBaseline(target.Weekday())

	mean := hourly.Mean*e.cfg.HourlyWeight + daily.Mean*e.cfg.DailyWeight
	std := hourly.Std*e.cfg.HourlyWeight + daily.Std*e.cfg.DailyWeight

	trend := e.trend()
	predicted := mean
	switch trend {
	case models.TrendUp:
		predicted *= 1 + e.cfg.TrendAdjust
	case models.TrendDown:
		predicted *= 1 - e.cfg.TrendAdjust
	}

	probability := AlertProbability(predicted, mean, std)
	confidence := math.Min(e.cfg.MaxConfidence, 0.5+float64(e.tracker.HourCount(target.Hour()))/200)

	p := models.Prediction{
		Timestamp:        target,
		PredictedVolume:  predicted,
		Confidence:       confidence,
		Trend:            trend,
		AlertProbability: probability,
		Warning:          e.warning(probability, minutesAhead),
	}

	e.mu.Lock()
	e.predictions.Push(p)
	e.mu.Unlock()
	e.metrics.Predictions.Inc()

	return p
}

func (e *Engine) trend() models.Trend {
	recent := e.tracker.RecentVolumes(e.cfg.TrendWindow)
	if len(recent) < e.cfg.TrendWindow {
		return models.TrendStable
	}

	slope := calculate.Slope(recent)
	switch {
	case slope > e.cfg.TrendThreshold:
		return models.TrendUp
	case slope < -e.cfg.TrendThreshold:
		return models.TrendDown
	default:
		return models.TrendStable
	}
}

func (e *Engine) warning(probability float64, minutesAhead int) string {
	switch {
	case probability > e.cfg.HighWarning:
		return fmt.Sprintf("High probability of an anomaly in %d min", minutesAhead)
	case probability > e.cfg.ModerateWarning:
		return fmt.Sprintf("Possible anomaly in %d min", minutesAhead)
	default:
		return ""
	}
}

// AlertProbability buckets the distance of predicted from mean in standard deviations
func AlertProbability(predicted, mean, std float64) float64 {
	if std == 0 {
		return 0
	}

	z := math.Abs(predicted-mean) / std
	switch {
	case z < 1:
		return 0.1
	case z < 2:
		return 0.3
	case z < 3:
		return 0.6
	default:
		return 0.9
	}
}

// DetectPatterns looks for peak and quiet hours and the strongest and weakest weekday
func (e *Engine) DetectPatterns() []models.Pattern {
	hourMeans := make([]float64, 24)
	hourCounts := make([]int, 24)
	var covered []float64
	for h := 0; h < 24; h++ {
		samples := e.tracker.HourSamples(h)
		hourCounts[h] = len(samples)
		if len(samples) >= patterns.MinSamples {
			hourMeans[h] = calculate.Mean(samples)
			covered = append(covered, hourMeans[h])
		}
	}

	overall := patterns.DefaultMean
	if len(covered) > 0 {
		overall = calculate.Mean(covered)
	}

	var peak, low []int
	for h := 0; h < 24; h++ {
		if hourCounts[h] < e.cfg.PatternSamples {
			continue
		}
		if hourMeans[h] > overall*e.cfg.PeakFactor {
			peak = append(peak, h)
		}
		if hourMeans[h] < overall*e.cfg.LowFactor {
			low = append(low, h)
		}
	}

	var found []models.Pattern
	if len(peak) > 0 {
		found = append(found, models.Pattern{
			Name:        "Peak Hours",
			Description: "High volume at " + formatHours(peak),
			Frequency:   "hourly",
			Confidence:  0.8,
			Impact:      "neutral",
		})
	}
	if len(low) > 0 {
		found = append(found, models.Pattern{
			Name:        "Low Volume Hours",
			Description: "Low volume at " + formatHours(low),
			Frequency:   "hourly",
			Confidence:  0.8,
			Impact:      "negative",
		})
	}

	best, worst := -1, -1
	var bestMean, worstMean float64
	for d := time.Sunday; d <= time.Saturday; d++ {
		samples := e.tracker.DaySamples(d)
		if len(samples) < patterns.MinSamples {
			continue
		}
		m := calculate.Mean(samples)
		if best < 0 || m > bestMean {
			best, bestMean = int(d), m
		}
		if worst < 0 || m < worstMean {
			worst, worstMean = int(d), m
		}
	}
	if best >= 0 {
		found = append(found, models.Pattern{
			Name:        "Weekly Pattern",
			Description: fmt.Sprintf("Best day: %s, worst day: %s", time.Weekday(best), time.Weekday(worst)),
			Frequency:   "weekly",
			Confidence:  0.7,
			Impact:      "neutral",
		})
	}

	e.mu.Lock()
	e.detected = found
	e.mu.Unlock()

	return found
}

func formatHours(hours []int) string {
	parts := make([]string, len(hours))
	for i, h := range hours {
		parts[i] = fmt.Sprintf("%02d:00", h)
	}
	return strings.Join(parts, ", ")
}

// Predictions returns the most recent predictions, oldest first
func (e *Engine) Predictions() []models.Prediction {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.predictions.Values()
}

func (e *Engine) Status() Status {
	hours, days := e.tracker.Coverage()
	n := e.tracker.Len()

	e.mu.Lock()
	defer e.mu.Unlock()

	state := StateWarmingUp
	if n >= e.cfg.ReadyAfter {
		state = StateReady
	}

	return Status{
		Observations:     n,
		PatternsDetected: len(e.detected),
		PredictionsMade:  e.predictions.Len(),
		HourlyCoverage:   hours,
		DailyCoverage:    days,
		State:            state,
	}
}

// Reset forgets predictions and detected patterns; the tracker is reset by its owner
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.predictions.Reset()
	e.detected = nil
}
