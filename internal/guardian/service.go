package guardian

import (
	"context"
	"sync"
	"time"

	"github.com/Alias1177/Guardian/internal/alert"
	"github.com/Alias1177/Guardian/internal/anomaly"
	"github.com/Alias1177/Guardian/internal/calculate"
	"github.com/Alias1177/Guardian/internal/metrics"
	"github.com/Alias1177/Guardian/internal/patterns"
	"github.com/Alias1177/Guardian/internal/prediction"
	"github.com/Alias1177/Guardian/internal/utils"
	"github.com/Alias1177/Guardian/models"
	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
)

// Config gathers the component configs and the service windows
type Config struct {
	Detector anomaly.Config
	Router   alert.Config
	Forecast prediction.Config

	RecentWindow   int // volumes handed to the detector
	AverageWindow  int // volumes behind the moving average
	HistorySize    int
	AnomalyHistory int
	DefaultVolume  float64
}

func DefaultConfig() Config {
	return Config{
		Detector:       anomaly.DefaultConfig(),
		Router:         alert.DefaultConfig(),
		Forecast:       prediction.DefaultConfig(),
		RecentWindow:   50,
		AverageWindow:  30,
		HistorySize:    500,
		AnomalyHistory: 100,
		DefaultVolume:  100,
	}
}

// Deps are the collaborators chosen by the caller
type Deps struct {
	Scorer   models.Scorer
	Channels []models.Channel
	Clock    clock.Clock
	Metrics  *metrics.Metrics
	Logger   zerolog.Logger
}

// AnomalyRecord is an anomalous observation kept for review
type AnomalyRecord struct {
	Timestamp   time.Time          `json:"timestamp"`
	Severity    models.Severity    `json:"alert_level"`
	Score       float64            `json:"score"`
	Violations  []models.Violation `json:"violations"`
	Observation models.Observation `json:"transaction"`
}

// BatchItem summarises one observation of a batch
type BatchItem struct {
	Timestamp time.Time       `json:"timestamp"`
	IsAnomaly bool            `json:"is_anomaly"`
	Severity  models.Severity `json:"alert_level"`
	Score     float64         `json:"score"`
}

type BatchResult struct {
	Processed   int         `json:"processed"`
	Anomalies   int         `json:"anomalies_found"`
	AnomalyRate float64     `json:"anomaly_rate"`
	Results     []BatchItem `json:"results"`
}

// VolumeWindow describes the retained observations
type VolumeWindow struct {
	Min  int64   `json:"min"`
	Max  int64   `json:"max"`
	Avg  float64 `json:"avg"`
	Size int     `json:"window_size"`
}

type Stats struct {
	TotalProcessed int64                   `json:"total_processed"`
	TotalAnomalies int64                   `json:"total_anomalies"`
	AnomalyRate    float64                 `json:"anomaly_rate"`
	StatusVolumes  map[models.Status]int64 `json:"status_distribution"`
	ApprovalRate   float64                 `json:"approval_rate"`
	CurrentVolume  int64                   `json:"current_count"`
	AverageVolume  float64                 `json:"avg_count"`
	Window         VolumeWindow            `json:"transaction_stats"`
	Baseline       models.Baseline         `json:"baseline"`
	Alerts         alert.Stats             `json:"alerts"`
	Uptime         time.Duration           `json:"uptime"`
}

// Service feeds observations through detection, alerting and pattern tracking
type Service struct {
	cfg      Config
	detector *anomaly.Detector
	router   *alert.Router
	tracker  *patterns.Tracker
	engine   *prediction.Engine
	clock    clock.Clock
	logger   zerolog.Logger

	mu            sync.Mutex
	recent        *utils.Ring[models.Observation]
	anomalies     *utils.Ring[AnomalyRecord]
	processed     int64
	anomalyCount  int64
	statusVolumes map[models.Status]int64
	current       int64
	started       time.Time

	pending sync.WaitGroup
}

func New(cfg Config, deps Deps) *Service {
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewMetrics(nil)
	}

	tracker := patterns.NewTracker()
	s := &Service{
		cfg:       cfg,
		detector:  anomaly.NewDetector(cfg.Detector, deps.Scorer, deps.Metrics, deps.Logger),
		router:    alert.NewRouter(cfg.Router, deps.Channels, deps.Clock, deps.Metrics, deps.Logger),
		tracker:   tracker,
		engine:    prediction.NewEngine(cfg.Forecast, tracker, deps.Clock, deps.Metrics, deps.Logger),
		clock:     deps.Clock,
		logger:    deps.Logger.With().Str("component", "guardian").Logger(),
		recent:    utils.NewRing[models.Observation](cfg.HistorySize),
		anomalies: utils.NewRing[AnomalyRecord](cfg.AnomalyHistory),
		started:   deps.Clock.Now(),
	}
	s.statusVolumes = newStatusVolumes()
	return s
}

func newStatusVolumes() map[models.Status]int64 {
	m := make(map[models.Status]int64, len(models.Statuses))
	for _, st := range models.Statuses {
		m[st] = 0
	}
	return m
}

// Ingest analyses one observation and routes an alert in the background when it is anomalous
func (s *Service) Ingest(ctx context.Context, obs models.Observation) models.DetectionResult {
	return s.ingest(ctx, obs, true)
}

// IngestBatch replays observations in order. Replays update every statistic but raise no alerts.
func (s *Service) IngestBatch(ctx context.Context, batch []models.Observation) BatchResult {
	res := BatchResult{Results: make([]BatchItem, 0, len(batch))}
	for _, obs := range batch {
		r := s.ingest(ctx, obs, false)
		if r.IsAnomaly {
			res.Anomalies++
		}
		res.Results = append(res.Results, BatchItem{
			Timestamp: obs.Timestamp,
			IsAnomaly: r.IsAnomaly,
			Severity:  r.Severity,
			Score:     r.Score,
		})
	}

	res.Processed = len(res.Results)
	res.AnomalyRate = float64(res.Anomalies) / float64(max(res.Processed, 1))
	return res
}

func (s *Service) ingest(ctx context.Context, obs models.Observation, notify bool) models.DetectionResult {
	if obs.Timestamp.IsZero() {
		obs.Timestamp = s.clock.Now()
	}
	obs.Volume = max(obs.Volume, 0)

	s.mu.Lock()
	defer s.mu.Unlock()

	result := s.detector.Analyze(ctx, obs, s.recentVolumes())
	s.tracker.Observe(obs.Timestamp, float64(obs.Volume))

	s.processed++
	s.current = obs.Volume
	if _, known := s.statusVolumes[obs.Status]; known {
		s.statusVolumes[obs.Status] += obs.Volume
	} else {
		s.logger.Warn().Str("status", string(obs.Status)).Msg("Unknown status left out of status volumes")
	}
	s.recent.Push(obs)

	if !result.IsAnomaly {
		return result
	}

	s.anomalyCount++
	s.anomalies.Push(AnomalyRecord{
		Timestamp:   obs.Timestamp,
		Severity:    result.Severity,
		Score:       result.Score,
		Violations:  result.Violations,
		Observation: obs,
	})

	if notify {
		s.notify(ctx, result, obs)
	}
	return result
}

// recentVolumes is the detector's history window, never empty
func (s *Service) recentVolumes() []float64 {
	last := s.recent.Last(s.cfg.RecentWindow)
	if len(last) == 0 {
		return []float64{s.cfg.DefaultVolume}
	}

	out := make([]float64, len(last))
	for i, o := range last {
		out[i] = float64(o.Volume)
	}
	return out
}

func (s *Service) notify(ctx context.Context, result models.DetectionResult, obs models.Observation) {
	// alerts outlive the request that raised them
	actx := context.WithoutCancel(ctx)
	alertCtx := models.AlertContext{
		Timestamp: obs.Timestamp,
		Volume:    obs.Volume,
		Status:    obs.Status,
		AuthCode:  obs.AuthCode,
	}

	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		if err := s.router.Route(actx, result.Severity, result.Violations, result.Score, alertCtx); err != nil {
			s.logger.Error().Err(err).Str("severity", result.Severity.String()).Msg("Alert dispatch had failures")
		}
	}()
}

// RecentAnomalies returns up to limit anomalies, oldest first, optionally only the given severities
func (s *Service) RecentAnomalies(limit int, severities ...models.Severity) []AnomalyRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.anomalies.Values()
	if len(severities) > 0 {
		filtered := all[:0]
		for _, a := range all {
			for _, sev := range severities {
				if a.Severity == sev {
					filtered = append(filtered, a)
					break
				}
			}
		}
		all = filtered
	}

	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all
}

func (s *Service) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{
		TotalProcessed: s.processed,
		TotalAnomalies: s.anomalyCount,
		AnomalyRate:    float64(s.anomalyCount) / float64(max(s.processed, 1)),
		StatusVolumes:  make(map[models.Status]int64, len(s.statusVolumes)),
		CurrentVolume:  s.current,
		Baseline:       s.detector.Baseline(),
		Alerts:         s.router.Stats(),
		Uptime:         s.clock.Since(s.started),
	}

	var total int64
	for k, v := range s.statusVolumes {
		st.StatusVolumes[k] = v
		total += v
	}
	if total > 0 {
		st.ApprovalRate = float64(s.statusVolumes[models.StatusApproved]) / float64(total)
	}

	if s.recent.Len() > 0 {
		volumes := make([]float64, 0, s.recent.Len())
		st.Window = VolumeWindow{Min: s.recent.At(0).Volume, Max: s.recent.At(0).Volume, Size: s.recent.Len()}
		for _, o := range s.recent.Values() {
			volumes = append(volumes, float64(o.Volume))
			st.Window.Min = min(st.Window.Min, o.Volume)
			st.Window.Max = max(st.Window.Max, o.Volume)
		}
		st.Window.Avg = calculate.Mean(volumes)
		st.AverageVolume = calculate.Mean(volumes[max(len(volumes)-s.cfg.AverageWindow, 0):])
	}

	return st
}

// Reset clears every counter, history and baseline
func (s *Service) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.detector.Reset()
	s.router.Reset()
	s.tracker.Reset()
	s.engine.Reset()

	s.recent.Reset()
	s.anomalies.Reset()
	s.processed = 0
	s.anomalyCount = 0
	s.current = 0
	s.statusVolumes = newStatusVolumes()
	s.logger.Info().Msg("Service state reset")
}

// Close waits for in-flight alerts
func (s *Service) Close() {
	s.pending.Wait()
}

func (s *Service) Detector() *anomaly.Detector { return s.detector }

func (s *Service) Router() *alert.Router { return s.router }

func (s *Service) Patterns() *patterns.Tracker { return s.tracker }

func (s *Service) Forecast() *prediction.Engine { return s.engine }
