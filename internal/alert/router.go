package alert

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Alias1177/Guardian/internal/metrics"
	"github.com/Alias1177/Guardian/internal/utils"
	"github.com/Alias1177/Guardian/models"
	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

// Config tunes rate limiting, history and delivery
type Config struct {
	RateLimitWindow time.Duration
	ChannelTimeout  time.Duration
	HistorySize     int
	KeyCacheSize    int
	Policy          SeverityPolicy
}

func DefaultConfig() Config {
	return Config{
		RateLimitWindow: 60 * time.Second,
		ChannelTimeout:  10 * time.Second,
		HistorySize:     500,
		KeyCacheSize:    1024,
		Policy:          DefaultPolicy(),
	}
}

// Stats counts alerts in history by severity
type Stats struct {
	Total    int `json:"total"`
	Critical int `json:"critical"`
	Warning  int `json:"warning"`
	Normal   int `json:"normal"`
}

// Router rate-limits alerts and fans them out to channels
type Router struct {
	mu       sync.Mutex
	cfg      Config
	channels []models.Channel
	limiter  *limiter
	history  *utils.Ring[models.AlertEvent]
	clock    clock.Clock
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

func NewRouter(cfg Config, channels []models.Channel, clk clock.Clock, m *metrics.Metrics, logger zerolog.Logger) *Router {
	if clk == nil {
		clk = clock.New()
	}
	if m == nil {
		m = metrics.NewMetrics(nil)
	}
	if cfg.Policy == nil {
		cfg.Policy = DefaultPolicy()
	}

	return &Router{
		cfg:      cfg,
		channels: channels,
		limiter:  newLimiter(cfg.RateLimitWindow, cfg.KeyCacheSize),
		history:  utils.NewRing[models.AlertEvent](cfg.HistorySize),
		clock:    clk,
		metrics:  m,
		logger:   logger.With().Str("component", "alert_router").Logger(),
	}
}

// Route records and dispatches an alert unless an identical one was sent within the window.
// Suppression is silent. The returned error aggregates channel failures; every channel
// is attempted regardless of the others.
func (r *Router) Route(ctx context.Context, severity models.Severity, violations []models.Violation, score float64, alertCtx models.AlertContext) error {
	r.mu.Lock()
	now := r.clock.Now()
	if !r.limiter.allow(newRateKey(severity, violations), now) {
		r.mu.Unlock()
		r.metrics.AlertsSuppressed.Inc()
		r.logger.Debug().Str("severity", severity.String()).Msg("Alert suppressed by rate limit")
		return nil
	}

	event := models.AlertEvent{
		ID:         uuid.New(),
		Timestamp:  now,
		Severity:   severity,
		Score:      score,
		Violations: append([]models.Violation(nil), violations...),
		Context:    alertCtx,
	}
	r.history.Push(event)

	targets := make([]models.Channel, 0, len(r.channels))
	for _, ch := range r.channels {
		if r.cfg.Policy.Allows(ch.Name(), severity) {
			targets = append(targets, ch)
		}
	}
	r.mu.Unlock()

	r.metrics.AlertsRouted.WithLabelValues(severity.String()).Inc()
	return r.dispatch(ctx, event, targets)
}

func (r *Router) dispatch(ctx context.Context, event models.AlertEvent, targets []models.Channel) error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs error
	)

	for _, ch := range targets {
		g.Go(func() error {
			if err := r.send(ctx, ch, event); err != nil {
				r.metrics.ChannelFailures.WithLabelValues(ch.Name()).Inc()
				r.logger.Error().Err(err).Str("channel", ch.Name()).Str("alert_id", event.ID.String()).Msg("Alert delivery failed")

				mu.Lock()
				errs = multierr.Append(errs, fmt.Errorf("%s: %w", ch.Name(), err))
				mu.Unlock()
			}
			// siblings keep going whatever happened here
			return nil
		})
	}
	_ = g.Wait()

	return errs
}

// send bounds one channel call by the channel timeout, even if the channel ignores its context
func (r *Router) send(ctx context.Context, ch models.Channel, event models.AlertEvent) (err error) {
	cctx, cancel := context.WithTimeout(ctx, r.cfg.ChannelTimeout)
	defer cancel()

	start := time.Now()
	defer func() {
		r.metrics.ChannelDuration.WithLabelValues(ch.Name()).Observe(time.Since(start).Seconds())
	}()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- fmt.Errorf("channel panic: %v", p)
			}
		}()
		done <- ch.Send(cctx, event)
	}()

	select {
	case err = <-done:
		return err
	case <-cctx.Done():
		return fmt.Errorf("sending alert: %w", cctx.Err())
	}
}

// History returns up to limit most recent alerts, oldest first. limit <= 0 returns all.
func (r *Router) History(limit int) []models.AlertEvent {
	r.mu.Lock()
	defer r.mu.Unlock()

	if limit <= 0 {
		return r.history.Values()
	}
	return r.history.Last(limit)
}

func (r *Router) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Stats{Total: r.history.Len()}
	for i := 0; i < r.history.Len(); i++ {
		switch r.history.At(i).Severity {
		case models.SeverityCritical:
			s.Critical++
		case models.SeverityWarning:
			s.Warning++
		default:
			s.Normal++
		}
	}
	return s
}

// Channels lists configured channel names in dispatch order
func (r *Router) Channels() []string {
	names := make([]string, 0, len(r.channels))
	for _, ch := range r.channels {
		names = append(names, ch.Name())
	}
	return names
}

// Reset clears history and rate-limit keys
func (r *Router) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.history.Reset()
	r.limiter.reset()
	r.logger.Info().Msg("Alert router reset")
}
