package anomaly

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Alias1177/Guardian/models"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// NopScorer is used when no learned model is configured
type NopScorer struct{}

func (NopScorer) Score(context.Context, float64, []float64) (float64, error) {
	return 0, models.ErrScorerUnavailable
}

type resetter interface {
	Reset()
}

// GuardedScorer bounds a possibly slow scorer with a timeout and a circuit breaker.
// Any failure surfaces as an error so the detector can fall back to a zero score.
type GuardedScorer struct {
	next    models.Scorer
	cb      *gobreaker.CircuitBreaker
	timeout time.Duration
	logger  zerolog.Logger
}

func NewGuardedScorer(next models.Scorer, timeout time.Duration, logger zerolog.Logger) *GuardedScorer {
	g := &GuardedScorer{
		next:    next,
		timeout: timeout,
		logger:  logger.With().Str("component", "scorer").Logger(),
	}

	g.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "ml-scorer",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second, // time before a half-open probe
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		IsSuccessful: func(err error) bool {
			// an untrained model is healthy, just not ready
			return err == nil || errors.Is(err, models.ErrScorerUnavailable)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			g.logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Scorer circuit breaker state change")
		},
	})

	return g
}

type scoreResult struct {
	score float64
	err   error
}

func (g *GuardedScorer) Score(ctx context.Context, volume float64, history []float64) (float64, error) {
	// the call may outlive the timeout, so it gets its own copy
	hist := append([]float64(nil), history...)

	res, err := g.cb.Execute(func() (interface{}, error) {
		tctx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()

		done := make(chan scoreResult, 1)
		go func() {
			defer func() {
				if p := recover(); p != nil {
					done <- scoreResult{err: fmt.Errorf("scorer panic: %v", p)}
				}
			}()
			s, err := g.next.Score(tctx, volume, hist)
			done <- scoreResult{score: s, err: err}
		}()

		select {
		case r := <-done:
			return r.score, r.err
		case <-tctx.Done():
			return 0.0, tctx.Err()
		}
	})
	if err != nil {
		return 0, err
	}

	return res.(float64), nil
}

// State exposes the breaker state for status reporting
func (g *GuardedScorer) State() gobreaker.State {
	return g.cb.State()
}

func (g *GuardedScorer) Reset() {
	if r, ok := g.next.(resetter); ok {
		r.Reset()
	}
}
