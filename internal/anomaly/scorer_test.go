package anomaly

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Alias1177/Guardian/internal/metrics"
	"github.com/Alias1177/Guardian/models"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type slowScorer struct {
	delay time.Duration
}

func (s slowScorer) Score(ctx context.Context, _ float64, _ []float64) (float64, error) {
	select {
	case <-time.After(s.delay):
		return 0.99, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

type failingScorer struct {
	calls int
}

func (s *failingScorer) Score(context.Context, float64, []float64) (float64, error) {
	s.calls++
	return 0, errors.New("model server down")
}

type panickingScorer struct{}

func (panickingScorer) Score(context.Context, float64, []float64) (float64, error) {
	panic("model crashed")
}

func TestNopScorer(t *testing.T) {
	score, err := NopScorer{}.Score(context.Background(), 100, nil)
	assert.Equal(t, 0.0, score)
	assert.ErrorIs(t, err, models.ErrScorerUnavailable)
}

func TestGuardedScorerPassesThrough(t *testing.T) {
	g := NewGuardedScorer(&fixedScorer{score: 0.42}, time.Second, zerolog.Nop())

	score, err := g.Score(context.Background(), 100, nil)
	require.NoError(t, err)
	assert.Equal(t, 0.42, score)
}

func TestGuardedScorerTimeout(t *testing.T) {
	g := NewGuardedScorer(slowScorer{delay: time.Second}, 20*time.Millisecond, zerolog.Nop())

	start := time.Now()
	_, err := g.Score(context.Background(), 100, nil)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestGuardedScorerOpensAfterFailures(t *testing.T) {
	inner := &failingScorer{}
	g := NewGuardedScorer(inner, time.Second, zerolog.Nop())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := g.Score(ctx, 100, nil)
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, g.State())

	_, err := g.Score(ctx, 100, nil)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 3, inner.calls)
}

func TestGuardedScorerUnavailableKeepsBreakerClosed(t *testing.T) {
	g := NewGuardedScorer(NopScorer{}, time.Second, zerolog.Nop())

	for i := 0; i < 10; i++ {
		_, err := g.Score(context.Background(), 100, nil)
		assert.ErrorIs(t, err, models.ErrScorerUnavailable)
	}
	assert.Equal(t, gobreaker.StateClosed, g.State())
}

func TestDetectorDegradesOnSlowScorer(t *testing.T) {
	m := metrics.NewMetrics(nil)
	g := NewGuardedScorer(slowScorer{delay: time.Second}, 10*time.Millisecond, zerolog.Nop())
	d := NewDetector(DefaultConfig(), g, m, zerolog.Nop())

	res := d.Analyze(context.Background(), observation(100), make([]float64, 30))

	assert.Equal(t, 0.0, res.Snapshot.MLScore)
	assert.Equal(t, 0.0, res.Score)
	assert.Equal(t, models.SeverityNormal, res.Severity)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ScorerFallbacks.WithLabelValues("timeout")))
}

func TestGuardedScorerRecoversPanic(t *testing.T) {
	g := NewGuardedScorer(panickingScorer{}, time.Second, zerolog.Nop())

	score, err := g.Score(context.Background(), 100, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model crashed")
	assert.Equal(t, 0.0, score)
}

func TestDetectorDegradesOnPanickingScorer(t *testing.T) {
	m := metrics.NewMetrics(nil)
	g := NewGuardedScorer(panickingScorer{}, time.Second, zerolog.Nop())
	d := NewDetector(DefaultConfig(), g, m, zerolog.Nop())

	res := d.Analyze(context.Background(), observation(100), make([]float64, 30))

	assert.Equal(t, 0.0, res.Snapshot.MLScore)
	assert.Equal(t, models.SeverityNormal, res.Severity)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ScorerFallbacks.WithLabelValues("error")))
}
