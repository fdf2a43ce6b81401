package anomaly

import (
	"context"
	"testing"

	"github.com/Alias1177/Guardian/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func trainingHistory(n int) []float64 {
	h := make([]float64, n)
	for i := range h {
		h[i] = 100 + float64(i%7)*3
	}
	return h
}

func TestIsolationForestUnavailableBeforeTraining(t *testing.T) {
	f := NewIsolationForest(DefaultForestConfig())

	_, err := f.Score(context.Background(), 100, trainingHistory(29))
	assert.ErrorIs(t, err, models.ErrScorerUnavailable)
	assert.False(t, f.Trained())
}

func TestIsolationForestScoresOutliersHigher(t *testing.T) {
	f := NewIsolationForest(DefaultForestConfig())
	ctx := context.Background()
	history := trainingHistory(40)

	inlier, err := f.Score(ctx, 109, history)
	require.NoError(t, err)
	require.True(t, f.Trained())

	outlier, err := f.Score(ctx, 1000, history)
	require.NoError(t, err)

	assert.Greater(t, outlier, inlier)
	for _, s := range []float64{inlier, outlier} {
		assert.Greater(t, s, 0.0)
		assert.Less(t, s, 1.0)
	}
}

func TestIsolationForestReusesModel(t *testing.T) {
	f := NewIsolationForest(DefaultForestConfig())
	ctx := context.Background()

	first, err := f.Score(ctx, 1000, trainingHistory(40))
	require.NoError(t, err)

	// a short, different history must not retrain or disable the model
	again, err := f.Score(ctx, 1000, []float64{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, first, again)
}

func TestIsolationForestDeterministic(t *testing.T) {
	a := NewIsolationForest(DefaultForestConfig())
	b := NewIsolationForest(DefaultForestConfig())
	ctx := context.Background()

	sa, err := a.Score(ctx, 130, trainingHistory(60))
	require.NoError(t, err)
	sb, err := b.Score(ctx, 130, trainingHistory(60))
	require.NoError(t, err)

	assert.Equal(t, sa, sb)
}

func TestIsolationForestReset(t *testing.T) {
	f := NewIsolationForest(DefaultForestConfig())
	_, err := f.Score(context.Background(), 100, trainingHistory(30))
	require.NoError(t, err)

	f.Reset()
	assert.False(t, f.Trained())

	_, err = f.Score(context.Background(), 100, trainingHistory(5))
	assert.ErrorIs(t, err, models.ErrScorerUnavailable)
}

func TestAveragePath(t *testing.T) {
	assert.Equal(t, 0.0, averagePath(0))
	assert.Equal(t, 0.0, averagePath(1))
	assert.Equal(t, 1.0, averagePath(2))
	assert.InDelta(t, 2*(0.6931471805599453+eulerGamma)-4.0/3.0, averagePath(3), 1e-9)
}
