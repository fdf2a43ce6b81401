package anomaly

import (
	"context"
	"math"
	"math/rand/v2"
	"sort"
	"sync"

	"github.com/Alias1177/Guardian/models"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const eulerGamma = 0.5772156649

// ForestConfig tunes the isolation forest scorer
type ForestConfig struct {
	Trees         int
	SampleSize    int
	Contamination float64 // expected share of outliers in training data
	Seed          uint64
	TrainAfter    int // history length required before the first fit
}

func DefaultForestConfig() ForestConfig {
	return ForestConfig{
		Trees:         100,
		SampleSize:    256,
		Contamination: 0.1,
		Seed:          42,
		TrainAfter:    30,
	}
}

type isoNode struct {
	split       float64
	left, right *isoNode
	size        int
}

func (n *isoNode) leaf() bool { return n.left == nil }

// IsolationForest scores one-dimensional volumes by how quickly random splits isolate them.
// It trains once, lazily, on the first history long enough and reuses the model afterwards.
type IsolationForest struct {
	mu      sync.Mutex
	cfg     ForestConfig
	trees   []*isoNode
	psi     int
	offset  float64
	trained bool
}

func NewIsolationForest(cfg ForestConfig) *IsolationForest {
	if cfg.Trees < 1 {
		cfg.Trees = 1
	}
	if cfg.SampleSize < 2 {
		cfg.SampleSize = 2
	}
	return &IsolationForest{cfg: cfg}
}

// Score returns a value in (0,1); above 0.5 means more isolated than the
// contamination quantile of the training data.
func (f *IsolationForest) Score(ctx context.Context, volume float64, history []float64) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.trained {
		if len(history) < f.cfg.TrainAfter {
			return 0, models.ErrScorerUnavailable
		}
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		f.fit(history)
	}

	s := f.anomalyScore(volume)
	return 1 / (1 + math.Exp(f.offset-s)), nil
}

// Trained reports whether a model has been fitted
func (f *IsolationForest) Trained() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.trained
}

// Reset drops the model; the next long enough history retrains it
func (f *IsolationForest) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trees = nil
	f.trained = false
	f.offset = 0
	f.psi = 0
}

func (f *IsolationForest) fit(data []float64) {
	rng := rand.New(rand.NewPCG(f.cfg.Seed, f.cfg.Seed^0x9e3779b97f4a7c15))

	f.psi = min(f.cfg.SampleSize, len(data))
	limit := int(math.Ceil(math.Log2(float64(max(f.psi, 2)))))

	f.trees = make([]*isoNode, f.cfg.Trees)
	sample := make([]float64, f.psi)
	for i := range f.trees {
		for j, idx := range rng.Perm(len(data))[:f.psi] {
			sample[j] = data[idx]
		}
		f.trees[i] = buildTree(append([]float64(nil), sample...), 0, limit, rng)
	}

	scores := make([]float64, len(data))
	for i, v := range data {
		scores[i] = f.anomalyScore(v)
	}
	sort.Float64s(scores)
	f.offset = stat.Quantile(1-f.cfg.Contamination, stat.Empirical, scores, nil)
	f.trained = true
}

func buildTree(xs []float64, depth, limit int, rng *rand.Rand) *isoNode {
	if depth >= limit || len(xs) <= 1 {
		return &isoNode{size: len(xs)}
	}

	lo, hi := floats.Min(xs), floats.Max(xs)
	if lo == hi {
		return &isoNode{size: len(xs)}
	}

	split := lo + rng.Float64()*(hi-lo)
	var left, right []float64
	for _, x := range xs {
		if x < split {
			left = append(left, x)
		} else {
			right = append(right, x)
		}
	}

	return &isoNode{
		split: split,
		left:  buildTree(left, depth+1, limit, rng),
		right: buildTree(right, depth+1, limit, rng),
		size:  len(xs),
	}
}

func pathLength(x float64, n *isoNode, depth int) float64 {
	for !n.leaf() {
		if x < n.split {
			n = n.left
		} else {
			n = n.right
		}
		depth++
	}
	return float64(depth) + averagePath(n.size)
}

// averagePath is the expected path length of an unsuccessful BST search over n points
func averagePath(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	}
	nf := float64(n)
	return 2*(math.Log(nf-1)+eulerGamma) - 2*(nf-1)/nf
}

func (f *IsolationForest) anomalyScore(x float64) float64 {
	var total float64
	for _, t := range f.trees {
		total += pathLength(x, t, 0)
	}
	mean := total / float64(len(f.trees))
	return math.Pow(2, -mean/averagePath(f.psi))
}
