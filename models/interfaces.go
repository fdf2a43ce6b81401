package models

import "context"

// Scorer produces an outlier score in [0,1] for a volume given recent history.
// It returns ErrScorerUnavailable while it has no usable model.
type Scorer interface {
	Score(ctx context.Context, volume float64, history []float64) (float64, error)
}

// Channel delivers a routed alert somewhere (log, webhook, bot, table)
type Channel interface {
	Name() string
	Send(ctx context.Context, alert AlertEvent) error
}
