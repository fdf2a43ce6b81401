package alert

import (
	"context"
	"time"

	httpclient "github.com/Alias1177/Guardian/internal/platform/http"
	"github.com/Alias1177/Guardian/models"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// WebhookPayload is the JSON document posted for each alert
type WebhookPayload struct {
	ID         string              `json:"id"`
	Timestamp  time.Time           `json:"timestamp"`
	Level      models.Severity     `json:"level"`
	Score      float64             `json:"score"`
	Violations []string            `json:"violations"`
	Details    []models.Violation  `json:"details"`
	Context    models.AlertContext `json:"transaction"`
}

func newWebhookPayload(alert models.AlertEvent) WebhookPayload {
	return WebhookPayload{
		ID:         alert.ID.String(),
		Timestamp:  alert.Timestamp,
		Level:      alert.Severity,
		Score:      alert.Score,
		Violations: models.Messages(alert.Violations),
		Details:    alert.Violations,
		Context:    alert.Context,
	}
}

// WebhookChannel posts alerts as JSON to a fixed URL
type WebhookChannel struct {
	url    string
	client *httpclient.Client
	cb     *gobreaker.CircuitBreaker
	logger zerolog.Logger
}

func NewWebhookChannel(url string, client *httpclient.Client, logger zerolog.Logger) *WebhookChannel {
	if client == nil {
		client = httpclient.NewClient(httpclient.ClientOptions{})
	}

	w := &WebhookChannel{
		url:    url,
		client: client,
		logger: logger.With().Str("channel", ChannelWebhook).Logger(),
	}

	w.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "alert-webhook",
		MaxRequests: 1,
		Timeout:     time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			w.logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Webhook circuit breaker state change")
		},
	})

	return w
}

func (w *WebhookChannel) Name() string { return ChannelWebhook }

func (w *WebhookChannel) Send(ctx context.Context, alert models.AlertEvent) error {
	_, err := w.cb.Execute(func() (interface{}, error) {
		return nil, w.client.PostJSON(ctx, w.url, newWebhookPayload(alert))
	})
	return err
}
