package alert

import (
	"context"
	"strings"

	"github.com/Alias1177/Guardian/models"
	"github.com/rs/zerolog"
)

// ConsoleChannel writes alerts to the structured log
type ConsoleChannel struct {
	logger zerolog.Logger
}

func NewConsoleChannel(logger zerolog.Logger) *ConsoleChannel {
	return &ConsoleChannel{logger: logger.With().Str("channel", ChannelConsole).Logger()}
}

func (c *ConsoleChannel) Name() string { return ChannelConsole }

func (c *ConsoleChannel) Send(_ context.Context, alert models.AlertEvent) error {
	var ev *zerolog.Event
	switch alert.Severity {
	case models.SeverityCritical:
		ev = c.logger.Error()
	case models.SeverityWarning:
		ev = c.logger.Warn()
	default:
		ev = c.logger.Info()
	}

	ev.Str("alert_id", alert.ID.String()).
		Str("severity", alert.Severity.String()).
		Float64("score", alert.Score).
		Int64("volume", alert.Context.Volume).
		Str("status", string(alert.Context.Status)).
		Str("auth_code", alert.Context.AuthCode).
		Str("violations", strings.Join(models.Messages(alert.Violations), "; ")).
		Msg("Transaction alert")

	return nil
}
