package alert

import "github.com/Alias1177/Guardian/models"

// Channel names used by the built-in channels
const (
	ChannelConsole  = "console"
	ChannelWebhook  = "webhook"
	ChannelTelegram = "telegram"
	ChannelPostgres = "postgres"
)

// SeverityPolicy maps a channel name to the minimum severity it receives.
// The console channel always receives alerts. Every other channel needs at least WARNING.
type SeverityPolicy map[string]models.Severity

// DefaultPolicy sends CRITICAL everywhere, WARNING to webhook and audit, and the rest to the log
func DefaultPolicy() SeverityPolicy {
	return SeverityPolicy{
		ChannelConsole:  models.SeverityNormal,
		ChannelWebhook:  models.SeverityWarning,
		ChannelPostgres: models.SeverityWarning,
		ChannelTelegram: models.SeverityCritical,
	}
}

// Allows reports whether the channel should receive an alert of this severity
func (p SeverityPolicy) Allows(channel string, severity models.Severity) bool {
	if channel == ChannelConsole {
		return true
	}
	if severity == models.SeverityNormal {
		return false
	}

	minimum, ok := p[channel]
	if !ok {
		minimum = models.SeverityCritical
	}
	return severity >= minimum
}
