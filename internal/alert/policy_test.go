package alert

import (
	"testing"

	"github.com/Alias1177/Guardian/models"
	"github.com/stretchr/testify/assert"
)

func TestSeverityPolicyAllows(t *testing.T) {
	p := DefaultPolicy()

	tests := []struct {
		name     string
		channel  string
		severity models.Severity
		want     bool
	}{
		{"console normal", ChannelConsole, models.SeverityNormal, true},
		{"console critical", ChannelConsole, models.SeverityCritical, true},
		{"webhook normal", ChannelWebhook, models.SeverityNormal, false},
		{"webhook warning", ChannelWebhook, models.SeverityWarning, true},
		{"postgres warning", ChannelPostgres, models.SeverityWarning, true},
		{"telegram warning", ChannelTelegram, models.SeverityWarning, false},
		{"telegram critical", ChannelTelegram, models.SeverityCritical, true},
		{"unknown warning", "pager", models.SeverityWarning, false},
		{"unknown critical", "pager", models.SeverityCritical, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.Allows(tt.channel, tt.severity))
		})
	}
}

func TestSeverityPolicyNeverSendsNormalOffConsole(t *testing.T) {
	p := SeverityPolicy{ChannelWebhook: models.SeverityNormal}
	assert.False(t, p.Allows(ChannelWebhook, models.SeverityNormal))
	assert.True(t, p.Allows(ChannelWebhook, models.SeverityWarning))
}
