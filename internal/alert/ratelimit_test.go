package alert

import (
	"testing"
	"time"

	"github.com/Alias1177/Guardian/models"
	"github.com/stretchr/testify/assert"
)

func TestNewRateKey(t *testing.T) {
	a := []models.Violation{{Kind: "X"}, {Kind: "Y"}}
	b := []models.Violation{{Kind: "Y"}, {Kind: "X"}}

	assert.Equal(t, newRateKey(models.SeverityWarning, a), newRateKey(models.SeverityWarning, b))
	assert.NotEqual(t, newRateKey(models.SeverityWarning, a), newRateKey(models.SeverityCritical, a))
	assert.NotEqual(t, newRateKey(models.SeverityWarning, a), newRateKey(models.SeverityWarning, a[:1]))

	// concatenation must not collide
	assert.NotEqual(t,
		newRateKey(models.SeverityWarning, []models.Violation{{Kind: "AB"}, {Kind: "C"}}),
		newRateKey(models.SeverityWarning, []models.Violation{{Kind: "A"}, {Kind: "BC"}}))

	// evidence differs, kinds match
	later := []models.Violation{
		{Kind: models.ViolationLowVolume, Message: "LOW_VOLUME: 12 < 50 (possible outage)", Value: 12},
		{Kind: models.ViolationDrop, Message: "VOLUME_DROP: 12 < 50% of mean (113)", Value: 12},
	}
	assert.Equal(t, newRateKey(models.SeverityCritical, outage), newRateKey(models.SeverityCritical, later))

	assert.Equal(t, newRateKey(models.SeverityNormal, nil), newRateKey(models.SeverityNormal, []models.Violation{}))
}

func TestLimiterWindow(t *testing.T) {
	l := newLimiter(time.Minute, 16)
	key := newRateKey(models.SeverityCritical, outage)
	t0 := time.Date(2025, 7, 12, 0, 0, 0, 0, time.UTC)

	assert.True(t, l.allow(key, t0))
	assert.False(t, l.allow(key, t0.Add(59*time.Second)))
	assert.True(t, l.allow(key, t0.Add(60*time.Second)))
	assert.False(t, l.allow(key, t0.Add(61*time.Second)))

	l.reset()
	assert.True(t, l.allow(key, t0.Add(62*time.Second)))
}

func TestLimiterBoundedMemory(t *testing.T) {
	l := newLimiter(time.Minute, 2)
	t0 := time.Date(2025, 7, 12, 0, 0, 0, 0, time.UTC)

	k1 := newRateKey(models.SeverityWarning, []models.Violation{{Kind: "1"}})
	k2 := newRateKey(models.SeverityWarning, []models.Violation{{Kind: "2"}})
	k3 := newRateKey(models.SeverityWarning, []models.Violation{{Kind: "3"}})

	assert.True(t, l.allow(k1, t0))
	assert.True(t, l.allow(k2, t0))
	assert.True(t, l.allow(k3, t0))
	assert.Equal(t, 2, l.sent.Len())

	// k1 was evicted, so it is sent again
	assert.True(t, l.allow(k1, t0))
}
