package guardian

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Alias1177/Guardian/internal/alert"
	"github.com/Alias1177/Guardian/models"
	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingChannel struct {
	mu   sync.Mutex
	sent []models.AlertEvent
}

func (c *recordingChannel) Name() string { return alert.ChannelConsole }

func (c *recordingChannel) Send(_ context.Context, a models.AlertEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, a)
	return nil
}

func (c *recordingChannel) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

var start = time.Date(2025, 7, 12, 14, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *recordingChannel, *clock.Mock) {
	t.Helper()
	clk := clock.NewMock()
	clk.Set(start)
	ch := &recordingChannel{}
	s := New(DefaultConfig(), Deps{
		Channels: []models.Channel{ch},
		Clock:    clk,
		Logger:   zerolog.Nop(),
	})
	t.Cleanup(s.Close)
	return s, ch, clk
}

func obs(i int, volume int64, status models.Status) models.Observation {
	return models.Observation{
		Timestamp: start.Add(time.Duration(i) * time.Minute),
		Volume:    volume,
		Status:    status,
		AuthCode:  "00",
	}
}

// warmUp ingests 30 approved observations alternating 130 and 100
func warmUp(t *testing.T, s *Service) {
	t.Helper()
	for i := 0; i < 30; i++ {
		v := int64(130)
		if i%2 == 1 {
			v = 100
		}
		r := s.Ingest(context.Background(), obs(i, v, models.StatusApproved))
		require.False(t, r.IsAnomaly, "warm-up observation %d", i)
	}
}

func TestIngestOutageRaisesCriticalAlert(t *testing.T) {
	s, ch, _ := newTestService(t)
	warmUp(t, s)

	r := s.Ingest(context.Background(), obs(30, 10, models.StatusApproved))
	s.Close()

	assert.True(t, r.IsAnomaly)
	assert.Equal(t, models.SeverityCritical, r.Severity)
	assert.Equal(t, 1, ch.count())

	hist := s.Router().History(0)
	require.Len(t, hist, 1)
	assert.Equal(t, int64(10), hist[0].Context.Volume)

	anomalies := s.RecentAnomalies(0)
	require.Len(t, anomalies, 1)
	assert.Equal(t, models.SeverityCritical, anomalies[0].Severity)
	assert.Equal(t, int64(10), anomalies[0].Observation.Volume)

	st := s.Stats()
	assert.Equal(t, int64(31), st.TotalProcessed)
	assert.Equal(t, int64(1), st.TotalAnomalies)
	assert.InDelta(t, 1.0/31, st.AnomalyRate, 1e-9)
	assert.Equal(t, 1, st.Alerts.Critical)
}

func TestIngestAlertSurvivesCancelledContext(t *testing.T) {
	s, ch, _ := newTestService(t)
	warmUp(t, s)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.Ingest(ctx, obs(30, 10, models.StatusApproved))
	s.Close()

	assert.Equal(t, 1, ch.count())
}

func TestIngestBatchRaisesNoAlerts(t *testing.T) {
	s, ch, _ := newTestService(t)

	batch := make([]models.Observation, 0, 31)
	for i := 0; i < 30; i++ {
		v := int64(130)
		if i%2 == 1 {
			v = 100
		}
		batch = append(batch, obs(i, v, models.StatusApproved))
	}
	batch = append(batch, obs(30, 10, models.StatusApproved))

	res := s.IngestBatch(context.Background(), batch)
	s.Close()

	assert.Equal(t, 31, res.Processed)
	assert.Equal(t, 1, res.Anomalies)
	assert.InDelta(t, 1.0/31, res.AnomalyRate, 1e-9)
	require.Len(t, res.Results, 31)
	assert.Equal(t, models.SeverityCritical, res.Results[30].Severity)

	assert.Zero(t, ch.count())
	assert.Len(t, s.RecentAnomalies(0), 1)
}

func TestIngestBatchEmpty(t *testing.T) {
	s, _, _ := newTestService(t)
	res := s.IngestBatch(context.Background(), nil)

	assert.Equal(t, 0, res.Processed)
	assert.Equal(t, 0.0, res.AnomalyRate)
}

func TestIngestFeedsPatterns(t *testing.T) {
	s, _, clk := newTestService(t)

	s.Ingest(context.Background(), obs(0, 120, models.StatusApproved))
	// zero timestamps take the clock time
	s.Ingest(context.Background(), models.Observation{Volume: 80, Status: models.StatusApproved, AuthCode: "00"})

	assert.Equal(t, 2, s.Patterns().Len())
	assert.Equal(t, 2, s.Patterns().HourCount(clk.Now().Hour()))
	assert.Equal(t, []float64{120, 80}, s.Patterns().RecentVolumes(10))
}

func TestRecentVolumesWindow(t *testing.T) {
	s, _, _ := newTestService(t)
	assert.Equal(t, []float64{100}, s.recentVolumes())

	for i := 0; i < 60; i++ {
		s.Ingest(context.Background(), obs(i, int64(100+i), models.StatusApproved))
	}

	recent := s.recentVolumes()
	require.Len(t, recent, 50)
	assert.Equal(t, 110.0, recent[0])
	assert.Equal(t, 159.0, recent[49])
}

func TestStatsStatusDistribution(t *testing.T) {
	s, _, clk := newTestService(t)
	ctx := context.Background()

	s.Ingest(ctx, obs(0, 100, models.StatusApproved))
	s.Ingest(ctx, obs(1, 60, models.StatusApproved))
	s.Ingest(ctx, obs(2, 40, models.StatusDenied))
	clk.Add(time.Hour)

	st := s.Stats()
	assert.Equal(t, int64(160), st.StatusVolumes[models.StatusApproved])
	assert.Equal(t, int64(40), st.StatusVolumes[models.StatusDenied])
	assert.Equal(t, int64(0), st.StatusVolumes[models.StatusRefunded])
	assert.InDelta(t, 0.8, st.ApprovalRate, 1e-9)
	assert.Equal(t, int64(40), st.CurrentVolume)
	assert.Equal(t, VolumeWindow{Min: 40, Max: 100, Avg: 200.0 / 3, Size: 3}, st.Window)
	assert.InDelta(t, 200.0/3, st.AverageVolume, 1e-9)
	assert.Equal(t, time.Hour, st.Uptime)
}

func TestStatsIgnoresUnknownStatus(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()

	s.Ingest(ctx, obs(0, 100, models.StatusApproved))
	s.Ingest(ctx, obs(1, 80, ""))
	s.Ingest(ctx, obs(2, 70, models.Status("pending")))

	st := s.Stats()
	assert.Equal(t, int64(3), st.TotalProcessed)
	assert.Len(t, st.StatusVolumes, len(models.Statuses))
	assert.NotContains(t, st.StatusVolumes, models.Status(""))
	assert.NotContains(t, st.StatusVolumes, models.Status("pending"))
	assert.InDelta(t, 1.0, st.ApprovalRate, 1e-9)
}

func TestStatsMovingAverageWindow(t *testing.T) {
	s, _, _ := newTestService(t)
	for i := 0; i < 40; i++ {
		v := int64(100)
		if i >= 10 {
			v = 200
		}
		s.Ingest(context.Background(), obs(i, v, models.StatusApproved))
	}

	st := s.Stats()
	assert.Equal(t, 200.0, st.AverageVolume)
	assert.Equal(t, 175.0, st.Window.Avg)
}

func TestRecentAnomaliesFilter(t *testing.T) {
	s, _, _ := newTestService(t)
	warmUp(t, s)
	ctx := context.Background()

	// denied adds a WARNING
	s.Ingest(ctx, obs(30, 115, models.StatusDenied))
	s.Ingest(ctx, obs(31, 10, models.StatusApproved))

	all := s.RecentAnomalies(0)
	require.Len(t, all, 2)

	critical := s.RecentAnomalies(0, models.SeverityCritical)
	require.Len(t, critical, 1)
	assert.Equal(t, int64(10), critical[0].Observation.Volume)

	last := s.RecentAnomalies(1)
	require.Len(t, last, 1)
	assert.Equal(t, int64(10), last[0].Observation.Volume)
}

func TestReset(t *testing.T) {
	s, _, _ := newTestService(t)
	warmUp(t, s)
	s.Ingest(context.Background(), obs(30, 10, models.StatusApproved))
	s.Close()

	s.Reset()

	st := s.Stats()
	assert.Zero(t, st.TotalProcessed)
	assert.Zero(t, st.TotalAnomalies)
	assert.Zero(t, st.Alerts.Total)
	assert.Equal(t, VolumeWindow{}, st.Window)
	assert.Equal(t, models.Baseline{Mean: 100, Std: 20}, st.Baseline)
	assert.Empty(t, s.RecentAnomalies(0))
	assert.Zero(t, s.Patterns().Len())
	assert.Equal(t, []float64{100}, s.recentVolumes())
}
