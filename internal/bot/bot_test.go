package bot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Alias1177/Guardian/internal/alert"
	"github.com/Alias1177/Guardian/internal/guardian"
	"github.com/Alias1177/Guardian/models"
	"github.com/benbjohnson/clock"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	operator = int64(1001)
	stranger = int64(2002)
)

type fakeSender struct {
	sent []tgbotapi.MessageConfig
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.sent = append(f.sent, c.(tgbotapi.MessageConfig))
	return tgbotapi.Message{}, nil
}

type fakeStore struct {
	added, removed []int64
	err            error
}

func (s *fakeStore) AddSubscriber(_ context.Context, id int64) error {
	s.added = append(s.added, id)
	return s.err
}

func (s *fakeStore) RemoveSubscriber(_ context.Context, id int64) error {
	s.removed = append(s.removed, id)
	return s.err
}

var start = time.Date(2025, 7, 12, 14, 0, 0, 0, time.UTC)

func newTestBot(t *testing.T) (*Bot, *fakeSender, *fakeStore, *guardian.Service, *alert.TelegramChannel) {
	t.Helper()
	clk := clock.NewMock()
	clk.Set(start)

	sender := &fakeSender{}
	tg := alert.NewTelegramChannel(sender, nil, zerolog.Nop())
	svc := guardian.New(guardian.DefaultConfig(), guardian.Deps{
		Channels: []models.Channel{alert.NewConsoleChannel(zerolog.Nop())},
		Clock:    clk,
		Logger:   zerolog.Nop(),
	})
	t.Cleanup(svc.Close)

	store := &fakeStore{}
	return New(sender, svc, tg, store, []int64{operator}, zerolog.Nop()), sender, store, svc, tg
}

func ingest(svc *guardian.Service, i int, volume int64) {
	svc.Ingest(context.Background(), models.Observation{
		Timestamp: start.Add(time.Duration(i) * time.Minute),
		Volume:    volume,
		Status:    models.StatusApproved,
		AuthCode:  "00",
	})
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		text    string
		command string
		args    string
		ok      bool
	}{
		{"/stats", "/stats", "", true},
		{"/Forecast 12", "/forecast", "12", true},
		{"/anomalies@guardian_bot  3 ", "/anomalies", "3", true},
		{"hello", "", "", false},
		{"", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			command, args, ok := parseCommand(tt.text)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.command, command)
			assert.Equal(t, tt.args, args)
		})
	}
}

func TestIntArg(t *testing.T) {
	assert.Equal(t, 6, intArg("", 6, 24))
	assert.Equal(t, 6, intArg("-2", 6, 24))
	assert.Equal(t, 3, intArg("3", 6, 24))
	assert.Equal(t, 24, intArg("100", 6, 24))
}

func TestReplyRefusesUnknownChats(t *testing.T) {
	b, _, _, _, _ := newTestBot(t)
	assert.Contains(t, b.Reply(context.Background(), stranger, "/stats", ""), "Access denied")
}

func TestReplyCommands(t *testing.T) {
	b, _, _, svc, _ := newTestBot(t)
	ctx := context.Background()

	assert.Equal(t, "No transactions processed yet.", b.Reply(ctx, operator, "/stats", ""))
	assert.Equal(t, "✅ No recent anomalies!", b.Reply(ctx, operator, "/anomalies", ""))
	assert.Equal(t, "No recurring patterns yet.", b.Reply(ctx, operator, "/patterns", ""))

	for i := 0; i < 30; i++ {
		v := int64(130)
		if i%2 == 1 {
			v = 100
		}
		ingest(svc, i, v)
	}
	ingest(svc, 30, 10)
	svc.Close()

	stats := b.Reply(ctx, operator, "/stats", "")
	assert.Contains(t, stats, "Total: <b>31</b>")
	assert.Contains(t, stats, "Anomalies: <b>1</b>")

	anomalies := b.Reply(ctx, operator, "/anomalies", "")
	assert.Contains(t, anomalies, "🔴")
	assert.Contains(t, anomalies, "LOW_VOLUME: 10 &lt; 50")

	status := b.Reply(ctx, operator, "/status", "")
	assert.Contains(t, status, "warming_up")
	assert.Contains(t, status, "1 critical")
	assert.Contains(t, status, "console")

	forecast := b.Reply(ctx, operator, "/forecast", "2")
	assert.Contains(t, forecast, "next 2h")
	assert.Contains(t, forecast, "14:00")
	assert.Contains(t, forecast, "15:30")

	assert.Equal(t, helpText, b.Reply(ctx, operator, "/help", ""))
	assert.Contains(t, b.Reply(ctx, operator, "/nope", ""), "Unknown command")
}

func TestSubscribeAndUnsubscribe(t *testing.T) {
	b, _, store, _, tg := newTestBot(t)
	ctx := context.Background()

	assert.Equal(t, "✅ Subscribed to alerts.", b.Reply(ctx, operator, "/subscribe", ""))
	assert.Equal(t, "You are already subscribed.", b.Reply(ctx, operator, "/subscribe", ""))
	assert.Equal(t, []int64{operator}, tg.Subscribers())

	assert.Equal(t, "🔕 Alerts disabled.", b.Reply(ctx, operator, "/unsubscribe", ""))
	assert.Equal(t, "You are not subscribed.", b.Reply(ctx, operator, "/unsubscribe", ""))
	assert.Empty(t, tg.Subscribers())

	assert.Equal(t, []int64{operator}, store.added)
	assert.Equal(t, []int64{operator}, store.removed)
}

func TestSubscribeStoreFailureKeepsMemoryState(t *testing.T) {
	b, _, store, _, tg := newTestBot(t)
	store.err = errors.New("connection reset")

	assert.Equal(t, "✅ Subscribed to alerts.", b.Reply(context.Background(), operator, "/subscribe", ""))
	assert.Equal(t, []int64{operator}, tg.Subscribers())
}

func TestHandleMessageSendsHTMLReply(t *testing.T) {
	b, sender, _, _, _ := newTestBot(t)

	b.HandleMessage(context.Background(), &tgbotapi.Message{Text: "/help", Chat: &tgbotapi.Chat{ID: operator}})
	b.HandleMessage(context.Background(), &tgbotapi.Message{Text: "just chatting", Chat: &tgbotapi.Chat{ID: operator}})

	require.Len(t, sender.sent, 1)
	assert.Equal(t, operator, sender.sent[0].ChatID)
	assert.Equal(t, tgbotapi.ModeHTML, sender.sent[0].ParseMode)
	assert.Equal(t, helpText, sender.sent[0].Text)
}

func TestRunStopsWhenUpdatesClose(t *testing.T) {
	b, sender, _, _, _ := newTestBot(t)

	updates := make(chan tgbotapi.Update, 2)
	updates <- tgbotapi.Update{Message: &tgbotapi.Message{Text: "/start", Chat: &tgbotapi.Chat{ID: operator}}}
	updates <- tgbotapi.Update{Message: &tgbotapi.Message{Text: "/stats", Chat: &tgbotapi.Chat{ID: stranger}}}
	close(updates)

	b.Run(context.Background(), updates)
	require.Len(t, sender.sent, 2)
	assert.Contains(t, sender.sent[1].Text, "Access denied")
}
