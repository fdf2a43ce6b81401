package alert

import (
	"context"
	"fmt"
	"html"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/Alias1177/Guardian/models"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"
	"golang.org/x/time/rate"
)

// TelegramSender is the part of tgbotapi.BotAPI the channel needs
type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramChannel pushes alerts to every subscribed chat
type TelegramChannel struct {
	sender  TelegramSender
	limiter *rate.Limiter
	logger  zerolog.Logger

	mu          sync.RWMutex
	subscribers map[int64]struct{}
}

// Telegram allows about 30 messages per second per bot
const telegramRate = 20

func NewTelegramChannel(sender TelegramSender, chatIDs []int64, logger zerolog.Logger) *TelegramChannel {
	t := &TelegramChannel{
		sender:      sender,
		limiter:     rate.NewLimiter(rate.Every(time.Second/telegramRate), 1),
		logger:      logger.With().Str("channel", ChannelTelegram).Logger(),
		subscribers: make(map[int64]struct{}, len(chatIDs)),
	}
	for _, id := range chatIDs {
		t.subscribers[id] = struct{}{}
	}
	return t
}

func (t *TelegramChannel) Name() string { return ChannelTelegram }

// Subscribe adds a chat; it reports false if the chat was already subscribed
func (t *TelegramChannel) Subscribe(chatID int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.subscribers[chatID]; ok {
		return false
	}
	t.subscribers[chatID] = struct{}{}
	return true
}

// Unsubscribe removes a chat; it reports false if the chat was not subscribed
func (t *TelegramChannel) Unsubscribe(chatID int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.subscribers[chatID]; !ok {
		return false
	}
	delete(t.subscribers, chatID)
	return true
}

// Subscribers returns the subscribed chat IDs in ascending order
func (t *TelegramChannel) Subscribers() []int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	ids := make([]int64, 0, len(t.subscribers))
	for id := range t.subscribers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (t *TelegramChannel) Send(ctx context.Context, alert models.AlertEvent) error {
	text := FormatTelegramAlert(alert)

	var errs error
	for _, chatID := range t.Subscribers() {
		if err := t.limiter.Wait(ctx); err != nil {
			return multierr.Append(errs, err)
		}

		msg := tgbotapi.NewMessage(chatID, text)
		msg.ParseMode = tgbotapi.ModeHTML

		if _, err := t.sender.Send(msg); err != nil {
			t.logger.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to send alert message")
			errs = multierr.Append(errs, fmt.Errorf("chat %d: %w", chatID, err))
		}
	}
	return errs
}

// FormatTelegramAlert renders an alert as an HTML message
func FormatTelegramAlert(alert models.AlertEvent) string {
	icon := "⚠️"
	if alert.Severity == models.SeverityCritical {
		icon = "🚨"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s <b>%s transaction alert</b>\n\n", icon, alert.Severity)
	fmt.Fprintf(&b, "Score: <code>%.2f</code>\n", alert.Score)
	fmt.Fprintf(&b, "Volume: <code>%d</code>\n", alert.Context.Volume)
	fmt.Fprintf(&b, "Status: %s\n", html.EscapeString(string(alert.Context.Status)))
	fmt.Fprintf(&b, "Auth code: <code>%s</code>\n", html.EscapeString(alert.Context.AuthCode))
	fmt.Fprintf(&b, "Time: %s\n", alert.Timestamp.Format(time.RFC3339))

	if len(alert.Violations) > 0 {
		b.WriteString("\nViolations:\n")
		for _, v := range alert.Violations {
			fmt.Fprintf(&b, "• %s\n", html.EscapeString(v.Message))
		}
	}
	return b.String()
}
