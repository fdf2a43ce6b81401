package bot

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	"github.com/Alias1177/Guardian/internal/alert"
	"github.com/Alias1177/Guardian/internal/guardian"
	"github.com/Alias1177/Guardian/models"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

const (
	defaultAnomalies = 5
	maxAnomalies     = 20
	defaultHours     = 6
	maxHours         = 24
)

// SubscriberStore persists alert subscriptions across restarts
type SubscriberStore interface {
	AddSubscriber(ctx context.Context, chatID int64) error
	RemoveSubscriber(ctx context.Context, chatID int64) error
}

// Bot answers operator commands over Telegram. Only allow-listed chats get answers.
type Bot struct {
	sender  alert.TelegramSender
	service *guardian.Service
	alerts  *alert.TelegramChannel
	store   SubscriberStore
	allowed map[int64]struct{}
	logger  zerolog.Logger
}

// New builds a bot; store may be nil when subscriptions live in memory only
func New(sender alert.TelegramSender, service *guardian.Service, alerts *alert.TelegramChannel, store SubscriberStore, allowed []int64, logger zerolog.Logger) *Bot {
	b := &Bot{
		sender:  sender,
		service: service,
		alerts:  alerts,
		store:   store,
		allowed: make(map[int64]struct{}, len(allowed)),
		logger:  logger.With().Str("component", "telegram_bot").Logger(),
	}
	for _, id := range allowed {
		b.allowed[id] = struct{}{}
	}
	if len(b.allowed) == 0 {
		b.logger.Warn().Msg("No chats are allowed, every command will be refused")
	}
	return b
}

// Run handles updates until ctx is done or the channel closes
func (b *Bot) Run(ctx context.Context, updates tgbotapi.UpdatesChannel) {
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message != nil {
				b.HandleMessage(ctx, update.Message)
			}
		}
	}
}

// HandleMessage answers a single command message; other text is ignored
func (b *Bot) HandleMessage(ctx context.Context, message *tgbotapi.Message) {
	if message == nil || message.Chat == nil {
		return
	}
	command, args, ok := parseCommand(message.Text)
	if !ok {
		return
	}

	chatID := message.Chat.ID
	reply := b.Reply(ctx, chatID, command, args)

	msg := tgbotapi.NewMessage(chatID, reply)
	msg.ParseMode = tgbotapi.ModeHTML
	if _, err := b.sender.Send(msg); err != nil {
		b.logger.Error().Err(err).Int64("chat_id", chatID).Str("command", command).Msg("Failed to send reply")
	}
}

// parseCommand splits "/cmd@bot args" into "/cmd" and "args"
func parseCommand(text string) (string, string, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}

	command, args, _ := strings.Cut(text, " ")
	command, _, _ = strings.Cut(strings.ToLower(command), "@")
	return command, strings.TrimSpace(args), true
}

func (b *Bot) authorized(chatID int64) bool {
	_, ok := b.allowed[chatID]
	return ok
}

// Reply produces the HTML answer to a command
func (b *Bot) Reply(ctx context.Context, chatID int64, command, args string) string {
	if !b.authorized(chatID) {
		b.logger.Warn().Int64("chat_id", chatID).Str("command", command).Msg("Refused command from unknown chat")
		return "🔒 Access denied."
	}

	switch command {
	case "/start", "/help":
		return helpText
	case "/status":
		return b.status()
	case "/stats":
		return b.stats()
	case "/anomalies":
		return b.anomalies(intArg(args, defaultAnomalies, maxAnomalies))
	case "/forecast":
		return b.forecast(ctx, intArg(args, defaultHours, maxHours))
	case "/patterns":
		return b.patterns()
	case "/subscribe":
		return b.subscribe(ctx, chatID)
	case "/unsubscribe":
		return b.unsubscribe(ctx, chatID)
	default:
		return "❓ Unknown command. Use /help"
	}
}

const helpText = `🛡️ <b>Transaction Guardian</b>

/status - detector and forecast status
/stats - transaction statistics
/anomalies [n] - latest anomalies
/forecast [hours] - volume forecast
/patterns - recurring volume patterns
/subscribe - receive alerts
/unsubscribe - stop alerts`

// intArg parses a positive integer argument, falling back to def and capping at limit
func intArg(args string, def, limit int) int {
	n, err := strconv.Atoi(strings.TrimSpace(args))
	if err != nil || n < 1 {
		return def
	}
	return min(n, limit)
}

func (b *Bot) status() string {
	fs := b.service.Forecast().Status()
	base := b.service.Detector().Baseline()
	as := b.service.Router().Stats()

	var sb strings.Builder
	sb.WriteString("🛡️ <b>System status</b>\n\n")
	fmt.Fprintf(&sb, "Baseline: mean <code>%.1f</code>, std <code>%.1f</code>\n", base.Mean, base.Std)
	fmt.Fprintf(&sb, "Forecast: <b>%s</b> (%d observations, %d/24 hours, %d/7 days)\n",
		fs.State, fs.Observations, fs.HourlyCoverage, fs.DailyCoverage)
	fmt.Fprintf(&sb, "Alerts: %d critical, %d warning\n", as.Critical, as.Warning)
	fmt.Fprintf(&sb, "Channels: %s\n", strings.Join(b.service.Router().Channels(), ", "))
	if b.alerts != nil {
		fmt.Fprintf(&sb, "Subscribers: %d\n", len(b.alerts.Subscribers()))
	}
	return sb.String()
}

func (b *Bot) stats() string {
	st := b.service.Stats()
	if st.TotalProcessed == 0 {
		return "No transactions processed yet."
	}

	var sb strings.Builder
	sb.WriteString("📊 <b>Statistics</b>\n\n")
	fmt.Fprintf(&sb, "Total: <b>%d</b>\n", st.TotalProcessed)
	fmt.Fprintf(&sb, "Anomalies: <b>%d</b> (%.1f%%)\n", st.TotalAnomalies, st.AnomalyRate*100)
	fmt.Fprintf(&sb, "Approval: <b>%.1f%%</b>\n", st.ApprovalRate*100)
	fmt.Fprintf(&sb, "Volume: last %d, avg %.1f, min %d, max %d\n",
		st.CurrentVolume, st.AverageVolume, st.Window.Min, st.Window.Max)
	sb.WriteString("\n<b>By status:</b>\n")
	for _, s := range models.Statuses {
		fmt.Fprintf(&sb, "- %s: %d\n", s, st.StatusVolumes[s])
	}
	fmt.Fprintf(&sb, "\nUptime: %s", st.Uptime.Truncate(time.Second))
	return sb.String()
}

func (b *Bot) anomalies(limit int) string {
	records := b.service.RecentAnomalies(limit)
	if len(records) == 0 {
		return "✅ No recent anomalies!"
	}

	var sb strings.Builder
	sb.WriteString("🚨 <b>Latest anomalies</b>\n\n")
	// newest first
	for i := len(records) - 1; i >= 0; i-- {
		a := records[i]
		icon := "🟡"
		if a.Severity == models.SeverityCritical {
			icon = "🔴"
		}
		fmt.Fprintf(&sb, "%s %s %s score %.2f volume %d\n", icon, a.Timestamp.Format("15:04:05"), a.Severity, a.Score, a.Observation.Volume)
		for _, v := range a.Violations {
			fmt.Fprintf(&sb, "   • %s\n", html.EscapeString(v.Message))
		}
	}
	return sb.String()
}

func (b *Bot) forecast(ctx context.Context, hours int) string {
	points, err := b.service.Forecast().Forecast(ctx, hours)
	if err != nil {
		b.logger.Error().Err(err).Int("hours", hours).Msg("Forecast failed")
		return "❌ Forecast unavailable."
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "🔮 <b>Forecast, next %dh</b>\n\n", hours)
	for _, p := range points {
		fmt.Fprintf(&sb, "%s  %.0f  %s  %.0f%%\n", p.Timestamp.Format("15:04"), p.PredictedVolume, p.Trend, p.AlertProbability*100)
		if p.Warning != "" {
			fmt.Fprintf(&sb, "   ⚠️ %s\n", html.EscapeString(p.Warning))
		}
	}
	return sb.String()
}

func (b *Bot) patterns() string {
	found := b.service.Forecast().DetectPatterns()
	if len(found) == 0 {
		return "No recurring patterns yet."
	}

	var sb strings.Builder
	sb.WriteString("🔍 <b>Patterns</b>\n\n")
	for _, p := range found {
		fmt.Fprintf(&sb, "<b>%s</b> (%s, %.0f%%)\n%s\n\n", p.Name, p.Frequency, p.Confidence*100, html.EscapeString(p.Description))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (b *Bot) subscribe(ctx context.Context, chatID int64) string {
	if b.alerts == nil {
		return "Alerts are not configured."
	}
	if !b.alerts.Subscribe(chatID) {
		return "You are already subscribed."
	}
	if b.store != nil {
		if err := b.store.AddSubscriber(ctx, chatID); err != nil {
			b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to persist subscription")
		}
	}
	return "✅ Subscribed to alerts."
}

func (b *Bot) unsubscribe(ctx context.Context, chatID int64) string {
	if b.alerts == nil {
		return "Alerts are not configured."
	}
	if !b.alerts.Unsubscribe(chatID) {
		return "You are not subscribed."
	}
	if b.store != nil {
		if err := b.store.RemoveSubscriber(ctx, chatID); err != nil {
			b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to remove subscription")
		}
	}
	return "🔕 Alerts disabled."
}
