package main

import (
	"context"
	"flag"
	"os"
	"slices"
	"time"

	"github.com/Alias1177/Guardian/internal/config"
	"github.com/Alias1177/Guardian/internal/database"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	_ "github.com/lib/pq"
)

// broadcast sends an operator notice (maintenance window, drill) to every alert subscriber
func main() {
	message := flag.String("message", "", "notice text, HTML allowed")
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	if *message == "" {
		logger.Fatal().Msg("-message is required")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load config")
	}
	if cfg.TelegramBotToken == "" {
		logger.Fatal().Msg("TELEGRAM_BOT_TOKEN not set in environment")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	chatIDs := append([]int64(nil), cfg.TelegramChatIDs...)
	if cfg.DatabaseEnabled() {
		db, err := database.New(ctx, cfg.DBParams())
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to initialize database")
		}
		defer db.Close()

		stored, err := db.Subscribers(ctx)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to load subscribers")
		}
		chatIDs = append(chatIDs, stored...)
	}
	slices.Sort(chatIDs)
	chatIDs = slices.Compact(chatIDs)

	bot, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize Telegram bot")
	}

	logger.Info().Int("subscribers", len(chatIDs)).Msg("Broadcasting notice")

	// Telegram allows about 30 messages per second per bot
	limiter := rate.NewLimiter(rate.Every(50*time.Millisecond), 1)

	sent, failed := 0, 0
	for _, chatID := range chatIDs {
		if err := limiter.Wait(ctx); err != nil {
			logger.Error().Err(err).Msg("Broadcast interrupted")
			break
		}

		msg := tgbotapi.NewMessage(chatID, *message)
		msg.ParseMode = tgbotapi.ModeHTML

		if _, err := bot.Send(msg); err != nil {
			logger.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to send notice")
			failed++
			continue
		}
		sent++
	}

	logger.Info().Int("sent", sent).Int("failed", failed).Int("total", len(chatIDs)).Msg("Broadcast completed")
}
