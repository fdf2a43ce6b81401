package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Alias1177/Guardian/internal/alert"
	"github.com/Alias1177/Guardian/internal/anomaly"
	"github.com/Alias1177/Guardian/internal/bot"
	"github.com/Alias1177/Guardian/internal/config"
	"github.com/Alias1177/Guardian/internal/database"
	"github.com/Alias1177/Guardian/internal/guardian"
	"github.com/Alias1177/Guardian/internal/metrics"
	httpclient "github.com/Alias1177/Guardian/internal/platform/http"
	"github.com/Alias1177/Guardian/models"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	_ "github.com/lib/pq"
)

// output is one line written per ingested observation
type output struct {
	Observation models.Observation     `json:"observation"`
	Result      models.DetectionResult `json:"result"`
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		l := zerolog.New(os.Stderr)
		l.Fatal().Err(err).Msg("Failed to load config")
	}

	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, os.Stdin, os.Stdout, logger); err != nil {
		logger.Fatal().Err(err).Msg("Guardian stopped with error")
	}
	logger.Info().Msg("Guardian stopped")
}

func newLogger(cfg *config.Config) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	var w io.Writer = os.Stderr
	if cfg.LogFormat == "console" {
		w = zerolog.ConsoleWriter{Out: os.Stderr}
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

func run(ctx context.Context, cfg *config.Config, in io.Reader, out io.Writer, logger zerolog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(reg)

	var scorer models.Scorer
	if cfg.MLEnabled {
		scorer = anomaly.NewGuardedScorer(anomaly.NewIsolationForest(anomaly.DefaultForestConfig()), cfg.MLTimeout(), logger)
	}

	channels := []models.Channel{alert.NewConsoleChannel(logger)}

	if cfg.WebhookURL != "" {
		client := httpclient.NewClient(httpclient.ClientOptions{Timeout: time.Duration(cfg.ChannelTimeoutSeconds) * time.Second})
		channels = append(channels, alert.NewWebhookChannel(cfg.WebhookURL, client, logger))
		logger.Info().Msg("Webhook channel enabled")
	}

	var db *database.DB
	if cfg.DatabaseEnabled() {
		var err error
		db, err = database.New(ctx, cfg.DBParams())
		if err != nil {
			return err
		}
		defer db.Close()
		channels = append(channels, alert.NewPostgresChannel(db))
		logger.Info().Str("host", cfg.DBHost).Msg("Postgres audit channel enabled")
	}

	var (
		api      *tgbotapi.BotAPI
		telegram *alert.TelegramChannel
	)
	if cfg.TelegramBotToken != "" {
		var err error
		api, err = tgbotapi.NewBotAPI(cfg.TelegramBotToken)
		if err != nil {
			return err
		}
		logger.Info().Str("username", api.Self.UserName).Msg("Authorized on Telegram")

		subscribers := append([]int64(nil), cfg.TelegramChatIDs...)
		if db != nil {
			stored, err := db.Subscribers(ctx)
			if err != nil {
				logger.Error().Err(err).Msg("Failed to load stored subscribers")
			}
			subscribers = append(subscribers, stored...)
		}
		telegram = alert.NewTelegramChannel(api, subscribers, logger)
		channels = append(channels, telegram)
	}

	service := guardian.New(cfg.ServiceConfig(), guardian.Deps{
		Scorer:   scorer,
		Channels: channels,
		Metrics:  m,
		Logger:   logger,
	})
	defer service.Close()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().Str("addr", cfg.MetricsAddr).Msg("Serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})

	if api != nil {
		var store bot.SubscriberStore
		if db != nil {
			store = db
		}
		b := bot.New(api, service, telegram, store, cfg.TelegramChatIDs, logger)

		updateConfig := tgbotapi.NewUpdate(0)
		updateConfig.Timeout = 60
		updates := api.GetUpdatesChan(updateConfig)

		g.Go(func() error {
			b.Run(gctx, updates)
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			api.StopReceivingUpdates()
			return nil
		})
	}

	// stdin reads block until EOF; ingestion stays outside the group
	ingestErr := make(chan error, 1)
	go func() {
		err := ingest(gctx, service, in, out, logger)
		ingestErr <- err
		if err == nil {
			logger.Info().Msg("Input closed")
		}
		if err != nil || api == nil {
			cancel()
		}
	}()

	werr := g.Wait()
	select {
	case err := <-ingestErr:
		if err != nil {
			return err
		}
	default:
	}
	return werr
}

// ingest reads newline-delimited JSON observations and writes one result per line
func ingest(ctx context.Context, service *guardian.Service, in io.Reader, out io.Writer, logger zerolog.Logger) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	enc := json.NewEncoder(out)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		obs, err := models.ParseObservation(line, time.Now())
		if err != nil {
			logger.Warn().Err(err).Msg("Skipping invalid observation")
			continue
		}

		result := service.Ingest(ctx, obs)
		if err := enc.Encode(output{Observation: obs, Result: result}); err != nil {
			return err
		}
	}

	return scanner.Err()
}
