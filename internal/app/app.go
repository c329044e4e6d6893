package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"threshold-alerts/internal/alerting"
	"threshold-alerts/internal/config"
	"threshold-alerts/internal/cooldown"
	"threshold-alerts/internal/feed"
	"threshold-alerts/internal/service"
	"threshold-alerts/internal/storage"
	"threshold-alerts/internal/thresholds"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newLoader() thresholds.Loader {
	return thresholds.NewCSVLoader(thresholds.CSVOptions{
		URL:       a.Config.Thresholds.CSVURL,
		Timeout:   a.Config.Thresholds.RequestTimeout,
		UserAgent: a.Config.Feed.UserAgent,
	}, a.Logger)
}

func (a *App) newFeed() feed.Provider {
	return feed.NewClient(feed.Options{
		BaseURL:    a.Config.Feed.BaseURL,
		Cookie:     a.Config.Feed.Cookie,
		UserAgent:  a.Config.Feed.UserAgent,
		WatchCodes: a.Config.Feed.WatchCodes,
		Timeout:    a.Config.Feed.RequestTimeout,
	}, a.Logger)
}

func (a *App) newNotifier() (alerting.Notifier, error) {
	if !a.Config.Alerting.Enabled {
		return nil, errors.New("alerting.enabled is false; nothing to deliver")
	}
	cfg := a.Config.Alerting.Telegram
	if cfg.BotToken == "" || cfg.ChatID == "" {
		return nil, errors.New("alerting.telegram.bot_token and chat_id are required")
	}
	return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 15*time.Second, a.Logger), nil
}

// newGate opens the shared suppression store. With fail_open set an
// unreachable store degrades to a warning; otherwise it aborts the run,
// since a fail-closed pass without the store could never send anything.
func (a *App) newGate(ctx context.Context) (cooldown.Gate, func(), error) {
	if a.Config.Cooldown.RedisURL == "" {
		return nil, nil, errors.New("cooldown.redis_url is required")
	}

	opts, err := redis.ParseURL(a.Config.Cooldown.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse cooldown.redis_url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		if !a.Config.Cooldown.FailOpen {
			_ = client.Close()
			return nil, nil, fmt.Errorf("ping cooldown store: %w", err)
		}
		a.Logger.Error().Err(err).Msg("cooldown store unreachable at startup; continuing fail-open")
	}

	closer := func() {
		_ = client.Close()
	}
	return cooldown.NewRedisGate(client, a.Logger), closer, nil
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// Run executes a single watch pass and exits.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	notifier, err := a.newNotifier()
	if err != nil {
		return err
	}

	gate, closeGate, err := a.newGate(ctx)
	if err != nil {
		return err
	}
	defer closeGate()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; alert audit disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	var alertStore storage.AlertStore
	if store != nil {
		alertStore = store
	}

	svc := service.New(a.Config, a.newLoader(), a.newFeed(), gate, notifier, alertStore, a.Logger)

	summary, err := svc.RunOnce(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("watch pass terminated with error")
		return err
	}

	a.Logger.Info().Int("sent", summary.Sent).Msg("one-shot run complete")
	return nil
}

// ExportOptions hold parameters for exporting alert history.
type ExportOptions struct {
	Symbol    string
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}
