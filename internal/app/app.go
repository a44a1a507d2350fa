package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"liquidation-zone-alerts/internal/alerting"
	"liquidation-zone-alerts/internal/config"
	"liquidation-zone-alerts/internal/cooldown"
	"liquidation-zone-alerts/internal/fetcher"
	"liquidation-zone-alerts/internal/scheduler"
	"liquidation-zone-alerts/internal/service"
	"liquidation-zone-alerts/internal/storage"
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

func (a *App) newFetchers() (fetcher.PriceFetcher, fetcher.ZoneFetcher) {
	prices := fetcher.NewPrice(fetcher.PriceOptions{
		BaseURL:   a.Config.Market.PriceBaseURL,
		Symbol:    a.Config.Market.Symbol,
		Timeout:   a.Config.Market.RequestTimeout,
		UserAgent: a.Config.Market.UserAgent,
	}, a.Logger)

	zones := fetcher.NewZones(fetcher.ZoneOptions{
		BaseURL:   a.Config.Market.HeatmapBaseURL,
		Symbol:    a.Config.Market.Symbol,
		Timeout:   a.Config.Market.RequestTimeout,
		UserAgent: a.Config.Market.UserAgent,
		APIKey:    a.Config.Market.HeatmapAPIKey,
	}, a.Logger)

	return prices, zones
}

func (a *App) newChannels() []alerting.Channel {
	channels := make([]alerting.Channel, 0, 3)

	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		channels = append(channels, alerting.NewTelegramChannel(cfg.BotToken, cfg.ChatID, cfg.APIBase, a.Config.Alerting.DispatchTimeout, a.Logger))
	}
	if a.Config.Alerting.Discord.Enabled {
		cfg := a.Config.Alerting.Discord
		channels = append(channels, alerting.NewDiscordChannel(cfg.WebhookURL, a.Config.Alerting.DispatchTimeout, a.Logger))
	}
	if a.Config.Alerting.Email.Enabled {
		cfg := a.Config.Alerting.Email
		channels = append(channels, alerting.NewEmailChannel(alerting.EmailOptions{
			Host:     cfg.Host,
			Port:     cfg.Port,
			Username: cfg.Username,
			Password: cfg.Password,
			From:     cfg.From,
			To:       cfg.To,
			StartTLS: cfg.StartTLS,
			Timeout:  a.Config.Alerting.DispatchTimeout,
		}, a.Logger))
	}

	return channels
}

func (a *App) newDispatcher() (*alerting.Dispatcher, error) {
	filters, err := a.Config.SeverityFilters()
	if err != nil {
		return nil, err
	}
	return alerting.NewDispatcher(a.newChannels(), filters, a.Config.Alerting.DispatchTimeout, a.Logger), nil
}

func (a *App) newCooldownManager(store cooldown.Store) *cooldown.Manager {
	cfg := a.Config.Alerting.Cooldown
	return cooldown.NewManager(store, cooldown.Options{
		PerZone:        time.Duration(cfg.PerZoneMinutes) * time.Minute,
		MaxDailyAlerts: cfg.MaxDailyAlerts,
		MaxAttempts:    cfg.MaxAttempts,
		RetryDelay:     cfg.RetryDelay,
	}, a.Logger)
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

// Run executes the long-running monitoring service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database.dsn must be configured; cooldown state is persisted")
	}
	if closeStore != nil {
		defer closeStore()
	}

	// Opportunistic retention sweep before the loop starts.
	cutoff := cooldown.UTCDay(time.Now()).AddDate(0, 0, -a.Config.Retention.AlertHistoryDays)
	if deleted, err := store.CleanupOldAlerts(ctx, cutoff); err != nil {
		a.Logger.Warn().Err(err).Msg("startup history cleanup failed")
	} else if deleted > 0 {
		a.Logger.Info().Int64("deleted", deleted).Msg("purged expired alert history")
	}

	sched := scheduler.New(scheduler.Options{
		Interval:       a.Config.Scheduler.Interval,
		AlignToStart:   a.Config.Scheduler.AlignToBucket,
		StartupDelay:   a.Config.Scheduler.StartupDelay,
		FailureBackoff: a.Config.Scheduler.FailureBackoff,
	}, a.Logger)

	prices, zones := a.newFetchers()

	dispatcher, err := a.newDispatcher()
	if err != nil {
		return err
	}

	manager := a.newCooldownManager(store)

	svc := service.New(a.Config, sched, prices, zones, manager, dispatcher, store, a.Logger)

	a.Logger.Info().Str("symbol", a.Config.Market.Symbol).Msg("starting liquidation zone monitor")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("monitor terminated with error")
		return err
	}

	a.Logger.Info().Msg("monitor stopped")
	return nil
}

// ExportOptions hold parameters for exporting alert history.
type ExportOptions struct {
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
