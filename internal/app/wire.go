package app

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	s3blob "crossarb/internal/blob/s3"
	rediscache "crossarb/internal/cache/redis"
	"crossarb/internal/config"
	"crossarb/internal/connmgr"
	"crossarb/internal/domain"
	"crossarb/internal/executor"
	"crossarb/internal/marketdata"
	"crossarb/internal/metrics"
	"crossarb/internal/notify"
	"crossarb/internal/resilience"
	"crossarb/internal/risk"
	"crossarb/internal/scanner"
	"crossarb/internal/store/memory"
	"crossarb/internal/store/postgres"
	"crossarb/internal/venue"
)

// Deps bundles every constructed component.
type Deps struct {
	Metrics    *metrics.Metrics
	Breaker    *resilience.Breaker
	Conns      *connmgr.Manager
	Clients    map[string]domain.VenueClient
	Trigger    *marketdata.Trigger
	Ingestor   *marketdata.Ingestor
	FeeBook    *scanner.FeeBook
	Scanner    *scanner.Scanner
	Governor   *risk.Governor
	Tracker    *executor.Tracker
	Executor   *executor.Executor
	Liquidator *executor.Liquidator
	Notifier   *notify.Notifier
	Archiver   *s3blob.Archiver
}

// Wire constructs the full dependency graph from configuration. The returned
// cleanup closes infrastructure clients; it is safe to call after a partial
// failure has already been returned as an error.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Deps, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	m := metrics.New()

	breaker := resilience.New(resilience.Config{
		FailureThreshold: cfg.Circuit.FailureThreshold,
		RecoveryTimeout:  cfg.Circuit.RecoveryTimeout.Duration,
		BackoffBase:      cfg.Circuit.BackoffBase,
		MaxBackoff:       cfg.Circuit.MaxBackoff.Duration,
	})
	conns := connmgr.New(breaker, logger)

	clients, err := buildVenueClients(cfg)
	if err != nil {
		return nil, cleanup, err
	}

	// Durable stores: PostgreSQL when configured, in-memory otherwise.
	var (
		pnlStore   domain.PnLStore
		orderStore domain.OrderStore
	)
	if cfg.Postgres.Enabled {
		pg, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			return nil, cleanup, fmt.Errorf("app: postgres: %w", err)
		}
		closers = append(closers, pg.Close)
		if cfg.Postgres.RunMigrations {
			if err := pg.RunMigrations(ctx); err != nil {
				return nil, cleanup, fmt.Errorf("app: migrations: %w", err)
			}
		}
		pnlStore = postgres.NewPnLStore(pg.Pool())
		orderStore = postgres.NewOrderStore(pg.Pool())
	} else {
		logger.Warn("postgres disabled, pnl and orders are memory-only")
		pnlStore = memory.NewPnLStore()
		orderStore = memory.NewOrderStore()
	}

	// Optional Redis book mirror.
	var mirror domain.BookMirror
	if cfg.Redis.Enabled {
		rc, err := rediscache.New(ctx, rediscache.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			return nil, cleanup, fmt.Errorf("app: redis: %w", err)
		}
		closers = append(closers, func() { _ = rc.Close() })
		mirror = rediscache.NewBookMirror(rc)
	}

	// Optional S3 order archiver.
	var archiver *s3blob.Archiver
	if cfg.S3.Enabled {
		sc, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return nil, cleanup, fmt.Errorf("app: s3: %w", err)
		}
		archiver = s3blob.NewArchiver(orderStore, s3blob.NewWriter(sc),
			cfg.S3.ArchiveInterval.Duration, cfg.S3.ArchiveMaxAge.Duration,
			cfg.S3.Prefix, logger)
	}

	notifier := buildNotifier(cfg, logger)

	feeBook := scanner.NewFeeBook(cfg.Trading.DefaultTakerFeePct)
	for name, v := range cfg.EnabledVenues() {
		if v.TakerFeePct != nil {
			feeBook.SetVenueDefault(name, *v.TakerFeePct)
		}
	}

	trigger := marketdata.NewTrigger()
	ingestor := marketdata.New(conns, breaker, trigger, mirror, m, cfg.Instruments(), logger)
	scan := scanner.New(scanner.Config{MinProfitPct: cfg.Trading.MinProfitPct}, feeBook, logger)

	tracker := executor.NewTracker(orderStore, m, logger)
	governor := risk.New(risk.Config{
		MaxOpenTrades:        cfg.Trading.MaxOpenTrades,
		EmergencyStopLossUSD: cfg.Risk.EmergencyStopLossUSD,
		AutoResume:           cfg.Risk.AutoResume,
	}, pnlStore, tracker, m, logger)
	exec := executor.New(executor.Config{
		MaxTradeSizeUSD: cfg.Trading.MaxTradeSizeUSD,
	}, conns, tracker, notifier, m, logger)
	liquidator := executor.NewLiquidator(conns, tracker, logger)

	return &Deps{
		Metrics:    m,
		Breaker:    breaker,
		Conns:      conns,
		Clients:    clients,
		Trigger:    trigger,
		Ingestor:   ingestor,
		FeeBook:    feeBook,
		Scanner:    scan,
		Governor:   governor,
		Tracker:    tracker,
		Executor:   exec,
		Liquidator: liquidator,
		Notifier:   notifier,
		Archiver:   archiver,
	}, cleanup, nil
}

// buildVenueClients constructs a client per enabled venue. Simulated venues
// get a per-venue price bias so their books occasionally cross.
func buildVenueClients(cfg *config.Config) (map[string]domain.VenueClient, error) {
	registry := venue.NewRegistry()
	if err := cfg.ValidateVenueDrivers(registry.Supported); err != nil {
		return nil, err
	}

	enabled := cfg.EnabledVenues()
	names := make([]string, 0, len(enabled))
	for name := range enabled {
		names = append(names, name)
	}
	sort.Strings(names)

	clients := make(map[string]domain.VenueClient, len(names))
	for i, name := range names {
		v := enabled[name]
		if v.Driver == "sim" {
			bias := (float64(i) - float64(len(names)-1)/2) * 0.35
			clients[name] = venue.NewPaper(name,
				venue.WithTick(250*time.Millisecond),
				venue.WithPriceBias(bias))
			continue
		}
		client, err := registry.New(v.Driver, venue.Settings{
			Name:      name,
			APIKey:    v.APIKey,
			APISecret: v.APISecret,
		})
		if err != nil {
			return nil, fmt.Errorf("app: venue %s: %w", name, err)
		}
		clients[name] = client
	}
	return clients, nil
}

func buildNotifier(cfg *config.Config, logger *slog.Logger) *notify.Notifier {
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	return notify.NewNotifier(senders, cfg.Notify.Events, logger)
}
