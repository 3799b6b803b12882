// Package app wires the bot's components together and owns the top-level
// task lifecycle: venue bring-up, streaming, the scan/execute loop, the
// emergency-stop poll, reconciliation, archival, and graceful shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"crossarb/internal/config"
	"crossarb/internal/executor"
	"crossarb/internal/risk"
)

// App is the root application object. It owns the configuration, logger, and
// cleanup functions that run in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates an App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires dependencies, connects venues, starts every task and blocks
// until ctx is cancelled or a task fails fatally.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting",
		slog.String("mode", a.cfg.Mode),
		slog.Int("venues", len(a.cfg.EnabledVenues())))

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		cleanup()
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	if a.cfg.Live() && a.cfg.Trading.LiveWarmupDelay.Duration > 0 {
		a.logger.Warn("LIVE MODE: real orders will be placed",
			slog.Duration("starting_in", a.cfg.Trading.LiveWarmupDelay.Duration))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(a.cfg.Trading.LiveWarmupDelay.Duration):
		}
	}

	deps.Conns.InitializeAll(ctx, deps.Clients)
	if n := deps.Conns.Len(); n < 2 {
		deps.Conns.CloseAll()
		return fmt.Errorf("app: %d venue(s) connected, arbitrage needs at least 2", n)
	}
	deps.Metrics.VenuesConnected.Set(float64(deps.Conns.Len()))

	// Fees come from the instrument metadata loaded at connect time.
	for _, conn := range deps.Conns.All() {
		deps.FeeBook.LoadVenue(conn.Name, conn.Instruments)
	}

	if err := deps.Governor.LoadPnL(ctx); err != nil {
		deps.Conns.CloseAll()
		return fmt.Errorf("app: restore pnl: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return deps.Ingestor.Run(gctx) })
	g.Go(func() error { return a.scanLoop(gctx, deps) })
	g.Go(func() error { return a.emergencyLoop(gctx, deps) })
	g.Go(func() error { return a.reconcileLoop(gctx, deps) })
	if deps.Archiver != nil {
		g.Go(func() error { return deps.Archiver.Run(gctx) })
	}
	if a.cfg.Metrics.Enabled {
		g.Go(func() error { return a.serveMetrics(gctx, deps) })
	}

	err = g.Wait()

	// Shutdown: stop streams, close venues, flush the PnL record.
	deps.Conns.CloseAll()
	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if ferr := deps.Governor.FlushPnL(flushCtx); ferr != nil {
		a.logger.Error("pnl flush failed", slog.Any("error", ferr))
	}

	if errors.Is(err, context.Canceled) {
		return context.Canceled
	}
	return err
}

// scanLoop consumes scan triggers, paced by the scan cooldown, and feeds
// qualifying opportunities through the risk governor into the executor. At
// most one opportunity is executed per scan.
func (a *App) scanLoop(ctx context.Context, deps *Deps) error {
	cooldown := a.cfg.Trading.ScanCooldown.Duration
	var lastScan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deps.Trigger.C():
		}

		// Debounce: wait out the remainder of the cooldown so bursts
		// of triggers collapse into one scan.
		if wait := cooldown - time.Since(lastScan); wait > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}
		dirty := deps.Trigger.Drain()
		if len(dirty) == 0 {
			continue
		}
		lastScan = time.Now()

		deps.Metrics.ScansTotal.Inc()
		opp, found := deps.Scanner.Scan(deps.Ingestor.Books())
		if !found {
			continue
		}
		deps.Metrics.OpportunitiesFound.Inc()
		a.logger.Info("opportunity found",
			slog.String("instrument", opp.Instrument),
			slog.String("buy_venue", opp.BuyVenue),
			slog.String("sell_venue", opp.SellVenue),
			slog.Float64("net_pct", opp.NetProfitPct))

		if !deps.Governor.IsTradeSafe(opp) {
			continue
		}

		res := deps.Executor.Execute(ctx, opp)
		if res.Outcome == executor.OutcomeFilled {
			if _, err := deps.Governor.RecordFill(ctx, res.Buy, res.Sell); err != nil {
				a.logger.Error("pnl record failed", slog.Any("error", err))
			}
		}

		// Let fills settle and books refresh before trading again.
		if wait := a.cfg.Trading.PostTradeCooldown.Duration; wait > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}
	}
}

// emergencyLoop polls the stop condition. A breach trips the governor,
// alerts the operator and liquidates everything; with auto_resume set,
// recovery above the threshold clears the stop again.
func (a *App) emergencyLoop(ctx context.Context, deps *Deps) error {
	ticker := time.NewTicker(a.cfg.Risk.CheckInterval.Duration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		breached := deps.Governor.CheckEmergencyStop()
		switch {
		case breached && !deps.Governor.Stopped():
			deps.Governor.Trip(fmt.Sprintf("cumulative pnl %.2f USD below stop loss", deps.Governor.PnL()))
			if err := deps.Notifier.Notify(ctx, "emergency_stop", "EMERGENCY STOP",
				fmt.Sprintf("trading disabled at pnl %.2f USD, liquidating all positions", deps.Governor.PnL())); err != nil {
				a.logger.Error("emergency notification failed", slog.Any("error", err))
			}
			deps.Liquidator.LiquidateAll(ctx)
		case !breached && deps.Governor.Stopped() && deps.Governor.AutoResume():
			deps.Governor.Resume()
		}
	}
}

// reconcileLoop refreshes open orders against venue-reported state.
func (a *App) reconcileLoop(ctx context.Context, deps *Deps) error {
	interval := a.cfg.Risk.ReconcileInterval.Duration
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			deps.Tracker.Reconcile(ctx, deps.Conns)
		}
	}
}

// serveMetrics exposes the Prometheus endpoint until ctx is cancelled.
func (a *App) serveMetrics(ctx context.Context, deps *Deps) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", deps.Metrics.Handler())
	srv := &http.Server{Addr: a.cfg.Metrics.Addr, Handler: mux}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	a.logger.Info("metrics endpoint up", slog.String("addr", a.cfg.Metrics.Addr))
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errc:
		return fmt.Errorf("app: metrics server: %w", err)
	}
}

// Close tears down all resources in reverse registration order.
func (a *App) Close() {
	a.logger.Info("shutting down")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

var _ risk.OpenOrderCounter = (*executor.Tracker)(nil)
