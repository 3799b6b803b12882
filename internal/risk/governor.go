// Package risk is the final authorization gate before execution and the
// custodian of realized PnL and the emergency stop.
package risk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"crossarb/internal/domain"
	"crossarb/internal/metrics"
)

// Config holds the governor limits.
type Config struct {
	// MaxOpenTrades caps the number of concurrently open orders.
	MaxOpenTrades int
	// EmergencyStopLossUSD trips the emergency stop when cumulative PnL
	// drops below its negation.
	EmergencyStopLossUSD float64
	// AutoResume re-enables trading when PnL climbs back above the stop
	// threshold. Off by default: a tripped stop normally requires an
	// operator decision.
	AutoResume bool
}

// OpenOrderCounter reports the number of orders in a non-terminal state. The
// order tracker implements it.
type OpenOrderCounter interface {
	OpenOrderCount() int
}

// Governor owns the risk state. All mutations go through it; nothing else
// writes the PnL or the stop flag.
type Governor struct {
	cfg     Config
	store   domain.PnLStore
	counter OpenOrderCounter
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu      sync.Mutex
	pnlUSD  float64
	stopped bool
}

// New creates a Governor. m may be nil.
func New(cfg Config, store domain.PnLStore, counter OpenOrderCounter, m *metrics.Metrics, logger *slog.Logger) *Governor {
	return &Governor{
		cfg:     cfg,
		store:   store,
		counter: counter,
		metrics: m,
		logger:  logger.With(slog.String("component", "risk")),
	}
}

// LoadPnL restores the cumulative PnL from the store. A missing record means
// a fresh start at zero.
func (g *Governor) LoadPnL(ctx context.Context) error {
	pnl, err := g.store.Load(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("risk: load pnl: %w", err)
	}

	g.mu.Lock()
	g.pnlUSD = pnl
	g.mu.Unlock()

	if g.metrics != nil {
		g.metrics.RealizedPnLUSD.Set(pnl)
	}
	g.logger.Info("pnl restored", slog.Float64("pnl_usd", pnl))
	return nil
}

// IsTradeSafe authorizes an opportunity for execution. The emergency stop
// dominates every other check.
func (g *Governor) IsTradeSafe(opp domain.Opportunity) bool {
	if g.Stopped() || g.CheckEmergencyStop() {
		g.logger.Warn("trade blocked by emergency stop",
			slog.String("opportunity", opp.ID))
		return false
	}
	if open := g.counter.OpenOrderCount(); open >= g.cfg.MaxOpenTrades {
		g.logger.Info("trade blocked by open order cap",
			slog.String("opportunity", opp.ID),
			slog.Int("open_orders", open),
			slog.Int("max", g.cfg.MaxOpenTrades))
		return false
	}
	return true
}

// CheckEmergencyStop reports whether cumulative PnL has breached the stop
// threshold. It is a pure read; tripping is a separate action.
func (g *Governor) CheckEmergencyStop() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pnlUSD < -g.cfg.EmergencyStopLossUSD
}

// RecordFill applies the realized PnL of a completed buy/sell pair and
// persists the new total before returning. Returns the delta.
func (g *Governor) RecordFill(ctx context.Context, buy, sell domain.Order) (float64, error) {
	delta := (sell.Cost - sell.FeePaid) - (buy.Cost + buy.FeePaid)

	g.mu.Lock()
	g.pnlUSD += delta
	total := g.pnlUSD
	g.mu.Unlock()

	if g.metrics != nil {
		g.metrics.RealizedPnLUSD.Set(total)
	}
	g.logger.Info("fill recorded",
		slog.Float64("delta_usd", delta),
		slog.Float64("pnl_usd", total))

	if err := g.store.Save(ctx, total); err != nil {
		return delta, fmt.Errorf("risk: persist pnl: %w", err)
	}
	return delta, nil
}

// Trip disables trading. It is idempotent.
func (g *Governor) Trip(reason string) {
	g.mu.Lock()
	already := g.stopped
	g.stopped = true
	g.mu.Unlock()

	if g.metrics != nil {
		g.metrics.EmergencyStop.Set(1)
	}
	if !already {
		g.logger.Error("emergency stop tripped", slog.String("reason", reason))
	}
}

// Resume re-enables trading after an operator (or auto-resume) decision.
func (g *Governor) Resume() {
	g.mu.Lock()
	g.stopped = false
	g.mu.Unlock()

	if g.metrics != nil {
		g.metrics.EmergencyStop.Set(0)
	}
	g.logger.Warn("emergency stop cleared, trading resumed")
}

// Stopped reports whether the emergency stop has been tripped.
func (g *Governor) Stopped() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stopped
}

// AutoResume reports whether the governor is configured to clear the stop on
// recovery.
func (g *Governor) AutoResume() bool {
	return g.cfg.AutoResume
}

// PnL returns the current cumulative realized PnL in USD.
func (g *Governor) PnL() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pnlUSD
}

// FlushPnL persists the current total. Called on shutdown.
func (g *Governor) FlushPnL(ctx context.Context) error {
	g.mu.Lock()
	total := g.pnlUSD
	g.mu.Unlock()
	if err := g.store.Save(ctx, total); err != nil {
		return fmt.Errorf("risk: flush pnl: %w", err)
	}
	return nil
}
