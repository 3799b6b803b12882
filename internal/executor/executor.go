// Package executor runs the two-leg trade saga: buy first, then sell, with
// compensation when the second leg fails.
package executor

import (
	"context"
	"fmt"
	"log/slog"

	"crossarb/internal/domain"
	"crossarb/internal/metrics"
)

// Outcome classifies how an execution attempt ended.
type Outcome string

const (
	// OutcomeFilled means both legs filled.
	OutcomeFilled Outcome = "filled"
	// OutcomeAborted means the buy leg never went through; nothing to
	// unwind.
	OutcomeAborted Outcome = "aborted"
	// OutcomeCompensated means the sell leg failed and the buy order was
	// successfully cancelled. A handled partial failure, not a success.
	OutcomeCompensated Outcome = "compensated"
	// OutcomeEscalated means the sell leg failed and the buy position
	// could not be unwound. The book is unhedged and a human must act.
	OutcomeEscalated Outcome = "escalated"
)

// Result is the final state of one execution attempt. Buy and Sell hold the
// venue's last reported view of each leg; either may be the zero Order when
// that leg was never submitted.
type Result struct {
	Outcome Outcome
	Buy     domain.Order
	Sell    domain.Order
	Err     error
}

// CriticalNotifier delivers operator alerts. The notify package implements
// it.
type CriticalNotifier interface {
	NotifyAll(ctx context.Context, title, message string) error
}

// Config holds execution sizing.
type Config struct {
	// MaxTradeSizeUSD is the quote notional per trade; the base amount is
	// derived from it at the buy price.
	MaxTradeSizeUSD float64
}

// Executor submits opportunity legs through the connection manager and keeps
// the tracker current.
type Executor struct {
	cfg      Config
	venues   ClientSource
	tracker  *Tracker
	notifier CriticalNotifier
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// New creates an Executor. notifier and m may be nil.
func New(cfg Config, venues ClientSource, tracker *Tracker, notifier CriticalNotifier, m *metrics.Metrics, logger *slog.Logger) *Executor {
	return &Executor{
		cfg:      cfg,
		venues:   venues,
		tracker:  tracker,
		notifier: notifier,
		metrics:  m,
		logger:   logger.With(slog.String("component", "executor")),
	}
}

// Execute runs the saga for one opportunity. The buy leg goes first; a buy
// failure aborts with nothing to unwind. A sell failure after a successful
// buy triggers compensation: cancel the buy. Cancellation failure, or a buy
// that filled before the cancel applied, escalates.
func (e *Executor) Execute(ctx context.Context, opp domain.Opportunity) Result {
	logger := e.logger.With(
		slog.String("opportunity", opp.ID),
		slog.String("instrument", opp.Instrument),
		slog.String("buy_venue", opp.BuyVenue),
		slog.String("sell_venue", opp.SellVenue))

	buyClient, ok := e.venues.Client(opp.BuyVenue)
	if !ok {
		return e.finish(logger, Result{
			Outcome: OutcomeAborted,
			Err:     fmt.Errorf("executor: buy venue %s: %w", opp.BuyVenue, domain.ErrVenueUnavailable),
		})
	}
	sellClient, ok := e.venues.Client(opp.SellVenue)
	if !ok {
		return e.finish(logger, Result{
			Outcome: OutcomeAborted,
			Err:     fmt.Errorf("executor: sell venue %s: %w", opp.SellVenue, domain.ErrVenueUnavailable),
		})
	}

	amount := e.cfg.MaxTradeSizeUSD / opp.BuyPrice
	logger.Info("executing opportunity",
		slog.Float64("amount", amount),
		slog.Float64("buy_price", opp.BuyPrice),
		slog.Float64("sell_price", opp.SellPrice),
		slog.Float64("net_pct", opp.NetProfitPct))

	buy, err := buyClient.CreateOrder(ctx, opp.Instrument, domain.OrderSideBuy, amount, opp.BuyPrice)
	if err != nil {
		return e.finish(logger, Result{
			Outcome: OutcomeAborted,
			Err:     fmt.Errorf("executor: buy leg: %w", err),
		})
	}
	e.tracker.Register(ctx, buy)

	sell, err := sellClient.CreateOrder(ctx, opp.Instrument, domain.OrderSideSell, amount, opp.SellPrice)
	if err != nil {
		return e.compensate(ctx, logger, buyClient, buy, fmt.Errorf("executor: sell leg: %w", err))
	}
	e.tracker.Register(ctx, sell)

	return e.finish(logger, Result{Outcome: OutcomeFilled, Buy: buy, Sell: sell})
}

// compensate tries to cancel the buy order after a failed sell leg.
func (e *Executor) compensate(ctx context.Context, logger *slog.Logger, buyClient domain.VenueClient, buy domain.Order, sellErr error) Result {
	logger.Warn("sell leg failed, cancelling buy order",
		slog.String("buy_order", buy.ID),
		slog.Any("error", sellErr))

	canceled, err := buyClient.CancelOrder(ctx, buy.ID, buy.Instrument)
	if err != nil {
		e.alert(ctx, "UNHEDGED POSITION",
			fmt.Sprintf("sell leg failed and cancel of buy order %s on %s also failed: %v (sell error: %v)",
				buy.ID, buy.Venue, err, sellErr))
		return e.finish(logger, Result{
			Outcome: OutcomeEscalated,
			Buy:     buy,
			Err:     fmt.Errorf("executor: compensation cancel: %v (after %w)", err, sellErr),
		})
	}
	e.tracker.Record(ctx, canceled)

	if canceled.Status == domain.OrderStatusFilled {
		e.alert(ctx, "UNHEDGED POSITION",
			fmt.Sprintf("buy order %s on %s filled before cancellation; position is unhedged (sell error: %v)",
				buy.ID, buy.Venue, sellErr))
		return e.finish(logger, Result{
			Outcome: OutcomeEscalated,
			Buy:     canceled,
			Err:     fmt.Errorf("executor: buy filled before cancel: %w", sellErr),
		})
	}

	return e.finish(logger, Result{
		Outcome: OutcomeCompensated,
		Buy:     canceled,
		Err:     sellErr,
	})
}

func (e *Executor) alert(ctx context.Context, title, body string) {
	e.logger.Error(title, slog.String("detail", body))
	if e.notifier == nil {
		return
	}
	if err := e.notifier.NotifyAll(ctx, title, body); err != nil {
		e.logger.Error("critical alert delivery failed", slog.Any("error", err))
	}
}

func (e *Executor) finish(logger *slog.Logger, res Result) Result {
	if e.metrics != nil {
		e.metrics.TradesTotal.WithLabelValues(string(res.Outcome)).Inc()
	}
	switch res.Outcome {
	case OutcomeFilled:
		logger.Info("trade complete", slog.String("outcome", string(res.Outcome)))
	case OutcomeEscalated:
		logger.Error("trade escalated", slog.Any("error", res.Err))
	default:
		logger.Warn("trade not completed",
			slog.String("outcome", string(res.Outcome)),
			slog.Any("error", res.Err))
	}
	return res
}
