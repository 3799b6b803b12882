package executor

import (
	"context"
	"fmt"
	"log/slog"

	"crossarb/internal/connmgr"
	"crossarb/internal/domain"
)

// quoteCurrencies are the settlement currencies liquidation sells into, in
// preference order. Balances in these currencies are left alone.
var quoteCurrencies = []string{"USDT", "USD", "BUSD", "USDC"}

// Liquidator flattens every position across every venue. It is the emergency
// path behind the risk governor's stop: best effort everywhere, a failure on
// one venue never blocks the pass over the rest.
type Liquidator struct {
	conns   *connmgr.Manager
	tracker *Tracker
	logger  *slog.Logger
}

// NewLiquidator creates a Liquidator.
func NewLiquidator(conns *connmgr.Manager, tracker *Tracker, logger *slog.Logger) *Liquidator {
	return &Liquidator{
		conns:   conns,
		tracker: tracker,
		logger:  logger.With(slog.String("component", "liquidator")),
	}
}

// LiquidateAll cancels open orders and market-sells every non-quote balance
// on every registered venue, including ones with an open circuit. Failures
// are logged as requiring manual intervention; the pass always visits every
// venue.
func (l *Liquidator) LiquidateAll(ctx context.Context) {
	l.logger.Error("liquidating all positions")
	for _, conn := range l.conns.All() {
		l.liquidateVenue(ctx, conn)
	}
	l.logger.Info("liquidation pass complete")
}

func (l *Liquidator) liquidateVenue(ctx context.Context, conn *connmgr.VenueConnection) {
	logger := l.logger.With(slog.String("venue", conn.Name))

	if bc, ok := conn.Client.(domain.BulkCanceler); ok {
		if err := bc.CancelAllOrders(ctx); err != nil {
			logger.Error("bulk cancel failed, manual intervention required",
				slog.Any("error", err))
		}
	} else {
		logger.Warn("venue lacks bulk cancel, open orders left in place")
	}

	balances, err := conn.Client.FetchBalance(ctx)
	if err != nil {
		logger.Error("balance fetch failed, manual intervention required",
			slog.Any("error", err))
		return
	}

	for currency, amount := range balances {
		if amount <= 0 || isQuoteCurrency(currency) {
			continue
		}
		if err := l.sellBalance(ctx, conn, currency, amount); err != nil {
			logger.Error("position liquidation failed, manual intervention required",
				slog.String("currency", currency),
				slog.Float64("amount", amount),
				slog.Any("error", err))
		}
	}
}

// sellBalance market-sells the full balance against the first quote currency
// the venue lists a market for.
func (l *Liquidator) sellBalance(ctx context.Context, conn *connmgr.VenueConnection, currency string, amount float64) error {
	for _, quote := range quoteCurrencies {
		instrument := currency + "/" + quote
		if _, ok := conn.Instruments[instrument]; !ok {
			continue
		}
		order, err := conn.Client.CreateOrder(ctx, instrument, domain.OrderSideSell, amount, 0)
		if err != nil {
			return fmt.Errorf("liquidator: market sell %s on %s: %w", instrument, conn.Name, err)
		}
		l.tracker.Register(ctx, order)
		l.logger.Info("position liquidated",
			slog.String("venue", conn.Name),
			slog.String("instrument", instrument),
			slog.Float64("amount", amount))
		return nil
	}
	return fmt.Errorf("liquidator: no quote market for %s on %s", currency, conn.Name)
}

func isQuoteCurrency(currency string) bool {
	for _, q := range quoteCurrencies {
		if currency == q {
			return true
		}
	}
	return false
}
