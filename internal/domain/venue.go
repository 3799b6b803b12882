package domain

import (
	"context"
	"strings"
)

// InstrumentMeta describes a tradable instrument as reported by a venue,
// including the taker fee charged for orders that cross the spread.
type InstrumentMeta struct {
	Symbol      string // unified form, e.g. "BTC/USDT"
	Base        string
	Quote       string
	TakerFeePct float64 // percentage, e.g. 0.1 for 0.1%
	MinAmount   float64
}

// SplitSymbol breaks a unified "BASE/QUOTE" symbol into its parts. The second
// return is empty when the symbol has no separator.
func SplitSymbol(symbol string) (base, quote string) {
	base, quote, ok := strings.Cut(symbol, "/")
	if !ok {
		return symbol, ""
	}
	return base, quote
}

// VenueClient is the capability object for a single trading venue. The
// wire-level protocol behind it (REST, WebSocket, FIX) is the client's
// concern; everything above this interface is venue-agnostic.
//
// All blocking calls take a context and honour its cancellation.
type VenueClient interface {
	// Connect performs the venue handshake. It fails with
	// ErrAuthentication for credential problems and arbitrary errors for
	// network-level ones.
	Connect(ctx context.Context) error

	// LoadInstruments returns the tradable instruments with their
	// metadata, including taker fees. It doubles as a liveness probe.
	LoadInstruments(ctx context.Context) (map[string]InstrumentMeta, error)

	// WatchOrderBook blocks until the next full order-book snapshot for
	// the instrument arrives, or an error occurs.
	WatchOrderBook(ctx context.Context, instrument string) (OrderBookSnapshot, error)

	// CreateOrder submits a limit order (market when price is zero) and
	// returns the venue's view of it. Fails with ErrOrderRejected when
	// the venue refuses the order.
	CreateOrder(ctx context.Context, instrument string, side OrderSide, amount, price float64) (Order, error)

	// CancelOrder cancels an order and returns its final state. An order
	// that filled before the cancel applied comes back with
	// OrderStatusFilled rather than an error.
	CancelOrder(ctx context.Context, orderID, instrument string) (Order, error)

	// FetchOrder returns the venue's current view of an order.
	FetchOrder(ctx context.Context, orderID, instrument string) (Order, error)

	// FetchBalance returns currency -> total amount.
	FetchBalance(ctx context.Context) (map[string]float64, error)

	Close() error
}

// BulkCanceler is implemented by venue clients that support cancelling every
// open order in one call. Liquidation falls back to a warning when a venue
// does not implement it.
type BulkCanceler interface {
	CancelAllOrders(ctx context.Context) error
}
