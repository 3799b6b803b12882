package domain

import "context"

// BookMirror receives a best-effort copy of every stored order-book snapshot.
// The in-process book map owned by the ingestor stays authoritative; the
// mirror exists for external tooling and dashboards. Implementations must
// tolerate being behind.
type BookMirror interface {
	SetSnapshot(ctx context.Context, snap OrderBookSnapshot) error
	GetSnapshot(ctx context.Context, venue, instrument string) (OrderBookSnapshot, error)
	GetBBO(ctx context.Context, venue, instrument string) (bestBid, bestAsk float64, err error)
}
