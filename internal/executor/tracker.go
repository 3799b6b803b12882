package executor

import (
	"context"
	"log/slog"
	"sync"

	"crossarb/internal/domain"
	"crossarb/internal/metrics"
)

// ClientSource resolves a venue name to its client, hiding venues whose
// circuit is open. The connection manager implements it.
type ClientSource interface {
	Client(name string) (domain.VenueClient, bool)
}

// Tracker is the in-memory order table plus its durable audit trail. Every
// submitted order is registered here immediately, regardless of how its leg
// turns out, so reconciliation and PnL accounting stay consistent through
// partial failures.
type Tracker struct {
	store   domain.OrderStore
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu     sync.RWMutex
	orders map[string]domain.Order
}

// NewTracker creates a Tracker. store and m may be nil; without a store the
// table is memory-only.
func NewTracker(store domain.OrderStore, m *metrics.Metrics, logger *slog.Logger) *Tracker {
	return &Tracker{
		store:   store,
		metrics: m,
		logger:  logger.With(slog.String("component", "tracker")),
		orders:  make(map[string]domain.Order),
	}
}

// Register records a newly submitted order. Audit-log failures are logged
// and swallowed: losing the durable copy must not fail the trade path.
func (t *Tracker) Register(ctx context.Context, order domain.Order) {
	t.mu.Lock()
	t.orders[order.ID] = order
	t.mu.Unlock()
	t.gauge()

	if t.store != nil {
		if err := t.store.Create(ctx, order); err != nil {
			t.logger.Error("order audit write failed",
				slog.String("order_id", order.ID),
				slog.Any("error", err))
		}
	}
}

// Record updates an already registered order with a newer venue-reported
// state.
func (t *Tracker) Record(ctx context.Context, order domain.Order) {
	order.Status = domain.NormalizeStatus(order.Status, order.Filled, order.Amount)

	t.mu.Lock()
	t.orders[order.ID] = order
	t.mu.Unlock()
	t.gauge()

	if t.store != nil {
		if err := t.store.Update(ctx, order); err != nil {
			t.logger.Error("order audit update failed",
				slog.String("order_id", order.ID),
				slog.Any("error", err))
		}
	}
}

// Get returns the tracked order by id.
func (t *Tracker) Get(id string) (domain.Order, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	order, ok := t.orders[id]
	return order, ok
}

// OpenOrderCount returns the number of orders not in a terminal status.
func (t *Tracker) OpenOrderCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, o := range t.orders {
		if !o.IsTerminal() {
			n++
		}
	}
	return n
}

// Open returns every non-terminal order.
func (t *Tracker) Open() []domain.Order {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]domain.Order, 0)
	for _, o := range t.orders {
		if !o.IsTerminal() {
			out = append(out, o)
		}
	}
	return out
}

// Reconcile refreshes every open order against its venue's reported state,
// normalizing partial fills into their own status. Venues that are currently
// unavailable are skipped; their orders stay open until the next pass.
func (t *Tracker) Reconcile(ctx context.Context, venues ClientSource) {
	for _, order := range t.Open() {
		client, ok := venues.Client(order.Venue)
		if !ok {
			continue
		}
		fetched, err := client.FetchOrder(ctx, order.ID, order.Instrument)
		if err != nil {
			t.logger.Warn("order reconciliation failed",
				slog.String("order_id", order.ID),
				slog.String("venue", order.Venue),
				slog.Any("error", err))
			continue
		}
		t.Record(ctx, fetched)
	}
}

func (t *Tracker) gauge() {
	if t.metrics != nil {
		t.metrics.OpenTrades.Set(float64(t.OpenOrderCount()))
	}
}
