package executor

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crossarb/internal/connmgr"
	"crossarb/internal/domain"
	"crossarb/internal/resilience"
	"crossarb/internal/venue"
)

type fakeNotifier struct {
	titles []string
}

func (f *fakeNotifier) NotifyAll(ctx context.Context, title, message string) error {
	f.titles = append(f.titles, title)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testOpportunity() domain.Opportunity {
	return domain.Opportunity{
		ID:           "opp-1",
		Instrument:   "BTC/USDT",
		BuyVenue:     "alpha",
		SellVenue:    "beta",
		BuyPrice:     50010,
		SellPrice:    50300,
		NetProfitPct: 0.38,
	}
}

func setup(t *testing.T, buyOpts, sellOpts []venue.PaperOption) (*Executor, *Tracker, *venue.Paper, *venue.Paper, *fakeNotifier) {
	t.Helper()
	ctx := context.Background()

	breaker := resilience.New(resilience.Config{FailureThreshold: 5, RecoveryTimeout: time.Minute, BackoffBase: 2})
	conns := connmgr.New(breaker, testLogger())
	alpha := venue.NewPaper("alpha", buyOpts...)
	beta := venue.NewPaper("beta", sellOpts...)
	require.NoError(t, conns.Add(ctx, "alpha", alpha))
	require.NoError(t, conns.Add(ctx, "beta", beta))

	tracker := NewTracker(nil, nil, testLogger())
	notifier := &fakeNotifier{}
	exec := New(Config{MaxTradeSizeUSD: 100}, conns, tracker, notifier, nil, testLogger())
	return exec, tracker, alpha, beta, notifier
}

func TestExecuteBothFilled(t *testing.T) {
	exec, tracker, _, _, notifier := setup(t, nil, nil)

	res := exec.Execute(context.Background(), testOpportunity())
	require.Equal(t, OutcomeFilled, res.Outcome)
	require.NoError(t, res.Err)

	assert.Equal(t, domain.OrderStatusFilled, res.Buy.Status)
	assert.Equal(t, domain.OrderStatusFilled, res.Sell.Status)
	assert.Equal(t, "alpha", res.Buy.Venue)
	assert.Equal(t, "beta", res.Sell.Venue)
	assert.InDelta(t, 100.0/50010, res.Buy.Amount, 1e-12)

	// Both legs end up tracked.
	_, ok := tracker.Get(res.Buy.ID)
	assert.True(t, ok)
	_, ok = tracker.Get(res.Sell.ID)
	assert.True(t, ok)
	assert.Empty(t, notifier.titles)
}

func TestExecuteBuyFailureAborts(t *testing.T) {
	exec, tracker, alpha, _, _ := setup(t, nil, nil)
	alpha.FailNextCreate(domain.OrderSideBuy, domain.ErrOrderRejected)

	res := exec.Execute(context.Background(), testOpportunity())
	assert.Equal(t, OutcomeAborted, res.Outcome)
	assert.ErrorIs(t, res.Err, domain.ErrOrderRejected)
	assert.Empty(t, res.Buy.ID, "no buy order was placed")
	assert.Equal(t, 0, tracker.OpenOrderCount())
}

func TestExecuteSellFailureCompensates(t *testing.T) {
	exec, tracker, _, beta, notifier := setup(t,
		[]venue.PaperOption{venue.WithRestingLimitOrders()}, nil)
	beta.FailNextCreate(domain.OrderSideSell, domain.ErrVenueUnavailable)

	res := exec.Execute(context.Background(), testOpportunity())
	require.Equal(t, OutcomeCompensated, res.Outcome)
	assert.ErrorIs(t, res.Err, domain.ErrVenueUnavailable)
	assert.Equal(t, domain.OrderStatusCanceled, res.Buy.Status)

	// The buy order stays in the table with its terminal state.
	tracked, ok := tracker.Get(res.Buy.ID)
	require.True(t, ok)
	assert.Equal(t, domain.OrderStatusCanceled, tracked.Status)
	assert.Equal(t, 0, tracker.OpenOrderCount())
	assert.Empty(t, notifier.titles, "a handled partial failure is not critical")
}

func TestExecuteEscalatesWhenCancelFails(t *testing.T) {
	exec, _, alpha, beta, notifier := setup(t,
		[]venue.PaperOption{venue.WithRestingLimitOrders()}, nil)
	beta.FailNextCreate(domain.OrderSideSell, domain.ErrVenueUnavailable)
	alpha.FailNextCancel(domain.ErrVenueUnavailable)

	res := exec.Execute(context.Background(), testOpportunity())
	assert.Equal(t, OutcomeEscalated, res.Outcome)
	require.Len(t, notifier.titles, 1, "an unhedged position must page a human")
	assert.Equal(t, "UNHEDGED POSITION", notifier.titles[0])
}

func TestExecuteEscalatesWhenBuyFilledBeforeCancel(t *testing.T) {
	// Instant fills: the buy is already filled when the cancel lands.
	exec, _, _, beta, notifier := setup(t, nil, nil)
	beta.FailNextCreate(domain.OrderSideSell, domain.ErrVenueUnavailable)

	res := exec.Execute(context.Background(), testOpportunity())
	assert.Equal(t, OutcomeEscalated, res.Outcome)
	assert.Equal(t, domain.OrderStatusFilled, res.Buy.Status)
	require.Len(t, notifier.titles, 1)
}

func TestExecuteVenueUnavailableAborts(t *testing.T) {
	exec, _, _, _, _ := setup(t, nil, nil)

	opp := testOpportunity()
	opp.SellVenue = "gamma"
	res := exec.Execute(context.Background(), opp)
	assert.Equal(t, OutcomeAborted, res.Outcome)
	assert.ErrorIs(t, res.Err, domain.ErrVenueUnavailable)
}

func TestTrackerOpenOrderCount(t *testing.T) {
	ctx := context.Background()
	tracker := NewTracker(nil, nil, testLogger())

	tracker.Register(ctx, domain.Order{ID: "a", Status: domain.OrderStatusOpen, Amount: 1})
	tracker.Register(ctx, domain.Order{ID: "b", Status: domain.OrderStatusFilled, Amount: 1, Filled: 1})
	tracker.Register(ctx, domain.Order{ID: "c", Status: domain.OrderStatusPartiallyFilled, Amount: 1, Filled: 0.5})
	assert.Equal(t, 2, tracker.OpenOrderCount())

	tracker.Record(ctx, domain.Order{ID: "a", Status: domain.OrderStatusCanceled, Amount: 1})
	assert.Equal(t, 1, tracker.OpenOrderCount())
}

func TestTrackerRecordNormalizesPartialFills(t *testing.T) {
	ctx := context.Background()
	tracker := NewTracker(nil, nil, testLogger())

	tracker.Register(ctx, domain.Order{ID: "a", Status: domain.OrderStatusOpen, Amount: 2})
	tracker.Record(ctx, domain.Order{ID: "a", Status: domain.OrderStatusOpen, Amount: 2, Filled: 0.7})

	got, ok := tracker.Get("a")
	require.True(t, ok)
	assert.Equal(t, domain.OrderStatusPartiallyFilled, got.Status)
}

func TestTrackerReconcile(t *testing.T) {
	ctx := context.Background()
	breaker := resilience.New(resilience.Config{FailureThreshold: 5, RecoveryTimeout: time.Minute, BackoffBase: 2})
	conns := connmgr.New(breaker, testLogger())
	alpha := venue.NewPaper("alpha", venue.WithRestingLimitOrders())
	require.NoError(t, conns.Add(ctx, "alpha", alpha))

	tracker := NewTracker(nil, nil, testLogger())

	order, err := alpha.CreateOrder(ctx, "BTC/USDT", domain.OrderSideBuy, 0.01, 50000)
	require.NoError(t, err)
	tracker.Register(ctx, order)
	require.Equal(t, 1, tracker.OpenOrderCount())

	require.NoError(t, alpha.FillOrder(order.ID))
	tracker.Reconcile(ctx, conns)

	got, ok := tracker.Get(order.ID)
	require.True(t, ok)
	assert.Equal(t, domain.OrderStatusFilled, got.Status)
	assert.Equal(t, 0, tracker.OpenOrderCount())
}
