package risk

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crossarb/internal/domain"
)

type memPnLStore struct {
	pnl     float64
	exists  bool
	saveErr error
	saves   int
}

func (s *memPnLStore) Load(ctx context.Context) (float64, error) {
	if !s.exists {
		return 0, domain.ErrNotFound
	}
	return s.pnl, nil
}

func (s *memPnLStore) Save(ctx context.Context, pnlUSD float64) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.pnl = pnlUSD
	s.exists = true
	s.saves++
	return nil
}

type fixedCounter int

func (c fixedCounter) OpenOrderCount() int { return int(c) }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestIsTradeSafeOrdering(t *testing.T) {
	store := &memPnLStore{}
	opp := domain.Opportunity{ID: "opp-1"}

	t.Run("emergency stop dominates", func(t *testing.T) {
		g := New(Config{MaxOpenTrades: 5, EmergencyStopLossUSD: 100}, store, fixedCounter(0), nil, testLogger())
		g.Trip("test")
		assert.False(t, g.IsTradeSafe(opp))
	})

	t.Run("pnl breach blocks without an explicit trip", func(t *testing.T) {
		g := New(Config{MaxOpenTrades: 5, EmergencyStopLossUSD: 100}, store, fixedCounter(0), nil, testLogger())
		_, err := g.RecordFill(context.Background(), domain.Order{Cost: 200, FeePaid: 1}, domain.Order{Cost: 50})
		require.NoError(t, err)
		assert.True(t, g.CheckEmergencyStop())
		assert.False(t, g.IsTradeSafe(opp))
	})

	t.Run("open order cap", func(t *testing.T) {
		g := New(Config{MaxOpenTrades: 2, EmergencyStopLossUSD: 100}, store, fixedCounter(2), nil, testLogger())
		assert.False(t, g.IsTradeSafe(opp))
	})

	t.Run("clear to trade", func(t *testing.T) {
		g := New(Config{MaxOpenTrades: 2, EmergencyStopLossUSD: 100}, store, fixedCounter(1), nil, testLogger())
		assert.True(t, g.IsTradeSafe(opp))
	})
}

func TestRecordFillPnLFormula(t *testing.T) {
	store := &memPnLStore{}
	g := New(Config{MaxOpenTrades: 5, EmergencyStopLossUSD: 1000}, store, fixedCounter(0), nil, testLogger())

	buy := domain.Order{Cost: 5000, FeePaid: 5}
	sell := domain.Order{Cost: 5030, FeePaid: 5.03}

	delta, err := g.RecordFill(context.Background(), buy, sell)
	require.NoError(t, err)
	assert.InDelta(t, 19.97, delta, 1e-9)
	assert.InDelta(t, 19.97, g.PnL(), 1e-9)

	// Persistence is synchronous with the fill.
	assert.Equal(t, 1, store.saves)
	assert.InDelta(t, 19.97, store.pnl, 1e-9)
}

func TestRecordFillSaveFailureKeepsMemoryTotal(t *testing.T) {
	store := &memPnLStore{saveErr: errors.New("db down")}
	g := New(Config{EmergencyStopLossUSD: 1000}, store, fixedCounter(0), nil, testLogger())

	_, err := g.RecordFill(context.Background(), domain.Order{Cost: 100}, domain.Order{Cost: 110})
	require.Error(t, err)
	assert.InDelta(t, 10.0, g.PnL(), 1e-9, "in-memory total still advances")
}

func TestEmergencyStopThresholdIsStrict(t *testing.T) {
	store := &memPnLStore{pnl: -100, exists: true}
	g := New(Config{EmergencyStopLossUSD: 100}, store, fixedCounter(0), nil, testLogger())
	require.NoError(t, g.LoadPnL(context.Background()))

	assert.False(t, g.CheckEmergencyStop(), "loss exactly at the limit does not trip")

	_, err := g.RecordFill(context.Background(), domain.Order{Cost: 1}, domain.Order{Cost: 0.5})
	require.NoError(t, err)
	assert.True(t, g.CheckEmergencyStop())
}

func TestLoadPnLMissingRecord(t *testing.T) {
	g := New(Config{}, &memPnLStore{}, fixedCounter(0), nil, testLogger())
	require.NoError(t, g.LoadPnL(context.Background()))
	assert.Equal(t, 0.0, g.PnL())
}

func TestTripAndResume(t *testing.T) {
	g := New(Config{MaxOpenTrades: 5, EmergencyStopLossUSD: 100}, &memPnLStore{}, fixedCounter(0), nil, testLogger())

	g.Trip("manual")
	g.Trip("manual again")
	assert.True(t, g.Stopped())
	assert.False(t, g.IsTradeSafe(domain.Opportunity{}))

	g.Resume()
	assert.False(t, g.Stopped())
	assert.True(t, g.IsTradeSafe(domain.Opportunity{}))
}
