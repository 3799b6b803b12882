package executor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crossarb/internal/connmgr"
	"crossarb/internal/domain"
	"crossarb/internal/resilience"
	"crossarb/internal/venue"
)

func TestLiquidateAllSellsNonQuoteBalances(t *testing.T) {
	ctx := context.Background()
	breaker := resilience.New(resilience.Config{FailureThreshold: 5, RecoveryTimeout: time.Minute, BackoffBase: 2})
	conns := connmgr.New(breaker, testLogger())

	alpha := venue.NewPaper("alpha",
		venue.WithBalances(map[string]float64{"USDT": 1000, "BTC": 0.5}))
	beta := venue.NewPaper("beta",
		venue.WithBalances(map[string]float64{"USDT": 500, "ETH": 2}))
	require.NoError(t, conns.Add(ctx, "alpha", alpha))
	require.NoError(t, conns.Add(ctx, "beta", beta))

	tracker := NewTracker(nil, nil, testLogger())
	liq := NewLiquidator(conns, tracker, testLogger())
	liq.LiquidateAll(ctx)

	balances, err := alpha.FetchBalance(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0.0, balances["BTC"], "the full BTC balance is sold")
	assert.Greater(t, balances["USDT"], 1000.0)

	balances, err = beta.FetchBalance(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0.0, balances["ETH"])
}

func TestLiquidateAllSurvivesVenueFailure(t *testing.T) {
	ctx := context.Background()
	breaker := resilience.New(resilience.Config{FailureThreshold: 5, RecoveryTimeout: time.Minute, BackoffBase: 2})
	conns := connmgr.New(breaker, testLogger())

	alpha := venue.NewPaper("alpha",
		venue.WithBalances(map[string]float64{"BTC": 0.25}))
	beta := venue.NewPaper("beta",
		venue.WithBalances(map[string]float64{"ETH": 1}))
	require.NoError(t, conns.Add(ctx, "alpha", alpha))
	require.NoError(t, conns.Add(ctx, "beta", beta))

	// alpha sorts first and fails its balance fetch; beta must still be
	// liquidated.
	alpha.FailNextBalance(domain.ErrVenueUnavailable)

	liq := NewLiquidator(conns, NewTracker(nil, nil, testLogger()), testLogger())
	liq.LiquidateAll(ctx)

	balances, err := beta.FetchBalance(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0.0, balances["ETH"])

	balances, err = alpha.FetchBalance(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0.25, balances["BTC"], "alpha's position is left for manual intervention")
}

func TestLiquidateAllVisitsCircuitOpenVenues(t *testing.T) {
	ctx := context.Background()
	breaker := resilience.New(resilience.Config{FailureThreshold: 1, RecoveryTimeout: time.Minute, BackoffBase: 2})
	conns := connmgr.New(breaker, testLogger())

	alpha := venue.NewPaper("alpha",
		venue.WithBalances(map[string]float64{"BTC": 0.1}))
	require.NoError(t, conns.Add(ctx, "alpha", alpha))

	breaker.RecordFailure("alpha")
	_, ok := conns.Get("alpha")
	require.False(t, ok, "the venue is hidden from trading")

	liq := NewLiquidator(conns, NewTracker(nil, nil, testLogger()), testLogger())
	liq.LiquidateAll(ctx)

	balances, err := alpha.FetchBalance(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0.0, balances["BTC"], "liquidation ignores the circuit")
}
