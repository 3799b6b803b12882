package resilience

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBreaker(t *testing.T, cfg Config) (*Breaker, *time.Time) {
	t.Helper()
	b := New(cfg)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return now }
	return b, &now
}

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b, _ := newTestBreaker(t, Config{FailureThreshold: 3, RecoveryTimeout: time.Minute, BackoffBase: 2})

	assert.False(t, b.IsOpen("binance"))
	b.RecordFailure("binance")
	b.RecordFailure("binance")
	assert.False(t, b.IsOpen("binance"), "below threshold must stay closed")

	b.RecordFailure("binance")
	assert.True(t, b.IsOpen("binance"))
	assert.Equal(t, StateOpen, b.StateOf("binance"))
}

func TestBreakerHalfOpenProbeAndRecovery(t *testing.T) {
	b, now := newTestBreaker(t, Config{FailureThreshold: 2, RecoveryTimeout: 30 * time.Second, BackoffBase: 2})

	b.RecordFailure("kraken")
	b.RecordFailure("kraken")
	require.True(t, b.IsOpen("kraken"))

	// Still open until the recovery timeout elapses.
	*now = now.Add(29 * time.Second)
	assert.True(t, b.IsOpen("kraken"))

	// After the timeout the next check permits a half-open probe.
	*now = now.Add(2 * time.Second)
	assert.False(t, b.IsOpen("kraken"))
	assert.Equal(t, StateHalfOpen, b.StateOf("kraken"))

	// Time alone never reset the count; only an explicit success does.
	assert.Equal(t, 2, b.Failures("kraken"))
	b.RecordSuccess("kraken")
	assert.Equal(t, 0, b.Failures("kraken"))
	assert.Equal(t, StateClosed, b.StateOf("kraken"))
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b, now := newTestBreaker(t, Config{FailureThreshold: 2, RecoveryTimeout: 10 * time.Second, BackoffBase: 2})

	b.RecordFailure("okx:BTC/USDT")
	b.RecordFailure("okx:BTC/USDT")
	*now = now.Add(11 * time.Second)
	require.False(t, b.IsOpen("okx:BTC/USDT"), "probe should be permitted")

	// The probe fails: circuit re-opens and the timer restarts.
	b.RecordFailure("okx:BTC/USDT")
	assert.True(t, b.IsOpen("okx:BTC/USDT"))
	*now = now.Add(9 * time.Second)
	assert.True(t, b.IsOpen("okx:BTC/USDT"))
	*now = now.Add(2 * time.Second)
	assert.False(t, b.IsOpen("okx:BTC/USDT"))
}

func TestBackoffDelayGrowsAndCaps(t *testing.T) {
	b, _ := newTestBreaker(t, Config{
		FailureThreshold: 100, // keep the circuit closed for this test
		RecoveryTimeout:  time.Minute,
		BackoffBase:      2,
		MaxBackoff:       60 * time.Second,
	})

	assert.Equal(t, time.Duration(0), b.BackoffDelay("gate"))

	b.RecordFailure("gate")
	assert.Equal(t, 2*time.Second, b.BackoffDelay("gate"))
	b.RecordFailure("gate")
	assert.Equal(t, 4*time.Second, b.BackoffDelay("gate"))
	b.RecordFailure("gate")
	assert.Equal(t, 8*time.Second, b.BackoffDelay("gate"))

	for i := 0; i < 10; i++ {
		b.RecordFailure("gate")
	}
	assert.Equal(t, 60*time.Second, b.BackoffDelay("gate"), "delay must cap at MaxBackoff")
}

func TestBreakerComponentsAreIndependent(t *testing.T) {
	b, _ := newTestBreaker(t, Config{FailureThreshold: 1, RecoveryTimeout: time.Minute, BackoffBase: 2})

	b.RecordFailure("binance")
	assert.True(t, b.IsOpen("binance"))
	assert.False(t, b.IsOpen("kraken"))
	assert.False(t, b.IsOpen("binance:ETH/USDT"))
}
