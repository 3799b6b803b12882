package connmgr

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crossarb/internal/domain"
	"crossarb/internal/resilience"
	"crossarb/internal/venue"
)

func newTestManager(t *testing.T, threshold int) (*Manager, *resilience.Breaker) {
	t.Helper()
	breaker := resilience.New(resilience.Config{
		FailureThreshold: threshold,
		RecoveryTimeout:  time.Minute,
		BackoffBase:      2,
	})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(breaker, logger), breaker
}

func TestInitializeAllIsolatesFailures(t *testing.T) {
	m, _ := newTestManager(t, 5)

	broken := venue.NewPaper("gamma")
	require.NoError(t, broken.Close()) // Connect will fail

	m.InitializeAll(context.Background(), map[string]domain.VenueClient{
		"alpha": venue.NewPaper("alpha"),
		"beta":  venue.NewPaper("beta"),
		"gamma": broken,
	})

	assert.Equal(t, 2, m.Len())
	assert.Equal(t, []string{"alpha", "beta"}, m.Names())

	_, ok := m.Get("gamma")
	assert.False(t, ok, "a venue that failed to initialize must not be returned")

	conn, ok := m.Get("alpha")
	require.True(t, ok)
	assert.NotEmpty(t, conn.Instruments)
}

func TestGetHidesOpenCircuit(t *testing.T) {
	m, breaker := newTestManager(t, 1)

	require.NoError(t, m.Add(context.Background(), "alpha", venue.NewPaper("alpha")))
	_, ok := m.Get("alpha")
	require.True(t, ok)

	breaker.RecordFailure("alpha")
	_, ok = m.Get("alpha")
	assert.False(t, ok, "open circuit must hide the venue")
	assert.Empty(t, m.Names())

	// The connection itself is retained for recovery and liquidation.
	assert.Equal(t, 1, m.Len())
	require.Len(t, m.All(), 1)
	assert.Equal(t, "alpha", m.All()[0].Name)

	breaker.RecordSuccess("alpha")
	_, ok = m.Get("alpha")
	assert.True(t, ok)
}

func TestGetUnknownVenue(t *testing.T) {
	m, _ := newTestManager(t, 5)
	_, ok := m.Get("nope")
	assert.False(t, ok)
	_, ok = m.Client("nope")
	assert.False(t, ok)
}

func TestCloseAll(t *testing.T) {
	m, _ := newTestManager(t, 5)
	require.NoError(t, m.Add(context.Background(), "alpha", venue.NewPaper("alpha")))
	require.NoError(t, m.Add(context.Background(), "beta", venue.NewPaper("beta")))

	m.CloseAll()
	assert.Equal(t, 0, m.Len())
}

// slowCloseClient takes a fixed time to close, like a venue draining its
// websocket on shutdown.
type slowCloseClient struct {
	*venue.Paper
	delay time.Duration
}

func (c *slowCloseClient) Close() error {
	time.Sleep(c.delay)
	return c.Paper.Close()
}

func TestCloseAllClosesConcurrently(t *testing.T) {
	m, _ := newTestManager(t, 5)

	const delay = 150 * time.Millisecond
	for _, name := range []string{"alpha", "beta", "gamma", "delta"} {
		client := &slowCloseClient{Paper: venue.NewPaper(name), delay: delay}
		require.NoError(t, m.Add(context.Background(), name, client))
	}

	start := time.Now()
	m.CloseAll()
	elapsed := time.Since(start)

	assert.Equal(t, 0, m.Len())
	assert.Less(t, elapsed, 3*delay,
		"closing four venues must not take four times one venue's close")
}
