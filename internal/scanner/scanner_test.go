package scanner

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crossarb/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func book(v, inst string, bid, ask float64) domain.OrderBookSnapshot {
	return domain.OrderBookSnapshot{
		Venue:      v,
		Instrument: inst,
		Bids:       []domain.PriceLevel{{Price: bid, Size: 1}},
		Asks:       []domain.PriceLevel{{Price: ask, Size: 1}},
		CapturedAt: time.Now().UTC(),
	}
}

func TestScanCrossVenueSpread(t *testing.T) {
	fees := NewFeeBook(0.1) // 0.1 pct per leg, 0.2 combined
	s := New(Config{MinProfitPct: 0.3}, fees, testLogger())

	books := map[string]map[string]domain.OrderBookSnapshot{
		"BTC/USDT": {
			"x": book("x", "BTC/USDT", 49990, 50010),
			"y": book("y", "BTC/USDT", 50300, 50320),
		},
	}

	opp, ok := s.Scan(books)
	require.True(t, ok)
	assert.Equal(t, "x", opp.BuyVenue)
	assert.Equal(t, "y", opp.SellVenue)
	assert.Equal(t, 50010.0, opp.BuyPrice)
	assert.Equal(t, 50300.0, opp.SellPrice)
	assert.InDelta(t, 0.5798, opp.GrossProfitPct, 0.0001)
	assert.InDelta(t, 0.3798, opp.NetProfitPct, 0.0001)
}

func TestScanRespectsThreshold(t *testing.T) {
	fees := NewFeeBook(0.1)
	s := New(Config{MinProfitPct: 0.4}, fees, testLogger())

	books := map[string]map[string]domain.OrderBookSnapshot{
		"BTC/USDT": {
			"x": book("x", "BTC/USDT", 49990, 50010),
			"y": book("y", "BTC/USDT", 50300, 50320),
		},
	}

	_, ok := s.Scan(books)
	assert.False(t, ok, "net 0.3798 is below a 0.4 threshold")
}

func TestScanSkipsSameVenueTop(t *testing.T) {
	fees := NewFeeBook(0)
	s := New(Config{MinProfitPct: 0}, fees, testLogger())

	// Venue y owns both the best bid and the best ask.
	books := map[string]map[string]domain.OrderBookSnapshot{
		"BTC/USDT": {
			"x": book("x", "BTC/USDT", 49000, 51000),
			"y": book("y", "BTC/USDT", 50500, 50000),
		},
	}

	_, ok := s.Scan(books)
	assert.False(t, ok, "one-venue spreads are not arbitrage")
}

func TestScanSkipsSingleVenueInstrument(t *testing.T) {
	fees := NewFeeBook(0)
	s := New(Config{MinProfitPct: 0}, fees, testLogger())

	books := map[string]map[string]domain.OrderBookSnapshot{
		"ETH/USDT": {
			"x": book("x", "ETH/USDT", 3100, 3000),
		},
	}

	_, ok := s.Scan(books)
	assert.False(t, ok)
}

func TestScanSkipsInvalidAsk(t *testing.T) {
	fees := NewFeeBook(0)
	s := New(Config{MinProfitPct: 0}, fees, testLogger())

	books := map[string]map[string]domain.OrderBookSnapshot{
		"BTC/USDT": {
			"x": {Venue: "x", Instrument: "BTC/USDT", Bids: []domain.PriceLevel{{Price: 50000, Size: 1}}},
			"y": book("y", "BTC/USDT", 50300, 50310),
		},
	}

	// x has no ask side; y holds both top levels, so nothing qualifies.
	_, ok := s.Scan(books)
	assert.False(t, ok)
}

func TestScanPicksHighestNet(t *testing.T) {
	fees := NewFeeBook(0.1)
	s := New(Config{MinProfitPct: 0}, fees, testLogger())

	books := map[string]map[string]domain.OrderBookSnapshot{
		"BTC/USDT": {
			"x": book("x", "BTC/USDT", 49990, 50010),
			"y": book("y", "BTC/USDT", 50300, 50320),
		},
		"ETH/USDT": {
			"x": book("x", "ETH/USDT", 2999, 3000),
			"y": book("y", "ETH/USDT", 3100, 3101), // ~3.33 pct gross
		},
	}

	opp, ok := s.Scan(books)
	require.True(t, ok)
	assert.Equal(t, "ETH/USDT", opp.Instrument)
}

func TestFeeMonotonicity(t *testing.T) {
	books := map[string]map[string]domain.OrderBookSnapshot{
		"BTC/USDT": {
			"x": book("x", "BTC/USDT", 49990, 50010),
			"y": book("y", "BTC/USDT", 50300, 50320),
		},
	}

	prevNet := 100.0
	for _, feePct := range []float64{0.0, 0.05, 0.1, 0.2} {
		fees := NewFeeBook(feePct)
		s := New(Config{MinProfitPct: -100}, fees, testLogger())
		opp, ok := s.Scan(books)
		require.True(t, ok)
		assert.Less(t, opp.NetProfitPct, prevNet, "higher fees must strictly lower net profit")
		prevNet = opp.NetProfitPct
	}
}

func TestFeeBookFallbackChain(t *testing.T) {
	fees := NewFeeBook(0.25)
	fees.LoadVenue("x", map[string]domain.InstrumentMeta{
		"BTC/USDT": {Symbol: "BTC/USDT", TakerFeePct: 0.075},
	})
	fees.SetVenueDefault("y", 0.15)

	assert.Equal(t, 0.075, fees.TakerFeePct("x", "BTC/USDT"), "instrument metadata wins")
	assert.Equal(t, 0.25, fees.TakerFeePct("x", "ETH/USDT"), "unknown instrument falls to global default")
	assert.Equal(t, 0.15, fees.TakerFeePct("y", "BTC/USDT"), "venue default beats global")
	assert.Equal(t, 0.25, fees.TakerFeePct("z", "BTC/USDT"), "unknown venue uses global default")
}
