// Package scanner finds the single best net-profitable cross-venue spread in
// a point-in-time view of the order books.
package scanner

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"crossarb/internal/domain"
)

// Config holds the scan tunables.
type Config struct {
	// MinProfitPct is the minimum net profit, in percent, for an
	// opportunity to qualify.
	MinProfitPct float64
}

// Scanner evaluates book snapshots against the fee book. Scan performs no
// I/O and has no side effects, so it is safe to call at any rate.
type Scanner struct {
	cfg    Config
	fees   *FeeBook
	logger *slog.Logger
}

// New creates a Scanner.
func New(cfg Config, fees *FeeBook, logger *slog.Logger) *Scanner {
	return &Scanner{
		cfg:    cfg,
		fees:   fees,
		logger: logger.With(slog.String("component", "scanner")),
	}
}

// Scan takes books grouped as instrument -> venue -> snapshot and returns
// the candidate with the highest net profit, or false when nothing clears
// the threshold. Ties resolve to whichever qualifying instrument is
// evaluated first; callers must not rely on tie order.
func (s *Scanner) Scan(books map[string]map[string]domain.OrderBookSnapshot) (domain.Opportunity, bool) {
	var best domain.Opportunity
	found := false

	for instrument, byVenue := range books {
		opp, ok := s.scanInstrument(instrument, byVenue)
		if !ok {
			continue
		}
		if !found || opp.NetProfitPct > best.NetProfitPct {
			best = opp
			found = true
		}
	}
	return best, found
}

func (s *Scanner) scanInstrument(instrument string, byVenue map[string]domain.OrderBookSnapshot) (domain.Opportunity, bool) {
	if len(byVenue) < 2 {
		return domain.Opportunity{}, false
	}

	var (
		bestBid, bestAsk   float64
		bidVenue, askVenue string
		haveBid, haveAsk   bool
	)
	for venue, snap := range byVenue {
		if bid := snap.BestBid(); bid > 0 && (!haveBid || bid > bestBid) {
			bestBid, bidVenue, haveBid = bid, venue, true
		}
		if ask := snap.BestAsk(); ask > 0 && (!haveAsk || ask < bestAsk) {
			bestAsk, askVenue, haveAsk = ask, venue, true
		}
	}
	if !haveBid || !haveAsk {
		return domain.Opportunity{}, false
	}
	if bidVenue == askVenue {
		return domain.Opportunity{}, false
	}
	if bestBid <= bestAsk {
		return domain.Opportunity{}, false
	}

	grossPct := (bestBid - bestAsk) / bestAsk * 100
	buyFee := s.fees.TakerFeePct(askVenue, instrument)
	sellFee := s.fees.TakerFeePct(bidVenue, instrument)
	netPct := grossPct - (buyFee + sellFee)

	if netPct < s.cfg.MinProfitPct {
		return domain.Opportunity{}, false
	}

	s.logger.Debug("candidate",
		slog.String("instrument", instrument),
		slog.String("buy_venue", askVenue),
		slog.String("sell_venue", bidVenue),
		slog.Float64("gross_pct", grossPct),
		slog.Float64("net_pct", netPct))

	return domain.Opportunity{
		ID:             uuid.NewString(),
		Instrument:     instrument,
		BuyVenue:       askVenue,
		SellVenue:      bidVenue,
		BuyPrice:       bestAsk,
		SellPrice:      bestBid,
		GrossProfitPct: grossPct,
		NetProfitPct:   netPct,
		DetectedAt:     time.Now().UTC(),
	}, true
}
