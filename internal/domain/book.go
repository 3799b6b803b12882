package domain

import "time"

// PriceLevel is a single price+size entry in an order book.
type PriceLevel struct {
	Price float64
	Size  float64
}

// OrderBookSnapshot is a full snapshot of bids and asks for one instrument on
// one venue. Bids are ordered descending, asks ascending. Snapshots are
// replaced wholesale on every update; nothing patches them incrementally.
type OrderBookSnapshot struct {
	Venue      string
	Instrument string
	Bids       []PriceLevel
	Asks       []PriceLevel
	CapturedAt time.Time
}

// BestBid returns the highest bid, or zero when the bid side is empty.
func (s OrderBookSnapshot) BestBid() float64 {
	if len(s.Bids) == 0 {
		return 0
	}
	return s.Bids[0].Price
}

// BestAsk returns the lowest ask, or zero when the ask side is empty.
func (s OrderBookSnapshot) BestAsk() float64 {
	if len(s.Asks) == 0 {
		return 0
	}
	return s.Asks[0].Price
}

// TopChanged reports whether the best bid or best ask differs between the two
// snapshots. A zero-value previous snapshot always counts as changed.
func (s OrderBookSnapshot) TopChanged(prev OrderBookSnapshot) bool {
	if prev.CapturedAt.IsZero() {
		return true
	}
	return s.BestBid() != prev.BestBid() || s.BestAsk() != prev.BestAsk()
}
