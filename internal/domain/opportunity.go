package domain

import "time"

// Opportunity is a detected cross-venue price discrepancy. It is an immutable
// value: the scanner produces it and the risk governor / executor consume it
// exactly once. BuyVenue and SellVenue are always distinct.
type Opportunity struct {
	ID             string
	Instrument     string
	BuyVenue       string // venue with the best (lowest) ask
	SellVenue      string // venue with the best (highest) bid
	BuyPrice       float64
	SellPrice      float64
	GrossProfitPct float64
	NetProfitPct   float64
	DetectedAt     time.Time
}
