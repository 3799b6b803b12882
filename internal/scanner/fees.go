package scanner

import (
	"sync"

	"crossarb/internal/domain"
)

// FeeBook caches taker fees per venue. Lookup falls back from the venue's
// per-instrument metadata to a per-venue default and finally to the global
// default, so a venue with incomplete fee metadata never stalls a scan.
type FeeBook struct {
	mu            sync.RWMutex
	instrumentFee map[string]map[string]float64
	venueDefault  map[string]float64
	globalDefault float64
}

// NewFeeBook creates a FeeBook with the given global default taker fee in
// percent.
func NewFeeBook(globalDefaultPct float64) *FeeBook {
	return &FeeBook{
		instrumentFee: make(map[string]map[string]float64),
		venueDefault:  make(map[string]float64),
		globalDefault: globalDefaultPct,
	}
}

// LoadVenue caches the taker fees from a venue's instrument metadata.
// Negative fees are ignored as invalid.
func (f *FeeBook) LoadVenue(venue string, instruments map[string]domain.InstrumentMeta) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fees := make(map[string]float64, len(instruments))
	for sym, meta := range instruments {
		if meta.TakerFeePct >= 0 {
			fees[sym] = meta.TakerFeePct
		}
	}
	f.instrumentFee[venue] = fees
}

// SetVenueDefault sets the fallback fee for a venue whose instrument
// metadata lacks fees.
func (f *FeeBook) SetVenueDefault(venue string, pct float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.venueDefault[venue] = pct
}

// TakerFeePct resolves the taker fee for an instrument on a venue.
func (f *FeeBook) TakerFeePct(venue, instrument string) float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if fees, ok := f.instrumentFee[venue]; ok {
		if pct, ok := fees[instrument]; ok {
			return pct
		}
	}
	if pct, ok := f.venueDefault[venue]; ok {
		return pct
	}
	return f.globalDefault
}
