// Package marketdata streams order books from every connected venue into an
// in-process snapshot map and fires debounced scan triggers on top-of-book
// changes.
package marketdata

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"crossarb/internal/connmgr"
	"crossarb/internal/domain"
	"crossarb/internal/metrics"
	"crossarb/internal/resilience"
)

// openCircuitPoll is how often a suspended stream re-checks its circuit.
const openCircuitPoll = time.Second

type bookKey struct {
	venue      string
	instrument string
}

// Ingestor runs one streaming task per (venue, instrument) pair. Every
// received snapshot replaces the previous one wholesale; a scan trigger fires
// only when the top of book moved. Stream failures are isolated per pair
// through the circuit breaker.
type Ingestor struct {
	conns       *connmgr.Manager
	breaker     *resilience.Breaker
	trigger     *Trigger
	mirror      domain.BookMirror
	metrics     *metrics.Metrics
	logger      *slog.Logger
	instruments []string

	mu    sync.RWMutex
	books map[bookKey]domain.OrderBookSnapshot
}

// New creates an Ingestor for the given instruments. mirror and m may be nil.
func New(conns *connmgr.Manager, breaker *resilience.Breaker, trigger *Trigger, mirror domain.BookMirror, m *metrics.Metrics, instruments []string, logger *slog.Logger) *Ingestor {
	return &Ingestor{
		conns:       conns,
		breaker:     breaker,
		trigger:     trigger,
		mirror:      mirror,
		metrics:     m,
		logger:      logger.With(slog.String("component", "marketdata")),
		instruments: instruments,
		books:       make(map[bookKey]domain.OrderBookSnapshot),
	}
}

// Run starts the streaming tasks and blocks until ctx is cancelled. Venues
// that do not list an instrument are skipped for that instrument.
func (i *Ingestor) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, conn := range i.conns.All() {
		for _, sym := range i.instruments {
			if _, ok := conn.Instruments[sym]; !ok {
				i.logger.Debug("instrument not listed on venue",
					slog.String("venue", conn.Name),
					slog.String("instrument", sym))
				continue
			}
			conn, sym := conn, sym
			g.Go(func() error {
				i.stream(ctx, conn, sym)
				return nil
			})
		}
	}
	return g.Wait()
}

func (i *Ingestor) stream(ctx context.Context, conn *connmgr.VenueConnection, instrument string) {
	id := conn.Name + ":" + instrument
	logger := i.logger.With(slog.String("stream", id))
	logger.Info("stream started")

	for ctx.Err() == nil {
		if i.breaker.IsOpen(id) {
			if !sleep(ctx, openCircuitPoll) {
				return
			}
			continue
		}

		snap, err := conn.Client.WatchOrderBook(ctx, instrument)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, domain.ErrStreamClosed) {
				logger.Info("stream closed")
				return
			}
			i.breaker.RecordFailure(id)
			if i.metrics != nil {
				i.metrics.StreamFailures.WithLabelValues(id).Inc()
			}
			delay := i.breaker.BackoffDelay(id)
			logger.Warn("stream error",
				slog.Any("error", err),
				slog.Int("failures", i.breaker.Failures(id)),
				slog.Duration("backoff", delay))
			if !sleep(ctx, delay) {
				return
			}
			continue
		}

		i.breaker.RecordSuccess(id)
		i.store(ctx, snap)
	}
}

// store replaces the snapshot unconditionally, mirrors it best-effort and
// fires a scan trigger only when the top of book changed.
func (i *Ingestor) store(ctx context.Context, snap domain.OrderBookSnapshot) {
	key := bookKey{venue: snap.Venue, instrument: snap.Instrument}

	i.mu.Lock()
	prev := i.books[key]
	i.books[key] = snap
	i.mu.Unlock()

	if i.metrics != nil {
		i.metrics.BookUpdates.WithLabelValues(snap.Venue, snap.Instrument).Inc()
	}

	if i.mirror != nil {
		if err := i.mirror.SetSnapshot(ctx, snap); err != nil {
			i.logger.Debug("book mirror write failed",
				slog.String("venue", snap.Venue),
				slog.String("instrument", snap.Instrument),
				slog.Any("error", err))
		}
	}

	if snap.TopChanged(prev) {
		i.trigger.Fire(snap.Venue + ":" + snap.Instrument)
		if i.metrics != nil {
			i.metrics.ScanTriggers.Inc()
		}
	}
}

// Ingest records a snapshot as if it had arrived from a stream. Paper mode
// and tests use it directly.
func (i *Ingestor) Ingest(ctx context.Context, snap domain.OrderBookSnapshot) {
	i.store(ctx, snap)
}

// Snapshot returns the latest snapshot for one (venue, instrument) pair.
func (i *Ingestor) Snapshot(venue, instrument string) (domain.OrderBookSnapshot, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	snap, ok := i.books[bookKey{venue: venue, instrument: instrument}]
	return snap, ok
}

// Books returns the current snapshots grouped as instrument -> venue ->
// snapshot. The maps are fresh copies; the snapshots themselves are never
// mutated after storage, so sharing the level slices is safe.
func (i *Ingestor) Books() map[string]map[string]domain.OrderBookSnapshot {
	i.mu.RLock()
	defer i.mu.RUnlock()
	out := make(map[string]map[string]domain.OrderBookSnapshot)
	for key, snap := range i.books {
		byVenue, ok := out[key.instrument]
		if !ok {
			byVenue = make(map[string]domain.OrderBookSnapshot)
			out[key.instrument] = byVenue
		}
		byVenue[key.venue] = snap
	}
	return out
}

// sleep waits for d or until ctx is done, reporting false on cancellation.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
