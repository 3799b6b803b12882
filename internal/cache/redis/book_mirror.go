package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"crossarb/internal/domain"
)

// snapshotTTL bounds how long a mirrored book survives without refresh, so a
// dead stream does not leave stale quotes behind for external readers.
const snapshotTTL = 30 * time.Second

// BookMirror implements domain.BookMirror on Redis. The in-process book map
// stays authoritative; this copy exists for dashboards and external tooling.
type BookMirror struct {
	rdb *redis.Client
}

// NewBookMirror creates a BookMirror backed by the given client.
func NewBookMirror(c *Client) *BookMirror {
	return &BookMirror{rdb: c.rdb}
}

var _ domain.BookMirror = (*BookMirror)(nil)

type storedSnapshot struct {
	Venue      string              `json:"venue"`
	Instrument string              `json:"instrument"`
	Bids       []domain.PriceLevel `json:"bids"`
	Asks       []domain.PriceLevel `json:"asks"`
	CapturedAt time.Time           `json:"captured_at"`
}

func bookKey(venue, instrument string) string {
	return fmt.Sprintf("book:%s:%s", venue, instrument)
}

// SetSnapshot stores the snapshot under book:<venue>:<instrument> with a TTL.
func (m *BookMirror) SetSnapshot(ctx context.Context, snap domain.OrderBookSnapshot) error {
	data, err := json.Marshal(storedSnapshot{
		Venue:      snap.Venue,
		Instrument: snap.Instrument,
		Bids:       snap.Bids,
		Asks:       snap.Asks,
		CapturedAt: snap.CapturedAt,
	})
	if err != nil {
		return fmt.Errorf("redis: marshal snapshot: %w", err)
	}
	key := bookKey(snap.Venue, snap.Instrument)
	if err := m.rdb.Set(ctx, key, data, snapshotTTL).Err(); err != nil {
		return fmt.Errorf("redis: set %s: %w", key, err)
	}
	return nil
}

// GetSnapshot loads a mirrored snapshot. A missing or expired key yields
// domain.ErrNotFound.
func (m *BookMirror) GetSnapshot(ctx context.Context, venue, instrument string) (domain.OrderBookSnapshot, error) {
	key := bookKey(venue, instrument)
	data, err := m.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.OrderBookSnapshot{}, domain.ErrNotFound
		}
		return domain.OrderBookSnapshot{}, fmt.Errorf("redis: get %s: %w", key, err)
	}

	var stored storedSnapshot
	if err := json.Unmarshal(data, &stored); err != nil {
		return domain.OrderBookSnapshot{}, fmt.Errorf("redis: unmarshal %s: %w", key, err)
	}
	return domain.OrderBookSnapshot{
		Venue:      stored.Venue,
		Instrument: stored.Instrument,
		Bids:       stored.Bids,
		Asks:       stored.Asks,
		CapturedAt: stored.CapturedAt,
	}, nil
}

// GetBBO returns just the top of the mirrored book.
func (m *BookMirror) GetBBO(ctx context.Context, venue, instrument string) (bestBid, bestAsk float64, err error) {
	snap, err := m.GetSnapshot(ctx, venue, instrument)
	if err != nil {
		return 0, 0, err
	}
	return snap.BestBid(), snap.BestAsk(), nil
}
