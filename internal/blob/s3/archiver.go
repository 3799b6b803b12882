package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"crossarb/internal/domain"
)

// Archiver periodically copies settled orders from the order store into
// timestamped JSONL objects, one order per line. It keeps the hot database
// table small in spirit while the blob store holds the long tail.
type Archiver struct {
	store    domain.OrderStore
	writer   domain.BlobWriter
	logger   *slog.Logger
	interval time.Duration
	maxAge   time.Duration
	prefix   string

	// since excludes orders already archived by a previous pass in this
	// process. A restart re-archives; objects are timestamped so nothing
	// is overwritten.
	since time.Time
}

// NewArchiver creates an Archiver that runs every interval and archives
// terminal orders older than maxAge under the given key prefix.
func NewArchiver(store domain.OrderStore, writer domain.BlobWriter, interval, maxAge time.Duration, prefix string, logger *slog.Logger) *Archiver {
	return &Archiver{
		store:    store,
		writer:   writer,
		logger:   logger.With(slog.String("component", "archiver")),
		interval: interval,
		maxAge:   maxAge,
		prefix:   prefix,
	}
}

// Run archives on a fixed interval until ctx is cancelled.
func (a *Archiver) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := a.ArchiveOnce(ctx); err != nil {
				a.logger.Error("archive pass failed", slog.Any("error", err))
			}
		}
	}
}

// ArchiveOnce runs a single archive pass.
func (a *Archiver) ArchiveOnce(ctx context.Context) error {
	now := time.Now().UTC()
	cutoff := now.Add(-a.maxAge)

	orders, err := a.store.ListBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("s3blob: list archivable orders: %w", err)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	count := 0
	for _, o := range orders {
		if !o.UpdatedAt.After(a.since) {
			continue
		}
		if err := enc.Encode(orderRecord(o)); err != nil {
			return fmt.Errorf("s3blob: encode order %s: %w", o.ID, err)
		}
		count++
	}
	if count == 0 {
		return nil
	}

	path := fmt.Sprintf("%s/orders-%s.jsonl", a.prefix, now.Format("20060102T150405Z"))
	if err := a.writer.Put(ctx, path, buf.Bytes(), "application/x-ndjson"); err != nil {
		return fmt.Errorf("s3blob: upload archive: %w", err)
	}

	a.since = cutoff
	a.logger.Info("orders archived",
		slog.Int("count", count),
		slog.String("path", path))
	return nil
}

type archivedOrder struct {
	ID         string    `json:"id"`
	Venue      string    `json:"venue"`
	Instrument string    `json:"instrument"`
	Side       string    `json:"side"`
	Amount     float64   `json:"amount"`
	Price      float64   `json:"price"`
	Status     string    `json:"status"`
	Filled     float64   `json:"filled"`
	AvgPrice   float64   `json:"avg_price"`
	Cost       float64   `json:"cost"`
	FeePaid    float64   `json:"fee_paid"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func orderRecord(o domain.Order) archivedOrder {
	return archivedOrder{
		ID:         o.ID,
		Venue:      o.Venue,
		Instrument: o.Instrument,
		Side:       string(o.Side),
		Amount:     o.Amount,
		Price:      o.Price,
		Status:     string(o.Status),
		Filled:     o.Filled,
		AvgPrice:   o.AvgPrice,
		Cost:       o.Cost,
		FeePaid:    o.FeePaid,
		CreatedAt:  o.CreatedAt,
		UpdatedAt:  o.UpdatedAt,
	}
}
