package domain

import (
	"context"
	"time"
)

// PnLStore persists the cumulative realized PnL as a single durable value.
// Save is called synchronously after every fill so a crash immediately after
// a trade cannot lose the record.
type PnLStore interface {
	Load(ctx context.Context) (float64, error)
	Save(ctx context.Context, pnlUSD float64) error
}

// OrderStore is the append-only audit log of every order ever submitted.
type OrderStore interface {
	Create(ctx context.Context, order Order) error
	Update(ctx context.Context, order Order) error
	GetByID(ctx context.Context, id string) (Order, error)
	// ListBefore returns terminal orders last updated strictly before the
	// cutoff, for archival.
	ListBefore(ctx context.Context, before time.Time) ([]Order, error)
}

// BlobWriter uploads a finished object to blob storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data []byte, contentType string) error
}
