package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"crossarb/internal/domain"
)

// PnLStore implements domain.PnLStore as a single-row table. The cumulative
// realized PnL is the only durable risk state the bot keeps.
type PnLStore struct {
	pool *pgxpool.Pool
}

// NewPnLStore creates a PnLStore backed by the given connection pool.
func NewPnLStore(pool *pgxpool.Pool) *PnLStore {
	return &PnLStore{pool: pool}
}

var _ domain.PnLStore = (*PnLStore)(nil)

// Load returns the persisted cumulative PnL. A fresh database yields
// domain.ErrNotFound.
func (s *PnLStore) Load(ctx context.Context) (float64, error) {
	var pnl float64
	err := s.pool.QueryRow(ctx, `SELECT pnl_usd FROM pnl WHERE id = 1`).Scan(&pnl)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrNotFound
		}
		return 0, fmt.Errorf("postgres: load pnl: %w", err)
	}
	return pnl, nil
}

// Save upserts the cumulative PnL.
func (s *PnLStore) Save(ctx context.Context, pnlUSD float64) error {
	const query = `
		INSERT INTO pnl (id, pnl_usd, updated_at) VALUES (1, $1, NOW())
		ON CONFLICT (id) DO UPDATE SET pnl_usd = EXCLUDED.pnl_usd, updated_at = NOW()`
	if _, err := s.pool.Exec(ctx, query, pnlUSD); err != nil {
		return fmt.Errorf("postgres: save pnl: %w", err)
	}
	return nil
}
