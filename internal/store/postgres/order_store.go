package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"crossarb/internal/domain"
)

// OrderStore implements domain.OrderStore using PostgreSQL. Orders are the
// audit trail of everything the executor submitted; rows are never deleted
// here, only archived out of band.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore creates an OrderStore backed by the given connection pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

var _ domain.OrderStore = (*OrderStore)(nil)

// Create inserts a new order.
func (s *OrderStore) Create(ctx context.Context, o domain.Order) error {
	const query = `
		INSERT INTO orders (
			id, venue, instrument, side, amount, price,
			status, filled, avg_price, cost, fee_paid,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11,
			$12, $13
		)`

	_, err := s.pool.Exec(ctx, query,
		o.ID, o.Venue, o.Instrument, string(o.Side), o.Amount, o.Price,
		string(o.Status), o.Filled, o.AvgPrice, o.Cost, o.FeePaid,
		o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create order %s: %w", o.ID, err)
	}
	return nil
}

// Update replaces the mutable fields of an existing order.
func (s *OrderStore) Update(ctx context.Context, o domain.Order) error {
	const query = `
		UPDATE orders SET
			status = $2, filled = $3, avg_price = $4,
			cost = $5, fee_paid = $6, updated_at = $7
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query,
		o.ID, string(o.Status), o.Filled, o.AvgPrice,
		o.Cost, o.FeePaid, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update order %s: %w", o.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: update order %s: %w", o.ID, domain.ErrNotFound)
	}
	return nil
}

// GetByID returns a single order.
func (s *OrderStore) GetByID(ctx context.Context, id string) (domain.Order, error) {
	const query = `
		SELECT id, venue, instrument, side, amount, price,
		       status, filled, avg_price, cost, fee_paid,
		       created_at, updated_at
		FROM orders WHERE id = $1`

	o, err := scanOrder(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Order{}, domain.ErrNotFound
		}
		return domain.Order{}, fmt.Errorf("postgres: get order %s: %w", id, err)
	}
	return o, nil
}

// ListBefore returns terminal orders last updated strictly before the
// cutoff, oldest first. The archiver consumes this.
func (s *OrderStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Order, error) {
	const query = `
		SELECT id, venue, instrument, side, amount, price,
		       status, filled, avg_price, cost, fee_paid,
		       created_at, updated_at
		FROM orders
		WHERE updated_at < $1 AND status IN ('filled', 'canceled', 'failed')
		ORDER BY updated_at ASC`

	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list orders before %s: %w", before, err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate orders: %w", err)
	}
	return orders, nil
}

func scanOrder(row pgx.Row) (domain.Order, error) {
	var (
		o            domain.Order
		side, status string
	)
	err := row.Scan(
		&o.ID, &o.Venue, &o.Instrument, &side, &o.Amount, &o.Price,
		&status, &o.Filled, &o.AvgPrice, &o.Cost, &o.FeePaid,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return domain.Order{}, err
	}
	o.Side = domain.OrderSide(side)
	o.Status = domain.OrderStatus(status)
	return o, nil
}
