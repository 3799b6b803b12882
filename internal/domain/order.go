package domain

import "time"

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderStatus tracks the order lifecycle. A partially-filled order that is
// still working on the book gets its own status rather than being conflated
// with an untouched open order.
type OrderStatus string

const (
	OrderStatusOpen            OrderStatus = "open"
	OrderStatusPartiallyFilled OrderStatus = "partially_filled"
	OrderStatusFilled          OrderStatus = "filled"
	OrderStatusCanceled        OrderStatus = "canceled"
	OrderStatusFailed          OrderStatus = "failed"
)

// Order represents a single order placed on a venue. Orders are created when
// submitted, mutated on status reconciliation, and never deleted: the full
// set is retained for audit and PnL accounting.
type Order struct {
	ID         string
	Venue      string
	Instrument string
	Side       OrderSide
	Amount     float64 // requested base amount
	Price      float64 // requested limit price; 0 for market orders
	Status     OrderStatus
	Filled     float64 // filled base amount; never exceeds Amount
	AvgPrice   float64 // average fill price
	Cost       float64 // quote-currency notional of the filled part
	FeePaid    float64 // quote-currency fee charged by the venue
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// IsTerminal reports whether the order can no longer change state.
func (o Order) IsTerminal() bool {
	switch o.Status {
	case OrderStatusFilled, OrderStatusCanceled, OrderStatusFailed:
		return true
	}
	return false
}

// NormalizeStatus maps a venue-reported status onto the local lifecycle,
// promoting an open order with partial fills to OrderStatusPartiallyFilled.
func NormalizeStatus(status OrderStatus, filled, amount float64) OrderStatus {
	if status == OrderStatusOpen && filled > 0 && filled < amount {
		return OrderStatusPartiallyFilled
	}
	if status == OrderStatusOpen && amount > 0 && filled >= amount {
		return OrderStatusFilled
	}
	return status
}
