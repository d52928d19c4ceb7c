package models

import (
	"time"
)

type OrderStatus string

const (
	OrderPending         OrderStatus = "PENDING"
	OrderAwaitingPayment OrderStatus = "AWAITING_PAYMENT"
	OrderPaid            OrderStatus = "PAID"
	OrderCancelled       OrderStatus = "CANCELLED"
	OrderExpired         OrderStatus = "EXPIRED"
	OrderRefunded        OrderStatus = "REFUNDED"
)

// orderTransitions is the single source of truth for order status changes.
// Every entry point (order manager, payment initiation, webhook reconciler,
// expiry sweeps) must go through CanTransition instead of comparing statuses
// ad hoc, so out-of-order webhook deliveries can never regress a terminal
// state.
var orderTransitions = map[OrderStatus]map[OrderStatus]bool{
	OrderPending: {
		OrderAwaitingPayment: true,
		OrderCancelled:       true,
		OrderExpired:         true,
	},
	OrderAwaitingPayment: {
		OrderPaid:      true,
		OrderCancelled: true,
		OrderExpired:   true,
	},
	OrderPaid: {
		OrderRefunded: true,
	},
	OrderCancelled: {},
	OrderExpired:   {},
	OrderRefunded:  {},
}

func CanTransition(from, to OrderStatus) bool {
	return orderTransitions[from][to]
}

// IsTerminal reports whether no forward transition except an explicitly
// allowed one (PAID -> REFUNDED) remains.
func IsTerminal(s OrderStatus) bool {
	return s == OrderPaid || s == OrderCancelled || s == OrderExpired || s == OrderRefunded
}

type Order struct {
	ID          string      `json:"id"`
	UserID      string      `json:"user_id"`
	ConcertID   string      `json:"concert_id"`
	ExternalRef string      `json:"external_ref"`
	GrossAmount int64       `json:"gross_amount"`
	Status      OrderStatus `json:"status"`
	ExpiresAt   time.Time   `json:"expires_at"`
	CreatedAt   time.Time   `json:"created_at"`
	Items       []OrderItem `json:"items,omitempty"`
}

// OrderItem carries the price snapshot taken at order creation. Later price
// changes on the ticket type must not affect it.
type OrderItem struct {
	ID           string `json:"id"`
	OrderID      string `json:"order_id"`
	TicketTypeID string `json:"ticket_type_id"`
	Qty          int    `json:"qty"`
	UnitPrice    int64  `json:"unit_price"`
	Subtotal     int64  `json:"subtotal"`
}
