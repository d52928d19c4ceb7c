package models

import (
	"time"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentSettled   PaymentStatus = "SETTLED"
	PaymentFailed    PaymentStatus = "FAILED"
	PaymentCancelled PaymentStatus = "CANCELLED"
	PaymentExpired   PaymentStatus = "EXPIRED"
)

type Payment struct {
	ID                    string        `json:"id"`
	OrderID               string        `json:"order_id"`
	Provider              string        `json:"provider"`
	Status                PaymentStatus `json:"status"`
	GatewayToken          string        `json:"gateway_token,omitempty"`
	RedirectURL           string        `json:"redirect_url,omitempty"`
	LastTransactionStatus string        `json:"last_transaction_status,omitempty"`
	TicketsIssued         bool          `json:"tickets_issued"`
	CreatedAt             time.Time     `json:"created_at"`
	UpdatedAt             time.Time     `json:"updated_at"`
}
