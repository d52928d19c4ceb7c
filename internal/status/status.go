package status

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidInput marks malformed or missing request data. Not retryable.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidState marks an operation that is illegal for the entity's
	// current status, e.g. cancelling an already-cancelled order.
	ErrInvalidState = errors.New("invalid state")

	// ErrNotFound marks an unknown id, external reference or redemption code.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized marks a webhook payload that failed signature
	// verification. No state is changed when this is returned.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrGatewayUnavailable marks a transient upstream failure. Safe to retry
	// with backoff: gateway calls are keyed by the order's external reference.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
)

// Transaction is the provider-neutral view of a gateway transaction, shared
// by the push stream, the check endpoint and the webhook payload.
type Transaction struct {
	OrderRef          string          `json:"order_id"`
	TransactionID     string          `json:"transaction_id"`
	TransactionStatus string          `json:"transaction_status"`
	FraudStatus       string          `json:"fraud_status"`
	StatusCode        string          `json:"status_code"`
	GrossAmount       decimal.Decimal `json:"gross_amount"`
	Currency          string          `json:"currency"`
	TransactionTime   time.Time       `json:"transaction_time"`
}
