package services

import (
	"context"
	"testing"

	"concert-ticketing/config"
	"concert-ticketing/internal/status"
	"concert-ticketing/models"

	"github.com/go-redis/redismock/v9"
	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapTransaction(t *testing.T) {
	tests := []struct {
		name        string
		txStatus    string
		fraudStatus string
		wantPayment models.PaymentStatus
		wantOrder   models.OrderStatus
	}{
		{"settlement", "settlement", "", models.PaymentSettled, models.OrderPaid},
		{"settlement accepted", "settlement", "accept", models.PaymentSettled, models.OrderPaid},
		{"capture accepted", "capture", "accept", models.PaymentSettled, models.OrderPaid},
		{"capture challenged", "capture", "challenge", models.PaymentFailed, models.OrderCancelled},
		{"settlement denied by fraud", "settlement", "deny", models.PaymentFailed, models.OrderCancelled},
		{"pending", "pending", "", models.PaymentPending, models.OrderAwaitingPayment},
		{"deny", "deny", "", models.PaymentCancelled, models.OrderCancelled},
		{"cancel", "cancel", "", models.PaymentCancelled, models.OrderCancelled},
		{"expire", "expire", "", models.PaymentExpired, models.OrderExpired},
		{"refund", "refund", "", models.PaymentCancelled, models.OrderRefunded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payment, order, err := mapTransaction(tt.txStatus, tt.fraudStatus)
			require.NoError(t, err)
			assert.Equal(t, tt.wantPayment, payment)
			assert.Equal(t, tt.wantOrder, order)
		})
	}
}

func TestMapTransaction_UnknownStatus(t *testing.T) {
	_, _, err := mapTransaction("authorize", "")
	assert.ErrorIs(t, err, status.ErrInvalidInput)
}

// Every target the mapping can produce must be reachable through the order
// state machine from at least one live state, otherwise a notification class
// could never apply.
func TestMapTransaction_TargetsReachable(t *testing.T) {
	targets := []models.OrderStatus{
		models.OrderPaid,
		models.OrderAwaitingPayment,
		models.OrderCancelled,
		models.OrderExpired,
		models.OrderRefunded,
	}
	sources := []models.OrderStatus{
		models.OrderPending,
		models.OrderAwaitingPayment,
		models.OrderPaid,
	}

	for _, target := range targets {
		reachable := false
		for _, from := range sources {
			if models.CanTransition(from, target) {
				reachable = true
				break
			}
		}
		assert.True(t, reachable, "no live state can reach %s", target)
	}
}

// A settled order never moves backwards no matter what the provider replays.
func TestMapTransaction_PaidNeverRegresses(t *testing.T) {
	replays := []struct {
		txStatus    string
		fraudStatus string
	}{
		{"pending", ""},
		{"deny", ""},
		{"cancel", ""},
		{"expire", ""},
	}

	for _, replay := range replays {
		_, target, err := mapTransaction(replay.txStatus, replay.fraudStatus)
		require.NoError(t, err)
		assert.False(t, models.CanTransition(models.OrderPaid, target),
			"replayed %q must not move a PAID order to %s", replay.txStatus, target)
	}
}

func newSettlementService(t *testing.T, app core.App, cfg *config.Config) *SettlementService {
	t.Helper()

	redisDB, _ := redismock.NewClientMock()
	orders := NewOrderService(app, cfg)
	payments := NewPaymentService(app, cfg, redisDB, nil, orders)
	return NewSettlementService(app, cfg, nil, payments, NewTicketService(app), nil)
}

// seedAwaitingOrder writes an AWAITING_PAYMENT order with one line per given
// quantity (all on the same ticket type) and its pending payment row.
func seedAwaitingOrder(t *testing.T, app core.App, userID, concertID, ticketTypeID, externalRef string, qtys ...int) string {
	t.Helper()

	order := seedOrder(t, app, userID, concertID, externalRef, models.OrderAwaitingPayment)
	for _, qty := range qtys {
		createRecord(t, app, collOrderItems, map[string]any{
			"order":       order.Id,
			"ticket_type": ticketTypeID,
			"qty":         qty,
			"unit_price":  500,
			"subtotal":    500 * qty,
		})
	}
	createRecord(t, app, collPayments, map[string]any{
		"order":    order.Id,
		"provider": providerMidpay,
		"status":   string(models.PaymentPending),
	})
	return order.Id
}

func TestApply_DuplicateSettlementIssuesOnce(t *testing.T) {
	app := newTestApp(t)
	svc := newSettlementService(t, app, testConfig())
	ctx := context.Background()

	userID := seedUser(t, app)
	concertID := seedConcert(t, app)
	ticketTypeID := seedTicketType(t, app, concertID, 500, 10)
	orderID := seedAwaitingOrder(t, app, userID, concertID, ticketTypeID, "ref-dup-1", 2)

	settle := &status.Transaction{OrderRef: "ref-dup-1", TransactionStatus: "settlement", FraudStatus: "accept"}
	raw := []byte(`{"transaction_status":"settlement"}`)

	require.NoError(t, svc.apply(ctx, settle, raw))

	order, err := app.FindRecordById(collOrders, orderID)
	require.NoError(t, err)
	assert.Equal(t, string(models.OrderPaid), order.GetString("status"))

	payment, err := app.FindFirstRecordByFilter(collPayments, "order = {:id}", dbx.Params{"id": orderID})
	require.NoError(t, err)
	assert.Equal(t, string(models.PaymentSettled), payment.GetString("status"))
	assert.True(t, payment.GetBool("tickets_issued"))

	// Same terminal notification again: ack without a second batch.
	require.NoError(t, svc.apply(ctx, settle, raw))

	// A late deny must not regress the settled order either.
	deny := &status.Transaction{OrderRef: "ref-dup-1", TransactionStatus: "deny"}
	require.NoError(t, svc.apply(ctx, deny, raw))

	order, err = app.FindRecordById(collOrders, orderID)
	require.NoError(t, err)
	assert.Equal(t, string(models.OrderPaid), order.GetString("status"))

	tickets, err := app.FindRecordsByFilter(collTickets, "order = {:id}", "", 0, 0, dbx.Params{"id": orderID})
	require.NoError(t, err)
	assert.Len(t, tickets, 2)

	ticketType, err := app.FindRecordById(collTicketTypes, ticketTypeID)
	require.NoError(t, err)
	assert.Equal(t, 2, ticketType.GetInt("quota_sold"))
}

func TestApply_QuotaExhaustedLeavesOrderPaidUnissued(t *testing.T) {
	app := newTestApp(t)
	svc := newSettlementService(t, app, testConfig())
	ctx := context.Background()

	userID := seedUser(t, app)
	concertID := seedConcert(t, app)
	ticketTypeID := seedTicketType(t, app, concertID, 500, 1)

	// Two lines on the same ticket type: each fits the remaining quota on
	// its own, together they exceed it.
	orderID := seedAwaitingOrder(t, app, userID, concertID, ticketTypeID, "ref-quota-1", 1, 1)

	settle := &status.Transaction{OrderRef: "ref-quota-1", TransactionStatus: "settlement", FraudStatus: "accept"}
	require.NoError(t, svc.apply(ctx, settle, []byte(`{"transaction_status":"settlement"}`)))

	order, err := app.FindRecordById(collOrders, orderID)
	require.NoError(t, err)
	assert.Equal(t, string(models.OrderPaid), order.GetString("status"))

	payment, err := app.FindFirstRecordByFilter(collPayments, "order = {:id}", dbx.Params{"id": orderID})
	require.NoError(t, err)
	assert.Equal(t, string(models.PaymentSettled), payment.GetString("status"))
	assert.False(t, payment.GetBool("tickets_issued"))

	tickets, err := app.FindRecordsByFilter(collTickets, "order = {:id}", "", 0, 0, dbx.Params{"id": orderID})
	require.NoError(t, err)
	assert.Empty(t, tickets)

	ticketType, err := app.FindRecordById(collTicketTypes, ticketTypeID)
	require.NoError(t, err)
	assert.Equal(t, 0, ticketType.GetInt("quota_sold"))

	// The recovery sweep keeps retrying and stays clean on the same shortfall.
	recovered, err := svc.RecoverUnissued(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, recovered)
}
