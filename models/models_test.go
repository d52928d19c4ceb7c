package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderTransitions_AllowedPaths(t *testing.T) {
	allowed := []struct {
		from OrderStatus
		to   OrderStatus
	}{
		{OrderPending, OrderAwaitingPayment},
		{OrderPending, OrderCancelled},
		{OrderPending, OrderExpired},
		{OrderAwaitingPayment, OrderPaid},
		{OrderAwaitingPayment, OrderCancelled},
		{OrderAwaitingPayment, OrderExpired},
		{OrderPaid, OrderRefunded},
	}

	for _, tc := range allowed {
		assert.True(t, CanTransition(tc.from, tc.to), "%s -> %s should be allowed", tc.from, tc.to)
	}
}

func TestOrderTransitions_NoOtherPathReachable(t *testing.T) {
	all := []OrderStatus{
		OrderPending, OrderAwaitingPayment, OrderPaid,
		OrderCancelled, OrderExpired, OrderRefunded,
	}

	allowedCount := 0
	for _, from := range all {
		for _, to := range all {
			if CanTransition(from, to) {
				allowedCount++
			}
		}
	}

	// Exactly the seven legal edges, nothing else.
	assert.Equal(t, 7, allowedCount)
}

func TestOrderTransitions_TerminalStatesDoNotRegress(t *testing.T) {
	terminals := []OrderStatus{OrderCancelled, OrderExpired, OrderRefunded}

	for _, from := range terminals {
		assert.True(t, IsTerminal(from))
		assert.False(t, CanTransition(from, OrderPending))
		assert.False(t, CanTransition(from, OrderAwaitingPayment))
		assert.False(t, CanTransition(from, OrderPaid))
	}

	// PAID is terminal for everything except an explicit refund.
	assert.True(t, IsTerminal(OrderPaid))
	assert.False(t, CanTransition(OrderPaid, OrderAwaitingPayment))
	assert.False(t, CanTransition(OrderPaid, OrderCancelled))
	assert.True(t, CanTransition(OrderPaid, OrderRefunded))
}

func TestOrderTransitions_SelfTransitionRejected(t *testing.T) {
	for from := range orderTransitions {
		assert.False(t, CanTransition(from, from), "%s -> %s must not be a legal transition", from, from)
	}
}

func TestTicketTransitions(t *testing.T) {
	assert.True(t, CanTransitionTicket(TicketIssued, TicketUsed))
	assert.True(t, CanTransitionTicket(TicketIssued, TicketVoid))

	assert.False(t, CanTransitionTicket(TicketUsed, TicketIssued))
	assert.False(t, CanTransitionTicket(TicketUsed, TicketVoid))
	assert.False(t, CanTransitionTicket(TicketVoid, TicketUsed))
}

func TestOrder_JSONSerialization(t *testing.T) {
	now := time.Now()

	order := Order{
		ID:          "order-123",
		UserID:      "user-456",
		ConcertID:   "concert-789",
		ExternalRef: "7c9e6679-7425-40de-944b-e07fc1f90ae7",
		GrossAmount: 3250000,
		Status:      OrderAwaitingPayment,
		ExpiresAt:   now.Add(15 * time.Minute),
		CreatedAt:   now,
		Items: []OrderItem{
			{ID: "item-1", OrderID: "order-123", TicketTypeID: "tt-a", Qty: 1, UnitPrice: 2500000, Subtotal: 2500000},
			{ID: "item-2", OrderID: "order-123", TicketTypeID: "tt-b", Qty: 1, UnitPrice: 750000, Subtotal: 750000},
		},
	}

	jsonData, err := json.Marshal(order)
	require.NoError(t, err)

	var decoded Order
	require.NoError(t, json.Unmarshal(jsonData, &decoded))

	assert.Equal(t, order.ID, decoded.ID)
	assert.Equal(t, order.ExternalRef, decoded.ExternalRef)
	assert.Equal(t, order.GrossAmount, decoded.GrossAmount)
	assert.Equal(t, order.Status, decoded.Status)
	assert.Len(t, decoded.Items, 2)
	assert.Equal(t, int64(2500000), decoded.Items[0].Subtotal)
	assert.WithinDuration(t, order.ExpiresAt, decoded.ExpiresAt, time.Second)
}

func TestTicket_UsedAtOmittedWhileIssued(t *testing.T) {
	ticket := Ticket{
		ID:             "ticket-1",
		OrderID:        "order-123",
		RedemptionCode: "A1B2C3D4E5F6A7B8C9D0",
		Status:         TicketIssued,
		IssuedAt:       time.Now(),
	}

	jsonData, err := json.Marshal(ticket)
	require.NoError(t, err)
	assert.NotContains(t, string(jsonData), "used_at")
}
