package services

import (
	"context"
	"testing"
	"time"

	"concert-ticketing/internal/status"
	"concert-ticketing/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrder_LazyExpiryOnRead(t *testing.T) {
	app := newTestApp(t)
	svc := NewOrderService(app, testConfig())
	ctx := context.Background()

	userID := seedUser(t, app)
	concertID := seedConcert(t, app)
	order := seedOrder(t, app, userID, concertID, "ref-exp-1", models.OrderPending)
	order.Set("expires_at", time.Now().Add(-time.Minute))
	require.NoError(t, app.Save(order))

	got, err := svc.GetOrder(ctx, order.Id, userID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderExpired, got.Status)

	// Expired orders are past cancelling.
	_, err = svc.CancelOrder(ctx, order.Id, userID)
	assert.ErrorIs(t, err, status.ErrInvalidState)
}

func TestCreateOrder_GrossAmountFrozen(t *testing.T) {
	app := newTestApp(t)
	svc := NewOrderService(app, testConfig())
	ctx := context.Background()

	userID := seedUser(t, app)
	concertID := seedConcert(t, app)
	vipID := seedTicketType(t, app, concertID, 2500000, 10)
	festivalID := seedTicketType(t, app, concertID, 750000, 10)

	order, err := svc.CreateOrder(ctx, userID, CreateOrderRequest{
		ConcertID: concertID,
		Items: []OrderItemInput{
			{TicketTypeID: vipID, Qty: 1},
			{TicketTypeID: festivalID, Qty: 1},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, models.OrderPending, order.Status)
	assert.Equal(t, int64(3250000), order.GrossAmount)
	require.Len(t, order.Items, 2)

	// Repricing the ticket type must not touch the frozen snapshot.
	ticketType, err := app.FindRecordById(collTicketTypes, vipID)
	require.NoError(t, err)
	ticketType.Set("price", 9900000)
	require.NoError(t, app.Save(ticketType))

	got, err := svc.GetOrder(ctx, order.ID, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(3250000), got.GrossAmount)
	for _, item := range got.Items {
		if item.TicketTypeID == vipID {
			assert.Equal(t, int64(2500000), item.UnitPrice)
			assert.Equal(t, int64(2500000), item.Subtotal)
		}
	}
}

func TestCancelOrder_OnlyFromPending(t *testing.T) {
	app := newTestApp(t)
	svc := NewOrderService(app, testConfig())
	ctx := context.Background()

	userID := seedUser(t, app)
	concertID := seedConcert(t, app)
	order := seedOrder(t, app, userID, concertID, "ref-cancel-1", models.OrderAwaitingPayment)

	_, err := svc.CancelOrder(ctx, order.Id, userID)
	assert.ErrorIs(t, err, status.ErrInvalidState)

	record, err := app.FindRecordById(collOrders, order.Id)
	require.NoError(t, err)
	assert.Equal(t, string(models.OrderAwaitingPayment), record.GetString("status"))
}
