package services

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"time"

	"concert-ticketing/config"
	"concert-ticketing/internal/status"
	"concert-ticketing/models"
	"concert-ticketing/monitoring"

	"github.com/google/uuid"
	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"
)

type OrderService struct {
	app core.App
	cfg *config.Config
}

func NewOrderService(app core.App, cfg *config.Config) *OrderService {
	return &OrderService{app: app, cfg: cfg}
}

type OrderItemInput struct {
	TicketTypeID string `json:"ticket_type_id"`
	Qty          int    `json:"qty"`
}

type CreateOrderRequest struct {
	ConcertID string           `json:"concert_id"`
	Items     []OrderItemInput `json:"items"`
}

// itemSnapshot is a priced line, frozen before anything is written.
type itemSnapshot struct {
	ticketTypeID string
	qty          int
	unitPrice    decimal.Decimal
	subtotal     decimal.Decimal
}

// priceItems loads each ticket type, validates it against the concert and its
// sales window, and snapshots current prices. Quota is deliberately not
// reserved here: the ledger is only touched at issuance time.
func (s *OrderService) priceItems(app core.App, concertID string, items []OrderItemInput, now time.Time) ([]itemSnapshot, decimal.Decimal, error) {
	gross := decimal.Zero
	snapshots := make([]itemSnapshot, 0, len(items))

	for _, item := range items {
		if item.Qty < 1 {
			return nil, gross, fmt.Errorf("%w: qty must be at least 1", status.ErrInvalidInput)
		}

		tt, err := app.FindRecordById(collTicketTypes, item.TicketTypeID)
		if err != nil {
			return nil, gross, fmt.Errorf("%w: ticket type %s", status.ErrInvalidInput, item.TicketTypeID)
		}
		if tt.GetString("concert") != concertID {
			return nil, gross, fmt.Errorf("%w: ticket type %s does not belong to concert %s", status.ErrInvalidInput, item.TicketTypeID, concertID)
		}

		salesStart := tt.GetDateTime("sales_start_at").Time()
		salesEnd := tt.GetDateTime("sales_end_at").Time()
		if now.Before(salesStart) || !now.Before(salesEnd) {
			return nil, gross, fmt.Errorf("%w: ticket type %s is outside its sales window", status.ErrInvalidInput, item.TicketTypeID)
		}

		unitPrice := decimal.NewFromFloat(tt.GetFloat("price"))
		subtotal := unitPrice.Mul(decimal.NewFromInt(int64(item.Qty)))
		gross = gross.Add(subtotal)

		snapshots = append(snapshots, itemSnapshot{
			ticketTypeID: item.TicketTypeID,
			qty:          item.Qty,
			unitPrice:    unitPrice,
			subtotal:     subtotal,
		})
	}

	return snapshots, gross, nil
}

// CreateOrder snapshots prices, freezes the gross amount and writes the order
// with its items in one transaction. The order starts PENDING with a fixed
// TTL; the gateway is not contacted yet.
func (s *OrderService) CreateOrder(ctx context.Context, userID string, req CreateOrderRequest) (*models.Order, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: missing user", status.ErrInvalidInput)
	}
	if req.ConcertID == "" {
		return nil, fmt.Errorf("%w: missing concert_id", status.ErrInvalidInput)
	}
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("%w: order needs at least one item", status.ErrInvalidInput)
	}

	if _, err := s.app.FindRecordById(collConcerts, req.ConcertID); err != nil {
		return nil, fmt.Errorf("%w: concert %s", status.ErrNotFound, req.ConcertID)
	}

	now := time.Now()
	snapshots, gross, err := s.priceItems(s.app, req.ConcertID, req.Items, now)
	if err != nil {
		return nil, err
	}

	externalRef := uuid.NewString()
	expiresAt := now.Add(s.cfg.OrderTTL)

	var orderID string
	err = s.app.RunInTransaction(func(txApp core.App) error {
		ordersCol, err := txApp.FindCollectionByNameOrId(collOrders)
		if err != nil {
			return err
		}
		itemsCol, err := txApp.FindCollectionByNameOrId(collOrderItems)
		if err != nil {
			return err
		}

		order := core.NewRecord(ordersCol)
		order.Set("user", userID)
		order.Set("concert", req.ConcertID)
		order.Set("external_ref", externalRef)
		order.Set("gross_amount", gross.InexactFloat64())
		order.Set("status", string(models.OrderPending))
		order.Set("expires_at", expiresAt)
		if err := txApp.Save(order); err != nil {
			return fmt.Errorf("save order: %w", err)
		}
		orderID = order.Id

		for _, snap := range snapshots {
			item := core.NewRecord(itemsCol)
			item.Set("order", order.Id)
			item.Set("ticket_type", snap.ticketTypeID)
			item.Set("qty", snap.qty)
			item.Set("unit_price", snap.unitPrice.InexactFloat64())
			item.Set("subtotal", snap.subtotal.InexactFloat64())
			if err := txApp.Save(item); err != nil {
				return fmt.Errorf("save order item: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	monitoring.TrackOrderCreated()
	slog.Info("order created", "orderId", orderID, "externalRef", externalRef, "grossAmount", gross.String())

	return s.GetOrder(ctx, orderID, userID)
}

// GetOrder returns an order with its items. Every read passes through the
// lazy-expiry step first, so a caller never sees a stale PENDING order past
// its expiry.
func (s *OrderService) GetOrder(ctx context.Context, orderID, userID string) (*models.Order, error) {
	record, err := s.findOwnedOrder(orderID, userID)
	if err != nil {
		return nil, err
	}

	record, err = s.freshenExpiry(record)
	if err != nil {
		return nil, err
	}

	order := orderFromRecord(record)

	itemRecords, err := s.app.FindRecordsByFilter(collOrderItems,
		"order = {:orderId}", "created", 0, 0, dbx.Params{"orderId": orderID})
	if err != nil {
		return nil, err
	}
	for _, ir := range itemRecords {
		order.Items = append(order.Items, orderItemFromRecord(ir))
	}

	return order, nil
}

// GetOrderByExternalRef resolves an order the way the payment provider knows
// it. Expiry freshening applies here too.
func (s *OrderService) GetOrderByExternalRef(ctx context.Context, externalRef string) (*core.Record, error) {
	record, err := s.app.FindFirstRecordByFilter(collOrders,
		"external_ref = {:ref}", dbx.Params{"ref": externalRef})
	if err != nil {
		return nil, fmt.Errorf("%w: order with reference %s", status.ErrNotFound, externalRef)
	}
	return s.freshenExpiry(record)
}

// CancelOrder is only legal from PENDING. Cancelling twice is an error, not a
// no-op.
func (s *OrderService) CancelOrder(ctx context.Context, orderID, userID string) (*models.Order, error) {
	record, err := s.findOwnedOrder(orderID, userID)
	if err != nil {
		return nil, err
	}
	if record, err = s.freshenExpiry(record); err != nil {
		return nil, err
	}

	cur := models.OrderStatus(record.GetString("status"))
	if cur != models.OrderPending {
		return nil, fmt.Errorf("%w: cannot cancel order in status %s", status.ErrInvalidState, cur)
	}

	err = s.app.RunInTransaction(func(txApp core.App) error {
		fresh, err := txApp.FindRecordById(collOrders, record.Id)
		if err != nil {
			return err
		}
		// Recheck PENDING, not just transition legality: the order may have
		// moved to AWAITING_PAYMENT since the read above, and cancellation
		// is only offered before payment initiation.
		cur := models.OrderStatus(fresh.GetString("status"))
		if cur != models.OrderPending {
			return fmt.Errorf("%w: cannot cancel order in status %s", status.ErrInvalidState, cur)
		}
		fresh.Set("status", string(models.OrderCancelled))
		return txApp.Save(fresh)
	})
	if err != nil {
		return nil, err
	}

	monitoring.TrackOrderTransition(string(models.OrderCancelled))
	slog.Info("order cancelled", "orderId", orderID)

	return s.GetOrder(ctx, orderID, userID)
}

func (s *OrderService) findOwnedOrder(orderID, userID string) (*core.Record, error) {
	record, err := s.app.FindRecordById(collOrders, orderID)
	if err != nil {
		return nil, fmt.Errorf("%w: order %s", status.ErrNotFound, orderID)
	}
	// userID is empty for internal callers that already hold authority.
	if userID != "" && record.GetString("user") != userID {
		return nil, fmt.Errorf("%w: order %s", status.ErrNotFound, orderID)
	}
	return record, nil
}

// freshenExpiry lazily expires a PENDING/AWAITING_PAYMENT order whose TTL has
// passed, together with its payment row, before handing it to the caller.
func (s *OrderService) freshenExpiry(record *core.Record) (*core.Record, error) {
	cur := models.OrderStatus(record.GetString("status"))
	if cur != models.OrderPending && cur != models.OrderAwaitingPayment {
		return record, nil
	}
	if !record.GetDateTime("expires_at").Time().Before(time.Now()) {
		return record, nil
	}

	var fresh *core.Record
	err := s.app.RunInTransaction(func(txApp core.App) error {
		var err error
		fresh, err = txApp.FindRecordById(collOrders, record.Id)
		if err != nil {
			return err
		}

		cur := models.OrderStatus(fresh.GetString("status"))
		if !models.CanTransition(cur, models.OrderExpired) {
			// Settled concurrently; nothing to expire.
			return nil
		}

		fresh.Set("status", string(models.OrderExpired))
		if err := txApp.Save(fresh); err != nil {
			return err
		}

		payment, err := txApp.FindFirstRecordByFilter(collPayments,
			"order = {:orderId}", dbx.Params{"orderId": fresh.Id})
		if err == nil && models.PaymentStatus(payment.GetString("status")) == models.PaymentPending {
			payment.Set("status", string(models.PaymentExpired))
			if err := txApp.Save(payment); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if models.OrderStatus(fresh.GetString("status")) == models.OrderExpired &&
		models.OrderStatus(record.GetString("status")) != models.OrderExpired {
		monitoring.TrackOrderTransition(string(models.OrderExpired))
		slog.Info("order lazily expired", "orderId", record.Id)
	}
	return fresh, nil
}

// ExpireStale transitions every overdue PENDING/AWAITING_PAYMENT order. The
// lazy path above already guarantees the observable contract; this sweep just
// keeps stale rows from accumulating unread.
func (s *OrderService) ExpireStale(ctx context.Context) (int, error) {
	records, err := s.app.FindRecordsByFilter(collOrders,
		"(status = 'PENDING' || status = 'AWAITING_PAYMENT') && expires_at < {:now}",
		"created", 200, 0, dbx.Params{"now": time.Now().UTC().Format("2006-01-02 15:04:05.000Z")})
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, record := range records {
		if _, err := s.freshenExpiry(record); err != nil {
			slog.Error("expiry sweep failed for order", "orderId", record.Id, "error", err)
			continue
		}
		expired++
	}
	return expired, nil
}

// RunExpirySweep periodically expires stale orders until ctx is cancelled.
func (s *OrderService) RunExpirySweep(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.ExpirySweepEvery)
	defer ticker.Stop()

	log.Println("Expiry sweep started")

	for {
		select {
		case <-ctx.Done():
			log.Println("Expiry sweep stopped")
			return
		case <-ticker.C:
			if n, err := s.ExpireStale(ctx); err != nil {
				slog.Error("expiry sweep", "error", err)
			} else if n > 0 {
				slog.Info("expiry sweep", "expired", n)
			}
		}
	}
}
