package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"concert-ticketing/config"
	"concert-ticketing/internal/gateway/midpay"
	"concert-ticketing/internal/status"
	"concert-ticketing/models"
	"concert-ticketing/monitoring"
	"concert-ticketing/utils"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const providerMidpay = "midpay"

type PaymentService struct {
	app     core.App
	cfg     *config.Config
	Redis   *redis.Client
	gateway *midpay.Midpay
	breaker *utils.CircuitBreaker
	orders  *OrderService
}

func NewPaymentService(app core.App, cfg *config.Config, redisClient *redis.Client, gateway *midpay.Midpay, orders *OrderService) *PaymentService {
	return &PaymentService{
		app:     app,
		cfg:     cfg,
		Redis:   redisClient,
		gateway: gateway,
		breaker: utils.NewCircuitBreaker(providerMidpay),
		orders:  orders,
	}
}

// InitiateTransaction opens a gateway transaction for a PENDING, unexpired
// order. On success the payment row upsert and the order's move to
// AWAITING_PAYMENT commit together: a crash can never leave one without the
// other.
func (s *PaymentService) InitiateTransaction(ctx context.Context, orderID, userID string) (*models.Payment, error) {
	order, err := s.orders.GetOrder(ctx, orderID, userID)
	if err != nil {
		return nil, err
	}

	switch order.Status {
	case models.OrderPending:
		// proceed
	case models.OrderPaid:
		return nil, fmt.Errorf("%w: already paid", status.ErrInvalidState)
	case models.OrderExpired:
		return nil, fmt.Errorf("%w: expired", status.ErrInvalidState)
	case models.OrderAwaitingPayment:
		return nil, fmt.Errorf("%w: payment already initiated", status.ErrInvalidState)
	default:
		return nil, fmt.Errorf("%w: order is %s", status.ErrInvalidState, order.Status)
	}

	req := &midpay.TransactionRequest{
		OrderRef:    order.ExternalRef,
		GrossAmount: decimal.NewFromInt(order.GrossAmount),
		CustomerID:  order.UserID,
	}
	for _, item := range order.Items {
		name := item.TicketTypeID
		if tt, err := s.app.FindRecordById(collTicketTypes, item.TicketTypeID); err == nil {
			name = tt.GetString("name")
		}
		req.Items = append(req.Items, midpay.ItemDetail{
			ID:       item.TicketTypeID,
			Name:     name,
			Price:    decimal.NewFromInt(item.UnitPrice),
			Quantity: item.Qty,
		})
	}

	start := time.Now()
	var token *midpay.TransactionToken
	err = s.breaker.Execute(ctx, func() error {
		var gwErr error
		token, gwErr = s.gateway.CreateTransaction(ctx, req)
		return gwErr
	})
	monitoring.TrackGatewayCall("create_transaction", err == nil, time.Since(start))
	if err != nil {
		if errors.Is(err, utils.ErrCircuitOpen) {
			return nil, fmt.Errorf("%w: circuit open", status.ErrGatewayUnavailable)
		}
		return nil, err
	}

	var payment *models.Payment
	err = s.app.RunInTransaction(func(txApp core.App) error {
		fresh, err := txApp.FindRecordById(collOrders, orderID)
		if err != nil {
			return err
		}
		cur := models.OrderStatus(fresh.GetString("status"))
		if !models.CanTransition(cur, models.OrderAwaitingPayment) {
			return fmt.Errorf("%w: order is %s", status.ErrInvalidState, cur)
		}

		paymentRec, err := txApp.FindFirstRecordByFilter(collPayments,
			"order = {:orderId}", dbx.Params{"orderId": orderID})
		if err != nil {
			paymentsCol, err := txApp.FindCollectionByNameOrId(collPayments)
			if err != nil {
				return err
			}
			paymentRec = core.NewRecord(paymentsCol)
			paymentRec.Set("order", orderID)
		}
		paymentRec.Set("provider", providerMidpay)
		paymentRec.Set("status", string(models.PaymentPending))
		paymentRec.Set("gateway_token", token.Token)
		paymentRec.Set("redirect_url", token.RedirectURL)
		if err := txApp.Save(paymentRec); err != nil {
			return fmt.Errorf("save payment: %w", err)
		}

		fresh.Set("status", string(models.OrderAwaitingPayment))
		if err := txApp.Save(fresh); err != nil {
			return fmt.Errorf("save order: %w", err)
		}

		payment = paymentFromRecord(paymentRec)
		return nil
	})
	if err != nil {
		return nil, err
	}

	monitoring.TrackOrderTransition(string(models.OrderAwaitingPayment))
	s.cachePaymentStatus(ctx, orderID, payment)
	slog.Info("payment transaction initiated", "orderId", orderID, "externalRef", order.ExternalRef)

	return payment, nil
}

// GetPayment returns the payment state for an order. Reads are served from a
// short-lived Redis cache so status polling doesn't hammer the store.
func (s *PaymentService) GetPayment(ctx context.Context, orderID, userID string) (*models.Payment, error) {
	if _, err := s.orders.GetOrder(ctx, orderID, userID); err != nil {
		return nil, err
	}

	if cached, err := s.Redis.Get(ctx, paymentStatusKey(orderID)).Result(); err == nil {
		var payment models.Payment
		if err := json.Unmarshal([]byte(cached), &payment); err == nil {
			return &payment, nil
		}
	}

	record, err := s.app.FindFirstRecordByFilter(collPayments,
		"order = {:orderId}", dbx.Params{"orderId": orderID})
	if err != nil {
		return nil, fmt.Errorf("%w: no payment for order %s", status.ErrNotFound, orderID)
	}

	payment := paymentFromRecord(record)
	s.cachePaymentStatus(ctx, orderID, payment)
	return payment, nil
}

func (s *PaymentService) cachePaymentStatus(ctx context.Context, orderID string, payment *models.Payment) {
	data, err := json.Marshal(payment)
	if err != nil {
		return
	}
	if err := s.Redis.Set(ctx, paymentStatusKey(orderID), data, s.cfg.PaymentStatusCacheTTL).Err(); err != nil {
		slog.Error("cache payment status", "orderId", orderID, "error", err)
	}
}

// InvalidatePaymentStatus drops the cached entry after a settlement write.
func (s *PaymentService) InvalidatePaymentStatus(ctx context.Context, orderID string) {
	if err := s.Redis.Del(ctx, paymentStatusKey(orderID)).Err(); err != nil {
		slog.Error("invalidate payment status cache", "orderId", orderID, "error", err)
	}
}

func paymentStatusKey(orderID string) string {
	return fmt.Sprintf("payment_status:%s", orderID)
}
