package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"time"

	"concert-ticketing/config"
	"concert-ticketing/internal/gateway/midpay"
	"concert-ticketing/internal/status"
	"concert-ticketing/models"
	"concert-ticketing/monitoring"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	pubnub "github.com/pubnub/go"
)

// SettlementService maps gateway transaction events onto payment and order
// state. It is the only writer allowed to move an order to PAID, and it is
// idempotent: replays and out-of-order deliveries ack without effect.
type SettlementService struct {
	app      core.App
	cfg      *config.Config
	gateway  *midpay.Midpay
	payments *PaymentService
	tickets  *TicketService
	pn       *pubnub.PubNub
}

func NewSettlementService(app core.App, cfg *config.Config, gateway *midpay.Midpay, payments *PaymentService, tickets *TicketService, pn *pubnub.PubNub) *SettlementService {
	return &SettlementService{
		app:      app,
		cfg:      cfg,
		gateway:  gateway,
		payments: payments,
		tickets:  tickets,
		pn:       pn,
	}
}

// mapTransaction translates a provider transaction status (plus optional
// fraud verdict) into the target payment and order statuses.
func mapTransaction(txStatus, fraudStatus string) (models.PaymentStatus, models.OrderStatus, error) {
	switch txStatus {
	case "capture", "settlement":
		if fraudStatus == "" || fraudStatus == "accept" {
			return models.PaymentSettled, models.OrderPaid, nil
		}
		return models.PaymentFailed, models.OrderCancelled, nil
	case "pending":
		return models.PaymentPending, models.OrderAwaitingPayment, nil
	case "deny", "cancel":
		return models.PaymentCancelled, models.OrderCancelled, nil
	case "expire":
		return models.PaymentExpired, models.OrderExpired, nil
	case "refund":
		return models.PaymentCancelled, models.OrderRefunded, nil
	}
	return "", "", fmt.Errorf("%w: unknown transaction status %q", status.ErrInvalidInput, txStatus)
}

// OnNotification handles an inbound webhook body. The signature is verified
// before anything is trusted; an unknown order reference is acked anyway
// (the provider cannot fix it by retrying) but logged for audit.
func (s *SettlementService) OnNotification(ctx context.Context, raw []byte) error {
	tran, err := s.gateway.DecodeNotification(raw)
	if err != nil {
		monitoring.TrackWebhook("rejected")
		return err
	}

	err = s.apply(ctx, tran, raw)
	if errors.Is(err, status.ErrNotFound) {
		slog.Warn("webhook for unknown order acknowledged", "orderRef", tran.OrderRef, "transactionStatus", tran.TransactionStatus)
		monitoring.TrackWebhook("unknown_order")
		return nil
	}
	return err
}

// ReconcileByRef pulls the transaction state from the gateway and applies it
// through the same state machine as the webhook path. Used by the provider
// push stream and the recovery sweep.
func (s *SettlementService) ReconcileByRef(ctx context.Context, externalRef string) error {
	tran, err := s.gateway.CheckTransaction(ctx, externalRef)
	if err != nil {
		return err
	}

	raw, err := json.Marshal(tran)
	if err != nil {
		return err
	}
	return s.apply(ctx, tran, raw)
}

func (s *SettlementService) apply(ctx context.Context, tran *status.Transaction, raw []byte) error {
	targetPayment, targetOrder, err := mapTransaction(tran.TransactionStatus, tran.FraudStatus)
	if err != nil {
		monitoring.TrackWebhook("rejected")
		return err
	}

	var (
		paidNow  bool
		unissued bool
		orderID  string
		userID   string
		orderRef = tran.OrderRef
		applied  bool
	)

	err = s.app.RunInTransaction(func(txApp core.App) error {
		order, err := txApp.FindFirstRecordByFilter(collOrders,
			"external_ref = {:ref}", dbx.Params{"ref": orderRef})
		if err != nil {
			return fmt.Errorf("%w: order with reference %s", status.ErrNotFound, orderRef)
		}
		orderID = order.Id
		userID = order.GetString("user")

		payment, err := txApp.FindFirstRecordByFilter(collPayments,
			"order = {:orderId}", dbx.Params{"orderId": order.Id})
		if err != nil {
			// A notification can beat the initiation commit only if the
			// provider invented the transaction; record it anyway for audit.
			paymentsCol, err := txApp.FindCollectionByNameOrId(collPayments)
			if err != nil {
				return err
			}
			payment = core.NewRecord(paymentsCol)
			payment.Set("order", order.Id)
			payment.Set("provider", providerMidpay)
			payment.Set("status", string(models.PaymentPending))
		}

		// The raw payload is retained regardless of outcome.
		payment.Set("last_notification", string(raw))
		payment.Set("last_transaction_status", tran.TransactionStatus)

		cur := models.OrderStatus(order.GetString("status"))
		switch {
		case cur == targetOrder:
			// Duplicate delivery of a state we already hold: ack, no-op.
			slog.Info("duplicate notification ignored", "orderId", order.Id, "status", cur)

		case !models.CanTransition(cur, targetOrder):
			// Out-of-order delivery; a terminal state never regresses.
			slog.Warn("out-of-order notification skipped",
				"orderId", order.Id, "current", cur, "target", targetOrder,
				"transactionStatus", tran.TransactionStatus)

		default:
			order.Set("status", string(targetOrder))
			payment.Set("status", string(targetPayment))
			applied = true

			if targetOrder == models.OrderPaid && !payment.GetBool("tickets_issued") {
				switch err := s.tickets.issueForOrder(txApp, order); {
				case err == nil:
					payment.Set("tickets_issued", true)
					paidNow = true
				case errors.Is(err, errQuotaExhausted):
					// Money is settled but quota ran out under the optimistic
					// model. Keep the marker false so the recovery sweep
					// retries and the condition stays visible.
					slog.Error("paid order could not be issued", "orderId", order.Id, "error", err)
					unissued = true
				default:
					return err
				}
			}

			if err := txApp.Save(order); err != nil {
				return fmt.Errorf("save order: %w", err)
			}
		}

		return txApp.Save(payment)
	})
	if err != nil {
		return err
	}

	s.payments.InvalidatePaymentStatus(ctx, orderID)

	switch {
	case paidNow:
		monitoring.TrackWebhook("settled")
		monitoring.TrackOrderTransition(string(models.OrderPaid))
		s.notifyPaymentSuccess(userID, orderID)
	case unissued:
		monitoring.TrackWebhook("settled_unissued")
	case applied:
		monitoring.TrackWebhook("applied")
		monitoring.TrackOrderTransition(string(targetOrder))
	default:
		monitoring.TrackWebhook("duplicate")
	}

	return nil
}

// notifyPaymentSuccess pushes a realtime event to the paying user's channel.
func (s *SettlementService) notifyPaymentSuccess(userID, orderID string) {
	if s.pn == nil {
		return
	}

	channel := fmt.Sprintf("user-%s", userID)
	s.pn.Publish().
		Channel(channel).
		Message(map[string]any{
			"type":     "payment_success",
			"order_id": orderID,
		}).
		Execute()
}

// RecoverUnissued finds PAID orders whose ticket batch never committed (a
// crash between the settlement write and issuance, or a quota shortfall) and
// completes issuance. Idempotent: the tickets_issued marker is checked and
// flipped inside the same transaction as the batch.
func (s *SettlementService) RecoverUnissued(ctx context.Context) (int, error) {
	payments, err := s.app.FindRecordsByFilter(collPayments,
		"tickets_issued = false && status = 'SETTLED'", "created", 100, 0)
	if err != nil {
		return 0, err
	}

	recovered := 0
	for _, paymentRec := range payments {
		orderID := paymentRec.GetString("order")

		err := s.app.RunInTransaction(func(txApp core.App) error {
			payment, err := txApp.FindRecordById(collPayments, paymentRec.Id)
			if err != nil {
				return err
			}
			if payment.GetBool("tickets_issued") {
				return nil
			}

			order, err := txApp.FindRecordById(collOrders, orderID)
			if err != nil {
				return err
			}
			if models.OrderStatus(order.GetString("status")) != models.OrderPaid {
				return nil
			}

			if err := s.tickets.issueForOrder(txApp, order); err != nil {
				return err
			}
			payment.Set("tickets_issued", true)
			return txApp.Save(payment)
		})
		switch {
		case errors.Is(err, errQuotaExhausted):
			slog.Error("recovery sweep: paid order still unissuable", "orderId", orderID, "error", err)
		case err != nil:
			slog.Error("recovery sweep failed for order", "orderId", orderID, "error", err)
		default:
			recovered++
		}
	}

	return recovered, nil
}

// RunRecoverySweep periodically completes interrupted issuances until ctx is
// cancelled.
func (s *SettlementService) RunRecoverySweep(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RecoverySweepEvery)
	defer ticker.Stop()

	log.Println("Issuance recovery sweep started")

	for {
		select {
		case <-ctx.Done():
			log.Println("Issuance recovery sweep stopped")
			return
		case <-ticker.C:
			if n, err := s.RecoverUnissued(ctx); err != nil {
				slog.Error("recovery sweep", "error", err)
			} else if n > 0 {
				slog.Info("recovery sweep completed issuances", "count", n)
			}
		}
	}
}
