package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"concert-ticketing/internal/services"
	"concert-ticketing/internal/status"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

type PaymentHandler struct {
	app               *pocketbase.PocketBase
	paymentService    *services.PaymentService
	settlementService *services.SettlementService
}

func NewPaymentHandler(app *pocketbase.PocketBase, paymentService *services.PaymentService, settlementService *services.SettlementService) *PaymentHandler {
	return &PaymentHandler{
		app:               app,
		paymentService:    paymentService,
		settlementService: settlementService,
	}
}

// InitiateTransaction - Open a gateway transaction for a pending order
func (h *PaymentHandler) InitiateTransaction(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	orderID := e.Request.PathValue("orderId")
	ctx := e.Request.Context()

	payment, err := h.paymentService.InitiateTransaction(ctx, orderID, e.Auth.Id)
	if err != nil {
		slog.Error("h.paymentService.InitiateTransaction()", "orderId", orderID, "error", err)
		return toAPIError(err)
	}

	return e.JSON(http.StatusOK, payment)
}

// GetPayment - Payment state for an order, served from a short cache
func (h *PaymentHandler) GetPayment(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	orderID := e.Request.PathValue("orderId")
	ctx := e.Request.Context()

	payment, err := h.paymentService.GetPayment(ctx, orderID, e.Auth.Id)
	if err != nil {
		return toAPIError(err)
	}

	return e.JSON(http.StatusOK, payment)
}

// MidpayNotification - Inbound settlement webhook. Always answers with a
// definite outcome: 200 for processed, duplicate or unknown-reference
// notifications, 401 for a bad signature, 400 for a malformed body.
func (h *PaymentHandler) MidpayNotification(e *core.RequestEvent) error {
	raw, err := io.ReadAll(e.Request.Body)
	if err != nil {
		return apis.NewBadRequestError("cannot read notification body", err)
	}
	ctx := e.Request.Context()

	if err := h.settlementService.OnNotification(ctx, raw); err != nil {
		switch {
		case errors.Is(err, status.ErrUnauthorized):
			slog.Warn("webhook rejected: bad signature", "error", err)
			return apis.NewUnauthorizedError("invalid signature", nil)
		case errors.Is(err, status.ErrInvalidInput):
			slog.Warn("webhook rejected: malformed payload", "error", err)
			return apis.NewBadRequestError("malformed notification", nil)
		default:
			slog.Error("h.settlementService.OnNotification()", "error", err)
			return apis.NewInternalServerError("internal error", err)
		}
	}

	return e.JSON(http.StatusOK, map[string]any{
		"status":  "OK",
		"message": "notification processed",
	})
}
