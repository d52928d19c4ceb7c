package handlers

import (
	"log/slog"
	"net/http"

	"concert-ticketing/internal/services"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

type OrderHandler struct {
	app          *pocketbase.PocketBase
	orderService *services.OrderService
}

func NewOrderHandler(app *pocketbase.PocketBase, orderService *services.OrderService) *OrderHandler {
	return &OrderHandler{
		app:          app,
		orderService: orderService,
	}
}

// CreateOrder - Create an order with price snapshots and a fixed TTL
func (h *OrderHandler) CreateOrder(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	var req services.CreateOrderRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	ctx := e.Request.Context()

	order, err := h.orderService.CreateOrder(ctx, e.Auth.Id, req)
	if err != nil {
		slog.Error("h.orderService.CreateOrder()", "userId", e.Auth.Id, "error", err)
		return toAPIError(err)
	}

	return e.JSON(http.StatusCreated, order)
}

// GetOrder - Get an order with its items; stale pending orders come back EXPIRED
func (h *OrderHandler) GetOrder(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	orderID := e.Request.PathValue("orderId")
	ctx := e.Request.Context()

	order, err := h.orderService.GetOrder(ctx, orderID, e.Auth.Id)
	if err != nil {
		return toAPIError(err)
	}

	return e.JSON(http.StatusOK, order)
}

// CancelOrder - Cancel a PENDING order
func (h *OrderHandler) CancelOrder(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	orderID := e.Request.PathValue("orderId")
	ctx := e.Request.Context()

	order, err := h.orderService.CancelOrder(ctx, orderID, e.Auth.Id)
	if err != nil {
		return toAPIError(err)
	}

	return e.JSON(http.StatusOK, order)
}
