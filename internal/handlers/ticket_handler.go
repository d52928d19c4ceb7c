package handlers

import (
	"net/http"

	"concert-ticketing/internal/services"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

type TicketHandler struct {
	app           *pocketbase.PocketBase
	ticketService *services.TicketService
}

func NewTicketHandler(app *pocketbase.PocketBase, ticketService *services.TicketService) *TicketHandler {
	return &TicketHandler{
		app:           app,
		ticketService: ticketService,
	}
}

// GetTicket - Look a ticket up by redemption code
func (h *TicketHandler) GetTicket(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	code := e.Request.PathValue("code")
	ctx := e.Request.Context()

	ticket, err := h.ticketService.GetTicket(ctx, code)
	if err != nil {
		return toAPIError(err)
	}

	return e.JSON(http.StatusOK, ticket)
}

// UseTicket - Redeem a ticket at the gate; single use
func (h *TicketHandler) UseTicket(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}
	if !h.isStaff(e) {
		return apis.NewForbiddenError("Access denied", nil)
	}

	code := e.Request.PathValue("code")
	ctx := e.Request.Context()

	ticket, err := h.ticketService.UseTicket(ctx, code)
	if err != nil {
		return toAPIError(err)
	}

	return e.JSON(http.StatusOK, ticket)
}

// VoidTicket - Administrative revocation
func (h *TicketHandler) VoidTicket(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}
	if e.Auth.GetString("role") != "admin" {
		return apis.NewForbiddenError("Access denied", nil)
	}

	code := e.Request.PathValue("code")
	ctx := e.Request.Context()

	ticket, err := h.ticketService.VoidTicket(ctx, code)
	if err != nil {
		return toAPIError(err)
	}

	return e.JSON(http.StatusOK, ticket)
}

// isStaff trusts the authenticated principal's role; credential checks live
// outside this core.
func (h *TicketHandler) isStaff(e *core.RequestEvent) bool {
	role := e.Auth.GetString("role")
	return role == "staff" || role == "admin"
}
