package handlers

import (
	"net/http"

	"concert-ticketing/internal/services"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/core"
)

type CatalogHandler struct {
	app            *pocketbase.PocketBase
	catalogService *services.CatalogService
}

func NewCatalogHandler(app *pocketbase.PocketBase, catalogService *services.CatalogService) *CatalogHandler {
	return &CatalogHandler{
		app:            app,
		catalogService: catalogService,
	}
}

// ListConcerts - List upcoming concerts
func (h *CatalogHandler) ListConcerts(e *core.RequestEvent) error {
	concerts, err := h.catalogService.ListConcerts(e.Request.Context())
	if err != nil {
		return toAPIError(err)
	}

	return e.JSON(http.StatusOK, concerts)
}

// GetConcert - Get a concert with its ticket types and availability
func (h *CatalogHandler) GetConcert(e *core.RequestEvent) error {
	concertID := e.Request.PathValue("concertId")

	concert, types, err := h.catalogService.GetConcert(e.Request.Context(), concertID)
	if err != nil {
		return toAPIError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"concert":      concert,
		"ticket_types": types,
	})
}
