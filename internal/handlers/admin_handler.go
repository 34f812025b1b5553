package handlers

import (
	"net/http"

	"ticket-inventory/internal/services"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

type AdminHandler struct {
	catalog *services.CatalogService
}

func NewAdminHandler(catalog *services.CatalogService) *AdminHandler {
	return &AdminHandler{catalog: catalog}
}

// PublishTier - Open a tier for sale
func (h *AdminHandler) PublishTier(e *core.RequestEvent) error {
	if err := requireAdmin(e); err != nil {
		return err
	}

	st, err := h.catalog.PublishTier(e.Request.Context(), e.Request.PathValue("tierId"))
	if err != nil {
		return respondError(e, err)
	}

	return e.JSON(http.StatusOK, st)
}

// IncreaseCapacity - Add seats to an open tier
func (h *AdminHandler) IncreaseCapacity(e *core.RequestEvent) error {
	if err := requireAdmin(e); err != nil {
		return err
	}

	var req struct {
		Delta int64 `json:"delta"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	st, err := h.catalog.IncreaseCapacity(e.Request.Context(), e.Request.PathValue("tierId"), req.Delta)
	if err != nil {
		return respondError(e, err)
	}

	return e.JSON(http.StatusOK, st)
}

// GetTierStatus - Ledger counters next to issued tickets
func (h *AdminHandler) GetTierStatus(e *core.RequestEvent) error {
	if err := requireAdmin(e); err != nil {
		return err
	}

	report, err := h.catalog.TierStatus(e.Request.Context(), e.Request.PathValue("tierId"))
	if err != nil {
		return respondError(e, err)
	}

	return e.JSON(http.StatusOK, report)
}
