package handlers

import (
	"net/http"

	"ticket-inventory/internal/services"
	"ticket-inventory/models"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

type ReservationHandler struct {
	reservations *services.ReservationService
}

func NewReservationHandler(reservations *services.ReservationService) *ReservationHandler {
	return &ReservationHandler{reservations: reservations}
}

// Reserve - Issue tickets against a confirmed payment
func (h *ReservationHandler) Reserve(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	var req models.ReservationRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	req.OwnerRef = e.Auth.Id

	tickets, err := h.reservations.Reserve(e.Request.Context(), req)
	if err != nil {
		return respondError(e, err)
	}

	return e.JSON(http.StatusCreated, map[string]any{
		"purchase_group_id": tickets[0].PurchaseGroupID,
		"tickets":           tickets,
	})
}

// GetReservation - Tickets bought with a payment reference
func (h *ReservationHandler) GetReservation(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	paymentRef := e.Request.PathValue("paymentRef")
	tickets, err := h.reservations.Group(e.Request.Context(), paymentRef)
	if err != nil {
		return respondError(e, err)
	}
	if len(tickets) == 0 {
		return apis.NewNotFoundError("Reservation not found", nil)
	}
	if tickets[0].OwnerRef != e.Auth.Id && !e.HasSuperuserAuth() {
		return apis.NewForbiddenError("Access denied", nil)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"purchase_group_id": tickets[0].PurchaseGroupID,
		"tickets":           tickets,
	})
}

// CancelTicket - Void a ticket and return its seat to the tier
func (h *ReservationHandler) CancelTicket(e *core.RequestEvent) error {
	if err := requireAdmin(e); err != nil {
		return err
	}

	ticket, err := h.reservations.Cancel(e.Request.Context(), e.Request.PathValue("ticketId"))
	if err != nil {
		return respondError(e, err)
	}

	return e.JSON(http.StatusOK, ticket)
}
