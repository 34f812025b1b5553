package handlers

import (
	"net/http"

	"ticket-inventory/internal/services"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

type AdmissionHandler struct {
	admissions *services.AdmissionService
}

func NewAdmissionHandler(admissions *services.AdmissionService) *AdmissionHandler {
	return &AdmissionHandler{admissions: admissions}
}

type scanRequest struct {
	Token   string `json:"token"`
	EventID string `json:"event_id"`
}

// Scan - Decide admission for a token presented at a gate
func (h *AdmissionHandler) Scan(e *core.RequestEvent) error {
	var req scanRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	outcome, err := h.admissions.Admit(e.Request.Context(), req.Token, e.Request.PathValue("gateID"), req.EventID)
	if err != nil {
		return respondError(e, err)
	}

	return e.JSON(http.StatusOK, outcome)
}

// GetScanHistory - Every scan of a ticket, oldest first
func (h *AdmissionHandler) GetScanHistory(e *core.RequestEvent) error {
	if err := requireAdmin(e); err != nil {
		return err
	}

	ticketID := e.Request.PathValue("ticketId")
	history, err := h.admissions.ScanHistory(e.Request.Context(), ticketID)
	if err != nil {
		return respondError(e, err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"ticket_id": ticketID,
		"scans":     history,
	})
}

// InspectToken - Decode a token without touching its ticket
func (h *AdmissionHandler) InspectToken(e *core.RequestEvent) error {
	if err := requireAdmin(e); err != nil {
		return err
	}

	var req struct {
		Token string `json:"token"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	claims, err := h.admissions.Inspect(req.Token)
	if err != nil {
		return respondError(e, err)
	}

	return e.JSON(http.StatusOK, claims)
}
