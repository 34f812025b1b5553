package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"ticket-inventory/internal/status"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

const msgRetry = "network error, retry"

// errorStatus maps a service error to the HTTP status and message shown to
// the client. Faults never leak their details.
func errorStatus(err error) (int, string) {
	var invErr *status.InsufficientInventoryError
	switch {
	case errors.As(err, &invErr):
		return http.StatusConflict, "insufficient inventory"
	case errors.Is(err, status.ErrInvalidRequest),
		errors.Is(err, status.ErrInvalidQuantity),
		errors.Is(err, status.ErrMalformedToken):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, status.ErrPaymentNotConfirmed):
		return http.StatusPaymentRequired, "payment not confirmed"
	case errors.Is(err, status.ErrPaymentAlreadyUsed):
		return http.StatusConflict, "payment reference already used for another order"
	case errors.Is(err, status.ErrTierEventMismatch):
		return http.StatusUnprocessableEntity, "tier does not belong to event"
	case errors.Is(err, status.ErrEventNotPublished):
		return http.StatusConflict, "event is not published"
	case errors.Is(err, status.ErrTicketAlreadyUsed):
		return http.StatusConflict, "ticket already used"
	case errors.Is(err, status.ErrTicketAlreadyVoid):
		return http.StatusConflict, "ticket already void"
	case errors.Is(err, status.ErrTierNotFound):
		return http.StatusNotFound, "tier not found"
	case errors.Is(err, status.ErrTicketNotFound):
		return http.StatusNotFound, "ticket not found"
	case errors.Is(err, status.ErrRefCodeNotFound):
		return http.StatusNotFound, "payment not found"
	case errors.Is(err, status.ErrCompensateFailed),
		errors.Is(err, status.ErrLedgerUnderflow):
		return http.StatusInternalServerError, "internal error"
	case errors.Is(err, status.ErrPaymentUnavailable),
		errors.Is(err, status.ErrStoreUnavailable),
		errors.Is(err, status.ErrPersistFailed):
		return http.StatusServiceUnavailable, msgRetry
	}
	return http.StatusInternalServerError, "internal error"
}

func respondError(e *core.RequestEvent, err error) error {
	code, msg := errorStatus(err)
	if code >= http.StatusInternalServerError {
		slog.Error("request failed", "method", e.Request.Method, "path", e.Request.URL.Path, "error", err)
	}

	var invErr *status.InsufficientInventoryError
	if errors.As(err, &invErr) {
		return e.JSON(code, map[string]any{
			"error":     msg,
			"tier_id":   invErr.TierID,
			"remaining": invErr.Remaining,
		})
	}

	return apis.NewApiError(code, msg, nil)
}

func requireAdmin(e *core.RequestEvent) error {
	if !e.HasSuperuserAuth() {
		return apis.NewUnauthorizedError("Admin access required", nil)
	}
	return nil
}
