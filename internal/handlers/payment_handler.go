package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"ticket-inventory/internal/services"
	"ticket-inventory/internal/status"
	"ticket-inventory/models"
	"ticket-inventory/utils"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"
)

type PaymentHandler struct {
	paymentService *services.PaymentService
}

func NewPaymentHandler(paymentService *services.PaymentService) *PaymentHandler {
	return &PaymentHandler{paymentService: paymentService}
}

// CheckPaymentStatus - Check payment status
func (h *PaymentHandler) CheckPaymentStatus(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	payment, err := h.paymentService.GetPayment(e.Request.Context(), e.Request.PathValue("paymentRef"))
	if err != nil {
		return respondError(e, err)
	}

	return e.JSON(http.StatusOK, payment)
}

// SimulatePayment - Record a captured payment (for testing)
func (h *PaymentHandler) SimulatePayment(e *core.RequestEvent) error {
	var req struct {
		PaymentRef string          `json:"payment_ref"`
		Amount     decimal.Decimal `json:"amount"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.PaymentRef == "" {
		return apis.NewBadRequestError("payment_ref is required", nil)
	}

	refID, err := utils.GenerateCode(4)
	if err != nil {
		return apis.NewInternalServerError("internal error", err)
	}

	tx := &status.Transaction{
		RefID:     "SIM" + refID,
		UUID:      req.PaymentRef,
		Ccy:       "LAK",
		Amount:    req.Amount,
		Provider:  "simulator",
		CreatedAt: time.Now(),
	}
	if err := h.paymentService.RecordConfirmation(e.Request.Context(), tx); err != nil {
		return respondError(e, err)
	}

	return e.JSON(http.StatusOK, map[string]any{"message": "Payment simulated", "transaction_id": tx.RefID})
}

type LDBHookReq struct {
	NotifyID int64           `json:"notifyId"`
	Status   string          `json:"processingStatus"`
	UUID     string          `json:"partnerOrderID"`
	RefID2   string          `json:"partnerPaymentID"`
	Bank     string          `json:"paymentBank"`
	Time     string          `json:"paymentAt"`
	TxID     string          `json:"paymentReference"`
	Amount   decimal.Decimal `json:"amount"`
	Ccy      string          `json:"currency"`
}

// LDBConfirmationPayment - Bank webhook for finalized LDB transfers
func (h *PaymentHandler) LDBConfirmationPayment(e *core.RequestEvent) error {
	var req LDBHookReq
	if err := e.BindBody(&req); err != nil {
		return e.JSON(http.StatusBadRequest, "bad request")
	}

	if req.UUID == "" || req.TxID == "" || req.Status != "FNLD" {
		slog.Warn("LDBConfirmationPayment: rejected hook", "uuid", req.UUID, "tx_id", req.TxID, "status", req.Status)
		return e.JSON(http.StatusBadRequest, "invalid hook request body")
	}

	// the hook is unauthenticated; only the bank's own answer confirms funds
	st, err := h.paymentService.ConfirmPayment(e.Request.Context(), req.UUID)
	if err != nil {
		return respondError(e, err)
	}
	if st != models.PaymentConfirmed {
		slog.Warn("LDBConfirmationPayment: bank does not confirm", "uuid", req.UUID, "tx_id", req.TxID)
		return e.JSON(http.StatusBadRequest, "payment not confirmed")
	}

	return e.JSON(http.StatusOK, map[string]any{
		"code":    200,
		"status":  "OK",
		"message": "LDB Confirmation payment successful.",
	})
}
