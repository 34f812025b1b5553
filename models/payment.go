package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentConfirmed    PaymentStatus = "confirmed"
	PaymentNotConfirmed PaymentStatus = "not_confirmed"
)

// Payment is the captured-funds record kept for a payment reference.
type Payment struct {
	Ref           string          `json:"payment_ref"`
	Status        string          `json:"status"` // pending, completed, failed
	Provider      string          `json:"provider"`
	TransactionID string          `json:"transaction_id,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency,omitempty"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
}

type PaymentNotification struct {
	PaymentRef    string          `json:"payment_ref"`
	Status        string          `json:"status"`
	TransactionID string          `json:"transaction_id"`
	Amount        decimal.Decimal `json:"amount"`
	Timestamp     time.Time       `json:"timestamp"`
}
