package status

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Expected, user-facing outcomes.
var (
	ErrInvalidRequest      = errors.New("reservation: invalid request")
	ErrInvalidQuantity     = errors.New("ledger: quantity must be positive")
	ErrPaymentNotConfirmed = errors.New("payment: payment not confirmed")
	ErrPaymentAlreadyUsed  = errors.New("payment: payment reference already used for another order")
	ErrTierNotFound        = errors.New("tier: tier not found")
	ErrTierEventMismatch   = errors.New("tier: tier does not belong to event")
	ErrEventNotPublished   = errors.New("tier: event is not published")
	ErrTicketNotFound      = errors.New("ticket: ticket not found")
	ErrTicketAlreadyUsed   = errors.New("ticket: ticket already used")
	ErrTicketAlreadyVoid   = errors.New("ticket: ticket already void")
	ErrMalformedToken      = errors.New("token: malformed token")
)

// Transient infrastructure failures. Callers may retry.
var (
	ErrPaymentUnavailable = errors.New("payment: payment authority unavailable")
	ErrPersistFailed      = errors.New("reservation: ticket persistence failed")
	ErrStoreUnavailable   = errors.New("store: ticket store unavailable")
)

// Integrity violations. These indicate a defect and are never corrected silently.
var (
	ErrLedgerUnderflow  = errors.New("ledger: release would drive sold count below zero")
	ErrSoldExceedsTotal = errors.New("ledger: sold count exceeds capacity")
	ErrDuplicateTicket  = errors.New("store: ticket already exists")
	ErrCompensateFailed = errors.New("reservation: compensating release failed")
)

// Bank provider results.
var (
	ErrFailedPayment   = errors.New("payment: payment failed")
	ErrRefCodeNotFound = errors.New("ref code: ref code not found")
)

// CapacityError is returned by the ledger when a reservation does not fit.
type CapacityError struct {
	TierID    string
	Requested int64
	Remaining int64
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("ledger: tier %s has %d remaining, %d requested", e.TierID, e.Remaining, e.Requested)
}

// InsufficientInventoryError is what checkout sees; Remaining lets it offer a
// reduced quantity.
type InsufficientInventoryError struct {
	TierID    string
	Remaining int64
}

func (e *InsufficientInventoryError) Error() string {
	return fmt.Sprintf("reservation: insufficient inventory for tier %s (remaining=%d)", e.TierID, e.Remaining)
}

// IsExpected reports whether err is an ordinary business outcome rather than a fault.
func IsExpected(err error) bool {
	var capErr *CapacityError
	var invErr *InsufficientInventoryError
	switch {
	case errors.As(err, &capErr), errors.As(err, &invErr):
		return true
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, ErrInvalidQuantity),
		errors.Is(err, ErrPaymentNotConfirmed),
		errors.Is(err, ErrPaymentAlreadyUsed),
		errors.Is(err, ErrTierNotFound),
		errors.Is(err, ErrTierEventMismatch),
		errors.Is(err, ErrEventNotPublished),
		errors.Is(err, ErrTicketNotFound),
		errors.Is(err, ErrTicketAlreadyUsed),
		errors.Is(err, ErrTicketAlreadyVoid),
		errors.Is(err, ErrMalformedToken):
		return true
	}
	return false
}

// Transaction is a captured bank transfer as reported by a bank provider.
type Transaction struct {
	RefID         string
	UUID          string
	FCCRef        string
	Ccy           string
	Payer         string
	AccountNumber string
	Amount        decimal.Decimal
	Provider      string
	CreatedAt     time.Time
}
