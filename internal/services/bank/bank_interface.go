package bank

import (
	"context"

	"ticket-inventory/internal/status"
)

// ProviderName identifies a bank integration.
type ProviderName string

const (
	ProviderNone ProviderName = "none"
	ProviderJDB  ProviderName = "jdb"
	ProviderLDB  ProviderName = "ldb"
)

// Provider confirms captured transfers with a bank.
type Provider interface {
	Name() ProviderName

	// CheckTransaction looks up the transfer made against a payment reference.
	// status.ErrRefCodeNotFound means the bank has no such transfer and
	// status.ErrFailedPayment means it was refused.
	CheckTransaction(ctx context.Context, paymentRef string) (*status.Transaction, error)

	// SetTransactionChannel sets where pushed transfer notifications are
	// delivered. Providers without push support ignore it.
	SetTransactionChannel(ch chan *status.Transaction)
}
