package bank

import (
	"context"
	"fmt"

	"ticket-inventory/internal/services/bank/ldb"
	"ticket-inventory/internal/status"
)

// LDBAdapter exposes the LDB inquiry API as a Provider. LDB has no push
// channel, so confirmations only arrive through CheckTransaction.
type LDBAdapter struct {
	client ldb.LDB
}

func NewLDBAdapter(ctx context.Context, config *ldb.Config) (*LDBAdapter, error) {
	client, err := ldb.New(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create LDB client: %w", err)
	}
	return &LDBAdapter{client: client}, nil
}

func (l *LDBAdapter) Name() ProviderName {
	return ProviderLDB
}

func (l *LDBAdapter) CheckTransaction(ctx context.Context, paymentRef string) (*status.Transaction, error) {
	// the payment reference doubles as the inquiry's request transaction id
	tx, err := l.client.CheckTransaction(ctx, paymentRef, paymentRef)
	if err != nil {
		return nil, err
	}

	return &status.Transaction{
		RefID:     tx.RefID,
		UUID:      paymentRef,
		FCCRef:    tx.RefNumber,
		Ccy:       tx.Ccy,
		Amount:    tx.Amount,
		Provider:  ldb.Provider,
		CreatedAt: tx.CreatedAt,
	}, nil
}

func (l *LDBAdapter) SetTransactionChannel(chan *status.Transaction) {}
