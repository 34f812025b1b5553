package bank

import (
	"context"
	"fmt"

	"ticket-inventory/internal/services/bank/jdb"
	"ticket-inventory/internal/status"
)

// JDBAdapter exposes the Yespay client as a Provider.
type JDBAdapter struct {
	client *jdb.Yespay
}

func NewJDBAdapter(ctx context.Context, config *jdb.Config) (*JDBAdapter, error) {
	client, err := jdb.New(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create JDB client: %w", err)
	}
	return &JDBAdapter{client: client}, nil
}

func (j *JDBAdapter) Name() ProviderName {
	return ProviderJDB
}

func (j *JDBAdapter) CheckTransaction(ctx context.Context, paymentRef string) (*status.Transaction, error) {
	return j.client.CheckTransaction(ctx, paymentRef)
}

func (j *JDBAdapter) SetTransactionChannel(ch chan *status.Transaction) {
	j.client.SetTranChannel(ch)
}
