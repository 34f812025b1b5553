package bank

import (
	"context"
	"fmt"

	"ticket-inventory/internal/services/bank/jdb"
	"ticket-inventory/internal/services/bank/ldb"
)

type Config struct {
	Provider ProviderName
	JDB      *jdb.Config
	LDB      *ldb.Config
}

// New connects to the configured bank. It returns a nil Provider for
// ProviderNone.
func New(ctx context.Context, cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "", ProviderNone:
		return nil, nil

	case ProviderJDB:
		if cfg.JDB == nil {
			return nil, fmt.Errorf("bank: missing JDB config")
		}
		adapter, err := NewJDBAdapter(ctx, cfg.JDB)
		if err != nil {
			return nil, err
		}
		return adapter, nil

	case ProviderLDB:
		if cfg.LDB == nil {
			return nil, fmt.Errorf("bank: missing LDB config")
		}
		adapter, err := NewLDBAdapter(ctx, cfg.LDB)
		if err != nil {
			return nil, err
		}
		return adapter, nil

	default:
		return nil, fmt.Errorf("bank: unsupported provider: %s", cfg.Provider)
	}
}

func SupportedProviders() []ProviderName {
	return []ProviderName{ProviderNone, ProviderJDB, ProviderLDB}
}
