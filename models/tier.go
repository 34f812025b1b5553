package models

import (
	"github.com/shopspring/decimal"
)

// Tier is one priced capacity bucket of an event. CapacitySold is owned by the
// ledger and is never assigned directly.
type Tier struct {
	ID            string          `json:"id"`
	EventID       string          `json:"event_id"`
	Name          string          `json:"name"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	CapacityTotal int64           `json:"capacity_total"`
	CapacitySold  int64           `json:"capacity_sold"`
}

func (t Tier) Available() int64 {
	return t.CapacityTotal - t.CapacitySold
}

type TierStatus struct {
	TierID        string `json:"tier_id"`
	EventID       string `json:"event_id"`
	CapacityTotal int64  `json:"capacity_total"`
	CapacitySold  int64  `json:"capacity_sold"`
	Available     int64  `json:"available"`
}

// TierReport extends the ledger view with the number of tickets actually
// issued against the tier, used to reconcile ledger and ticket store.
type TierReport struct {
	TierStatus
	Issued         int64 `json:"issued"`
	InvariantHolds bool  `json:"invariant_holds"`
}
