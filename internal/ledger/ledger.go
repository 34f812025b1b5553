package ledger

import (
	"context"
	"time"

	"ticket-inventory/models"
)

// Ledger owns the sold/total counters of every tier. All capacity-affecting
// operations on one tier are serialized by the backend; different tiers never
// share a lock.
type Ledger interface {
	// InitTier creates the counter for a tier with sold seats already taken.
	// It reports false when the tier already exists, in which case nothing is
	// changed. A sold count above total returns status.ErrSoldExceedsTotal
	// and no counter is created.
	InitTier(ctx context.Context, tierID, eventID string, total, sold int64) (bool, error)

	// TryReserve atomically adds qty to the sold count if it fits. When it does
	// not fit it returns *status.CapacityError and changes nothing.
	TryReserve(ctx context.Context, tierID string, qty int64) (*Grant, error)

	// Release is the exact inverse of TryReserve. Releasing more than was sold
	// returns status.ErrLedgerUnderflow.
	Release(ctx context.Context, tierID string, qty int64) error

	// IncreaseCapacity raises the total of a tier and returns the new total.
	IncreaseCapacity(ctx context.Context, tierID string, delta int64) (int64, error)

	Status(ctx context.Context, tierID string) (*models.TierStatus, error)
}

// Grant is the receipt of a committed reservation.
type Grant struct {
	TierID        string    `json:"tier_id"`
	EventID       string    `json:"event_id"`
	Quantity      int64     `json:"quantity"`
	SoldBefore    int64     `json:"sold_before"`
	SoldAfter     int64     `json:"sold_after"`
	CapacityTotal int64     `json:"capacity_total"`
	GrantedAt     time.Time `json:"granted_at"`
}
