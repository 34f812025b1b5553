package ledger

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"ticket-inventory/internal/status"
	"ticket-inventory/models"
	"ticket-inventory/monitoring"
)

type tierCounter struct {
	mu      sync.Mutex
	eventID string
	total   int64
	sold    int64
}

// MemoryLedger is a single-process ledger. Each tier has its own mutex, so
// reservations on different tiers never contend.
type MemoryLedger struct {
	tiers sync.Map // tierID -> *tierCounter
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{}
}

func (l *MemoryLedger) InitTier(_ context.Context, tierID, eventID string, total, sold int64) (bool, error) {
	if tierID == "" || eventID == "" || total < 0 || sold < 0 {
		return false, status.ErrInvalidRequest
	}
	if sold > total {
		return false, status.ErrSoldExceedsTotal
	}
	_, loaded := l.tiers.LoadOrStore(tierID, &tierCounter{eventID: eventID, total: total, sold: sold})
	return !loaded, nil
}

func (l *MemoryLedger) TryReserve(_ context.Context, tierID string, qty int64) (*Grant, error) {
	if qty <= 0 {
		return nil, status.ErrInvalidQuantity
	}
	defer monitoring.ObserveLedger("reserve", time.Now())

	c, err := l.counter(tierID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sold+qty > c.total {
		return nil, &status.CapacityError{TierID: tierID, Requested: qty, Remaining: c.total - c.sold}
	}

	before := c.sold
	c.sold += qty
	return &Grant{
		TierID:        tierID,
		EventID:       c.eventID,
		Quantity:      qty,
		SoldBefore:    before,
		SoldAfter:     c.sold,
		CapacityTotal: c.total,
		GrantedAt:     time.Now(),
	}, nil
}

func (l *MemoryLedger) Release(_ context.Context, tierID string, qty int64) error {
	if qty <= 0 {
		return status.ErrInvalidQuantity
	}
	defer monitoring.ObserveLedger("release", time.Now())

	c, err := l.counter(tierID)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sold-qty < 0 {
		slog.Error("Ledger release would underflow",
			"tier_id", tierID, "quantity", qty, "sold", c.sold, "total", c.total)
		monitoring.TrackIntegrityViolation("ledger_underflow")
		return status.ErrLedgerUnderflow
	}
	c.sold -= qty
	return nil
}

func (l *MemoryLedger) IncreaseCapacity(_ context.Context, tierID string, delta int64) (int64, error) {
	if delta <= 0 {
		return 0, status.ErrInvalidQuantity
	}

	c, err := l.counter(tierID)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.total += delta
	return c.total, nil
}

func (l *MemoryLedger) Status(_ context.Context, tierID string) (*models.TierStatus, error) {
	c, err := l.counter(tierID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	return &models.TierStatus{
		TierID:        tierID,
		EventID:       c.eventID,
		CapacityTotal: c.total,
		CapacitySold:  c.sold,
		Available:     c.total - c.sold,
	}, nil
}

func (l *MemoryLedger) counter(tierID string) (*tierCounter, error) {
	v, ok := l.tiers.Load(tierID)
	if !ok {
		return nil, status.ErrTierNotFound
	}
	return v.(*tierCounter), nil
}
