package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"ticket-inventory/internal/ledger"
	"ticket-inventory/internal/status"
	"ticket-inventory/internal/store"
	"ticket-inventory/models"
	"ticket-inventory/monitoring"

	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"
)

// TierSource is the event catalog: tier and event definitions.
type TierSource interface {
	GetTier(ctx context.Context, tierID string) (*models.Tier, error)
	GetEvent(ctx context.Context, eventID string) (*models.Event, error)
	// AddCapacity raises the stored capacity of a tier by delta.
	AddCapacity(ctx context.Context, tierID string, delta int64) error
}

// RecordTierSource reads the catalog from the pocketbase "tiers" and
// "events" collections.
type RecordTierSource struct {
	app core.App
}

func NewRecordTierSource(app core.App) *RecordTierSource {
	return &RecordTierSource{app: app}
}

func (r *RecordTierSource) GetTier(_ context.Context, tierID string) (*models.Tier, error) {
	rec, err := r.app.FindRecordById("tiers", tierID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, status.ErrTierNotFound
		}
		return nil, fmt.Errorf("%w: %v", status.ErrStoreUnavailable, err)
	}

	price, _ := decimal.NewFromString(rec.GetString("price"))
	return &models.Tier{
		ID:            rec.Id,
		EventID:       rec.GetString("event_id"),
		Name:          rec.GetString("name"),
		UnitPrice:     price,
		CapacityTotal: int64(rec.GetInt("capacity")),
	}, nil
}

func (r *RecordTierSource) GetEvent(_ context.Context, eventID string) (*models.Event, error) {
	rec, err := r.app.FindRecordById("events", eventID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: event %s", status.ErrTierNotFound, eventID)
		}
		return nil, fmt.Errorf("%w: %v", status.ErrStoreUnavailable, err)
	}

	return &models.Event{
		ID:        rec.Id,
		Name:      rec.GetString("name"),
		Location:  rec.GetString("location"),
		StartTime: rec.GetDateTime("start_at").Time(),
		Status:    rec.GetString("status"),
	}, nil
}

func (r *RecordTierSource) AddCapacity(_ context.Context, tierID string, delta int64) error {
	return r.app.RunInTransaction(func(txApp core.App) error {
		rec, err := txApp.FindRecordById("tiers", tierID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return status.ErrTierNotFound
			}
			return fmt.Errorf("%w: %v", status.ErrStoreUnavailable, err)
		}

		rec.Set("capacity", rec.GetInt("capacity")+int(delta))
		return txApp.Save(rec)
	})
}

// CatalogService connects catalog definitions to the ledger.
type CatalogService struct {
	source  TierSource
	ledger  ledger.Ledger
	tickets store.TicketStore
}

func NewCatalogService(source TierSource, l ledger.Ledger, tickets store.TicketStore) *CatalogService {
	return &CatalogService{
		source:  source,
		ledger:  l,
		tickets: tickets,
	}
}

// PublishTier opens a tier of a published event for sale. Publishing an
// already open tier leaves its counters untouched. A missing counter is
// created already charged with the tickets issued against the tier, so a
// lost ledger never sells the same seats twice.
func (s *CatalogService) PublishTier(ctx context.Context, tierID string) (*models.TierStatus, error) {
	tier, err := s.source.GetTier(ctx, tierID)
	if err != nil {
		return nil, err
	}
	event, err := s.source.GetEvent(ctx, tier.EventID)
	if err != nil {
		return nil, err
	}
	if !event.IsPublished() {
		return nil, status.ErrEventNotPublished
	}
	if tier.CapacityTotal < 0 {
		return nil, fmt.Errorf("%w: negative capacity", status.ErrInvalidRequest)
	}

	st, err := s.ledger.Status(ctx, tier.ID)
	if err == nil {
		return st, nil
	}
	if !errors.Is(err, status.ErrTierNotFound) {
		return nil, err
	}

	issued, err := s.tickets.CountIssued(ctx, tier.ID)
	if err != nil {
		return nil, err
	}

	created, err := s.ledger.InitTier(ctx, tier.ID, tier.EventID, tier.CapacityTotal, issued)
	if errors.Is(err, status.ErrSoldExceedsTotal) {
		monitoring.TrackIntegrityViolation("ledger_restore")
		slog.Error("issued tickets exceed tier capacity, tier stays closed",
			"tier_id", tier.ID,
			"issued", issued,
			"capacity", tier.CapacityTotal,
		)
		return nil, fmt.Errorf("open tier %s: %w", tier.ID, err)
	}
	if err != nil {
		return nil, err
	}
	if created {
		slog.Info("Tier opened for sale",
			"tier_id", tier.ID,
			"event_id", tier.EventID,
			"capacity", tier.CapacityTotal,
			"sold", issued,
		)
	}

	return s.ledger.Status(ctx, tier.ID)
}

// IncreaseCapacity adds delta seats to a tier. The catalog record is raised
// first, then the ledger counter if the tier is on sale.
func (s *CatalogService) IncreaseCapacity(ctx context.Context, tierID string, delta int64) (*models.TierStatus, error) {
	if delta <= 0 {
		return nil, fmt.Errorf("%w: %w", status.ErrInvalidRequest, status.ErrInvalidQuantity)
	}

	if err := s.source.AddCapacity(ctx, tierID, delta); err != nil {
		return nil, err
	}

	st, err := s.ApplyCapacityIncrease(ctx, tierID, delta)
	if errors.Is(err, status.ErrTierNotFound) {
		// not on sale yet, the raised capacity is read when it opens
		return s.closedStatus(ctx, tierID)
	}
	return st, err
}

// ApplyCapacityIncrease raises the ledger total of an open tier whose
// catalog record already carries the new capacity.
func (s *CatalogService) ApplyCapacityIncrease(ctx context.Context, tierID string, delta int64) (*models.TierStatus, error) {
	if delta <= 0 {
		return nil, fmt.Errorf("%w: %w", status.ErrInvalidRequest, status.ErrInvalidQuantity)
	}

	total, err := s.ledger.IncreaseCapacity(ctx, tierID, delta)
	if err != nil {
		return nil, err
	}
	slog.Info("Tier capacity increased", "tier_id", tierID, "delta", delta, "total", total)

	return s.ledger.Status(ctx, tierID)
}

func (s *CatalogService) closedStatus(ctx context.Context, tierID string) (*models.TierStatus, error) {
	tier, err := s.source.GetTier(ctx, tierID)
	if err != nil {
		return nil, err
	}
	issued, err := s.tickets.CountIssued(ctx, tierID)
	if err != nil {
		return nil, err
	}
	return &models.TierStatus{
		TierID:        tier.ID,
		EventID:       tier.EventID,
		CapacityTotal: tier.CapacityTotal,
		CapacitySold:  issued,
		Available:     tier.CapacityTotal - issued,
	}, nil
}

// TierStatus reports the ledger counters of a tier next to the number of
// tickets actually issued against it.
func (s *CatalogService) TierStatus(ctx context.Context, tierID string) (*models.TierReport, error) {
	st, err := s.ledger.Status(ctx, tierID)
	if err != nil {
		return nil, err
	}
	issued, err := s.tickets.CountIssued(ctx, tierID)
	if err != nil {
		return nil, err
	}

	report := &models.TierReport{
		TierStatus:     *st,
		Issued:         issued,
		InvariantHolds: issued <= st.CapacitySold && st.CapacitySold <= st.CapacityTotal,
	}
	if !report.InvariantHolds {
		monitoring.TrackIntegrityViolation("tier_counts")
		slog.Error("tier counters disagree",
			"tier_id", tierID,
			"issued", issued,
			"sold", st.CapacitySold,
			"total", st.CapacityTotal,
		)
	}

	return report, nil
}
