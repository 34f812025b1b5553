package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"ticket-inventory/internal/status"
	"ticket-inventory/models"

	"github.com/pocketbase/dbx"
)

// TxRunner runs fn inside a single database transaction.
type TxRunner func(fn func(tx dbx.Builder) error) error

// SQLStore keeps tickets and scan events in the application database.
type SQLStore struct {
	db dbx.Builder
	tx TxRunner
}

func NewSQLStore(db dbx.Builder, tx TxRunner) *SQLStore {
	return &SQLStore{db: db, tx: tx}
}

// NewSQLStoreFromDB wires a store directly on a *dbx.DB.
func NewSQLStoreFromDB(db *dbx.DB) *SQLStore {
	return NewSQLStore(db, func(fn func(tx dbx.Builder) error) error {
		return db.Transactional(func(tx *dbx.Tx) error {
			return fn(tx)
		})
	})
}

// Migrate applies Schema.
func Migrate(db dbx.Builder) error {
	for _, stmt := range Schema {
		if _, err := db.NewQuery(stmt).Execute(); err != nil {
			return fmt.Errorf("store: migrate: %w", err)
		}
	}
	return nil
}

var ticketColumns = []string{
	"id", "event_id", "tier_id", "owner_ref", "holder_name", "token",
	"status", "issued_at", "used_at", "used_by_gate", "purchase_group_id",
}

type ticketRow struct {
	ID              string        `db:"id"`
	EventID         string        `db:"event_id"`
	TierID          string        `db:"tier_id"`
	OwnerRef        string        `db:"owner_ref"`
	HolderName      string        `db:"holder_name"`
	Token           string        `db:"token"`
	Status          string        `db:"status"`
	IssuedAt        int64         `db:"issued_at"`
	UsedAt          sql.NullInt64 `db:"used_at"`
	UsedByGate      string        `db:"used_by_gate"`
	PurchaseGroupID string        `db:"purchase_group_id"`
}

func (r ticketRow) toModel() models.Ticket {
	t := models.Ticket{
		ID:              r.ID,
		EventID:         r.EventID,
		TierID:          r.TierID,
		OwnerRef:        r.OwnerRef,
		HolderName:      r.HolderName,
		Token:           r.Token,
		Status:          models.TicketStatus(r.Status),
		IssuedAt:        time.Unix(0, r.IssuedAt).UTC(),
		UsedByGate:      r.UsedByGate,
		PurchaseGroupID: r.PurchaseGroupID,
	}
	if r.UsedAt.Valid {
		usedAt := time.Unix(0, r.UsedAt.Int64).UTC()
		t.UsedAt = &usedAt
	}
	return t
}

func (s *SQLStore) CreateBatch(ctx context.Context, tickets []models.Ticket) error {
	if len(tickets) == 0 {
		return nil
	}

	err := s.tx(func(tx dbx.Builder) error {
		for _, t := range tickets {
			_, err := tx.Insert("tickets", dbx.Params{
				"id":                t.ID,
				"event_id":          t.EventID,
				"tier_id":           t.TierID,
				"owner_ref":         t.OwnerRef,
				"holder_name":       t.HolderName,
				"token":             t.Token,
				"status":            string(t.Status),
				"issued_at":         t.IssuedAt.UnixNano(),
				"purchase_group_id": t.PurchaseGroupID,
			}).WithContext(ctx).Execute()
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: group %s", status.ErrDuplicateTicket, tickets[0].PurchaseGroupID)
		}
		return fmt.Errorf("store: create tickets: %w", err)
	}
	return nil
}

func (s *SQLStore) Get(ctx context.Context, ticketID string) (*models.Ticket, error) {
	var row ticketRow
	err := s.db.Select(ticketColumns...).
		From("tickets").
		Where(dbx.HashExp{"id": ticketID}).
		WithContext(ctx).
		One(&row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, status.ErrTicketNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get ticket: %v", status.ErrStoreUnavailable, err)
	}

	t := row.toModel()
	return &t, nil
}

func (s *SQLStore) ListByGroup(ctx context.Context, groupID string) ([]models.Ticket, error) {
	var rows []ticketRow
	err := s.db.Select(ticketColumns...).
		From("tickets").
		Where(dbx.HashExp{"purchase_group_id": groupID}).
		OrderBy("issued_at ASC", "id ASC").
		WithContext(ctx).
		All(&rows)
	if err != nil {
		return nil, fmt.Errorf("%w: list group: %v", status.ErrStoreUnavailable, err)
	}

	tickets := make([]models.Ticket, 0, len(rows))
	for _, r := range rows {
		tickets = append(tickets, r.toModel())
	}
	return tickets, nil
}

func (s *SQLStore) MarkUsed(ctx context.Context, ticketID, gateID string, at time.Time) (bool, error) {
	res, err := s.db.NewQuery(
		"UPDATE tickets SET status = {:used}, used_at = {:at}, used_by_gate = {:gate} " +
			"WHERE id = {:id} AND status = {:valid}",
	).Bind(dbx.Params{
		"used":  string(models.TicketUsed),
		"at":    at.UnixNano(),
		"gate":  gateID,
		"id":    ticketID,
		"valid": string(models.TicketValid),
	}).WithContext(ctx).Execute()
	if err != nil {
		return false, fmt.Errorf("%w: mark used: %v", status.ErrStoreUnavailable, err)
	}
	return affectedOne(res)
}

func (s *SQLStore) MarkVoid(ctx context.Context, ticketID string) (bool, error) {
	res, err := s.db.NewQuery(
		"UPDATE tickets SET status = {:void} WHERE id = {:id} AND status = {:valid}",
	).Bind(dbx.Params{
		"void":  string(models.TicketVoid),
		"id":    ticketID,
		"valid": string(models.TicketValid),
	}).WithContext(ctx).Execute()
	if err != nil {
		return false, fmt.Errorf("%w: mark void: %v", status.ErrStoreUnavailable, err)
	}
	return affectedOne(res)
}

func (s *SQLStore) CountIssued(ctx context.Context, tierID string) (int64, error) {
	var n int64
	err := s.db.Select("COUNT(*)").
		From("tickets").
		Where(dbx.And(
			dbx.HashExp{"tier_id": tierID},
			dbx.In("status", string(models.TicketValid), string(models.TicketUsed)),
		)).
		WithContext(ctx).
		Row(&n)
	if err != nil {
		return 0, fmt.Errorf("%w: count issued: %v", status.ErrStoreUnavailable, err)
	}
	return n, nil
}

type scanRow struct {
	ID        string `db:"id"`
	TicketID  string `db:"ticket_id"`
	Token     string `db:"token"`
	GateID    string `db:"gate_id"`
	EventID   string `db:"event_id"`
	Outcome   string `db:"outcome"`
	Reason    string `db:"reason"`
	ScannedAt int64  `db:"scanned_at"`
}

func (s *SQLStore) Append(ctx context.Context, ev models.ScanEvent) error {
	_, err := s.db.Insert("scan_events", dbx.Params{
		"id":         ev.ID,
		"ticket_id":  ev.TicketID,
		"token":      ev.Token,
		"gate_id":    ev.GateID,
		"event_id":   ev.EventID,
		"outcome":    string(ev.Outcome),
		"reason":     ev.Reason,
		"scanned_at": ev.Timestamp.UnixNano(),
	}).WithContext(ctx).Execute()
	if err != nil {
		return fmt.Errorf("store: append scan: %w", err)
	}
	return nil
}

func (s *SQLStore) History(ctx context.Context, ticketID string) ([]models.ScanEvent, error) {
	var rows []scanRow
	err := s.db.Select("id", "ticket_id", "token", "gate_id", "event_id", "outcome", "reason", "scanned_at").
		From("scan_events").
		Where(dbx.HashExp{"ticket_id": ticketID}).
		OrderBy("seq ASC").
		WithContext(ctx).
		All(&rows)
	if err != nil {
		return nil, fmt.Errorf("%w: scan history: %v", status.ErrStoreUnavailable, err)
	}

	events := make([]models.ScanEvent, 0, len(rows))
	for _, r := range rows {
		events = append(events, models.ScanEvent{
			ID:        r.ID,
			TicketID:  r.TicketID,
			Token:     r.Token,
			GateID:    r.GateID,
			EventID:   r.EventID,
			Outcome:   models.ScanOutcome(r.Outcome),
			Reason:    r.Reason,
			Timestamp: time.Unix(0, r.ScannedAt).UTC(),
		})
	}
	return events, nil
}

func affectedOne(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: rows affected: %v", status.ErrStoreUnavailable, err)
	}
	return n == 1, nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
