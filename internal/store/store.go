// Package store persists issued tickets and the gate scan log.
//
// Ticket status transitions are compare-and-set operations: MarkUsed and
// MarkVoid only succeed while the ticket is still valid, and report whether
// this caller performed the transition. Backends must serialize transitions
// per ticket, never across tickets.
package store

import (
	"context"
	"time"

	"ticket-inventory/models"
)

type TicketStore interface {
	// CreateBatch inserts all tickets or none. An id or token that already
	// exists yields status.ErrDuplicateTicket.
	CreateBatch(ctx context.Context, tickets []models.Ticket) error

	Get(ctx context.Context, ticketID string) (*models.Ticket, error)
	ListByGroup(ctx context.Context, groupID string) ([]models.Ticket, error)

	// MarkUsed moves a ticket from valid to used. It returns false when the
	// ticket was not valid at the time of the call.
	MarkUsed(ctx context.Context, ticketID, gateID string, at time.Time) (bool, error)

	// MarkVoid moves a ticket from valid to void.
	MarkVoid(ctx context.Context, ticketID string) (bool, error)

	// CountIssued returns the number of valid or used tickets of a tier.
	CountIssued(ctx context.Context, tierID string) (int64, error)
}

// ScanLog is append-only.
type ScanLog interface {
	Append(ctx context.Context, ev models.ScanEvent) error
	History(ctx context.Context, ticketID string) ([]models.ScanEvent, error)
}

// Schema creates the tables used by SQLStore. Timestamps are unix nanoseconds.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS tickets (
		id                TEXT PRIMARY KEY NOT NULL,
		event_id          TEXT NOT NULL,
		tier_id           TEXT NOT NULL,
		owner_ref         TEXT NOT NULL DEFAULT '',
		holder_name       TEXT NOT NULL DEFAULT '',
		token             TEXT NOT NULL UNIQUE,
		status            TEXT NOT NULL DEFAULT 'valid',
		issued_at         INTEGER NOT NULL,
		used_at           INTEGER NULL,
		used_by_gate      TEXT NOT NULL DEFAULT '',
		purchase_group_id TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_tickets_group ON tickets (purchase_group_id)`,
	`CREATE INDEX IF NOT EXISTS idx_tickets_tier_status ON tickets (tier_id, status)`,
	`CREATE TABLE IF NOT EXISTS scan_events (
		seq        INTEGER PRIMARY KEY AUTOINCREMENT,
		id         TEXT NOT NULL UNIQUE,
		ticket_id  TEXT NOT NULL DEFAULT '',
		token      TEXT NOT NULL,
		gate_id    TEXT NOT NULL,
		event_id   TEXT NOT NULL,
		outcome    TEXT NOT NULL,
		reason     TEXT NOT NULL DEFAULT '',
		scanned_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_scan_events_ticket ON scan_events (ticket_id)`,
}

// DropSchema reverses Schema.
var DropSchema = []string{
	`DROP TABLE IF EXISTS scan_events`,
	`DROP TABLE IF EXISTS tickets`,
}
