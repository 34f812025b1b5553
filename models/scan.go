package models

import (
	"time"
)

type ScanOutcome string

const (
	ScanAdmitted  ScanOutcome = "admitted"
	ScanDuplicate ScanOutcome = "duplicate"
	ScanInvalid   ScanOutcome = "invalid"
)

// Invalid reasons shown to gate staff.
const (
	ReasonUnrecognizedToken = "unrecognized token"
	ReasonNoSuchTicket      = "no such ticket"
	ReasonWrongEvent        = "wrong event"
	ReasonTicketVoided      = "ticket voided"
)

// ScanEvent is the append-only audit record of one admission attempt.
// TicketID is empty when the token never resolved to a ticket.
type ScanEvent struct {
	ID        string      `json:"id"`
	TicketID  string      `json:"ticket_id,omitempty"`
	Token     string      `json:"token"`
	GateID    string      `json:"gate_id"`
	EventID   string      `json:"event_id"`
	Outcome   ScanOutcome `json:"outcome"`
	Reason    string      `json:"reason,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

type AdmissionOutcome struct {
	Result     ScanOutcome `json:"result"`
	Reason     string      `json:"reason,omitempty"`
	TicketID   string      `json:"ticket_id,omitempty"`
	TierID     string      `json:"tier_id,omitempty"`
	HolderName string      `json:"holder_name,omitempty"`
	UsedAt     *time.Time  `json:"used_at,omitempty"`
	UsedByGate string      `json:"used_by_gate,omitempty"`
}

func Invalid(reason string) *AdmissionOutcome {
	return &AdmissionOutcome{Result: ScanInvalid, Reason: reason}
}
