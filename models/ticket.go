package models

import (
	"time"
)

type TicketStatus string

const (
	TicketValid TicketStatus = "valid"
	TicketUsed  TicketStatus = "used"
	TicketVoid  TicketStatus = "void"
)

// IsTerminal reports whether no further transition is allowed.
func (s TicketStatus) IsTerminal() bool {
	return s == TicketUsed || s == TicketVoid
}

type Ticket struct {
	ID              string       `json:"id"`
	EventID         string       `json:"event_id"`
	TierID          string       `json:"tier_id"`
	OwnerRef        string       `json:"owner_ref"`
	HolderName      string       `json:"holder_name"`
	Token           string       `json:"token"`
	Status          TicketStatus `json:"status"` // valid, used, void
	IssuedAt        time.Time    `json:"issued_at"`
	UsedAt          *time.Time   `json:"used_at,omitempty"`
	UsedByGate      string       `json:"used_by_gate,omitempty"`
	PurchaseGroupID string       `json:"purchase_group_id"`
}

// ReservationRequest only lives for the duration of one reserve call.
type ReservationRequest struct {
	EventID                string   `json:"event_id"`
	TierID                 string   `json:"tier_id"`
	Quantity               int      `json:"quantity"`
	PaymentConfirmationRef string   `json:"payment_ref"`
	OwnerRef               string   `json:"-"`
	HolderNames            []string `json:"holder_names,omitempty"`
}

// HolderName returns the holder name for the i-th ticket of the request,
// falling back to the first name given.
func (r ReservationRequest) HolderName(i int) string {
	if i < len(r.HolderNames) {
		return r.HolderNames[i]
	}
	if len(r.HolderNames) > 0 {
		return r.HolderNames[0]
	}
	return ""
}
