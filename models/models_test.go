package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTicketStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		status   TicketStatus
		expected bool
	}{
		{TicketValid, false},
		{TicketUsed, true},
		{TicketVoid, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.status.IsTerminal())
		})
	}
}

func TestTier_Available(t *testing.T) {
	tier := Tier{ID: "vip", CapacityTotal: 10, CapacitySold: 7}
	assert.Equal(t, int64(3), tier.Available())

	tier.CapacitySold = 10
	assert.Equal(t, int64(0), tier.Available())
}

func TestTier_PriceSurvivesJSON(t *testing.T) {
	tier := Tier{
		ID:            "tier-1",
		EventID:       "event-1",
		Name:          "General",
		UnitPrice:     decimal.RequireFromString("150000.50"),
		CapacityTotal: 500,
	}

	data, err := json.Marshal(tier)
	require.NoError(t, err)

	var decoded Tier
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, tier.UnitPrice.Equal(decoded.UnitPrice))
}

func TestReservationRequest_HolderName(t *testing.T) {
	req := ReservationRequest{HolderNames: []string{"Anna", "Bounmy"}}

	assert.Equal(t, "Anna", req.HolderName(0))
	assert.Equal(t, "Bounmy", req.HolderName(1))
	assert.Equal(t, "Anna", req.HolderName(5), "missing names fall back to the first holder")

	empty := ReservationRequest{}
	assert.Equal(t, "", empty.HolderName(0))
}

func TestReservationRequest_OwnerRefNotBound(t *testing.T) {
	var req ReservationRequest
	err := json.Unmarshal([]byte(`{"event_id":"e1","tier_id":"t1","quantity":2,"payment_ref":"pay-1","OwnerRef":"intruder"}`), &req)
	require.NoError(t, err)

	assert.Equal(t, 2, req.Quantity)
	assert.Equal(t, "pay-1", req.PaymentConfirmationRef)
	assert.Empty(t, req.OwnerRef, "owner comes from the authenticated caller, never from the body")
}

func TestTicket_UnusedOmitsUsage(t *testing.T) {
	ticket := Ticket{
		ID:       "ticket-1",
		EventID:  "event-1",
		TierID:   "tier-1",
		Status:   TicketValid,
		IssuedAt: time.Now(),
	}

	data, err := json.Marshal(ticket)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "used_at")
	assert.NotContains(t, string(data), "used_by_gate")

	usedAt := time.Now()
	ticket.Status = TicketUsed
	ticket.UsedAt = &usedAt
	ticket.UsedByGate = "gate-north"

	data, err = json.Marshal(ticket)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"used_by_gate":"gate-north"`)
}

func TestEvent_IsPublished(t *testing.T) {
	assert.True(t, Event{Status: EventStatusPublish}.IsPublished())
	assert.False(t, Event{Status: EventStatusUnpublish}.IsPublished())
	assert.False(t, Event{}.IsPublished())
}

func TestInvalid(t *testing.T) {
	outcome := Invalid(ReasonWrongEvent)
	assert.Equal(t, ScanInvalid, outcome.Result)
	assert.Equal(t, "wrong event", outcome.Reason)
	assert.Nil(t, outcome.UsedAt)
}

func BenchmarkTicket_JSONMarshal(b *testing.B) {
	ticket := Ticket{
		ID:              "0b4c1c1e-7d1a-4a8e-9f43-1d8b6f2b0c11",
		EventID:         "event-123",
		TierID:          "tier-vip",
		Token:           "AQsMHB59GkqOn0MdiG8rDBEJZXZlbnQtMTIzCHRpZXItdmlw",
		Status:          TicketValid,
		IssuedAt:        time.Now(),
		PurchaseGroupID: "group-1",
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		json.Marshal(ticket)
	}
}
