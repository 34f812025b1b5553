package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ticket-inventory/internal/status"
	"ticket-inventory/internal/store"
	"ticket-inventory/internal/token"
	"ticket-inventory/models"
	"ticket-inventory/monitoring"

	"github.com/google/uuid"
)

// AdmissionService decides at the gate whether a presented token admits its
// holder. Every decision is written to the scan log.
type AdmissionService struct {
	tickets      store.TicketStore
	scans        store.ScanLog
	issuer       *token.Issuer
	notifier     Notifier
	storeTimeout time.Duration
	now          func() time.Time
}

func NewAdmissionService(tickets store.TicketStore, scans store.ScanLog, issuer *token.Issuer, storeTimeout time.Duration) *AdmissionService {
	if storeTimeout <= 0 {
		storeTimeout = 2 * time.Second
	}
	return &AdmissionService{
		tickets:      tickets,
		scans:        scans,
		issuer:       issuer,
		storeTimeout: storeTimeout,
		now:          time.Now,
	}
}

func (s *AdmissionService) SetNotifier(n Notifier) {
	s.notifier = n
}

// Admit validates tok for eventID at gateID. Business outcomes, including
// invalid and duplicate scans, are returned as an outcome with a nil error. An
// error means the store could not be reached and the gate should retry.
func (s *AdmissionService) Admit(ctx context.Context, tok, gateID, eventID string) (*models.AdmissionOutcome, error) {
	if gateID == "" || eventID == "" {
		return nil, fmt.Errorf("%w: gate_id and event_id are required", status.ErrInvalidRequest)
	}

	outcome, ticketID, err := s.decide(ctx, tok, gateID, eventID)
	if err != nil {
		slog.Warn("admission check failed", "gate_id", gateID, "event_id", eventID, "error", err)
		return nil, err
	}

	s.record(ctx, models.ScanEvent{
		ID:        uuid.NewString(),
		TicketID:  ticketID,
		Token:     tok,
		GateID:    gateID,
		EventID:   eventID,
		Outcome:   outcome.Result,
		Reason:    outcome.Reason,
		Timestamp: s.now().UTC(),
	})

	return outcome, nil
}

// decide returns the outcome and the id of the ticket the token resolved to,
// empty when it resolved to none.
func (s *AdmissionService) decide(ctx context.Context, tok, gateID, eventID string) (*models.AdmissionOutcome, string, error) {
	claims, err := s.issuer.VerifyFormat(tok)
	if err != nil {
		return models.Invalid(models.ReasonUnrecognizedToken), "", nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	t, err := s.tickets.Get(ctx, claims.TicketID)
	switch {
	case errors.Is(err, status.ErrTicketNotFound):
		return models.Invalid(models.ReasonNoSuchTicket), "", nil
	case err != nil:
		return nil, "", err
	}

	if t.Token != tok {
		return models.Invalid(models.ReasonUnrecognizedToken), "", nil
	}
	if t.EventID != eventID || claims.EventID != eventID {
		return models.Invalid(models.ReasonWrongEvent), t.ID, nil
	}

	if t.Status == models.TicketValid {
		at := s.now().UTC()
		ok, err := s.tickets.MarkUsed(ctx, t.ID, gateID, at)
		if err != nil {
			return nil, "", err
		}
		if ok {
			return &models.AdmissionOutcome{
				Result:     models.ScanAdmitted,
				TicketID:   t.ID,
				TierID:     t.TierID,
				HolderName: t.HolderName,
				UsedAt:     &at,
				UsedByGate: gateID,
			}, t.ID, nil
		}

		// lost the race; report what the winner did
		if t, err = s.tickets.Get(ctx, t.ID); err != nil {
			return nil, "", err
		}
	}

	switch t.Status {
	case models.TicketUsed:
		return &models.AdmissionOutcome{
			Result:     models.ScanDuplicate,
			TicketID:   t.ID,
			TierID:     t.TierID,
			HolderName: t.HolderName,
			UsedAt:     t.UsedAt,
			UsedByGate: t.UsedByGate,
		}, t.ID, nil
	default:
		outcome := models.Invalid(models.ReasonTicketVoided)
		outcome.TicketID = t.ID
		return outcome, t.ID, nil
	}
}

func (s *AdmissionService) record(ctx context.Context, ev models.ScanEvent) {
	monitoring.TrackAdmission(ev.EventID, ev.GateID, string(ev.Outcome))

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.storeTimeout)
	defer cancel()

	if err := s.scans.Append(ctx, ev); err != nil {
		monitoring.TrackIntegrityViolation("scan_log_append")
		slog.Error("failed to append scan event",
			"scan_id", ev.ID,
			"ticket_id", ev.TicketID,
			"gate_id", ev.GateID,
			"outcome", ev.Outcome,
			"error", err,
		)
	}

	if s.notifier != nil {
		go s.notifier.NotifyScan(context.WithoutCancel(ctx), ev)
	}
}

// ScanHistory returns every scan of a ticket in the order they were recorded.
func (s *AdmissionService) ScanHistory(ctx context.Context, ticketID string) ([]models.ScanEvent, error) {
	return s.scans.History(ctx, ticketID)
}

// Inspect reports what a token claims without consulting the store.
func (s *AdmissionService) Inspect(tok string) (*token.Claims, error) {
	return s.issuer.VerifyFormat(tok)
}
