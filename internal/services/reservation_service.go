package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"ticket-inventory/internal/ledger"
	"ticket-inventory/internal/status"
	"ticket-inventory/internal/store"
	"ticket-inventory/internal/token"
	"ticket-inventory/models"
	"ticket-inventory/monitoring"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
)

// purchaseNamespace derives purchase group ids from payment references, so a
// retried reservation for the same payment lands on the same ticket ids.
var purchaseNamespace = uuid.MustParse("5d0c7f0e-4b8a-4b5e-9a57-3f1f3c2b9e61")

const (
	compensateTimeout = 5 * time.Second
	maxPersistBackoff = 2 * time.Second
)

type ReservationConfig struct {
	MaxTicketsPerOrder  int
	PaymentTimeout      time.Duration
	PersistRetries      int
	PersistRetryBackoff time.Duration
}

type ReservationService struct {
	ledger   ledger.Ledger
	tickets  store.TicketStore
	payments PaymentAuthority
	issuer   *token.Issuer
	cfg      ReservationConfig
	now      func() time.Time

	lastIssued atomic.Int64
}

func NewReservationService(l ledger.Ledger, tickets store.TicketStore, payments PaymentAuthority, issuer *token.Issuer, cfg ReservationConfig) *ReservationService {
	if cfg.MaxTicketsPerOrder <= 0 {
		cfg.MaxTicketsPerOrder = 10
	}
	if cfg.PaymentTimeout <= 0 {
		cfg.PaymentTimeout = 5 * time.Second
	}
	if cfg.PersistRetryBackoff <= 0 {
		cfg.PersistRetryBackoff = 100 * time.Millisecond
	}
	return &ReservationService{
		ledger:   l,
		tickets:  tickets,
		payments: payments,
		issuer:   issuer,
		cfg:      cfg,
		now:      time.Now,
	}
}

// PurchaseGroupID returns the group id tickets bought with paymentRef share.
func PurchaseGroupID(paymentRef string) string {
	return uuid.NewSHA1(purchaseNamespace, []byte(paymentRef)).String()
}

func ticketID(groupID string, i int) string {
	return uuid.NewSHA1(uuid.MustParse(groupID), []byte(strconv.Itoa(i))).String()
}

// Reserve turns a confirmed payment into issued tickets. Either exactly
// req.Quantity tickets are persisted and counted as sold, or nothing is.
// Calling it again with the same payment reference returns the tickets issued
// the first time.
func (s *ReservationService) Reserve(ctx context.Context, req models.ReservationRequest) ([]models.Ticket, error) {
	if err := s.validate(req); err != nil {
		monitoring.TrackReservation(req.TierID, "rejected")
		return nil, err
	}

	groupID := PurchaseGroupID(req.PaymentConfirmationRef)

	existing, err := s.tickets.ListByGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return s.replay(req, existing)
	}

	if err := s.confirmPayment(ctx, req.PaymentConfirmationRef); err != nil {
		monitoring.TrackReservation(req.TierID, "payment_rejected")
		return nil, err
	}

	tier, err := s.ledger.Status(ctx, req.TierID)
	if err != nil {
		return nil, err
	}
	if tier.EventID != req.EventID {
		return nil, status.ErrTierEventMismatch
	}

	grant, err := s.ledger.TryReserve(ctx, req.TierID, int64(req.Quantity))
	if err != nil {
		var capErr *status.CapacityError
		if errors.As(err, &capErr) {
			monitoring.TrackReservation(req.TierID, "sold_out")
			return nil, &status.InsufficientInventoryError{TierID: req.TierID, Remaining: capErr.Remaining}
		}
		return nil, err
	}

	tickets, err := s.mint(req, groupID)
	if err != nil {
		return nil, s.abort(ctx, grant, err)
	}

	attempts, err := s.persist(ctx, tickets)

	switch {
	case err == nil:
	case errors.Is(err, status.ErrDuplicateTicket):
		return s.resolveDuplicate(ctx, req, grant, groupID, tickets[0].IssuedAt)
	default:
		slog.Error("ticket persistence failed",
			"tier_id", req.TierID,
			"quantity", req.Quantity,
			"attempts", attempts,
			"error", err,
		)
		return nil, s.abort(ctx, grant, fmt.Errorf("%w: %v", status.ErrPersistFailed, err))
	}

	monitoring.TrackReservation(req.TierID, "success")
	monitoring.TrackIssued(req.TierID, len(tickets))
	slog.Info("Tickets issued",
		"event_id", req.EventID,
		"tier_id", req.TierID,
		"quantity", req.Quantity,
		"purchase_group_id", groupID,
		"sold_after", grant.SoldAfter,
	)

	return tickets, nil
}

func (s *ReservationService) validate(req models.ReservationRequest) error {
	switch {
	case req.EventID == "", req.TierID == "":
		return fmt.Errorf("%w: event_id and tier_id are required", status.ErrInvalidRequest)
	case req.PaymentConfirmationRef == "":
		return fmt.Errorf("%w: payment_ref is required", status.ErrInvalidRequest)
	case req.Quantity <= 0:
		return fmt.Errorf("%w: %w", status.ErrInvalidRequest, status.ErrInvalidQuantity)
	case req.Quantity > s.cfg.MaxTicketsPerOrder:
		return fmt.Errorf("%w: at most %d tickets per order", status.ErrInvalidRequest, s.cfg.MaxTicketsPerOrder)
	}
	return nil
}

func (s *ReservationService) confirmPayment(ctx context.Context, ref string) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.PaymentTimeout)
	defer cancel()

	st, err := s.payments.ConfirmPayment(ctx, ref)
	if err != nil {
		if errors.Is(err, status.ErrPaymentUnavailable) {
			return err
		}
		return fmt.Errorf("%w: %v", status.ErrPaymentUnavailable, err)
	}
	if st != models.PaymentConfirmed {
		return status.ErrPaymentNotConfirmed
	}
	return nil
}

// persist writes the batch, retrying transient store failures with
// exponential backoff. A duplicate is never retried.
func (s *ReservationService) persist(ctx context.Context, tickets []models.Ticket) (int, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.cfg.PersistRetryBackoff
	policy.MaxInterval = maxPersistBackoff

	attempts := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempts++
		err := s.tickets.CreateBatch(ctx, tickets)
		if errors.Is(err, status.ErrDuplicateTicket) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(s.cfg.PersistRetries+1)),
		backoff.WithMaxElapsedTime(0),
	)
	return attempts, err
}

// replay answers a repeated request for a payment that already has tickets.
func (s *ReservationService) replay(req models.ReservationRequest, existing []models.Ticket) ([]models.Ticket, error) {
	first := existing[0]
	if first.TierID != req.TierID || first.EventID != req.EventID || first.OwnerRef != req.OwnerRef ||
		len(existing) != req.Quantity {
		monitoring.TrackReservation(req.TierID, "payment_reused")
		return nil, status.ErrPaymentAlreadyUsed
	}
	monitoring.TrackReservation(req.TierID, "replayed")
	return existing, nil
}

// issueTime returns a timestamp no other call of this service has used. It
// doubles as the fingerprint resolveDuplicate compares.
func (s *ReservationService) issueTime() time.Time {
	t := s.now().UnixNano()
	for {
		last := s.lastIssued.Load()
		if t <= last {
			t = last + 1
		}
		if s.lastIssued.CompareAndSwap(last, t) {
			return time.Unix(0, t).UTC()
		}
	}
}

func (s *ReservationService) mint(req models.ReservationRequest, groupID string) ([]models.Ticket, error) {
	issuedAt := s.issueTime()
	tickets := make([]models.Ticket, 0, req.Quantity)

	for i := 0; i < req.Quantity; i++ {
		id := ticketID(groupID, i)
		tok, err := s.issuer.Issue(id, req.EventID, req.TierID)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, models.Ticket{
			ID:              id,
			EventID:         req.EventID,
			TierID:          req.TierID,
			OwnerRef:        req.OwnerRef,
			HolderName:      req.HolderName(i),
			Token:           tok,
			Status:          models.TicketValid,
			IssuedAt:        issuedAt,
			PurchaseGroupID: groupID,
		})
	}

	return tickets, nil
}

// resolveDuplicate runs when the batch collided with tickets of the same
// purchase group. If the stored tickets carry our issue time, an earlier
// attempt of this call committed and the grant stands. Otherwise a
// concurrent request for the same payment won and our grant goes back.
func (s *ReservationService) resolveDuplicate(ctx context.Context, req models.ReservationRequest, grant *ledger.Grant, groupID string, issuedAt time.Time) ([]models.Ticket, error) {
	existing, err := s.tickets.ListByGroup(ctx, groupID)
	if err != nil {
		return nil, s.abort(ctx, grant, fmt.Errorf("%w: %v", status.ErrPersistFailed, err))
	}

	if len(existing) > 0 && existing[0].IssuedAt.Equal(issuedAt) {
		monitoring.TrackReservation(req.TierID, "success")
		monitoring.TrackIssued(req.TierID, len(existing))
		return existing, nil
	}

	if err := s.release(ctx, grant); err != nil {
		return nil, err
	}
	if len(existing) == 0 {
		// token collision outside the group
		return nil, fmt.Errorf("%w: %v", status.ErrPersistFailed, status.ErrDuplicateTicket)
	}
	return s.replay(req, existing)
}

// abort gives the grant back and returns cause. A failed release is an
// integrity violation and is reported alongside cause.
func (s *ReservationService) abort(ctx context.Context, grant *ledger.Grant, cause error) error {
	if err := s.release(ctx, grant); err != nil {
		return fmt.Errorf("%w: %w", cause, err)
	}
	monitoring.TrackReservation(grant.TierID, "compensated")
	return cause
}

func (s *ReservationService) release(ctx context.Context, grant *ledger.Grant) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensateTimeout)
	defer cancel()

	if err := s.ledger.Release(ctx, grant.TierID, grant.Quantity); err != nil {
		monitoring.TrackIntegrityViolation("compensate_failed")
		slog.Error("compensating release failed",
			"tier_id", grant.TierID,
			"quantity", grant.Quantity,
			"error", err,
		)
		return fmt.Errorf("%w: %v", status.ErrCompensateFailed, err)
	}
	return nil
}

// Cancel voids a valid ticket and returns its seat to the tier.
func (s *ReservationService) Cancel(ctx context.Context, ticketID string) (*models.Ticket, error) {
	t, err := s.tickets.Get(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	ok, err := s.tickets.MarkVoid(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !ok {
		current, err := s.tickets.Get(ctx, ticketID)
		if err != nil {
			return nil, err
		}
		switch current.Status {
		case models.TicketUsed:
			return nil, status.ErrTicketAlreadyUsed
		default:
			return nil, status.ErrTicketAlreadyVoid
		}
	}

	if err := s.ledger.Release(ctx, t.TierID, 1); err != nil {
		// the ticket is void; the seat stays counted as sold until reconciled
		monitoring.TrackIntegrityViolation("cancel_release_failed")
		slog.Error("release after void failed", "ticket_id", ticketID, "tier_id", t.TierID, "error", err)
		return nil, err
	}

	t.Status = models.TicketVoid
	slog.Info("Ticket voided", "ticket_id", ticketID, "tier_id", t.TierID)
	return t, nil
}

// Ticket returns a stored ticket.
func (s *ReservationService) Ticket(ctx context.Context, ticketID string) (*models.Ticket, error) {
	return s.tickets.Get(ctx, ticketID)
}

// Group returns the tickets issued for a payment reference.
func (s *ReservationService) Group(ctx context.Context, paymentRef string) ([]models.Ticket, error) {
	return s.tickets.ListByGroup(ctx, PurchaseGroupID(paymentRef))
}
