package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ticket-inventory/internal/status"
	"ticket-inventory/models"
)

type ticketEntry struct {
	mu     sync.Mutex
	ticket models.Ticket
}

// MemoryStore implements TicketStore and ScanLog in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	tickets map[string]*ticketEntry
	tokens  map[string]struct{}
	groups  map[string][]string

	scanMu sync.Mutex
	scans  []models.ScanEvent
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tickets: make(map[string]*ticketEntry),
		tokens:  make(map[string]struct{}),
		groups:  make(map[string][]string),
	}
}

func (s *MemoryStore) CreateBatch(_ context.Context, tickets []models.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{}, len(tickets))
	for _, t := range tickets {
		_, idTaken := s.tickets[t.ID]
		_, tokenTaken := s.tokens[t.Token]
		_, inBatch := seen[t.ID]
		if idTaken || tokenTaken || inBatch {
			return fmt.Errorf("%w: ticket %s", status.ErrDuplicateTicket, t.ID)
		}
		seen[t.ID] = struct{}{}
	}

	for _, t := range tickets {
		s.tickets[t.ID] = &ticketEntry{ticket: t}
		s.tokens[t.Token] = struct{}{}
		s.groups[t.PurchaseGroupID] = append(s.groups[t.PurchaseGroupID], t.ID)
	}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, ticketID string) (*models.Ticket, error) {
	e, ok := s.entry(ticketID)
	if !ok {
		return nil, status.ErrTicketNotFound
	}

	e.mu.Lock()
	t := e.ticket
	e.mu.Unlock()
	return &t, nil
}

func (s *MemoryStore) ListByGroup(ctx context.Context, groupID string) ([]models.Ticket, error) {
	s.mu.RLock()
	ids := append([]string(nil), s.groups[groupID]...)
	s.mu.RUnlock()

	tickets := make([]models.Ticket, 0, len(ids))
	for _, id := range ids {
		t, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, *t)
	}
	return tickets, nil
}

func (s *MemoryStore) MarkUsed(_ context.Context, ticketID, gateID string, at time.Time) (bool, error) {
	return s.transition(ticketID, func(t *models.Ticket) {
		t.Status = models.TicketUsed
		usedAt := at
		t.UsedAt = &usedAt
		t.UsedByGate = gateID
	})
}

func (s *MemoryStore) MarkVoid(_ context.Context, ticketID string) (bool, error) {
	return s.transition(ticketID, func(t *models.Ticket) {
		t.Status = models.TicketVoid
	})
}

func (s *MemoryStore) CountIssued(_ context.Context, tierID string) (int64, error) {
	s.mu.RLock()
	entries := make([]*ticketEntry, 0, len(s.tickets))
	for _, e := range s.tickets {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	var n int64
	for _, e := range entries {
		e.mu.Lock()
		if e.ticket.TierID == tierID && e.ticket.Status != models.TicketVoid {
			n++
		}
		e.mu.Unlock()
	}
	return n, nil
}

func (s *MemoryStore) Append(_ context.Context, ev models.ScanEvent) error {
	s.scanMu.Lock()
	defer s.scanMu.Unlock()

	s.scans = append(s.scans, ev)
	return nil
}

func (s *MemoryStore) History(_ context.Context, ticketID string) ([]models.ScanEvent, error) {
	s.scanMu.Lock()
	defer s.scanMu.Unlock()

	var events []models.ScanEvent
	for _, ev := range s.scans {
		if ev.TicketID == ticketID {
			events = append(events, ev)
		}
	}
	return events, nil
}

func (s *MemoryStore) transition(ticketID string, apply func(t *models.Ticket)) (bool, error) {
	e, ok := s.entry(ticketID)
	if !ok {
		return false, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.ticket.Status != models.TicketValid {
		return false, nil
	}
	apply(&e.ticket)
	return true, nil
}

func (s *MemoryStore) entry(ticketID string) (*ticketEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.tickets[ticketID]
	return e, ok
}
