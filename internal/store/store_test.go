package store

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ticket-inventory/internal/status"
	"ticket-inventory/models"

	"github.com/pocketbase/dbx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

type backend interface {
	TicketStore
	ScanLog
}

func newSQLiteStore(t *testing.T) backend {
	t.Helper()
	db, err := dbx.Open("sqlite", ":memory:")
	require.NoError(t, err)
	// a single connection keeps every query on the same in-memory database
	db.DB().SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, Migrate(db))
	return NewSQLStoreFromDB(db)
}

func newMemStore(t *testing.T) backend {
	return NewMemoryStore()
}

var backends = map[string]func(t *testing.T) backend{
	"sql":    newSQLiteStore,
	"memory": newMemStore,
}

func testTickets(group string, n int) []models.Ticket {
	issued := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tickets := make([]models.Ticket, n)
	for i := range tickets {
		tickets[i] = models.Ticket{
			ID:              fmt.Sprintf("%s-t%d", group, i),
			EventID:         "event-1",
			TierID:          "tier-1",
			OwnerRef:        "user-1",
			HolderName:      "Anna",
			Token:           fmt.Sprintf("token-%s-%d", group, i),
			Status:          models.TicketValid,
			IssuedAt:        issued.Add(time.Duration(i) * time.Millisecond),
			PurchaseGroupID: group,
		}
	}
	return tickets
}

func forEachBackend(t *testing.T, fn func(t *testing.T, s backend)) {
	for name, newStore := range backends {
		t.Run(name, func(t *testing.T) {
			fn(t, newStore(t))
		})
	}
}

func TestStore_CreateAndGet(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s backend) {
		ctx := context.Background()
		tickets := testTickets("g1", 3)
		require.NoError(t, s.CreateBatch(ctx, tickets))

		got, err := s.Get(ctx, "g1-t1")
		require.NoError(t, err)
		assert.Equal(t, tickets[1].Token, got.Token)
		assert.Equal(t, models.TicketValid, got.Status)
		assert.True(t, tickets[1].IssuedAt.Equal(got.IssuedAt))
		assert.Nil(t, got.UsedAt)

		group, err := s.ListByGroup(ctx, "g1")
		require.NoError(t, err)
		require.Len(t, group, 3)
		assert.Equal(t, "g1-t0", group[0].ID)

		_, err = s.Get(ctx, "missing")
		assert.ErrorIs(t, err, status.ErrTicketNotFound)
	})
}

func TestStore_CreateBatchIsAllOrNothing(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s backend) {
		ctx := context.Background()
		require.NoError(t, s.CreateBatch(ctx, testTickets("g1", 2)))

		batch := testTickets("g2", 3)
		batch[2].ID = "g1-t0"

		err := s.CreateBatch(ctx, batch)
		assert.ErrorIs(t, err, status.ErrDuplicateTicket)

		group, err := s.ListByGroup(ctx, "g2")
		require.NoError(t, err)
		assert.Empty(t, group, "no partial batch persisted")
	})
}

func TestStore_DuplicateTokenRejected(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s backend) {
		ctx := context.Background()
		require.NoError(t, s.CreateBatch(ctx, testTickets("g1", 1)))

		other := testTickets("g2", 1)
		other[0].Token = "token-g1-0"

		assert.ErrorIs(t, s.CreateBatch(ctx, other), status.ErrDuplicateTicket)
	})
}

func TestStore_MarkUsedOnce(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s backend) {
		ctx := context.Background()
		require.NoError(t, s.CreateBatch(ctx, testTickets("g1", 1)))
		at := time.Date(2025, 6, 2, 19, 30, 0, 0, time.UTC)

		ok, err := s.MarkUsed(ctx, "g1-t0", "gate-north", at)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = s.MarkUsed(ctx, "g1-t0", "gate-south", at.Add(time.Minute))
		require.NoError(t, err)
		assert.False(t, ok)

		got, err := s.Get(ctx, "g1-t0")
		require.NoError(t, err)
		assert.Equal(t, models.TicketUsed, got.Status)
		assert.Equal(t, "gate-north", got.UsedByGate)
		require.NotNil(t, got.UsedAt)
		assert.True(t, at.Equal(*got.UsedAt))
	})
}

func TestStore_ConcurrentMarkUsedSingleWinner(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s backend) {
		ctx := context.Background()
		require.NoError(t, s.CreateBatch(ctx, testTickets("g1", 1)))

		var winners atomic.Int64
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func(gate int) {
				defer wg.Done()
				ok, err := s.MarkUsed(ctx, "g1-t0", fmt.Sprintf("gate-%d", gate), time.Now())
				assert.NoError(t, err)
				if ok {
					winners.Add(1)
				}
			}(i)
		}
		wg.Wait()

		assert.Equal(t, int64(1), winners.Load())
	})
}

func TestStore_MarkVoid(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s backend) {
		ctx := context.Background()
		require.NoError(t, s.CreateBatch(ctx, testTickets("g1", 2)))

		ok, err := s.MarkVoid(ctx, "g1-t0")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = s.MarkVoid(ctx, "g1-t0")
		require.NoError(t, err)
		assert.False(t, ok, "void is terminal")

		ok, err = s.MarkUsed(ctx, "g1-t0", "gate-1", time.Now())
		require.NoError(t, err)
		assert.False(t, ok, "a void ticket cannot be admitted")

		_, err = s.MarkUsed(ctx, "g1-t1", "gate-1", time.Now())
		require.NoError(t, err)
		ok, err = s.MarkVoid(ctx, "g1-t1")
		require.NoError(t, err)
		assert.False(t, ok, "used is never reversed")
	})
}

func TestStore_MarkUnknownTicket(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s backend) {
		ok, err := s.MarkUsed(context.Background(), "nope", "gate-1", time.Now())
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestStore_CountIssuedExcludesVoid(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s backend) {
		ctx := context.Background()
		require.NoError(t, s.CreateBatch(ctx, testTickets("g1", 4)))

		_, err := s.MarkUsed(ctx, "g1-t0", "gate-1", time.Now())
		require.NoError(t, err)
		_, err = s.MarkVoid(ctx, "g1-t1")
		require.NoError(t, err)

		n, err := s.CountIssued(ctx, "tier-1")
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)

		n, err = s.CountIssued(ctx, "tier-other")
		require.NoError(t, err)
		assert.Equal(t, int64(0), n)
	})
}

func TestScanLog_HistoryInOrder(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s backend) {
		ctx := context.Background()
		base := time.Date(2025, 6, 2, 19, 0, 0, 0, time.UTC)

		outcomes := []models.ScanOutcome{models.ScanAdmitted, models.ScanDuplicate, models.ScanDuplicate}
		for i, outcome := range outcomes {
			require.NoError(t, s.Append(ctx, models.ScanEvent{
				ID:        fmt.Sprintf("scan-%d", i),
				TicketID:  "ticket-1",
				Token:     "tok",
				GateID:    fmt.Sprintf("gate-%d", i),
				EventID:   "event-1",
				Outcome:   outcome,
				Timestamp: base.Add(time.Duration(i) * time.Second),
			}))
		}
		require.NoError(t, s.Append(ctx, models.ScanEvent{
			ID:        "scan-unresolved",
			Token:     "garbage",
			GateID:    "gate-0",
			EventID:   "event-1",
			Outcome:   models.ScanInvalid,
			Reason:    models.ReasonUnrecognizedToken,
			Timestamp: base,
		}))

		history, err := s.History(ctx, "ticket-1")
		require.NoError(t, err)
		require.Len(t, history, 3)
		assert.Equal(t, models.ScanAdmitted, history[0].Outcome)
		assert.Equal(t, "gate-0", history[0].GateID)
		assert.True(t, base.Equal(history[0].Timestamp))
		assert.Equal(t, "gate-2", history[2].GateID)

		unresolved, err := s.History(ctx, "")
		require.NoError(t, err)
		require.Len(t, unresolved, 1)
		assert.Equal(t, models.ReasonUnrecognizedToken, unresolved[0].Reason)
	})
}
