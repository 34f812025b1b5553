package ledger

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"ticket-inventory/internal/status"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupScriptLedger runs the ledger scripts against an in-process redis.
func setupScriptLedger(t *testing.T) (*RedisLedger, *redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisLedger(client), client, mr
}

func TestRedisLedgerScripts_InitTierWritesSold(t *testing.T) {
	l, _, mr := setupScriptLedger(t)
	ctx := context.Background()

	created, err := l.InitTier(ctx, "vip", "event-1", 10, 3)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "10", mr.HGet(Key("vip"), "total"))
	assert.Equal(t, "3", mr.HGet(Key("vip"), "sold"))
	assert.Equal(t, "event-1", mr.HGet(Key("vip"), "event_id"))

	created, err = l.InitTier(ctx, "vip", "event-1", 99, 0)
	require.NoError(t, err)
	assert.False(t, created)

	st, err := l.Status(ctx, "vip")
	require.NoError(t, err)
	assert.Equal(t, int64(10), st.CapacityTotal)
	assert.Equal(t, int64(3), st.CapacitySold)
	assert.Equal(t, int64(7), st.Available)
	assert.Equal(t, "event-1", st.EventID)
}

func TestRedisLedgerScripts_InitTierRefusesSoldAboveTotal(t *testing.T) {
	_, client, mr := setupScriptLedger(t)

	code, err := initTierScript.Run(context.Background(), client, []string{Key("vip")}, 5, "event-1", 6).Int64()
	require.NoError(t, err)
	assert.Equal(t, int64(-1), code)
	assert.False(t, mr.Exists(Key("vip")))
}

func TestRedisLedgerScripts_ReserveToCapacity(t *testing.T) {
	l, _, mr := setupScriptLedger(t)
	ctx := context.Background()

	_, err := l.InitTier(ctx, "vip", "event-1", 10, 0)
	require.NoError(t, err)

	grant, err := l.TryReserve(ctx, "vip", 8)
	require.NoError(t, err)
	assert.Equal(t, int64(0), grant.SoldBefore)
	assert.Equal(t, int64(8), grant.SoldAfter)
	assert.Equal(t, int64(10), grant.CapacityTotal)
	assert.Equal(t, "event-1", grant.EventID)

	_, err = l.TryReserve(ctx, "vip", 3)
	var capErr *status.CapacityError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, int64(2), capErr.Remaining)
	assert.Equal(t, "8", mr.HGet(Key("vip"), "sold"), "rejected reservation changes nothing")

	grant, err = l.TryReserve(ctx, "vip", 2)
	require.NoError(t, err)
	assert.Equal(t, int64(10), grant.SoldAfter)
}

func TestRedisLedgerScripts_ReleaseUnderflow(t *testing.T) {
	l, _, mr := setupScriptLedger(t)
	ctx := context.Background()

	_, err := l.InitTier(ctx, "vip", "event-1", 10, 0)
	require.NoError(t, err)
	_, err = l.TryReserve(ctx, "vip", 2)
	require.NoError(t, err)

	require.NoError(t, l.Release(ctx, "vip", 2))
	assert.Equal(t, "0", mr.HGet(Key("vip"), "sold"))

	err = l.Release(ctx, "vip", 1)
	assert.ErrorIs(t, err, status.ErrLedgerUnderflow)
	assert.Equal(t, "0", mr.HGet(Key("vip"), "sold"))
}

func TestRedisLedgerScripts_IncreaseCapacity(t *testing.T) {
	l, _, _ := setupScriptLedger(t)
	ctx := context.Background()

	_, err := l.InitTier(ctx, "vip", "event-1", 2, 2)
	require.NoError(t, err)

	total, err := l.IncreaseCapacity(ctx, "vip", 3)
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)

	grant, err := l.TryReserve(ctx, "vip", 3)
	require.NoError(t, err)
	assert.Equal(t, int64(5), grant.SoldAfter)
}

func TestRedisLedgerScripts_UnknownTier(t *testing.T) {
	l, _, _ := setupScriptLedger(t)
	ctx := context.Background()

	_, err := l.TryReserve(ctx, "ghost", 1)
	assert.ErrorIs(t, err, status.ErrTierNotFound)

	assert.ErrorIs(t, l.Release(ctx, "ghost", 1), status.ErrTierNotFound)

	_, err = l.IncreaseCapacity(ctx, "ghost", 1)
	assert.ErrorIs(t, err, status.ErrTierNotFound)

	_, err = l.Status(ctx, "ghost")
	assert.ErrorIs(t, err, status.ErrTierNotFound)
}

func TestRedisLedgerScripts_ConcurrentReservationsNeverOversell(t *testing.T) {
	l, _, _ := setupScriptLedger(t)
	ctx := context.Background()

	_, err := l.InitTier(ctx, "vip", "event-1", 20, 0)
	require.NoError(t, err)

	var granted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.TryReserve(ctx, "vip", 1)
			var capErr *status.CapacityError
			switch {
			case err == nil:
				granted.Add(1)
			case errors.As(err, &capErr):
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(20), granted.Load())

	st, err := l.Status(ctx, "vip")
	require.NoError(t, err)
	assert.Equal(t, int64(20), st.CapacitySold)
	assert.Equal(t, int64(0), st.Available)
}
