package ledger

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"ticket-inventory/internal/status"
	"ticket-inventory/models"
	"ticket-inventory/monitoring"

	"github.com/redis/go-redis/v9"
)

//go:embed scripts/reserve.lua
var reserveSource string

//go:embed scripts/release.lua
var releaseSource string

//go:embed scripts/init_tier.lua
var initTierSource string

//go:embed scripts/increase_capacity.lua
var increaseCapacitySource string

var (
	reserveScript          = redis.NewScript(reserveSource)
	releaseScript          = redis.NewScript(releaseSource)
	initTierScript         = redis.NewScript(initTierSource)
	increaseCapacityScript = redis.NewScript(increaseCapacitySource)
)

// Result codes shared by the reserve and release scripts.
const (
	codeUnknownTier = -1
	codeRejected    = 0
	codeApplied     = 1
)

// RedisLedger keeps one hash per tier. Every mutation runs as a single Lua
// script, so Redis serializes operations on a tier without a client lock.
type RedisLedger struct {
	redis redis.Cmdable
}

func NewRedisLedger(redisClient redis.Cmdable) *RedisLedger {
	return &RedisLedger{redis: redisClient}
}

func Key(tierID string) string {
	return monitoring.LedgerKeyPrefix + tierID
}

func (l *RedisLedger) InitTier(ctx context.Context, tierID, eventID string, total, sold int64) (bool, error) {
	if tierID == "" || eventID == "" || total < 0 || sold < 0 {
		return false, status.ErrInvalidRequest
	}
	if sold > total {
		return false, status.ErrSoldExceedsTotal
	}
	defer monitoring.ObserveLedger("init", time.Now())

	created, err := initTierScript.Run(ctx, l.redis, []string{Key(tierID)}, total, eventID, sold).Int64()
	if err != nil {
		return false, fmt.Errorf("ledger: init tier %s: %w", tierID, err)
	}
	switch created {
	case -1:
		return false, status.ErrSoldExceedsTotal
	case codeApplied:
		return true, nil
	}
	return false, nil
}

func (l *RedisLedger) TryReserve(ctx context.Context, tierID string, qty int64) (*Grant, error) {
	if qty <= 0 {
		return nil, status.ErrInvalidQuantity
	}
	defer monitoring.ObserveLedger("reserve", time.Now())

	res, err := l.run(ctx, reserveScript, tierID, qty)
	if err != nil {
		return nil, err
	}

	switch res.code {
	case codeUnknownTier:
		return nil, status.ErrTierNotFound
	case codeRejected:
		return nil, &status.CapacityError{
			TierID:    tierID,
			Requested: qty,
			Remaining: res.total - res.before,
		}
	}

	return &Grant{
		TierID:        tierID,
		EventID:       res.eventID,
		Quantity:      qty,
		SoldBefore:    res.before,
		SoldAfter:     res.after,
		CapacityTotal: res.total,
		GrantedAt:     time.Now(),
	}, nil
}

func (l *RedisLedger) Release(ctx context.Context, tierID string, qty int64) error {
	if qty <= 0 {
		return status.ErrInvalidQuantity
	}
	defer monitoring.ObserveLedger("release", time.Now())

	res, err := l.run(ctx, releaseScript, tierID, qty)
	if err != nil {
		return err
	}

	switch res.code {
	case codeUnknownTier:
		return status.ErrTierNotFound
	case codeRejected:
		slog.Error("Ledger release would underflow",
			"tier_id", tierID, "quantity", qty, "sold", res.before, "total", res.total)
		monitoring.TrackIntegrityViolation("ledger_underflow")
		return status.ErrLedgerUnderflow
	}
	return nil
}

func (l *RedisLedger) IncreaseCapacity(ctx context.Context, tierID string, delta int64) (int64, error) {
	if delta <= 0 {
		return 0, status.ErrInvalidQuantity
	}
	defer monitoring.ObserveLedger("increase_capacity", time.Now())

	total, err := increaseCapacityScript.Run(ctx, l.redis, []string{Key(tierID)}, delta).Int64()
	if err != nil {
		return 0, fmt.Errorf("ledger: increase capacity %s: %w", tierID, err)
	}
	if total == codeUnknownTier {
		return 0, status.ErrTierNotFound
	}
	return total, nil
}

func (l *RedisLedger) Status(ctx context.Context, tierID string) (*models.TierStatus, error) {
	vals, err := l.redis.HMGet(ctx, Key(tierID), "total", "sold", "event_id").Result()
	if err != nil {
		return nil, fmt.Errorf("ledger: status %s: %w", tierID, err)
	}
	if len(vals) != 3 || vals[0] == nil {
		return nil, status.ErrTierNotFound
	}

	total, err := toInt64(vals[0])
	if err != nil {
		return nil, fmt.Errorf("ledger: status %s: total: %w", tierID, err)
	}
	sold, err := toInt64(vals[1])
	if err != nil {
		return nil, fmt.Errorf("ledger: status %s: sold: %w", tierID, err)
	}
	eventID, _ := vals[2].(string)

	return &models.TierStatus{
		TierID:        tierID,
		EventID:       eventID,
		CapacityTotal: total,
		CapacitySold:  sold,
		Available:     total - sold,
	}, nil
}

type scriptResult struct {
	code    int64
	before  int64
	after   int64
	total   int64
	eventID string
}

func (l *RedisLedger) run(ctx context.Context, script *redis.Script, tierID string, qty int64) (*scriptResult, error) {
	values, err := script.Run(ctx, l.redis, []string{Key(tierID)}, qty).Slice()
	if err != nil {
		return nil, fmt.Errorf("ledger: tier %s: %w", tierID, err)
	}
	if len(values) < 5 {
		return nil, fmt.Errorf("ledger: unexpected script result length: %d", len(values))
	}

	var res scriptResult
	for i, dst := range []*int64{&res.code, &res.before, &res.after, &res.total} {
		if *dst, err = toInt64(values[i]); err != nil {
			return nil, fmt.Errorf("ledger: script result[%d]: %w", i, err)
		}
	}
	res.eventID, _ = values[4].(string)
	return &res, nil
}

func toInt64(v any) (int64, error) {
	switch val := v.(type) {
	case nil:
		return 0, nil
	case int64:
		return val, nil
	case string:
		return strconv.ParseInt(val, 10, 64)
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}
