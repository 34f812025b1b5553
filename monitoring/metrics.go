package monitoring

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

// LedgerKeyPrefix is the Redis key prefix of per-tier ledger hashes.
const LedgerKeyPrefix = "ledger:tier:"

var (
	reservations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reservations_total",
			Help: "Reservation attempts by outcome",
		},
		[]string{"tier_id", "outcome"},
	)

	ticketsIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tickets_issued_total",
			Help: "Tickets issued per tier",
		},
		[]string{"tier_id"},
	)

	admissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admissions_total",
			Help: "Gate scans by outcome",
		},
		[]string{"event_id", "gate_id", "outcome"},
	)

	ledgerDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ledger_operation_duration_seconds",
			Help:    "Duration of ledger operations",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
		[]string{"operation"},
	)

	integrityViolations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "integrity_violations_total",
			Help: "Detected integrity violations that need operator attention",
		},
		[]string{"kind"},
	)

	tierAvailable = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tier_capacity_available",
			Help: "Remaining capacity per tier",
		},
		[]string{"tier_id"},
	)
)

func TrackReservation(tierID, outcome string) {
	reservations.WithLabelValues(tierID, outcome).Inc()
}

func TrackIssued(tierID string, n int) {
	ticketsIssued.WithLabelValues(tierID).Add(float64(n))
}

func TrackAdmission(eventID, gateID, outcome string) {
	admissions.WithLabelValues(eventID, gateID, outcome).Inc()
}

// ObserveLedger records the time since start for a ledger operation.
func ObserveLedger(operation string, start time.Time) {
	ledgerDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func TrackIntegrityViolation(kind string) {
	integrityViolations.WithLabelValues(kind).Inc()
}

// Monitor periodically exports ledger gauges read from Redis.
type Monitor struct {
	redis    redis.Cmdable
	interval time.Duration
}

func NewMonitor(redisClient redis.Cmdable, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Monitor{redis: redisClient, interval: interval}
}

// Start collects until ctx is cancelled.
func (m *Monitor) Start(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.collectLedgerMetrics(ctx)
		}
	}
}

func (m *Monitor) collectLedgerMetrics(ctx context.Context) {
	var cursor uint64
	for {
		keys, next, err := m.redis.Scan(ctx, cursor, LedgerKeyPrefix+"*", 100).Result()
		if err != nil {
			slog.Warn("Failed to scan ledger keys", "error", err)
			return
		}

		for _, key := range keys {
			m.exportTier(ctx, key)
		}

		cursor = next
		if cursor == 0 {
			return
		}
	}
}

func (m *Monitor) exportTier(ctx context.Context, key string) {
	vals, err := m.redis.HMGet(ctx, key, "total", "sold").Result()
	if err != nil || len(vals) != 2 {
		return
	}

	total, ok1 := parseCounter(vals[0])
	sold, ok2 := parseCounter(vals[1])
	if !ok1 || !ok2 {
		return
	}

	tierID := strings.TrimPrefix(key, LedgerKeyPrefix)
	tierAvailable.WithLabelValues(tierID).Set(float64(total - sold))
}

func parseCounter(v any) (int64, bool) {
	s, ok := v.(string)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(s, 10, 64)
	return n, err == nil
}
