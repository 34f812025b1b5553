package security

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 1, 19, 30, 0, 0, time.UTC)

func newEvent(req *http.Request) (*core.RequestEvent, *httptest.ResponseRecorder) {
	rec := httptest.NewRecorder()
	return &core.RequestEvent{Event: router.Event{Request: req, Response: rec}}, rec
}

func setupLimiter(limit int) (*RateLimiter, redismock.ClientMock) {
	db, mock := redismock.NewClientMock()
	r := NewRateLimiter(db, limit)
	r.now = func() time.Time { return fixedNow }
	return r, mock
}

func gateRequest(gateID string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/gates/"+gateID+"/scan", nil)
	req.SetPathValue("gateID", gateID)
	return req
}

func TestGateRateLimit_AllowsUnderLimit(t *testing.T) {
	r, mock := setupLimiter(2)
	key := "ratelimit:gate:north-1:" + itoa(fixedNow.Unix()/60)

	mock.ExpectIncr(key).SetVal(1)
	mock.ExpectExpire(key, time.Minute).SetVal(true)

	e, rec := newEvent(gateRequest("north-1"))
	err := r.GateRateLimit()(e)

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGateRateLimit_RejectsOverLimit(t *testing.T) {
	r, mock := setupLimiter(2)
	key := "ratelimit:gate:north-1:" + itoa(fixedNow.Unix()/60)

	mock.ExpectIncr(key).SetVal(3)

	e, rec := newEvent(gateRequest("north-1"))
	err := r.GateRateLimit()(e)

	require.NoError(t, err)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGateRateLimit_FailsOpen(t *testing.T) {
	r, mock := setupLimiter(2)
	key := "ratelimit:gate:north-1:" + itoa(fixedNow.Unix()/60)

	mock.ExpectIncr(key).SetErr(errors.New("connection refused"))

	e, rec := newEvent(gateRequest("north-1"))
	err := r.GateRateLimit()(e)

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGateRateLimit_Disabled(t *testing.T) {
	r, mock := setupLimiter(0)

	e, rec := newEvent(gateRequest("north-1"))
	require.NoError(t, r.GateRateLimit()(e))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet(), "no redis calls when disabled")
}

func TestAntiBot_SuspiciousUserAgent(t *testing.T) {
	r, mock := setupLimiter(10)

	req := httptest.NewRequest(http.MethodPost, "/api/reservations", nil)
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; Googlebot/2.1)")

	e, rec := newEvent(req)
	require.NoError(t, r.AntiBotMiddleware()(e))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAntiBot_FrequencyLimit(t *testing.T) {
	r, mock := setupLimiter(10)

	req := httptest.NewRequest(http.MethodPost, "/api/reservations", nil)
	req.RemoteAddr = "203.0.113.7:5555"
	req.Header.Set("User-Agent", "Mozilla/5.0")

	mock.ExpectIncr("antibot:203.0.113.7").SetVal(antiBotLimit + 1)

	e, rec := newEvent(req)
	require.NoError(t, r.AntiBotMiddleware()(e))

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsSuspiciousUserAgent(t *testing.T) {
	r := &RateLimiter{}

	assert.True(t, r.isSuspiciousUserAgent("SomeCrawler/1.0"))
	assert.True(t, r.isSuspiciousUserAgent("python-scraper"))
	assert.False(t, r.isSuspiciousUserAgent("GateScanner/2.3 (Android)"))
}

func TestRequireGateKey(t *testing.T) {
	mw := RequireGateKey("s3cret")

	req := gateRequest("north-1")
	e, rec := newEvent(req)
	require.NoError(t, mw(e))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = gateRequest("north-1")
	req.Header.Set(GateKeyHeader, "s3cret")
	e, rec = newEvent(req)
	require.NoError(t, mw(e))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireGateKey_EmptyKeyDisablesCheck(t *testing.T) {
	e, rec := newEvent(gateRequest("north-1"))
	require.NoError(t, RequireGateKey("")(e))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
