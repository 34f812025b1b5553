package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"ticket-inventory/internal/ledger"
	"ticket-inventory/internal/status"
	"ticket-inventory/internal/store"
	"ticket-inventory/internal/token"
	"ticket-inventory/models"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	testEvent = "event-1"
	testTier  = "tier-vip"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type MockPaymentAuthority struct {
	mock.Mock
}

func (m *MockPaymentAuthority) ConfirmPayment(ctx context.Context, paymentRef string) (models.PaymentStatus, error) {
	args := m.Called(ctx, paymentRef)
	return args.Get(0).(models.PaymentStatus), args.Error(1)
}

// flakyStore fails CreateBatch a set number of times before delegating.
type flakyStore struct {
	store.TicketStore
	mu       sync.Mutex
	failures int
	calls    int
}

func (f *flakyStore) CreateBatch(ctx context.Context, tickets []models.Ticket) error {
	f.mu.Lock()
	f.calls++
	fail := f.calls <= f.failures
	f.mu.Unlock()

	if fail {
		return status.ErrStoreUnavailable
	}
	return f.TicketStore.CreateBatch(ctx, tickets)
}

// duplicateStore rejects every batch as already present.
type duplicateStore struct {
	store.TicketStore
	mu    sync.Mutex
	calls int
}

func (d *duplicateStore) CreateBatch(context.Context, []models.Ticket) error {
	d.mu.Lock()
	d.calls++
	d.mu.Unlock()
	return status.ErrDuplicateTicket
}

// downStore fails every read.
type downStore struct {
	store.TicketStore
}

func (downStore) Get(context.Context, string) (*models.Ticket, error) {
	return nil, status.ErrStoreUnavailable
}

// brokenReleaseLedger cannot give capacity back.
type brokenReleaseLedger struct {
	ledger.Ledger
}

func (brokenReleaseLedger) Release(context.Context, string, int64) error {
	return errors.New("connection reset")
}

type fakeNotifier struct {
	scans    chan models.ScanEvent
	payments chan models.PaymentNotification
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{
		scans:    make(chan models.ScanEvent, 64),
		payments: make(chan models.PaymentNotification, 8),
	}
}

func (f *fakeNotifier) NotifyScan(_ context.Context, ev models.ScanEvent) {
	f.scans <- ev
}

func (f *fakeNotifier) NotifyPayment(_ context.Context, n models.PaymentNotification) {
	f.payments <- n
}

func newTestIssuer(t *testing.T) *token.Issuer {
	t.Helper()
	issuer, err := token.NewIssuer(testSecret)
	require.NoError(t, err)
	return issuer
}

func newTestLedger(t *testing.T, capacity int64) *ledger.MemoryLedger {
	t.Helper()
	l := ledger.NewMemoryLedger()
	_, err := l.InitTier(context.Background(), testTier, testEvent, capacity, 0)
	require.NoError(t, err)
	return l
}

func confirmedPayments() *MockPaymentAuthority {
	m := &MockPaymentAuthority{}
	m.On("ConfirmPayment", mock.Anything, mock.Anything).Return(models.PaymentConfirmed, nil)
	return m
}

func testRequest(ref string, qty int) models.ReservationRequest {
	return models.ReservationRequest{
		EventID:                testEvent,
		TierID:                 testTier,
		Quantity:               qty,
		PaymentConfirmationRef: ref,
		OwnerRef:               "user-1",
		HolderNames:            []string{"Anna", "Bounmy"},
	}
}

func testReservationConfig() ReservationConfig {
	return ReservationConfig{
		MaxTicketsPerOrder:  10,
		PersistRetries:      2,
		PersistRetryBackoff: 1,
	}
}
