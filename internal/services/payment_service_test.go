package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"ticket-inventory/internal/services/bank"
	"ticket-inventory/internal/status"
	"ticket-inventory/models"

	"github.com/go-redis/redismock/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var confirmedAt = time.Date(2026, 3, 1, 19, 0, 0, 0, time.UTC)

type stubBank struct {
	calls int
	tx    *status.Transaction
	err   error
}

func (b *stubBank) Name() bank.ProviderName { return bank.ProviderJDB }

func (b *stubBank) CheckTransaction(_ context.Context, paymentRef string) (*status.Transaction, error) {
	b.calls++
	return b.tx, b.err
}

func (b *stubBank) SetTransactionChannel(chan *status.Transaction) {}

func setupTestPaymentService(provider bank.Provider) (*PaymentService, redismock.ClientMock) {
	db, redisMock := redismock.NewClientMock()
	service := NewPaymentService(db, provider)
	service.now = func() time.Time { return confirmedAt }
	return service, redisMock
}

func expectRecord(redisMock redismock.ClientMock, tx *status.Transaction) {
	redisMock.ExpectHSet("payment:"+tx.UUID,
		"status", "completed",
		"provider", tx.Provider,
		"transaction_id", tx.RefID,
		"amount", tx.Amount.String(),
		"currency", tx.Ccy,
		"completed_at", confirmedAt.Unix(),
	).SetVal(6)
}

func TestPaymentService_ConfirmPayment_FromRedis(t *testing.T) {
	service, redisMock := setupTestPaymentService(nil)

	redisMock.ExpectHGet("payment:pay-1", "status").SetVal("completed")

	st, err := service.ConfirmPayment(context.Background(), "pay-1")

	require.NoError(t, err)
	assert.Equal(t, models.PaymentConfirmed, st)
	assert.NoError(t, redisMock.ExpectationsWereMet())
}

func TestPaymentService_ConfirmPayment_Failed(t *testing.T) {
	b := &stubBank{}
	service, redisMock := setupTestPaymentService(b)

	redisMock.ExpectHGet("payment:pay-1", "status").SetVal("failed")

	st, err := service.ConfirmPayment(context.Background(), "pay-1")

	require.NoError(t, err)
	assert.Equal(t, models.PaymentNotConfirmed, st)
	assert.Equal(t, 0, b.calls, "a recorded failure is final")
}

func TestPaymentService_ConfirmPayment_UnknownWithoutBank(t *testing.T) {
	service, redisMock := setupTestPaymentService(nil)

	redisMock.ExpectHGet("payment:pay-1", "status").RedisNil()

	st, err := service.ConfirmPayment(context.Background(), "pay-1")

	require.NoError(t, err)
	assert.Equal(t, models.PaymentNotConfirmed, st)
}

func TestPaymentService_ConfirmPayment_RedisDown(t *testing.T) {
	service, redisMock := setupTestPaymentService(nil)

	redisMock.ExpectHGet("payment:pay-1", "status").SetErr(errors.New("connection refused"))

	_, err := service.ConfirmPayment(context.Background(), "pay-1")

	assert.ErrorIs(t, err, status.ErrPaymentUnavailable)
}

func TestPaymentService_ConfirmPayment_BankConfirms(t *testing.T) {
	tx := &status.Transaction{
		RefID:    "FT26060012345",
		Ccy:      "LAK",
		Amount:   decimal.NewFromInt(150000),
		Provider: "jdb",
	}
	b := &stubBank{tx: tx}
	service, redisMock := setupTestPaymentService(b)

	redisMock.ExpectHGet("payment:pay-1", "status").RedisNil()
	expectRecord(redisMock, &status.Transaction{UUID: "pay-1", RefID: tx.RefID, Ccy: tx.Ccy, Amount: tx.Amount, Provider: tx.Provider})

	st, err := service.ConfirmPayment(context.Background(), "pay-1")

	require.NoError(t, err)
	assert.Equal(t, models.PaymentConfirmed, st)
	assert.Equal(t, 1, b.calls)
	assert.NoError(t, redisMock.ExpectationsWereMet())
}

func TestPaymentService_ConfirmPayment_BankNotFound(t *testing.T) {
	b := &stubBank{err: status.ErrRefCodeNotFound}
	service, redisMock := setupTestPaymentService(b)

	redisMock.ExpectHGet("payment:pay-1", "status").RedisNil()

	st, err := service.ConfirmPayment(context.Background(), "pay-1")

	require.NoError(t, err)
	assert.Equal(t, models.PaymentNotConfirmed, st)
}

func TestPaymentService_ConfirmPayment_BankDownOpensBreaker(t *testing.T) {
	b := &stubBank{err: errors.New("502 bad gateway")}
	service, redisMock := setupTestPaymentService(b)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		redisMock.ExpectHGet("payment:pay-1", "status").RedisNil()
		_, err := service.ConfirmPayment(ctx, "pay-1")
		assert.ErrorIs(t, err, status.ErrPaymentUnavailable)
	}

	redisMock.ExpectHGet("payment:pay-1", "status").RedisNil()
	_, err := service.ConfirmPayment(ctx, "pay-1")

	assert.ErrorIs(t, err, status.ErrPaymentUnavailable)
	assert.Equal(t, 10, b.calls, "open breaker stops calling the bank")
}

func TestPaymentService_ConfirmPayment_EmptyRef(t *testing.T) {
	service, redisMock := setupTestPaymentService(nil)

	st, err := service.ConfirmPayment(context.Background(), "")

	require.NoError(t, err)
	assert.Equal(t, models.PaymentNotConfirmed, st)
	assert.NoError(t, redisMock.ExpectationsWereMet())
}

func TestPaymentService_RecordConfirmation_Notifies(t *testing.T) {
	service, redisMock := setupTestPaymentService(nil)
	notifier := newFakeNotifier()
	service.SetNotifier(notifier)

	tx := &status.Transaction{UUID: "pay-9", RefID: "FT9", Ccy: "LAK", Amount: decimal.NewFromInt(90000), Provider: "ldb"}
	expectRecord(redisMock, tx)

	require.NoError(t, service.RecordConfirmation(context.Background(), tx))

	select {
	case n := <-notifier.payments:
		assert.Equal(t, "pay-9", n.PaymentRef)
		assert.Equal(t, "success", n.Status)
		assert.True(t, n.Amount.Equal(decimal.NewFromInt(90000)))
	case <-time.After(time.Second):
		t.Fatal("payment notification not sent")
	}
	assert.NoError(t, redisMock.ExpectationsWereMet())
}

func TestPaymentService_RecordConfirmation_RequiresRef(t *testing.T) {
	service, _ := setupTestPaymentService(nil)

	err := service.RecordConfirmation(context.Background(), &status.Transaction{RefID: "FT1"})

	assert.ErrorIs(t, err, status.ErrInvalidRequest)
}

func TestPaymentService_GetPayment(t *testing.T) {
	service, redisMock := setupTestPaymentService(nil)

	redisMock.ExpectHGetAll("payment:pay-1").SetVal(map[string]string{
		"status":         "completed",
		"provider":       "jdb",
		"transaction_id": "FT1",
		"amount":         "150000",
		"currency":       "LAK",
		"completed_at":   "1772391600",
	})

	p, err := service.GetPayment(context.Background(), "pay-1")

	require.NoError(t, err)
	assert.Equal(t, "completed", p.Status)
	assert.Equal(t, "FT1", p.TransactionID)
	assert.True(t, p.Amount.Equal(decimal.NewFromInt(150000)))
	require.NotNil(t, p.CompletedAt)
	assert.Equal(t, int64(1772391600), p.CompletedAt.Unix())
}

func TestPaymentService_GetPayment_NotFound(t *testing.T) {
	service, redisMock := setupTestPaymentService(nil)

	redisMock.ExpectHGetAll("payment:missing").SetVal(map[string]string{})

	_, err := service.GetPayment(context.Background(), "missing")

	assert.ErrorIs(t, err, status.ErrRefCodeNotFound)
}

func TestPaymentService_ConsumeTransactions(t *testing.T) {
	service, redisMock := setupTestPaymentService(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tx := &status.Transaction{UUID: "pay-2", RefID: "FT2", Ccy: "LAK", Amount: decimal.NewFromInt(1000), Provider: "jdb"}
	expectRecord(redisMock, tx)

	ch := make(chan *status.Transaction)
	done := make(chan struct{})
	go func() {
		defer close(done)
		service.ConsumeTransactions(ctx, ch)
	}()

	ch <- tx
	ch <- nil

	assert.NoError(t, redisMock.ExpectationsWereMet())

	cancel()
	<-done
}
