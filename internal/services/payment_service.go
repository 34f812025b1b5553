package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"ticket-inventory/internal/services/bank"
	"ticket-inventory/internal/status"
	"ticket-inventory/models"
	"ticket-inventory/utils"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const (
	paymentCompleted = "completed"
	paymentFailed    = "failed"
)

// PaymentAuthority answers whether funds behind a payment reference were captured.
type PaymentAuthority interface {
	ConfirmPayment(ctx context.Context, paymentRef string) (models.PaymentStatus, error)
}

type PaymentService struct {
	Redis    redis.Cmdable
	bank     bank.Provider
	breaker  *utils.CircuitBreaker
	notifier Notifier
	now      func() time.Time
}

// NewPaymentService builds the payment authority. provider may be nil, in
// which case only confirmations already recorded in Redis count.
func NewPaymentService(redisClient redis.Cmdable, provider bank.Provider) *PaymentService {
	name := "bank"
	if provider != nil {
		name = "bank-" + string(provider.Name())
	}

	return &PaymentService{
		Redis: redisClient,
		bank:  provider,
		breaker: utils.NewCircuitBreakerWithSettings(name, utils.Settings{
			IsSuccessful: func(err error) bool {
				return err == nil ||
					errors.Is(err, status.ErrRefCodeNotFound) ||
					errors.Is(err, status.ErrFailedPayment)
			},
		}),
		now: time.Now,
	}
}

func (s *PaymentService) SetNotifier(n Notifier) {
	s.notifier = n
}

func paymentKey(ref string) string {
	return fmt.Sprintf("payment:%s", ref)
}

func (s *PaymentService) ConfirmPayment(ctx context.Context, paymentRef string) (models.PaymentStatus, error) {
	if paymentRef == "" {
		return models.PaymentNotConfirmed, nil
	}

	st, err := s.Redis.HGet(ctx, paymentKey(paymentRef), "status").Result()
	switch {
	case err == nil && st == paymentCompleted:
		return models.PaymentConfirmed, nil
	case err == nil && st == paymentFailed:
		return models.PaymentNotConfirmed, nil
	case err != nil && !errors.Is(err, redis.Nil):
		return "", fmt.Errorf("%w: %v", status.ErrPaymentUnavailable, err)
	}

	if s.bank == nil {
		return models.PaymentNotConfirmed, nil
	}

	result, err := s.breaker.Execute(ctx, func() (any, error) {
		return s.bank.CheckTransaction(ctx, paymentRef)
	})
	switch {
	case errors.Is(err, status.ErrRefCodeNotFound), errors.Is(err, status.ErrFailedPayment):
		return models.PaymentNotConfirmed, nil
	case err != nil:
		return "", fmt.Errorf("%w: %v", status.ErrPaymentUnavailable, err)
	}

	tx, ok := result.(*status.Transaction)
	if !ok || tx == nil {
		return models.PaymentNotConfirmed, nil
	}
	if tx.UUID == "" {
		tx.UUID = paymentRef
	}
	if err := s.RecordConfirmation(ctx, tx); err != nil {
		// the bank already confirmed; caching the answer is best effort
		slog.Warn("failed to cache payment confirmation", "payment_ref", paymentRef, "error", err)
	}

	return models.PaymentConfirmed, nil
}

// RecordConfirmation stores a captured-funds record for tx.UUID.
func (s *PaymentService) RecordConfirmation(ctx context.Context, tx *status.Transaction) error {
	if tx == nil || tx.UUID == "" {
		return fmt.Errorf("%w: transaction without payment reference", status.ErrInvalidRequest)
	}

	completedAt := tx.CreatedAt
	if completedAt.IsZero() {
		completedAt = s.now()
	}

	err := s.Redis.HSet(ctx, paymentKey(tx.UUID),
		"status", paymentCompleted,
		"provider", tx.Provider,
		"transaction_id", tx.RefID,
		"amount", tx.Amount.String(),
		"currency", tx.Ccy,
		"completed_at", completedAt.Unix(),
	).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", status.ErrPaymentUnavailable, err)
	}

	slog.Info("Payment confirmed", "payment_ref", tx.UUID, "provider", tx.Provider, "transaction_id", tx.RefID)

	if s.notifier != nil {
		go s.notifier.NotifyPayment(context.WithoutCancel(ctx), models.PaymentNotification{
			PaymentRef:    tx.UUID,
			Status:        "success",
			TransactionID: tx.RefID,
			Amount:        tx.Amount,
			Timestamp:     completedAt,
		})
	}
	return nil
}

// GetPayment returns the stored record for paymentRef.
func (s *PaymentService) GetPayment(ctx context.Context, paymentRef string) (*models.Payment, error) {
	data, err := s.Redis.HGetAll(ctx, paymentKey(paymentRef)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", status.ErrPaymentUnavailable, err)
	}
	if len(data) == 0 {
		return nil, status.ErrRefCodeNotFound
	}

	p := &models.Payment{
		Ref:           paymentRef,
		Status:        data["status"],
		Provider:      data["provider"],
		TransactionID: data["transaction_id"],
		Currency:      data["currency"],
	}
	if amount, err := decimal.NewFromString(data["amount"]); err == nil {
		p.Amount = amount
	}
	if ts, err := strconv.ParseInt(data["completed_at"], 10, 64); err == nil {
		t := time.Unix(ts, 0).UTC()
		p.CompletedAt = &t
	}

	return p, nil
}

// ConsumeTransactions records every transaction pushed by the bank until ctx ends.
func (s *PaymentService) ConsumeTransactions(ctx context.Context, ch <-chan *status.Transaction) {
	for {
		select {
		case <-ctx.Done():
			return
		case tx := <-ch:
			if tx == nil {
				continue
			}
			if err := s.RecordConfirmation(ctx, tx); err != nil {
				slog.Error("failed to record bank transaction", "ref_id", tx.RefID, "uuid", tx.UUID, "error", err)
			}
		}
	}
}
