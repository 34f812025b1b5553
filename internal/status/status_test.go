package status

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsExpected(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"payment not confirmed", ErrPaymentNotConfirmed, true},
		{"wrapped malformed token", fmt.Errorf("verify: %w", ErrMalformedToken), true},
		{"insufficient inventory", &InsufficientInventoryError{TierID: "t1", Remaining: 0}, true},
		{"capacity error", fmt.Errorf("reserve: %w", &CapacityError{TierID: "t1", Requested: 2, Remaining: 1}), true},
		{"ledger underflow", ErrLedgerUnderflow, false},
		{"persist failed", ErrPersistFailed, false},
		{"unknown", errors.New("connection refused"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsExpected(tt.err))
		})
	}
}

func TestInsufficientInventoryError_Message(t *testing.T) {
	err := &InsufficientInventoryError{TierID: "vip", Remaining: 3}
	assert.Contains(t, err.Error(), "remaining=3")

	var target *InsufficientInventoryError
	assert.True(t, errors.As(fmt.Errorf("checkout: %w", err), &target))
	assert.Equal(t, int64(3), target.Remaining)
}
