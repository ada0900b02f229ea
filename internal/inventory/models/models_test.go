package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "crossdock/pkg/domain-errors"
)

func newRecord(quantity, reserved int) *InventoryRecord {
	return &InventoryRecord{
		ProductID:        "P1",
		WarehouseCode:    "W1",
		Quantity:         quantity,
		ReservedQuantity: reserved,
	}
}

func TestAvailableQuantity(t *testing.T) {
	assert.Equal(t, 70, newRecord(100, 30).AvailableQuantity())
	assert.Equal(t, 0, newRecord(50, 50).AvailableQuantity())
}

func TestCanReserve(t *testing.T) {
	t.Run("succeeds within availability", func(t *testing.T) {
		assert.NoError(t, newRecord(100, 30).CanReserve(70))
	})

	t.Run("rejects non-positive quantity", func(t *testing.T) {
		err := newRecord(100, 0).CanReserve(0)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("reports availability on insufficient stock", func(t *testing.T) {
		err := newRecord(100, 30).CanReserve(71)
		var insufficient *InsufficientStockError
		require.ErrorAs(t, err, &insufficient)
		assert.Equal(t, 70, insufficient.Available)
		assert.Equal(t, 71, insufficient.Requested)
		assert.Equal(t, "P1", insufficient.ProductID)
	})
}

func TestApplyReserve(t *testing.T) {
	now := time.Now().UTC()

	t.Run("moves units into reserved", func(t *testing.T) {
		r := newRecord(100, 30)
		require.NoError(t, r.ApplyReserve(20, now))
		assert.Equal(t, 50, r.ReservedQuantity)
		assert.Equal(t, 100, r.Quantity)
		assert.Equal(t, now, r.UpdatedAt)
	})

	t.Run("flags reserved exceeding total", func(t *testing.T) {
		r := newRecord(100, 90)
		err := r.ApplyReserve(20, now)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})
}

func TestApplyRelease(t *testing.T) {
	now := time.Now().UTC()

	r := newRecord(100, 30)
	r.ApplyRelease(20, now)
	assert.Equal(t, 10, r.ReservedQuantity)

	// Over-release floors at zero instead of going negative.
	r.ApplyRelease(50, now)
	assert.Equal(t, 0, r.ReservedQuantity)
}

func TestApplyStockOut(t *testing.T) {
	now := time.Now().UTC()

	t.Run("decrements both counters", func(t *testing.T) {
		r := newRecord(100, 30)
		require.NoError(t, r.ApplyStockOut(20, now))
		assert.Equal(t, 80, r.Quantity)
		assert.Equal(t, 10, r.ReservedQuantity)
	})

	t.Run("refuses to drive counters negative", func(t *testing.T) {
		r := newRecord(100, 10)
		err := r.ApplyStockOut(20, now)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
		assert.Equal(t, 100, r.Quantity)
		assert.Equal(t, 10, r.ReservedQuantity)
	})
}

func TestHoldExpiry(t *testing.T) {
	now := time.Now().UTC()
	record := newRecord(100, 0)

	hold := NewHold(record, "S1", 15, now, 30*time.Minute)
	assert.Equal(t, now.Add(30*time.Minute), hold.ExpiresAt)
	assert.False(t, hold.Expired(now))
	assert.False(t, hold.Expired(now.Add(29*time.Minute)))
	assert.True(t, hold.Expired(now.Add(30*time.Minute)))
	assert.True(t, hold.Expired(now.Add(31*time.Minute)))
}
