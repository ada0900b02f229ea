package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crossdock/internal/inventory/models"
	"crossdock/internal/inventory/service"
	"crossdock/internal/inventory/store"
	dErrors "crossdock/pkg/domain-errors"
	"crossdock/pkg/requestcontext"
)

func newFixture(t *testing.T, opts ...service.Option) (*service.Service, *store.InMemoryStore) {
	t.Helper()
	st := store.NewInMemory()
	return service.New(st, opts...), st
}

func seed(t *testing.T, st *store.InMemoryStore, productID, warehouseCode string, quantity int) *models.InventoryRecord {
	t.Helper()
	now := time.Now().UTC()
	record := &models.InventoryRecord{
		ID:            uuid.New(),
		ProductID:     productID,
		WarehouseCode: warehouseCode,
		Quantity:      quantity,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	require.NoError(t, st.CreateRecord(context.Background(), record))
	return record
}

func mustRecord(t *testing.T, st *store.InMemoryStore, productID, warehouseCode string) *models.InventoryRecord {
	t.Helper()
	record, err := st.FindRecord(context.Background(), productID, warehouseCode)
	require.NoError(t, err)
	return record
}

func TestReserve(t *testing.T) {
	ctx := context.Background()

	t.Run("sequence of reserves against one record", func(t *testing.T) {
		svc, st := newFixture(t)
		seed(t, st, "P1", "W1", 100)

		hold, err := svc.Reserve(ctx, service.ReserveInput{
			ProductID: "P1", WarehouseCode: "W1", ShipmentRef: "S1", Quantity: 30,
		})
		require.NoError(t, err)
		assert.Equal(t, 30, hold.Quantity)
		assert.Equal(t, 70, mustRecord(t, st, "P1", "W1").AvailableQuantity())

		_, err = svc.Reserve(ctx, service.ReserveInput{
			ProductID: "P1", WarehouseCode: "W1", ShipmentRef: "S2", Quantity: 80,
		})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInsufficientStock))
		assert.Equal(t, 70, mustRecord(t, st, "P1", "W1").AvailableQuantity())

		_, err = svc.Reserve(ctx, service.ReserveInput{
			ProductID: "P1", WarehouseCode: "W1", ShipmentRef: "S3", Quantity: 70,
		})
		require.NoError(t, err)
		assert.Equal(t, 0, mustRecord(t, st, "P1", "W1").AvailableQuantity())
	})

	t.Run("unknown record", func(t *testing.T) {
		svc, _ := newFixture(t)
		_, err := svc.Reserve(ctx, service.ReserveInput{
			ProductID: "NOPE", WarehouseCode: "W1", ShipmentRef: "S1", Quantity: 1,
		})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	t.Run("validation", func(t *testing.T) {
		svc, st := newFixture(t)
		seed(t, st, "P1", "W1", 100)

		_, err := svc.Reserve(ctx, service.ReserveInput{
			ProductID: "P1", WarehouseCode: "W1", ShipmentRef: "S1", Quantity: 0,
		})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

		_, err = svc.Reserve(ctx, service.ReserveInput{
			ProductID: "P1", WarehouseCode: "W1", Quantity: 5,
		})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("hold ttl and ledger entry", func(t *testing.T) {
		svc, st := newFixture(t, service.WithHoldTTL(10*time.Minute))
		record := seed(t, st, "P1", "W1", 100)

		now := time.Now().UTC()
		actor := "user-7"
		reqCtx := requestcontext.WithTime(requestcontext.WithActorID(ctx, actor), now)

		hold, err := svc.Reserve(reqCtx, service.ReserveInput{
			ProductID: "P1", WarehouseCode: "W1", ShipmentRef: "S1", Quantity: 20,
		})
		require.NoError(t, err)
		assert.Equal(t, now.Add(10*time.Minute), hold.ExpiresAt)

		entries, err := st.ListLedgerByRecord(ctx, record.ID, 10)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		entry := entries[0]
		assert.Equal(t, models.LedgerKindReservation, entry.Kind)
		assert.Equal(t, -20, entry.QuantityDelta)
		assert.Equal(t, 100, entry.QuantityBefore, "total quantity is untouched by a reservation")
		assert.Equal(t, 100, entry.QuantityAfter)
		assert.Equal(t, models.ReferenceKindShipment, entry.ReferenceKind)
		assert.Equal(t, "S1", entry.ReferenceID)
		require.NotNil(t, entry.Actor)
		assert.Equal(t, actor, *entry.Actor)
	})
}

func TestReserveConcurrentNoOversell(t *testing.T) {
	ctx := context.Background()
	svc, st := newFixture(t)
	seed(t, st, "P1", "W1", 100)

	const workers = 50
	const quantityEach = 10

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Reserve(ctx, service.ReserveInput{
				ProductID:     "P1",
				WarehouseCode: "W1",
				ShipmentRef:   "S" + uuid.NewString(),
				Quantity:      quantityEach,
			})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			} else {
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInsufficientStock))
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 10, succeeded, "exactly 100 units can be reserved")
	record := mustRecord(t, st, "P1", "W1")
	assert.Equal(t, 100, record.ReservedQuantity)
	assert.Equal(t, 0, record.AvailableQuantity())
}

func TestConfirm(t *testing.T) {
	ctx := context.Background()

	t.Run("converts hold into permanent decrement", func(t *testing.T) {
		svc, st := newFixture(t)
		record := seed(t, st, "P1", "W1", 100)

		_, err := svc.Reserve(ctx, service.ReserveInput{
			ProductID: "P1", WarehouseCode: "W1", ShipmentRef: "S1", Quantity: 20,
		})
		require.NoError(t, err)

		confirmed, err := svc.Confirm(ctx, "S1")
		require.NoError(t, err)
		assert.Equal(t, 1, confirmed)

		after := mustRecord(t, st, "P1", "W1")
		assert.Equal(t, 80, after.Quantity)
		assert.Equal(t, 0, after.ReservedQuantity)

		holds, err := st.FindActiveHoldsByShipment(ctx, "S1", time.Now())
		require.NoError(t, err)
		assert.Empty(t, holds)

		entries, err := st.ListLedgerByRecord(ctx, record.ID, 10)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		var stockOut *models.LedgerEntry
		for i := range entries {
			if entries[i].Kind == models.LedgerKindStockOut {
				stockOut = &entries[i]
			}
		}
		require.NotNil(t, stockOut)
		assert.Equal(t, -20, stockOut.QuantityDelta)
		assert.Equal(t, 100, stockOut.QuantityBefore)
		assert.Equal(t, 80, stockOut.QuantityAfter)
	})

	t.Run("no active holds is an error", func(t *testing.T) {
		svc, st := newFixture(t)
		seed(t, st, "P1", "W1", 100)

		_, err := svc.Confirm(ctx, "S-UNKNOWN")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	t.Run("expired holds are not confirmable", func(t *testing.T) {
		svc, st := newFixture(t, service.WithHoldTTL(time.Minute))
		seed(t, st, "P1", "W1", 100)

		created := time.Now().UTC().Add(-time.Hour)
		_, err := svc.Reserve(requestcontext.WithTime(ctx, created), service.ReserveInput{
			ProductID: "P1", WarehouseCode: "W1", ShipmentRef: "S1", Quantity: 20,
		})
		require.NoError(t, err)

		_, err = svc.Confirm(ctx, "S1")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	t.Run("multiple holds settle in one call", func(t *testing.T) {
		svc, st := newFixture(t)
		seed(t, st, "P1", "W1", 100)
		seed(t, st, "P2", "W2", 50)

		_, err := svc.ReserveBatch(ctx, "S1", []service.BatchItem{
			{ProductID: "P1", WarehouseCode: "W1", Quantity: 10},
			{ProductID: "P2", WarehouseCode: "W2", Quantity: 5},
		})
		require.NoError(t, err)

		confirmed, err := svc.Confirm(ctx, "S1")
		require.NoError(t, err)
		assert.Equal(t, 2, confirmed)
		assert.Equal(t, 90, mustRecord(t, st, "P1", "W1").Quantity)
		assert.Equal(t, 45, mustRecord(t, st, "P2", "W2").Quantity)
	})
}

func TestRelease(t *testing.T) {
	ctx := context.Background()

	t.Run("returns reserved units", func(t *testing.T) {
		svc, st := newFixture(t)
		record := seed(t, st, "P1", "W1", 100)

		_, err := svc.Reserve(ctx, service.ReserveInput{
			ProductID: "P1", WarehouseCode: "W1", ShipmentRef: "S1", Quantity: 20,
		})
		require.NoError(t, err)

		released, err := svc.Release(ctx, "S1")
		require.NoError(t, err)
		assert.Equal(t, 1, released)

		after := mustRecord(t, st, "P1", "W1")
		assert.Equal(t, 100, after.Quantity, "release never touches the total")
		assert.Equal(t, 0, after.ReservedQuantity)

		entries, err := st.ListLedgerByRecord(ctx, record.ID, 10)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		var release *models.LedgerEntry
		for i := range entries {
			if entries[i].Kind == models.LedgerKindRelease {
				release = &entries[i]
			}
		}
		require.NotNil(t, release)
		assert.Equal(t, 20, release.QuantityDelta)
	})

	t.Run("idempotent", func(t *testing.T) {
		svc, st := newFixture(t)
		seed(t, st, "P1", "W1", 100)

		_, err := svc.Reserve(ctx, service.ReserveInput{
			ProductID: "P1", WarehouseCode: "W1", ShipmentRef: "S1", Quantity: 20,
		})
		require.NoError(t, err)

		released, err := svc.Release(ctx, "S1")
		require.NoError(t, err)
		assert.Equal(t, 1, released)

		released, err = svc.Release(ctx, "S1")
		require.NoError(t, err)
		assert.Equal(t, 0, released, "second release is a no-op")
		assert.Equal(t, 0, mustRecord(t, st, "P1", "W1").ReservedQuantity)
	})

	t.Run("unknown shipment is a no-op", func(t *testing.T) {
		svc, st := newFixture(t)
		seed(t, st, "P1", "W1", 100)

		released, err := svc.Release(ctx, "S-UNKNOWN")
		require.NoError(t, err)
		assert.Equal(t, 0, released)
	})
}

func TestReserveBatch(t *testing.T) {
	ctx := context.Background()

	t.Run("all or nothing on insufficient stock", func(t *testing.T) {
		svc, st := newFixture(t)
		seed(t, st, "P1", "W1", 100)
		seed(t, st, "P2", "W1", 5)

		_, err := svc.ReserveBatch(ctx, "S1", []service.BatchItem{
			{ProductID: "P1", WarehouseCode: "W1", Quantity: 10},
			{ProductID: "P2", WarehouseCode: "W1", Quantity: 999999},
		})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInsufficientStock))

		assert.Equal(t, 0, mustRecord(t, st, "P1", "W1").ReservedQuantity, "no partial reservation")
		assert.Equal(t, 0, mustRecord(t, st, "P2", "W1").ReservedQuantity)
	})

	t.Run("success creates one hold and ledger entry per item", func(t *testing.T) {
		svc, st := newFixture(t)
		r1 := seed(t, st, "P1", "W1", 100)
		r2 := seed(t, st, "P2", "W1", 50)

		holds, err := svc.ReserveBatch(ctx, "S1", []service.BatchItem{
			{ProductID: "P2", WarehouseCode: "W1", Quantity: 5},
			{ProductID: "P1", WarehouseCode: "W1", Quantity: 10},
		})
		require.NoError(t, err)
		require.Len(t, holds, 2)

		assert.Equal(t, 10, mustRecord(t, st, "P1", "W1").ReservedQuantity)
		assert.Equal(t, 5, mustRecord(t, st, "P2", "W1").ReservedQuantity)

		for _, record := range []*models.InventoryRecord{r1, r2} {
			entries, err := st.ListLedgerByRecord(ctx, record.ID, 10)
			require.NoError(t, err)
			require.Len(t, entries, 1)
			assert.Equal(t, models.LedgerKindReservation, entries[0].Kind)
			assert.Equal(t, record.Quantity, entries[0].QuantityBefore, "real totals, not placeholders")
			assert.Equal(t, record.Quantity, entries[0].QuantityAfter)
		}
	})

	t.Run("repeated item accumulates against availability", func(t *testing.T) {
		svc, st := newFixture(t)
		seed(t, st, "P1", "W1", 15)

		_, err := svc.ReserveBatch(ctx, "S1", []service.BatchItem{
			{ProductID: "P1", WarehouseCode: "W1", Quantity: 10},
			{ProductID: "P1", WarehouseCode: "W1", Quantity: 10},
		})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInsufficientStock))
		assert.Equal(t, 0, mustRecord(t, st, "P1", "W1").ReservedQuantity)
	})

	t.Run("validation", func(t *testing.T) {
		svc, _ := newFixture(t)

		_, err := svc.ReserveBatch(ctx, "S1", nil)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

		_, err = svc.ReserveBatch(ctx, "", []service.BatchItem{
			{ProductID: "P1", WarehouseCode: "W1", Quantity: 1},
		})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func TestReapExpiredHold(t *testing.T) {
	ctx := context.Background()

	t.Run("restores reserved counter with a system ledger entry", func(t *testing.T) {
		svc, st := newFixture(t, service.WithHoldTTL(30*time.Minute))
		record := seed(t, st, "P1", "W1", 100)

		created := time.Now().UTC().Add(-time.Hour)
		_, err := svc.Reserve(requestcontext.WithTime(ctx, created), service.ReserveInput{
			ProductID: "P1", WarehouseCode: "W1", ShipmentRef: "S2", Quantity: 15,
		})
		require.NoError(t, err)
		assert.Equal(t, 15, mustRecord(t, st, "P1", "W1").ReservedQuantity)

		expired, err := svc.ExpiredHolds(ctx, 10)
		require.NoError(t, err)
		require.Len(t, expired, 1)

		reaped, err := svc.ReapExpiredHold(ctx, expired[0])
		require.NoError(t, err)
		assert.True(t, reaped)
		assert.Equal(t, 0, mustRecord(t, st, "P1", "W1").ReservedQuantity)

		entries, err := st.ListLedgerByRecord(ctx, record.ID, 10)
		require.NoError(t, err)
		var release *models.LedgerEntry
		for i := range entries {
			if entries[i].Kind == models.LedgerKindRelease {
				release = &entries[i]
			}
		}
		require.NotNil(t, release)
		assert.Nil(t, release.Actor, "reaper mutations carry no actor")
		assert.Equal(t, 15, release.QuantityDelta)
	})

	t.Run("hold already settled is a no-op", func(t *testing.T) {
		svc, st := newFixture(t)
		seed(t, st, "P1", "W1", 100)

		created := time.Now().UTC().Add(-time.Hour)
		_, err := svc.Reserve(requestcontext.WithTime(ctx, created), service.ReserveInput{
			ProductID: "P1", WarehouseCode: "W1", ShipmentRef: "S1", Quantity: 15,
		})
		require.NoError(t, err)

		expired, err := svc.ExpiredHolds(ctx, 10)
		require.NoError(t, err)
		require.Len(t, expired, 1)

		reaped, err := svc.ReapExpiredHold(ctx, expired[0])
		require.NoError(t, err)
		assert.True(t, reaped)

		// Second reap of the same hold finds nothing to do.
		reaped, err = svc.ReapExpiredHold(ctx, expired[0])
		require.NoError(t, err)
		assert.False(t, reaped)
		assert.Equal(t, 0, mustRecord(t, st, "P1", "W1").ReservedQuantity, "no double release")
	})
}
