package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"crossdock/internal/inventory/models"
)

// Store is the persistence port for the reservation subsystem. Stores are
// interface-driven so the transactional service logic can run against
// Postgres in production and the in-memory implementation in unit tests.
//
// All mutating methods honor a transaction placed in the context by WithTx;
// the *ForUpdate variants acquire the record's row lock for the remainder of
// that transaction.
type Store interface {
	// WithTx runs fn inside one transaction. fn observes the transaction
	// through the context it receives; returning an error rolls everything
	// back. Nested calls join the enclosing transaction.
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error

	CreateRecord(ctx context.Context, record *models.InventoryRecord) error
	FindRecord(ctx context.Context, productID, warehouseCode string) (*models.InventoryRecord, error)
	FindRecordForUpdate(ctx context.Context, productID, warehouseCode string) (*models.InventoryRecord, error)
	FindRecordByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.InventoryRecord, error)
	// SaveRecordCounters persists the quantity/reserved counters of a record
	// previously loaded ForUpdate in the same transaction.
	SaveRecordCounters(ctx context.Context, record *models.InventoryRecord) error
	ListRecords(ctx context.Context) ([]models.InventoryRecord, error)

	CreateHold(ctx context.Context, hold *models.ReservationHold) error
	// FindActiveHoldsByShipment returns non-expired holds for a shipment in
	// deterministic (product, warehouse) order so every caller locks records
	// in the same sequence.
	FindActiveHoldsByShipment(ctx context.Context, shipmentRef string, now time.Time) ([]models.ReservationHold, error)
	// FindExpiredHolds returns holds past their deadline, oldest expiry
	// first, capped at limit.
	FindExpiredHolds(ctx context.Context, now time.Time, limit int) ([]models.ReservationHold, error)
	// DeleteHold removes one hold; sentinel.ErrNotFound when it was already
	// gone (lost a race with confirm, release, or the reaper).
	DeleteHold(ctx context.Context, holdID uuid.UUID) error

	AppendLedger(ctx context.Context, entry *models.LedgerEntry) error
	ListLedgerByRecord(ctx context.Context, recordID uuid.UUID, limit int) ([]models.LedgerEntry, error)
}
