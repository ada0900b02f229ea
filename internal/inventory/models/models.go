package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	dErrors "crossdock/pkg/domain-errors"
)

// InventoryRecord is the aggregate root for stock of one product in one
// warehouse.
//
// Invariants:
//   - 0 <= ReservedQuantity <= Quantity at all times
//   - AvailableQuantity is always derived, never stored
//   - mutated only inside a transaction holding the record's row lock
//
// The row lock is the sole synchronization primitive: correctness must hold
// across multiple server processes sharing one database, so no in-process
// mutex or cache of record state is allowed.
type InventoryRecord struct {
	ID               uuid.UUID `json:"id"`
	ProductID        string    `json:"product_id"`
	WarehouseCode    string    `json:"warehouse_code"`
	Quantity         int       `json:"quantity"`
	ReservedQuantity int       `json:"reserved_quantity"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// AvailableQuantity is the ceiling for new reservations.
func (r *InventoryRecord) AvailableQuantity() int {
	return r.Quantity - r.ReservedQuantity
}

// CanReserve checks whether qty units can be held right now. Call under the
// record's row lock; the answer is stale otherwise.
func (r *InventoryRecord) CanReserve(qty int) error {
	if qty <= 0 {
		return dErrors.New(dErrors.CodeValidation, "quantity must be positive")
	}
	if available := r.AvailableQuantity(); available < qty {
		return &InsufficientStockError{
			ProductID:     r.ProductID,
			WarehouseCode: r.WarehouseCode,
			Available:     available,
			Requested:     qty,
		}
	}
	return nil
}

// ApplyReserve moves qty units into the reserved counter. The trailing
// invariant recheck guards against a decoupled check-then-mutate; tripping it
// means the lock discipline is broken somewhere.
func (r *InventoryRecord) ApplyReserve(qty int, now time.Time) error {
	r.ReservedQuantity += qty
	if r.ReservedQuantity > r.Quantity {
		return dErrors.Newf(dErrors.CodeInvariantViolation,
			"reserved quantity %d exceeds total %d for %s/%s",
			r.ReservedQuantity, r.Quantity, r.ProductID, r.WarehouseCode)
	}
	r.UpdatedAt = now
	return nil
}

// ApplyRelease returns qty units from reserved to available, flooring at zero
// as a defensive invariant guard.
func (r *InventoryRecord) ApplyRelease(qty int, now time.Time) {
	r.ReservedQuantity -= qty
	if r.ReservedQuantity < 0 {
		r.ReservedQuantity = 0
	}
	r.UpdatedAt = now
}

// ApplyStockOut converts a hold into a permanent stock decrement: both the
// total and the reserved counter drop by qty.
func (r *InventoryRecord) ApplyStockOut(qty int, now time.Time) error {
	if r.Quantity < qty || r.ReservedQuantity < qty {
		return dErrors.Newf(dErrors.CodeInvariantViolation,
			"stock out of %d would drive counters negative (quantity=%d reserved=%d) for %s/%s",
			qty, r.Quantity, r.ReservedQuantity, r.ProductID, r.WarehouseCode)
	}
	r.Quantity -= qty
	r.ReservedQuantity -= qty
	r.UpdatedAt = now
	return nil
}

// ReservationHold is a time-boxed claim on stock, pending confirmation or
// release. Each hold ends in exactly one of three ways — confirm, release, or
// reaper reclamation — and every ending adjusts the owning record's reserved
// counter by the hold's quantity.
type ReservationHold struct {
	ID                uuid.UUID `json:"id"`
	InventoryRecordID uuid.UUID `json:"inventory_record_id"`
	ProductID         string    `json:"product_id"`
	WarehouseCode     string    `json:"warehouse_code"`
	ShipmentRef       string    `json:"shipment_ref"`
	Quantity          int       `json:"quantity"`
	CreatedAt         time.Time `json:"created_at"`
	ExpiresAt         time.Time `json:"expires_at"`
}

// NewHold constructs a hold against a record with expiry now+ttl.
func NewHold(record *InventoryRecord, shipmentRef string, qty int, now time.Time, ttl time.Duration) *ReservationHold {
	return &ReservationHold{
		ID:                uuid.New(),
		InventoryRecordID: record.ID,
		ProductID:         record.ProductID,
		WarehouseCode:     record.WarehouseCode,
		ShipmentRef:       shipmentRef,
		Quantity:          qty,
		CreatedAt:         now,
		ExpiresAt:         now.Add(ttl),
	}
}

// Expired reports whether the hold is past its deadline and eligible for
// reaping.
func (h *ReservationHold) Expired(now time.Time) bool {
	return !h.ExpiresAt.After(now)
}

// LedgerKind classifies a quantity mutation in the audit ledger.
type LedgerKind string

const (
	LedgerKindReservation LedgerKind = "reservation"
	LedgerKindRelease     LedgerKind = "release"
	LedgerKindStockOut    LedgerKind = "stock_out"
)

// Reference kinds for ledger entries.
const (
	ReferenceKindShipment = "shipment"
	ReferenceKindHold     = "reservation_hold"
)

// LedgerEntry is one immutable audit row. Written in the same transaction as
// the mutation it records, so the trail can never diverge from actual state.
// Actor is nil for system-initiated mutations (expiry reaping).
type LedgerEntry struct {
	ID                uuid.UUID  `json:"id"`
	InventoryRecordID uuid.UUID  `json:"inventory_record_id"`
	ProductID         string     `json:"product_id"`
	Kind              LedgerKind `json:"kind"`
	QuantityDelta     int        `json:"quantity_delta"`
	QuantityBefore    int        `json:"quantity_before"`
	QuantityAfter     int        `json:"quantity_after"`
	ReferenceKind     string     `json:"reference_kind"`
	ReferenceID       string     `json:"reference_id"`
	Note              string     `json:"note"`
	Actor             *string    `json:"actor,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

// InsufficientStockError names the item whose availability check failed, so
// batch callers can surface which line aborted the whole reservation.
type InsufficientStockError struct {
	ProductID     string
	WarehouseCode string
	Available     int
	Requested     int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s/%s: available %d, requested %d",
		e.ProductID, e.WarehouseCode, e.Available, e.Requested)
}
