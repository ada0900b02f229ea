package store

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"crossdock/internal/inventory/models"
	"crossdock/pkg/platform/sentinel"
)

// InMemoryStore keeps the reservation logic testable without a database. A
// coarse lock held for the whole transaction stands in for row-level locking:
// stricter serialization than Postgres, but the same invariants observable
// from outside. Clarity is favored over performance throughout.
type InMemoryStore struct {
	mu      chanMutex
	records map[uuid.UUID]*models.InventoryRecord
	byKey   map[recordKey]uuid.UUID
	holds   map[uuid.UUID]*models.ReservationHold
	ledger  []models.LedgerEntry
}

var _ Store = (*InMemoryStore)(nil)

type recordKey struct {
	productID     string
	warehouseCode string
}

// chanMutex is a mutex that can be acquired with context cancellation,
// mirroring how a database transaction gives up waiting for a row lock.
type chanMutex chan struct{}

func (m chanMutex) lock(ctx context.Context) error {
	select {
	case m <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m chanMutex) unlock() {
	<-m
}

type memTxKey struct{}

func inMemTx(ctx context.Context) bool {
	_, ok := ctx.Value(memTxKey{}).(bool)
	return ok
}

// NewInMemory constructs an empty in-memory inventory store.
func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		mu:      make(chanMutex, 1),
		records: make(map[uuid.UUID]*models.InventoryRecord),
		byKey:   make(map[recordKey]uuid.UUID),
		holds:   make(map[uuid.UUID]*models.ReservationHold),
	}
}

// WithTx serializes the whole callback under the store lock and rolls back to
// a snapshot when fn fails, matching the all-or-nothing contract of the
// Postgres implementation. Nested calls join the enclosing transaction.
func (s *InMemoryStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if inMemTx(ctx) {
		return fn(ctx)
	}
	if err := s.mu.lock(ctx); err != nil {
		return err
	}
	defer s.mu.unlock()

	snapshot := s.snapshot()
	if err := fn(context.WithValue(ctx, memTxKey{}, true)); err != nil {
		s.restore(snapshot)
		return err
	}
	return nil
}

// enter takes the store lock for a single non-transactional call; inside a
// transaction the lock is already held.
func (s *InMemoryStore) enter(ctx context.Context) (func(), error) {
	if inMemTx(ctx) {
		return func() {}, nil
	}
	if err := s.mu.lock(ctx); err != nil {
		return nil, err
	}
	return s.mu.unlock, nil
}

func (s *InMemoryStore) CreateRecord(ctx context.Context, record *models.InventoryRecord) error {
	leave, err := s.enter(ctx)
	if err != nil {
		return err
	}
	defer leave()

	key := recordKey{record.ProductID, record.WarehouseCode}
	if _, exists := s.byKey[key]; exists {
		return sentinel.ErrConflict
	}
	cp := *record
	s.records[record.ID] = &cp
	s.byKey[key] = record.ID
	return nil
}

func (s *InMemoryStore) FindRecord(ctx context.Context, productID, warehouseCode string) (*models.InventoryRecord, error) {
	leave, err := s.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer leave()
	return s.findByKey(productID, warehouseCode)
}

// FindRecordForUpdate behaves like FindRecord; exclusivity comes from the
// transaction-wide lock rather than a per-row one.
func (s *InMemoryStore) FindRecordForUpdate(ctx context.Context, productID, warehouseCode string) (*models.InventoryRecord, error) {
	return s.FindRecord(ctx, productID, warehouseCode)
}

func (s *InMemoryStore) FindRecordByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.InventoryRecord, error) {
	leave, err := s.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer leave()

	record, ok := s.records[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *record
	return &cp, nil
}

func (s *InMemoryStore) SaveRecordCounters(ctx context.Context, record *models.InventoryRecord) error {
	leave, err := s.enter(ctx)
	if err != nil {
		return err
	}
	defer leave()

	stored, ok := s.records[record.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	stored.Quantity = record.Quantity
	stored.ReservedQuantity = record.ReservedQuantity
	stored.UpdatedAt = record.UpdatedAt
	return nil
}

func (s *InMemoryStore) ListRecords(ctx context.Context) ([]models.InventoryRecord, error) {
	leave, err := s.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer leave()

	records := make([]models.InventoryRecord, 0, len(s.records))
	for _, r := range s.records {
		records = append(records, *r)
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].ProductID != records[j].ProductID {
			return records[i].ProductID < records[j].ProductID
		}
		return records[i].WarehouseCode < records[j].WarehouseCode
	})
	return records, nil
}

func (s *InMemoryStore) CreateHold(ctx context.Context, hold *models.ReservationHold) error {
	leave, err := s.enter(ctx)
	if err != nil {
		return err
	}
	defer leave()

	cp := *hold
	s.holds[hold.ID] = &cp
	return nil
}

func (s *InMemoryStore) FindActiveHoldsByShipment(ctx context.Context, shipmentRef string, now time.Time) ([]models.ReservationHold, error) {
	leave, err := s.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer leave()

	var holds []models.ReservationHold
	for _, h := range s.holds {
		if h.ShipmentRef == shipmentRef && h.ExpiresAt.After(now) {
			holds = append(holds, *h)
		}
	}
	sortHoldsByRecord(holds)
	return holds, nil
}

func (s *InMemoryStore) FindExpiredHolds(ctx context.Context, now time.Time, limit int) ([]models.ReservationHold, error) {
	leave, err := s.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer leave()

	var holds []models.ReservationHold
	for _, h := range s.holds {
		if h.ExpiresAt.Before(now) {
			holds = append(holds, *h)
		}
	}
	sort.Slice(holds, func(i, j int) bool { return holds[i].ExpiresAt.Before(holds[j].ExpiresAt) })
	if limit > 0 && len(holds) > limit {
		holds = holds[:limit]
	}
	return holds, nil
}

func (s *InMemoryStore) DeleteHold(ctx context.Context, holdID uuid.UUID) error {
	leave, err := s.enter(ctx)
	if err != nil {
		return err
	}
	defer leave()

	if _, ok := s.holds[holdID]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.holds, holdID)
	return nil
}

func (s *InMemoryStore) AppendLedger(ctx context.Context, entry *models.LedgerEntry) error {
	leave, err := s.enter(ctx)
	if err != nil {
		return err
	}
	defer leave()

	s.ledger = append(s.ledger, *entry)
	return nil
}

func (s *InMemoryStore) ListLedgerByRecord(ctx context.Context, recordID uuid.UUID, limit int) ([]models.LedgerEntry, error) {
	leave, err := s.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer leave()

	var entries []models.LedgerEntry
	for i := len(s.ledger) - 1; i >= 0; i-- {
		if s.ledger[i].InventoryRecordID == recordID {
			entries = append(entries, s.ledger[i])
			if limit > 0 && len(entries) == limit {
				break
			}
		}
	}
	return entries, nil
}

func (s *InMemoryStore) findByKey(productID, warehouseCode string) (*models.InventoryRecord, error) {
	id, ok := s.byKey[recordKey{productID, warehouseCode}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *s.records[id]
	return &cp, nil
}

type memSnapshot struct {
	records map[uuid.UUID]*models.InventoryRecord
	byKey   map[recordKey]uuid.UUID
	holds   map[uuid.UUID]*models.ReservationHold
	ledger  []models.LedgerEntry
}

func (s *InMemoryStore) snapshot() memSnapshot {
	snap := memSnapshot{
		records: make(map[uuid.UUID]*models.InventoryRecord, len(s.records)),
		byKey:   make(map[recordKey]uuid.UUID, len(s.byKey)),
		holds:   make(map[uuid.UUID]*models.ReservationHold, len(s.holds)),
		ledger:  append([]models.LedgerEntry(nil), s.ledger...),
	}
	for id, r := range s.records {
		cp := *r
		snap.records[id] = &cp
	}
	for k, id := range s.byKey {
		snap.byKey[k] = id
	}
	for id, h := range s.holds {
		cp := *h
		snap.holds[id] = &cp
	}
	return snap
}

func (s *InMemoryStore) restore(snap memSnapshot) {
	s.records = snap.records
	s.byKey = snap.byKey
	s.holds = snap.holds
	s.ledger = snap.ledger
}

func sortHoldsByRecord(holds []models.ReservationHold) {
	sort.Slice(holds, func(i, j int) bool {
		if holds[i].ProductID != holds[j].ProductID {
			return holds[i].ProductID < holds[j].ProductID
		}
		return holds[i].WarehouseCode < holds[j].WarehouseCode
	})
}
