package service

import (
	"context"

	"crossdock/internal/inventory/models"
)

const defaultLedgerLimit = 100

// ListInventory returns every inventory record in (product, warehouse) order.
func (s *Service) ListInventory(ctx context.Context) ([]models.InventoryRecord, error) {
	records, err := s.store.ListRecords(ctx)
	if err != nil {
		return nil, s.translate(err, "list inventory")
	}
	return records, nil
}

// LedgerFor returns the most recent audit entries for one record, newest
// first.
func (s *Service) LedgerFor(ctx context.Context, productID, warehouseCode string, limit int) ([]models.LedgerEntry, error) {
	if limit <= 0 {
		limit = defaultLedgerLimit
	}
	record, err := s.store.FindRecord(ctx, productID, warehouseCode)
	if err != nil {
		return nil, s.translate(err, "find inventory record")
	}
	entries, err := s.store.ListLedgerByRecord(ctx, record.ID, limit)
	if err != nil {
		return nil, s.translate(err, "list ledger entries")
	}
	return entries, nil
}
