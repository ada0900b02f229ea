package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"crossdock/internal/inventory/metrics"
	"crossdock/internal/inventory/models"
	dErrors "crossdock/pkg/domain-errors"
	"crossdock/pkg/platform/sentinel"
	"crossdock/pkg/requestcontext"
)

// Reserve places a time-boxed hold on stock for one shipment. The
// availability check and the reserved-counter increment happen under the
// record's row lock inside a single transaction, so concurrent reservers can
// never jointly oversell.
func (s *Service) Reserve(ctx context.Context, input ReserveInput) (*models.ReservationHold, error) {
	ctx, span := s.tracer.Start(ctx, "inventory.Reserve", trace.WithAttributes(
		attribute.String("product_id", input.ProductID),
		attribute.String("warehouse_code", input.WarehouseCode),
		attribute.Int("quantity", input.Quantity),
	))
	defer span.End()

	start := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.ReserveDuration.Observe(time.Since(start).Seconds())
		}
	}()

	if err := validateReserveInput(input); err != nil {
		s.countRejection(metrics.ReasonValidation)
		return nil, err
	}

	now := requestcontext.Now(ctx)
	var hold *models.ReservationHold
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		record, err := s.store.FindRecordForUpdate(ctx, input.ProductID, input.WarehouseCode)
		if err != nil {
			return err
		}
		if err := record.CanReserve(input.Quantity); err != nil {
			return err
		}
		if err := record.ApplyReserve(input.Quantity, now); err != nil {
			return err
		}
		if err := s.store.SaveRecordCounters(ctx, record); err != nil {
			return err
		}

		hold = models.NewHold(record, input.ShipmentRef, input.Quantity, now, s.holdTTL)
		if err := s.store.CreateHold(ctx, hold); err != nil {
			return err
		}
		return s.store.AppendLedger(ctx, &models.LedgerEntry{
			ID:                uuid.New(),
			InventoryRecordID: record.ID,
			ProductID:         record.ProductID,
			Kind:              models.LedgerKindReservation,
			QuantityDelta:     -input.Quantity,
			QuantityBefore:    record.Quantity,
			QuantityAfter:     record.Quantity,
			ReferenceKind:     models.ReferenceKindShipment,
			ReferenceID:       input.ShipmentRef,
			Note:              "stock reserved for shipment",
			Actor:             actorFrom(ctx),
			CreatedAt:         now,
		})
	})
	if err != nil {
		s.countReserveFailure(err)
		return nil, s.translate(err, "reserve stock")
	}

	if s.metrics != nil {
		s.metrics.ReservationsCreated.Inc()
	}
	s.logger.InfoContext(ctx, "stock reserved",
		"product_id", input.ProductID,
		"warehouse_code", input.WarehouseCode,
		"shipment_ref", input.ShipmentRef,
		"quantity", input.Quantity,
		"hold_id", hold.ID,
	)
	return hold, nil
}

// ReserveBatch reserves every item or none of them. Items are sorted into a
// deterministic (product, warehouse) order and all row locks are acquired
// before any availability check, so two overlapping batches cannot deadlock.
func (s *Service) ReserveBatch(ctx context.Context, shipmentRef string, items []BatchItem) ([]models.ReservationHold, error) {
	ctx, span := s.tracer.Start(ctx, "inventory.ReserveBatch", trace.WithAttributes(
		attribute.String("shipment_ref", shipmentRef),
		attribute.Int("items", len(items)),
	))
	defer span.End()

	if err := validateBatchInput(shipmentRef, items); err != nil {
		s.countRejection(metrics.ReasonValidation)
		return nil, err
	}

	sorted := make([]BatchItem, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].ProductID != sorted[j].ProductID {
			return sorted[i].ProductID < sorted[j].ProductID
		}
		return sorted[i].WarehouseCode < sorted[j].WarehouseCode
	})

	now := requestcontext.Now(ctx)
	var holds []models.ReservationHold
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		type itemKey struct{ product, warehouse string }

		// Lock every record first, in sorted order.
		records := make(map[itemKey]*models.InventoryRecord, len(sorted))
		for _, item := range sorted {
			key := itemKey{item.ProductID, item.WarehouseCode}
			if _, ok := records[key]; ok {
				continue
			}
			record, err := s.store.FindRecordForUpdate(ctx, item.ProductID, item.WarehouseCode)
			if err != nil {
				return err
			}
			records[key] = record
		}

		// Check and apply in memory before any write, so a late
		// insufficient-stock item aborts with nothing persisted.
		for _, item := range sorted {
			record := records[itemKey{item.ProductID, item.WarehouseCode}]
			if err := record.CanReserve(item.Quantity); err != nil {
				return err
			}
			if err := record.ApplyReserve(item.Quantity, now); err != nil {
				return err
			}
		}

		for _, record := range records {
			if err := s.store.SaveRecordCounters(ctx, record); err != nil {
				return err
			}
		}
		for _, item := range sorted {
			record := records[itemKey{item.ProductID, item.WarehouseCode}]
			hold := models.NewHold(record, shipmentRef, item.Quantity, now, s.holdTTL)
			if err := s.store.CreateHold(ctx, hold); err != nil {
				return err
			}
			err := s.store.AppendLedger(ctx, &models.LedgerEntry{
				ID:                uuid.New(),
				InventoryRecordID: record.ID,
				ProductID:         record.ProductID,
				Kind:              models.LedgerKindReservation,
				QuantityDelta:     -item.Quantity,
				QuantityBefore:    record.Quantity,
				QuantityAfter:     record.Quantity,
				ReferenceKind:     models.ReferenceKindShipment,
				ReferenceID:       shipmentRef,
				Note:              "stock reserved for shipment (batch)",
				Actor:             actorFrom(ctx),
				CreatedAt:         now,
			})
			if err != nil {
				return err
			}
			holds = append(holds, *hold)
		}
		return nil
	})
	if err != nil {
		s.countReserveFailure(err)
		return nil, s.translate(err, "reserve stock batch")
	}

	if s.metrics != nil {
		s.metrics.ReservationsCreated.Add(float64(len(holds)))
	}
	s.logger.InfoContext(ctx, "stock batch reserved",
		"shipment_ref", shipmentRef,
		"items", len(items),
	)
	return holds, nil
}

// Confirm converts every active hold of a shipment into a permanent stock
// decrement. Confirming a shipment with no active holds is an error rather
// than a no-op: it usually means the holds already expired.
func (s *Service) Confirm(ctx context.Context, shipmentRef string) (int, error) {
	ctx, span := s.tracer.Start(ctx, "inventory.Confirm", trace.WithAttributes(
		attribute.String("shipment_ref", shipmentRef),
	))
	defer span.End()

	if shipmentRef == "" {
		return 0, dErrors.New(dErrors.CodeValidation, "shipment reference is required")
	}

	now := requestcontext.Now(ctx)
	confirmed := 0
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		holds, err := s.store.FindActiveHoldsByShipment(ctx, shipmentRef, now)
		if err != nil {
			return err
		}
		if len(holds) == 0 {
			return dErrors.New(dErrors.CodeNotFound, "no active holds for shipment")
		}

		for _, hold := range holds {
			record, err := s.store.FindRecordByIDForUpdate(ctx, hold.InventoryRecordID)
			if err != nil {
				return err
			}
			// Delete first: losing the race to the reaper after the
			// lock is acquired means this hold is already settled.
			if err := s.store.DeleteHold(ctx, hold.ID); err != nil {
				if errors.Is(err, sentinel.ErrNotFound) {
					continue
				}
				return err
			}

			before := record.Quantity
			if err := record.ApplyStockOut(hold.Quantity, now); err != nil {
				return err
			}
			if err := s.store.SaveRecordCounters(ctx, record); err != nil {
				return err
			}
			err = s.store.AppendLedger(ctx, &models.LedgerEntry{
				ID:                uuid.New(),
				InventoryRecordID: record.ID,
				ProductID:         record.ProductID,
				Kind:              models.LedgerKindStockOut,
				QuantityDelta:     -hold.Quantity,
				QuantityBefore:    before,
				QuantityAfter:     record.Quantity,
				ReferenceKind:     models.ReferenceKindShipment,
				ReferenceID:       shipmentRef,
				Note:              "shipment dispatch confirmed",
				Actor:             actorFrom(ctx),
				CreatedAt:         now,
			})
			if err != nil {
				return err
			}
			confirmed++
		}
		return nil
	})
	if err != nil {
		return 0, s.translate(err, "confirm shipment holds")
	}

	if s.metrics != nil {
		s.metrics.HoldsConfirmed.Add(float64(confirmed))
	}
	s.logger.InfoContext(ctx, "shipment holds confirmed",
		"shipment_ref", shipmentRef,
		"holds", confirmed,
	)
	return confirmed, nil
}

// Release returns every active hold of a shipment to available stock. A
// shipment with no active holds is a successful no-op, so callers may safely
// race the reaper or call release twice.
func (s *Service) Release(ctx context.Context, shipmentRef string) (int, error) {
	ctx, span := s.tracer.Start(ctx, "inventory.Release", trace.WithAttributes(
		attribute.String("shipment_ref", shipmentRef),
	))
	defer span.End()

	if shipmentRef == "" {
		return 0, dErrors.New(dErrors.CodeValidation, "shipment reference is required")
	}

	now := requestcontext.Now(ctx)
	released := 0
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		holds, err := s.store.FindActiveHoldsByShipment(ctx, shipmentRef, now)
		if err != nil {
			return err
		}
		for _, hold := range holds {
			n, err := s.releaseHold(ctx, hold, now, actorFrom(ctx), "shipment cancelled")
			if err != nil {
				return err
			}
			released += n
		}
		return nil
	})
	if err != nil {
		return 0, s.translate(err, "release shipment holds")
	}

	if s.metrics != nil {
		s.metrics.HoldsReleased.Add(float64(released))
	}
	if released > 0 {
		s.logger.InfoContext(ctx, "shipment holds released",
			"shipment_ref", shipmentRef,
			"holds", released,
		)
	}
	return released, nil
}

// releaseHold performs the shared release mutation for one hold under its
// record's row lock. Returns 0 when the hold was already gone.
func (s *Service) releaseHold(ctx context.Context, hold models.ReservationHold, now time.Time, actor *string, note string) (int, error) {
	record, err := s.store.FindRecordByIDForUpdate(ctx, hold.InventoryRecordID)
	if err != nil {
		return 0, err
	}
	if err := s.store.DeleteHold(ctx, hold.ID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}

	record.ApplyRelease(hold.Quantity, now)
	if err := s.store.SaveRecordCounters(ctx, record); err != nil {
		return 0, err
	}
	err = s.store.AppendLedger(ctx, &models.LedgerEntry{
		ID:                uuid.New(),
		InventoryRecordID: record.ID,
		ProductID:         record.ProductID,
		Kind:              models.LedgerKindRelease,
		QuantityDelta:     hold.Quantity,
		QuantityBefore:    record.Quantity,
		QuantityAfter:     record.Quantity,
		ReferenceKind:     models.ReferenceKindHold,
		ReferenceID:       hold.ID.String(),
		Note:              note,
		Actor:             actor,
		CreatedAt:         now,
	})
	if err != nil {
		return 0, err
	}
	return 1, nil
}

// ReapExpiredHold reclaims one expired hold in its own transaction. Used by
// the background sweep; actor stays nil to mark the mutation system-initiated.
func (s *Service) ReapExpiredHold(ctx context.Context, hold models.ReservationHold) (bool, error) {
	now := requestcontext.Now(ctx)
	reaped := false
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		n, err := s.releaseHold(ctx, hold, now, nil, "hold expired")
		reaped = n > 0
		return err
	})
	if err != nil {
		return false, s.translate(err, "reap expired hold")
	}
	if reaped && s.metrics != nil {
		s.metrics.HoldsReaped.Inc()
	}
	return reaped, nil
}

// ExpiredHolds lists holds past their deadline, oldest first.
func (s *Service) ExpiredHolds(ctx context.Context, limit int) ([]models.ReservationHold, error) {
	holds, err := s.store.FindExpiredHolds(ctx, requestcontext.Now(ctx), limit)
	if err != nil {
		return nil, s.translate(err, "list expired holds")
	}
	return holds, nil
}

func validateReserveInput(input ReserveInput) error {
	switch {
	case input.ProductID == "":
		return dErrors.New(dErrors.CodeValidation, "product id is required")
	case input.WarehouseCode == "":
		return dErrors.New(dErrors.CodeValidation, "warehouse code is required")
	case input.ShipmentRef == "":
		return dErrors.New(dErrors.CodeValidation, "shipment reference is required")
	case input.Quantity <= 0:
		return dErrors.New(dErrors.CodeValidation, "quantity must be positive")
	}
	return nil
}

func validateBatchInput(shipmentRef string, items []BatchItem) error {
	if shipmentRef == "" {
		return dErrors.New(dErrors.CodeValidation, "shipment reference is required")
	}
	if len(items) == 0 {
		return dErrors.New(dErrors.CodeValidation, "batch must contain at least one item")
	}
	for _, item := range items {
		if err := validateReserveInput(ReserveInput{
			ProductID:     item.ProductID,
			WarehouseCode: item.WarehouseCode,
			ShipmentRef:   shipmentRef,
			Quantity:      item.Quantity,
		}); err != nil {
			return err
		}
	}
	return nil
}

// translate maps store and model errors onto the coded error envelope the
// transport layer understands.
func (s *Service) translate(err error, action string) error {
	var insufficient *models.InsufficientStockError
	switch {
	case err == nil:
		return nil
	case dErrors.CodeOf(err) != dErrors.CodeInternal:
		return err
	case errors.As(err, &insufficient):
		return dErrors.Wrap(err, dErrors.CodeInsufficientStock, insufficient.Error())
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, "inventory record not found")
	case errors.Is(err, context.DeadlineExceeded):
		return dErrors.Wrap(err, dErrors.CodeTimeout, action+": transaction deadline exceeded")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, action+" failed")
	}
}

func (s *Service) countReserveFailure(err error) {
	if s.metrics == nil {
		return
	}
	var insufficient *models.InsufficientStockError
	switch {
	case errors.As(err, &insufficient), dErrors.HasCode(err, dErrors.CodeInsufficientStock):
		s.metrics.ReservationsRejected.WithLabelValues(metrics.ReasonInsufficientStock).Inc()
	case errors.Is(err, sentinel.ErrNotFound), dErrors.HasCode(err, dErrors.CodeNotFound):
		s.metrics.ReservationsRejected.WithLabelValues(metrics.ReasonNotFound).Inc()
	}
}

func (s *Service) countRejection(reason string) {
	if s.metrics != nil {
		s.metrics.ReservationsRejected.WithLabelValues(reason).Inc()
	}
}

func actorFrom(ctx context.Context) *string {
	if actor := requestcontext.ActorID(ctx); actor != "" {
		return &actor
	}
	return nil
}
