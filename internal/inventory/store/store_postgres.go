package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"crossdock/internal/inventory/models"
	"crossdock/pkg/platform/sentinel"
	txcontext "crossdock/pkg/platform/tx"
)

// PostgresStore persists inventory records, holds and ledger entries in
// PostgreSQL. Row-level locking (SELECT ... FOR UPDATE) inside WithTx
// transactions is the only synchronization primitive, so correctness holds
// across multiple server processes sharing one database.
type PostgresStore struct {
	db        *sql.DB
	txTimeout time.Duration
}

var _ Store = (*PostgresStore)(nil)

const defaultTxTimeout = 5 * time.Second

// NewPostgres constructs a PostgreSQL-backed inventory store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, txTimeout: defaultTxTimeout}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// WithTx runs fn inside a single database transaction. A transaction already
// present in the context is joined rather than nested; otherwise a new one is
// opened with a deadline so abandoned row locks cannot pile up.
func (s *PostgresStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := txcontext.From(ctx); ok {
		return fn(ctx)
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.txTimeout)
		defer cancel()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin inventory tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(txcontext.WithTx(ctx, tx)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit inventory tx: %w", err)
	}
	return nil
}

const recordColumns = `id, product_id, warehouse_code, quantity, reserved_quantity, created_at, updated_at`

func (s *PostgresStore) CreateRecord(ctx context.Context, record *models.InventoryRecord) error {
	query := `
		INSERT INTO inventory_records (id, product_id, warehouse_code, quantity, reserved_quantity, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		record.ID,
		record.ProductID,
		record.WarehouseCode,
		record.Quantity,
		record.ReservedQuantity,
		record.CreatedAt,
		record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create inventory record: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindRecord(ctx context.Context, productID, warehouseCode string) (*models.InventoryRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM inventory_records WHERE product_id = $1 AND warehouse_code = $2`
	return s.scanRecord(s.execer(ctx).QueryRowContext(ctx, query, productID, warehouseCode))
}

// FindRecordForUpdate locks the record's row for the rest of the enclosing
// transaction. The availability check and the counter mutation that follow
// are atomic with respect to every other reserver precisely because this
// lock spans both.
func (s *PostgresStore) FindRecordForUpdate(ctx context.Context, productID, warehouseCode string) (*models.InventoryRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM inventory_records WHERE product_id = $1 AND warehouse_code = $2 FOR UPDATE`
	return s.scanRecord(s.execer(ctx).QueryRowContext(ctx, query, productID, warehouseCode))
}

func (s *PostgresStore) FindRecordByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.InventoryRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM inventory_records WHERE id = $1 FOR UPDATE`
	return s.scanRecord(s.execer(ctx).QueryRowContext(ctx, query, id))
}

func (s *PostgresStore) SaveRecordCounters(ctx context.Context, record *models.InventoryRecord) error {
	query := `
		UPDATE inventory_records
		SET quantity = $1, reserved_quantity = $2, updated_at = $3
		WHERE id = $4
	`
	res, err := s.execer(ctx).ExecContext(ctx, query,
		record.Quantity,
		record.ReservedQuantity,
		record.UpdatedAt,
		record.ID,
	)
	if err != nil {
		return fmt.Errorf("save record counters: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save record counters: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListRecords(ctx context.Context) ([]models.InventoryRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM inventory_records ORDER BY product_id, warehouse_code`
	rows, err := s.execer(ctx).QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list inventory records: %w", err)
	}
	defer rows.Close()

	var records []models.InventoryRecord
	for rows.Next() {
		var r models.InventoryRecord
		if err := rows.Scan(&r.ID, &r.ProductID, &r.WarehouseCode, &r.Quantity, &r.ReservedQuantity, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan inventory record: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate inventory records: %w", err)
	}
	return records, nil
}

const holdColumns = `id, inventory_record_id, product_id, warehouse_code, shipment_ref, quantity, created_at, expires_at`

func (s *PostgresStore) CreateHold(ctx context.Context, hold *models.ReservationHold) error {
	query := `
		INSERT INTO reservation_holds (id, inventory_record_id, product_id, warehouse_code, shipment_ref, quantity, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		hold.ID,
		hold.InventoryRecordID,
		hold.ProductID,
		hold.WarehouseCode,
		hold.ShipmentRef,
		hold.Quantity,
		hold.CreatedAt,
		hold.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("create reservation hold: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindActiveHoldsByShipment(ctx context.Context, shipmentRef string, now time.Time) ([]models.ReservationHold, error) {
	query := `
		SELECT ` + holdColumns + `
		FROM reservation_holds
		WHERE shipment_ref = $1 AND expires_at > $2
		ORDER BY product_id, warehouse_code
	`
	return s.queryHolds(ctx, query, shipmentRef, now)
}

func (s *PostgresStore) FindExpiredHolds(ctx context.Context, now time.Time, limit int) ([]models.ReservationHold, error) {
	query := `
		SELECT ` + holdColumns + `
		FROM reservation_holds
		WHERE expires_at < $1
		ORDER BY expires_at
		LIMIT $2
	`
	return s.queryHolds(ctx, query, now, limit)
}

func (s *PostgresStore) DeleteHold(ctx context.Context, holdID uuid.UUID) error {
	res, err := s.execer(ctx).ExecContext(ctx, `DELETE FROM reservation_holds WHERE id = $1`, holdID)
	if err != nil {
		return fmt.Errorf("delete reservation hold: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete reservation hold: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) AppendLedger(ctx context.Context, entry *models.LedgerEntry) error {
	query := `
		INSERT INTO inventory_ledger (
			id, inventory_record_id, product_id, kind, quantity_delta,
			quantity_before, quantity_after, reference_kind, reference_id,
			note, actor, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		entry.ID,
		entry.InventoryRecordID,
		entry.ProductID,
		string(entry.Kind),
		entry.QuantityDelta,
		entry.QuantityBefore,
		entry.QuantityAfter,
		entry.ReferenceKind,
		entry.ReferenceID,
		entry.Note,
		entry.Actor,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append ledger entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListLedgerByRecord(ctx context.Context, recordID uuid.UUID, limit int) ([]models.LedgerEntry, error) {
	query := `
		SELECT id, inventory_record_id, product_id, kind, quantity_delta,
		       quantity_before, quantity_after, reference_kind, reference_id,
		       note, actor, created_at
		FROM inventory_ledger
		WHERE inventory_record_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := s.execer(ctx).QueryContext(ctx, query, recordID, limit)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []models.LedgerEntry
	for rows.Next() {
		var (
			e     models.LedgerEntry
			kind  string
			actor sql.NullString
		)
		err := rows.Scan(
			&e.ID, &e.InventoryRecordID, &e.ProductID, &kind, &e.QuantityDelta,
			&e.QuantityBefore, &e.QuantityAfter, &e.ReferenceKind, &e.ReferenceID,
			&e.Note, &actor, &e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		e.Kind = models.LedgerKind(kind)
		if actor.Valid {
			e.Actor = &actor.String
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger entries: %w", err)
	}
	return entries, nil
}

func (s *PostgresStore) scanRecord(row *sql.Row) (*models.InventoryRecord, error) {
	var r models.InventoryRecord
	err := row.Scan(&r.ID, &r.ProductID, &r.WarehouseCode, &r.Quantity, &r.ReservedQuantity, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan inventory record: %w", err)
	}
	return &r, nil
}

func (s *PostgresStore) queryHolds(ctx context.Context, query string, args ...any) ([]models.ReservationHold, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query reservation holds: %w", err)
	}
	defer rows.Close()

	var holds []models.ReservationHold
	for rows.Next() {
		var h models.ReservationHold
		if err := rows.Scan(&h.ID, &h.InventoryRecordID, &h.ProductID, &h.WarehouseCode, &h.ShipmentRef, &h.Quantity, &h.CreatedAt, &h.ExpiresAt); err != nil {
			return nil, fmt.Errorf("scan reservation hold: %w", err)
		}
		holds = append(holds, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reservation holds: %w", err)
	}
	return holds, nil
}
