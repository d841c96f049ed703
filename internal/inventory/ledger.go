package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/odyssey-supply/internal/platform/db"
)

// Ledger mutates stock inside the caller's transaction.
type Ledger interface {
	// GetEntryForUpdate loads and row-locks the entry for (warehouseID, itemID).
	GetEntryForUpdate(ctx context.Context, warehouseID, itemID int64) (Entry, error)
	// UpdateStock writes qty when the entry still has version.
	UpdateStock(ctx context.Context, entryID, version, qty int64) error
}

// Increase adds qty to the entry. The entry must already exist.
func Increase(ctx context.Context, l Ledger, warehouseID, itemID, qty int64) (Entry, error) {
	if qty <= 0 {
		return Entry{}, ErrInvalidQuantity
	}
	entry, err := l.GetEntryForUpdate(ctx, warehouseID, itemID)
	if err != nil {
		return Entry{}, err
	}
	return apply(ctx, l, entry, entry.StockQuantity+qty)
}

// Decrease removes qty from the entry, failing with ErrInsufficientStock instead of
// going negative.
func Decrease(ctx context.Context, l Ledger, warehouseID, itemID, qty int64) (Entry, error) {
	if qty <= 0 {
		return Entry{}, ErrInvalidQuantity
	}
	entry, err := l.GetEntryForUpdate(ctx, warehouseID, itemID)
	if err != nil {
		return Entry{}, err
	}
	if entry.StockQuantity < qty {
		return Entry{}, fmt.Errorf("%w for item %s in warehouse %s. available: %d, requested: %d",
			ErrInsufficientStock, entry.ItemCode, entry.WarehouseName, entry.StockQuantity, qty)
	}
	return apply(ctx, l, entry, entry.StockQuantity-qty)
}

func apply(ctx context.Context, l Ledger, entry Entry, qty int64) (Entry, error) {
	if err := l.UpdateStock(ctx, entry.ID, entry.Version, qty); err != nil {
		return Entry{}, err
	}
	entry.StockQuantity = qty
	entry.Version++
	return entry, nil
}

// PGLedger implements Ledger over a pgx transaction.
type PGLedger struct {
	q db.Querier
}

// NewPGLedger binds a ledger to an open transaction.
func NewPGLedger(q db.Querier) *PGLedger {
	return &PGLedger{q: q}
}

const entryColumns = `e.id, e.warehouse_id, w.name, e.item_id, i.code, i.name, e.stock_quantity,
e.shelf_number, e.shelf_block, e.version, e.updated_at`

func scanEntry(row pgx.Row) (Entry, error) {
	var e Entry
	err := row.Scan(&e.ID, &e.WarehouseID, &e.WarehouseName, &e.ItemID, &e.ItemCode, &e.ItemName,
		&e.StockQuantity, &e.ShelfNumber, &e.ShelfBlock, &e.Version, &e.UpdatedAt)
	return e, err
}

// GetEntryForUpdate locks only the entry row, not the joined master data.
func (l *PGLedger) GetEntryForUpdate(ctx context.Context, warehouseID, itemID int64) (Entry, error) {
	entry, err := scanEntry(l.q.QueryRow(ctx, `SELECT `+entryColumns+`
FROM inventory_entries e
JOIN warehouses w ON w.id = e.warehouse_id
JOIN items i ON i.id = e.item_id
WHERE e.warehouse_id = $1 AND e.item_id = $2
FOR UPDATE OF e`, warehouseID, itemID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, fmt.Errorf("%w: warehouse %d item %d", ErrEntryNotFound, warehouseID, itemID)
	}
	return entry, err
}

// UpdateStock performs the version compare-and-set.
func (l *PGLedger) UpdateStock(ctx context.Context, entryID, version, qty int64) error {
	if qty < 0 {
		return ErrInsufficientStock
	}
	tag, err := l.q.Exec(ctx, `UPDATE inventory_entries
SET stock_quantity = $1, version = version + 1, updated_at = NOW()
WHERE id = $2 AND version = $3`, qty, entryID, version)
	if err != nil {
		return fmt.Errorf("inventory: update stock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConcurrentModification
	}
	return nil
}
