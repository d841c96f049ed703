package inventory

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-supply/internal/platform/db"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Repository persists inventory entries in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// InsertEntry creates the (warehouse,item) entry.
func (r *Repository) InsertEntry(ctx context.Context, e Entry) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO inventory_entries (warehouse_id, item_id, stock_quantity, shelf_number, shelf_block)
VALUES ($1, $2, $3, $4, $5) RETURNING id`, e.WarehouseID, e.ItemID, e.StockQuantity, e.ShelfNumber, e.ShelfBlock).Scan(&id)
	if db.IsUniqueViolation(err) {
		return 0, ErrEntryExists
	}
	if err != nil {
		return 0, fmt.Errorf("inventory: insert entry: %w", err)
	}
	return id, nil
}

// FindEntry reads the entry without locking it.
func (r *Repository) FindEntry(ctx context.Context, warehouseID, itemID int64) (Entry, error) {
	entry, err := scanEntry(r.pool.QueryRow(ctx, `SELECT `+entryColumns+`
FROM inventory_entries e
JOIN warehouses w ON w.id = e.warehouse_id
JOIN items i ON i.id = e.item_id
WHERE e.warehouse_id = $1 AND e.item_id = $2`, warehouseID, itemID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, fmt.Errorf("%w: warehouse %d item %d", ErrEntryNotFound, warehouseID, itemID)
	}
	return entry, err
}

func entrySelect() sq.SelectBuilder {
	return psql.Select(
		"e.id", "e.warehouse_id", "w.name", "e.item_id", "i.code", "i.name", "e.stock_quantity",
		"e.shelf_number", "e.shelf_block", "e.version", "e.updated_at",
	).
		From("inventory_entries e").
		Join("warehouses w ON w.id = e.warehouse_id").
		Join("items i ON i.id = e.item_id")
}

func listQuery(f ListFilter) sq.SelectBuilder {
	qb := entrySelect()
	if f.WarehouseName != "" {
		qb = qb.Where(sq.Eq{"w.name": f.WarehouseName})
	}
	if f.ItemCode != "" {
		qb = qb.Where(sq.Eq{"i.code": f.ItemCode})
	}
	if f.Search != "" {
		like := "%" + f.Search + "%"
		qb = qb.Where(sq.Or{sq.ILike{"i.name": like}, sq.ILike{"i.code": like}})
	}
	return qb
}

// ListEntries returns a page of entries plus the total count.
func (r *Repository) ListEntries(ctx context.Context, f ListFilter) ([]Entry, int, error) {
	qb := listQuery(f)
	countSQL, countArgs, err := psql.Select("COUNT(*)").FromSelect(qb, "filtered").ToSql()
	if err != nil {
		return nil, 0, err
	}
	var total int
	if err := r.pool.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("inventory: count entries: %w", err)
	}
	page := f.Page.Normalize()
	query, args, err := qb.OrderBy("w.name", "i.code").
		Limit(uint64(page.PerPage)).
		Offset(uint64(page.Offset())).
		ToSql()
	if err != nil {
		return nil, 0, err
	}
	entries, err := r.query(ctx, query, args...)
	return entries, total, err
}

// ListEntriesByItem returns the entries of itemID across warehouses.
func (r *Repository) ListEntriesByItem(ctx context.Context, itemID int64) ([]Entry, error) {
	query, args, err := entrySelect().Where(sq.Eq{"e.item_id": itemID}).OrderBy("w.name").ToSql()
	if err != nil {
		return nil, err
	}
	return r.query(ctx, query, args...)
}

func (r *Repository) query(ctx context.Context, query string, args ...any) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("inventory: query entries: %w", err)
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
