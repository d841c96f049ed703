package masterdata

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository loads master data records.
type Repository interface {
	ItemByCode(ctx context.Context, code string) (Item, error)
	ItemByName(ctx context.Context, name string) (Item, error)
	ItemByCodeAndName(ctx context.Context, code, name string) (Item, error)
	WarehouseByName(ctx context.Context, name string) (Warehouse, error)
	WarehouseByID(ctx context.Context, id int64) (Warehouse, error)
	SupplierByName(ctx context.Context, name string) (Supplier, error)
	LocationByName(ctx context.Context, name string) (Location, error)
	LocationByID(ctx context.Context, id int64) (Location, error)
}

// repo implements Repository interface
type repo struct {
	db *pgxpool.Pool
}

// NewRepository creates a new master data repository
func NewRepository(db *pgxpool.Pool) Repository {
	return &repo{db: db}
}

func (r *repo) ItemByCode(ctx context.Context, code string) (Item, error) {
	var it Item
	err := r.db.QueryRow(ctx, `SELECT id, code, name FROM items WHERE code = $1`, code).Scan(&it.ID, &it.Code, &it.Name)
	return it, notFound(err, ErrItemNotFound, code)
}

func (r *repo) ItemByName(ctx context.Context, name string) (Item, error) {
	var it Item
	err := r.db.QueryRow(ctx, `SELECT id, code, name FROM items WHERE name = $1 ORDER BY id LIMIT 1`, name).Scan(&it.ID, &it.Code, &it.Name)
	return it, notFound(err, ErrItemNotFound, name)
}

func (r *repo) ItemByCodeAndName(ctx context.Context, code, name string) (Item, error) {
	var it Item
	err := r.db.QueryRow(ctx, `SELECT id, code, name FROM items WHERE code = $1 AND lower(name) = lower($2)`, code, name).Scan(&it.ID, &it.Code, &it.Name)
	return it, notFound(err, ErrItemNotFound, code+" / "+name)
}

func (r *repo) WarehouseByName(ctx context.Context, name string) (Warehouse, error) {
	var w Warehouse
	err := r.db.QueryRow(ctx, `SELECT id, name FROM warehouses WHERE name = $1`, name).Scan(&w.ID, &w.Name)
	return w, notFound(err, ErrWarehouseNotFound, name)
}

func (r *repo) WarehouseByID(ctx context.Context, id int64) (Warehouse, error) {
	var w Warehouse
	err := r.db.QueryRow(ctx, `SELECT id, name FROM warehouses WHERE id = $1`, id).Scan(&w.ID, &w.Name)
	return w, notFound(err, ErrWarehouseNotFound, fmt.Sprint(id))
}

func (r *repo) SupplierByName(ctx context.Context, name string) (Supplier, error) {
	var s Supplier
	err := r.db.QueryRow(ctx, `SELECT id, name FROM suppliers WHERE name = $1`, name).Scan(&s.ID, &s.Name)
	return s, notFound(err, ErrSupplierNotFound, name)
}

func (r *repo) LocationByName(ctx context.Context, name string) (Location, error) {
	var l Location
	err := r.db.QueryRow(ctx, `SELECT id, code, name FROM locations WHERE name = $1`, name).Scan(&l.ID, &l.Code, &l.Name)
	return l, notFound(err, ErrLocationNotFound, name)
}

func (r *repo) LocationByID(ctx context.Context, id int64) (Location, error) {
	var l Location
	err := r.db.QueryRow(ctx, `SELECT id, code, name FROM locations WHERE id = $1`, id).Scan(&l.ID, &l.Code, &l.Name)
	return l, notFound(err, ErrLocationNotFound, fmt.Sprint(id))
}

func notFound(err error, sentinel error, key string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w %q", sentinel, key)
	}
	return err
}
