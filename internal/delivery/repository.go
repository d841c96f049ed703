package delivery

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-supply/internal/history"
	"github.com/odyssey-erp/odyssey-supply/internal/inventory"
	"github.com/odyssey-erp/odyssey-supply/internal/platform/db"
	"github.com/odyssey-erp/odyssey-supply/internal/shared"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Repository provides PostgreSQL persistence for delivery orders.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new delivery repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
	*inventory.PGLedger
	*history.PGWriter
}

// WithTx executes fn inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx, PGLedger: inventory.NewPGLedger(tx), PGWriter: history.NewPGWriter(tx)})
	})
}

const orderColumns = `d.id, d.number, d.request_purchase_id, COALESCE(r.request_code, ''), r.location_id, COALESCE(l.name, ''),
d.notes, d.status, d.created_by, d.created_at, d.updated_at`

func scanOrder(row pgx.Row) (DeliveryOrder, error) {
	var do DeliveryOrder
	err := row.Scan(&do.ID, &do.Number, &do.RequestID, &do.RequestCode, &do.LocationID, &do.LocationName,
		&do.Notes, &do.Status, &do.CreatedBy, &do.CreatedAt, &do.UpdatedAt)
	return do, err
}

func loadOrder(ctx context.Context, q db.Querier, id int64, lock bool) (DeliveryOrder, error) {
	query := `SELECT ` + orderColumns + `
FROM delivery_orders d
LEFT JOIN request_purchases r ON r.id = d.request_purchase_id
LEFT JOIN locations l ON l.id = r.location_id
WHERE d.id = $1`
	if lock {
		query += ` FOR UPDATE OF d`
	}
	do, err := scanOrder(q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return DeliveryOrder{}, fmt.Errorf("%w %d", ErrOrderNotFound, id)
	}
	if err != nil {
		return DeliveryOrder{}, err
	}

	rows, err := q.Query(ctx, `SELECT i.id, i.delivery_order_id, i.item_id, i.item_code, i.item_name, i.warehouse_id, w.name,
i.quantity, i.remarks
FROM delivery_order_items i
JOIN warehouses w ON w.id = i.warehouse_id
WHERE i.delivery_order_id = $1
ORDER BY i.id`, id)
	if err != nil {
		return DeliveryOrder{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ItemID, &it.ItemCode, &it.ItemName, &it.WarehouseID, &it.WarehouseName,
			&it.Quantity, &it.Remarks); err != nil {
			return DeliveryOrder{}, err
		}
		do.Items = append(do.Items, it)
	}
	if err := rows.Err(); err != nil {
		return DeliveryOrder{}, err
	}

	approvals, err := q.Query(ctx, `SELECT a.id, a.delivery_order_id, a.approver_id, u.username, a.signature_path, a.approved_at
FROM delivery_order_approvals a
JOIN users u ON u.id = a.approver_id
WHERE a.delivery_order_id = $1
ORDER BY a.approved_at, a.id`, id)
	if err != nil {
		return DeliveryOrder{}, err
	}
	defer approvals.Close()
	for approvals.Next() {
		var a shared.Approval
		if err := approvals.Scan(&a.ID, &a.DocumentID, &a.ApproverID, &a.ApproverName, &a.SignaturePath, &a.ApprovedAt); err != nil {
			return DeliveryOrder{}, err
		}
		do.Approvals = append(do.Approvals, a)
	}
	return do, approvals.Err()
}

// GetOrder returns a delivery order with lines and approvals.
func (r *Repository) GetOrder(ctx context.Context, id int64) (DeliveryOrder, error) {
	return loadOrder(ctx, r.pool, id, false)
}

// ListOrders returns one page of delivery order headers and the filtered total.
func (r *Repository) ListOrders(ctx context.Context, f Filter) ([]DeliveryOrder, int, error) {
	qb := psql.Select(orderColumns).
		From("delivery_orders d").
		LeftJoin("request_purchases r ON r.id = d.request_purchase_id").
		LeftJoin("locations l ON l.id = r.location_id")
	if f.Status != "" {
		qb = qb.Where(sq.Eq{"d.status": f.Status})
	}
	if f.Search != "" {
		like := "%" + f.Search + "%"
		qb = qb.Where(sq.Or{sq.ILike{"d.number": like}, sq.ILike{"r.request_code": like}})
	}

	countSQL, countArgs, err := psql.Select("COUNT(*)").FromSelect(qb, "filtered").ToSql()
	if err != nil {
		return nil, 0, err
	}
	var total int
	if err := r.pool.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page := f.Page.Normalize()
	query, args, err := qb.OrderBy("d.created_at DESC", "d.id DESC").
		Limit(uint64(page.PerPage)).
		Offset(uint64(page.Offset())).
		ToSql()
	if err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []DeliveryOrder
	for rows.Next() {
		do, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, do)
	}
	return out, total, rows.Err()
}

func (t *txRepo) NumberExists(ctx context.Context, number string, excludeID int64) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM delivery_orders WHERE number = $1 AND id <> $2)`, number, excludeID).Scan(&exists)
	return exists, err
}

func (t *txRepo) FindRequestByCode(ctx context.Context, code string) (RequestRef, error) {
	var ref RequestRef
	err := t.tx.QueryRow(ctx, `SELECT r.id, r.request_code, r.location_id, l.name
FROM request_purchases r JOIN locations l ON l.id = r.location_id
WHERE r.request_code = $1`, code).Scan(&ref.ID, &ref.Code, &ref.LocationID, &ref.LocationName)
	if errors.Is(err, pgx.ErrNoRows) {
		return RequestRef{}, fmt.Errorf("%w %s", ErrRequestNotFound, code)
	}
	return ref, err
}

func (t *txRepo) RequestHasOrder(ctx context.Context, requestID, excludeID int64) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM delivery_orders WHERE request_purchase_id = $1 AND id <> $2)`, requestID, excludeID).Scan(&exists)
	return exists, err
}

// uniqueError maps delivery_orders unique constraints to domain errors.
func uniqueError(err error, do DeliveryOrder) error {
	constraint, ok := db.UniqueConstraint(err)
	if !ok {
		return err
	}
	if constraint == "delivery_orders_request_purchase_id_key" {
		return fmt.Errorf("%w (%s)", ErrRequestHasOrder, do.RequestCode)
	}
	return fmt.Errorf("%w (%s)", ErrNumberTaken, do.Number)
}

func (t *txRepo) InsertOrder(ctx context.Context, do DeliveryOrder) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO delivery_orders (number, request_purchase_id, notes, status, created_by)
VALUES ($1, $2, $3, $4, $5) RETURNING id`, do.Number, do.RequestID, do.Notes, do.Status, do.CreatedBy).Scan(&id)
	if err != nil {
		return 0, uniqueError(err, do)
	}
	return id, nil
}

func (t *txRepo) InsertItem(ctx context.Context, item Item) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO delivery_order_items (delivery_order_id, item_id, item_code, item_name, warehouse_id, quantity, remarks)
VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		item.OrderID, item.ItemID, item.ItemCode, item.ItemName, item.WarehouseID, item.Quantity, item.Remarks).Scan(&id)
	return id, err
}

func (t *txRepo) GetOrderForUpdate(ctx context.Context, id int64) (DeliveryOrder, error) {
	return loadOrder(ctx, t.tx, id, true)
}

func (t *txRepo) UpdateOrder(ctx context.Context, do DeliveryOrder) error {
	_, err := t.tx.Exec(ctx, `UPDATE delivery_orders SET number = $1, request_purchase_id = $2, notes = $3, updated_at = NOW()
WHERE id = $4`, do.Number, do.RequestID, do.Notes, do.ID)
	if err != nil {
		return uniqueError(err, do)
	}
	return nil
}

func (t *txRepo) UpdateStatus(ctx context.Context, id int64, status Status) error {
	_, err := t.tx.Exec(ctx, `UPDATE delivery_orders SET status = $1, updated_at = NOW() WHERE id = $2`, status, id)
	return err
}

func (t *txRepo) InsertApproval(ctx context.Context, a shared.Approval) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO delivery_order_approvals (delivery_order_id, approver_id, signature_path)
VALUES ($1, $2, $3) RETURNING id`, a.DocumentID, a.ApproverID, a.SignaturePath).Scan(&id)
	if db.IsUniqueViolation(err) {
		return 0, ErrAlreadyApproved
	}
	return id, err
}

func (t *txRepo) CountApprovals(ctx context.Context, orderID int64) (int, error) {
	var n int
	err := t.tx.QueryRow(ctx, `SELECT COUNT(DISTINCT approver_id) FROM delivery_order_approvals WHERE delivery_order_id = $1`, orderID).Scan(&n)
	return n, err
}

func (t *txRepo) DeleteApprovals(ctx context.Context, orderID int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM delivery_order_approvals WHERE delivery_order_id = $1`, orderID)
	return err
}

func (t *txRepo) DeleteItems(ctx context.Context, orderID int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM delivery_order_items WHERE delivery_order_id = $1`, orderID)
	return err
}

func (t *txRepo) DeleteOrder(ctx context.Context, id int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM delivery_orders WHERE id = $1`, id)
	return err
}
