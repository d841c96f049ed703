package procurement

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-supply/internal/history"
	"github.com/odyssey-erp/odyssey-supply/internal/inventory"
	"github.com/odyssey-erp/odyssey-supply/internal/numbering"
	"github.com/odyssey-erp/odyssey-supply/internal/platform/db"
	"github.com/odyssey-erp/odyssey-supply/internal/shared"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Repository persists procurement documents in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
	*inventory.PGLedger
	*history.PGWriter
}

// WithTx executes fn inside a repeatable-read transaction, retrying serialization failures.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx, PGLedger: inventory.NewPGLedger(tx), PGWriter: history.NewPGWriter(tx)})
	})
}

func (t *txRepo) NextSequence(ctx context.Context, key string) (int64, error) {
	return numbering.Next(ctx, t.tx, key)
}

// --- request purchases ---

const requestColumns = `r.id, r.request_code, r.user_id, r.created_by, r.location_id, l.name, r.status, r.remarks, r.created_at, r.updated_at`

func scanRequest(row pgx.Row) (RequestPurchase, error) {
	var req RequestPurchase
	err := row.Scan(&req.ID, &req.RequestCode, &req.UserID, &req.CreatedBy, &req.LocationID, &req.LocationName,
		&req.Status, &req.Remarks, &req.CreatedAt, &req.UpdatedAt)
	return req, err
}

func loadRequest(ctx context.Context, q db.Querier, where string, arg any, lock bool) (RequestPurchase, error) {
	query := `SELECT ` + requestColumns + `
FROM request_purchases r JOIN locations l ON l.id = r.location_id
WHERE ` + where
	if lock {
		query += ` FOR UPDATE OF r`
	}
	req, err := scanRequest(q.QueryRow(ctx, query, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return RequestPurchase{}, fmt.Errorf("%w %v", ErrRequestNotFound, arg)
	}
	if err != nil {
		return RequestPurchase{}, err
	}
	items, err := loadItemRequests(ctx, q, []int64{req.ID})
	if err != nil {
		return RequestPurchase{}, err
	}
	req.Items = items[req.ID]
	return req, nil
}

func loadItemRequests(ctx context.Context, q db.Querier, requestIDs []int64) (map[int64][]ItemRequest, error) {
	rows, err := q.Query(ctx, `SELECT ir.id, ir.request_purchase_id, ir.user_id, ir.name, ir.amount, ir.use_duration, ir.status, poi.purchase_order_id
FROM item_requests ir
LEFT JOIN purchase_order_items poi ON poi.item_request_id = ir.id
WHERE ir.request_purchase_id = ANY($1)
ORDER BY ir.id`, requestIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[int64][]ItemRequest, len(requestIDs))
	for rows.Next() {
		var it ItemRequest
		if err := rows.Scan(&it.ID, &it.RequestID, &it.UserID, &it.Name, &it.Amount, &it.UseDuration, &it.Status, &it.OrderID); err != nil {
			return nil, err
		}
		out[it.RequestID] = append(out[it.RequestID], it)
	}
	return out, rows.Err()
}

func (r *Repository) GetRequest(ctx context.Context, id int64) (RequestPurchase, error) {
	return loadRequest(ctx, r.pool, "r.id = $1", id, false)
}

func (r *Repository) FindApprovedRequests(ctx context.Context, codes []string) ([]RequestPurchase, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+requestColumns+`
FROM request_purchases r JOIN locations l ON l.id = r.location_id
WHERE r.request_code = ANY($1) AND r.status = $2`, codes, RequestApproved)
	if err != nil {
		return nil, err
	}
	reqs, err := collectRequests(rows)
	if err != nil {
		return nil, err
	}
	return r.attachItems(ctx, reqs)
}

func collectRequests(rows pgx.Rows) ([]RequestPurchase, error) {
	defer rows.Close()
	var out []RequestPurchase
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

func (r *Repository) attachItems(ctx context.Context, reqs []RequestPurchase) ([]RequestPurchase, error) {
	if len(reqs) == 0 {
		return reqs, nil
	}
	ids := make([]int64, len(reqs))
	for i, req := range reqs {
		ids[i] = req.ID
	}
	items, err := loadItemRequests(ctx, r.pool, ids)
	if err != nil {
		return nil, err
	}
	for i := range reqs {
		reqs[i].Items = items[reqs[i].ID]
	}
	return reqs, nil
}

func (r *Repository) ListRequests(ctx context.Context, f RequestFilter) ([]RequestPurchase, int, error) {
	qb := psql.Select(requestColumns).
		From("request_purchases r").
		Join("locations l ON l.id = r.location_id")
	if f.Status != "" {
		qb = qb.Where(sq.Eq{"r.status": f.Status})
	}
	if f.OwnerID != 0 {
		qb = qb.Where(sq.Eq{"r.user_id": f.OwnerID})
	}
	if f.Search != "" {
		like := "%" + f.Search + "%"
		qb = qb.Where(sq.Or{sq.ILike{"r.request_code": like}, sq.ILike{"r.created_by": like}, sq.ILike{"l.name": like}})
	}
	total, err := r.count(ctx, qb)
	if err != nil {
		return nil, 0, err
	}
	query, args, err := paged(qb.OrderBy("r.created_at DESC", "r.id DESC"), f.Page).ToSql()
	if err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	reqs, err := collectRequests(rows)
	if err != nil {
		return nil, 0, err
	}
	reqs, err = r.attachItems(ctx, reqs)
	return reqs, total, err
}

func (r *Repository) count(ctx context.Context, qb sq.SelectBuilder) (int, error) {
	query, args, err := psql.Select("COUNT(*)").FromSelect(qb, "filtered").ToSql()
	if err != nil {
		return 0, err
	}
	var total int
	err = r.pool.QueryRow(ctx, query, args...).Scan(&total)
	return total, err
}

func paged(qb sq.SelectBuilder, page shared.PageRequest) sq.SelectBuilder {
	page = page.Normalize()
	return qb.Limit(uint64(page.PerPage)).Offset(uint64(page.Offset()))
}

func (t *txRepo) RequestCodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM request_purchases WHERE request_code = $1)`, code).Scan(&exists)
	return exists, err
}

func (t *txRepo) InsertRequest(ctx context.Context, req RequestPurchase) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO request_purchases (request_code, user_id, created_by, location_id, status, remarks)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`, req.RequestCode, req.UserID, req.CreatedBy, req.LocationID, req.Status, req.Remarks).Scan(&id)
	if db.IsUniqueViolation(err) {
		return 0, fmt.Errorf("%w: request code %s already exists", shared.ErrConflict, req.RequestCode)
	}
	return id, err
}

func (t *txRepo) InsertItemRequest(ctx context.Context, item ItemRequest) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO item_requests (request_purchase_id, user_id, name, amount, use_duration, status)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`, item.RequestID, item.UserID, item.Name, item.Amount, item.UseDuration, item.Status).Scan(&id)
	return id, err
}

func (t *txRepo) UpdateItemRequest(ctx context.Context, item ItemRequest) error {
	tag, err := t.tx.Exec(ctx, `UPDATE item_requests SET name = $1, amount = $2, use_duration = $3
WHERE id = $4 AND request_purchase_id = $5`, item.Name, item.Amount, item.UseDuration, item.ID, item.RequestID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: id %d", ErrItemRequestNotFound, item.ID)
	}
	return nil
}

func (t *txRepo) GetRequestForUpdate(ctx context.Context, id int64) (RequestPurchase, error) {
	return loadRequest(ctx, t.tx, "r.id = $1", id, true)
}

func (t *txRepo) GetRequestByCodeForUpdate(ctx context.Context, code string) (RequestPurchase, error) {
	return loadRequest(ctx, t.tx, "r.request_code = $1", code, true)
}

func (t *txRepo) UpdateRequest(ctx context.Context, id int64, status RequestStatus, remarks string) error {
	_, err := t.tx.Exec(ctx, `UPDATE request_purchases SET status = $1, remarks = $2, updated_at = NOW() WHERE id = $3`, status, remarks, id)
	return err
}

func (t *txRepo) SetOpenItemStatuses(ctx context.Context, requestID int64, status ItemStatus) (int64, error) {
	tag, err := t.tx.Exec(ctx, `UPDATE item_requests SET status = $1 WHERE request_purchase_id = $2 AND status <> $3`,
		status, requestID, ItemCompleted)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (t *txRepo) MarkItemRequests(ctx context.Context, ids []int64, status ItemStatus) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := t.tx.Exec(ctx, `UPDATE item_requests SET status = $1 WHERE id = ANY($2)`, status, ids)
	return err
}

func (t *txRepo) CountRequestReferences(ctx context.Context, requestID int64) (int, error) {
	var n int
	err := t.tx.QueryRow(ctx, `SELECT
  (SELECT COUNT(*) FROM purchase_order_requests WHERE request_purchase_id = $1) +
  (SELECT COUNT(*) FROM delivery_orders WHERE request_purchase_id = $1)`, requestID).Scan(&n)
	return n, err
}

func (t *txRepo) DeleteRequest(ctx context.Context, id int64) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM item_requests WHERE request_purchase_id = $1`, id); err != nil {
		return err
	}
	_, err := t.tx.Exec(ctx, `DELETE FROM request_purchases WHERE id = $1`, id)
	return err
}

// --- purchase orders ---

const orderColumns = `po.id, po.number, po.supplier_id, s.name, po.notes, po.status, po.total_amount, po.created_by,
po.created_at, po.updated_at, gr.id, COALESCE(gr.number, '')`

const orderFrom = `FROM purchase_orders po
JOIN suppliers s ON s.id = po.supplier_id
LEFT JOIN goods_receipts gr ON gr.purchase_order_id = po.id`

func scanOrder(row pgx.Row) (PurchaseOrder, error) {
	var po PurchaseOrder
	err := row.Scan(&po.ID, &po.Number, &po.SupplierID, &po.SupplierName, &po.Notes, &po.Status, &po.TotalAmount,
		&po.CreatedBy, &po.CreatedAt, &po.UpdatedAt, &po.ReceiptID, &po.ReceiptNumber)
	return po, err
}

func loadOrder(ctx context.Context, q db.Querier, id int64, lock bool) (PurchaseOrder, error) {
	query := `SELECT ` + orderColumns + ` ` + orderFrom + ` WHERE po.id = $1`
	if lock {
		query += ` FOR UPDATE OF po`
	}
	po, err := scanOrder(q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return PurchaseOrder{}, fmt.Errorf("%w %d", ErrOrderNotFound, id)
	}
	if err != nil {
		return PurchaseOrder{}, err
	}
	if po.Items, err = loadOrderItems(ctx, q, id); err != nil {
		return PurchaseOrder{}, err
	}
	if po.Approvals, err = loadApprovals(ctx, q, id); err != nil {
		return PurchaseOrder{}, err
	}
	if po.RequestCodes, err = loadRequestCodes(ctx, q, id); err != nil {
		return PurchaseOrder{}, err
	}
	return po, nil
}

func loadOrderItems(ctx context.Context, q db.Querier, orderID int64) ([]OrderItem, error) {
	rows, err := q.Query(ctx, `SELECT poi.id, poi.purchase_order_id, poi.item_request_id, ir.request_purchase_id, poi.item_id,
poi.item_code, poi.item_name, poi.quantity, poi.unit_price, poi.total_price, poi.consign_to, poi.supplier_name, poi.remarks
FROM purchase_order_items poi
JOIN item_requests ir ON ir.id = poi.item_request_id
WHERE poi.purchase_order_id = $1
ORDER BY poi.id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []OrderItem
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ItemRequestID, &it.RequestID, &it.ItemID, &it.ItemCode, &it.ItemName,
			&it.Quantity, &it.UnitPrice, &it.TotalPrice, &it.ConsignTo, &it.SupplierName, &it.Remarks); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func loadApprovals(ctx context.Context, q db.Querier, orderID int64) ([]shared.Approval, error) {
	rows, err := q.Query(ctx, `SELECT a.id, a.purchase_order_id, a.approver_id, u.username, a.signature_path, a.approved_at
FROM purchase_order_approvals a
JOIN users u ON u.id = a.approver_id
WHERE a.purchase_order_id = $1
ORDER BY a.approved_at, a.id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []shared.Approval
	for rows.Next() {
		var a shared.Approval
		if err := rows.Scan(&a.ID, &a.DocumentID, &a.ApproverID, &a.ApproverName, &a.SignaturePath, &a.ApprovedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func loadRequestCodes(ctx context.Context, q db.Querier, orderID int64) ([]string, error) {
	rows, err := q.Query(ctx, `SELECT r.request_code
FROM purchase_order_requests por
JOIN request_purchases r ON r.id = por.request_purchase_id
WHERE por.purchase_order_id = $1
ORDER BY r.request_code`, orderID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (r *Repository) GetOrder(ctx context.Context, id int64) (PurchaseOrder, error) {
	return loadOrder(ctx, r.pool, id, false)
}

func (r *Repository) OrderNumberExists(ctx context.Context, number string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM purchase_orders WHERE number = $1)`, number).Scan(&exists)
	return exists, err
}

func (r *Repository) ListOrders(ctx context.Context, f OrderFilter) ([]PurchaseOrder, int, error) {
	qb := psql.Select(orderColumns).
		From("purchase_orders po").
		Join("suppliers s ON s.id = po.supplier_id").
		LeftJoin("goods_receipts gr ON gr.purchase_order_id = po.id")
	if f.Status != "" {
		qb = qb.Where(sq.Eq{"po.status": f.Status})
	}
	if f.Search != "" {
		like := "%" + f.Search + "%"
		qb = qb.Where(sq.Or{sq.ILike{"po.number": like}, sq.ILike{"s.name": like}})
	}
	total, err := r.count(ctx, qb)
	if err != nil {
		return nil, 0, err
	}
	query, args, err := paged(qb.OrderBy("po.created_at DESC", "po.id DESC"), f.Page).ToSql()
	if err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []PurchaseOrder
	for rows.Next() {
		po, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, po)
	}
	return out, total, rows.Err()
}

func (t *txRepo) InsertOrder(ctx context.Context, po PurchaseOrder) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO purchase_orders (number, supplier_id, notes, status, total_amount, created_by)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`, po.Number, po.SupplierID, po.Notes, po.Status, po.TotalAmount, po.CreatedBy).Scan(&id)
	if db.IsUniqueViolation(err) {
		return 0, fmt.Errorf("%w (%s)", ErrOrderNumberTaken, po.Number)
	}
	return id, err
}

func (t *txRepo) InsertOrderItem(ctx context.Context, item OrderItem) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO purchase_order_items (purchase_order_id, item_request_id, item_id, item_code, item_name,
quantity, unit_price, total_price, consign_to, supplier_name, remarks)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11) RETURNING id`,
		item.OrderID, item.ItemRequestID, item.ItemID, item.ItemCode, item.ItemName, item.Quantity, item.UnitPrice,
		item.TotalPrice, item.ConsignTo, item.SupplierName, item.Remarks).Scan(&id)
	if db.IsUniqueViolation(err) {
		return 0, fmt.Errorf("%w: %s", ErrItemAlreadyOrdered, item.ItemName)
	}
	return id, err
}

func (t *txRepo) LinkRequests(ctx context.Context, orderID int64, requestIDs []int64) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO purchase_order_requests (purchase_order_id, request_purchase_id)
SELECT $1, unnest($2::bigint[]) ON CONFLICT DO NOTHING`, orderID, requestIDs)
	return err
}

func (t *txRepo) UnlinkRequests(ctx context.Context, orderID int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM purchase_order_requests WHERE purchase_order_id = $1`, orderID)
	return err
}

func (t *txRepo) GetOrderForUpdate(ctx context.Context, id int64) (PurchaseOrder, error) {
	return loadOrder(ctx, t.tx, id, true)
}

func (t *txRepo) UpdateOrder(ctx context.Context, po PurchaseOrder) error {
	_, err := t.tx.Exec(ctx, `UPDATE purchase_orders SET supplier_id = $1, notes = $2, total_amount = $3, updated_at = NOW()
WHERE id = $4`, po.SupplierID, po.Notes, po.TotalAmount, po.ID)
	return err
}

func (t *txRepo) UpdateOrderStatus(ctx context.Context, id int64, status OrderStatus) error {
	_, err := t.tx.Exec(ctx, `UPDATE purchase_orders SET status = $1, updated_at = NOW() WHERE id = $2`, status, id)
	return err
}

func (t *txRepo) InsertOrderApproval(ctx context.Context, a shared.Approval) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO purchase_order_approvals (purchase_order_id, approver_id, signature_path)
VALUES ($1, $2, $3) RETURNING id`, a.DocumentID, a.ApproverID, a.SignaturePath).Scan(&id)
	if db.IsUniqueViolation(err) {
		return 0, ErrOrderAlreadyApproved
	}
	return id, err
}

func (t *txRepo) CountOrderApprovals(ctx context.Context, orderID int64) (int, error) {
	var n int
	err := t.tx.QueryRow(ctx, `SELECT COUNT(DISTINCT approver_id) FROM purchase_order_approvals WHERE purchase_order_id = $1`, orderID).Scan(&n)
	return n, err
}

func (t *txRepo) DeleteOrderApprovals(ctx context.Context, orderID int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM purchase_order_approvals WHERE purchase_order_id = $1`, orderID)
	return err
}

func (t *txRepo) DeleteOrderItems(ctx context.Context, orderID int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM purchase_order_items WHERE purchase_order_id = $1`, orderID)
	return err
}

func (t *txRepo) DeleteOrder(ctx context.Context, id int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM purchase_orders WHERE id = $1`, id)
	return err
}

// --- goods receipts ---

const receiptColumns = `gr.id, gr.number, gr.purchase_order_id, po.number, gr.status, gr.notes, gr.remarks, gr.approved_by,
gr.approved_at, gr.created_at,
ARRAY(SELECT u.username FROM purchase_order_approvals a JOIN users u ON u.id = a.approver_id
      WHERE a.purchase_order_id = gr.purchase_order_id ORDER BY a.approved_at, a.id)`

func scanReceipt(row pgx.Row) (GoodsReceipt, error) {
	var r GoodsReceipt
	err := row.Scan(&r.ID, &r.Number, &r.OrderID, &r.OrderNumber, &r.Status, &r.Notes, &r.Remarks, &r.ApprovedBy,
		&r.ApprovedAt, &r.CreatedAt, &r.Approvers)
	return r, err
}

func loadReceipt(ctx context.Context, q db.Querier, id int64, lock bool) (GoodsReceipt, error) {
	query := `SELECT ` + receiptColumns + `
FROM goods_receipts gr JOIN purchase_orders po ON po.id = gr.purchase_order_id
WHERE gr.id = $1`
	if lock {
		query += ` FOR UPDATE OF gr`
	}
	receipt, err := scanReceipt(q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return GoodsReceipt{}, fmt.Errorf("%w %d", ErrReceiptNotFound, id)
	}
	if err != nil {
		return GoodsReceipt{}, err
	}
	rows, err := q.Query(ctx, `SELECT gi.id, gi.goods_receipt_id, gi.item_name, gi.item_code, gi.quantity, gi.is_received,
gi.warehouse_id, COALESCE(w.name, '')
FROM goods_receipt_items gi
LEFT JOIN warehouses w ON w.id = gi.warehouse_id
WHERE gi.goods_receipt_id = $1
ORDER BY gi.id`, id)
	if err != nil {
		return GoodsReceipt{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var it ReceiptItem
		if err := rows.Scan(&it.ID, &it.ReceiptID, &it.ItemName, &it.ItemCode, &it.Quantity, &it.IsReceived,
			&it.WarehouseID, &it.WarehouseName); err != nil {
			return GoodsReceipt{}, err
		}
		receipt.Items = append(receipt.Items, it)
	}
	return receipt, rows.Err()
}

func (r *Repository) GetReceipt(ctx context.Context, id int64) (GoodsReceipt, error) {
	return loadReceipt(ctx, r.pool, id, false)
}

func (r *Repository) ListReceipts(ctx context.Context, f ReceiptFilter) ([]GoodsReceipt, int, error) {
	qb := psql.Select(receiptColumns).
		From("goods_receipts gr").
		Join("purchase_orders po ON po.id = gr.purchase_order_id")
	if f.Status != "" {
		qb = qb.Where(sq.Eq{"gr.status": f.Status})
	}
	if f.Search != "" {
		like := "%" + f.Search + "%"
		qb = qb.Where(sq.Or{sq.ILike{"gr.number": like}, sq.ILike{"po.number": like}})
	}
	total, err := r.count(ctx, qb)
	if err != nil {
		return nil, 0, err
	}
	query, args, err := paged(qb.OrderBy("gr.created_at DESC", "gr.id DESC"), f.Page).ToSql()
	if err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []GoodsReceipt
	for rows.Next() {
		receipt, err := scanReceipt(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, receipt)
	}
	return out, total, rows.Err()
}

func (t *txRepo) ReceiptNumberExists(ctx context.Context, number string) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM goods_receipts WHERE number = $1)`, number).Scan(&exists)
	return exists, err
}

func (t *txRepo) InsertReceipt(ctx context.Context, r GoodsReceipt) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO goods_receipts (number, purchase_order_id, status, notes)
VALUES ($1, $2, $3, $4) RETURNING id`, r.Number, r.OrderID, r.Status, r.Notes).Scan(&id)
	if db.IsUniqueViolation(err) {
		return 0, fmt.Errorf("%w: receipt %s for purchase order %s already exists", shared.ErrConflict, r.Number, r.OrderNumber)
	}
	return id, err
}

func (t *txRepo) InsertReceiptItem(ctx context.Context, item ReceiptItem) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO goods_receipt_items (goods_receipt_id, item_name, item_code, quantity)
VALUES ($1, $2, $3, $4) RETURNING id`, item.ReceiptID, item.ItemName, item.ItemCode, item.Quantity).Scan(&id)
	return id, err
}

func (t *txRepo) GetReceiptForUpdate(ctx context.Context, id int64) (GoodsReceipt, error) {
	return loadReceipt(ctx, t.tx, id, true)
}

func (t *txRepo) UpdateReceiptItem(ctx context.Context, item ReceiptItem) error {
	tag, err := t.tx.Exec(ctx, `UPDATE goods_receipt_items SET is_received = $1, warehouse_id = $2
WHERE id = $3 AND goods_receipt_id = $4`, item.IsReceived, item.WarehouseID, item.ID, item.ReceiptID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: id %d", ErrReceiptItemNotFound, item.ID)
	}
	return nil
}

func (t *txRepo) UpdateReceipt(ctx context.Context, r GoodsReceipt) error {
	_, err := t.tx.Exec(ctx, `UPDATE goods_receipts SET status = $1, remarks = $2, approved_by = $3, approved_at = $4 WHERE id = $5`,
		r.Status, r.Remarks, r.ApprovedBy, r.ApprovedAt, r.ID)
	return err
}

func (t *txRepo) DeleteReceiptItems(ctx context.Context, receiptID int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM goods_receipt_items WHERE goods_receipt_id = $1`, receiptID)
	return err
}

func (t *txRepo) DeleteReceipt(ctx context.Context, id int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM goods_receipts WHERE id = $1`, id)
	return err
}
