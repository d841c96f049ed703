package history

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgxpool"
)

const dateLayout = "2006-01-02"

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Repository reads item_histories.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the history repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func baseSelect() sq.SelectBuilder {
	return psql.Select(
		"h.id", "h.type", "h.item_id", "i.code", "i.name", "h.warehouse_id", "w.name", "h.quantity",
		"h.po_number", "h.igr_number", "h.igr_id", "h.mpr_number", "h.do_number", "h.do_id",
		"h.location_id", "COALESCE(l.name, '')", "h.remarks", "h.actor_id", "h.occurred_at",
	).
		From("item_histories h").
		Join("items i ON i.id = h.item_id").
		Join("warehouses w ON w.id = h.warehouse_id").
		LeftJoin("locations l ON l.id = h.location_id")
}

// buildFilter applies f on top of the base projection for typ.
func buildFilter(typ Type, f Filter) (sq.SelectBuilder, error) {
	qb := baseSelect().Where(sq.Eq{"h.type": typ})
	if f.ItemCode != "" {
		qb = qb.Where(sq.Eq{"i.code": f.ItemCode})
	}
	if f.ItemName != "" {
		qb = qb.Where(sq.ILike{"i.name": "%" + f.ItemName + "%"})
	}
	if f.WarehouseName != "" {
		qb = qb.Where(sq.ILike{"w.name": "%" + f.WarehouseName + "%"})
	}
	if f.StartDate != "" {
		start, err := time.Parse(dateLayout, f.StartDate)
		if err != nil {
			return qb, fmt.Errorf("history: start date: %w", err)
		}
		qb = qb.Where(sq.GtOrEq{"h.occurred_at": start})
	}
	if f.EndDate != "" {
		end, err := time.Parse(dateLayout, f.EndDate)
		if err != nil {
			return qb, fmt.Errorf("history: end date: %w", err)
		}
		qb = qb.Where(sq.Lt{"h.occurred_at": end.AddDate(0, 0, 1)})
	}
	if f.PONumber != "" {
		qb = qb.Where(sq.Eq{"h.po_number": f.PONumber})
	}
	if f.IGRNumber != "" {
		qb = qb.Where(sq.Eq{"h.igr_number": f.IGRNumber})
	}
	if typ == TypeOutgoing {
		if f.MPRNumber != "" {
			qb = qb.Where(sq.Eq{"h.mpr_number": f.MPRNumber})
		}
		if f.DONumber != "" {
			qb = qb.Where(sq.Eq{"h.do_number": f.DONumber})
		}
		if f.LocationName != "" {
			qb = qb.Where(sq.ILike{"l.name": "%" + f.LocationName + "%"})
		}
	}
	return qb, nil
}

// List returns one page of records of typ, newest first, plus the total match count.
func (r *Repository) List(ctx context.Context, typ Type, f Filter) ([]Record, int, error) {
	qb, err := buildFilter(typ, f)
	if err != nil {
		return nil, 0, err
	}

	countSQL, countArgs, err := psql.Select("COUNT(*)").FromSelect(qb, "filtered").ToSql()
	if err != nil {
		return nil, 0, err
	}
	var total int
	if err := r.pool.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("history: count: %w", err)
	}

	page := f.Page.Normalize()
	query, args, err := qb.OrderBy("h.occurred_at DESC", "h.id DESC").
		Limit(uint64(page.PerPage)).
		Offset(uint64(page.Offset())).
		ToSql()
	if err != nil {
		return nil, 0, err
	}
	records, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

// ListByItem returns every record of typ for itemID, newest first.
func (r *Repository) ListByItem(ctx context.Context, itemID int64, typ Type) ([]Record, error) {
	query, args, err := baseSelect().
		Where(sq.Eq{"h.type": typ, "h.item_id": itemID}).
		OrderBy("h.occurred_at DESC", "h.id DESC").
		ToSql()
	if err != nil {
		return nil, err
	}
	return r.query(ctx, query, args...)
}

func (r *Repository) query(ctx context.Context, query string, args ...any) ([]Record, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("history: query: %w", err)
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.Type, &rec.ItemID, &rec.ItemCode, &rec.ItemName, &rec.WarehouseID,
			&rec.WarehouseName, &rec.Quantity, &rec.PONumber, &rec.IGRNumber, &rec.IGRID, &rec.MPRNumber,
			&rec.DONumber, &rec.DOID, &rec.LocationID, &rec.LocationName, &rec.Remarks, &rec.ActorID,
			&rec.OccurredAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
