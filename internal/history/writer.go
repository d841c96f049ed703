package history

import (
	"context"
	"fmt"

	"github.com/odyssey-erp/odyssey-supply/internal/platform/db"
)

// Writer appends history inside the caller's transaction.
type Writer interface {
	InsertRecord(ctx context.Context, rec Record) (int64, error)
}

// PGWriter writes item_histories rows through a pool or an open transaction.
type PGWriter struct {
	q db.Querier
}

// NewPGWriter binds a writer to q.
func NewPGWriter(q db.Querier) *PGWriter {
	return &PGWriter{q: q}
}

// InsertRecord appends rec and returns its id.
func (w *PGWriter) InsertRecord(ctx context.Context, rec Record) (int64, error) {
	if rec.Type != TypeIncoming && rec.Type != TypeOutgoing {
		return 0, fmt.Errorf("history: unknown record type %q", rec.Type)
	}
	var id int64
	err := w.q.QueryRow(ctx, `INSERT INTO item_histories (type, item_id, warehouse_id, quantity, po_number, igr_number, igr_id,
mpr_number, do_number, do_id, location_id, remarks, actor_id)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13) RETURNING id`,
		rec.Type, rec.ItemID, rec.WarehouseID, rec.Quantity, rec.PONumber, rec.IGRNumber, rec.IGRID,
		rec.MPRNumber, rec.DONumber, rec.DOID, rec.LocationID, rec.Remarks, rec.ActorID).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("history: insert record: %w", err)
	}
	return id, nil
}
