package shared

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// Audited entities.
const (
	EntityRequestPurchase = "request_purchase"
	EntityPurchaseOrder   = "purchase_order"
	EntityGoodsReceipt    = "goods_receipt"
	EntityDeliveryOrder   = "delivery_order"
	EntityInventoryEntry  = "inventory_entry"
)

// AuditLog represents a record stored in audit_logs.
type AuditLog struct {
	ActorID  int64
	Action   string
	Entity   string
	EntityID string
	Meta     map[string]any
	At       time.Time
}

// AuditPort is implemented by AuditLogger and by test fakes.
type AuditPort interface {
	Record(ctx context.Context, log AuditLog) error
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// AuditLogger writes records into audit_logs.
type AuditLogger struct {
	db execer
}

// NewAuditLogger returns a new AuditLogger backed by a pool or a transaction.
func NewAuditLogger(db execer) *AuditLogger {
	return &AuditLogger{db: db}
}

// Record persists the log entry.
func (l *AuditLogger) Record(ctx context.Context, log AuditLog) error {
	if l == nil || l.db == nil {
		return errors.New("audit logger not initialised")
	}
	if log.Action == "" || log.Entity == "" || log.EntityID == "" {
		return errors.New("audit log requires action/entity/entity_id")
	}
	metaJSON, err := json.Marshal(log.Meta)
	if err != nil {
		return err
	}
	var at *time.Time
	if !log.At.IsZero() {
		at = &log.At
	}
	_, err = l.db.Exec(ctx, `INSERT INTO audit_logs (actor_id, action, entity, entity_id, meta, occurred_at)
VALUES ($1, $2, $3, $4, $5, COALESCE($6, NOW()))`, log.ActorID, log.Action, log.Entity, log.EntityID, metaJSON, at)
	return err
}

// RecordAudit writes an audit entry after a committed transition. Failures are logged,
// never returned, because the transition itself already succeeded.
func RecordAudit(ctx context.Context, port AuditPort, logger *slog.Logger, log AuditLog) {
	if port == nil {
		return
	}
	if err := port.Record(ctx, log); err != nil && logger != nil {
		logger.Warn("record audit", slog.String("action", log.Action), slog.String("entity_id", log.EntityID), slog.Any("error", err))
	}
}
