package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5"

	jobmetrics "github.com/odyssey-erp/odyssey-supply/internal/jobs"
	"github.com/odyssey-erp/odyssey-supply/internal/platform/db"
	"github.com/odyssey-erp/odyssey-supply/internal/shared"
)

const pendingQuery = `SELECT $1::text, COUNT(*) FROM request_purchases WHERE status = 'PENDING'
UNION ALL SELECT $2::text, COUNT(*) FROM purchase_orders WHERE status <> 'FULLY_APPROVED'
UNION ALL SELECT $3::text, COUNT(*) FROM goods_receipts WHERE status = 'PENDING'
UNION ALL SELECT $4::text, COUNT(*) FROM delivery_orders WHERE status = 'PENDING'`

// PendingCounter counts documents waiting for approval per entity.
type PendingCounter interface {
	CountPending(ctx context.Context) (map[string]int, error)
}

// PGPendingCounter reads pending counts from PostgreSQL.
type PGPendingCounter struct {
	q db.Querier
}

// NewPGPendingCounter constructs a counter on q.
func NewPGPendingCounter(q db.Querier) *PGPendingCounter {
	return &PGPendingCounter{q: q}
}

// CountPending implements PendingCounter.
func (c *PGPendingCounter) CountPending(ctx context.Context) (map[string]int, error) {
	rows, err := c.q.Query(ctx, pendingQuery,
		shared.EntityRequestPurchase, shared.EntityPurchaseOrder, shared.EntityGoodsReceipt, shared.EntityDeliveryOrder)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int, 4)
	var (
		entity string
		count  int
	)
	_, err = pgx.ForEachRow(rows, []any{&entity, &count}, func() error {
		out[entity] = count
		return nil
	})
	return out, err
}

// PendingDigestJob publishes pending-approval counts as gauges.
type PendingDigestJob struct {
	Counter PendingCounter
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewPendingDigestJob wires dependencies for the digest handler.
func NewPendingDigestJob(counter PendingCounter, logger *slog.Logger, metrics *jobmetrics.Metrics) *PendingDigestJob {
	return &PendingDigestJob{Counter: counter, Logger: logger, Metrics: metrics}
}

// Handle refreshes the gauges.
func (j *PendingDigestJob) Handle(ctx context.Context, _ *asynq.Task) (err error) {
	if j == nil || j.Counter == nil {
		return errors.New("pending digest: handler not configured")
	}
	tracker := j.metrics().Track(TaskPendingDigest)
	defer func() {
		err = tracker.End(err)
	}()

	start := time.Now()
	countCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()
	counts, err := j.Counter.CountPending(countCtx)
	if err != nil {
		j.logger().Error("count pending documents", slog.Any("error", err))
		return err
	}
	attrs := make([]any, 0, len(counts)+1)
	for entity, n := range counts {
		j.metrics().SetPending(entity, n)
		attrs = append(attrs, slog.Int(entity, n))
	}
	attrs = append(attrs, slog.Duration("duration", time.Since(start)))
	j.logger().Info("pending digest refreshed", attrs...)
	return nil
}

func (j *PendingDigestJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskPendingDigest))
	}
	return slog.Default().With(slog.String("job", TaskPendingDigest))
}

func (j *PendingDigestJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
