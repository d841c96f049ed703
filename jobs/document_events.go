package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	jobmetrics "github.com/odyssey-erp/odyssey-supply/internal/jobs"
	"github.com/odyssey-erp/odyssey-supply/internal/shared"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// EventSink forwards a document event to downstream consumers.
type EventSink interface {
	Deliver(ctx context.Context, evt shared.DocumentEvent) error
}

// DocumentEventJob drains TaskDocumentEvent tasks into an EventSink.
type DocumentEventJob struct {
	Sink    EventSink
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewDocumentEventJob wires dependencies for the document event handler.
func NewDocumentEventJob(sink EventSink, logger *slog.Logger, metrics *jobmetrics.Metrics) *DocumentEventJob {
	return &DocumentEventJob{Sink: sink, Logger: logger, Metrics: metrics}
}

// Handle processes one document event. Malformed payloads are not retried.
func (j *DocumentEventJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil {
		return errors.New("document event: handler not configured")
	}
	tracker := j.metrics().Track(TaskDocumentEvent)
	defer func() {
		err = tracker.End(err)
	}()

	evt, err := ParseDocumentEvent(t)
	if err != nil {
		j.logger().Warn("drop document event", slog.Any("error", err))
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	logger := j.logger().With(
		slog.String("event_id", evt.ID.String()),
		slog.String("entity", evt.Entity),
		slog.String("number", evt.Number),
		slog.String("status", evt.Status),
	)
	if j.Sink != nil {
		if err := j.Sink.Deliver(ctx, evt); err != nil {
			logger.Error("deliver document event", slog.Any("error", err))
			return err
		}
	}
	logger.Info("document event delivered", slog.Duration("lag", time.Since(evt.OccurredAt)))
	return nil
}

func (j *DocumentEventJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskDocumentEvent))
	}
	return slog.Default().With(slog.String("job", TaskDocumentEvent))
}

func (j *DocumentEventJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

// StreamSink appends document events to a capped Redis stream.
type StreamSink struct {
	client redis.Cmdable
	stream string
	maxLen int64
}

// DefaultEventStream is the stream consumed by downstream systems.
const DefaultEventStream = "supply:document-events"

// NewStreamSink creates a sink writing to stream, keeping roughly maxLen entries.
func NewStreamSink(client redis.Cmdable, stream string, maxLen int64) *StreamSink {
	if stream == "" {
		stream = DefaultEventStream
	}
	if maxLen <= 0 {
		maxLen = 10000
	}
	return &StreamSink{client: client, stream: stream, maxLen: maxLen}
}

// Deliver implements EventSink.
func (s *StreamSink) Deliver(ctx context.Context, evt shared.DocumentEvent) error {
	return s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLen,
		Approx: true,
		Values: map[string]any{
			"id":          evt.ID.String(),
			"entity":      evt.Entity,
			"document_id": strconv.FormatInt(evt.DocumentID, 10),
			"number":      evt.Number,
			"status":      evt.Status,
			"actor_id":    strconv.FormatInt(evt.ActorID, 10),
			"occurred_at": evt.OccurredAt.Format(time.RFC3339Nano),
		},
	}).Err()
}
