package jobs

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/odyssey-erp/odyssey-supply/internal/jobs"
	"github.com/odyssey-erp/odyssey-supply/internal/shared"
)

func TestDocumentEventTaskRequiresID(t *testing.T) {
	_, err := NewDocumentEventTask(shared.DocumentEvent{Entity: shared.EntityPurchaseOrder, DocumentID: 1})
	require.Error(t, err)

	evt := shared.NewDocumentEvent(shared.EntityPurchaseOrder, 12, "PO-12", "FULLY_APPROVED", 3)
	task, err := NewDocumentEventTask(evt)
	require.NoError(t, err)
	require.Equal(t, TaskDocumentEvent, task.Type())

	parsed, err := ParseDocumentEvent(task)
	require.NoError(t, err)
	require.Equal(t, evt.ID, parsed.ID)
	require.Equal(t, "PO-12", parsed.Number)
}

func TestDocumentEventJobWritesStream(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	metrics := jobmetrics.NewMetrics(prometheus.NewRegistry())
	job := NewDocumentEventJob(NewStreamSink(client, "", 0), nil, metrics)

	evt := shared.NewDocumentEvent(shared.EntityDeliveryOrder, 5, "DO-005", "COMPLETED", 9)
	task, err := NewDocumentEventTask(evt)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	ctx := context.Background()
	entries, err := client.XRange(ctx, DefaultEventStream, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, evt.ID.String(), entries[0].Values["id"])
	require.Equal(t, "DO-005", entries[0].Values["number"])
	require.Equal(t, "5", entries[0].Values["document_id"])
}

func TestDocumentEventJobSkipsMalformedPayload(t *testing.T) {
	job := NewDocumentEventJob(nil, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))

	err := job.Handle(context.Background(), asynq.NewTask(TaskDocumentEvent, []byte(`{"entity":""}`)))
	require.ErrorIs(t, err, asynq.SkipRetry)

	err = job.Handle(context.Background(), asynq.NewTask(TaskDocumentEvent, []byte(`not json`)))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

type failingSink struct{}

func (failingSink) Deliver(context.Context, shared.DocumentEvent) error {
	return errors.New("stream unavailable")
}

func TestDocumentEventJobRetriesSinkFailure(t *testing.T) {
	registry := prometheus.NewRegistry()
	job := NewDocumentEventJob(failingSink{}, nil, jobmetrics.NewMetrics(registry))

	evt := shared.DocumentEvent{ID: uuid.New(), Entity: shared.EntityGoodsReceipt, DocumentID: 3, Number: "IGR-0003-2026"}
	task, err := NewDocumentEventTask(evt)
	require.NoError(t, err)

	err = job.Handle(context.Background(), task)
	require.Error(t, err)
	require.NotErrorIs(t, err, asynq.SkipRetry)
	require.Equal(t, 1.0, gathered(t, registry, "supply_jobs_failures_total", nil))
}

type fixedCounter map[string]int

func (f fixedCounter) CountPending(context.Context) (map[string]int, error) {
	return f, nil
}

func TestPendingDigestSetsGauges(t *testing.T) {
	registry := prometheus.NewRegistry()
	job := NewPendingDigestJob(fixedCounter{
		shared.EntityPurchaseOrder: 4,
		shared.EntityDeliveryOrder: 2,
	}, nil, jobmetrics.NewMetrics(registry))

	require.NoError(t, job.Handle(context.Background(), NewPendingDigestTask()))
	require.Equal(t, 4.0, gathered(t, registry, "supply_documents_pending", map[string]string{"entity": shared.EntityPurchaseOrder}))
	require.Equal(t, 2.0, gathered(t, registry, "supply_documents_pending", map[string]string{"entity": shared.EntityDeliveryOrder}))
}

func TestHealthWithoutInspector(t *testing.T) {
	r := chi.NewRouter()
	NewHandler(nil, nil).MountRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"queue":"default","pending":0}`, rec.Body.String())
}

// gathered returns the value of the first sample of name whose labels include want.
func gathered(t *testing.T, g prometheus.Gatherer, name string, want map[string]string) float64 {
	t.Helper()
	families, err := g.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	metrics:
		for _, m := range mf.GetMetric() {
			labels := make(map[string]string, len(m.GetLabel()))
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			for k, v := range want {
				if labels[k] != v {
					continue metrics
				}
			}
			switch {
			case m.GetGauge() != nil:
				return m.GetGauge().GetValue()
			case m.GetCounter() != nil:
				return m.GetCounter().GetValue()
			}
		}
	}
	t.Fatalf("metric %s%v not found", name, want)
	return 0
}
