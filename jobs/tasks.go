package jobs

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-supply/internal/shared"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskDocumentEvent carries a committed workflow transition.
	TaskDocumentEvent = "document:event"
	// TaskPendingDigest refreshes the pending-approval gauges.
	TaskPendingDigest = "documents:pending-digest"
)

// eventRetention keeps finished document-event tasks so a replayed event id is rejected
// as a duplicate.
const eventRetention = 24 * time.Hour

// NewDocumentEventTask wraps evt in an Asynq task keyed by the event id.
func NewDocumentEventTask(evt shared.DocumentEvent) (*asynq.Task, error) {
	if evt.ID == uuid.Nil {
		return nil, errors.New("jobs: document event without id")
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDocumentEvent, data,
		asynq.Queue(QueueDefault),
		asynq.TaskID(evt.ID.String()),
		asynq.MaxRetry(10),
		asynq.Retention(eventRetention),
	), nil
}

// ParseDocumentEvent decodes the payload of a TaskDocumentEvent task.
func ParseDocumentEvent(t *asynq.Task) (shared.DocumentEvent, error) {
	var evt shared.DocumentEvent
	if err := json.Unmarshal(t.Payload(), &evt); err != nil {
		return shared.DocumentEvent{}, fmt.Errorf("decode document event: %w", err)
	}
	if evt.ID == uuid.Nil || evt.Entity == "" || evt.DocumentID <= 0 {
		return shared.DocumentEvent{}, fmt.Errorf("incomplete document event %q", evt.ID)
	}
	return evt, nil
}

// NewPendingDigestTask builds the periodic pending digest task.
func NewPendingDigestTask() *asynq.Task {
	return asynq.NewTask(TaskPendingDigest, nil, asynq.Queue(QueueDefault))
}
