package shared

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// DocumentEvent is emitted after a committed workflow transition.
type DocumentEvent struct {
	ID         uuid.UUID `json:"id"`
	Entity     string    `json:"entity"`
	DocumentID int64     `json:"document_id"`
	Number     string    `json:"number"`
	Status     string    `json:"status"`
	ActorID    int64     `json:"actor_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NewDocumentEvent stamps an event with a fresh id and the current time.
func NewDocumentEvent(entity string, documentID int64, number, status string, actorID int64) DocumentEvent {
	return DocumentEvent{
		ID:         uuid.New(),
		Entity:     entity,
		DocumentID: documentID,
		Number:     number,
		Status:     status,
		ActorID:    actorID,
		OccurredAt: time.Now().UTC(),
	}
}

// EventPublisher receives document events.
type EventPublisher interface {
	Publish(ctx context.Context, evt DocumentEvent) error
}

// Publishers fans an event out to several publishers.
type Publishers []EventPublisher

// Publish delivers evt to every publisher and joins the failures.
func (p Publishers) Publish(ctx context.Context, evt DocumentEvent) error {
	var errs []error
	for _, pub := range p {
		if pub == nil {
			continue
		}
		if err := pub.Publish(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
