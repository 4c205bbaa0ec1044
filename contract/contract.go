//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"

	"github.com/google/uuid"

	"nestchat/domain/event"
)

type WorkerName string

// Worker doesn't protect itself.
// Supervision, restarts and panic recovery live in the supervisor.
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker
// lifecycle events, avoiding manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// EventSink consumes change events. Sinks must be cheap; slow consumers
// are bounded by the fanout delivery timeout.
type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}

type IRegistry interface {
	GetSinksFor(conversationID uuid.UUID) []EventSink
	Subscribe(subscriberID string, conversationID uuid.UUID, sink EventSink)
	Unsubscribe(subscriberID string, conversationID uuid.UUID)
}

// OwnerResolver answers propertyID -> ownerID lookups against the
// external listing store. The messaging core never owns listing data.
type OwnerResolver interface {
	OwnerOf(ctx context.Context, propertyID string) (string, error)
}
