// Package bus provides an observability-only event bus. It fans out
// coarse run lifecycle notices (run opened, run closed) to external
// subscribers such as a metrics sidecar. It never sits on the controller's
// ordered Agent/UI delivery path — see internal/controller.
package bus

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event represents a message on the event bus.
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Source    string                 `json:"source"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// NewEvent creates a new event with a uuid and current timestamp.
func NewEvent(eventType, source string, data map[string]interface{}) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Source:    source,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// EventHandler handles an event delivered by the bus.
type EventHandler func(ctx context.Context, event *Event) error

// Subscription represents an active subscription.
type Subscription interface {
	Unsubscribe() error
	IsValid() bool
}

// EventBus is the interface implemented by both the in-memory and NATS
// backed buses.
type EventBus interface {
	Publish(ctx context.Context, subject string, event *Event) error
	Subscribe(subject string, handler EventHandler) (Subscription, error)
	QueueSubscribe(subject, queue string, handler EventHandler) (Subscription, error)
	Close()
	IsConnected() bool
}

// Run lifecycle subject/type constants published by the controller.
const (
	SubjectRuns      = "agentbreak.runs"
	TypeRunOpened    = "run.opened"
	TypeRunClosed    = "run.closed"
	TypeRunImported  = "run.imported"
	TypeRunDeleted   = "run.deleted"
)
