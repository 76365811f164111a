// Package events publishes account domain events to the message broker.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/taskboard/apiserver/internal/mq"
)

// Event types.
const (
	UserRegistered = "user.registered"
	TaskCreated    = "task.created"
	TaskUpdated    = "task.updated"
	TaskDeleted    = "task.deleted"
)

const (
	contentTypeJSON = "application/json"
	typeAttribute   = "type"
)

// Event describes a committed change to a user's account.
type Event struct {
	ID         uuid.UUID  `json:"id"`
	Type       string     `json:"type"`
	UserID     uuid.UUID  `json:"userId"`
	TaskID     *uuid.UUID `json:"taskId,omitempty"`
	OccurredAt time.Time  `json:"occurredAt"`
}

// New builds an event stamped with a fresh id and the current time.
func New(eventType string, userID uuid.UUID) Event {
	return Event{
		ID:         uuid.New(),
		Type:       eventType,
		UserID:     userID,
		OccurredAt: time.Now().UTC(),
	}
}

// ForTask returns a copy of e that refers to the given task.
func (e Event) ForTask(taskID uuid.UUID) Event {
	e.TaskID = &taskID
	return e
}

// Publisher sends events to a broker channel.
type Publisher struct {
	backend mq.Backend
	channel string
}

// NewPublisher publishes events to channel on backend.
func NewPublisher(backend mq.Backend, channel string) *Publisher {
	return &Publisher{backend: backend, channel: channel}
}

// Publish encodes event as JSON and sends it with its type as an attribute.
func (p *Publisher) Publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = p.backend.Publish(ctx, p.channel, mq.Message{
		ID:          event.ID.String(),
		Data:        data,
		ContentType: contentTypeJSON,
		Attributes:  map[string]string{typeAttribute: event.Type},
	})
	return err
}

// Subscribe decodes every message on the channel and passes it to fn.
// Messages that are not valid events are dropped.
func Subscribe(ctx context.Context, backend mq.Backend, channel string, fn func(context.Context, Event) error) error {
	return backend.Subscribe(ctx, channel, func(ctx context.Context, msg mq.Message) error {
		var event Event
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			return nil
		}
		return fn(ctx, event)
	})
}

// Discard drops every event. It is used when no broker is configured.
type Discard struct{}

func (Discard) Publish(context.Context, Event) error { return nil }
