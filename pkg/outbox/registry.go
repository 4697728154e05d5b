package outbox

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// Handler delivers one outbox row to its destination. tx is the drainer's
// transaction; handlers writing to the same database should use it so the
// write commits together with the published marker.
type Handler interface {
	Deliver(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, envelope PayloadEnvelope) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, envelope PayloadEnvelope) error

func (f HandlerFunc) Deliver(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, envelope PayloadEnvelope) error {
	return f(ctx, tx, event, envelope)
}

// EventDescriptor links an event type to the sink that consumes it.
type EventDescriptor struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Sink          string
	Handler       Handler
}

// ResolvedEvent is the result of decoding an outbox row.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   PayloadEnvelope
}

// NonRetryableError signals the dispatcher should stop retrying a row.
type NonRetryableError struct {
	Err error
}

// Error implements error.
func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

// Unwrap exposes the wrapped error.
func (e NonRetryableError) Unwrap() error {
	return e.Err
}

// NewNonRetryableError wraps err so the dispatcher dead-letters the row at once.
func NewNonRetryableError(err error) error {
	return NonRetryableError{Err: err}
}

// IsNonRetryable reports whether err (or anything it wraps) is a NonRetryableError.
func IsNonRetryable(err error) bool {
	var nonRetry NonRetryableError
	return errors.As(err, &nonRetry)
}

// Registry maps each supported event type to its descriptor.
type Registry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// NewRegistry builds a registry from the given descriptors.
func NewRegistry(descriptors ...EventDescriptor) (*Registry, error) {
	reg := &Registry{entries: make(map[enums.OutboxEventType]EventDescriptor, len(descriptors))}
	for _, desc := range descriptors {
		if !desc.EventType.IsValid() {
			return nil, fmt.Errorf("unknown event type %q", desc.EventType)
		}
		if desc.Handler == nil {
			return nil, fmt.Errorf("handler required for %s", desc.EventType)
		}
		if _, dup := reg.entries[desc.EventType]; dup {
			return nil, fmt.Errorf("duplicate descriptor for %s", desc.EventType)
		}
		reg.entries[desc.EventType] = desc
	}
	return reg, nil
}

// Resolve finds the descriptor for event and decodes its envelope.
func (r *Registry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	if !ok {
		return nil, NewNonRetryableError(fmt.Errorf("no sink registered for %s", event.EventType))
	}
	if desc.AggregateType != "" && desc.AggregateType != event.AggregateType {
		return nil, NewNonRetryableError(fmt.Errorf("aggregate mismatch for %s: %s", event.EventType, event.AggregateType))
	}
	env, err := DecodeEnvelope(event.Payload)
	if err != nil {
		return nil, NewNonRetryableError(err)
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: env}, nil
}
