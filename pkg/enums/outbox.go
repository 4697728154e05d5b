package enums

// OutboxAggregateType is the aggregate_type column of outbox_events.
type OutboxAggregateType string

const AggregateOrder OutboxAggregateType = "order"

// OutboxEventType selects the sink an outbox row is delivered to. One order
// emits one row per sink so each destination retries on its own.
type OutboxEventType string

const (
	EventOrderSinkDatabase OutboxEventType = "order_sink_database"
	EventOrderSinkAirtable OutboxEventType = "order_sink_airtable"
)

// OrderSinkEvents lists the event types emitted for every materialized order.
func OrderSinkEvents() []OutboxEventType {
	return []OutboxEventType{EventOrderSinkDatabase, EventOrderSinkAirtable}
}

func (e OutboxEventType) IsValid() bool {
	switch e {
	case EventOrderSinkDatabase, EventOrderSinkAirtable:
		return true
	}
	return false
}

// OutboxDLQErrorReason is why a row was parked instead of retried.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
	OutboxDLQReasonUnroutable   OutboxDLQErrorReason = "unroutable"
)

func (r OutboxDLQErrorReason) IsValid() bool {
	switch r {
	case OutboxDLQReasonMaxAttempts, OutboxDLQReasonNonRetryable, OutboxDLQReasonUnroutable:
		return true
	}
	return false
}
