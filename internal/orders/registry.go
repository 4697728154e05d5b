package orders

import (
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
)

// SinkRegistry wires both order sinks into an outbox registry.
func SinkRegistry(database *DatabaseSink, airtableSink *AirtableSink) (*outbox.Registry, error) {
	descriptors := []outbox.EventDescriptor{{
		EventType:     enums.EventOrderSinkDatabase,
		AggregateType: enums.AggregateOrder,
		Sink:          SinkDatabase,
		Handler:       database,
	}}
	if airtableSink != nil {
		descriptors = append(descriptors, outbox.EventDescriptor{
			EventType:     enums.EventOrderSinkAirtable,
			AggregateType: enums.AggregateOrder,
			Sink:          SinkAirtable,
			Handler:       airtableSink,
		})
	}
	return outbox.NewRegistry(descriptors...)
}
