package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const envelopeVersion = 1

// PayloadEnvelope wraps every outbox payload. EventID is minted at emit time
// and survives retries, so sinks can use it for their own dedupe.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Data       json.RawMessage `json:"data"`
}

func sealEnvelope(data any, version int, occurredAt time.Time) (PayloadEnvelope, []byte, error) {
	body, err := json.Marshal(data)
	if err != nil {
		return PayloadEnvelope{}, nil, fmt.Errorf("encode outbox data: %w", err)
	}
	if version <= 0 {
		version = envelopeVersion
	}
	env := PayloadEnvelope{
		Version:    version,
		EventID:    uuid.NewString(),
		OccurredAt: occurredAt.UTC(),
		Data:       body,
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return PayloadEnvelope{}, nil, fmt.Errorf("encode outbox envelope: %w", err)
	}
	return env, raw, nil
}

// DecodeEnvelope parses a stored outbox payload.
func DecodeEnvelope(raw json.RawMessage) (PayloadEnvelope, error) {
	var env PayloadEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return PayloadEnvelope{}, fmt.Errorf("decode outbox envelope: %w", err)
	}
	if len(env.Data) == 0 {
		return PayloadEnvelope{}, fmt.Errorf("outbox envelope %s has no data", env.EventID)
	}
	return env, nil
}
