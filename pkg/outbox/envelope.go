package outbox

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EnvelopeVersion is the schema version written by Emit.
const EnvelopeVersion = 1

// ActorRef identifies who triggered the change. System jobs carry only a role.
type ActorRef struct {
	UserID *uuid.UUID `json:"user_id,omitempty"`
	Role   string     `json:"role,omitempty"`
}

// PayloadEnvelope wraps every rental event stored in outbox_events and
// forwarded to Pub/Sub.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"event_id"`
	OccurredAt time.Time       `json:"occurred_at"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// newEnvelope stamps id as the event id. Emit uses the outbox row id so
// consumers and the DLQ tooling refer to the same event.
func newEnvelope(id uuid.UUID, event DomainEvent, data json.RawMessage) PayloadEnvelope {
	occurred := event.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now()
	}
	version := event.Version
	if version == 0 {
		version = EnvelopeVersion
	}
	return PayloadEnvelope{
		Version:    version,
		EventID:    id.String(),
		OccurredAt: occurred.UTC(),
		Actor:      event.Actor,
		Data:       data,
	}
}

// DecodeEnvelope parses a stored payload and rejects envelopes that a
// consumer could not route: unknown versions, missing ids or empty data.
func DecodeEnvelope(raw []byte) (PayloadEnvelope, error) {
	var env PayloadEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return env, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Version < 1 || env.Version > EnvelopeVersion {
		return env, fmt.Errorf("unsupported envelope version %d", env.Version)
	}
	if env.EventID == "" {
		return env, fmt.Errorf("envelope missing event_id")
	}
	trimmed := bytes.TrimSpace(env.Data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return env, fmt.Errorf("envelope %s has no data", env.EventID)
	}
	return env, nil
}
