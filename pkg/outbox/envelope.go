package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ActorRef identifies who produced the event. A nil ActorID means the system did.
type ActorRef struct {
	ActorID *uuid.UUID `json:"actorId,omitempty"`
	Source  string     `json:"source,omitempty"`
}

// PayloadEnvelope is the stable payload structure stored in outbox_events.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// Actor builds an ActorRef for the given actor id.
func Actor(actorID *uuid.UUID, source string) *ActorRef {
	if actorID == nil && source == "" {
		return nil
	}
	return &ActorRef{ActorID: actorID, Source: source}
}
