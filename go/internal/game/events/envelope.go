package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Envelope is the wire form of an event. It names what changed and never
// carries authoritative state; consumers re-pull the session on receipt.
type Envelope struct {
	ID        uuid.UUID       `json:"id"`
	SessionID uuid.UUID       `json:"session_id"`
	Type      Type            `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// NewEnvelope validates ev and wraps it for publishing.
func NewEnvelope(sessionID uuid.UUID, ev Event, now time.Time) (Envelope, error) {
	if ev == nil {
		return Envelope{}, fmt.Errorf("nil event")
	}
	if sessionID == uuid.Nil {
		return Envelope{}, fmt.Errorf("%s: session id is required", ev.Type())
	}
	if err := ev.Validate(); err != nil {
		return Envelope{}, fmt.Errorf("invalid event: %w", err)
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to marshal %s payload: %w", ev.Type(), err)
	}
	return Envelope{
		ID:        uuid.New(),
		SessionID: sessionID,
		Type:      ev.Type(),
		Timestamp: now.UTC(),
		Data:      data,
	}, nil
}

// Decode parses the envelope payload into its typed event.
func (e Envelope) Decode() (Event, error) {
	var ev Event
	switch e.Type {
	case TypeGameStarted:
		var p GameStarted
		if err := json.Unmarshal(e.Data, &p); err != nil {
			return nil, err
		}
		ev = p
	case TypeQuestionStarted:
		var p QuestionStarted
		if err := json.Unmarshal(e.Data, &p); err != nil {
			return nil, err
		}
		ev = p
	case TypeQuestionChanged:
		var p QuestionChanged
		if err := json.Unmarshal(e.Data, &p); err != nil {
			return nil, err
		}
		ev = p
	case TypeTimeUp:
		var p TimeUp
		if err := json.Unmarshal(e.Data, &p); err != nil {
			return nil, err
		}
		ev = p
	case TypeGameEnded:
		ev = GameEnded{}
	default:
		return nil, fmt.Errorf("unknown event type %q", e.Type)
	}
	if err := ev.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s event: %w", e.Type, err)
	}
	return ev, nil
}
