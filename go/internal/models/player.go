package models

import (
	"time"

	"github.com/google/uuid"
)

// Player is a participant admitted to a session by the join surface.
type Player struct {
	ID          uuid.UUID `json:"id"`
	SessionID   uuid.UUID `json:"session_id"`
	DisplayName string    `json:"display_name"`
	JoinedAt    time.Time `json:"joined_at"`
}
