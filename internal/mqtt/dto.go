package mqtt

import (
	"time"

	"github.com/Tenemo/bob/internal/audiocore"
)

// PlayCommand is the payload of <topic>/play
type PlayCommand struct {
	Path string `json:"path"`
}

// StatusDTO is the payload published to <topic>/status
type StatusDTO struct {
	State     string                 `json:"state"`
	Playing   bool                   `json:"playing"`
	Session   *audiocore.SessionInfo `json:"session,omitempty"`
	Event     string                 `json:"event"`             // EventStarted, EventEnded, EventRequested or EventFailed
	Command   string                 `json:"command,omitempty"` // failed command, with EventFailed
	Error     string                 `json:"error,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// NewStatusDTO builds a status message from a controller snapshot
func NewStatusDTO(status audiocore.Status, event string) StatusDTO {
	return StatusDTO{
		State:     status.State,
		Playing:   status.Playing,
		Session:   status.Session,
		Event:     event,
		Timestamp: time.Now().UTC(),
	}
}
