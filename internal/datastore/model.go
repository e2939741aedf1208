package datastore

import "time"

// PlaybackRecord is one session in the playback history
type PlaybackRecord struct {
	ID         uint      `gorm:"primaryKey" json:"-"`
	SessionID  string    `gorm:"uniqueIndex;size:36;not null" json:"id"`
	Source     string    `gorm:"size:255" json:"source"`
	Kind       string    `gorm:"size:16;index" json:"kind"`
	SampleRate int       `json:"sampleRate"`
	Channels   int       `json:"channels"`
	StartedAt  time.Time `gorm:"index" json:"startedAt"`
	EndedAt    time.Time `json:"endedAt,omitzero"`
	Complete   bool      `json:"complete"`
	Reason     string    `gorm:"size:16" json:"reason,omitempty"`
}

// Duration returns how long the session was live, zero while it still is
func (r PlaybackRecord) Duration() time.Duration {
	if r.EndedAt.IsZero() {
		return 0
	}
	return r.EndedAt.Sub(r.StartedAt)
}
