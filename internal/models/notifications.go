package models

import "time"

// NotificationType names an outbound notification
type NotificationType string

const (
	NotifySessionPrepared   NotificationType = "session-prepared"
	NotifySessionStarted    NotificationType = "session-started"
	NotifySessionPaused     NotificationType = "session-paused"
	NotifySessionResumed    NotificationType = "session-resumed"
	NotifySessionEnded      NotificationType = "session-ended"
	NotifyRosterChanged     NotificationType = "roster-changed"
	NotifyStatUpdated       NotificationType = "stat-updated"
	NotifyVoteStarted       NotificationType = "vote-started"
	NotifyVoteUpdated       NotificationType = "vote-updated"
	NotifyVoteResolved      NotificationType = "vote-resolved"
	NotifyCommandRejected   NotificationType = "command-rejected"
	NotifyPersistenceFailed NotificationType = "persistence-failed"
)

// Notification is broadcast to presentation and transport collaborators.
// Target is set when the notification is addressed to one participant.
type Notification struct {
	Type      NotificationType `json:"type"`
	RoundID   string           `json:"round_id,omitempty"`
	Target    string           `json:"target,omitempty"`
	Payload   any              `json:"payload,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}
