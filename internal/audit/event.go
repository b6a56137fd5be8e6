// Package audit records authentication events.
package audit

import "time"

// Topic is the default stream audit events are published to.
const Topic = "auth.audit"

// Type names an audit event.
type Type string

const (
	UserRegistered       Type = "user.registered"
	LoginSucceeded       Type = "login.succeeded"
	LoginFailed          Type = "login.failed"
	TokenRefreshed       Type = "token.refreshed"
	TokenRefreshRejected Type = "token.refresh_rejected"
)

// Event is an authentication outcome. It never carries secrets.
type Event struct {
	Type       Type      `json:"type"`
	UserID     string    `json:"userId,omitempty"`
	Email      string    `json:"email,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	ClientIP   string    `json:"clientIp,omitempty"`
	UserAgent  string    `json:"userAgent,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// EventType implements messaging.Typed.
func (e Event) EventType() string {
	return string(e.Type)
}
