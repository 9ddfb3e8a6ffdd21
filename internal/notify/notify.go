// Package notify is the outbound notification boundary. The workflow calls
// an abstract sink; the only in-tree transport is a websocket hub feeding
// the lawyer dashboard. Email/push delivery lives outside this repository.
package notify

import (
	"log"
)

// Notification is one message to one user.
type Notification struct {
	UserID   string                 `json:"userId"`
	Title    string                 `json:"title"`
	Body     string                 `json:"body"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Notifier delivers notifications. Delivery is best-effort: the signing
// workflow never fails because a recipient was unreachable.
type Notifier interface {
	Notify(userID, title, body string, metadata map[string]interface{})
}

// LogNotifier writes notifications to the server log. Used standalone in
// development and as the always-on fallback behind the hub.
type LogNotifier struct{}

func (LogNotifier) Notify(userID, title, body string, metadata map[string]interface{}) {
	log.Printf("🔔 notify %s: %s (%s)", userID, title, body)
}
