// internal/models/notification.go
package models

import "time"

// EventApplicationUpdate is the only outbound live event name.
const EventApplicationUpdate = "applicationUpdate"

// Action tells clients which workflow step produced the event.
type Action string

const (
	ActionCreated    Action = "created"
	ActionUpdated    Action = "updated"
	ActionResolved   Action = "resolved"
	ActionDeleted    Action = "deleted"
	ActionDownloaded Action = "downloaded"
)

// NotificationEvent is ephemeral: it is delivered live or dropped, never stored.
type NotificationEvent struct {
	TargetUserID string
	ResourceID   string
	Kind         Kind
	Status       string
	Message      string
	Action       Action
	Timestamp    time.Time
}

// ApplicationUpdatePayload is the JSON body of an applicationUpdate event.
type ApplicationUpdatePayload struct {
	ApplicationID string `json:"applicationId"`
	ServiceType   string `json:"serviceType"`
	Status        string `json:"status"`
	Message       string `json:"message"`
	Action        string `json:"action,omitempty"`
	Timestamp     string `json:"timestamp,omitempty"`
}

// Payload builds the wire payload for e.
func (e NotificationEvent) Payload() ApplicationUpdatePayload {
	p := ApplicationUpdatePayload{
		ApplicationID: e.ResourceID,
		ServiceType:   e.Kind.ServiceType(),
		Status:        e.Status,
		Message:       e.Message,
		Action:        string(e.Action),
	}
	if !e.Timestamp.IsZero() {
		p.Timestamp = e.Timestamp.UTC().Format(time.RFC3339)
	}
	return p
}
