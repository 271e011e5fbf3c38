// internal/models/session.go
package models

import "time"

// ConnectionSession binds one user to one live connection handle.
type ConnectionSession struct {
	UserID      string    `json:"userId"`
	Handle      string    `json:"handle"`
	ConnectedAt time.Time `json:"connectedAt"`
}
