// Package models holds the server-side records shared by repositories and
// services.
package models

import "time"

// User is the authenticated principal. Services read ID and IsActive; only
// registration and password change write it.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
}
