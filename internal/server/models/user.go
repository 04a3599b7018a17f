// Package models defines server-side data models persisted in the database.
package models

import "time"

// User is an account. Status is "active" or "erasing".
type User struct {
	ID        string
	Email     string
	Status    string
	CreatedAt time.Time
}

// Credential holds the argon2id password hash for a user.
type Credential struct {
	UserID       string
	PasswordHash string
	UpdatedAt    time.Time
}

// Identity is the public half of a user's device keys. The private halves
// never reach the server.
type Identity struct {
	UserID           string
	X25519PublicKey  string
	Ed25519PublicKey string
	CreatedAt        time.Time
}

// UserSettings are per-user preferences that drive the trash lifecycle.
type UserSettings struct {
	UserID             string
	TrashRetentionDays int
	UpdatedAt          time.Time
}

type RefreshToken struct {
	ID        string
	UserID    string
	Token     string
	Expires   time.Time
	CreatedAt time.Time
}
