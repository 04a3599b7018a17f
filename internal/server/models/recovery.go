package models

import "time"

// SecurityQuestion stores only the argon2id hash of the normalized answer.
type SecurityQuestion struct {
	ID           string
	UserID       string
	QuestionText string
	AnswerHash   string
	CreatedAt    time.Time
}

// RecoveryToken is a single-use password reset credential keyed by email.
type RecoveryToken struct {
	ID         string
	Identifier string
	TokenValue string
	ExpiresAt  time.Time
	CreatedAt  time.Time
}

// Expired reports whether the token is past its expiry at now.
func (t *RecoveryToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}
