// Package events publishes lifecycle notifications for downstream systems.
package events

import (
	"context"
	"time"
)

// TypeAccountErased is published once an account teardown committed.
const TypeAccountErased = "account.erased"

// AccountErased carries no key material and no email.
type AccountErased struct {
	Type         string    `json:"type"`
	UserID       string    `json:"user_id"`
	ErasedAt     time.Time `json:"erased_at"`
	RowsDeleted  int64     `json:"rows_deleted"`
	BlobFailures int       `json:"blob_failures"`
}

type Publisher interface {
	PublishAccountErased(ctx context.Context, ev AccountErased) error
}

// Nop drops every event.
type Nop struct{}

func (Nop) PublishAccountErased(context.Context, AccountErased) error { return nil }
