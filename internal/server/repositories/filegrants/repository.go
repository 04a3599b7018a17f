// Package filegrants stores per-recipient sealed DEKs.
package filegrants

import (
	"context"

	"github.com/dmitrijs2005/sealvault/internal/server/models"
)

type Repository interface {
	// Create inserts a grant. An existing (file, recipient) pair yields common.ErrorConflict.
	Create(ctx context.Context, grant *models.FileKeyGrant) (*models.FileKeyGrant, error)
	Get(ctx context.Context, fileID, recipientUserID string) (*models.FileKeyGrant, error)

	// Delete removes one grant and reports how many rows went away.
	Delete(ctx context.Context, fileID, recipientUserID string) (int64, error)
	ListByFile(ctx context.Context, fileID string) ([]models.FileKeyGrant, error)
	DeleteByFile(ctx context.Context, fileID string) (int64, error)

	// DeleteForUser removes grants held by the user and grants on files the user owns.
	DeleteForUser(ctx context.Context, userID string) (int64, error)
}
