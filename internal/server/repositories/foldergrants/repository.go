// Package foldergrants stores per-recipient sealed folder keys.
package foldergrants

import (
	"context"

	"github.com/dmitrijs2005/sealvault/internal/server/models"
)

type Repository interface {
	// Create inserts a grant. An existing (folder, recipient) pair yields common.ErrorConflict.
	Create(ctx context.Context, grant *models.FolderKeyGrant) (*models.FolderKeyGrant, error)
	Get(ctx context.Context, folderID, recipientUserID string) (*models.FolderKeyGrant, error)
	Delete(ctx context.Context, folderID, recipientUserID string) (int64, error)
	ListByFolder(ctx context.Context, folderID string) ([]models.FolderKeyGrant, error)
	DeleteByFolder(ctx context.Context, folderID string) (int64, error)

	// DeleteForUser removes grants held by the user and grants on folders the user owns.
	DeleteForUser(ctx context.Context, userID string) (int64, error)
}
