// Package folderfiles stores file DEKs wrapped under folder keys.
package folderfiles

import (
	"context"

	"github.com/dmitrijs2005/sealvault/internal/server/models"
)

type Repository interface {
	// Create places a file in a folder. A file already in the folder yields common.ErrorConflict.
	Create(ctx context.Context, ffk *models.FolderFileKey) error
	Delete(ctx context.Context, folderID, fileID string) (int64, error)
	ListByFolder(ctx context.Context, folderID string) ([]models.FolderFileKey, error)

	// FindAccessible returns the folder key path to fileID through the first
	// folder the user holds a grant for, or common.ErrorNotFound.
	FindAccessible(ctx context.Context, fileID, userID string) (*models.KeyPath, error)

	DeleteByFile(ctx context.Context, fileID string) (int64, error)
	DeleteByFolder(ctx context.Context, folderID string) (int64, error)

	// DeleteForUser removes associations of files or folders the user owns.
	DeleteForUser(ctx context.Context, userID string) (int64, error)
}
