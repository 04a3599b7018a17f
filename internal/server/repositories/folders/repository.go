// Package folders declares the repository contract for folders.
package folders

import (
	"context"

	"github.com/dmitrijs2005/sealvault/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, folder *models.Folder) (*models.Folder, error)
	Get(ctx context.Context, id string) (*models.Folder, error)

	// ListAccessible returns folders the user holds a folder key grant for,
	// each with the user's own sealed folder key.
	ListAccessible(ctx context.Context, userID string) ([]models.FolderEntry, error)
	Delete(ctx context.Context, id string) (int64, error)
	DeleteByOwner(ctx context.Context, ownerID string) (int64, error)
}
