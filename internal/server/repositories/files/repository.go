// Package files declares the repository contract for file metadata.
package files

import (
	"context"
	"time"

	"github.com/dmitrijs2005/sealvault/internal/server/models"
)

type Repository interface {
	// Create inserts file metadata. A reused blob key yields common.ErrorConflict.
	Create(ctx context.Context, file *models.File) (*models.File, error)
	Get(ctx context.Context, id string) (*models.File, error)

	// Lock fetches the file and holds an exclusive row lock until the transaction ends.
	Lock(ctx context.Context, id string) (*models.File, error)

	// ListAccessible returns active files the user holds a personal grant on,
	// own files included.
	ListAccessible(ctx context.Context, userID string) ([]models.File, error)
	ListTrashed(ctx context.Context, ownerID string) ([]models.File, error)

	// ListByOwner returns every file of the owner regardless of state.
	ListByOwner(ctx context.Context, ownerID string) ([]models.File, error)

	// SoftDelete moves an active file to the trash. It returns the number of
	// rows changed, zero when the file was already trashed.
	SoftDelete(ctx context.Context, id string, deletedAt, purgeAt time.Time) (int64, error)
	Restore(ctx context.Context, id string) (int64, error)

	// ListDue returns ids of trashed files whose purge time is at or before now.
	ListDue(ctx context.Context, now time.Time, limit int) ([]string, error)

	// LockTrashedDue locks the file only if it is still trashed and due. It
	// returns common.ErrorNotFound when a concurrent restore or purge won.
	LockTrashedDue(ctx context.Context, id string, now time.Time) (*models.File, error)

	Delete(ctx context.Context, id string) (int64, error)
	DeleteByOwner(ctx context.Context, ownerID string) (int64, error)
}
