// Package users declares the repository contract for accounts.
package users

import (
	"context"

	"github.com/dmitrijs2005/sealvault/internal/server/models"
)

type Repository interface {
	// Create inserts a user and fills its ID. A taken email yields common.ErrorConflict.
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)

	// LockActive takes a shared row lock on the user for the rest of the
	// transaction and returns the current status.
	LockActive(ctx context.Context, id string) (string, error)

	// MarkErasing flips the user to "erasing" under an exclusive row lock.
	MarkErasing(ctx context.Context, id string) (*models.User, error)

	Delete(ctx context.Context, id string) (int64, error)
}
