// Package credentials stores password hashes separately from the account row.
package credentials

import (
	"context"

	"github.com/dmitrijs2005/sealvault/internal/server/models"
)

type Repository interface {
	// Upsert sets the password hash for userID.
	Upsert(ctx context.Context, userID, passwordHash string) error
	Get(ctx context.Context, userID string) (*models.Credential, error)
	DeleteByUser(ctx context.Context, userID string) (int64, error)
}
