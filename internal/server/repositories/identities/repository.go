// Package identities stores the public keys each user registers.
package identities

import (
	"context"

	"github.com/dmitrijs2005/sealvault/internal/server/models"
)

type Repository interface {
	// Create registers the identity. A second registration yields common.ErrorConflict.
	Create(ctx context.Context, identity *models.Identity) (*models.Identity, error)
	Get(ctx context.Context, userID string) (*models.Identity, error)
	DeleteByUser(ctx context.Context, userID string) (int64, error)
}
