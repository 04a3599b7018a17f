// Package recoverytokens stores single-use password reset tokens keyed by email.
package recoverytokens

import (
	"context"

	"github.com/dmitrijs2005/sealvault/internal/server/models"
)

type Repository interface {
	// LockIdentifier serializes token issuance and redemption for one email
	// until the surrounding transaction ends.
	LockIdentifier(ctx context.Context, identifier string) error

	Create(ctx context.Context, t *models.RecoveryToken) (*models.RecoveryToken, error)

	// FindByValue returns common.ErrorNotFound for an unknown token.
	FindByValue(ctx context.Context, value string) (*models.RecoveryToken, error)
	Delete(ctx context.Context, id string) (int64, error)
	DeleteByIdentifier(ctx context.Context, identifier string) (int64, error)
}
