// Package questions stores hashed security question answers.
package questions

import (
	"context"

	"github.com/dmitrijs2005/sealvault/internal/server/models"
)

type Repository interface {
	// LockUser serializes question changes for one user until the transaction ends.
	LockUser(ctx context.Context, userID string) error

	Create(ctx context.Context, q *models.SecurityQuestion) (*models.SecurityQuestion, error)
	CountByUser(ctx context.Context, userID string) (int, error)
	ListByUser(ctx context.Context, userID string) ([]models.SecurityQuestion, error)
	Get(ctx context.Context, id string) (*models.SecurityQuestion, error)
	Delete(ctx context.Context, id, userID string) (int64, error)
	DeleteByUser(ctx context.Context, userID string) (int64, error)
}
