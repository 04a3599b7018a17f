// Package settings stores per-user preferences.
package settings

import (
	"context"

	"github.com/dmitrijs2005/sealvault/internal/server/models"
)

type Repository interface {
	// Get returns common.ErrorNotFound when the user never saved settings.
	Get(ctx context.Context, userID string) (*models.UserSettings, error)
	Upsert(ctx context.Context, s *models.UserSettings) error
	DeleteByUser(ctx context.Context, userID string) (int64, error)
}
