package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/sealvault/internal/common"
	"github.com/dmitrijs2005/sealvault/internal/dbx"
	"github.com/dmitrijs2005/sealvault/internal/server/auth"
	"github.com/dmitrijs2005/sealvault/internal/server/models"
	"github.com/dmitrijs2005/sealvault/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/sealvault/internal/server/repositories/settings"
)

type SettingsService struct {
	db                   *sql.DB
	repomanager          repomanager.RepositoryManager
	defaultRetentionDays int
}

func NewSettingsService(db *sql.DB, m repomanager.RepositoryManager, defaultRetentionDays int) *SettingsService {
	return &SettingsService{db: db, repomanager: m, defaultRetentionDays: ClampRetentionDays(defaultRetentionDays)}
}

// ClampRetentionDays forces days into the supported retention range.
func ClampRetentionDays(days int) int {
	return max(common.MinTrashRetentionDays, min(days, common.MaxTrashRetentionDays))
}

// Get returns the stored settings or the defaults when none were saved.
func (s *SettingsService) Get(ctx context.Context, caller auth.Caller) (*models.UserSettings, error) {
	return loadSettings(ctx, s.repomanager.Settings(s.db), caller.UserID, s.defaultRetentionDays)
}

func (s *SettingsService) SetRetentionDays(ctx context.Context, caller auth.Caller, days int) (*models.UserSettings, error) {
	if days < common.MinTrashRetentionDays || days > common.MaxTrashRetentionDays {
		return nil, fmt.Errorf("%w: trash retention must be between %d and %d days",
			common.ErrorValidation, common.MinTrashRetentionDays, common.MaxTrashRetentionDays)
	}

	us := &models.UserSettings{UserID: caller.UserID, TrashRetentionDays: days}
	err := withTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := lockActive(ctx, s.repomanager.Users(tx), caller.UserID); err != nil {
			return err
		}
		return s.repomanager.Settings(tx).Upsert(ctx, us)
	})
	if err != nil {
		return nil, fmt.Errorf("error saving settings: %w", err)
	}
	return us, nil
}

func loadSettings(ctx context.Context, repo settings.Repository, userID string, defaultDays int) (*models.UserSettings, error) {
	us, err := repo.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return &models.UserSettings{UserID: userID, TrashRetentionDays: defaultDays}, nil
		}
		return nil, err
	}
	us.TrashRetentionDays = ClampRetentionDays(us.TrashRetentionDays)
	return us, nil
}
