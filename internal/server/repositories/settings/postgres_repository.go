package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/sealvault/internal/common"
	"github.com/dmitrijs2005/sealvault/internal/dbx"
	"github.com/dmitrijs2005/sealvault/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Get(ctx context.Context, userID string) (*models.UserSettings, error) {
	query :=
		`SELECT user_id, trash_retention_days, updated_at FROM user_settings
		 WHERE user_id = $1
		 `

	s := &models.UserSettings{}
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&s.UserID, &s.TrashRetentionDays, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return s, nil
}

func (r *PostgresRepository) Upsert(ctx context.Context, s *models.UserSettings) error {
	query :=
		`INSERT INTO user_settings (user_id, trash_retention_days, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (user_id)
		 DO UPDATE SET trash_retention_days = EXCLUDED.trash_retention_days, updated_at = now()
		 RETURNING updated_at
		 `

	if err := r.db.QueryRowContext(ctx, query, s.UserID, s.TrashRetentionDays).Scan(&s.UpdatedAt); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM user_settings WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return res.RowsAffected()
}
