package recoverytokens

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

func (r *PostgresRepository) LockIdentifier(ctx context.Context, identifier string) error {
	if err := dbx.AdvisoryXactLock(ctx, r.db, "recovery:"+identifier); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Create(ctx context.Context, t *models.RecoveryToken) (*models.RecoveryToken, error) {
	query :=
		`INSERT INTO recovery_tokens (id, identifier, token_value, expires_at)
		 VALUES ($1, $2, $3, $4)
		 RETURNING created_at
		 `

	if err := r.db.QueryRowContext(ctx, query, t.ID, t.Identifier, t.TokenValue, t.ExpiresAt).Scan(&t.CreatedAt); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return t, nil
}

func (r *PostgresRepository) FindByValue(ctx context.Context, value string) (*models.RecoveryToken, error) {
	query :=
		`SELECT id, identifier, token_value, expires_at, created_at FROM recovery_tokens
		 WHERE token_value = $1
		 FOR UPDATE
		 `

	t := &models.RecoveryToken{}
	err := r.db.QueryRowContext(ctx, query, value).Scan(&t.ID, &t.Identifier, &t.TokenValue, &t.ExpiresAt, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return t, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM recovery_tokens WHERE id = $1`, id)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return res.RowsAffected()
}

func (r *PostgresRepository) DeleteByIdentifier(ctx context.Context, identifier string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM recovery_tokens WHERE identifier = $1`, identifier)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return res.RowsAffected()
}
