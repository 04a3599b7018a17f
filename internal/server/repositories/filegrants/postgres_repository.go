package filegrants

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

func (r *PostgresRepository) Create(ctx context.Context, g *models.FileKeyGrant) (*models.FileKeyGrant, error) {
	query :=
		`INSERT INTO file_key_grants (file_id, recipient_user_id, sealed_dek, shared_by_user_id)
		 VALUES ($1, $2, $3, $4)
		 RETURNING shared_at
		 `

	err := r.db.QueryRowContext(ctx, query, g.FileID, g.RecipientUserID, g.SealedDEK, nullable(g.SharedByUserID)).
		Scan(&g.SharedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return nil, common.ErrorConflict
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return g, nil
}

func (r *PostgresRepository) Get(ctx context.Context, fileID, recipientUserID string) (*models.FileKeyGrant, error) {
	query :=
		`SELECT file_id, recipient_user_id, sealed_dek, shared_by_user_id, shared_at FROM file_key_grants
		 WHERE file_id = $1 AND recipient_user_id = $2
		 `

	g, err := scan(r.db.QueryRowContext(ctx, query, fileID, recipientUserID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return g, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, fileID, recipientUserID string) (int64, error) {
	return r.exec(ctx, `DELETE FROM file_key_grants WHERE file_id = $1 AND recipient_user_id = $2`, fileID, recipientUserID)
}

func (r *PostgresRepository) ListByFile(ctx context.Context, fileID string) ([]models.FileKeyGrant, error) {
	query :=
		`SELECT file_id, recipient_user_id, sealed_dek, shared_by_user_id, shared_at FROM file_key_grants
		 WHERE file_id = $1
		 ORDER BY shared_at
		 `

	rows, err := r.db.QueryContext(ctx, query, fileID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var items []models.FileKeyGrant
	for rows.Next() {
		g, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		items = append(items, *g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return items, nil
}

func (r *PostgresRepository) DeleteByFile(ctx context.Context, fileID string) (int64, error) {
	return r.exec(ctx, `DELETE FROM file_key_grants WHERE file_id = $1`, fileID)
}

func (r *PostgresRepository) DeleteForUser(ctx context.Context, userID string) (int64, error) {
	query :=
		`DELETE FROM file_key_grants
		 WHERE recipient_user_id = $1
		    OR file_id IN (SELECT id FROM files WHERE owner_id = $1)
		 `
	return r.exec(ctx, query, userID)
}

func (r *PostgresRepository) exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(s scanner) (*models.FileKeyGrant, error) {
	g := &models.FileKeyGrant{}
	var sharedBy sql.NullString
	if err := s.Scan(&g.FileID, &g.RecipientUserID, &g.SealedDEK, &sharedBy, &g.SharedAt); err != nil {
		return nil, err
	}
	g.SharedByUserID = sharedBy.String
	return g, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
