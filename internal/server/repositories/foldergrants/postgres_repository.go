package foldergrants

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

func (r *PostgresRepository) Create(ctx context.Context, g *models.FolderKeyGrant) (*models.FolderKeyGrant, error) {
	query :=
		`INSERT INTO folder_key_grants (folder_id, recipient_user_id, sealed_folder_key, shared_by_user_id)
		 VALUES ($1, $2, $3, $4)
		 RETURNING shared_at
		 `

	sharedBy := sql.NullString{String: g.SharedByUserID, Valid: g.SharedByUserID != ""}
	err := r.db.QueryRowContext(ctx, query, g.FolderID, g.RecipientUserID, g.SealedFolderKey, sharedBy).Scan(&g.SharedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return nil, common.ErrorConflict
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return g, nil
}

func (r *PostgresRepository) Get(ctx context.Context, folderID, recipientUserID string) (*models.FolderKeyGrant, error) {
	query :=
		`SELECT folder_id, recipient_user_id, sealed_folder_key, shared_by_user_id, shared_at FROM folder_key_grants
		 WHERE folder_id = $1 AND recipient_user_id = $2
		 `

	g, err := scan(r.db.QueryRowContext(ctx, query, folderID, recipientUserID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return g, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, folderID, recipientUserID string) (int64, error) {
	return r.exec(ctx, `DELETE FROM folder_key_grants WHERE folder_id = $1 AND recipient_user_id = $2`, folderID, recipientUserID)
}

func (r *PostgresRepository) ListByFolder(ctx context.Context, folderID string) ([]models.FolderKeyGrant, error) {
	query :=
		`SELECT folder_id, recipient_user_id, sealed_folder_key, shared_by_user_id, shared_at FROM folder_key_grants
		 WHERE folder_id = $1
		 ORDER BY shared_at
		 `

	rows, err := r.db.QueryContext(ctx, query, folderID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var items []models.FolderKeyGrant
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

func (r *PostgresRepository) DeleteByFolder(ctx context.Context, folderID string) (int64, error) {
	return r.exec(ctx, `DELETE FROM folder_key_grants WHERE folder_id = $1`, folderID)
}

func (r *PostgresRepository) DeleteForUser(ctx context.Context, userID string) (int64, error) {
	query :=
		`DELETE FROM folder_key_grants
		 WHERE recipient_user_id = $1
		    OR folder_id IN (SELECT id FROM folders WHERE owner_id = $1)
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

func scan(s scanner) (*models.FolderKeyGrant, error) {
	g := &models.FolderKeyGrant{}
	var sharedBy sql.NullString
	if err := s.Scan(&g.FolderID, &g.RecipientUserID, &g.SealedFolderKey, &sharedBy, &g.SharedAt); err != nil {
		return nil, err
	}
	g.SharedByUserID = sharedBy.String
	return g, nil
}
