package folderfiles

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

func (r *PostgresRepository) Create(ctx context.Context, ffk *models.FolderFileKey) error {
	query :=
		`INSERT INTO folder_file_keys (file_id, folder_id, dek_sealed_under_folder_key, wrapping_nonce)
		 VALUES ($1, $2, $3, $4)
		 `

	if _, err := r.db.ExecContext(ctx, query, ffk.FileID, ffk.FolderID, ffk.DEKSealedUnderFolderKey, ffk.WrappingNonce); err != nil {
		if dbx.IsUniqueViolation(err) {
			return common.ErrorConflict
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, folderID, fileID string) (int64, error) {
	return r.exec(ctx, `DELETE FROM folder_file_keys WHERE folder_id = $1 AND file_id = $2`, folderID, fileID)
}

func (r *PostgresRepository) ListByFolder(ctx context.Context, folderID string) ([]models.FolderFileKey, error) {
	query :=
		`SELECT k.file_id, k.folder_id, k.dek_sealed_under_folder_key, k.wrapping_nonce FROM folder_file_keys k
		 JOIN files f ON f.id = k.file_id
		 WHERE k.folder_id = $1 AND f.deleted_at IS NULL
		 ORDER BY f.created_at
		 `

	rows, err := r.db.QueryContext(ctx, query, folderID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var items []models.FolderFileKey
	for rows.Next() {
		var k models.FolderFileKey
		if err := rows.Scan(&k.FileID, &k.FolderID, &k.DEKSealedUnderFolderKey, &k.WrappingNonce); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		items = append(items, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return items, nil
}

func (r *PostgresRepository) FindAccessible(ctx context.Context, fileID, userID string) (*models.KeyPath, error) {
	query :=
		`SELECT k.folder_id, g.sealed_folder_key, k.dek_sealed_under_folder_key, k.wrapping_nonce
		 FROM folder_file_keys k
		 JOIN folder_key_grants g ON g.folder_id = k.folder_id
		 WHERE k.file_id = $1 AND g.recipient_user_id = $2
		 ORDER BY g.shared_at
		 LIMIT 1
		 `

	p := &models.KeyPath{Kind: models.KeyPathFolder, FileID: fileID}
	err := r.db.QueryRowContext(ctx, query, fileID, userID).
		Scan(&p.FolderID, &p.SealedFolderKey, &p.DEKSealedUnderFolderKey, &p.WrappingNonce)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return p, nil
}

func (r *PostgresRepository) DeleteByFile(ctx context.Context, fileID string) (int64, error) {
	return r.exec(ctx, `DELETE FROM folder_file_keys WHERE file_id = $1`, fileID)
}

func (r *PostgresRepository) DeleteByFolder(ctx context.Context, folderID string) (int64, error) {
	return r.exec(ctx, `DELETE FROM folder_file_keys WHERE folder_id = $1`, folderID)
}

func (r *PostgresRepository) DeleteForUser(ctx context.Context, userID string) (int64, error) {
	query :=
		`DELETE FROM folder_file_keys
		 WHERE file_id IN (SELECT id FROM files WHERE owner_id = $1)
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
