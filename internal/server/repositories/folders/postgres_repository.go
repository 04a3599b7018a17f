package folders

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

func (r *PostgresRepository) Create(ctx context.Context, folder *models.Folder) (*models.Folder, error) {
	query :=
		`INSERT INTO folders (id, owner_id, name, sealed_folder_key_for_owner)
		 VALUES ($1, $2, $3, $4)
		 RETURNING created_at
		 `

	err := r.db.QueryRowContext(ctx, query, folder.ID, folder.OwnerID, folder.Name, folder.SealedFolderKeyForOwner).
		Scan(&folder.CreatedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return nil, common.ErrorConflict
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return folder, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.Folder, error) {
	query :=
		`SELECT id, owner_id, name, sealed_folder_key_for_owner, created_at FROM folders
		 WHERE id = $1
		 `

	f := &models.Folder{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(&f.ID, &f.OwnerID, &f.Name, &f.SealedFolderKeyForOwner, &f.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return f, nil
}

func (r *PostgresRepository) ListAccessible(ctx context.Context, userID string) ([]models.FolderEntry, error) {
	query :=
		`SELECT f.id, f.owner_id, f.name, f.sealed_folder_key_for_owner, f.created_at, g.sealed_folder_key FROM folders f
		 JOIN folder_key_grants g ON g.folder_id = f.id
		 WHERE g.recipient_user_id = $1
		 ORDER BY f.name
		 `

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var items []models.FolderEntry
	for rows.Next() {
		var e models.FolderEntry
		f := &e.Folder
		if err := rows.Scan(&f.ID, &f.OwnerID, &f.Name, &f.SealedFolderKeyForOwner, &f.CreatedAt, &e.SealedFolderKey); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		items = append(items, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return items, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM folders WHERE id = $1`, id)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return res.RowsAffected()
}

func (r *PostgresRepository) DeleteByOwner(ctx context.Context, ownerID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM folders WHERE owner_id = $1`, ownerID)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return res.RowsAffected()
}
