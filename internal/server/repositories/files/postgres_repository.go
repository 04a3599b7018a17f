package files

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/sealvault/internal/common"
	"github.com/dmitrijs2005/sealvault/internal/dbx"
	"github.com/dmitrijs2005/sealvault/internal/server/models"
)

const fileColumns = `f.id, f.owner_id, f.blob_key, f.size_bytes, f.mime_type, f.created_at, f.deleted_at, f.scheduled_purge_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, file *models.File) (*models.File, error) {
	query :=
		`INSERT INTO files (id, owner_id, blob_key, size_bytes, mime_type)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING created_at
		 `

	err := r.db.QueryRowContext(ctx, query, file.ID, file.OwnerID, file.BlobKey, file.SizeBytes, file.MimeType).
		Scan(&file.CreatedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return nil, common.ErrorConflict
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return file, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.File, error) {
	query := `SELECT ` + fileColumns + ` FROM files f WHERE f.id = $1`
	return scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) Lock(ctx context.Context, id string) (*models.File, error) {
	query := `SELECT ` + fileColumns + ` FROM files f WHERE f.id = $1 FOR UPDATE`
	return scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) ListAccessible(ctx context.Context, userID string) ([]models.File, error) {
	query :=
		`SELECT ` + fileColumns + ` FROM files f
		 JOIN file_key_grants g ON g.file_id = f.id
		 WHERE g.recipient_user_id = $1 AND f.deleted_at IS NULL
		 ORDER BY f.created_at
		 `
	return r.list(ctx, query, userID)
}

func (r *PostgresRepository) ListTrashed(ctx context.Context, ownerID string) ([]models.File, error) {
	query :=
		`SELECT ` + fileColumns + ` FROM files f
		 WHERE f.owner_id = $1 AND f.deleted_at IS NOT NULL
		 ORDER BY f.deleted_at
		 `
	return r.list(ctx, query, ownerID)
}

func (r *PostgresRepository) ListByOwner(ctx context.Context, ownerID string) ([]models.File, error) {
	query := `SELECT ` + fileColumns + ` FROM files f WHERE f.owner_id = $1 ORDER BY f.created_at`
	return r.list(ctx, query, ownerID)
}

func (r *PostgresRepository) SoftDelete(ctx context.Context, id string, deletedAt, purgeAt time.Time) (int64, error) {
	query :=
		`UPDATE files SET deleted_at = $2, scheduled_purge_at = $3
		 WHERE id = $1 AND deleted_at IS NULL
		 `
	return r.exec(ctx, query, id, deletedAt, purgeAt)
}

func (r *PostgresRepository) Restore(ctx context.Context, id string) (int64, error) {
	query :=
		`UPDATE files SET deleted_at = NULL, scheduled_purge_at = NULL
		 WHERE id = $1 AND deleted_at IS NOT NULL
		 `
	return r.exec(ctx, query, id)
}

func (r *PostgresRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]string, error) {
	query :=
		`SELECT id FROM files
		 WHERE deleted_at IS NOT NULL AND scheduled_purge_at <= $1
		 ORDER BY scheduled_purge_at
		 LIMIT $2
		 `

	rows, err := r.db.QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return ids, nil
}

func (r *PostgresRepository) LockTrashedDue(ctx context.Context, id string, now time.Time) (*models.File, error) {
	query :=
		`SELECT ` + fileColumns + ` FROM files f
		 WHERE f.id = $1 AND f.deleted_at IS NOT NULL AND f.scheduled_purge_at <= $2
		 FOR UPDATE
		 `
	return scanOne(r.db.QueryRowContext(ctx, query, id, now))
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) (int64, error) {
	return r.exec(ctx, `DELETE FROM files WHERE id = $1`, id)
}

func (r *PostgresRepository) DeleteByOwner(ctx context.Context, ownerID string) (int64, error) {
	return r.exec(ctx, `DELETE FROM files WHERE owner_id = $1`, ownerID)
}

func (r *PostgresRepository) exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return res.RowsAffected()
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]models.File, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var items []models.File
	for rows.Next() {
		f, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		items = append(items, *f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return items, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(s scanner) (*models.File, error) {
	f := &models.File{}
	var deletedAt, purgeAt sql.NullTime
	if err := s.Scan(&f.ID, &f.OwnerID, &f.BlobKey, &f.SizeBytes, &f.MimeType, &f.CreatedAt, &deletedAt, &purgeAt); err != nil {
		return nil, err
	}
	if deletedAt.Valid {
		f.DeletedAt = &deletedAt.Time
	}
	if purgeAt.Valid {
		f.ScheduledPurgeAt = &purgeAt.Time
	}
	return f, nil
}

func scanOne(row *sql.Row) (*models.File, error) {
	f, err := scan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return f, nil
}
