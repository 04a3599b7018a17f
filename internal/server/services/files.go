package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/sealvault/internal/common"
	"github.com/dmitrijs2005/sealvault/internal/dbx"
	"github.com/dmitrijs2005/sealvault/internal/envelope"
	"github.com/dmitrijs2005/sealvault/internal/logging"
	"github.com/dmitrijs2005/sealvault/internal/server/auth"
	"github.com/dmitrijs2005/sealvault/internal/server/blob"
	"github.com/dmitrijs2005/sealvault/internal/server/models"
	"github.com/dmitrijs2005/sealvault/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

const maxMimeTypeLength = 255

// PurgeResult summarizes one purge sweep. FailedIDs lists the files counted
// in Failed.
type PurgeResult struct {
	Due       int
	Purged    int
	Skipped   int
	Failed    int
	FailedIDs []string
}

type FileService struct {
	db                   *sql.DB
	repomanager          repomanager.RepositoryManager
	blobs                blob.Store
	log                  logging.Logger
	defaultRetentionDays int
	now                  func() time.Time
}

func NewFileService(db *sql.DB, m repomanager.RepositoryManager, blobs blob.Store, defaultRetentionDays int, log logging.Logger) *FileService {
	return &FileService{
		db:                   db,
		repomanager:          m,
		blobs:                blobs,
		log:                  log.With("module", "files"),
		defaultRetentionDays: ClampRetentionDays(defaultRetentionDays),
		now:                  time.Now,
	}
}

func blobPrefix(ownerID string) string {
	return "users/" + ownerID + "/"
}

// RequestUpload reserves a blob key under the caller's prefix and presigns a PUT for it.
func (s *FileService) RequestUpload(ctx context.Context, caller auth.Caller) (*models.UploadTicket, error) {
	user, err := s.repomanager.Users(s.db).GetByID(ctx, caller.UserID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		return nil, err
	}
	if user.Status != common.UserStatusActive {
		return nil, common.ErrorAccountLocked
	}

	key := blob.NewKey(caller.UserID)
	url, err := s.blobs.PresignPut(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("error presigning upload: %w", err)
	}
	return &models.UploadTicket{BlobKey: key, URL: url}, nil
}

// CompleteUpload records an uploaded blob and the owner's self-grant atomically.
func (s *FileService) CompleteUpload(ctx context.Context, caller auth.Caller, blobKey string, sizeBytes int64, mimeType, sealedDEK string) (*models.File, error) {
	if !strings.HasPrefix(blobKey, blobPrefix(caller.UserID)) || len(blobKey) == len(blobPrefix(caller.UserID)) {
		return nil, fmt.Errorf("%w: blob key outside caller prefix", common.ErrorValidation)
	}
	if sizeBytes < 0 {
		return nil, fmt.Errorf("%w: negative size", common.ErrorValidation)
	}
	if mimeType == "" || len(mimeType) > maxMimeTypeLength {
		return nil, fmt.Errorf("%w: invalid mime type", common.ErrorValidation)
	}
	if err := envelope.ValidateSealedKey(sealedDEK); err != nil {
		return nil, err
	}

	file := &models.File{
		ID:        uuid.NewString(),
		OwnerID:   caller.UserID,
		BlobKey:   blobKey,
		SizeBytes: sizeBytes,
		MimeType:  mimeType,
	}

	err := withTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := lockActive(ctx, s.repomanager.Users(tx), caller.UserID); err != nil {
			return err
		}
		if err := requireIdentity(ctx, s.repomanager.Identities(tx), caller.UserID, "owner"); err != nil {
			return err
		}
		if _, err := s.repomanager.Files(tx).Create(ctx, file); err != nil {
			return err
		}
		_, err := s.repomanager.FileGrants(tx).Create(ctx, &models.FileKeyGrant{
			FileID:          file.ID,
			RecipientUserID: caller.UserID,
			SealedDEK:       sealedDEK,
			SharedByUserID:  caller.UserID,
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("error creating file: %w", err)
	}

	s.log.Info(ctx, "file created", "file_id", file.ID, "owner_id", caller.UserID, "size_bytes", sizeBytes)
	return file, nil
}

// ListFiles returns active files the caller holds a personal grant on.
func (s *FileService) ListFiles(ctx context.Context, caller auth.Caller) ([]models.File, error) {
	return s.repomanager.Files(s.db).ListAccessible(ctx, caller.UserID)
}

// ListTrash returns the caller's trashed files.
func (s *FileService) ListTrash(ctx context.Context, caller auth.Caller) ([]models.File, error) {
	return s.repomanager.Files(s.db).ListTrashed(ctx, caller.UserID)
}

// ResolveKey returns how the caller can recover the file's DEK: through a
// personal grant when one exists, else through a folder the caller can open.
func (s *FileService) ResolveKey(ctx context.Context, caller auth.Caller, fileID string) (*models.KeyPath, error) {
	if err := validateIDs(fileID); err != nil {
		return nil, err
	}
	file, err := s.repomanager.Files(s.db).Get(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if file.State() != models.FileStateActive && file.OwnerID != caller.UserID {
		return nil, common.ErrorNotFound
	}
	return resolveKeyPath(ctx, s.repomanager, s.db, fileID, caller.UserID)
}

func resolveKeyPath(ctx context.Context, m repomanager.RepositoryManager, db dbx.DBTX, fileID, userID string) (*models.KeyPath, error) {
	grant, err := m.FileGrants(db).Get(ctx, fileID, userID)
	if err == nil {
		return &models.KeyPath{Kind: models.KeyPathPersonal, FileID: fileID, SealedDEK: grant.SealedDEK}, nil
	}
	if !errors.Is(err, common.ErrorNotFound) {
		return nil, err
	}
	return m.FolderFiles(db).FindAccessible(ctx, fileID, userID)
}

// DownloadURL presigns a GET for any holder of a key path to an active file.
func (s *FileService) DownloadURL(ctx context.Context, caller auth.Caller, fileID string) (string, error) {
	if err := validateIDs(fileID); err != nil {
		return "", err
	}
	file, err := s.repomanager.Files(s.db).Get(ctx, fileID)
	if err != nil {
		return "", err
	}
	if file.State() != models.FileStateActive {
		return "", common.ErrorNotFound
	}
	if _, err := resolveKeyPath(ctx, s.repomanager, s.db, fileID, caller.UserID); err != nil {
		return "", err
	}

	url, err := s.blobs.PresignGet(ctx, file.BlobKey)
	if err != nil {
		return "", fmt.Errorf("error presigning download: %w", err)
	}
	return url, nil
}

// Trash soft-deletes a file. The purge time follows the owner's retention
// setting at the moment of deletion. Trashing a trashed file is a no-op.
func (s *FileService) Trash(ctx context.Context, caller auth.Caller, fileID string) (*models.File, error) {
	if err := validateIDs(fileID); err != nil {
		return nil, err
	}

	var file *models.File
	err := withTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := lockActive(ctx, s.repomanager.Users(tx), caller.UserID); err != nil {
			return err
		}
		var err error
		file, err = s.lockOwned(ctx, tx, caller, fileID)
		if err != nil {
			return err
		}
		if file.State() == models.FileStateTrashed {
			return nil
		}

		us, err := loadSettings(ctx, s.repomanager.Settings(tx), caller.UserID, s.defaultRetentionDays)
		if err != nil {
			return err
		}
		deletedAt := s.now().UTC()
		purgeAt := deletedAt.AddDate(0, 0, us.TrashRetentionDays)
		if _, err := s.repomanager.Files(tx).SoftDelete(ctx, fileID, deletedAt, purgeAt); err != nil {
			return err
		}
		file.DeletedAt, file.ScheduledPurgeAt = &deletedAt, &purgeAt
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error trashing file: %w", err)
	}
	return file, nil
}

// Restore moves a trashed file back to active. Restoring an active file is a no-op.
func (s *FileService) Restore(ctx context.Context, caller auth.Caller, fileID string) (*models.File, error) {
	if err := validateIDs(fileID); err != nil {
		return nil, err
	}

	var file *models.File
	err := withTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := lockActive(ctx, s.repomanager.Users(tx), caller.UserID); err != nil {
			return err
		}
		var err error
		file, err = s.lockOwned(ctx, tx, caller, fileID)
		if err != nil {
			return err
		}
		if file.State() == models.FileStateActive {
			return nil
		}
		if _, err := s.repomanager.Files(tx).Restore(ctx, fileID); err != nil {
			return err
		}
		file.DeletedAt, file.ScheduledPurgeAt = nil, nil
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error restoring file: %w", err)
	}
	return file, nil
}

// PermanentDelete tears the file down immediately, trashed or not.
func (s *FileService) PermanentDelete(ctx context.Context, caller auth.Caller, fileID string) error {
	if err := validateIDs(fileID); err != nil {
		return err
	}

	err := withTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := lockActive(ctx, s.repomanager.Users(tx), caller.UserID); err != nil {
			return err
		}
		file, err := s.lockOwned(ctx, tx, caller, fileID)
		if err != nil {
			return err
		}
		return s.teardown(ctx, tx, file)
	})
	if err != nil {
		return fmt.Errorf("error deleting file: %w", err)
	}

	s.log.Info(ctx, "file deleted", "file_id", fileID, "owner_id", caller.UserID)
	return nil
}

// PurgeDue hard-deletes up to limit trashed files whose retention ran out,
// leaving out the ids in exclude. Each file is purged in its own transaction
// after re-checking, under a row lock, that it is still trashed and due;
// files restored in the meantime are skipped. Failures are logged and left
// for the next sweep.
func (s *FileService) PurgeDue(ctx context.Context, limit int, exclude []string) (PurgeResult, error) {
	now := s.now().UTC()
	var res PurgeResult

	listed, err := s.repomanager.Files(s.db).ListDue(ctx, now, limit+len(exclude))
	if err != nil {
		return res, fmt.Errorf("error listing due files: %w", err)
	}
	skip := make(map[string]struct{}, len(exclude))
	for _, id := range exclude {
		skip[id] = struct{}{}
	}
	ids := make([]string, 0, limit)
	for _, id := range listed {
		if _, ok := skip[id]; ok {
			continue
		}
		if len(ids) == limit {
			break
		}
		ids = append(ids, id)
	}
	res.Due = len(ids)

	for _, id := range ids {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		skipped := false
		err := withTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
			file, err := s.repomanager.Files(tx).LockTrashedDue(ctx, id, now)
			if err != nil {
				if errors.Is(err, common.ErrorNotFound) {
					skipped = true
					return nil
				}
				return err
			}
			return s.teardown(ctx, tx, file)
		})
		switch {
		case err != nil:
			res.Failed++
			res.FailedIDs = append(res.FailedIDs, id)
			s.log.Warn(ctx, "purge failed, will retry", "file_id", id, "error", err)
		case skipped:
			res.Skipped++
		default:
			res.Purged++
			s.log.Info(ctx, "file purged", "file_id", id)
		}
	}

	return res, nil
}

// teardown removes the grants and folder associations, then the blob, then
// the file row. The blob goes last before the row so a failed grant or
// association delete rolls back with the blob intact; a blob store error
// rolls the rows back too. Deleting a missing blob succeeds, so a retried
// teardown converges.
func (s *FileService) teardown(ctx context.Context, tx dbx.DBTX, file *models.File) error {
	if _, err := s.repomanager.FileGrants(tx).DeleteByFile(ctx, file.ID); err != nil {
		return err
	}
	if _, err := s.repomanager.FolderFiles(tx).DeleteByFile(ctx, file.ID); err != nil {
		return err
	}
	if err := s.blobs.Delete(ctx, file.BlobKey); err != nil {
		return err
	}
	_, err := s.repomanager.Files(tx).Delete(ctx, file.ID)
	return err
}

// lockOwned locks the file row; files the caller does not own are reported as missing.
func (s *FileService) lockOwned(ctx context.Context, tx dbx.DBTX, caller auth.Caller, fileID string) (*models.File, error) {
	file, err := s.repomanager.Files(tx).Lock(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if file.OwnerID != caller.UserID {
		return nil, common.ErrorNotFound
	}
	return file, nil
}
