package services

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/sealvault/internal/common"
	"github.com/dmitrijs2005/sealvault/internal/dbx"
	"github.com/dmitrijs2005/sealvault/internal/envelope"
	"github.com/dmitrijs2005/sealvault/internal/logging"
	"github.com/dmitrijs2005/sealvault/internal/server/auth"
	"github.com/dmitrijs2005/sealvault/internal/server/models"
	"github.com/dmitrijs2005/sealvault/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

const maxFolderNameLength = 255

// FolderService manages the folder key layer. A file placed in a folder has
// its DEK wrapped under the folder key, so sharing a folder costs one sealed
// folder key per recipient however many files it holds.
type FolderService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	log         logging.Logger
}

func NewFolderService(db *sql.DB, m repomanager.RepositoryManager, log logging.Logger) *FolderService {
	return &FolderService{db: db, repomanager: m, log: log.With("module", "folders")}
}

// CreateFolder creates the folder together with the owner's folder key grant.
func (s *FolderService) CreateFolder(ctx context.Context, caller auth.Caller, name, sealedFolderKey string) (*models.Folder, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > maxFolderNameLength {
		return nil, fmt.Errorf("%w: folder name must be 1 to %d characters", common.ErrorValidation, maxFolderNameLength)
	}
	if err := envelope.ValidateSealedKey(sealedFolderKey); err != nil {
		return nil, err
	}

	folder := &models.Folder{
		ID:                      uuid.NewString(),
		OwnerID:                 caller.UserID,
		Name:                    name,
		SealedFolderKeyForOwner: sealedFolderKey,
	}
	err := withTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := lockActive(ctx, s.repomanager.Users(tx), caller.UserID); err != nil {
			return err
		}
		if err := requireIdentity(ctx, s.repomanager.Identities(tx), caller.UserID, "owner"); err != nil {
			return err
		}
		if _, err := s.repomanager.Folders(tx).Create(ctx, folder); err != nil {
			return err
		}
		_, err := s.repomanager.FolderGrants(tx).Create(ctx, &models.FolderKeyGrant{
			FolderID:        folder.ID,
			RecipientUserID: caller.UserID,
			SealedFolderKey: sealedFolderKey,
			SharedByUserID:  caller.UserID,
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("error creating folder: %w", err)
	}

	s.log.Info(ctx, "folder created", "folder_id", folder.ID, "owner_id", caller.UserID)
	return folder, nil
}

// AddFile associates a file with a folder using its DEK wrapped under the
// folder key. The caller needs a folder grant and a personal grant on the
// active file; the file's own grants are left as they are.
func (s *FolderService) AddFile(ctx context.Context, caller auth.Caller, folderID, fileID, wrappedDEK, nonce string) error {
	if err := validateIDs(folderID, fileID); err != nil {
		return err
	}
	if err := envelope.ValidateFolderWrap(wrappedDEK, nonce); err != nil {
		return err
	}

	err := withTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := lockActive(ctx, s.repomanager.Users(tx), caller.UserID); err != nil {
			return err
		}
		if _, err := s.repomanager.FolderGrants(tx).Get(ctx, folderID, caller.UserID); err != nil {
			return err
		}
		file, err := s.repomanager.Files(tx).Get(ctx, fileID)
		if err != nil {
			return err
		}
		if file.State() != models.FileStateActive {
			return common.ErrorNotFound
		}
		if _, err := s.repomanager.FileGrants(tx).Get(ctx, fileID, caller.UserID); err != nil {
			return err
		}
		return s.repomanager.FolderFiles(tx).Create(ctx, &models.FolderFileKey{
			FileID:                  fileID,
			FolderID:                folderID,
			DEKSealedUnderFolderKey: wrappedDEK,
			WrappingNonce:           nonce,
		})
	})
	if err != nil {
		return fmt.Errorf("error adding file to folder: %w", err)
	}

	s.log.Info(ctx, "file added to folder", "folder_id", folderID, "file_id", fileID)
	return nil
}

// RemoveFile drops the association. Only the folder owner or the file owner
// may do this; removing an absent association succeeds.
func (s *FolderService) RemoveFile(ctx context.Context, caller auth.Caller, folderID, fileID string) error {
	if err := validateIDs(folderID, fileID); err != nil {
		return err
	}

	err := withTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := lockActive(ctx, s.repomanager.Users(tx), caller.UserID); err != nil {
			return err
		}
		folder, err := s.repomanager.Folders(tx).Get(ctx, folderID)
		if err != nil {
			return err
		}
		if folder.OwnerID != caller.UserID {
			file, err := s.repomanager.Files(tx).Get(ctx, fileID)
			if err != nil {
				return err
			}
			if file.OwnerID != caller.UserID {
				return common.ErrorNotFound
			}
		}
		_, err = s.repomanager.FolderFiles(tx).Delete(ctx, folderID, fileID)
		return err
	})
	if err != nil {
		return fmt.Errorf("error removing file from folder: %w", err)
	}
	return nil
}

// ShareFolder stores the folder key sealed to the recipient. It creates no
// per-file grants; the recipient reaches every file through the folder key.
func (s *FolderService) ShareFolder(ctx context.Context, caller auth.Caller, folderID, recipientUserID, sealedFolderKey string) (*models.FolderKeyGrant, error) {
	if err := validateIDs(folderID, recipientUserID); err != nil {
		return nil, err
	}
	if err := envelope.ValidateSealedKey(sealedFolderKey); err != nil {
		return nil, err
	}

	var grant *models.FolderKeyGrant
	err := withTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := lockActive(ctx, s.repomanager.Users(tx), caller.UserID); err != nil {
			return err
		}
		if _, err := s.repomanager.FolderGrants(tx).Get(ctx, folderID, caller.UserID); err != nil {
			return err
		}
		if err := requireIdentity(ctx, s.repomanager.Identities(tx), caller.UserID, "sharer"); err != nil {
			return err
		}
		if err := requireActiveRecipient(ctx, s.repomanager.Users(tx), s.repomanager.Identities(tx), recipientUserID); err != nil {
			return err
		}
		var err error
		grant, err = s.repomanager.FolderGrants(tx).Create(ctx, &models.FolderKeyGrant{
			FolderID:        folderID,
			RecipientUserID: recipientUserID,
			SealedFolderKey: sealedFolderKey,
			SharedByUserID:  caller.UserID,
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("error sharing folder: %w", err)
	}

	s.log.Info(ctx, "folder shared", "folder_id", folderID, "recipient_id", recipientUserID, "shared_by", caller.UserID)
	return grant, nil
}

// RevokeFolder removes the recipient's folder key grant with the same rules
// as file revocation. Per-file grants the recipient holds are untouched.
func (s *FolderService) RevokeFolder(ctx context.Context, caller auth.Caller, folderID, recipientUserID string) error {
	if err := validateIDs(folderID, recipientUserID); err != nil {
		return err
	}

	err := withTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := lockActive(ctx, s.repomanager.Users(tx), caller.UserID); err != nil {
			return err
		}
		folder, err := s.repomanager.Folders(tx).Get(ctx, folderID)
		if err != nil {
			return err
		}
		if recipientUserID == folder.OwnerID {
			return fmt.Errorf("%w: the owner's grant cannot be revoked", common.ErrorValidation)
		}
		if caller.UserID != folder.OwnerID && caller.UserID != recipientUserID {
			return common.ErrorNotFound
		}
		_, err = s.repomanager.FolderGrants(tx).Delete(ctx, folderID, recipientUserID)
		return err
	})
	if err != nil {
		return fmt.Errorf("error revoking folder: %w", err)
	}
	return nil
}

// ListFolderFiles returns the wrapped DEKs of the folder's active files.
func (s *FolderService) ListFolderFiles(ctx context.Context, caller auth.Caller, folderID string) ([]models.FolderFileKey, error) {
	if err := validateIDs(folderID); err != nil {
		return nil, err
	}
	if _, err := s.repomanager.FolderGrants(s.db).Get(ctx, folderID, caller.UserID); err != nil {
		return nil, err
	}
	return s.repomanager.FolderFiles(s.db).ListByFolder(ctx, folderID)
}

// ListFolderAccess returns the owner and every other folder key holder.
func (s *FolderService) ListFolderAccess(ctx context.Context, caller auth.Caller, folderID string) (*models.AccessList, error) {
	if err := validateIDs(folderID); err != nil {
		return nil, err
	}
	folder, err := s.repomanager.Folders(s.db).Get(ctx, folderID)
	if err != nil {
		return nil, err
	}
	if _, err := s.repomanager.FolderGrants(s.db).Get(ctx, folderID, caller.UserID); err != nil {
		return nil, err
	}

	grants, err := s.repomanager.FolderGrants(s.db).ListByFolder(ctx, folderID)
	if err != nil {
		return nil, err
	}

	list := &models.AccessList{OwnerID: folder.OwnerID, SharedWith: []models.Grantee{}}
	for _, g := range grants {
		if g.RecipientUserID == folder.OwnerID {
			continue
		}
		list.SharedWith = append(list.SharedWith, models.Grantee{
			UserID:         g.RecipientUserID,
			SharedByUserID: g.SharedByUserID,
			SharedAt:       g.SharedAt,
		})
	}
	return list, nil
}

// ListFolders returns every folder the caller holds a key for.
func (s *FolderService) ListFolders(ctx context.Context, caller auth.Caller) ([]models.FolderEntry, error) {
	return s.repomanager.Folders(s.db).ListAccessible(ctx, caller.UserID)
}

// DeleteFolder removes the folder, its grants and its file associations. The
// files themselves stay.
func (s *FolderService) DeleteFolder(ctx context.Context, caller auth.Caller, folderID string) error {
	if err := validateIDs(folderID); err != nil {
		return err
	}

	err := withTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := lockActive(ctx, s.repomanager.Users(tx), caller.UserID); err != nil {
			return err
		}
		folder, err := s.repomanager.Folders(tx).Get(ctx, folderID)
		if err != nil {
			return err
		}
		if folder.OwnerID != caller.UserID {
			return common.ErrorNotFound
		}
		if _, err := s.repomanager.FolderFiles(tx).DeleteByFolder(ctx, folderID); err != nil {
			return err
		}
		if _, err := s.repomanager.FolderGrants(tx).DeleteByFolder(ctx, folderID); err != nil {
			return err
		}
		_, err = s.repomanager.Folders(tx).Delete(ctx, folderID)
		return err
	})
	if err != nil {
		return fmt.Errorf("error deleting folder: %w", err)
	}

	s.log.Info(ctx, "folder deleted", "folder_id", folderID, "owner_id", caller.UserID)
	return nil
}
