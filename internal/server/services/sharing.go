package services

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/sealvault/internal/common"
	"github.com/dmitrijs2005/sealvault/internal/dbx"
	"github.com/dmitrijs2005/sealvault/internal/envelope"
	"github.com/dmitrijs2005/sealvault/internal/logging"
	"github.com/dmitrijs2005/sealvault/internal/server/auth"
	"github.com/dmitrijs2005/sealvault/internal/server/models"
	"github.com/dmitrijs2005/sealvault/internal/server/repositories/repomanager"
)

// GrantRequest is one recipient of a bulk grant with the DEK resealed to them.
type GrantRequest struct {
	RecipientUserID string
	SealedDEK       string
}

// GrantFailure records why one bulk grant entry was not applied.
type GrantFailure struct {
	RecipientUserID string
	Err             error
}

type BulkGrantResult struct {
	Granted  int
	Failures []GrantFailure
}

// SharingService manages per-file key grants. The server only stores the
// sealed DEKs clients produce. Revocation removes a grant but cannot
// retract a key the recipient already fetched.
type SharingService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	log         logging.Logger
}

func NewSharingService(db *sql.DB, m repomanager.RepositoryManager, log logging.Logger) *SharingService {
	return &SharingService{db: db, repomanager: m, log: log.With("module", "sharing")}
}

// GrantAccess stores a DEK sealed to the recipient. The caller must hold a
// grant on the active file. An existing grant for the recipient is a
// conflict; replacing a key means revoking first.
func (s *SharingService) GrantAccess(ctx context.Context, caller auth.Caller, fileID, recipientUserID, sealedDEK string) (*models.FileKeyGrant, error) {
	if err := validateIDs(fileID, recipientUserID); err != nil {
		return nil, err
	}
	if err := envelope.ValidateSealedKey(sealedDEK); err != nil {
		return nil, err
	}

	var grant *models.FileKeyGrant
	err := withTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		grant, err = s.grant(ctx, tx, caller, fileID, recipientUserID, sealedDEK)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("error granting access: %w", err)
	}

	s.log.Info(ctx, "file shared", "file_id", fileID, "recipient_id", recipientUserID, "shared_by", caller.UserID)
	return grant, nil
}

func (s *SharingService) grant(ctx context.Context, tx dbx.DBTX, caller auth.Caller, fileID, recipientUserID, sealedDEK string) (*models.FileKeyGrant, error) {
	if err := lockActive(ctx, s.repomanager.Users(tx), caller.UserID); err != nil {
		return nil, err
	}
	file, err := s.repomanager.Files(tx).Get(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if file.State() != models.FileStateActive {
		return nil, common.ErrorNotFound
	}
	if _, err := s.repomanager.FileGrants(tx).Get(ctx, fileID, caller.UserID); err != nil {
		return nil, err
	}
	if err := requireIdentity(ctx, s.repomanager.Identities(tx), caller.UserID, "sharer"); err != nil {
		return nil, err
	}
	if err := requireActiveRecipient(ctx, s.repomanager.Users(tx), s.repomanager.Identities(tx), recipientUserID); err != nil {
		return nil, err
	}

	return s.repomanager.FileGrants(tx).Create(ctx, &models.FileKeyGrant{
		FileID:          fileID,
		RecipientUserID: recipientUserID,
		SealedDEK:       sealedDEK,
		SharedByUserID:  caller.UserID,
	})
}

// RevokeAccess deletes the recipient's grant. The owner may revoke anyone
// but themselves; a recipient may drop their own grant. Revoking an absent
// grant succeeds.
func (s *SharingService) RevokeAccess(ctx context.Context, caller auth.Caller, fileID, recipientUserID string) error {
	if err := validateIDs(fileID, recipientUserID); err != nil {
		return err
	}

	var removed int64
	err := withTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := lockActive(ctx, s.repomanager.Users(tx), caller.UserID); err != nil {
			return err
		}
		file, err := s.repomanager.Files(tx).Get(ctx, fileID)
		if err != nil {
			return err
		}
		if recipientUserID == file.OwnerID {
			return fmt.Errorf("%w: the owner's grant cannot be revoked", common.ErrorValidation)
		}
		if caller.UserID != file.OwnerID && caller.UserID != recipientUserID {
			return common.ErrorNotFound
		}
		removed, err = s.repomanager.FileGrants(tx).Delete(ctx, fileID, recipientUserID)
		return err
	})
	if err != nil {
		return fmt.Errorf("error revoking access: %w", err)
	}

	if removed > 0 {
		s.log.Info(ctx, "file access revoked", "file_id", fileID, "recipient_id", recipientUserID, "revoked_by", caller.UserID)
	}
	return nil
}

// ListAccess returns the owner and every other grant holder. Any holder of a
// key path to the file may look.
func (s *SharingService) ListAccess(ctx context.Context, caller auth.Caller, fileID string) (*models.AccessList, error) {
	if err := validateIDs(fileID); err != nil {
		return nil, err
	}
	file, err := s.repomanager.Files(s.db).Get(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if _, err := resolveKeyPath(ctx, s.repomanager, s.db, fileID, caller.UserID); err != nil {
		return nil, err
	}

	grants, err := s.repomanager.FileGrants(s.db).ListByFile(ctx, fileID)
	if err != nil {
		return nil, err
	}

	list := &models.AccessList{OwnerID: file.OwnerID, SharedWith: []models.Grantee{}}
	for _, g := range grants {
		if g.RecipientUserID == file.OwnerID {
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

// BulkGrant applies GrantAccess per entry, each in its own transaction, and
// reports how many succeeded. It never fails as a whole.
func (s *SharingService) BulkGrant(ctx context.Context, caller auth.Caller, fileID string, reqs []GrantRequest) *BulkGrantResult {
	res := &BulkGrantResult{}
	for _, r := range reqs {
		if _, err := s.GrantAccess(ctx, caller, fileID, r.RecipientUserID, r.SealedDEK); err != nil {
			res.Failures = append(res.Failures, GrantFailure{RecipientUserID: r.RecipientUserID, Err: err})
			continue
		}
		res.Granted++
	}
	return res
}
