package services

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/sealvault/internal/dbx"
	"github.com/dmitrijs2005/sealvault/internal/envelope"
	"github.com/dmitrijs2005/sealvault/internal/logging"
	"github.com/dmitrijs2005/sealvault/internal/server/auth"
	"github.com/dmitrijs2005/sealvault/internal/server/models"
	"github.com/dmitrijs2005/sealvault/internal/server/repositories/repomanager"
)

type IdentityService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	log         logging.Logger
}

func NewIdentityService(db *sql.DB, m repomanager.RepositoryManager, log logging.Logger) *IdentityService {
	return &IdentityService{db: db, repomanager: m, log: log.With("module", "identity")}
}

// Register stores the caller's public keys. Keys are registered once; a
// second call fails with common.ErrorConflict.
func (s *IdentityService) Register(ctx context.Context, caller auth.Caller, keys envelope.PublicKeys) (*models.Identity, error) {
	if err := envelope.ValidateBoxPublicKey(keys.X25519); err != nil {
		return nil, err
	}
	if err := envelope.ValidateSigningPublicKey(keys.Ed25519); err != nil {
		return nil, err
	}

	var identity *models.Identity
	err := withTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := lockActive(ctx, s.repomanager.Users(tx), caller.UserID); err != nil {
			return err
		}
		var err error
		identity, err = s.repomanager.Identities(tx).Create(ctx, &models.Identity{
			UserID:           caller.UserID,
			X25519PublicKey:  keys.X25519,
			Ed25519PublicKey: keys.Ed25519,
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("error registering identity: %w", err)
	}

	s.log.Info(ctx, "identity registered", "user_id", caller.UserID)
	return identity, nil
}

// Get returns the public keys of userID so a sharer can seal to them.
func (s *IdentityService) Get(ctx context.Context, userID string) (*models.Identity, error) {
	if err := validateIDs(userID); err != nil {
		return nil, err
	}
	return s.repomanager.Identities(s.db).Get(ctx, userID)
}
