// Package services implements the vault's operations on top of the
// repositories: key grants, folders, trash, recovery and account erasure.
// Every mutating operation runs inside dbx.WithTx and first takes a shared
// lock on the caller's account row, so account erasure cannot interleave.
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/sealvault/internal/common"
	"github.com/dmitrijs2005/sealvault/internal/dbx"
	"github.com/dmitrijs2005/sealvault/internal/server/repositories/identities"
	"github.com/dmitrijs2005/sealvault/internal/server/repositories/users"
	"github.com/google/uuid"
)

// withTx is a test seam for dbx.WithTx.
var withTx = dbx.WithTx

// lockActive holds a shared lock on the user row and fails unless the account
// is active. An unknown user is reported as unauthorized.
func lockActive(ctx context.Context, repo users.Repository, userID string) error {
	status, err := repo.LockActive(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrorUnauthorized
		}
		return err
	}
	if status != common.UserStatusActive {
		return common.ErrorAccountLocked
	}
	return nil
}

// requireIdentity fails when userID never registered public keys.
func requireIdentity(ctx context.Context, repo identities.Repository, userID, who string) error {
	if _, err := repo.Get(ctx, userID); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return fmt.Errorf("%w: %s has no registered identity", common.ErrorValidation, who)
		}
		return err
	}
	return nil
}

// requireActiveRecipient fails with common.ErrorNotFound unless the recipient
// exists, is active, and has registered public keys.
func requireActiveRecipient(ctx context.Context, u users.Repository, ids identities.Repository, recipientID string) error {
	user, err := u.GetByID(ctx, recipientID)
	if err != nil {
		return err
	}
	if user.Status != common.UserStatusActive {
		return common.ErrorNotFound
	}
	return requireIdentity(ctx, ids, recipientID, "recipient")
}

// validateIDs rejects anything that is not a UUID before it reaches SQL.
func validateIDs(ids ...string) error {
	for _, id := range ids {
		if _, err := uuid.Parse(id); err != nil {
			return fmt.Errorf("%w: malformed id %q", common.ErrorValidation, id)
		}
	}
	return nil
}
