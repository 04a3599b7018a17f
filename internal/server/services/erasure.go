package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/sealvault/internal/common"
	"github.com/dmitrijs2005/sealvault/internal/dbx"
	"github.com/dmitrijs2005/sealvault/internal/logging"
	"github.com/dmitrijs2005/sealvault/internal/server/blob"
	"github.com/dmitrijs2005/sealvault/internal/server/events"
	"github.com/dmitrijs2005/sealvault/internal/server/models"
	"github.com/dmitrijs2005/sealvault/internal/server/repositories/repomanager"
)

// ErasureService removes every trace of an account.
//
// The account is first flagged "erasing" in its own transaction, which stops
// all further mutations and makes the erasure resumable. Blobs are then
// deleted best-effort, outside any transaction. All rows go in one
// transaction, dependents before the rows they reference. Finally an
// account.erased event is published.
type ErasureService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	blobs       blob.Store
	publisher   events.Publisher
	log         logging.Logger
	now         func() time.Time
}

func NewErasureService(db *sql.DB, m repomanager.RepositoryManager, blobs blob.Store, publisher events.Publisher, log logging.Logger) *ErasureService {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &ErasureService{
		db:          db,
		repomanager: m,
		blobs:       blobs,
		publisher:   publisher,
		log:         log.With("module", "erasure"),
		now:         time.Now,
	}
}

// EraseByEmail erases the account registered under email.
func (s *ErasureService) EraseByEmail(ctx context.Context, email string) (*models.ErasureReport, error) {
	user, err := s.repomanager.Users(s.db).GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return nil, err
	}
	return s.EraseUser(ctx, user.ID)
}

// EraseUser erases the account. When some blobs could not be deleted the
// rows are still removed and the report comes back with
// common.ErrorPartialFailure.
func (s *ErasureService) EraseUser(ctx context.Context, userID string) (*models.ErasureReport, error) {
	if err := validateIDs(userID); err != nil {
		return nil, err
	}
	report := &models.ErasureReport{UserID: userID, StartedAt: s.now().UTC()}
	log := s.log.With("user_id", userID)

	err := withTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		status, err := s.repomanager.Users(tx).LockActive(ctx, userID)
		if err != nil {
			return err
		}
		report.Resumed = status == common.UserStatusErasing
		user, err := s.repomanager.Users(tx).MarkErasing(ctx, userID)
		if err != nil {
			return err
		}
		report.Email = user.Email
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error starting erasure: %w", err)
	}
	log.Info(ctx, "account erasure started", "resumed", report.Resumed)

	files, err := s.repomanager.Files(s.db).ListByOwner(ctx, userID)
	if err != nil {
		return report, fmt.Errorf("error listing files: %w", err)
	}
	for _, f := range files {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		if err := s.blobs.Delete(ctx, f.BlobKey); err != nil {
			log.Warn(ctx, "blob not deleted", "file_id", f.ID, "error", err)
			report.BlobFailures = append(report.BlobFailures, models.BlobFailure{
				FileID:  f.ID,
				BlobKey: f.BlobKey,
				Error:   err.Error(),
			})
			continue
		}
		report.BlobsDeleted++
	}

	var steps []models.ErasureStep
	err = withTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		steps = steps[:0]
		for _, step := range s.teardownSteps(tx, userID, report.Email) {
			n, err := step.run(ctx)
			if err != nil {
				return fmt.Errorf("%s: %w", step.name, err)
			}
			steps = append(steps, models.ErasureStep{Name: step.name, RowsDeleted: n})
		}
		return nil
	})
	if err != nil {
		return report, fmt.Errorf("error erasing account rows: %w", err)
	}
	report.Steps = steps
	report.FinishedAt = s.now().UTC()

	ev := events.AccountErased{
		Type:         events.TypeAccountErased,
		UserID:       userID,
		ErasedAt:     report.FinishedAt,
		RowsDeleted:  report.TotalRows(),
		BlobFailures: len(report.BlobFailures),
	}
	if err := s.publisher.PublishAccountErased(ctx, ev); err != nil {
		log.Warn(ctx, "account erased event not published", "error", err)
		report.EventError = err.Error()
	}

	log.Info(ctx, "account erased",
		"rows_deleted", report.TotalRows(),
		"blobs_deleted", report.BlobsDeleted,
		"blob_failures", len(report.BlobFailures),
	)

	if len(report.BlobFailures) > 0 {
		return report, fmt.Errorf("%w: %d blob(s) left in the store", common.ErrorPartialFailure, len(report.BlobFailures))
	}
	return report, nil
}

type erasureStep struct {
	name string
	run  func(ctx context.Context) (int64, error)
}

func (s *ErasureService) teardownSteps(tx dbx.DBTX, userID, email string) []erasureStep {
	m := s.repomanager
	return []erasureStep{
		{"folder_file_keys", func(ctx context.Context) (int64, error) { return m.FolderFiles(tx).DeleteForUser(ctx, userID) }},
		{"file_key_grants", func(ctx context.Context) (int64, error) { return m.FileGrants(tx).DeleteForUser(ctx, userID) }},
		{"files", func(ctx context.Context) (int64, error) { return m.Files(tx).DeleteByOwner(ctx, userID) }},
		{"folder_key_grants", func(ctx context.Context) (int64, error) { return m.FolderGrants(tx).DeleteForUser(ctx, userID) }},
		{"folders", func(ctx context.Context) (int64, error) { return m.Folders(tx).DeleteByOwner(ctx, userID) }},
		{"user_settings", func(ctx context.Context) (int64, error) { return m.Settings(tx).DeleteByUser(ctx, userID) }},
		{"security_questions", func(ctx context.Context) (int64, error) { return m.Questions(tx).DeleteByUser(ctx, userID) }},
		{"identities", func(ctx context.Context) (int64, error) { return m.Identities(tx).DeleteByUser(ctx, userID) }},
		{"recovery_tokens", func(ctx context.Context) (int64, error) { return m.RecoveryTokens(tx).DeleteByIdentifier(ctx, email) }},
		{"refresh_tokens", func(ctx context.Context) (int64, error) { return m.RefreshTokens(tx).DeleteByUser(ctx, userID) }},
		{"credentials", func(ctx context.Context) (int64, error) { return m.Credentials(tx).DeleteByUser(ctx, userID) }},
		{"users", func(ctx context.Context) (int64, error) { return m.Users(tx).Delete(ctx, userID) }},
	}
}

// IsPartial reports whether err only signals leftover blobs.
func IsPartial(err error) bool {
	return errors.Is(err, common.ErrorPartialFailure)
}
