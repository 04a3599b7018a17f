package services

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/sealvault/internal/common"
	"github.com/dmitrijs2005/sealvault/internal/cryptox"
	"github.com/dmitrijs2005/sealvault/internal/dbx"
	"github.com/dmitrijs2005/sealvault/internal/logging"
	"github.com/dmitrijs2005/sealvault/internal/server/auth"
	"github.com/dmitrijs2005/sealvault/internal/server/models"
	"github.com/dmitrijs2005/sealvault/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

const maxQuestionTextLength = 500

// Messages returned by ListQuestionsForRecovery together with an empty list.
const (
	RecoveryGenericMessage     = "if the account exists, answer its security questions to continue"
	RecoveryNoQuestionsMessage = "no security questions configured"
)

// AttemptLimiter throttles recovery attempts per email.
type AttemptLimiter interface {
	Allow(key string) bool
}

// RecoveryQuestion is the public view of a security question.
type RecoveryQuestion struct {
	ID           string
	QuestionText string
}

// IssuedToken is handed to the client after every answer verified.
type IssuedToken struct {
	Token     string
	ExpiresAt time.Time
}

// RecoveryService implements password recovery through security questions.
// Failures on the unauthenticated paths are reported as a bare
// common.ErrorUnauthorized so callers cannot tell which check failed.
type RecoveryService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	log         logging.Logger
	limiter     AttemptLimiter
	tokenTTL    time.Duration
	hashParams  cryptox.Params
	now         func() time.Time
}

func NewRecoveryService(db *sql.DB, m repomanager.RepositoryManager, limiter AttemptLimiter, tokenTTL time.Duration, log logging.Logger) *RecoveryService {
	if tokenTTL <= 0 {
		tokenTTL = common.DefaultRecoveryTokenTTL
	}
	return &RecoveryService{
		db:          db,
		repomanager: m,
		log:         log.With("module", "recovery"),
		limiter:     limiter,
		tokenTTL:    tokenTTL,
		hashParams:  cryptox.DefaultParams,
		now:         time.Now,
	}
}

// AddQuestion stores a question with the salted hash of its normalized answer.
func (s *RecoveryService) AddQuestion(ctx context.Context, caller auth.Caller, questionText, answer string) (*RecoveryQuestion, error) {
	questionText = strings.TrimSpace(questionText)
	if questionText == "" || len(questionText) > maxQuestionTextLength {
		return nil, fmt.Errorf("%w: question must be 1 to %d characters", common.ErrorValidation, maxQuestionTextLength)
	}
	if cryptox.NormalizeAnswer(answer) == "" {
		return nil, fmt.Errorf("%w: answer must not be empty", common.ErrorValidation)
	}

	hash, err := cryptox.HashAnswer(answer, s.hashParams)
	if err != nil {
		return nil, common.ErrorInternal
	}

	q := &models.SecurityQuestion{
		ID:           uuid.NewString(),
		UserID:       caller.UserID,
		QuestionText: questionText,
		AnswerHash:   hash,
	}
	err = withTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := lockActive(ctx, s.repomanager.Users(tx), caller.UserID); err != nil {
			return err
		}
		repo := s.repomanager.Questions(tx)
		if err := repo.LockUser(ctx, caller.UserID); err != nil {
			return err
		}
		n, err := repo.CountByUser(ctx, caller.UserID)
		if err != nil {
			return err
		}
		if n >= common.MaxSecurityQuestions {
			return fmt.Errorf("%w: at most %d security questions", common.ErrorConflict, common.MaxSecurityQuestions)
		}
		_, err = repo.Create(ctx, q)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("error adding security question: %w", err)
	}

	s.log.Info(ctx, "security question added", "user_id", caller.UserID, "question_id", q.ID)
	return &RecoveryQuestion{ID: q.ID, QuestionText: q.QuestionText}, nil
}

// ListQuestions returns the caller's own questions.
func (s *RecoveryService) ListQuestions(ctx context.Context, caller auth.Caller) ([]RecoveryQuestion, error) {
	qs, err := s.repomanager.Questions(s.db).ListByUser(ctx, caller.UserID)
	if err != nil {
		return nil, err
	}
	return toRecoveryQuestions(qs), nil
}

// DeleteQuestion removes one of the caller's questions.
func (s *RecoveryService) DeleteQuestion(ctx context.Context, caller auth.Caller, questionID string) error {
	if err := validateIDs(questionID); err != nil {
		return err
	}
	err := withTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := lockActive(ctx, s.repomanager.Users(tx), caller.UserID); err != nil {
			return err
		}
		if err := s.repomanager.Questions(tx).LockUser(ctx, caller.UserID); err != nil {
			return err
		}
		n, err := s.repomanager.Questions(tx).Delete(ctx, questionID, caller.UserID)
		if err != nil {
			return err
		}
		if n == 0 {
			return common.ErrorNotFound
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("error deleting security question: %w", err)
	}
	return nil
}

// VerifyQuestion checks a candidate answer for one of the caller's questions.
// A question owned by someone else reads as not found.
func (s *RecoveryService) VerifyQuestion(ctx context.Context, caller auth.Caller, questionID, candidate string) (bool, error) {
	if err := validateIDs(questionID); err != nil {
		return false, err
	}
	q, err := s.repomanager.Questions(s.db).Get(ctx, questionID)
	if err != nil {
		return false, err
	}
	if q.UserID != caller.UserID {
		return false, common.ErrorNotFound
	}
	ok, err := cryptox.VerifyAnswer(candidate, q.AnswerHash)
	if err != nil {
		s.log.Error(ctx, "stored answer hash unreadable", "question_id", questionID, "error", err)
		return false, common.ErrorInternal
	}
	return ok, nil
}

// ListQuestionsForRecovery returns the questions registered for email. An
// unknown or non-active account yields an empty list with the generic message.
func (s *RecoveryService) ListQuestionsForRecovery(ctx context.Context, email string) ([]RecoveryQuestion, string, error) {
	user, err := s.repomanager.Users(s.db).GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return []RecoveryQuestion{}, RecoveryGenericMessage, nil
		}
		return nil, "", common.ErrorInternal
	}
	if user.Status != common.UserStatusActive {
		return []RecoveryQuestion{}, RecoveryGenericMessage, nil
	}

	qs, err := s.repomanager.Questions(s.db).ListByUser(ctx, user.ID)
	if err != nil {
		return nil, "", common.ErrorInternal
	}
	if len(qs) == 0 {
		return []RecoveryQuestion{}, RecoveryNoQuestionsMessage, nil
	}
	return toRecoveryQuestions(qs), RecoveryGenericMessage, nil
}

// VerifyAllAndIssueToken checks answers (keyed by question id) against every
// question of the account. All must be present and correct. On success any
// earlier token for the email is replaced by a fresh one.
func (s *RecoveryService) VerifyAllAndIssueToken(ctx context.Context, email string, answers map[string]string) (*IssuedToken, error) {
	email = NormalizeEmail(email)
	if s.limiter != nil && !s.limiter.Allow(email) {
		return nil, common.ErrorRateLimited
	}

	user, err := s.repomanager.Users(s.db).GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		return nil, common.ErrorInternal
	}
	if user.Status != common.UserStatusActive {
		return nil, common.ErrorUnauthorized
	}

	qs, err := s.repomanager.Questions(s.db).ListByUser(ctx, user.ID)
	if err != nil {
		return nil, common.ErrorInternal
	}
	if len(qs) == 0 {
		return nil, common.ErrorUnauthorized
	}

	// Every answer is checked even after a miss so timing does not reveal
	// which one failed.
	allOK := true
	for _, q := range qs {
		candidate, present := answers[q.ID]
		ok, err := cryptox.VerifyAnswer(candidate, q.AnswerHash)
		if err != nil {
			s.log.Error(ctx, "stored answer hash unreadable", "question_id", q.ID, "error", err)
			return nil, common.ErrorInternal
		}
		allOK = allOK && present && ok
	}
	if !allOK {
		s.log.Warn(ctx, "recovery answers rejected", "user_id", user.ID)
		return nil, common.ErrorUnauthorized
	}

	value, err := common.MakeRandHexString(32)
	if err != nil {
		return nil, common.ErrorInternal
	}
	token := &models.RecoveryToken{
		ID:         uuid.NewString(),
		Identifier: email,
		TokenValue: value,
		ExpiresAt:  s.now().Add(s.tokenTTL),
	}
	err = withTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.RecoveryTokens(tx)
		if err := repo.LockIdentifier(ctx, email); err != nil {
			return err
		}
		if _, err := repo.DeleteByIdentifier(ctx, email); err != nil {
			return err
		}
		_, err := repo.Create(ctx, token)
		return err
	})
	if err != nil {
		s.log.Error(ctx, "recovery token not stored", "user_id", user.ID, "error", err)
		return nil, common.ErrorInternal
	}

	s.log.Info(ctx, "recovery token issued", "user_id", user.ID)
	return &IssuedToken{Token: token.TokenValue, ExpiresAt: token.ExpiresAt}, nil
}

// ResetPassword redeems a recovery token. A token found past its expiry is
// deleted and the call fails with common.ErrorExpired wrapped in
// common.ErrorUnauthorized. On success every session of the user ends.
func (s *RecoveryService) ResetPassword(ctx context.Context, email, tokenValue, newPassword string) error {
	email = NormalizeEmail(email)
	if err := validatePassword(newPassword); err != nil {
		return err
	}

	hash, err := cryptox.HashSecret(newPassword, s.hashParams)
	if err != nil {
		return common.ErrorInternal
	}

	expired := false
	err = withTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.RecoveryTokens(tx)
		if err := repo.LockIdentifier(ctx, email); err != nil {
			return err
		}
		token, err := repo.FindByValue(ctx, tokenValue)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrorUnauthorized
			}
			return err
		}
		if subtle.ConstantTimeCompare([]byte(token.Identifier), []byte(email)) != 1 {
			return common.ErrorUnauthorized
		}
		if token.Expired(s.now()) {
			expired = true
			_, err := repo.Delete(ctx, token.ID)
			return err
		}

		user, err := s.repomanager.Users(tx).GetByEmail(ctx, email)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrorUnauthorized
			}
			return err
		}
		if err := lockActive(ctx, s.repomanager.Users(tx), user.ID); err != nil {
			return common.ErrorUnauthorized
		}
		if err := s.repomanager.Credentials(tx).Upsert(ctx, user.ID, hash); err != nil {
			return err
		}
		if _, err := s.repomanager.RefreshTokens(tx).DeleteByUser(ctx, user.ID); err != nil {
			return err
		}
		_, err = repo.Delete(ctx, token.ID)
		return err
	})
	if err != nil {
		if errors.Is(err, common.ErrorUnauthorized) {
			return common.ErrorUnauthorized
		}
		s.log.Error(ctx, "password reset failed", "error", err)
		return common.ErrorInternal
	}
	if expired {
		return fmt.Errorf("%w: %w", common.ErrorUnauthorized, common.ErrorExpired)
	}

	s.log.Info(ctx, "password reset through recovery")
	return nil
}

func toRecoveryQuestions(qs []models.SecurityQuestion) []RecoveryQuestion {
	out := make([]RecoveryQuestion, 0, len(qs))
	for _, q := range qs {
		out = append(out, RecoveryQuestion{ID: q.ID, QuestionText: q.QuestionText})
	}
	return out
}
