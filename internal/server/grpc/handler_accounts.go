package grpc

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/sealvault/internal/common"
	"github.com/dmitrijs2005/sealvault/internal/envelope"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func (s *Server) Ping(ctx context.Context, req *Empty) (*PingResponse, error) {
	return &PingResponse{Status: "OK"}, nil
}

func (s *Server) Register(ctx context.Context, req *Credentials) (*RegisterResponse, error) {
	user, err := s.svc.Users.Register(ctx, req.Email, req.Password)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	s.logger.Info(ctx, "Registered", "user_id", user.ID)
	return &RegisterResponse{UserID: user.ID}, nil
}

func (s *Server) Login(ctx context.Context, req *Credentials) (*TokenPair, error) {
	tokens, err := s.svc.Users.Login(ctx, req.Email, req.Password)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &TokenPair{AccessToken: tokens.AccessToken, RefreshToken: tokens.RefreshToken}, nil
}

func (s *Server) Refresh(ctx context.Context, req *RefreshRequest) (*TokenPair, error) {
	tokens, err := s.svc.Users.RefreshToken(ctx, req.RefreshToken)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &TokenPair{AccessToken: tokens.AccessToken, RefreshToken: tokens.RefreshToken}, nil
}

// DeleteAccount erases the caller's account after re-checking the password.
// Leftover blobs do not fail the call; the report marks it partial.
func (s *Server) DeleteAccount(ctx context.Context, req *DeleteAccountRequest) (*ErasureReport, error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	ok, err := s.svc.Users.CheckPassword(ctx, caller.UserID, req.Password)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "unauthorized")
	}

	report, err := s.svc.Erasure.EraseUser(ctx, caller.UserID)
	if err != nil && !(errors.Is(err, common.ErrorPartialFailure) && report != nil) {
		return nil, s.toStatus(ctx, err)
	}
	return reportFromModel(report), nil
}

func (s *Server) RegisterIdentity(ctx context.Context, req *RegisterIdentityRequest) (*Identity, error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	id, err := s.svc.Identity.Register(ctx, caller, envelope.PublicKeys{X25519: req.X25519PublicKey, Ed25519: req.Ed25519PublicKey})
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &Identity{UserID: id.UserID, X25519PublicKey: id.X25519PublicKey, Ed25519PublicKey: id.Ed25519PublicKey, CreatedAt: id.CreatedAt}, nil
}

func (s *Server) GetIdentity(ctx context.Context, req *UserRequest) (*Identity, error) {
	id, err := s.svc.Identity.Get(ctx, req.UserID)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &Identity{UserID: id.UserID, X25519PublicKey: id.X25519PublicKey, Ed25519PublicKey: id.Ed25519PublicKey, CreatedAt: id.CreatedAt}, nil
}

func (s *Server) GetSettings(ctx context.Context, req *Empty) (*Settings, error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	us, err := s.svc.Settings.Get(ctx, caller)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &Settings{TrashRetentionDays: us.TrashRetentionDays}, nil
}

func (s *Server) SetSettings(ctx context.Context, req *Settings) (*Settings, error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	us, err := s.svc.Settings.SetRetentionDays(ctx, caller, req.TrashRetentionDays)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &Settings{TrashRetentionDays: us.TrashRetentionDays}, nil
}

func (s *Server) AddSecurityQuestion(ctx context.Context, req *AddQuestionRequest) (*Question, error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	q, err := s.svc.Recovery.AddQuestion(ctx, caller, req.QuestionText, req.Answer)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &Question{ID: q.ID, QuestionText: q.QuestionText}, nil
}

func (s *Server) ListSecurityQuestions(ctx context.Context, req *Empty) (*QuestionList, error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	qs, err := s.svc.Recovery.ListQuestions(ctx, caller)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return questionsFromService(qs, ""), nil
}

func (s *Server) DeleteSecurityQuestion(ctx context.Context, req *QuestionRequest) (*Empty, error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.svc.Recovery.DeleteQuestion(ctx, caller, req.QuestionID); err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &Empty{}, nil
}

func (s *Server) VerifySecurityQuestion(ctx context.Context, req *VerifyQuestionRequest) (*VerifyQuestionResponse, error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	ok, err := s.svc.Recovery.VerifyQuestion(ctx, caller, req.QuestionID, req.Answer)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &VerifyQuestionResponse{Match: ok}, nil
}

func (s *Server) ListRecoveryQuestions(ctx context.Context, req *EmailRequest) (*QuestionList, error) {
	qs, msg, err := s.svc.Recovery.ListQuestionsForRecovery(ctx, req.Email)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return questionsFromService(qs, msg), nil
}

func (s *Server) VerifyRecoveryAnswers(ctx context.Context, req *VerifyRecoveryAnswersRequest) (*RecoveryToken, error) {
	answers := make(map[string]string, len(req.Answers))
	for _, a := range req.Answers {
		answers[a.QuestionID] = a.Answer
	}
	tok, err := s.svc.Recovery.VerifyAllAndIssueToken(ctx, req.Email, answers)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &RecoveryToken{Token: tok.Token, ExpiresAt: tok.ExpiresAt}, nil
}

// ResetPassword reports every token failure, expiry included, as Unauthenticated.
func (s *Server) ResetPassword(ctx context.Context, req *ResetPasswordRequest) (*Empty, error) {
	if err := s.svc.Recovery.ResetPassword(ctx, req.Email, req.Token, req.NewPassword); err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &Empty{}, nil
}
