package grpc

import (
	"context"
	"errors"
	"strings"

	"github.com/dmitrijs2005/sealvault/internal/common"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// toStatus maps service errors to gRPC statuses. Validation details go back
// to the caller; authentication failures stay generic.
func (s *Server) toStatus(ctx context.Context, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, common.ErrorValidation):
		return badRequest(err)
	case errors.Is(err, common.ErrorCrypto):
		return badRequest(err)
	case errors.Is(err, common.ErrorUnauthorized),
		errors.Is(err, common.ErrorInvalidToken),
		errors.Is(err, common.ErrorRefreshTokenExpired):
		return status.Error(codes.Unauthenticated, "unauthorized")
	case errors.Is(err, common.ErrorExpired):
		return status.Error(codes.DeadlineExceeded, "expired")
	case errors.Is(err, common.ErrorNotFound):
		return status.Error(codes.NotFound, "not found")
	case errors.Is(err, common.ErrorConflict):
		return status.Error(codes.AlreadyExists, detail(err))
	case errors.Is(err, common.ErrorAccountLocked):
		return status.Error(codes.FailedPrecondition, "account is being erased")
	case errors.Is(err, common.ErrorRateLimited):
		return status.Error(codes.ResourceExhausted, "too many attempts")
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "canceled")
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "deadline exceeded")
	default:
		s.logger.Error(ctx, "request failed", "error", err)
		return status.Error(codes.Internal, "internal error")
	}
}

func badRequest(err error) error {
	st := status.New(codes.InvalidArgument, detail(err))
	withDetails, derr := st.WithDetails(&errdetails.BadRequest{
		FieldViolations: []*errdetails.BadRequest_FieldViolation{{Description: detail(err)}},
	})
	if derr != nil {
		return st.Err()
	}
	return withDetails.Err()
}

// detail strips the service-side wrapping prefixes and keeps the part that
// explains what was wrong with the input.
func detail(err error) string {
	msg := err.Error()
	for _, sentinel := range []error{common.ErrorValidation, common.ErrorCrypto, common.ErrorConflict} {
		if i := strings.Index(msg, sentinel.Error()); i >= 0 {
			return msg[i:]
		}
	}
	return msg
}
