// Package common defines shared constants and sentinel errors used across
// client and server layers of sealvault. Callers should use errors.Is to
// match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")
	ErrorConflict = errors.New("conflict")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorValidation   = errors.New("validation error")
	ErrorExpired      = errors.New("expired")

	// ErrorCrypto marks a sealed blob or public key that is structurally malformed.
	ErrorCrypto = errors.New("malformed key material")

	// ErrorPartialFailure is returned together with an erasure report when
	// best-effort sub-steps failed but the teardown itself completed.
	ErrorPartialFailure = errors.New("partial failure")

	// ErrorAccountLocked means the account is being erased and accepts no new work.
	ErrorAccountLocked = errors.New("account locked")

	// ErrorRateLimited is returned when an identifier exceeded its attempt budget.
	ErrorRateLimited = errors.New("too many attempts")

	// Auth errors (invalid or malformed token).
	ErrorInvalidToken = errors.New("invalid token")

	// Token lifecycle errors.
	ErrorRefreshTokenExpired = errors.New("refresh token expired")
)
