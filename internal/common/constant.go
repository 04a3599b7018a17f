// Package common contains shared constants and sentinel errors used across
// sealvault components.
package common

import "time"

// AccessTokenHeaderName is the gRPC metadata key used to carry the
// access token on inbound requests.
const AccessTokenHeaderName = "access_token"

const (
	// MaxSecurityQuestions is the number of live questions a user may keep.
	MaxSecurityQuestions = 5

	// DefaultTrashRetentionDays applies when a user never changed the setting.
	DefaultTrashRetentionDays = 30
	MinTrashRetentionDays     = 0
	MaxTrashRetentionDays     = 365

	// DefaultRecoveryTokenTTL is how long a freshly minted recovery token stays redeemable.
	DefaultRecoveryTokenTTL = 15 * time.Minute

	// MinPasswordLength is enforced on registration and password reset.
	MinPasswordLength = 8
)

// User account states.
const (
	UserStatusActive  = "active"
	UserStatusErasing = "erasing"
)
