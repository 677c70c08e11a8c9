package domain

import "errors"

// Error taxonomy for the security pipeline. Transport maps these to HTTP
// statuses; every gate fails closed, so an unclassified error is treated as
// ErrInternal.
var (
	ErrTokenExpired       = errors.New("token expired")
	ErrTokenInvalid       = errors.New("token invalid")
	ErrTokenRevoked       = errors.New("token revoked")
	ErrTokenKind          = errors.New("wrong token kind")
	ErrSessionInvalid     = errors.New("session invalid or expired")
	ErrUserDisabled       = errors.New("user disabled")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrCSRF               = errors.New("csrf validation failed")
	ErrRateLimited        = errors.New("rate limited")
	ErrForbidden          = errors.New("insufficient role")
	ErrValidation         = errors.New("validation failed")
	ErrDangerousContent   = errors.New("dangerous content detected")
	ErrDatabase           = errors.New("database error")
	ErrInternal           = errors.New("internal security error")
)
