package service

import "errors"

var (
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrAccountDisabled    = errors.New("account_disabled")
	ErrUsernameTaken      = errors.New("username_taken")
	ErrWeakPassword       = errors.New("weak_password")

	// Token validation failures. These are deliberately distinct sentinels
	// so the transport layer can decide which ones terminate a request and
	// which ones merely leave it unauthenticated.
	ErrRevoked           = errors.New("token_revoked")
	ErrSessionSuperseded = errors.New("session_superseded")
	ErrDeviceMismatch    = errors.New("device_mismatch")
	ErrWrongKind         = errors.New("wrong_token_kind")

	// ErrConfiguration marks a broken deployment (missing signing key and
	// the like), never a bad token.
	ErrConfiguration = errors.New("configuration_error")
)
