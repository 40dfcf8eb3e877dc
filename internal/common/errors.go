package common

import "errors"

var (
	// Session lifecycle errors.
	ErrSessionExpired  = errors.New("session expired")
	ErrNoCredentials   = errors.New("no stored credentials")
	ErrStaleGeneration = errors.New("credentials changed during refresh")

	// Transport / server classification, matched with errors.Is against
	// pipeline.APIError and wrapped transport failures.
	ErrUnavailable  = errors.New("server unavailable")
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrValidation   = errors.New("validation error")

	// Token validation errors (server side).
	ErrInvalidToken        = errors.New("invalid token")
	ErrTokenExpired        = errors.New("token expired")
	ErrRefreshTokenExpired = errors.New("refresh token expired")
)
