// Package common contains shared constants, sentinel errors and small helpers
// used across PeerLearn client and server components.
package common

// AuthorizationHeaderName carries the bearer credential on HTTP requests and
// (lower-cased) in gRPC metadata.
const AuthorizationHeaderName = "Authorization"

// BearerPrefix precedes the token in AuthorizationHeaderName values.
const BearerPrefix = "Bearer "

// RequestIDHeaderName tags every logical outbound request; a retried request
// keeps its original id.
const RequestIDHeaderName = "X-Request-ID"

// Persisted credential keys.
const (
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
	KeyUser         = "user"
)
