package types

import "errors"

// Sentinel errors for Cohort operations.
var (
	// ErrAudienceNotFound indicates the requested audience does not exist.
	ErrAudienceNotFound = errors.New("audience not found")

	// ErrNameRequired indicates a create/update request with an empty name.
	ErrNameRequired = errors.New("audience name is required")

	// ErrInvalidAudienceID indicates a malformed audience identifier.
	ErrInvalidAudienceID = errors.New("invalid audience id")

	// ErrNoCredentials indicates no stored identity credentials.
	ErrNoCredentials = errors.New("no credentials stored")

	// ErrSessionExpired indicates refresh failed and credentials were cleared.
	ErrSessionExpired = errors.New("session expired")

	// ErrQueryFailed indicates the analytics collaborator returned a
	// non-success status or an unreadable body.
	ErrQueryFailed = errors.New("analytics query failed")
)
