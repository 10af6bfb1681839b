package types

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AudienceID represents a UUIDv7 audience identifier.
// String alias enables type safety while maintaining JSON string serialization.
// UUIDv7 time-ordering ensures sequential IDs cluster in B-tree indexes.
type AudienceID string

// SegmentID represents a segment identifier. Segments are authored in the
// UI and carry opaque client-assigned ids, so SegmentID is never validated
// on input.
type SegmentID string

// RuleID represents a rule identifier. Opaque for the same reason as
// SegmentID: the UI assigns ids at rule creation time.
type RuleID string

// NewAudienceID generates a UUIDv7 audience identifier.
// Panics on clock regression (uuid.Must); acceptable for ID generation.
func NewAudienceID() AudienceID {
	return AudienceID(uuid.Must(uuid.NewV7()).String())
}

// ParseAudienceID validates and converts a string to AudienceID.
// Rejects malformed UUIDs to prevent invalid IDs from entering the registry.
func ParseAudienceID(s string) (AudienceID, error) {
	_, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidAudienceID, err)
	}
	return AudienceID(s), nil
}

// AudienceIDTime extracts the timestamp embedded in a UUIDv7 ID.
// Enables time-based queries without a database lookup.
// Returns zero time for invalid UUIDs; caller should check IsZero().
func AudienceIDTime(id AudienceID) time.Time {
	u, err := uuid.Parse(string(id))
	if err != nil {
		return time.Time{}
	}
	sec, nsec := u.Time().UnixTime()
	return time.Unix(sec, nsec)
}
