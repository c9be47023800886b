package domain

import "time"

// RefreshToken represents a persisted refresh token (stored as a hash, never
// plaintext). Rotation links records through ReplacedByID so that reuse of a
// superseded token can revoke the whole chain.
type RefreshToken struct {
	ID               string
	UserID           int64
	TokenHash        string
	CreatedAt        time.Time
	ExpiresAt        time.Time
	CreatedByIP      *string
	RevokedAt        *time.Time
	RevocationReason *string
	ReplacedByID     *string
}

// IsExpired reports whether the token has elapsed its validity window.
func (t RefreshToken) IsExpired(at time.Time) bool {
	return !t.ExpiresAt.After(at)
}

// IsRevoked reports whether the token has been explicitly revoked.
func (t RefreshToken) IsRevoked() bool {
	return t.RevokedAt != nil
}

// IsActive returns true when the token can still be presented for rotation.
func (t RefreshToken) IsActive(at time.Time) bool {
	return !t.IsRevoked() && !t.IsExpired(at)
}

// Revoke marks the token as revoked with the supplied reason.
// Returns true if the token transitioned to the revoked state.
func (t *RefreshToken) Revoke(at time.Time, reason string) bool {
	if t.RevokedAt != nil {
		return false
	}
	timeCopy := at
	t.RevokedAt = &timeCopy
	if reason != "" {
		t.RevocationReason = &reason
	}
	return true
}

// Revocation reasons recorded on refresh-token rows.
const (
	RevocationReasonRotated      = "rotated"
	RevocationReasonLogout       = "user logout"
	RevocationReasonUserRequest  = "revoked by user"
	RevocationReasonReuse        = "reuse detected"
	RevocationReasonPasswordChng = "password changed"
)
