package domain

import "time"

// Security events published to the audit bus. Payloads never contain raw
// credentials or token values; emails and IPs are masked by the publisher.

// LoginSucceededEvent records a successful authentication.
type LoginSucceededEvent struct {
	EventID  string
	UserID   int64
	Email    string
	EntityID *int64
	At       time.Time
	IP       *string
}

// LoginFailedEvent records a rejected authentication attempt. UserID is zero
// when the email did not resolve to an account.
type LoginFailedEvent struct {
	EventID  string
	UserID   int64
	Email    string
	Attempts int
	At       time.Time
	IP       *string
}

// AccountLockedEvent records a lockout transition after the failed-attempt
// threshold was crossed.
type AccountLockedEvent struct {
	EventID     string
	UserID      int64
	Attempts    int
	LockedUntil time.Time
	At          time.Time
}

// TokensRevokedEvent records revocation of one or more refresh tokens
// (logout, explicit revoke, password change).
type TokensRevokedEvent struct {
	EventID string
	UserID  int64
	Count   int
	Reason  string
	At      time.Time
}

// RefreshReuseDetectedEvent records presentation of an already-rotated refresh
// token, a theft signal that revoked the whole rotation chain.
type RefreshReuseDetectedEvent struct {
	EventID      string
	UserID       int64
	TokenID      string
	ChainRevoked int
	At           time.Time
	IP           *string
}
