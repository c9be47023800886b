package port

import (
	"context"
	"time"

	"github.com/regportal/iam-service/internal/core/domain"
)

// LockoutState is the outcome of an atomic failed-attempt registration.
type LockoutState struct {
	FailedAttempts int
	LockedUntil    *time.Time
}

// Locked reports whether the lockout is active at the supplied moment.
func (s LockoutState) Locked(at time.Time) bool {
	return s.LockedUntil != nil && s.LockedUntil.After(at)
}

// UserRepository persists portal users and their lockout state.
type UserRepository interface {
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByID(ctx context.Context, id int64) (*domain.User, error)

	// RecordFailedLogin atomically increments the failed-attempt counter and,
	// when the counter reaches threshold, sets locked_until to now+lockFor.
	// The increment and the threshold comparison happen in a single statement
	// so concurrent failures cannot race past the threshold.
	RecordFailedLogin(ctx context.Context, userID int64, threshold int, lockFor time.Duration) (LockoutState, error)

	// ResetLoginState clears the failed-attempt counter and lock timestamp and
	// records the successful login time.
	ResetLoginState(ctx context.Context, userID int64, loginAt time.Time) error

	// Unlock clears the counter and lock timestamp without touching last login.
	Unlock(ctx context.Context, userID int64) error

	UpdatePassword(ctx context.Context, userID int64, passwordHash string, changedAt time.Time) error
}
