package port

import (
	"context"
	"errors"

	"github.com/regportal/iam-service/internal/core/domain"
)

// ErrRotationConflict indicates the presented token was revoked between lookup
// and rotation, either by a concurrent refresh or an earlier rotation. The
// caller must treat it as reuse.
var ErrRotationConflict = errors.New("refresh token already rotated")

// TokenRepository persists refresh-token records. Token values are stored as
// SHA-256 hashes only.
type TokenRepository interface {
	Create(ctx context.Context, token domain.RefreshToken) error
	GetByHash(ctx context.Context, hash string) (*domain.RefreshToken, error)

	// Rotate revokes the presented record and inserts its successor in one
	// transaction. The revocation is conditional on revoked_at still being
	// null; when the condition fails Rotate returns ErrRotationConflict and
	// inserts nothing, guaranteeing exactly one winner between concurrent
	// refresh calls.
	Rotate(ctx context.Context, oldID string, successor domain.RefreshToken) error

	// Revoke marks a single record revoked. Idempotent: revoking an already
	// revoked record is not an error.
	Revoke(ctx context.Context, id string, reason string) error

	// RevokeChain revokes every unrevoked record in the rotation chain the
	// given record belongs to, walking replaced-by links in both directions.
	// Returns the number of records revoked.
	RevokeChain(ctx context.Context, id string, reason string) (int, error)

	// RevokeAllForUser revokes every unrevoked record owned by the user.
	// Returns the number of records revoked.
	RevokeAllForUser(ctx context.Context, userID int64, reason string) (int, error)
}
