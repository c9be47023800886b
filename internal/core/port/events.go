package port

import (
	"context"

	"github.com/regportal/iam-service/internal/core/domain"
)

// EventPublisher publishes security audit events to the message bus.
// Publishing is best-effort: authentication outcomes never depend on it.
type EventPublisher interface {
	PublishLoginSucceeded(ctx context.Context, event domain.LoginSucceededEvent) error
	PublishLoginFailed(ctx context.Context, event domain.LoginFailedEvent) error
	PublishAccountLocked(ctx context.Context, event domain.AccountLockedEvent) error
	PublishTokensRevoked(ctx context.Context, event domain.TokensRevokedEvent) error
	PublishRefreshReuseDetected(ctx context.Context, event domain.RefreshReuseDetectedEvent) error
}
