package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/regportal/iam-service/internal/core/domain"
	"github.com/regportal/iam-service/internal/core/port"
	"github.com/regportal/iam-service/internal/infra/logger"
)

// StubPublisher logs events instead of sending them to Kafka. Useful for development environments.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(log *zap.Logger) *StubPublisher {
	return &StubPublisher{logger: log}
}

func (p *StubPublisher) logEvent(eventType string, userID int64, at time.Time, payload any) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	p.logger.Info("Stub event published",
		zap.String("event_type", eventType),
		zap.Int64("user_id", userID),
		zap.Time("timestamp", at.UTC()),
		zap.Any("payload", payload),
	)
}

// PublishLoginSucceeded logs iam.auth.login.succeeded events.
func (p *StubPublisher) PublishLoginSucceeded(_ context.Context, event domain.LoginSucceededEvent) error {
	payload := map[string]any{
		"email":                logger.MaskEmail(event.Email),
		"supervised_entity_id": event.EntityID,
		"ip":                   maskedIP(event.IP),
	}
	p.logEvent("iam.auth.login.succeeded", event.UserID, event.At, payload)
	return nil
}

// PublishLoginFailed logs iam.auth.login.failed events.
func (p *StubPublisher) PublishLoginFailed(_ context.Context, event domain.LoginFailedEvent) error {
	payload := map[string]any{
		"email":           logger.MaskEmail(event.Email),
		"failed_attempts": event.Attempts,
		"ip":              maskedIP(event.IP),
	}
	p.logEvent("iam.auth.login.failed", event.UserID, event.At, payload)
	return nil
}

// PublishAccountLocked logs iam.auth.account.locked events.
func (p *StubPublisher) PublishAccountLocked(_ context.Context, event domain.AccountLockedEvent) error {
	payload := map[string]any{
		"failed_attempts": event.Attempts,
		"locked_until":    event.LockedUntil,
	}
	p.logEvent("iam.auth.account.locked", event.UserID, event.At, payload)
	return nil
}

// PublishTokensRevoked logs iam.auth.tokens.revoked events.
func (p *StubPublisher) PublishTokensRevoked(_ context.Context, event domain.TokensRevokedEvent) error {
	payload := map[string]any{
		"count":  event.Count,
		"reason": event.Reason,
	}
	p.logEvent("iam.auth.tokens.revoked", event.UserID, event.At, payload)
	return nil
}

// PublishRefreshReuseDetected logs iam.auth.refresh.reuse_detected events.
func (p *StubPublisher) PublishRefreshReuseDetected(_ context.Context, event domain.RefreshReuseDetectedEvent) error {
	payload := map[string]any{
		"token_id":      event.TokenID,
		"chain_revoked": event.ChainRevoked,
		"ip":            maskedIP(event.IP),
	}
	p.logEvent("iam.auth.refresh.reuse_detected", event.UserID, event.At, payload)
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
