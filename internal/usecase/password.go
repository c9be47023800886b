package usecase

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/regportal/iam-service/internal/core/domain"
	"github.com/regportal/iam-service/internal/core/port"
	"github.com/regportal/iam-service/internal/infra/security"
	"github.com/regportal/iam-service/internal/repository"
)

// PasswordService handles authenticated password changes.
type PasswordService struct {
	users     port.UserRepository
	tokens    port.TokenRepository
	validator *security.PasswordValidator
	events    port.EventPublisher
	logger    *zap.Logger
	timeFunc  timeSource
}

// NewPasswordService constructs a PasswordService instance.
func NewPasswordService(
	users port.UserRepository,
	tokens port.TokenRepository,
	validator *security.PasswordValidator,
	events port.EventPublisher,
	logger *zap.Logger,
) (*PasswordService, error) {
	if users == nil {
		return nil, fmt.Errorf("user repository is required")
	}
	if tokens == nil {
		return nil, fmt.Errorf("token repository is required")
	}
	if validator == nil {
		validator = security.DefaultPasswordValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PasswordService{
		users:     users,
		tokens:    tokens,
		validator: validator,
		events:    events,
		logger:    logger,
		timeFunc:  defaultTimeSource,
	}, nil
}

// ChangePassword verifies the current password, applies the password policy
// to the replacement, stores the new hash, and revokes every live refresh
// token so stolen sessions do not survive the change.
func (s *PasswordService) ChangePassword(ctx context.Context, userID int64, currentPassword, newPassword string) error {
	if userID <= 0 {
		return fmt.Errorf("user id is required")
	}
	if currentPassword == "" {
		return fmt.Errorf("current password is required")
	}
	if newPassword == "" {
		return fmt.Errorf("new password is required")
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("lookup user: %w", err)
	}

	ok, err := security.VerifyPassword(currentPassword, user.PasswordHash)
	if err != nil {
		return fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return ErrInvalidCredentials
	}

	if err := s.validator.Validate(newPassword); err != nil {
		return err
	}
	if err := security.RequireDifferentFrom(currentPassword).Validate(newPassword); err != nil {
		return err
	}

	hash, err := security.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	now := s.timeFunc()
	if err := s.users.UpdatePassword(ctx, userID, hash, now); err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	revoked, err := s.tokens.RevokeAllForUser(ctx, userID, domain.RevocationReasonPasswordChng)
	if err != nil {
		return fmt.Errorf("revoke user tokens: %w", err)
	}

	s.logger.Info("password changed",
		zap.Int64("user_id", userID),
		zap.Int("tokens_revoked", revoked))

	if s.events != nil && revoked > 0 {
		event := domain.TokensRevokedEvent{
			EventID: newEventID(),
			UserID:  userID,
			Count:   revoked,
			Reason:  domain.RevocationReasonPasswordChng,
			At:      now,
		}
		if err := s.events.PublishTokensRevoked(ctx, event); err != nil {
			s.logger.Warn("publish revocation event", zap.Error(err))
		}
	}

	return nil
}
