package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/regportal/iam-service/internal/core/domain"
	"github.com/regportal/iam-service/internal/core/port"
	"github.com/regportal/iam-service/internal/infra/security"
	"github.com/regportal/iam-service/internal/repository"
)

var (
	// ErrInvalidCredentials indicates the provided email or password are
	// incorrect. Also returned for unknown or inactive accounts so the
	// response does not reveal whether the email exists.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrRefreshTokenUnknown indicates the presented refresh token does not
	// match any stored record or does not belong to the presented access token.
	ErrRefreshTokenUnknown = errors.New("unknown refresh token")
	// ErrRefreshTokenExpired indicates the presented refresh token exists but
	// has elapsed its validity window.
	ErrRefreshTokenExpired = errors.New("refresh token expired")
	// ErrRefreshTokenReused indicates the presented refresh token was already
	// rotated. The whole rotation chain is revoked before this is returned.
	ErrRefreshTokenReused = errors.New("refresh token reuse detected")
	// ErrUserNotFound indicates an operation referenced a user that does not exist.
	ErrUserNotFound = errors.New("user not found")
)

// AccountLockedError is returned when authentication is rejected because the
// account lockout is active. Until carries the end of the lockout window.
type AccountLockedError struct {
	Until time.Time
}

// Error implements error.
func (e *AccountLockedError) Error() string {
	return fmt.Sprintf("account locked until %s", e.Until.UTC().Format(time.RFC3339))
}

// LockoutSettings controls the failed-attempt state machine.
type LockoutSettings struct {
	MaxFailedAttempts int
	LockoutDuration   time.Duration
}

func (s LockoutSettings) withDefaults() LockoutSettings {
	if s.MaxFailedAttempts <= 0 {
		s.MaxFailedAttempts = 5
	}
	if s.LockoutDuration <= 0 {
		s.LockoutDuration = 15 * time.Minute
	}
	return s
}

// LoginResult is the outcome of a successful authentication or refresh.
type LoginResult struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	Claims       domain.ClaimSet
	User         domain.User
}

// AuthService coordinates authentication, lockout, and refresh-token rotation.
type AuthService struct {
	users    port.UserRepository
	rbac     port.RBACRepository
	tokens   port.TokenRepository
	issuer   *security.TokenService
	events   port.EventPublisher
	lockout  LockoutSettings
	logger   *zap.Logger
	timeFunc timeSource
}

// NewAuthService constructs an AuthService instance. The event publisher may
// be nil, in which case audit events are dropped.
func NewAuthService(
	users port.UserRepository,
	rbac port.RBACRepository,
	tokens port.TokenRepository,
	issuer *security.TokenService,
	events port.EventPublisher,
	lockout LockoutSettings,
	logger *zap.Logger,
) (*AuthService, error) {
	if users == nil {
		return nil, fmt.Errorf("user repository is required")
	}
	if tokens == nil {
		return nil, fmt.Errorf("token repository is required")
	}
	if issuer == nil {
		return nil, fmt.Errorf("token service is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		users:    users,
		rbac:     rbac,
		tokens:   tokens,
		issuer:   issuer,
		events:   events,
		lockout:  lockout.withDefaults(),
		logger:   logger,
		timeFunc: defaultTimeSource,
	}, nil
}

// Login validates credentials and, on success, issues an access/refresh token
// pair. Failed attempts advance the lockout counter atomically; crossing the
// threshold locks the account and subsequent attempts are rejected without a
// password check, correct password included.
func (s *AuthService) Login(ctx context.Context, email, password string, ip *string) (*LoginResult, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, fmt.Errorf("email is required")
	}
	if password == "" {
		return nil, fmt.Errorf("password is required")
	}

	now := s.timeFunc()

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.publishLoginFailed(ctx, 0, email, 0, now, ip)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	if user.IsLocked(now) {
		s.logger.Info("login rejected: account locked",
			zap.Int64("user_id", user.ID),
			zap.Timep("locked_until", user.LockedUntil))
		return nil, &AccountLockedError{Until: *user.LockedUntil}
	}

	if !user.IsActive {
		s.logger.Info("login rejected: account inactive", zap.Int64("user_id", user.ID))
		s.publishLoginFailed(ctx, user.ID, email, user.FailedLoginAttempts, now, ip)
		return nil, ErrInvalidCredentials
	}

	ok, err := security.VerifyPassword(password, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return nil, s.registerFailedAttempt(ctx, user, email, now, ip)
	}

	if err := s.users.ResetLoginState(ctx, user.ID, now); err != nil {
		return nil, fmt.Errorf("reset login state: %w", err)
	}

	result, err := s.issueTokenPair(ctx, user, ip, now)
	if err != nil {
		return nil, err
	}

	s.publishLoginSucceeded(ctx, user, now, ip)
	return result, nil
}

// registerFailedAttempt records the failure and maps the resulting lockout
// state to the error the caller sees.
func (s *AuthService) registerFailedAttempt(ctx context.Context, user *domain.User, email string, now time.Time, ip *string) error {
	state, err := s.users.RecordFailedLogin(ctx, user.ID, s.lockout.MaxFailedAttempts, s.lockout.LockoutDuration)
	if err != nil {
		return fmt.Errorf("record failed login: %w", err)
	}

	s.publishLoginFailed(ctx, user.ID, email, state.FailedAttempts, now, ip)

	if state.Locked(now) {
		s.logger.Warn("account locked after repeated failures",
			zap.Int64("user_id", user.ID),
			zap.Int("attempts", state.FailedAttempts),
			zap.Timep("locked_until", state.LockedUntil))
		s.publishAccountLocked(ctx, user.ID, state, now)
		return &AccountLockedError{Until: *state.LockedUntil}
	}

	return ErrInvalidCredentials
}

// Refresh exchanges an expired access token plus a live refresh token for a
// fresh pair. The presented refresh token is rotated; presenting an
// already-rotated token revokes its whole chain and fails.
func (s *AuthService) Refresh(ctx context.Context, accessToken, refreshToken string, ip *string) (*LoginResult, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return nil, fmt.Errorf("refresh token is required")
	}

	userID, err := s.issuer.ExtractUserID(accessToken)
	if err != nil {
		return nil, err
	}

	now := s.timeFunc()

	record, err := s.tokens.GetByHash(ctx, security.HashToken(refreshToken))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrRefreshTokenUnknown
		}
		return nil, fmt.Errorf("lookup refresh token: %w", err)
	}

	if record.UserID != userID {
		s.logger.Warn("refresh token presented with mismatched access token",
			zap.Int64("token_user_id", record.UserID),
			zap.Int64("access_user_id", userID))
		return nil, ErrRefreshTokenUnknown
	}

	if record.IsRevoked() {
		return nil, s.handleReuse(ctx, record, now, ip)
	}
	if record.IsExpired(now) {
		return nil, ErrRefreshTokenExpired
	}

	user, err := s.users.GetByID(ctx, record.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrRefreshTokenUnknown
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if !user.IsActive || user.IsLocked(now) {
		return nil, ErrRefreshTokenUnknown
	}

	return s.rotateTokenPair(ctx, user, record, now, ip)
}

// handleReuse revokes the rotation chain of a superseded token and reports
// the theft signal.
func (s *AuthService) handleReuse(ctx context.Context, record *domain.RefreshToken, now time.Time, ip *string) error {
	revoked, err := s.tokens.RevokeChain(ctx, record.ID, domain.RevocationReasonReuse)
	if err != nil {
		return fmt.Errorf("revoke token chain: %w", err)
	}

	s.logger.Warn("refresh token reuse detected",
		zap.Int64("user_id", record.UserID),
		zap.String("token_id", record.ID),
		zap.Int("chain_revoked", revoked))

	if s.events != nil {
		event := domain.RefreshReuseDetectedEvent{
			EventID:      uuid.NewString(),
			UserID:       record.UserID,
			TokenID:      record.ID,
			ChainRevoked: revoked,
			At:           now,
			IP:           ip,
		}
		if err := s.events.PublishRefreshReuseDetected(ctx, event); err != nil {
			s.logger.Warn("publish reuse event", zap.Error(err))
		}
	}

	return ErrRefreshTokenReused
}

// rotateTokenPair issues a fresh pair and atomically swaps the presented
// record for its successor. Losing a rotation race is treated as reuse.
func (s *AuthService) rotateTokenPair(ctx context.Context, user *domain.User, record *domain.RefreshToken, now time.Time, ip *string) (*LoginResult, error) {
	claims, err := s.buildClaimSet(ctx, user)
	if err != nil {
		return nil, err
	}

	accessToken, expiresAt, err := s.issuer.IssueAccessToken(claims)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}

	rawRefresh, err := s.issuer.IssueRefreshToken()
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}

	successor := domain.RefreshToken{
		ID:          uuid.NewString(),
		UserID:      user.ID,
		TokenHash:   security.HashToken(rawRefresh),
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.issuer.RefreshTokenTTL()),
		CreatedByIP: ip,
	}

	if err := s.tokens.Rotate(ctx, record.ID, successor); err != nil {
		if errors.Is(err, port.ErrRotationConflict) {
			return nil, s.handleReuse(ctx, record, now, ip)
		}
		return nil, fmt.Errorf("rotate refresh token: %w", err)
	}

	sanitized := *user
	sanitized.PasswordHash = ""

	return &LoginResult{
		AccessToken:  accessToken,
		RefreshToken: rawRefresh,
		ExpiresAt:    expiresAt,
		Claims:       claims,
		User:         sanitized,
	}, nil
}

// Revoke invalidates a single refresh token on the holder's request. The
// operation is best-effort and idempotent: unknown and already-revoked tokens
// succeed silently.
func (s *AuthService) Revoke(ctx context.Context, refreshToken, reason string) error {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return fmt.Errorf("refresh token is required")
	}
	if reason == "" {
		reason = domain.RevocationReasonUserRequest
	}

	record, err := s.tokens.GetByHash(ctx, security.HashToken(refreshToken))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("lookup refresh token: %w", err)
	}
	if record.IsRevoked() {
		return nil
	}

	if err := s.tokens.Revoke(ctx, record.ID, reason); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}

	s.publishTokensRevoked(ctx, record.UserID, 1, reason)
	return nil
}

// Logout revokes every live refresh token the user owns, forcing
// re-authentication on all devices once the current access token lapses.
func (s *AuthService) Logout(ctx context.Context, userID int64) error {
	if userID <= 0 {
		return fmt.Errorf("user id is required")
	}

	revoked, err := s.tokens.RevokeAllForUser(ctx, userID, domain.RevocationReasonLogout)
	if err != nil {
		return fmt.Errorf("revoke user tokens: %w", err)
	}

	if revoked > 0 {
		s.publishTokensRevoked(ctx, userID, revoked, domain.RevocationReasonLogout)
	}
	return nil
}

// IsLocked reports whether the account lockout is active right now.
func (s *AuthService) IsLocked(ctx context.Context, userID int64) (bool, *time.Time, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, nil, ErrUserNotFound
		}
		return false, nil, fmt.Errorf("lookup user: %w", err)
	}

	if user.IsLocked(s.timeFunc()) {
		return true, user.LockedUntil, nil
	}
	return false, nil, nil
}

// Unlock clears the lockout state ahead of its natural expiry. Administrative
// operation; callers enforce authorization.
func (s *AuthService) Unlock(ctx context.Context, userID int64) error {
	if userID <= 0 {
		return fmt.Errorf("user id is required")
	}

	if err := s.users.Unlock(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("unlock user: %w", err)
	}

	s.logger.Info("account unlocked", zap.Int64("user_id", userID))
	return nil
}

// issueTokenPair builds the claim set and creates a fresh access/refresh pair
// for a newly authenticated user.
func (s *AuthService) issueTokenPair(ctx context.Context, user *domain.User, ip *string, now time.Time) (*LoginResult, error) {
	claims, err := s.buildClaimSet(ctx, user)
	if err != nil {
		return nil, err
	}

	accessToken, expiresAt, err := s.issuer.IssueAccessToken(claims)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}

	rawRefresh, err := s.issuer.IssueRefreshToken()
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}

	record := domain.RefreshToken{
		ID:          uuid.NewString(),
		UserID:      user.ID,
		TokenHash:   security.HashToken(rawRefresh),
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.issuer.RefreshTokenTTL()),
		CreatedByIP: ip,
	}
	if err := s.tokens.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	sanitized := *user
	sanitized.PasswordHash = ""

	return &LoginResult{
		AccessToken:  accessToken,
		RefreshToken: rawRefresh,
		ExpiresAt:    expiresAt,
		Claims:       claims,
		User:         sanitized,
	}, nil
}

// buildClaimSet resolves the user's roles and permissions into the claim set
// embedded in access tokens.
func (s *AuthService) buildClaimSet(ctx context.Context, user *domain.User) (domain.ClaimSet, error) {
	var roles, permissions []string

	if s.rbac != nil {
		var err error
		roles, err = s.rbac.ListRoleNames(ctx, user.ID)
		if err != nil {
			return domain.ClaimSet{}, fmt.Errorf("list user roles: %w", err)
		}
		permissions, err = s.rbac.ListPermissionNames(ctx, user.ID)
		if err != nil {
			return domain.ClaimSet{}, fmt.Errorf("list user permissions: %w", err)
		}
	}

	if err := user.ValidateRoles(roles); err != nil {
		return domain.ClaimSet{}, fmt.Errorf("inconsistent role assignment: %w", err)
	}

	claims := domain.ClaimSet{
		UserID:      user.ID,
		Email:       user.Email,
		Roles:       roles,
		Permissions: permissions,
	}
	if user.SupervisedEntityID != nil {
		entityID := *user.SupervisedEntityID
		claims.SupervisedEntityID = &entityID
	}
	return claims, nil
}

func (s *AuthService) publishLoginSucceeded(ctx context.Context, user *domain.User, at time.Time, ip *string) {
	if s.events == nil {
		return
	}
	event := domain.LoginSucceededEvent{
		EventID:  uuid.NewString(),
		UserID:   user.ID,
		Email:    user.Email,
		EntityID: user.SupervisedEntityID,
		At:       at,
		IP:       ip,
	}
	if err := s.events.PublishLoginSucceeded(ctx, event); err != nil {
		s.logger.Warn("publish login event", zap.Error(err))
	}
}

func (s *AuthService) publishLoginFailed(ctx context.Context, userID int64, email string, attempts int, at time.Time, ip *string) {
	if s.events == nil {
		return
	}
	event := domain.LoginFailedEvent{
		EventID:  uuid.NewString(),
		UserID:   userID,
		Email:    email,
		Attempts: attempts,
		At:       at,
		IP:       ip,
	}
	if err := s.events.PublishLoginFailed(ctx, event); err != nil {
		s.logger.Warn("publish login-failed event", zap.Error(err))
	}
}

func (s *AuthService) publishAccountLocked(ctx context.Context, userID int64, state port.LockoutState, at time.Time) {
	if s.events == nil || state.LockedUntil == nil {
		return
	}
	event := domain.AccountLockedEvent{
		EventID:     uuid.NewString(),
		UserID:      userID,
		Attempts:    state.FailedAttempts,
		LockedUntil: *state.LockedUntil,
		At:          at,
	}
	if err := s.events.PublishAccountLocked(ctx, event); err != nil {
		s.logger.Warn("publish lockout event", zap.Error(err))
	}
}

func (s *AuthService) publishTokensRevoked(ctx context.Context, userID int64, count int, reason string) {
	if s.events == nil {
		return
	}
	event := domain.TokensRevokedEvent{
		EventID: uuid.NewString(),
		UserID:  userID,
		Count:   count,
		Reason:  reason,
		At:      s.timeFunc(),
	}
	if err := s.events.PublishTokensRevoked(ctx, event); err != nil {
		s.logger.Warn("publish revocation event", zap.Error(err))
	}
}
