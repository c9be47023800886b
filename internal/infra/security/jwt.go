package security

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	uuid "github.com/google/uuid"

	"github.com/regportal/iam-service/internal/core/domain"
)

var (
	// ErrTokenInvalid indicates the access token is malformed, carries a bad
	// signature, or fails any structural check. The cause is never surfaced.
	ErrTokenInvalid = errors.New("invalid access token")
	// ErrTokenExpired indicates the access token's signature is valid but its
	// lifetime has elapsed.
	ErrTokenExpired = errors.New("access token expired")
)

// TokenSettings is the immutable configuration for the token service. The
// secret, issuer, audience, and lifetimes are passed in at construction and
// never read from ambient state.
type TokenSettings struct {
	Secret          string
	Issuer          string
	Audience        string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

// AccessTokenClaims is the claim schema other services read: subject id,
// email, repeated role claims, repeated permission claims, and a single
// optional supervised-entity claim.
type AccessTokenClaims struct {
	Email              string   `json:"email"`
	Roles              []string `json:"roles,omitempty"`
	Permissions        []string `json:"permissions,omitempty"`
	SupervisedEntityID *int64   `json:"supervised_entity_id,omitempty"`
	jwt.RegisteredClaims
}

// TokenService creates and validates signed access tokens and mints opaque
// refresh tokens. Validation never panics on attacker-controlled input.
type TokenService struct {
	settings TokenSettings
}

// NewTokenService constructs a TokenService from explicit settings.
func NewTokenService(settings TokenSettings) (*TokenService, error) {
	if strings.TrimSpace(settings.Secret) == "" {
		return nil, fmt.Errorf("token secret is required")
	}
	if settings.AccessTokenTTL <= 0 {
		settings.AccessTokenTTL = time.Hour
	}
	if settings.RefreshTokenTTL <= 0 {
		settings.RefreshTokenTTL = 7 * 24 * time.Hour
	}
	return &TokenService{settings: settings}, nil
}

// AccessTokenTTL returns the configured access-token lifetime.
func (s *TokenService) AccessTokenTTL() time.Duration {
	return s.settings.AccessTokenTTL
}

// RefreshTokenTTL returns the configured refresh-token lifetime.
func (s *TokenService) RefreshTokenTTL() time.Duration {
	return s.settings.RefreshTokenTTL
}

// IssueAccessToken produces a signed HS256 token embedding the claim set and
// returns the token together with its expiry.
func (s *TokenService) IssueAccessToken(claims domain.ClaimSet) (string, time.Time, error) {
	if claims.UserID <= 0 {
		return "", time.Time{}, fmt.Errorf("user id is required")
	}

	now := time.Now().UTC()
	expiresAt := now.Add(s.settings.AccessTokenTTL)

	var audience jwt.ClaimStrings
	if s.settings.Audience != "" {
		audience = append(audience, s.settings.Audience)
	}

	tokenClaims := AccessTokenClaims{
		Email:              claims.Email,
		Roles:              claims.Roles,
		Permissions:        claims.Permissions,
		SupervisedEntityID: claims.SupervisedEntityID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(claims.UserID, 10),
			Issuer:    s.settings.Issuer,
			Audience:  audience,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims)
	signed, err := token.SignedString([]byte(s.settings.Secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}

	return signed, expiresAt, nil
}

// IssueRefreshToken returns a cryptographically random opaque token. Leaking
// it reveals nothing about access-token content.
func (s *TokenService) IssueRefreshToken() (string, error) {
	return GenerateSecureToken(64)
}

// ValidateAccessToken verifies signature, issuer, audience, and lifetime and
// decodes the embedded claim set. Any failure maps to ErrTokenExpired or
// ErrTokenInvalid; parsing errors never escape.
func (s *TokenService) ValidateAccessToken(token string) (*domain.ClaimSet, error) {
	claims, err := s.parse(token, true)
	if err != nil {
		return nil, err
	}
	return s.toClaimSet(claims)
}

// ExtractUserID verifies the token signature and returns the subject id,
// ignoring expiry. Used during the refresh exchange where the presented
// access token is typically already expired.
func (s *TokenService) ExtractUserID(token string) (int64, error) {
	claims, err := s.parse(token, false)
	if err != nil && !errors.Is(err, ErrTokenExpired) {
		return 0, err
	}
	userID, parseErr := strconv.ParseInt(claims.Subject, 10, 64)
	if parseErr != nil || userID <= 0 {
		return 0, ErrTokenInvalid
	}
	return userID, nil
}

func (s *TokenService) parse(token string, validateLifetime bool) (*AccessTokenClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrTokenInvalid
	}

	options := []jwt.ParserOption{}
	if s.settings.Issuer != "" {
		options = append(options, jwt.WithIssuer(s.settings.Issuer))
	}
	if s.settings.Audience != "" {
		options = append(options, jwt.WithAudience(s.settings.Audience))
	}
	if !validateLifetime {
		options = []jwt.ParserOption{jwt.WithoutClaimsValidation()}
	}

	claims := &AccessTokenClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(s.settings.Secret), nil
	}, options...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return claims, ErrTokenExpired
		}
		return claims, ErrTokenInvalid
	}

	if parsed == nil || !parsed.Valid {
		return claims, ErrTokenInvalid
	}

	return claims, nil
}

func (s *TokenService) toClaimSet(claims *AccessTokenClaims) (*domain.ClaimSet, error) {
	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return nil, ErrTokenInvalid
	}

	set := &domain.ClaimSet{
		UserID:      userID,
		Email:       claims.Email,
		Roles:       claims.Roles,
		Permissions: claims.Permissions,
	}
	if claims.SupervisedEntityID != nil {
		entityID := *claims.SupervisedEntityID
		set.SupervisedEntityID = &entityID
	}

	return set, nil
}
