package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/regportal/iam-service/internal/core/domain"
	"github.com/regportal/iam-service/internal/core/port"
	"github.com/regportal/iam-service/internal/infra/security"
	"github.com/regportal/iam-service/internal/repository"
	"github.com/regportal/iam-service/internal/usecase"
)

type memUserRepository struct {
	users map[int64]*domain.User
}

func (r *memUserRepository) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	for _, user := range r.users {
		if user.Email == email {
			copied := *user
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memUserRepository) GetByID(_ context.Context, id int64) (*domain.User, error) {
	if user, ok := r.users[id]; ok {
		copied := *user
		return &copied, nil
	}
	return nil, repository.ErrNotFound
}

func (r *memUserRepository) RecordFailedLogin(_ context.Context, userID int64, threshold int, lockFor time.Duration) (port.LockoutState, error) {
	user, ok := r.users[userID]
	if !ok {
		return port.LockoutState{}, repository.ErrNotFound
	}
	user.FailedLoginAttempts++
	if user.FailedLoginAttempts >= threshold {
		lockedUntil := time.Now().UTC().Add(lockFor)
		user.LockedUntil = &lockedUntil
	}
	return port.LockoutState{FailedAttempts: user.FailedLoginAttempts, LockedUntil: user.LockedUntil}, nil
}

func (r *memUserRepository) ResetLoginState(_ context.Context, userID int64, loginAt time.Time) error {
	user, ok := r.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	user.FailedLoginAttempts = 0
	user.LockedUntil = nil
	user.LastLoginAt = &loginAt
	return nil
}

func (r *memUserRepository) Unlock(_ context.Context, userID int64) error {
	user, ok := r.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	user.FailedLoginAttempts = 0
	user.LockedUntil = nil
	return nil
}

func (r *memUserRepository) UpdatePassword(_ context.Context, userID int64, passwordHash string, changedAt time.Time) error {
	user, ok := r.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	user.PasswordHash = passwordHash
	user.LastPasswordChangeAt = &changedAt
	return nil
}

type memRBACRepository struct {
	roles       map[int64][]string
	permissions map[int64][]string
}

func (r *memRBACRepository) ListRoleNames(_ context.Context, userID int64) ([]string, error) {
	return append([]string(nil), r.roles[userID]...), nil
}

func (r *memRBACRepository) ListPermissionNames(_ context.Context, userID int64) ([]string, error) {
	return append([]string(nil), r.permissions[userID]...), nil
}

type memTokenRepository struct {
	byID map[string]*domain.RefreshToken
}

func (r *memTokenRepository) Create(_ context.Context, token domain.RefreshToken) error {
	copied := token
	r.byID[token.ID] = &copied
	return nil
}

func (r *memTokenRepository) GetByHash(_ context.Context, hash string) (*domain.RefreshToken, error) {
	for _, token := range r.byID {
		if token.TokenHash == hash {
			copied := *token
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memTokenRepository) Rotate(_ context.Context, oldID string, successor domain.RefreshToken) error {
	old, ok := r.byID[oldID]
	if !ok || old.RevokedAt != nil {
		return port.ErrRotationConflict
	}
	now := time.Now().UTC()
	reason := domain.RevocationReasonRotated
	old.RevokedAt = &now
	old.RevocationReason = &reason
	replacedBy := successor.ID
	old.ReplacedByID = &replacedBy
	copied := successor
	r.byID[successor.ID] = &copied
	return nil
}

func (r *memTokenRepository) Revoke(_ context.Context, id string, reason string) error {
	if token, ok := r.byID[id]; ok && token.RevokedAt == nil {
		now := time.Now().UTC()
		token.RevokedAt = &now
		token.RevocationReason = &reason
	}
	return nil
}

func (r *memTokenRepository) RevokeChain(_ context.Context, id string, reason string) (int, error) {
	revoked := 0
	for _, token := range r.byID {
		if token.RevokedAt == nil {
			now := time.Now().UTC()
			token.RevokedAt = &now
			token.RevocationReason = &reason
			revoked++
		}
	}
	_ = id
	return revoked, nil
}

func (r *memTokenRepository) RevokeAllForUser(_ context.Context, userID int64, reason string) (int, error) {
	revoked := 0
	for _, token := range r.byID {
		if token.UserID == userID && token.RevokedAt == nil {
			now := time.Now().UTC()
			token.RevokedAt = &now
			token.RevocationReason = &reason
			revoked++
		}
	}
	return revoked, nil
}

const handlerTestPassword = "Sup3rv!sorPass#2026"

type handlerFixture struct {
	engine *gin.Engine
	users  *memUserRepository
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hash, err := security.HashPassword(handlerTestPassword)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}

	entityID := int64(123)
	users := &memUserRepository{users: map[int64]*domain.User{
		42: {
			ID:                 42,
			Email:              "jan.kowalski@bank.pl",
			FirstName:          "Jan",
			LastName:           "Kowalski",
			PasswordHash:       hash,
			IsActive:           true,
			SupervisedEntityID: &entityID,
		},
		7: {
			ID:           7,
			Email:        "admin@uknf.gov.pl",
			FirstName:    "Anna",
			LastName:     "Nowak",
			PasswordHash: hash,
			IsActive:     true,
		},
	}}
	rbac := &memRBACRepository{
		roles: map[int64][]string{
			42: {domain.RoleEntityAdministrator},
			7:  {domain.RoleAdministrator},
		},
		permissions: map[int64][]string{
			42: {"reports.submit"},
			7:  {domain.PermUsersWrite},
		},
	}
	tokens := &memTokenRepository{byID: make(map[string]*domain.RefreshToken)}

	issuer, err := security.NewTokenService(security.TokenSettings{
		Secret:          "handler-test-secret-32-bytes-min!!",
		Issuer:          "regportal-iam",
		Audience:        "regportal",
		AccessTokenTTL:  time.Hour,
		RefreshTokenTTL: 24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("init token service: %v", err)
	}

	auth, err := usecase.NewAuthService(users, rbac, tokens, issuer, nil, usecase.LockoutSettings{
		MaxFailedAttempts: 5,
		LockoutDuration:   15 * time.Minute,
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("init auth service: %v", err)
	}

	passwords, err := usecase.NewPasswordService(users, tokens, security.DefaultPasswordValidator(), nil, zap.NewNop())
	if err != nil {
		t.Fatalf("init password service: %v", err)
	}

	r := gin.New()
	api := r.Group("/api/v1")

	authHandler := NewAuthHandler(auth, passwords, issuer)
	authHandler.RegisterRoutes(api.Group("/auth"), AuthRouteOptions{})

	accountHandler := NewAccountHandler(auth, issuer)
	accountHandler.RegisterRoutes(api.Group("/accounts"))

	return &handlerFixture{engine: r, users: users}
}

func (fx *handlerFixture) do(method, path string, payload any, bearer string) *httptest.ResponseRecorder {
	var body *bytes.Buffer
	if payload != nil {
		raw, _ := json.Marshal(payload)
		body = bytes.NewBuffer(raw)
	} else {
		body = bytes.NewBuffer(nil)
	}

	req, _ := http.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	w := httptest.NewRecorder()
	fx.engine.ServeHTTP(w, req)
	return w
}

func (fx *handlerFixture) login(t *testing.T, email, password string) LoginResponse {
	t.Helper()
	w := fx.do(http.MethodPost, "/api/v1/auth/login", LoginRequest{Email: email, Password: password}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("login failed with status %d: %s", w.Code, w.Body.String())
	}
	var resp LoginResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	return resp
}

func TestLoginEndpointSuccess(t *testing.T) {
	fx := newHandlerFixture(t)

	resp := fx.login(t, "jan.kowalski@bank.pl", handlerTestPassword)

	if resp.TokenType != "Bearer" {
		t.Fatalf("expected Bearer token type, got %q", resp.TokenType)
	}
	if resp.ExpiresIn <= 0 {
		t.Fatalf("expected positive expiresIn, got %d", resp.ExpiresIn)
	}
	if resp.AccessToken == "" || resp.RefreshToken == "" {
		t.Fatal("expected non-empty token pair")
	}
	if resp.User.ID != 42 || resp.User.FullName != "Jan Kowalski" {
		t.Fatalf("unexpected user summary %+v", resp.User)
	}
	if resp.User.TenantID == nil || *resp.User.TenantID != 123 {
		t.Fatalf("expected tenantId 123, got %v", resp.User.TenantID)
	}
}

func TestLoginEndpointInvalidCredentials(t *testing.T) {
	fx := newHandlerFixture(t)

	w := fx.do(http.MethodPost, "/api/v1/auth/login", LoginRequest{
		Email:    "jan.kowalski@bank.pl",
		Password: "wrong-password",
	}, "")

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", w.Code, w.Body.String())
	}
}

func TestLoginEndpointMissingFields(t *testing.T) {
	fx := newHandlerFixture(t)

	w := fx.do(http.MethodPost, "/api/v1/auth/login", map[string]string{"email": "jan.kowalski@bank.pl"}, "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestLoginEndpointLockout(t *testing.T) {
	fx := newHandlerFixture(t)

	for i := 0; i < 5; i++ {
		fx.do(http.MethodPost, "/api/v1/auth/login", LoginRequest{
			Email:    "jan.kowalski@bank.pl",
			Password: "wrong-password",
		}, "")
	}

	w := fx.do(http.MethodPost, "/api/v1/auth/login", LoginRequest{
		Email:    "jan.kowalski@bank.pl",
		Password: handlerTestPassword,
	}, "")

	if w.Code != http.StatusLocked {
		t.Fatalf("expected 423, got %d: %s", w.Code, w.Body.String())
	}

	var locked LockedResponse
	if err := json.Unmarshal(w.Body.Bytes(), &locked); err != nil {
		t.Fatalf("decode locked response: %v", err)
	}
	if locked.LockedUntil.IsZero() {
		t.Fatal("expected lockedUntil timestamp")
	}
}

func TestRefreshEndpointRotatesAndDetectsReuse(t *testing.T) {
	fx := newHandlerFixture(t)

	login := fx.login(t, "jan.kowalski@bank.pl", handlerTestPassword)

	w := fx.do(http.MethodPost, "/api/v1/auth/refresh", RefreshRequest{
		AccessToken:  login.AccessToken,
		RefreshToken: login.RefreshToken,
	}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("refresh failed with status %d: %s", w.Code, w.Body.String())
	}

	var refreshed LoginResponse
	if err := json.Unmarshal(w.Body.Bytes(), &refreshed); err != nil {
		t.Fatalf("decode refresh response: %v", err)
	}
	if refreshed.RefreshToken == login.RefreshToken {
		t.Fatal("refresh must rotate the refresh token")
	}

	// Replaying the consumed token is rejected.
	w = fx.do(http.MethodPost, "/api/v1/auth/refresh", RefreshRequest{
		AccessToken:  login.AccessToken,
		RefreshToken: login.RefreshToken,
	}, "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 on reuse, got %d: %s", w.Code, w.Body.String())
	}
}

func TestRefreshEndpointUnknownToken(t *testing.T) {
	fx := newHandlerFixture(t)

	login := fx.login(t, "jan.kowalski@bank.pl", handlerTestPassword)

	w := fx.do(http.MethodPost, "/api/v1/auth/refresh", RefreshRequest{
		AccessToken:  login.AccessToken,
		RefreshToken: "never-issued",
	}, "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestRevokeEndpointIsIdempotent(t *testing.T) {
	fx := newHandlerFixture(t)

	w := fx.do(http.MethodPost, "/api/v1/auth/revoke", RevokeRequest{RefreshToken: "never-issued"}, "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for unknown token, got %d", w.Code)
	}
}

func TestLogoutEndpointRequiresAuth(t *testing.T) {
	fx := newHandlerFixture(t)

	if w := fx.do(http.MethodPost, "/api/v1/auth/logout", nil, ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without bearer, got %d", w.Code)
	}

	login := fx.login(t, "jan.kowalski@bank.pl", handlerTestPassword)
	if w := fx.do(http.MethodPost, "/api/v1/auth/logout", nil, login.AccessToken); w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
}

func TestChangePasswordEndpoint(t *testing.T) {
	fx := newHandlerFixture(t)

	login := fx.login(t, "jan.kowalski@bank.pl", handlerTestPassword)

	w := fx.do(http.MethodPost, "/api/v1/auth/password/change", PasswordChangeRequest{
		CurrentPassword: "wrong-password",
		NewPassword:     "Fresh!Passw0rd#2026",
	}, login.AccessToken)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong current password, got %d", w.Code)
	}

	w = fx.do(http.MethodPost, "/api/v1/auth/password/change", PasswordChangeRequest{
		CurrentPassword: handlerTestPassword,
		NewPassword:     "abc",
	}, login.AccessToken)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for weak password, got %d: %s", w.Code, w.Body.String())
	}

	w = fx.do(http.MethodPost, "/api/v1/auth/password/change", PasswordChangeRequest{
		CurrentPassword: handlerTestPassword,
		NewPassword:     "Fresh!Passw0rd#2026",
	}, login.AccessToken)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestAccountEndpointsRequireUserAdminPermission(t *testing.T) {
	fx := newHandlerFixture(t)

	entityLogin := fx.login(t, "jan.kowalski@bank.pl", handlerTestPassword)
	w := fx.do(http.MethodGet, "/api/v1/accounts/users/42/lock-status", nil, entityLogin.AccessToken)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without users.write, got %d", w.Code)
	}

	adminLogin := fx.login(t, "admin@uknf.gov.pl", handlerTestPassword)
	w = fx.do(http.MethodGet, "/api/v1/accounts/users/42/lock-status", nil, adminLogin.AccessToken)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for administrator, got %d: %s", w.Code, w.Body.String())
	}

	var status LockStatusResponse
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode lock status: %v", err)
	}
	if status.UserID != 42 || status.Locked {
		t.Fatalf("unexpected lock status %+v", status)
	}
}

func TestAccountUnlockEndpoint(t *testing.T) {
	fx := newHandlerFixture(t)

	for i := 0; i < 5; i++ {
		fx.do(http.MethodPost, "/api/v1/auth/login", LoginRequest{
			Email:    "jan.kowalski@bank.pl",
			Password: "wrong-password",
		}, "")
	}
	if fx.users.users[42].LockedUntil == nil {
		t.Fatal("expected account to be locked")
	}

	adminLogin := fx.login(t, "admin@uknf.gov.pl", handlerTestPassword)
	w := fx.do(http.MethodPost, "/api/v1/accounts/users/42/unlock", nil, adminLogin.AccessToken)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if fx.users.users[42].LockedUntil != nil {
		t.Fatal("expected lockout cleared")
	}

	fx.login(t, "jan.kowalski@bank.pl", handlerTestPassword)
}

func TestAccountEndpointInvalidUserID(t *testing.T) {
	fx := newHandlerFixture(t)

	adminLogin := fx.login(t, "admin@uknf.gov.pl", handlerTestPassword)
	for _, path := range []string{
		"/api/v1/accounts/users/abc/lock-status",
		fmt.Sprintf("/api/v1/accounts/users/%d/lock-status", -1),
	} {
		w := fx.do(http.MethodGet, path, nil, adminLogin.AccessToken)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 for %s, got %d", path, w.Code)
		}
	}
}
