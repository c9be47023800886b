package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/regportal/iam-service/internal/core/domain"
)

// ErrorResponse represents a generic error payload with trace ID for debugging.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// NewErrorResponse creates an error response with trace ID from context
func NewErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	traceID, _ := c.Get("trace_id")
	traceIDStr, _ := traceID.(string)

	return ErrorResponse{
		Error:   errorMsg,
		TraceID: traceIDStr,
	}
}

// MessageResponse represents a simple message payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// UserSummary describes the authenticated user view returned by the API.
type UserSummary struct {
	ID          int64    `json:"id"`
	Email       string   `json:"email"`
	FullName    string   `json:"fullName"`
	Roles       []string `json:"roles,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
	TenantID    *int64   `json:"tenantId,omitempty"`
}

// LoginRequest defines the payload for the login endpoint.
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse describes the response returned for a successful login or refresh.
type LoginResponse struct {
	AccessToken  string      `json:"accessToken"`
	RefreshToken string      `json:"refreshToken"`
	TokenType    string      `json:"tokenType"`
	ExpiresIn    int         `json:"expiresIn"`
	User         UserSummary `json:"user"`
}

// LockedResponse is returned when the account lockout rejects a login.
type LockedResponse struct {
	Error       string    `json:"error"`
	LockedUntil time.Time `json:"lockedUntil"`
	TraceID     string    `json:"trace_id,omitempty"`
}

// RefreshRequest represents the payload to exchange an expired access token.
type RefreshRequest struct {
	AccessToken  string `json:"accessToken" binding:"required"`
	RefreshToken string `json:"refreshToken" binding:"required"`
}

// RevokeRequest asks for a single refresh token to be invalidated.
type RevokeRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
	Reason       string `json:"reason"`
}

// PasswordChangeRequest captures a password change request body.
type PasswordChangeRequest struct {
	CurrentPassword string `json:"currentPassword" binding:"required"`
	NewPassword     string `json:"newPassword" binding:"required"`
}

// PasswordChangeResponse conveys the result of a password change.
type PasswordChangeResponse struct {
	Message   string    `json:"message"`
	ChangedAt time.Time `json:"changedAt"`
}

// LockStatusResponse reports the account lockout state.
type LockStatusResponse struct {
	UserID      int64      `json:"userId"`
	Locked      bool       `json:"locked"`
	LockedUntil *time.Time `json:"lockedUntil,omitempty"`
}

// HealthResponse describes the service health payload.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
}

// ReadyResponse describes readiness probe results with dependency checks.
type ReadyResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// newUserSummary converts a domain user plus its claim set to an API view.
func newUserSummary(user domain.User, claims domain.ClaimSet) UserSummary {
	summary := UserSummary{
		ID:       user.ID,
		Email:    user.Email,
		FullName: user.FullName(),
	}

	if len(claims.Roles) > 0 {
		summary.Roles = append([]string(nil), claims.Roles...)
	}
	if len(claims.Permissions) > 0 {
		summary.Permissions = append([]string(nil), claims.Permissions...)
	}
	if claims.SupervisedEntityID != nil {
		tenantID := *claims.SupervisedEntityID
		summary.TenantID = &tenantID
	}

	return summary
}
