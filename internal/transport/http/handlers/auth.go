package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/regportal/iam-service/internal/infra/security"
	"github.com/regportal/iam-service/internal/transport/http/middleware"
	"github.com/regportal/iam-service/internal/usecase"
)

// AuthHandler exposes authentication and session endpoints.
type AuthHandler struct {
	auth      *usecase.AuthService
	passwords *usecase.PasswordService
	validator middleware.TokenValidator
}

// NewAuthHandler constructs AuthHandler.
func NewAuthHandler(auth *usecase.AuthService, passwords *usecase.PasswordService, validator middleware.TokenValidator) *AuthHandler {
	return &AuthHandler{auth: auth, passwords: passwords, validator: validator}
}

// AuthRouteOptions carries optional middleware chains applied ahead of
// individual authentication handlers.
type AuthRouteOptions struct {
	LoginMiddlewares   []gin.HandlerFunc
	RefreshMiddlewares []gin.HandlerFunc
}

// RegisterRoutes binds authentication routes.
func (h *AuthHandler) RegisterRoutes(r *gin.RouterGroup, opts AuthRouteOptions) {
	r.POST("/login", withMiddlewares(opts.LoginMiddlewares, h.login)...)
	r.POST("/refresh", withMiddlewares(opts.RefreshMiddlewares, h.refresh)...)
	r.POST("/revoke", h.revoke)
	r.POST("/logout", middleware.RequireAuth(h.validator), h.logout)
	r.POST("/password/change", middleware.RequireAuth(h.validator), h.changePassword)
}

func withMiddlewares(chain []gin.HandlerFunc, handler gin.HandlerFunc) []gin.HandlerFunc {
	out := append([]gin.HandlerFunc{}, chain...)
	return append(out, handler)
}

// Login godoc
// @Summary Authenticate a user with credentials
// @Description Validates email and password, returning access and refresh tokens on success.
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login request"
// @Success 200 {object} LoginResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 423 {object} LockedResponse
// @Failure 429 {object} middleware.ProblemDetails
// @Router /api/v1/auth/login [post]
func (h *AuthHandler) login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid login payload"))
		return
	}

	ip := clientIP(c)
	result, err := h.auth.Login(c.Request.Context(), strings.TrimSpace(req.Email), req.Password, ip)
	if err != nil {
		h.respondLoginError(c, err)
		return
	}

	c.JSON(http.StatusOK, newLoginResponse(result))
}

// Refresh godoc
// @Summary Refresh an access token
// @Description Exchanges an expired access token plus a live refresh token for a fresh pair.
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body RefreshRequest true "Refresh request"
// @Success 200 {object} LoginResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Router /api/v1/auth/refresh [post]
func (h *AuthHandler) refresh(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "accessToken and refreshToken are required"))
		return
	}

	ip := clientIP(c)
	result, err := h.auth.Refresh(c.Request.Context(), req.AccessToken, req.RefreshToken, ip)
	if err != nil {
		switch {
		case errors.Is(err, security.ErrTokenInvalid), errors.Is(err, security.ErrTokenExpired):
			c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "invalid access token"))
		case errors.Is(err, usecase.ErrRefreshTokenUnknown):
			c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "invalid refresh token"))
		case errors.Is(err, usecase.ErrRefreshTokenExpired):
			c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "refresh token expired"))
		case errors.Is(err, usecase.ErrRefreshTokenReused):
			c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "refresh token no longer valid"))
		default:
			c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to refresh token"))
		}
		return
	}

	c.JSON(http.StatusOK, newLoginResponse(result))
}

// Revoke godoc
// @Summary Revoke a refresh token
// @Description Invalidates a single refresh token. Unknown tokens succeed silently.
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body RevokeRequest true "Revoke request"
// @Success 204 {string} string ""
// @Failure 400 {object} ErrorResponse
// @Router /api/v1/auth/revoke [post]
func (h *AuthHandler) revoke(c *gin.Context) {
	var req RevokeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "refreshToken is required"))
		return
	}

	if err := h.auth.Revoke(c.Request.Context(), req.RefreshToken, strings.TrimSpace(req.Reason)); err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to revoke token"))
		return
	}

	c.Status(http.StatusNoContent)
}

// Logout godoc
// @Summary Logout everywhere
// @Description Revokes every refresh token the caller owns.
// @Tags Authentication
// @Produce json
// @Success 204 {string} string ""
// @Failure 401 {object} ErrorResponse
// @Router /api/v1/auth/logout [post]
func (h *AuthHandler) logout(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	if err := h.auth.Logout(c.Request.Context(), userID); err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to logout"))
		return
	}

	c.Status(http.StatusNoContent)
}

// ChangePassword godoc
// @Summary Change the caller's password
// @Description Verifies the current password, applies the password policy, and revokes all refresh tokens.
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body PasswordChangeRequest true "Password change request"
// @Success 200 {object} PasswordChangeResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Router /api/v1/auth/password/change [post]
func (h *AuthHandler) changePassword(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	var req PasswordChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "currentPassword and newPassword are required"))
		return
	}

	if err := h.passwords.ChangePassword(c.Request.Context(), userID, req.CurrentPassword, req.NewPassword); err != nil {
		var policyErr *security.PasswordValidationError
		switch {
		case errors.Is(err, usecase.ErrInvalidCredentials):
			c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "current password is incorrect"))
		case errors.As(err, &policyErr):
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, policyErr.Message))
		case errors.Is(err, usecase.ErrUserNotFound):
			c.JSON(http.StatusNotFound, NewErrorResponse(c, "user not found"))
		default:
			c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to change password"))
		}
		return
	}

	c.JSON(http.StatusOK, PasswordChangeResponse{
		Message:   "password changed",
		ChangedAt: time.Now().UTC(),
	})
}

func (h *AuthHandler) respondLoginError(c *gin.Context, err error) {
	var lockedErr *usecase.AccountLockedError
	switch {
	case errors.As(err, &lockedErr):
		c.JSON(http.StatusLocked, LockedResponse{
			Error:       "account locked",
			LockedUntil: lockedErr.Until.UTC(),
			TraceID:     middleware.GetTraceID(c),
		})
	case errors.Is(err, usecase.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "invalid credentials"))
	default:
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "authentication failed"))
	}
}

func newLoginResponse(result *usecase.LoginResult) LoginResponse {
	expiresIn := int(time.Until(result.ExpiresAt).Seconds())
	if expiresIn < 0 {
		expiresIn = 0
	}

	return LoginResponse{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    expiresIn,
		User:         newUserSummary(result.User, result.Claims),
	}
}

func clientIP(c *gin.Context) *string {
	ip := strings.TrimSpace(c.ClientIP())
	if ip == "" {
		return nil
	}
	return &ip
}
