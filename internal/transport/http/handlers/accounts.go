package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/regportal/iam-service/internal/core/authz"
	"github.com/regportal/iam-service/internal/core/domain"
	"github.com/regportal/iam-service/internal/transport/http/middleware"
	"github.com/regportal/iam-service/internal/usecase"
)

// AccountHandler exposes administrative lockout operations.
type AccountHandler struct {
	auth      *usecase.AuthService
	validator middleware.TokenValidator
}

// NewAccountHandler constructs AccountHandler.
func NewAccountHandler(auth *usecase.AuthService, validator middleware.TokenValidator) *AccountHandler {
	return &AccountHandler{auth: auth, validator: validator}
}

// RegisterRoutes binds account administration routes. All routes require an
// authenticated caller holding the user administration permission.
func (h *AccountHandler) RegisterRoutes(r *gin.RouterGroup) {
	guarded := r.Group("",
		middleware.RequireAuth(h.validator),
		middleware.RequirePolicies(authz.PermissionPolicy(domain.PermUsersWrite)),
	)
	guarded.GET("/users/:id/lock-status", h.lockStatus)
	guarded.POST("/users/:id/unlock", h.unlock)
}

// LockStatus godoc
// @Summary Report account lockout state
// @Tags Accounts
// @Produce json
// @Success 200 {object} LockStatusResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/accounts/users/{id}/lock-status [get]
func (h *AccountHandler) lockStatus(c *gin.Context) {
	userID, ok := userIDParam(c)
	if !ok {
		return
	}

	locked, until, err := h.auth.IsLocked(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, usecase.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, NewErrorResponse(c, "user not found"))
			return
		}
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to read lock status"))
		return
	}

	c.JSON(http.StatusOK, LockStatusResponse{
		UserID:      userID,
		Locked:      locked,
		LockedUntil: until,
	})
}

// Unlock godoc
// @Summary Clear an account lockout ahead of its expiry
// @Tags Accounts
// @Produce json
// @Success 200 {object} MessageResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/accounts/users/{id}/unlock [post]
func (h *AccountHandler) unlock(c *gin.Context) {
	userID, ok := userIDParam(c)
	if !ok {
		return
	}

	if err := h.auth.Unlock(c.Request.Context(), userID); err != nil {
		if errors.Is(err, usecase.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, NewErrorResponse(c, "user not found"))
			return
		}
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to unlock user"))
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "account unlocked"})
}

func userIDParam(c *gin.Context) (int64, bool) {
	raw := c.Param("id")
	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || userID <= 0 {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid user id"))
		return 0, false
	}
	return userID, true
}
