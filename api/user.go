package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/openridehq/rideshare-backend/internal/middleware"
	"github.com/openridehq/rideshare-backend/internal/notify"
	"github.com/openridehq/rideshare-backend/user"
)

type userResponse struct {
	ID            uuid.UUID `json:"id"`
	Role          user.Role `json:"role"`
	Email         *string   `json:"email,omitempty"`
	Name          *string   `json:"name,omitempty"`
	IsKycVerified bool      `json:"isKycVerified"`
	AverageRating *float64  `json:"averageRating,omitempty"`
}

func toUserResponse(u user.User) userResponse {
	resp := userResponse{
		ID:            u.ID,
		Role:          u.Role,
		IsKycVerified: u.IsKycVerified,
	}
	if u.Email.Valid {
		resp.Email = &u.Email.String
	}
	if u.Name.Valid {
		resp.Name = &u.Name.String
	}
	if u.AverageRating.Valid {
		resp.AverageRating = &u.AverageRating.Float64
	}
	return resp
}

func (a *API) meHandler(c *gin.Context) {
	u, ok := a.currentUser(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, toUserResponse(*u))
}

type reviewKycRequest struct {
	Verified *bool `json:"verified" binding:"required"`
}

// reviewKycHandler records a KYC review outcome. Admin only.
func (a *API) reviewKycHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)

	actor, ok := a.currentUser(c)
	if !ok {
		return
	}
	if !actor.IsAdmin() {
		c.JSON(http.StatusForbidden, gin.H{"code": "NOT_AUTHORIZED", "message": "Admin access required"})
		return
	}

	userID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_REQUEST", "message": "Invalid user id"})
		return
	}

	var req reviewKycRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_REQUEST", "message": err.Error()})
		return
	}

	u, err := a.ur.SetKycVerified(c, userID, *req.Verified)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"code": "USER_NOT_FOUND", "message": "User not found"})
			return
		}
		logger.ErrorContext(c, "failed to update KYC status", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	a.notifyUser(c, u.ID, notify.EventKycReviewed, map[string]string{
		"verified": strconv.FormatBool(u.IsKycVerified),
	})

	c.JSON(http.StatusOK, toUserResponse(*u))
}
