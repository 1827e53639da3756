package api

import (
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/openridehq/rideshare-backend/internal/middleware"
	"github.com/openridehq/rideshare-backend/rating"
)

type ratingResponse struct {
	ID         uuid.UUID `json:"id"`
	FromUserID uuid.UUID `json:"fromUserId"`
	ToUserID   uuid.UUID `json:"toUserId"`
	BookingID  uuid.UUID `json:"bookingId"`
	Rating     int       `json:"rating"`
	Review     *string   `json:"review,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

func toRatingResponse(r rating.Rating) ratingResponse {
	resp := ratingResponse{
		ID:         r.ID,
		FromUserID: r.FromUserID,
		ToUserID:   r.ToUserID,
		BookingID:  r.BookingID,
		Rating:     r.Rating,
		CreatedAt:  r.CreatedAt,
	}
	if r.Review.Valid {
		resp.Review = &r.Review.String
	}
	return resp
}

type submitRatingRequest struct {
	BookingID string `json:"bookingId" binding:"required"`
	Rating    int    `json:"rating" binding:"required"`
	Review    string `json:"review"`
}

func (a *API) submitRatingHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)

	u, ok := a.currentUser(c)
	if !ok {
		return
	}

	var req submitRatingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_REQUEST", "message": err.Error()})
		return
	}

	bookingID, err := uuid.Parse(req.BookingID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_REQUEST", "message": "Invalid bookingId"})
		return
	}
	if req.Rating < rating.MinScore || req.Rating > rating.MaxScore {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_REQUEST", "message": "rating must be between 1 and 5"})
		return
	}

	rt := &rating.Rating{
		ID:         uuid.New(),
		FromUserID: u.ID,
		BookingID:  bookingID,
		Rating:     req.Rating,
		Review:     sql.NullString{String: req.Review, Valid: req.Review != ""},
	}

	err = a.rtr.Submit(c, rt)
	if err != nil {
		switch {
		case errors.Is(err, rating.ErrBookingNotFound):
			c.JSON(http.StatusNotFound, gin.H{"code": "BOOKING_NOT_FOUND", "message": "Booking not found"})
		case errors.Is(err, rating.ErrNotCompleted):
			c.JSON(http.StatusConflict, gin.H{"code": "INVALID_STATE", "message": "Only completed bookings can be rated"})
		case errors.Is(err, rating.ErrDuplicate):
			c.JSON(http.StatusConflict, gin.H{"code": "ALREADY_RATED", "message": "You have already rated this booking"})
		case errors.Is(err, rating.ErrNotAuthorized):
			c.JSON(http.StatusForbidden, gin.H{"code": "NOT_AUTHORIZED", "message": "Only parties to the booking can rate it"})
		default:
			logger.ErrorContext(c, "failed to submit rating", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		}
		return
	}

	c.JSON(http.StatusCreated, toRatingResponse(*rt))
}

func (a *API) userRatingsHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)

	userID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_REQUEST", "message": "Invalid user id"})
		return
	}

	ratings, err := a.rtr.GetForUser(c, userID)
	if err != nil {
		logger.ErrorContext(c, "failed to get ratings", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	responses := make([]ratingResponse, 0, len(ratings))
	for _, r := range ratings {
		responses = append(responses, toRatingResponse(r))
	}
	c.JSON(http.StatusOK, responses)
}
