package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/openridehq/rideshare-backend/booking"
	"github.com/openridehq/rideshare-backend/internal/middleware"
	"github.com/openridehq/rideshare-backend/internal/notify"
	"github.com/openridehq/rideshare-backend/ride"
)

type bookingResponse struct {
	ID                 uuid.UUID      `json:"id"`
	CustomerID         uuid.UUID      `json:"customerId"`
	RideID             uuid.UUID      `json:"rideId"`
	NumberOfSeats      int            `json:"numberOfSeats"`
	Status             booking.Status `json:"status"`
	BookingFee         int64          `json:"bookingFee"`
	IsPaid             bool           `json:"isPaid"`
	CancellationReason *string        `json:"cancellationReason,omitempty"`
	CustomerHasRated   bool           `json:"customerHasRated"`
	DriverHasRated     bool           `json:"driverHasRated"`
	CreatedAt          time.Time      `json:"createdAt"`
}

func toBookingResponse(b booking.Booking) bookingResponse {
	resp := bookingResponse{
		ID:               b.ID,
		CustomerID:       b.CustomerID,
		RideID:           b.RideID,
		NumberOfSeats:    b.NumberOfSeats,
		Status:           b.Status,
		BookingFee:       b.BookingFee,
		IsPaid:           b.IsPaid,
		CustomerHasRated: b.CustomerHasRated,
		DriverHasRated:   b.DriverHasRated,
		CreatedAt:        b.CreatedAt,
	}
	if b.CancellationReason.Valid {
		resp.CancellationReason = &b.CancellationReason.String
	}
	return resp
}

type createBookingRequest struct {
	RideID string `json:"rideId" binding:"required"`
	// Seats of zero books the full vehicle.
	Seats int `json:"seats"`
}

func (a *API) createBookingHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)

	u, ok := a.currentUser(c)
	if !ok {
		return
	}

	var req createBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_REQUEST", "message": err.Error()})
		return
	}
	rideID, err := uuid.Parse(req.RideID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_REQUEST", "message": "Invalid rideId"})
		return
	}
	if req.Seats < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_REQUEST", "message": "seats must be positive"})
		return
	}

	// The fee is snapshotted into the booking, so later settings changes
	// never touch existing bookings.
	fee, err := a.str.BookingFee(c)
	if err != nil {
		logger.ErrorContext(c, "failed to read booking fee", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	b := &booking.Booking{
		ID:            uuid.New(),
		CustomerID:    u.ID,
		RideID:        rideID,
		NumberOfSeats: req.Seats,
	}

	err = a.bkr.Create(c, b, fee)
	if err != nil {
		a.bookingError(c, err)
		return
	}

	if rd, rerr := a.rr.GetByID(c, rideID); rerr == nil {
		a.notifyUser(c, rd.DriverID, notify.EventBookingCreated, map[string]string{
			"bookingId": b.ID.String(),
			"rideId":    rideID.String(),
		})
	}

	c.JSON(http.StatusCreated, toBookingResponse(*b))
}

func (a *API) getBookingsHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)

	u, ok := a.currentUser(c)
	if !ok {
		return
	}

	var statusPtr *booking.Status
	if s := c.Query("status"); s != "" {
		status := booking.Status(s)
		statusPtr = &status
	}

	bookings, err := a.bkr.GetByCustomer(c, u.ID, statusPtr)
	if err != nil {
		logger.ErrorContext(c, "failed to get bookings", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	responses := make([]bookingResponse, 0, len(bookings))
	for _, b := range bookings {
		responses = append(responses, toBookingResponse(b))
	}
	c.JSON(http.StatusOK, responses)
}

func (a *API) getBookingHandler(c *gin.Context) {
	u, ok := a.currentUser(c)
	if !ok {
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_REQUEST", "message": "Invalid booking id"})
		return
	}

	b, err := a.bkr.GetByID(c, id)
	if err != nil {
		a.bookingError(c, err)
		return
	}

	// Only parties to the booking may read it.
	if b.CustomerID != u.ID && !u.IsAdmin() {
		rd, err := a.rr.GetByID(c, b.RideID)
		if err != nil || rd.DriverID != u.ID {
			c.JSON(http.StatusForbidden, gin.H{"code": "NOT_AUTHORIZED", "message": "Not authorized to view this booking"})
			return
		}
	}

	c.JSON(http.StatusOK, toBookingResponse(b))
}

func (a *API) rideBookingsHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)

	u, ok := a.currentUser(c)
	if !ok {
		return
	}

	rideID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_REQUEST", "message": "Invalid ride id"})
		return
	}

	rd, err := a.rr.GetByID(c, rideID)
	if err != nil {
		a.rideError(c, err)
		return
	}
	if rd.DriverID != u.ID && !u.IsAdmin() {
		c.JSON(http.StatusForbidden, gin.H{"code": "NOT_AUTHORIZED", "message": "Not authorized to view this ride's bookings"})
		return
	}

	bookings, err := a.bkr.GetByRide(c, rideID)
	if err != nil {
		logger.ErrorContext(c, "failed to get ride bookings", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	responses := make([]bookingResponse, 0, len(bookings))
	for _, b := range bookings {
		responses = append(responses, toBookingResponse(b))
	}
	c.JSON(http.StatusOK, responses)
}

// updateBookingStatusRequest is a tagged request: Status picks the
// transition, Reason is only meaningful (and then required) for
// cancellations.
type updateBookingStatusRequest struct {
	Status string `json:"status" binding:"required"`
	Reason string `json:"reason"`
}

func (a *API) updateBookingStatusHandler(c *gin.Context) {
	u, ok := a.currentUser(c)
	if !ok {
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_REQUEST", "message": "Invalid booking id"})
		return
	}

	var req updateBookingStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_REQUEST", "message": err.Error()})
		return
	}

	var b booking.Booking
	switch booking.Status(req.Status) {
	case booking.StatusConfirmed:
		b, err = a.bkr.Confirm(c, id, u.ID, u.IsAdmin())
		if err == nil {
			a.notifyUser(c, b.CustomerID, notify.EventBookingConfirmed, map[string]string{
				"bookingId": b.ID.String(),
				"rideId":    b.RideID.String(),
			})
			a.chargeBookingFee(c, b)
		}
	case booking.StatusCancelled:
		if req.Reason == "" {
			c.JSON(http.StatusBadRequest, gin.H{"code": "REASON_REQUIRED", "message": "A cancellation reason is required"})
			return
		}
		b, err = a.bkr.Cancel(c, id, u.ID, u.IsAdmin(), req.Reason)
		if err == nil {
			// Tell the party that didn't cancel.
			if rd, rerr := a.rr.GetByID(c, b.RideID); rerr == nil {
				target := b.CustomerID
				if u.ID == b.CustomerID {
					target = rd.DriverID
				}
				a.notifyUser(c, target, notify.EventBookingCancelled, map[string]string{
					"bookingId": b.ID.String(),
					"rideId":    b.RideID.String(),
					"reason":    req.Reason,
				})
			}
		}
	case booking.StatusCompleted:
		b, err = a.bkr.Complete(c, id, u.ID, u.IsAdmin())
		if err == nil {
			a.notifyUser(c, b.CustomerID, notify.EventBookingCompleted, map[string]string{
				"bookingId": b.ID.String(),
				"rideId":    b.RideID.String(),
			})
		}
	default:
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_REQUEST", "message": "status must be confirmed, cancelled, or completed"})
		return
	}

	if err != nil {
		a.bookingError(c, err)
		return
	}

	c.JSON(http.StatusOK, toBookingResponse(b))
}

func (a *API) bookingError(c *gin.Context, err error) {
	logger := middleware.GetLogger(c)

	switch {
	case errors.Is(err, ride.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"code": "RIDE_NOT_FOUND", "message": "Ride not found"})
	case errors.Is(err, ride.ErrNotActive):
		c.JSON(http.StatusConflict, gin.H{"code": "RIDE_NOT_ACTIVE", "message": "Ride is no longer active"})
	case errors.Is(err, ride.ErrInsufficientSeats):
		c.JSON(http.StatusConflict, gin.H{"code": "SEATS_UNAVAILABLE", "message": "Seats are no longer available"})
	case errors.Is(err, booking.ErrDuplicate):
		c.JSON(http.StatusConflict, gin.H{"code": "DUPLICATE_BOOKING", "message": "You already have a booking on this ride"})
	case errors.Is(err, booking.ErrKycRequired):
		c.JSON(http.StatusForbidden, gin.H{"code": "KYC_REQUIRED", "message": "Complete KYC verification to book more rides"})
	case errors.Is(err, booking.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"code": "BOOKING_NOT_FOUND", "message": "Booking not found"})
	case errors.Is(err, booking.ErrNotAuthorized):
		c.JSON(http.StatusForbidden, gin.H{"code": "NOT_AUTHORIZED", "message": "Not authorized to modify this booking"})
	case errors.Is(err, booking.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"code": "INVALID_STATE", "message": "Transition not allowed from the booking's current status"})
	default:
		logger.ErrorContext(c, "booking operation failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
