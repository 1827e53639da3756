package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/openridehq/rideshare-backend/internal/middleware"
	"github.com/openridehq/rideshare-backend/internal/notify"
	"github.com/openridehq/rideshare-backend/ride"
	"github.com/openridehq/rideshare-backend/user"
)

type rideResponse struct {
	ID                   uuid.UUID   `json:"id"`
	DriverID             uuid.UUID   `json:"driverId"`
	FromLocation         string      `json:"fromLocation"`
	ToLocation           string      `json:"toLocation"`
	DepartureDate        time.Time   `json:"departureDate"`
	EstimatedArrivalDate *time.Time  `json:"estimatedArrivalDate,omitempty"`
	RideType             ride.Type   `json:"rideType"`
	Price                int64       `json:"price"`
	TotalSeats           int         `json:"totalSeats"`
	AvailableSeats       int         `json:"availableSeats"`
	VehicleType          string      `json:"vehicleType"`
	VehicleNumber        string      `json:"vehicleNumber"`
	Status               ride.Status `json:"status"`
	CancellationReason   *string     `json:"cancellationReason,omitempty"`
	CreatedAt            time.Time   `json:"createdAt"`
}

func toRideResponse(r ride.Ride) rideResponse {
	resp := rideResponse{
		ID:             r.ID,
		DriverID:       r.DriverID,
		FromLocation:   r.FromLocation,
		ToLocation:     r.ToLocation,
		DepartureDate:  r.DepartureDate,
		RideType:       r.RideType,
		Price:          r.Price,
		TotalSeats:     r.TotalSeats,
		AvailableSeats: r.AvailableSeats,
		VehicleType:    r.VehicleType,
		VehicleNumber:  r.VehicleNumber,
		Status:         r.Status,
		CreatedAt:      r.CreatedAt,
	}
	if r.EstimatedArrival.Valid {
		resp.EstimatedArrivalDate = &r.EstimatedArrival.Time
	}
	if r.CancellationReason.Valid {
		resp.CancellationReason = &r.CancellationReason.String
	}
	return resp
}

type publishRideRequest struct {
	FromLocation         string `json:"fromLocation" binding:"required"`
	ToLocation           string `json:"toLocation" binding:"required"`
	DepartureDate        string `json:"departureDate" binding:"required"`
	EstimatedArrivalDate string `json:"estimatedArrivalDate"`
	RideType             string `json:"rideType" binding:"required"`
	Price                int64  `json:"price" binding:"required"`
	TotalSeats           int    `json:"totalSeats" binding:"required"`
	VehicleType          string `json:"vehicleType" binding:"required"`
	VehicleNumber        string `json:"vehicleNumber" binding:"required"`
}

func (a *API) publishRideHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)

	u, ok := a.currentUser(c)
	if !ok {
		return
	}
	if u.Role != user.RoleDriver && !u.IsAdmin() {
		c.JSON(http.StatusForbidden, gin.H{"code": "NOT_A_DRIVER", "message": "Only drivers can publish rides"})
		return
	}

	var req publishRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_REQUEST", "message": err.Error()})
		return
	}

	departure, err := time.Parse(time.RFC3339, req.DepartureDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_REQUEST", "message": "Invalid departureDate format"})
		return
	}

	rd := &ride.Ride{
		ID:            uuid.New(),
		DriverID:      u.ID,
		FromLocation:  req.FromLocation,
		ToLocation:    req.ToLocation,
		DepartureDate: departure,
		RideType:      ride.Type(req.RideType),
		Price:         req.Price,
		TotalSeats:    req.TotalSeats,
		VehicleType:   req.VehicleType,
		VehicleNumber: req.VehicleNumber,
	}

	if rd.RideType != ride.TypeOneWay && rd.RideType != ride.TypeSharing {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_REQUEST", "message": "rideType must be one-way or sharing"})
		return
	}
	if rd.TotalSeats < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_REQUEST", "message": "totalSeats must be at least 1"})
		return
	}

	if req.EstimatedArrivalDate != "" {
		arrival, err := time.Parse(time.RFC3339, req.EstimatedArrivalDate)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_REQUEST", "message": "Invalid estimatedArrivalDate format"})
			return
		}
		rd.EstimatedArrival.Time = arrival
		rd.EstimatedArrival.Valid = true
	}

	err = a.rr.Publish(c, rd)
	if err != nil {
		if errors.Is(err, ride.ErrDriverNotVerified) {
			c.JSON(http.StatusForbidden, gin.H{"code": "KYC_REQUIRED", "message": "Complete KYC verification before publishing rides"})
			return
		}
		logger.ErrorContext(c, "failed to publish ride", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	a.notifyUser(c, u.ID, notify.EventRidePublished, map[string]string{
		"rideId": rd.ID.String(),
		"from":   rd.FromLocation,
		"to":     rd.ToLocation,
	})

	c.JSON(http.StatusCreated, toRideResponse(*rd))
}

func (a *API) searchRidesHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)

	f := ride.SearchFilter{
		From:     c.Query("from"),
		To:       c.Query("to"),
		RideType: ride.Type(c.Query("rideType")),
	}
	if d := c.Query("date"); d != "" {
		date, err := time.Parse("2006-01-02", d)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_DATE", "message": "date must be YYYY-MM-DD"})
			return
		}
		f.DepartureDate = &date
	}

	rides, err := a.rr.Search(c, f)
	if err != nil {
		logger.ErrorContext(c, "failed to search rides", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	responses := make([]rideResponse, 0, len(rides))
	for _, r := range rides {
		responses = append(responses, toRideResponse(r))
	}
	c.JSON(http.StatusOK, responses)
}

func (a *API) getRideHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_REQUEST", "message": "Invalid ride id"})
		return
	}

	r, err := a.rr.GetByID(c, id)
	if err != nil {
		if errors.Is(err, ride.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"code": "RIDE_NOT_FOUND", "message": "Ride not found"})
			return
		}
		logger.ErrorContext(c, "failed to get ride", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, toRideResponse(r))
}

func (a *API) myRidesHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)

	u, ok := a.currentUser(c)
	if !ok {
		return
	}

	rides, err := a.rr.GetByDriver(c, u.ID)
	if err != nil {
		logger.ErrorContext(c, "failed to get driver rides", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	responses := make([]rideResponse, 0, len(rides))
	for _, r := range rides {
		responses = append(responses, toRideResponse(r))
	}
	c.JSON(http.StatusOK, responses)
}

type cancelRideRequest struct {
	Reason string `json:"reason"`
}

func (a *API) cancelRideHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)

	u, ok := a.currentUser(c)
	if !ok {
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_REQUEST", "message": "Invalid ride id"})
		return
	}

	var req cancelRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_REQUEST", "message": err.Error()})
		return
	}
	if req.Reason == "" {
		c.JSON(http.StatusBadRequest, gin.H{"code": "REASON_REQUIRED", "message": "A cancellation reason is required"})
		return
	}

	r, cascade, err := a.rr.Cancel(c, id, u.ID, u.IsAdmin(), req.Reason)
	if err != nil {
		a.rideError(c, err)
		return
	}

	for _, b := range cascade.Cancelled {
		a.notifyUser(c, b.CustomerID, notify.EventBookingCancelled, map[string]string{
			"bookingId": b.ID.String(),
			"rideId":    r.ID.String(),
			"reason":    req.Reason,
		})
	}
	a.notifyUser(c, r.DriverID, notify.EventRideCancelled, map[string]string{
		"rideId": r.ID.String(),
		"reason": req.Reason,
	})

	logger.InfoContext(c, "ride cancelled",
		"ride_id", r.ID, "cancelled_bookings", len(cascade.Cancelled))
	c.JSON(http.StatusOK, toRideResponse(r))
}

func (a *API) completeRideHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)

	u, ok := a.currentUser(c)
	if !ok {
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_REQUEST", "message": "Invalid ride id"})
		return
	}

	r, cascade, err := a.rr.Complete(c, id, u.ID, u.IsAdmin())
	if err != nil {
		a.rideError(c, err)
		return
	}

	for _, b := range cascade.Completed {
		a.notifyUser(c, b.CustomerID, notify.EventBookingCompleted, map[string]string{
			"bookingId": b.ID.String(),
			"rideId":    r.ID.String(),
		})
	}
	for _, b := range cascade.Cancelled {
		a.notifyUser(c, b.CustomerID, notify.EventBookingCancelled, map[string]string{
			"bookingId": b.ID.String(),
			"rideId":    r.ID.String(),
			"reason":    ride.CompletedBeforeConfirmationReason,
		})
	}
	a.notifyUser(c, r.DriverID, notify.EventRideCompleted, map[string]string{
		"rideId": r.ID.String(),
	})

	logger.InfoContext(c, "ride completed",
		"ride_id", r.ID, "completed_bookings", len(cascade.Completed))
	c.JSON(http.StatusOK, toRideResponse(r))
}

func (a *API) rideError(c *gin.Context, err error) {
	logger := middleware.GetLogger(c)

	switch {
	case errors.Is(err, ride.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"code": "RIDE_NOT_FOUND", "message": "Ride not found"})
	case errors.Is(err, ride.ErrNotAuthorized):
		c.JSON(http.StatusForbidden, gin.H{"code": "NOT_AUTHORIZED", "message": "Not authorized to modify this ride"})
	case errors.Is(err, ride.ErrNotActive):
		c.JSON(http.StatusConflict, gin.H{"code": "INVALID_STATE", "message": "Ride is no longer active"})
	default:
		logger.ErrorContext(c, "ride operation failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
