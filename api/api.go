package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/openridehq/rideshare-backend/booking"
	"github.com/openridehq/rideshare-backend/internal/auth0"
	"github.com/openridehq/rideshare-backend/internal/middleware"
	"github.com/openridehq/rideshare-backend/internal/notify"
	"github.com/openridehq/rideshare-backend/internal/o11y"
	"github.com/openridehq/rideshare-backend/internal/settings"
	"github.com/openridehq/rideshare-backend/rating"
	"github.com/openridehq/rideshare-backend/ride"
	"github.com/openridehq/rideshare-backend/user"
)

// Config holds the deployment-specific knobs the API needs.
type Config struct {
	// Auth0Domain empty means the fake X-User-ID auth is used instead of
	// JWT validation (local dev and the acceptance suite).
	Auth0Domain string
	Audience    string

	MetricsUsername string
	MetricsPassword string
}

type API struct {
	r   *gin.Engine
	ur  *user.Repository
	rr  *ride.Repository
	bkr *booking.Repository
	rtr *rating.Repository
	str *settings.Repository
	an  auth0.Client
	n   notify.Notifier
	obs *o11y.Observability
}

func New(
	ur *user.Repository,
	rr *ride.Repository,
	bkr *booking.Repository,
	rtr *rating.Repository,
	str *settings.Repository,
	an auth0.Client,
	n notify.Notifier,
	obs *o11y.Observability,
	cfg Config,
) (*API, error) {
	a := &API{
		r:   gin.New(),
		ur:  ur,
		rr:  rr,
		bkr: bkr,
		rtr: rtr,
		str: str,
		an:  an,
		n:   n,
		obs: obs,
	}

	a.r.Use(gin.Recovery())
	a.r.Use(middleware.Tracing())
	a.r.Use(middleware.Logging(obs.Logger))
	a.r.Use(middleware.Metrics(obs.Registry))

	a.r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if cfg.MetricsUsername != "" {
		mh := promhttp.HandlerFor(obs.Registry, promhttp.HandlerOpts{})
		guarded := a.r.Group("/", gin.BasicAuth(gin.Accounts{cfg.MetricsUsername: cfg.MetricsPassword}))
		guarded.GET("/metrics", gin.WrapH(mh))
	}

	a.r.GET("/rides/search", a.searchRidesHandler)
	a.r.GET("/rides/:id", a.getRideHandler)

	var auth gin.HandlerFunc
	if cfg.Auth0Domain != "" {
		var err error
		auth, err = middleware.JWT(cfg.Auth0Domain, cfg.Audience)
		if err != nil {
			return nil, err
		}
	} else {
		auth = middleware.FakeAuth()
	}

	protected := a.r.Group("/")
	protected.Use(auth)
	{
		protected.POST("/rides", a.publishRideHandler)
		protected.GET("/rides/mine", a.myRidesHandler)
		protected.PATCH("/rides/:id/cancel", a.cancelRideHandler)
		protected.POST("/rides/:id/mark-completed", a.completeRideHandler)
		protected.GET("/rides/:id/bookings", a.rideBookingsHandler)

		protected.POST("/bookings", a.createBookingHandler)
		protected.GET("/bookings", a.getBookingsHandler)
		protected.GET("/bookings/:id", a.getBookingHandler)
		protected.PUT("/bookings/:id/status", a.updateBookingStatusHandler)

		protected.POST("/ratings", a.submitRatingHandler)
		protected.GET("/users/:id/ratings", a.userRatingsHandler)

		protected.GET("/users/me", a.meHandler)
		protected.PATCH("/users/:id/kyc", a.reviewKycHandler)

		protected.POST("/customer-session", a.createCustomerSession)
		protected.POST("/setup-intent", a.createSetupIntent)
	}

	return a, nil
}

func (a *API) Router() *gin.Engine {
	return a.r
}

// currentUser resolves the authenticated subject to a local user row,
// provisioning one on first sight. Writes the error response itself when
// it returns false.
func (a *API) currentUser(c *gin.Context) (*user.User, bool) {
	logger := middleware.GetLogger(c)

	authID, ok := middleware.GetAuthID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"code": "UNAUTHORIZED", "message": "Authentication required"})
		return nil, false
	}

	u, err := a.ur.GetByAuthID(c, authID)
	if errors.Is(err, user.ErrNotFound) {
		var email, name string
		if a.an != nil {
			if token := bearerToken(c); token != "" {
				if info, ierr := a.an.GetUserInfo(c, token); ierr == nil {
					email, name = info.Email, info.Name
				}
			}
		}
		u, err = a.ur.Create(c, authID, email, name)
	}
	if err != nil {
		logger.ErrorContext(c, "failed to resolve user", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return nil, false
	}

	return u, true
}

func bearerToken(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}

// notifyUser dispatches a notification to a user in the background.
// Delivery failures are logged and never affect the caller.
func (a *API) notifyUser(c *gin.Context, userID uuid.UUID, t notify.EventType, data map[string]string) {
	logger := middleware.GetLogger(c)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		u, err := a.ur.GetByID(ctx, userID)
		if err != nil {
			logger.Error("failed to resolve notification recipient", "error", err, "user_id", userID)
			return
		}

		e := notify.Event{Type: t, Recipient: u.Email.String, Data: data}
		if err := a.n.Send(ctx, e); err != nil {
			logger.Error("failed to send notification", "error", err, "type", string(t))
		}
	}()
}
