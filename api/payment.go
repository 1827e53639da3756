package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v84"
	stripecustomer "github.com/stripe/stripe-go/v84/customer"
	"github.com/stripe/stripe-go/v84/customersession"
	"github.com/stripe/stripe-go/v84/invoice"
	"github.com/stripe/stripe-go/v84/setupintent"

	"github.com/openridehq/rideshare-backend/booking"
	"github.com/openridehq/rideshare-backend/internal/middleware"
	"github.com/openridehq/rideshare-backend/user"
)

// ensureStripeCustomer creates the Stripe customer for a user on first use
// and stores its ID.
func (a *API) ensureStripeCustomer(c *gin.Context, u *user.User) (string, error) {
	if u.StripeID.Valid {
		return u.StripeID.String, nil
	}

	stripeCustomer, err := stripecustomer.New(&stripe.CustomerParams{
		Email: stripe.String(u.Email.String),
		Metadata: map[string]string{
			"auth_id": u.AuthID,
			"id":      u.ID.String(),
		},
	})
	if err != nil {
		return "", err
	}

	if err := a.ur.AddStripeID(c, u.AuthID, stripeCustomer.ID); err != nil {
		return "", err
	}

	u.StripeID.String = stripeCustomer.ID
	u.StripeID.Valid = true
	return stripeCustomer.ID, nil
}

func (a *API) createCustomerSession(c *gin.Context) {
	logger := middleware.GetLogger(c)

	u, ok := a.currentUser(c)
	if !ok {
		return
	}

	stripeID, err := a.ensureStripeCustomer(c, u)
	if err != nil {
		logger.ErrorContext(c, "failed to create stripe customer", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	csParams := &stripe.CustomerSessionParams{
		Customer: stripe.String(stripeID),
	}
	csParams.AddExtra("components[customer_sheet][enabled]", "true")
	csParams.AddExtra("components[customer_sheet][features][payment_method_remove]", "enabled")
	cs, err := customersession.New(csParams)
	if err != nil {
		logger.ErrorContext(c, "failed to create customer session", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, struct {
		CustomerID   string `json:"customerId"`
		ClientSecret string `json:"clientSecret"`
	}{
		CustomerID:   stripeID,
		ClientSecret: cs.ClientSecret,
	})
}

func (a *API) createSetupIntent(c *gin.Context) {
	logger := middleware.GetLogger(c)

	u, ok := a.currentUser(c)
	if !ok {
		return
	}

	stripeID, err := a.ensureStripeCustomer(c, u)
	if err != nil {
		logger.ErrorContext(c, "failed to create stripe customer", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	siparams := &stripe.SetupIntentParams{
		Customer: stripe.String(stripeID),
		AutomaticPaymentMethods: &stripe.SetupIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	si, err := setupintent.New(siparams)
	if err != nil {
		logger.ErrorContext(c, "failed to create setup intent", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, struct {
		SetupIntent string `json:"setupIntent"`
	}{
		SetupIntent: si.ClientSecret,
	})
}

// chargeBookingFee invoices the booking fee after a confirmation. Runs in
// the background: payment failures are logged, never bubbled up into the
// confirmation that triggered them.
func (a *API) chargeBookingFee(c *gin.Context, b booking.Booking) {
	logger := middleware.GetLogger(c)

	if b.BookingFee <= 0 || b.IsPaid {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		cust, err := a.ur.GetByID(ctx, b.CustomerID)
		if err != nil {
			logger.Error("failed to resolve booking customer", "error", err)
			return
		}
		if !cust.StripeID.Valid {
			logger.Info("customer has no stripe ID, skipping booking fee", "booking_id", b.ID)
			return
		}

		inParams := &stripe.InvoiceParams{
			Customer: stripe.String(cust.StripeID.String),
		}
		in, err := invoice.New(inParams)
		if err != nil {
			logger.Error("failed to create invoice", "error", err)
			return
		}

		ilParams := &stripe.InvoiceAddLinesParams{
			Lines: []*stripe.InvoiceAddLinesLineParams{
				{
					Amount:      stripe.Int64(b.BookingFee),
					Description: stripe.String("Booking fee"),
				},
			},
		}
		_, err = invoice.AddLines(in.ID, ilParams)
		if err != nil {
			logger.Error("failed to add lines to invoice", "error", err)
			return
		}

		_, err = invoice.FinalizeInvoice(in.ID, &stripe.InvoiceFinalizeInvoiceParams{})
		if err != nil {
			logger.Error("failed to finalize invoice", "error", err)
			return
		}
		_, err = invoice.Pay(in.ID, nil)
		if err != nil {
			logger.Error("failed to pay invoice", "error", err)
			return
		}

		if err := a.bkr.MarkPaid(ctx, b.ID); err != nil {
			logger.Error("failed to mark booking paid", "error", err)
		}
	}()
}
