package acceptance

import (
	"net/http"
	"testing"
	"time"

	"github.com/openridehq/rideshare-backend/ride"
)

func TestSweepCancelsExpiredRidesWithoutBookings(t *testing.T) {
	ts := NewTestServer(t)

	driver := ts.CreateTestUser(t, "driver", true)
	expired := ts.CreateTestRide(t, driver.ID, 4, time.Now().Add(-2*time.Hour))
	upcoming := ts.CreateTestRide(t, driver.ID, 4)

	res, err := ts.RideRepo.SweepExpired(t.Context(), time.Now())
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if res.CancelledRides != 1 || res.CompletedRides != 0 {
		t.Fatalf("expected 1 cancelled / 0 completed, got %d / %d", res.CancelledRides, res.CompletedRides)
	}

	r := ts.rideRow(t, expired)
	if r.Status != ride.StatusCancelled {
		t.Errorf("expected expired ride cancelled, got %q", r.Status)
	}
	if !r.CancellationReason.Valid || r.CancellationReason.String != ride.ExpiredNoBookingsReason {
		t.Errorf("expected auto-generated reason, got %v", r.CancellationReason)
	}
	if got := ts.rideRow(t, upcoming).Status; got != ride.StatusActive {
		t.Errorf("expected upcoming ride untouched, got %q", got)
	}
}

func TestSweepCompletesExpiredRidesWithConfirmedBookings(t *testing.T) {
	ts := NewTestServer(t)

	driver := ts.CreateTestUser(t, "driver", true)
	alice := ts.CreateTestUser(t, "customer", true)
	bob := ts.CreateTestUser(t, "customer", true)
	rideID := ts.CreateTestRide(t, driver.ID, 4)

	w := ts.POST("/bookings", map[string]interface{}{"rideId": rideID.String(), "seats": 2}, alice.AuthID)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var confirmed bookingResp
	decode(t, w, &confirmed)
	w = ts.PUT("/bookings/"+confirmed.ID+"/status", map[string]interface{}{"status": "confirmed"}, driver.AuthID)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = ts.POST("/bookings", map[string]interface{}{"rideId": rideID.String(), "seats": 1}, bob.AuthID)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var pending bookingResp
	decode(t, w, &pending)

	// Push the departure into the past.
	if _, err := ts.DB.Exec(`UPDATE rides SET departure_date = now() - interval '1 hour' WHERE id = $1`, rideID); err != nil {
		t.Fatalf("failed to backdate ride: %v", err)
	}

	res, err := ts.RideRepo.SweepExpired(t.Context(), time.Now())
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if res.CompletedRides != 1 {
		t.Fatalf("expected 1 completed ride, got %d", res.CompletedRides)
	}

	if got := ts.rideRow(t, rideID).Status; got != ride.StatusCompleted {
		t.Errorf("expected ride completed, got %q", got)
	}
	if got := ts.bookingStatus(t, confirmed.ID); got != "completed" {
		t.Errorf("expected confirmed booking completed, got %q", got)
	}
	if got := ts.bookingStatus(t, pending.ID); got != "cancelled" {
		t.Errorf("expected pending booking cancelled, got %q", got)
	}
	ts.AssertSeatInvariant(t, rideID)
}

func TestSweepIsIdempotent(t *testing.T) {
	ts := NewTestServer(t)

	driver := ts.CreateTestUser(t, "driver", true)
	ts.CreateTestRide(t, driver.ID, 4, time.Now().Add(-time.Hour))

	res, err := ts.RideRepo.SweepExpired(t.Context(), time.Now())
	if err != nil {
		t.Fatalf("first sweep failed: %v", err)
	}
	if res.CancelledRides+res.CompletedRides != 1 {
		t.Fatalf("expected the first sweep to resolve one ride, got %+v", res)
	}

	res, err = ts.RideRepo.SweepExpired(t.Context(), time.Now())
	if err != nil {
		t.Fatalf("second sweep failed: %v", err)
	}
	if res.CancelledRides != 0 || res.CompletedRides != 0 {
		t.Fatalf("expected the second sweep to be a no-op, got %+v", res)
	}
}
