package acceptance

import (
	"net/http"
	"sync"
	"testing"
)

// completedBooking drives a booking through create, confirm, and ride
// completion so it is ratable.
func completedBooking(t *testing.T, ts *TestServer, driver, customer TestUser) (rideID, bookingID string) {
	t.Helper()

	rid := ts.CreateTestRide(t, driver.ID, 4)

	w := ts.POST("/bookings", map[string]interface{}{"rideId": rid.String()}, customer.AuthID)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var b bookingResp
	decode(t, w, &b)

	w = ts.PUT("/bookings/"+b.ID+"/status", map[string]interface{}{"status": "confirmed"}, driver.AuthID)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	w = ts.POST("/rides/"+rid.String()+"/mark-completed", nil, driver.AuthID)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	return rid.String(), b.ID
}

func TestRatingGate(t *testing.T) {
	ts := NewTestServer(t)

	driver := ts.CreateTestUser(t, "driver", true)
	alice := ts.CreateTestUser(t, "customer", true)
	stranger := ts.CreateTestUser(t, "customer", true)
	_, bookingID := completedBooking(t, ts, driver, alice)

	// The customer rates the driver.
	w := ts.POST("/ratings", map[string]interface{}{"bookingId": bookingID, "rating": 5, "review": "great ride"}, alice.AuthID)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var rt struct {
		ToUserID string `json:"toUserId"`
	}
	decode(t, w, &rt)
	if rt.ToUserID != driver.ID.String() {
		t.Errorf("expected rating addressed to driver, got %s", rt.ToUserID)
	}

	var avg float64
	if err := ts.DB.Get(&avg, `SELECT average_rating FROM users WHERE id = $1`, driver.ID); err != nil {
		t.Fatalf("failed to read average rating: %v", err)
	}
	if avg != 5 {
		t.Errorf("expected average rating 5, got %v", avg)
	}

	var hasRated bool
	if err := ts.DB.Get(&hasRated, `SELECT customer_has_rated FROM bookings WHERE id = $1`, bookingID); err != nil {
		t.Fatalf("failed to read booking flag: %v", err)
	}
	if !hasRated {
		t.Error("expected customer_has_rated to be set")
	}

	// A second rating from the same party is rejected.
	w = ts.POST("/ratings", map[string]interface{}{"bookingId": bookingID, "rating": 1}, alice.AuthID)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", w.Code, w.Body.String())
	}
	if code := errorCode(t, w); code != "ALREADY_RATED" {
		t.Errorf("expected ALREADY_RATED, got %q", code)
	}

	// The other direction is its own slot.
	w = ts.POST("/ratings", map[string]interface{}{"bookingId": bookingID, "rating": 4}, driver.AuthID)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201 for driver rating, got %d: %s", w.Code, w.Body.String())
	}

	// Outsiders cannot rate at all.
	w = ts.POST("/ratings", map[string]interface{}{"bookingId": bookingID, "rating": 3}, stranger.AuthID)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", w.Code, w.Body.String())
	}
}

func TestRatingRequiresCompletedBooking(t *testing.T) {
	ts := NewTestServer(t)

	driver := ts.CreateTestUser(t, "driver", true)
	alice := ts.CreateTestUser(t, "customer", true)
	rideID := ts.CreateTestRide(t, driver.ID, 4)

	w := ts.POST("/bookings", map[string]interface{}{"rideId": rideID.String()}, alice.AuthID)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var b bookingResp
	decode(t, w, &b)

	w = ts.POST("/ratings", map[string]interface{}{"bookingId": b.ID, "rating": 5}, alice.AuthID)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 for pending booking, got %d: %s", w.Code, w.Body.String())
	}
	if code := errorCode(t, w); code != "INVALID_STATE" {
		t.Errorf("expected INVALID_STATE, got %q", code)
	}
}

func TestRatingAverageOverMultipleBookings(t *testing.T) {
	ts := NewTestServer(t)

	driver := ts.CreateTestUser(t, "driver", true)
	alice := ts.CreateTestUser(t, "customer", true)
	bob := ts.CreateTestUser(t, "customer", true)

	_, firstBooking := completedBooking(t, ts, driver, alice)
	_, secondBooking := completedBooking(t, ts, driver, bob)

	w := ts.POST("/ratings", map[string]interface{}{"bookingId": firstBooking, "rating": 5}, alice.AuthID)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	w = ts.POST("/ratings", map[string]interface{}{"bookingId": secondBooking, "rating": 2}, bob.AuthID)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var avg float64
	if err := ts.DB.Get(&avg, `SELECT average_rating FROM users WHERE id = $1`, driver.ID); err != nil {
		t.Fatalf("failed to read average rating: %v", err)
	}
	if avg != 3.5 {
		t.Errorf("expected average 3.5, got %v", avg)
	}

	// And the list endpoint sees both.
	w = ts.GET("/users/"+driver.ID.String()+"/ratings", alice.AuthID)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var ratings []struct {
		Rating int `json:"rating"`
	}
	decode(t, w, &ratings)
	if len(ratings) != 2 {
		t.Errorf("expected 2 ratings, got %d", len(ratings))
	}
}

func TestConcurrentRatingsRecomputeAverage(t *testing.T) {
	ts := NewTestServer(t)

	driver := ts.CreateTestUser(t, "driver", true)
	alice := ts.CreateTestUser(t, "customer", true)
	bob := ts.CreateTestUser(t, "customer", true)

	_, firstBooking := completedBooking(t, ts, driver, alice)
	_, secondBooking := completedBooking(t, ts, driver, bob)

	// Two customers rate the same driver at the same moment. Whichever
	// commits last must fold the other's rating into the average.
	var wg sync.WaitGroup
	codes := make([]int, 2)
	for i, sub := range []struct {
		bookingID string
		rating    int
		authID    string
	}{
		{firstBooking, 5, alice.AuthID},
		{secondBooking, 1, bob.AuthID},
	} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w := ts.POST("/ratings", map[string]interface{}{"bookingId": sub.bookingID, "rating": sub.rating}, sub.authID)
			codes[i] = w.Code
		}()
	}
	wg.Wait()

	for _, code := range codes {
		if code != http.StatusCreated {
			t.Fatalf("expected both submissions to succeed, got %v", codes)
		}
	}

	var avg float64
	if err := ts.DB.Get(&avg, `SELECT average_rating FROM users WHERE id = $1`, driver.ID); err != nil {
		t.Fatalf("failed to read average rating: %v", err)
	}
	if avg != 3 {
		t.Errorf("expected average 3 over both ratings, got %v", avg)
	}
}
