package acceptance

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/openridehq/rideshare-backend/api"
	"github.com/openridehq/rideshare-backend/booking"
	"github.com/openridehq/rideshare-backend/internal/auth0"
	"github.com/openridehq/rideshare-backend/internal/notify"
	"github.com/openridehq/rideshare-backend/internal/o11y"
	"github.com/openridehq/rideshare-backend/internal/settings"
	"github.com/openridehq/rideshare-backend/rating"
	"github.com/openridehq/rideshare-backend/ride"
	"github.com/openridehq/rideshare-backend/user"
)

type TestServer struct {
	DB       *sqlx.DB
	Router   *gin.Engine
	Notifier *notify.Fake
	Auth0    *auth0.FakeClient

	UserRepo    *user.Repository
	RideRepo    *ride.Repository
	BookingRepo *booking.Repository
	RatingRepo  *rating.Repository
	Settings    *settings.Repository
}

// NewTestServer wires the real API with fake auth (X-User-ID header) and a
// fake notifier against the database in DATABASE_URL.
func NewTestServer(t *testing.T) *TestServer {
	t.Helper()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set, skipping acceptance tests")
	}

	gin.SetMode(gin.TestMode)

	db, err := sqlx.Connect("pgx", dbURL)
	if err != nil {
		t.Fatalf("failed to connect to database: %v", err)
	}

	cleanupTestData(t, db)

	ur := user.NewRepository(db)
	rr := ride.NewRepository(db)
	bkr := booking.NewRepository(db)
	rtr := rating.NewRepository(db)
	str := settings.NewRepository(db)

	fake := notify.NewFake()
	an := auth0.NewFakeClient()

	obs := &o11y.Observability{
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Registry: prometheus.NewRegistry(),
	}

	a, err := api.New(ur, rr, bkr, rtr, str, an, fake, obs, api.Config{})
	if err != nil {
		t.Fatalf("failed to build API: %v", err)
	}

	ts := &TestServer{
		DB:          db,
		Router:      a.Router(),
		Notifier:    fake,
		Auth0:       an,
		UserRepo:    ur,
		RideRepo:    rr,
		BookingRepo: bkr,
		RatingRepo:  rtr,
		Settings:    str,
	}
	t.Cleanup(ts.Close)
	return ts
}

func (ts *TestServer) Close() {
	ts.DB.Close()
}

func cleanupTestData(t *testing.T, db *sqlx.DB) {
	t.Helper()

	// Delete in order of dependencies
	for _, table := range []string{"ratings", "bookings", "rides", "users", "settings"} {
		if _, err := db.Exec("DELETE FROM " + table); err != nil {
			t.Logf("warning: failed to clean %s: %v", table, err)
		}
	}
}

// Helper methods for making requests

func (ts *TestServer) GET(path string, authID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authID != "" {
		req.Header.Set("X-User-ID", authID)
	}
	w := httptest.NewRecorder()
	ts.Router.ServeHTTP(w, req)
	return w
}

func (ts *TestServer) do(method, path string, body interface{}, authID string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if authID != "" {
		req.Header.Set("X-User-ID", authID)
	}
	w := httptest.NewRecorder()
	ts.Router.ServeHTTP(w, req)
	return w
}

func (ts *TestServer) POST(path string, body interface{}, authID string) *httptest.ResponseRecorder {
	return ts.do(http.MethodPost, path, body, authID)
}

func (ts *TestServer) PUT(path string, body interface{}, authID string) *httptest.ResponseRecorder {
	return ts.do(http.MethodPut, path, body, authID)
}

func (ts *TestServer) PATCH(path string, body interface{}, authID string) *httptest.ResponseRecorder {
	return ts.do(http.MethodPatch, path, body, authID)
}

func decode(t *testing.T, w *httptest.ResponseRecorder, into interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), into); err != nil {
		t.Fatalf("failed to decode response %q: %v", w.Body.String(), err)
	}
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Code string `json:"code"`
	}
	decode(t, w, &resp)
	return resp.Code
}

// TestUser is a fixture user with the auth ID the fake auth middleware
// expects in the X-User-ID header.
type TestUser struct {
	ID     uuid.UUID
	AuthID string
}

func (ts *TestServer) CreateTestUser(t *testing.T, role string, kycVerified bool) TestUser {
	t.Helper()
	u := TestUser{AuthID: "auth0|" + uuid.NewString()}
	err := ts.DB.Get(&u.ID, `
		INSERT INTO users (id, auth_id, role, email, is_kyc_verified)
		VALUES (gen_random_uuid(), $1, $2, $3, $4)
		RETURNING id
	`, u.AuthID, role, u.AuthID+"@example.com", kycVerified)
	if err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return u
}

// CreateTestRide inserts an active ride directly, departing a day from now
// unless a departure override is given.
func (ts *TestServer) CreateTestRide(t *testing.T, driverID uuid.UUID, seats int, departure ...time.Time) uuid.UUID {
	t.Helper()
	dep := time.Now().Add(24 * time.Hour)
	if len(departure) > 0 {
		dep = departure[0]
	}
	var id uuid.UUID
	err := ts.DB.Get(&id, `
		INSERT INTO rides (id, driver_id, from_location, to_location, departure_date,
		                   ride_type, price, total_seats, available_seats, vehicle_type, vehicle_number)
		VALUES (gen_random_uuid(), $1, 'Galway', 'Dublin', $2, 'one-way', 4500, $3, $3, 'sedan', '12-G-3456')
		RETURNING id
	`, driverID, dep, seats)
	if err != nil {
		t.Fatalf("failed to create test ride: %v", err)
	}
	return id
}

// AssertSeatInvariant checks that available_seats equals total_seats minus
// the seats held by non-cancelled bookings.
func (ts *TestServer) AssertSeatInvariant(t *testing.T, rideID uuid.UUID) {
	t.Helper()
	var row struct {
		Available int `db:"available_seats"`
		Expected  int `db:"expected"`
	}
	err := ts.DB.Get(&row, `
		SELECT available_seats,
		       total_seats - COALESCE((SELECT sum(number_of_seats) FROM bookings
		                               WHERE ride_id = rides.id AND status <> 'cancelled'), 0) AS expected
		FROM rides WHERE id = $1
	`, rideID)
	if err != nil {
		t.Fatalf("failed to check seat invariant: %v", err)
	}
	if row.Available != row.Expected {
		t.Fatalf("seat invariant violated: available_seats = %d, want %d", row.Available, row.Expected)
	}
}

func (ts *TestServer) bookingStatus(t *testing.T, id string) string {
	t.Helper()
	var status string
	if err := ts.DB.Get(&status, `SELECT status FROM bookings WHERE id = $1`, id); err != nil {
		t.Fatalf("failed to read booking status: %v", err)
	}
	return status
}

func (ts *TestServer) rideRow(t *testing.T, id uuid.UUID) ride.Ride {
	t.Helper()
	var r ride.Ride
	if err := ts.DB.Get(&r, `SELECT * FROM rides WHERE id = $1`, id); err != nil {
		t.Fatalf("failed to read ride: %v", err)
	}
	return r
}
