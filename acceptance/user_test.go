package acceptance

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/openridehq/rideshare-backend/internal/auth0"
)

func TestFirstLoginProvisionsUser(t *testing.T) {
	ts := NewTestServer(t)

	authID := "auth0|first-login"
	ts.Auth0.AddUser("first-login-token", &auth0.UserInfo{
		Sub:   authID,
		Email: "newcomer@example.com",
		Name:  "New Comer",
	})

	// An unseen subject hitting a protected endpoint gets a row created
	// from their userinfo profile.
	req := httptest.NewRequest(http.MethodGet, "/users/me", nil)
	req.Header.Set("X-User-ID", authID)
	req.Header.Set("Authorization", "Bearer first-login-token")
	w := httptest.NewRecorder()
	ts.Router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var me struct {
		Role  string  `json:"role"`
		Email *string `json:"email"`
		Name  *string `json:"name"`
	}
	decode(t, w, &me)
	if me.Role != "customer" {
		t.Errorf("expected provisioned role customer, got %q", me.Role)
	}
	if me.Email == nil || *me.Email != "newcomer@example.com" {
		t.Errorf("expected profile email, got %v", me.Email)
	}
	if me.Name == nil || *me.Name != "New Comer" {
		t.Errorf("expected profile name, got %v", me.Name)
	}

	var count int
	if err := ts.DB.Get(&count, `SELECT count(*) FROM users WHERE auth_id = $1`, authID); err != nil {
		t.Fatalf("failed to count users: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly one provisioned row, got %d", count)
	}

	// A second request reuses the row instead of provisioning again.
	w = ts.GET("/users/me", authID)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if err := ts.DB.Get(&count, `SELECT count(*) FROM users WHERE auth_id = $1`, authID); err != nil {
		t.Fatalf("failed to count users: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected the row to be reused, got %d", count)
	}
}

func TestFirstLoginWithoutProfileStillProvisions(t *testing.T) {
	ts := NewTestServer(t)

	// No bearer token, so no userinfo lookup: the row is created with the
	// auth subject alone.
	w := ts.GET("/users/me", "auth0|no-profile")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var me struct {
		Email *string `json:"email"`
	}
	decode(t, w, &me)
	if me.Email != nil {
		t.Errorf("expected no email without a profile, got %q", *me.Email)
	}
}
