package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"bugema/portal/internal/auth"
	"bugema/portal/internal/config"
)

func newBareServer() *Server {
	cfg := config.Config{
		SessionSecret:   "unit-test-secret",
		SessionIssuer:   "bugema-portal-test",
		SessionTTL:      time.Hour,
		VerificationTTL: 10 * time.Minute,
		AdminAccessCode: "letmein",
	}
	return NewServer(cfg, nil, nil, nil)
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func sessionCookie(t *testing.T, s *Server, claims auth.SessionClaims) *http.Cookie {
	t.Helper()
	token, err := auth.NewSessionToken(s.cfg.SessionSecret, s.cfg.SessionIssuer, s.cfg.SessionTTL, claims)
	if err != nil {
		t.Fatalf("token error: %v", err)
	}
	return &http.Cookie{Name: sessionCookieName(claims.Role), Value: token}
}

func TestPortalGateRedirectsWithoutSession(t *testing.T) {
	s := newBareServer()
	handler := s.portalGate(auth.RoleHOD, "/hod/select-department")(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/hod/dashboard", nil))

	if rec.Code != http.StatusTemporaryRedirect {
		t.Fatalf("expected 307, got %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/hod/select-department" {
		t.Fatalf("unexpected redirect target %q", loc)
	}
}

func TestPortalGatePassesWithValidSession(t *testing.T) {
	s := newBareServer()
	handler := s.portalGate(auth.RoleAdmin, "/admin/login")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := claimsFromContext(r.Context())
		if claims == nil || claims.Email != "admin@bugema.ac.ug" {
			t.Fatalf("expected claims in context, got %+v", claims)
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/admin/dashboard", nil)
	req.AddCookie(sessionCookie(t, s, auth.SessionClaims{Email: "admin@bugema.ac.ug", Role: auth.RoleAdmin}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestPortalGateRejectsWrongRoleCookie(t *testing.T) {
	s := newBareServer()
	handler := s.portalGate(auth.RoleAdmin, "/admin/login")(okHandler())

	// A valid student session must not open the admin portal, even when
	// presented under the admin cookie name.
	token, err := auth.NewSessionToken(s.cfg.SessionSecret, s.cfg.SessionIssuer, s.cfg.SessionTTL, auth.SessionClaims{
		Email: "student@bugema.ac.ug",
		Role:  auth.RoleStudent,
	})
	if err != nil {
		t.Fatalf("token error: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/admin/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName(auth.RoleAdmin), Value: token})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTemporaryRedirect {
		t.Fatalf("expected 307, got %d", rec.Code)
	}
}

func TestPortalGateRejectsTamperedCookie(t *testing.T) {
	s := newBareServer()
	handler := s.portalGate(auth.RoleAdmin, "/admin/login")(okHandler())

	cookie := sessionCookie(t, s, auth.SessionClaims{Email: "admin@bugema.ac.ug", Role: auth.RoleAdmin})
	cookie.Value += "x"
	req := httptest.NewRequest(http.MethodGet, "/admin/dashboard", nil)
	req.AddCookie(cookie)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTemporaryRedirect {
		t.Fatalf("expected 307, got %d", rec.Code)
	}
}

func TestRequireSessionRejectsWithoutCookie(t *testing.T) {
	s := newBareServer()
	handler := s.requireSession(auth.RoleHOD)(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/hod/courses", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "unauthorized") {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}
}

func TestRequireSessionPassesClaims(t *testing.T) {
	s := newBareServer()
	handler := s.requireSession(auth.RoleHOD)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := claimsFromContext(r.Context())
		if claims == nil || claims.DepartmentID != "dept-42" {
			t.Fatalf("expected department claim, got %+v", claims)
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/hod/courses", nil)
	req.AddCookie(sessionCookie(t, s, auth.SessionClaims{
		Email:        "hod@bugema.ac.ug",
		Role:         auth.RoleHOD,
		DepartmentID: "dept-42",
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestEntryPagesStayOpen(t *testing.T) {
	s := newBareServer()
	router := s.Router()

	for _, path := range []string{
		"/admin/login",
		"/hod/login",
		"/hod/select-department",
		"/student/auth",
		"/student/select-department",
		"/health",
	} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected %s to be open, got %d", path, rec.Code)
		}
	}
}

func TestPortalPagesRedirectPerRole(t *testing.T) {
	s := newBareServer()
	router := s.Router()

	cases := map[string]string{
		"/admin/dashboard":   "/admin/login",
		"/admin/departments": "/admin/login",
		"/hod/dashboard":     "/hod/select-department",
		"/hod/courses":       "/hod/select-department",
		"/student/dashboard": "/student/select-department",
		"/student/courses":   "/student/select-department",
		"/student/search":    "/student/select-department",
	}
	for path, target := range cases {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusTemporaryRedirect {
			t.Fatalf("expected %s to redirect, got %d", path, rec.Code)
		}
		if loc := rec.Header().Get("Location"); loc != target {
			t.Fatalf("expected %s to redirect to %s, got %q", path, target, loc)
		}
	}
}

func TestAdminLoginRejectsBadAccessCode(t *testing.T) {
	s := newBareServer()
	router := s.Router()

	req := httptest.NewRequest(http.MethodPost, "/api/admin/login",
		strings.NewReader(`{"email":"admin@bugema.ac.ug","adminCode":"wrong"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "invalid_admin_code") {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"a@b.c","bogus":1}`))
	var out adminLoginRequest
	if err := decodeJSON(req, &out); err == nil {
		t.Fatalf("expected unknown field to be rejected")
	}
}

func TestNormalizeEmail(t *testing.T) {
	if got := normalizeEmail("  Admin@Bugema.AC.UG "); got != "admin@bugema.ac.ug" {
		t.Fatalf("unexpected normalization: %q", got)
	}
}

func TestSessionCookieNames(t *testing.T) {
	if sessionCookieName(auth.RoleAdmin) != "admin-session" ||
		sessionCookieName(auth.RoleHOD) != "hod-session" ||
		sessionCookieName(auth.RoleStudent) != "student-session" {
		t.Fatalf("unexpected cookie names")
	}
}
