package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func adminToken(t *testing.T, secret, subject string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": subject,
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestAdminEndpointsRequireCredentials(t *testing.T) {
	handler := newTestHandler(t)

	for _, target := range []string{"/pending", "/new_confirmations_for_admin", "/list_contests"} {
		recorder, body := doJSON(t, handler, http.MethodGet, target, "", nil)
		if recorder.Code != http.StatusUnauthorized {
			t.Fatalf("GET %s without credentials = %d, want 401", target, recorder.Code)
		}
		if body["code"] != "UNAUTHORIZED" {
			t.Fatalf("GET %s error code = %v, want UNAUTHORIZED", target, body["code"])
		}
	}
	for _, target := range []string{"/decision", "/reset", "/create_contest"} {
		recorder, _ := doJSON(t, handler, http.MethodPost, target, "{}", nil)
		if recorder.Code != http.StatusUnauthorized {
			t.Fatalf("POST %s without credentials = %d, want 401", target, recorder.Code)
		}
	}

	header := http.Header{}
	header.Set("X-API-Key", "wrong-key")
	recorder, _ := doJSON(t, handler, http.MethodGet, "/list_contests", "", header)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("wrong api key = %d, want 401", recorder.Code)
	}
}

func TestAdminBearerToken(t *testing.T) {
	handler := newTestHandler(t)

	header := http.Header{}
	header.Set("Authorization", "Bearer "+adminToken(t, "test-jwt-secret", "admin"))
	recorder, _ := doJSON(t, handler, http.MethodGet, "/list_contests", "", header)
	if recorder.Code != http.StatusOK {
		t.Fatalf("valid bearer token = %d, want 200", recorder.Code)
	}

	header.Set("Authorization", "Bearer "+adminToken(t, "other-secret", "admin"))
	recorder, _ = doJSON(t, handler, http.MethodGet, "/list_contests", "", header)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("token with wrong secret = %d, want 401", recorder.Code)
	}

	header.Set("Authorization", "Bearer "+adminToken(t, "test-jwt-secret", "intruder"))
	recorder, _ = doJSON(t, handler, http.MethodGet, "/list_contests", "", header)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("token with wrong subject = %d, want 401", recorder.Code)
	}
}

func TestCORSHeaders(t *testing.T) {
	handler := newTestHandler(t)

	req := httptest.NewRequest(http.MethodOptions, "/register", nil)
	req.Header.Set("Origin", "https://verify.example.com")
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)
	if recorder.Code != http.StatusNoContent {
		t.Fatalf("preflight = %d, want 204", recorder.Code)
	}
	if got := recorder.Header().Get("Access-Control-Allow-Origin"); got != "https://verify.example.com" {
		t.Fatalf("allow-origin = %q, want the configured origin", got)
	}

	req = httptest.NewRequest(http.MethodOptions, "/register", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	recorder = httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)
	if got := recorder.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("allow-origin for unlisted origin = %q, want empty", got)
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.RemoteAddr = "203.0.113.9:4444"
	if got := clientIP(req); got != "203.0.113.9" {
		t.Fatalf("clientIP = %q, want socket peer", got)
	}

	req.Header.Set("X-Forwarded-For", "198.51.100.7, 10.0.0.1")
	if got := clientIP(req); got != "198.51.100.7" {
		t.Fatalf("clientIP = %q, want first forwarded address", got)
	}
}
