package http

import (
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	verrors "github.com/uwezert/verification/internal/platform/errors"
)

const requestIDHeader = "X-Request-ID"

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// requestTagging assigns every request an identifier and emits one access log
// line. Client-provided identifiers are kept so traces can be stitched across
// the proxy in front of this service.
func requestTagging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)

		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(recorder, r)
		log.Printf("%s %s %d %s request_id=%s", r.Method, r.URL.Path, recorder.status, time.Since(start).Round(time.Millisecond), requestID)
	})
}

// cors grants cross-origin access to the configured origins and answers
// preflight requests before they reach a handler.
func (h *handler) cors(next http.Handler) http.Handler {
	allowAny := false
	allowed := make(map[string]struct{}, len(h.config.AllowedOrigins))
	for _, origin := range h.config.AllowedOrigins {
		origin = strings.TrimSpace(origin)
		if origin == "" {
			continue
		}
		if origin == "*" {
			allowAny = true
			continue
		}
		allowed[origin] = struct{}{}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			_, ok := allowed[origin]
			if allowAny || ok {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Vary", "Origin")
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key, X-Request-ID")
			}
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireAdmin authenticates moderation calls. Either credential is
// sufficient: the static X-API-Key, or an HS256 bearer token signed with the
// configured secret.
func (h *handler) requireAdmin(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.adminAuthenticated(r) {
			next(w, r)
			return
		}
		writeError(w, r, verrors.New(verrors.CodeUnauthorized, "admin credentials required"))
	})
}

func (h *handler) adminAuthenticated(r *http.Request) bool {
	if key := r.Header.Get("X-API-Key"); key != "" && h.config.AdminAPIKey != "" {
		if key == h.config.AdminAPIKey {
			return true
		}
	}
	if h.config.JWTSecret == "" {
		return false
	}
	authorization := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(authorization, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return false
	}
	if err := verifyAdminToken(strings.TrimSpace(token), h.config.JWTSecret); err != nil {
		log.Printf("reject admin bearer token: %v", err)
		return false
	}
	return true
}

func verifyAdminToken(token, secret string) error {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return fmt.Errorf("parse bearer token: %w", err)
	}
	subject, err := parsed.Claims.GetSubject()
	if err != nil {
		return fmt.Errorf("read token subject: %w", err)
	}
	if subject != "admin" {
		return fmt.Errorf("token subject %q is not admin", subject)
	}
	return nil
}

// clientIP prefers the first proxy-forwarded address and falls back to the
// socket peer.
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
