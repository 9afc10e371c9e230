// Package server wires the verification runtime and HTTP lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/uwezert/verification/internal/platform/config"
	verifhttp "github.com/uwezert/verification/internal/services/verification/api/http"
	"github.com/uwezert/verification/internal/services/verification/geoip"
	"github.com/uwezert/verification/internal/services/verification/lifecycle"
	verifsqlite "github.com/uwezert/verification/internal/services/verification/storage/sqlite"
)

type serverEnv struct {
	DBPath            string   `env:"UWEZERT_DB_PATH"`
	AdminAPIKey       string   `env:"UWEZERT_ADMIN_API_KEY"`
	JWTSecret         string   `env:"UWEZERT_JWT_SECRET"`
	AllowedOrigins    []string `env:"UWEZERT_ALLOWED_ORIGINS" envSeparator:","`
	FallbackContestID int64    `env:"UWEZERT_FALLBACK_CONTEST_ID"`
	RequireLocation   bool     `env:"UWEZERT_REQUIRE_LOCATION"`
	GeoBaseURL        string   `env:"UWEZERT_GEOIP_BASE_URL"`
	GeoDisabled       bool     `env:"UWEZERT_GEOIP_DISABLED"`
	// DefaultContest seeds an initial active round at startup. Empty keeps
	// the deployment closed until an admin creates the first round.
	DefaultContest string `env:"UWEZERT_DEFAULT_CONTEST"`
}

func loadServerEnv() serverEnv {
	var cfg serverEnv
	_ = config.ParseEnv(&cfg)
	if strings.TrimSpace(cfg.DBPath) == "" {
		cfg.DBPath = filepath.Join("data", "verification.db")
	}
	return cfg
}

// Server hosts the verification HTTP API and storage lifecycle.
type Server struct {
	env        serverEnv
	store      *verifsqlite.Store
	service    *lifecycle.Service
	httpServer *verifhttp.Server
}

// New creates a configured verification server listening on the provided port.
func New(port int) (*Server, error) {
	return NewWithAddr(fmt.Sprintf(":%d", port))
}

// NewWithAddr creates a configured verification server for the provided
// address.
func NewWithAddr(addr string) (*Server, error) {
	env := loadServerEnv()
	store, err := openVerificationStore(env.DBPath)
	if err != nil {
		return nil, err
	}

	var resolver lifecycle.LocationResolver
	if !env.GeoDisabled {
		resolver = geoip.New(env.GeoBaseURL)
	}
	service := lifecycle.New(store, resolver, lifecycle.Config{
		FallbackContestID: env.FallbackContestID,
		RequireLocation:   env.RequireLocation,
	})
	handler := verifhttp.NewHandler(verifhttp.Config{
		AdminAPIKey:    env.AdminAPIKey,
		JWTSecret:      env.JWTSecret,
		AllowedOrigins: env.AllowedOrigins,
	}, service)

	return &Server{
		env:        env,
		store:      store,
		service:    service,
		httpServer: verifhttp.NewServer(addr, handler),
	}, nil
}

// Run creates and serves a verification server until context cancellation.
func Run(ctx context.Context, port int) error {
	server, err := New(port)
	if err != nil {
		return err
	}
	return server.Serve(ctx)
}

// Serve seeds the optional default round and serves HTTP until context
// cancellation.
func (s *Server) Serve(ctx context.Context) error {
	if s == nil {
		return errors.New("server is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	defer s.Close()

	if name := strings.TrimSpace(s.env.DefaultContest); name != "" {
		if err := s.service.EnsureDefaultContest(ctx, name); err != nil {
			return fmt.Errorf("seed default contest: %w", err)
		}
	}
	return s.httpServer.ListenAndServe(ctx)
}

// Close releases the storage handle.
func (s *Server) Close() {
	if s == nil || s.store == nil {
		return
	}
	if err := s.store.Close(); err != nil {
		log.Printf("close verification store: %v", err)
	}
}

func openVerificationStore(path string) (*verifsqlite.Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir %s: %w", dir, err)
		}
	}
	store, err := verifsqlite.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open verification store: %w", err)
	}
	return store, nil
}
