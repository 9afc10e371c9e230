package server

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadServerEnvDefaults(t *testing.T) {
	t.Setenv("UWEZERT_DB_PATH", "")
	env := loadServerEnv()
	if env.DBPath != filepath.Join("data", "verification.db") {
		t.Fatalf("DBPath = %q, want default under data/", env.DBPath)
	}
	if env.DefaultContest != "" {
		t.Fatalf("DefaultContest = %q, want empty fail-closed default", env.DefaultContest)
	}
	if env.FallbackContestID != 0 {
		t.Fatalf("FallbackContestID = %d, want 0", env.FallbackContestID)
	}
}

func TestLoadServerEnvOverrides(t *testing.T) {
	t.Setenv("UWEZERT_DB_PATH", "/tmp/custom.db")
	t.Setenv("UWEZERT_ADMIN_API_KEY", "secret")
	t.Setenv("UWEZERT_ALLOWED_ORIGINS", "https://a.example.com,https://b.example.com")
	t.Setenv("UWEZERT_FALLBACK_CONTEST_ID", "7")
	t.Setenv("UWEZERT_REQUIRE_LOCATION", "true")
	t.Setenv("UWEZERT_GEOIP_DISABLED", "true")
	t.Setenv("UWEZERT_DEFAULT_CONTEST", "launch")

	env := loadServerEnv()
	if env.DBPath != "/tmp/custom.db" {
		t.Fatalf("DBPath = %q, want override", env.DBPath)
	}
	if env.AdminAPIKey != "secret" {
		t.Fatalf("AdminAPIKey = %q, want override", env.AdminAPIKey)
	}
	if len(env.AllowedOrigins) != 2 || env.AllowedOrigins[1] != "https://b.example.com" {
		t.Fatalf("AllowedOrigins = %v, want both origins", env.AllowedOrigins)
	}
	if env.FallbackContestID != 7 {
		t.Fatalf("FallbackContestID = %d, want 7", env.FallbackContestID)
	}
	if !env.RequireLocation || !env.GeoDisabled {
		t.Fatalf("boolean flags = %+v, want both set", env)
	}
	if env.DefaultContest != "launch" {
		t.Fatalf("DefaultContest = %q, want launch", env.DefaultContest)
	}
}

func TestOpenVerificationStoreCreatesDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "verification.db")
	store, err := openVerificationStore(path)
	if err != nil {
		t.Fatalf("openVerificationStore: %v", err)
	}
	defer func() {
		_ = store.Close()
	}()

	if _, err := os.Stat(filepath.Dir(path)); err != nil {
		t.Fatalf("storage dir was not created: %v", err)
	}
}

func TestNewWithAddrWiresRuntime(t *testing.T) {
	t.Setenv("UWEZERT_DB_PATH", filepath.Join(t.TempDir(), "verification.db"))
	t.Setenv("UWEZERT_GEOIP_DISABLED", "true")

	server, err := NewWithAddr("127.0.0.1:0")
	if err != nil {
		t.Fatalf("NewWithAddr: %v", err)
	}
	defer server.Close()

	if server.service == nil || server.httpServer == nil {
		t.Fatal("server runtime is missing wired components")
	}
}
