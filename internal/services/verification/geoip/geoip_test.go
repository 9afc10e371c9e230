package geoip

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestLookupSuccess(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"success","country":"Germany","city":"Berlin","query":"198.51.100.7"}`))
	}))
	defer server.Close()

	client := New(server.URL)
	location, err := client.Lookup(context.Background(), "198.51.100.7")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if gotPath != "/json/198.51.100.7" {
		t.Fatalf("lookup path = %q, want /json/198.51.100.7", gotPath)
	}
	if location["country"] != "Germany" || location["city"] != "Berlin" {
		t.Fatalf("location = %v, want resolved country and city", location)
	}
	if _, ok := location["status"]; ok {
		t.Fatal("upstream status field leaked into the location")
	}
}

func TestLookupUpstreamFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"fail","message":"reserved range"}`))
	}))
	defer server.Close()

	client := New(server.URL)
	if _, err := client.Lookup(context.Background(), "203.0.113.9"); err == nil {
		t.Fatal("Lookup with failing upstream succeeded, want error")
	}
}

func TestLookupUpstreamHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer server.Close()

	client := New(server.URL)
	if _, err := client.Lookup(context.Background(), "203.0.113.9"); err == nil {
		t.Fatal("Lookup with upstream 502 succeeded, want error")
	}
}

func TestLookupSkipsUnroutableAddresses(t *testing.T) {
	client := New("http://invalid.test")
	for _, ip := range []string{"", "127.0.0.1", "::1", "10.0.0.8", "192.168.1.20", "0.0.0.0"} {
		location, err := client.Lookup(context.Background(), ip)
		if err != nil {
			t.Fatalf("Lookup(%q) = %v, want nil error without an upstream call", ip, err)
		}
		if location != nil {
			t.Fatalf("Lookup(%q) = %v, want nil location", ip, location)
		}
	}
}
