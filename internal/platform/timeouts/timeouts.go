// Package timeouts defines shared timeout constants used across the backend.
// Centralizing these values keeps the durations discoverable and prevents
// drift between the HTTP boundary and its collaborators.
package timeouts

import "time"

// ReadHeader limits how long the HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long the HTTP server waits for in-flight requests
// during graceful shutdown.
const Shutdown = 5 * time.Second

// GeoLookup caps a single geo-IP provider request made before a confirmation
// is accepted.
const GeoLookup = 5 * time.Second

// StoreBusy is the bounded wait a writer spends on SQLite lock contention
// before the operation fails as unavailable.
const StoreBusy = 30 * time.Second
