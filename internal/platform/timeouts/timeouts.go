// Package timeouts defines shared timeout constants used across the analytics
// server and client. Centralizing these values prevents drift between the two
// sides of the pipeline and makes the durations discoverable.
package timeouts

import "time"

// ReadHeader limits how long the HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long the HTTP server waits for in-flight requests
// during graceful shutdown.
const Shutdown = 5 * time.Second

// IngestRequest caps a single client batch delivery attempt.
const IngestRequest = 10 * time.Second

// FinalFlush caps the best-effort delivery of queued events during client
// teardown. Kept short so a dying process never hangs on telemetry.
const FinalFlush = 2 * time.Second
