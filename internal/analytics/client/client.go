// Package client implements the kiosk-side tracking queue: events are
// accumulated in memory, delivered in bounded batches with retry, and
// flushed best-effort on teardown.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/meridianworks/kiosk-analytics/internal/analytics/event"
	"github.com/meridianworks/kiosk-analytics/internal/platform/timeouts"
)

const (
	// maxBatchSize caps one outbound request; a longer queue drains in
	// follow-up rounds.
	maxBatchSize = 50
	// retryDelay throttles consecutive send rounds and spaces out retries
	// after a failed delivery.
	retryDelay = 250 * time.Millisecond
)

// Config holds client startup inputs.
type Config struct {
	// Endpoint is the ingest URL, e.g. http://localhost:4000/analytics/events.
	Endpoint string
	// AppVersion tags every batch with the emitting build.
	AppVersion string
	// SessionID overrides the persisted session identity. When empty the
	// identity is loaded from (or created at) StatePath.
	SessionID string
	// StatePath is the session identity file. Ignored when SessionID is set.
	StatePath string
	// HTTPClient overrides the default transport, mainly for tests.
	HTTPClient *http.Client
	// Clock overrides event timestamping, for tests and synthetic data.
	Clock func() time.Time
}

// Input describes one trackable action. Identity and timing are assigned
// by Track.
type Input struct {
	Type     event.Type
	StageID  string
	DomainID string
	Payload  *event.Payload
}

// Client is a batching tracking queue. One send is in flight at a time;
// new arrivals wait for the current attempt to finish.
type Client struct {
	endpoint   string
	sessionID  string
	appVersion string
	httpClient *http.Client
	clock      func() time.Time

	mu      sync.Mutex
	queue   []event.Event
	sending bool
}

// New creates a client and establishes its session identity.
func New(cfg Config) (*Client, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("ingest endpoint is required")
	}
	sessionID := strings.TrimSpace(cfg.SessionID)
	if sessionID == "" {
		loaded, err := loadOrCreateSessionID(cfg.StatePath)
		if err != nil {
			return nil, fmt.Errorf("establish session identity: %w", err)
		}
		sessionID = loaded
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeouts.IngestRequest}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Client{
		endpoint:   endpoint,
		sessionID:  sessionID,
		appVersion: cfg.AppVersion,
		httpClient: httpClient,
		clock:      clock,
	}, nil
}

// SessionID returns the client's session identity.
func (c *Client) SessionID() string {
	return c.sessionID
}

// Track enqueues a fully-formed event (id, session, timestamp assigned
// now) and triggers an asynchronous send attempt.
func (c *Client) Track(input Input) event.Event {
	evt := event.Event{
		ID:        uuid.NewString(),
		SessionID: c.sessionID,
		Timestamp: c.clock().UnixMilli(),
		Type:      input.Type,
		StageID:   input.StageID,
		DomainID:  input.DomainID,
		Payload:   input.Payload,
	}

	c.mu.Lock()
	c.queue = append(c.queue, evt)
	start := !c.sending
	if start {
		c.sending = true
	}
	c.mu.Unlock()

	if start {
		go c.sendLoop()
	}
	return evt
}

// QueueLen reports how many events are waiting for delivery.
func (c *Client) QueueLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// sendLoop drains the queue one batch at a time. A failed batch goes back
// to the head of the queue; inserts are idempotent server-side, so
// re-sending after an ambiguous failure is safe.
func (c *Client) sendLoop() {
	for {
		c.mu.Lock()
		if len(c.queue) == 0 {
			c.sending = false
			c.mu.Unlock()
			return
		}
		size := len(c.queue)
		if size > maxBatchSize {
			size = maxBatchSize
		}
		batch := make([]event.Event, size)
		copy(batch, c.queue[:size])
		c.queue = c.queue[size:]
		c.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), timeouts.IngestRequest)
		err := c.deliver(ctx, batch)
		cancel()
		if err != nil {
			c.mu.Lock()
			c.queue = append(batch, c.queue...)
			c.mu.Unlock()
		}

		// Throttle the next round; on failure this also spaces retries.
		time.Sleep(retryDelay)
	}
}

func (c *Client) deliver(ctx context.Context, events []event.Event) error {
	body, err := json.Marshal(event.Batch{
		SessionID:  c.sessionID,
		AppVersion: c.appVersion,
		Events:     events,
	})
	if err != nil {
		return fmt.Errorf("encode batch: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 500 {
		return fmt.Errorf("send batch: server status %d", resp.StatusCode)
	}
	// 4xx means the batch is malformed; retrying would loop forever, so
	// the batch is dropped.
	return nil
}

// Flush delivers any remaining queued events best-effort: errors are
// discarded and the overall attempt is capped by a short timeout, so a
// terminating process can call it on the way out without hanging. An
// in-flight send gets a brief window to settle first; if it does not,
// the queue is drained anyway — idempotent ids make any overlap safe.
func (c *Client) Flush(ctx context.Context) {
	flushCtx, cancel := context.WithTimeout(ctx, timeouts.FinalFlush)
	defer cancel()

	for {
		c.mu.Lock()
		if !c.sending || flushCtx.Err() != nil {
			break
		}
		c.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	remaining := c.queue
	c.queue = nil
	c.mu.Unlock()

	for start := 0; start < len(remaining); start += maxBatchSize {
		end := start + maxBatchSize
		if end > len(remaining) {
			end = len(remaining)
		}
		_ = c.deliver(flushCtx, remaining[start:end])
	}
}
