package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/meridianworks/kiosk-analytics/internal/analytics/event"
)

// batchRecorder captures every delivered batch and lets tests fail the
// first N requests.
type batchRecorder struct {
	mu       sync.Mutex
	batches  []event.Batch
	failures int
	status   int
}

func (r *batchRecorder) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		body, err := io.ReadAll(req.Body)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		var batch event.Batch
		if err := json.Unmarshal(body, &batch); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		r.mu.Lock()
		defer r.mu.Unlock()
		if r.failures > 0 {
			r.failures--
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		r.batches = append(r.batches, batch)
		if r.status != 0 {
			w.WriteHeader(r.status)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

func (r *batchRecorder) snapshot() []event.Batch {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]event.Batch, len(r.batches))
	copy(out, r.batches)
	return out
}

func (r *batchRecorder) deliveredIDs() map[string]int {
	ids := map[string]int{}
	for _, batch := range r.snapshot() {
		for _, evt := range batch.Events {
			ids[evt.ID]++
		}
	}
	return ids
}

func newTestClient(t *testing.T, endpoint string) *Client {
	t.Helper()
	c, err := New(Config{
		Endpoint:   endpoint,
		AppVersion: "test",
		SessionID:  "sess-test",
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func waitForDrain(t *testing.T, c *Client) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		c.mu.Lock()
		idle := len(c.queue) == 0 && !c.sending
		c.mu.Unlock()
		if idle {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for queue drain, %d left", c.QueueLen())
}

func TestTrackAssignsIdentityAndTimestamp(t *testing.T) {
	t.Parallel()

	recorder := &batchRecorder{}
	server := httptest.NewServer(recorder.handler())
	defer server.Close()

	c := newTestClient(t, server.URL)
	fixed := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	c.clock = func() time.Time { return fixed }

	evt := c.Track(Input{Type: event.TypeStageView, StageID: "discover"})
	if evt.ID == "" {
		t.Fatal("expected generated event id")
	}
	if evt.SessionID != "sess-test" {
		t.Fatalf("session = %q, want sess-test", evt.SessionID)
	}
	if evt.Timestamp != fixed.UnixMilli() {
		t.Fatalf("ts = %d, want %d", evt.Timestamp, fixed.UnixMilli())
	}
	waitForDrain(t, c)
}

func TestSendLoopCapsBatchSize(t *testing.T) {
	t.Parallel()

	recorder := &batchRecorder{}
	server := httptest.NewServer(recorder.handler())
	defer server.Close()

	c := newTestClient(t, server.URL)
	total := maxBatchSize*2 + 10
	for i := 0; i < total; i++ {
		c.Track(Input{Type: event.TypeStageView, StageID: "discover"})
	}
	waitForDrain(t, c)

	ids := recorder.deliveredIDs()
	if len(ids) != total {
		t.Fatalf("delivered ids = %d, want %d", len(ids), total)
	}
	for _, batch := range recorder.snapshot() {
		if len(batch.Events) > maxBatchSize {
			t.Fatalf("batch size = %d, want at most %d", len(batch.Events), maxBatchSize)
		}
		if batch.SessionID != "sess-test" || batch.AppVersion != "test" {
			t.Fatalf("batch envelope = %+v", batch)
		}
	}
}

func TestSendLoopRetriesFailedBatchInOrder(t *testing.T) {
	t.Parallel()

	recorder := &batchRecorder{failures: 2}
	server := httptest.NewServer(recorder.handler())
	defer server.Close()

	c := newTestClient(t, server.URL)
	first := c.Track(Input{Type: event.TypeEnterApp})
	second := c.Track(Input{Type: event.TypeStageView, StageID: "discover"})
	waitForDrain(t, c)

	ids := recorder.deliveredIDs()
	if ids[first.ID] != 1 || ids[second.ID] != 1 {
		t.Fatalf("delivered counts = %v, want each event once", ids)
	}

	// The failed batch is retried from the head, so order is preserved.
	batches := recorder.snapshot()
	if len(batches) == 0 || batches[0].Events[0].ID != first.ID {
		t.Fatalf("first delivered batch = %+v, want head event first", batches)
	}
}

func TestSendLoopDropsRejectedBatch(t *testing.T) {
	t.Parallel()

	recorder := &batchRecorder{status: http.StatusBadRequest}
	server := httptest.NewServer(recorder.handler())
	defer server.Close()

	c := newTestClient(t, server.URL)
	c.Track(Input{Type: event.TypeEnterApp})
	waitForDrain(t, c)

	if got := c.QueueLen(); got != 0 {
		t.Fatalf("queue = %d, want rejected batch dropped", got)
	}
}

func TestFlushDeliversRemainingEvents(t *testing.T) {
	t.Parallel()

	recorder := &batchRecorder{}
	server := httptest.NewServer(recorder.handler())
	defer server.Close()

	c := newTestClient(t, server.URL)
	tracked := c.Track(Input{Type: event.TypeExitToAttract})
	c.Flush(context.Background())

	if got := c.QueueLen(); got != 0 {
		t.Fatalf("queue after flush = %d, want 0", got)
	}
	ids := recorder.deliveredIDs()
	if ids[tracked.ID] == 0 {
		t.Fatalf("delivered ids = %v, want tracked event flushed", ids)
	}
}

func TestNewRequiresEndpoint(t *testing.T) {
	t.Parallel()

	if _, err := New(Config{SessionID: "sess"}); err == nil {
		t.Fatal("expected error for missing endpoint")
	}
}

func TestSessionIdentityPersistsAcrossClients(t *testing.T) {
	t.Parallel()

	statePath := filepath.Join(t.TempDir(), "session")
	first, err := New(Config{Endpoint: "http://localhost:1/events", StatePath: statePath})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if first.SessionID() == "" {
		t.Fatal("expected generated session id")
	}

	second, err := New(Config{Endpoint: "http://localhost:1/events", StatePath: statePath})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if second.SessionID() != first.SessionID() {
		t.Fatalf("session = %q then %q, want stable identity", first.SessionID(), second.SessionID())
	}
}

func TestExplicitSessionIDSkipsStateFile(t *testing.T) {
	t.Parallel()

	statePath := filepath.Join(t.TempDir(), "missing", "session")
	c, err := New(Config{Endpoint: "http://localhost:1/events", SessionID: "sess-fixed", StatePath: statePath})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if c.SessionID() != "sess-fixed" {
		t.Fatalf("session = %q, want sess-fixed", c.SessionID())
	}
}
