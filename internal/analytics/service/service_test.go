package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/meridianworks/kiosk-analytics/internal/analytics/event"
	"github.com/meridianworks/kiosk-analytics/internal/analytics/hub"
	"github.com/meridianworks/kiosk-analytics/internal/analytics/storage"
)

type fakeStore struct {
	storage.EventStore

	inserted   [][]storage.EventRecord
	insertErr  error
	summary    storage.Summary
	summaryErr error
	topLimit   int
}

func (f *fakeStore) InsertEvents(_ context.Context, records []storage.EventRecord) (storage.InsertResult, error) {
	if f.insertErr != nil {
		return storage.InsertResult{}, f.insertErr
	}
	f.inserted = append(f.inserted, records)
	result := storage.InsertResult{Inserted: len(records)}
	seen := map[string]struct{}{}
	for _, record := range records {
		if _, ok := seen[record.Type]; !ok {
			seen[record.Type] = struct{}{}
			result.Types = append(result.Types, record.Type)
		}
	}
	return result, nil
}

func (f *fakeStore) Summary(context.Context, storage.Window) (storage.Summary, error) {
	return f.summary, f.summaryErr
}

func (f *fakeStore) TopSessions(_ context.Context, limit int) ([]storage.SessionActivity, error) {
	f.topLimit = limit
	return nil, nil
}

type fakeNotifier struct {
	names    []string
	payloads []any
}

func (f *fakeNotifier) Broadcast(name string, data any) {
	f.names = append(f.names, name)
	f.payloads = append(f.payloads, data)
}

func newTestService(t *testing.T, store *fakeStore, notifier Notifier) *Service {
	t.Helper()
	svc, err := New(store, notifier)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestNewRequiresStore(t *testing.T) {
	t.Parallel()

	if _, err := New(nil, nil); err == nil {
		t.Fatal("expected error for nil store")
	}
}

func TestIngestRejectsNilEvents(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	svc := newTestService(t, store, nil)

	_, err := svc.Ingest(context.Background(), event.Batch{SessionID: "sess-1"})
	if !errors.Is(err, ErrInvalidBatch) {
		t.Fatalf("err = %v, want ErrInvalidBatch", err)
	}
	if len(store.inserted) != 0 {
		t.Fatal("store must not be touched for a nil batch")
	}
}

func TestIngestAcceptsEmptyBatch(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	svc := newTestService(t, store, nil)

	stored, err := svc.Ingest(context.Background(), event.Batch{SessionID: "sess-1", Events: []event.Event{}})
	if err != nil {
		t.Fatalf("ingest empty batch: %v", err)
	}
	if stored != 0 {
		t.Fatalf("stored = %d, want 0", stored)
	}
	if len(store.inserted) != 0 {
		t.Fatal("empty batch must not hit the store")
	}
}

func TestIngestInheritsEnvelopeSessionAndVersion(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	svc := newTestService(t, store, nil)

	batch := event.Batch{
		SessionID:  "sess-envelope",
		AppVersion: "2.1.0",
		Events: []event.Event{
			{ID: "evt-1", Timestamp: 1000, Type: event.TypeEnterApp},
			{ID: "evt-2", Timestamp: 2000, Type: event.TypeStageView, SessionID: "sess-own", AppVersion: "1.0.0"},
		},
	}
	stored, err := svc.Ingest(context.Background(), batch)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if stored != 2 {
		t.Fatalf("stored = %d, want 2", stored)
	}

	records := store.inserted[0]
	if records[0].SessionID != "sess-envelope" || records[0].AppVersion != "2.1.0" {
		t.Fatalf("record 0 = %+v, want envelope defaults applied", records[0])
	}
	if records[1].SessionID != "sess-own" || records[1].AppVersion != "1.0.0" {
		t.Fatalf("record 1 = %+v, want explicit values preserved", records[1])
	}
}

func TestIngestEncodesPayload(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	svc := newTestService(t, store, nil)

	correct := true
	batch := event.Batch{
		SessionID: "sess-1",
		Events: []event.Event{{
			ID:        "evt-1",
			Timestamp: 1000,
			Type:      event.TypeQuestionAnswered,
			Payload:   &event.Payload{QuestionID: "q1", Correct: &correct},
		}},
	}
	if _, err := svc.Ingest(context.Background(), batch); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	payload := store.inserted[0][0].PayloadJSON
	if !strings.Contains(payload, `"questionId":"q1"`) || !strings.Contains(payload, `"correct":true`) {
		t.Fatalf("payload json = %q", payload)
	}
}

func TestIngestRejectsInvalidEvent(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	svc := newTestService(t, store, nil)

	batch := event.Batch{
		SessionID: "sess-1",
		Events: []event.Event{
			{ID: "evt-1", Timestamp: 1000, Type: event.TypeEnterApp},
			{Timestamp: 2000, Type: event.TypeStageView},
		},
	}
	_, err := svc.Ingest(context.Background(), batch)
	if !errors.Is(err, ErrInvalidBatch) {
		t.Fatalf("err = %v, want ErrInvalidBatch", err)
	}
	if len(store.inserted) != 0 {
		t.Fatal("invalid batch must not reach the store")
	}
}

func TestIngestBroadcastsDeltaBeforeReturning(t *testing.T) {
	t.Parallel()

	store := &fakeStore{summary: storage.Summary{TotalEvents: 5, DistinctSessions: 2}}
	notifier := &fakeNotifier{}
	svc := newTestService(t, store, notifier)

	batch := event.Batch{
		SessionID: "sess-1",
		Events: []event.Event{
			{ID: "evt-1", Timestamp: 1000, Type: event.TypeEnterApp},
			{ID: "evt-2", Timestamp: 2000, Type: event.TypeStageView},
		},
	}
	if _, err := svc.Ingest(context.Background(), batch); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	if len(notifier.names) != 1 || notifier.names[0] != hub.MessageDelta {
		t.Fatalf("broadcasts = %v, want one delta", notifier.names)
	}
	delta, ok := notifier.payloads[0].(Delta)
	if !ok {
		t.Fatalf("payload type = %T, want Delta", notifier.payloads[0])
	}
	if delta.Summary.TotalEvents != 5 {
		t.Fatalf("delta summary = %+v, want committed totals", delta.Summary)
	}
	if len(delta.Types) != 2 || delta.Types[0] != "enter_app" {
		t.Fatalf("delta types = %v", delta.Types)
	}
}

func TestIngestSucceedsWhenDeltaSummaryFails(t *testing.T) {
	t.Parallel()

	store := &fakeStore{summaryErr: errors.New("summary broken")}
	notifier := &fakeNotifier{}
	svc := newTestService(t, store, notifier)

	batch := event.Batch{
		SessionID: "sess-1",
		Events:    []event.Event{{ID: "evt-1", Timestamp: 1000, Type: event.TypeEnterApp}},
	}
	stored, err := svc.Ingest(context.Background(), batch)
	if err != nil {
		t.Fatalf("ingest must not fail on delta errors: %v", err)
	}
	if stored != 1 {
		t.Fatalf("stored = %d, want 1", stored)
	}
	if len(notifier.names) != 0 {
		t.Fatalf("broadcasts = %v, want none when summary fails", notifier.names)
	}
}

func TestIngestPropagatesStoreFailure(t *testing.T) {
	t.Parallel()

	store := &fakeStore{insertErr: errors.New("disk full")}
	svc := newTestService(t, store, nil)

	batch := event.Batch{
		SessionID: "sess-1",
		Events:    []event.Event{{ID: "evt-1", Timestamp: 1000, Type: event.TypeEnterApp}},
	}
	_, err := svc.Ingest(context.Background(), batch)
	if err == nil || errors.Is(err, ErrInvalidBatch) {
		t.Fatalf("err = %v, want storage failure", err)
	}
}

func TestWindowHelpers(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	svc := newTestService(t, store, nil)
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	svc.clock = func() time.Time { return now }

	window := svc.WindowSince(24)
	if !window.Bounded || window.Cutoff != now.Add(-24*time.Hour).UnixMilli() {
		t.Fatalf("window = %+v", window)
	}

	timeline := svc.TimelineWindow(0)
	wantCutoff := now.Add(-time.Duration(DefaultTimelineDays) * 24 * time.Hour).UnixMilli()
	if timeline.Cutoff != wantCutoff {
		t.Fatalf("timeline cutoff = %d, want %d", timeline.Cutoff, wantCutoff)
	}
}

func TestTopSessionsDefaultsLimit(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	svc := newTestService(t, store, nil)

	if _, err := svc.TopSessions(context.Background(), 0); err != nil {
		t.Fatalf("top sessions: %v", err)
	}
	if store.topLimit != DefaultTopSessionLimit {
		t.Fatalf("limit = %d, want %d", store.topLimit, DefaultTopSessionLimit)
	}

	if _, err := svc.TopSessions(context.Background(), 3); err != nil {
		t.Fatalf("top sessions: %v", err)
	}
	if store.topLimit != 3 {
		t.Fatalf("limit = %d, want 3", store.topLimit)
	}
}
