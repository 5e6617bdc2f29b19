// Package service implements the analytics pipeline operations: validated
// idempotent ingestion with live-delta notification, and the windowed
// aggregate views.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/meridianworks/kiosk-analytics/internal/analytics/event"
	"github.com/meridianworks/kiosk-analytics/internal/analytics/hub"
	"github.com/meridianworks/kiosk-analytics/internal/analytics/storage"
)

// ErrInvalidBatch marks a malformed ingest body; it never reaches the store.
var ErrInvalidBatch = errors.New("events must be a sequence")

// Default read parameters when the request leaves them unset.
const (
	DefaultTimelineDays    = 7
	DefaultTopSessionLimit = 10
)

// Notifier receives live broadcast messages after successful ingests.
type Notifier interface {
	Broadcast(name string, data any)
}

// Delta is the incremental broadcast payload pushed after an ingest: the
// distinct types just written plus a refreshed summary.
type Delta struct {
	Types   []string        `json:"types"`
	Summary storage.Summary `json:"summary"`
}

// Service coordinates the event store and the broadcast hub.
type Service struct {
	store    storage.EventStore
	notifier Notifier
	clock    func() time.Time
	tracer   trace.Tracer
}

// New creates a service. The notifier may be nil when no live stream is
// attached.
func New(store storage.EventStore, notifier Notifier) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("event store is required")
	}
	return &Service{
		store:    store,
		notifier: notifier,
		clock:    time.Now,
		tracer:   otel.Tracer("analytics/service"),
	}, nil
}

// Ingest validates and persists one batch atomically, then notifies live
// subscribers with a delta before returning. The returned count is the
// number of events accepted from the batch; re-delivered ids are ignored
// by the store without failing the call.
func (s *Service) Ingest(ctx context.Context, batch event.Batch) (int, error) {
	if batch.Events == nil {
		return 0, ErrInvalidBatch
	}
	if len(batch.Events) == 0 {
		return 0, nil
	}

	ctx, span := s.tracer.Start(ctx, "analytics.ingest",
		trace.WithAttributes(attribute.Int("analytics.batch_size", len(batch.Events))),
	)
	defer span.End()

	records := make([]storage.EventRecord, 0, len(batch.Events))
	for i, evt := range batch.Events {
		if evt.SessionID == "" {
			evt.SessionID = batch.SessionID
		}
		if evt.AppVersion == "" {
			evt.AppVersion = batch.AppVersion
		}
		if err := evt.Validate(); err != nil {
			return 0, fmt.Errorf("%w: event %d: %v", ErrInvalidBatch, i, err)
		}
		record := storage.EventRecord{
			ID:         evt.ID,
			SessionID:  evt.SessionID,
			Timestamp:  evt.Timestamp,
			Type:       string(evt.Type),
			StageID:    evt.StageID,
			DomainID:   evt.DomainID,
			AppVersion: evt.AppVersion,
		}
		if evt.Payload != nil {
			payload, err := json.Marshal(evt.Payload)
			if err != nil {
				return 0, fmt.Errorf("%w: event %d: encode payload: %v", ErrInvalidBatch, i, err)
			}
			record.PayloadJSON = string(payload)
		}
		records = append(records, record)
	}

	result, err := s.store.InsertEvents(ctx, records)
	if err != nil {
		return 0, fmt.Errorf("insert events: %w", err)
	}

	// The delta is computed before responding so it reflects the committed
	// post-write state.
	if s.notifier != nil {
		summary, err := s.store.Summary(ctx, storage.Window{})
		if err != nil {
			log.Printf("analytics delta summary: %v", err)
		} else {
			s.notifier.Broadcast(hub.MessageDelta, Delta{Types: result.Types, Summary: summary})
		}
	}

	return len(batch.Events), nil
}

// WindowSince converts a trailing-hours parameter into a storage window.
func (s *Service) WindowSince(hours float64) storage.Window {
	return storage.Since(hours, s.clock())
}

// TimelineWindow converts a trailing-days parameter into a storage window.
func (s *Service) TimelineWindow(days int) storage.Window {
	if days <= 0 {
		days = DefaultTimelineDays
	}
	return storage.Since(float64(days)*24, s.clock())
}

// Snapshot returns the unbounded summary used as the live stream's initial
// message.
func (s *Service) Snapshot(ctx context.Context) (storage.Summary, error) {
	return s.store.Summary(ctx, storage.Window{})
}

// Summary returns the headline view for the window.
func (s *Service) Summary(ctx context.Context, window storage.Window) (storage.Summary, error) {
	return s.store.Summary(ctx, window)
}

// StageStats returns per-stage view counts for the window.
func (s *Service) StageStats(ctx context.Context, window storage.Window) ([]storage.StageStat, error) {
	return s.store.StageStats(ctx, window)
}

// DomainDwell returns per-domain dwell aggregates for the window.
func (s *Service) DomainDwell(ctx context.Context, window storage.Window) ([]storage.DomainDwell, error) {
	return s.store.DomainDwell(ctx, window)
}

// ProjectDwell returns per-project dwell aggregates for the window.
func (s *Service) ProjectDwell(ctx context.Context, window storage.Window) ([]storage.ProjectDwell, error) {
	return s.store.ProjectDwell(ctx, window)
}

// QuestionAccuracy returns per-question quiz accuracy for the window.
func (s *Service) QuestionAccuracy(ctx context.Context, window storage.Window) ([]storage.QuestionStat, error) {
	return s.store.QuestionAccuracy(ctx, window)
}

// QuizSkips returns per-domain quiz skip counts for the window.
func (s *Service) QuizSkips(ctx context.Context, window storage.Window) ([]storage.QuizSkipCount, error) {
	return s.store.QuizSkips(ctx, window)
}

// ScreensaverActivity returns screensaver shown/exit counts for the window.
func (s *Service) ScreensaverActivity(ctx context.Context, window storage.Window) (storage.ScreensaverActivity, error) {
	return s.store.ScreensaverActivity(ctx, window)
}

// DailyTimeline returns the per-day activity rows for the window.
func (s *Service) DailyTimeline(ctx context.Context, window storage.Window) ([]storage.DailyActivity, error) {
	return s.store.DailyTimeline(ctx, window)
}

// TopSessions returns the busiest sessions; a non-positive limit selects
// the default.
func (s *Service) TopSessions(ctx context.Context, limit int) ([]storage.SessionActivity, error) {
	if limit <= 0 {
		limit = DefaultTopSessionLimit
	}
	return s.store.TopSessions(ctx, limit)
}

// ListEvents returns raw stored rows for the window, oldest first.
func (s *Service) ListEvents(ctx context.Context, window storage.Window) ([]storage.EventRecord, error) {
	return s.store.ListEvents(ctx, window)
}
