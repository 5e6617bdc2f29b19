// Package storage defines the persistence contract for the analytics event
// store and the shapes of its derived aggregate views.
package storage

import (
	"context"
	"time"
)

// EventRecord is one event row as persisted. PayloadJSON holds the
// serialized payload attachment; empty means no payload.
type EventRecord struct {
	ID          string `json:"id"`
	SessionID   string `json:"sessionId"`
	Timestamp   int64  `json:"ts"`
	Type        string `json:"type"`
	StageID     string `json:"stageId,omitempty"`
	DomainID    string `json:"domainId,omitempty"`
	AppVersion  string `json:"appVersion,omitempty"`
	PayloadJSON string `json:"payload,omitempty"`
}

// InsertResult reports the outcome of one batch insert.
type InsertResult struct {
	// Inserted counts rows actually written; re-delivered ids are ignored
	// and not counted.
	Inserted int
	// Types lists the distinct event types present in the batch, in first
	// occurrence order.
	Types []string
}

// Window bounds a read query to events with timestamp at or after the
// cutoff. The zero value means unbounded.
type Window struct {
	// Cutoff is inclusive, in epoch milliseconds.
	Cutoff int64
	// Bounded distinguishes an explicit zero cutoff from "no window".
	Bounded bool
}

// Since builds a window covering the trailing duration ending at now.
func Since(hours float64, now time.Time) Window {
	return Window{
		Cutoff:  now.UnixMilli() - int64(hours*float64(time.Hour.Milliseconds())),
		Bounded: true,
	}
}

// Contains reports whether a timestamp falls inside the window.
func (w Window) Contains(ts int64) bool {
	return !w.Bounded || ts >= w.Cutoff
}

// TypeCount is one by-type bucket of the summary view.
type TypeCount struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// Summary is the headline view: totals plus a per-type breakdown ordered by
// count descending.
type Summary struct {
	TotalEvents      int         `json:"totalEvents"`
	DistinctSessions int         `json:"distinctSessions"`
	ByType           []TypeCount `json:"byType"`
}

// StageStat counts stage_view events and the distinct sessions that
// produced one, per stage.
type StageStat struct {
	StageID    string `json:"stageId"`
	StageViews int    `json:"stageViews"`
	Sessions   int    `json:"sessions"`
}

// DomainDwell aggregates domain_view_end dwell durations per
// (stage, domain) pair.
type DomainDwell struct {
	StageID         string  `json:"stageId"`
	DomainID        string  `json:"domainId"`
	Closes          int     `json:"closes"`
	TotalDurationMs int64   `json:"totalDurationMs"`
	AvgDurationMs   float64 `json:"avgDurationMs"`
}

// ProjectDwell aggregates project_view_end dwell durations per project
// within a (stage, domain) pair.
type ProjectDwell struct {
	StageID         string  `json:"stageId"`
	DomainID        string  `json:"domainId"`
	ProjectID       string  `json:"projectId"`
	Closes          int     `json:"closes"`
	TotalDurationMs int64   `json:"totalDurationMs"`
	AvgDurationMs   float64 `json:"avgDurationMs"`
}

// QuestionStat reports quiz answer accuracy per question.
type QuestionStat struct {
	QuestionID     string  `json:"questionId"`
	TotalAnswers   int     `json:"totalAnswers"`
	CorrectCount   int     `json:"correctCount"`
	PercentCorrect float64 `json:"percentCorrect"`
}

// QuizSkipCount counts quiz_skipped events per (stage, domain) pair.
type QuizSkipCount struct {
	StageID  string `json:"stageId"`
	DomainID string `json:"domainId"`
	Skips    int    `json:"skips"`
}

// ScreensaverActivity compares screensaver appearances with exits.
type ScreensaverActivity struct {
	Shown int `json:"shown"`
	Exits int `json:"exits"`
}

// DailyActivity is one UTC calendar day of the timeline view.
type DailyActivity struct {
	Day      string `json:"day"`
	Events   int    `json:"events"`
	Sessions int    `json:"sessions"`
}

// SessionActivity is one row of the top-sessions view.
type SessionActivity struct {
	SessionID string `json:"sessionId"`
	Events    int    `json:"events"`
}

// EventStore persists telemetry events and serves the derived views.
type EventStore interface {
	// InsertEvents writes a batch atomically. Duplicate ids are ignored at
	// the row level; on failure the whole batch rolls back.
	InsertEvents(ctx context.Context, records []EventRecord) (InsertResult, error)

	Summary(ctx context.Context, window Window) (Summary, error)
	StageStats(ctx context.Context, window Window) ([]StageStat, error)
	DomainDwell(ctx context.Context, window Window) ([]DomainDwell, error)
	ProjectDwell(ctx context.Context, window Window) ([]ProjectDwell, error)
	QuestionAccuracy(ctx context.Context, window Window) ([]QuestionStat, error)
	QuizSkips(ctx context.Context, window Window) ([]QuizSkipCount, error)
	ScreensaverActivity(ctx context.Context, window Window) (ScreensaverActivity, error)
	DailyTimeline(ctx context.Context, window Window) ([]DailyActivity, error)
	TopSessions(ctx context.Context, limit int) ([]SessionActivity, error)

	// ListEvents returns raw rows ordered by timestamp ascending, for export.
	ListEvents(ctx context.Context, window Window) ([]EventRecord, error)
	// CountEvents returns the total number of stored rows.
	CountEvents(ctx context.Context) (int, error)

	Close() error
}
