package sqlite

import (
	"context"
	"fmt"

	"github.com/meridianworks/kiosk-analytics/internal/analytics/storage"
)

// durationExpr extracts payload.durationMs as an integer. CAST folds a
// missing or non-numeric value to zero, matching the aggregation contract.
const durationExpr = "CAST(COALESCE(json_extract(payload, '$.durationMs'), 0) AS INTEGER)"

// windowFilter renders the optional time-window condition. The cutoff is
// inclusive: an event stamped exactly at the cutoff is in range.
func windowFilter(window storage.Window, conjunction string) (string, []any) {
	if !window.Bounded {
		return "", nil
	}
	return fmt.Sprintf(" %s ts >= ?", conjunction), []any{window.Cutoff}
}

// Summary returns total event and session counts plus a per-type breakdown
// ordered by count descending.
func (s *Store) Summary(ctx context.Context, window storage.Window) (storage.Summary, error) {
	if err := s.ready(ctx); err != nil {
		return storage.Summary{}, err
	}

	filter, args := windowFilter(window, "WHERE")

	summary := storage.Summary{}
	totalsQuery := "SELECT COUNT(*), COUNT(DISTINCT session_id) FROM events" + filter
	if err := s.sqlDB.QueryRowContext(ctx, totalsQuery, args...).Scan(&summary.TotalEvents, &summary.DistinctSessions); err != nil {
		return storage.Summary{}, fmt.Errorf("summary totals: %w", err)
	}

	byTypeQuery := "SELECT type, COUNT(*) AS count FROM events" + filter + " GROUP BY type ORDER BY count DESC, type ASC"
	rows, err := s.sqlDB.QueryContext(ctx, byTypeQuery, args...)
	if err != nil {
		return storage.Summary{}, fmt.Errorf("summary by type: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var bucket storage.TypeCount
		if err := rows.Scan(&bucket.Type, &bucket.Count); err != nil {
			return storage.Summary{}, fmt.Errorf("scan type count: %w", err)
		}
		summary.ByType = append(summary.ByType, bucket)
	}
	if err := rows.Err(); err != nil {
		return storage.Summary{}, fmt.Errorf("iterate type counts: %w", err)
	}
	return summary, nil
}

// StageStats counts stage_view events and distinct viewing sessions per
// stage, ordered by view count descending.
func (s *Store) StageStats(ctx context.Context, window storage.Window) ([]storage.StageStat, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}

	filter, args := windowFilter(window, "AND")
	query := `
SELECT stage_id, COUNT(*) AS views, COUNT(DISTINCT session_id) AS sessions
FROM events
WHERE type = 'stage_view' AND stage_id IS NOT NULL` + filter + `
GROUP BY stage_id
ORDER BY views DESC, stage_id ASC`

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("stage stats: %w", err)
	}
	defer rows.Close()

	var stats []storage.StageStat
	for rows.Next() {
		var stat storage.StageStat
		if err := rows.Scan(&stat.StageID, &stat.StageViews, &stat.Sessions); err != nil {
			return nil, fmt.Errorf("scan stage stat: %w", err)
		}
		stats = append(stats, stat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stage stats: %w", err)
	}
	return stats, nil
}

// DomainDwell sums domain_view_end dwell durations per (stage, domain),
// ordered by total duration descending.
func (s *Store) DomainDwell(ctx context.Context, window storage.Window) ([]storage.DomainDwell, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}

	filter, args := windowFilter(window, "AND")
	query := `
SELECT COALESCE(stage_id, ''), COALESCE(domain_id, ''),
       COUNT(*) AS closes,
       SUM(` + durationExpr + `) AS total_ms,
       ROUND(AVG(` + durationExpr + `), 1) AS avg_ms
FROM events
WHERE type = 'domain_view_end'` + filter + `
GROUP BY stage_id, domain_id
ORDER BY total_ms DESC`

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("domain dwell: %w", err)
	}
	defer rows.Close()

	var dwells []storage.DomainDwell
	for rows.Next() {
		var dwell storage.DomainDwell
		if err := rows.Scan(&dwell.StageID, &dwell.DomainID, &dwell.Closes, &dwell.TotalDurationMs, &dwell.AvgDurationMs); err != nil {
			return nil, fmt.Errorf("scan domain dwell: %w", err)
		}
		dwells = append(dwells, dwell)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate domain dwell: %w", err)
	}
	return dwells, nil
}

// ProjectDwell sums project_view_end dwell durations per project within a
// (stage, domain) pair, ordered by total duration descending.
func (s *Store) ProjectDwell(ctx context.Context, window storage.Window) ([]storage.ProjectDwell, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}

	filter, args := windowFilter(window, "AND")
	query := `
SELECT COALESCE(stage_id, ''), COALESCE(domain_id, ''),
       COALESCE(json_extract(payload, '$.projectId'), '') AS project_id,
       COUNT(*) AS closes,
       SUM(` + durationExpr + `) AS total_ms,
       ROUND(AVG(` + durationExpr + `), 1) AS avg_ms
FROM events
WHERE type = 'project_view_end'` + filter + `
GROUP BY stage_id, domain_id, project_id
ORDER BY total_ms DESC`

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("project dwell: %w", err)
	}
	defer rows.Close()

	var dwells []storage.ProjectDwell
	for rows.Next() {
		var dwell storage.ProjectDwell
		if err := rows.Scan(&dwell.StageID, &dwell.DomainID, &dwell.ProjectID, &dwell.Closes, &dwell.TotalDurationMs, &dwell.AvgDurationMs); err != nil {
			return nil, fmt.Errorf("scan project dwell: %w", err)
		}
		dwells = append(dwells, dwell)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate project dwell: %w", err)
	}
	return dwells, nil
}

// QuestionAccuracy reports per-question answer accuracy, ordered by percent
// correct then answer volume descending.
func (s *Store) QuestionAccuracy(ctx context.Context, window storage.Window) ([]storage.QuestionStat, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}

	filter, args := windowFilter(window, "AND")
	query := `
SELECT json_extract(payload, '$.questionId') AS question_id,
       COUNT(*) AS total,
       SUM(CASE WHEN json_extract(payload, '$.correct') THEN 1 ELSE 0 END) AS correct,
       ROUND(100.0 * SUM(CASE WHEN json_extract(payload, '$.correct') THEN 1 ELSE 0 END) / COUNT(*), 1) AS pct
FROM events
WHERE type = 'question_answered' AND json_extract(payload, '$.questionId') IS NOT NULL` + filter + `
GROUP BY question_id
ORDER BY pct DESC, total DESC`

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("question accuracy: %w", err)
	}
	defer rows.Close()

	var stats []storage.QuestionStat
	for rows.Next() {
		var stat storage.QuestionStat
		if err := rows.Scan(&stat.QuestionID, &stat.TotalAnswers, &stat.CorrectCount, &stat.PercentCorrect); err != nil {
			return nil, fmt.Errorf("scan question stat: %w", err)
		}
		stats = append(stats, stat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate question stats: %w", err)
	}
	return stats, nil
}

// QuizSkips counts quiz_skipped events per (stage, domain) pair.
func (s *Store) QuizSkips(ctx context.Context, window storage.Window) ([]storage.QuizSkipCount, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}

	filter, args := windowFilter(window, "AND")
	query := `
SELECT COALESCE(stage_id, ''), COALESCE(domain_id, ''), COUNT(*) AS skips
FROM events
WHERE type = 'quiz_skipped'` + filter + `
GROUP BY stage_id, domain_id
ORDER BY skips DESC`

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("quiz skips: %w", err)
	}
	defer rows.Close()

	var counts []storage.QuizSkipCount
	for rows.Next() {
		var count storage.QuizSkipCount
		if err := rows.Scan(&count.StageID, &count.DomainID, &count.Skips); err != nil {
			return nil, fmt.Errorf("scan quiz skip count: %w", err)
		}
		counts = append(counts, count)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate quiz skips: %w", err)
	}
	return counts, nil
}

// ScreensaverActivity compares screensaver appearances with exits.
func (s *Store) ScreensaverActivity(ctx context.Context, window storage.Window) (storage.ScreensaverActivity, error) {
	if err := s.ready(ctx); err != nil {
		return storage.ScreensaverActivity{}, err
	}

	filter, args := windowFilter(window, "AND")
	query := `
SELECT SUM(CASE WHEN type = 'screensaver_shown' THEN 1 ELSE 0 END),
       SUM(CASE WHEN type = 'screensaver_exit' THEN 1 ELSE 0 END)
FROM events
WHERE type IN ('screensaver_shown', 'screensaver_exit')` + filter

	var activity storage.ScreensaverActivity
	var shown, exits *int
	if err := s.sqlDB.QueryRowContext(ctx, query, args...).Scan(&shown, &exits); err != nil {
		return storage.ScreensaverActivity{}, fmt.Errorf("screensaver activity: %w", err)
	}
	if shown != nil {
		activity.Shown = *shown
	}
	if exits != nil {
		activity.Exits = *exits
	}
	return activity, nil
}

// DailyTimeline groups events per UTC calendar day inside the window,
// ascending by day.
func (s *Store) DailyTimeline(ctx context.Context, window storage.Window) ([]storage.DailyActivity, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}

	filter, args := windowFilter(window, "WHERE")
	query := `
SELECT date(ts / 1000, 'unixepoch') AS day, COUNT(*) AS events, COUNT(DISTINCT session_id) AS sessions
FROM events` + filter + `
GROUP BY day
ORDER BY day ASC`

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("daily timeline: %w", err)
	}
	defer rows.Close()

	var days []storage.DailyActivity
	for rows.Next() {
		var day storage.DailyActivity
		if err := rows.Scan(&day.Day, &day.Events, &day.Sessions); err != nil {
			return nil, fmt.Errorf("scan daily activity: %w", err)
		}
		days = append(days, day)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate daily timeline: %w", err)
	}
	return days, nil
}

// TopSessions returns the busiest sessions by event count descending.
func (s *Store) TopSessions(ctx context.Context, limit int) ([]storage.SessionActivity, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	query := `
SELECT session_id, COUNT(*) AS events
FROM events
GROUP BY session_id
ORDER BY events DESC, session_id ASC
LIMIT ?`

	rows, err := s.sqlDB.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("top sessions: %w", err)
	}
	defer rows.Close()

	var sessions []storage.SessionActivity
	for rows.Next() {
		var session storage.SessionActivity
		if err := rows.Scan(&session.SessionID, &session.Events); err != nil {
			return nil, fmt.Errorf("scan session activity: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate top sessions: %w", err)
	}
	return sessions, nil
}
