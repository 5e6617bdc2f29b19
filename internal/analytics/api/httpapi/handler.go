// Package httpapi exposes the analytics pipeline over HTTP: batch
// ingestion, the windowed aggregate views, CSV export, and the live
// event stream.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/meridianworks/kiosk-analytics/internal/analytics/event"
	"github.com/meridianworks/kiosk-analytics/internal/analytics/export"
	"github.com/meridianworks/kiosk-analytics/internal/analytics/hub"
	"github.com/meridianworks/kiosk-analytics/internal/analytics/service"
	"github.com/meridianworks/kiosk-analytics/internal/analytics/storage"
	"github.com/meridianworks/kiosk-analytics/internal/platform/httpx"
)

// maxIngestBody caps an ingest request body at 1 MiB, matching the batch
// size limit on the client side.
const maxIngestBody = 1 << 20

// Handler serves the analytics HTTP API.
type Handler struct {
	svc      *service.Service
	hub      *hub.Hub
	adminKey string
	logger   *log.Logger
}

// New creates an API handler. An empty adminKey leaves the read endpoints
// unrestricted (development mode).
func New(svc *service.Service, liveHub *hub.Hub, adminKey string) (*Handler, error) {
	if svc == nil {
		return nil, fmt.Errorf("service is required")
	}
	return &Handler{
		svc:      svc,
		hub:      liveHub,
		adminKey: strings.TrimSpace(adminKey),
		logger:   log.Default(),
	}, nil
}

// Routes composes the full API handler. Every route is mounted under both
// /analytics and /api/analytics so kiosks behind a dev proxy and direct
// deployments hit the same handlers.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	h.register(mux, "/analytics")
	h.register(mux, "/api/analytics")
	return httpx.Chain(mux,
		httpx.RecoverPanic(),
		httpx.RequestID(),
		httpx.RequestLogger(h.logger),
	)
}

func (h *Handler) register(mux *http.ServeMux, prefix string) {
	mux.Handle(prefix+"/events", httpx.Chain(http.HandlerFunc(h.handleIngest), httpx.RequireMethod(http.MethodPost)))
	mux.Handle(prefix+"/health", httpx.Chain(http.HandlerFunc(h.handleHealth), httpx.RequireMethod(http.MethodGet)))

	gated := func(handler http.HandlerFunc) http.Handler {
		return httpx.Chain(handler, httpx.RequireMethod(http.MethodGet), h.requireAdmin())
	}
	mux.Handle(prefix+"/summary", gated(h.handleSummary))
	mux.Handle(prefix+"/stage-stats", gated(h.handleStageStats))
	mux.Handle(prefix+"/domain-stats", gated(h.handleDomainStats))
	mux.Handle(prefix+"/project-stats", gated(h.handleProjectStats))
	mux.Handle(prefix+"/question-stats", gated(h.handleQuestionStats))
	mux.Handle(prefix+"/quiz-skips", gated(h.handleQuizSkips))
	mux.Handle(prefix+"/screensaver", gated(h.handleScreensaver))
	mux.Handle(prefix+"/daily", gated(h.handleDaily))
	mux.Handle(prefix+"/top-sessions", gated(h.handleTopSessions))
	mux.Handle(prefix+"/export", gated(h.handleExport))
	mux.Handle(prefix+"/stream", gated(h.handleStream))
}

// requireAdmin gates an endpoint behind the shared admin secret, supplied
// as an X-Admin-Key header or a token query parameter.
func (h *Handler) requireAdmin() httpx.Middleware {
	return func(next http.Handler) http.Handler {
		if next == nil {
			next = http.NotFoundHandler()
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if h.adminKey == "" {
				next.ServeHTTP(w, r)
				return
			}
			supplied := strings.TrimSpace(r.Header.Get("X-Admin-Key"))
			if supplied == "" {
				supplied = strings.TrimSpace(r.URL.Query().Get("token"))
			}
			if supplied != h.adminKey {
				_ = httpx.WriteJSONError(w, http.StatusUnauthorized, "invalid admin key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// handleIngest accepts a batch envelope. The body is decoded as JSON
// regardless of Content-Type so sendBeacon-style text/plain deliveries
// (which skip CORS preflight) share this path.
func (h *Handler) handleIngest(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxIngestBody))
	if err != nil {
		_ = httpx.WriteJSONError(w, http.StatusBadRequest, "read body")
		return
	}

	var batch event.Batch
	if err := json.Unmarshal(body, &batch); err != nil {
		_ = httpx.WriteJSONError(w, http.StatusBadRequest, "events must be an array")
		return
	}
	if batch.Events == nil {
		_ = httpx.WriteJSONError(w, http.StatusBadRequest, "events must be an array")
		return
	}

	stored, err := h.svc.Ingest(r.Context(), batch)
	if err != nil {
		if errors.Is(err, service.ErrInvalidBatch) {
			_ = httpx.WriteJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Printf("ingest failed: %v", err)
		_ = httpx.WriteJSONError(w, http.StatusInternalServerError, "storage failure")
		return
	}

	_ = httpx.WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "stored": stored})
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	_ = httpx.WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// window parses the optional sinceHours query parameter. Absent or
// unparsable values mean an unbounded window.
func (h *Handler) window(r *http.Request) storage.Window {
	raw := strings.TrimSpace(r.URL.Query().Get("sinceHours"))
	if raw == "" {
		return storage.Window{}
	}
	hours, err := strconv.ParseFloat(raw, 64)
	if err != nil || hours <= 0 {
		return storage.Window{}
	}
	return h.svc.WindowSince(hours)
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.svc.Summary(r.Context(), h.window(r))
	h.writeResult(w, summary, err)
}

func (h *Handler) handleStageStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.StageStats(r.Context(), h.window(r))
	writeListResult(h, w, stats, err)
}

func (h *Handler) handleDomainStats(w http.ResponseWriter, r *http.Request) {
	dwells, err := h.svc.DomainDwell(r.Context(), h.window(r))
	writeListResult(h, w, dwells, err)
}

func (h *Handler) handleProjectStats(w http.ResponseWriter, r *http.Request) {
	dwells, err := h.svc.ProjectDwell(r.Context(), h.window(r))
	writeListResult(h, w, dwells, err)
}

func (h *Handler) handleQuestionStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.QuestionAccuracy(r.Context(), h.window(r))
	writeListResult(h, w, stats, err)
}

func (h *Handler) handleQuizSkips(w http.ResponseWriter, r *http.Request) {
	counts, err := h.svc.QuizSkips(r.Context(), h.window(r))
	writeListResult(h, w, counts, err)
}

func (h *Handler) handleScreensaver(w http.ResponseWriter, r *http.Request) {
	activity, err := h.svc.ScreensaverActivity(r.Context(), h.window(r))
	h.writeResult(w, activity, err)
}

func (h *Handler) handleDaily(w http.ResponseWriter, r *http.Request) {
	days := parseIntParam(r, "days", service.DefaultTimelineDays)
	timeline, err := h.svc.DailyTimeline(r.Context(), h.svc.TimelineWindow(days))
	writeListResult(h, w, timeline, err)
}

func (h *Handler) handleTopSessions(w http.ResponseWriter, r *http.Request) {
	limit := parseIntParam(r, "limit", service.DefaultTopSessionLimit)
	sessions, err := h.svc.TopSessions(r.Context(), limit)
	writeListResult(h, w, sessions, err)
}

func parseIntParam(r *http.Request, name string, fallback int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func (h *Handler) writeResult(w http.ResponseWriter, payload any, err error) {
	if err != nil {
		h.logger.Printf("aggregation failed: %v", err)
		_ = httpx.WriteJSONError(w, http.StatusInternalServerError, "query failure")
		return
	}
	_ = httpx.WriteJSON(w, http.StatusOK, payload)
}

// writeListResult mirrors writeResult but renders a nil slice as an empty
// JSON array rather than null.
func writeListResult[T any](h *Handler, w http.ResponseWriter, payload []T, err error) {
	if err != nil {
		h.writeResult(w, nil, err)
		return
	}
	if payload == nil {
		payload = []T{}
	}
	_ = httpx.WriteJSON(w, http.StatusOK, payload)
}

// handleExport streams one view as CSV with a download filename hint.
func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	kind := strings.TrimSpace(r.URL.Query().Get("kind"))
	window := h.window(r)
	ctx := r.Context()

	var table export.Table
	var err error
	switch kind {
	case "raw":
		var records []storage.EventRecord
		records, err = h.svc.ListEvents(ctx, window)
		table = export.Raw(records)
	case "stage":
		var stats []storage.StageStat
		stats, err = h.svc.StageStats(ctx, window)
		table = export.Stages(stats)
	case "domain":
		var dwells []storage.DomainDwell
		dwells, err = h.svc.DomainDwell(ctx, window)
		table = export.Domains(dwells)
	case "project":
		var dwells []storage.ProjectDwell
		dwells, err = h.svc.ProjectDwell(ctx, window)
		table = export.Projects(dwells)
	case "question":
		var stats []storage.QuestionStat
		stats, err = h.svc.QuestionAccuracy(ctx, window)
		table = export.Questions(stats)
	case "summary":
		var summary storage.Summary
		summary, err = h.svc.Summary(ctx, window)
		table = export.Summary(summary)
	default:
		_ = httpx.WriteJSONError(w, http.StatusBadRequest, "unknown export kind")
		return
	}
	if err != nil {
		h.writeResult(w, nil, err)
		return
	}

	body, err := table.CSV()
	if err != nil {
		h.writeResult(w, nil, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "analytics-"+kind+".csv"))
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, body)
}
