package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/meridianworks/kiosk-analytics/internal/analytics/hub"
	"github.com/meridianworks/kiosk-analytics/internal/analytics/storage"
	"github.com/meridianworks/kiosk-analytics/internal/platform/httpx"
)

// initFrame is the payload of the opening stream message. The summary sits
// under a "summary" key so consumers read it from the same field on init
// and delta messages.
type initFrame struct {
	Summary storage.Summary `json:"summary"`
}

// handleStream upgrades the request to a Server-Sent Events stream. The
// subscriber receives a full summary snapshot as a named init message,
// then delta messages after each ingest and heartbeats while idle.
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		_ = httpx.WriteJSONError(w, http.StatusServiceUnavailable, "live stream is not enabled")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		_ = httpx.WriteJSONError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	snapshot, err := h.svc.Snapshot(r.Context())
	if err != nil {
		h.writeResult(w, nil, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sub := h.hub.Subscribe()
	defer h.hub.Unsubscribe(sub)

	if err := writeSSE(w, flusher, hub.Message{Name: hub.MessageInit, Data: initFrame{Summary: snapshot}}); err != nil {
		return
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, open := <-sub.Messages():
			if !open {
				return
			}
			if err := writeSSE(w, flusher, msg); err != nil {
				// A dead transport drops this subscriber only; other
				// subscribers and ingestion are unaffected.
				return
			}
		}
	}
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, msg hub.Message) error {
	data, err := json.Marshal(msg.Data)
	if err != nil {
		return fmt.Errorf("marshal sse payload: %w", err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Name, data); err != nil {
		return fmt.Errorf("write sse frame: %w", err)
	}
	flusher.Flush()
	return nil
}
