package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/onnwee/chat-arena/game"
	"github.com/onnwee/chat-arena/telemetry"
)

// HandleEvents streams game events to overlay viewers over SSE. Each event is
// written as an `event:`/`data:` frame; a comment frame every 15s keeps
// proxies from closing idle connections.
func (h *Handlers) HandleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	events, cancel := h.hub.Subscribe()
	defer cancel()

	log := telemetry.LoggerWithCorr(r.Context())
	log.Debug("viewer connected", slog.String("remote_addr", r.RemoteAddr), slog.String("component", "sse"))

	// New viewers get the current roster immediately so the overlay renders
	// without waiting for the next change.
	if actives, err := h.coord.ListActive(r.Context()); err == nil {
		writeSSE(w, game.Event{Type: game.EventRosterChanged, Payload: map[string]any{"participants": actives}})
		flusher.Flush()
	}

	keepalive := time.NewTicker(15 * time.Second)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			log.Debug("viewer disconnected", slog.String("remote_addr", r.RemoteAddr), slog.String("component", "sse"))
			return
		case <-keepalive.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case ev, open := <-events:
			if !open {
				return
			}
			writeSSE(w, ev)
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, ev game.Event) {
	data, err := json.Marshal(ev.Payload)
	if err != nil {
		slog.Warn("event marshal failed", slog.String("type", ev.Type), slog.Any("err", err), slog.String("component", "sse"))
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
}
