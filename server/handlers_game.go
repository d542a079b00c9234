package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/onnwee/chat-arena/feed"
	"github.com/onnwee/chat-arena/game"
	"github.com/onnwee/chat-arena/telemetry"
	"github.com/onnwee/chat-arena/youtubeapi"
)

// HandleSyncStart begins polling the live chat of the requested broadcast.
// Body: {"target": "<video id or URL>"}.
func (h *Handlers) HandleSyncStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Target string `json:"target"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Target == "" {
		writeError(w, http.StatusBadRequest, "missing target")
		return
	}

	err := h.sync.Start(r.Context(), req.Target)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"status": "syncing", "target": req.Target})
	case errors.Is(err, youtubeapi.ErrInvalidTarget):
		writeError(w, http.StatusNotFound, "no such broadcast")
	case errors.Is(err, youtubeapi.ErrNoActiveFeed):
		writeError(w, http.StatusConflict, "broadcast has no active live chat")
	case errors.Is(err, feed.ErrAlreadySyncing):
		writeError(w, http.StatusConflict, "already syncing")
	default:
		telemetry.LoggerWithCorr(r.Context()).Error("sync start failed", slog.Any("err", err), slog.String("component", "http"))
		writeError(w, http.StatusInternalServerError, "sync start failed")
	}
}

// HandleSyncStop halts the running poll loop. Stopping when idle is a no-op.
func (h *Handlers) HandleSyncStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.sync.Stop()
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

// gameStartError maps coordinator start refusals onto HTTP statuses.
func gameStartError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, game.ErrGameActive):
		writeError(w, http.StatusConflict, "a game is already running")
	case errors.Is(err, game.ErrNotEnoughPlayers):
		writeError(w, http.StatusConflict, "not enough active participants")
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// HandleDuelStart launches a reaction duel between two random actives.
func (h *Handlers) HandleDuelStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := h.coord.StartDuel(r.Context()); err != nil {
		gameStartError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "started", "game": "duel"})
}

// HandleEliminationStart launches the token elimination game.
func (h *Handlers) HandleEliminationStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := h.coord.StartElimination(r.Context()); err != nil {
		gameStartError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "started", "game": "elimination"})
}

// HandleEliminate lets the operator eliminate the current holder without
// waiting out the timer.
func (h *Handlers) HandleEliminate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := h.coord.EliminateHolder(r.Context()); err != nil {
		if errors.Is(err, game.ErrNoSession) {
			writeError(w, http.StatusConflict, "no elimination game running")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "eliminated"})
}

// HandleReset abandons any running game and returns everyone to the lobby.
func (h *Handlers) HandleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := h.coord.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// HandleRoster serves the participant list (GET) and wipes it (DELETE).
// GET with ?username= returns the single matching participant with lifetime
// stats, or 404.
func (h *Handlers) HandleRoster(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if username := r.URL.Query().Get("username"); username != "" {
			p, err := h.coord.FindByUsername(r.Context(), username)
			if err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			if p == nil {
				writeError(w, http.StatusNotFound, "no such participant")
				return
			}
			writeJSON(w, http.StatusOK, p)
			return
		}
		actives, err := h.coord.ListActive(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"participants": actives})
	case http.MethodDelete:
		if err := h.coord.ClearRoster(r.Context()); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		telemetry.LoggerWithCorr(r.Context()).Info("roster wiped", slog.String("component", "http"))
		writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}
