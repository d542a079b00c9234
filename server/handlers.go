// Package server exposes the HTTP API handlers.
package server

import (
	"database/sql"
	"encoding/json"
	"net/http"

	"github.com/onnwee/chat-arena/feed"
	"github.com/onnwee/chat-arena/game"
)

// Deps carries the collaborators the handlers need.
type Deps struct {
	DB    *sql.DB
	Coord *game.Coordinator
	Hub   *game.Hub
	Sync  *feed.Controller
}

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	db    *sql.DB
	coord *game.Coordinator
	hub   *game.Hub
	sync  *feed.Controller
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(deps Deps) *Handlers {
	return &Handlers{db: deps.DB, coord: deps.Coord, hub: deps.Hub, sync: deps.Sync}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
