// Package game contains the orchestrator core: the participant roster contract,
// the lobby, both chat-driven minigame state machines, and the broadcast hub
// that fans state transitions out to overlay viewers.
package game

import (
	"context"
	"time"
)

// Status is a participant's lobby state.
type Status string

const (
	StatusActive     Status = "active"
	StatusInGame     Status = "in_game"
	StatusEliminated Status = "eliminated"
)

// Participant is a chat viewer who joined the lobby. ExternalID is the stable
// chat-platform identity; Username is display-only and may collide.
type Participant struct {
	ID            string    `json:"id"`
	ExternalID    string    `json:"externalId"`
	Username      string    `json:"username"`
	AvatarURL     string    `json:"avatarUrl,omitempty"`
	Status        Status    `json:"status"`
	Wins          int       `json:"wins"`
	Losses        int       `json:"losses"`
	TotalGames    int       `json:"totalGames"`
	AvgReactionMs float64   `json:"avgReactionMs"`
	JoinedAt      time.Time `json:"joinedAt"`

	// Ordinal is the 1-based display position within the active lobby. It is
	// assigned on listing, not persisted; pass-token targets name it.
	Ordinal int `json:"ordinal,omitempty"`
}

// RosterStore is the narrow persistence contract for participants. The
// coordinator treats it as the durable source of truth and writes through on
// every transition. Implementations must provide read-your-writes consistency
// within a single process.
type RosterStore interface {
	// GetByExternalID returns nil (no error) when the participant is absent.
	GetByExternalID(ctx context.Context, externalID string) (*Participant, error)
	// GetByUsername returns nil (no error) when no participant has the name.
	GetByUsername(ctx context.Context, username string) (*Participant, error)
	Create(ctx context.Context, p *Participant) error
	UpdateStatus(ctx context.Context, id string, status Status) error
	// ListActive returns active participants ordered by join time.
	ListActive(ctx context.Context) ([]Participant, error)
	// RecordDuelResult persists win/loss/reaction aggregates for both duel
	// combatants and returns their status to active.
	RecordDuelResult(ctx context.Context, winnerID, loserID string, reactionMs float64) error
	// ResetAll returns every participant to active.
	ResetAll(ctx context.Context) error
	// DeleteAll wipes the roster (operator-initiated only).
	DeleteAll(ctx context.Context) error
}
