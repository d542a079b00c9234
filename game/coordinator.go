package game

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/onnwee/chat-arena/telemetry"
)

// GameType tags which game currently owns the participant pool.
type GameType string

const (
	GameNone        GameType = "none"
	GameElimination GameType = "elimination"
	GameDuel        GameType = "duel"
)

// StartPolicy decides which game an auto-start launches.
type StartPolicy string

const (
	// PolicyAuto picks a duel with exactly two actives, elimination with more.
	PolicyAuto        StartPolicy = "auto"
	PolicyDuel        StartPolicy = "duel"
	PolicyElimination StartPolicy = "elimination"
)

// Settings carries the timing knobs for both state machines.
type Settings struct {
	HolderExpiry      time.Duration
	DuelCountdown     time.Duration
	ResetDelay        time.Duration
	AutoStartDebounce time.Duration
	AutoStart         StartPolicy
}

// Coordinator owns all in-memory session state and serializes every mutation
// behind one mutex; timers and the ingestion pump re-enter through its methods,
// so no two state transitions ever interleave. The roster store is written
// through on every transition and the hub is notified after the store.
type Coordinator struct {
	mu     sync.Mutex
	store  RosterStore
	hub    *Hub
	timers *TimerRegistry
	clock  clockwork.Clock
	rng    *rand.Rand
	cfg    Settings

	active GameType
	elim   *eliminationSession
	duel   *duelSession

	// gen increments on every session create/destroy; timer callbacks carry
	// the generation they were armed under and bail out when it has moved on.
	gen uint64

	// resetPending blocks new starts between a game's end and the delayed
	// lobby reset, so the reset cannot stomp a freshly started session.
	resetPending bool

	autoStartArmed bool
}

func NewCoordinator(store RosterStore, hub *Hub, clock clockwork.Clock, cfg Settings) *Coordinator {
	if cfg.AutoStart == "" {
		cfg.AutoStart = PolicyAuto
	}
	return &Coordinator{
		store:  store,
		hub:    hub,
		timers: NewTimerRegistry(clock),
		clock:  clock,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cfg:    cfg,
		active: GameNone,
	}
}

// StatusSnapshot is the read-only view served by /status.
type StatusSnapshot struct {
	ActiveGame   GameType `json:"activeGame"`
	ResetPending bool     `json:"resetPending"`
	HolderID     string   `json:"holderId,omitempty"`
	Remaining    int      `json:"remainingSeconds,omitempty"`
	Viewers      int      `json:"viewers"`
}

// Status returns a consistent snapshot of the live session state.
func (c *Coordinator) Status() StatusSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := StatusSnapshot{ActiveGame: c.active, ResetPending: c.resetPending, Viewers: c.hub.Subscribers()}
	switch {
	case c.elim != nil:
		s.HolderID = c.elim.holderID
		s.Remaining = c.elim.remaining
	case c.duel != nil:
		s.Remaining = c.duel.remaining
	}
	return s
}

// HandleNumber resolves a bare integer from chat: a pass target while the
// elimination game runs, a duel answer while a duel runs, noise otherwise.
func (c *Coordinator) HandleNumber(ctx context.Context, externalID string, n int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.active {
	case GameElimination:
		return c.passTokenLocked(ctx, externalID, n)
	case GameDuel:
		return c.duelAnswerLocked(ctx, externalID, n)
	default:
		return nil
	}
}

// Reset cancels every timer, destroys any session, and returns all
// participants to active. Idempotent; always leaves the coordinator Idle.
func (c *Coordinator) Reset(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resetLocked(ctx)
}

func (c *Coordinator) resetLocked(ctx context.Context) error {
	c.timers.CancelAll()
	c.destroySessionsLocked()
	c.resetPending = false
	c.autoStartArmed = false
	if err := c.store.ResetAll(ctx); err != nil {
		slog.Error("roster reset failed", slog.Any("err", err), slog.String("component", "game"))
		c.hub.Publish(Event{Type: EventError, Payload: map[string]any{"message": "roster reset failed"}})
		return err
	}
	c.hub.Publish(Event{Type: EventGameReset})
	c.publishRosterLocked(ctx)
	return nil
}

// ClearRoster wipes every participant. Destroys any live session first.
func (c *Coordinator) ClearRoster(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timers.CancelAll()
	c.destroySessionsLocked()
	c.resetPending = false
	c.autoStartArmed = false
	if err := c.store.DeleteAll(ctx); err != nil {
		return err
	}
	c.hub.Publish(Event{Type: EventGameReset})
	c.hub.Publish(Event{Type: EventRosterChanged, Payload: map[string]any{"participants": []Participant{}}})
	return nil
}

// HandleDisconnect cancels a duel when one of its combatants drops. Signalled
// externally (platform presence, moderator action); no winner is declared.
func (c *Coordinator) HandleDisconnect(ctx context.Context, externalID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active != GameDuel || c.duel == nil {
		return nil
	}
	p, err := c.store.GetByExternalID(ctx, externalID)
	if err != nil || p == nil {
		return err
	}
	if p.ID != c.duel.left.ID && p.ID != c.duel.right.ID {
		return nil
	}
	slog.Info("duel cancelled: combatant disconnected",
		slog.String("participant", p.ID), slog.String("component", "game"))
	return c.resetLocked(ctx)
}

// destroySessionsLocked tears down both session slots and bumps the
// generation so any in-flight timer callback becomes a no-op.
func (c *Coordinator) destroySessionsLocked() {
	c.gen++
	c.elim = nil
	c.duel = nil
	c.active = GameNone
}

// endGameLocked destroys the finished session and schedules the delayed lobby
// reset. Starts stay refused until the reset fires.
func (c *Coordinator) endGameLocked(delay time.Duration) {
	c.destroySessionsLocked()
	c.resetPending = true
	if delay <= 0 {
		// Winner with nobody left, or an edge with zero actives: reset now.
		if err := c.resetLocked(context.Background()); err != nil {
			slog.Error("immediate reset failed", slog.Any("err", err), slog.String("component", "game"))
		}
		return
	}
	c.timers.Arm(RoleResetDelay, delay, func() {
		if err := c.Reset(context.Background()); err != nil {
			slog.Error("post-game reset failed", slog.Any("err", err), slog.String("component", "game"))
		}
	})
}

func (c *Coordinator) publishRosterLocked(ctx context.Context) {
	actives, err := c.listActiveLocked(ctx)
	if err != nil {
		slog.Warn("roster list failed", slog.Any("err", err), slog.String("component", "game"))
		return
	}
	telemetry.SetActiveParticipants(len(actives))
	c.hub.Publish(Event{Type: EventRosterChanged, Payload: map[string]any{"participants": actives}})
}

func (c *Coordinator) listActiveLocked(ctx context.Context) ([]Participant, error) {
	actives, err := c.store.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	for i := range actives {
		actives[i].Ordinal = i + 1
	}
	return actives, nil
}
