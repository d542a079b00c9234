package game

import (
	"context"
	"log/slog"
	"time"

	"github.com/onnwee/chat-arena/telemetry"
)

// eliminationSession is the live pass-the-token game. At most one exists
// process-wide, and never alongside a duel session.
type eliminationSession struct {
	gen       uint64
	tickGen   uint64 // bumped on every tick re-arm; a pass invalidates in-flight ticks
	holderID  string
	remaining int // seconds until the holder is eliminated
}

// StartElimination launches the pass-the-token game. Refused while any game
// (or a pending reset) owns the pool, or with fewer than two actives.
func (c *Coordinator) StartElimination(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startEliminationLocked(ctx)
}

func (c *Coordinator) startEliminationLocked(ctx context.Context) error {
	if c.active != GameNone || c.resetPending {
		return ErrGameActive
	}
	actives, err := c.listActiveLocked(ctx)
	if err != nil {
		return err
	}
	if len(actives) < 2 {
		return ErrNotEnoughPlayers
	}

	c.gen++
	holder := actives[c.rng.Intn(len(actives))]
	c.active = GameElimination
	c.elim = &eliminationSession{
		gen:       c.gen,
		holderID:  holder.ID,
		remaining: int(c.cfg.HolderExpiry / time.Second),
	}
	telemetry.CountEliminationStarted()
	slog.Info("elimination started",
		slog.String("holder", holder.Username),
		slog.Int("participants", len(actives)),
		slog.String("component", "game"))
	c.hub.Publish(Event{Type: EventTokenAssigned, Payload: map[string]any{
		"holderId": holder.ID,
		"seconds":  c.elim.remaining,
	}})
	c.armHolderTickLocked()
	return nil
}

func (c *Coordinator) armHolderTickLocked() {
	c.elim.tickGen++
	gen, tickGen := c.elim.gen, c.elim.tickGen
	c.timers.Arm(RoleHolderExpiry, time.Second, func() { c.holderTick(gen, tickGen) })
}

// holderTick fires once per second while the token is live. The generation
// checks make a tick that raced a terminal transition, or a pass that reset
// the countdown after this tick had already fired, a no-op.
func (c *Coordinator) holderTick(gen, tickGen uint64) {
	ctx := context.Background()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.elim == nil || c.elim.gen != gen || c.elim.tickGen != tickGen {
		return
	}
	c.elim.remaining--
	if c.elim.remaining > 0 {
		c.hub.Publish(Event{Type: EventTokenTick, Payload: map[string]any{"seconds": c.elim.remaining}})
		c.armHolderTickLocked()
		return
	}
	c.eliminateHolderLocked(ctx)
}

// EliminateHolder is the operator-triggered equivalent of timer expiry.
func (c *Coordinator) EliminateHolder(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.elim == nil {
		return ErrNoSession
	}
	c.eliminateHolderLocked(ctx)
	return nil
}

// eliminateHolderLocked marks the holder eliminated, then either declares a
// winner, reassigns the token, or tears down an emptied lobby.
func (c *Coordinator) eliminateHolderLocked(ctx context.Context) {
	holderID := c.elim.holderID
	if err := c.store.UpdateStatus(ctx, holderID, StatusEliminated); err != nil {
		slog.Error("persist elimination failed", slog.Any("err", err), slog.String("component", "game"))
		c.hub.Publish(Event{Type: EventError, Payload: map[string]any{"message": "persist elimination failed"}})
	}
	telemetry.CountElimination()
	c.hub.Publish(Event{Type: EventEliminated, Payload: map[string]any{"participantId": holderID}})

	actives, err := c.listActiveLocked(ctx)
	if err != nil {
		slog.Error("roster list failed after elimination", slog.Any("err", err), slog.String("component", "game"))
		c.endGameLocked(0)
		return
	}
	switch len(actives) {
	case 0:
		// Shouldn't happen with the two-player start precondition, but a
		// concurrent roster clear can produce it.
		c.endGameLocked(0)
	case 1:
		winner := actives[0]
		slog.Info("elimination winner", slog.String("username", winner.Username), slog.String("component", "game"))
		c.hub.Publish(Event{Type: EventEliminationWinner, Payload: map[string]any{"participant": winner}})
		c.endGameLocked(c.cfg.ResetDelay)
	default:
		next := actives[c.rng.Intn(len(actives))]
		c.elim.holderID = next.ID
		c.elim.remaining = int(c.cfg.HolderExpiry / time.Second)
		c.hub.Publish(Event{Type: EventTokenAssigned, Payload: map[string]any{
			"holderId": next.ID,
			"seconds":  c.elim.remaining,
		}})
		c.armHolderTickLocked()
	}
}

// passTokenLocked handles a bare integer while the elimination game runs: the
// current holder naming another active participant's lobby ordinal.
func (c *Coordinator) passTokenLocked(ctx context.Context, externalID string, ordinal int) error {
	if c.elim == nil {
		return ErrNoSession
	}
	sender, err := c.store.GetByExternalID(ctx, externalID)
	if err != nil {
		return err
	}
	if sender == nil || sender.ID != c.elim.holderID {
		return ErrNotHolder
	}
	actives, err := c.listActiveLocked(ctx)
	if err != nil {
		return err
	}
	if ordinal < 1 || ordinal > len(actives) {
		return ErrInvalidTarget
	}
	target := actives[ordinal-1]
	if target.ID == c.elim.holderID {
		return ErrInvalidTarget
	}

	c.elim.holderID = target.ID
	c.elim.remaining = int(c.cfg.HolderExpiry / time.Second)
	telemetry.CountTokenPass()
	slog.Debug("token passed",
		slog.String("from", sender.Username),
		slog.String("to", target.Username),
		slog.String("component", "game"))
	c.hub.Publish(Event{Type: EventTokenAssigned, Payload: map[string]any{
		"holderId": target.ID,
		"seconds":  c.elim.remaining,
	}})
	c.armHolderTickLocked()
	return nil
}
