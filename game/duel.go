package game

import (
	"context"
	"log/slog"
	"time"

	"github.com/onnwee/chat-arena/telemetry"
)

// Combatant is the public snapshot of one duel participant.
type Combatant struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatarUrl,omitempty"`
	Position  string `json:"position"` // left | right
	Alive     bool   `json:"alive"`
}

const (
	duelTargetMin = 1000
	duelTargetMax = 9999
)

// duelSession is the live reaction-race game: Countdown until remaining hits
// zero, Revealed once target is set, Resolved once the resolved flag flips.
type duelSession struct {
	gen        uint64
	left       Combatant
	right      Combatant
	remaining  int // countdown seconds
	target     int // 0 until revealed
	revealedAt time.Time
	resolved   bool
}

// StartDuel launches the reaction duel with two random combatants. Refused
// while the elimination game (or a pending reset) owns the pool.
func (c *Coordinator) StartDuel(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startDuelLocked(ctx)
}

func (c *Coordinator) startDuelLocked(ctx context.Context) error {
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

	// Two distinct picks, uniform without replacement.
	perm := c.rng.Perm(len(actives))
	left, right := actives[perm[0]], actives[perm[1]]
	if err := c.store.UpdateStatus(ctx, left.ID, StatusInGame); err != nil {
		return err
	}
	if err := c.store.UpdateStatus(ctx, right.ID, StatusInGame); err != nil {
		// Revert the first write so we don't strand a combatant in_game.
		if rerr := c.store.UpdateStatus(ctx, left.ID, StatusActive); rerr != nil {
			slog.Error("revert combatant status failed", slog.Any("err", rerr), slog.String("component", "game"))
		}
		return err
	}

	c.gen++
	c.active = GameDuel
	c.duel = &duelSession{
		gen:       c.gen,
		left:      Combatant{ID: left.ID, Username: left.Username, AvatarURL: left.AvatarURL, Position: "left", Alive: true},
		right:     Combatant{ID: right.ID, Username: right.Username, AvatarURL: right.AvatarURL, Position: "right", Alive: true},
		remaining: int(c.cfg.DuelCountdown / time.Second),
	}
	telemetry.CountDuelStarted()
	slog.Info("duel started",
		slog.String("left", left.Username),
		slog.String("right", right.Username),
		slog.String("component", "game"))
	c.hub.Publish(Event{Type: EventDuelStarted, Payload: map[string]any{
		"leftPlayer":  c.duel.left,
		"rightPlayer": c.duel.right,
	}})
	// Combatants leave the visible waiting list.
	c.publishRosterLocked(ctx)
	c.armCountdownLocked()
	return nil
}

func (c *Coordinator) armCountdownLocked() {
	gen := c.duel.gen
	c.timers.Arm(RoleCountdown, time.Second, func() { c.countdownTick(gen) })
}

func (c *Coordinator) countdownTick(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.duel == nil || c.duel.gen != gen {
		return
	}
	c.duel.remaining--
	if c.duel.remaining > 0 {
		c.hub.Publish(Event{Type: EventDuelCountdown, Payload: map[string]any{"seconds": c.duel.remaining}})
		c.armCountdownLocked()
		return
	}
	c.revealTargetLocked()
}

// revealTargetLocked generates the 4-digit target and stamps the reveal time
// that reaction times are measured from.
func (c *Coordinator) revealTargetLocked() {
	c.timers.Cancel(RoleCountdown)
	c.duel.target = duelTargetMin + c.rng.Intn(duelTargetMax-duelTargetMin+1)
	c.duel.revealedAt = c.clock.Now()
	slog.Debug("duel target revealed", slog.Int("target", c.duel.target), slog.String("component", "game"))
	c.hub.Publish(Event{Type: EventDuelTarget, Payload: map[string]any{"number": c.duel.target}})
}

// duelAnswerLocked handles a bare integer while a duel runs. Only an exact
// match from a combatant after the reveal resolves the duel; everything else
// is silently ignored. The resolved flag guards the race between both
// combatants answering correctly in the same poll cycle.
func (c *Coordinator) duelAnswerLocked(ctx context.Context, externalID string, n int) error {
	if c.duel == nil || c.duel.resolved || c.duel.target == 0 {
		return nil
	}
	p, err := c.store.GetByExternalID(ctx, externalID)
	if err != nil || p == nil {
		return err
	}
	var shooter, victim *Combatant
	switch p.ID {
	case c.duel.left.ID:
		shooter, victim = &c.duel.left, &c.duel.right
	case c.duel.right.ID:
		shooter, victim = &c.duel.right, &c.duel.left
	default:
		return nil
	}
	if n != c.duel.target {
		return nil
	}

	c.duel.resolved = true
	victim.Alive = false
	reaction := c.clock.Since(c.duel.revealedAt)
	reactionMs := float64(reaction.Milliseconds())
	if err := c.store.RecordDuelResult(ctx, shooter.ID, victim.ID, reactionMs); err != nil {
		slog.Error("persist duel result failed", slog.Any("err", err), slog.String("component", "game"))
	}
	telemetry.CountDuelResolved(reaction.Seconds())
	slog.Info("duel resolved",
		slog.String("shooter", shooter.Username),
		slog.String("victim", victim.Username),
		slog.Float64("reaction_ms", reactionMs),
		slog.String("component", "game"))
	c.hub.Publish(Event{Type: EventDuelResolved, Payload: map[string]any{
		"shooter":        *shooter,
		"victim":         *victim,
		"reactionTimeMs": reactionMs,
	}})
	c.endGameLocked(c.cfg.ResetDelay)
	return nil
}
