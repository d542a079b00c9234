package game

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/onnwee/chat-arena/telemetry"
)

// HandleJoin admits a participant into the lobby. Idempotent: an existing
// active participant is untouched, an eliminated one is reactivated, and a
// participant currently in a game is never mutated.
func (c *Coordinator) HandleJoin(ctx context.Context, externalID, username, avatarURL string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, err := c.store.GetByExternalID(ctx, externalID)
	if err != nil {
		return err
	}
	switch {
	case p == nil:
		p = &Participant{
			ID:         uuid.NewString(),
			ExternalID: externalID,
			Username:   username,
			AvatarURL:  avatarURL,
			Status:     StatusActive,
			JoinedAt:   c.clock.Now().UTC(),
		}
		if err := c.store.Create(ctx, p); err != nil {
			return err
		}
		slog.Info("participant joined", slog.String("username", username), slog.String("component", "lobby"))
	case p.Status == StatusInGame:
		return nil
	case p.Status != StatusActive:
		if err := c.store.UpdateStatus(ctx, p.ID, StatusActive); err != nil {
			return err
		}
	default:
		// Already active; joining again is a no-op.
		return nil
	}

	telemetry.CountJoin()
	c.publishRosterLocked(ctx)
	c.maybeAutoStartLocked(ctx)
	return nil
}

// ListActive returns the current lobby ordered by join time, with display
// ordinals assigned.
func (c *Coordinator) ListActive(ctx context.Context) ([]Participant, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.listActiveLocked(ctx)
}

// FindByUsername looks a participant up by display name for stats queries.
// Returns nil when no participant has the name.
func (c *Coordinator) FindByUsername(ctx context.Context, username string) (*Participant, error) {
	return c.store.GetByUsername(ctx, username)
}

// maybeAutoStartLocked arms the debounce timer when the lobby could start a
// game. Preconditions are re-checked when the timer fires, which closes the
// race with a manual start landing inside the debounce window.
func (c *Coordinator) maybeAutoStartLocked(ctx context.Context) {
	if c.active != GameNone || c.resetPending || c.autoStartArmed {
		return
	}
	actives, err := c.listActiveLocked(ctx)
	if err != nil || len(actives) < 2 {
		return
	}
	c.autoStartArmed = true
	c.timers.Arm(RoleAutoStart, c.cfg.AutoStartDebounce, c.autoStartFire)
}

func (c *Coordinator) autoStartFire() {
	ctx := context.Background()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.autoStartArmed = false
	if c.active != GameNone || c.resetPending {
		return
	}
	actives, err := c.listActiveLocked(ctx)
	if err != nil || len(actives) < 2 {
		return
	}

	policy := c.cfg.AutoStart
	if policy == PolicyAuto {
		if len(actives) == 2 {
			policy = PolicyDuel
		} else {
			policy = PolicyElimination
		}
	}
	switch policy {
	case PolicyDuel:
		err = c.startDuelLocked(ctx)
	case PolicyElimination:
		err = c.startEliminationLocked(ctx)
	}
	if err != nil {
		slog.Warn("auto-start refused", slog.Any("err", err), slog.String("component", "lobby"))
	}
}
