// Package feed ingests live chat into the game: a fixed-cadence pump that
// fetches pages from the external feed, deduplicates them, and dispatches the
// parsed commands to the coordinator.
package feed

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/onnwee/chat-arena/command"
	"github.com/onnwee/chat-arena/telemetry"
	"github.com/onnwee/chat-arena/youtubeapi"
)

// Source fetches one page of live chat messages since a page token.
type Source interface {
	FetchPage(ctx context.Context, liveChatID, pageToken string) (*youtubeapi.Page, error)
}

// Dispatcher is the slice of the coordinator the pump drives. Errors from the
// game are logged, never propagated back into the feed.
type Dispatcher interface {
	HandleJoin(ctx context.Context, externalID, username, avatarURL string) error
	HandleNumber(ctx context.Context, externalID string, n int) error
	StartDuel(ctx context.Context) error
	StartElimination(ctx context.Context) error
}

// Pump polls one live chat feed. A single in-flight guard ensures two fetch
// cycles never overlap; a cycle arriving while one runs is a no-op. The
// pagination cursor only advances on success, so a failed cycle is retried
// naturally by the next tick.
type Pump struct {
	source     Source
	dispatch   Dispatcher
	prints     *Fingerprints
	clock      clockwork.Clock
	liveChatID string
	cursor     string
	interval   time.Duration
	inFlight   atomic.Bool

	// saveCursor, when set, persists the cursor after each successful cycle
	// (best-effort; a lost cursor only costs replayed messages).
	saveCursor func(ctx context.Context, cursor string)
}

func NewPump(source Source, dispatch Dispatcher, prints *Fingerprints, clock clockwork.Clock, liveChatID, cursor string, interval time.Duration) *Pump {
	return &Pump{
		source:     source,
		dispatch:   dispatch,
		prints:     prints,
		clock:      clock,
		liveChatID: liveChatID,
		cursor:     cursor,
		interval:   interval,
	}
}

// SetCursorSaver installs the persistence hook. Must be called before Run.
func (p *Pump) SetCursorSaver(fn func(ctx context.Context, cursor string)) { p.saveCursor = fn }

// Cursor returns the current pagination cursor.
func (p *Pump) Cursor() string { return p.cursor }

// Run polls until ctx is cancelled, waiting the longer of the configured
// cadence and the feed's suggested interval between cycles.
func (p *Pump) Run(ctx context.Context) {
	slog.Info("feed pump started",
		slog.Duration("interval", p.interval),
		slog.String("component", "feed"))
	for {
		wait := p.interval
		if suggested := p.PollOnce(ctx); suggested > wait {
			wait = suggested
		}
		select {
		case <-ctx.Done():
			slog.Info("feed pump stopped", slog.String("component", "feed"))
			return
		case <-p.clock.After(wait):
		}
	}
}

// PollOnce executes one fetch cycle and returns the feed's suggested wait
// before the next one (zero when it has no opinion). Transient failures log
// and skip the cycle; the cursor is retained for the next tick.
func (p *Pump) PollOnce(ctx context.Context) time.Duration {
	if !p.inFlight.CompareAndSwap(false, true) {
		return 0
	}
	defer p.inFlight.Store(false)

	page, err := p.source.FetchPage(ctx, p.liveChatID, p.cursor)
	if err != nil {
		telemetry.CountPollError()
		slog.Warn("feed fetch failed; skipping cycle", slog.Any("err", err), slog.String("component", "feed"))
		return 0
	}
	telemetry.CountPollCycle()
	telemetry.CountMessages(len(page.Messages))

	for _, m := range page.Messages {
		if p.prints.MarkSeen(m.ID) {
			telemetry.CountDuplicate()
			continue
		}
		p.dispatchMessage(ctx, m)
	}

	p.cursor = page.NextPageToken
	if p.saveCursor != nil {
		p.saveCursor(ctx, p.cursor)
	}
	return page.PollAfter
}

func (p *Pump) dispatchMessage(ctx context.Context, m youtubeapi.ChatMessage) {
	cmd := command.Parse(m.Text)
	var err error
	switch cmd.Kind {
	case command.Join:
		err = p.dispatch.HandleJoin(ctx, m.AuthorID, m.AuthorName, m.AvatarURL)
	case command.Number:
		err = p.dispatch.HandleNumber(ctx, m.AuthorID, cmd.Value)
	case command.StartDuel:
		err = p.dispatch.StartDuel(ctx)
	case command.StartElimination:
		err = p.dispatch.StartElimination(ctx)
	case command.Noise:
		return
	}
	if err != nil {
		// Refusals from chat (not the holder, game already running) are
		// expected noise, not failures.
		slog.Debug("command refused",
			slog.String("kind", cmd.Kind.String()),
			slog.String("author", m.AuthorName),
			slog.Any("err", err),
			slog.String("component", "feed"))
	}
}
