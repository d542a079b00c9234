package feed

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/onnwee/chat-arena/config"
	"github.com/onnwee/chat-arena/db"
	"github.com/onnwee/chat-arena/telemetry"
)

// ErrAlreadySyncing is returned when a sync start arrives while one runs.
var ErrAlreadySyncing = errors.New("already syncing a feed")

// Resolver turns an operator-supplied target (video id or URL) into a live
// chat feed id.
type Resolver interface {
	ResolveLiveChat(ctx context.Context, target string) (string, error)
}

// Controller owns the lifecycle of at most one running pump. It resolves the
// target, restores the persisted cursor, and tears the pump down on stop.
type Controller struct {
	cfg      *config.Config
	resolver Resolver
	source   Source
	dispatch Dispatcher
	database *sql.DB
	clock    clockwork.Clock
	parent   context.Context

	mu      sync.Mutex
	running bool
	target  string
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewController(parent context.Context, cfg *config.Config, resolver Resolver, source Source, dispatch Dispatcher, database *sql.DB, clock clockwork.Clock) *Controller {
	return &Controller{
		cfg:      cfg,
		resolver: resolver,
		source:   source,
		dispatch: dispatch,
		database: database,
		clock:    clock,
		parent:   parent,
	}
}

const cursorKeyPrefix = "feed_cursor:"

// Start resolves target and begins polling its live chat. Returns the
// resolver's error verbatim (youtubeapi.ErrInvalidTarget, ErrNoActiveFeed)
// so the caller can map it to a user-visible refusal.
func (c *Controller) Start(ctx context.Context, target string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.resolver == nil {
		return errors.New("feed polling not configured: set YT_API_KEY or YT_ACCESS_TOKEN")
	}
	if c.running {
		return ErrAlreadySyncing
	}

	spanCtx, span := telemetry.StartSpan(ctx, "feed", "resolve-live-chat")
	liveChatID, err := c.resolver.ResolveLiveChat(spanCtx, target)
	if err != nil {
		telemetry.RecordError(span, err)
		span.End()
		return err
	}
	telemetry.SetSpanSuccess(span)
	span.End()

	cursor := ""
	if c.cfg.PersistCursor {
		if v, err := db.GetKV(ctx, c.database, cursorKeyPrefix+liveChatID); err != nil {
			slog.Warn("cursor restore failed", slog.Any("err", err), slog.String("component", "feed"))
		} else {
			cursor = v
		}
	}

	pump := NewPump(c.source, c.dispatch, NewFingerprints(c.cfg.FingerprintCap), c.clock, liveChatID, cursor, c.cfg.PollInterval)
	if c.cfg.PersistCursor {
		key := cursorKeyPrefix + liveChatID
		pump.SetCursorSaver(func(ctx context.Context, cursor string) {
			saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
			defer cancel()
			if err := db.SetKV(saveCtx, c.database, key, cursor); err != nil {
				slog.Debug("cursor persist failed", slog.Any("err", err), slog.String("component", "feed"))
			}
		})
	}

	runCtx, cancel := context.WithCancel(c.parent)
	done := make(chan struct{})
	c.cancel = cancel
	c.done = done
	c.running = true
	c.target = target
	slog.Info("sync started", slog.String("target", target), slog.String("component", "feed"))
	go func() {
		defer close(done)
		pump.Run(runCtx)
		c.mu.Lock()
		c.running = false
		c.target = ""
		c.mu.Unlock()
	}()
	return nil
}

// Stop cancels the running pump, if any, and waits for it to exit.
func (c *Controller) Stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel = nil
	c.done = nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Running reports the sync state and the active target.
func (c *Controller) Running() (bool, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running, c.target
}
