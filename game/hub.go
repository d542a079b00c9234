package game

import (
	"log/slog"
	"sync"

	"github.com/onnwee/chat-arena/telemetry"
)

// Event names on the broadcast surface. Payloads are JSON-encodable snapshots;
// delivery is at-least-once and viewers render them idempotently.
const (
	EventRosterChanged     = "roster-changed"
	EventTokenAssigned     = "elimination-token-assigned"
	EventTokenTick         = "elimination-token-tick"
	EventEliminated        = "participant-eliminated"
	EventEliminationWinner = "elimination-winner"
	EventDuelStarted       = "duel-started"
	EventDuelCountdown     = "duel-countdown"
	EventDuelTarget        = "duel-target-revealed"
	EventDuelResolved      = "duel-resolved"
	EventGameReset         = "game-reset"
	EventError             = "error"
)

// Event is one state transition pushed to every connected viewer.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

const subscriberBuffer = 32

// Hub fans events out to subscriber channels. Publishing never blocks the
// game control path: a viewer whose buffer is full misses the event and is
// expected to re-render from the next snapshot it receives.
type Hub struct {
	mu   sync.Mutex
	subs map[chan Event]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[chan Event]struct{})}
}

// Subscribe registers a viewer. The returned cancel func must be called when
// the viewer disconnects; it closes the channel.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	n := len(h.subs)
	h.mu.Unlock()
	telemetry.SetConnectedViewers(n)

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			n := len(h.subs)
			h.mu.Unlock()
			close(ch)
			telemetry.SetConnectedViewers(n)
		})
	}
	return ch, cancel
}

// Publish delivers an event to all subscribers, dropping it for any viewer
// that cannot keep up.
func (h *Hub) Publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
			slog.Debug("dropping event for slow viewer", slog.String("event", ev.Type))
		}
	}
}

// Subscribers returns the current viewer count.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
