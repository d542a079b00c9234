package game

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

// memStore is an in-memory RosterStore. Creation order doubles as join order,
// matching the real store's ORDER BY joined_at.
type memStore struct {
	mu    sync.Mutex
	order []string
	byID  map[string]*Participant
}

func newMemStore() *memStore {
	return &memStore{byID: make(map[string]*Participant)}
}

func (s *memStore) GetByExternalID(_ context.Context, externalID string) (*Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.order {
		if s.byID[id].ExternalID == externalID {
			cp := *s.byID[id]
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *memStore) GetByUsername(_ context.Context, username string) (*Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.order {
		if s.byID[id].Username == username {
			cp := *s.byID[id]
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *memStore) Create(_ context.Context, p *Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.byID[p.ID] = &cp
	s.order = append(s.order, p.ID)
	return nil
}

func (s *memStore) UpdateStatus(_ context.Context, id string, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[id]
	if !ok {
		return context.Canceled
	}
	p.Status = status
	return nil
}

func (s *memStore) ListActive(_ context.Context) ([]Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Participant
	for _, id := range s.order {
		if s.byID[id].Status == StatusActive {
			out = append(out, *s.byID[id])
		}
	}
	return out, nil
}

func (s *memStore) RecordDuelResult(_ context.Context, winnerID, loserID string, reactionMs float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, l := s.byID[winnerID], s.byID[loserID]
	if w == nil || l == nil {
		return context.Canceled
	}
	w.AvgReactionMs = (w.AvgReactionMs*float64(w.Wins) + reactionMs) / float64(w.Wins+1)
	w.Wins++
	w.TotalGames++
	w.Status = StatusActive
	l.Losses++
	l.TotalGames++
	l.Status = StatusActive
	return nil
}

func (s *memStore) ResetAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.byID {
		p.Status = StatusActive
	}
	return nil
}

func (s *memStore) DeleteAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID = make(map[string]*Participant)
	s.order = nil
	return nil
}

func (s *memStore) status(id string) Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byID[id].Status
}

func testSettings() Settings {
	return Settings{
		HolderExpiry:      2 * time.Second,
		DuelCountdown:     1 * time.Second,
		ResetDelay:        5 * time.Second,
		AutoStartDebounce: time.Hour, // out of the way unless a test wants it
		AutoStart:         PolicyAuto,
	}
}

type fixture struct {
	store  *memStore
	hub    *Hub
	clock  *clockwork.FakeClock
	coord  *Coordinator
	events <-chan Event
}

func newFixture(t *testing.T, cfg Settings) *fixture {
	t.Helper()
	store := newMemStore()
	hub := NewHub()
	clock := clockwork.NewFakeClock()
	coord := NewCoordinator(store, hub, clock, cfg)
	events, cancel := hub.Subscribe()
	t.Cleanup(cancel)
	return &fixture{store: store, hub: hub, clock: clock, coord: coord, events: events}
}

func (f *fixture) join(t *testing.T, externalID, username string) {
	t.Helper()
	if err := f.coord.HandleJoin(context.Background(), externalID, username, ""); err != nil {
		t.Fatalf("join %s: %v", username, err)
	}
}

// waitEvent discards events until one of the wanted type arrives. Timer
// callbacks run on their own goroutines, so a real-time deadline bounds the
// wait.
func (f *fixture) waitEvent(t *testing.T, wantType string) Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-f.events:
			if ev.Type == wantType {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", wantType)
		}
	}
}

// tick advances the fake clock one second and waits for the resulting event,
// then takes the coordinator lock to guarantee the callback finished before
// the next advance.
func (f *fixture) tick(t *testing.T, wantType string) Event {
	t.Helper()
	f.clock.Advance(time.Second)
	ev := f.waitEvent(t, wantType)
	f.coord.Status()
	return ev
}

func payloadString(t *testing.T, ev Event, key string) string {
	t.Helper()
	m, ok := ev.Payload.(map[string]any)
	if !ok {
		t.Fatalf("event %s payload is %T, want map", ev.Type, ev.Payload)
	}
	v, ok := m[key].(string)
	if !ok {
		t.Fatalf("event %s payload has no string %q", ev.Type, key)
	}
	return v
}

func TestJoinIsIdempotent(t *testing.T) {
	f := newFixture(t, testSettings())
	f.join(t, "ext-1", "alice")
	f.join(t, "ext-1", "alice")
	f.join(t, "ext-1", "alice")

	actives, err := f.coord.ListActive(context.Background())
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(actives) != 1 {
		t.Fatalf("got %d participants, want 1", len(actives))
	}
	if actives[0].Ordinal != 1 {
		t.Errorf("ordinal = %d, want 1", actives[0].Ordinal)
	}
}

func TestJoinReactivatesEliminated(t *testing.T) {
	f := newFixture(t, testSettings())
	f.join(t, "ext-1", "alice")
	p, _ := f.store.GetByExternalID(context.Background(), "ext-1")
	if err := f.store.UpdateStatus(context.Background(), p.ID, StatusEliminated); err != nil {
		t.Fatal(err)
	}

	f.join(t, "ext-1", "alice")
	if got := f.store.status(p.ID); got != StatusActive {
		t.Errorf("status = %s, want active", got)
	}
}

func TestStartRefusals(t *testing.T) {
	f := newFixture(t, testSettings())
	ctx := context.Background()

	if err := f.coord.StartDuel(ctx); err != ErrNotEnoughPlayers {
		t.Errorf("empty lobby duel: got %v, want ErrNotEnoughPlayers", err)
	}
	f.join(t, "ext-1", "alice")
	if err := f.coord.StartElimination(ctx); err != ErrNotEnoughPlayers {
		t.Errorf("one player elimination: got %v, want ErrNotEnoughPlayers", err)
	}

	f.join(t, "ext-2", "bob")
	if err := f.coord.StartElimination(ctx); err != nil {
		t.Fatalf("StartElimination: %v", err)
	}
	if err := f.coord.StartDuel(ctx); err != ErrGameActive {
		t.Errorf("duel during elimination: got %v, want ErrGameActive", err)
	}
	if err := f.coord.StartElimination(ctx); err != ErrGameActive {
		t.Errorf("second elimination: got %v, want ErrGameActive", err)
	}
}

func TestEliminationPassAndExpiry(t *testing.T) {
	f := newFixture(t, testSettings())
	ctx := context.Background()
	f.join(t, "ext-1", "alice")
	f.join(t, "ext-2", "bob")
	f.join(t, "ext-3", "carol")

	if err := f.coord.StartElimination(ctx); err != nil {
		t.Fatalf("StartElimination: %v", err)
	}
	assigned := f.waitEvent(t, EventTokenAssigned)
	holderID := payloadString(t, assigned, "holderId")

	extByID := map[string]string{}
	ordByID := map[string]int{}
	actives, _ := f.coord.ListActive(ctx)
	for _, p := range actives {
		extByID[p.ID] = p.ExternalID
		ordByID[p.ID] = p.Ordinal
	}

	// A non-holder cannot pass.
	var other string
	for id := range extByID {
		if id != holderID {
			other = id
			break
		}
	}
	if err := f.coord.HandleNumber(ctx, extByID[other], ordByID[holderID]); err != ErrNotHolder {
		t.Errorf("non-holder pass: got %v, want ErrNotHolder", err)
	}

	// The holder cannot target itself or an out-of-range ordinal.
	if err := f.coord.HandleNumber(ctx, extByID[holderID], ordByID[holderID]); err != ErrInvalidTarget {
		t.Errorf("self pass: got %v, want ErrInvalidTarget", err)
	}
	if err := f.coord.HandleNumber(ctx, extByID[holderID], 99); err != ErrInvalidTarget {
		t.Errorf("out-of-range pass: got %v, want ErrInvalidTarget", err)
	}

	// Valid pass reassigns and resets the countdown.
	if err := f.coord.HandleNumber(ctx, extByID[holderID], ordByID[other]); err != nil {
		t.Fatalf("valid pass: %v", err)
	}
	assigned = f.waitEvent(t, EventTokenAssigned)
	if got := payloadString(t, assigned, "holderId"); got != other {
		t.Errorf("new holder = %s, want %s", got, other)
	}

	// HolderExpiry is 2s: one tick, then elimination.
	f.tick(t, EventTokenTick)
	ev := f.tick(t, EventEliminated)
	if got := payloadString(t, ev, "participantId"); got != other {
		t.Errorf("eliminated = %s, want %s", got, other)
	}
	if f.store.status(other) != StatusEliminated {
		t.Errorf("store status = %s, want eliminated", f.store.status(other))
	}

	// Two actives remain, so the game continues with a new holder.
	if st := f.coord.Status(); st.ActiveGame != GameElimination {
		t.Errorf("active game = %s, want elimination", st.ActiveGame)
	}
}

func TestEliminationWinnerAndDelayedReset(t *testing.T) {
	f := newFixture(t, testSettings())
	ctx := context.Background()
	f.join(t, "ext-1", "alice")
	f.join(t, "ext-2", "bob")

	if err := f.coord.StartElimination(ctx); err != nil {
		t.Fatalf("StartElimination: %v", err)
	}

	// Operator eliminates the holder immediately; one active remains.
	if err := f.coord.EliminateHolder(ctx); err != nil {
		t.Fatalf("EliminateHolder: %v", err)
	}
	f.waitEvent(t, EventEliminationWinner)

	if st := f.coord.Status(); st.ActiveGame != GameNone || !st.ResetPending {
		t.Fatalf("status = %+v, want idle with reset pending", st)
	}
	// Starts stay refused until the delayed reset fires.
	if err := f.coord.StartDuel(ctx); err != ErrGameActive {
		t.Errorf("start during reset window: got %v, want ErrGameActive", err)
	}

	f.clock.Advance(5 * time.Second)
	f.waitEvent(t, EventGameReset)
	f.coord.Status()

	actives, _ := f.coord.ListActive(ctx)
	if len(actives) != 2 {
		t.Fatalf("after reset got %d actives, want 2", len(actives))
	}
	if err := f.coord.StartDuel(ctx); err != nil {
		t.Errorf("start after reset: %v", err)
	}
}

func TestEliminateHolderWithoutSession(t *testing.T) {
	f := newFixture(t, testSettings())
	if err := f.coord.EliminateHolder(context.Background()); err != ErrNoSession {
		t.Errorf("got %v, want ErrNoSession", err)
	}
}

func TestEliminationZeroRemainingResetsImmediately(t *testing.T) {
	f := newFixture(t, testSettings())
	ctx := context.Background()
	f.join(t, "ext-1", "alice")
	f.join(t, "ext-2", "bob")

	if err := f.coord.StartElimination(ctx); err != nil {
		t.Fatalf("StartElimination: %v", err)
	}
	ev := f.waitEvent(t, EventTokenAssigned)
	holderID := payloadString(t, ev, "holderId")

	// Knock the other player out behind the coordinator's back so the
	// holder's elimination empties the lobby.
	actives, err := f.coord.ListActive(ctx)
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	for _, p := range actives {
		if p.ID == holderID {
			continue
		}
		if err := f.store.UpdateStatus(ctx, p.ID, StatusEliminated); err != nil {
			t.Fatal(err)
		}
	}

	// No clock advance: the empty-lobby reset must happen inline.
	if err := f.coord.EliminateHolder(ctx); err != nil {
		t.Fatalf("EliminateHolder: %v", err)
	}
	f.waitEvent(t, EventGameReset)

	st := f.coord.Status()
	if st.ActiveGame != GameNone || st.ResetPending {
		t.Errorf("status = %+v, want idle with no pending reset", st)
	}
	if got := f.store.status(holderID); got != StatusActive {
		t.Errorf("holder status after reset = %s, want active", got)
	}
}

func TestStaleTickAfterPassIsIgnored(t *testing.T) {
	f := newFixture(t, testSettings())
	ctx := context.Background()
	f.join(t, "ext-1", "alice")
	f.join(t, "ext-2", "bob")
	f.join(t, "ext-3", "carol")

	if err := f.coord.StartElimination(ctx); err != nil {
		t.Fatalf("StartElimination: %v", err)
	}
	ev := f.waitEvent(t, EventTokenAssigned)
	holderID := payloadString(t, ev, "holderId")

	f.coord.mu.Lock()
	gen, staleTick := f.coord.elim.gen, f.coord.elim.tickGen
	f.coord.mu.Unlock()

	actives, err := f.coord.ListActive(ctx)
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	var holderExt string
	var targetOrdinal int
	for _, p := range actives {
		if p.ID == holderID {
			holderExt = p.ExternalID
		} else if targetOrdinal == 0 {
			targetOrdinal = p.Ordinal
		}
	}
	if err := f.coord.HandleNumber(ctx, holderExt, targetOrdinal); err != nil {
		t.Fatalf("pass: %v", err)
	}
	f.waitEvent(t, EventTokenAssigned)

	// A tick scheduled before the pass fired concurrently with it; it must
	// not touch the freshly reset countdown.
	f.coord.holderTick(gen, staleTick)
	want := int(testSettings().HolderExpiry / time.Second)
	if st := f.coord.Status(); st.Remaining != want {
		t.Errorf("remaining = %d after stale tick, want %d", st.Remaining, want)
	}
}

func TestDuelFullFlow(t *testing.T) {
	f := newFixture(t, testSettings())
	ctx := context.Background()
	f.join(t, "ext-1", "alice")
	f.join(t, "ext-2", "bob")

	if err := f.coord.StartDuel(ctx); err != nil {
		t.Fatalf("StartDuel: %v", err)
	}
	f.waitEvent(t, EventDuelStarted)

	// Combatants leave the waiting list for the duration.
	actives, _ := f.coord.ListActive(ctx)
	if len(actives) != 0 {
		t.Fatalf("got %d actives during duel, want 0", len(actives))
	}

	// Countdown is 1s: the first tick reveals the target.
	ev := f.tick(t, EventDuelTarget)
	target, ok := ev.Payload.(map[string]any)["number"].(int)
	if !ok {
		t.Fatalf("target payload: %#v", ev.Payload)
	}
	if target < 1000 || target > 9999 {
		t.Fatalf("target %d out of range", target)
	}

	// Wrong number and a non-combatant's correct number are both ignored.
	if err := f.coord.HandleNumber(ctx, "ext-1", target+1); err != nil {
		t.Fatalf("wrong answer: %v", err)
	}
	if err := f.coord.HandleNumber(ctx, "ext-nobody", target); err != nil {
		t.Fatalf("stranger answer: %v", err)
	}
	if st := f.coord.Status(); st.ActiveGame != GameDuel {
		t.Fatalf("duel resolved early")
	}

	// A correct answer 250ms after reveal resolves it.
	f.clock.Advance(250 * time.Millisecond)
	if err := f.coord.HandleNumber(ctx, "ext-2", target); err != nil {
		t.Fatalf("correct answer: %v", err)
	}
	resolved := f.waitEvent(t, EventDuelResolved)
	ms, ok := resolved.Payload.(map[string]any)["reactionTimeMs"].(float64)
	if !ok || ms != 250 {
		t.Errorf("reactionTimeMs = %v, want 250", resolved.Payload.(map[string]any)["reactionTimeMs"])
	}

	// The second correct answer after resolution is a no-op.
	if err := f.coord.HandleNumber(ctx, "ext-1", target); err != nil {
		t.Fatalf("late answer: %v", err)
	}

	// Stats persisted for winner and loser.
	winner, _ := f.store.GetByExternalID(ctx, "ext-2")
	loser, _ := f.store.GetByExternalID(ctx, "ext-1")
	if winner.Wins != 1 || winner.TotalGames != 1 || winner.AvgReactionMs != 250 {
		t.Errorf("winner stats = %+v", winner)
	}
	if loser.Losses != 1 || loser.TotalGames != 1 {
		t.Errorf("loser stats = %+v", loser)
	}

	f.clock.Advance(5 * time.Second)
	f.waitEvent(t, EventGameReset)
}

func TestDuelDisconnectCancels(t *testing.T) {
	f := newFixture(t, testSettings())
	ctx := context.Background()
	f.join(t, "ext-1", "alice")
	f.join(t, "ext-2", "bob")

	if err := f.coord.StartDuel(ctx); err != nil {
		t.Fatalf("StartDuel: %v", err)
	}
	f.waitEvent(t, EventDuelStarted)

	// A bystander disconnect changes nothing.
	if err := f.coord.HandleDisconnect(ctx, "ext-zzz"); err != nil {
		t.Fatalf("bystander disconnect: %v", err)
	}
	if st := f.coord.Status(); st.ActiveGame != GameDuel {
		t.Fatal("duel cancelled by bystander disconnect")
	}

	if err := f.coord.HandleDisconnect(ctx, "ext-1"); err != nil {
		t.Fatalf("combatant disconnect: %v", err)
	}
	f.waitEvent(t, EventGameReset)
	if st := f.coord.Status(); st.ActiveGame != GameNone || st.ResetPending {
		t.Errorf("status after disconnect = %+v, want idle", st)
	}
	actives, _ := f.coord.ListActive(ctx)
	if len(actives) != 2 {
		t.Errorf("got %d actives after cancel, want 2", len(actives))
	}
}

func TestNumberOutsideGameIsNoise(t *testing.T) {
	f := newFixture(t, testSettings())
	f.join(t, "ext-1", "alice")
	if err := f.coord.HandleNumber(context.Background(), "ext-1", 7); err != nil {
		t.Errorf("idle number: %v", err)
	}
}

func TestAutoStartPicksGameBySize(t *testing.T) {
	cfg := testSettings()
	cfg.AutoStartDebounce = 2 * time.Second

	// Two actives -> duel.
	f := newFixture(t, cfg)
	f.join(t, "ext-1", "alice")
	f.join(t, "ext-2", "bob")
	f.clock.Advance(2 * time.Second)
	f.waitEvent(t, EventDuelStarted)

	// Three actives -> elimination.
	f2 := newFixture(t, cfg)
	f2.join(t, "ext-1", "alice")
	f2.join(t, "ext-2", "bob")
	f2.join(t, "ext-3", "carol")
	f2.clock.Advance(2 * time.Second)
	f2.waitEvent(t, EventTokenAssigned)
}

func TestAutoStartYieldsToManualStart(t *testing.T) {
	cfg := testSettings()
	cfg.AutoStartDebounce = 2 * time.Second
	f := newFixture(t, cfg)
	ctx := context.Background()
	f.join(t, "ext-1", "alice")
	f.join(t, "ext-2", "bob")
	f.join(t, "ext-3", "carol")

	// Manual start lands inside the debounce window.
	if err := f.coord.StartDuel(ctx); err != nil {
		t.Fatalf("StartDuel: %v", err)
	}
	f.waitEvent(t, EventDuelStarted)

	// Debounce fires, re-checks preconditions, and declines to double-start.
	f.clock.Advance(2 * time.Second)
	f.coord.Status()
	if st := f.coord.Status(); st.ActiveGame != GameDuel {
		t.Errorf("active game = %s, want duel", st.ActiveGame)
	}
}

func TestAutoStartWaitsForRosterChangeAfterReset(t *testing.T) {
	cfg := testSettings()
	cfg.AutoStartDebounce = 2 * time.Second
	f := newFixture(t, cfg)
	ctx := context.Background()
	f.join(t, "ext-1", "alice")
	f.join(t, "ext-2", "bob")
	f.clock.Advance(2 * time.Second)
	f.waitEvent(t, EventDuelStarted)
	f.coord.Status()

	if err := f.coord.Reset(ctx); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	f.waitEvent(t, EventGameReset)

	// A join from an already-active participant is a pure no-op and must
	// not re-arm the debounce: a full idle lobby stays idle.
	f.join(t, "ext-1", "alice")
	f.clock.Advance(2 * time.Second)
	if st := f.coord.Status(); st.ActiveGame != GameNone {
		t.Errorf("active game = %s, want none until the roster changes", st.ActiveGame)
	}

	// A genuinely new participant arms it again.
	f.join(t, "ext-3", "carol")
	f.clock.Advance(2 * time.Second)
	f.waitEvent(t, EventTokenAssigned)
}

func TestResetAbandonsRunningGame(t *testing.T) {
	f := newFixture(t, testSettings())
	ctx := context.Background()
	f.join(t, "ext-1", "alice")
	f.join(t, "ext-2", "bob")
	f.join(t, "ext-3", "carol")

	if err := f.coord.StartElimination(ctx); err != nil {
		t.Fatalf("StartElimination: %v", err)
	}
	if err := f.coord.Reset(ctx); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	f.waitEvent(t, EventGameReset)

	st := f.coord.Status()
	if st.ActiveGame != GameNone || st.ResetPending {
		t.Errorf("status = %+v, want idle", st)
	}
	// The stale holder timer must not fire an elimination afterwards.
	f.clock.Advance(10 * time.Second)
	f.coord.Status()
	actives, _ := f.coord.ListActive(ctx)
	if len(actives) != 3 {
		t.Errorf("got %d actives after reset, want 3", len(actives))
	}
}

func TestClearRosterWipesEverything(t *testing.T) {
	f := newFixture(t, testSettings())
	ctx := context.Background()
	f.join(t, "ext-1", "alice")
	f.join(t, "ext-2", "bob")

	if err := f.coord.StartElimination(ctx); err != nil {
		t.Fatalf("StartElimination: %v", err)
	}
	if err := f.coord.ClearRoster(ctx); err != nil {
		t.Fatalf("ClearRoster: %v", err)
	}
	actives, _ := f.coord.ListActive(ctx)
	if len(actives) != 0 {
		t.Errorf("got %d actives after wipe, want 0", len(actives))
	}
	if st := f.coord.Status(); st.ActiveGame != GameNone {
		t.Errorf("active game = %s, want none", st.ActiveGame)
	}
}
