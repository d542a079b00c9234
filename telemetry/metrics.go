// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	PollCycles          prometheus.Counter
	PollErrors          prometheus.Counter
	MessagesFetched     prometheus.Counter
	DuplicatesSkipped   prometheus.Counter
	JoinsTotal          prometheus.Counter
	TokenPasses         prometheus.Counter
	Eliminations        prometheus.Counter
	EliminationsStarted prometheus.Counter
	DuelsStarted        prometheus.Counter
	DuelsResolved       prometheus.Counter

	// Histograms (seconds)
	ReactionTime prometheus.Observer

	// Gauges
	ConnectedViewersGauge   prometheus.Gauge
	ActiveParticipantsGauge prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		PollCycles = promauto.NewCounter(prometheus.CounterOpts{Name: "arena_feed_poll_cycles_total", Help: "Number of live chat poll cycles executed"})
		PollErrors = promauto.NewCounter(prometheus.CounterOpts{Name: "arena_feed_poll_errors_total", Help: "Number of poll cycles skipped due to transient feed errors"})
		MessagesFetched = promauto.NewCounter(prometheus.CounterOpts{Name: "arena_feed_messages_total", Help: "Number of chat messages fetched from the feed"})
		DuplicatesSkipped = promauto.NewCounter(prometheus.CounterOpts{Name: "arena_feed_duplicates_total", Help: "Number of messages skipped by the fingerprint cache"})
		JoinsTotal = promauto.NewCounter(prometheus.CounterOpts{Name: "arena_lobby_joins_total", Help: "Number of accepted join commands"})
		TokenPasses = promauto.NewCounter(prometheus.CounterOpts{Name: "arena_elimination_passes_total", Help: "Number of accepted token passes"})
		Eliminations = promauto.NewCounter(prometheus.CounterOpts{Name: "arena_eliminations_total", Help: "Number of participants eliminated"})
		EliminationsStarted = promauto.NewCounter(prometheus.CounterOpts{Name: "arena_elimination_games_total", Help: "Number of elimination games started"})
		DuelsStarted = promauto.NewCounter(prometheus.CounterOpts{Name: "arena_duels_started_total", Help: "Number of duels started"})
		DuelsResolved = promauto.NewCounter(prometheus.CounterOpts{Name: "arena_duels_resolved_total", Help: "Number of duels resolved with a winner"})
		ReactionTime = promauto.NewHistogram(prometheus.HistogramOpts{Name: "arena_duel_reaction_seconds", Help: "Winning duel reaction time in seconds", Buckets: []float64{.25, .5, 1, 2, 3, 5, 8, 13, 21}})
		ConnectedViewersGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "arena_connected_viewers", Help: "Current number of SSE viewers"})
		ActiveParticipantsGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "arena_active_participants", Help: "Current number of active lobby participants"})
	})
}

// Counting helpers are nil-safe so library code can call them before Init
// (tests, tools).

func CountPollCycle() {
	if PollCycles != nil {
		PollCycles.Inc()
	}
}

func CountPollError() {
	if PollErrors != nil {
		PollErrors.Inc()
	}
}

// CountMessages records n messages fetched in one cycle.
func CountMessages(n int) {
	if MessagesFetched != nil {
		MessagesFetched.Add(float64(n))
	}
}

func CountDuplicate() {
	if DuplicatesSkipped != nil {
		DuplicatesSkipped.Inc()
	}
}

func CountJoin() {
	if JoinsTotal != nil {
		JoinsTotal.Inc()
	}
}

func CountTokenPass() {
	if TokenPasses != nil {
		TokenPasses.Inc()
	}
}

func CountElimination() {
	if Eliminations != nil {
		Eliminations.Inc()
	}
}

func CountEliminationStarted() {
	if EliminationsStarted != nil {
		EliminationsStarted.Inc()
	}
}

func CountDuelStarted() {
	if DuelsStarted != nil {
		DuelsStarted.Inc()
	}
}

// CountDuelResolved records a resolution and its winning reaction time.
func CountDuelResolved(reactionSeconds float64) {
	if DuelsResolved != nil {
		DuelsResolved.Inc()
	}
	if ReactionTime != nil {
		ReactionTime.Observe(reactionSeconds)
	}
}

// SetConnectedViewers records the current SSE subscriber count.
func SetConnectedViewers(n int) {
	if ConnectedViewersGauge != nil {
		ConnectedViewersGauge.Set(float64(n))
	}
}

// SetActiveParticipants records the current lobby size.
func SetActiveParticipants(n int) {
	if ActiveParticipantsGauge != nil {
		ActiveParticipantsGauge.Set(float64(n))
	}
}

// Correlation ID helpers ----------------------------------------------------

type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	if s, ok := ctx.Value(corrKey).(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
