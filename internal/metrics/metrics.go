package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	dueltypes "github.com/quizwars/duelsvc/app/modules/duel/domain/types"
)

// DuelMetrics exposes prometheus counters for the duel engine and the
// matchmaking registry. It satisfies both modules' Metrics interfaces.
type DuelMetrics struct {
	answers        *prometheus.CounterVec
	roundsClosed   prometheus.Counter
	duelsFinished  *prometheus.CounterVec
	duelsCancelled prometheus.Counter
	roundsSwept    prometheus.Counter
	matchmaking    *prometheus.CounterVec
	ticketsExpired prometheus.Counter
}

// New registers and returns the duel metrics on the given registerer.
func New(reg prometheus.Registerer) *DuelMetrics {
	factory := promauto.With(reg)
	return &DuelMetrics{
		answers: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "duelsvc_answers_total",
			Help: "Finalized outcome slots by reason.",
		}, []string{"reason"}),
		roundsClosed: factory.NewCounter(prometheus.CounterOpts{
			Name: "duelsvc_rounds_closed_total",
			Help: "Rounds closed.",
		}),
		duelsFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "duelsvc_duels_finished_total",
			Help: "Duels finalized by outcome.",
		}, []string{"outcome"}),
		duelsCancelled: factory.NewCounter(prometheus.CounterOpts{
			Name: "duelsvc_duels_cancelled_total",
			Help: "Duels cancelled administratively.",
		}),
		roundsSwept: factory.NewCounter(prometheus.CounterOpts{
			Name: "duelsvc_sweep_rounds_closed_total",
			Help: "Rounds closed by the timeout sweep.",
		}),
		matchmaking: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "duelsvc_matchmaking_total",
			Help: "Matchmaking attempts by result.",
		}, []string{"result"}),
		ticketsExpired: factory.NewCounter(prometheus.CounterOpts{
			Name: "duelsvc_tickets_expired_total",
			Help: "Matchmaking tickets expired past their TTL.",
		}),
	}
}

func (m *DuelMetrics) RecordAnswer(_ context.Context, reason dueltypes.OutcomeReason) {
	m.answers.WithLabelValues(string(reason)).Inc()
}

func (m *DuelMetrics) RecordRoundClosed(_ context.Context) {
	m.roundsClosed.Inc()
}

func (m *DuelMetrics) RecordDuelFinished(_ context.Context, draw bool) {
	outcome := "win"
	if draw {
		outcome = "draw"
	}
	m.duelsFinished.WithLabelValues(outcome).Inc()
}

func (m *DuelMetrics) RecordDuelsCancelled(_ context.Context, count int) {
	m.duelsCancelled.Add(float64(count))
}

func (m *DuelMetrics) RecordSweptRounds(_ context.Context, count int) {
	m.roundsSwept.Add(float64(count))
}

func (m *DuelMetrics) RecordMatchmaking(_ context.Context, result string) {
	m.matchmaking.WithLabelValues(result).Inc()
}

func (m *DuelMetrics) RecordTicketsExpired(_ context.Context, count int) {
	m.ticketsExpired.Add(float64(count))
}
