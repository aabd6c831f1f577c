package matchmakingservice

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	dueltypes "github.com/quizwars/duelsvc/app/modules/duel/domain/types"
	dueldb "github.com/quizwars/duelsvc/app/modules/duel/infrastructure/repositories"
)

// fakeClock is a manually-advanced Clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// duelStore backs both the DuelDB subset matchmaking uses and MatchmakingDB,
// with the same conditional-accept semantics as the bun implementation.
type duelStore struct {
	dueldb.DuelDB // satisfies the methods matchmaking never calls

	mu    sync.Mutex
	duels map[uuid.UUID]*dueltypes.Duel

	// AcceptDuelFunc overrides AcceptDuel for race tests.
	AcceptDuelFunc func(ctx context.Context, db bun.IDB, duelID uuid.UUID, opponentID dueltypes.UserID, matchedAt time.Time) (bool, error)
}

func newDuelStore() *duelStore {
	return &duelStore{duels: make(map[uuid.UUID]*dueltypes.Duel)}
}

func (s *duelStore) CreateDuel(_ context.Context, _ bun.IDB, duel *dueltypes.Duel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *duel
	s.duels[duel.ID] = &cp
	return nil
}

func (s *duelStore) GetDuel(_ context.Context, _ bun.IDB, duelID uuid.UUID) (*dueltypes.Duel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	duel, ok := s.duels[duelID]
	if !ok {
		return nil, dueltypes.ErrNotFound
	}
	cp := *duel
	return &cp, nil
}

func (s *duelStore) GetDuelByCode(_ context.Context, _ bun.IDB, code string) (*dueltypes.Duel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, duel := range s.duels {
		if duel.Code == code {
			cp := *duel
			return &cp, nil
		}
	}
	return nil, dueltypes.ErrNotFound
}

func (s *duelStore) FindOpenTicketExcluding(_ context.Context, _ bun.IDB, userID dueltypes.UserID, cutoff time.Time) (*dueltypes.Duel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var open []*dueltypes.Duel
	for _, duel := range s.duels {
		if duel.Status != dueltypes.StatusWaiting || duel.OpponentID != nil {
			continue
		}
		if duel.InitiatorID == userID || !duel.Settings.IsMatchmaking() {
			continue
		}
		if !duel.CreatedAt.After(cutoff) {
			continue
		}
		open = append(open, duel)
	}
	if len(open) == 0 {
		return nil, nil
	}
	sort.Slice(open, func(i, j int) bool { return open[i].CreatedAt.Before(open[j].CreatedAt) })
	cp := *open[0]
	return &cp, nil
}

func (s *duelStore) AcceptDuel(ctx context.Context, db bun.IDB, duelID uuid.UUID, opponentID dueltypes.UserID, matchedAt time.Time) (bool, error) {
	if s.AcceptDuelFunc != nil {
		return s.AcceptDuelFunc(ctx, db, duelID, opponentID, matchedAt)
	}
	return s.acceptDuel(duelID, opponentID, matchedAt)
}

func (s *duelStore) acceptDuel(duelID uuid.UUID, opponentID dueltypes.UserID, matchedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	duel, ok := s.duels[duelID]
	if !ok || duel.Status != dueltypes.StatusWaiting || duel.OpponentID != nil {
		return false, nil
	}
	duel.Status = dueltypes.StatusMatched
	duel.OpponentID = &opponentID
	duel.MatchedAt = &matchedAt
	duel.Settings = dueltypes.Settings{}
	return true, nil
}

func (s *duelStore) ExpireStaleTickets(_ context.Context, _ bun.IDB, cutoff time.Time) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var expired []uuid.UUID
	for _, duel := range s.duels {
		if duel.Status != dueltypes.StatusWaiting || duel.OpponentID != nil {
			continue
		}
		if !duel.Settings.IsMatchmaking() || duel.CreatedAt.After(cutoff) {
			continue
		}
		duel.Status = dueltypes.StatusCancelled
		expired = append(expired, duel.ID)
	}
	return expired, nil
}

// fakeBus records published topics.
type fakeBus struct {
	mu     sync.Mutex
	topics []string
}

func (f *fakeBus) Publish(_ context.Context, topic string, _ uuid.UUID, _ interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.topics = append(f.topics, topic)
	return nil
}

func (f *fakeBus) Subscribe(context.Context, string) (<-chan *message.Message, error) {
	return nil, nil
}

func (f *fakeBus) Close() error { return nil }

func (f *fakeBus) published(topic string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, t := range f.topics {
		if t == topic {
			n++
		}
	}
	return n
}

// recordingMetrics counts matchmaking results.
type recordingMetrics struct {
	mu      sync.Mutex
	results map[string]int
	expired int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{results: make(map[string]int)}
}

func (m *recordingMetrics) RecordMatchmaking(_ context.Context, result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[result]++
}

func (m *recordingMetrics) RecordTicketsExpired(_ context.Context, count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expired += count
}

type testEnv struct {
	svc     *MatchmakingService
	store   *duelStore
	clock   *fakeClock
	bus     *fakeBus
	metrics *recordingMetrics
}

func newTestEnv() *testEnv {
	store := newDuelStore()
	clock := newFakeClock()
	bus := &fakeBus{}
	metrics := newRecordingMetrics()
	svc := &MatchmakingService{
		duels:   store,
		tickets: store,
		clock:   clock,
		bus:     bus,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		metrics: metrics,
		cfg:     DefaultConfig(),
	}
	return &testEnv{svc: svc, store: store, clock: clock, bus: bus, metrics: metrics}
}
