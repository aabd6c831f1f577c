package duelservice

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	dueltypes "github.com/quizwars/duelsvc/app/modules/duel/domain/types"
	questiontypes "github.com/quizwars/duelsvc/app/modules/question/domain/types"
)

// fakeClock is a manually-advanced Clock for deterministic timeout races.
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

// memRepo is an in-memory DuelDB with the same conditional-update semantics
// as the bun implementation, so engine tests exercise the real race rules.
type memRepo struct {
	mu      sync.Mutex
	duels   map[uuid.UUID]*dueltypes.Duel
	rounds  map[uuid.UUID]map[int]*dueltypes.Round
	results map[uuid.UUID]*dueltypes.DuelResult

	// Optional per-method overrides for error-path tests.
	FinalizeSlotFunc func(ctx context.Context, db bun.IDB, duelID uuid.UUID, roundNumber int, slot dueltypes.Slot, outcome *dueltypes.ParticipantOutcome) (bool, error)
}

func newMemRepo() *memRepo {
	return &memRepo{
		duels:   make(map[uuid.UUID]*dueltypes.Duel),
		rounds:  make(map[uuid.UUID]map[int]*dueltypes.Round),
		results: make(map[uuid.UUID]*dueltypes.DuelResult),
	}
}

func copyDuel(d *dueltypes.Duel) *dueltypes.Duel {
	cp := *d
	return &cp
}

func copyRound(r *dueltypes.Round) *dueltypes.Round {
	cp := *r
	if r.Initiator != nil {
		o := *r.Initiator
		cp.Initiator = &o
	}
	if r.Opponent != nil {
		o := *r.Opponent
		cp.Opponent = &o
	}
	return &cp
}

func (m *memRepo) CreateDuel(_ context.Context, _ bun.IDB, duel *dueltypes.Duel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.duels[duel.ID] = copyDuel(duel)
	return nil
}

func (m *memRepo) GetDuel(_ context.Context, _ bun.IDB, duelID uuid.UUID) (*dueltypes.Duel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	duel, ok := m.duels[duelID]
	if !ok {
		return nil, dueltypes.ErrNotFound
	}
	return copyDuel(duel), nil
}

func (m *memRepo) GetDuelByCode(_ context.Context, _ bun.IDB, code string) (*dueltypes.Duel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, duel := range m.duels {
		if duel.Code == code {
			return copyDuel(duel), nil
		}
	}
	return nil, dueltypes.ErrNotFound
}

func (m *memRepo) ListActiveDuels(_ context.Context, _ bun.IDB) ([]dueltypes.Duel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var duels []dueltypes.Duel
	for _, duel := range m.duels {
		if duel.IsActive() {
			duels = append(duels, *copyDuel(duel))
		}
	}
	sort.Slice(duels, func(i, j int) bool { return duels[i].CreatedAt.Before(duels[j].CreatedAt) })
	return duels, nil
}

func (m *memRepo) MarkStarted(_ context.Context, _ bun.IDB, duelID uuid.UUID, startedAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	duel, ok := m.duels[duelID]
	if !ok || duel.Status != dueltypes.StatusMatched {
		return false, nil
	}
	duel.Status = dueltypes.StatusInProgress
	duel.StartedAt = &startedAt
	return true, nil
}

func (m *memRepo) MarkFinished(_ context.Context, _ bun.IDB, duelID uuid.UUID, finishedAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	duel, ok := m.duels[duelID]
	if !ok || duel.Status != dueltypes.StatusInProgress {
		return false, nil
	}
	duel.Status = dueltypes.StatusFinished
	duel.FinishedAt = &finishedAt
	return true, nil
}

func (m *memRepo) CancelWaiting(_ context.Context, _ bun.IDB, duelID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	duel, ok := m.duels[duelID]
	if !ok || duel.Status != dueltypes.StatusWaiting || duel.OpponentID != nil {
		return false, nil
	}
	duel.Status = dueltypes.StatusCancelled
	return true, nil
}

func (m *memRepo) CancelActive(_ context.Context, _ bun.IDB, duelID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	duel, ok := m.duels[duelID]
	if !ok || !duel.IsActive() {
		return false, nil
	}
	duel.Status = dueltypes.StatusCancelled
	return true, nil
}

func (m *memRepo) SetCurrentRound(_ context.Context, _ bun.IDB, duelID uuid.UUID, roundNumber int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	duel, ok := m.duels[duelID]
	if !ok {
		return dueltypes.ErrNotFound
	}
	duel.CurrentRound = roundNumber
	return nil
}

func (m *memRepo) CreateRounds(_ context.Context, _ bun.IDB, rounds []dueltypes.Round) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range rounds {
		r := rounds[i]
		if m.rounds[r.DuelID] == nil {
			m.rounds[r.DuelID] = make(map[int]*dueltypes.Round)
		}
		m.rounds[r.DuelID][r.RoundNumber] = copyRound(&r)
	}
	return nil
}

func (m *memRepo) GetRound(_ context.Context, _ bun.IDB, duelID uuid.UUID, roundNumber int) (*dueltypes.Round, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	round, ok := m.rounds[duelID][roundNumber]
	if !ok {
		return nil, dueltypes.ErrNotFound
	}
	return copyRound(round), nil
}

func (m *memRepo) GetRounds(_ context.Context, _ bun.IDB, duelID uuid.UUID) ([]dueltypes.Round, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var rounds []dueltypes.Round
	for _, round := range m.rounds[duelID] {
		rounds = append(rounds, *copyRound(round))
	}
	sort.Slice(rounds, func(i, j int) bool { return rounds[i].RoundNumber < rounds[j].RoundNumber })
	return rounds, nil
}

func (m *memRepo) StampQuestionSent(_ context.Context, _ bun.IDB, duelID uuid.UUID, roundNumber int, sentAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	round, ok := m.rounds[duelID][roundNumber]
	if !ok {
		return dueltypes.ErrNotFound
	}
	if round.QuestionSentAt == nil {
		round.QuestionSentAt = &sentAt
	}
	return nil
}

func (m *memRepo) FinalizeSlot(ctx context.Context, db bun.IDB, duelID uuid.UUID, roundNumber int, slot dueltypes.Slot, outcome *dueltypes.ParticipantOutcome) (bool, error) {
	if m.FinalizeSlotFunc != nil {
		return m.FinalizeSlotFunc(ctx, db, duelID, roundNumber, slot, outcome)
	}
	return m.finalizeSlot(duelID, roundNumber, slot, outcome)
}

func (m *memRepo) finalizeSlot(duelID uuid.UUID, roundNumber int, slot dueltypes.Slot, outcome *dueltypes.ParticipantOutcome) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	round, ok := m.rounds[duelID][roundNumber]
	if !ok {
		return false, dueltypes.ErrNotFound
	}
	if round.ClosedAt != nil || round.Outcome(slot) != nil {
		return false, nil
	}
	o := *outcome
	round.SetOutcome(slot, &o)
	return true, nil
}

func (m *memRepo) CloseRound(_ context.Context, _ bun.IDB, duelID uuid.UUID, roundNumber int, closedAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	round, ok := m.rounds[duelID][roundNumber]
	if !ok {
		return false, dueltypes.ErrNotFound
	}
	if round.ClosedAt != nil || !round.BothFinalized() {
		return false, nil
	}
	round.ClosedAt = &closedAt
	return true, nil
}

func (m *memRepo) ListOverdueOpenRounds(_ context.Context, _ bun.IDB, now time.Time) ([]dueltypes.Round, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var overdue []dueltypes.Round
	for _, rounds := range m.rounds {
		for _, round := range rounds {
			if round.ClosedAt != nil || round.QuestionSentAt == nil || round.TimeLimit <= 0 {
				continue
			}
			if round.QuestionSentAt.Add(time.Duration(round.TimeLimit) * time.Second).Before(now) {
				overdue = append(overdue, *copyRound(round))
			}
		}
	}
	return overdue, nil
}

func (m *memRepo) CreateResult(_ context.Context, _ bun.IDB, result *dueltypes.DuelResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.results[result.DuelID]; exists {
		return fmt.Errorf("duplicate result for duel %s", result.DuelID)
	}
	cp := *result
	m.results[result.DuelID] = &cp
	return nil
}

func (m *memRepo) GetResult(_ context.Context, _ bun.IDB, duelID uuid.UUID) (*dueltypes.DuelResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result, ok := m.results[duelID]
	if !ok {
		return nil, dueltypes.ErrNotFound
	}
	cp := *result
	return &cp, nil
}

// fakeProfiles is an in-memory ProfileStore tracking applied outcomes.
type fakeProfiles struct {
	mu      sync.Mutex
	ratings map[dueltypes.UserID]int
	records map[dueltypes.UserID][]string
	applied int
}

func newFakeProfiles() *fakeProfiles {
	return &fakeProfiles{
		ratings: make(map[dueltypes.UserID]int),
		records: make(map[dueltypes.UserID][]string),
	}
}

func (f *fakeProfiles) GetRating(_ context.Context, _ bun.IDB, userID dueltypes.UserID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ratings[userID], nil
}

func (f *fakeProfiles) ApplyDuelOutcome(_ context.Context, _ bun.IDB, userID dueltypes.UserID, record string, ratingDelta int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rating := f.ratings[userID] + ratingDelta
	if rating < 0 {
		rating = 0
	}
	f.ratings[userID] = rating
	f.records[userID] = append(f.records[userID], record)
	f.applied++
	return nil
}

// fakeSelector serves a fixed question list.
type fakeSelector struct {
	questions []questiontypes.Question
	err       error
}

func (f *fakeSelector) SelectQuestions(_ context.Context, _ *string, count int) ([]questiontypes.Question, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(f.questions) < count {
		return nil, fmt.Errorf("%w: want %d, have %d", dueltypes.ErrInsufficientContent, count, len(f.questions))
	}
	return f.questions[:count], nil
}

// fakeBus records published events.
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

// noopMetrics satisfies Metrics.
type noopMetrics struct{}

func (noopMetrics) RecordAnswer(context.Context, dueltypes.OutcomeReason) {}
func (noopMetrics) RecordRoundClosed(context.Context)                    {}
func (noopMetrics) RecordDuelFinished(context.Context, bool)             {}
func (noopMetrics) RecordSweptRounds(context.Context, int)               {}
func (noopMetrics) RecordDuelsCancelled(context.Context, int)            {}

// testQuestion builds a valid four-choice question whose correct answer id
// is always "a".
func testQuestion() questiontypes.Question {
	return questiontypes.Question{
		ID:   uuid.New(),
		Text: gofakeit.Question(),
		Choices: []questiontypes.Choice{
			{ID: "a", Text: gofakeit.Word(), Correct: true},
			{ID: "b", Text: gofakeit.Word()},
			{ID: "c", Text: gofakeit.Word()},
			{ID: "d", Text: gofakeit.Word()},
		},
	}
}

func testQuestions(n int) []questiontypes.Question {
	qs := make([]questiontypes.Question, n)
	for i := range qs {
		qs[i] = testQuestion()
	}
	return qs
}

type testEnv struct {
	svc      *DuelService
	repo     *memRepo
	clock    *fakeClock
	profiles *fakeProfiles
	bus      *fakeBus
}

func newTestEnv(questions int) *testEnv {
	repo := newMemRepo()
	clock := newFakeClock()
	profiles := newFakeProfiles()
	bus := &fakeBus{}
	svc := &DuelService{
		repo:      repo,
		questions: &fakeSelector{questions: testQuestions(questions)},
		profiles:  profiles,
		eventBus:  bus,
		clock:     clock,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		metrics:   noopMetrics{},
		cfg:       DefaultConfig(),
		runInTx: func(ctx context.Context, fn func(ctx context.Context, db bun.IDB) error) error {
			return fn(ctx, nil)
		},
	}
	return &testEnv{svc: svc, repo: repo, clock: clock, profiles: profiles, bus: bus}
}

// matchedDuel seeds a matched duel between alice and bob.
func (e *testEnv) matchedDuel(roundsToWin int) *dueltypes.Duel {
	opponent := userBob
	now := e.clock.Now()
	duel := &dueltypes.Duel{
		ID:          uuid.New(),
		Code:        "TESTCODE",
		InitiatorID: userAlice,
		OpponentID:  &opponent,
		RoundsToWin: roundsToWin,
		Status:      dueltypes.StatusMatched,
		CreatedAt:   now,
		MatchedAt:   &now,
	}
	_ = e.repo.CreateDuel(context.Background(), nil, duel)
	return duel
}

// startedDuel seeds a matched duel and starts it, so round one is dispatched
// at the clock's current instant.
func (e *testEnv) startedDuel(t *testing.T, roundsToWin int) *dueltypes.Duel {
	t.Helper()
	duel := e.matchedDuel(roundsToWin)
	if _, err := e.svc.StartDuel(context.Background(), duel.ID, userAlice); err != nil {
		t.Fatalf("StartDuel: %v", err)
	}
	started, err := e.repo.GetDuel(context.Background(), nil, duel.ID)
	if err != nil {
		t.Fatalf("GetDuel: %v", err)
	}
	return started
}

const (
	userAlice = dueltypes.UserID("alice")
	userBob   = dueltypes.UserID("bob")
)
