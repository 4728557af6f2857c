package services

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/bracketline/tournament-engine/cache"
	"github.com/bracketline/tournament-engine/events"
	"github.com/bracketline/tournament-engine/models"
	"github.com/bracketline/tournament-engine/repositories"
)

// The fakes below emulate the Postgres repositories over maps. They copy
// on read and write so mutations only stick through repository calls,
// the way a real row round-trip behaves. The *sql.DB handed to services
// only serves transaction bookkeeping; sqlmock absorbs Begin/Commit.

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newServiceDB(t *testing.T) *sql.DB {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	mock.MatchExpectationsInOrder(false)
	for i := 0; i < 64; i++ {
		mock.ExpectBegin()
		mock.ExpectCommit()
		mock.ExpectRollback()
	}
	t.Cleanup(func() { db.Close() })
	return db
}

type fakeTournamentRepo struct {
	mu    sync.Mutex
	seq   int
	items map[int]models.Tournament
}

func newFakeTournamentRepo() *fakeTournamentRepo {
	return &fakeTournamentRepo{items: make(map[int]models.Tournament)}
}

func (r *fakeTournamentRepo) Create(_ context.Context, t *models.Tournament) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.items {
		if existing.Name == t.Name {
			return repositories.ErrTournamentNameConflict
		}
	}
	r.seq++
	t.ID = r.seq
	t.CreatedAt = time.Now()
	r.items[t.ID] = *t
	return nil
}

func (r *fakeTournamentRepo) GetByID(_ context.Context, _ repositories.SQLExecutor, id int) (*models.Tournament, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.items[id]
	if !ok {
		return nil, repositories.ErrTournamentNotFound
	}
	out := t
	return &out, nil
}

func (r *fakeTournamentRepo) GetByIDForUpdate(ctx context.Context, exec repositories.SQLExecutor, id int) (*models.Tournament, error) {
	return r.GetByID(ctx, exec, id)
}

func (r *fakeTournamentRepo) List(_ context.Context, _ repositories.ListTournamentsFilter) ([]models.Tournament, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Tournament, 0, len(r.items))
	for _, t := range r.items {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeTournamentRepo) Update(_ context.Context, t *models.Tournament) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[t.ID]; !ok {
		return repositories.ErrTournamentNotFound
	}
	r.items[t.ID] = *t
	return nil
}

func (r *fakeTournamentRepo) UpdateStatus(_ context.Context, _ repositories.SQLExecutor, id int, status models.TournamentStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.items[id]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	t.Status = status
	r.items[id] = t
	return nil
}

func (r *fakeTournamentRepo) SetEndAt(_ context.Context, _ repositories.SQLExecutor, id int, endAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.items[id]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	t.EndAt = &endAt
	r.items[id] = t
	return nil
}

func (r *fakeTournamentRepo) Delete(_ context.Context, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[id]; !ok {
		return repositories.ErrTournamentNotFound
	}
	delete(r.items, id)
	return nil
}

func (r *fakeTournamentRepo) ListDueForTransition(_ context.Context, _ repositories.SQLExecutor, now time.Time) ([]*models.Tournament, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Tournament
	for _, t := range r.items {
		due := (t.Status == models.StatusDraft && !t.RegOpensAt.After(now)) ||
			(t.Status == models.StatusRegistrationOpen && !t.RegClosesAt.After(now)) ||
			(t.Status == models.StatusRegistrationClosed && !t.StartAt.After(now))
		if due {
			item := t
			out = append(out, &item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type fakeParticipantRepo struct {
	mu    sync.Mutex
	seq   int
	items map[int]models.Participant
}

func newFakeParticipantRepo() *fakeParticipantRepo {
	return &fakeParticipantRepo{items: make(map[int]models.Participant)}
}

func (r *fakeParticipantRepo) Create(_ context.Context, _ repositories.SQLExecutor, p *models.Participant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.items {
		if existing.TournamentID == p.TournamentID && existing.PlayerID == p.PlayerID {
			return repositories.ErrParticipantAlreadyRegistered
		}
	}
	r.seq++
	p.ID = r.seq
	p.CreatedAt = time.Now()
	r.items[p.ID] = *p
	return nil
}

func (r *fakeParticipantRepo) GetByID(_ context.Context, _ repositories.SQLExecutor, id int) (*models.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.items[id]
	if !ok {
		return nil, repositories.ErrParticipantNotFound
	}
	out := p
	return &out, nil
}

func (r *fakeParticipantRepo) ListByTournament(_ context.Context, _ repositories.SQLExecutor, tournamentID int) ([]models.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Participant
	for _, p := range r.items {
		if p.TournamentID == tournamentID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Seed != out[j].Seed {
			return out[i].Seed < out[j].Seed
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *fakeParticipantRepo) CountByTournament(ctx context.Context, exec repositories.SQLExecutor, tournamentID int) (int, error) {
	list, err := r.ListByTournament(ctx, exec, tournamentID)
	return len(list), err
}

func (r *fakeParticipantRepo) update(id int, fn func(*models.Participant)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.items[id]
	if !ok {
		return repositories.ErrParticipantNotFound
	}
	fn(&p)
	r.items[id] = p
	return nil
}

func (r *fakeParticipantRepo) UpdateSeed(_ context.Context, _ repositories.SQLExecutor, id, seed int) error {
	return r.update(id, func(p *models.Participant) { p.Seed = seed })
}

func (r *fakeParticipantRepo) UpdateStatus(_ context.Context, _ repositories.SQLExecutor, id int, status models.ParticipantStatus) error {
	return r.update(id, func(p *models.Participant) { p.Status = status })
}

func (r *fakeParticipantRepo) UpdateRecord(_ context.Context, _ repositories.SQLExecutor, in *models.Participant) error {
	return r.update(in.ID, func(p *models.Participant) {
		p.Wins, p.Losses, p.Draws, p.Points = in.Wins, in.Losses, in.Draws, in.Points
	})
}

func (r *fakeParticipantRepo) UpdateRank(_ context.Context, _ repositories.SQLExecutor, id int, rank *int) error {
	return r.update(id, func(p *models.Participant) { p.CurrentRank = rank })
}

func (r *fakeParticipantRepo) Delete(_ context.Context, _ repositories.SQLExecutor, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[id]; !ok {
		return repositories.ErrParticipantNotFound
	}
	delete(r.items, id)
	return nil
}

type fakeMatchRepo struct {
	mu    sync.Mutex
	seq   int
	items map[int]models.Match
}

func newFakeMatchRepo() *fakeMatchRepo {
	return &fakeMatchRepo{items: make(map[int]models.Match)}
}

func (r *fakeMatchRepo) Create(_ context.Context, _ repositories.SQLExecutor, m *models.Match) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	m.ID = r.seq
	m.CreatedAt = time.Now()
	r.items[m.ID] = *m
	return nil
}

func (r *fakeMatchRepo) GetByID(_ context.Context, _ repositories.SQLExecutor, id int) (*models.Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.items[id]
	if !ok {
		return nil, repositories.ErrMatchNotFound
	}
	out := m
	return &out, nil
}

func (r *fakeMatchRepo) list(filter func(models.Match) bool) []models.Match {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Match
	for _, m := range r.items {
		if filter(m) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Round != out[j].Round {
			return out[i].Round < out[j].Round
		}
		return out[i].MatchNumber < out[j].MatchNumber
	})
	return out
}

func (r *fakeMatchRepo) ListByTournament(_ context.Context, _ repositories.SQLExecutor, tournamentID int) ([]models.Match, error) {
	return r.list(func(m models.Match) bool { return m.TournamentID == tournamentID }), nil
}

func (r *fakeMatchRepo) ListByRound(_ context.Context, _ repositories.SQLExecutor, tournamentID, round int) ([]models.Match, error) {
	return r.list(func(m models.Match) bool { return m.TournamentID == tournamentID && m.Round == round }), nil
}

func (r *fakeMatchRepo) ListByStatus(_ context.Context, _ repositories.SQLExecutor, status models.MatchStatus) ([]models.Match, error) {
	return r.list(func(m models.Match) bool { return m.Status == status }), nil
}

func (r *fakeMatchRepo) update(id int, fn func(*models.Match)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.items[id]
	if !ok {
		return repositories.ErrMatchNotFound
	}
	fn(&m)
	r.items[id] = m
	return nil
}

func (r *fakeMatchRepo) UpdateLinks(_ context.Context, _ repositories.SQLExecutor, id int, nextMatchID, loserNextMatchID *int) error {
	return r.update(id, func(m *models.Match) {
		m.NextMatchID = nextMatchID
		m.LoserNextMatchID = loserNextMatchID
	})
}

func (r *fakeMatchRepo) UpdateParticipants(_ context.Context, _ repositories.SQLExecutor, id int, homeID, awayID *int) error {
	return r.update(id, func(m *models.Match) {
		m.HomeParticipantID = homeID
		m.AwayParticipantID = awayID
	})
}

func (r *fakeMatchRepo) UpdateSchedule(_ context.Context, _ repositories.SQLExecutor, id int, scheduledAt *time.Time) error {
	return r.update(id, func(m *models.Match) { m.ScheduledAt = scheduledAt })
}

func (r *fakeMatchRepo) UpdateStatus(_ context.Context, _ repositories.SQLExecutor, id int, status models.MatchStatus, startedAt *time.Time) error {
	return r.update(id, func(m *models.Match) {
		m.Status = status
		if startedAt != nil {
			m.StartedAt = startedAt
		}
	})
}

func (r *fakeMatchRepo) RecordResult(_ context.Context, _ repositories.SQLExecutor, in *models.Match) error {
	return r.update(in.ID, func(m *models.Match) {
		m.HomeScore, m.AwayScore = in.HomeScore, in.AwayScore
		m.WinnerID, m.IsDraw = in.WinnerID, in.IsDraw
		m.Status, m.CompletedAt = in.Status, in.CompletedAt
	})
}

func (r *fakeMatchRepo) DeleteByTournament(_ context.Context, _ repositories.SQLExecutor, tournamentID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, m := range r.items {
		if m.TournamentID == tournamentID {
			delete(r.items, id)
		}
	}
	return nil
}

type fakePrizeRepo struct {
	mu    sync.Mutex
	items map[int][]models.PrizeDistribution
}

func newFakePrizeRepo() *fakePrizeRepo {
	return &fakePrizeRepo{items: make(map[int][]models.PrizeDistribution)}
}

func (r *fakePrizeRepo) CreateAll(_ context.Context, _ repositories.SQLExecutor, tournamentID int, payouts []models.PrizeDistribution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[tournamentID]; ok {
		return repositories.ErrPrizesAlreadyDistributed
	}
	r.items[tournamentID] = append([]models.PrizeDistribution(nil), payouts...)
	return nil
}

func (r *fakePrizeRepo) ListByTournament(_ context.Context, _ repositories.SQLExecutor, tournamentID int) ([]models.PrizeDistribution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.PrizeDistribution(nil), r.items[tournamentID]...), nil
}

func (r *fakePrizeRepo) ExistsForTournament(_ context.Context, _ repositories.SQLExecutor, tournamentID int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.items[tournamentID]
	return ok, nil
}

type recordingSink struct {
	mu   sync.Mutex
	seen []events.Event
}

func (s *recordingSink) Publish(_ context.Context, event events.Event) {
	s.mu.Lock()
	s.seen = append(s.seen, event)
	s.mu.Unlock()
}

func (s *recordingSink) types() []events.Type {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]events.Type, len(s.seen))
	for i, e := range s.seen {
		out[i] = e.Type
	}
	return out
}

func (s *recordingSink) has(eventType events.Type) bool {
	for _, t := range s.types() {
		if t == eventType {
			return true
		}
	}
	return false
}

type fixture struct {
	tournaments   *fakeTournamentRepo
	participants  *fakeParticipantRepo
	matches       *fakeMatchRepo
	prizes        *fakePrizeRepo
	sink          *recordingSink
	bracketSvc    *BracketService
	tournamentSvc *TournamentService
	matchSvc      *MatchService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newServiceDB(t)
	logger := testLogger()
	f := &fixture{
		tournaments:  newFakeTournamentRepo(),
		participants: newFakeParticipantRepo(),
		matches:      newFakeMatchRepo(),
		prizes:       newFakePrizeRepo(),
		sink:         &recordingSink{},
	}
	f.bracketSvc = NewBracketService(f.matches, cache.NewMemory(), logger)
	f.tournamentSvc = NewTournamentService(db, f.tournaments, f.participants, f.bracketSvc, DefaultEligibilityRules(), f.sink, logger)
	f.matchSvc = NewMatchService(db, f.tournaments, f.participants, f.matches, f.prizes, f.bracketSvc, nil, f.sink, logger)
	return f
}

func baseTournament(format models.TournamentFormat, minP, maxP int) *models.Tournament {
	now := time.Now()
	return &models.Tournament{
		Name:            "Autumn Open",
		Format:          format,
		MinParticipants: minP,
		MaxParticipants: maxP,
		RegOpensAt:      now.Add(time.Hour),
		RegClosesAt:     now.Add(2 * time.Hour),
		StartAt:         now.Add(3 * time.Hour),
	}
}

// readyTournament creates a tournament and registers players so it can
// be started directly.
func readyTournament(t *testing.T, f *fixture, format models.TournamentFormat, players int) *models.Tournament {
	t.Helper()
	ctx := context.Background()

	tournament := baseTournament(format, 2, 64)
	require.NoError(t, f.tournamentSvc.Create(ctx, tournament))
	require.NoError(t, f.tournamentSvc.OpenRegistration(ctx, tournament.ID))
	for i := 1; i <= players; i++ {
		p := &models.Participant{PlayerID: 100 + i, Rating: 2000 - i*10}
		require.NoError(t, f.tournamentSvc.Register(ctx, tournament.ID, p))
	}
	require.NoError(t, f.tournamentSvc.CloseRegistration(ctx, tournament.ID))

	out, err := f.tournamentSvc.GetByID(ctx, tournament.ID)
	require.NoError(t, err)
	return out
}

// playMatch records a home win unless awayWins is set.
func playMatch(t *testing.T, f *fixture, m models.Match, awayWins bool) {
	t.Helper()
	if m.Status == models.MatchScheduled {
		require.NoError(t, f.matchSvc.StartMatch(context.Background(), m.ID))
	}
	result := models.MatchResult{MatchID: m.ID, HomeScore: 2, AwayScore: 1}
	if awayWins {
		result.HomeScore, result.AwayScore = 1, 2
	}
	require.NoError(t, f.matchSvc.RecordResult(context.Background(), result))
}
