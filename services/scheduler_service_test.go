package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bracketline/tournament-engine/events"
	"github.com/bracketline/tournament-engine/models"
	"github.com/bracketline/tournament-engine/scheduling"
)

type queuedJob struct {
	name    string
	payload interface{}
	runAt   time.Time
}

type fakeQueue struct {
	mu        sync.Mutex
	seq       int
	jobs      map[string]queuedJob
	cancelled []string
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{jobs: make(map[string]queuedJob)}
}

func (q *fakeQueue) Enqueue(name string, payload interface{}, runAt time.Time) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.seq++
	id := fmt.Sprintf("job-%d", q.seq)
	q.jobs[id] = queuedJob{name: name, payload: payload, runAt: runAt}
	return id, nil
}

func (q *fakeQueue) Cancel(jobID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.cancelled = append(q.cancelled, jobID)
	delete(q.jobs, jobID)
}

func (q *fakeQueue) pending() []queuedJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]queuedJob, 0, len(q.jobs))
	for _, j := range q.jobs {
		out = append(out, j)
	}
	return out
}

type staticConstraints struct {
	constraints []scheduling.Constraint
}

func (s *staticConstraints) Constraints(_ context.Context, _ []int) ([]scheduling.Constraint, error) {
	return s.constraints, nil
}

// anchor returns a reference time safely inside the waking window so
// slot assertions do not depend on when the test runs.
func anchor() time.Time {
	now := time.Now()
	return time.Date(now.Year(), now.Month(), now.Day()+1, 10, 0, 0, 0, time.UTC)
}

func TestScheduleMatchAssignsSlotAndArmsTimeout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tournament := startTournament(t, f, models.FormatSingleElimination, 4)
	m := roundMatches(t, f, tournament.ID, 1)[0]

	jobs := newFakeQueue()
	svc := NewSchedulerService(f.tournaments, f.matches, nil, jobs, scheduling.DefaultOptions(), f.sink, testLogger())

	from := anchor()
	slot, err := svc.ScheduleMatch(ctx, m.ID, from)
	require.NoError(t, err)
	assert.False(t, slot.Before(from))

	stored, err := f.matches.GetByID(ctx, nil, m.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.ScheduledAt)
	assert.Equal(t, slot, *stored.ScheduledAt)

	pending := jobs.pending()
	require.Len(t, pending, 1)
	assert.Equal(t, TimeoutJob, pending[0].name)
	assert.Equal(t, m.ID, pending[0].payload)
	// Default match duration plus the grace window.
	assert.Equal(t, slot.Add(90*time.Minute), pending[0].runAt)

	assert.True(t, f.sink.has(events.MatchScheduled))
}

func TestScheduleMatchRejectsCompleted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tournament := startTournament(t, f, models.FormatSingleElimination, 4)
	m := roundMatches(t, f, tournament.ID, 1)[0]
	playMatch(t, f, m, false)

	svc := NewSchedulerService(f.tournaments, f.matches, nil, newFakeQueue(), scheduling.DefaultOptions(), f.sink, testLogger())

	_, err := svc.ScheduleMatch(ctx, m.ID, anchor())
	assert.ErrorIs(t, err, ErrMatchAlreadyCompleted)

	_, err = svc.ScheduleMatch(ctx, 9999, anchor())
	assert.ErrorIs(t, err, ErrMatchNotFound)
}

func TestScheduleRoundSpacesMatches(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tournament := startTournament(t, f, models.FormatSingleElimination, 4)

	opts := scheduling.DefaultOptions()
	svc := NewSchedulerService(f.tournaments, f.matches, nil, newFakeQueue(), opts, f.sink, testLogger())

	require.NoError(t, svc.ScheduleRound(ctx, tournament.ID, 1, anchor()))

	round1 := roundMatches(t, f, tournament.ID, 1)
	require.Len(t, round1, 2)
	require.NotNil(t, round1[0].ScheduledAt)
	require.NotNil(t, round1[1].ScheduledAt)

	gap := round1[1].ScheduledAt.Sub(*round1[0].ScheduledAt)
	if gap < 0 {
		gap = -gap
	}
	assert.GreaterOrEqual(t, gap, opts.RoundBuffer)
}

func TestScheduleRoundSkipsAlreadyScheduled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tournament := startTournament(t, f, models.FormatSingleElimination, 4)
	round1 := roundMatches(t, f, tournament.ID, 1)

	fixed := anchor()
	require.NoError(t, f.matches.UpdateSchedule(ctx, nil, round1[0].ID, &fixed))

	svc := NewSchedulerService(f.tournaments, f.matches, nil, newFakeQueue(), scheduling.DefaultOptions(), f.sink, testLogger())
	require.NoError(t, svc.ScheduleRound(ctx, tournament.ID, 1, fixed))

	stored, err := f.matches.GetByID(ctx, nil, round1[0].ID)
	require.NoError(t, err)
	assert.Equal(t, fixed, *stored.ScheduledAt)
}

func TestRescheduleMatchRefusesBusySlot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tournament := startTournament(t, f, models.FormatSingleElimination, 4)
	m := roundMatches(t, f, tournament.ID, 1)[0]

	proposed := anchor()
	provider := &staticConstraints{constraints: []scheduling.Constraint{{
		ParticipantID: *m.HomeParticipantID,
		Busy: []scheduling.Interval{{
			Start: proposed.Add(-time.Hour),
			End:   proposed.Add(time.Hour),
		}},
	}}}

	svc := NewSchedulerService(f.tournaments, f.matches, provider, newFakeQueue(), scheduling.DefaultOptions(), f.sink, testLogger())

	err := svc.RescheduleMatch(ctx, m.ID, proposed)
	assert.ErrorIs(t, err, ErrSlotNotViable)

	open := proposed.Add(4 * time.Hour)
	require.NoError(t, svc.RescheduleMatch(ctx, m.ID, open))

	stored, err := f.matches.GetByID(ctx, nil, m.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.ScheduledAt)
	assert.Equal(t, open, *stored.ScheduledAt)
}

func TestRescheduleMatchRequiresScheduledStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tournament := startTournament(t, f, models.FormatSingleElimination, 4)
	m := roundMatches(t, f, tournament.ID, 1)[0]
	require.NoError(t, f.matchSvc.StartMatch(ctx, m.ID))

	svc := NewSchedulerService(f.tournaments, f.matches, nil, newFakeQueue(), scheduling.DefaultOptions(), f.sink, testLogger())
	err := svc.RescheduleMatch(ctx, m.ID, anchor())
	assert.ErrorIs(t, err, ErrTournamentNotReschedulable)
}

func TestTimeoutJobReplacedOnReschedule(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tournament := startTournament(t, f, models.FormatSingleElimination, 4)
	m := roundMatches(t, f, tournament.ID, 1)[0]

	jobs := newFakeQueue()
	svc := NewSchedulerService(f.tournaments, f.matches, nil, jobs, scheduling.DefaultOptions(), f.sink, testLogger())

	_, err := svc.ScheduleMatch(ctx, m.ID, anchor())
	require.NoError(t, err)
	require.NoError(t, svc.RescheduleMatch(ctx, m.ID, anchor().Add(2*time.Hour)))

	assert.Len(t, jobs.pending(), 1)
	assert.Len(t, jobs.cancelled, 1)

	svc.DisarmTimeout(m.ID)
	assert.Empty(t, jobs.pending())
}
