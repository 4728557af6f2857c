package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bracketline/tournament-engine/events"
	"github.com/bracketline/tournament-engine/models"
	"github.com/bracketline/tournament-engine/queue"
	"github.com/bracketline/tournament-engine/repositories"
	"github.com/bracketline/tournament-engine/scheduling"
)

// TimeoutJob is the queue job name for match timeout resolution.
const TimeoutJob = "match.timeout"

// timeoutGrace is how long past the expected end a match may idle before
// the timeout sweep settles it.
const timeoutGrace = 30 * time.Minute

// ConstraintProvider supplies availability constraints for participants.
// The zero provider (nil) means unconstrained scheduling.
type ConstraintProvider interface {
	Constraints(ctx context.Context, participantIDs []int) ([]scheduling.Constraint, error)
}

// SchedulerService assigns time slots to matches and arms the timeout
// job for each scheduled match.
type SchedulerService struct {
	tournamentRepo repositories.TournamentRepository
	matchRepo      repositories.MatchRepository
	constraints    ConstraintProvider
	jobQueue       queue.JobQueue
	opts           scheduling.Options
	sink           events.Sink
	logger         *slog.Logger

	mu          sync.Mutex
	timeoutJobs map[int]string
}

func NewSchedulerService(
	tournamentRepo repositories.TournamentRepository,
	matchRepo repositories.MatchRepository,
	constraints ConstraintProvider,
	jobQueue queue.JobQueue,
	opts scheduling.Options,
	sink events.Sink,
	logger *slog.Logger,
) *SchedulerService {
	return &SchedulerService{
		tournamentRepo: tournamentRepo,
		matchRepo:      matchRepo,
		constraints:    constraints,
		jobQueue:       jobQueue,
		opts:           opts,
		sink:           sink,
		logger:         logger,
		timeoutJobs:    make(map[int]string),
	}
}

func (s *SchedulerService) constraintsFor(ctx context.Context, m *models.Match) ([]scheduling.Constraint, error) {
	if s.constraints == nil {
		return nil, nil
	}
	var ids []int
	if m.HomeParticipantID != nil {
		ids = append(ids, *m.HomeParticipantID)
	}
	if m.AwayParticipantID != nil {
		ids = append(ids, *m.AwayParticipantID)
	}
	return s.constraints.Constraints(ctx, ids)
}

// ScheduleMatch picks the best viable slot from the given time onward
// and stores it on the match.
func (s *SchedulerService) ScheduleMatch(ctx context.Context, matchID int, from time.Time) (time.Time, error) {
	m, err := s.matchRepo.GetByID(ctx, nil, matchID)
	if err != nil {
		if errors.Is(err, repositories.ErrMatchNotFound) {
			return time.Time{}, ErrMatchNotFound
		}
		return time.Time{}, err
	}
	if m.Status.IsTerminal() {
		return time.Time{}, ErrMatchAlreadyCompleted
	}

	constraints, err := s.constraintsFor(ctx, m)
	if err != nil {
		return time.Time{}, err
	}

	slot := scheduling.FindSlot(from, constraints, s.opts)
	if err := s.applySlot(ctx, m, slot); err != nil {
		return time.Time{}, err
	}
	return slot, nil
}

// ScheduleRound spaces the playable matches of one round so they do not
// overlap, respecting the shared constraint set.
func (s *SchedulerService) ScheduleRound(ctx context.Context, tournamentID, round int, from time.Time) error {
	matches, err := s.matchRepo.ListByRound(ctx, nil, tournamentID, round)
	if err != nil {
		return err
	}
	playable := make([]*models.Match, 0, len(matches))
	for i := range matches {
		if !matches[i].Status.IsTerminal() && matches[i].ScheduledAt == nil {
			playable = append(playable, &matches[i])
		}
	}
	if len(playable) == 0 {
		return nil
	}

	var constraints []scheduling.Constraint
	if s.constraints != nil {
		var ids []int
		for _, m := range playable {
			if m.HomeParticipantID != nil {
				ids = append(ids, *m.HomeParticipantID)
			}
			if m.AwayParticipantID != nil {
				ids = append(ids, *m.AwayParticipantID)
			}
		}
		if constraints, err = s.constraints.Constraints(ctx, ids); err != nil {
			return err
		}
	}

	slots := scheduling.RoundSlots(from, len(playable), constraints, s.opts)
	for i, m := range playable {
		if err := s.applySlot(ctx, m, slots[i]); err != nil {
			return err
		}
	}
	return nil
}

// RescheduleMatch moves a match to a caller-proposed slot. A slot that
// conflicts with a participant's availability is refused.
func (s *SchedulerService) RescheduleMatch(ctx context.Context, matchID int, proposed time.Time) error {
	m, err := s.matchRepo.GetByID(ctx, nil, matchID)
	if err != nil {
		if errors.Is(err, repositories.ErrMatchNotFound) {
			return ErrMatchNotFound
		}
		return err
	}
	if m.Status != models.MatchScheduled {
		return ErrTournamentNotReschedulable
	}

	constraints, err := s.constraintsFor(ctx, m)
	if err != nil {
		return err
	}
	if !scheduling.Viable(proposed, constraints, s.opts) {
		return ErrSlotNotViable
	}
	return s.applySlot(ctx, m, proposed)
}

func (s *SchedulerService) applySlot(ctx context.Context, m *models.Match, slot time.Time) error {
	if err := s.matchRepo.UpdateSchedule(ctx, nil, m.ID, &slot); err != nil {
		return err
	}
	m.ScheduledAt = &slot

	if err := s.armTimeout(ctx, m, slot); err != nil {
		s.logger.Warn("failed to arm match timeout",
			slog.Int("match_id", m.ID),
			slog.String("error", err.Error()))
	}

	s.sink.Publish(ctx, events.New(events.MatchScheduled, m.TournamentID, map[string]interface{}{
		"match_id":     m.ID,
		"scheduled_at": slot,
	}))
	return nil
}

// armTimeout schedules the timeout job for the match's expected end plus
// grace, replacing any earlier job for the same match.
func (s *SchedulerService) armTimeout(ctx context.Context, m *models.Match, slot time.Time) error {
	if s.jobQueue == nil {
		return nil
	}
	t, err := s.tournamentRepo.GetByID(ctx, nil, m.TournamentID)
	if err != nil {
		return err
	}
	settings, err := t.GetSettings()
	if err != nil {
		return err
	}
	deadline := slot.Add(time.Duration(settings.MatchDurationMinutes)*time.Minute + timeoutGrace)

	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.timeoutJobs[m.ID]; ok {
		s.jobQueue.Cancel(old)
	}
	jobID, err := s.jobQueue.Enqueue(TimeoutJob, m.ID, deadline)
	if err != nil {
		return fmt.Errorf("failed to enqueue timeout for match %d: %w", m.ID, err)
	}
	s.timeoutJobs[m.ID] = jobID
	return nil
}

// DisarmTimeout cancels the pending timeout job once a result arrives.
func (s *SchedulerService) DisarmTimeout(matchID int) {
	if s.jobQueue == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if jobID, ok := s.timeoutJobs[matchID]; ok {
		s.jobQueue.Cancel(jobID)
		delete(s.timeoutJobs, matchID)
	}
}
