package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/bracketline/tournament-engine/models"
	"github.com/bracketline/tournament-engine/repositories"
)

// AutomationService is the clock-driven sweep: it pushes tournaments
// across lifecycle boundaries when their timestamps pass, starts matches
// whose slot has arrived, and settles matches that timed out, covering
// for any queue job lost to a restart. Every item is handled in
// isolation so one bad tournament cannot stall the rest.
type AutomationService struct {
	tournamentRepo    repositories.TournamentRepository
	matchRepo         repositories.MatchRepository
	tournamentService *TournamentService
	matchService      *MatchService
	scheduler         *SchedulerService
	logger            *slog.Logger
}

func NewAutomationService(
	tournamentRepo repositories.TournamentRepository,
	matchRepo repositories.MatchRepository,
	tournamentService *TournamentService,
	matchService *MatchService,
	scheduler *SchedulerService,
	logger *slog.Logger,
) *AutomationService {
	return &AutomationService{
		tournamentRepo:    tournamentRepo,
		matchRepo:         matchRepo,
		tournamentService: tournamentService,
		matchService:      matchService,
		scheduler:         scheduler,
		logger:            logger,
	}
}

// Run sweeps on the given interval until the context is cancelled.
func (s *AutomationService) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("automation loop started", slog.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("automation loop stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one full pass. Errors are logged, never returned: the next
// tick retries anything that failed.
func (s *AutomationService) Sweep(ctx context.Context) {
	now := time.Now()
	s.sweepTournaments(ctx, now)
	s.sweepScheduledMatches(ctx, now)
	s.sweepTimedOutMatches(ctx, now)
}

func (s *AutomationService) sweepTournaments(ctx context.Context, now time.Time) {
	due, err := s.tournamentRepo.ListDueForTransition(ctx, nil, now)
	if err != nil {
		s.logger.Error("failed to list tournaments due for transition", slog.String("error", err.Error()))
		return
	}

	for _, t := range due {
		var err error
		switch t.Status {
		case models.StatusDraft:
			err = s.tournamentService.OpenRegistration(ctx, t.ID)
		case models.StatusRegistrationOpen:
			err = s.tournamentService.CloseRegistration(ctx, t.ID)
		case models.StatusRegistrationClosed:
			if err = s.tournamentService.Start(ctx, t.ID); err == nil {
				if schedErr := s.scheduler.ScheduleRound(ctx, t.ID, 1, t.StartAt); schedErr != nil {
					s.logger.Error("failed to schedule opening round",
						slog.Int("tournament_id", t.ID),
						slog.String("error", schedErr.Error()))
				}
			}
			if errors.Is(err, ErrNotEnoughParticipants) {
				err = s.tournamentService.Cancel(ctx, t.ID, "not_enough_participants")
			}
		}
		if err != nil && !errors.Is(err, ErrInvalidStatusTransition) {
			s.logger.Error("lifecycle transition failed",
				slog.Int("tournament_id", t.ID),
				slog.String("status", string(t.Status)),
				slog.String("error", err.Error()))
		}
	}
}

func (s *AutomationService) sweepScheduledMatches(ctx context.Context, now time.Time) {
	scheduled, err := s.matchRepo.ListByStatus(ctx, nil, models.MatchScheduled)
	if err != nil {
		s.logger.Error("failed to list scheduled matches", slog.String("error", err.Error()))
		return
	}

	for i := range scheduled {
		m := &scheduled[i]
		if m.ScheduledAt == nil || m.ScheduledAt.After(now) || !m.HasBothParticipants() {
			continue
		}
		if err := s.matchService.StartMatch(ctx, m.ID); err != nil {
			s.logger.Error("failed to auto-start match",
				slog.Int("match_id", m.ID),
				slog.String("error", err.Error()))
		}
	}
}

func (s *AutomationService) sweepTimedOutMatches(ctx context.Context, now time.Time) {
	inProgress, err := s.matchRepo.ListByStatus(ctx, nil, models.MatchInProgress)
	if err != nil {
		s.logger.Error("failed to list in-progress matches", slog.String("error", err.Error()))
		return
	}

	for i := range inProgress {
		m := &inProgress[i]
		deadline, ok := s.matchDeadline(ctx, m)
		if !ok || deadline.After(now) {
			continue
		}
		s.scheduler.DisarmTimeout(m.ID)
		if err := s.matchService.ResolveTimeout(ctx, m.ID); err != nil && !errors.Is(err, ErrMatchAlreadyCompleted) {
			s.logger.Error("failed to resolve timed-out match",
				slog.Int("match_id", m.ID),
				slog.String("error", err.Error()))
		}
	}
}

func (s *AutomationService) matchDeadline(ctx context.Context, m *models.Match) (time.Time, bool) {
	started := m.StartedAt
	if started == nil {
		started = m.ScheduledAt
	}
	if started == nil {
		return time.Time{}, false
	}
	t, err := s.tournamentRepo.GetByID(ctx, nil, m.TournamentID)
	if err != nil {
		return time.Time{}, false
	}
	settings, err := t.GetSettings()
	if err != nil {
		return time.Time{}, false
	}
	return started.Add(time.Duration(settings.MatchDurationMinutes)*time.Minute + timeoutGrace), true
}
