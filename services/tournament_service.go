package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/bracketline/tournament-engine/brackets"
	"github.com/bracketline/tournament-engine/events"
	"github.com/bracketline/tournament-engine/models"
	"github.com/bracketline/tournament-engine/repositories"
	"github.com/bracketline/tournament-engine/seeding"
)

// TournamentService owns the tournament lifecycle: creation, the
// registration window, the start transition that freezes the field and
// generates the bracket, and cancellation.
type TournamentService struct {
	db              *sql.DB
	tournamentRepo  repositories.TournamentRepository
	participantRepo repositories.ParticipantRepository
	bracketService  *BracketService
	rules           []EligibilityRule
	sink            events.Sink
	logger          *slog.Logger
	locks           *tournamentLocks
}

func NewTournamentService(
	db *sql.DB,
	tournamentRepo repositories.TournamentRepository,
	participantRepo repositories.ParticipantRepository,
	bracketService *BracketService,
	rules []EligibilityRule,
	sink events.Sink,
	logger *slog.Logger,
) *TournamentService {
	return &TournamentService{
		db:              db,
		tournamentRepo:  tournamentRepo,
		participantRepo: participantRepo,
		bracketService:  bracketService,
		rules:           rules,
		sink:            sink,
		logger:          logger,
		locks:           newTournamentLocks(),
	}
}

func validateTournament(t *models.Tournament) error {
	if t.Name == "" {
		return ErrTournamentNameRequired
	}
	switch t.Format {
	case models.FormatSingleElimination, models.FormatDoubleElimination,
		models.FormatRoundRobin, models.FormatSwiss:
	default:
		return fmt.Errorf("%w: %q", ErrTournamentInvalidFormat, t.Format)
	}
	if t.MinParticipants < 2 || t.MaxParticipants < t.MinParticipants {
		return ErrTournamentInvalidCapacity
	}
	if t.RegOpensAt.After(t.RegClosesAt) || t.RegClosesAt.After(t.StartAt) {
		return ErrTournamentInvalidDates
	}
	if _, err := t.GetSettings(); err != nil {
		return fmt.Errorf("%w: settings: %v", ErrValidationFailed, err)
	}
	return nil
}

func isValidStatusTransition(current, next models.TournamentStatus) bool {
	allowed := map[models.TournamentStatus][]models.TournamentStatus{
		models.StatusDraft:              {models.StatusRegistrationOpen, models.StatusTournamentCanceled},
		models.StatusRegistrationOpen:   {models.StatusRegistrationClosed, models.StatusTournamentCanceled},
		models.StatusRegistrationClosed: {models.StatusInProgress, models.StatusTournamentCanceled},
		models.StatusInProgress:         {models.StatusTournamentComplete, models.StatusTournamentCanceled},
		models.StatusTournamentComplete: {},
		models.StatusTournamentCanceled: {},
	}
	for _, s := range allowed[current] {
		if next == s {
			return true
		}
	}
	return false
}

func (s *TournamentService) Create(ctx context.Context, t *models.Tournament) error {
	if err := validateTournament(t); err != nil {
		return err
	}
	t.Status = models.StatusDraft

	if err := s.tournamentRepo.Create(ctx, t); err != nil {
		if errors.Is(err, repositories.ErrTournamentNameConflict) {
			return ErrTournamentNameConflict
		}
		return err
	}

	s.sink.Publish(ctx, events.New(events.TournamentCreated, t.ID, t))
	return nil
}

func (s *TournamentService) GetByID(ctx context.Context, id int) (*models.Tournament, error) {
	t, err := s.tournamentRepo.GetByID(ctx, nil, id)
	if err != nil {
		if errors.Is(err, repositories.ErrTournamentNotFound) {
			return nil, ErrTournamentNotFound
		}
		return nil, err
	}
	return t, nil
}

// GetFull loads the tournament together with its participants and
// matches in parallel.
func (s *TournamentService) GetFull(ctx context.Context, id int) (*models.Tournament, error) {
	t, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		participants, err := s.participantRepo.ListByTournament(gCtx, nil, id)
		if err != nil {
			return fmt.Errorf("failed to load participants for tournament %d: %w", id, err)
		}
		t.Participants = participants
		return nil
	})
	g.Go(func() error {
		bracket, err := s.bracketService.GetBracket(gCtx, t)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil
			}
			return err
		}
		for _, m := range bracket.AllMatches() {
			t.Matches = append(t.Matches, *m)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *TournamentService) List(ctx context.Context, filter repositories.ListTournamentsFilter) ([]models.Tournament, error) {
	return s.tournamentRepo.List(ctx, filter)
}

// Update rewrites a tournament's definition. Only draft tournaments can
// change shape; later phases mutate through lifecycle transitions.
func (s *TournamentService) Update(ctx context.Context, t *models.Tournament) error {
	existing, err := s.GetByID(ctx, t.ID)
	if err != nil {
		return err
	}
	if existing.Status != models.StatusDraft {
		return fmt.Errorf("%w: tournament %d is %s", ErrInvalidStatusTransition, t.ID, existing.Status)
	}
	if err := validateTournament(t); err != nil {
		return err
	}
	t.Status = existing.Status
	return s.tournamentRepo.Update(ctx, t)
}

func (s *TournamentService) Delete(ctx context.Context, id int) error {
	existing, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if existing.Status != models.StatusDraft {
		return fmt.Errorf("%w: only draft tournaments can be deleted", ErrInvalidStatusTransition)
	}
	return s.tournamentRepo.Delete(ctx, id)
}

// OpenRegistration flips draft to registration_open.
func (s *TournamentService) OpenRegistration(ctx context.Context, id int) error {
	return s.transition(ctx, id, models.StatusRegistrationOpen, func(ctx context.Context, tx *sql.Tx, t *models.Tournament) error {
		s.sink.Publish(ctx, events.New(events.RegistrationOpened, id, nil))
		return nil
	})
}

// Register adds a player to an open tournament after running the
// eligibility chain and the capacity check.
func (s *TournamentService) Register(ctx context.Context, tournamentID int, participant *models.Participant) error {
	unlock := s.locks.lock(tournamentID)
	defer unlock()

	return s.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		t, err := s.tournamentRepo.GetByIDForUpdate(ctx, tx, tournamentID)
		if err != nil {
			if errors.Is(err, repositories.ErrTournamentNotFound) {
				return ErrTournamentNotFound
			}
			return err
		}
		settings, err := t.GetSettings()
		if err != nil {
			return err
		}

		for _, rule := range s.rules {
			if err := rule.Check(t, settings, participant); err != nil {
				return err
			}
		}

		count, err := s.participantRepo.CountByTournament(ctx, tx, tournamentID)
		if err != nil {
			return err
		}
		if count >= t.MaxParticipants {
			return ErrTournamentFull
		}

		participant.TournamentID = tournamentID
		participant.Status = models.ParticipantRegistered
		if err := s.participantRepo.Create(ctx, tx, participant); err != nil {
			if errors.Is(err, repositories.ErrParticipantAlreadyRegistered) {
				return ErrRegistrationConflict
			}
			return err
		}

		s.sink.Publish(ctx, events.New(events.ParticipantJoined, tournamentID, participant))
		return nil
	})
}

// Withdraw removes a registration before play starts. Once the bracket
// exists the participant is marked withdrawn instead and forfeits any
// remaining matches.
func (s *TournamentService) Withdraw(ctx context.Context, tournamentID, participantID int) error {
	unlock := s.locks.lock(tournamentID)
	defer unlock()

	t, err := s.GetByID(ctx, tournamentID)
	if err != nil {
		return err
	}
	switch t.Status {
	case models.StatusRegistrationOpen, models.StatusRegistrationClosed:
		if err := s.participantRepo.Delete(ctx, nil, participantID); err != nil {
			if errors.Is(err, repositories.ErrParticipantNotFound) {
				return ErrParticipantNotFound
			}
			return err
		}
		return nil
	case models.StatusInProgress:
		if err := s.participantRepo.UpdateStatus(ctx, nil, participantID, models.ParticipantWithdrawn); err != nil {
			if errors.Is(err, repositories.ErrParticipantNotFound) {
				return ErrParticipantNotFound
			}
			return err
		}
		return nil
	default:
		return fmt.Errorf("%w: cannot withdraw while tournament is %s", ErrInvalidStatusTransition, t.Status)
	}
}

// CloseRegistration freezes the field. A field below the configured
// minimum cancels the tournament instead.
func (s *TournamentService) CloseRegistration(ctx context.Context, id int) error {
	unlock := s.locks.lock(id)
	defer unlock()

	return s.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		t, err := s.tournamentRepo.GetByIDForUpdate(ctx, tx, id)
		if err != nil {
			if errors.Is(err, repositories.ErrTournamentNotFound) {
				return ErrTournamentNotFound
			}
			return err
		}
		if !isValidStatusTransition(t.Status, models.StatusRegistrationClosed) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, t.Status, models.StatusRegistrationClosed)
		}

		// Withdrawn and disqualified entries do not count toward the
		// minimum field.
		all, err := s.participantRepo.ListByTournament(ctx, tx, id)
		if err != nil {
			return err
		}
		count := 0
		for _, p := range all {
			if p.Status == models.ParticipantRegistered || p.Status == models.ParticipantConfirmed {
				count++
			}
		}
		if count < t.MinParticipants {
			s.logger.Warn("cancelling tournament below minimum field",
				slog.Int("tournament_id", id),
				slog.Int("registered", count),
				slog.Int("minimum", t.MinParticipants))
			if err := s.tournamentRepo.UpdateStatus(ctx, tx, id, models.StatusTournamentCanceled); err != nil {
				return err
			}
			s.sink.Publish(ctx, events.New(events.TournamentCanceled, id, map[string]string{"reason": "not_enough_participants"}))
			return nil
		}

		if err := s.tournamentRepo.UpdateStatus(ctx, tx, id, models.StatusRegistrationClosed); err != nil {
			return err
		}
		s.sink.Publish(ctx, events.New(events.RegistrationClosed, id, nil))
		return nil
	})
}

// Start seeds the field, generates the bracket and flips the tournament
// to in_progress, all in one transaction.
func (s *TournamentService) Start(ctx context.Context, id int) error {
	unlock := s.locks.lock(id)
	defer unlock()

	return s.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		t, err := s.tournamentRepo.GetByIDForUpdate(ctx, tx, id)
		if err != nil {
			if errors.Is(err, repositories.ErrTournamentNotFound) {
				return ErrTournamentNotFound
			}
			return err
		}
		if !isValidStatusTransition(t.Status, models.StatusInProgress) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, t.Status, models.StatusInProgress)
		}
		settings, err := t.GetSettings()
		if err != nil {
			return err
		}

		registered, err := s.participantRepo.ListByTournament(ctx, tx, id)
		if err != nil {
			return err
		}
		field := make([]*models.Participant, 0, len(registered))
		for i := range registered {
			p := &registered[i]
			if p.Status == models.ParticipantRegistered || p.Status == models.ParticipantConfirmed {
				field = append(field, p)
			}
		}
		if len(field) < t.MinParticipants || len(field) < 2 {
			return fmt.Errorf("%w: have %d, need %d", ErrNotEnoughParticipants, len(field), t.MinParticipants)
		}

		seeded := seeding.Generate(field, settings.SeedingMethod)
		for _, p := range seeded {
			if err := s.participantRepo.UpdateSeed(ctx, tx, p.ID, p.Seed); err != nil {
				return err
			}
			if err := s.participantRepo.UpdateStatus(ctx, tx, p.ID, models.ParticipantActive); err != nil {
				return err
			}
		}

		generator, err := brackets.New(t.Format)
		if err != nil {
			return err
		}
		entrants := seeded
		if t.Format.IsElimination() {
			entrants = seeding.ForBracket(seeded)
		}
		bracket, err := generator.Generate(ctx, brackets.GenerateParams{
			Tournament:   t,
			Participants: entrants,
		})
		if err != nil {
			return err
		}
		if err := s.bracketService.PersistBracket(ctx, tx, bracket); err != nil {
			return err
		}

		if err := s.tournamentRepo.UpdateStatus(ctx, tx, id, models.StatusInProgress); err != nil {
			return err
		}

		s.logger.Info("tournament started",
			slog.Int("tournament_id", id),
			slog.String("format", string(t.Format)),
			slog.Int("field_size", len(field)),
			slog.Int("matches", len(bracket.AllMatches())))
		s.sink.Publish(ctx, events.New(events.TournamentStarted, id, map[string]int{"field_size": len(field)}))
		return nil
	})
}

// Cancel aborts a tournament in any non-terminal state.
func (s *TournamentService) Cancel(ctx context.Context, id int, reason string) error {
	return s.transition(ctx, id, models.StatusTournamentCanceled, func(ctx context.Context, tx *sql.Tx, t *models.Tournament) error {
		s.sink.Publish(ctx, events.New(events.TournamentCanceled, id, map[string]string{"reason": reason}))
		return nil
	})
}

// transition performs a locked status flip plus a follow-up inside the
// same transaction.
func (s *TournamentService) transition(ctx context.Context, id int, next models.TournamentStatus, after func(context.Context, *sql.Tx, *models.Tournament) error) error {
	unlock := s.locks.lock(id)
	defer unlock()

	return s.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		t, err := s.tournamentRepo.GetByIDForUpdate(ctx, tx, id)
		if err != nil {
			if errors.Is(err, repositories.ErrTournamentNotFound) {
				return ErrTournamentNotFound
			}
			return err
		}
		if !isValidStatusTransition(t.Status, next) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, t.Status, next)
		}
		if err := s.tournamentRepo.UpdateStatus(ctx, tx, id, next); err != nil {
			return err
		}
		if after != nil {
			return after(ctx, tx, t)
		}
		return nil
	})
}

func (s *TournamentService) withTx(ctx context.Context, fn func(context.Context, *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(ctx, tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error("rollback failed", slog.String("error", rbErr.Error()))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
