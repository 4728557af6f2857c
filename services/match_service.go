package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/bracketline/tournament-engine/brackets"
	"github.com/bracketline/tournament-engine/events"
	"github.com/bracketline/tournament-engine/models"
	"github.com/bracketline/tournament-engine/prizes"
	"github.com/bracketline/tournament-engine/repositories"
	"github.com/bracketline/tournament-engine/seeding"
	"github.com/bracketline/tournament-engine/storage"
)

const (
	pointsWin  = 3
	pointsDraw = 1
)

// MatchService drives matches through their state machine and, as a
// consequence, the tournament through its rounds: recording a result
// advances the bracket, pairs the next Swiss round when one closes, and
// settles the whole tournament when the last match completes.
type MatchService struct {
	db              *sql.DB
	tournamentRepo  repositories.TournamentRepository
	participantRepo repositories.ParticipantRepository
	matchRepo       repositories.MatchRepository
	prizeRepo       repositories.PrizeRepository
	bracketService  *BracketService
	archiver        *storage.Archiver
	sink            events.Sink
	logger          *slog.Logger
	locks           *tournamentLocks
}

func NewMatchService(
	db *sql.DB,
	tournamentRepo repositories.TournamentRepository,
	participantRepo repositories.ParticipantRepository,
	matchRepo repositories.MatchRepository,
	prizeRepo repositories.PrizeRepository,
	bracketService *BracketService,
	archiver *storage.Archiver,
	sink events.Sink,
	logger *slog.Logger,
) *MatchService {
	return &MatchService{
		db:              db,
		tournamentRepo:  tournamentRepo,
		participantRepo: participantRepo,
		matchRepo:       matchRepo,
		prizeRepo:       prizeRepo,
		bracketService:  bracketService,
		archiver:        archiver,
		sink:            sink,
		logger:          logger,
		locks:           newTournamentLocks(),
	}
}

func (s *MatchService) GetByID(ctx context.Context, id int) (*models.Match, error) {
	m, err := s.matchRepo.GetByID(ctx, nil, id)
	if err != nil {
		if errors.Is(err, repositories.ErrMatchNotFound) {
			return nil, ErrMatchNotFound
		}
		return nil, err
	}
	return m, nil
}

// StartMatch flips a scheduled match to in_progress. A match whose
// participant has withdrawn or been disqualified is settled immediately
// as a forfeit instead of starting.
func (s *MatchService) StartMatch(ctx context.Context, matchID int) error {
	m, err := s.GetByID(ctx, matchID)
	if err != nil {
		return err
	}
	if m.Status.IsTerminal() {
		return ErrMatchAlreadyCompleted
	}
	if !m.HasBothParticipants() {
		return ErrMatchMissingParticipants
	}

	for _, pid := range []int{*m.HomeParticipantID, *m.AwayParticipantID} {
		p, err := s.participantRepo.GetByID(ctx, nil, pid)
		if err != nil {
			return err
		}
		if p.Status == models.ParticipantWithdrawn || p.Status == models.ParticipantDisqualified {
			return s.Forfeit(ctx, matchID, pid)
		}
	}

	now := time.Now()
	if err := s.matchRepo.UpdateStatus(ctx, nil, matchID, models.MatchInProgress, &now); err != nil {
		return err
	}
	s.sink.Publish(ctx, events.New(events.MatchStarted, m.TournamentID, map[string]int{"match_id": matchID}))
	return nil
}

// RecordResult validates and records a reported score, then runs every
// downstream consequence inside one transaction.
func (s *MatchService) RecordResult(ctx context.Context, result models.MatchResult) error {
	m, err := s.GetByID(ctx, result.MatchID)
	if err != nil {
		return err
	}
	return s.recordLocked(ctx, m.TournamentID, result, true)
}

// Forfeit settles a match against the named participant with a 1-0
// walkover for the opponent.
func (s *MatchService) Forfeit(ctx context.Context, matchID, forfeitingID int) error {
	m, err := s.GetByID(ctx, matchID)
	if err != nil {
		return err
	}
	if !m.HasBothParticipants() {
		return ErrMatchMissingParticipants
	}

	result := models.MatchResult{MatchID: matchID}
	switch forfeitingID {
	case *m.HomeParticipantID:
		result.AwayScore = 1
		result.WinnerID = m.AwayParticipantID
	case *m.AwayParticipantID:
		result.HomeScore = 1
		result.WinnerID = m.HomeParticipantID
	default:
		return fmt.Errorf("%w: participant %d is not in match %d", ErrValidationFailed, forfeitingID, matchID)
	}
	return s.recordLocked(ctx, m.TournamentID, result, false)
}

// ResolveTimeout settles a match that ran past its window with no
// reported score. The better tournament record wins; a dead-even pair
// is a draw where the format allows one, otherwise the home slot takes
// the walkover.
func (s *MatchService) ResolveTimeout(ctx context.Context, matchID int) error {
	m, err := s.GetByID(ctx, matchID)
	if err != nil {
		return err
	}
	if !m.HasBothParticipants() {
		return ErrMatchMissingParticipants
	}
	t, err := s.tournamentRepo.GetByID(ctx, nil, m.TournamentID)
	if err != nil {
		return err
	}
	home, err := s.participantRepo.GetByID(ctx, nil, *m.HomeParticipantID)
	if err != nil {
		return err
	}
	away, err := s.participantRepo.GetByID(ctx, nil, *m.AwayParticipantID)
	if err != nil {
		return err
	}

	result := models.MatchResult{MatchID: matchID}
	switch {
	case home.Points != away.Points:
		if home.Points > away.Points {
			result.HomeScore, result.WinnerID = 1, m.HomeParticipantID
		} else {
			result.AwayScore, result.WinnerID = 1, m.AwayParticipantID
		}
	case home.Wins != away.Wins:
		if home.Wins > away.Wins {
			result.HomeScore, result.WinnerID = 1, m.HomeParticipantID
		} else {
			result.AwayScore, result.WinnerID = 1, m.AwayParticipantID
		}
	case !t.Format.IsElimination():
		result.IsDraw = true
	default:
		result.HomeScore, result.WinnerID = 1, m.HomeParticipantID
	}

	s.logger.Warn("resolving timed-out match",
		slog.Int("match_id", matchID),
		slog.Int("tournament_id", m.TournamentID))
	return s.recordLocked(ctx, m.TournamentID, result, false)
}

// directReport marks a score submitted by the players themselves, which
// requires the match to have been started first. Forfeits and timeout
// resolutions settle a match in any live state.
func (s *MatchService) recordLocked(ctx context.Context, tournamentID int, result models.MatchResult, directReport bool) error {
	unlock := s.locks.lock(tournamentID)
	defer unlock()

	var snapshot *storage.Snapshot

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

	if err := s.recordInTx(ctx, tx, tournamentID, result, directReport, &snapshot); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error("rollback failed", slog.String("error", rbErr.Error()))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	// Archival happens after commit: the snapshot must describe durable
	// state, and an upload failure must not undo the result.
	if snapshot != nil && s.archiver != nil {
		if location, err := s.archiver.Archive(ctx, *snapshot); err != nil {
			s.logger.Error("failed to archive tournament snapshot",
				slog.Int("tournament_id", tournamentID),
				slog.String("error", err.Error()))
		} else {
			s.logger.Info("tournament archived",
				slog.Int("tournament_id", tournamentID),
				slog.String("location", location))
		}
	}
	return nil
}

func (s *MatchService) recordInTx(ctx context.Context, tx *sql.Tx, tournamentID int, result models.MatchResult, directReport bool, snapshot **storage.Snapshot) error {
	t, err := s.tournamentRepo.GetByIDForUpdate(ctx, tx, tournamentID)
	if err != nil {
		if errors.Is(err, repositories.ErrTournamentNotFound) {
			return ErrTournamentNotFound
		}
		return err
	}
	if t.Status != models.StatusInProgress {
		return ErrTournamentNotInProgress
	}

	m, err := s.matchRepo.GetByID(ctx, tx, result.MatchID)
	if err != nil {
		if errors.Is(err, repositories.ErrMatchNotFound) {
			return ErrMatchNotFound
		}
		return err
	}
	if m.Status.IsTerminal() {
		return ErrMatchAlreadyCompleted
	}
	if directReport && m.Status != models.MatchInProgress {
		return ErrMatchNotInProgress
	}
	if !m.HasBothParticipants() {
		return ErrMatchMissingParticipants
	}

	winnerID, err := validateResult(t, m, result)
	if err != nil {
		return err
	}

	now := time.Now()
	m.HomeScore = &result.HomeScore
	m.AwayScore = &result.AwayScore
	m.WinnerID = winnerID
	m.IsDraw = result.IsDraw
	m.Status = models.MatchCompleted
	m.CompletedAt = &now
	if err := s.matchRepo.RecordResult(ctx, tx, m); err != nil {
		return err
	}

	if err := s.applyStats(ctx, tx, m); err != nil {
		return err
	}
	if err := s.advance(ctx, tx, t, m); err != nil {
		return err
	}
	if err := s.progress(ctx, tx, t, m, snapshot); err != nil {
		return err
	}

	s.sink.Publish(ctx, events.New(events.MatchCompleted, tournamentID, m))
	s.bracketService.Invalidate(tournamentID)
	return nil
}

// validateResult enforces the scoring rules and returns the winner id.
func validateResult(t *models.Tournament, m *models.Match, result models.MatchResult) (*int, error) {
	if result.HomeScore < 0 || result.AwayScore < 0 {
		return nil, ErrScoresRequired
	}
	if result.IsDraw {
		if t.Format.IsElimination() {
			return nil, ErrDrawNotAllowed
		}
		if result.HomeScore != result.AwayScore {
			return nil, fmt.Errorf("%w: a draw requires equal scores", ErrWinnerScoreMismatch)
		}
		return nil, nil
	}
	if result.HomeScore == result.AwayScore {
		return nil, ErrDrawRequiresFlag
	}

	expected := m.HomeParticipantID
	if result.AwayScore > result.HomeScore {
		expected = m.AwayParticipantID
	}
	if result.WinnerID != nil && *result.WinnerID != *expected {
		return nil, ErrWinnerScoreMismatch
	}
	return expected, nil
}

// applyStats tallies win/loss/draw records and points for both sides.
func (s *MatchService) applyStats(ctx context.Context, tx *sql.Tx, m *models.Match) error {
	home, err := s.participantRepo.GetByID(ctx, tx, *m.HomeParticipantID)
	if err != nil {
		return err
	}
	away, err := s.participantRepo.GetByID(ctx, tx, *m.AwayParticipantID)
	if err != nil {
		return err
	}

	switch {
	case m.IsDraw:
		home.Draws++
		home.Points += pointsDraw
		away.Draws++
		away.Points += pointsDraw
	case *m.WinnerID == home.ID:
		home.Wins++
		home.Points += pointsWin
		away.Losses++
	default:
		away.Wins++
		away.Points += pointsWin
		home.Losses++
	}

	if err := s.participantRepo.UpdateRecord(ctx, tx, home); err != nil {
		return err
	}
	return s.participantRepo.UpdateRecord(ctx, tx, away)
}

// advance moves the winner into the next bracket slot and routes the
// loser: to the losers bracket in double elimination, or out of the
// tournament in elimination play.
func (s *MatchService) advance(ctx context.Context, tx *sql.Tx, t *models.Tournament, m *models.Match) error {
	if !t.Format.IsElimination() || m.IsDraw {
		return nil
	}

	if m.NextMatchID != nil {
		if err := s.placeInMatch(ctx, tx, *m.NextMatchID, m.BracketUID, m.WinnerID); err != nil {
			return err
		}
	}

	loserID := m.LoserID()
	if m.LoserNextMatchID != nil {
		if err := s.placeInMatch(ctx, tx, *m.LoserNextMatchID, m.BracketUID, loserID); err != nil {
			return err
		}
	} else if loserID != nil && !needsGrandFinalReset(m) {
		// The first grand final never eliminates its loser when the
		// rematch is coming.
		if err := s.participantRepo.UpdateStatus(ctx, tx, *loserID, models.ParticipantEliminated); err != nil {
			return err
		}
	}
	return nil
}

// placeInMatch seats a participant in the target match. The feeder's UID
// against the target's prev links decides home or away; when that slot is
// already taken, or the feeder has no prev link, the first open slot wins.
func (s *MatchService) placeInMatch(ctx context.Context, tx *sql.Tx, targetID int, feederUID *string, participantID *int) error {
	if participantID == nil {
		return nil
	}
	target, err := s.matchRepo.GetByID(ctx, tx, targetID)
	if err != nil {
		return err
	}

	home, away := target.HomeParticipantID, target.AwayParticipantID
	switch {
	case feederUID != nil && target.PrevMatch1UID != nil && *target.PrevMatch1UID == *feederUID && home == nil:
		home = participantID
	case feederUID != nil && target.PrevMatch2UID != nil && *target.PrevMatch2UID == *feederUID && away == nil:
		away = participantID
	case home == nil:
		home = participantID
	case away == nil:
		away = participantID
	default:
		return nil
	}
	return s.matchRepo.UpdateParticipants(ctx, tx, targetID, home, away)
}

// progress checks what the completed match unlocked: a finished round, a
// grand final reset, the next Swiss pairing, or the end of the whole
// tournament.
func (s *MatchService) progress(ctx context.Context, tx *sql.Tx, t *models.Tournament, completed *models.Match, snapshot **storage.Snapshot) error {
	matches, err := s.matchRepo.ListByTournament(ctx, tx, t.ID)
	if err != nil {
		return err
	}

	if roundComplete(matches, completed.Round) {
		s.sink.Publish(ctx, events.New(events.RoundCompleted, t.ID, map[string]int{"round": completed.Round}))
	}

	if t.Format == models.FormatDoubleElimination && needsGrandFinalReset(completed) {
		reset := brackets.NewGrandFinalReset(completed)
		if err := s.bracketService.PersistRound(ctx, tx, t.ID, []*models.Match{reset}); err != nil {
			return err
		}
		return nil
	}

	if t.Format == models.FormatSwiss {
		return s.progressSwiss(ctx, tx, t, matches, completed, snapshot)
	}

	if allTerminal(matches) {
		return s.completeTournament(ctx, tx, t, matches, snapshot)
	}
	return nil
}

func (s *MatchService) progressSwiss(ctx context.Context, tx *sql.Tx, t *models.Tournament, matches []models.Match, completed *models.Match, snapshot **storage.Snapshot) error {
	if !roundComplete(matches, completed.Round) {
		return nil
	}

	participants, err := s.participantRepo.ListByTournament(ctx, tx, t.ID)
	if err != nil {
		return err
	}
	active := make([]*models.Participant, 0, len(participants))
	for i := range participants {
		if participants[i].Status == models.ParticipantActive {
			active = append(active, &participants[i])
		}
	}

	totalRounds := swissRounds(len(participants))
	if completed.Round >= totalRounds || len(active) < 2 {
		return s.completeTournament(ctx, tx, t, matches, snapshot)
	}

	history := swissHistory(matches)
	nextRound := completed.Round + 1
	stubs := brackets.NextSwissRound(t.ID, nextRound, active, history)
	if len(stubs) == 0 {
		return s.completeTournament(ctx, tx, t, matches, snapshot)
	}
	if err := s.bracketService.PersistRound(ctx, tx, t.ID, stubs); err != nil {
		return err
	}

	// An odd field leaves one participant without an opponent; the bye
	// counts as a free win.
	if bye := byeParticipant(active, stubs); bye != nil {
		bye.Wins++
		bye.Points += pointsWin
		if err := s.participantRepo.UpdateRecord(ctx, tx, bye); err != nil {
			return err
		}
	}
	return nil
}

// completeTournament computes final standings, distributes prizes and
// closes the tournament out.
func (s *MatchService) completeTournament(ctx context.Context, tx *sql.Tx, t *models.Tournament, matches []models.Match, snapshot **storage.Snapshot) error {
	participants, err := s.participantRepo.ListByTournament(ctx, tx, t.ID)
	if err != nil {
		return err
	}
	field := make([]*models.Participant, len(participants))
	for i := range participants {
		field[i] = &participants[i]
	}

	ranked := prizes.SortStandings(field)
	for i, p := range ranked {
		rank := i + 1
		if err := s.participantRepo.UpdateRank(ctx, tx, p.ID, &rank); err != nil {
			return err
		}
		p.CurrentRank = &rank
	}

	payouts, err := prizes.Calculate(t, ranked)
	if err != nil {
		return err
	}
	if len(payouts) > 0 {
		lines := make([]models.PrizeDistribution, len(payouts))
		for i, p := range payouts {
			lines[i] = *p
		}
		if err := s.prizeRepo.CreateAll(ctx, tx, t.ID, lines); err != nil {
			return err
		}
		s.sink.Publish(ctx, events.New(events.PrizeDistributed, t.ID, lines))
	}

	if err := s.tournamentRepo.UpdateStatus(ctx, tx, t.ID, models.StatusTournamentComplete); err != nil {
		return err
	}
	now := time.Now()
	if err := s.tournamentRepo.SetEndAt(ctx, tx, t.ID, now); err != nil {
		return err
	}
	t.Status = models.StatusTournamentComplete
	t.EndAt = &now

	var champion *int
	if len(ranked) > 0 {
		champion = &ranked[0].ID
	}
	s.logger.Info("tournament completed",
		slog.Int("tournament_id", t.ID),
		slog.Any("champion_participant_id", champion))
	s.sink.Publish(ctx, events.New(events.TournamentCompleted, t.ID, map[string]interface{}{
		"champion_participant_id": champion,
	}))

	standings := make([]models.Standing, len(ranked))
	for i, p := range ranked {
		standings[i] = standingFor(p, i+1, now)
	}
	prizeLines := make([]models.PrizeDistribution, len(payouts))
	for i, p := range payouts {
		prizeLines[i] = *p
	}
	*snapshot = &storage.Snapshot{
		Tournament: t,
		Standings:  standings,
		Prizes:     prizeLines,
	}
	return nil
}

func standingFor(p *models.Participant, rank int, at time.Time) models.Standing {
	return models.Standing{
		TournamentID:  p.TournamentID,
		ParticipantID: p.ID,
		PlayerID:      p.PlayerID,
		TeamID:        p.TeamID,
		Rank:          rank,
		Points:        p.Points,
		GamesPlayed:   p.GamesPlayed(),
		Wins:          p.Wins,
		Draws:         p.Draws,
		Losses:        p.Losses,
		UpdatedAt:     at,
	}
}

func roundComplete(matches []models.Match, round int) bool {
	for _, m := range matches {
		if m.Round == round && !m.Status.IsTerminal() {
			return false
		}
	}
	return true
}

func allTerminal(matches []models.Match) bool {
	for _, m := range matches {
		if !m.Status.IsTerminal() {
			return false
		}
	}
	return true
}

// needsGrandFinalReset reports whether the losers-bracket champion just
// won the first grand final, forcing the deciding rematch.
func needsGrandFinalReset(m *models.Match) bool {
	if m.Section != models.SectionFinals || m.MatchNumber != 1 {
		return false
	}
	return m.WinnerID != nil && m.AwayParticipantID != nil && *m.WinnerID == *m.AwayParticipantID
}

func swissRounds(fieldSize int) int {
	if fieldSize < 2 {
		return 0
	}
	return int(math.Ceil(math.Log2(float64(fieldSize))))
}

// swissHistory reconstructs the encounter log from completed matches.
func swissHistory(matches []models.Match) seeding.History {
	history := make(seeding.History)
	for _, m := range matches {
		if m.Status != models.MatchCompleted || !m.HasBothParticipants() {
			continue
		}
		home, away := *m.HomeParticipantID, *m.AwayParticipantID
		switch {
		case m.IsDraw:
			history[home] = append(history[home], seeding.Encounter{OpponentID: away, Result: seeding.EncounterDraw})
			history[away] = append(history[away], seeding.Encounter{OpponentID: home, Result: seeding.EncounterDraw})
		case m.WinnerID != nil && *m.WinnerID == home:
			history[home] = append(history[home], seeding.Encounter{OpponentID: away, Result: seeding.EncounterWin})
			history[away] = append(history[away], seeding.Encounter{OpponentID: home, Result: seeding.EncounterLoss})
		default:
			history[home] = append(history[home], seeding.Encounter{OpponentID: away, Result: seeding.EncounterLoss})
			history[away] = append(history[away], seeding.Encounter{OpponentID: home, Result: seeding.EncounterWin})
		}
	}
	return history
}

// byeParticipant finds the active participant left out of a round.
func byeParticipant(active []*models.Participant, stubs []*models.Match) *models.Participant {
	seated := make(map[int]bool, len(stubs)*2)
	for _, m := range stubs {
		if m.HomeParticipantID != nil {
			seated[*m.HomeParticipantID] = true
		}
		if m.AwayParticipantID != nil {
			seated[*m.AwayParticipantID] = true
		}
	}
	for _, p := range active {
		if !seated[p.ID] {
			return p
		}
	}
	return nil
}
