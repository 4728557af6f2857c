package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/bracketline/tournament-engine/models"
)

var (
	ErrMatchNotFound           = errors.New("match not found")
	ErrMatchBracketUIDConflict = errors.New("bracket position already occupied")
	ErrMatchInvalidTournament  = errors.New("invalid tournament reference")
)

type MatchRepository interface {
	Create(ctx context.Context, exec SQLExecutor, match *models.Match) error
	GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Match, error)
	ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) ([]models.Match, error)
	ListByRound(ctx context.Context, exec SQLExecutor, tournamentID, round int) ([]models.Match, error)
	ListByStatus(ctx context.Context, exec SQLExecutor, status models.MatchStatus) ([]models.Match, error)
	UpdateLinks(ctx context.Context, exec SQLExecutor, id int, nextMatchID, loserNextMatchID *int) error
	UpdateParticipants(ctx context.Context, exec SQLExecutor, id int, homeID, awayID *int) error
	UpdateSchedule(ctx context.Context, exec SQLExecutor, id int, scheduledAt *time.Time) error
	UpdateStatus(ctx context.Context, exec SQLExecutor, id int, status models.MatchStatus, startedAt *time.Time) error
	RecordResult(ctx context.Context, exec SQLExecutor, match *models.Match) error
	DeleteByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) error
}

type postgresMatchRepository struct {
	db *sql.DB
}

func NewPostgresMatchRepository(db *sql.DB) MatchRepository {
	return &postgresMatchRepository{db: db}
}

func (r *postgresMatchRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const matchColumns = `
	id, tournament_id, round, match_number, bracket_uid, section,
	home_participant_id, away_participant_id, home_score, away_score,
	winner_id, is_draw, status,
	next_match_uid, prev_match1_uid, prev_match2_uid, loser_next_match_uid,
	next_match_id, loser_next_match_id,
	scheduled_at, started_at, completed_at, created_at`

func scanMatch(row interface{ Scan(...interface{}) error }) (*models.Match, error) {
	m := &models.Match{}
	err := row.Scan(
		&m.ID, &m.TournamentID, &m.Round, &m.MatchNumber, &m.BracketUID, &m.Section,
		&m.HomeParticipantID, &m.AwayParticipantID, &m.HomeScore, &m.AwayScore,
		&m.WinnerID, &m.IsDraw, &m.Status,
		&m.NextMatchUID, &m.PrevMatch1UID, &m.PrevMatch2UID, &m.LoserNextMatchUID,
		&m.NextMatchID, &m.LoserNextMatchID,
		&m.ScheduledAt, &m.StartedAt, &m.CompletedAt, &m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (r *postgresMatchRepository) Create(ctx context.Context, exec SQLExecutor, m *models.Match) error {
	executor := r.getExecutor(exec)
	query := `
		INSERT INTO matches (
			tournament_id, round, match_number, bracket_uid, section,
			home_participant_id, away_participant_id, status,
			next_match_uid, prev_match1_uid, prev_match2_uid, loser_next_match_uid,
			scheduled_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, created_at`

	err := executor.QueryRowContext(ctx, query,
		m.TournamentID, m.Round, m.MatchNumber, m.BracketUID, m.Section,
		m.HomeParticipantID, m.AwayParticipantID, m.Status,
		m.NextMatchUID, m.PrevMatch1UID, m.PrevMatch2UID, m.LoserNextMatchUID,
		m.ScheduledAt,
	).Scan(&m.ID, &m.CreatedAt)

	return r.handleMatchError(err)
}

func (r *postgresMatchRepository) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Match, error) {
	executor := r.getExecutor(exec)
	query := `SELECT` + matchColumns + ` FROM matches WHERE id = $1`

	m, err := scanMatch(executor.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMatchNotFound
		}
		return nil, err
	}
	return m, nil
}

func (r *postgresMatchRepository) ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) ([]models.Match, error) {
	executor := r.getExecutor(exec)
	query := `SELECT` + matchColumns + ` FROM matches WHERE tournament_id = $1 ORDER BY round, match_number`
	return r.queryMatches(ctx, executor, query, tournamentID)
}

func (r *postgresMatchRepository) ListByRound(ctx context.Context, exec SQLExecutor, tournamentID, round int) ([]models.Match, error) {
	executor := r.getExecutor(exec)
	query := `SELECT` + matchColumns + ` FROM matches WHERE tournament_id = $1 AND round = $2 ORDER BY match_number`
	return r.queryMatches(ctx, executor, query, tournamentID, round)
}

func (r *postgresMatchRepository) ListByStatus(ctx context.Context, exec SQLExecutor, status models.MatchStatus) ([]models.Match, error) {
	executor := r.getExecutor(exec)
	query := `SELECT` + matchColumns + ` FROM matches WHERE status = $1 ORDER BY tournament_id, round, match_number`
	return r.queryMatches(ctx, executor, query, status)
}

func (r *postgresMatchRepository) queryMatches(ctx context.Context, executor SQLExecutor, query string, args ...interface{}) ([]models.Match, error) {
	rows, err := executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	matches := make([]models.Match, 0)
	for rows.Next() {
		m, scanErr := scanMatch(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		matches = append(matches, *m)
	}
	return matches, rows.Err()
}

// UpdateLinks resolves the UID links into database ids after the whole
// bracket has been inserted.
func (r *postgresMatchRepository) UpdateLinks(ctx context.Context, exec SQLExecutor, id int, nextMatchID, loserNextMatchID *int) error {
	executor := r.getExecutor(exec)
	query := `UPDATE matches SET next_match_id = $1, loser_next_match_id = $2 WHERE id = $3`
	result, err := executor.ExecContext(ctx, query, nextMatchID, loserNextMatchID, id)
	if err != nil {
		return fmt.Errorf("failed to update match links: %w", err)
	}
	return checkAffectedRows(result, ErrMatchNotFound)
}

func (r *postgresMatchRepository) UpdateParticipants(ctx context.Context, exec SQLExecutor, id int, homeID, awayID *int) error {
	executor := r.getExecutor(exec)
	query := `UPDATE matches SET home_participant_id = $1, away_participant_id = $2 WHERE id = $3`
	result, err := executor.ExecContext(ctx, query, homeID, awayID, id)
	if err != nil {
		return fmt.Errorf("failed to update match participants: %w", err)
	}
	return checkAffectedRows(result, ErrMatchNotFound)
}

func (r *postgresMatchRepository) UpdateSchedule(ctx context.Context, exec SQLExecutor, id int, scheduledAt *time.Time) error {
	executor := r.getExecutor(exec)
	query := `UPDATE matches SET scheduled_at = $1 WHERE id = $2`
	result, err := executor.ExecContext(ctx, query, scheduledAt, id)
	if err != nil {
		return fmt.Errorf("failed to update match schedule: %w", err)
	}
	return checkAffectedRows(result, ErrMatchNotFound)
}

func (r *postgresMatchRepository) UpdateStatus(ctx context.Context, exec SQLExecutor, id int, status models.MatchStatus, startedAt *time.Time) error {
	executor := r.getExecutor(exec)
	query := `UPDATE matches SET status = $1, started_at = COALESCE($2, started_at) WHERE id = $3`
	result, err := executor.ExecContext(ctx, query, status, startedAt, id)
	if err != nil {
		return fmt.Errorf("failed to update match status: %w", err)
	}
	return checkAffectedRows(result, ErrMatchNotFound)
}

// RecordResult writes the final score, winner and completion time.
func (r *postgresMatchRepository) RecordResult(ctx context.Context, exec SQLExecutor, m *models.Match) error {
	executor := r.getExecutor(exec)
	query := `
		UPDATE matches SET
			home_score = $1,
			away_score = $2,
			winner_id = $3,
			is_draw = $4,
			status = $5,
			completed_at = $6
		WHERE id = $7`

	result, err := executor.ExecContext(ctx, query,
		m.HomeScore, m.AwayScore, m.WinnerID, m.IsDraw, m.Status, m.CompletedAt,
		m.ID,
	)
	if err != nil {
		return r.handleMatchError(err)
	}
	return checkAffectedRows(result, ErrMatchNotFound)
}

func (r *postgresMatchRepository) DeleteByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) error {
	executor := r.getExecutor(exec)
	query := `DELETE FROM matches WHERE tournament_id = $1`
	if _, err := executor.ExecContext(ctx, query, tournamentID); err != nil {
		return fmt.Errorf("failed to delete matches for tournament %d: %w", tournamentID, err)
	}
	return nil
}

func (r *postgresMatchRepository) handleMatchError(err error) error {
	if err == nil {
		return nil
	}
	if pqErr, ok := err.(*pq.Error); ok {
		switch pqErr.Code {
		case "23505":
			if pqErr.Constraint == "matches_tournament_id_bracket_uid_key" {
				return ErrMatchBracketUIDConflict
			}
		case "23503":
			if pqErr.Constraint == "matches_tournament_id_fkey" {
				return ErrMatchInvalidTournament
			}
		}
	}
	return err
}
