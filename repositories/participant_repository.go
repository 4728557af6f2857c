package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/bracketline/tournament-engine/models"
)

var (
	ErrParticipantNotFound          = errors.New("participant not found")
	ErrParticipantAlreadyRegistered = errors.New("player already registered in this tournament")
	ErrParticipantInvalidTournament = errors.New("invalid tournament reference")
)

type ParticipantRepository interface {
	Create(ctx context.Context, exec SQLExecutor, participant *models.Participant) error
	GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Participant, error)
	ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) ([]models.Participant, error)
	CountByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) (int, error)
	UpdateSeed(ctx context.Context, exec SQLExecutor, id int, seed int) error
	UpdateStatus(ctx context.Context, exec SQLExecutor, id int, status models.ParticipantStatus) error
	UpdateRecord(ctx context.Context, exec SQLExecutor, p *models.Participant) error
	UpdateRank(ctx context.Context, exec SQLExecutor, id int, rank *int) error
	Delete(ctx context.Context, exec SQLExecutor, id int) error
}

type postgresParticipantRepository struct {
	db *sql.DB
}

func NewPostgresParticipantRepository(db *sql.DB) ParticipantRepository {
	return &postgresParticipantRepository{db: db}
}

func (r *postgresParticipantRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const participantColumns = `
	id, tournament_id, player_id, team_id, seed, rating,
	wins, losses, draws, points, status, current_rank, created_at`

func scanParticipant(row interface{ Scan(...interface{}) error }) (*models.Participant, error) {
	p := &models.Participant{}
	err := row.Scan(
		&p.ID, &p.TournamentID, &p.PlayerID, &p.TeamID, &p.Seed, &p.Rating,
		&p.Wins, &p.Losses, &p.Draws, &p.Points, &p.Status, &p.CurrentRank, &p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *postgresParticipantRepository) Create(ctx context.Context, exec SQLExecutor, p *models.Participant) error {
	executor := r.getExecutor(exec)
	query := `
		INSERT INTO participants (
			tournament_id, player_id, team_id, seed, rating, status
		) VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`

	err := executor.QueryRowContext(ctx, query,
		p.TournamentID, p.PlayerID, p.TeamID, p.Seed, p.Rating, p.Status,
	).Scan(&p.ID, &p.CreatedAt)

	return r.handleParticipantError(err)
}

func (r *postgresParticipantRepository) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Participant, error) {
	executor := r.getExecutor(exec)
	query := `SELECT` + participantColumns + ` FROM participants WHERE id = $1`

	p, err := scanParticipant(executor.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrParticipantNotFound
		}
		return nil, err
	}
	return p, nil
}

func (r *postgresParticipantRepository) ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) ([]models.Participant, error) {
	executor := r.getExecutor(exec)
	query := `SELECT` + participantColumns + ` FROM participants WHERE tournament_id = $1 ORDER BY seed, id`

	rows, err := executor.QueryContext(ctx, query, tournamentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	participants := make([]models.Participant, 0)
	for rows.Next() {
		p, scanErr := scanParticipant(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		participants = append(participants, *p)
	}
	return participants, rows.Err()
}

func (r *postgresParticipantRepository) CountByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) (int, error) {
	executor := r.getExecutor(exec)
	query := `SELECT COUNT(*) FROM participants WHERE tournament_id = $1`

	var count int
	if err := executor.QueryRowContext(ctx, query, tournamentID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count participants for tournament %d: %w", tournamentID, err)
	}
	return count, nil
}

func (r *postgresParticipantRepository) UpdateSeed(ctx context.Context, exec SQLExecutor, id int, seed int) error {
	executor := r.getExecutor(exec)
	query := `UPDATE participants SET seed = $1 WHERE id = $2`
	result, err := executor.ExecContext(ctx, query, seed, id)
	if err != nil {
		return fmt.Errorf("failed to update participant seed: %w", err)
	}
	return checkAffectedRows(result, ErrParticipantNotFound)
}

func (r *postgresParticipantRepository) UpdateStatus(ctx context.Context, exec SQLExecutor, id int, status models.ParticipantStatus) error {
	executor := r.getExecutor(exec)
	query := `UPDATE participants SET status = $1 WHERE id = $2`
	result, err := executor.ExecContext(ctx, query, status, id)
	if err != nil {
		return fmt.Errorf("failed to update participant status: %w", err)
	}
	return checkAffectedRows(result, ErrParticipantNotFound)
}

// UpdateRecord writes the win/loss/draw tallies and points in one shot.
func (r *postgresParticipantRepository) UpdateRecord(ctx context.Context, exec SQLExecutor, p *models.Participant) error {
	executor := r.getExecutor(exec)
	query := `
		UPDATE participants SET
			wins = $1, losses = $2, draws = $3, points = $4
		WHERE id = $5`

	result, err := executor.ExecContext(ctx, query, p.Wins, p.Losses, p.Draws, p.Points, p.ID)
	if err != nil {
		return fmt.Errorf("failed to update participant record: %w", err)
	}
	return checkAffectedRows(result, ErrParticipantNotFound)
}

func (r *postgresParticipantRepository) UpdateRank(ctx context.Context, exec SQLExecutor, id int, rank *int) error {
	executor := r.getExecutor(exec)
	query := `UPDATE participants SET current_rank = $1 WHERE id = $2`
	result, err := executor.ExecContext(ctx, query, rank, id)
	if err != nil {
		return fmt.Errorf("failed to update participant rank: %w", err)
	}
	return checkAffectedRows(result, ErrParticipantNotFound)
}

func (r *postgresParticipantRepository) Delete(ctx context.Context, exec SQLExecutor, id int) error {
	executor := r.getExecutor(exec)
	query := `DELETE FROM participants WHERE id = $1`
	result, err := executor.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrParticipantNotFound)
}

func (r *postgresParticipantRepository) handleParticipantError(err error) error {
	if err == nil {
		return nil
	}
	if pqErr, ok := err.(*pq.Error); ok {
		switch pqErr.Code {
		case "23505":
			if pqErr.Constraint == "participants_tournament_id_player_id_key" {
				return ErrParticipantAlreadyRegistered
			}
		case "23503":
			if pqErr.Constraint == "participants_tournament_id_fkey" {
				return ErrParticipantInvalidTournament
			}
		}
	}
	return err
}
