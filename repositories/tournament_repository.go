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
	ErrTournamentNotFound     = errors.New("tournament not found")
	ErrTournamentNameConflict = errors.New("tournament name already taken")
	ErrTournamentInUse        = errors.New("tournament is in use (participants/matches exist)")
)

type ListTournamentsFilter struct {
	Format *models.TournamentFormat
	Status *models.TournamentStatus
	Limit  int
	Offset int
}

type TournamentRepository interface {
	Create(ctx context.Context, tournament *models.Tournament) error
	GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Tournament, error)
	GetByIDForUpdate(ctx context.Context, exec SQLExecutor, id int) (*models.Tournament, error)
	List(ctx context.Context, filter ListTournamentsFilter) ([]models.Tournament, error)
	Update(ctx context.Context, tournament *models.Tournament) error
	UpdateStatus(ctx context.Context, exec SQLExecutor, id int, status models.TournamentStatus) error
	SetEndAt(ctx context.Context, exec SQLExecutor, id int, endAt time.Time) error
	Delete(ctx context.Context, id int) error
	ListDueForTransition(ctx context.Context, exec SQLExecutor, now time.Time) ([]*models.Tournament, error)
}

type postgresTournamentRepository struct {
	db *sql.DB
}

func NewPostgresTournamentRepository(db *sql.DB) TournamentRepository {
	return &postgresTournamentRepository{db: db}
}

func (r *postgresTournamentRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const tournamentColumns = `
	id, name, format, status, min_participants, max_participants,
	reg_opens_at, reg_closes_at, start_at, end_at, settings_json, created_at`

func scanTournament(row interface{ Scan(...interface{}) error }) (*models.Tournament, error) {
	t := &models.Tournament{}
	err := row.Scan(
		&t.ID, &t.Name, &t.Format, &t.Status, &t.MinParticipants, &t.MaxParticipants,
		&t.RegOpensAt, &t.RegClosesAt, &t.StartAt, &t.EndAt, &t.SettingsJSON, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (r *postgresTournamentRepository) Create(ctx context.Context, t *models.Tournament) error {
	query := `
		INSERT INTO tournaments (
			name, format, status, min_participants, max_participants,
			reg_opens_at, reg_closes_at, start_at, settings_json
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query,
		t.Name, t.Format, t.Status, t.MinParticipants, t.MaxParticipants,
		t.RegOpensAt, t.RegClosesAt, t.StartAt, t.SettingsJSON,
	).Scan(&t.ID, &t.CreatedAt)

	return r.handleTournamentError(err)
}

func (r *postgresTournamentRepository) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Tournament, error) {
	executor := r.getExecutor(exec)
	query := `SELECT` + tournamentColumns + ` FROM tournaments WHERE id = $1`

	t, err := scanTournament(executor.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTournamentNotFound
		}
		return nil, err
	}
	return t, nil
}

// GetByIDForUpdate takes a row lock so concurrent lifecycle transitions
// on the same tournament serialize. Call inside a transaction.
func (r *postgresTournamentRepository) GetByIDForUpdate(ctx context.Context, exec SQLExecutor, id int) (*models.Tournament, error) {
	executor := r.getExecutor(exec)
	query := `SELECT` + tournamentColumns + ` FROM tournaments WHERE id = $1 FOR UPDATE`

	t, err := scanTournament(executor.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTournamentNotFound
		}
		return nil, err
	}
	return t, nil
}

func (r *postgresTournamentRepository) List(ctx context.Context, filter ListTournamentsFilter) ([]models.Tournament, error) {
	query := `SELECT` + tournamentColumns + ` FROM tournaments WHERE 1=1`

	args := []interface{}{}
	argID := 1

	if filter.Format != nil {
		query += fmt.Sprintf(" AND format = $%d", argID)
		args = append(args, *filter.Format)
		argID++
	}
	if filter.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argID)
		args = append(args, *filter.Status)
		argID++
	}

	query += " ORDER BY start_at DESC, created_at DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argID)
		args = append(args, filter.Limit)
		argID++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argID)
		args = append(args, filter.Offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tournaments := make([]models.Tournament, 0)
	for rows.Next() {
		t, scanErr := scanTournament(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		tournaments = append(tournaments, *t)
	}
	return tournaments, rows.Err()
}

func (r *postgresTournamentRepository) Update(ctx context.Context, t *models.Tournament) error {
	query := `
		UPDATE tournaments SET
			name = $1,
			format = $2,
			status = $3,
			min_participants = $4,
			max_participants = $5,
			reg_opens_at = $6,
			reg_closes_at = $7,
			start_at = $8,
			settings_json = $9
		WHERE id = $10`

	result, err := r.db.ExecContext(ctx, query,
		t.Name, t.Format, t.Status, t.MinParticipants, t.MaxParticipants,
		t.RegOpensAt, t.RegClosesAt, t.StartAt, t.SettingsJSON,
		t.ID,
	)
	if err != nil {
		return r.handleTournamentError(err)
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

func (r *postgresTournamentRepository) UpdateStatus(ctx context.Context, exec SQLExecutor, id int, status models.TournamentStatus) error {
	executor := r.getExecutor(exec)
	query := `UPDATE tournaments SET status = $1 WHERE id = $2`
	result, err := executor.ExecContext(ctx, query, status, id)
	if err != nil {
		return r.handleTournamentError(err)
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

func (r *postgresTournamentRepository) SetEndAt(ctx context.Context, exec SQLExecutor, id int, endAt time.Time) error {
	executor := r.getExecutor(exec)
	query := `UPDATE tournaments SET end_at = $1 WHERE id = $2`
	result, err := executor.ExecContext(ctx, query, endAt, id)
	if err != nil {
		return fmt.Errorf("failed to set tournament end time: %w", err)
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

func (r *postgresTournamentRepository) Delete(ctx context.Context, id int) error {
	query := `DELETE FROM tournaments WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return r.handleTournamentError(err)
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

// ListDueForTransition returns tournaments whose clock has passed a
// lifecycle boundary: registration should open or close, or play should
// have started. The automation sweep drives each through its service.
func (r *postgresTournamentRepository) ListDueForTransition(ctx context.Context, exec SQLExecutor, now time.Time) ([]*models.Tournament, error) {
	executor := r.getExecutor(exec)
	query := `
		SELECT` + tournamentColumns + `
		FROM tournaments
		WHERE (status = $1 AND reg_opens_at <= $4)
		   OR (status = $2 AND reg_closes_at <= $4)
		   OR (status = $3 AND start_at <= $4)
		ORDER BY id`

	rows, err := executor.QueryContext(ctx, query,
		models.StatusDraft,
		models.StatusRegistrationOpen,
		models.StatusRegistrationClosed,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query tournaments due for transition: %w", err)
	}
	defer rows.Close()

	var tournaments []*models.Tournament
	for rows.Next() {
		t, scanErr := scanTournament(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan tournament due for transition: %w", scanErr)
		}
		tournaments = append(tournaments, t)
	}
	return tournaments, rows.Err()
}

func (r *postgresTournamentRepository) handleTournamentError(err error) error {
	if err == nil {
		return nil
	}
	if pqErr, ok := err.(*pq.Error); ok {
		switch pqErr.Code {
		case "23505":
			if pqErr.Constraint == "tournaments_name_key" {
				return ErrTournamentNameConflict
			}
		case "23503":
			return ErrTournamentInUse
		}
	}
	return err
}
