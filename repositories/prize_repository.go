package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/bracketline/tournament-engine/models"
)

var ErrPrizesAlreadyDistributed = errors.New("prizes already distributed for this tournament")

type PrizeRepository interface {
	CreateAll(ctx context.Context, exec SQLExecutor, tournamentID int, payouts []models.PrizeDistribution) error
	ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) ([]models.PrizeDistribution, error)
	ExistsForTournament(ctx context.Context, exec SQLExecutor, tournamentID int) (bool, error)
}

type postgresPrizeRepository struct {
	db *sql.DB
}

func NewPostgresPrizeRepository(db *sql.DB) PrizeRepository {
	return &postgresPrizeRepository{db: db}
}

func (r *postgresPrizeRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

// CreateAll persists a payout table atomically. Call inside the same
// transaction that flips the tournament to completed.
func (r *postgresPrizeRepository) CreateAll(ctx context.Context, exec SQLExecutor, tournamentID int, payouts []models.PrizeDistribution) error {
	executor := r.getExecutor(exec)

	exists, err := r.ExistsForTournament(ctx, executor, tournamentID)
	if err != nil {
		return err
	}
	if exists {
		return ErrPrizesAlreadyDistributed
	}

	query := `
		INSERT INTO prize_distributions (
			tournament_id, rank, prize_amount, prize_type, currency, winner_id, label
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	for _, payout := range payouts {
		if _, err := executor.ExecContext(ctx, query,
			tournamentID, payout.Rank, payout.PrizeAmount, payout.PrizeType,
			payout.Currency, payout.WinnerID, payout.Label,
		); err != nil {
			return fmt.Errorf("failed to insert prize for rank %d: %w", payout.Rank, err)
		}
	}
	return nil
}

func (r *postgresPrizeRepository) ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) ([]models.PrizeDistribution, error) {
	executor := r.getExecutor(exec)
	query := `
		SELECT rank, prize_amount, prize_type, currency, winner_id, label
		FROM prize_distributions
		WHERE tournament_id = $1
		ORDER BY rank, id`

	rows, err := executor.QueryContext(ctx, query, tournamentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payouts := make([]models.PrizeDistribution, 0)
	for rows.Next() {
		var p models.PrizeDistribution
		if scanErr := rows.Scan(&p.Rank, &p.PrizeAmount, &p.PrizeType, &p.Currency, &p.WinnerID, &p.Label); scanErr != nil {
			return nil, scanErr
		}
		payouts = append(payouts, p)
	}
	return payouts, rows.Err()
}

func (r *postgresPrizeRepository) ExistsForTournament(ctx context.Context, exec SQLExecutor, tournamentID int) (bool, error) {
	executor := r.getExecutor(exec)
	query := `SELECT EXISTS(SELECT 1 FROM prize_distributions WHERE tournament_id = $1)`

	var exists bool
	if err := executor.QueryRowContext(ctx, query, tournamentID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check prize distribution for tournament %d: %w", tournamentID, err)
	}
	return exists, nil
}
