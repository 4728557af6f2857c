package models

import "time"

type PrizeType string

const (
	PrizePercentage PrizeType = "percentage"
	PrizeFixed      PrizeType = "fixed"
	PrizeBonus      PrizeType = "bonus"
)

// PrizeTier is one row of a prize table before it is converted to an
// absolute amount. Exactly one of Percent or Amount should be set.
type PrizeTier struct {
	Rank    int     `json:"rank"`
	Percent float64 `json:"percent,omitempty"`
	Amount  float64 `json:"amount,omitempty"`
}

// PrizeDistribution is a single payout line created at tournament
// completion. Bonus entries carry rank 0.
type PrizeDistribution struct {
	ID           int       `json:"id" db:"id"`
	TournamentID int       `json:"tournament_id" db:"tournament_id"`
	Rank         int       `json:"rank" db:"rank"`
	PrizeAmount  float64   `json:"prize_amount" db:"prize_amount"`
	PrizeType    PrizeType `json:"prize_type" db:"prize_type"`
	Currency     string    `json:"currency" db:"currency"`
	WinnerID     *int      `json:"winner_id,omitempty" db:"winner_id"`
	Label        *string   `json:"label,omitempty" db:"label"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}
