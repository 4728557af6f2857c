package models

import (
	"encoding/json"
	"time"
)

// TournamentStatus mirrors the tournament_status ENUM in the database.
type TournamentStatus string

const (
	StatusDraft              TournamentStatus = "draft"
	StatusRegistrationOpen   TournamentStatus = "registration_open"
	StatusRegistrationClosed TournamentStatus = "registration_closed"
	StatusInProgress         TournamentStatus = "in_progress"
	StatusTournamentComplete TournamentStatus = "completed"
	StatusTournamentCanceled TournamentStatus = "cancelled"
)

type TournamentFormat string

const (
	FormatSingleElimination TournamentFormat = "single_elimination"
	FormatDoubleElimination TournamentFormat = "double_elimination"
	FormatRoundRobin        TournamentFormat = "round_robin"
	FormatSwiss             TournamentFormat = "swiss"
)

// IsElimination reports whether the format advances winners through a bracket tree.
func (f TournamentFormat) IsElimination() bool {
	return f == FormatSingleElimination || f == FormatDoubleElimination
}

type SeedingMethod string

const (
	SeedingStandard SeedingMethod = "standard"
	SeedingRandom   SeedingMethod = "random"
	SeedingSkill    SeedingMethod = "skill"
)

// TournamentSettings holds the format-specific knobs stored as settings_json.
type TournamentSettings struct {
	MatchDurationMinutes int           `json:"match_duration_minutes"`
	SeedingMethod        SeedingMethod `json:"seeding_method"`
	PrizePool            float64       `json:"prize_pool"`
	Currency             string        `json:"currency"`
	PrizeTable           []PrizeTier   `json:"prize_table,omitempty"`
	MostWinsBonus        float64       `json:"most_wins_bonus,omitempty"`
	SportsmanshipBonus   float64       `json:"sportsmanship_bonus,omitempty"`
	MinRating            int           `json:"min_rating,omitempty"`
	MaxRating            int           `json:"max_rating,omitempty"`
	TeamBased            bool          `json:"team_based,omitempty"`
}

type Tournament struct {
	ID              int              `json:"id" db:"id"`
	Name            string           `json:"name" db:"name"`
	Format          TournamentFormat `json:"format" db:"format"`
	Status          TournamentStatus `json:"status" db:"status"`
	MinParticipants int              `json:"min_participants" db:"min_participants"`
	MaxParticipants int              `json:"max_participants" db:"max_participants"`
	RegOpensAt      time.Time        `json:"reg_opens_at" db:"reg_opens_at"`
	RegClosesAt     time.Time        `json:"reg_closes_at" db:"reg_closes_at"`
	StartAt         time.Time        `json:"start_at" db:"start_at"`
	EndAt           *time.Time       `json:"end_at,omitempty" db:"end_at"`
	SettingsJSON    *string          `json:"-" db:"settings_json"`
	CreatedAt       time.Time        `json:"created_at" db:"created_at"`

	// Optional linked entities, populated by services, never mapped directly.
	Participants []Participant `json:"participants,omitempty" db:"-"`
	Matches      []Match       `json:"matches,omitempty" db:"-"`
}

// GetSettings parses settings_json, falling back to sane defaults for
// anything unset. A missing blob is not an error.
func (t *Tournament) GetSettings() (*TournamentSettings, error) {
	settings := &TournamentSettings{
		MatchDurationMinutes: 60,
		SeedingMethod:        SeedingStandard,
		Currency:             "USD",
	}
	if t.SettingsJSON == nil || *t.SettingsJSON == "" {
		return settings, nil
	}
	if err := json.Unmarshal([]byte(*t.SettingsJSON), settings); err != nil {
		return nil, err
	}
	if settings.MatchDurationMinutes <= 0 {
		settings.MatchDurationMinutes = 60
	}
	if settings.SeedingMethod == "" {
		settings.SeedingMethod = SeedingStandard
	}
	if settings.Currency == "" {
		settings.Currency = "USD"
	}
	return settings, nil
}
