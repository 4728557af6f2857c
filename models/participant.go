package models

import "time"

// ParticipantStatus mirrors the participant_status ENUM in the database.
type ParticipantStatus string

const (
	ParticipantRegistered   ParticipantStatus = "registered"
	ParticipantConfirmed    ParticipantStatus = "confirmed"
	ParticipantActive       ParticipantStatus = "active"
	ParticipantEliminated   ParticipantStatus = "eliminated"
	ParticipantWithdrawn    ParticipantStatus = "withdrawn"
	ParticipantDisqualified ParticipantStatus = "disqualified"
)

// ByeSeed marks the synthetic participants used to pad a field up to a
// power of two. Bye entries never get a database row.
const ByeSeed = 999

type Participant struct {
	ID           int               `json:"id" db:"id"`
	TournamentID int               `json:"tournament_id" db:"tournament_id"`
	PlayerID     int               `json:"player_id" db:"player_id"`
	TeamID       *int              `json:"team_id,omitempty" db:"team_id"`
	Seed         int               `json:"seed" db:"seed"`
	Rating       int               `json:"rating" db:"rating"`
	Wins         int               `json:"wins" db:"wins"`
	Losses       int               `json:"losses" db:"losses"`
	Draws        int               `json:"draws" db:"draws"`
	Points       int               `json:"points" db:"points"`
	Status       ParticipantStatus `json:"status" db:"status"`
	CurrentRank  *int              `json:"current_rank,omitempty" db:"current_rank"`
	CreatedAt    time.Time         `json:"created_at" db:"created_at"`
}

func (p *Participant) IsBye() bool {
	return p == nil || p.Seed == ByeSeed
}

func (p *Participant) GamesPlayed() int {
	return p.Wins + p.Losses + p.Draws
}

func (p *Participant) WinRate() float64 {
	played := p.GamesPlayed()
	if played == 0 {
		return 0
	}
	return float64(p.Wins) / float64(played)
}
