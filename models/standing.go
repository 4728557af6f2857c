package models

import "time"

// Standing is one leaderboard row, recomputed from participant records.
type Standing struct {
	TournamentID  int       `json:"tournament_id"`
	ParticipantID int       `json:"participant_id"`
	PlayerID      int       `json:"player_id"`
	TeamID        *int      `json:"team_id,omitempty"`
	Rank          int       `json:"rank"`
	Points        int       `json:"points"`
	GamesPlayed   int       `json:"games_played"`
	Wins          int       `json:"wins"`
	Draws         int       `json:"draws"`
	Losses        int       `json:"losses"`
	UpdatedAt     time.Time `json:"updated_at"`
}
