package models

import "time"

// MatchStatus mirrors the match_status ENUM in the database.
type MatchStatus string

const (
	MatchScheduled  MatchStatus = "scheduled"
	MatchInProgress MatchStatus = "in_progress"
	MatchCompleted  MatchStatus = "completed"
	MatchCanceled   MatchStatus = "cancelled"
	MatchDisputed   MatchStatus = "disputed"
)

// IsTerminal reports whether no further transition is possible.
func (s MatchStatus) IsTerminal() bool {
	return s == MatchCompleted || s == MatchCanceled
}

// BracketSection tags which part of a double-elimination bracket a match
// belongs to. Single-bracket formats use SectionWinners throughout.
type BracketSection string

const (
	SectionWinners BracketSection = "winners"
	SectionLosers  BracketSection = "losers"
	SectionFinals  BracketSection = "finals"
)

type Match struct {
	ID           int            `json:"id" db:"id"`
	TournamentID int            `json:"tournament_id" db:"tournament_id"`
	Round        int            `json:"round" db:"round"`
	MatchNumber  int            `json:"match_number" db:"match_number"`
	BracketUID   *string        `json:"bracket_uid,omitempty" db:"bracket_uid"`
	Section      BracketSection `json:"section" db:"section"`

	HomeParticipantID *int `json:"home_participant_id,omitempty" db:"home_participant_id"`
	AwayParticipantID *int `json:"away_participant_id,omitempty" db:"away_participant_id"`

	HomeScore *int        `json:"home_score,omitempty" db:"home_score"`
	AwayScore *int        `json:"away_score,omitempty" db:"away_score"`
	WinnerID  *int        `json:"winner_id,omitempty" db:"winner_id"`
	IsDraw    bool        `json:"is_draw" db:"is_draw"`
	Status    MatchStatus `json:"status" db:"status"`

	// Bracket linkage. UIDs are assigned at generation time; the DB ids are
	// resolved once the match set is persisted.
	NextMatchUID      *string `json:"next_match_uid,omitempty" db:"next_match_uid"`
	PrevMatch1UID     *string `json:"prev_match1_uid,omitempty" db:"prev_match1_uid"`
	PrevMatch2UID     *string `json:"prev_match2_uid,omitempty" db:"prev_match2_uid"`
	LoserNextMatchUID *string `json:"loser_next_match_uid,omitempty" db:"loser_next_match_uid"`
	NextMatchID       *int    `json:"next_match_id,omitempty" db:"next_match_id"`
	LoserNextMatchID  *int    `json:"loser_next_match_id,omitempty" db:"loser_next_match_id"`

	ScheduledAt *time.Time `json:"scheduled_at,omitempty" db:"scheduled_at"`
	StartedAt   *time.Time `json:"started_at,omitempty" db:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
}

// HasBothParticipants reports whether both slots are filled.
func (m *Match) HasBothParticipants() bool {
	return m.HomeParticipantID != nil && m.AwayParticipantID != nil
}

// LoserID returns the participant that lost a completed, non-drawn match.
func (m *Match) LoserID() *int {
	if m.WinnerID == nil || !m.HasBothParticipants() {
		return nil
	}
	if *m.WinnerID == *m.HomeParticipantID {
		return m.AwayParticipantID
	}
	return m.HomeParticipantID
}

// MatchResult is the payload recorded against an in-progress match.
type MatchResult struct {
	MatchID   int  `json:"match_id"`
	HomeScore int  `json:"home_score"`
	AwayScore int  `json:"away_score"`
	IsDraw    bool `json:"is_draw"`
	WinnerID  *int `json:"winner_id,omitempty"`
}
