package brackets

import (
	"fmt"
	"sort"
	"time"

	"github.com/bracketline/tournament-engine/models"
)

// Apply writes a completed result into the bracket and advances the
// winner into the first open slot of its next match (home if empty, else
// away). For double elimination the loser drops the same way. Applying
// the same result twice is a no-op: the slots are already filled.
func Apply(bracket *models.BracketStructure, result models.MatchResult) error {
	var match *models.Match
	for _, round := range bracket.Rounds {
		for _, m := range round.Matches {
			if m.ID == result.MatchID {
				match = m
				break
			}
		}
	}
	if match == nil {
		return fmt.Errorf("%w: id %d", ErrMatchNotFoundInBracket, result.MatchID)
	}

	if match.Status != models.MatchCompleted {
		now := time.Now()
		match.HomeScore = &result.HomeScore
		match.AwayScore = &result.AwayScore
		match.WinnerID = result.WinnerID
		match.IsDraw = result.IsDraw
		match.Status = models.MatchCompleted
		match.CompletedAt = &now
	}

	if match.WinnerID != nil && match.NextMatchUID != nil {
		if target := bracket.FindByUID(*match.NextMatchUID); target != nil {
			placeInOpenSlot(target, *match.WinnerID)
		}
	}
	if loser := match.LoserID(); loser != nil && match.LoserNextMatchUID != nil {
		if target := bracket.FindByUID(*match.LoserNextMatchUID); target != nil {
			placeInOpenSlot(target, *loser)
		}
	}
	return nil
}

func placeInOpenSlot(target *models.Match, participantID int) {
	if target.HomeParticipantID != nil && *target.HomeParticipantID == participantID {
		return
	}
	if target.AwayParticipantID != nil && *target.AwayParticipantID == participantID {
		return
	}
	if target.HomeParticipantID == nil {
		target.HomeParticipantID = &participantID
		return
	}
	if target.AwayParticipantID == nil {
		target.AwayParticipantID = &participantID
	}
}

// Rebuild reconstructs the bracket view from a flat match list, keyed by
// (round, matchNumber). Matches reference each other by id/UID only, so
// there is nothing else to resolve.
func Rebuild(format models.TournamentFormat, matches []*models.Match) *models.BracketStructure {
	byRound := make(map[int][]*models.Match)
	for _, m := range matches {
		byRound[m.Round] = append(byRound[m.Round], m)
	}

	roundNumbers := make([]int, 0, len(byRound))
	for r := range byRound {
		roundNumbers = append(roundNumbers, r)
	}
	sort.Ints(roundNumbers)

	rounds := make([]models.Round, 0, len(roundNumbers))
	totalRounds := 0
	for _, r := range roundNumbers {
		ms := byRound[r]
		sort.Slice(ms, func(i, j int) bool { return ms[i].MatchNumber < ms[j].MatchNumber })
		completed := true
		for _, m := range ms {
			if !m.Status.IsTerminal() {
				completed = false
				break
			}
		}
		rounds = append(rounds, models.Round{RoundNumber: r, Matches: ms, IsCompleted: completed})
		if r > totalRounds {
			totalRounds = r
		}
	}

	return &models.BracketStructure{Format: format, Rounds: rounds, TotalRounds: totalRounds}
}
