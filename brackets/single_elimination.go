package brackets

import (
	"context"

	"github.com/bracketline/tournament-engine/models"
)

type SingleEliminationGenerator struct{}

func (g *SingleEliminationGenerator) Name() string { return "SingleElimination" }

// Generate builds ceil(log2(N)) rounds of linked match stubs. The field is
// padded to a power of two; byes never become matches, the participant with
// the bye is advanced straight into its round-2 slot.
func (g *SingleEliminationGenerator) Generate(ctx context.Context, params GenerateParams) (*models.BracketStructure, error) {
	rounds, totalRounds, err := buildWinnersBracket(params.Tournament.ID, params.Participants)
	if err != nil {
		return nil, err
	}
	return &models.BracketStructure{
		Format:      models.FormatSingleElimination,
		Rounds:      rounds,
		TotalRounds: totalRounds,
	}, nil
}

// buildWinnersBracket is shared by single and double elimination: it pads
// the field, creates every round's stubs, links them 2-to-1 and resolves
// round-1 byes by advancing the present side.
func buildWinnersBracket(tournamentID int, participants []*models.Participant) ([]models.Round, int, error) {
	real := 0
	for _, p := range participants {
		if !p.IsBye() {
			real++
		}
	}
	if real < 2 {
		return nil, 0, ErrNotEnoughParticipants
	}

	size := 1
	for size < len(participants) {
		size *= 2
	}
	slots := make([]*models.Participant, size)
	copy(slots, participants)

	totalRounds := roundsFor(size)
	byUID := make(map[string]*models.Match)
	rounds := make([]models.Round, totalRounds)

	for r := 1; r <= totalRounds; r++ {
		count := size >> uint(r)
		matches := make([]*models.Match, 0, count)
		for m := 1; m <= count; m++ {
			stub := newStub(tournamentID, models.SectionWinners, r, m)
			if r < totalRounds {
				stub.NextMatchUID = strPtr(MatchUID(models.SectionWinners, r+1, (m+1)/2))
			}
			if r > 1 {
				stub.PrevMatch1UID = strPtr(MatchUID(models.SectionWinners, r-1, 2*m-1))
				stub.PrevMatch2UID = strPtr(MatchUID(models.SectionWinners, r-1, 2*m))
			}
			byUID[*stub.BracketUID] = stub
			matches = append(matches, stub)
		}
		rounds[r-1] = models.Round{RoundNumber: r, Matches: matches}
	}

	// Fill round 1 from the seeded bracket order and resolve byes.
	kept := make([]*models.Match, 0, len(rounds[0].Matches))
	for _, stub := range rounds[0].Matches {
		m := stub.MatchNumber
		home := slots[2*m-2]
		away := slots[2*m-1]

		homeReal := home != nil && !home.IsBye()
		awayReal := away != nil && !away.IsBye()

		switch {
		case homeReal && awayReal:
			stub.HomeParticipantID = &home.ID
			stub.AwayParticipantID = &away.ID
			kept = append(kept, stub)
		case homeReal || awayReal:
			advancer := home
			if awayReal {
				advancer = away
			}
			advanceBye(byUID, stub, advancer)
		default:
			// Two byes met: nothing feeds the parent from this slot.
			dropFeeder(byUID, stub)
		}
	}
	rounds[0].Matches = kept

	return rounds, totalRounds, nil
}

// advanceBye removes a bye stub and puts its real participant straight
// into the parent match. Odd match numbers feed the parent's home slot.
func advanceBye(byUID map[string]*models.Match, stub *models.Match, p *models.Participant) {
	dropFeeder(byUID, stub)
	if stub.NextMatchUID == nil {
		return
	}
	parent, ok := byUID[*stub.NextMatchUID]
	if !ok {
		return
	}
	if stub.MatchNumber%2 == 1 {
		parent.HomeParticipantID = &p.ID
	} else {
		parent.AwayParticipantID = &p.ID
	}
}

// dropFeeder unhooks a removed round-1 stub from its parent's prev links.
func dropFeeder(byUID map[string]*models.Match, stub *models.Match) {
	if stub.NextMatchUID == nil {
		return
	}
	parent, ok := byUID[*stub.NextMatchUID]
	if !ok {
		return
	}
	if parent.PrevMatch1UID != nil && *parent.PrevMatch1UID == *stub.BracketUID {
		parent.PrevMatch1UID = nil
	}
	if parent.PrevMatch2UID != nil && *parent.PrevMatch2UID == *stub.BracketUID {
		parent.PrevMatch2UID = nil
	}
}
