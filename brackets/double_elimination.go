package brackets

import (
	"context"

	"github.com/bracketline/tournament-engine/models"
)

type DoubleEliminationGenerator struct{}

func (g *DoubleEliminationGenerator) Name() string { return "DoubleElimination" }

// Generate builds a winners bracket identical to single elimination, a
// losers bracket of 2*(winnersRounds-1) rounds, and one grand final. The
// second grand final only exists if the losers-bracket finalist wins the
// first one, so it is created at match-completion time, not here.
//
// Losers rounds halve in pairs (N/4, N/4, N/8, N/8, ..., 1, 1): the odd
// rounds play survivors against each other, the even rounds absorb the
// losers dropping from the winners bracket, so every round has exactly
// one slot per feeder.
func (g *DoubleEliminationGenerator) Generate(ctx context.Context, params GenerateParams) (*models.BracketStructure, error) {
	tournamentID := params.Tournament.ID

	winnersRounds, totalWinners, err := buildWinnersBracket(tournamentID, params.Participants)
	if err != nil {
		return nil, err
	}

	size := 1
	for size < len(params.Participants) {
		size *= 2
	}

	losersTotal := 2 * (totalWinners - 1)
	losersCounts := make([]int, losersTotal+1) // 1-based
	for lr := 1; lr <= losersTotal; lr++ {
		count := size >> uint((lr+1)/2+1)
		if count < 1 {
			count = 1
		}
		losersCounts[lr] = count
	}

	finalsRound := totalWinners + losersTotal + 1
	grandFinal := newStub(tournamentID, models.SectionFinals, finalsRound, 1)

	byUID := make(map[string]*models.Match)
	losersRounds := make([]models.Round, 0, losersTotal)
	for lr := 1; lr <= losersTotal; lr++ {
		matches := make([]*models.Match, 0, losersCounts[lr])
		for m := 1; m <= losersCounts[lr]; m++ {
			stub := newStub(tournamentID, models.SectionLosers, lr, m)
			// Losers rounds slot in after the winners rounds in the flat
			// round numbering so (round, matchNumber) stays unique.
			stub.Round = totalWinners + lr
			if lr < losersTotal {
				target := m
				if losersCounts[lr+1] < losersCounts[lr] {
					target = (m + 1) / 2
				}
				stub.NextMatchUID = strPtr(MatchUID(models.SectionLosers, lr+1, target))
			} else {
				stub.NextMatchUID = grandFinal.BracketUID
			}
			byUID[*stub.BracketUID] = stub
			matches = append(matches, stub)
		}
		losersRounds = append(losersRounds, models.Round{RoundNumber: totalWinners + lr, Matches: matches})
	}

	// Route winners-bracket losers down: round 1 drops into LR1, round r
	// into LR 2(r-1). The winners finalist meets the losers survivor in
	// the grand final instead.
	for _, round := range winnersRounds {
		for _, match := range round.Matches {
			r := match.Round
			if r == totalWinners {
				match.NextMatchUID = grandFinal.BracketUID
			}
			if losersTotal == 0 {
				match.LoserNextMatchUID = grandFinal.BracketUID
				continue
			}
			target := 1
			if r > 1 {
				target = 2 * (r - 1)
			}
			if target > losersTotal {
				target = losersTotal
			}
			slot := ((match.MatchNumber - 1) % losersCounts[target]) + 1
			match.LoserNextMatchUID = strPtr(MatchUID(models.SectionLosers, target, slot))
		}
	}

	// Fill prev links on the losers side and the grand final.
	for _, round := range losersRounds {
		for _, match := range round.Matches {
			if match.NextMatchUID == nil {
				continue
			}
			if parent, ok := byUID[*match.NextMatchUID]; ok {
				linkPrev(parent, *match.BracketUID)
			}
		}
	}
	if len(winnersRounds) > 0 {
		finalRound := winnersRounds[len(winnersRounds)-1]
		if len(finalRound.Matches) == 1 {
			linkPrev(grandFinal, *finalRound.Matches[0].BracketUID)
		}
	}
	if losersTotal > 0 {
		lbFinal := losersRounds[losersTotal-1].Matches
		if len(lbFinal) == 1 {
			linkPrev(grandFinal, *lbFinal[0].BracketUID)
		}
	}

	rounds := append(winnersRounds, losersRounds...)
	rounds = append(rounds, models.Round{RoundNumber: finalsRound, Matches: []*models.Match{grandFinal}})

	return &models.BracketStructure{
		Format:      models.FormatDoubleElimination,
		Rounds:      rounds,
		TotalRounds: finalsRound,
	}, nil
}

// NewGrandFinalReset builds the second grand final, played only when the
// losers-bracket finalist takes the first one.
func NewGrandFinalReset(first *models.Match) *models.Match {
	reset := newStub(first.TournamentID, models.SectionFinals, first.Round, 2)
	reset.HomeParticipantID = first.HomeParticipantID
	reset.AwayParticipantID = first.AwayParticipantID
	reset.PrevMatch1UID = first.BracketUID
	return reset
}

func linkPrev(parent *models.Match, childUID string) {
	switch {
	case parent.PrevMatch1UID == nil:
		parent.PrevMatch1UID = &childUID
	case parent.PrevMatch2UID == nil && *parent.PrevMatch1UID != childUID:
		parent.PrevMatch2UID = &childUID
	}
}
