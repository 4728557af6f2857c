package brackets

import (
	"context"

	"github.com/bracketline/tournament-engine/models"
	"github.com/bracketline/tournament-engine/seeding"
)

type SwissGenerator struct{}

func (g *SwissGenerator) Name() string { return "Swiss" }

// Generate materializes only round 1 (adjacent pairing of the seeded
// order). Later rounds depend on results, so they are paired once the
// prior round completes and are not represented by stubs here.
func (g *SwissGenerator) Generate(ctx context.Context, params GenerateParams) (*models.BracketStructure, error) {
	participants := make([]*models.Participant, 0, len(params.Participants))
	for _, p := range params.Participants {
		if !p.IsBye() {
			participants = append(participants, p)
		}
	}
	if len(participants) < 2 {
		return nil, ErrNotEnoughParticipants
	}

	totalRounds := roundsFor(len(participants))
	matches := make([]*models.Match, 0, len(participants)/2)
	for i := 0; i+1 < len(participants); i += 2 {
		stub := newStub(params.Tournament.ID, models.SectionWinners, 1, len(matches)+1)
		stub.HomeParticipantID = &participants[i].ID
		stub.AwayParticipantID = &participants[i+1].ID
		matches = append(matches, stub)
	}

	return &models.BracketStructure{
		Format:      models.FormatSwiss,
		Rounds:      []models.Round{{RoundNumber: 1, Matches: matches}},
		TotalRounds: totalRounds,
	}, nil
}

// NextSwissRound pairs the next round from current standings and history.
// The returned stubs carry the given round number; a leftover participant
// in an odd field sits the round out.
func NextSwissRound(tournamentID, round int, participants []*models.Participant, history seeding.History) []*models.Match {
	pairs, _ := seeding.SwissPairs(participants, history)
	matches := make([]*models.Match, 0, len(pairs))
	for i, pair := range pairs {
		stub := newStub(tournamentID, models.SectionWinners, round, i+1)
		stub.HomeParticipantID = &pair.Home.ID
		stub.AwayParticipantID = &pair.Away.ID
		matches = append(matches, stub)
	}
	return matches
}
