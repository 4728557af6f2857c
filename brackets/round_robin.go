package brackets

import (
	"context"

	"github.com/bracketline/tournament-engine/models"
)

type RoundRobinGenerator struct{}

func (g *RoundRobinGenerator) Name() string { return "RoundRobin" }

// Generate schedules every pairing exactly once using the circle method:
// one anchor stays fixed while the rest of the field rotates one position
// per round. An odd field gets a rotating synthetic bye slot, which simply
// produces no match for that participant that round.
func (g *RoundRobinGenerator) Generate(ctx context.Context, params GenerateParams) (*models.BracketStructure, error) {
	participants := make([]*models.Participant, 0, len(params.Participants))
	for _, p := range params.Participants {
		if !p.IsBye() {
			participants = append(participants, p)
		}
	}
	if len(participants) < 2 {
		return nil, ErrNotEnoughParticipants
	}

	ring := make([]*models.Participant, len(participants))
	copy(ring, participants)
	if len(ring)%2 == 1 {
		ring = append(ring, nil) // bye slot
	}

	n := len(ring)
	totalRounds := n - 1
	rounds := make([]models.Round, 0, totalRounds)

	for r := 1; r <= totalRounds; r++ {
		matches := make([]*models.Match, 0, n/2)
		number := 1
		for i := 0; i < n/2; i++ {
			home := ring[i]
			away := ring[n-1-i]
			if home == nil || away == nil {
				continue
			}
			stub := newStub(params.Tournament.ID, models.SectionWinners, r, number)
			stub.HomeParticipantID = &home.ID
			stub.AwayParticipantID = &away.ID
			matches = append(matches, stub)
			number++
		}
		rounds = append(rounds, models.Round{RoundNumber: r, Matches: matches})

		// Rotate everything but the anchor one step clockwise.
		last := ring[n-1]
		copy(ring[2:], ring[1:n-1])
		ring[1] = last
	}

	return &models.BracketStructure{
		Format:      models.FormatRoundRobin,
		Rounds:      rounds,
		TotalRounds: totalRounds,
	}, nil
}
