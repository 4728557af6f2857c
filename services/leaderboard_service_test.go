package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bracketline/tournament-engine/cache"
	"github.com/bracketline/tournament-engine/models"
)

func TestStandingsOrderAndCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tournament := startTournament(t, f, models.FormatRoundRobin, 4)

	round1 := roundMatches(t, f, tournament.ID, 1)
	playMatch(t, f, round1[0], false)

	svc := NewLeaderboardService(f.participants, cache.NewMemory())

	standings, err := svc.Standings(ctx, tournament.ID)
	require.NoError(t, err)
	require.Len(t, standings, 4)
	assert.Equal(t, 1, standings[0].Rank)
	assert.Equal(t, *round1[0].HomeParticipantID, standings[0].ParticipantID)
	assert.Equal(t, 3, standings[0].Points)

	// A result recorded behind the cache does not show until the board
	// is invalidated.
	playMatch(t, f, round1[1], true)
	cached, err := svc.Standings(ctx, tournament.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, cached[1].Points)

	svc.Invalidate(tournament.ID)
	fresh, err := svc.Standings(ctx, tournament.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, fresh[1].Points)
	winners := map[int]bool{
		*round1[0].HomeParticipantID: true,
		*round1[1].AwayParticipantID: true,
	}
	assert.True(t, winners[fresh[0].ParticipantID])
	assert.True(t, winners[fresh[1].ParticipantID])
}
