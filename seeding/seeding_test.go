package seeding

import (
	"testing"

	"github.com/bracketline/tournament-engine/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeField(n int) []*models.Participant {
	out := make([]*models.Participant, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, &models.Participant{ID: i, PlayerID: 100 + i, Seed: i})
	}
	return out
}

func TestGenerateEmptyInput(t *testing.T) {
	assert.Empty(t, Generate(nil, models.SeedingStandard))
	assert.Empty(t, Generate([]*models.Participant{}, models.SeedingRandom))
}

func TestStandardOrdersByExistingSeed(t *testing.T) {
	field := []*models.Participant{
		{ID: 1, Seed: 3},
		{ID: 2, Seed: 1},
		{ID: 3, Seed: 2},
	}
	out := Standard(field)
	require.Len(t, out, 3)
	assert.Equal(t, 2, out[0].ID)
	assert.Equal(t, 3, out[1].ID)
	assert.Equal(t, 1, out[2].ID)
	for i, p := range out {
		assert.Equal(t, i+1, p.Seed)
	}
}

func TestStandardImpliedSeedFromRecord(t *testing.T) {
	// No explicit seeds: the stronger record implies the better seed.
	field := []*models.Participant{
		{ID: 1, Points: 3, Wins: 1},
		{ID: 2, Points: 9, Wins: 3},
		{ID: 3, Points: 0},
	}
	out := Standard(field)
	assert.Equal(t, 2, out[0].ID)
	assert.Equal(t, 1, out[1].ID)
	assert.Equal(t, 3, out[2].ID)
}

func TestStandardDoesNotMutateInput(t *testing.T) {
	field := []*models.Participant{{ID: 1}, {ID: 2}}
	Standard(field)
	assert.Equal(t, 0, field[0].Seed)
}

func TestRandomIsDeterministicPerSource(t *testing.T) {
	field := makeField(16)
	a := Random(field, 42)
	b := Random(field, 42)
	for i := range a {
		assert.Equal(t, a[i].ID, b[i].ID)
	}
	for i, p := range a {
		assert.Equal(t, i+1, p.Seed)
	}
}

func TestSkillBasedOrdering(t *testing.T) {
	field := []*models.Participant{
		{ID: 1, Rating: 1200},
		{ID: 2, Rating: 1800},
		{ID: 3, Rating: 1800, Wins: 2, Points: 6},
		{ID: 4, Rating: 1500},
	}
	out := SkillBased(field)
	assert.Equal(t, 3, out[0].ID) // same rating, better win rate
	assert.Equal(t, 2, out[1].ID)
	assert.Equal(t, 4, out[2].ID)
	assert.Equal(t, 1, out[3].ID)
}

func TestPlacementOrderSeparatesTopSeeds(t *testing.T) {
	for size := 4; size <= 64; size *= 2 {
		order := PlacementOrder(size)
		require.Len(t, order, size)

		// Every seed index appears exactly once.
		seen := make(map[int]bool, size)
		for _, s := range order {
			assert.False(t, seen[s])
			seen[s] = true
		}

		// Seed 1 opens the bracket, seed 2 closes it, and they sit in
		// opposite halves so they cannot meet before the final.
		assert.Equal(t, 0, order[0])
		assert.Equal(t, 1, order[size-1])
		half := size / 2
		var firstHalfHasTop, secondHalfHasSecond bool
		for pos, s := range order {
			if s == 0 && pos < half {
				firstHalfHasTop = true
			}
			if s == 1 && pos >= half {
				secondHalfHasSecond = true
			}
		}
		assert.True(t, firstHalfHasTop, "size %d", size)
		assert.True(t, secondHalfHasSecond, "size %d", size)
	}
}

func TestPlacementOrderClassicEight(t *testing.T) {
	// The standard 8-bracket: 1v8, 4v5, 2v7, 3v6 (0-based here).
	assert.Equal(t, []int{0, 7, 3, 4, 1, 6, 2, 5}, PlacementOrder(8))
}

func TestForBracketPadsWithByes(t *testing.T) {
	out := ForBracket(Standard(makeField(6)))
	require.Len(t, out, 8)
	byes := 0
	for _, p := range out {
		if p.IsBye() {
			byes++
		}
	}
	assert.Equal(t, 2, byes)
	// Top seed keeps position 0 and its round-1 opponent is a bye.
	assert.Equal(t, 1, out[0].Seed)
	assert.True(t, out[1].IsBye())
}

func TestSwissRankTiebreaks(t *testing.T) {
	a := &models.Participant{ID: 1, Points: 6}
	b := &models.Participant{ID: 2, Points: 6}
	c := &models.Participant{ID: 3, Points: 3}
	d := &models.Participant{ID: 4, Points: 0}
	history := History{
		1: {{OpponentID: 3, Result: EncounterWin}, {OpponentID: 4, Result: EncounterWin}},
		2: {{OpponentID: 4, Result: EncounterWin}, {OpponentID: 4, Result: EncounterWin}},
		3: {{OpponentID: 1, Result: EncounterLoss}},
		4: {{OpponentID: 1, Result: EncounterLoss}, {OpponentID: 2, Result: EncounterLoss}},
	}
	out := SwissRank([]*models.Participant{d, c, b, a}, history)
	// a and b tie on points; a's opponents carry more points (Buchholz).
	assert.Equal(t, 1, out[0].ID)
	assert.Equal(t, 2, out[1].ID)
	assert.Equal(t, 3, out[2].ID)
	assert.Equal(t, 4, out[3].ID)
}

func TestSwissPairsAvoidRematches(t *testing.T) {
	field := []*models.Participant{
		{ID: 1, Points: 3},
		{ID: 2, Points: 3},
		{ID: 3, Points: 0},
		{ID: 4, Points: 0},
	}
	history := History{
		1: {{OpponentID: 2, Result: EncounterWin}},
		2: {{OpponentID: 1, Result: EncounterLoss}},
		3: {{OpponentID: 4, Result: EncounterWin}},
		4: {{OpponentID: 3, Result: EncounterLoss}},
	}
	pairs, bye := SwissPairs(field, history)
	require.Len(t, pairs, 2)
	assert.Nil(t, bye)
	for _, p := range pairs {
		assert.False(t, history.HavePlayed(p.Home.ID, p.Away.ID),
			"%d vs %d is a rematch", p.Home.ID, p.Away.ID)
	}
}

func TestSwissPairsOddFieldGetsBye(t *testing.T) {
	pairs, bye := SwissPairs(makeField(5), History{})
	assert.Len(t, pairs, 2)
	require.NotNil(t, bye)
}

func TestGroupsSnakeDistribution(t *testing.T) {
	groups, err := Groups(makeField(8), 2)
	require.NoError(t, err)
	require.Len(t, groups, 2)
	// Snake order over 2 groups: seeds 1,4,5,8 vs 2,3,6,7.
	ids := func(g []*models.Participant) []int {
		out := make([]int, 0, len(g))
		for _, p := range g {
			out = append(out, p.Seed)
		}
		return out
	}
	assert.Equal(t, []int{1, 4, 5, 8}, ids(groups[0]))
	assert.Equal(t, []int{2, 3, 6, 7}, ids(groups[1]))
}

func TestGroupsRejectsNonPositiveCount(t *testing.T) {
	_, err := Groups(makeField(4), 0)
	assert.ErrorIs(t, err, ErrInvalidGroupCount)
}
