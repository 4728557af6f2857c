package prizes

import (
	"math"

	"github.com/bracketline/tournament-engine/models"
)

// DefaultTable picks the percentage table for a format and field size.
// Percentages always sum to 100; any rounding residue lands on the last
// entry.
func DefaultTable(format models.TournamentFormat, fieldSize int) []models.PrizeTier {
	switch format {
	case models.FormatRoundRobin:
		return roundRobinTable(fieldSize)
	case models.FormatSwiss:
		return swissTable(fieldSize)
	case models.FormatDoubleElimination:
		table := eliminationTable(fieldSize)
		// Double elimination gives the runner-up a real second life, so
		// the spread between 1st and 2nd narrows slightly.
		if len(table) >= 2 {
			table[0].Percent -= 5
			table[1].Percent += 5
		}
		return table
	default:
		return eliminationTable(fieldSize)
	}
}

func eliminationTable(fieldSize int) []models.PrizeTier {
	switch {
	case fieldSize <= 3:
		return tiers(100)
	case fieldSize < 8:
		return tiers(70, 30)
	case fieldSize < 16:
		return tiers(50, 30, 20)
	default:
		return tiers(40, 25, 15, 10, 5, 3, 1, 1)
	}
}

// roundRobinTable splits the pool across min(ceil(N/2), 8) ranks with
// geometric weights, so each rank gets roughly half of the one above it.
func roundRobinTable(fieldSize int) []models.PrizeTier {
	ranks := (fieldSize + 1) / 2
	if ranks > 8 {
		ranks = 8
	}
	if ranks < 1 {
		ranks = 1
	}
	weights := make([]float64, ranks)
	totalWeight := 0.0
	for i := 0; i < ranks; i++ {
		weights[i] = math.Pow(2, float64(ranks-1-i))
		totalWeight += weights[i]
	}
	out := make([]models.PrizeTier, ranks)
	for i := 0; i < ranks; i++ {
		out[i] = models.PrizeTier{Rank: i + 1, Percent: round2(weights[i] / totalWeight * 100)}
	}
	normalize(out)
	return out
}

// swissTable is deliberately flatter: 70% of the pool is shared evenly
// across min(ceil(N/3), 12) ranks, the remaining 30% is a weighted bonus
// pool favoring the top finishers.
func swissTable(fieldSize int) []models.PrizeTier {
	ranks := (fieldSize + 2) / 3
	if ranks > 12 {
		ranks = 12
	}
	if ranks < 1 {
		ranks = 1
	}
	even := 70.0 / float64(ranks)
	bonusWeight := 0.0
	for i := 0; i < ranks; i++ {
		bonusWeight += float64(ranks - i)
	}
	out := make([]models.PrizeTier, ranks)
	for i := 0; i < ranks; i++ {
		bonus := 30.0 * float64(ranks-i) / bonusWeight
		out[i] = models.PrizeTier{Rank: i + 1, Percent: round2(even + bonus)}
	}
	normalize(out)
	return out
}

func tiers(percents ...float64) []models.PrizeTier {
	out := make([]models.PrizeTier, len(percents))
	for i, p := range percents {
		out[i] = models.PrizeTier{Rank: i + 1, Percent: p}
	}
	return out
}

// normalize pushes any rounding residue onto the lowest-priority entry so
// the table sums to exactly 100.
func normalize(table []models.PrizeTier) {
	if len(table) == 0 {
		return
	}
	sum := 0.0
	for _, t := range table {
		sum += t.Percent
	}
	table[len(table)-1].Percent = round2(table[len(table)-1].Percent + 100 - sum)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
