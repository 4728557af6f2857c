// Package seeding orders participants before a bracket is built. All
// functions are pure: they copy their input and never touch shared state.
package seeding

import (
	"errors"
	"math"
	"math/rand"
	"sort"

	"github.com/bracketline/tournament-engine/models"
)

var ErrInvalidGroupCount = errors.New("group count must be positive")

// Generate applies the given seeding method and assigns seeds 1..N.
// An empty input yields an empty output.
func Generate(participants []*models.Participant, method models.SeedingMethod) []*models.Participant {
	switch method {
	case models.SeedingRandom:
		return Random(participants, rand.Int63())
	case models.SeedingSkill:
		return SkillBased(participants)
	default:
		return Standard(participants)
	}
}

// Standard sorts by existing seed where present, otherwise by an implied
// seed score of 1000 - (points + winRate*100), ascending. Lower is better.
func Standard(participants []*models.Participant) []*models.Participant {
	out := clone(participants)
	sort.SliceStable(out, func(i, j int) bool {
		return impliedSeed(out[i]) < impliedSeed(out[j])
	})
	assignSeeds(out)
	return out
}

func impliedSeed(p *models.Participant) float64 {
	if p.Seed > 0 && p.Seed != models.ByeSeed {
		return float64(p.Seed)
	}
	return 1000 - (float64(p.Points) + p.WinRate()*100)
}

// Random shuffles with Fisher-Yates and assigns seeds post-shuffle.
func Random(participants []*models.Participant, seed int64) []*models.Participant {
	out := clone(participants)
	rng := rand.New(rand.NewSource(seed))
	for i := len(out) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		out[i], out[j] = out[j], out[i]
	}
	assignSeeds(out)
	return out
}

// SkillBased orders by rating descending, tie-broken by win rate, then points.
func SkillBased(participants []*models.Participant) []*models.Participant {
	out := clone(participants)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Rating != out[j].Rating {
			return out[i].Rating > out[j].Rating
		}
		if out[i].WinRate() != out[j].WinRate() {
			return out[i].WinRate() > out[j].WinRate()
		}
		return out[i].Points > out[j].Points
	})
	assignSeeds(out)
	return out
}

// ForBracket pads a seeded field to the next power of two with synthetic
// byes and rearranges it into bracket position order, so that seed 1 and
// seed 2 cannot meet before the final and sibling seeds are maximally
// separated.
func ForBracket(seeded []*models.Participant) []*models.Participant {
	n := len(seeded)
	if n == 0 {
		return nil
	}
	size := bracketSize(n)

	padded := make([]*models.Participant, size)
	copy(padded, seeded)
	for i := n; i < size; i++ {
		padded[i] = &models.Participant{Seed: models.ByeSeed}
	}

	order := PlacementOrder(size)
	out := make([]*models.Participant, size)
	for pos, seedIdx := range order {
		out[pos] = padded[seedIdx]
	}
	return out
}

// PlacementOrder returns, for a power-of-two bracket size, the 0-based seed
// index that belongs at each bracket position. Built iteratively: start
// from {0} and double the table once per level, mirroring each seed with
// its complement, so that consecutive pairs form the standard 1v(2k),
// 2v(2k-1), ... matchups.
func PlacementOrder(size int) []int {
	if size < 1 {
		return nil
	}
	order := []int{0}
	for len(order) < size {
		doubled := len(order) * 2
		next := make([]int, 0, doubled)
		for _, seed := range order {
			next = append(next, seed, doubled-1-seed)
		}
		order = next
	}
	return order
}

func bracketSize(n int) int {
	if n <= 1 {
		return 1
	}
	return 1 << uint(math.Ceil(math.Log2(float64(n))))
}

func assignSeeds(participants []*models.Participant) {
	for i, p := range participants {
		p.Seed = i + 1
	}
}

func clone(participants []*models.Participant) []*models.Participant {
	out := make([]*models.Participant, 0, len(participants))
	for _, p := range participants {
		cp := *p
		out = append(out, &cp)
	}
	return out
}
