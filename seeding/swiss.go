package seeding

import (
	"sort"

	"github.com/bracketline/tournament-engine/models"
)

type EncounterResult string

const (
	EncounterWin  EncounterResult = "win"
	EncounterLoss EncounterResult = "loss"
	EncounterDraw EncounterResult = "draw"
)

type Encounter struct {
	OpponentID int
	Result     EncounterResult
}

// History maps a participant id to the encounters it has played so far.
// It is supplied by the caller; this package never owns match records.
type History map[int][]Encounter

// HavePlayed reports whether a and b have already met.
func (h History) HavePlayed(a, b int) bool {
	for _, e := range h[a] {
		if e.OpponentID == b {
			return true
		}
	}
	return false
}

// Buchholz is the sum of all opponents' points.
func (h History) Buchholz(p *models.Participant, byID map[int]*models.Participant) int {
	total := 0
	for _, e := range h[p.ID] {
		if opp, ok := byID[e.OpponentID]; ok {
			total += opp.Points
		}
	}
	return total
}

// SonnebornBerger is the sum of defeated opponents' points plus half the
// points of drawn opponents.
func (h History) SonnebornBerger(p *models.Participant, byID map[int]*models.Participant) float64 {
	total := 0.0
	for _, e := range h[p.ID] {
		opp, ok := byID[e.OpponentID]
		if !ok {
			continue
		}
		switch e.Result {
		case EncounterWin:
			total += float64(opp.Points)
		case EncounterDraw:
			total += float64(opp.Points) / 2
		}
	}
	return total
}

// SwissRank orders participants for a Swiss round: points descending,
// tie-broken by Buchholz, then Sonneborn-Berger. Seeds are reassigned to
// match the new order.
func SwissRank(participants []*models.Participant, history History) []*models.Participant {
	out := clone(participants)
	byID := participantsByID(out)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Points != b.Points {
			return a.Points > b.Points
		}
		ba, bb := history.Buchholz(a, byID), history.Buchholz(b, byID)
		if ba != bb {
			return ba > bb
		}
		return history.SonnebornBerger(a, byID) > history.SonnebornBerger(b, byID)
	})
	assignSeeds(out)
	return out
}

// Pair is one Swiss pairing; Home is the better-ranked side.
type Pair struct {
	Home *models.Participant
	Away *models.Participant
}

// SwissPairs pairs a round greedily: sort by current Swiss ranking, then
// match each unpaired participant with the next unpaired participant it
// has not already played. With an odd field the leftover participant is
// returned as the bye.
func SwissPairs(participants []*models.Participant, history History) ([]Pair, *models.Participant) {
	ranked := SwissRank(participants, history)
	paired := make([]bool, len(ranked))
	var pairs []Pair

	for i := range ranked {
		if paired[i] {
			continue
		}
		found := false
		for j := i + 1; j < len(ranked); j++ {
			if paired[j] || history.HavePlayed(ranked[i].ID, ranked[j].ID) {
				continue
			}
			pairs = append(pairs, Pair{Home: ranked[i], Away: ranked[j]})
			paired[i], paired[j] = true, true
			found = true
			break
		}
		// Everyone left has already played i: fall back to the nearest
		// unpaired opponent rather than leaving two players idle.
		if !found {
			for j := i + 1; j < len(ranked); j++ {
				if !paired[j] {
					pairs = append(pairs, Pair{Home: ranked[i], Away: ranked[j]})
					paired[i], paired[j] = true, true
					break
				}
			}
		}
	}

	for i, p := range paired {
		if !p {
			return pairs, ranked[i]
		}
	}
	return pairs, nil
}

func participantsByID(participants []*models.Participant) map[int]*models.Participant {
	byID := make(map[int]*models.Participant, len(participants))
	for _, p := range participants {
		byID[p.ID] = p
	}
	return byID
}
