// Package prizes turns final standings and a prize pool into payout
// lines. Pure computation: persistence and notification belong to the
// caller.
package prizes

import (
	"sort"

	"github.com/bracketline/tournament-engine/models"
)

// SortStandings orders participants into final-standings order: points
// descending, then wins descending, losses ascending, draws descending.
func SortStandings(participants []*models.Participant) []*models.Participant {
	out := make([]*models.Participant, len(participants))
	copy(out, participants)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Points != b.Points {
			return a.Points > b.Points
		}
		if a.Wins != b.Wins {
			return a.Wins > b.Wins
		}
		if a.Losses != b.Losses {
			return a.Losses < b.Losses
		}
		return a.Draws > b.Draws
	})
	return out
}

// Calculate produces the payout lines for a completed tournament. A
// custom table from settings wins over the format default feature; team
// tournaments aggregate standings per team and split each team's prize
// evenly across its members. Rank-1 bonuses come out as extra rank-0
// entries.
func Calculate(tournament *models.Tournament, finalStandings []*models.Participant) ([]*models.PrizeDistribution, error) {
	settings, err := tournament.GetSettings()
	if err != nil {
		return nil, err
	}

	standings := SortStandings(finalStandings)

	table := settings.PrizeTable
	if len(table) == 0 {
		table = DefaultTable(tournament.Format, len(standings))
	}

	var out []*models.PrizeDistribution
	if settings.TeamBased {
		out = teamPayouts(tournament, settings, table, standings)
	} else {
		out = soloPayouts(tournament, settings, table, standings)
	}

	out = append(out, bonusEntries(tournament, settings, standings)...)
	return out, nil
}

func soloPayouts(t *models.Tournament, s *models.TournamentSettings, table []models.PrizeTier, standings []*models.Participant) []*models.PrizeDistribution {
	out := make([]*models.PrizeDistribution, 0, len(table))
	for _, tier := range table {
		entry := payoutLine(t, s, tier)
		if tier.Rank-1 < len(standings) {
			entry.WinnerID = &standings[tier.Rank-1].ID
		}
		out = append(out, entry)
	}
	return out
}

// teamPayouts ranks teams by their members' combined points and splits
// each tier's amount evenly across the team.
func teamPayouts(t *models.Tournament, s *models.TournamentSettings, table []models.PrizeTier, standings []*models.Participant) []*models.PrizeDistribution {
	type teamEntry struct {
		teamID  int
		points  int
		wins    int
		members []*models.Participant
	}
	byTeam := make(map[int]*teamEntry)
	var order []*teamEntry
	for _, p := range standings {
		if p.TeamID == nil {
			continue
		}
		entry, ok := byTeam[*p.TeamID]
		if !ok {
			entry = &teamEntry{teamID: *p.TeamID}
			byTeam[*p.TeamID] = entry
			order = append(order, entry)
		}
		entry.points += p.Points
		entry.wins += p.Wins
		entry.members = append(entry.members, p)
	}
	sort.SliceStable(order, func(i, j int) bool {
		if order[i].points != order[j].points {
			return order[i].points > order[j].points
		}
		return order[i].wins > order[j].wins
	})

	var out []*models.PrizeDistribution
	for _, tier := range table {
		if tier.Rank-1 >= len(order) {
			line := payoutLine(t, s, tier)
			out = append(out, line)
			continue
		}
		team := order[tier.Rank-1]
		total := tierAmount(s, tier)
		share := round2(total / float64(len(team.members)))
		for _, member := range team.members {
			line := payoutLine(t, s, tier)
			line.PrizeAmount = share
			line.WinnerID = &member.ID
			out = append(out, line)
		}
	}
	return out
}

func bonusEntries(t *models.Tournament, s *models.TournamentSettings, standings []*models.Participant) []*models.PrizeDistribution {
	var out []*models.PrizeDistribution
	if s.MostWinsBonus > 0 && len(standings) > 0 {
		best := standings[0]
		for _, p := range standings[1:] {
			if p.Wins > best.Wins {
				best = p
			}
		}
		label := "most_wins"
		out = append(out, &models.PrizeDistribution{
			TournamentID: t.ID,
			Rank:         0,
			PrizeAmount:  s.MostWinsBonus,
			PrizeType:    models.PrizeBonus,
			Currency:     s.Currency,
			WinnerID:     &best.ID,
			Label:        &label,
		})
	}
	if s.SportsmanshipBonus > 0 {
		// The recipient is picked by organizers after the fact.
		label := "sportsmanship"
		out = append(out, &models.PrizeDistribution{
			TournamentID: t.ID,
			Rank:         0,
			PrizeAmount:  s.SportsmanshipBonus,
			PrizeType:    models.PrizeBonus,
			Currency:     s.Currency,
			Label:        &label,
		})
	}
	return out
}

func payoutLine(t *models.Tournament, s *models.TournamentSettings, tier models.PrizeTier) *models.PrizeDistribution {
	prizeType := models.PrizePercentage
	if tier.Amount > 0 && tier.Percent == 0 {
		prizeType = models.PrizeFixed
	}
	return &models.PrizeDistribution{
		TournamentID: t.ID,
		Rank:         tier.Rank,
		PrizeAmount:  tierAmount(s, tier),
		PrizeType:    prizeType,
		Currency:     s.Currency,
	}
}

func tierAmount(s *models.TournamentSettings, tier models.PrizeTier) float64 {
	if tier.Amount > 0 && tier.Percent == 0 {
		return tier.Amount
	}
	return round2(tier.Percent * s.PrizePool / 100)
}
