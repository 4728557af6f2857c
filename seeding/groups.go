package seeding

import "github.com/bracketline/tournament-engine/models"

// Groups splits a field into groupCount buckets for group-stage play.
// Participants are standard-seeded first and then dealt out in snake
// order, so the strongest seeds land in different groups and each group's
// total strength stays balanced.
func Groups(participants []*models.Participant, groupCount int) ([][]*models.Participant, error) {
	if groupCount <= 0 {
		return nil, ErrInvalidGroupCount
	}
	seeded := Standard(participants)

	groups := make([][]*models.Participant, groupCount)
	for i, p := range seeded {
		lap := i / groupCount
		pos := i % groupCount
		if lap%2 == 1 {
			pos = groupCount - 1 - pos
		}
		groups[pos] = append(groups[pos], p)
	}
	return groups, nil
}
