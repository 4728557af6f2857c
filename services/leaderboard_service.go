package services

import (
	"context"
	"fmt"
	"time"

	"github.com/bracketline/tournament-engine/cache"
	"github.com/bracketline/tournament-engine/models"
	"github.com/bracketline/tournament-engine/prizes"
	"github.com/bracketline/tournament-engine/repositories"
)

const leaderboardCacheTTL = 15 * time.Second

// LeaderboardService serves live standings recomputed from participant
// records, with a short cache in front.
type LeaderboardService struct {
	participantRepo repositories.ParticipantRepository
	cache           cache.Cache
}

func NewLeaderboardService(participantRepo repositories.ParticipantRepository, c cache.Cache) *LeaderboardService {
	return &LeaderboardService{participantRepo: participantRepo, cache: c}
}

func leaderboardCacheKey(tournamentID int) string {
	return fmt.Sprintf("leaderboard:%d", tournamentID)
}

func (s *LeaderboardService) Standings(ctx context.Context, tournamentID int) ([]models.Standing, error) {
	key := leaderboardCacheKey(tournamentID)
	if cached, ok := s.cache.Get(key); ok {
		if standings, ok := cached.([]models.Standing); ok {
			return standings, nil
		}
	}

	participants, err := s.participantRepo.ListByTournament(ctx, nil, tournamentID)
	if err != nil {
		return nil, err
	}
	field := make([]*models.Participant, len(participants))
	for i := range participants {
		field[i] = &participants[i]
	}

	ranked := prizes.SortStandings(field)
	now := time.Now()
	standings := make([]models.Standing, len(ranked))
	for i, p := range ranked {
		standings[i] = standingFor(p, i+1, now)
	}

	s.cache.Set(key, standings, leaderboardCacheTTL)
	return standings, nil
}

// Invalidate drops the cached board after any result mutation.
func (s *LeaderboardService) Invalidate(tournamentID int) {
	s.cache.Invalidate(leaderboardCacheKey(tournamentID))
}
