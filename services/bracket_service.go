package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/bracketline/tournament-engine/brackets"
	"github.com/bracketline/tournament-engine/cache"
	"github.com/bracketline/tournament-engine/models"
	"github.com/bracketline/tournament-engine/repositories"
)

const bracketCacheTTL = 30 * time.Second

// BracketService persists generated brackets and serves the assembled
// structure back from match rows.
type BracketService struct {
	matchRepo repositories.MatchRepository
	cache     cache.Cache
	logger    *slog.Logger
}

func NewBracketService(matchRepo repositories.MatchRepository, c cache.Cache, logger *slog.Logger) *BracketService {
	return &BracketService{matchRepo: matchRepo, cache: c, logger: logger}
}

func bracketCacheKey(tournamentID int) string {
	return fmt.Sprintf("bracket:%d", tournamentID)
}

// PersistBracket inserts every match of a generated bracket and resolves
// the UID links into database ids. Two passes: the ids do not exist
// until the whole set is inserted. Run inside the caller's transaction.
func (s *BracketService) PersistBracket(ctx context.Context, exec repositories.SQLExecutor, bracket *models.BracketStructure) error {
	matches := bracket.AllMatches()
	if len(matches) == 0 {
		return brackets.ErrNotEnoughParticipants
	}

	uidToID := make(map[string]int, len(matches))
	for _, m := range matches {
		if err := s.matchRepo.Create(ctx, exec, m); err != nil {
			return fmt.Errorf("failed to persist bracket match %s: %w", deref(m.BracketUID), err)
		}
		if m.BracketUID != nil {
			uidToID[*m.BracketUID] = m.ID
		}
	}

	for _, m := range matches {
		nextID := resolveUID(uidToID, m.NextMatchUID)
		loserNextID := resolveUID(uidToID, m.LoserNextMatchUID)
		if nextID == nil && loserNextID == nil {
			continue
		}
		m.NextMatchID = nextID
		m.LoserNextMatchID = loserNextID
		if err := s.matchRepo.UpdateLinks(ctx, exec, m.ID, nextID, loserNextID); err != nil {
			return fmt.Errorf("failed to link bracket match %s: %w", deref(m.BracketUID), err)
		}
	}

	s.cache.Invalidate(bracketCacheKey(matches[0].TournamentID))
	return nil
}

// PersistRound appends one round of stubs to an existing bracket. Used
// for Swiss rounds and the grand final reset, which only exist once
// earlier results are known.
func (s *BracketService) PersistRound(ctx context.Context, exec repositories.SQLExecutor, tournamentID int, matches []*models.Match) error {
	for _, m := range matches {
		if err := s.matchRepo.Create(ctx, exec, m); err != nil {
			return fmt.Errorf("failed to persist round match %s: %w", deref(m.BracketUID), err)
		}
	}
	s.cache.Invalidate(bracketCacheKey(tournamentID))
	return nil
}

// GetBracket rebuilds the bracket structure from match rows, serving a
// cached copy when fresh enough.
func (s *BracketService) GetBracket(ctx context.Context, tournament *models.Tournament) (*models.BracketStructure, error) {
	key := bracketCacheKey(tournament.ID)
	if cached, ok := s.cache.Get(key); ok {
		if bracket, ok := cached.(*models.BracketStructure); ok {
			return bracket, nil
		}
	}

	matches, err := s.matchRepo.ListByTournament(ctx, nil, tournament.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load matches for tournament %d: %w", tournament.ID, err)
	}
	if len(matches) == 0 {
		return nil, ErrNotFound
	}

	ptrs := make([]*models.Match, len(matches))
	for i := range matches {
		ptrs[i] = &matches[i]
	}
	bracket := brackets.Rebuild(tournament.Format, ptrs)

	s.cache.Set(key, bracket, bracketCacheTTL)
	return bracket, nil
}

// Invalidate drops the cached structure after any match mutation.
func (s *BracketService) Invalidate(tournamentID int) {
	s.cache.Invalidate(bracketCacheKey(tournamentID))
}

// CurrentRound returns the lowest round that still has playable matches,
// or the highest round if everything is settled.
func CurrentRound(matches []models.Match) int {
	rounds := make(map[int]bool)
	var all []int
	for _, m := range matches {
		if _, seen := rounds[m.Round]; !seen {
			all = append(all, m.Round)
		}
		rounds[m.Round] = rounds[m.Round] || !m.Status.IsTerminal()
	}
	sort.Ints(all)
	for _, r := range all {
		if rounds[r] {
			return r
		}
	}
	if len(all) == 0 {
		return 0
	}
	return all[len(all)-1]
}

func resolveUID(uidToID map[string]int, uid *string) *int {
	if uid == nil {
		return nil
	}
	if id, ok := uidToID[*uid]; ok {
		return &id
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
