package models

// Round is an ordered slice of a bracket, derived from the match set.
type Round struct {
	RoundNumber int      `json:"round_number"`
	Matches     []*Match `json:"matches"`
	IsCompleted bool     `json:"is_completed"`
}

// BracketStructure is a view over a tournament's matches grouped by round.
// It has no identity of its own: everything here is reconstructible from
// the flat match list.
type BracketStructure struct {
	Format      TournamentFormat `json:"format"`
	Rounds      []Round          `json:"rounds"`
	TotalRounds int              `json:"total_rounds"`
}

// AllMatches flattens the rounds back into a single ordered slice.
func (b *BracketStructure) AllMatches() []*Match {
	var out []*Match
	for _, r := range b.Rounds {
		out = append(out, r.Matches...)
	}
	return out
}

// FindByUID returns the match carrying the given bracket UID, or nil.
func (b *BracketStructure) FindByUID(uid string) *Match {
	for _, r := range b.Rounds {
		for _, m := range r.Matches {
			if m.BracketUID != nil && *m.BracketUID == uid {
				return m
			}
		}
	}
	return nil
}
