// Package brackets builds the round/match skeleton for each tournament
// format. Generators are pure: the same seeded field always produces the
// same structure, which keeps retries idempotent and tests simple.
package brackets

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/bracketline/tournament-engine/models"
)

var (
	ErrUnsupportedFormat      = errors.New("unsupported tournament format")
	ErrNotEnoughParticipants  = errors.New("not enough participants to generate a bracket (minimum 2)")
	ErrMatchNotFoundInBracket = errors.New("match not found in bracket")
)

type GenerateParams struct {
	Tournament   *models.Tournament
	Participants []*models.Participant
}

type Generator interface {
	Generate(ctx context.Context, params GenerateParams) (*models.BracketStructure, error)

	Name() string
}

// New returns the generator for a format. An unknown format is a
// configuration error and must be rejected before any matches exist.
func New(format models.TournamentFormat) (Generator, error) {
	switch format {
	case models.FormatSingleElimination:
		return &SingleEliminationGenerator{}, nil
	case models.FormatDoubleElimination:
		return &DoubleEliminationGenerator{}, nil
	case models.FormatRoundRobin:
		return &RoundRobinGenerator{}, nil
	case models.FormatSwiss:
		return &SwissGenerator{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

// MatchUID builds the stable identifier used to link match stubs before
// they have database ids: "R2M1", "LR1M2", "FM1".
func MatchUID(section models.BracketSection, round, number int) string {
	switch section {
	case models.SectionLosers:
		return fmt.Sprintf("LR%dM%d", round, number)
	case models.SectionFinals:
		return fmt.Sprintf("FM%d", number)
	default:
		return fmt.Sprintf("R%dM%d", round, number)
	}
}

func roundsFor(n int) int {
	if n < 2 {
		return 0
	}
	return int(math.Ceil(math.Log2(float64(n))))
}

func newStub(tournamentID int, section models.BracketSection, round, number int) *models.Match {
	uid := MatchUID(section, round, number)
	return &models.Match{
		TournamentID: tournamentID,
		Round:        round,
		MatchNumber:  number,
		BracketUID:   &uid,
		Section:      section,
		Status:       models.MatchScheduled,
	}
}

func strPtr(s string) *string { return &s }
