package services

import (
	"fmt"

	"github.com/bracketline/tournament-engine/models"
)

// EligibilityRule is one registration gate. Rules run in order and the
// first failure rejects the registration.
type EligibilityRule interface {
	Name() string
	Check(tournament *models.Tournament, settings *models.TournamentSettings, participant *models.Participant) error
}

// DefaultEligibilityRules covers the standard gates: the registration
// window must be open and the player's rating must fall inside the
// bounds configured for the tournament.
func DefaultEligibilityRules() []EligibilityRule {
	return []EligibilityRule{
		registrationOpenRule{},
		ratingBoundsRule{},
	}
}

type registrationOpenRule struct{}

func (registrationOpenRule) Name() string { return "registration_open" }

func (registrationOpenRule) Check(t *models.Tournament, _ *models.TournamentSettings, _ *models.Participant) error {
	if t.Status != models.StatusRegistrationOpen {
		return ErrRegistrationNotOpen
	}
	return nil
}

type ratingBoundsRule struct{}

func (ratingBoundsRule) Name() string { return "rating_bounds" }

func (ratingBoundsRule) Check(_ *models.Tournament, settings *models.TournamentSettings, p *models.Participant) error {
	if settings.MinRating > 0 && p.Rating < settings.MinRating {
		return fmt.Errorf("%w: rating %d below minimum %d", ErrRatingOutOfRange, p.Rating, settings.MinRating)
	}
	if settings.MaxRating > 0 && p.Rating > settings.MaxRating {
		return fmt.Errorf("%w: rating %d above maximum %d", ErrRatingOutOfRange, p.Rating, settings.MaxRating)
	}
	return nil
}
