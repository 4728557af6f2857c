package services

import "errors"

// Shared errors used across services and mapped to responses by callers.
var (
	// Not found
	ErrNotFound            = errors.New("requested resource not found")
	ErrTournamentNotFound  = errors.New("tournament not found")
	ErrParticipantNotFound = errors.New("participant registration not found")
	ErrMatchNotFound       = errors.New("match not found")

	// Validation and business rules
	ErrValidationFailed           = errors.New("validation failed")
	ErrTournamentNameRequired     = errors.New("tournament name is required")
	ErrTournamentInvalidFormat    = errors.New("unknown tournament format")
	ErrTournamentInvalidCapacity  = errors.New("tournament capacity bounds are invalid")
	ErrTournamentInvalidDates     = errors.New("tournament dates are out of order")
	ErrRegistrationNotOpen        = errors.New("tournament registration is not open")
	ErrTournamentFull             = errors.New("tournament registration is full")
	ErrRatingOutOfRange           = errors.New("participant rating outside tournament bounds")
	ErrScoresRequired             = errors.New("both scores are required to record a result")
	ErrWinnerScoreMismatch        = errors.New("winner does not match the reported scores")
	ErrDrawRequiresFlag           = errors.New("equal scores must be recorded as a draw")
	ErrDrawNotAllowed             = errors.New("draws are not allowed in elimination formats")
	ErrMatchMissingParticipants   = errors.New("match does not have both participants yet")
	ErrMatchAlreadyCompleted      = errors.New("match already has a recorded result")
	ErrMatchNotInProgress         = errors.New("match is not in progress")
	ErrSlotNotViable              = errors.New("proposed time slot conflicts with participant availability")
	ErrTournamentNotReschedulable = errors.New("match can no longer be rescheduled")

	// Conflicts
	ErrRegistrationConflict   = errors.New("player is already registered for this tournament")
	ErrTournamentNameConflict = errors.New("tournament name already exists")

	// Lifecycle
	ErrInvalidStatusTransition = errors.New("invalid tournament status transition")
	ErrNotEnoughParticipants   = errors.New("not enough participants to start the tournament")
	ErrTournamentNotInProgress = errors.New("tournament is not in progress")
)
