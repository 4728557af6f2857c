package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bracketline/tournament-engine/events"
	"github.com/bracketline/tournament-engine/models"
)

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	testCases := []struct {
		name    string
		mutate  func(*models.Tournament)
		wantErr error
	}{
		{"missing name", func(tr *models.Tournament) { tr.Name = "" }, ErrTournamentNameRequired},
		{"unknown format", func(tr *models.Tournament) { tr.Format = "ladder" }, ErrTournamentInvalidFormat},
		{"min below two", func(tr *models.Tournament) { tr.MinParticipants = 1 }, ErrTournamentInvalidCapacity},
		{"max below min", func(tr *models.Tournament) { tr.MaxParticipants = 2; tr.MinParticipants = 4 }, ErrTournamentInvalidCapacity},
		{"dates out of order", func(tr *models.Tournament) { tr.RegClosesAt = tr.StartAt.Add(time.Hour) }, ErrTournamentInvalidDates},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tournament := baseTournament(models.FormatSingleElimination, 2, 8)
			tc.mutate(tournament)
			assert.ErrorIs(t, f.tournamentSvc.Create(ctx, tournament), tc.wantErr)
		})
	}
}

func TestCreateSetsDraftAndPublishes(t *testing.T) {
	f := newFixture(t)
	tournament := baseTournament(models.FormatRoundRobin, 2, 8)

	require.NoError(t, f.tournamentSvc.Create(context.Background(), tournament))
	assert.Equal(t, models.StatusDraft, tournament.Status)
	assert.NotZero(t, tournament.ID)
	assert.True(t, f.sink.has(events.TournamentCreated))
}

func TestCreateNameConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.tournamentSvc.Create(ctx, baseTournament(models.FormatSwiss, 2, 8)))
	err := f.tournamentSvc.Create(ctx, baseTournament(models.FormatSwiss, 2, 8))
	assert.ErrorIs(t, err, ErrTournamentNameConflict)
}

func TestRegisterRequiresOpenWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tournament := baseTournament(models.FormatSingleElimination, 2, 8)
	require.NoError(t, f.tournamentSvc.Create(ctx, tournament))

	err := f.tournamentSvc.Register(ctx, tournament.ID, &models.Participant{PlayerID: 101})
	assert.ErrorIs(t, err, ErrRegistrationNotOpen)
}

func TestRegisterCapacityAndDuplicates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tournament := baseTournament(models.FormatSingleElimination, 2, 2)
	require.NoError(t, f.tournamentSvc.Create(ctx, tournament))
	require.NoError(t, f.tournamentSvc.OpenRegistration(ctx, tournament.ID))

	require.NoError(t, f.tournamentSvc.Register(ctx, tournament.ID, &models.Participant{PlayerID: 101}))
	require.NoError(t, f.tournamentSvc.Register(ctx, tournament.ID, &models.Participant{PlayerID: 102}))

	err := f.tournamentSvc.Register(ctx, tournament.ID, &models.Participant{PlayerID: 101})
	assert.ErrorIs(t, err, ErrRegistrationConflict)

	err = f.tournamentSvc.Register(ctx, tournament.ID, &models.Participant{PlayerID: 103})
	assert.ErrorIs(t, err, ErrTournamentFull)
}

func TestRegisterRatingBounds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	settings := `{"min_rating":1500,"max_rating":2200}`
	tournament := baseTournament(models.FormatSwiss, 2, 8)
	tournament.SettingsJSON = &settings
	require.NoError(t, f.tournamentSvc.Create(ctx, tournament))
	require.NoError(t, f.tournamentSvc.OpenRegistration(ctx, tournament.ID))

	err := f.tournamentSvc.Register(ctx, tournament.ID, &models.Participant{PlayerID: 101, Rating: 1200})
	assert.ErrorIs(t, err, ErrRatingOutOfRange)

	err = f.tournamentSvc.Register(ctx, tournament.ID, &models.Participant{PlayerID: 102, Rating: 2500})
	assert.ErrorIs(t, err, ErrRatingOutOfRange)

	assert.NoError(t, f.tournamentSvc.Register(ctx, tournament.ID, &models.Participant{PlayerID: 103, Rating: 1900}))
}

func TestCloseRegistrationCancelsShortField(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tournament := baseTournament(models.FormatSingleElimination, 4, 16)
	require.NoError(t, f.tournamentSvc.Create(ctx, tournament))
	require.NoError(t, f.tournamentSvc.OpenRegistration(ctx, tournament.ID))
	require.NoError(t, f.tournamentSvc.Register(ctx, tournament.ID, &models.Participant{PlayerID: 101}))
	require.NoError(t, f.tournamentSvc.Register(ctx, tournament.ID, &models.Participant{PlayerID: 102}))

	require.NoError(t, f.tournamentSvc.CloseRegistration(ctx, tournament.ID))

	out, err := f.tournamentSvc.GetByID(ctx, tournament.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusTournamentCanceled, out.Status)
	assert.True(t, f.sink.has(events.TournamentCanceled))
}

func TestCloseRegistrationIgnoresWithdrawnEntries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tournament := baseTournament(models.FormatSingleElimination, 4, 16)
	require.NoError(t, f.tournamentSvc.Create(ctx, tournament))
	require.NoError(t, f.tournamentSvc.OpenRegistration(ctx, tournament.ID))
	entries := make([]*models.Participant, 4)
	for i := range entries {
		entries[i] = &models.Participant{PlayerID: 101 + i}
		require.NoError(t, f.tournamentSvc.Register(ctx, tournament.ID, entries[i]))
	}
	require.NoError(t, f.participants.UpdateStatus(ctx, nil, entries[0].ID, models.ParticipantWithdrawn))

	require.NoError(t, f.tournamentSvc.CloseRegistration(ctx, tournament.ID))

	out, err := f.tournamentSvc.GetByID(ctx, tournament.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusTournamentCanceled, out.Status)
}

func TestStartGeneratesBracketAndSeeds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tournament := readyTournament(t, f, models.FormatSingleElimination, 4)
	require.NoError(t, f.tournamentSvc.Start(ctx, tournament.ID))

	out, err := f.tournamentSvc.GetByID(ctx, tournament.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, out.Status)

	matches, err := f.matches.ListByTournament(ctx, nil, tournament.ID)
	require.NoError(t, err)
	require.Len(t, matches, 3)

	round1, err := f.matches.ListByRound(ctx, nil, tournament.ID, 1)
	require.NoError(t, err)
	require.Len(t, round1, 2)
	for _, m := range round1 {
		assert.True(t, m.HasBothParticipants())
		require.NotNil(t, m.NextMatchID)
	}

	participants, err := f.participants.ListByTournament(ctx, nil, tournament.ID)
	require.NoError(t, err)
	for i, p := range participants {
		assert.Equal(t, i+1, p.Seed)
		assert.Equal(t, models.ParticipantActive, p.Status)
	}

	assert.True(t, f.sink.has(events.TournamentStarted))
}

func TestStartRejectsWrongPhase(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tournament := baseTournament(models.FormatSingleElimination, 2, 8)
	require.NoError(t, f.tournamentSvc.Create(ctx, tournament))

	err := f.tournamentSvc.Start(ctx, tournament.ID)
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)
}

func TestWithdrawBeforeStartDeletesRegistration(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tournament := baseTournament(models.FormatRoundRobin, 2, 8)
	require.NoError(t, f.tournamentSvc.Create(ctx, tournament))
	require.NoError(t, f.tournamentSvc.OpenRegistration(ctx, tournament.ID))

	p := &models.Participant{PlayerID: 101}
	require.NoError(t, f.tournamentSvc.Register(ctx, tournament.ID, p))
	require.NoError(t, f.tournamentSvc.Withdraw(ctx, tournament.ID, p.ID))

	count, err := f.participants.CountByTournament(ctx, nil, tournament.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestWithdrawDuringPlayMarksStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tournament := readyTournament(t, f, models.FormatRoundRobin, 4)
	require.NoError(t, f.tournamentSvc.Start(ctx, tournament.ID))

	participants, err := f.participants.ListByTournament(ctx, nil, tournament.ID)
	require.NoError(t, err)
	require.NoError(t, f.tournamentSvc.Withdraw(ctx, tournament.ID, participants[0].ID))

	p, err := f.participants.GetByID(ctx, nil, participants[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.ParticipantWithdrawn, p.Status)
}

func TestUpdateOnlyInDraft(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tournament := baseTournament(models.FormatSwiss, 2, 8)
	require.NoError(t, f.tournamentSvc.Create(ctx, tournament))

	tournament.Name = "Winter Open"
	require.NoError(t, f.tournamentSvc.Update(ctx, tournament))

	require.NoError(t, f.tournamentSvc.OpenRegistration(ctx, tournament.ID))
	tournament.Name = "Spring Open"
	assert.ErrorIs(t, f.tournamentSvc.Update(ctx, tournament), ErrInvalidStatusTransition)
}

func TestCancelTerminalIsRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tournament := baseTournament(models.FormatSwiss, 2, 8)
	require.NoError(t, f.tournamentSvc.Create(ctx, tournament))
	require.NoError(t, f.tournamentSvc.Cancel(ctx, tournament.ID, "rained out"))

	err := f.tournamentSvc.Cancel(ctx, tournament.ID, "again")
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)
}
